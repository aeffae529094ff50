// Package value defines the dynamic value model for snapdoc documents:
// a sealed tagged union over the JSON-compatible types a record field may
// hold, plus records, databases, deep equality, and a deterministic
// canonical serialization used for snapshot bytes and content hashing.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the field types a record may hold.
// Only Null, String, Number, Bool, Array, and Object implement it, which
// keeps validation and equality well-defined.
type Value interface {
	value() // sealed
}

// Null represents an explicit null field value.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string field value.
type String string

func (String) value() {}

// Number represents a numeric field value. Documents carry arbitrary JSON
// numbers, so the representation is float64 throughout.
type Number float64

func (Number) value() {}

// Bool represents a boolean field value.
type Bool bool

func (Bool) value() {}

// Array represents an ordered sequence of values.
type Array []Value

func (Array) value() {}

// Object represents a map of field name to value. Use SortedKeys for
// deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// Clone returns a deep copy of the object.
func (obj Object) Clone() Object {
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = Clone(v)
	}
	return out
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings compares UTF-8 bytes, which produces a different
// order for strings outside the ASCII range.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	if len(a16) < len(b16) {
		return -1
	}
	if len(a16) > len(b16) {
		return 1
	}
	return 0
}

// FromAny converts a decoded document value (the shapes produced by
// encoding/json with UseNumber, or by yaml.v3) into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case float64:
		return Number(val), nil
	case float32:
		return Number(val), nil
	case int:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case uint64:
		return Number(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q out of range: %w", val.String(), err)
		}
		return Number(f), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			converted, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = converted
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			converted, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = converted
		}
		return obj, nil
	case Value:
		return val, nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// ToAny converts a Value back to plain Go types (nil, bool, string,
// float64, []any, map[string]any) for encoders that do not understand
// the sealed union.
func ToAny(v Value) any {
	switch val := v.(type) {
	case Null:
		return nil
	case String:
		return string(val)
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}

// Equal reports deep structural equality of two values. A nil Value and
// Null are treated as equal so that absent and explicit-null fields
// compare the same way during history diffing.
func Equal(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, elem := range av {
			other, present := bv[k]
			if !present || !Equal(elem, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// typeRank orders values of different types for the stable mixed-type
// fallback ordering: null < bool < number < string < array < object.
func typeRank(v Value) int {
	switch v.(type) {
	case Null:
		return 0
	case Bool:
		return 1
	case Number:
		return 2
	case String:
		return 3
	case Array:
		return 4
	case Object:
		return 5
	default:
		return 6
	}
}

// Compare orders two values. Same-type scalars compare naturally
// (strings case-sensitively here; query.Sort layers case folding on
// top); mixed types fall back to a stable ordering by type rank.
func Compare(a, b Value) int {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case Null:
		return 0
	case Bool:
		bv := b.(Bool)
		if av == bv {
			return 0
		}
		if !bool(av) {
			return -1
		}
		return 1
	case Number:
		bv := b.(Number)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case String:
		bv := b.(String)
		return bytes.Compare([]byte(av), []byte(bv))
	case Array:
		bv := b.(Array)
		minLen := min(len(av), len(bv))
		for i := 0; i < minLen; i++ {
			if c := Compare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return len(av) - len(bv)
	case Object:
		// Objects compare by canonical serialization; cheap enough for
		// the rare case of sorting on an object-valued field.
		ab, _ := MarshalCanonical(av)
		bb, _ := MarshalCanonical(b)
		return bytes.Compare(ab, bb)
	default:
		return 0
	}
}

// Clone returns a deep copy. Scalars are immutable and shared; arrays
// and objects are copied recursively.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Object:
		out := make(Object, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	default:
		return v
	}
}
