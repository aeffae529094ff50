package value

import (
	"fmt"
	"time"
)

// Mandatory record fields. The engine stamps all three; id and createdAt
// are immutable after creation.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// TimeFormat is the serialization format for record timestamps. RFC 3339
// with nanoseconds keeps updatedAt strictly increasing across rapid
// successive mutations.
const TimeFormat = time.RFC3339Nano

// Record is one addressable document within a collection, keyed by the
// id field.
type Record Object

// ID returns the record's id, or "" when absent or not a string.
func (r Record) ID() string {
	s, ok := r[FieldID].(String)
	if !ok {
		return ""
	}
	return string(s)
}

// CreatedAt parses the createdAt timestamp. Returns the zero time when
// the field is absent or malformed.
func (r Record) CreatedAt() time.Time {
	return r.timeField(FieldCreatedAt)
}

// UpdatedAt parses the updatedAt timestamp. Returns the zero time when
// the field is absent or malformed.
func (r Record) UpdatedAt() time.Time {
	return r.timeField(FieldUpdatedAt)
}

func (r Record) timeField(name string) time.Time {
	s, ok := r[name].(String)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(TimeFormat, string(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	return Record(Clone(Object(r)).(Object))
}

// Equal reports deep equality with another record.
func (r Record) Equal(other Record) bool {
	return Equal(Object(r), Object(other))
}

// Database maps collection name to an ordered sequence of records. Record
// order is insertion order; it carries no meaning but is preserved across
// read-modify-write cycles to keep snapshot diffs minimal.
type Database map[string][]Record

// Collections returns collection names in canonical key order.
func (db Database) Collections() []string {
	obj := make(Object, len(db))
	for name := range db {
		obj[name] = Null{}
	}
	return obj.SortedKeys()
}

// FindRecord locates a record by id within a collection. The returned
// index is the record's position in insertion order.
func (db Database) FindRecord(collection, id string) (Record, int, bool) {
	for i, rec := range db[collection] {
		if rec.ID() == id {
			return rec, i, true
		}
	}
	return nil, -1, false
}

// Clone returns a deep copy of the database.
func (db Database) Clone() Database {
	out := make(Database, len(db))
	for name, records := range db {
		cloned := make([]Record, len(records))
		for i, rec := range records {
			cloned[i] = rec.Clone()
		}
		out[name] = cloned
	}
	return out
}

// ToObject converts the database to an Object for canonical
// serialization: each collection becomes an Array of Objects with record
// order preserved.
func (db Database) ToObject() Object {
	obj := make(Object, len(db))
	for name, records := range db {
		arr := make(Array, len(records))
		for i, rec := range records {
			arr[i] = Object(rec)
		}
		obj[name] = arr
	}
	return obj
}

// DatabaseFromObject converts a parsed Object back to a Database. Every
// top-level value must be an array of objects.
func DatabaseFromObject(obj Object) (Database, error) {
	db := make(Database, len(obj))
	for name, v := range obj {
		arr, ok := v.(Array)
		if !ok {
			return nil, &shapeError{collection: name, want: "array of records"}
		}
		records := make([]Record, len(arr))
		for i, elem := range arr {
			rec, ok := elem.(Object)
			if !ok {
				return nil, &shapeError{collection: name, want: "record object", index: i, indexed: true}
			}
			records[i] = Record(rec)
		}
		db[name] = records
	}
	return db, nil
}

type shapeError struct {
	collection string
	want       string
	index      int
	indexed    bool
}

func (e *shapeError) Error() string {
	if e.indexed {
		return fmt.Sprintf("collection %s[%d]: expected %s", e.collection, e.index, e.want)
	}
	return fmt.Sprintf("collection %s: expected %s", e.collection, e.want)
}
