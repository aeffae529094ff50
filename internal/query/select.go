package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/snapdoc/snapdoc/internal/value"
)

// Op names a condition operator.
type Op string

const (
	OpEq    Op = "eq"
	OpNe    Op = "ne"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
	OpIn    Op = "in"
	OpNin   Op = "nin"
	OpLike  Op = "like"
	OpRegex Op = "regex"
)

// Condition is one field test. In and Nin expect an Array value; Like
// and Regex expect a String.
type Condition struct {
	Field string
	Op    Op
	Value value.Value
}

// Where is a conjunction of conditions. An empty Where matches all.
type Where []Condition

// Predicate compiles the conjunction. Regex patterns are compiled once
// here; a bad pattern or operand type surfaces as an error instead of
// silently matching nothing.
func (w Where) Predicate() (Predicate, error) {
	matchers := make([]Predicate, len(w))
	for i, cond := range w {
		m, err := cond.matcher()
		if err != nil {
			return nil, err
		}
		matchers[i] = m
	}
	return func(rec value.Record) bool {
		for _, m := range matchers {
			if !m(rec) {
				return false
			}
		}
		return true
	}, nil
}

func (c Condition) matcher() (Predicate, error) {
	switch c.Op {
	case OpEq:
		return func(rec value.Record) bool {
			got, ok := rec[c.Field]
			return ok && value.Equal(got, c.Value)
		}, nil
	case OpNe:
		return func(rec value.Record) bool {
			got, ok := rec[c.Field]
			return !ok || !value.Equal(got, c.Value)
		}, nil
	case OpGt, OpGte, OpLt, OpLte:
		return c.comparison(), nil
	case OpIn, OpNin:
		arr, ok := c.Value.(value.Array)
		if !ok {
			return nil, fmt.Errorf("query: %s on %q needs an array operand", c.Op, c.Field)
		}
		member := func(rec value.Record) bool {
			got, ok := rec[c.Field]
			if !ok {
				return false
			}
			for _, candidate := range arr {
				if value.Equal(got, candidate) {
					return true
				}
			}
			return false
		}
		if c.Op == OpIn {
			return member, nil
		}
		return func(rec value.Record) bool { return !member(rec) }, nil
	case OpLike:
		pattern, ok := c.Value.(value.String)
		if !ok {
			return nil, fmt.Errorf("query: like on %q needs a string operand", c.Field)
		}
		fold := cases.Fold()
		needle := fold.String(string(pattern))
		return func(rec value.Record) bool {
			s, ok := rec[c.Field].(value.String)
			if !ok {
				return false
			}
			return strings.Contains(fold.String(string(s)), needle)
		}, nil
	case OpRegex:
		pattern, ok := c.Value.(value.String)
		if !ok {
			return nil, fmt.Errorf("query: regex on %q needs a string operand", c.Field)
		}
		re, err := regexp.Compile(string(pattern))
		if err != nil {
			return nil, fmt.Errorf("query: regex on %q: %w", c.Field, err)
		}
		return func(rec value.Record) bool {
			s, ok := rec[c.Field].(value.String)
			return ok && re.MatchString(string(s))
		}, nil
	default:
		return nil, fmt.Errorf("query: unknown operator %q", c.Op)
	}
}

// comparison covers gt/gte/lt/lte. Records missing the field never
// match an ordering test.
func (c Condition) comparison() Predicate {
	return func(rec value.Record) bool {
		got, ok := rec[c.Field]
		if !ok {
			return false
		}
		cmp := value.Compare(got, c.Value)
		switch c.Op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		case OpLte:
			return cmp <= 0
		}
		return false
	}
}

// Query is a declarative find: filter, order, paginate, project.
type Query struct {
	Where   Where
	OrderBy string
	Order   Order
	// Limit caps the result when positive; zero or negative means all.
	Limit  int
	Offset int
	// Fields projects the result to the named fields. Fields absent
	// from a record are simply omitted. Empty means whole records.
	Fields []string
}

// Select evaluates a Query against the records.
func Select(records []value.Record, q Query) ([]value.Record, error) {
	pred, err := q.Where.Predicate()
	if err != nil {
		return nil, err
	}
	out := Filter(records, pred)
	if q.OrderBy != "" {
		out = Sort(out, q.OrderBy, q.Order)
	}
	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit <= 0 {
			limit = -1
		}
		out = Limit(out, limit, q.Offset)
	}
	if len(q.Fields) > 0 {
		projected := make([]value.Record, len(out))
		for i, rec := range out {
			p := value.Record{}
			for _, field := range q.Fields {
				if v, ok := rec[field]; ok {
					p[field] = value.Clone(v)
				}
			}
			projected[i] = p
		}
		out = projected
	}
	return out, nil
}

// Fingerprint derives a stable cache key component for the query.
func (q Query) Fingerprint() string {
	parts := []string{
		q.OrderBy,
		string(q.Order),
		strconv.Itoa(q.Limit),
		strconv.Itoa(q.Offset),
		strings.Join(q.Fields, ","),
	}
	for _, cond := range q.Where {
		operand := ""
		if cond.Value != nil {
			if b, err := value.MarshalCanonical(cond.Value); err == nil {
				operand = string(b)
			}
		}
		parts = append(parts, cond.Field, string(cond.Op), operand)
	}
	return value.Fingerprint(parts...)
}
