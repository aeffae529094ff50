// Package query evaluates filters, sorts, projections, joins, and
// aggregation pipelines over in-memory record slices. Every operation
// is pure: inputs are never mutated and results are fresh slices, so
// cached collections can be queried safely from many goroutines.
package query

import (
	"github.com/snapdoc/snapdoc/internal/value"
)

// Predicate reports whether a record matches.
type Predicate func(value.Record) bool

// Filter returns the records matching pred, in input order. The result
// is always non-nil.
func Filter(records []value.Record, pred Predicate) []value.Record {
	out := []value.Record{}
	for _, rec := range records {
		if pred(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Find returns the first matching record.
func Find(records []value.Record, pred Predicate) (value.Record, bool) {
	for _, rec := range records {
		if pred(rec) {
			return rec, true
		}
	}
	return nil, false
}

// FindAll is Filter under its traditional name.
func FindAll(records []value.Record, pred Predicate) []value.Record {
	return Filter(records, pred)
}

// Map transforms each record through fn.
func Map[T any](records []value.Record, fn func(value.Record) T) []T {
	out := make([]T, len(records))
	for i, rec := range records {
		out[i] = fn(rec)
	}
	return out
}

// Reduce folds the records left to right.
func Reduce[T any](records []value.Record, initial T, fn func(T, value.Record) T) T {
	acc := initial
	for _, rec := range records {
		acc = fn(acc, rec)
	}
	return acc
}

// Limit returns at most n records starting at offset. Out-of-range
// bounds clamp to the slice; n < 0 means no limit.
func Limit(records []value.Record, n, offset int) []value.Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []value.Record{}
	}
	rest := records[offset:]
	if n < 0 || n >= len(rest) {
		return append([]value.Record{}, rest...)
	}
	return append([]value.Record{}, rest[:n]...)
}

// GroupBy buckets records by the string form of one field. Records
// missing the field land under the empty key. Bucket order follows
// input order; iteration order of the map is up to the caller.
func GroupBy(records []value.Record, field string) map[string][]value.Record {
	groups := map[string][]value.Record{}
	for _, rec := range records {
		key := ""
		if v, ok := rec[field]; ok {
			key = scalarKey(v)
		}
		groups[key] = append(groups[key], rec)
	}
	return groups
}
