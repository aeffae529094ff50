package query

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/snapdoc/snapdoc/internal/value"
)

// Order selects the sort direction.
type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// collator compares strings case-insensitively. collate.Buffer is not
// goroutine safe, so each call site builds its own collator.
func newCollator() *collate.Collator {
	return collate.New(language.Und, collate.IgnoreCase)
}

// CompareField orders two records by one field. Records missing the
// field sort before records that have it; strings compare without
// case, everything else through the cross-type value ordering.
func CompareField(col *collate.Collator, a, b value.Record, field string) int {
	av, aok := a[field]
	bv, bok := b[field]
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	if as, ok := av.(value.String); ok {
		if bs, ok := bv.(value.String); ok {
			if c := col.CompareString(string(as), string(bs)); c != 0 {
				return c
			}
			return 0
		}
	}
	return value.Compare(av, bv)
}

// Sort returns the records ordered by field. The sort is stable, so
// equal keys keep their input order.
func Sort(records []value.Record, field string, order Order) []value.Record {
	col := newCollator()
	return SortFunc(records, func(a, b value.Record) int {
		c := CompareField(col, a, b, field)
		if order == Desc {
			return -c
		}
		return c
	})
}

// SortFunc returns the records ordered by an arbitrary comparator.
func SortFunc(records []value.Record, cmp func(a, b value.Record) int) []value.Record {
	out := append([]value.Record{}, records...)
	sort.SliceStable(out, func(i, j int) bool {
		return cmp(out[i], out[j]) < 0
	})
	return out
}

// scalarKey renders a value as a grouping key. Strings are used as-is;
// everything else takes its canonical JSON encoding.
func scalarKey(v value.Value) string {
	if s, ok := v.(value.String); ok {
		return string(s)
	}
	b, err := value.MarshalCanonical(v)
	if err != nil {
		return ""
	}
	return string(b)
}
