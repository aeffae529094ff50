package query

import (
	"fmt"

	"github.com/snapdoc/snapdoc/internal/value"
)

// Count returns the number of records.
func Count(records []value.Record) int { return len(records) }

// Sum totals a numeric field. Non-numeric and absent values contribute
// zero.
func Sum(records []value.Record, field string) float64 {
	var total float64
	for _, rec := range records {
		if n, ok := rec[field].(value.Number); ok {
			total += float64(n)
		}
	}
	return total
}

// Average divides Sum by the record count. Empty input yields zero.
func Average(records []value.Record, field string) float64 {
	if len(records) == 0 {
		return 0
	}
	return Sum(records, field) / float64(len(records))
}

// Min returns the smallest value of a field across the records,
// skipping records that lack it. The second return is false when no
// record carries the field.
func Min(records []value.Record, field string) (value.Value, bool) {
	return extremum(records, field, -1)
}

// Max mirrors Min for the largest value.
func Max(records []value.Record, field string) (value.Value, bool) {
	return extremum(records, field, 1)
}

func extremum(records []value.Record, field string, want int) (value.Value, bool) {
	var best value.Value
	found := false
	for _, rec := range records {
		v, ok := rec[field]
		if !ok {
			continue
		}
		if !found {
			best = v
			found = true
			continue
		}
		c := value.Compare(v, best)
		if (want < 0 && c < 0) || (want > 0 && c > 0) {
			best = v
		}
	}
	if !found {
		return nil, false
	}
	return value.Clone(best), true
}

// Distinct returns the unique values of a field in first-seen order,
// skipping records that lack it.
func Distinct(records []value.Record, field string) []value.Value {
	seen := map[string]bool{}
	out := []value.Value{}
	for _, rec := range records {
		v, ok := rec[field]
		if !ok {
			continue
		}
		b, err := value.MarshalCanonical(v)
		if err != nil {
			continue
		}
		key := string(b)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, value.Clone(v))
	}
	return out
}

// AccKind names a pipeline accumulator.
type AccKind string

const (
	AccCount AccKind = "count"
	AccSum   AccKind = "sum"
	AccAvg   AccKind = "avg"
	AccMin   AccKind = "min"
	AccMax   AccKind = "max"
	AccPush  AccKind = "push"
)

// Accumulator computes one output field per group. Field is ignored
// for count.
type Accumulator struct {
	Name  string
	Kind  AccKind
	Field string
}

// GroupStage buckets records by the listed fields and reduces each
// bucket through the accumulators. Records missing a grouping field
// get a null key component.
type GroupStage struct {
	By         []string
	Accumulate []Accumulator
}

// Pipeline runs match, group, sort, limit, and project in that fixed
// order. Stages left at their zero value are skipped entirely.
type Pipeline struct {
	Match   Where
	Group   *GroupStage
	OrderBy string
	Order   Order
	Limit   int
	Offset  int
	Fields  []string
}

// Aggregate evaluates the pipeline. Without a group stage it behaves
// like Select; with one, each output record carries the grouping
// fields plus one field per accumulator.
func Aggregate(records []value.Record, p Pipeline) ([]value.Record, error) {
	pred, err := p.Match.Predicate()
	if err != nil {
		return nil, err
	}
	out := Filter(records, pred)

	if p.Group != nil {
		out, err = runGroup(out, *p.Group)
		if err != nil {
			return nil, err
		}
	}

	return Select(out, Query{
		OrderBy: p.OrderBy,
		Order:   p.Order,
		Limit:   p.Limit,
		Offset:  p.Offset,
		Fields:  p.Fields,
	})
}

func runGroup(records []value.Record, stage GroupStage) ([]value.Record, error) {
	if len(stage.By) == 0 {
		return nil, fmt.Errorf("query: group stage needs at least one field")
	}
	for _, acc := range stage.Accumulate {
		if acc.Name == "" {
			return nil, fmt.Errorf("query: accumulator needs a name")
		}
		if acc.Kind != AccCount && acc.Field == "" {
			return nil, fmt.Errorf("query: accumulator %q needs a source field", acc.Name)
		}
	}

	type bucket struct {
		key     value.Object
		members []value.Record
	}
	order := []string{}
	buckets := map[string]*bucket{}

	for _, rec := range records {
		key := value.Object{}
		keyParts := make([]string, len(stage.By))
		for i, field := range stage.By {
			v, ok := rec[field]
			if !ok {
				v = value.Null{}
			}
			key[field] = value.Clone(v)
			keyParts[i] = scalarKey(v)
		}
		id := value.Fingerprint(keyParts...)
		b, ok := buckets[id]
		if !ok {
			b = &bucket{key: key}
			buckets[id] = b
			order = append(order, id)
		}
		b.members = append(b.members, rec)
	}

	out := make([]value.Record, 0, len(order))
	for _, id := range order {
		b := buckets[id]
		row := value.Record(b.key)
		for _, acc := range stage.Accumulate {
			row[acc.Name] = accumulate(b.members, acc)
		}
		out = append(out, row)
	}
	return out, nil
}

func accumulate(members []value.Record, acc Accumulator) value.Value {
	switch acc.Kind {
	case AccCount:
		return value.Number(len(members))
	case AccSum:
		return value.Number(Sum(members, acc.Field))
	case AccAvg:
		return value.Number(Average(members, acc.Field))
	case AccMin:
		if v, ok := Min(members, acc.Field); ok {
			return v
		}
		return value.Null{}
	case AccMax:
		if v, ok := Max(members, acc.Field); ok {
			return v
		}
		return value.Null{}
	case AccPush:
		arr := value.Array{}
		for _, rec := range members {
			if v, ok := rec[acc.Field]; ok {
				arr = append(arr, value.Clone(v))
			}
		}
		return arr
	}
	return value.Null{}
}
