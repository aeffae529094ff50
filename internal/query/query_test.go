package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapdoc/snapdoc/internal/value"
)

func rec(pairs ...any) value.Record {
	r := value.Record{}
	for i := 0; i+1 < len(pairs); i += 2 {
		v, err := value.FromAny(pairs[i+1])
		if err != nil {
			panic(err)
		}
		r[pairs[i].(string)] = v
	}
	return r
}

func people() []value.Record {
	return []value.Record{
		rec("id", "1", "name", "Alice", "age", 30.0, "city", "Berlin"),
		rec("id", "2", "name", "bob", "age", 20.0, "city", "Paris"),
		rec("id", "3", "name", "Carol", "age", 25.0, "city", "Berlin"),
	}
}

func names(records []value.Record) []string {
	return Map(records, func(r value.Record) string {
		s, _ := r["name"].(value.String)
		return string(s)
	})
}

func TestFilterComposes(t *testing.T) {
	recs := people()
	adult := func(r value.Record) bool {
		n, _ := r["age"].(value.Number)
		return n >= 25
	}
	berlin := func(r value.Record) bool {
		return value.Equal(r["city"], value.String("Berlin"))
	}

	both := Filter(Filter(recs, adult), berlin)
	swapped := Filter(Filter(recs, berlin), adult)
	assert.Equal(t, names(both), names(swapped))
	assert.Equal(t, []string{"Alice", "Carol"}, names(both))
}

func TestFilterNeverMutatesInput(t *testing.T) {
	recs := people()
	_ = Filter(recs, func(value.Record) bool { return false })
	assert.Len(t, recs, 3)
	assert.Equal(t, []string{"Alice", "bob", "Carol"}, names(recs))
}

func TestFindAndReduce(t *testing.T) {
	recs := people()

	got, ok := Find(recs, func(r value.Record) bool {
		return value.Equal(r["city"], value.String("Paris"))
	})
	require.True(t, ok)
	assert.Equal(t, value.String("bob"), got["name"])

	total := Reduce(recs, 0.0, func(acc float64, r value.Record) float64 {
		n, _ := r["age"].(value.Number)
		return acc + float64(n)
	})
	assert.Equal(t, 75.0, total)
}

func TestLimitClamps(t *testing.T) {
	recs := people()

	assert.Equal(t, []string{"bob", "Carol"}, names(Limit(recs, 5, 1)))
	assert.Equal(t, []string{"Alice"}, names(Limit(recs, 1, 0)))
	assert.Empty(t, Limit(recs, 2, 10))
	assert.Equal(t, []string{"Alice", "bob", "Carol"}, names(Limit(recs, -1, 0)))
}

func TestSortCaseInsensitive(t *testing.T) {
	recs := people()

	asc := Sort(recs, "name", Asc)
	assert.Equal(t, []string{"Alice", "bob", "Carol"}, names(asc))

	desc := Sort(recs, "name", Desc)
	assert.Equal(t, []string{"Carol", "bob", "Alice"}, names(desc))

	assert.Equal(t, []string{"Alice", "bob", "Carol"}, names(recs), "input untouched")
}

func TestSortMissingFieldFirst(t *testing.T) {
	recs := append(people(), rec("id", "4", "name", "Dan"))

	sorted := Sort(recs, "age", Asc)
	assert.Equal(t, []string{"Dan", "bob", "Carol", "Alice"}, names(sorted))
}

func TestSortMixedTypesByRank(t *testing.T) {
	recs := []value.Record{
		rec("id", "1", "v", "text"),
		rec("id", "2", "v", 3.0),
		rec("id", "3", "v", true),
	}
	sorted := Sort(recs, "v", Asc)
	ids := Map(sorted, func(r value.Record) string { return r.ID() })
	assert.Equal(t, []string{"3", "2", "1"}, ids, "bool before number before string")
}

func TestGroupBy(t *testing.T) {
	groups := GroupBy(people(), "city")

	require.Len(t, groups, 2)
	assert.Equal(t, []string{"Alice", "Carol"}, names(groups["Berlin"]))
	assert.Equal(t, []string{"bob"}, names(groups["Paris"]))
}

func TestAggregateScalars(t *testing.T) {
	recs := people()

	assert.Equal(t, 3, Count(recs))
	assert.Equal(t, 75.0, Sum(recs, "age"))
	assert.Equal(t, 25.0, Average(recs, "age"))

	min, ok := Min(recs, "age")
	require.True(t, ok)
	assert.Equal(t, value.Number(20), min)

	max, ok := Max(recs, "age")
	require.True(t, ok)
	assert.Equal(t, value.Number(30), max)

	_, ok = Min(recs, "salary")
	assert.False(t, ok)

	cities := Distinct(recs, "city")
	assert.Equal(t, []value.Value{value.String("Berlin"), value.String("Paris")}, cities)
}

func TestSumSkipsNonNumeric(t *testing.T) {
	recs := append(people(), rec("id", "4", "age", "old"))
	assert.Equal(t, 75.0, Sum(recs, "age"))
	assert.Equal(t, 75.0/4, Average(recs, "age"))
}

func TestSelectOperators(t *testing.T) {
	recs := people()

	cases := []struct {
		name string
		cond Condition
		want []string
	}{
		{"eq", Condition{"city", OpEq, value.String("Berlin")}, []string{"Alice", "Carol"}},
		{"ne", Condition{"city", OpNe, value.String("Berlin")}, []string{"bob"}},
		{"gt", Condition{"age", OpGt, value.Number(25)}, []string{"Alice"}},
		{"gte", Condition{"age", OpGte, value.Number(25)}, []string{"Alice", "Carol"}},
		{"lt", Condition{"age", OpLt, value.Number(25)}, []string{"bob"}},
		{"lte", Condition{"age", OpLte, value.Number(25)}, []string{"bob", "Carol"}},
		{"in", Condition{"id", OpIn, value.Array{value.String("1"), value.String("3")}}, []string{"Alice", "Carol"}},
		{"nin", Condition{"id", OpNin, value.Array{value.String("1"), value.String("3")}}, []string{"bob"}},
		{"like", Condition{"name", OpLike, value.String("AL")}, []string{"Alice"}},
		{"regex", Condition{"name", OpRegex, value.String("^[bC]")}, []string{"bob", "Carol"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Select(recs, Query{Where: Where{tc.cond}})
			require.NoError(t, err)
			assert.Equal(t, tc.want, names(got))
		})
	}
}

func TestSelectRejectsBadRegex(t *testing.T) {
	_, err := Select(people(), Query{Where: Where{{"name", OpRegex, value.String("(")}}})
	assert.Error(t, err)
}

func TestSelectOrderLimitProject(t *testing.T) {
	got, err := Select(people(), Query{
		Where:   Where{{"age", OpGte, value.Number(20)}},
		OrderBy: "age",
		Order:   Desc,
		Limit:   2,
		Fields:  []string{"name", "age"},
	})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, []string{"Alice", "Carol"}, names(got))
	_, hasCity := got[0]["city"]
	assert.False(t, hasCity, "projection drops unlisted fields")
}

func TestQueryFingerprintStable(t *testing.T) {
	q := Query{Where: Where{{"age", OpGte, value.Number(25)}}, OrderBy: "name"}

	assert.Equal(t, q.Fingerprint(), q.Fingerprint())
	other := Query{Where: Where{{"age", OpGte, value.Number(26)}}, OrderBy: "name"}
	assert.NotEqual(t, q.Fingerprint(), other.Fingerprint())
}

func TestAggregatePipeline(t *testing.T) {
	recs := append(people(), rec("id", "4", "name", "Dave", "age", 35.0, "city", "Paris"))

	got, err := Aggregate(recs, Pipeline{
		Match: Where{{"age", OpGte, value.Number(21)}},
		Group: &GroupStage{
			By: []string{"city"},
			Accumulate: []Accumulator{
				{Name: "count", Kind: AccCount},
				{Name: "avgAge", Kind: AccAvg, Field: "age"},
				{Name: "oldest", Kind: AccMax, Field: "age"},
				{Name: "names", Kind: AccPush, Field: "name"},
			},
		},
		OrderBy: "city",
		Order:   Asc,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	berlin := got[0]
	assert.Equal(t, value.String("Berlin"), berlin["city"])
	assert.Equal(t, value.Number(2), berlin["count"])
	assert.Equal(t, value.Number(27.5), berlin["avgAge"])
	assert.Equal(t, value.Number(30), berlin["oldest"])
	assert.Equal(t, value.Array{value.String("Alice"), value.String("Carol")}, berlin["names"])

	paris := got[1]
	assert.Equal(t, value.Number(1), paris["count"])
	assert.Equal(t, value.Array{value.String("Dave")}, paris["names"])
}

func TestAggregateNullKeyForMissingField(t *testing.T) {
	recs := append(people(), rec("id", "4", "name", "Eve", "age", 40.0))

	got, err := Aggregate(recs, Pipeline{
		Group: &GroupStage{
			By:         []string{"city"},
			Accumulate: []Accumulator{{Name: "count", Kind: AccCount}},
		},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	var nullGroup value.Record
	for _, row := range got {
		if value.Equal(row["city"], value.Null{}) {
			nullGroup = row
		}
	}
	require.NotNil(t, nullGroup)
	assert.Equal(t, value.Number(1), nullGroup["count"])
}

func TestJoin(t *testing.T) {
	users := []value.Record{
		rec("id", "1", "name", "Alice", "cityId", "b"),
		rec("id", "2", "name", "Bob", "cityId", "x"),
	}
	cities := []value.Record{
		rec("id", "b", "city", "Berlin"),
		rec("id", "p", "city", "Paris"),
	}
	opts := JoinOptions{LeftField: "cityId", RightField: "id", LeftAs: "user", RightAs: "where"}

	inner := Join(users, cities, opts)
	require.Len(t, inner, 1)
	user := inner[0]["user"].(value.Object)
	assert.Equal(t, value.String("Alice"), user["name"])

	opts.Kind = JoinLeft
	left := Join(users, cities, opts)
	require.Len(t, left, 2)
	assert.Equal(t, value.Null{}, left[1]["where"], "unmatched side is null")

	opts.Kind = JoinRight
	right := Join(users, cities, opts)
	require.Len(t, right, 2)
	assert.Equal(t, value.Null{}, right[1]["user"])
}
