package query

import (
	"github.com/snapdoc/snapdoc/internal/value"
)

// JoinKind selects which unmatched rows survive a join.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
	JoinRight JoinKind = "right"
)

// JoinOptions configures a join between two record slices on equal
// field values. LeftAs and RightAs name the nested objects in each
// output row and default to "left" and "right".
type JoinOptions struct {
	Kind       JoinKind
	LeftField  string
	RightField string
	LeftAs     string
	RightAs    string
}

// Join pairs records whose join fields compare equal. Inner joins drop
// unmatched rows; left and right joins keep them with a null on the
// absent side. Output order follows the left input, then (for right
// joins) unmatched right rows in their input order.
func Join(left, right []value.Record, opts JoinOptions) []value.Record {
	if opts.Kind == "" {
		opts.Kind = JoinInner
	}
	if opts.LeftAs == "" {
		opts.LeftAs = "left"
	}
	if opts.RightAs == "" {
		opts.RightAs = "right"
	}

	rightMatched := make([]bool, len(right))
	out := []value.Record{}

	for _, l := range left {
		lv, lok := l[opts.LeftField]
		matched := false
		if lok {
			for i, r := range right {
				rv, rok := r[opts.RightField]
				if rok && value.Equal(lv, rv) {
					out = append(out, joinRow(opts, l, r))
					rightMatched[i] = true
					matched = true
				}
			}
		}
		if !matched && opts.Kind == JoinLeft {
			out = append(out, joinRow(opts, l, nil))
		}
	}

	if opts.Kind == JoinRight {
		for i, r := range right {
			if !rightMatched[i] {
				out = append(out, joinRow(opts, nil, r))
			}
		}
	}
	return out
}

func joinRow(opts JoinOptions, l, r value.Record) value.Record {
	row := value.Record{}
	if l != nil {
		row[opts.LeftAs] = value.Object(l.Clone())
	} else {
		row[opts.LeftAs] = value.Null{}
	}
	if r != nil {
		row[opts.RightAs] = value.Object(r.Clone())
	} else {
		row[opts.RightAs] = value.Null{}
	}
	return row
}
