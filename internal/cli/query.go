package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/snapdoc/snapdoc/internal/query"
	"github.com/snapdoc/snapdoc/internal/value"
)

// NewQueryCommand creates the query command: declarative find plus
// grouped aggregation over one collection.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		wheres   []string
		orderBy  string
		order    string
		limit    int
		offset   int
		fields   []string
		groupBy  []string
		accs     []string
		distinct string
	)

	cmd := &cobra.Command{
		Use:   "query <collection>",
		Short: "Query a collection",
		Long: `Query a collection with conditions, ordering, pagination, and
projection, or aggregate it with --group-by and --acc.

Conditions take the form field:op:value where op is one of
eq, ne, gt, gte, lt, lte, in, nin, like, regex and value is JSON
(bare words count as strings):

  snapdoc query users --where age:gte:25 --order-by name --order desc`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)

			where, err := parseWhere(wheres)
			if err != nil {
				return WrapExitError(ExitCommandError, "parse --where", err)
			}

			a, cleanup, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			if distinct != "" || len(groupBy) > 0 {
				records, err := a.txn.Collection(cmd.Context(), args[0])
				if err != nil {
					_ = f.Error(failureCode(err), err.Error())
					return WrapExitError(ExitFailure, "query", err)
				}

				if distinct != "" {
					values := query.Distinct(records, distinct)
					out := make([]any, len(values))
					for i, v := range values {
						out[i] = value.ToAny(v)
					}
					return f.Success(out)
				}

				accumulators, err := parseAccumulators(accs)
				if err != nil {
					return WrapExitError(ExitCommandError, "parse --acc", err)
				}
				rows, err := query.Aggregate(records, query.Pipeline{
					Match:   where,
					Group:   &query.GroupStage{By: groupBy, Accumulate: accumulators},
					OrderBy: orderBy,
					Order:   query.Order(order),
					Limit:   limit,
					Offset:  offset,
					Fields:  fields,
				})
				if err != nil {
					_ = f.Error("E_QUERY", err.Error())
					return WrapExitError(ExitFailure, "aggregate", err)
				}
				return outputRecords(f, rows)
			}

			rows, err := a.txn.Query(cmd.Context(), args[0], query.Query{
				Where:   where,
				OrderBy: orderBy,
				Order:   query.Order(order),
				Limit:   limit,
				Offset:  offset,
				Fields:  fields,
			})
			if err != nil {
				_ = f.Error(failureCode(err), err.Error())
				return WrapExitError(ExitFailure, "query", err)
			}
			return outputRecords(f, rows)
		},
	}

	cmd.Flags().StringArrayVar(&wheres, "where", nil, "condition field:op:value (repeatable)")
	cmd.Flags().StringVar(&orderBy, "order-by", "", "sort field")
	cmd.Flags().StringVar(&order, "order", "asc", "sort direction (asc|desc)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max results (0 = all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "results to skip")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "projection fields")
	cmd.Flags().StringSliceVar(&groupBy, "group-by", nil, "aggregate: grouping fields")
	cmd.Flags().StringArrayVar(&accs, "acc", nil, "aggregate: accumulator name:kind[:field] (repeatable)")
	cmd.Flags().StringVar(&distinct, "distinct", "", "list distinct values of one field")
	return cmd
}

func parseWhere(raw []string) (query.Where, error) {
	where := query.Where{}
	for _, s := range raw {
		parts := strings.SplitN(s, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("condition %q is not field:op:value", s)
		}
		operand, err := parseOperand(parts[2])
		if err != nil {
			return nil, err
		}
		where = append(where, query.Condition{
			Field: parts[0],
			Op:    query.Op(parts[1]),
			Value: operand,
		})
	}
	return where, nil
}

// parseOperand reads the value part of a condition as JSON, falling
// back to a plain string for bare words like berlin.
func parseOperand(raw string) (value.Value, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return value.String(raw), nil
	}
	return value.FromAny(decoded)
}

func parseAccumulators(raw []string) ([]query.Accumulator, error) {
	if len(raw) == 0 {
		return []query.Accumulator{{Name: "count", Kind: query.AccCount}}, nil
	}
	out := make([]query.Accumulator, len(raw))
	for i, s := range raw {
		parts := strings.SplitN(s, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("accumulator %q is not name:kind[:field]", s)
		}
		acc := query.Accumulator{Name: parts[0], Kind: query.AccKind(parts[1])}
		if len(parts) == 3 {
			acc.Field = parts[2]
		}
		out[i] = acc
	}
	return out, nil
}
