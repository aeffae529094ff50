package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/snapdoc/snapdoc/internal/errs"
	"github.com/snapdoc/snapdoc/internal/value"
)

// OpKind names a bulk operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Operation is one step of a bulk mutation. Fields is ignored for
// deletes; ID is ignored for creates when Fields carries an "id".
type Operation struct {
	Kind       OpKind
	Collection string
	ID         string
	Fields     value.Object
}

// Result reports the outcome of one bulk operation. Err is nil on
// success; Record holds the created or updated record, or the last
// state of a deleted one.
type Result struct {
	Kind       OpKind
	Collection string
	ID         string
	Record     value.Record
	Err        error
}

// Bulk applies a sequence of operations under a single lock cycle and
// writes at most one new snapshot version. Per-operation failures such
// as updating a missing id are reported in the Result slice without
// aborting the batch; a schema or field validation failure aborts the
// whole batch before any write. When every operation fails, no version
// is written.
func (e *Engine) Bulk(ctx context.Context, ops []Operation, opts ...WriteOption) ([]Result, error) {
	o := applyWriteOptions(opts)
	message := o.Message
	if message == "" {
		message = fmt.Sprintf("bulk (%d ops)", len(ops))
	}

	var results []Result
	err := e.mutate(ctx, message, func(db value.Database) ([]string, error) {
		results = make([]Result, len(ops))
		touched := map[string]bool{}
		succeeded := 0

		for i, op := range ops {
			res := Result{Kind: op.Kind, Collection: op.Collection, ID: op.ID}
			var err error
			switch op.Kind {
			case OpCreate:
				res.Record, res.ID, err = e.bulkCreate(db, op)
			case OpUpdate:
				res.Record, err = e.bulkUpdate(db, op)
			case OpDelete:
				res.Record, err = e.bulkDelete(db, op)
			default:
				err = fmt.Errorf("unknown operation kind %q", op.Kind)
			}
			if errs.IsValidation(err) {
				return nil, err
			}
			res.Err = err
			if err == nil {
				touched[op.Collection] = true
				succeeded++
			}
			results[i] = res
		}

		if succeeded == 0 {
			return nil, errNoWrite
		}
		names := make([]string, 0, len(touched))
		for name := range touched {
			names = append(names, name)
		}
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) bulkCreate(db value.Database, op Operation) (value.Record, string, error) {
	id, err := recordID(op.Collection, op.Fields)
	if err != nil {
		return nil, "", err
	}
	if id == "" {
		id = op.ID
	}
	if id == "" {
		id = uuid.NewString()
	}
	if _, _, ok := db.FindRecord(op.Collection, id); ok {
		return nil, id, &errs.ValidationError{
			Collection: op.Collection,
			Field:      value.FieldID,
			Message:    "duplicate id " + id,
		}
	}

	now := time.Now().UTC().Format(value.TimeFormat)
	rec := value.Record(op.Fields.Clone())
	if rec == nil {
		rec = value.Record{}
	}
	rec[value.FieldID] = value.String(id)
	rec[value.FieldCreatedAt] = value.String(now)
	rec[value.FieldUpdatedAt] = value.String(now)

	if err := e.validateRecord(op.Collection, rec); err != nil {
		return nil, id, err
	}
	db[op.Collection] = append(db[op.Collection], rec)
	return rec.Clone(), id, nil
}

func (e *Engine) bulkUpdate(db value.Database, op Operation) (value.Record, error) {
	cur, idx, ok := db.FindRecord(op.Collection, op.ID)
	if !ok {
		return nil, errs.NotFoundf("record %s/%s", op.Collection, op.ID)
	}

	merged := cur.Clone()
	for name, v := range op.Fields {
		switch name {
		case value.FieldID, value.FieldCreatedAt, value.FieldUpdatedAt:
			continue
		}
		merged[name] = value.Clone(v)
	}
	merged[value.FieldUpdatedAt] = value.String(time.Now().UTC().Format(value.TimeFormat))

	if err := e.validateRecord(op.Collection, merged); err != nil {
		return nil, err
	}
	db[op.Collection][idx] = merged
	return merged.Clone(), nil
}

func (e *Engine) bulkDelete(db value.Database, op Operation) (value.Record, error) {
	cur, idx, ok := db.FindRecord(op.Collection, op.ID)
	if !ok {
		return nil, errs.NotFoundf("record %s/%s", op.Collection, op.ID)
	}
	removed := cur.Clone()
	db[op.Collection] = slices.Delete(db[op.Collection], idx, idx+1)
	return removed, nil
}
