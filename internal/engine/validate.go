package engine

import (
	"time"

	"github.com/snapdoc/snapdoc/internal/errs"
	"github.com/snapdoc/snapdoc/internal/value"
)

// validateRecord enforces the structural invariants every stored record
// carries, then runs the optional per-collection schema.
func (e *Engine) validateRecord(collection string, rec value.Record) error {
	if rec.ID() == "" {
		return &errs.ValidationError{
			Collection: collection,
			Field:      value.FieldID,
			Message:    "id must be a non-empty string",
		}
	}
	for _, field := range []string{value.FieldCreatedAt, value.FieldUpdatedAt} {
		s, ok := rec[field].(value.String)
		if !ok {
			return &errs.ValidationError{
				Collection: collection,
				Field:      field,
				Message:    "timestamp must be a string",
			}
		}
		if _, err := time.Parse(value.TimeFormat, string(s)); err != nil {
			return &errs.ValidationError{
				Collection: collection,
				Field:      field,
				Message:    "timestamp must be RFC 3339",
			}
		}
	}

	if e.validator == nil {
		return nil
	}
	return e.validator.Validate(collection, rec)
}
