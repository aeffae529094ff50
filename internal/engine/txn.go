package engine

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/snapdoc/snapdoc/internal/errs"
	"github.com/snapdoc/snapdoc/internal/value"
)

// WriteOptions carries per-mutation settings.
type WriteOptions struct {
	// Message annotates the version on a versioned medium. Empty means
	// a generated default like "create users/42".
	Message string
}

// WriteOption mutates WriteOptions.
type WriteOption func(*WriteOptions)

// WithMessage sets the version message for one mutation.
func WithMessage(msg string) WriteOption {
	return func(o *WriteOptions) { o.Message = msg }
}

func applyWriteOptions(opts []WriteOption) WriteOptions {
	var o WriteOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// errNoWrite signals that apply changed nothing and the write should be
// skipped without surfacing an error to the caller.
var errNoWrite = errors.New("no effective changes")

// mutate runs one locked read-modify-write cycle. apply receives a
// freshly loaded database and mutates it in place, returning the names
// of the collections it touched. On ErrVersionConflict the cycle
// reloads and re-applies, up to the retry budget. The advisory lock
// only serializes cooperating writers for throughput; the expected
// version check on write is what actually prevents lost updates.
func (e *Engine) mutate(ctx context.Context, message string, apply func(db value.Database) ([]string, error)) error {
	release, err := e.locker.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt <= e.retries; attempt++ {
		db, token, err := e.load(ctx)
		if err != nil {
			return err
		}

		touched, err := apply(db)
		if errors.Is(err, errNoWrite) {
			return nil
		}
		if err != nil {
			return err
		}

		plain, err := e.codec.Serialize(db)
		if err != nil {
			return err
		}
		blob, err := e.sealer.Wrap(plain)
		if err != nil {
			return err
		}

		if prev, _, readErr := e.medium.ReadCurrent(ctx); readErr == nil {
			e.writeBackup(prev)
		}

		if _, err = e.medium.WriteNew(ctx, blob, message, e.author, token); err != nil {
			if errors.Is(err, errs.ErrVersionConflict) {
				lastErr = err
				e.log.Debug("version conflict, retrying (attempt %d)", attempt+1)
				continue
			}
			return err
		}

		for _, name := range touched {
			e.cache.InvalidateCollection(name)
		}
		return nil
	}
	return lastErr
}

// Create inserts a new record. A caller-supplied "id" field is honored
// when present; otherwise a UUID is generated. createdAt and updatedAt
// are always stamped by the engine.
func (e *Engine) Create(ctx context.Context, collection string, fields value.Object, opts ...WriteOption) (value.Record, error) {
	o := applyWriteOptions(opts)

	id, err := recordID(collection, fields)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}
	message := o.Message
	if message == "" {
		message = "create " + collection + "/" + id
	}

	var created value.Record
	err = e.mutate(ctx, message, func(db value.Database) ([]string, error) {
		if _, _, ok := db.FindRecord(collection, id); ok {
			return nil, &errs.ValidationError{
				Collection: collection,
				Field:      value.FieldID,
				Message:    "duplicate id " + id,
			}
		}

		now := time.Now().UTC().Format(value.TimeFormat)
		rec := value.Record(fields.Clone())
		rec[value.FieldID] = value.String(id)
		rec[value.FieldCreatedAt] = value.String(now)
		rec[value.FieldUpdatedAt] = value.String(now)

		if err := e.validateRecord(collection, rec); err != nil {
			return nil, err
		}

		db[collection] = append(db[collection], rec)
		created = rec.Clone()
		return []string{collection}, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update merges fields into an existing record. The id and createdAt
// fields keep their stored values regardless of caller input; updatedAt
// is refreshed. Position within the collection is preserved.
func (e *Engine) Update(ctx context.Context, collection, id string, fields value.Object, opts ...WriteOption) (value.Record, error) {
	o := applyWriteOptions(opts)
	message := o.Message
	if message == "" {
		message = "update " + collection + "/" + id
	}

	var updated value.Record
	err := e.mutate(ctx, message, func(db value.Database) ([]string, error) {
		cur, idx, ok := db.FindRecord(collection, id)
		if !ok {
			return nil, errs.NotFoundf("record %s/%s", collection, id)
		}

		merged := cur.Clone()
		for name, v := range fields {
			switch name {
			case value.FieldID, value.FieldCreatedAt, value.FieldUpdatedAt:
				continue
			}
			merged[name] = value.Clone(v)
		}
		merged[value.FieldUpdatedAt] = value.String(time.Now().UTC().Format(value.TimeFormat))

		if err := e.validateRecord(collection, merged); err != nil {
			return nil, err
		}

		db[collection][idx] = merged
		updated = merged.Clone()
		return []string{collection}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes one record and returns its last state.
func (e *Engine) Delete(ctx context.Context, collection, id string, opts ...WriteOption) (value.Record, error) {
	o := applyWriteOptions(opts)
	message := o.Message
	if message == "" {
		message = "delete " + collection + "/" + id
	}

	var removed value.Record
	err := e.mutate(ctx, message, func(db value.Database) ([]string, error) {
		cur, idx, ok := db.FindRecord(collection, id)
		if !ok {
			return nil, errs.NotFoundf("record %s/%s", collection, id)
		}
		removed = cur.Clone()
		db[collection] = slices.Delete(db[collection], idx, idx+1)
		return []string{collection}, nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// DeleteCollection removes an entire collection and returns its records.
func (e *Engine) DeleteCollection(ctx context.Context, collection string, opts ...WriteOption) ([]value.Record, error) {
	o := applyWriteOptions(opts)
	message := o.Message
	if message == "" {
		message = "delete collection " + collection
	}

	var removed []value.Record
	err := e.mutate(ctx, message, func(db value.Database) ([]string, error) {
		records, ok := db[collection]
		if !ok {
			return nil, errs.NotFoundf("collection %s", collection)
		}
		removed = make([]value.Record, len(records))
		for i, rec := range records {
			removed[i] = rec.Clone()
		}
		delete(db, collection)
		return []string{collection}, nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// RestoreBlob writes blob as the new current snapshot in one locked
// cycle, bypassing the codec: the bytes are stored exactly as given.
// The history engine uses it to revert to a historical version.
func (e *Engine) RestoreBlob(ctx context.Context, blob []byte, message string) (string, error) {
	release, err := e.locker.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt <= e.retries; attempt++ {
		prev, token, err := e.medium.ReadCurrent(ctx)
		if err != nil {
			return "", err
		}
		e.writeBackup(prev)

		newToken, err := e.medium.WriteNew(ctx, blob, message, e.author, token)
		if err != nil {
			if errors.Is(err, errs.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return "", err
		}
		e.cache.InvalidateAll()
		return newToken, nil
	}
	return "", lastErr
}

// recordID extracts and checks a caller-supplied id field. Absent is
// fine; present but not a non-empty string is a validation error.
func recordID(collection string, fields value.Object) (string, error) {
	raw, ok := fields[value.FieldID]
	if !ok {
		return "", nil
	}
	s, ok := raw.(value.String)
	if !ok || s == "" {
		return "", &errs.ValidationError{
			Collection: collection,
			Field:      value.FieldID,
			Message:    "id must be a non-empty string",
		}
	}
	return string(s), nil
}
