// Package schema validates records against optional per-collection CUE
// schemas. A schema directory holds one .cue file per collection
// (users.cue constrains the "users" collection); collections without a
// schema file accept any record. Schema failures surface as
// errs.ValidationError so the transaction engine rejects the write.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/snapdoc/snapdoc/internal/errs"
	"github.com/snapdoc/snapdoc/internal/value"
)

// Validator holds compiled collection schemas.
type Validator struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
}

// Load compiles every .cue file in dir. An empty dir path yields a
// validator that accepts everything.
func Load(dir string) (*Validator, error) {
	v := &Validator{
		ctx:     cuecontext.New(),
		schemas: map[string]cue.Value{},
	}
	if dir == "" {
		return v, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("schema dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".cue") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", path, err)
		}

		compiled := v.ctx.CompileBytes(data, cue.Filename(path))
		if err := compiled.Err(); err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", path, err)
		}

		collection := strings.TrimSuffix(entry.Name(), ".cue")
		v.schemas[collection] = compiled
	}
	return v, nil
}

// Collections returns the names of collections with a schema.
func (v *Validator) Collections() []string {
	out := make([]string, 0, len(v.schemas))
	for name := range v.schemas {
		out = append(out, name)
	}
	return out
}

// Validate unifies the record with the collection schema, if one is
// configured, and checks that the result is a concrete, valid value.
func (v *Validator) Validate(collection string, rec value.Record) error {
	if v == nil {
		return nil
	}
	schemaVal, ok := v.schemas[collection]
	if !ok {
		return nil
	}

	encoded := v.ctx.Encode(value.ToAny(value.Object(rec)))
	if err := encoded.Err(); err != nil {
		return &errs.ValidationError{Collection: collection, Message: err.Error()}
	}

	unified := schemaVal.Unify(encoded)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &errs.ValidationError{Collection: collection, Message: err.Error()}
	}
	return nil
}
