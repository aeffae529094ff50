package codec

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/snapdoc/snapdoc/internal/errs"
	"github.com/snapdoc/snapdoc/internal/value"
)

// YAML serializes snapshots as YAML documents. yaml.v3 emits map keys in
// sorted order, so output is deterministic without extra work.
type YAML struct{}

func (YAML) Name() string { return "yaml" }

func (YAML) Parse(data []byte) (value.Database, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return value.Database{}, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &errs.FormatError{Codec: "yaml", Err: err}
	}

	converted, err := value.FromAny(raw)
	if err != nil {
		return nil, &errs.FormatError{Codec: "yaml", Err: err}
	}

	db, err := value.DatabaseFromObject(converted.(value.Object))
	if err != nil {
		return nil, &errs.FormatError{Codec: "yaml", Err: err}
	}
	return db, nil
}

func (YAML) Serialize(db value.Database) ([]byte, error) {
	out, err := yaml.Marshal(value.ToAny(db.ToObject()))
	if err != nil {
		return nil, &errs.FormatError{Codec: "yaml", Err: err}
	}
	return out, nil
}
