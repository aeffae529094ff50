package codec

import (
	"bytes"
	"encoding/json"

	"github.com/snapdoc/snapdoc/internal/errs"
	"github.com/snapdoc/snapdoc/internal/value"
)

// JSON is the default snapshot codec. Output is canonical (sorted keys,
// no HTML escaping) and indented with two spaces so that consecutive
// snapshots of mostly-unchanged databases diff line by line.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Parse(data []byte) (value.Database, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return value.Database{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, &errs.FormatError{Codec: "json", Err: err}
	}

	converted, err := value.FromAny(raw)
	if err != nil {
		return nil, &errs.FormatError{Codec: "json", Err: err}
	}

	db, err := value.DatabaseFromObject(converted.(value.Object))
	if err != nil {
		return nil, &errs.FormatError{Codec: "json", Err: err}
	}
	return db, nil
}

func (JSON) Serialize(db value.Database) ([]byte, error) {
	canonical, err := value.MarshalCanonical(db.ToObject())
	if err != nil {
		return nil, &errs.FormatError{Codec: "json", Err: err}
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, canonical, "", "  "); err != nil {
		return nil, &errs.FormatError{Codec: "json", Err: err}
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
