// Package codec implements the snapshot codecs: the serialization
// boundary between an in-memory database and the byte blob a snapshot
// medium stores. Parse and Serialize are mutual inverses for any database
// the engine produces (round-trip law).
package codec

import (
	"fmt"

	"github.com/snapdoc/snapdoc/internal/value"
)

// Codec turns a raw byte blob into a database and back.
type Codec interface {
	// Name identifies the codec ("json", "yaml") for configuration and
	// error reporting.
	Name() string

	// Parse decodes a snapshot blob. An empty blob decodes to an empty
	// database.
	Parse(data []byte) (value.Database, error)

	// Serialize encodes a database deterministically: the same database
	// always produces the same bytes.
	Serialize(db value.Database) ([]byte, error)
}

// New returns the codec for the given name.
func New(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "yaml":
		return YAML{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q (want json or yaml)", name)
	}
}
