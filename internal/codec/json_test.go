package codec

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapdoc/snapdoc/internal/errs"
	"github.com/snapdoc/snapdoc/internal/value"
)

func fixtureDatabase() value.Database {
	return value.Database{
		"users": {
			value.Record{"id": value.String("1"), "name": value.String("Ada"), "age": value.Number(36)},
			value.Record{"id": value.String("2"), "name": value.String("Bo"), "active": value.Bool(true)},
		},
		"tags": {},
	}
}

func TestJSONRoundTrip(t *testing.T) {
	c := JSON{}
	db := fixtureDatabase()

	data, err := c.Serialize(db)
	require.NoError(t, err)

	back, err := c.Parse(data)
	require.NoError(t, err)

	assert.True(t, value.Equal(db.ToObject(), back.ToObject()))
	// Record order must survive.
	assert.Equal(t, "1", back["users"][0].ID())
	assert.Equal(t, "2", back["users"][1].ID())
}

func TestJSONSerializeDeterministic(t *testing.T) {
	c := JSON{}
	db := fixtureDatabase()

	first, err := c.Serialize(db)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.Serialize(db)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestJSONSerializeGolden(t *testing.T) {
	c := JSON{}
	data, err := c.Serialize(fixtureDatabase())
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "users_snapshot", data)
}

func TestJSONParseEmptyBlob(t *testing.T) {
	c := JSON{}

	db, err := c.Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, db)

	db, err = c.Parse([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, db)
}

func TestJSONParseMalformed(t *testing.T) {
	c := JSON{}
	_, err := c.Parse([]byte("{not json"))
	require.Error(t, err)
	assert.True(t, errs.IsFormat(err))
}

func TestJSONParseWrongShape(t *testing.T) {
	c := JSON{}
	_, err := c.Parse([]byte(`{"users": "not an array"}`))
	require.Error(t, err)
	assert.True(t, errs.IsFormat(err))
}
