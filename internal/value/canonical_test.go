package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	obj := Object{"zebra": Number(1), "apple": Number(2), "mango": Number(3)}

	b, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"apple":2,"mango":3,"zebra":1}`, string(b))
}

func TestMarshalCanonicalDeterministic(t *testing.T) {
	obj := Object{
		"b": Array{Number(1), String("two"), Bool(true), Null{}},
		"a": Object{"nested": String("v")},
	}

	first, err := MarshalCanonical(obj)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	b, err := MarshalCanonical(String("<a> & </a>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a> & </a>"`, string(b))
}

func TestMarshalCanonicalNumbers(t *testing.T) {
	tests := []struct {
		in   Number
		want string
	}{
		{Number(30), "30"},
		{Number(30.0), "30"},
		{Number(-5), "-5"},
		{Number(0), "0"},
		{Number(2.5), "2.5"},
		{Number(0.1), "0.1"},
	}
	for _, tt := range tests {
		b, err := MarshalCanonical(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(b))
	}
}

func TestMarshalCanonicalScalars(t *testing.T) {
	b, err := MarshalCanonical(Null{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	b, err = MarshalCanonical(Bool(false))
	require.NoError(t, err)
	assert.Equal(t, "false", string(b))

	b, err = MarshalCanonical(Array{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))

	b, err = MarshalCanonical(Object{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}

func TestHashWithDomainSeparation(t *testing.T) {
	// Same payload under different domains must not collide.
	a := HashWithDomain(DomainBlob, []byte("payload"))
	b := HashWithDomain(DomainQuery, []byte("payload"))
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintStable(t *testing.T) {
	assert.Equal(t, Fingerprint("users", "all"), Fingerprint("users", "all"))
	assert.NotEqual(t, Fingerprint("users", "all"), Fingerprint("users", "", "all"))
	assert.NotEqual(t, Fingerprint("a", "bc"), Fingerprint("ab", "c"))
}
