package seal

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapdoc/snapdoc/internal/errs"
)

func TestPassthroughWithoutKey(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	plain := []byte(`{"users":[]}`)
	wrapped, err := s.Wrap(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, wrapped)

	unwrapped, err := s.Unwrap(wrapped)
	require.NoError(t, err)
	assert.Equal(t, plain, unwrapped)
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	s, err := New("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, s.Enabled())

	plain := []byte(`{"users":[{"id":"1"}]}`)
	wrapped, err := s.Wrap(plain)
	require.NoError(t, err)
	assert.NotEqual(t, plain, wrapped)

	unwrapped, err := s.Unwrap(wrapped)
	require.NoError(t, err)
	assert.Equal(t, plain, unwrapped)
}

func TestWrapIsRandomized(t *testing.T) {
	s, err := New("secret")
	require.NoError(t, err)

	a, err := s.Wrap([]byte("same input"))
	require.NoError(t, err)
	b, err := s.Wrap([]byte("same input"))
	require.NoError(t, err)

	// Fresh nonce per wrap: envelopes differ even for identical plaintext.
	assert.NotEqual(t, a, b)
}

func TestTamperedCiphertextFailsIntegrity(t *testing.T) {
	s, err := New("secret")
	require.NoError(t, err)

	wrapped, err := s.Wrap([]byte("payload"))
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(wrapped, &env))
	env["checksum"] = "00000000000000000000000000000000" +
		"00000000000000000000000000000000"
	tampered, err := json.Marshal(env)
	require.NoError(t, err)

	_, err = s.Unwrap(tampered)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrIntegrity))
}

func TestWrongKeyFailsIntegrity(t *testing.T) {
	a, err := New("key a")
	require.NoError(t, err)
	b, err := New("key b")
	require.NoError(t, err)

	wrapped, err := a.Wrap([]byte("payload"))
	require.NoError(t, err)

	_, err = b.Unwrap(wrapped)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrIntegrity))
}

func TestUnwrapRejectsNonEnvelope(t *testing.T) {
	s, err := New("secret")
	require.NoError(t, err)

	_, err = s.Unwrap([]byte(`{"users":[]}`))
	require.Error(t, err)
	assert.True(t, errs.IsFormat(err))
}
