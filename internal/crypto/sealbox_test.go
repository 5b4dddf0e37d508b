package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeySize)
	s, err := NewSealer(key)
	require.NoError(t, err)

	plaintext := []byte(`{"principal":"acct-1","amount":"1000000"}`)
	aad := []byte("entry-hash-abc")

	sealed, err := s.Seal(plaintext, aad)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := s.Open(sealed, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestOpenRejectsWrongAAD(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeySize)
	s, err := NewSealer(key)
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("payload"), []byte("position-1"))
	require.NoError(t, err)

	_, err = s.Open(sealed, []byte("position-2"))
	assert.Error(t, err)
}

func TestOpenRejectsTamperedBlob(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeySize)
	s, err := NewSealer(key)
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("payload"), nil)
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = s.Open(sealed, nil)
	assert.Error(t, err)
}

func TestNewSealerRejectsShortKey(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	assert.Error(t, err)
}

func TestOpenRejectsTruncatedBlob(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeySize)
	s, err := NewSealer(key)
	require.NoError(t, err)

	_, err = s.Open([]byte{0x01, 0x02}, nil)
	assert.Error(t, err)
}
