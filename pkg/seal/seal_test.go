package seal

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return bytes.Repeat([]byte{7}, 32)
}

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := New(testKey())
	require.NoError(t, err)

	sealed, err := s.Seal("see you at the track 🏃")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "track")
	assert.Contains(t, sealed, prefix)

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "see you at the track 🏃", opened)
}

func TestSealUsesFreshNonce(t *testing.T) {
	s, err := New(testKey())
	require.NoError(t, err)

	a, _ := s.Seal("same")
	b, _ := s.Seal("same")
	assert.NotEqual(t, a, b)
}

func TestOpenPlaintextPassthrough(t *testing.T) {
	s, err := New(testKey())
	require.NoError(t, err)

	out, err := s.Open("legacy row")
	require.NoError(t, err)
	assert.Equal(t, "legacy row", out)
}

func TestOpenTampered(t *testing.T) {
	s, err := New(testKey())
	require.NoError(t, err)

	sealed, _ := s.Seal("hello")
	raw, _ := base64.StdEncoding.DecodeString(sealed[len(prefix):])
	raw[len(raw)-1] ^= 0xff
	_, err = s.Open(prefix + base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestNilSealer(t *testing.T) {
	var s *Sealer
	out, err := s.Seal("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	_, err = s.Open(prefix + "AAAA")
	assert.Error(t, err)
}

func TestFromBase64(t *testing.T) {
	s, err := FromBase64("")
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = FromBase64(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidKey)

	s, err = FromBase64(base64.StdEncoding.EncodeToString(testKey()))
	require.NoError(t, err)
	assert.NotNil(t, s)
}
