package fabric

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrependStripVersionRoundTrip(t *testing.T) {
	payload := []byte("datagram body")
	wire := PrependVersion(payload)
	require.Equal(t, CurrentVersion, wire[0])

	got, err := StripVersion(wire)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestStripVersionRejectsEmpty(t *testing.T) {
	_, err := StripVersion(nil)
	require.ErrorIs(t, err, ErrVersionMismatch)
}

func TestStripVersionRejectsWrongByte(t *testing.T) {
	_, err := StripVersion([]byte{CurrentVersion + 1, 0xaa})
	require.ErrorIs(t, err, ErrVersionMismatch)
}
