package moq

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientSetupRoundTrip(t *testing.T) {
	t.Parallel()
	want := ClientSetup{Versions: []uint32{VersionXoQ1, 0x01020304}, Extensions: []byte{0xAA, 0xBB}}

	var buf bytes.Buffer
	require.NoError(t, WriteClientSetup(&buf, want))

	got, err := ReadClientSetup(&buf)
	require.NoError(t, err)
	require.Equal(t, want.Versions, got.Versions)
	require.Equal(t, want.Extensions, got.Extensions)
}

func TestClientSetupEmptyExtensions(t *testing.T) {
	t.Parallel()
	want := ClientSetup{Versions: []uint32{VersionXoQ1}}

	var buf bytes.Buffer
	require.NoError(t, WriteClientSetup(&buf, want))

	got, err := ReadClientSetup(&buf)
	require.NoError(t, err)
	require.Equal(t, want.Versions, got.Versions)
	require.Empty(t, got.Extensions)
}

func TestServerSetupRoundTrip(t *testing.T) {
	t.Parallel()
	want := ServerSetup{Version: VersionXoQ1, Extensions: []byte{0x01}}

	var buf bytes.Buffer
	require.NoError(t, WriteServerSetup(&buf, want))

	got, err := ReadServerSetup(&buf)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestNegotiateVersion(t *testing.T) {
	t.Parallel()
	v, err := NegotiateVersion([]uint32{0x11, VersionXoQ1}, []uint32{VersionXoQ1})
	require.NoError(t, err)
	require.Equal(t, VersionXoQ1, v)
}

func TestNegotiateVersionMismatch(t *testing.T) {
	t.Parallel()
	_, err := NegotiateVersion([]uint32{0x11}, []uint32{VersionXoQ1})
	require.ErrorIs(t, err, ErrVersionMismatch)
}
