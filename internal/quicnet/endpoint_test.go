package quicnet

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreferClientALPNSelectsClientOrder(t *testing.T) {
	t.Parallel()
	server := &tls.Config{NextProtos: []string{"xoq/camera-h264/0", "xoq/camera-hevc/0", "xoq/camera-av1/0", "xoq/camera-jpeg/0"}}
	wrapped := PreferClientALPN(server)
	require.NotNil(t, wrapped.GetConfigForClient)

	// Client prefers AV1 over H.264, the opposite of the server's own
	// NextProtos order; the negotiated list handed back for this
	// connection must put AV1 first so crypto/tls's server-order
	// algorithm picks it.
	perConn, err := wrapped.GetConfigForClient(&tls.ClientHelloInfo{
		SupportedProtos: []string{"xoq/camera-av1/0", "xoq/camera-h264/0"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"xoq/camera-av1/0", "xoq/camera-h264/0"}, perConn.NextProtos)
	require.Nil(t, perConn.GetConfigForClient, "per-connection config must not recurse")
}

func TestPreferClientALPNDropsUnsupportedEntries(t *testing.T) {
	t.Parallel()
	server := &tls.Config{NextProtos: []string{"xoq/camera-h264/0", "xoq/camera-av1/0"}}
	wrapped := PreferClientALPN(server)

	perConn, err := wrapped.GetConfigForClient(&tls.ClientHelloInfo{
		SupportedProtos: []string{"h2", "xoq/camera-av1/0", "xoq/camera-h264/0"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"xoq/camera-av1/0", "xoq/camera-h264/0"}, perConn.NextProtos)
}

func TestPreferClientALPNFallsBackOnNoOverlap(t *testing.T) {
	t.Parallel()
	server := &tls.Config{NextProtos: []string{"xoq/camera-h264/0", "xoq/camera-av1/0"}}
	wrapped := PreferClientALPN(server)

	perConn, err := wrapped.GetConfigForClient(&tls.ClientHelloInfo{SupportedProtos: []string{"h2"}})
	require.NoError(t, err)
	require.Equal(t, server.NextProtos, perConn.NextProtos)
}
