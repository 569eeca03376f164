// Package wtcarrier makes the MoQ session engine reachable from
// browsers that do not yet have WebTransport. It defines a Carrier
// interface (adapted to moqsession.Conn by moqsession.WrapCarrier),
// implemented once over the real
// github.com/quic-go/webtransport-go session and once over a
// hand-rolled WebSocket emulation, so internal/moqsession never
// branches on which carrier delivered a connection.
package wtcarrier

import (
	"context"

	"github.com/quic-go/webtransport-go"
)

// Carrier is the capability internal/moqsession needs from a browser
// transport: open/accept bidirectional streams, open/accept
// unidirectional streams. Its method set matches moqsession.Conn, but
// the return types are this package's own interfaces, so a Carrier is
// passed through moqsession.WrapCarrier to become a Conn.
type Carrier interface {
	OpenStream(ctx context.Context) (Stream, error)
	AcceptStream(ctx context.Context) (Stream, error)
	OpenUniStream(ctx context.Context) (SendStream, error)
	AcceptUniStream(ctx context.Context) (ReceiveStream, error)
	Close() error
}

// Stream is a bidirectional byte stream.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// SendStream is a unidirectional, write-only, closable stream.
type SendStream interface {
	Write(p []byte) (int, error)
	Close() error
}

// ReceiveStream is a unidirectional, read-only stream.
type ReceiveStream interface {
	Read(p []byte) (int, error)
}

// webtransportCarrier wraps a real webtransport.Session. Its method set
// already matches Carrier one-for-one; quic-go's stream types
// (webtransport.Stream, webtransport.SendStream,
// webtransport.ReceiveStream) satisfy this package's Stream/SendStream/
// ReceiveStream interfaces without adaptation.
type webtransportCarrier struct {
	session *webtransport.Session
}

// WrapSession adapts an already-upgraded webtransport.Session (from
// webtransport.Server.Upgrade, per the teacher's internal/distribution
// server.go upgradeMoQ flow) to Carrier.
func WrapSession(session *webtransport.Session) Carrier {
	return &webtransportCarrier{session: session}
}

func (c *webtransportCarrier) OpenStream(ctx context.Context) (Stream, error) {
	return c.session.OpenStreamSync(ctx)
}

func (c *webtransportCarrier) AcceptStream(ctx context.Context) (Stream, error) {
	return c.session.AcceptStream(ctx)
}

func (c *webtransportCarrier) OpenUniStream(ctx context.Context) (SendStream, error) {
	return c.session.OpenUniStreamSync(ctx)
}

func (c *webtransportCarrier) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	return c.session.AcceptUniStream(ctx)
}

func (c *webtransportCarrier) Close() error {
	return c.session.CloseWithError(0, "")
}
