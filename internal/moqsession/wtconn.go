package moqsession

import (
	"context"

	"github.com/zsiec/xoq/internal/wtcarrier"
)

// wtConn adapts a wtcarrier.Carrier (WebTransport or WebSocket) to
// Conn, the same way quicConn adapts *quicnet.Connection: the two
// interfaces are structurally identical but Go requires the adapter to
// name Conn's Stream/SendStream/ReceiveStream types explicitly at each
// method's return.
type wtConn struct {
	carrier wtcarrier.Carrier
}

// WrapCarrier adapts an upgraded browser transport to Conn so a Session
// can run directly over it, letting internal/moqsession stay ignorant
// of which carrier delivered the connection.
func WrapCarrier(c wtcarrier.Carrier) Conn {
	return &wtConn{carrier: c}
}

func (c *wtConn) OpenStream(ctx context.Context) (Stream, error) {
	return c.carrier.OpenStream(ctx)
}

func (c *wtConn) AcceptStream(ctx context.Context) (Stream, error) {
	return c.carrier.AcceptStream(ctx)
}

func (c *wtConn) OpenUniStream(ctx context.Context) (SendStream, error) {
	return c.carrier.OpenUniStream(ctx)
}

func (c *wtConn) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	return c.carrier.AcceptUniStream(ctx)
}
