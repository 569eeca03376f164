package moqsession

import (
	"context"

	"github.com/zsiec/xoq/internal/quicnet"
)

// quicConn adapts *quicnet.Connection to Conn. quic-go's stream types
// satisfy Stream/SendStream/ReceiveStream structurally, but Go's
// interface satisfaction requires the adapter to name Conn's types
// explicitly at each method's return, the same way wtconn.go adapts
// wtcarrier.Carrier for browser-originated sessions.
type quicConn struct {
	conn *quicnet.Connection
}

// WrapQUIC adapts a dialed or accepted QUIC connection to Conn so a
// Session can run directly over it.
func WrapQUIC(conn *quicnet.Connection) Conn {
	return &quicConn{conn: conn}
}

func (c *quicConn) OpenStream(ctx context.Context) (Stream, error) {
	return c.conn.OpenStream(ctx)
}

func (c *quicConn) AcceptStream(ctx context.Context) (Stream, error) {
	return c.conn.AcceptStream(ctx)
}

func (c *quicConn) OpenUniStream(ctx context.Context) (SendStream, error) {
	return c.conn.OpenUniStream(ctx)
}

func (c *quicConn) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	return c.conn.AcceptUniStream(ctx)
}
