// Package quicnet adapts github.com/quic-go/quic-go to the minimal
// capability set XoQ's bridges need: dial, accept, open/accept streams,
// and datagrams. It owns the single fixed set of transport knobs every
// bridge server shares, so the bridges themselves never touch quic.Config.
package quicnet

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/xoq/internal/keystore"
)

// Config holds the transport knobs shared by every XoQ endpoint.
// Defaults match spec.md's fixed values; DefaultConfig is the normal entry
// point and callers should only override fields they have a concrete
// reason to change.
type Config struct {
	IdleTimeout    time.Duration
	KeepAlive      time.Duration
	InitialRTT     time.Duration
	EnableDatagram bool
}

// DefaultConfig returns the knob set every bridge uses unless it has a
// specific reason not to: 30s idle timeout, 10s keepalive, 10ms initial
// RTT hint (LAN links don't need the 333ms conservative default), and
// datagrams enabled but not relied on by any bridge's reliable path.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:    30 * time.Second,
		KeepAlive:      10 * time.Second,
		InitialRTT:     10 * time.Millisecond,
		EnableDatagram: true,
	}
}

func (c Config) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  c.IdleTimeout,
		KeepAlivePeriod: c.KeepAlive,
		// quic-go does not expose a pluggable congestion.SendAlgorithm
		// through its public API (the congestion package lives under
		// quic-go/internal). spec.md's "fixed-window, never blocks"
		// controller is approximated the only way the public API
		// allows: maximize the flow-control windows so the application,
		// not quic-go's built-in Cubic sender, is the bottleneck on the
		// controlled local links XoQ targets.
		InitialStreamReceiveWindow:     1 << 24,
		MaxStreamReceiveWindow:         1 << 26,
		InitialConnectionReceiveWindow: 1 << 25,
		MaxConnectionReceiveWindow:     1 << 27,
		EnableDatagrams:                c.EnableDatagram,
		// DisablePathMTUDiscovery turns off Path MTU discovery only.
		// Segmentation offload (GSO) is not a quic.Config field and is
		// not configured here, so quic-go's own default applies.
		DisablePathMTUDiscovery: true,
		Allow0RTT:               true,
	}
}

// Endpoint is a listening or dialing QUIC transport bound to one
// tls.Config and Config. relay_mode (spec.md §4.1) is always disabled:
// an Endpoint only ever speaks directly to its peer, never through an
// intermediary.
type Endpoint struct {
	tr       *quic.Transport
	listener *quic.Listener
	tlsConf  *tls.Config
	cfg      Config
}

// Listen opens addr for incoming QUIC connections. tlsConf must carry
// the ALPN protocols the caller accepts; NextProtos selects which
// bridge handler a connection is routed to. ALPN selection honors each
// client's own preference order (see PreferClientALPN), per spec.md §6.
func Listen(addr string, tlsConf *tls.Config, cfg Config) (*Endpoint, error) {
	tlsConf = PreferClientALPN(tlsConf)
	ln, err := quic.ListenAddr(addr, tlsConf, cfg.quicConfig())
	if err != nil {
		return nil, fmt.Errorf("quicnet: listen %s: %w", addr, err)
	}
	return &Endpoint{listener: ln, tlsConf: tlsConf, cfg: cfg}, nil
}

// PreferClientALPN returns a copy of tlsConf whose ALPN negotiation
// honors the connecting client's preference order rather than
// tlsConf.NextProtos' order. crypto/tls always walks the server's
// NextProtos in server order and selects the first entry the client
// also offered — server preference wins, not client preference. Per
// spec.md §6, XoQ needs the opposite: the client picks the order (e.g.
// H.264 before AV1 before JPEG), and the server accepts whichever of
// its own supported codecs comes first on the client's list.
//
// GetConfigForClient runs once per handshake and sees the client's
// ClientHello, including SupportedProtos in the client's own order.
// Intersecting that against tlsConf.NextProtos and handing the result
// back as a per-connection NextProtos makes the stdlib's
// server-walks-its-own-list algorithm produce a client-preference
// result, since "the server's list" is now the client's list for that
// one handshake.
func PreferClientALPN(tlsConf *tls.Config) *tls.Config {
	supported := make(map[string]bool, len(tlsConf.NextProtos))
	for _, p := range tlsConf.NextProtos {
		supported[p] = true
	}
	base := tlsConf.Clone()
	fallback := append([]string(nil), tlsConf.NextProtos...)

	out := tlsConf.Clone()
	out.GetConfigForClient = func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
		ordered := make([]string, 0, len(hello.SupportedProtos))
		for _, p := range hello.SupportedProtos {
			if supported[p] {
				ordered = append(ordered, p)
			}
		}
		if len(ordered) == 0 {
			// No overlap (or a client that sent no ALPN extension at
			// all): fall back to the server's own order so the
			// handshake still proceeds or fails the normal way.
			ordered = fallback
		}
		perConn := base.Clone()
		perConn.NextProtos = ordered
		perConn.GetConfigForClient = nil
		return perConn, nil
	}
	return out
}

// Accept blocks until a peer connects or ctx is cancelled.
func (e *Endpoint) Accept(ctx context.Context) (*Connection, error) {
	if e.listener == nil {
		return nil, errors.New("quicnet: endpoint is not listening")
	}
	conn, err := e.listener.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("quicnet: accept: %w", err)
	}
	return &Connection{conn: conn}, nil
}

// Close stops accepting new connections. Established connections are
// unaffected; callers close those individually.
func (e *Endpoint) Close() error {
	if e.listener == nil {
		return nil
	}
	return e.listener.Close()
}

// Addr returns the local listen address.
func (e *Endpoint) Addr() string {
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Dial opens a direct P2P connection to addr. tlsConf must carry the
// single ALPN protocol being requested; per spec.md §4.1, relay_mode is
// not a Dial option — there is no relay hop to configure.
func Dial(ctx context.Context, addr string, tlsConf *tls.Config, cfg Config) (*Connection, error) {
	conn, err := quic.DialAddr(ctx, addr, tlsConf, cfg.quicConfig())
	if err != nil {
		return nil, fmt.Errorf("quicnet: dial %s: %w", addr, err)
	}
	return &Connection{conn: conn}, nil
}

// Connection wraps a quic.Connection with the stream/datagram surface
// XoQ bridges use. NodeId derives from the peer's TLS session; bridges
// that need Ed25519 peer authentication compare it against an allowlist
// at the application layer, since the ALPN-negotiated TLS session alone
// doesn't name the peer.
type Connection struct {
	conn quic.Connection
}

// OpenStream opens a new bidirectional stream, blocking if the peer's
// stream-count limit is currently exhausted.
func (c *Connection) OpenStream(ctx context.Context) (quic.Stream, error) {
	s, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("quicnet: open stream: %w", err)
	}
	return s, nil
}

// AcceptStream blocks until the peer opens a bidirectional stream.
func (c *Connection) AcceptStream(ctx context.Context) (quic.Stream, error) {
	s, err := c.conn.AcceptStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("quicnet: accept stream: %w", err)
	}
	return s, nil
}

// OpenUniStream opens a new unidirectional (send-only) stream.
func (c *Connection) OpenUniStream(ctx context.Context) (quic.SendStream, error) {
	s, err := c.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("quicnet: open uni stream: %w", err)
	}
	return s, nil
}

// AcceptUniStream blocks until the peer opens a unidirectional stream.
func (c *Connection) AcceptUniStream(ctx context.Context) (quic.ReceiveStream, error) {
	s, err := c.conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("quicnet: accept uni stream: %w", err)
	}
	return s, nil
}

// SendDatagram sends an unreliable, unordered datagram. spec.md §4.1
// enables datagram support but no XoQ bridge defaults to it for
// reliable byte delivery — see the pitfall note at each bridge's write
// path (internal/serialbridge in particular).
func (c *Connection) SendDatagram(b []byte) error {
	if err := c.conn.SendDatagram(b); err != nil {
		return fmt.Errorf("quicnet: send datagram: %w", err)
	}
	return nil
}

// ReceiveDatagram blocks until a datagram arrives or ctx is cancelled.
func (c *Connection) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	b, err := c.conn.ReceiveDatagram(ctx)
	if err != nil {
		return nil, fmt.Errorf("quicnet: receive datagram: %w", err)
	}
	return b, nil
}

// NodeId extracts the peer's Ed25519 public key from the negotiated TLS
// session, when the peer presented one via the XoQ client certificate
// convention. Returns the zero NodeId if none was presented (e.g. a
// browser WebTransport client authenticated by cert-pinning instead).
func (c *Connection) NodeId() keystore.NodeId {
	var id keystore.NodeId
	state := c.conn.ConnectionState().TLS
	if len(state.PeerCertificates) == 0 {
		return id
	}
	pub, ok := state.PeerCertificates[0].PublicKey.(ed25519.PublicKey)
	if !ok {
		return id
	}
	copy(id[:], pub)
	return id
}

// ALPN returns the negotiated application protocol for this connection.
func (c *Connection) ALPN() string {
	return c.conn.ConnectionState().TLS.NegotiatedProtocol
}

// CloseWithError tears down the connection with an application error
// code and reason string, matching quic.Connection's semantics.
func (c *Connection) CloseWithError(code quic.ApplicationErrorCode, reason string) error {
	return c.conn.CloseWithError(code, reason)
}

// RemoteAddr returns the peer's network address.
func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
