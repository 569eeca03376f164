// Package bridge implements the skeleton every device server shares:
// open a device once, listen on a QUIC endpoint, and bind a per-
// connection reader/writer pair to the device handle behind bounded
// channels. Grounded on internal/distribution/server.go's
// accept-loop -> per-connection-handler shape, generalized from "one
// viewer session" to "one device, N attached connections".
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/xoq/media"
	"github.com/zsiec/xoq/internal/quicnet"
)

// Device is the minimal capability a bridge needs from whatever it is
// fronting: a serial port, a SocketCAN interface, a capture pipeline.
// Exactly one Open device instance backs a Server regardless of how
// many client connections are attached.
type Device interface {
	Open(ctx context.Context) error
	Close() error
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, b []byte) error
}

// Config holds the per-server tunables. Zero value yields spec.md's
// defaults.
type Config struct {
	ShutdownGrace time.Duration // default 2s, per spec.md §4.4
}

func (c Config) withDefaults() Config {
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 2 * time.Second
	}
	return c
}

// Server owns one Device and fans its frames out to every attached
// connection, serializing writes back onto the device in arrival
// order. New(alpn, open, cfg) constructs one; Serve runs its accept
// loop until ctx is cancelled.
type Server struct {
	alpn string
	open func() (Device, error)
	cfg  Config
	log  *slog.Logger

	owner *deviceOwner
}

// New constructs a Server for the given ALPN. open is called exactly
// once, lazily, on the first accepted connection.
func New(alpn string, open func() (Device, error), cfg Config) *Server {
	return &Server{
		alpn: alpn,
		open: open,
		cfg:  cfg.withDefaults(),
		log:  slog.With("component", "bridge", "alpn", alpn),
	}
}

// Serve accepts connections on ep and dispatches each one whose ALPN
// matches to a per-connection handler. Blocks until ctx is cancelled or
// the endpoint fails.
func (s *Server) Serve(ctx context.Context, ep *quicnet.Endpoint) error {
	s.owner = newDeviceOwner(s.open, s.log)
	defer s.owner.closeIfIdle(true)

	var wg sync.WaitGroup
	defer s.waitWithGrace(&wg)

	stop := context.AfterFunc(ctx, func() {
		_ = ep.Close()
	})
	defer stop()

	for {
		conn, err := ep.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("bridge: accept: %w", err)
		}

		if got := conn.ALPN(); got != s.alpn {
			s.log.Warn("rejecting connection with unexpected ALPN", "got", got)
			_ = conn.CloseWithError(0, "unsupported ALPN")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection binds a reader and writer task to the shared device
// handle for the lifetime of conn. Per spec.md §4.4: reader/writer
// tasks for this connection are torn down on disconnect; the device
// itself stays open as long as any other connection remains attached.
func (s *Server) handleConnection(ctx context.Context, conn *quicnet.Connection) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := conn.AcceptStream(connCtx)
	if err != nil {
		s.log.Debug("accept stream failed", "remote", conn.RemoteAddr(), "error", err)
		return
	}

	sub, err := s.owner.attach()
	if err != nil {
		s.log.Warn("device open failed", "error", err)
		_ = conn.CloseWithError(1, "device unavailable")
		return
	}
	defer s.owner.detach(sub)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		s.readDeviceToClient(connCtx, stream, sub)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		s.readClientToDevice(connCtx, stream, sub)
	}()

	wg.Wait()
}

// readClientToDevice forwards bytes/frames arriving on the client
// stream to inbound_to_device (depth 1, per spec.md §4.4 — tight
// backpressure so a slow device is felt immediately by the client).
func (s *Server) readClientToDevice(ctx context.Context, stream interface {
	Read([]byte) (int, error)
}, sub *subscriber) {
	buf := make([]byte, 64*1024)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			frame := append([]byte(nil), buf[:n]...)
			select {
			case sub.owner.inbound <- frame:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// readDeviceToClient drains this connection's fan-out subscription
// (depth 16, per spec.md §4.4) and writes frames to the client stream
// in arrival order.
func (s *Server) readDeviceToClient(ctx context.Context, stream interface {
	Write([]byte) (int, error)
}, sub *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-sub.outbound:
			if !ok {
				return
			}
			if _, err := stream.Write(frame); err != nil {
				return
			}
		}
	}
}

// deviceOwner is the single task pair that holds the device handle's
// read and write half, modeled on distribution.Relay's
// sessions-map-plus-RWMutex fan-out pattern (distribution/relay.go),
// generalized from "broadcast video frames" to "forward arbitrary
// device frames to N attached subscribers, serialize writes from N
// sources back onto one device".
type deviceOwner struct {
	open func() (Device, error)
	log  *slog.Logger

	mu      sync.Mutex
	dev     Device
	inbound chan []byte // inbound_to_device, depth 1

	subMu sync.RWMutex
	subs  map[*subscriber]struct{}

	readerCancel context.CancelFunc
	writerDone   chan struct{}
}

type subscriber struct {
	owner    *deviceOwner
	outbound chan []byte // device_to_outbound, depth 16
}

func newDeviceOwner(open func() (Device, error), log *slog.Logger) *deviceOwner {
	return &deviceOwner{
		open: open,
		log:  log,
		subs: make(map[*subscriber]struct{}),
	}
}

// attach opens the device on first use and registers a new fan-out
// subscriber. Returns an error if device open fails.
func (o *deviceOwner) attach() (*subscriber, error) {
	o.mu.Lock()
	if o.dev == nil {
		dev, err := o.open()
		if err != nil {
			o.mu.Unlock()
			return nil, fmt.Errorf("bridge: open device: %w", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		if err := dev.Open(ctx); err != nil {
			cancel()
			o.mu.Unlock()
			return nil, fmt.Errorf("bridge: device.Open: %w", err)
		}
		o.dev = dev
		o.inbound = make(chan []byte, media.InboundToDeviceDepth)
		o.readerCancel = cancel
		o.writerDone = make(chan struct{})
		go o.readLoop(ctx)
		go o.writeLoop(ctx)
	}
	o.mu.Unlock()

	sub := &subscriber{owner: o, outbound: make(chan []byte, media.DeviceToOutboundDepth)}
	o.subMu.Lock()
	o.subs[sub] = struct{}{}
	o.subMu.Unlock()
	return sub, nil
}

// detach removes a subscriber. The device stays open regardless, per
// spec.md §4.4; closeIfIdle decides whether to actually tear it down.
func (o *deviceOwner) detach(sub *subscriber) {
	o.subMu.Lock()
	delete(o.subs, sub)
	o.subMu.Unlock()
}

// readLoop is the device handle's single reader task: it pulls frames
// from the device and fans them out to every attached subscriber,
// dropping (not blocking) when a subscriber's channel is full.
func (o *deviceOwner) readLoop(ctx context.Context) {
	for {
		frame, err := o.dev.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				o.log.Debug("device read error", "error", err)
			}
			return
		}
		o.subMu.RLock()
		for sub := range o.subs {
			select {
			case sub.outbound <- frame:
			default:
				o.log.Warn("device_to_outbound full, dropping frame")
			}
		}
		o.subMu.RUnlock()
	}
}

// writeLoop is the device handle's single writer task: it serializes
// writes from every attached connection onto the device in arrival
// order, satisfying the at-most-one-writer invariant (spec.md §8
// invariant 6).
func (o *deviceOwner) writeLoop(ctx context.Context) {
	defer close(o.writerDone)
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-o.inbound:
			if err := o.dev.WriteFrame(ctx, frame); err != nil {
				o.log.Debug("device write error", "error", err)
			}
		}
	}
}

// closeIfIdle tears down the device. force ignores subscriber count,
// used on server shutdown; the Server waits up to shutdown_grace for
// outstanding connection handlers before calling this.
func (o *deviceOwner) closeIfIdle(force bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dev == nil {
		return
	}
	if !force {
		o.subMu.RLock()
		n := len(o.subs)
		o.subMu.RUnlock()
		if n > 0 {
			return
		}
	}
	if o.readerCancel != nil {
		o.readerCancel()
	}
	if err := o.dev.Close(); err != nil {
		o.log.Debug("device close error", "error", err)
	}
	o.dev = nil
}

// ErrShutdownTimeout describes a bridge whose outstanding connections
// did not finish within Config.ShutdownGrace. Serve does not return it:
// when the grace period runs out, waitWithGrace logs a warning and
// returns.
var ErrShutdownTimeout = errors.New("bridge: shutdown grace period exceeded")

// waitWithGrace waits for outstanding connection handlers to finish,
// up to cfg.ShutdownGrace, then force-drops by returning regardless.
// Per spec.md §4.4: signal the cancellation token (already done by the
// caller's ctx), wait up to shutdown_grace, then force-drop.
func (s *Server) waitWithGrace(wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
		s.log.Warn("shutdown grace period exceeded, force-dropping connections")
	}
}
