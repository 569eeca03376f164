// Package moqsession implements the MoQ session engine: the
// publisher/subscriber state machine layered over internal/moq's wire
// codec. A Session binds to one QUIC (or WebTransport-carried, via
// internal/wtcarrier) connection and multiplexes announce, subscribe,
// and group delivery over it in both directions — XoQ peers act as
// both publisher and subscriber, unlike a pure relay client.
package moqsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/xoq/internal/moq"
)

// Conn is the subset of transport capability a Session needs.
// *quicnet.Connection and wtcarrier.Carrier are adapted to it by WrapQUIC
// and WrapCarrier, so a Session never depends on which transport
// carried it.
type Conn interface {
	OpenStream(ctx context.Context) (Stream, error)
	AcceptStream(ctx context.Context) (Stream, error)
	OpenUniStream(ctx context.Context) (SendStream, error)
	AcceptUniStream(ctx context.Context) (ReceiveStream, error)
}

// Stream is a bidirectional byte stream.
type Stream interface {
	ReadWriteCloser
}

// SendStream is a unidirectional, write-only, closable stream.
type SendStream interface {
	WriteCloser
}

// ReceiveStream is a unidirectional, read-only stream.
type ReceiveStream interface {
	Reader
}

type ReadWriteCloser interface {
	Reader
	WriteCloser
}
type WriteCloser interface {
	Writer
	Close() error
}
type Reader interface{ Read(p []byte) (int, error) }
type Writer interface{ Write(p []byte) (int, error) }

// Role distinguishes which side of the handshake a Session plays.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Session manages one MoQ connection: setup handshake, the announce
// tracker, outstanding subscriptions keyed by subscribe_id, and
// published tracks keyed by broadcast path + track name.
type Session struct {
	conn Conn
	log  *slog.Logger

	mu          sync.Mutex
	nextSubID   uint64
	subs        map[uint64]*Subscription
	published   map[string]*Publisher // key: broadcastPath + "/" + trackName
	closed      bool
	closeReason error

	announceResponder *AnnounceResponder
}

// New wraps conn in a Session. The setup handshake (ClientSetup /
// ServerSetup exchange) must be performed separately via
// ClientHandshake or ServerHandshake before Subscribe/Publish are used.
func New(conn Conn) *Session {
	return &Session{
		conn:      conn,
		log:       slog.With("component", "moqsession"),
		subs:      make(map[uint64]*Subscription),
		published: make(map[string]*Publisher),
	}
}

// ClientHandshake opens a control stream and performs the client side
// of session setup: write ClientSetup, read ServerSetup. Returns the
// negotiated version.
func ClientHandshake(ctx context.Context, conn Conn) (*Session, Stream, uint32, error) {
	ctrl, err := conn.OpenStream(ctx)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("moqsession: open control stream: %w", err)
	}
	if err := moq.WriteClientSetup(ctrl, moq.ClientSetup{Versions: []uint32{moq.VersionXoQ1}}); err != nil {
		return nil, nil, 0, fmt.Errorf("moqsession: write client setup: %w", err)
	}
	ss, err := moq.ReadServerSetup(ctrl)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("moqsession: read server setup: %w", err)
	}
	return New(conn), ctrl, ss.Version, nil
}

// ServerHandshake accepts the peer's control stream and performs the
// server side of session setup: read ClientSetup, negotiate a version,
// write ServerSetup.
func ServerHandshake(ctx context.Context, conn Conn) (*Session, Stream, uint32, error) {
	ctrl, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("moqsession: accept control stream: %w", err)
	}
	cs, err := moq.ReadClientSetup(ctrl)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("moqsession: read client setup: %w", err)
	}
	version, err := moq.NegotiateVersion(cs.Versions, []uint32{moq.VersionXoQ1})
	if err != nil {
		return nil, nil, 0, &moq.SessionError{Err: err}
	}
	if err := moq.WriteServerSetup(ctrl, moq.ServerSetup{Version: version}); err != nil {
		return nil, nil, 0, fmt.Errorf("moqsession: write server setup: %w", err)
	}
	return New(conn), ctrl, version, nil
}

// RunGroupDispatch accepts unidirectional streams for the lifetime of
// the session and routes each one's frames to the Subscription matching
// its subscribe_id. Callers that only publish (never subscribe) do not
// need to run this.
func (s *Session) RunGroupDispatch(ctx context.Context) error {
	for {
		rs, err := s.conn.AcceptUniStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("moqsession: accept uni stream: %w", err)
		}
		go s.dispatchGroup(ctx, rs)
	}
}

func (s *Session) dispatchGroup(ctx context.Context, rs ReceiveStream) {
	hdr, err := moq.ReadGroupHeader(rs)
	if err != nil {
		s.log.Debug("bad group header", "error", err)
		return
	}

	s.mu.Lock()
	sub, ok := s.subs[hdr.SubscribeID]
	s.mu.Unlock()
	if !ok {
		s.log.Debug("group for unknown subscription", "subscribe_id", hdr.SubscribeID)
		return
	}

	for {
		frame, err := moq.ReadFrame(rs)
		if err != nil {
			var ended *moq.StreamEndedError
			if errors.As(err, &ended) {
				sub.deliverGroupEnd(hdr.GroupSequence, nil)
				return
			}
			// A reset unidirectional stream surfaces as a *quic.StreamError
			// (possibly wrapped in a *moq.ParseError if the reset landed
			// mid-frame); translate it to a StreamResetError so callers
			// can distinguish an abandoned group from a transport failure,
			// per spec.md §4.2/§4.10.
			var streamErr *quic.StreamError
			if errors.As(err, &streamErr) {
				sub.deliverGroupEnd(hdr.GroupSequence, &moq.StreamResetError{Code: uint64(streamErr.ErrorCode)})
				return
			}
			sub.deliverGroupEnd(hdr.GroupSequence, err)
			return
		}
		sub.deliverFrame(hdr.GroupSequence, frame)
	}
}

// Close marks the session torn down; every outstanding Subscription
// observes reason as a SessionError. Publishers are not notified. Per spec.md §4.2, this
// is the only session-level fatal path — group/track failures are
// handled locally without tearing down the session.
func (s *Session) Close(reason error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeReason = reason
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliverSessionError(reason)
	}
}
