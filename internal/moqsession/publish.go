package moqsession

import (
	"context"
	"fmt"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/xoq/internal/moq"
)

// Publisher is the publish-side handle for one (broadcastPath,
// trackName) this Session advertises. Requested() yields one
// requestedSubscriber per peer SUBSCRIBE, in arrival order; the caller
// opens one unidirectional stream per group for each.
type Publisher struct {
	broadcastPath string
	trackName     string

	requested chan *RequestedSubscriber
}

// RequestedSubscriber represents one peer that subscribed to a
// published track. OpenGroup starts a new group on a fresh
// unidirectional stream.
type RequestedSubscriber struct {
	sess        *Session
	subscribeID uint64
}

// PublishTrack registers (broadcastPath, trackName) as a track this
// session can serve, per spec.md §4.2's publish-side model: "advertise
// a broadcast path, wait for subscribers (a requested() handle), and
// for each requested track open a unidirectional stream per group."
// Must be called before RunControlDispatch.
func (s *Session) PublishTrack(broadcastPath, trackName string) *Publisher {
	p := &Publisher{
		broadcastPath: broadcastPath,
		trackName:     trackName,
		requested:     make(chan *RequestedSubscriber, 8),
	}
	s.mu.Lock()
	s.published[broadcastPath+"/"+trackName] = p
	s.mu.Unlock()
	return p
}

// Requested returns the channel of subscribers requesting this track.
// The channel is not closed when the session is torn down.
func (p *Publisher) Requested() <-chan *RequestedSubscriber {
	return p.requested
}

// OpenGroup opens a new unidirectional stream and writes the group
// header for sequence seq, returning a GroupWriter ready for
// WriteFrame calls.
func (rs *RequestedSubscriber) OpenGroup(ctx context.Context, seq uint64) (*GroupWriter, error) {
	stream, err := rs.sess.conn.OpenUniStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("moqsession: open group stream: %w", err)
	}
	hdr := moq.GroupHeader{SubscribeID: rs.subscribeID, GroupSequence: seq}
	if err := moq.WriteGroupHeader(stream, hdr); err != nil {
		stream.Close()
		return nil, fmt.Errorf("moqsession: write group header: %w", err)
	}
	return &GroupWriter{stream: stream}, nil
}

// GroupWriter writes frames to one group's unidirectional stream.
// Close terminates the group cleanly (StreamEnded on the receiver).
type GroupWriter struct {
	stream SendStream
	mu     sync.Mutex
}

// WriteFrame writes one length-prefixed frame within the group.
func (gw *GroupWriter) WriteFrame(frame []byte) error {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return moq.WriteFrame(gw.stream, frame)
}

// Close ends the group (stream FIN). Per spec.md §4.2, the receiver
// sees this as a clean StreamEnded group boundary.
func (gw *GroupWriter) Close() error {
	return gw.stream.Close()
}

// streamCanceler is satisfied by a quic.SendStream; Abandon uses it to
// reset the group's stream instead of closing it cleanly.
type streamCanceler interface {
	CancelWrite(quic.StreamErrorCode)
}

// Abandon resets the group's stream with code instead of closing it
// cleanly: the receiver's Group ends with a StreamResetError carrying
// code rather than as a completed group. Frames of the group already
// delivered to the receiver's Group.Frames stay readable; they are not
// discarded. Falls back to
// a clean Close on transports that can't cancel a write (e.g. the
// WebSocket carrier fallback), which the receiver sees as StreamEnded.
func (gw *GroupWriter) Abandon(code uint64) error {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if c, ok := gw.stream.(streamCanceler); ok {
		c.CancelWrite(quic.StreamErrorCode(code))
		return nil
	}
	return gw.stream.Close()
}

// RunControlDispatch accepts incoming bidirectional control streams for
// the lifetime of the session and handles SUBSCRIBE / ANNOUNCE requests
// against this session's published tracks. Pairs with RunGroupDispatch
// on the other side of the connection.
func (s *Session) RunControlDispatch(ctx context.Context) error {
	for {
		ctrl, err := s.conn.AcceptStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("moqsession: accept control stream: %w", err)
		}
		go s.handleControlStream(ctx, ctrl)
	}
}

func (s *Session) handleControlStream(ctx context.Context, ctrl Stream) {
	msgType, body, err := moq.ReadControlMessage(ctrl)
	if err != nil {
		s.log.Debug("control stream read failed", "error", err)
		return
	}

	switch msgType {
	case moq.MsgTypeSubscribe:
		s.handleSubscribeRequest(ctx, ctrl, body)
	case moq.MsgTypeAnnounce:
		if s.announceResponder != nil {
			if err := s.announceResponder.serveBody(ctx, ctrl, body); err != nil {
				s.log.Debug("announce responder failed", "error", err)
			}
			return
		}
		s.log.Debug("announce request with no responder configured")
	default:
		s.log.Debug("unexpected control message type", "msg_type", msgType)
	}
}

func (s *Session) handleSubscribeRequest(ctx context.Context, ctrl Stream, body []byte) {
	req, err := moq.ParseSubscribeRequest(body)
	if err != nil {
		s.log.Debug("bad subscribe request", "error", err)
		return
	}

	s.mu.Lock()
	pub, ok := s.published[req.BroadcastPath+"/"+req.TrackName]
	s.mu.Unlock()
	if !ok {
		s.log.Warn("subscribe for unknown track", "path", req.BroadcastPath, "track", req.TrackName)
		return
	}

	if err := moq.WriteSubscribeOk(ctrl, moq.SubscribeOk{SubscribeID: req.SubscribeID}); err != nil {
		s.log.Debug("write subscribe ok failed", "error", err)
		return
	}

	rs := &RequestedSubscriber{sess: s, subscribeID: req.SubscribeID}
	select {
	case pub.requested <- rs:
	case <-ctx.Done():
	}
}
