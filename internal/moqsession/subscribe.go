package moqsession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zsiec/xoq/internal/moq"
)

// Group is one delivered group: a channel of frames in send order,
// closed when the group ends (stream FIN) or errors out (reset,
// session teardown). Err is set after Frames is drained if the group
// ended abnormally; nil Err means a clean StreamEnded boundary.
type Group struct {
	Sequence uint64
	Frames   chan []byte
	Err      error
	errMu    sync.Mutex
	errSet   bool
}

func (g *Group) setErr(err error) {
	g.errMu.Lock()
	if !g.errSet {
		g.Err = err
		g.errSet = true
	}
	g.errMu.Unlock()
}

// Subscription is the subscriber-side handle for one track, returned by
// Session.Subscribe. Groups arrive out of order across streams (spec.md
// §5); each group is sent on the Groups channel when its first frame
// (or its end) arrives, and its frames follow on Group.Frames. Callers
// buffer or drop by priority themselves if required.
type Subscription struct {
	ctrl        Stream
	subscribeID uint64

	mu     sync.Mutex
	state  TrackState
	groups map[uint64]*Group

	Groups chan *Group
}

// Subscribe opens a new control stream and subscribes to
// (broadcastPath, trackName) at the given priority (a signed offset
// from 128, per spec.md §4.2). Blocks until SubscribeOk or the stream
// errors.
func (s *Session) Subscribe(ctx context.Context, broadcastPath, trackName string, priority int8) (*Subscription, error) {
	ctrl, err := s.conn.OpenStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("moqsession: open subscribe stream: %w", err)
	}

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.mu.Unlock()

	req := moq.SubscribeRequest{
		SubscribeID:   id,
		BroadcastPath: broadcastPath,
		TrackName:     trackName,
		Priority:      priority,
	}
	if err := moq.WriteSubscribeRequest(ctrl, req); err != nil {
		return nil, fmt.Errorf("moqsession: write subscribe request: %w", err)
	}
	ok, err := moq.ReadSubscribeOk(ctrl)
	if err != nil {
		return nil, fmt.Errorf("moqsession: read subscribe ok: %w", err)
	}
	if ok.SubscribeID != id {
		return nil, fmt.Errorf("moqsession: subscribe ok id mismatch: want %d got %d", id, ok.SubscribeID)
	}

	sub := &Subscription{
		ctrl:        ctrl,
		subscribeID: id,
		state:       TrackOpen,
		groups:      make(map[uint64]*Group),
		Groups:      make(chan *Group, 4),
	}

	s.mu.Lock()
	s.subs[id] = sub
	s.mu.Unlock()

	// The peer ending the control stream ends the track.
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := ctrl.Read(buf); err != nil {
				break
			}
		}
		sub.mu.Lock()
		_ = transitionTrack(sub.state, TrackEnded)
		sub.state = TrackEnded
		sub.mu.Unlock()
	}()

	return sub, nil
}

// State returns the track's current lifecycle state.
func (sub *Subscription) State() TrackState {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.state
}

func (sub *Subscription) groupFor(seq uint64) *Group {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	g, ok := sub.groups[seq]
	if !ok {
		g = &Group{Sequence: seq, Frames: make(chan []byte, 8)}
		sub.groups[seq] = g
		select {
		case sub.Groups <- g:
		default:
			// Subscriber-side backpressure: the Groups channel itself
			// has no unbounded buffer. A full channel here means the
			// consumer is not draining group starts; per spec.md §5 the
			// receiver is responsible for buffering or dropping by
			// priority, not this layer.
		}
	}
	return g
}

func (sub *Subscription) deliverFrame(seq uint64, frame []byte) {
	g := sub.groupFor(seq)
	g.Frames <- frame
}

func (sub *Subscription) deliverGroupEnd(seq uint64, err error) {
	sub.mu.Lock()
	g, ok := sub.groups[seq]
	if ok {
		delete(sub.groups, seq)
	}
	var reset *moq.StreamResetError
	if errors.As(err, &reset) && reset.Code == moq.ResetCodeTrackEnded {
		_ = transitionTrack(sub.state, TrackEnded)
		sub.state = TrackEnded
	}
	sub.mu.Unlock()
	if !ok {
		g = sub.groupFor(seq)
	}
	g.setErr(err)
	close(g.Frames)
}

// deliverSessionError marks the track Ended and unblocks any pending
// group reads with a *moq.SessionError.
func (sub *Subscription) deliverSessionError(reason error) {
	sub.mu.Lock()
	_ = transitionTrack(sub.state, TrackEnded)
	sub.state = TrackEnded
	groups := make([]*Group, 0, len(sub.groups))
	for seq, g := range sub.groups {
		groups = append(groups, g)
		delete(sub.groups, seq)
	}
	sub.mu.Unlock()

	for _, g := range groups {
		g.setErr(&moq.SessionError{Err: reason})
		close(g.Frames)
	}
	close(sub.Groups)
}

// Unsubscribe closes the subscription's control stream, ending the
// track from the subscriber side.
func (sub *Subscription) Unsubscribe() error {
	sub.mu.Lock()
	_ = transitionTrack(sub.state, TrackEnded)
	sub.state = TrackEnded
	sub.mu.Unlock()
	return sub.ctrl.Close()
}
