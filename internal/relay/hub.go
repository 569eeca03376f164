// Package relay implements the MoQ pub/sub relay that XoQ peers fall
// back to when direct P2P hole-punching fails (spec.md §4.1): a single
// rendezvous point that forwards one origin's published tracks to any
// number of subscribers.
package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zsiec/xoq/internal/moqsession"
)

// Hub bridges one origin connection's published tracks to N viewer
// connections per broadcast path, grounded on distribution.Relay's
// sessions-map-plus-RWMutex fan-out pattern, generalized from "one
// relay per stream key" to "one relay per broadcast path, forwarding
// whole MoQ groups instead of demuxed frames".
//
// The relay has no wire-level ANNOUNCE propagation from origins (the
// registered ALPNs carry only SUBSCRIBE/media traffic, per spec.md
// §6); instead, the first connection Handle sees for a given path is
// treated as that path's origin, and every connection after it is
// treated as a viewer. A single relay process serves one broadcast
// path's worth of origin plus viewers.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	origins map[string]*moqsession.Session
	fwd     map[string]*forwarder // key: path + "/" + track
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		log:     slog.With("component", "relay"),
		origins: make(map[string]*moqsession.Session),
		fwd:     make(map[string]*forwarder),
	}
}

// Handle runs sess to completion as either the origin of path (if no
// origin is registered yet) or a viewer subscribing to tracks on path.
// Blocks until the connection's dispatch loop ends.
func (h *Hub) Handle(ctx context.Context, path string, tracks []string, sess *moqsession.Session) error {
	h.mu.Lock()
	_, hasOrigin := h.origins[path]
	isOrigin := !hasOrigin
	if isOrigin {
		h.origins[path] = sess
	}
	h.mu.Unlock()

	if isOrigin {
		h.log.Info("registered origin", "path", path)
		defer func() {
			h.mu.Lock()
			if h.origins[path] == sess {
				delete(h.origins, path)
			}
			h.mu.Unlock()
		}()
		return sess.RunGroupDispatch(ctx)
	}

	for _, track := range tracks {
		pub := sess.PublishTrack(path, track)
		h.bind(ctx, path, track, pub)
	}
	return sess.RunControlDispatch(ctx)
}

func (h *Hub) bind(ctx context.Context, path, track string, pub *moqsession.Publisher) {
	key := path + "/" + track
	h.mu.Lock()
	f, ok := h.fwd[key]
	if !ok {
		f = &forwarder{}
		h.fwd[key] = f
		go h.pump(ctx, path, track, f)
	}
	h.mu.Unlock()
	go f.acceptSubscribers(ctx, pub)
}

// pump subscribes to (path, track) on the registered origin and fans
// every delivered group out to whatever viewers forwarder has
// accumulated at the time the group starts.
func (h *Hub) pump(ctx context.Context, path, track string, f *forwarder) {
	h.mu.Lock()
	origin := h.origins[path]
	h.mu.Unlock()
	if origin == nil {
		h.log.Warn("no origin registered for path, dropping forward request", "path", path, "track", track)
		return
	}

	sub, err := origin.Subscribe(ctx, path, track, 0)
	if err != nil {
		h.log.Warn("relay subscribe to origin failed", "path", path, "track", track, "error", err)
		return
	}
	for group := range sub.Groups {
		go forwardGroup(ctx, f, group)
	}
}

// forwarder is the set of viewer connections currently subscribed to
// one (path, track); groups arriving from the origin are copied to
// every viewer attached at the time the group opens.
type forwarder struct {
	mu   sync.Mutex
	subs []*moqsession.RequestedSubscriber
}

func (f *forwarder) acceptSubscribers(ctx context.Context, pub *moqsession.Publisher) {
	for {
		select {
		case rs, ok := <-pub.Requested():
			if !ok {
				return
			}
			f.mu.Lock()
			f.subs = append(f.subs, rs)
			f.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

func forwardGroup(ctx context.Context, f *forwarder, group *moqsession.Group) {
	f.mu.Lock()
	subs := append([]*moqsession.RequestedSubscriber(nil), f.subs...)
	f.mu.Unlock()

	writers := make(map[*moqsession.RequestedSubscriber]*moqsession.GroupWriter, len(subs))
	for _, rs := range subs {
		gw, err := rs.OpenGroup(ctx, group.Sequence)
		if err != nil {
			continue
		}
		writers[rs] = gw
	}
	for frame := range group.Frames {
		for rs, gw := range writers {
			if err := gw.WriteFrame(frame); err != nil {
				delete(writers, rs)
			}
		}
	}
	for _, gw := range writers {
		_ = gw.Close()
	}
}
