package moqsession

import (
	"context"
	"fmt"
	"io"
)

// MoqStream is a bidirectional byte stream built from a pair of tracks,
// broadcastPath+"/c2s" and broadcastPath+"/s2c" (spec.md §4.2), used to
// carry serial-bridge bytes over a relay instead of a direct QUIC
// stream. Semantics: best-effort ordered delivery; group boundaries are
// opaque framing the caller never sees — Read/Write present a plain
// byte stream.
type MoqStream struct {
	sub    *Subscription // reads from the peer's publish direction
	pub    *Publisher    // our publish direction
	reader *RequestedSubscriber

	pendingGroup *Group
	groupSeq     uint64
	writer       *GroupWriter
}

// OpenMoqStream sets up one side of a MoqStream. side selects which
// track this end publishes: "c2s" publishes client->server and
// subscribes to server->client, "s2c" is the inverse. Both sides must
// agree on side before calling this.
func OpenMoqStream(ctx context.Context, s *Session, broadcastPath, side string) (*MoqStream, error) {
	var pubSuffix, subSuffix string
	switch side {
	case "c2s":
		pubSuffix, subSuffix = "c2s", "s2c"
	case "s2c":
		pubSuffix, subSuffix = "s2c", "c2s"
	default:
		return nil, fmt.Errorf("moqsession: unknown MoqStream side %q", side)
	}

	pub := s.PublishTrack(broadcastPath, pubSuffix)

	sub, err := s.Subscribe(ctx, broadcastPath, subSuffix, 0)
	if err != nil {
		return nil, fmt.Errorf("moqsession: subscribe %s/%s: %w", broadcastPath, subSuffix, err)
	}

	ms := &MoqStream{sub: sub, pub: pub}
	return ms, nil
}

// Accept blocks until the peer's subscribe request for our publish
// direction arrives, then binds the writer half of the stream. Must be
// called before Write.
func (ms *MoqStream) Accept(ctx context.Context) error {
	select {
	case rs, ok := <-ms.pub.Requested():
		if !ok {
			return fmt.Errorf("moqsession: MoqStream publisher closed before subscribe")
		}
		ms.reader = rs
		gw, err := rs.OpenGroup(ctx, 0)
		if err != nil {
			return err
		}
		ms.writer = gw
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Write sends p as one frame in the current (single, long-lived) group.
// MoqStream never starts a new group after the first — it treats group
// boundaries as opaque framing, per spec.md §4.2.
func (ms *MoqStream) Write(p []byte) (int, error) {
	if ms.writer == nil {
		return 0, fmt.Errorf("moqsession: MoqStream not accepted yet")
	}
	if err := ms.writer.WriteFrame(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read returns the next frame's bytes from the peer's publish
// direction, blocking until one arrives. Read does not chunk frames to
// fit p; callers should size p generously or treat Read as
// message-oriented, matching the serial bridge's usage (internal/serialbridge).
func (ms *MoqStream) Read(p []byte) (int, error) {
	for {
		if ms.pendingGroup == nil {
			g, ok := <-ms.sub.Groups
			if !ok {
				return 0, io.EOF
			}
			ms.pendingGroup = g
		}
		frame, ok := <-ms.pendingGroup.Frames
		if !ok {
			err := ms.pendingGroup.Err
			ms.pendingGroup = nil
			if err != nil {
				return 0, err
			}
			continue
		}
		n := copy(p, frame)
		return n, nil
	}
}

// Close tears down both directions of the MoqStream.
func (ms *MoqStream) Close() error {
	var err error
	if ms.writer != nil {
		err = ms.writer.Close()
	}
	if ms.sub != nil {
		if uerr := ms.sub.Unsubscribe(); uerr != nil && err == nil {
			err = uerr
		}
	}
	return err
}
