package camera

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zsiec/xoq/internal/moqsession"
	"github.com/zsiec/xoq/media"
)

// Pipeline drives one CaptureSource through a Muxer and fans the
// resulting CameraFrame segments out to every subscriber attached to
// pub, one MoQ group per keyframe boundary so late-joining subscribers
// bootstrap at the next keyframe (spec.md §4.7). Grounded on
// distribution/moq_session.go's writeVideoLoop fan-out shape,
// generalized to the moqsession publish-side API.
type Pipeline struct {
	Source CaptureSource
	Mux    *Muxer
	log    *slog.Logger

	// OnKeyframe, if set, is called synchronously with every keyframe
	// before it is muxed and fanned out. The depth bridge uses this to
	// publish its metadata track alongside each depth keyframe
	// (spec.md §4.8).
	OnKeyframe func(EncodedFrame)

	mu       sync.Mutex
	writers  map[*subscriberWriter]struct{}
	lastInit EncodedFrame
}

type subscriberWriter struct {
	rs      *moqsession.RequestedSubscriber
	groupN  uint64
	gw      *moqsession.GroupWriter
	started bool
}

// NewPipeline constructs a Pipeline over source, muxing into a track
// with the given frame dimensions and track ID.
func NewPipeline(source CaptureSource, width, height uint16, trackID uint32) *Pipeline {
	return &Pipeline{
		Source:  source,
		Mux:     NewMuxer(width, height, trackID),
		log:     slog.With("component", "camera"),
		writers: make(map[*subscriberWriter]struct{}),
	}
}

// Run captures and fans out frames until ctx is cancelled or the
// source returns an error. Subscribers are attached by a goroutine that
// Run starts itself, as pub.Requested() yields them.
func (p *Pipeline) Run(ctx context.Context, pub *moqsession.Publisher) error {
	go p.acceptSubscribers(ctx, pub)

	for {
		frame, err := p.Source.Next(ctx)
		if err != nil {
			return err
		}
		p.deliver(ctx, frame)
	}
}

func (p *Pipeline) acceptSubscribers(ctx context.Context, pub *moqsession.Publisher) {
	for {
		select {
		case rs, ok := <-pub.Requested():
			if !ok {
				return
			}
			p.mu.Lock()
			p.writers[&subscriberWriter{rs: rs}] = struct{}{}
			p.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// deliver mux-encodes frame once and writes it to every attached
// subscriber, starting a fresh group (and a fresh init segment) at each
// keyframe.
func (p *Pipeline) deliver(ctx context.Context, frame EncodedFrame) {
	var initSeg, mediaSeg []byte
	if frame.IsKeyframe {
		if p.OnKeyframe != nil {
			p.OnKeyframe(frame)
		}
		initSeg = p.Mux.BuildInitSegment(frame)
		p.lastInit = frame
	}
	mediaSeg = p.Mux.BuildMediaSegment(frame)

	p.mu.Lock()
	defer p.mu.Unlock()
	for sw := range p.writers {
		if !sw.started && !frame.IsKeyframe {
			// No group yet and this frame can't start one; drop it and
			// wait for the next keyframe to bootstrap the subscriber.
			continue
		}
		if frame.IsKeyframe {
			if sw.gw != nil {
				_ = sw.gw.Close()
			}
			gw, err := sw.rs.OpenGroup(ctx, sw.groupN)
			if err != nil {
				p.log.Debug("open group failed", "error", err)
				delete(p.writers, sw)
				continue
			}
			sw.groupN++
			sw.gw = gw
			sw.started = true
			if err := sw.gw.WriteFrame(EncodeCameraFrame(media.CameraFrame{TimestampMs: frame.PTS, Segment: initSeg})); err != nil {
				delete(p.writers, sw)
				continue
			}
		}
		wire := EncodeCameraFrame(media.CameraFrame{TimestampMs: frame.PTS, Segment: mediaSeg})
		if err := sw.gw.WriteFrame(wire); err != nil {
			p.log.Debug("write frame failed", "error", err)
			delete(p.writers, sw)
		}
	}
}
