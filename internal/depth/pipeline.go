package depth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zsiec/xoq/internal/camera"
	"github.com/zsiec/xoq/internal/moqsession"
	"github.com/zsiec/xoq/media"
)

// shobuSource wraps an AV1 depth CaptureSource so every keyframe's OBU
// list is prefixed with its sequence header OBU, keeping each keyframe
// self-contained for WebCodecs decoders that reject a mid-stream OBU
// ordering (spec.md §4.8).
type shobuSource struct {
	inner camera.CaptureSource
}

func (s *shobuSource) Next(ctx context.Context) (camera.EncodedFrame, error) {
	f, err := s.inner.Next(ctx)
	if err != nil {
		return f, err
	}
	if f.IsKeyframe && len(f.SeqHeaderOBU) > 0 {
		f.Units = camera.PrependSHOBU(f.SeqHeaderOBU, f.Units)
	}
	return f, nil
}

func (s *shobuSource) Close() error { return s.inner.Close() }

// Pipeline publishes a depth sensor's color and depth tracks
// independently under one broadcast path, plus a metadata track
// carrying the calibration JSON alongside every depth keyframe
// (spec.md §4.8). Color and depth each keep their own camera.Pipeline
// so they get independent keyframe cadences and init segments.
type Pipeline struct {
	Color *camera.Pipeline
	Depth *camera.Pipeline

	log *slog.Logger

	mu       sync.Mutex
	meta     media.DepthMetadata
	metaSubs map[*moqsession.RequestedSubscriber]*MetadataPublisher
}

// NewPipeline constructs a Pipeline. depthSource must emit AV1
// monochrome 10-bit frames whose EncodedFrame.SeqHeaderOBU is set on
// every keyframe.
func NewPipeline(colorSource, depthSource camera.CaptureSource, width, height uint16) *Pipeline {
	p := &Pipeline{
		Color:    camera.NewPipeline(colorSource, width, height, 1),
		Depth:    camera.NewPipeline(&shobuSource{inner: depthSource}, width, height, 2),
		log:      slog.With("component", "depth"),
		metaSubs: make(map[*moqsession.RequestedSubscriber]*MetadataPublisher),
	}
	p.Depth.OnKeyframe = p.publishMetadata
	return p
}

// Run calibrates against src for calibrationFrames samples, then runs
// the color and depth tracks until ctx is cancelled or either fails.
func (p *Pipeline) Run(ctx context.Context, colorPub, depthPub, metaPub *moqsession.Publisher, src RawSource, calibrationFrames int, intr Intrinsics, overrideScale float64) error {
	meta, err := AutoCalibrate(ctx, src, calibrationFrames, intr, overrideScale)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.meta = meta
	p.mu.Unlock()
	p.log.Info("depth calibration complete", "depth_scale", meta.DepthScale, "width", meta.Width, "height", meta.Height)

	go p.acceptMetadataSubscribers(ctx, metaPub)

	errCh := make(chan error, 2)
	go func() { errCh <- p.Color.Run(ctx, colorPub) }()
	go func() { errCh <- p.Depth.Run(ctx, depthPub) }()
	return <-errCh
}

func (p *Pipeline) acceptMetadataSubscribers(ctx context.Context, metaPub *moqsession.Publisher) {
	for {
		select {
		case rs, ok := <-metaPub.Requested():
			if !ok {
				return
			}
			p.mu.Lock()
			p.metaSubs[rs] = &MetadataPublisher{}
			p.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// publishMetadata is Depth's OnKeyframe hook: it writes the current
// calibration to every attached metadata subscriber.
func (p *Pipeline) publishMetadata(camera.EncodedFrame) {
	p.mu.Lock()
	meta := p.meta
	subs := make(map[*moqsession.RequestedSubscriber]*MetadataPublisher, len(p.metaSubs))
	for rs, mp := range p.metaSubs {
		subs[rs] = mp
	}
	p.mu.Unlock()

	for rs, mp := range subs {
		if err := mp.PublishOnce(context.Background(), rs, meta); err != nil {
			p.log.Debug("publish depth metadata failed", "error", err)
			p.mu.Lock()
			delete(p.metaSubs, rs)
			p.mu.Unlock()
		}
	}
}
