// Command xoq-depth publishes a depth sensor's color and depth tracks
// plus a calibration metadata track over MoQ, per spec.md §4.8.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zsiec/xoq/internal/camera"
	"github.com/zsiec/xoq/internal/certs"
	"github.com/zsiec/xoq/internal/depth"
	"github.com/zsiec/xoq/internal/keystore"
	"github.com/zsiec/xoq/internal/logging"
	"github.com/zsiec/xoq/internal/moqsession"
	"github.com/zsiec/xoq/internal/quicnet"
)

const broadcastPath = "xoq/depth/0"

// seqHeaderOBU is a placeholder AV1 sequence header OBU; a real build
// gets this from the hardware/software AV1 encoder's first keyframe.
// Software/hardware encoding is out of scope per spec.md §1.
var seqHeaderOBU = []byte{0x0A, 0x0B, 0x00, 0x00, 0x00}

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", ":4640", "listen address")
	width := flag.Int("width", 640, "frame width")
	height := flag.Int("height", 480, "frame height")
	calibFrames := flag.Int("calibration-frames", 30, "raw frames to sample for auto-calibration")
	overrideScale := flag.Float64("depth-scale-override", 0, "operator-supplied depth_scale override (0 = auto)")
	fx := flag.Float64("fx", 600, "sensor fx")
	fy := flag.Float64("fy", 600, "sensor fy")
	flag.Parse()

	setupLogging()

	ks, err := keystore.InitFromPathOrGenerate(envOr("XOQ_KEY_DIR", "."), "depth")
	if err != nil {
		slog.Error("keystore init failed", "error", err)
		return 1
	}
	slog.Info("node identity", "node_id", ks.NodeId())

	cert, err := certs.Generate(14 * 24 * time.Hour)
	if err != nil {
		slog.Error("certificate generation failed", "error", err)
		return 1
	}

	const alpn = "xoq/camera-av1/0"
	tlsConf := &tls.Config{Certificates: []tls.Certificate{cert.TLSCert}, NextProtos: []string{alpn}}
	ep, err := quicnet.Listen(*addr, tlsConf, quicnet.DefaultConfig())
	if err != nil {
		slog.Error("listen failed", "addr", *addr, "error", err)
		return 3
	}
	defer ep.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(cancel)

	intr := depth.Intrinsics{Fx: *fx, Fy: *fy, Ppx: float64(*width) / 2, Ppy: float64(*height) / 2}

	slog.Info("xoq-depth listening", "addr", ep.Addr())
	for {
		conn, err := ep.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			slog.Error("accept failed", "error", err)
			return 3
		}
		go serveConnection(ctx, conn, uint16(*width), uint16(*height), *calibFrames, intr, *overrideScale)
	}
}

func serveConnection(ctx context.Context, conn *quicnet.Connection, width, height uint16, calibFrames int, intr depth.Intrinsics, overrideScale float64) {
	sess, _, _, err := moqsession.ServerHandshake(ctx, moqsession.WrapQUIC(conn))
	if err != nil {
		slog.Warn("moq handshake failed", "error", err)
		return
	}

	colorPub := sess.PublishTrack(broadcastPath, "video")
	depthPub := sess.PublishTrack(broadcastPath, "depth")
	metaPub := sess.PublishTrack(broadcastPath, "metadata")
	go sess.RunControlDispatch(ctx)

	pipeline := depth.NewPipeline(camera.NewSyntheticSource(), newSyntheticDepthSource(), width, height)
	src := &syntheticRawSource{width: int(width), height: int(height)}
	if err := pipeline.Run(ctx, colorPub, depthPub, metaPub, src, calibFrames, intr, overrideScale); err != nil && ctx.Err() == nil {
		slog.Warn("depth pipeline ended", "error", err)
	}
}

// syntheticDepthSource stands in for a real depth sensor's AV1
// monochrome 10-bit encoder output; hardware/software AV1 encoding is
// out of scope per spec.md §1.
type syntheticDepthSource struct {
	frameNo int
}

func newSyntheticDepthSource() *syntheticDepthSource { return &syntheticDepthSource{} }

func (s *syntheticDepthSource) Next(ctx context.Context) (camera.EncodedFrame, error) {
	select {
	case <-time.After(time.Second / 15):
	case <-ctx.Done():
		return camera.EncodedFrame{}, ctx.Err()
	}
	isKeyframe := s.frameNo%30 == 0
	s.frameNo++
	f := camera.EncodedFrame{
		PTS:        time.Now().UnixMilli(),
		IsKeyframe: isKeyframe,
		Codec:      "av1",
		Units:      [][]byte{{0x32, 0x00, 0x00}},
	}
	if isKeyframe {
		f.SeqHeaderOBU = seqHeaderOBU
	}
	return f, nil
}

func (s *syntheticDepthSource) Close() error { return nil }

// syntheticRawSource stands in for raw 10-bit luma frames pulled from
// the sensor SDK for auto-calibration.
type syntheticRawSource struct {
	width, height int
	frameNo       int
}

func (s *syntheticRawSource) NextRaw(ctx context.Context) (depth.RawSample, error) {
	s.frameNo++
	luma := make([]uint16, s.width*s.height)
	for i := range luma {
		luma[i] = uint16((i + s.frameNo*7) % 1024)
	}
	return depth.RawSample{Width: s.width, Height: s.height, Luma10: luma}, nil
}

func setupLogging() {
	filter := logging.ParseFilter(os.Getenv("RUST_LOG"))
	slog.SetDefault(slog.New(logging.NewHandler(filter)))
}

func waitForSignal(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)
	cancel()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
