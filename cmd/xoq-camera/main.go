// Command xoq-camera publishes one camera's encoded video over a MoQ
// session carried directly on QUIC, per spec.md §4.7. Browsers without
// native QUIC/WebTransport support connect through internal/wtcarrier
// instead; this binary serves only the direct-QUIC path.
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
	"github.com/zsiec/xoq/internal/keystore"
	"github.com/zsiec/xoq/internal/logging"
	"github.com/zsiec/xoq/internal/moqsession"
	"github.com/zsiec/xoq/internal/quicnet"
)

// cameraALPNs lists every codec ALPN this server accepts.
// quicnet.Listen negotiates ALPN in the connecting client's own
// preference order (spec.md §6); this list only supplies the fallback
// order used when a client's ClientHello offers none of them.
var cameraALPNs = []string{
	"xoq/camera-h264/0",
	"xoq/camera-hevc/0",
	"xoq/camera-av1/0",
	"xoq/camera-jpeg/0",
	"xoq/camera/0",
}

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", ":4630", "listen address")
	width := flag.Int("width", 1280, "frame width")
	height := flag.Int("height", 720, "frame height")
	flag.Parse()

	setupLogging()

	ks, err := keystore.InitFromPathOrGenerate(envOr("XOQ_KEY_DIR", "."), "camera")
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

	tlsConf := &tls.Config{Certificates: []tls.Certificate{cert.TLSCert}, NextProtos: cameraALPNs}
	ep, err := quicnet.Listen(*addr, tlsConf, quicnet.DefaultConfig())
	if err != nil {
		slog.Error("listen failed", "addr", *addr, "error", err)
		return 3
	}
	defer ep.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(cancel)

	slog.Info("xoq-camera listening", "addr", ep.Addr())
	for {
		conn, err := ep.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			slog.Error("accept failed", "error", err)
			return 3
		}
		go serveConnection(ctx, conn, uint16(*width), uint16(*height))
	}
}

func serveConnection(ctx context.Context, conn *quicnet.Connection, width, height uint16) {
	path := conn.ALPN()

	sess, _, _, err := moqsession.ServerHandshake(ctx, moqsession.WrapQUIC(conn))
	if err != nil {
		slog.Warn("moq handshake failed", "error", err)
		return
	}

	pub := sess.PublishTrack(path, "video")
	go sess.RunControlDispatch(ctx)

	pipeline := camera.NewPipeline(camera.NewSyntheticSource(), width, height, 1)
	if err := pipeline.Run(ctx, pub); err != nil && ctx.Err() == nil {
		slog.Warn("camera pipeline ended", "error", err)
	}
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
