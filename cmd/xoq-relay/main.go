// Command xoq-relay runs the MoQ pub/sub relay that bridges and
// viewers fall back to when direct P2P hole-punching fails, per
// spec.md §4.1. It serves a single broadcast path: the first
// connection it accepts becomes that path's origin, every connection
// after it is treated as a viewer (see internal/relay for the
// origin/viewer convention this relies on).
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/zsiec/xoq/internal/certs"
	"github.com/zsiec/xoq/internal/keystore"
	"github.com/zsiec/xoq/internal/logging"
	"github.com/zsiec/xoq/internal/moqsession"
	"github.com/zsiec/xoq/internal/quicnet"
	"github.com/zsiec/xoq/internal/relay"
	"github.com/zsiec/xoq/internal/wtcarrier"
)

var relayALPNs = []string{
	"xoq/p2p/0",
	"xoq/camera/0",
	"xoq/camera-jpeg/0",
	"xoq/camera-h264/0",
	"xoq/camera-hevc/0",
	"xoq/camera-av1/0",
	"xoq/audio-pcm/0",
}

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", ":4700", "listen address for direct-QUIC MoQ clients")
	browserAddr := flag.String("browser-addr", "", "HTTP/3 listen address for browser WebTransport + WebSocket clients (disabled if empty)")
	path := flag.String("path", "", "broadcast path this relay serves")
	tracks := flag.String("tracks", "video", "comma-separated track names to forward for viewers")
	flag.Parse()

	setupLogging()

	if *path == "" {
		slog.Error("config error: -path is required")
		return 64
	}
	trackNames := strings.Split(*tracks, ",")
	for i := range trackNames {
		trackNames[i] = strings.TrimSpace(trackNames[i])
	}

	ks, err := keystore.InitFromPathOrGenerate(envOr("XOQ_KEY_DIR", "."), "relay")
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

	if *browserAddr != "" {
		slog.Info("browser cert fingerprint for serverCertificateHashes pinning", "sha256_base64", cert.FingerprintBase64())
	}

	tlsConf := &tls.Config{Certificates: []tls.Certificate{cert.TLSCert}, NextProtos: relayALPNs}
	ep, err := quicnet.Listen(*addr, tlsConf, quicnet.DefaultConfig())
	if err != nil {
		slog.Error("listen failed", "addr", *addr, "error", err)
		return 3
	}
	defer ep.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(cancel)

	hub := relay.NewHub()

	if *browserAddr != "" {
		go serveBrowsers(ctx, *browserAddr, tlsConf, hub, *path, trackNames)
	}

	slog.Info("xoq-relay listening", "addr", ep.Addr(), "path", *path, "tracks", trackNames)
	for {
		conn, err := ep.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			slog.Error("accept failed", "error", err)
			return 3
		}
		go serveConnection(ctx, conn, hub, *path, trackNames)
	}
}

func serveConnection(ctx context.Context, conn *quicnet.Connection, hub *relay.Hub, path string, tracks []string) {
	sess, _, _, err := moqsession.ServerHandshake(ctx, moqsession.WrapQUIC(conn))
	if err != nil {
		slog.Warn("moq handshake failed", "error", err)
		return
	}
	if err := hub.Handle(ctx, path, tracks, sess); err != nil && ctx.Err() == nil {
		slog.Warn("relay session ended", "error", err)
	}
}

// serveBrowsers runs the browser-facing gateway spec.md §4.3 describes:
// a WebTransport listener over HTTP/3 (UDP, addr) and a WebSocket
// fallback listener over TLS (TCP, same addr — different address
// family, no collision). Both funnel into the same relay.Hub as the
// direct-QUIC path.
func serveBrowsers(ctx context.Context, addr string, tlsConf *tls.Config, hub *relay.Hub, path string, tracks []string) {
	// This gateway bypasses quicnet.Listen (it runs its own http3.Server
	// and a raw tls.Listen for the WebSocket fallback), so it has to
	// apply client-preference ALPN negotiation itself.
	tlsConf = quicnet.PreferClientALPN(tlsConf)
	wts := &webtransport.Server{
		H3: http3.Server{
			Addr:      addr,
			TLSConfig: http3.ConfigureTLSConfig(tlsConf.Clone()),
		},
	}
	wts.H3.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wtcarrier.DetectCarrier(r) == "websocket" {
			carrier, err := wtcarrier.Upgrade(w, r)
			if err != nil {
				slog.Warn("websocket upgrade failed", "error", err)
				return
			}
			serveBrowserCarrier(ctx, carrier, hub, path, tracks)
			return
		}
		session, err := wts.Upgrade(w, r)
		if err != nil {
			slog.Warn("webtransport upgrade failed", "error", err)
			return
		}
		serveBrowserCarrier(ctx, wtcarrier.WrapSession(session), hub, path, tracks)
	})

	wsListener, err := tls.Listen("tcp", addr, tlsConf)
	if err != nil {
		slog.Error("websocket listener failed", "addr", addr, "error", err)
		return
	}
	wsServer := &http.Server{Handler: wts.H3.Handler}
	go func() {
		if err := wsServer.Serve(wsListener); err != nil && ctx.Err() == nil {
			slog.Error("websocket server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		wsListener.Close()
		wts.Close()
	}()

	slog.Info("xoq-relay browser gateway listening", "addr", addr, "path", path)
	if err := wts.ListenAndServe(); err != nil && ctx.Err() == nil {
		slog.Error("webtransport gateway failed", "error", err)
	}
}

func serveBrowserCarrier(ctx context.Context, carrier wtcarrier.Carrier, hub *relay.Hub, path string, tracks []string) {
	sess, _, _, err := moqsession.ServerHandshake(ctx, moqsession.WrapCarrier(carrier))
	if err != nil {
		slog.Warn("moq handshake failed", "error", err)
		return
	}
	if err := hub.Handle(ctx, path, tracks, sess); err != nil && ctx.Err() == nil {
		slog.Warn("relay session ended", "error", err)
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
