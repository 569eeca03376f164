// Command xoq-can exposes one or more SocketCAN interfaces as remote
// frame streams over QUIC, per spec.md §4.6. Each interface gets its
// own QUIC listener, starting at -addr and incrementing the port by
// one per interface.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/xoq/internal/bridge"
	"github.com/zsiec/xoq/internal/canbridge"
	"github.com/zsiec/xoq/internal/certs"
	"github.com/zsiec/xoq/internal/keystore"
	"github.com/zsiec/xoq/internal/logging"
	"github.com/zsiec/xoq/internal/quicnet"
)

const alpn = "xoq/p2p/0"

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", ":4620", "base listen address; one server per interface, ports incrementing from here")
	ifaces := flag.String("interfaces", "", "comma-separated interface specs, e.g. can0,can1:fd")
	flag.Parse()

	setupLogging()

	if *ifaces == "" {
		slog.Error("config error: -interfaces is required")
		return 64
	}

	host, basePortStr, err := net.SplitHostPort(*addr)
	if err != nil {
		slog.Error("config error: invalid -addr", "error", err)
		return 64
	}
	basePort, err := strconv.Atoi(basePortStr)
	if err != nil {
		slog.Error("config error: invalid -addr port", "error", err)
		return 64
	}

	ks, err := keystore.InitFromPathOrGenerate(envOr("XOQ_KEY_DIR", "."), "can")
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
	tlsConf := &tls.Config{Certificates: []tls.Certificate{cert.TLSCert}, NextProtos: []string{alpn}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(cancel)

	g, gCtx := errgroup.WithContext(ctx)
	for i, spec := range strings.Split(*ifaces, ",") {
		cfg := canbridge.ParseInterface(strings.TrimSpace(spec))
		if cfg.Interface == "" {
			slog.Error("config error: bad interface spec", "spec", spec)
			return 64
		}

		listenAddr := net.JoinHostPort(host, strconv.Itoa(basePort+i))
		ep, err := quicnet.Listen(listenAddr, tlsConf, quicnet.DefaultConfig())
		if err != nil {
			slog.Error("listen failed", "addr", listenAddr, "error", err)
			return 3
		}
		defer ep.Close()

		srv := bridge.New(alpn, canbridge.NewOpener(cfg), bridge.Config{})
		slog.Info("xoq-can listening", "addr", listenAddr, "interface", cfg.Interface, "fd", cfg.FD)
		g.Go(func() error {
			return srv.Serve(gCtx, ep)
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("serve failed", "error", err)
		return 3
	}
	return 0
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
