// Command xoq-serial exposes one serial port as a remote byte stream
// over QUIC, per spec.md §4.5.
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

	"github.com/zsiec/xoq/internal/bridge"
	"github.com/zsiec/xoq/internal/certs"
	"github.com/zsiec/xoq/internal/keystore"
	"github.com/zsiec/xoq/internal/logging"
	"github.com/zsiec/xoq/internal/quicnet"
	"github.com/zsiec/xoq/internal/serialbridge"
)

const alpn = "xoq/p2p/0"

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", ":4610", "listen address")
	port := flag.String("port", "", "serial device path, e.g. /dev/ttyACM0")
	baud := flag.Int("baud", 115200, "baud rate")
	flag.Parse()

	setupLogging()

	if *port == "" {
		slog.Error("config error: -port is required")
		return 64
	}

	ks, err := keystore.InitFromPathOrGenerate(envOr("XOQ_KEY_DIR", "."), "serial")
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

	cfg := serialbridge.DefaultConfig(*port, *baud)
	srv := bridge.New(alpn, serialbridge.NewOpener(cfg), bridge.Config{})

	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert.TLSCert},
		NextProtos:   []string{alpn},
	}
	ep, err := quicnet.Listen(*addr, tlsConf, quicnet.DefaultConfig())
	if err != nil {
		slog.Error("listen failed", "addr", *addr, "error", err)
		return 3
	}
	defer ep.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(cancel)

	slog.Info("xoq-serial listening", "addr", ep.Addr(), "port", *port, "baud", *baud)
	if err := srv.Serve(ctx, ep); err != nil {
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
