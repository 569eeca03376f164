// Command xoq-audio exposes one duplex audio device as a remote PCM
// stream over QUIC, per spec.md §4.9.
package main

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"flag"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zsiec/xoq/internal/audiobridge"
	"github.com/zsiec/xoq/internal/bridge"
	"github.com/zsiec/xoq/internal/certs"
	"github.com/zsiec/xoq/internal/keystore"
	"github.com/zsiec/xoq/internal/logging"
	"github.com/zsiec/xoq/internal/quicnet"
	"github.com/zsiec/xoq/media"
)

const alpn = "xoq/audio-pcm/0"

func main() {
	os.Exit(run())
}

func run() int {
	addr := flag.String("addr", ":4650", "listen address")
	sampleRate := flag.Int("sample-rate", 48000, "capture/playback sample rate")
	channels := flag.Int("channels", 1, "channel count")
	flag.Parse()

	setupLogging()

	ks, err := keystore.InitFromPathOrGenerate(envOr("XOQ_KEY_DIR", "."), "audio")
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

	pcm := newSyntheticPCMDevice(uint32(*sampleRate), uint16(*channels))
	srv := bridge.New(alpn, audiobridge.NewOpener(pcm), bridge.Config{})

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

	slog.Info("xoq-audio listening", "addr", ep.Addr(), "sample_rate", *sampleRate, "channels", *channels)
	if err := srv.Serve(ctx, ep); err != nil {
		slog.Error("serve failed", "error", err)
		return 3
	}
	return 0
}

// syntheticPCMDevice stands in for a platform audio SDK (cpal-style)
// duplex stream: Capture emits a sine tone, Play discards whatever it
// is handed. Real hardware capture/playback is out of scope per
// spec.md §1.
type syntheticPCMDevice struct {
	sampleRate uint32
	channels   uint16
	phase      float64
}

func newSyntheticPCMDevice(sampleRate uint32, channels uint16) *syntheticPCMDevice {
	return &syntheticPCMDevice{sampleRate: sampleRate, channels: channels}
}

const framesPerBuffer = 960 // 20ms at 48kHz

func (d *syntheticPCMDevice) Capture(ctx context.Context) (media.PCMFrame, error) {
	select {
	case <-time.After(20 * time.Millisecond):
	case <-ctx.Done():
		return media.PCMFrame{}, ctx.Err()
	}

	data := make([]byte, framesPerBuffer*int(d.channels)*2)
	const freq = 440.0
	step := 2 * math.Pi * freq / float64(d.sampleRate)
	for i := 0; i < framesPerBuffer; i++ {
		sample := int16(math.Sin(d.phase) * 0.2 * math.MaxInt16)
		d.phase += step
		for ch := 0; ch < int(d.channels); ch++ {
			off := (i*int(d.channels) + ch) * 2
			binary.LittleEndian.PutUint16(data[off:off+2], uint16(sample))
		}
	}

	return media.PCMFrame{
		SampleRate:   d.sampleRate,
		Channels:     d.channels,
		SampleFormat: media.PCMFormatS16LE,
		FrameCount:   framesPerBuffer,
		TimestampUs:  uint32(time.Now().UnixMicro()),
		Data:         data,
	}, nil
}

func (d *syntheticPCMDevice) Play(ctx context.Context, f media.PCMFrame) error {
	return nil
}

func (d *syntheticPCMDevice) Close() error { return nil }

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
