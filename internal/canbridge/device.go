//go:build linux

// Package canbridge exposes one or more SocketCAN interfaces over ALPN
// xoq/p2p/0. Each frame read from the interface is wrapped in the wire
// header from spec.md §3 and forwarded to attached clients; incoming
// client frames are unwrapped and sent with a raw CAN_RAW socket.
package canbridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/zsiec/xoq/internal/bridge"
	"github.com/zsiec/xoq/media"
)

// busOffRetryInterval is the fixed reopen cadence spec.md §4.6 gives
// the CAN bridge specifically, overriding the general device state
// machine's exponential backoff (spec.md §4.10) for this one case.
const busOffRetryInterval = time.Second

// Config names one SocketCAN interface, optionally CAN-FD.
type Config struct {
	Interface string
	FD        bool
}

// ParseInterface splits an interface spec like "can0" or "can1:fd" into
// a Config, per spec.md §4.6.
func ParseInterface(spec string) Config {
	name, fd := spec, false
	if rest, ok := strings.CutSuffix(spec, ":fd"); ok {
		name, fd = rest, true
	}
	return Config{Interface: name, FD: fd}
}

// Device adapts a raw AF_CAN/SOCK_RAW socket to bridge.Device. Exactly
// one Device instance handles one interface; bridge.Server's
// deviceOwner already guarantees a single reader and single writer, so
// the write-reassembly buffer below needs no locking.
type Device struct {
	cfg Config
	log *slog.Logger
	fd  int

	writeBuf []byte // re-buffered partial wire frames, per spec.md §4.6
}

// NewOpener returns a bridge.Device constructor closing over cfg.
func NewOpener(cfg Config) func() (bridge.Device, error) {
	return func() (bridge.Device, error) {
		return &Device{cfg: cfg, log: slog.With("component", "canbridge", "interface", cfg.Interface)}, nil
	}
}

func (d *Device) Open(ctx context.Context) error {
	return d.openSocket()
}

func (d *Device) openSocket() error {
	iface, err := net.InterfaceByName(d.cfg.Interface)
	if err != nil {
		return fmt.Errorf("canbridge: interface %s: %w", d.cfg.Interface, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("canbridge: socket: %w", err)
	}

	if d.cfg.FD {
		if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 1); err != nil {
			unix.Close(fd)
			return fmt.Errorf("canbridge: enable CAN-FD on %s: %w", d.cfg.Interface, err)
		}
	}

	// restart-ms=100 (spec.md §4.6) is interface-level netlink
	// configuration (IFLA_CAN_RESTART_MS via rtnetlink, CAP_NET_ADMIN),
	// applied by the operator ("ip link set canX type can restart-ms
	// 100") before this bridge runs; CAN_RAW sockopts have no
	// equivalent knob.
	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("canbridge: bind %s: %w", d.cfg.Interface, err)
	}

	d.fd = fd
	return nil
}

func (d *Device) Close() error {
	if d.fd == 0 {
		return nil
	}
	return unix.Close(d.fd)
}

// ReadFrame reads one raw CAN frame from the socket and returns it in
// the client<->server wire format. On a socket-level error (BUS-OFF or
// error-passive surfaces as a read error on CAN_RAW sockets), it logs
// and retries the reopen every busOffRetryInterval until it succeeds or
// ctx is cancelled, per spec.md §4.6 — it never gives up and returns a
// permanent error to the bridge framework.
func (d *Device) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		buf := make([]byte, fdFrameSize)
		n, err := unix.Read(d.fd, buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			d.log.Warn("CAN read error, interface in error state", "error", err)
			if rerr := d.reopen(ctx); rerr != nil {
				return nil, rerr
			}
			continue
		}
		return decodeKernelFrame(buf[:n])
	}
}

// reopen closes the current socket and retries openSocket once a
// second until it succeeds or ctx is done.
func (d *Device) reopen(ctx context.Context) error {
	_ = unix.Close(d.fd)
	ticker := time.NewTicker(busOffRetryInterval)
	defer ticker.Stop()
	for {
		if err := d.openSocket(); err == nil {
			d.log.Info("CAN interface reopened")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WriteFrame accepts a chunk of bytes forwarded verbatim from a
// client's QUIC stream, which may contain zero, one, or several
// complete wire frames, or a partial one split across two calls. It
// re-buffers until a complete frame is available, then writes exactly
// one CAN frame per decoded wire frame (spec.md §4.6 write fan-in:
// arrival order, no reordering, no coalescing, no de-dup — already
// guaranteed upstream by bridge.Server serializing all writers through
// one inbound channel).
func (d *Device) WriteFrame(ctx context.Context, b []byte) error {
	d.writeBuf = append(d.writeBuf, b...)
	for {
		total := wireFrameLen(d.writeBuf)
		if total == 0 || len(d.writeBuf) < total {
			return nil
		}
		frame, err := DecodeFrame(d.writeBuf[:total])
		d.writeBuf = d.writeBuf[total:]
		if err != nil {
			return fmt.Errorf("canbridge: decode wire frame: %w", err)
		}
		if frame.Flags&media.CANFlagFD != 0 && !d.cfg.FD {
			d.log.Warn("dropping CAN-FD frame on classic interface", "id", frame.ID)
			continue
		}
		raw := encodeKernelFrame(frame)
		if _, err := unix.Write(d.fd, raw); err != nil {
			return fmt.Errorf("canbridge: write: %w", err)
		}
	}
}
