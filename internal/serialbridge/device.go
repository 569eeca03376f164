// Package serialbridge exposes a serial device (path + baud rate) over
// ALPN xoq/p2p/0. Bytes from the attached client's stream flow to the
// device; bytes read from the device flow to the stream. Neither
// direction re-frames: the serial line is an opaque byte stream, per
// spec.md §4.5.
package serialbridge

import (
	"context"
	"fmt"

	"go.bug.st/serial"

	"github.com/zsiec/xoq/internal/bridge"
)

// readChunkSize bounds a single device read. The serial line carries no
// message boundaries, so this is purely a buffer size, not a frame size.
const readChunkSize = 4096

// Config selects the serial port and line parameters.
type Config struct {
	Path     string
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
}

// DefaultConfig returns 8N1 at the given baud rate.
func DefaultConfig(path string, baud int) Config {
	return Config{
		Path:     path,
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Device adapts a go.bug.st/serial port to bridge.Device.
type Device struct {
	cfg  Config
	port serial.Port
}

// NewOpener returns a bridge.Device constructor closing over cfg, for
// passing to bridge.New.
func NewOpener(cfg Config) func() (bridge.Device, error) {
	return func() (bridge.Device, error) {
		return &Device{cfg: cfg}, nil
	}
}

func (d *Device) Open(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: d.cfg.BaudRate,
		DataBits: d.cfg.DataBits,
		Parity:   d.cfg.Parity,
		StopBits: d.cfg.StopBits,
	}
	port, err := serial.Open(d.cfg.Path, mode)
	if err != nil {
		return fmt.Errorf("serialbridge: open %s: %w", d.cfg.Path, err)
	}
	d.port = port
	return nil
}

func (d *Device) Close() error {
	if d.port == nil {
		return nil
	}
	return d.port.Close()
}

// ReadFrame returns up to readChunkSize bytes read from the device in a
// single Read call. A short read is not an error: the caller forwards
// whatever arrived, preserving arrival order and boundaries.
func (d *Device) ReadFrame(ctx context.Context) ([]byte, error) {
	buf := make([]byte, readChunkSize)
	n, err := d.port.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("serialbridge: read: %w", err)
	}
	return buf[:n], nil
}

// WriteFrame writes b to the device verbatim.
//
// Known pitfall (spec.md §4.5): on the client's QUIC stream, rapid
// small writes at a steady cadence (e.g. 22ms) may be coalesced by the
// peer's QUIC stack into a single STREAM frame, producing observable
// latency spikes of up to ~130ms. Datagrams would preserve message
// boundaries but are unreliable, so this bridge uses streams and
// documents the pitfall rather than working around it.
func (d *Device) WriteFrame(ctx context.Context, b []byte) error {
	_, err := d.port.Write(b)
	if err != nil {
		return fmt.Errorf("serialbridge: write: %w", err)
	}
	return nil
}
