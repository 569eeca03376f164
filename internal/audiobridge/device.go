package audiobridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zsiec/xoq/internal/bridge"
	"github.com/zsiec/xoq/media"
)

// PCMDevice is the capture/playback abstraction a platform audio SDK
// sits behind, modeled the way cpal exposes a duplex stream: one
// blocking pull for captured audio, one blocking push for audio to
// play out. Platform SDKs (CoreAudio, ALSA, WASAPI) are out of scope
// per spec.md §1; production builds implement this against one of
// them.
type PCMDevice interface {
	// Capture blocks until one buffer of microphone audio is
	// available.
	Capture(ctx context.Context) (media.PCMFrame, error)
	// Play renders one buffer of audio to the output device.
	Play(ctx context.Context, f media.PCMFrame) error
	Close() error
}

// Device adapts a PCMDevice to bridge.Device, wire-encoding captured
// audio toward the client and decoding client audio toward the
// speaker. Clock drift between the two directions is the receiver's
// job, not this device's (spec.md §4.9).
type Device struct {
	pcm PCMDevice
	log *slog.Logger

	mu      sync.Mutex
	readBuf []byte
}

// NewOpener returns a bridge.Device constructor, for bridge.New, that
// always wraps the same underlying PCMDevice; Open is a no-op since
// the device is already live.
func NewOpener(pcm PCMDevice) func() (bridge.Device, error) {
	return func() (bridge.Device, error) {
		return &Device{pcm: pcm, log: slog.With("component", "audiobridge")}, nil
	}
}

func (d *Device) Open(ctx context.Context) error { return nil }

func (d *Device) Close() error { return d.pcm.Close() }

// ReadFrame captures one PCM buffer and returns its wire encoding.
func (d *Device) ReadFrame(ctx context.Context) ([]byte, error) {
	f, err := d.pcm.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("audiobridge: capture: %w", err)
	}
	return EncodeFrame(f), nil
}

// WriteFrame decodes and plays out one or more wire frames from b.
// Like the CAN bridge, the generic bridge framework forwards opaque
// byte chunks with no guarantee of PCM-frame alignment, so partial
// frames are re-buffered across calls.
func (d *Device) WriteFrame(ctx context.Context, b []byte) error {
	d.mu.Lock()
	d.readBuf = append(d.readBuf, b...)
	buf := d.readBuf
	d.mu.Unlock()

	consumed := 0
	for {
		need := wireFrameLen(buf[consumed:])
		if need == 0 || consumed+need > len(buf) {
			break
		}
		f, err := DecodeFrame(buf[consumed : consumed+need])
		if err != nil {
			return fmt.Errorf("audiobridge: decode: %w", err)
		}
		if err := d.pcm.Play(ctx, f); err != nil {
			return fmt.Errorf("audiobridge: play: %w", err)
		}
		consumed += need
	}

	d.mu.Lock()
	d.readBuf = append([]byte(nil), buf[consumed:]...)
	d.mu.Unlock()
	return nil
}
