package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeDevice is an in-memory Device used to test the deviceOwner's
// fan-in/fan-out without any real hardware or QUIC connection.
type fakeDevice struct {
	mu       sync.Mutex
	opened   bool
	closed   bool
	writes   [][]byte
	readCh   chan []byte
	openErr  error
	closeErr error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{readCh: make(chan []byte, 16)}
}

func (d *fakeDevice) Open(ctx context.Context) error {
	if d.openErr != nil {
		return d.openErr
	}
	d.mu.Lock()
	d.opened = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.closeErr
}

func (d *fakeDevice) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case f := <-d.readCh:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDevice) WriteFrame(ctx context.Context, b []byte) error {
	d.mu.Lock()
	d.writes = append(d.writes, append([]byte(nil), b...))
	d.mu.Unlock()
	return nil
}

func TestDeviceOwnerOpensOnceAcrossMultipleAttach(t *testing.T) {
	t.Parallel()
	opens := 0
	dev := newFakeDevice()
	owner := newDeviceOwner(func() (Device, error) {
		opens++
		return dev, nil
	}, testLogger())

	sub1, err := owner.attach()
	require.NoError(t, err)
	sub2, err := owner.attach()
	require.NoError(t, err)

	require.Equal(t, 1, opens)
	owner.detach(sub1)
	owner.detach(sub2)
	owner.closeIfIdle(true)
}

func TestDeviceOwnerFanOutToAllSubscribers(t *testing.T) {
	t.Parallel()
	dev := newFakeDevice()
	owner := newDeviceOwner(func() (Device, error) { return dev, nil }, testLogger())

	sub1, err := owner.attach()
	require.NoError(t, err)
	sub2, err := owner.attach()
	require.NoError(t, err)
	defer owner.closeIfIdle(true)

	dev.readCh <- []byte("hello")

	for _, sub := range []*subscriber{sub1, sub2} {
		select {
		case got := <-sub.outbound:
			require.Equal(t, "hello", string(got))
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out frame")
		}
	}
}

func TestDeviceOwnerSerializesWrites(t *testing.T) {
	t.Parallel()
	dev := newFakeDevice()
	owner := newDeviceOwner(func() (Device, error) { return dev, nil }, testLogger())
	sub, err := owner.attach()
	require.NoError(t, err)
	defer owner.closeIfIdle(true)

	owner.inbound <- []byte("a")
	owner.inbound <- []byte("b")

	require.Eventually(t, func() bool {
		dev.mu.Lock()
		defer dev.mu.Unlock()
		return len(dev.writes) == 2
	}, time.Second, 10*time.Millisecond)

	_ = sub
}

func TestDeviceOwnerAttachPropagatesOpenError(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("open failed")
	owner := newDeviceOwner(func() (Device, error) { return nil, wantErr }, testLogger())

	_, err := owner.attach()
	require.ErrorIs(t, err, wantErr)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
