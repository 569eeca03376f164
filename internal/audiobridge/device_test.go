package audiobridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/xoq/media"
)

type fakePCMDevice struct {
	captureOut media.PCMFrame
	played     []media.PCMFrame
	closed     bool
}

func (f *fakePCMDevice) Capture(ctx context.Context) (media.PCMFrame, error) {
	return f.captureOut, nil
}

func (f *fakePCMDevice) Play(ctx context.Context, frame media.PCMFrame) error {
	f.played = append(f.played, frame)
	return nil
}

func (f *fakePCMDevice) Close() error {
	f.closed = true
	return nil
}

func TestDeviceReadFrameEncodesCapturedAudio(t *testing.T) {
	pcm := &fakePCMDevice{captureOut: media.PCMFrame{SampleRate: 48000, Channels: 2, FrameCount: 10, Data: []byte{1, 2}}}
	d := &Device{pcm: pcm}

	wire, err := d.ReadFrame(context.Background())
	require.NoError(t, err)
	decoded, err := DecodeFrame(wire)
	require.NoError(t, err)
	require.Equal(t, pcm.captureOut.SampleRate, decoded.SampleRate)
	require.Equal(t, pcm.captureOut.Data, decoded.Data)
}

func TestDeviceWriteFrameReassemblesSplitFrames(t *testing.T) {
	pcm := &fakePCMDevice{}
	d := &Device{pcm: pcm}

	f1 := media.PCMFrame{SampleRate: 16000, Channels: 1, FrameCount: 1, Data: []byte{0xAA, 0xBB}}
	f2 := media.PCMFrame{SampleRate: 16000, Channels: 1, FrameCount: 1, Data: []byte{0xCC}}
	wire := append(EncodeFrame(f1), EncodeFrame(f2)...)

	require.NoError(t, d.WriteFrame(context.Background(), wire[:10]))
	require.Empty(t, pcm.played)

	require.NoError(t, d.WriteFrame(context.Background(), wire[10:]))
	require.Len(t, pcm.played, 2)
	require.Equal(t, f1.Data, pcm.played[0].Data)
	require.Equal(t, f2.Data, pcm.played[1].Data)
}

func TestDeviceCloseClosesUnderlyingPCMDevice(t *testing.T) {
	pcm := &fakePCMDevice{}
	d := &Device{pcm: pcm}
	require.NoError(t, d.Close())
	require.True(t, pcm.closed)
}
