package depth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fixedRawSource struct {
	samples []RawSample
	i       int
}

func (s *fixedRawSource) NextRaw(ctx context.Context) (RawSample, error) {
	if s.i >= len(s.samples) {
		return RawSample{}, errors.New("exhausted")
	}
	sample := s.samples[s.i]
	s.i++
	return sample, nil
}

func TestAutoCalibrateComputesLinearScaleFromObservedRange(t *testing.T) {
	src := &fixedRawSource{samples: []RawSample{
		{Width: 2, Height: 1, Luma10: []uint16{100, 500}},
		{Width: 2, Height: 1, Luma10: []uint16{50, 900}},
	}}
	intr := Intrinsics{Fx: 600, Fy: 600, Ppx: 320, Ppy: 240}

	meta, err := AutoCalibrate(context.Background(), src, 2, intr, 0)
	require.NoError(t, err)
	require.Equal(t, 2, meta.Width)
	require.Equal(t, 1, meta.Height)
	require.Equal(t, intr.Fx, meta.Fx)
	require.InDelta(t, 10000.0/(900-50), meta.DepthScale, 1e-9)
}

func TestAutoCalibrateHonorsOverrideScale(t *testing.T) {
	src := &fixedRawSource{samples: []RawSample{{Width: 1, Height: 1, Luma10: []uint16{42}}}}

	meta, err := AutoCalibrate(context.Background(), src, 1, Intrinsics{}, 3.5)
	require.NoError(t, err)
	require.Equal(t, 3.5, meta.DepthScale)
}

func TestAutoCalibrateRejectsZeroFrames(t *testing.T) {
	_, err := AutoCalibrate(context.Background(), &fixedRawSource{}, 0, Intrinsics{}, 0)
	require.Error(t, err)
}

func TestAutoCalibratePropagatesSourceError(t *testing.T) {
	_, err := AutoCalibrate(context.Background(), &fixedRawSource{}, 1, Intrinsics{}, 0)
	require.Error(t, err)
}
