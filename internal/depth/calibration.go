// Package depth specializes internal/camera for 10-bit grayscale depth
// sensors (spec.md §4.8): auto-calibration from a block of raw frames,
// a metadata track carrying the calibration as JSON once per keyframe,
// and AV1 monochrome 10-bit encoding with the sequence header OBU
// prepended to every keyframe.
package depth

import (
	"context"
	"fmt"

	"github.com/zsiec/xoq/media"
)

// RawSample is one uncalibrated depth frame: width*height 10-bit luma
// values in row-major order, before any mm mapping is known.
type RawSample struct {
	Width, Height int
	Luma10        []uint16
}

// RawSource yields raw depth samples for calibration. Real
// implementations read from the sensor SDK (RealSense); platform SDKs
// are out of scope per spec.md §1, so this package depends only on the
// interface.
type RawSource interface {
	NextRaw(ctx context.Context) (RawSample, error)
}

// Intrinsics are the sensor's optical parameters, supplied by the
// operator (not derivable from raw samples alone).
type Intrinsics struct {
	Fx, Fy   float64
	Ppx, Ppy float64
}

// AutoCalibrate reads n raw frames from src, finds the observed
// 10-bit luma range, and derives the linear luma-to-millimeter mapping
// spec.md §4.8 calls for. An operator-supplied override, if non-zero,
// replaces the computed DepthScale.
func AutoCalibrate(ctx context.Context, src RawSource, n int, intr Intrinsics, overrideScale float64) (media.DepthMetadata, error) {
	if n <= 0 {
		return media.DepthMetadata{}, fmt.Errorf("depth: AutoCalibrate needs at least one frame")
	}

	var lumaMin uint16 = 1023
	var lumaMax uint16
	var width, height int

	for i := 0; i < n; i++ {
		s, err := src.NextRaw(ctx)
		if err != nil {
			return media.DepthMetadata{}, fmt.Errorf("depth: calibration read %d/%d: %w", i+1, n, err)
		}
		width, height = s.Width, s.Height
		for _, v := range s.Luma10 {
			if v < lumaMin {
				lumaMin = v
			}
			if v > lumaMax {
				lumaMax = v
			}
		}
	}

	scale := overrideScale
	if scale == 0 {
		span := float64(lumaMax) - float64(lumaMin)
		if span <= 0 {
			span = 1023
		}
		// Linear mapping from the observed 10-bit luma span to an
		// assumed 0-10m operating range; a real sensor's depth_scale
		// comes from its own calibration data, but that is out of
		// scope here (spec.md §1), so this is the best estimate
		// available from luma range alone.
		scale = 10000.0 / span
	}

	return media.DepthMetadata{
		Fx: intr.Fx, Fy: intr.Fy, Ppx: intr.Ppx, Ppy: intr.Ppy,
		Width: width, Height: height, DepthScale: scale,
	}, nil
}
