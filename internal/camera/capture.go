// Package camera implements the capture→encode→mux→send pipeline
// shared by the color and depth bridges (spec.md §4.7, §4.8).
// Platform capture/encode SDKs (AVFoundation, V4L2, VideoToolbox,
// NVENC) are out of scope per spec.md §1; this package depends only on
// the CaptureSource interface, with a synthetic source for tests,
// grounded on the teacher's examples/custom-ingest/main.go pattern of
// feeding synthetic data directly into the pipeline.
package camera

import "context"

// EncodedFrame is one access unit already produced by a hardware or
// software encoder: NAL units for H.264/HEVC, OBUs for AV1.
type EncodedFrame struct {
	PTS        int64 // wall-clock ms since epoch
	IsKeyframe bool
	Codec      string // "h264", "h265", or "av1"
	Units      [][]byte

	// Parameter sets, populated on keyframes (and whenever they change).
	SPS []byte
	PPS []byte
	VPS []byte // HEVC only

	// SeqHeaderOBU is the raw AV1 sequence_header_obu, populated on
	// keyframes for the av1 codec.
	SeqHeaderOBU []byte
}

// CaptureSource yields encoded access units in capture order. Capture
// and encode are modeled as already having happened by the time a
// frame reaches this interface: real implementations run capture on a
// dedicated OS thread (spec.md §5) and hand off through a bounded
// channel; CaptureSource.Next is the cooperative-world side of that
// handoff.
type CaptureSource interface {
	Next(ctx context.Context) (EncodedFrame, error)
	Close() error
}
