package camera

import (
	"context"
	"time"
)

// SyntheticSource produces a fixed keyframe/delta cadence of
// placeholder H.264 access units, for tests and for driving the
// pipeline without real capture hardware, per the teacher's
// examples/custom-ingest pattern of synthetic/file-fed input.
type SyntheticSource struct {
	FrameInterval time.Duration // default 1s/30fps if zero
	KeyframeEvery int           // frames between keyframes, default 30

	sps, pps []byte
	frameNo  int
	startPTS int64
}

// NewSyntheticSource builds a source with placeholder SPS/PPS bytes
// (NAL header included, per BuildAVCDecoderConfig's contract).
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{
		FrameInterval: time.Second / 30,
		KeyframeEvery: 30,
		sps:           []byte{0x67, 0x42, 0x00, 0x1F, 0xAA, 0xBB},
		pps:           []byte{0x68, 0xCE, 0x3C, 0x80},
	}
}

func (s *SyntheticSource) Next(ctx context.Context) (EncodedFrame, error) {
	if s.FrameInterval <= 0 {
		s.FrameInterval = time.Second / 30
	}
	if s.KeyframeEvery <= 0 {
		s.KeyframeEvery = 30
	}

	select {
	case <-ctx.Done():
		return EncodedFrame{}, ctx.Err()
	case <-time.After(s.FrameInterval):
	}

	if s.startPTS == 0 {
		s.startPTS = time.Now().UnixMilli()
	}
	pts := s.startPTS + int64(s.frameNo)*s.FrameInterval.Milliseconds()
	isKey := s.frameNo%s.KeyframeEvery == 0
	s.frameNo++

	f := EncodedFrame{
		PTS:        pts,
		IsKeyframe: isKey,
		Codec:      "h264",
		Units:      [][]byte{append([]byte{0x61}, 0xDE, 0xAD, 0xBE, 0xEF)},
	}
	if isKey {
		f.SPS = s.sps
		f.PPS = s.pps
		f.Units = [][]byte{append([]byte{0x65}, 0xDE, 0xAD, 0xBE, 0xEF)}
	}
	return f, nil
}

func (s *SyntheticSource) Close() error { return nil }
