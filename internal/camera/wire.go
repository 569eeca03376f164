package camera

import (
	"encoding/binary"
	"fmt"

	"github.com/zsiec/xoq/media"
)

// EncodeCameraFrame serializes f as the 8-byte wall-clock timestamp
// plus raw segment bytes, per spec.md §4.7 ("prepend the 8-byte
// wall-clock ms timestamp and write as an MoQ frame").
func EncodeCameraFrame(f media.CameraFrame) []byte {
	buf := make([]byte, 8+len(f.Segment))
	binary.BigEndian.PutUint64(buf[0:8], uint64(f.TimestampMs))
	copy(buf[8:], f.Segment)
	return buf
}

// DecodeCameraFrame parses the wire format produced by EncodeCameraFrame.
func DecodeCameraFrame(b []byte) (media.CameraFrame, error) {
	if len(b) < 8 {
		return media.CameraFrame{}, fmt.Errorf("camera: short frame (%d bytes)", len(b))
	}
	ts := int64(binary.BigEndian.Uint64(b[0:8]))
	return media.CameraFrame{TimestampMs: ts, Segment: append([]byte(nil), b[8:]...)}, nil
}
