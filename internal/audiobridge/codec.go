// Package audiobridge carries duplex PCM audio between a local capture/
// playback device and a remote consumer, per spec.md §4.9.
package audiobridge

import (
	"encoding/binary"
	"fmt"

	"github.com/zsiec/xoq/media"
)

// headerSize is the 20-byte PCM frame header described in spec.md §3:
// [sample_rate:u32 LE][channels:u16][sample_format:u16][frame_count:u32]
// [timestamp_us:u32][data_length:u32].
const headerSize = 20

// EncodeFrame serializes f to its wire form.
func EncodeFrame(f media.PCMFrame) []byte {
	buf := make([]byte, headerSize+len(f.Data))
	binary.LittleEndian.PutUint32(buf[0:4], f.SampleRate)
	binary.LittleEndian.PutUint16(buf[4:6], f.Channels)
	binary.LittleEndian.PutUint16(buf[6:8], f.SampleFormat)
	binary.LittleEndian.PutUint32(buf[8:12], f.FrameCount)
	binary.LittleEndian.PutUint32(buf[12:16], f.TimestampUs)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(f.Data)))
	copy(buf[headerSize:], f.Data)
	return buf
}

// DecodeFrame parses a wire frame produced by EncodeFrame.
func DecodeFrame(b []byte) (media.PCMFrame, error) {
	if len(b) < headerSize {
		return media.PCMFrame{}, fmt.Errorf("audiobridge: frame too short: %d bytes", len(b))
	}
	dataLen := binary.LittleEndian.Uint32(b[16:20])
	if uint32(len(b)-headerSize) < dataLen {
		return media.PCMFrame{}, fmt.Errorf("audiobridge: truncated frame: want %d data bytes, have %d", dataLen, len(b)-headerSize)
	}
	data := make([]byte, dataLen)
	copy(data, b[headerSize:headerSize+int(dataLen)])
	return media.PCMFrame{
		SampleRate:   binary.LittleEndian.Uint32(b[0:4]),
		Channels:     binary.LittleEndian.Uint16(b[4:6]),
		SampleFormat: binary.LittleEndian.Uint16(b[6:8]),
		FrameCount:   binary.LittleEndian.Uint32(b[8:12]),
		TimestampUs:  binary.LittleEndian.Uint32(b[12:16]),
		Data:         data,
	}, nil
}

// wireFrameLen reports how many bytes of b the next complete frame
// needs, or 0 if b does not yet hold a full header.
func wireFrameLen(b []byte) int {
	if len(b) < headerSize {
		return 0
	}
	dataLen := binary.LittleEndian.Uint32(b[16:20])
	return headerSize + int(dataLen)
}
