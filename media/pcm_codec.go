package media

import (
	"encoding/binary"
	"fmt"
)

// pcmHeaderSize is the fixed header size of the duplex PCM wire frame,
// per spec.md §3: sample_rate(4) + channels(2) + sample_format(2) +
// frame_count(4) + timestamp_us(4) + data_length(4).
const pcmHeaderSize = 20

// EncodePCMFrame serializes f into the 20-byte-header wire format
// described in spec.md §3.
func EncodePCMFrame(f PCMFrame) []byte {
	buf := make([]byte, pcmHeaderSize+len(f.Data))
	binary.LittleEndian.PutUint32(buf[0:4], f.SampleRate)
	binary.LittleEndian.PutUint16(buf[4:6], f.Channels)
	binary.LittleEndian.PutUint16(buf[6:8], f.SampleFormat)
	binary.LittleEndian.PutUint32(buf[8:12], f.FrameCount)
	binary.LittleEndian.PutUint32(buf[12:16], f.TimestampUs)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(f.Data)))
	copy(buf[pcmHeaderSize:], f.Data)
	return buf
}

// ErrShortPCMFrame indicates buf does not yet contain a complete PCM
// wire frame.
var ErrShortPCMFrame = fmt.Errorf("media: incomplete PCM frame")

// DecodePCMFrame parses one whole PCM wire frame from the front of buf,
// returning the frame and the number of bytes consumed.
func DecodePCMFrame(buf []byte) (PCMFrame, int, error) {
	if len(buf) < pcmHeaderSize {
		return PCMFrame{}, 0, ErrShortPCMFrame
	}

	dataLen := binary.LittleEndian.Uint32(buf[16:20])
	total := pcmHeaderSize + int(dataLen)
	if len(buf) < total {
		return PCMFrame{}, 0, ErrShortPCMFrame
	}

	data := make([]byte, dataLen)
	copy(data, buf[pcmHeaderSize:total])

	f := PCMFrame{
		SampleRate:   binary.LittleEndian.Uint32(buf[0:4]),
		Channels:     binary.LittleEndian.Uint16(buf[4:6]),
		SampleFormat: binary.LittleEndian.Uint16(buf[6:8]),
		FrameCount:   binary.LittleEndian.Uint32(buf[8:12]),
		TimestampUs:  binary.LittleEndian.Uint32(buf[12:16]),
		Data:         data,
	}
	return f, total, nil
}
