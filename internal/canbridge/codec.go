package canbridge

import (
	"encoding/binary"
	"fmt"

	"github.com/zsiec/xoq/media"
)

// wireHeaderSize is the fixed part of the wire frame: flags, can_id,
// and the data length byte, per spec.md §3.
const wireHeaderSize = 1 + 4 + 1

// EncodeFrame serializes f into the client<->server wire format:
// [flags:u8][can_id:u32 LE][len:u8][data].
func EncodeFrame(f media.CANFrame) []byte {
	buf := make([]byte, wireHeaderSize+len(f.Data))
	buf[0] = f.Flags
	binary.LittleEndian.PutUint32(buf[1:5], f.ID)
	buf[5] = byte(len(f.Data))
	copy(buf[6:], f.Data)
	return buf
}

// DecodeFrame parses one complete wire frame produced by EncodeFrame.
// Callers are responsible for reassembling a complete frame out of a
// byte stream before calling DecodeFrame; a read must yield a whole
// frame, and short reads re-buffer (spec.md §4.6) rather than being
// passed here piecemeal.
func DecodeFrame(b []byte) (media.CANFrame, error) {
	if len(b) < wireHeaderSize {
		return media.CANFrame{}, fmt.Errorf("canbridge: short frame header (%d bytes)", len(b))
	}
	flags := b[0]
	id := binary.LittleEndian.Uint32(b[1:5])
	n := int(b[5])
	if len(b) < wireHeaderSize+n {
		return media.CANFrame{}, fmt.Errorf("canbridge: truncated frame data (want %d, have %d)", n, len(b)-wireHeaderSize)
	}
	data := append([]byte(nil), b[wireHeaderSize:wireHeaderSize+n]...)
	return media.CANFrame{Flags: flags, ID: id, Data: data}, nil
}

// wireFrameLen returns the total length of the wire frame that starts
// at b, or 0 if b does not yet contain a complete header.
func wireFrameLen(b []byte) int {
	if len(b) < wireHeaderSize {
		return 0
	}
	return wireHeaderSize + int(b[5])
}
