package media

import (
	"encoding/binary"
	"fmt"
)

// canHeaderSize is the fixed header size of the CAN wire frame: flags(1)
// + can_id(4) + len(1), per spec.md §3.
const canHeaderSize = 6

// maxCANFDPayload is the largest payload a CAN-FD frame may carry.
const maxCANFDPayload = 64

// EncodeCANFrame serializes f into the wire format described in spec.md
// §3: [flags:u8][can_id:u32 LE][len:u8][data...].
func EncodeCANFrame(f CANFrame) ([]byte, error) {
	if len(f.Data) > maxCANFDPayload {
		return nil, fmt.Errorf("media: CAN payload too large: %d > %d", len(f.Data), maxCANFDPayload)
	}

	buf := make([]byte, canHeaderSize+len(f.Data))
	buf[0] = f.Flags
	binary.LittleEndian.PutUint32(buf[1:5], f.ID)
	buf[5] = byte(len(f.Data))
	copy(buf[canHeaderSize:], f.Data)
	return buf, nil
}

// DecodeCANFrame parses one whole CAN wire frame from the front of buf,
// returning the frame and the number of bytes consumed. It returns
// ErrShortCANFrame if buf does not yet contain a complete frame; callers
// must re-buffer and retry once more data arrives, never forwarding a
// partial frame (spec.md §3 invariant).
func DecodeCANFrame(buf []byte) (CANFrame, int, error) {
	if len(buf) < canHeaderSize {
		return CANFrame{}, 0, ErrShortCANFrame
	}

	length := int(buf[5])
	total := canHeaderSize + length
	if len(buf) < total {
		return CANFrame{}, 0, ErrShortCANFrame
	}

	data := make([]byte, length)
	copy(data, buf[canHeaderSize:total])

	f := CANFrame{
		Flags: buf[0],
		ID:    binary.LittleEndian.Uint32(buf[1:5]),
		Data:  data,
	}
	return f, total, nil
}

// ErrShortCANFrame indicates buf does not yet contain a complete CAN
// wire frame; the caller should buffer more bytes and retry.
var ErrShortCANFrame = fmt.Errorf("media: incomplete CAN frame")
