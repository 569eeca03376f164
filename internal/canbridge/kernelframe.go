package canbridge

import (
	"encoding/binary"
	"fmt"

	"github.com/zsiec/xoq/media"
)

// Layout of Linux's struct can_frame / struct canfd_frame (include/uapi/
// linux/can.h), read and written without unsafe so the encode/decode is
// portable across the classic and FD shapes.
const (
	classicFrameSize = 16 // struct can_frame
	fdFrameSize      = 72 // struct canfd_frame

	canEFFFlag uint32 = 0x80000000 // frame format: extended (29-bit ID)
	canRTRFlag uint32 = 0x40000000 // remote transmission request
	canEFFMask uint32 = 0x1FFFFFFF
	canSFFMask uint32 = 0x000007FF

	canfdBRS byte = 0x01 // bit rate switch
	canfdESI byte = 0x02 // error state indicator
)

// decodeKernelFrame turns raw bytes read from a CAN_RAW socket into the
// client<->server wire format (EncodeFrame's output), translating the
// kernel's ID-flag-in-upper-bits encoding into media.CANFrame.Flags.
func decodeKernelFrame(raw []byte) ([]byte, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("canbridge: short kernel frame (%d bytes)", len(raw))
	}
	rawID := binary.LittleEndian.Uint32(raw[0:4])

	var flags byte
	var dlen int
	isFD := len(raw) >= fdFrameSize

	if isFD {
		dlen = int(raw[4])
		kflags := raw[5]
		flags |= media.CANFlagFD
		if kflags&canfdBRS != 0 {
			flags |= media.CANFlagBRS
		}
		if kflags&canfdESI != 0 {
			flags |= media.CANFlagESI
		}
	} else {
		dlen = int(raw[4])
		if dlen > 8 {
			dlen = 8
		}
	}
	if dlen > len(raw)-8 {
		dlen = len(raw) - 8
	}
	data := raw[8 : 8+dlen]

	var id uint32
	if rawID&canEFFFlag != 0 {
		flags |= media.CANFlagExtendedID
		id = rawID & canEFFMask
	} else {
		id = rawID & canSFFMask
	}
	if rawID&canRTRFlag != 0 {
		flags |= media.CANFlagRemote
	}

	frame := media.CANFrame{Flags: flags, ID: id, Data: append([]byte(nil), data...)}
	return EncodeFrame(frame), nil
}

// encodeKernelFrame builds the raw bytes a CAN_RAW socket expects for
// one frame decoded from the wire format.
func encodeKernelFrame(f media.CANFrame) []byte {
	kernelID := f.ID
	if f.Flags&media.CANFlagExtendedID != 0 {
		kernelID = (f.ID & canEFFMask) | canEFFFlag
	} else {
		kernelID = f.ID & canSFFMask
	}
	if f.Flags&media.CANFlagRemote != 0 {
		kernelID |= canRTRFlag
	}

	if f.Flags&media.CANFlagFD != 0 {
		buf := make([]byte, fdFrameSize)
		binary.LittleEndian.PutUint32(buf[0:4], kernelID)
		buf[4] = byte(len(f.Data))
		var kflags byte
		if f.Flags&media.CANFlagBRS != 0 {
			kflags |= canfdBRS
		}
		if f.Flags&media.CANFlagESI != 0 {
			kflags |= canfdESI
		}
		buf[5] = kflags
		copy(buf[8:], f.Data)
		return buf
	}

	buf := make([]byte, classicFrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], kernelID)
	n := len(f.Data)
	if n > 8 {
		n = 8
	}
	buf[4] = byte(n)
	copy(buf[8:], f.Data[:n])
	return buf
}
