package moq

import (
	"errors"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// dataTypeGroup is the leading discriminator on a group's unidirectional
// stream; XoQ defines only the group data type, per spec.md §4.2.
const dataTypeGroup = 0

// GroupHeader is the first size-prefixed message on a group's
// unidirectional stream.
type GroupHeader struct {
	SubscribeID   uint64
	GroupSequence uint64
}

// WriteGroupHeader serializes and writes a GroupHeader at the start of a
// freshly opened unidirectional stream.
func WriteGroupHeader(w io.Writer, h GroupHeader) error {
	body := quicvarint.Append(nil, dataTypeGroup)
	body = quicvarint.Append(body, h.SubscribeID)
	body = quicvarint.Append(body, h.GroupSequence)
	return writeSizePrefixed(w, body)
}

// ReadGroupHeader reads and parses a GroupHeader from the start of a
// group's unidirectional stream.
func ReadGroupHeader(r io.Reader) (GroupHeader, error) {
	body, err := readSizePrefixed(r)
	if err != nil {
		return GroupHeader{}, err
	}
	dataType, br, err := peekMsgType(body)
	if err != nil {
		return GroupHeader{}, err
	}
	if dataType != dataTypeGroup {
		return GroupHeader{}, &ParseError{Field: "data_type", Err: ErrUnknownMsgType}
	}

	subID, err := quicvarint.Read(br)
	if err != nil {
		return GroupHeader{}, &ParseError{Field: "subscribe_id", Err: err}
	}
	seq, err := quicvarint.Read(br)
	if err != nil {
		return GroupHeader{}, &ParseError{Field: "group_sequence", Err: err}
	}
	return GroupHeader{SubscribeID: subID, GroupSequence: seq}, nil
}

// WriteFrame writes one size-prefixed frame within a group. The caller
// closes the stream (with FIN, or with a reset carrying a
// StreamResetError code) once the group ends.
func WriteFrame(w io.Writer, frame []byte) error {
	return writeSizePrefixed(w, frame)
}

// ReadFrame reads one size-prefixed frame from a group stream. It returns
// *StreamEndedError when the stream ends cleanly (FIN) between frames,
// which per spec.md §4.2 is the normal group boundary, not a failure.
func ReadFrame(r io.Reader) ([]byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReader{r: r}
	}
	size, err := quicvarint.Read(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &StreamEndedError{}
		}
		return nil, err
	}
	if size > maxControlMsgSize {
		return nil, &ParseError{Field: "frame_size", Err: errors.New("frame size exceeds limit")}
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, &ParseError{Field: "frame_data", Err: err}
	}
	return frame, nil
}
