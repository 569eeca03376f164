package moq

import (
	"bytes"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// maxControlMsgSize bounds the size field read from an untrusted peer so a
// corrupt or hostile size prefix cannot trigger an unbounded allocation.
const maxControlMsgSize = 1 << 20

// writeSizePrefixed writes a QUIC-varint length prefix followed by body,
// per spec.md §4.2's "size-prefixed" message framing.
func writeSizePrefixed(w io.Writer, body []byte) error {
	buf := quicvarint.Append(nil, uint64(len(body)))
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// readSizePrefixed reads one size-prefixed message body from r.
func readSizePrefixed(r io.Reader) ([]byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReader{r: r}
	}
	size, err := quicvarint.Read(br)
	if err != nil {
		return nil, err
	}
	if size > maxControlMsgSize {
		return nil, &ParseError{Field: "size", Err: fmt.Errorf("message size %d exceeds limit", size)}
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, &ParseError{Field: "body", Err: err}
	}
	return body, nil
}

// byteReader adapts an io.Reader without ReadByte (quicvarint.Read needs
// io.ByteReader) by reading one byte at a time.
type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}

// appendString appends a QUIC-varint length prefix followed by s's bytes.
func appendString(buf []byte, s string) []byte {
	buf = quicvarint.Append(buf, uint64(len(s)))
	return append(buf, s...)
}

// readString reads a varint-length-prefixed string from br.
func readString(br *bytes.Reader) (string, error) {
	n, err := quicvarint.Read(br)
	if err != nil {
		return "", &ParseError{Field: "string_len", Err: err}
	}
	if uint64(br.Len()) < n {
		return "", &ParseError{Field: "string_data", Err: io.ErrUnexpectedEOF}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return "", &ParseError{Field: "string_data", Err: err}
	}
	return string(buf), nil
}

// ReadControlMessage reads one size-prefixed control message and
// returns its msg_type discriminator alongside the full raw body, so a
// session dispatch loop can decide which Parse* function to call
// without guessing the message kind from context.
func ReadControlMessage(r io.Reader) (msgType uint64, body []byte, err error) {
	body, err = readSizePrefixed(r)
	if err != nil {
		return 0, nil, err
	}
	msgType, _, err = peekMsgType(body)
	if err != nil {
		return 0, nil, err
	}
	return msgType, body, nil
}

// peekMsgType reads the leading msg_type varint from a control message
// body without consuming bytes the caller still needs; it returns the type
// and a reader positioned just after it.
func peekMsgType(body []byte) (msgType uint64, rest *bytes.Reader, err error) {
	br := bytes.NewReader(body)
	msgType, err = quicvarint.Read(br)
	if err != nil {
		return 0, nil, &ParseError{Field: "msg_type", Err: err}
	}
	return msgType, br, nil
}
