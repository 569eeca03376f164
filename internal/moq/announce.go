package moq

import (
	"bytes"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// msgTypeAnnounce is the control-message discriminator for discovery
// requests, per spec.md §4.2.
const msgTypeAnnounce = 1

// MsgTypeAnnounce is the exported form of msgTypeAnnounce, for dispatch
// loops that branch on ReadControlMessage's msgType before picking a
// Parse* function.
const MsgTypeAnnounce = msgTypeAnnounce

// AnnounceRequest opens discovery for broadcasts under Prefix.
type AnnounceRequest struct {
	Prefix string
}

// AnnounceResponse lists the broadcast paths currently active under the
// requested prefix, sent once before the stream switches to incremental
// Announcement messages.
type AnnounceResponse struct {
	Paths []string
}

// Announcement is one incremental discovery update: a broadcast path
// becoming active or inactive under a subscribed prefix.
type Announcement struct {
	Active bool
	Path   string
}

// WriteAnnounceRequest serializes and writes an AnnounceRequest.
func WriteAnnounceRequest(w io.Writer, req AnnounceRequest) error {
	body := quicvarint.Append(nil, msgTypeAnnounce)
	body = appendString(body, req.Prefix)
	return writeSizePrefixed(w, body)
}

// ReadAnnounceRequest reads and parses an AnnounceRequest from r.
func ReadAnnounceRequest(r io.Reader) (AnnounceRequest, error) {
	body, err := readSizePrefixed(r)
	if err != nil {
		return AnnounceRequest{}, err
	}
	return ParseAnnounceRequest(body)
}

// ParseAnnounceRequest parses an already-read control message body as
// an AnnounceRequest. Used by dispatch loops that read the message
// with ReadControlMessage first to decide the message kind.
func ParseAnnounceRequest(body []byte) (AnnounceRequest, error) {
	msgType, br, err := peekMsgType(body)
	if err != nil {
		return AnnounceRequest{}, err
	}
	if msgType != msgTypeAnnounce {
		return AnnounceRequest{}, &ParseError{Field: "msg_type", Err: ErrUnknownMsgType}
	}
	prefix, err := readString(br)
	if err != nil {
		return AnnounceRequest{}, err
	}
	return AnnounceRequest{Prefix: prefix}, nil
}

// WriteAnnounceResponse serializes and writes an AnnounceResponse.
func WriteAnnounceResponse(w io.Writer, resp AnnounceResponse) error {
	body := quicvarint.Append(nil, uint64(len(resp.Paths)))
	for _, p := range resp.Paths {
		body = appendString(body, p)
	}
	return writeSizePrefixed(w, body)
}

// ReadAnnounceResponse reads and parses an AnnounceResponse from r.
func ReadAnnounceResponse(r io.Reader) (AnnounceResponse, error) {
	body, err := readSizePrefixed(r)
	if err != nil {
		return AnnounceResponse{}, err
	}
	br := bytes.NewReader(body)

	count, err := quicvarint.Read(br)
	if err != nil {
		return AnnounceResponse{}, &ParseError{Field: "path_count", Err: err}
	}
	paths := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		p, err := readString(br)
		if err != nil {
			return AnnounceResponse{}, err
		}
		paths = append(paths, p)
	}
	return AnnounceResponse{Paths: paths}, nil
}

// WriteAnnouncement serializes and writes one incremental Announcement.
func WriteAnnouncement(w io.Writer, a Announcement) error {
	var active byte
	if a.Active {
		active = 1
	}
	body := append([]byte{active}, appendString(nil, a.Path)...)
	return writeSizePrefixed(w, body)
}

// ReadAnnouncement reads and parses one incremental Announcement from r.
// Callers should treat io.EOF from the underlying stream as the end of
// discovery (the subscriber closed the stream).
func ReadAnnouncement(r io.Reader) (Announcement, error) {
	body, err := readSizePrefixed(r)
	if err != nil {
		return Announcement{}, err
	}
	if len(body) < 1 {
		return Announcement{}, &ParseError{Field: "active", Err: io.ErrUnexpectedEOF}
	}
	br := bytes.NewReader(body[1:])
	path, err := readString(br)
	if err != nil {
		return Announcement{}, err
	}
	return Announcement{Active: body[0] != 0, Path: path}, nil
}
