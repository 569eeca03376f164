package moq

import (
	"bytes"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// msgTypeSubscribe is the control-message discriminator for subscribe
// requests, per spec.md §4.2.
const msgTypeSubscribe = 2

// MsgTypeSubscribe is the exported form of msgTypeSubscribe, for
// dispatch loops that branch on ReadControlMessage's msgType before
// picking a Parse* function.
const MsgTypeSubscribe = msgTypeSubscribe

// SubscribeRequest asks the peer to start delivering groups for one track.
// Priority is a signed offset from 128: lower values are delivered (and,
// under backpressure, retained) with higher preference.
type SubscribeRequest struct {
	SubscribeID   uint64
	BroadcastPath string
	TrackName     string
	Priority      int8
}

// SubscribeOk acknowledges a SubscribeRequest; groups begin arriving on
// unidirectional streams after this reply.
type SubscribeOk struct {
	SubscribeID uint64
}

// WriteSubscribeRequest serializes and writes a SubscribeRequest.
func WriteSubscribeRequest(w io.Writer, req SubscribeRequest) error {
	body := quicvarint.Append(nil, msgTypeSubscribe)
	body = quicvarint.Append(body, req.SubscribeID)
	body = appendString(body, req.BroadcastPath)
	body = appendString(body, req.TrackName)
	body = append(body, byte(int16(req.Priority)+128))
	return writeSizePrefixed(w, body)
}

// ReadSubscribeRequest reads and parses a SubscribeRequest from r.
func ReadSubscribeRequest(r io.Reader) (SubscribeRequest, error) {
	body, err := readSizePrefixed(r)
	if err != nil {
		return SubscribeRequest{}, err
	}
	return ParseSubscribeRequest(body)
}

// ParseSubscribeRequest parses an already-read control message body as
// a SubscribeRequest. Used by dispatch loops that read the message
// with ReadControlMessage first to decide the message kind.
func ParseSubscribeRequest(body []byte) (SubscribeRequest, error) {
	msgType, br, err := peekMsgType(body)
	if err != nil {
		return SubscribeRequest{}, err
	}
	if msgType != msgTypeSubscribe {
		return SubscribeRequest{}, &ParseError{Field: "msg_type", Err: ErrUnknownMsgType}
	}

	subID, err := quicvarint.Read(br)
	if err != nil {
		return SubscribeRequest{}, &ParseError{Field: "subscribe_id", Err: err}
	}
	path, err := readString(br)
	if err != nil {
		return SubscribeRequest{}, err
	}
	track, err := readString(br)
	if err != nil {
		return SubscribeRequest{}, err
	}
	priorityByte, err := br.ReadByte()
	if err != nil {
		return SubscribeRequest{}, &ParseError{Field: "priority", Err: err}
	}

	return SubscribeRequest{
		SubscribeID:   subID,
		BroadcastPath: path,
		TrackName:     track,
		Priority:      int8(int16(priorityByte) - 128),
	}, nil
}

// WriteSubscribeOk serializes and writes a SubscribeOk.
func WriteSubscribeOk(w io.Writer, ok SubscribeOk) error {
	body := quicvarint.Append(nil, ok.SubscribeID)
	return writeSizePrefixed(w, body)
}

// ReadSubscribeOk reads and parses a SubscribeOk from r.
func ReadSubscribeOk(r io.Reader) (SubscribeOk, error) {
	body, err := readSizePrefixed(r)
	if err != nil {
		return SubscribeOk{}, err
	}
	br := bytes.NewReader(body)
	subID, err := quicvarint.Read(br)
	if err != nil {
		return SubscribeOk{}, &ParseError{Field: "subscribe_id", Err: err}
	}
	return SubscribeOk{SubscribeID: subID}, nil
}
