package moq

import (
	"bytes"
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// VersionXoQ1 is the only version XoQ currently speaks. Version
// identifiers are opaque 32-bit magic constants, per spec.md §4.2.
const VersionXoQ1 uint32 = 0xff0a0001

// ClientSetup is the first message a subscriber or publisher writes on a
// freshly opened bidirectional control stream.
type ClientSetup struct {
	Versions   []uint32
	Extensions []byte
}

// ServerSetup is the relay's reply, selecting one of the client's offered
// versions.
type ServerSetup struct {
	Version    uint32
	Extensions []byte
}

// WriteClientSetup serializes and writes a ClientSetup message.
func WriteClientSetup(w io.Writer, s ClientSetup) error {
	body := quicvarint.Append(nil, uint64(len(s.Versions)))
	for _, v := range s.Versions {
		body = quicvarint.Append(body, uint64(v))
	}
	body = quicvarint.Append(body, uint64(len(s.Extensions)))
	body = append(body, s.Extensions...)
	return writeSizePrefixed(w, body)
}

// ReadClientSetup reads and parses a ClientSetup message from r.
func ReadClientSetup(r io.Reader) (ClientSetup, error) {
	body, err := readSizePrefixed(r)
	if err != nil {
		return ClientSetup{}, err
	}
	br := bytes.NewReader(body)

	count, err := quicvarint.Read(br)
	if err != nil {
		return ClientSetup{}, &ParseError{Field: "version_count", Err: err}
	}
	versions := make([]uint32, 0, count)
	for i := uint64(0); i < count; i++ {
		v, err := quicvarint.Read(br)
		if err != nil {
			return ClientSetup{}, &ParseError{Field: "version", Err: err}
		}
		versions = append(versions, uint32(v))
	}

	extLen, err := quicvarint.Read(br)
	if err != nil {
		return ClientSetup{}, &ParseError{Field: "extensions_len", Err: err}
	}
	ext := make([]byte, extLen)
	if _, err := io.ReadFull(br, ext); err != nil {
		return ClientSetup{}, &ParseError{Field: "extensions", Err: err}
	}

	return ClientSetup{Versions: versions, Extensions: ext}, nil
}

// WriteServerSetup serializes and writes a ServerSetup message.
func WriteServerSetup(w io.Writer, s ServerSetup) error {
	body := quicvarint.Append(nil, uint64(s.Version))
	body = quicvarint.Append(body, uint64(len(s.Extensions)))
	body = append(body, s.Extensions...)
	return writeSizePrefixed(w, body)
}

// ReadServerSetup reads and parses a ServerSetup message from r.
func ReadServerSetup(r io.Reader) (ServerSetup, error) {
	body, err := readSizePrefixed(r)
	if err != nil {
		return ServerSetup{}, err
	}
	br := bytes.NewReader(body)

	version, err := quicvarint.Read(br)
	if err != nil {
		return ServerSetup{}, &ParseError{Field: "version", Err: err}
	}
	extLen, err := quicvarint.Read(br)
	if err != nil {
		return ServerSetup{}, &ParseError{Field: "extensions_len", Err: err}
	}
	ext := make([]byte, extLen)
	if _, err := io.ReadFull(br, ext); err != nil {
		return ServerSetup{}, &ParseError{Field: "extensions", Err: err}
	}

	return ServerSetup{Version: uint32(version), Extensions: ext}, nil
}

// NegotiateVersion picks the first version in offered that also appears in
// supported, returning ErrVersionMismatch if none match.
func NegotiateVersion(offered []uint32, supported []uint32) (uint32, error) {
	for _, o := range offered {
		for _, s := range supported {
			if o == s {
				return o, nil
			}
		}
	}
	return 0, ErrVersionMismatch
}
