// Package moq implements the XoQ MoQ wire-protocol codec: QUIC-varint
// control message framing (session setup, announce, subscribe), the
// group/frame data-stream format, and media format conversion (Annex B
// to AVC1, ADTS stripping, decoder configuration records for H.264,
// HEVC, and AV1).
//
// This package contains no session state machines or relay logic; those
// live in [github.com/zsiec/xoq/internal/moqsession].
package moq
