package canbridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zsiec/xoq/media"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	cases := []media.CANFrame{
		{Flags: 0, ID: 0x123, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{Flags: media.CANFlagExtendedID, ID: 0x1ABCDEF, Data: []byte{0xFF}},
		{Flags: media.CANFlagRemote, ID: 0x7FF, Data: nil},
		{Flags: media.CANFlagFD | media.CANFlagBRS | media.CANFlagESI, ID: 0x10,
			Data: make([]byte, 64)},
	}
	for _, f := range cases {
		encoded := EncodeFrame(f)
		decoded, err := DecodeFrame(encoded)
		require.NoError(t, err)
		require.Equal(t, f.Flags, decoded.Flags)
		require.Equal(t, f.ID, decoded.ID)
		require.Equal(t, f.Data, decoded.Data)
	}
}

func TestDecodeFrameRejectsShortHeader(t *testing.T) {
	_, err := DecodeFrame([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDecodeFrameRejectsTruncatedData(t *testing.T) {
	f := media.CANFrame{ID: 1, Data: []byte{1, 2, 3, 4}}
	encoded := EncodeFrame(f)
	_, err := DecodeFrame(encoded[:len(encoded)-1])
	require.Error(t, err)
}

func TestWireFrameLenReportsIncompleteHeader(t *testing.T) {
	require.Equal(t, 0, wireFrameLen([]byte{1, 2}))
	f := media.CANFrame{ID: 1, Data: []byte{1, 2, 3}}
	encoded := EncodeFrame(f)
	require.Equal(t, len(encoded), wireFrameLen(encoded))
}
