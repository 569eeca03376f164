package moq

import (
	"testing"
	"testing/quick"

	"github.com/quic-go/quic-go/quicvarint"
	"github.com/stretchr/testify/require"
)

// TestVarintRoundTrip checks spec.md's varint invariant: for all
// v in [0, 2^62), decode(encode(v)) == v.
func TestVarintRoundTrip(t *testing.T) {
	f := func(v uint64) bool {
		v &= (1 << 62) - 1
		buf := quicvarint.Append(nil, v)
		got, n, err := quicvarint.Parse(buf)
		return err == nil && n == len(buf) && got == v
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 5000}))
}

// TestVarintMinimumTagEncoding checks that encoding always picks the
// smallest tag (length class) that can hold the value, per spec.md §4.2.
func TestVarintMinimumTagEncoding(t *testing.T) {
	cases := []struct {
		v       uint64
		wantLen int
	}{
		{0, 1},
		{63, 1},
		{64, 2},
		{16383, 2},
		{16384, 4},
		{1<<30 - 1, 4},
		{1 << 30, 8},
		{(1 << 62) - 1, 8},
	}
	for _, c := range cases {
		buf := quicvarint.Append(nil, c.v)
		if len(buf) != c.wantLen {
			t.Errorf("Append(%d): got length %d, want %d", c.v, len(buf), c.wantLen)
		}
	}
}
