package demux

import "testing"

func TestParseAnnexB(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xE0, 0x1E,
		0x00, 0x00, 0x00, 0x01, 0x68, 0xCE, 0x38, 0x80,
		0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00, 0xFF, 0xFE,
	}

	nalus := ParseAnnexB(data)
	if len(nalus) != 3 {
		t.Fatalf("expected 3 NAL units, got %d", len(nalus))
	}

	if nalus[0].Type != NALTypeSPS || !IsSPS(nalus[0].Type) {
		t.Errorf("expected SPS, got %d", nalus[0].Type)
	}
	if nalus[1].Type != NALTypePPS || !IsPPS(nalus[1].Type) {
		t.Errorf("expected PPS, got %d", nalus[1].Type)
	}
	if nalus[2].Type != NALTypeIDR || !IsKeyframe(nalus[2].Type) {
		t.Errorf("expected IDR, got %d", nalus[2].Type)
	}
}

func TestParseAnnexB3ByteStartCode(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x01, 0x67, 0x42, 0xE0,
		0x00, 0x00, 0x01, 0x65, 0x88, 0x84,
	}

	nalus := ParseAnnexB(data)
	if len(nalus) != 2 {
		t.Fatalf("expected 2 NAL units, got %d", len(nalus))
	}
	if nalus[0].Type != NALTypeSPS {
		t.Errorf("expected SPS, got %d", nalus[0].Type)
	}
	if nalus[1].Type != NALTypeIDR {
		t.Errorf("expected IDR, got %d", nalus[1].Type)
	}
}

func TestParseAnnexBEmpty(t *testing.T) {
	t.Parallel()
	if ParseAnnexB(nil) != nil {
		t.Error("expected nil for empty input")
	}
	if ParseAnnexB([]byte{0x00, 0x01}) != nil {
		t.Error("expected nil for too-short input")
	}
}

func TestParseAnnexBMixed3And4ByteStartCodes(t *testing.T) {
	t.Parallel()
	data := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x42,
		0x00, 0x00, 0x01, 0x68, 0xCE,
		0x00, 0x00, 0x00, 0x01, 0x06, 0xFF, 0xFE,
		0x00, 0x00, 0x01, 0x65, 0x88,
	}

	nalus := ParseAnnexB(data)
	if len(nalus) != 4 {
		t.Fatalf("expected 4 NAL units, got %d", len(nalus))
	}
	wantTypes := []byte{NALTypeSPS, NALTypePPS, NALTypeSEI, NALTypeIDR}
	for i, want := range wantTypes {
		if nalus[i].Type != want {
			t.Errorf("NALU[%d]: got type %d, want %d", i, nalus[i].Type, want)
		}
	}
}

func TestParseSPS720p(t *testing.T) {
	t.Parallel()
	sps := []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
		0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
		0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
	}

	info, err := ParseSPS(sps)
	if err != nil {
		t.Fatalf("ParseSPS error: %v", err)
	}
	if info.Width != 1280 {
		t.Errorf("width: got %d, want 1280", info.Width)
	}
	if info.Height != 720 {
		t.Errorf("height: got %d, want 720", info.Height)
	}
}

func TestParseSPS256x192(t *testing.T) {
	t.Parallel()
	sps := []byte{
		0x67, 0x4d, 0x40, 0x1f, 0xb9, 0x08, 0x08, 0x0c,
		0xd8, 0x0b, 0x50, 0x10, 0x10, 0x14, 0x00, 0x00,
		0x0f, 0xa4, 0x00, 0x02, 0xee, 0x03, 0x81, 0x80,
		0x04, 0x93, 0xc0, 0x02, 0x49, 0xe8, 0xa0, 0xc0,
		0x3a, 0x8e, 0x18, 0xc9,
	}

	info, err := ParseSPS(sps)
	if err != nil {
		t.Fatalf("ParseSPS error: %v", err)
	}
	if info.Width != 256 {
		t.Errorf("width: got %d, want 256", info.Width)
	}
	if info.Height != 192 {
		t.Errorf("height: got %d, want 192", info.Height)
	}
}

func TestParseSPSTooShort(t *testing.T) {
	t.Parallel()
	if _, err := ParseSPS([]byte{0x67, 0x64, 0x00}); err == nil {
		t.Error("expected error for too-short SPS")
	}
}

func TestParseSPSEmptyInput(t *testing.T) {
	t.Parallel()
	if _, err := ParseSPS(nil); err == nil {
		t.Error("expected error for nil input")
	}
	if _, err := ParseSPS([]byte{}); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestCodecString(t *testing.T) {
	t.Parallel()
	info := SPSInfo{ProfileIDC: 0x64, ConstraintFlags: 0x00, LevelIDC: 0x1f}
	want := "avc1.64001F"
	if info.CodecString() != want {
		t.Errorf("CodecString(): got %q, want %q", info.CodecString(), want)
	}
}
