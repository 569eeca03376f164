package demux

import "testing"

func TestParseAV1SequenceHeaderReducedMonochrome(t *testing.T) {
	t.Parallel()
	// Hand-constructed reduced_still_picture_header sequence header:
	// profile 0, level 8, 640x480, 10-bit monochrome.
	payload := []byte{0x18, 0x00, 0x22, 0x66, 0x7F, 0x77, 0xC0, 0xD0}

	info, err := ParseAV1SequenceHeader(payload)
	if err != nil {
		t.Fatalf("ParseAV1SequenceHeader error: %v", err)
	}

	if info.SeqProfile != 0 {
		t.Errorf("SeqProfile: got %d, want 0", info.SeqProfile)
	}
	if info.SeqLevelIdx0 != 8 {
		t.Errorf("SeqLevelIdx0: got %d, want 8", info.SeqLevelIdx0)
	}
	if info.SeqTier0 != 0 {
		t.Errorf("SeqTier0: got %d, want 0", info.SeqTier0)
	}
	if !info.HighBitdepth {
		t.Error("HighBitdepth: got false, want true")
	}
	if info.BitDepth() != 10 {
		t.Errorf("BitDepth(): got %d, want 10", info.BitDepth())
	}
	if !info.Monochrome {
		t.Error("Monochrome: got false, want true")
	}
	if info.ChromaSubX != 1 || info.ChromaSubY != 1 {
		t.Errorf("chroma subsampling: got (%d,%d), want (1,1)", info.ChromaSubX, info.ChromaSubY)
	}
}

func TestParseAV1SequenceHeaderTooShort(t *testing.T) {
	t.Parallel()
	_, err := ParseAV1SequenceHeader([]byte{0x18})
	if err == nil {
		t.Error("expected error for too-short sequence header")
	}
}

func TestOBUHeaderType(t *testing.T) {
	t.Parallel()
	// obu_header: forbidden(1)=0 | obu_type(4) | ext(1)=0 | has_size(1)=1 | reserved(1)=0
	got := OBUHeaderType(0x0A) // type=1 (sequence header): 0_0001_0_1_0 = 0x0A
	if got != OBUSequenceHeader {
		t.Errorf("OBUHeaderType(0x0A) = %d, want %d", got, OBUSequenceHeader)
	}
}
