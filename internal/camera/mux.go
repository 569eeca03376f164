package camera

import (
	"encoding/binary"

	"github.com/zsiec/xoq/internal/moq"
)

// box wraps payload in a standard ISOBMFF box: [size:u32][fourcc][payload].
func box(fourcc string, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(8+len(payload)))
	copy(buf[4:8], fourcc)
	copy(buf[8:], payload)
	return buf
}

func u32(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

func u16(v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return b[:]
}

// Muxer turns EncodedFrame access units into CMAF-compatible
// fragmented MP4: an init segment (ftyp+moov) whenever the decoder
// configuration changes (every keyframe, per spec.md §4.7), and one
// moof+mdat media segment per frame thereafter. It reuses the
// teacher's internal/moq decoder-config builders (BuildAVCDecoderConfig/
// BuildHEVCDecoderConfig/BuildAV1DecoderConfig/AnnexBToAVC1) verbatim —
// they already implement exactly the ISO-14496-15 records this muxer
// needs.
type Muxer struct {
	Width, Height uint16
	TrackID       uint32

	seq uint32
}

// NewMuxer constructs a Muxer for one video-like track.
func NewMuxer(width, height uint16, trackID uint32) *Muxer {
	return &Muxer{Width: width, Height: height, TrackID: trackID}
}

// BuildInitSegment builds ftyp+moov for f's codec, using f's parameter
// sets. Call this once per keyframe (spec.md §4.7: "muxer emits a
// fresh init segment at every keyframe").
func (m *Muxer) BuildInitSegment(f EncodedFrame) []byte {
	var sampleEntry []byte
	switch f.Codec {
	case "h264":
		cfg := moq.BuildAVCDecoderConfig(f.SPS, f.PPS)
		sampleEntry = m.avcSampleEntry(cfg)
	case "h265":
		cfg := moq.BuildHEVCDecoderConfig(f.VPS, f.SPS, f.PPS)
		sampleEntry = m.hevcSampleEntry(cfg)
	case "av1":
		cfg := moq.BuildAV1DecoderConfig(f.SeqHeaderOBU)
		sampleEntry = m.av1SampleEntry(cfg)
	default:
		return nil
	}

	ftyp := box("ftyp", append(append([]byte("iso5"), u32(0)...), []byte("iso5iso6mp41")...))
	moov := m.buildMoov(sampleEntry)
	return append(ftyp, moov...)
}

func (m *Muxer) buildMoov(sampleEntry []byte) []byte {
	mvhd := box("mvhd", concat(make([]byte, 12), u32(1000), u32(0), make([]byte, 76)))

	tkhd := box("tkhd", concat(
		[]byte{0, 0, 0, 7}, make([]byte, 8), u32(m.TrackID), u32(0), u32(0),
		make([]byte, 44), u16(m.Width), []byte{0, 0}, u16(m.Height), []byte{0, 0},
	))

	mdhd := box("mdhd", concat(make([]byte, 12), u32(1000), u32(0), []byte{0x55, 0xc4, 0, 0}))
	hdlr := box("hdlr", concat(make([]byte, 8), []byte("vide"), make([]byte, 12), []byte("XoQVideoHandler\x00")))
	vmhd := box("vmhd", concat([]byte{0, 0, 0, 1}, make([]byte, 8)))

	stsd := box("stsd", concat(u32(0), u32(1), sampleEntry))
	stts := box("stts", concat(u32(0), u32(0)))
	stsc := box("stsc", concat(u32(0), u32(0)))
	stsz := box("stsz", concat(u32(0), u32(0), u32(0)))
	stco := box("stco", concat(u32(0), u32(0)))
	stbl := box("stbl", concat(stsd, stts, stsc, stsz, stco))

	dref := box("dref", concat(u32(0), u32(1), box("url ", []byte{0, 0, 0, 1})))
	dinf := box("dinf", dref)
	minf := box("minf", concat(vmhd, dinf, stbl))
	mdia := box("mdia", concat(mdhd, hdlr, minf))
	trak := box("trak", concat(tkhd, mdia))

	trex := box("trex", concat(u32(0), u32(m.TrackID), u32(1), u32(0), u32(0), u32(0x10000), u32(0)))
	mvex := box("mvex", trex)

	return box("moov", concat(mvhd, trak, mvex))
}

func (m *Muxer) avcSampleEntry(avcC []byte) []byte {
	return m.visualSampleEntry("avc1", box("avcC", avcC))
}

func (m *Muxer) hevcSampleEntry(hvcC []byte) []byte {
	return m.visualSampleEntry("hev1", box("hvcC", hvcC))
}

func (m *Muxer) av1SampleEntry(av1C []byte) []byte {
	return m.visualSampleEntry("av01", box("av1C", av1C))
}

// visualSampleEntry builds the fixed 78-byte VisualSampleEntry header
// (ISO 14496-12 §8.5.2.2) followed by a codec-specific config box.
func (m *Muxer) visualSampleEntry(fourcc string, configBox []byte) []byte {
	body := make([]byte, 0, 78+len(configBox))
	body = append(body, make([]byte, 6)...)  // reserved
	body = append(body, u16(1)...)           // data_reference_index
	body = append(body, make([]byte, 16)...) // pre_defined + reserved
	body = append(body, u16(m.Width)...)
	body = append(body, u16(m.Height)...)
	body = append(body, u32(0x00480000)...) // horizresolution 72dpi
	body = append(body, u32(0x00480000)...) // vertresolution 72dpi
	body = append(body, u32(0)...)          // reserved
	body = append(body, u16(1)...)          // frame_count
	body = append(body, make([]byte, 32)...) // compressorname
	body = append(body, u16(0x0018)...)     // depth
	body = append(body, []byte{0xFF, 0xFF}...) // pre_defined = -1
	body = append(body, configBox...)
	return box(fourcc, body)
}

// BuildMediaSegment builds moof+mdat for one access unit, converting
// its NAL units (or OBUs, passed through as-is) to length-prefixed
// sample data via the teacher's AnnexBToAVC1.
func (m *Muxer) BuildMediaSegment(f EncodedFrame) []byte {
	var sample []byte
	if f.Codec == "av1" {
		sample = joinOBUs(f.Units)
	} else {
		sample = annexBUnits(f.Units)
	}

	m.seq++
	mfhd := box("mfhd", u32(m.seq))

	var flags uint32 = 0x020000 // default-base-is-moof; per-sample values come from trun
	tfhd := box("tfhd", append([]byte{0, byte(flags >> 16), byte(flags >> 8), byte(flags)}, u32(m.TrackID)...))
	tfdt := box("tfdt", concat([]byte{1, 0, 0, 0}, u32(0), u32(uint32(f.PTS))))

	sampleFlags := uint32(0x00010000) // sample_is_non_sync_sample = 1 (not a keyframe)
	if f.IsKeyframe {
		sampleFlags = 0
	}
	trunFlags := []byte{0, 0, 0x02, 0x05} // data-offset, first-sample-flags, sample-size present
	trun := box("trun", concat(trunFlags, u32(1), u32(0), u32(sampleFlags), u32(uint32(len(sample)))))

	traf := box("traf", concat(tfhd, tfdt, trun))
	moof := box("moof", concat(mfhd, traf))
	mdat := box("mdat", sample)
	return append(moof, mdat...)
}

func annexBUnits(units [][]byte) []byte {
	return moq.AnnexBToAVC1(prefixStartCodes(units))
}

// prefixStartCodes re-adds a 4-byte Annex B start code to each unit so
// AnnexBToAVC1's stripStartCode logic (which expects one) applies
// uniformly regardless of whether the caller's units already carry one.
func prefixStartCodes(units [][]byte) [][]byte {
	out := make([][]byte, len(units))
	for i, u := range units {
		if len(u) >= 4 && u[0] == 0 && u[1] == 0 && u[2] == 0 && u[3] == 1 {
			out[i] = u
			continue
		}
		out[i] = append([]byte{0, 0, 0, 1}, u...)
	}
	return out
}

func joinOBUs(obus [][]byte) []byte {
	var total int
	for _, o := range obus {
		total += len(o)
	}
	out := make([]byte, 0, total)
	for _, o := range obus {
		out = append(out, o...)
	}
	return out
}

func concat(parts ...[]byte) []byte {
	var total int
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
