package demux

import "errors"

// AV1 OBU types as defined in the AV1 Bitstream & Decoding Process
// Specification, section 6.2.2.
const (
	OBUSequenceHeader   = 1
	OBUTemporalDelim    = 2
	OBUFrameHeader      = 3
	OBUTileGroup        = 4
	OBUMetadata         = 5
	OBUFrame            = 6
	OBURedundantFrameHdr = 7
	OBUTileList         = 8
	OBUPadding          = 15
)

var errOBUTooShort = errors.New("demux: OBU data too short")

// OBUHeaderType extracts the obu_type field (4 bits) from an OBU header
// byte: forbidden(1) | obu_type(4) | extension_flag(1) | has_size_field(1) | reserved(1).
func OBUHeaderType(firstByte byte) byte {
	return (firstByte >> 3) & 0x0F
}

// AV1SequenceHeaderInfo holds the fields of an AV1 sequence header OBU
// needed to build an av1C decoder configuration record.
type AV1SequenceHeaderInfo struct {
	SeqProfile     byte
	SeqLevelIdx0   byte
	SeqTier0       byte
	HighBitdepth   bool
	TwelveBit      bool
	Monochrome     bool
	ChromaSubX     byte
	ChromaSubY     byte
	ChromaSamplePos byte
}

// BitDepth returns the coded bit depth implied by the profile and
// high_bitdepth/twelve_bit flags, per AV1 spec section 5.5.2.
func (s AV1SequenceHeaderInfo) BitDepth() int {
	if s.SeqProfile == 2 && s.HighBitdepth {
		if s.TwelveBit {
			return 12
		}
		return 10
	}
	if s.HighBitdepth {
		return 10
	}
	return 8
}

// ParseAV1SequenceHeader parses an AV1 sequence_header_obu payload
// (the OBU payload bytes, without the leading obu_header byte or
// leb128 size field) to extract the fields needed for av1C. It
// implements the subset of section 5.5 needed to reach color_config():
// operating point level/tier parsing and timing/decoder-model skipping,
// so bit alignment into color_config stays correct regardless of
// whether those optional sections are present.
func ParseAV1SequenceHeader(payload []byte) (AV1SequenceHeaderInfo, error) {
	if len(payload) < 2 {
		return AV1SequenceHeaderInfo{}, errOBUTooShort
	}

	br := newBitReader(payload)
	var info AV1SequenceHeaderInfo

	seqProfile, err := br.readBits(3)
	if err != nil {
		return info, err
	}
	info.SeqProfile = byte(seqProfile)

	if _, err := br.readBits(1); err != nil { // still_picture
		return info, err
	}
	reducedStillPicture, err := br.readBits(1)
	if err != nil {
		return info, err
	}

	decoderModelInfoPresent := false
	var bufferDelayLengthMinus1 uint

	if reducedStillPicture == 1 {
		if _, err := br.readBits(12); err != nil { // operating_point_idc[0]
			return info, err
		}
		level, err := br.readBits(5)
		if err != nil {
			return info, err
		}
		info.SeqLevelIdx0 = byte(level)
	} else {
		timingInfoPresent, err := br.readBits(1)
		if err != nil {
			return info, err
		}
		if timingInfoPresent == 1 {
			if _, err := br.readBits(32); err != nil { // num_units_in_display_tick
				return info, err
			}
			if _, err := br.readBits(32); err != nil { // time_scale
				return info, err
			}
			equalPictureInterval, err := br.readBits(1)
			if err != nil {
				return info, err
			}
			if equalPictureInterval == 1 {
				if _, err := br.readUE(); err != nil { // num_ticks_per_picture_minus_1 (uvlc)
					return info, err
				}
			}
			dmip, err := br.readBits(1)
			if err != nil {
				return info, err
			}
			decoderModelInfoPresent = dmip == 1
			if decoderModelInfoPresent {
				bdl, err := br.readBits(5)
				if err != nil {
					return info, err
				}
				bufferDelayLengthMinus1 = bdl
				if _, err := br.readBits(32); err != nil { // num_units_in_decoding_tick
					return info, err
				}
				if _, err := br.readBits(5); err != nil { // buffer_removal_time_length_minus_1
					return info, err
				}
				if _, err := br.readBits(5); err != nil { // frame_presentation_time_length_minus_1
					return info, err
				}
			}
		}

		initialDisplayDelayPresent, err := br.readBits(1)
		if err != nil {
			return info, err
		}

		opCntMinus1, err := br.readBits(5)
		if err != nil {
			return info, err
		}

		for i := uint(0); i <= opCntMinus1; i++ {
			if _, err := br.readBits(12); err != nil { // operating_point_idc[i]
				return info, err
			}
			level, err := br.readBits(5)
			if err != nil {
				return info, err
			}
			var tier uint
			if level > 7 {
				tier, err = br.readBits(1)
				if err != nil {
					return info, err
				}
			}
			if i == 0 {
				info.SeqLevelIdx0 = byte(level)
				info.SeqTier0 = byte(tier)
			}
			if decoderModelInfoPresent {
				present, err := br.readBits(1)
				if err != nil {
					return info, err
				}
				if present == 1 {
					n := int(bufferDelayLengthMinus1) + 1
					if _, err := br.readBits(n); err != nil { // decoder_buffer_delay
						return info, err
					}
					if _, err := br.readBits(n); err != nil { // encoder_buffer_delay
						return info, err
					}
					if _, err := br.readBits(1); err != nil { // low_delay_mode_flag
						return info, err
					}
				}
			}
			if initialDisplayDelayPresent == 1 {
				present, err := br.readBits(1)
				if err != nil {
					return info, err
				}
				if present == 1 {
					if _, err := br.readBits(4); err != nil {
						return info, err
					}
				}
			}
		}
	}

	frameWidthBitsMinus1, err := br.readBits(4)
	if err != nil {
		return info, err
	}
	frameHeightBitsMinus1, err := br.readBits(4)
	if err != nil {
		return info, err
	}
	if _, err := br.readBits(int(frameWidthBitsMinus1) + 1); err != nil { // max_frame_width_minus_1
		return info, err
	}
	if _, err := br.readBits(int(frameHeightBitsMinus1) + 1); err != nil { // max_frame_height_minus_1
		return info, err
	}

	frameIDNumbersPresent := uint(0)
	if reducedStillPicture == 0 {
		frameIDNumbersPresent, err = br.readBits(1)
		if err != nil {
			return info, err
		}
	}
	if frameIDNumbersPresent == 1 {
		if _, err := br.readBits(4); err != nil { // delta_frame_id_length_minus_2
			return info, err
		}
		if _, err := br.readBits(3); err != nil { // additional_frame_id_length_minus_1
			return info, err
		}
	}

	if _, err := br.readBits(1); err != nil { // use_128x128_superblock
		return info, err
	}
	if _, err := br.readBits(1); err != nil { // enable_filter_intra
		return info, err
	}
	if _, err := br.readBits(1); err != nil { // enable_intra_edge_filter
		return info, err
	}

	enableOrderHint := uint(0)
	if reducedStillPicture == 0 {
		if _, err := br.readBits(1); err != nil { // enable_interintra_compound
			return info, err
		}
		if _, err := br.readBits(1); err != nil { // enable_masked_compound
			return info, err
		}
		if _, err := br.readBits(1); err != nil { // enable_warped_motion
			return info, err
		}
		if _, err := br.readBits(1); err != nil { // enable_dual_filter
			return info, err
		}
		enableOrderHint, err = br.readBits(1)
		if err != nil {
			return info, err
		}
		if enableOrderHint == 1 {
			if _, err := br.readBits(1); err != nil { // enable_jnt_comp
				return info, err
			}
			if _, err := br.readBits(1); err != nil { // enable_ref_frame_mvs
				return info, err
			}
		}
		chooseScreenContentTools, err := br.readBits(1)
		if err != nil {
			return info, err
		}
		forceScreenContentTools := uint(2) // SELECT_SCREEN_CONTENT_TOOLS
		if chooseScreenContentTools == 0 {
			forceScreenContentTools, err = br.readBits(1)
			if err != nil {
				return info, err
			}
		}
		if forceScreenContentTools > 0 {
			chooseIntegerMV, err := br.readBits(1)
			if err != nil {
				return info, err
			}
			if chooseIntegerMV == 0 {
				if _, err := br.readBits(1); err != nil { // seq_force_integer_mv
					return info, err
				}
			}
		}
		if enableOrderHint == 1 {
			if _, err := br.readBits(3); err != nil { // order_hint_bits_minus_1
				return info, err
			}
		}
	}

	if _, err := br.readBits(1); err != nil { // enable_superres
		return info, err
	}
	if _, err := br.readBits(1); err != nil { // enable_cdef
		return info, err
	}
	if _, err := br.readBits(1); err != nil { // enable_restoration
		return info, err
	}

	if err := parseAV1ColorConfig(br, &info); err != nil {
		return info, err
	}

	return info, nil
}

// parseAV1ColorConfig parses color_config(), AV1 spec section 5.5.2.
func parseAV1ColorConfig(br *bitReader, info *AV1SequenceHeaderInfo) error {
	highBitdepth, err := br.readBits(1)
	if err != nil {
		return err
	}
	info.HighBitdepth = highBitdepth == 1

	if info.SeqProfile == 2 && info.HighBitdepth {
		twelveBit, err := br.readBits(1)
		if err != nil {
			return err
		}
		info.TwelveBit = twelveBit == 1
	}

	monoChrome := uint(0)
	if info.SeqProfile != 1 {
		monoChrome, err = br.readBits(1)
		if err != nil {
			return err
		}
	}
	info.Monochrome = monoChrome == 1

	colorDescPresent, err := br.readBits(1)
	if err != nil {
		return err
	}
	var colorPrimaries, transferCharacteristics, matrixCoefficients uint = 2, 2, 2
	if colorDescPresent == 1 {
		colorPrimaries, err = br.readBits(8)
		if err != nil {
			return err
		}
		transferCharacteristics, err = br.readBits(8)
		if err != nil {
			return err
		}
		matrixCoefficients, err = br.readBits(8)
		if err != nil {
			return err
		}
	}

	if info.Monochrome {
		if _, err := br.readBits(1); err != nil { // color_range
			return err
		}
		info.ChromaSubX = 1
		info.ChromaSubY = 1
		info.ChromaSamplePos = 0
		return nil
	}

	const (
		cpBT709           = 1
		tcSRGB            = 13
		mcIdentity        = 0
	)
	if colorPrimaries == cpBT709 && transferCharacteristics == tcSRGB && matrixCoefficients == mcIdentity {
		info.ChromaSubX = 0
		info.ChromaSubY = 0
		if _, err := br.readBits(1); err != nil { // separate_uv_delta_q
			return err
		}
		return nil
	}

	if _, err := br.readBits(1); err != nil { // color_range
		return err
	}

	switch info.SeqProfile {
	case 0:
		info.ChromaSubX, info.ChromaSubY = 1, 1
	case 1:
		info.ChromaSubX, info.ChromaSubY = 0, 0
	default:
		if info.BitDepth() == 12 {
			x, err := br.readBits(1)
			if err != nil {
				return err
			}
			info.ChromaSubX = byte(x)
			if x == 1 {
				y, err := br.readBits(1)
				if err != nil {
					return err
				}
				info.ChromaSubY = byte(y)
			}
		} else {
			info.ChromaSubX, info.ChromaSubY = 1, 0
		}
	}

	if info.ChromaSubX == 1 && info.ChromaSubY == 1 {
		pos, err := br.readBits(2)
		if err != nil {
			return err
		}
		info.ChromaSamplePos = byte(pos)
	}

	if _, err := br.readBits(1); err != nil { // separate_uv_delta_q
		return err
	}

	return nil
}
