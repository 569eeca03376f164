package camera

// PrependSHOBU assembles one AV1 keyframe's decoder input by prepending
// the sequence header OBU (SHOBU) to the frame's own OBUs, so that the
// keyframe is self-contained per spec.md §4.8: "some browser WebCodecs
// implementations are strict about OBU ordering." Temporal Delimiter
// OBUs, if present in units, are left exactly where the encoder put
// them — this function only guarantees the sequence header comes first.
func PrependSHOBU(seqHeaderOBU []byte, units [][]byte) [][]byte {
	out := make([][]byte, 0, len(units)+1)
	out = append(out, seqHeaderOBU)
	out = append(out, units...)
	return out
}
