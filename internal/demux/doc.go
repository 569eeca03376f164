// Package demux parses H.264, HEVC, and AV1 bitstreams out of Annex B byte
// streams and raw OBU sequences, far enough to recover the parameter sets
// bridges need to build ISOBMFF decoder configuration records (avcC, hvcC,
// av1C) for remote consumers.
//
// [ParseAnnexB] and [ParseAnnexBHEVC] split an Annex B stream on start codes.
// [ParseSPS] and [ParseHEVCSPS] decode the resulting H.264/HEVC SPS NAL units.
// [ParseAV1SequenceHeader] decodes an AV1 sequence_header_obu payload.
package demux
