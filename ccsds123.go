// Package ccsds123 provides lossless compression and decompression of
// three-dimensional multispectral and hyperspectral image cubes, following
// the CCSDS 123.0-B-1 recommendation [1].
//
// A compressed stream is a big-endian bitstream: a packed header describing
// the image, the predictor and the entropy coder, followed by one codeword
// per mapped prediction residual, zero-padded to a whole number of output
// words. Compression and decompression are single calls that own all of
// their runtime state; no state survives a call.
//
// [1]: https://public.ccsds.org/Pubs/123x0b1ec1s.pdf
package ccsds123

import (
	"github.com/mewkiz/ccsds123/meta"
)

// Error kinds surfaced by Compress and Decompress; callers match them with
// errors.Cause.
var (
	ErrInvalidConfig = meta.ErrInvalidConfig
	ErrCorruptHeader = meta.ErrCorruptHeader
	ErrTruncated     = meta.ErrTruncated
	ErrOverflow      = meta.ErrOverflow
)
