// Package meta defines the configuration record of the compressor and the
// packed header that precedes the payload of a compressed stream.
//
// Field widths of the header follow CCSDS 123.0-B-1 section 5 [1], extended
// with the layout of the input image so a stream is decompressible on its
// own.
//
// [1]: https://public.ccsds.org/Pubs/123x0b1ec1s.pdf
package meta

import (
	"encoding/binary"

	"github.com/mewkiz/ccsds123/cube"
	"github.com/pkg/errors"
)

// Error kinds surfaced by compression and decompression calls. Callers match
// them with errors.Cause.
var (
	// ErrInvalidConfig is returned when a configuration parameter is outside
	// its specified range, or a mutually exclusive pair is both set or both
	// unset.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrCorruptHeader is returned when a header field is outside its range.
	ErrCorruptHeader = errors.New("corrupt header")
	// ErrTruncated is returned when the decoder reaches end-of-stream in the
	// middle of a header or codeword.
	ErrTruncated = errors.New("truncated stream")
	// ErrOverflow is returned when decoded values exceed the sample range or
	// a decoded operand exceeds its register; it indicates a malformed
	// stream.
	ErrOverflow = errors.New("arithmetic overflow")
)

// EncodingMethod selects the entropy coding strategy of the payload.
type EncodingMethod uint8

// Entropy coding strategies.
const (
	// SampleAdaptive is the Golomb-power-of-two coder with per-band running
	// statistics.
	SampleAdaptive EncodingMethod = iota
	// BlockAdaptive is the Rice coder with per-block parameter selection.
	BlockAdaptive
)

// LocalSum selects the neighbor formula of the predictor.
type LocalSum uint8

// Local sum formulas.
const (
	// WideNeighbor averages the N, W, NW and NE neighbors.
	WideNeighbor LocalSum = iota
	// NarrowNeighbor uses only the west sample, falling back to the band
	// below on the first row.
	NarrowNeighbor
)

// ByteOrder specifies the on-disk byte order of raw samples.
type ByteOrder uint8

// Raw sample byte orders.
const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// Order returns the encoding/binary byte order used to read and write raw
// sample words.
func (bo ByteOrder) Order() binary.ByteOrder {
	if bo == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Image describes the raw input cube.
type Image struct {
	// Cube extents; columns, rows and spectral bands.
	XSize, YSize, ZSize int
	// Bit width of raw samples, between 2 and 16.
	DynRange int
	// Signed reports whether the sample domain is two's complement signed.
	Signed bool
	// Interleave order of the raw sample file.
	Interleave cube.Interleave
	// Band group depth; meaningful only when Interleave is BIL.
	InterleaveDepth int
	// On-disk byte order of raw samples.
	ByteOrder ByteOrder
}

// SampleMin returns the smallest representable sample value.
func (img *Image) SampleMin() int64 {
	if img.Signed {
		return -1 << uint(img.DynRange-1)
	}
	return 0
}

// SampleMax returns the largest representable sample value.
func (img *Image) SampleMax() int64 {
	if img.Signed {
		return 1<<uint(img.DynRange-1) - 1
	}
	return 1<<uint(img.DynRange) - 1
}

// SampleMid returns the midpoint of the sample domain used by the predictor.
func (img *Image) SampleMid() int64 {
	if img.Signed {
		return 0
	}
	return 1 << uint(img.DynRange-1)
}

// Predictor holds the parameters of the adaptive linear predictor.
type Predictor struct {
	// Number of previous bands used for prediction, between 0 and 15.
	Bands int
	// Full reports whether the three directional local differences join the
	// central differences in the prediction; false selects reduced mode.
	Full bool
	// Local sum formula.
	LocalSum LocalSum
	// Width of the signed inner product register, between 32 and 64.
	RegisterSize int
	// Fixed-point scale of weight components, between 4 and 19.
	WeightResolution int
	// Scaling exponent update period; a power of two between 2^4 and 2^11.
	WeightInterval int
	// Initial and final scaling exponent parameters, between -6 and 9.
	WeightInitial, WeightFinal int
	// Optional per-band initial weight vectors. When nil, the default
	// initialization applies.
	WeightInitTable [][]int32
	// Resolution of the initial weight table, between 3 and
	// WeightResolution+3. Zero when no table is present.
	WeightInitResolution int
}

// ComponentCount returns the number of weight components per band at full
// prediction depth.
func (p *Predictor) ComponentCount() int {
	if p.Full {
		return p.Bands + 3
	}
	return p.Bands
}

// Encoder holds the parameters of the entropy coding stage.
type Encoder struct {
	// Entropy coding strategy.
	Method EncodingMethod
	// Interleave order of residual codewords in the payload; independent of
	// the input order.
	OutInterleave cube.Interleave
	// Band group depth of the payload order; meaningful only for BIL.
	OutInterleaveDepth int
	// Output word size in bytes; the stream is zero-padded to a multiple of
	// 8*WordSize bits.
	WordSize int

	// Sample-adaptive parameters.

	// Initial count exponent, between 1 and 8.
	InitCountExp int
	// Rescaling counter size, between max(4, InitCountExp+1) and 9.
	RescaleSize int
	// Unary length limit, between 8 and 32.
	UnaryLimit int
	// Accumulator initialization constant, between 0 and DynRange-2; -1 when
	// a per-band table is used instead.
	InitConst int
	// Optional per-band accumulator initialization table.
	InitTable []uint8

	// Block-adaptive parameters.

	// Symbols per block; one of 8, 16, 32 or 64.
	BlockSize int
	// Reference sample interval in blocks, between 1 and 4096.
	RefInterval int
}

// Header groups the configuration of one compressed stream.
type Header struct {
	Image     Image
	Predictor Predictor
	Encoder   Encoder
}
