package bits

import (
	"io"

	"github.com/icza/bitio"
)

// A Reader provides bit-level access to the payload of a compressed stream.
// It wraps a bitio.Reader, which consumes the underlying io.Reader one byte
// at a time, so a Reader may take over at any byte-aligned position.
type Reader struct {
	r bitio.Reader
}

// NewReader returns a new Reader reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bitio.NewReader(r)}
}

// ReadBits reads and returns the next n bits, most significant bit first.
func (br *Reader) ReadBits(n byte) (x uint64, err error) {
	return br.r.ReadBits(n)
}

// ReadUnary decodes and returns an unary coded integer, whose value is
// represented by the number of leading zeros before a one.
//
// Examples of unary coded binary on the left and decoded decimal on the right:
//
//	1       => 0
//	01      => 1
//	001     => 2
//	0001    => 3
//	00001   => 4
func (br *Reader) ReadUnary() (x uint64, err error) {
	for {
		bit, err := br.r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if bit == 1 {
			break
		}
		x++
	}
	return x, nil
}

// ReadUnaryLim decodes an unary coded integer with a limited prefix length.
// If max zeros occur before any one bit, reading stops and escaped is true;
// the codeword carries its operand in binary instead of a terminated prefix.
func (br *Reader) ReadUnaryLim(max uint64) (x uint64, escaped bool, err error) {
	for x < max {
		bit, err := br.r.ReadBits(1)
		if err != nil {
			return 0, false, err
		}
		if bit == 1 {
			return x, false, nil
		}
		x++
	}
	return x, true, nil
}

// WriteUnary encodes x as an unary coded integer, whose value is represented
// by the number of leading zeros before a one.
//
// Examples of unary coded binary on the left and decoded decimal on the right:
//
//	0 => 1
//	1 => 01
//	2 => 001
//	3 => 0001
//	4 => 00001
func WriteUnary(bw bitio.Writer, x uint64) error {
	for ; x > 8; x -= 8 {
		if err := bw.WriteByte(0x0); err != nil {
			return err
		}
	}

	bits := uint64(1)
	n := byte(x + 1)
	if err := bw.WriteBits(bits, n); err != nil {
		return err
	}
	return nil
}

// WriteZeros writes n zero bits.
func WriteZeros(bw bitio.Writer, n uint) error {
	for ; n > 64; n -= 64 {
		if err := bw.WriteBits(0, 64); err != nil {
			return err
		}
	}
	if n == 0 {
		return nil
	}
	return bw.WriteBits(0, byte(n))
}
