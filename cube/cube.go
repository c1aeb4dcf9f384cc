// Package cube provides the three-dimensional sample container of a
// multispectral image and the band interleave scan orders defined by CCSDS
// 123.0-B-1 [1].
//
// [1]: https://public.ccsds.org/Pubs/123x0b1ec1s.pdf
package cube

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Interleave specifies the order in which the cells of a cube are visited.
type Interleave uint8

// Band interleave orders.
const (
	// BSQ is band-sequential order; each band is scanned completely before
	// the next one starts.
	BSQ Interleave = iota
	// BIP is band-interleaved-by-pixel order; all bands of a pixel are
	// scanned before the next pixel.
	BIP
	// BIL is band-interleaved-by-line order with a configurable depth; bands
	// are scanned in groups of depth bands, one image line at a time.
	BIL
)

func (i Interleave) String() string {
	switch i {
	case BSQ:
		return "BSQ"
	case BIP:
		return "BIP"
	case BIL:
		return "BIL"
	}
	return "unknown"
}

// A Cube holds the integer samples of a multispectral image, stored as 16-bit
// words in band-sequential layout. Samples of signed images are stored in
// two's complement.
type Cube struct {
	// Cube extents; columns, rows and spectral bands.
	NX, NY, NZ int
	// Samples in band-sequential layout.
	Samples []uint16
}

// New allocates a cube of the given extents.
func New(nx, ny, nz int) *Cube {
	return &Cube{
		NX:      nx,
		NY:      ny,
		NZ:      nz,
		Samples: make([]uint16, nx*ny*nz),
	}
}

// Index returns the band-sequential offset of the cell (x, y, z).
func (c *Cube) Index(x, y, z int) int {
	return (z*c.NY+y)*c.NX + x
}

// At returns the sample at (x, y, z).
func (c *Cube) At(x, y, z int) uint16 {
	return c.Samples[(z*c.NY+y)*c.NX+x]
}

// Set stores the sample at (x, y, z).
func (c *Cube) Set(x, y, z int, v uint16) {
	c.Samples[(z*c.NY+y)*c.NX+x] = v
}

// Read reads a raw cube of nx by ny by nz samples from r. Samples are packed
// into 2-byte words of the given byte order and laid out in the given
// interleave order.
func Read(r io.Reader, nx, ny, nz int, order Interleave, depth int, bo binary.ByteOrder) (*Cube, error) {
	c := New(nx, ny, nz)
	buf := make([]byte, 2)
	s := NewScanner(order, depth, nx, ny, nz)
	for {
		x, y, z, ok := s.Next()
		if !ok {
			break
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrapf(err, "cube.Read: short sample file at (%d, %d, %d)", x, y, z)
		}
		c.Set(x, y, z, bo.Uint16(buf))
	}
	return c, nil
}

// Write writes the raw samples of the cube to w, packed into 2-byte words of
// the given byte order and laid out in the given interleave order.
func (c *Cube) Write(w io.Writer, order Interleave, depth int, bo binary.ByteOrder) error {
	buf := make([]byte, 2)
	s := NewScanner(order, depth, c.NX, c.NY, c.NZ)
	for {
		x, y, z, ok := s.Next()
		if !ok {
			return nil
		}
		bo.PutUint16(buf, c.At(x, y, z))
		if _, err := w.Write(buf); err != nil {
			return errors.Wrap(err, "cube.Write")
		}
	}
}
