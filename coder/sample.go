package coder

import (
	mathbits "math/bits"

	"github.com/icza/bitio"
	iobits "github.com/mewkiz/ccsds123/internal/bits"
	"github.com/mewkiz/ccsds123/meta"
	"github.com/mewkiz/pkg/errutil"
	"github.com/pkg/errors"
)

// sampleCoder is the sample-adaptive Golomb-power-of-two coder. Each band
// carries a counter and an accumulator whose ratio tracks the mean residual
// magnitude; the code parameter follows their quotient.
type sampleCoder struct {
	hdr        *meta.Header
	nx, ny, nz int
	d          int
	umax       uint64
	rescale    int64 // counter value that triggers rescaling

	counter []int64
	accum   []int64
}

func newSampleCoder(hdr *meta.Header) *sampleCoder {
	img, enc := &hdr.Image, &hdr.Encoder
	sc := &sampleCoder{
		hdr:     hdr,
		nx:      img.XSize,
		ny:      img.YSize,
		nz:      img.ZSize,
		d:       img.DynRange,
		umax:    uint64(enc.UnaryLimit),
		rescale: 1 << uint(enc.RescaleSize),
		counter: make([]int64, img.ZSize),
		accum:   make([]int64, img.ZSize),
	}
	c0 := int64(1) << uint(enc.InitCountExp-1)
	for z := 0; z < img.ZSize; z++ {
		k := enc.InitConst
		if enc.InitTable != nil {
			k = int(enc.InitTable[z])
		}
		sc.counter[z] = c0
		sc.accum[z] = (c0 * (3<<uint(k+6) - 49)) >> 7
	}
	return sc
}

// param returns the Golomb code parameter of band z, the largest k with
// counter<<k not above the biased accumulator, clipped to the dynamic range.
func (sc *sampleCoder) param(z int) uint {
	c := sc.counter[z]
	thr := sc.accum[z] + (49*c)>>7
	q := thr / c
	k := 0
	if q > 0 {
		k = mathbits.Len64(uint64(q)) - 1
	}
	if k > sc.d-2 {
		k = sc.d - 2
	}
	return uint(k)
}

// updateStats feeds a coded residual of band z into the running statistics,
// halving both when the counter reaches the rescaling threshold.
func (sc *sampleCoder) updateStats(z int, delta uint16) {
	sc.accum[z] += int64(delta)
	sc.counter[z]++
	if sc.counter[z] == sc.rescale {
		sc.accum[z] = (sc.accum[z] + 1) >> 1
		sc.counter[z] = (sc.counter[z] + 1) >> 1
	}
}

func (sc *sampleCoder) encode(bw bitio.Writer, res []uint16) error {
	s := outScanner(sc.hdr)
	for {
		x, y, z, ok := s.Next()
		if !ok {
			return nil
		}
		delta := res[(z*sc.ny+y)*sc.nx+x]
		if x == 0 && y == 0 {
			// The first sample of each band goes out verbatim; statistics
			// start with the second.
			if err := bw.WriteBits(uint64(delta), byte(sc.d)); err != nil {
				return errutil.Err(err)
			}
			continue
		}
		k := sc.param(z)
		q := uint64(delta) >> k
		if q < sc.umax {
			if err := iobits.WriteUnary(bw, q); err != nil {
				return errutil.Err(err)
			}
			if k > 0 {
				if err := bw.WriteBits(uint64(delta)&(1<<k-1), byte(k)); err != nil {
					return errutil.Err(err)
				}
			}
		} else {
			// Escape: the unary limit in zeros, then the residual in binary.
			if err := iobits.WriteZeros(bw, uint(sc.umax)); err != nil {
				return errutil.Err(err)
			}
			if err := bw.WriteBits(uint64(delta), byte(sc.d)); err != nil {
				return errutil.Err(err)
			}
		}
		sc.updateStats(z, delta)
	}
}

func (sc *sampleCoder) decode(br *iobits.Reader, res []uint16) error {
	s := outScanner(sc.hdr)
	for {
		x, y, z, ok := s.Next()
		if !ok {
			return nil
		}
		var delta uint64
		if x == 0 && y == 0 {
			v, err := br.ReadBits(byte(sc.d))
			if err != nil {
				return streamErr(err)
			}
			res[(z*sc.ny+y)*sc.nx+x] = uint16(v)
			continue
		}
		k := sc.param(z)
		q, escaped, err := br.ReadUnaryLim(sc.umax)
		if err != nil {
			return streamErr(err)
		}
		if escaped {
			delta, err = br.ReadBits(byte(sc.d))
			if err != nil {
				return streamErr(err)
			}
		} else {
			delta = q << k
			if k > 0 {
				r, err := br.ReadBits(byte(k))
				if err != nil {
					return streamErr(err)
				}
				delta |= r
			}
		}
		if delta > 1<<uint(sc.d)-1 {
			return errors.Wrapf(meta.ErrOverflow, "coder.Decode: residual %d at (%d, %d, %d) exceeds the dynamic range", delta, x, y, z)
		}
		res[(z*sc.ny+y)*sc.nx+x] = uint16(delta)
		sc.updateStats(z, uint16(delta))
	}
}
