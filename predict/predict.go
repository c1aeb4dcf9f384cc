// Package predict implements the adaptive per-band linear predictor of CCSDS
// 123.0-B-1 and its exact inverse.
//
// The predictor walks each band in raster order and produces one mapped
// residual per sample; weights follow the prediction error with sign-only
// LMS updates. Every arithmetic step uses only reconstructed history, so
// running the same steps against decoded residuals recovers the samples
// bit for bit.
//
// ref: https://public.ccsds.org/Pubs/123x0b1ec1s.pdf
package predict

import (
	"github.com/mewkiz/ccsds123/cube"
	"github.com/mewkiz/ccsds123/meta"
)

// state carries the predictor configuration and the reconstructed sample
// history of one compress or decompress call. When encoding, the history is
// the input cube itself; lossless prediction reconstructs it unchanged.
type state struct {
	nx, ny, nz       int
	dyn              int
	smin, smax, smid int64
	signed           bool
	full             bool
	narrow           bool
	bands            int
	omega            uint
	reg              uint
	tinc             int
	vmin, vmax       int
	wmin, wmax       int64

	rec *cube.Cube
	u   []int64
}

func newState(img *meta.Image, p *meta.Predictor, rec *cube.Cube) *state {
	omega := uint(p.WeightResolution)
	return &state{
		nx:     img.XSize,
		ny:     img.YSize,
		nz:     img.ZSize,
		dyn:    img.DynRange,
		smin:   img.SampleMin(),
		smax:   img.SampleMax(),
		smid:   img.SampleMid(),
		signed: img.Signed,
		full:   p.Full,
		narrow: p.LocalSum == meta.NarrowNeighbor,
		bands:  p.Bands,
		omega:  omega,
		reg:    uint(p.RegisterSize),
		tinc:   p.WeightInterval,
		vmin:   p.WeightInitial,
		vmax:   p.WeightFinal,
		wmin:   -1 << (omega + 2),
		wmax:   1<<(omega+2) - 1,
		rec:    rec,
		u:      make([]int64, 0, p.Bands+3),
	}
}

// sval returns the reconstructed sample at (x, y, z) in the sample domain.
func (st *state) sval(x, y, z int) int64 {
	v := st.rec.At(x, y, z)
	if st.signed {
		return int64(int16(v))
	}
	return int64(v)
}

// initWeights returns the initial weight vector of band z: the directional
// components when in full mode, followed by one component per central local
// difference.
func (st *state) initWeights(p *meta.Predictor, z int) []int64 {
	dirs := 0
	if st.full {
		dirs = 3
	}
	w := make([]int64, dirs+min(z, st.bands))
	if p.WeightInitTable != nil {
		shift := p.WeightResolution + 3 - p.WeightInitResolution
		row := p.WeightInitTable[z]
		for i := range w {
			w[i] = shiftInit(int64(row[i]), shift)
		}
		return w
	}
	// Default initialization: directional components zero, the first central
	// component 7/8 of the weight scale, each further component half the
	// previous one.
	if len(w) > dirs {
		w[dirs] = 7 << (st.omega - 3)
		for i := dirs + 1; i < len(w); i++ {
			w[i] = w[i-1] / 2
		}
	}
	return w
}

// shiftInit scales a table entry from the table resolution to the weight
// resolution.
func shiftInit(v int64, shift int) int64 {
	if shift >= 0 {
		return v << uint(shift)
	}
	return v >> uint(-shift)
}

// localSum returns σ(x, y, z) from reconstructed neighbors. Never called on
// the first sample of a band.
func (st *state) localSum(x, y, z int) int64 {
	s := st.sval
	if st.nx == 1 {
		// Single-column image; only the north neighbor exists.
		return 4 * s(x, y-1, z)
	}
	if st.narrow {
		switch {
		case y == 0:
			// First row: the west sample of the band below stands in.
			if z > 0 {
				return 4 * s(x-1, 0, z-1)
			}
			return 4 * st.smid
		case x == 0:
			return 2 * (s(x, y-1, z) + s(x+1, y-1, z))
		default:
			return 4 * s(x-1, y, z)
		}
	}
	switch {
	case y == 0:
		return 4 * s(x-1, 0, z)
	case x == 0:
		return 2 * (s(x, y-1, z) + s(x+1, y-1, z))
	case x == st.nx-1:
		return s(x-1, y, z) + s(x-1, y-1, z) + 2*s(x, y-1, z)
	default:
		return s(x-1, y, z) + s(x-1, y-1, z) + s(x, y-1, z) + s(x+1, y-1, z)
	}
}

// diffs fills the local difference vector U at (x, y, z): the directional
// differences of the current band when in full mode, then the central
// differences of up to bands previous bands.
func (st *state) diffs(x, y, z int, sigma int64) []int64 {
	u := st.u[:0]
	if st.full {
		if y == 0 {
			u = append(u, 0, 0, 0)
		} else {
			dn := 4 * st.sval(x, y-1, z)
			dw, dnw := dn, dn
			if x > 0 {
				dw = 4 * st.sval(x-1, y, z)
				dnw = 4 * st.sval(x-1, y-1, z)
			}
			u = append(u, dn-sigma, dw-sigma, dnw-sigma)
		}
	}
	for i := 1; i <= min(z, st.bands); i++ {
		sig := st.localSum(x, y, z-i)
		u = append(u, 4*st.sval(x, y, z-i)-sig)
	}
	st.u = u
	return u
}

// predict computes the predicted sample ŝ and the double-resolution value s̃
// from the weight vector, the local differences and the local sum. The inner
// product saturates to the signed register range; the high-resolution value
// is clipped to the scaled sample bounds.
func (st *state) predict(w, u []int64, sigma int64) (shat, stilde int64) {
	var d int64
	for i := range u {
		d += w[i] * u[i]
	}
	d = clipReg(d, st.reg)
	hr := d + ((sigma - 4*st.smid) << st.omega) + (st.smid << (st.omega + 2)) + (1 << (st.omega + 1))
	lo := st.smin << (st.omega + 2)
	hi := (st.smax << (st.omega + 2)) + (1 << (st.omega + 1))
	if hr < lo {
		hr = lo
	} else if hr > hi {
		hr = hi
	}
	stilde = hr >> (st.omega + 1)
	shat = stilde >> 1
	return shat, stilde
}

// firstPrediction returns ŝ of the first sample of band z, which has no
// spatial neighbors: the co-located sample of the previous band when
// inter-band prediction is on, the lower sample bound otherwise.
func (st *state) firstPrediction(z int) int64 {
	if z > 0 && st.bands > 0 {
		return st.sval(0, 0, z-1)
	}
	return st.smin
}

// update performs the sign-only LMS weight update with the double-resolution
// prediction error e. The scaling exponent decays from the initial to the
// final parameter as t advances in steps of the update interval.
func (st *state) update(w, u []int64, e int64, t int) {
	sgn := int64(1)
	if e < 0 {
		sgn = -1
	}
	// Offsets before the first full line are negative and clip to the
	// initial parameter, so truncating division matches the floor here.
	v := st.vmin + (t-st.nx)/st.tinc
	if v < st.vmin {
		v = st.vmin
	} else if v > st.vmax {
		v = st.vmax
	}
	rho := v + st.dyn - int(st.omega)
	for i := range u {
		scaled := sgn * u[i]
		if rho >= 0 {
			scaled >>= uint(rho)
		} else {
			scaled <<= uint(-rho)
		}
		nw := w[i] + (scaled+1)>>1
		if nw < st.wmin {
			nw = st.wmin
		} else if nw > st.wmax {
			nw = st.wmax
		}
		w[i] = nw
	}
}

// theta is the distance from the predicted sample to the nearer sample
// bound.
func (st *state) theta(shat int64) int64 {
	return min(shat-st.smin, st.smax-shat)
}

// mapResidual folds the signed prediction error e into the non-negative
// mapped residual δ. Errors within θ of zero alternate sign by parity;
// larger errors, which can only point away from the nearer bound, are offset
// by θ. The mapping is one-to-one given ŝ.
func (st *state) mapResidual(e, shat int64) uint16 {
	th := st.theta(shat)
	switch {
	case e >= 0 && e <= th:
		return uint16(2 * e)
	case e < 0 && -e <= th:
		return uint16(-2*e - 1)
	default:
		if e < 0 {
			e = -e
		}
		return uint16(th + e)
	}
}

// unmapResidual inverts mapResidual.
func (st *state) unmapResidual(delta uint16, shat int64) int64 {
	th := st.theta(shat)
	d := int64(delta)
	if d <= 2*th {
		if d&1 == 0 {
			return d / 2
		}
		return -(d + 1) / 2
	}
	if st.smax-shat > shat-st.smin {
		return d - th
	}
	return -(d - th)
}

// clipReg saturates v to the signed range of a reg-bit register.
func clipReg(v int64, reg uint) int64 {
	if reg >= 64 {
		return v
	}
	lo, hi := int64(-1)<<(reg-1), int64(1)<<(reg-1)-1
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Residuals runs the predictor over the cube and returns one mapped residual
// per sample, in band-sequential layout. The cube extents must match the
// image descriptor.
func Residuals(img *meta.Image, p *meta.Predictor, c *cube.Cube) []uint16 {
	st := newState(img, p, c)
	res := make([]uint16, st.nx*st.ny*st.nz)
	idx := 0
	for z := 0; z < st.nz; z++ {
		w := st.initWeights(p, z)
		t := 0
		for y := 0; y < st.ny; y++ {
			for x := 0; x < st.nx; x++ {
				s := st.sval(x, y, z)
				if t == 0 {
					shat := st.firstPrediction(z)
					res[idx] = st.mapResidual(s-shat, shat)
				} else {
					sigma := st.localSum(x, y, z)
					u := st.diffs(x, y, z, sigma)
					shat, stilde := st.predict(w, u, sigma)
					res[idx] = st.mapResidual(s-shat, shat)
					st.update(w, u, 2*s-stilde, t)
				}
				idx++
				t++
			}
		}
	}
	return res
}
