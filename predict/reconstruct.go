package predict

import (
	"github.com/mewkiz/ccsds123/cube"
	"github.com/mewkiz/ccsds123/meta"
	"github.com/pkg/errors"
)

// Reconstruct inverts Residuals: it consumes the mapped residuals in
// band-sequential layout and rebuilds the sample cube, mirroring every
// arithmetic step of the predictor against the already reconstructed
// history.
//
// A residual that unmaps to a sample outside the sample domain indicates a
// malformed stream and surfaces as ErrOverflow.
func Reconstruct(img *meta.Image, p *meta.Predictor, res []uint16) (*cube.Cube, error) {
	c := cube.New(img.XSize, img.YSize, img.ZSize)
	st := newState(img, p, c)
	idx := 0
	for z := 0; z < st.nz; z++ {
		w := st.initWeights(p, z)
		t := 0
		for y := 0; y < st.ny; y++ {
			for x := 0; x < st.nx; x++ {
				delta := res[idx]
				if t == 0 {
					shat := st.firstPrediction(z)
					s := shat + st.unmapResidual(delta, shat)
					if err := st.store(x, y, z, s); err != nil {
						return nil, err
					}
				} else {
					sigma := st.localSum(x, y, z)
					u := st.diffs(x, y, z, sigma)
					shat, stilde := st.predict(w, u, sigma)
					s := shat + st.unmapResidual(delta, shat)
					if err := st.store(x, y, z, s); err != nil {
						return nil, err
					}
					st.update(w, u, 2*s-stilde, t)
				}
				idx++
				t++
			}
		}
	}
	return c, nil
}

// store validates the reconstructed sample against the sample domain and
// writes it to the history cube.
func (st *state) store(x, y, z int, s int64) error {
	if s < st.smin || s > st.smax {
		return errors.Wrapf(meta.ErrOverflow, "predict.Reconstruct: sample %d at (%d, %d, %d) outside [%d, %d]", s, x, y, z, st.smin, st.smax)
	}
	st.rec.Set(x, y, z, uint16(s))
	return nil
}
