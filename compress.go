package ccsds123

import (
	"io"

	"github.com/icza/bitio"
	"github.com/mewkiz/ccsds123/coder"
	"github.com/mewkiz/ccsds123/cube"
	"github.com/mewkiz/ccsds123/meta"
	"github.com/mewkiz/ccsds123/predict"
	"github.com/mewkiz/pkg/errutil"
	"github.com/pkg/errors"
)

// Compress compresses the cube to w under the given configuration and
// returns the number of bytes written. The configuration is validated in
// full before any allocation; on error the output may hold a truncated
// stream and should be discarded.
func Compress(w io.Writer, c *cube.Cube, hdr *meta.Header) (int64, error) {
	if err := hdr.Validate(); err != nil {
		return 0, err
	}
	img := &hdr.Image
	if c.NX != img.XSize || c.NY != img.YSize || c.NZ != img.ZSize {
		return 0, errors.Wrapf(meta.ErrInvalidConfig, "ccsds123.Compress: cube extents %dx%dx%d do not match the image descriptor %dx%dx%d",
			c.NX, c.NY, c.NZ, img.XSize, img.YSize, img.ZSize)
	}

	res := predict.Residuals(img, &hdr.Predictor, c)

	cw := &countWriter{w: w}
	bw := bitio.NewWriter(cw)
	if err := hdr.Write(bw); err != nil {
		return cw.n, errutil.Err(err)
	}
	if err := coder.Encode(bw, hdr, res); err != nil {
		return cw.n, err
	}
	// Flush the codeword tail and pad the stream to a whole number of
	// output words.
	if _, err := bw.Align(); err != nil {
		return cw.n, errutil.Err(err)
	}
	for cw.n%int64(hdr.Encoder.WordSize) != 0 {
		if _, err := cw.Write([]byte{0}); err != nil {
			return cw.n, errutil.Err(err)
		}
	}
	return cw.n, nil
}

// countWriter counts the bytes passed through to the underlying writer. It
// deliberately implements no io.Closer, so closing the bit writer cannot
// close the caller's stream.
type countWriter struct {
	w io.Writer
	n int64
}

func (cw *countWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
