// Package coder implements the two entropy coding strategies of CCSDS
// 123.0-B-1 over the mapped residual stream: the sample-adaptive
// Golomb-power-of-two coder with per-band running statistics, and the
// block-adaptive Rice coder with per-block code selection.
//
// Residuals are consumed and produced in band-sequential layout; codewords
// travel in the configured output interleave order, which is independent of
// the input order.
package coder

import (
	"io"

	"github.com/icza/bitio"
	"github.com/mewkiz/ccsds123/cube"
	iobits "github.com/mewkiz/ccsds123/internal/bits"
	"github.com/mewkiz/ccsds123/meta"
	"github.com/mewkiz/pkg/errutil"
	"github.com/pkg/errors"
)

// Encode writes one codeword per mapped residual to bw. The header must
// have been validated.
func Encode(bw bitio.Writer, hdr *meta.Header, res []uint16) error {
	switch hdr.Encoder.Method {
	case meta.SampleAdaptive:
		return newSampleCoder(hdr).encode(bw, res)
	case meta.BlockAdaptive:
		return newBlockCoder(hdr).encode(bw, res)
	}
	return errutil.Newf("coder.Encode: unknown encoding method %d", hdr.Encoder.Method)
}

// Decode reads one codeword per sample from br and returns the mapped
// residuals in band-sequential layout.
func Decode(br *iobits.Reader, hdr *meta.Header) ([]uint16, error) {
	img := &hdr.Image
	res := make([]uint16, img.XSize*img.YSize*img.ZSize)
	var err error
	switch hdr.Encoder.Method {
	case meta.SampleAdaptive:
		err = newSampleCoder(hdr).decode(br, res)
	case meta.BlockAdaptive:
		err = newBlockCoder(hdr).decode(br, res)
	default:
		err = errors.Errorf("coder.Decode: unknown encoding method %d", hdr.Encoder.Method)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// outScanner returns a scanner over the payload order of the stream.
func outScanner(hdr *meta.Header) *cube.Scanner {
	img, enc := &hdr.Image, &hdr.Encoder
	return cube.NewScanner(enc.OutInterleave, enc.OutInterleaveDepth, img.XSize, img.YSize, img.ZSize)
}

// streamErr maps end-of-stream conditions of the payload reader to
// ErrTruncated.
func streamErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrap(meta.ErrTruncated, "coder.Decode: unexpected end of payload")
	}
	return errors.WithStack(err)
}
