package ccsds123

import (
	"bufio"
	"io"
	"os"

	"github.com/mewkiz/ccsds123/coder"
	"github.com/mewkiz/ccsds123/cube"
	iobits "github.com/mewkiz/ccsds123/internal/bits"
	"github.com/mewkiz/ccsds123/meta"
	"github.com/mewkiz/ccsds123/predict"
)

// Decompress reads a compressed stream from r and returns the reconstructed
// cube together with the configuration recovered from the header. Trailing
// word padding is left unread.
func Decompress(r io.Reader) (*cube.Cube, *meta.Header, error) {
	hdr, err := meta.Parse(r)
	if err != nil {
		return nil, nil, err
	}
	res, err := coder.Decode(iobits.NewReader(r), hdr)
	if err != nil {
		return nil, nil, err
	}
	c, err := predict.Reconstruct(&hdr.Image, &hdr.Predictor, res)
	if err != nil {
		return nil, nil, err
	}
	return c, hdr, nil
}

// Open decompresses the stream in the file at the given path.
func Open(path string) (*cube.Cube, *meta.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return Decompress(bufio.NewReader(f))
}
