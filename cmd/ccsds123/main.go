// Command ccsds123 compresses and decompresses raw multispectral image
// cubes.
//
// Usage:
//
//	ccsds123 [OPTION]... FILE
//
// Compression reads raw samples packed as 2-byte words from FILE and writes
// a compressed stream; decompression (-d) reverses it. The cube geometry
// flags are required for compression and recovered from the stream header
// for decompression.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/mewkiz/ccsds123"
	"github.com/mewkiz/ccsds123/cube"
	"github.com/mewkiz/ccsds123/meta"
	"github.com/pkg/errors"
)

func usage() {
	const use = `
Compress and decompress raw multispectral image cubes.

Usage:

	ccsds123 [OPTION]... FILE
`
	fmt.Fprintln(os.Stderr, use[1:])
	flag.PrintDefaults()
}

func main() {
	var (
		// decompress instead of compressing.
		decompress bool
		// output path.
		output string

		xSize, ySize, zSize int
		dynRange            int
		signed              bool
		inOrder             string
		inDepth             int
		bigEndian           bool

		bands    int
		full     bool
		narrow   bool
		register int
		omega    int
		tinc     int
		vmin     int
		vmax     int

		method   string
		outOrder string
		outDepth int
		wordSize int
		y0       int
		ystar    int
		umax     int
		initK    int
		bs       int
		ref      int
	)
	flag.BoolVar(&decompress, "d", false, "decompress instead of compressing")
	flag.StringVar(&output, "o", "", "output path")
	flag.IntVar(&xSize, "x", 0, "cube columns")
	flag.IntVar(&ySize, "y", 0, "cube rows")
	flag.IntVar(&zSize, "z", 0, "cube bands")
	flag.IntVar(&dynRange, "bits", 16, "sample bit width")
	flag.BoolVar(&signed, "signed", false, "samples are signed")
	flag.StringVar(&inOrder, "in", "bsq", "input interleave (bsq, bip or bil)")
	flag.IntVar(&inDepth, "indepth", 0, "input interleave depth (bil)")
	flag.BoolVar(&bigEndian, "big", false, "raw samples are big-endian")
	flag.IntVar(&bands, "bands", 0, "previous bands used for prediction")
	flag.BoolVar(&full, "full", false, "full prediction mode")
	flag.BoolVar(&narrow, "narrow", false, "narrow local sums")
	flag.IntVar(&register, "register", 32, "inner product register size")
	flag.IntVar(&omega, "omega", 13, "weight resolution")
	flag.IntVar(&tinc, "tinc", 32, "weight exponent update interval")
	flag.IntVar(&vmin, "vmin", -1, "initial weight exponent parameter")
	flag.IntVar(&vmax, "vmax", 3, "final weight exponent parameter")
	flag.StringVar(&method, "method", "sample", "encoding method (sample or block)")
	flag.StringVar(&outOrder, "out", "bsq", "output interleave (bsq, bip or bil)")
	flag.IntVar(&outDepth, "outdepth", 0, "output interleave depth (bil)")
	flag.IntVar(&wordSize, "word", 1, "output word size in bytes")
	flag.IntVar(&y0, "y0", 1, "initial count exponent")
	flag.IntVar(&ystar, "ystar", 6, "rescaling counter size")
	flag.IntVar(&umax, "umax", 16, "unary length limit")
	flag.IntVar(&initK, "k", 0, "accumulator initialization constant")
	flag.IntVar(&bs, "bs", 0, "block size (block-adaptive)")
	flag.IntVar(&ref, "ref", 0, "reference interval (block-adaptive)")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 || output == "" {
		flag.Usage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	if decompress {
		if err := expand(path, output); err != nil {
			log.Fatalf("%+v", err)
		}
		return
	}

	hdr := &meta.Header{
		Image: meta.Image{
			XSize:           xSize,
			YSize:           ySize,
			ZSize:           zSize,
			DynRange:        dynRange,
			Signed:          signed,
			InterleaveDepth: inDepth,
		},
		Predictor: meta.Predictor{
			Bands:            bands,
			Full:             full,
			RegisterSize:     register,
			WeightResolution: omega,
			WeightInterval:   tinc,
			WeightInitial:    vmin,
			WeightFinal:      vmax,
		},
		Encoder: meta.Encoder{
			OutInterleaveDepth: outDepth,
			WordSize:           wordSize,
		},
	}
	if narrow {
		hdr.Predictor.LocalSum = meta.NarrowNeighbor
	}
	if bigEndian {
		hdr.Image.ByteOrder = meta.BigEndian
	}
	var err error
	if hdr.Image.Interleave, err = parseInterleave(inOrder); err != nil {
		log.Fatalf("%+v", err)
	}
	if hdr.Encoder.OutInterleave, err = parseInterleave(outOrder); err != nil {
		log.Fatalf("%+v", err)
	}
	switch strings.ToLower(method) {
	case "sample":
		hdr.Encoder.Method = meta.SampleAdaptive
		hdr.Encoder.InitCountExp = y0
		hdr.Encoder.RescaleSize = ystar
		hdr.Encoder.UnaryLimit = umax
		hdr.Encoder.InitConst = initK
	case "block":
		hdr.Encoder.Method = meta.BlockAdaptive
		hdr.Encoder.InitConst = -1
		hdr.Encoder.BlockSize = bs
		hdr.Encoder.RefInterval = ref
	default:
		log.Fatalf("unknown encoding method %q; expected sample or block", method)
	}

	if err := compress(path, output, hdr); err != nil {
		log.Fatalf("%+v", err)
	}
}

func compress(path, output string, hdr *meta.Header) error {
	// Check the configuration before the raw cube is allocated and read.
	if err := hdr.Validate(); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	img := &hdr.Image
	c, err := cube.Read(bufio.NewReader(f), img.XSize, img.YSize, img.ZSize, img.Interleave, img.InterleaveDepth, img.ByteOrder.Order())
	if err != nil {
		return err
	}

	w, err := os.Create(output)
	if err != nil {
		return errors.WithStack(err)
	}
	defer w.Close()
	bw := bufio.NewWriter(w)
	n, err := ccsds123.Compress(bw, c, hdr)
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return errors.WithStack(err)
	}

	samples := img.XSize * img.YSize * img.ZSize
	fmt.Printf("%d bytes in the compressed image\n", n)
	fmt.Printf("compressed rate %f bits/sample\n", float64(n*8)/float64(samples))
	return nil
}

func expand(path, output string) error {
	c, hdr, err := ccsds123.Open(path)
	if err != nil {
		return err
	}
	w, err := os.Create(output)
	if err != nil {
		return errors.WithStack(err)
	}
	defer w.Close()
	bw := bufio.NewWriter(w)
	img := &hdr.Image
	if err := c.Write(bw, img.Interleave, img.InterleaveDepth, img.ByteOrder.Order()); err != nil {
		return err
	}
	return errors.WithStack(bw.Flush())
}

func parseInterleave(s string) (cube.Interleave, error) {
	switch strings.ToLower(s) {
	case "bsq":
		return cube.BSQ, nil
	case "bip":
		return cube.BIP, nil
	case "bil":
		return cube.BIL, nil
	}
	return 0, errors.Errorf("unknown interleave order %q; expected bsq, bip or bil", s)
}
