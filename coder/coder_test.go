package coder_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/icza/bitio"
	"github.com/mewkiz/ccsds123/coder"
	"github.com/mewkiz/ccsds123/cube"
	iobits "github.com/mewkiz/ccsds123/internal/bits"
	"github.com/mewkiz/ccsds123/meta"
	"github.com/pkg/errors"
)

func testPredictor() meta.Predictor {
	return meta.Predictor{
		Bands:            1,
		RegisterSize:     32,
		WeightResolution: 13,
		WeightInterval:   32,
		WeightInitial:    -1,
		WeightFinal:      3,
	}
}

func sampleHeader(nx, ny, nz, d int) *meta.Header {
	return &meta.Header{
		Image:     meta.Image{XSize: nx, YSize: ny, ZSize: nz, DynRange: d},
		Predictor: testPredictor(),
		Encoder: meta.Encoder{
			Method:       meta.SampleAdaptive,
			WordSize:     1,
			InitCountExp: 1,
			RescaleSize:  6,
			UnaryLimit:   16,
			InitConst:    2,
		},
	}
}

func blockHeader(nx, ny, nz, d, bs, ref int) *meta.Header {
	return &meta.Header{
		Image:     meta.Image{XSize: nx, YSize: ny, ZSize: nz, DynRange: d},
		Predictor: testPredictor(),
		Encoder: meta.Encoder{
			Method:      meta.BlockAdaptive,
			WordSize:    1,
			InitConst:   -1,
			BlockSize:   bs,
			RefInterval: ref,
		},
	}
}

// roundTrip encodes the residuals, decodes the stream and compares.
func roundTrip(t *testing.T, name string, hdr *meta.Header, res []uint16) {
	buf := new(bytes.Buffer)
	bw := bitio.NewWriter(buf)
	if err := coder.Encode(bw, hdr, res); err != nil {
		t.Errorf("%s: unable to encode; %v", name, err)
		return
	}
	if err := bw.Close(); err != nil {
		t.Errorf("%s: unable to flush; %v", name, err)
		return
	}
	got, err := coder.Decode(iobits.NewReader(buf), hdr)
	if err != nil {
		t.Errorf("%s: unable to decode; %v", name, err)
		return
	}
	for i := range res {
		if res[i] != got[i] {
			t.Errorf("%s: residual %d mismatch; expected %d, got %d", name, i, res[i], got[i])
			return
		}
	}
}

func randomResiduals(n, d int, seed int64) []uint16 {
	random := rand.New(rand.NewSource(seed))
	res := make([]uint16, n)
	for i := range res {
		// Mostly small magnitudes with occasional spikes, the shape mapped
		// residuals take on natural images.
		if random.Intn(16) == 0 {
			res[i] = uint16(random.Intn(1 << uint(d)))
		} else {
			res[i] = uint16(random.Intn(8))
		}
	}
	return res
}

func TestSampleAdaptiveRoundTrip(t *testing.T) {
	golden := []struct {
		name       string
		nx, ny, nz int
		d          int
		mutate     func(hdr *meta.Header)
		res        func(n, d int) []uint16
	}{
		{
			name: "random", nx: 16, ny: 16, nz: 4, d: 12,
			mutate: func(hdr *meta.Header) {},
			res:    func(n, d int) []uint16 { return randomResiduals(n, d, 1) },
		},
		{
			name: "all zero", nx: 8, ny: 8, nz: 3, d: 8,
			mutate: func(hdr *meta.Header) {},
			res:    func(n, d int) []uint16 { return make([]uint16, n) },
		},
		{
			name: "all max forces escapes", nx: 8, ny: 8, nz: 2, d: 8,
			mutate: func(hdr *meta.Header) { hdr.Encoder.UnaryLimit = 8 },
			res: func(n, d int) []uint16 {
				res := make([]uint16, n)
				for i := range res {
					res[i] = 1<<uint(d) - 1
				}
				return res
			},
		},
		{
			name: "init table extremes", nx: 8, ny: 8, nz: 3, d: 16,
			mutate: func(hdr *meta.Header) {
				hdr.Encoder.InitConst = -1
				hdr.Encoder.InitTable = []uint8{0, 14, 7}
			},
			res: func(n, d int) []uint16 { return randomResiduals(n, d, 2) },
		},
		{
			name: "bip payload order", nx: 8, ny: 4, nz: 5, d: 10,
			mutate: func(hdr *meta.Header) { hdr.Encoder.OutInterleave = cube.BIP },
			res:    func(n, d int) []uint16 { return randomResiduals(n, d, 3) },
		},
		{
			name: "bil payload order", nx: 8, ny: 4, nz: 5, d: 10,
			mutate: func(hdr *meta.Header) {
				hdr.Encoder.OutInterleave = cube.BIL
				hdr.Encoder.OutInterleaveDepth = 2
			},
			res: func(n, d int) []uint16 { return randomResiduals(n, d, 4) },
		},
		{
			name: "rescale churn", nx: 32, ny: 32, nz: 1, d: 8,
			mutate: func(hdr *meta.Header) {
				hdr.Encoder.InitCountExp = 3
				hdr.Encoder.RescaleSize = 4
			},
			res: func(n, d int) []uint16 { return randomResiduals(n, d, 5) },
		},
	}
	for _, g := range golden {
		hdr := sampleHeader(g.nx, g.ny, g.nz, g.d)
		g.mutate(hdr)
		if err := hdr.Validate(); err != nil {
			t.Errorf("%s: invalid test configuration; %v", g.name, err)
			continue
		}
		roundTrip(t, g.name, hdr, g.res(g.nx*g.ny*g.nz, g.d))
	}
}

func TestBlockAdaptiveRoundTrip(t *testing.T) {
	golden := []struct {
		name       string
		nx, ny, nz int
		d          int
		bs, ref    int
		res        func(n, d int) []uint16
	}{
		{
			name: "random bs8", nx: 16, ny: 16, nz: 2, d: 8, bs: 8, ref: 2,
			res: func(n, d int) []uint16 { return randomResiduals(n, d, 11) },
		},
		{
			name: "random bs16", nx: 16, ny: 16, nz: 2, d: 12, bs: 16, ref: 4,
			res: func(n, d int) []uint16 { return randomResiduals(n, d, 12) },
		},
		{
			name: "random bs32", nx: 16, ny: 16, nz: 3, d: 16, bs: 32, ref: 1,
			res: func(n, d int) []uint16 { return randomResiduals(n, d, 13) },
		},
		{
			name: "random bs64", nx: 16, ny: 16, nz: 3, d: 8, bs: 64, ref: 4096,
			res: func(n, d int) []uint16 { return randomResiduals(n, d, 14) },
		},
		{
			name: "all zero long runs", nx: 64, ny: 64, nz: 2, d: 8, bs: 8, ref: 64,
			res: func(n, d int) []uint16 { return make([]uint16, n) },
		},
		{
			name: "partial final block", nx: 5, ny: 5, nz: 3, d: 8, bs: 16, ref: 2,
			res: func(n, d int) []uint16 { return randomResiduals(n, d, 15) },
		},
		{
			name: "partial zero tail", nx: 3, ny: 3, nz: 3, d: 8, bs: 8, ref: 3,
			res: func(n, d int) []uint16 { return make([]uint16, n) },
		},
		{
			name: "pair friendly", nx: 16, ny: 8, nz: 1, d: 8, bs: 8, ref: 4,
			res: func(n, d int) []uint16 {
				res := make([]uint16, n)
				for i := range res {
					res[i] = uint16(i & 1)
				}
				return res
			},
		},
		{
			name: "no compression blocks", nx: 8, ny: 8, nz: 2, d: 8, bs: 8, ref: 2,
			res: func(n, d int) []uint16 {
				random := rand.New(rand.NewSource(16))
				res := make([]uint16, n)
				for i := range res {
					res[i] = uint16(random.Intn(1 << uint(d)))
				}
				return res
			},
		},
	}
	for _, g := range golden {
		hdr := blockHeader(g.nx, g.ny, g.nz, g.d, g.bs, g.ref)
		if err := hdr.Validate(); err != nil {
			t.Errorf("%s: invalid test configuration; %v", g.name, err)
			continue
		}
		roundTrip(t, g.name, hdr, g.res(g.nx*g.ny*g.nz, g.d))
	}
}

func TestDecodeTruncated(t *testing.T) {
	hdr := sampleHeader(8, 8, 2, 12)
	res := randomResiduals(8*8*2, 12, 21)
	buf := new(bytes.Buffer)
	bw := bitio.NewWriter(buf)
	if err := coder.Encode(bw, hdr, res); err != nil {
		t.Fatal(err)
	}
	if err := bw.Close(); err != nil {
		t.Fatal(err)
	}
	short := buf.Bytes()[:buf.Len()/2]
	if _, err := coder.Decode(iobits.NewReader(bytes.NewReader(short)), hdr); errors.Cause(err) != meta.ErrTruncated {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}
