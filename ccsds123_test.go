package ccsds123_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/mewkiz/ccsds123"
	"github.com/mewkiz/ccsds123/cube"
	"github.com/mewkiz/ccsds123/meta"
	"github.com/pkg/errors"
)

// defaultPredictor returns the predictor settings shared by the end-to-end
// tests.
func defaultPredictor() meta.Predictor {
	return meta.Predictor{
		Bands:            2,
		RegisterSize:     32,
		WeightResolution: 13,
		WeightInterval:   32,
		WeightInitial:    -1,
		WeightFinal:      3,
	}
}

func sampleConfig(nx, ny, nz, d int) *meta.Header {
	return &meta.Header{
		Image:     meta.Image{XSize: nx, YSize: ny, ZSize: nz, DynRange: d},
		Predictor: defaultPredictor(),
		Encoder: meta.Encoder{
			Method:       meta.SampleAdaptive,
			WordSize:     1,
			InitCountExp: 1,
			RescaleSize:  4,
			UnaryLimit:   8,
			InitConst:    2,
		},
	}
}

func blockConfig(nx, ny, nz, d, bs, ref int) *meta.Header {
	return &meta.Header{
		Image:     meta.Image{XSize: nx, YSize: ny, ZSize: nz, DynRange: d},
		Predictor: defaultPredictor(),
		Encoder: meta.Encoder{
			Method:      meta.BlockAdaptive,
			WordSize:    1,
			InitConst:   -1,
			BlockSize:   bs,
			RefInterval: ref,
		},
	}
}

func fill(c *cube.Cube, gen func(x, y, z int) uint16) {
	for z := 0; z < c.NZ; z++ {
		for y := 0; y < c.NY; y++ {
			for x := 0; x < c.NX; x++ {
				c.Set(x, y, z, gen(x, y, z))
			}
		}
	}
}

// roundTrip compresses the cube, decompresses the stream and verifies both
// the samples and the recovered configuration. It returns the compressed
// byte stream.
func roundTrip(t *testing.T, name string, hdr *meta.Header, c *cube.Cube) []byte {
	buf := new(bytes.Buffer)
	n, err := ccsds123.Compress(buf, c, hdr)
	if err != nil {
		t.Fatalf("%s: unable to compress; %v", name, err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("%s: reported size mismatch; expected %d, got %d", name, buf.Len(), n)
	}
	if n%int64(hdr.Encoder.WordSize) != 0 {
		t.Errorf("%s: stream size %d not a multiple of the %d-byte output word", name, n, hdr.Encoder.WordSize)
	}

	stream := append([]byte(nil), buf.Bytes()...)
	got, gotHdr, err := ccsds123.Decompress(buf)
	if err != nil {
		t.Fatalf("%s: unable to decompress; %v", name, err)
	}
	for i := range c.Samples {
		if c.Samples[i] != got.Samples[i] {
			t.Fatalf("%s: sample %d mismatch; expected %d, got %d", name, i, c.Samples[i], got.Samples[i])
		}
	}
	if gotHdr.Image != hdr.Image {
		t.Errorf("%s: image descriptor mismatch after round trip;\nexpected %#v\ngot      %#v", name, hdr.Image, gotHdr.Image)
	}
	return stream
}

// Scenario 1: constant cube under the sample-adaptive coder compresses to
// less than half the raw size.
func TestSampleAdaptiveConstantCube(t *testing.T) {
	hdr := sampleConfig(4, 4, 3, 8)
	c := cube.New(4, 4, 3)
	fill(c, func(x, y, z int) uint16 { return 0x55 })
	stream := roundTrip(t, "constant", hdr, c)
	raw := 2 * 4 * 4 * 3
	if len(stream) >= raw/2 {
		t.Errorf("compressed size %d not below half the raw size %d", len(stream), raw)
	}
}

// Scenario 2: single band ramp under the block-adaptive coder.
func TestBlockAdaptiveRamp(t *testing.T) {
	hdr := blockConfig(8, 8, 1, 16, 8, 2)
	c := cube.New(8, 8, 1)
	fill(c, func(x, y, z int) uint16 { return uint16(x + y) })
	roundTrip(t, "ramp", hdr, c)
}

// Scenario 3: independent input and output interleaves; the stream is
// byte-identical across repeated compressions.
func TestDeterminism(t *testing.T) {
	hdr := func() *meta.Header {
		h := sampleConfig(16, 16, 4, 12)
		h.Image.Interleave = cube.BIL
		h.Image.InterleaveDepth = 2
		h.Encoder.OutInterleave = cube.BIP
		return h
	}
	random := rand.New(rand.NewSource(1))
	c := cube.New(16, 16, 4)
	fill(c, func(x, y, z int) uint16 { return uint16(random.Intn(1 << 12)) })

	first := roundTrip(t, "determinism", hdr(), c)
	second := roundTrip(t, "determinism", hdr(), c)
	if !bytes.Equal(first, second) {
		t.Error("repeated compressions of the same cube differ")
	}
}

// Scenario 4: extreme values at the maximum dynamic range.
func TestExtremeValues(t *testing.T) {
	hdr := sampleConfig(2, 2, 2, 16)
	c := cube.New(2, 2, 2)
	samples := [][][]uint16{
		{{65535, 0}, {0, 65535}},
		{{65535, 65535}, {0, 0}},
	}
	fill(c, func(x, y, z int) uint16 { return samples[z][y][x] })
	roundTrip(t, "extremes", hdr, c)
}

// Scenario 5: checkerboard with all-zero regions under the block-adaptive
// coder.
func TestBlockAdaptiveCheckerboard(t *testing.T) {
	hdr := blockConfig(32, 32, 5, 8, 16, 4)
	c := cube.New(32, 32, 5)
	fill(c, func(x, y, z int) uint16 {
		if (x+y)&1 == 0 {
			return 255
		}
		return 0
	})
	roundTrip(t, "checkerboard", hdr, c)
}

// Scenario 6: configuration errors surface before any compression work.
func TestInvalidConfig(t *testing.T) {
	hdr := sampleConfig(1, 1, 1, 1)
	hdr.Predictor.Bands = 0
	c := cube.New(1, 1, 1)
	if _, err := ccsds123.Compress(new(bytes.Buffer), c, hdr); errors.Cause(err) != ccsds123.ErrInvalidConfig {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestInterleaveMatrix(t *testing.T) {
	// Input and output orders are independent; exercise all combinations.
	orders := []struct {
		order cube.Interleave
		depth int
	}{
		{order: cube.BSQ},
		{order: cube.BIP},
		{order: cube.BIL, depth: 2},
	}
	random := rand.New(rand.NewSource(3))
	c := cube.New(6, 5, 4)
	fill(c, func(x, y, z int) uint16 { return uint16(random.Intn(1 << 10)) })
	for _, in := range orders {
		for _, out := range orders {
			hdr := sampleConfig(6, 5, 4, 10)
			hdr.Image.Interleave = in.order
			hdr.Image.InterleaveDepth = in.depth
			hdr.Encoder.OutInterleave = out.order
			hdr.Encoder.OutInterleaveDepth = out.depth
			roundTrip(t, in.order.String()+"-"+out.order.String(), hdr, c)
		}
	}
}

func TestPatternCubes(t *testing.T) {
	golden := []struct {
		name string
		d    int
		gen  func(x, y, z int) uint16
	}{
		{name: "all zeros", d: 8, gen: func(x, y, z int) uint16 { return 0 }},
		{name: "all max", d: 8, gen: func(x, y, z int) uint16 { return 255 }},
		{name: "alternating", d: 8, gen: func(x, y, z int) uint16 { return uint16(((x + y + z) & 1) * 255) }},
		{name: "minimum dynamic range", d: 2, gen: func(x, y, z int) uint16 { return uint16((x ^ z) & 3) }},
		{name: "maximum dynamic range", d: 16, gen: func(x, y, z int) uint16 { return uint16(x*y*z + 65000) }},
	}
	for _, g := range golden {
		for _, method := range []string{"sample", "block"} {
			var hdr *meta.Header
			if method == "sample" {
				hdr = sampleConfig(8, 8, 3, g.d)
				hdr.Encoder.InitConst = 0
			} else {
				hdr = blockConfig(8, 8, 3, g.d, 8, 2)
			}
			c := cube.New(8, 8, 3)
			fill(c, g.gen)
			roundTrip(t, g.name+" "+method, hdr, c)
		}
	}
}

func TestBlockSizes(t *testing.T) {
	random := rand.New(rand.NewSource(9))
	c := cube.New(10, 10, 3)
	fill(c, func(x, y, z int) uint16 { return uint16(random.Intn(1 << 12)) })
	for _, bs := range []int{8, 16, 32, 64} {
		// A reference interval that divides the block count and one that
		// does not.
		for _, ref := range []int{1, 7} {
			hdr := blockConfig(10, 10, 3, 12, bs, ref)
			roundTrip(t, "block sizes", hdr, c)
		}
	}
}

func TestKInitExtremes(t *testing.T) {
	random := rand.New(rand.NewSource(10))
	c := cube.New(8, 8, 2)
	fill(c, func(x, y, z int) uint16 { return uint16(random.Intn(1 << 16)) })
	for _, k := range []int{0, 14} {
		hdr := sampleConfig(8, 8, 2, 16)
		hdr.Encoder.InitConst = k
		roundTrip(t, "k extremes", hdr, c)
	}
}

func TestSingleBand(t *testing.T) {
	// A single band cube forces intra-band prediction only.
	hdr := sampleConfig(8, 8, 1, 8)
	hdr.Predictor.Bands = 4 // clamps to 0
	random := rand.New(rand.NewSource(11))
	c := cube.New(8, 8, 1)
	fill(c, func(x, y, z int) uint16 { return uint16(random.Intn(256)) })
	roundTrip(t, "single band", hdr, c)
}

func TestFullModeEndToEnd(t *testing.T) {
	hdr := sampleConfig(8, 8, 4, 12)
	hdr.Predictor.Full = true
	hdr.Predictor.LocalSum = meta.NarrowNeighbor
	random := rand.New(rand.NewSource(12))
	c := cube.New(8, 8, 4)
	fill(c, func(x, y, z int) uint16 { return uint16(random.Intn(1 << 12)) })
	roundTrip(t, "full mode", hdr, c)
}

func TestTruncatedStream(t *testing.T) {
	hdr := sampleConfig(8, 8, 2, 12)
	random := rand.New(rand.NewSource(13))
	c := cube.New(8, 8, 2)
	fill(c, func(x, y, z int) uint16 { return uint16(random.Intn(1 << 12)) })
	buf := new(bytes.Buffer)
	if _, err := ccsds123.Compress(buf, c, hdr); err != nil {
		t.Fatal(err)
	}
	short := bytes.NewReader(buf.Bytes()[:buf.Len()-4])
	if _, _, err := ccsds123.Decompress(short); errors.Cause(err) != ccsds123.ErrTruncated {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}
