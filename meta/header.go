package meta

import (
	"io"
	mathbits "math/bits"

	"github.com/eaburns/bit"
	"github.com/icza/bitio"
	"github.com/mewkiz/ccsds123/cube"
	iobits "github.com/mewkiz/ccsds123/internal/bits"
	"github.com/pkg/errors"
)

// Header layout (all fields most significant bit first, reserved bits zero):
//
//	image block (104 bits):
//	   user data 8, x 16, y 16, z 16, signed 1, reserved 2, dyn range mod
//	   16 in 4, input interleave 2, input depth 16, byte order 1, output
//	   interleave 2, output depth 16, word size mod 8 in 3, method 1
//	predictor block (40 bits):
//	   reserved 2, bands 4, mode 1, reserved 1, local sum 1, reserved 1,
//	   register size mod 64 in 6, weight resolution-4 in 4,
//	   log2(interval)-4 in 4, initial+6 in 4, final+6 in 4, reserved 1,
//	   init method 1, table flag 1, table resolution 5
//	   [weight table: per band, one signed entry per component, byte padded]
//	encoder block (16 bits):
//	   sample: unary limit mod 32 in 5, rescale-4 in 3, count exponent mod
//	   8 in 3, constant 4 (15 = table follows), table flag 1
//	   [accumulator table: 4 bits per band, byte padded]
//	   block: reserved 1, log2(block size)-3 in 2, reserved 1, reference
//	   interval mod 4096 in 12
//
// The header is byte aligned at the end; the payload follows immediately.

// Write stores the packed header, writing to bw. The header must have been
// validated.
func (h *Header) Write(bw bitio.Writer) error {
	img, p, enc := &h.Image, &h.Predictor, &h.Encoder

	// Image block.
	fields := []struct {
		v uint64
		n byte
	}{
		{0, 8}, // user defined data
		{uint64(img.XSize), 16},
		{uint64(img.YSize), 16},
		{uint64(img.ZSize), 16},
		{b2u(img.Signed), 1},
		{0, 2},
		{uint64(img.DynRange % 16), 4},
		{uint64(img.Interleave), 2},
		{uint64(depthField(img.Interleave, img.InterleaveDepth)), 16},
		{uint64(img.ByteOrder), 1},
		{uint64(enc.OutInterleave), 2},
		{uint64(depthField(enc.OutInterleave, enc.OutInterleaveDepth)), 16},
		{uint64(enc.WordSize % 8), 3},
		{uint64(enc.Method), 1},

		// Predictor block.
		{0, 2},
		{uint64(p.Bands), 4},
		{b2u(!p.Full), 1}, // 0 = full, 1 = reduced
		{0, 1},
		{uint64(p.LocalSum), 1},
		{0, 1},
		{uint64(p.RegisterSize % 64), 6},
		{uint64(p.WeightResolution - 4), 4},
		{uint64(mathbits.Len(uint(p.WeightInterval)) - 1 - 4), 4},
		{uint64(p.WeightInitial + 6), 4},
		{uint64(p.WeightFinal + 6), 4},
		{0, 1},
		{b2u(p.WeightInitTable != nil), 1},
		{b2u(p.WeightInitTable != nil), 1},
		{uint64(p.WeightInitResolution), 5},
	}
	for _, f := range fields {
		if err := bw.WriteBits(f.v, f.n); err != nil {
			return err
		}
	}

	// Weight initialization table.
	if p.WeightInitTable != nil {
		q := uint(p.WeightInitResolution)
		for _, row := range p.WeightInitTable {
			for _, w := range row {
				if err := bw.WriteBits(iobits.UintN(int64(w), q), byte(q)); err != nil {
					return err
				}
			}
		}
		if _, err := bw.Align(); err != nil {
			return err
		}
	}

	// Encoder block.
	switch enc.Method {
	case SampleAdaptive:
		k := uint64(enc.InitConst)
		if enc.InitTable != nil {
			k = 15
		}
		fields := []struct {
			v uint64
			n byte
		}{
			{uint64(enc.UnaryLimit % 32), 5},
			{uint64(enc.RescaleSize - 4), 3},
			{uint64(enc.InitCountExp % 8), 3},
			{k, 4},
			{b2u(enc.InitTable != nil), 1},
		}
		for _, f := range fields {
			if err := bw.WriteBits(f.v, f.n); err != nil {
				return err
			}
		}
		if enc.InitTable != nil {
			for _, k := range enc.InitTable {
				if err := bw.WriteBits(uint64(k), 4); err != nil {
					return err
				}
			}
			if _, err := bw.Align(); err != nil {
				return err
			}
		}
	case BlockAdaptive:
		bsCode := uint64(mathbits.Len(uint(enc.BlockSize)) - 1 - 3)
		if err := bw.WriteBits(0, 1); err != nil {
			return err
		}
		if err := bw.WriteBits(bsCode, 2); err != nil {
			return err
		}
		if err := bw.WriteBits(0, 1); err != nil {
			return err
		}
		if err := bw.WriteBits(uint64(enc.RefInterval%4096), 12); err != nil {
			return err
		}
	}
	return nil
}

// Parse reads and returns the packed header from r, leaving r positioned at
// the first payload byte.
func Parse(r io.Reader) (h *Header, err error) {
	br := bit.NewReader(r)

	// Image block.
	// fields: user 8, x 16, y 16, z 16, signed 1, reserved 2, dyn range 4,
	// in interleave 2, in depth 16, byte order 1, out interleave 2, out
	// depth 16, word size 3, method 1.
	fs, err := br.ReadFields(8, 16, 16, 16, 1, 2, 4, 2, 16, 1, 2, 16, 3, 1)
	if err != nil {
		return nil, streamErr(err)
	}
	h = new(Header)
	img, enc := &h.Image, &h.Encoder
	img.XSize = int(fs[1])
	img.YSize = int(fs[2])
	img.ZSize = int(fs[3])
	if img.XSize == 0 || img.YSize == 0 || img.ZSize == 0 {
		return nil, errors.Wrapf(ErrCorruptHeader, "meta.Parse: cube extents %dx%dx%d; all dimensions must be positive", img.XSize, img.YSize, img.ZSize)
	}
	img.Signed = fs[4] == 1
	if fs[5] != 0 {
		return nil, errors.Wrap(ErrCorruptHeader, "meta.Parse: all reserved bits must be 0")
	}
	img.DynRange = mod16(int(fs[6]))
	if img.DynRange < 2 {
		return nil, errors.Wrapf(ErrCorruptHeader, "meta.Parse: dynamic range %d outside [2, 16]", img.DynRange)
	}
	if fs[7] > uint64(cube.BIL) {
		return nil, errors.Wrapf(ErrCorruptHeader, "meta.Parse: unknown input interleave %d", fs[7])
	}
	img.Interleave = cube.Interleave(fs[7])
	img.InterleaveDepth = int(fs[8])
	img.ByteOrder = ByteOrder(fs[9])
	if fs[10] > uint64(cube.BIL) {
		return nil, errors.Wrapf(ErrCorruptHeader, "meta.Parse: unknown output interleave %d", fs[10])
	}
	enc.OutInterleave = cube.Interleave(fs[10])
	enc.OutInterleaveDepth = int(fs[11])
	enc.WordSize = int(fs[12])
	if enc.WordSize == 0 {
		enc.WordSize = 8
	}
	enc.Method = EncodingMethod(fs[13])

	// Predictor block.
	// fields: reserved 2, bands 4, mode 1, reserved 1, local sum 1,
	// reserved 1, register size 6, weight resolution 4, interval exponent
	// 4, initial 4, final 4, reserved 1, init method 1, table flag 1,
	// table resolution 5.
	fs, err = br.ReadFields(2, 4, 1, 1, 1, 1, 6, 4, 4, 4, 4, 1, 1, 1, 5)
	if err != nil {
		return nil, streamErr(err)
	}
	p := &h.Predictor
	if fs[0] != 0 || fs[3] != 0 || fs[5] != 0 || fs[11] != 0 {
		return nil, errors.Wrap(ErrCorruptHeader, "meta.Parse: all reserved bits must be 0")
	}
	p.Bands = int(fs[1])
	p.Full = fs[2] == 0
	p.LocalSum = LocalSum(fs[4])
	p.RegisterSize = int(fs[6])
	if p.RegisterSize == 0 {
		p.RegisterSize = 64
	}
	if p.RegisterSize < 32 {
		return nil, errors.Wrapf(ErrCorruptHeader, "meta.Parse: register size %d outside [32, 64]", p.RegisterSize)
	}
	p.WeightResolution = int(fs[7]) + 4
	p.WeightInterval = 1 << (fs[8] + 4)
	p.WeightInitial = int(fs[9]) - 6
	p.WeightFinal = int(fs[10]) - 6
	if fs[12] != fs[13] {
		return nil, errors.Wrap(ErrCorruptHeader, "meta.Parse: weight initialization method and table flag mismatch")
	}
	hasTable := fs[13] == 1
	p.WeightInitResolution = int(fs[14])
	if !hasTable && p.WeightInitResolution != 0 {
		return nil, errors.Wrapf(ErrCorruptHeader, "meta.Parse: weight initialization resolution %d without a table", p.WeightInitResolution)
	}

	// Weight initialization table.
	if hasTable {
		q := uint(p.WeightInitResolution)
		if q < 3 || int(q) > p.WeightResolution+3 {
			return nil, errors.Wrapf(ErrCorruptHeader, "meta.Parse: weight initialization resolution %d outside [3, %d]", q, p.WeightResolution+3)
		}
		p.WeightInitTable = make([][]int32, img.ZSize)
		for z := range p.WeightInitTable {
			row := make([]int32, p.ComponentCount())
			for i := range row {
				v, err := br.Read(q)
				if err != nil {
					return nil, streamErr(err)
				}
				row[i] = int32(iobits.IntN(v, q))
			}
			p.WeightInitTable[z] = row
		}
		if err := alignByte(br, img.ZSize*p.ComponentCount()*int(q)); err != nil {
			return nil, err
		}
	}

	// Encoder block.
	switch enc.Method {
	case SampleAdaptive:
		fs, err = br.ReadFields(5, 3, 3, 4, 1)
		if err != nil {
			return nil, streamErr(err)
		}
		enc.UnaryLimit = int(fs[0])
		if enc.UnaryLimit == 0 {
			enc.UnaryLimit = 32
		}
		enc.RescaleSize = int(fs[1]) + 4
		enc.InitCountExp = int(fs[2])
		if enc.InitCountExp == 0 {
			enc.InitCountExp = 8
		}
		enc.InitConst = int(fs[3])
		if fs[4] == 1 {
			if enc.InitConst != 15 {
				return nil, errors.Wrapf(ErrCorruptHeader, "meta.Parse: accumulator constant %d alongside a table; expected the reserved value 15", enc.InitConst)
			}
			enc.InitConst = -1
			enc.InitTable = make([]uint8, img.ZSize)
			for z := range enc.InitTable {
				v, err := br.Read(4)
				if err != nil {
					return nil, streamErr(err)
				}
				enc.InitTable[z] = uint8(v)
			}
			if err := alignByte(br, img.ZSize*4); err != nil {
				return nil, err
			}
		} else if enc.InitConst == 15 {
			return nil, errors.Wrap(ErrCorruptHeader, "meta.Parse: reserved accumulator constant 15 without a table")
		}
	case BlockAdaptive:
		fs, err = br.ReadFields(1, 2, 1, 12)
		if err != nil {
			return nil, streamErr(err)
		}
		if fs[0] != 0 || fs[2] != 0 {
			return nil, errors.Wrap(ErrCorruptHeader, "meta.Parse: all reserved bits must be 0")
		}
		enc.BlockSize = 8 << fs[1]
		enc.RefInterval = int(fs[3])
		if enc.RefInterval == 0 {
			enc.RefInterval = 4096
		}
		enc.InitConst = -1
	}

	// A header that decodes to an invalid configuration is corrupt, not a
	// caller mistake.
	if err := h.Validate(); err != nil {
		return nil, errors.Wrapf(ErrCorruptHeader, "meta.Parse: %v", err)
	}
	return h, nil
}

// depthField returns the on-wire interleave depth; orders other than BIL
// carry no depth.
func depthField(order cube.Interleave, depth int) int {
	if order == cube.BIL {
		return depth
	}
	return 0
}

// mod16 decodes the 4-bit dynamic range field; 16 wraps to 0 on the wire.
func mod16(v int) int {
	if v == 0 {
		return 16
	}
	return v
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// alignByte consumes the padding that follows a table of the given bit
// length up to the next byte boundary, and requires it to be zero. Tables
// start byte aligned; the fixed header blocks are whole bytes.
func alignByte(br *bit.Reader, tableBits int) error {
	n := tableBits % 8
	if n == 0 {
		return nil
	}
	pad, err := br.Read(uint(8 - n))
	if err != nil {
		return streamErr(err)
	}
	if pad != 0 {
		return errors.Wrap(ErrCorruptHeader, "meta.Parse: invalid padding; must be 0")
	}
	return nil
}

// streamErr maps end-of-stream conditions of the underlying reader to
// ErrTruncated.
func streamErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrap(ErrTruncated, "meta.Parse: unexpected end of header")
	}
	return errors.WithStack(err)
}
