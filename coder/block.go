package coder

import (
	"github.com/icza/bitio"
	iobits "github.com/mewkiz/ccsds123/internal/bits"
	"github.com/mewkiz/ccsds123/meta"
	"github.com/mewkiz/pkg/errutil"
	"github.com/pkg/errors"
)

// Code options of the block-adaptive coder, in identifier order. Zero-block
// and second-extension share the all-zeros identifier, told apart by one
// extra bit; k-split options follow with identifier k+1 (k = 0 is the
// fundamental sequence); the all-ones identifier is no-compression.
type option struct {
	kind optionKind
	k    uint
}

type optionKind uint8

const (
	optZero optionKind = iota
	optSecondExt
	optSplit
	optNoComp
)

// maxZeroRun bounds a single zero-block run length.
const maxZeroRun = 64

// blockCoder is the block-adaptive Rice coder. The residual stream is cut
// into fixed-size blocks in payload order; each block is coded with the
// cheapest applicable option. Every RefInterval-th block is a reference
// block whose first symbol travels verbatim.
type blockCoder struct {
	hdr        *meta.Header
	nx, ny, nz int
	d          int
	idBits     byte
	kmax       uint
	bs, ref    int
	total      int
}

func newBlockCoder(hdr *meta.Header) *blockCoder {
	img, enc := &hdr.Image, &hdr.Encoder
	bc := &blockCoder{
		hdr:   hdr,
		nx:    img.XSize,
		ny:    img.YSize,
		nz:    img.ZSize,
		d:     img.DynRange,
		bs:    enc.BlockSize,
		ref:   enc.RefInterval,
		total: img.XSize * img.YSize * img.ZSize,
	}
	// Identifier width follows the dynamic range; the top of the k range is
	// bounded by the identifiers reserved for the low-entropy options and
	// no-compression.
	bc.idBits = 3
	if bc.d > 8 {
		bc.idBits = 4
	}
	bc.kmax = uint(1)<<bc.idBits - 3
	if bc.kmax > uint(bc.d-2) {
		bc.kmax = uint(bc.d - 2)
	}
	return bc
}

// blockLen returns the symbol count of block b; only the final block may be
// short.
func (bc *blockCoder) blockLen(b int) int {
	if (b+1)*bc.bs <= bc.total {
		return bc.bs
	}
	return bc.total - b*bc.bs
}

func (bc *blockCoder) nblocks() int {
	return (bc.total + bc.bs - 1) / bc.bs
}

func allZero(blk []uint16) bool {
	for _, v := range blk {
		if v != 0 {
			return false
		}
	}
	return true
}

func (bc *blockCoder) encode(bw bitio.Writer, res []uint16) error {
	s := outScanner(bc.hdr)
	blk := make([]uint16, 0, bc.bs)
	b := 0
	zeroRun := 0

	flushRun := func() error {
		if zeroRun == 0 {
			return nil
		}
		if err := bw.WriteBits(0, bc.idBits); err != nil {
			return errutil.Err(err)
		}
		if err := bw.WriteBits(0, 1); err != nil {
			return errutil.Err(err)
		}
		if err := iobits.WriteUnary(bw, uint64(zeroRun-1)); err != nil {
			return errutil.Err(err)
		}
		zeroRun = 0
		return nil
	}

	processBlock := func() error {
		isRef := b%bc.ref == 0
		b++
		if !isRef && allZero(blk) {
			// Zero blocks between references collapse into run lengths.
			zeroRun++
			if zeroRun == maxZeroRun {
				return flushRun()
			}
			return nil
		}
		if err := flushRun(); err != nil {
			return err
		}
		return bc.encodeBlock(bw, blk, isRef)
	}

	for {
		x, y, z, ok := s.Next()
		if !ok {
			break
		}
		blk = append(blk, res[(z*bc.ny+y)*bc.nx+x])
		if len(blk) == bc.bs {
			if err := processBlock(); err != nil {
				return err
			}
			blk = blk[:0]
		}
	}
	if len(blk) > 0 {
		if err := processBlock(); err != nil {
			return err
		}
	}
	return flushRun()
}

// encodeBlock writes one coded block. Reference blocks lead with their first
// symbol in binary; the remaining symbols are coded like any block, except
// that the zero-block option then simply marks an all-zero remainder.
func (bc *blockCoder) encodeBlock(bw bitio.Writer, blk []uint16, isRef bool) error {
	rest := blk
	if isRef {
		if err := bw.WriteBits(uint64(blk[0]), byte(bc.d)); err != nil {
			return errutil.Err(err)
		}
		rest = blk[1:]
		if len(rest) == 0 {
			return nil
		}
	}
	opt := bc.selectOption(rest)
	switch opt.kind {
	case optZero:
		if err := bw.WriteBits(0, bc.idBits); err != nil {
			return errutil.Err(err)
		}
		if err := bw.WriteBits(0, 1); err != nil {
			return errutil.Err(err)
		}
	case optSecondExt:
		if err := bw.WriteBits(0, bc.idBits); err != nil {
			return errutil.Err(err)
		}
		if err := bw.WriteBits(1, 1); err != nil {
			return errutil.Err(err)
		}
		for i := 0; i < len(rest); i += 2 {
			if err := iobits.WriteUnary(bw, pairSum(rest[i], rest[i+1])); err != nil {
				return errutil.Err(err)
			}
		}
	case optSplit:
		if err := bw.WriteBits(uint64(opt.k+1), bc.idBits); err != nil {
			return errutil.Err(err)
		}
		for _, v := range rest {
			if err := iobits.WriteUnary(bw, uint64(v)>>opt.k); err != nil {
				return errutil.Err(err)
			}
			if opt.k > 0 {
				if err := bw.WriteBits(uint64(v)&(1<<opt.k-1), byte(opt.k)); err != nil {
					return errutil.Err(err)
				}
			}
		}
	case optNoComp:
		if err := bw.WriteBits(uint64(1)<<bc.idBits-1, bc.idBits); err != nil {
			return errutil.Err(err)
		}
		for _, v := range rest {
			if err := bw.WriteBits(uint64(v), byte(bc.d)); err != nil {
				return errutil.Err(err)
			}
		}
	}
	return nil
}

// selectOption returns the cheapest code option for the given symbols, with
// ties broken toward the lowest identifier.
func (bc *blockCoder) selectOption(rest []uint16) option {
	m := uint64(len(rest))
	id := uint64(bc.idBits)
	// Start one bit above the no-compression cost so that any option of
	// equal cost, all of which have lower identifiers, wins the tie.
	best := option{kind: optNoComp}
	bestCost := id + m*uint64(bc.d) + 1

	if allZero(rest) {
		// Always cheapest, and lowest identifier.
		return option{kind: optZero}
	}
	if len(rest)%2 == 0 {
		cost := id + 1
		for i := 0; i < len(rest) && cost < bestCost; i += 2 {
			cost += pairSum(rest[i], rest[i+1]) + 1
		}
		if cost < bestCost {
			best, bestCost = option{kind: optSecondExt}, cost
		}
	}
	for k := uint(0); k <= bc.kmax; k++ {
		cost := id + m*uint64(k+1)
		for _, v := range rest {
			cost += uint64(v) >> k
			if cost >= bestCost {
				break
			}
		}
		if cost < bestCost {
			best, bestCost = option{kind: optSplit, k: k}, cost
		}
	}
	return best
}

// pairSum folds two symbols into the second-extension codeword operand.
func pairSum(a, b uint16) uint64 {
	s := uint64(a) + uint64(b)
	return s*(s+1)/2 + uint64(b)
}

func (bc *blockCoder) decode(br *iobits.Reader, res []uint16) error {
	s := outScanner(bc.hdr)
	maxSample := uint64(1)<<uint(bc.d) - 1

	place := func(v uint64) error {
		x, y, z, ok := s.Next()
		if !ok {
			return errors.Wrap(meta.ErrOverflow, "coder.Decode: more codewords than samples")
		}
		if v > maxSample {
			return errors.Wrapf(meta.ErrOverflow, "coder.Decode: residual %d at (%d, %d, %d) exceeds the dynamic range", v, x, y, z)
		}
		res[(z*bc.ny+y)*bc.nx+x] = uint16(v)
		return nil
	}

	nblocks := bc.nblocks()
	for b := 0; b < nblocks; {
		m := bc.blockLen(b)
		isRef := b%bc.ref == 0
		if isRef {
			first, err := br.ReadBits(byte(bc.d))
			if err != nil {
				return streamErr(err)
			}
			if err := place(first); err != nil {
				return err
			}
			m--
			b++
			if m == 0 {
				continue
			}
			if err := bc.decodeBody(br, m, place); err != nil {
				return err
			}
			continue
		}
		id, err := br.ReadBits(bc.idBits)
		if err != nil {
			return streamErr(err)
		}
		if id == 0 {
			ext, err := br.ReadBits(1)
			if err != nil {
				return streamErr(err)
			}
			if ext == 0 {
				run, err := br.ReadUnary()
				if err != nil {
					return streamErr(err)
				}
				if run+1 > maxZeroRun || b+int(run)+1 > nblocks {
					return errors.Wrapf(meta.ErrOverflow, "coder.Decode: zero-block run of %d at block %d", run+1, b)
				}
				for i := uint64(0); i <= run; i++ {
					for j := bc.blockLen(b); j > 0; j-- {
						if err := place(0); err != nil {
							return err
						}
					}
					b++
				}
				continue
			}
			if err := bc.decodeSecondExt(br, m, place); err != nil {
				return err
			}
			b++
			continue
		}
		if err := bc.decodeCoded(br, id, m, place); err != nil {
			return err
		}
		b++
	}
	return nil
}

// decodeBody decodes the coded remainder of a reference block.
func (bc *blockCoder) decodeBody(br *iobits.Reader, m int, place func(uint64) error) error {
	id, err := br.ReadBits(bc.idBits)
	if err != nil {
		return streamErr(err)
	}
	if id == 0 {
		ext, err := br.ReadBits(1)
		if err != nil {
			return streamErr(err)
		}
		if ext == 0 {
			// All-zero remainder; reference blocks carry no run length.
			for ; m > 0; m-- {
				if err := place(0); err != nil {
					return err
				}
			}
			return nil
		}
		return bc.decodeSecondExt(br, m, place)
	}
	return bc.decodeCoded(br, id, m, place)
}

// decodeCoded decodes m symbols under a k-split or no-compression
// identifier.
func (bc *blockCoder) decodeCoded(br *iobits.Reader, id uint64, m int, place func(uint64) error) error {
	if id == uint64(1)<<bc.idBits-1 {
		for ; m > 0; m-- {
			v, err := br.ReadBits(byte(bc.d))
			if err != nil {
				return streamErr(err)
			}
			if err := place(v); err != nil {
				return err
			}
		}
		return nil
	}
	k := uint(id - 1)
	if k > bc.kmax {
		return errors.Wrapf(meta.ErrOverflow, "coder.Decode: split parameter %d exceeds %d", k, bc.kmax)
	}
	for ; m > 0; m-- {
		q, err := br.ReadUnary()
		if err != nil {
			return streamErr(err)
		}
		v := q << k
		if k > 0 {
			r, err := br.ReadBits(byte(k))
			if err != nil {
				return streamErr(err)
			}
			v |= r
		}
		if err := place(v); err != nil {
			return err
		}
	}
	return nil
}

// decodeSecondExt decodes m symbols coded pairwise under the second
// extension option.
func (bc *blockCoder) decodeSecondExt(br *iobits.Reader, m int, place func(uint64) error) error {
	if m%2 != 0 {
		return errors.Wrapf(meta.ErrOverflow, "coder.Decode: second extension over %d symbols; needs pairs", m)
	}
	for ; m > 0; m -= 2 {
		gamma, err := br.ReadUnary()
		if err != nil {
			return streamErr(err)
		}
		if gamma > 1<<34 {
			return errors.Wrapf(meta.ErrOverflow, "coder.Decode: second extension operand %d out of range", gamma)
		}
		var s uint64
		for (s+1)*(s+2)/2 <= gamma {
			s++
		}
		second := gamma - s*(s+1)/2
		first := s - second
		if err := place(first); err != nil {
			return err
		}
		if err := place(second); err != nil {
			return err
		}
	}
	return nil
}
