package meta

import (
	"github.com/mewkiz/ccsds123/cube"
	"github.com/pkg/errors"
)

// Validate checks every configuration parameter against its specified range
// and reports the first offending field. It runs before any allocation and
// normalizes the prediction band count the way the reference encoder does,
// clamping it to one less than the number of bands, capped at 15.
func (h *Header) Validate() error {
	img, p, enc := &h.Image, &h.Predictor, &h.Encoder

	if img.XSize < 1 || img.YSize < 1 || img.ZSize < 1 {
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: cube extents %dx%dx%d; all dimensions must be positive", img.XSize, img.YSize, img.ZSize)
	}
	if img.DynRange < 2 || img.DynRange > 16 {
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: dynamic range %d outside [2, 16]", img.DynRange)
	}
	if img.Interleave > cube.BIL {
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: unknown input interleave %d", img.Interleave)
	}
	if img.Interleave == cube.BIL && (img.InterleaveDepth < 1 || img.InterleaveDepth > img.ZSize) {
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: input interleave depth %d outside [1, %d]", img.InterleaveDepth, img.ZSize)
	}

	if p.Bands < 0 {
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: prediction bands %d; must not be negative", p.Bands)
	}
	if p.Bands > img.ZSize-1 {
		p.Bands = img.ZSize - 1
	}
	if p.Bands > 15 {
		p.Bands = 15
	}
	if p.LocalSum > NarrowNeighbor {
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: unknown local sum formula %d", p.LocalSum)
	}
	if p.RegisterSize < 32 || p.RegisterSize > 64 {
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: register size %d outside [32, 64]", p.RegisterSize)
	}
	if p.WeightResolution < 4 || p.WeightResolution > 19 {
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: weight resolution %d outside [4, 19]", p.WeightResolution)
	}
	if p.WeightInterval < 1<<4 || p.WeightInterval > 1<<11 || p.WeightInterval&(p.WeightInterval-1) != 0 {
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: weight update interval %d; must be a power of two in [%d, %d]", p.WeightInterval, 1<<4, 1<<11)
	}
	if p.WeightInitial < -6 || p.WeightInitial > 9 {
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: initial weight exponent %d outside [-6, 9]", p.WeightInitial)
	}
	if p.WeightFinal < -6 || p.WeightFinal > 9 {
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: final weight exponent %d outside [-6, 9]", p.WeightFinal)
	}
	if (p.WeightInitTable != nil) != (p.WeightInitResolution != 0) {
		return errors.Wrap(ErrInvalidConfig, "meta.Validate: weight initialization table and resolution must both be present or both absent")
	}
	if p.WeightInitTable != nil {
		if p.WeightInitResolution < 3 || p.WeightInitResolution > p.WeightResolution+3 {
			return errors.Wrapf(ErrInvalidConfig, "meta.Validate: weight initialization resolution %d outside [3, %d]", p.WeightInitResolution, p.WeightResolution+3)
		}
		if len(p.WeightInitTable) != img.ZSize {
			return errors.Wrapf(ErrInvalidConfig, "meta.Validate: weight initialization table has %d rows; expected one per band (%d)", len(p.WeightInitTable), img.ZSize)
		}
		limit := int32(1) << uint(p.WeightInitResolution-1)
		for z, row := range p.WeightInitTable {
			if len(row) != p.ComponentCount() {
				return errors.Wrapf(ErrInvalidConfig, "meta.Validate: weight initialization row %d has %d entries; expected %d", z, len(row), p.ComponentCount())
			}
			for _, w := range row {
				if w < -limit || w > limit-1 {
					return errors.Wrapf(ErrInvalidConfig, "meta.Validate: weight initialization entry %d outside [%d, %d]", w, -limit, limit-1)
				}
			}
		}
	}

	if enc.OutInterleave > cube.BIL {
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: unknown output interleave %d", enc.OutInterleave)
	}
	if enc.OutInterleave == cube.BIL && (enc.OutInterleaveDepth < 1 || enc.OutInterleaveDepth > img.ZSize) {
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: output interleave depth %d outside [1, %d]", enc.OutInterleaveDepth, img.ZSize)
	}
	if enc.WordSize < 1 || enc.WordSize > 8 {
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: output word size %d outside [1, 8]", enc.WordSize)
	}

	switch enc.Method {
	case SampleAdaptive:
		if enc.BlockSize != 0 || enc.RefInterval != 0 {
			return errors.Wrap(ErrInvalidConfig, "meta.Validate: block size and reference interval apply to the block-adaptive encoder only")
		}
		if enc.InitCountExp < 1 || enc.InitCountExp > 8 {
			return errors.Wrapf(ErrInvalidConfig, "meta.Validate: initial count exponent %d outside [1, 8]", enc.InitCountExp)
		}
		floor := 4
		if enc.InitCountExp+1 > floor {
			floor = enc.InitCountExp + 1
		}
		if enc.RescaleSize < floor || enc.RescaleSize > 9 {
			return errors.Wrapf(ErrInvalidConfig, "meta.Validate: rescaling counter size %d outside [%d, 9]", enc.RescaleSize, floor)
		}
		if enc.UnaryLimit < 8 || enc.UnaryLimit > 32 {
			return errors.Wrapf(ErrInvalidConfig, "meta.Validate: unary length limit %d outside [8, 32]", enc.UnaryLimit)
		}
		if (enc.InitConst >= 0) == (enc.InitTable != nil) {
			return errors.Wrap(ErrInvalidConfig, "meta.Validate: exactly one of the accumulator initialization constant and table must be given")
		}
		if enc.InitConst > img.DynRange-2 {
			return errors.Wrapf(ErrInvalidConfig, "meta.Validate: accumulator initialization constant %d outside [0, %d]", enc.InitConst, img.DynRange-2)
		}
		if enc.InitTable != nil {
			if len(enc.InitTable) != img.ZSize {
				return errors.Wrapf(ErrInvalidConfig, "meta.Validate: accumulator initialization table has %d entries; expected one per band (%d)", len(enc.InitTable), img.ZSize)
			}
			for z, k := range enc.InitTable {
				if int(k) > img.DynRange-2 {
					return errors.Wrapf(ErrInvalidConfig, "meta.Validate: accumulator initialization entry %d for band %d outside [0, %d]", k, z, img.DynRange-2)
				}
			}
		}
	case BlockAdaptive:
		if enc.InitCountExp != 0 || enc.RescaleSize != 0 || enc.UnaryLimit != 0 || enc.InitConst >= 0 || enc.InitTable != nil {
			return errors.Wrap(ErrInvalidConfig, "meta.Validate: sample-adaptive parameters apply to the sample-adaptive encoder only")
		}
		switch enc.BlockSize {
		case 8, 16, 32, 64:
		default:
			return errors.Wrapf(ErrInvalidConfig, "meta.Validate: block size %d; must be 8, 16, 32 or 64", enc.BlockSize)
		}
		if enc.RefInterval < 1 || enc.RefInterval > 4096 {
			return errors.Wrapf(ErrInvalidConfig, "meta.Validate: reference interval %d outside [1, 4096]", enc.RefInterval)
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "meta.Validate: unknown encoding method %d", enc.Method)
	}
	return nil
}
