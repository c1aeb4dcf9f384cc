package predict

import (
	"encoding/binary"
	"io"

	"github.com/mewkiz/ccsds123/cube"
	"github.com/mewkiz/ccsds123/meta"
	"github.com/pkg/errors"
)

// DumpResiduals writes the residual cube to w as little-endian 16-bit words
// in band-interleaved-by-pixel order, the side-file format of the reference
// implementation's debug dumps.
func DumpResiduals(w io.Writer, img *meta.Image, res []uint16) error {
	s := cube.NewScanner(cube.BIP, img.ZSize, img.XSize, img.YSize, img.ZSize)
	buf := make([]byte, 2)
	for {
		x, y, z, ok := s.Next()
		if !ok {
			return nil
		}
		binary.LittleEndian.PutUint16(buf, res[(z*img.YSize+y)*img.XSize+x])
		if _, err := w.Write(buf); err != nil {
			return errors.Wrap(err, "predict.DumpResiduals")
		}
	}
}
