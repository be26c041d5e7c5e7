package nn

import (
	"encoding/binary"
	"math"

	"FinPolicy/internal/domain/models"

	"github.com/cespare/xxhash/v2"
)

// Checksum is a deterministic digest of every weight and bias value and the
// layer shapes. Metadata does not participate.
func Checksum(w *models.ModelWeights) uint64 {
	d := xxhash.New()
	var buf [8]byte

	putInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = d.Write(buf[:])
	}
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	}

	for _, head := range [][]models.LayerWeights{w.PolicyNet, w.ValueNet, w.ConstraintNet} {
		putInt(len(head))
		for _, l := range head {
			putInt(len(l.Weights))
			for _, row := range l.Weights {
				putInt(len(row))
				for _, v := range row {
					putFloat(v)
				}
			}
			putInt(len(l.Biases))
			for _, v := range l.Biases {
				putFloat(v)
			}
		}
	}
	return d.Sum64()
}
