package dataset

import (
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/hdbvalue/features"
)

// Synthetic generates n valid examples whose price is
// slope·remaining_lease plus Gaussian noise of standard deviation noise.
// The other features are drawn at random and carry no signal. It backs the
// end-to-end tests and the CLI demo command.
func Synthetic(n int, slope, noise float64, seed uint64) *Dataset {
	r := rand.New(rand.NewPCG(seed, seed+1))
	examples := make([]Example, n)
	for i := range examples {
		l := features.Listing{
			RemainingLease: float64(40 + r.IntN(60)),
			MinDistSchool:  round2(r.Float64() * 2),
			StoreyMedian:   float64(1 + r.IntN(30)),
			MinDistMRT:     round2(r.Float64() * 3),
			FloorAreaSqm:   float64(35 + r.IntN(120)),
			MinDistCBD:     round2(2 + r.Float64()*20),
			FlatType:       features.FlatType(r.IntN(features.NumFlatTypes)),
		}
		examples[i] = Example{
			Features: l.Vector(),
			Price:    slope*l.RemainingLease + noise*r.NormFloat64(),
		}
	}
	return New(examples)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
