package dataset

import (
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

// SplitOptions controls Split. TestFraction is taken from the whole
// dataset, CalibrationFraction from what remains after the test rows.
type SplitOptions struct {
	TestFraction        float64
	CalibrationFraction float64
	Seed                uint64
}

// DefaultSplitOptions returns a 0.2 test fraction, a 0.2 calibration
// fraction and seed 42.
func DefaultSplitOptions() SplitOptions {
	return SplitOptions{TestFraction: 0.2, CalibrationFraction: 0.2, Seed: 42}
}

// Partition is a disjoint three-way split. The index slices refer to rows
// of the dataset that was split.
type Partition struct {
	Train       *Dataset
	Test        *Dataset
	Calibration *Dataset

	TrainIdx       []int
	TestIdx        []int
	CalibrationIdx []int
}

// Split shuffles the dataset with opts.Seed and carves out test and
// calibration subsets. Equal inputs always produce equal partitions.
func Split(d *Dataset, opts SplitOptions) (Partition, error) {
	if opts.TestFraction < 0 || opts.TestFraction >= 1 {
		return Partition{}, errors.NewConfigurationError("dataset.Split", "test_fraction", "must be in [0, 1)", opts.TestFraction)
	}
	if opts.CalibrationFraction < 0 || opts.CalibrationFraction >= 1 {
		return Partition{}, errors.NewConfigurationError("dataset.Split", "calibration_fraction", "must be in (0, 1)", opts.CalibrationFraction)
	}
	if opts.CalibrationFraction == 0 {
		return Partition{}, errors.NewInsufficientDataError("dataset.Split", 1, 0,
			"a calibration subset disjoint from training is required")
	}

	n := d.Len()
	nTest := ceilCount(opts.TestFraction, n)
	nCal := ceilCount(opts.CalibrationFraction, n-nTest)
	nTrain := n - nTest - nCal
	if nTrain < 1 || nCal < 1 {
		return Partition{}, errors.NewInsufficientDataError("dataset.Split", 3, n,
			"need at least one training and one calibration example")
	}

	idx := permutation(n, opts.Seed)
	p := Partition{
		TestIdx:        idx[:nTest:nTest],
		CalibrationIdx: idx[nTest : nTest+nCal : nTest+nCal],
		TrainIdx:       idx[nTest+nCal:],
	}
	p.Train = d.Subset(p.TrainIdx)
	p.Test = d.Subset(p.TestIdx)
	p.Calibration = d.Subset(p.CalibrationIdx)
	return p, nil
}

// ceilCount is ceil(frac·n) tolerant of representation error in frac.
func ceilCount(frac float64, n int) int {
	return int(math.Ceil(frac*float64(n) - 1e-9))
}

func permutation(n int, seed uint64) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	r := rand.New(rand.NewPCG(seed, seed))
	r.Shuffle(n, func(i, j int) {
		idx[i], idx[j] = idx[j], idx[i]
	})
	return idx
}

// Fold is one cross-validation split of row indices.
type Fold struct {
	Train []int
	Test  []int
}

// KFold splits n rows into k folds. The first n%k folds get one extra test
// row. With shuffle the rows are permuted by seed first.
func KFold(n, k int, shuffle bool, seed uint64) ([]Fold, error) {
	if k < 2 {
		return nil, errors.NewInsufficientDataError("dataset.KFold", 2, k, "cross-validation needs at least two folds")
	}
	if n < k {
		return nil, errors.NewInsufficientDataError("dataset.KFold", k, n, "fewer rows than folds")
	}

	var idx []int
	if shuffle {
		idx = permutation(n, seed)
	} else {
		idx = make([]int, n)
		for i := range idx {
			idx[i] = i
		}
	}

	folds := make([]Fold, k)
	foldSize, remainder := n/k, n%k
	inTest := make([]bool, n)
	start := 0
	for f := 0; f < k; f++ {
		size := foldSize
		if f < remainder {
			size++
		}
		test := append([]int(nil), idx[start:start+size]...)
		for i := range inTest {
			inTest[i] = false
		}
		for _, i := range test {
			inTest[i] = true
		}
		train := make([]int, 0, n-size)
		for _, i := range idx {
			if !inTest[i] {
				train = append(train, i)
			}
		}
		folds[f] = Fold{Train: train, Test: test}
		start += size
	}
	return folds, nil
}
