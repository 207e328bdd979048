package tree

import (
	"sort"

	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

// MaxBinLimit is the largest supported bin count; bin indexes are stored
// as uint8.
const MaxBinLimit = 256

// BinMapper holds per-feature split thresholds. A value x falls in bin b
// when x <= Thresholds[b] and x > Thresholds[b-1]; values above the last
// threshold fall in the final bin.
type BinMapper struct {
	Thresholds [][]float64
}

// NewBinMapper computes quantile thresholds for each column of rows.
// Features with fewer distinct values than maxBin get one bin per value.
func NewBinMapper(rows [][]float64, maxBin int) (*BinMapper, error) {
	if maxBin < 2 || maxBin > MaxBinLimit {
		return nil, errors.NewConfigurationError("tree.BinMapper", "max_bin",
			"must be between 2 and 256", maxBin)
	}
	if len(rows) == 0 {
		return nil, errors.NewInsufficientDataError("tree.NewBinMapper", 1, 0, "no rows to bin")
	}
	nFeatures := len(rows[0])
	for i, row := range rows {
		if len(row) != nFeatures {
			return nil, errors.Wrapf(errors.NewDimensionError("tree.NewBinMapper", nFeatures, len(row), 1), "row %d", i)
		}
	}

	m := &BinMapper{Thresholds: make([][]float64, nFeatures)}
	values := make([]float64, len(rows))
	for j := 0; j < nFeatures; j++ {
		for i, row := range rows {
			values[i] = row[j]
		}
		m.Thresholds[j] = quantileThresholds(values, maxBin)
	}
	return m, nil
}

func quantileThresholds(values []float64, maxBin int) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	unique := sorted[:1]
	for _, v := range sorted[1:] {
		if v != unique[len(unique)-1] {
			unique = append(unique, v)
		}
	}
	if len(unique) < 2 {
		return nil
	}

	if len(unique) <= maxBin {
		out := make([]float64, len(unique)-1)
		for i := range out {
			out[i] = (unique[i] + unique[i+1]) / 2
		}
		return out
	}

	// Equal-frequency cut points over the distinct values.
	step := float64(len(unique)) / float64(maxBin)
	out := make([]float64, 0, maxBin-1)
	for k := 1; k < maxBin; k++ {
		i := int(float64(k) * step)
		t := (unique[i-1] + unique[i]) / 2
		if len(out) == 0 || t > out[len(out)-1] {
			out = append(out, t)
		}
	}
	return out
}

// NumBins returns the number of bins of feature j.
func (m *BinMapper) NumBins(j int) int {
	return len(m.Thresholds[j]) + 1
}

// Bin returns the bin of value x for feature j.
func (m *BinMapper) Bin(j int, x float64) uint8 {
	return uint8(sort.SearchFloat64s(m.Thresholds[j], x))
}

// Binned is a training matrix converted to bin indexes, stored by column.
type Binned struct {
	Mapper *BinMapper
	Cols   [][]uint8
	Rows   int
}

// NewBinned bins rows with a freshly computed mapper.
func NewBinned(rows [][]float64, maxBin int) (*Binned, error) {
	m, err := NewBinMapper(rows, maxBin)
	if err != nil {
		return nil, err
	}
	return m.Transform(rows), nil
}

// Transform bins rows with the mapper's thresholds. Rows must have the
// width the mapper was built with.
func (m *BinMapper) Transform(rows [][]float64) *Binned {
	nFeatures := len(m.Thresholds)
	b := &Binned{Mapper: m, Cols: make([][]uint8, nFeatures), Rows: len(rows)}
	for j := 0; j < nFeatures; j++ {
		col := make([]uint8, len(rows))
		for i, row := range rows {
			col[i] = m.Bin(j, row[j])
		}
		b.Cols[j] = col
	}
	return b
}

// NumFeatures returns the number of binned columns.
func (b *Binned) NumFeatures() int {
	return len(b.Cols)
}
