package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/hdbvalue/features"
	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

// TargetColumn is the header of the price column.
const TargetColumn = "adjusted_resale_price"

// ReadCSV reads a headered CSV and selects the layout columns plus
// TargetColumn by name. Other columns are ignored. One-hot cells may be
// numbers or booleans ("True", "false").
func ReadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.NewInsufficientDataError("dataset.ReadCSV", 1, 0, "empty csv")
	}
	if err != nil {
		return nil, errors.Wrap(err, "dataset: read csv header")
	}
	header = append([]string(nil), header...)

	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	cols := make([]int, features.Len)
	for i, name := range features.Names() {
		c, ok := pos[name]
		if !ok {
			return nil, errors.NewValidationError("header", "missing feature column "+strconv.Quote(name), header)
		}
		cols[i] = c
	}
	target, ok := pos[TargetColumn]
	if !ok {
		return nil, errors.NewValidationError("header", "missing target column "+strconv.Quote(TargetColumn), header)
	}

	var rows [][]float64
	var prices []float64
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "dataset: read csv line %d", line)
		}
		row := make([]float64, features.Len)
		for i, c := range cols {
			if row[i], err = parseCell(rec[c]); err != nil {
				return nil, errors.Wrapf(err, "line %d column %q", line, header[c])
			}
		}
		price, err := parseCell(rec[target])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d column %q", line, TargetColumn)
		}
		rows = append(rows, row)
		prices = append(prices, price)
	}
	return &Dataset{rows: rows, targets: prices}, nil
}

// ReadCSVFile opens path and calls ReadCSV.
func ReadCSVFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "dataset: open csv")
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteCSV writes d with the layout header plus TargetColumn, the format
// ReadCSV accepts.
func WriteCSV(w io.Writer, d *Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(features.Names(), TargetColumn)); err != nil {
		return errors.Wrap(err, "dataset: write csv header")
	}
	rec := make([]string, features.Len+1)
	for i := 0; i < d.Len(); i++ {
		for j, v := range d.rows[i] {
			rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		rec[features.Len] = strconv.FormatFloat(d.targets[i], 'g', -1, 64)
		if err := cw.Write(rec); err != nil {
			return errors.Wrapf(err, "dataset: write csv row %d", i)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "dataset: flush csv")
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return 0, errors.NewValidationError("cell", "not a number", s)
}
