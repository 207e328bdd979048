// Package features defines the fixed 13-value feature layout shared by
// training and inference, and the listing type the layout is built from.
//
// The model sees raw positions only, so every vector crossing a package
// boundary is checked with Validate before it reaches an ensemble.
package features

import (
	"fmt"
	"math"
	"strings"

	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

// Positions of the numeric features.
const (
	RemainingLease = iota
	MinDistSchool
	StoreyMedian
	MinDistMRT
	FloorAreaSqm
	MinDistCBD

	// OneHotStart is the position of the first flat-type indicator.
	OneHotStart
)

// NumFlatTypes is the size of the one-hot block.
const NumFlatTypes = 7

// Len is the length of every feature vector.
const Len = OneHotStart + NumFlatTypes

var layout = [Len]string{
	"remaining_lease",
	"min_dist_sch",
	"storey_median",
	"min_dist_mrt",
	"floor_area_sqm",
	"min_dist_cbd",
	"flat_type_1 ROOM",
	"flat_type_2 ROOM",
	"flat_type_3 ROOM",
	"flat_type_4 ROOM",
	"flat_type_5 ROOM",
	"flat_type_EXECUTIVE",
	"flat_type_MULTI-GENERATION",
}

// Names returns a copy of the ordered feature names.
func Names() []string {
	out := make([]string, Len)
	copy(out, layout[:])
	return out
}

// Index returns the position of a feature name, or -1.
func Index(name string) int {
	for i, n := range layout {
		if n == name {
			return i
		}
	}
	return -1
}

// CheckLayout verifies that names is exactly the layout this package
// builds. Bundles store the layout they were trained with and call this on
// load; any drift is a FeatureShapeError.
func CheckLayout(names []string) error {
	if len(names) != Len {
		return errors.NewFeatureShapeError("load", Len, len(names))
	}
	for i, n := range names {
		if n != layout[i] {
			return errors.NewFeatureValueError("load", n,
				fmt.Sprintf("position %d holds %q, expected %q", i, n, layout[i]))
		}
	}
	return nil
}

// Vector is one feature row in layout order.
type Vector []float64

// Validate checks a raw row: exactly Len values, all finite, and a one-hot
// block with a single 1 and zeros elsewhere.
func Validate(v []float64) error {
	return validate("prediction", v)
}

// ValidateTraining is Validate with the error phase set to training.
func ValidateTraining(v []float64) error {
	return validate("training", v)
}

func validate(phase string, v []float64) error {
	if len(v) != Len {
		return errors.NewFeatureShapeError(phase, Len, len(v))
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errors.NewFeatureValueError(phase, layout[i], fmt.Sprintf("value %v is not finite", x))
		}
	}
	ones := 0
	for i := OneHotStart; i < Len; i++ {
		switch v[i] {
		case 1:
			ones++
		case 0:
		default:
			return errors.NewFeatureValueError(phase, layout[i],
				fmt.Sprintf("flat type indicator must be 0 or 1, got %v", v[i]))
		}
	}
	if ones != 1 {
		return errors.NewFeatureValueError(phase, "flat_type",
			fmt.Sprintf("exactly one flat type indicator must be set, got %d", ones))
	}
	return nil
}

// FlatTypeOf decodes the one-hot block of a validated vector.
func FlatTypeOf(v []float64) (FlatType, error) {
	if err := Validate(v); err != nil {
		return 0, err
	}
	for i := OneHotStart; i < Len; i++ {
		if v[i] == 1 {
			return FlatType(i - OneHotStart), nil
		}
	}
	return 0, errors.NewFeatureValueError("prediction", "flat_type", "no indicator set")
}

// String renders the vector as name=value pairs.
func (v Vector) String() string {
	var b strings.Builder
	for i, x := range v {
		if i > 0 {
			b.WriteString(" ")
		}
		name := "?"
		if i < Len {
			name = layout[i]
		}
		fmt.Fprintf(&b, "%s=%g", name, x)
	}
	return b.String()
}
