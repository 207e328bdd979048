package features

import (
	"fmt"
	"strings"

	"github.com/YuminosukeSato/hdbvalue/pkg/errors"
)

// FlatType is a unit type. Its value is the offset inside the one-hot block.
type FlatType int

const (
	OneRoom FlatType = iota
	TwoRoom
	ThreeRoom
	FourRoom
	FiveRoom
	Executive
	MultiGeneration
)

var flatTypeNames = [NumFlatTypes]string{
	"1 ROOM", "2 ROOM", "3 ROOM", "4 ROOM", "5 ROOM", "EXECUTIVE", "MULTI-GENERATION",
}

func (f FlatType) String() string {
	if f < 0 || int(f) >= NumFlatTypes {
		return fmt.Sprintf("FlatType(%d)", int(f))
	}
	return flatTypeNames[f]
}

// ParseFlatType accepts the display names ("4 ROOM", "EXECUTIVE", ...)
// case-insensitively, with or without the "flat_type_" prefix.
func ParseFlatType(s string) (FlatType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "FLAT_TYPE_")
	for i, n := range flatTypeNames {
		if n == name {
			return FlatType(i), nil
		}
	}
	return 0, errors.NewValidationError("flat_type", "unknown flat type", s)
}

// Listing is one unit described in domain terms. Distances are kilometres,
// the lease is in years, floor area is square metres.
type Listing struct {
	RemainingLease float64
	MinDistSchool  float64
	StoreyMedian   float64
	MinDistMRT     float64
	FloorAreaSqm   float64
	MinDistCBD     float64
	FlatType       FlatType
}

// Block describes the building a listing belongs to. A zero MaxFloor skips
// the floor check; an empty Offered list accepts every flat type.
type Block struct {
	MaxFloor int
	Offered  []FlatType
}

// Validate checks the listing on its own and against the block's top floor.
func (l Listing) Validate(maxFloor int) error {
	return l.ValidateFor(Block{MaxFloor: maxFloor})
}

// ValidateFor checks the listing against a block.
func (l Listing) ValidateFor(b Block) error {
	if l.FlatType < 0 || int(l.FlatType) >= NumFlatTypes {
		return errors.NewValidationError("flat_type", "unknown flat type", int(l.FlatType))
	}
	if l.RemainingLease < 0 || l.RemainingLease > 99 {
		return errors.NewValidationError("remaining_lease", "must be between 0 and 99 years", l.RemainingLease)
	}
	if l.FloorAreaSqm <= 0 {
		return errors.NewValidationError("floor_area_sqm", "must be positive", l.FloorAreaSqm)
	}
	for _, d := range []struct {
		name  string
		value float64
	}{
		{"min_dist_sch", l.MinDistSchool},
		{"min_dist_mrt", l.MinDistMRT},
		{"min_dist_cbd", l.MinDistCBD},
	} {
		if d.value < 0 {
			return errors.NewValidationError(d.name, "distance must not be negative", d.value)
		}
	}
	if l.StoreyMedian < 1 {
		return errors.NewValidationError("storey_median", "floor must be at least 1", l.StoreyMedian)
	}
	if b.MaxFloor > 0 && l.StoreyMedian > float64(b.MaxFloor) {
		return errors.NewValidationError("storey_median",
			fmt.Sprintf("floor does not exist for this property (top floor %d)", b.MaxFloor), l.StoreyMedian)
	}
	if len(b.Offered) > 0 {
		offered := false
		for _, f := range b.Offered {
			if f == l.FlatType {
				offered = true
				break
			}
		}
		if !offered {
			return errors.NewValidationError("flat_type", "flat type does not exist for this property", l.FlatType.String())
		}
	}
	return nil
}

// Vector encodes the listing in layout order.
func (l Listing) Vector() Vector {
	v := make(Vector, Len)
	v[RemainingLease] = l.RemainingLease
	v[MinDistSchool] = l.MinDistSchool
	v[StoreyMedian] = l.StoreyMedian
	v[MinDistMRT] = l.MinDistMRT
	v[FloorAreaSqm] = l.FloorAreaSqm
	v[MinDistCBD] = l.MinDistCBD
	if l.FlatType >= 0 && int(l.FlatType) < NumFlatTypes {
		v[OneHotStart+int(l.FlatType)] = 1
	}
	return v
}

// ListingFromVector decodes a validated vector back into a Listing.
func ListingFromVector(v []float64) (Listing, error) {
	ft, err := FlatTypeOf(v)
	if err != nil {
		return Listing{}, err
	}
	return Listing{
		RemainingLease: v[RemainingLease],
		MinDistSchool:  v[MinDistSchool],
		StoreyMedian:   v[StoreyMedian],
		MinDistMRT:     v[MinDistMRT],
		FloorAreaSqm:   v[FloorAreaSqm],
		MinDistCBD:     v[MinDistCBD],
		FlatType:       ft,
	}, nil
}
