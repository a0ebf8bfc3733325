package fulfillment

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/safar/go-fulfillment/internal/courier"
	"github.com/safar/go-fulfillment/internal/database"
	"github.com/safar/go-fulfillment/internal/store"
)

var pincodePattern = regexp.MustCompile(`^\d{6}$`)

type ServiceabilityChecker interface {
	CheckServiceability(ctx context.Context, q courier.ServiceabilityQuery) (*courier.ServiceabilityResult, error)
}

type Serviceability struct {
	db      *sql.DB
	courier ServiceabilityChecker
}

func NewServiceability(db *sql.DB, c ServiceabilityChecker) *Serviceability {
	return &Serviceability{db: db, courier: c}
}

// Check asks the courier whether a parcel can reach deliveryPincode. The
// pickup side is the preferred branch's pincode, else the first active branch
// that has one.
func (s *Serviceability) Check(ctx context.Context, deliveryPincode string, preferredBranchID *int64, cod bool) (*courier.ServiceabilityResult, error) {
	deliveryPincode = strings.TrimSpace(deliveryPincode)
	if !pincodePattern.MatchString(deliveryPincode) {
		return nil, ErrInvalidPincode
	}

	pickup, err := s.pickupPincode(ctx, preferredBranchID)
	if err != nil {
		return nil, err
	}

	return s.courier.CheckServiceability(ctx, courier.ServiceabilityQuery{
		PickupPostcode:   pickup,
		DeliveryPostcode: deliveryPincode,
		COD:              cod,
		WeightKg:         courier.DefaultWeightKg,
	})
}

func (s *Serviceability) pickupPincode(ctx context.Context, preferredBranchID *int64) (string, error) {
	if preferredBranchID != nil {
		branch, err := store.GetBranch(ctx, s.db, *preferredBranchID)
		switch {
		case err == nil && strings.TrimSpace(branch.Pincode) != "":
			return strings.TrimSpace(branch.Pincode), nil
		case err != nil && !errors.Is(err, database.ErrBranchNotFound):
			return "", err
		}
	}

	pincode, err := store.FirstActivePincode(ctx, s.db)
	if err != nil {
		return "", err
	}
	if pincode == "" {
		return "", ErrNoPickupPincode
	}
	return pincode, nil
}
