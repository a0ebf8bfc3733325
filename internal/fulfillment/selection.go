package fulfillment

import (
	"context"
	"database/sql"
	"math"
	"sort"

	"github.com/safar/go-fulfillment/internal/geo"
	"github.com/safar/go-fulfillment/internal/models"
	"github.com/safar/go-fulfillment/internal/store"
)

// Policy picks one branch among the candidates able to serve a line.
//
// Precedence, first match wins:
//  1. ForceBranchID, if set: that branch or nothing.
//  2. The order's preferred branch, if it is a candidate.
//  3. Candidates in the shipping pincode narrow the pool (no short-circuit).
//  4. With a customer location, the nearest pool member; ties keep input order.
//  5. Otherwise the first pool member.
type Policy struct {
	ForceBranchID *int64
}

func (p Policy) Pick(candidates []models.BranchCandidate, order models.Order, customer *geo.Point) (int64, bool) {
	if len(candidates) == 0 {
		return 0, false
	}

	if p.ForceBranchID != nil {
		for _, c := range candidates {
			if c.BranchID == *p.ForceBranchID {
				return c.BranchID, true
			}
		}
		return 0, false
	}

	if order.PreferredBranchID != nil {
		for _, c := range candidates {
			if c.BranchID == *order.PreferredBranchID {
				return c.BranchID, true
			}
		}
	}

	pool := candidates
	if pincode := order.ShippingPincode(); pincode != "" {
		var same []models.BranchCandidate
		for _, c := range candidates {
			if c.Pincode == pincode {
				same = append(same, c)
			}
		}
		if len(same) > 0 {
			pool = same
		}
	}

	if customer == nil {
		return pool[0].BranchID, true
	}

	type ranked struct {
		branchID int64
		km       float64
	}
	ranking := make([]ranked, len(pool))
	for i, c := range pool {
		km := math.Inf(1)
		if loc := geo.NewPoint(c.Lat, c.Lng); loc != nil {
			km = geo.DistanceKm(*loc, *customer)
		}
		ranking[i] = ranked{branchID: c.BranchID, km: km}
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].km < ranking[j].km
	})

	return ranking[0].branchID, true
}

// ResolveCustomerLocation prefers explicit address coordinates, then the
// centroid of branches sharing the shipping pincode. nil means unknown.
func ResolveCustomerLocation(ctx context.Context, tx *sql.Tx, order models.Order) (*geo.Point, error) {
	if loc := geo.NewPoint(order.ShippingAddress.Lat, order.ShippingAddress.Lng); loc != nil {
		return loc, nil
	}

	pincode := order.ShippingPincode()
	if pincode == "" {
		return nil, nil
	}

	return store.PincodeCentroid(ctx, tx, pincode)
}
