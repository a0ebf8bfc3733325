package fulfillment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/safar/go-fulfillment/internal/courier"
	"github.com/safar/go-fulfillment/internal/models"
	"github.com/safar/go-fulfillment/internal/store"
)

type PickupRegistrar interface {
	AddPickupLocation(ctx context.Context, req courier.PickupLocationRequest) (*courier.PickupLocationResponse, error)
	ListPickupLocations(ctx context.Context) ([]courier.PickupAddress, error)
}

type PickupSyncResult struct {
	BranchID int64  `json:"branch_id"`
	Name     string `json:"name"`
	PickupID string `json:"pickup_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

type PickupSync struct {
	db      *sql.DB
	courier PickupRegistrar
	logger  *slog.Logger
}

func NewPickupSync(db *sql.DB, c PickupRegistrar, logger *slog.Logger) *PickupSync {
	return &PickupSync{db: db, courier: c, logger: logger}
}

// Sync registers every active branch as a courier pickup location and stores
// the mapping. A branch that fails is reported and skipped.
func (s *PickupSync) Sync(ctx context.Context) ([]PickupSyncResult, error) {
	branches, err := store.ListActiveBranches(ctx, s.db)
	if err != nil {
		return nil, err
	}

	var existing []courier.PickupAddress
	listed := false

	results := make([]PickupSyncResult, 0, len(branches))
	for _, b := range branches {
		res := PickupSyncResult{BranchID: b.ID, Name: b.Name}

		pickupID, err := s.register(ctx, b)
		if err != nil && alreadyRegistered(err) {
			if !listed {
				existing, err = s.courier.ListPickupLocations(ctx)
				listed = err == nil
			}
			if listed {
				pickupID, err = findPickup(existing, b.Name)
			}
		}

		if err == nil {
			_, err = store.UpsertPickupLocation(ctx, s.db, models.PickupLocation{
				BranchID:   b.ID,
				ExternalID: pickupID,
				Name:       b.Name,
				Pincode:    b.Pincode,
				City:       b.City,
				State:      b.State,
				Address:    b.Address,
				Phone:      b.Phone,
			})
		}

		if err != nil {
			s.logger.Warn("pickup location sync failed", "branch_id", b.ID, "error", err)
			res.Error = err.Error()
		} else {
			res.PickupID = pickupID
		}
		results = append(results, res)
	}

	return results, nil
}

func (s *PickupSync) register(ctx context.Context, b models.Branch) (string, error) {
	resp, err := s.courier.AddPickupLocation(ctx, courier.NewPickupLocationRequest(b))
	if err != nil {
		return "", err
	}
	return resp.ID(), nil
}

// The aggregator answers 422 when the pickup nickname is taken.
func alreadyRegistered(err error) bool {
	var remote *courier.RemoteError
	return errors.As(err, &remote) && remote.StatusCode == http.StatusUnprocessableEntity
}

func findPickup(addrs []courier.PickupAddress, name string) (string, error) {
	for _, a := range addrs {
		if strings.EqualFold(strings.TrimSpace(a.PickupLocation), strings.TrimSpace(name)) {
			return a.ID.String(), nil
		}
	}
	return "", fmt.Errorf("pickup location %q rejected and not found among registered locations", name)
}
