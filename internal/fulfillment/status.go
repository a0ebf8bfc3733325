package fulfillment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/safar/go-fulfillment/internal/database"
	"github.com/safar/go-fulfillment/internal/models"
	"github.com/safar/go-fulfillment/internal/store"
)

// ApplyCourierStatus moves the shipments carrying a courier shipment id to
// the lifecycle status named by rawStatus. Statuses outside the lifecycle and
// unknown shipments are ignored and report false.
func ApplyCourierStatus(ctx context.Context, db *sql.DB, shipmentID, rawStatus string) (bool, error) {
	status := models.ParseCourierStatus(rawStatus)
	if status == "" || shipmentID == "" {
		return false, nil
	}

	updated, err := store.UpdateShipmentStatus(ctx, db, shipmentID, status)
	if err != nil {
		if errors.Is(err, database.ErrShipmentNotFound) {
			return false, nil
		}
		return false, err
	}
	return updated > 0, nil
}
