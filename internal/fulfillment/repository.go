package fulfillment

import (
	"context"
	"database/sql"

	"github.com/safar/go-fulfillment/internal/database"
	"github.com/safar/go-fulfillment/internal/models"
	"github.com/safar/go-fulfillment/internal/store"
)

// PostgresRepository backs the orchestrator with the store package.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) PickupLocation(ctx context.Context, branchID int64) (*models.PickupLocation, error) {
	return store.GetPickupLocation(ctx, r.db, branchID)
}

func (r *PostgresRepository) CreateShipment(ctx context.Context, s models.Shipment) (*models.Shipment, error) {
	return store.CreateShipment(ctx, r.db, s)
}

// Restore adds every decrement back in one transaction of its own.
func (r *PostgresRepository) Restore(ctx context.Context, decrements []Decrement) error {
	return database.WithRetry(ctx, r.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		for _, d := range decrements {
			if err := store.RestoreStock(ctx, tx, d.BranchID, d.VariantID, d.Qty); err != nil {
				return err
			}
		}
		return nil
	})
}
