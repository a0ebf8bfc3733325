package httpx

import (
	"context"
	"database/sql"

	"github.com/safar/go-fulfillment/internal/fulfillment"
	"github.com/safar/go-fulfillment/internal/models"
	"github.com/safar/go-fulfillment/internal/store"
)

// PostgresStore serves Store from the store package.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ShipmentsByOrder(ctx context.Context, orderID int64) ([]models.Shipment, error) {
	return store.ListShipmentsByOrder(ctx, s.db, orderID)
}

func (s *PostgresStore) Shipments(ctx context.Context, cursor string, limit int) (*store.CursorPage, error) {
	return store.ListShipmentsCursor(ctx, s.db, cursor, limit)
}

func (s *PostgresStore) Branches(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	return store.ListBranches(ctx, s.db, page, pageSize)
}

func (s *PostgresStore) ApplyCourierStatus(ctx context.Context, shipmentID, status string) (bool, error) {
	return fulfillment.ApplyCourierStatus(ctx, s.db, shipmentID, status)
}
