package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-fulfillment/internal/database"
	"github.com/safar/go-fulfillment/internal/models"
)

const shipmentColumns = `id, order_id, branch_id, external_order_id, external_shipment_id, awb, label_url, tracking_url, status, created_at, updated_at`

func scanShipment(row rowScanner) (*models.Shipment, error) {
	s := &models.Shipment{}
	var externalOrderID, externalShipmentID, awb, labelURL, trackingURL sql.NullString

	err := row.Scan(
		&s.ID,
		&s.OrderID,
		&s.BranchID,
		&externalOrderID,
		&externalShipmentID,
		&awb,
		&labelURL,
		&trackingURL,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.ExternalOrderID = nullString(externalOrderID)
	s.ExternalShipmentID = nullString(externalShipmentID)
	s.AWB = nullString(awb)
	s.LabelURL = nullString(labelURL)
	s.TrackingURL = nullString(trackingURL)
	return s, nil
}

// CreateShipment inserts s as given; the caller assigns s.ID.
func CreateShipment(ctx context.Context, db *sql.DB, s models.Shipment) (*models.Shipment, error) {
	if s.Status == "" {
		s.Status = models.ShipmentStatusCreated
	}

	query := `
		INSERT INTO shipments (id, order_id, branch_id, external_order_id, external_shipment_id, awb, label_url, tracking_url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING ` + shipmentColumns

	shipment, err := scanShipment(db.QueryRowContext(ctx, query,
		s.ID,
		s.OrderID,
		s.BranchID,
		s.ExternalOrderID,
		s.ExternalShipmentID,
		s.AWB,
		s.LabelURL,
		s.TrackingURL,
		s.Status,
	))
	if err != nil {
		return nil, fmt.Errorf("create shipment: %w", err)
	}

	return shipment, nil
}

func GetShipment(ctx context.Context, db *sql.DB, id string) (*models.Shipment, error) {
	query := `SELECT ` + shipmentColumns + ` FROM shipments WHERE id = $1`

	shipment, err := scanShipment(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrShipmentNotFound
		}
		return nil, fmt.Errorf("get shipment: %w", err)
	}

	return shipment, nil
}

func ListShipmentsByOrder(ctx context.Context, db *sql.DB, orderID int64) ([]models.Shipment, error) {
	query := `
		SELECT ` + shipmentColumns + `
		FROM shipments
		WHERE order_id = $1
		ORDER BY created_at, id`

	rows, err := db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	shipments := []models.Shipment{}
	for rows.Next() {
		shipment, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		shipments = append(shipments, *shipment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return shipments, nil
}

func ListShipmentsCursor(ctx context.Context, db *sql.DB, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + shipmentColumns + `
		FROM shipments
		WHERE (created_at, id) < ($1, $2::uuid)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	rows, err := db.QueryContext(ctx, query, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	shipments := []models.Shipment{}
	for rows.Next() {
		shipment, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		shipments = append(shipments, *shipment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(shipments) > limit
	if hasMore {
		shipments = shipments[:limit]
	}

	var nextCursor string
	if hasMore && len(shipments) > 0 {
		last := shipments[len(shipments)-1]
		nextCursor = EncodeCursor(ShipmentCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &CursorPage{
		Items:      shipments,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// UpdateShipmentStatus moves every shipment carrying the courier's shipment
// id to status. Rows already at status are left alone; any other move must
// be a legal lifecycle transition.
func UpdateShipmentStatus(ctx context.Context, db *sql.DB, externalShipmentID string, status models.ShipmentStatus) (int, error) {
	updated := 0

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, status FROM shipments
			 WHERE external_shipment_id = $1
			 FOR UPDATE`,
			externalShipmentID)
		if err != nil {
			return fmt.Errorf("lock shipments: %w", err)
		}

		type current struct {
			id     string
			status models.ShipmentStatus
		}
		var found []current
		for rows.Next() {
			var c current
			if err := rows.Scan(&c.id, &c.status); err != nil {
				rows.Close()
				return fmt.Errorf("scan shipment: %w", err)
			}
			found = append(found, c)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("rows error: %w", err)
		}
		rows.Close()

		if len(found) == 0 {
			return database.ErrShipmentNotFound
		}

		for _, c := range found {
			if c.status == status {
				continue
			}
			if !models.CanTransition(c.status, status) {
				return fmt.Errorf("%w: %s -> %s", database.ErrInvalidStatusTransition, c.status, status)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE shipments SET status = $1, updated_at = NOW() WHERE id = $2`,
				status, c.id); err != nil {
				return fmt.Errorf("update shipment status: %w", err)
			}
			updated++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return updated, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
