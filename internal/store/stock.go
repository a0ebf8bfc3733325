package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-fulfillment/internal/database"
	"github.com/safar/go-fulfillment/internal/geo"
	"github.com/safar/go-fulfillment/internal/models"
)

// LockStock takes the row lock on one (branch, variant) pair. Concurrent
// lockers of the same pair block until the holder commits or rolls back.
func LockStock(ctx context.Context, tx *sql.Tx, branchID, variantID int64) (*models.BranchVariantStock, error) {
	stock := &models.BranchVariantStock{}

	query := `
		SELECT branch_id, variant_id, on_hand, reserved, updated_at
		FROM branch_variant_stock
		WHERE branch_id = $1 AND variant_id = $2
		FOR UPDATE`

	err := tx.QueryRowContext(ctx, query, branchID, variantID).Scan(
		&stock.BranchID,
		&stock.VariantID,
		&stock.OnHand,
		&stock.Reserved,
		&stock.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrStockNotFound
		}
		return nil, fmt.Errorf("lock stock branch %d variant %d: %w", branchID, variantID, err)
	}

	return stock, nil
}

// CandidateBranches lists active branches with a courier pickup mapping whose
// sellable quantity covers qty, ordered by branch id.
func CandidateBranches(ctx context.Context, tx *sql.Tx, variantID int64, qty int) ([]models.BranchCandidate, error) {
	query := `
		SELECT b.id, b.latitude, b.longitude, b.pincode, s.on_hand, s.reserved
		FROM branch_variant_stock s
		JOIN branches b ON b.id = s.branch_id
		WHERE s.variant_id = $1
		  AND (s.on_hand - s.reserved) >= $2
		  AND b.is_active
		  AND EXISTS (SELECT 1 FROM courier_pickup_locations p WHERE p.branch_id = b.id)
		ORDER BY b.id`

	rows, err := tx.QueryContext(ctx, query, variantID, qty)
	if err != nil {
		return nil, fmt.Errorf("candidate branches: %w", err)
	}
	defer rows.Close()

	var candidates []models.BranchCandidate
	for rows.Next() {
		var c models.BranchCandidate
		var lat, lng sql.NullFloat64
		err := rows.Scan(
			&c.BranchID,
			&lat,
			&lng,
			&c.Pincode,
			&c.OnHand,
			&c.Reserved,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Lat = nullFloat(lat)
		c.Lng = nullFloat(lng)
		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return candidates, nil
}

// DecrementStock reduces on_hand by qty, floored at zero. The caller holds
// the row lock and has already checked availability.
func DecrementStock(ctx context.Context, tx *sql.Tx, branchID, variantID int64, qty int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE branch_variant_stock
		 SET on_hand = GREATEST(on_hand - $3, 0),
		     updated_at = NOW()
		 WHERE branch_id = $1 AND variant_id = $2`,
		branchID, variantID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrStockNotFound
	}

	return nil
}

// RestoreStock adds qty back to on_hand. Used only to compensate a
// decrement whose shipment could not be created.
func RestoreStock(ctx context.Context, tx *sql.Tx, branchID, variantID int64, qty int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE branch_variant_stock
		 SET on_hand = on_hand + $3,
		     updated_at = NOW()
		 WHERE branch_id = $1 AND variant_id = $2`,
		branchID, variantID, qty)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrStockNotFound
	}

	return nil
}

// PincodeCentroid averages the coordinates of every branch in pincode.
// It returns nil when no branch there has coordinates.
func PincodeCentroid(ctx context.Context, tx *sql.Tx, pincode string) (*geo.Point, error) {
	var lat, lng sql.NullFloat64

	err := tx.QueryRowContext(ctx,
		`SELECT AVG(latitude), AVG(longitude)
		 FROM branches
		 WHERE pincode = $1`,
		pincode).Scan(&lat, &lng)
	if err != nil {
		return nil, fmt.Errorf("pincode centroid: %w", err)
	}

	return geo.NewPoint(nullFloat(lat), nullFloat(lng)), nil
}

func SetStock(ctx context.Context, db *sql.DB, branchID, variantID int64, onHand, reserved int) (*models.BranchVariantStock, error) {
	stock := &models.BranchVariantStock{}

	query := `
		INSERT INTO branch_variant_stock (branch_id, variant_id, on_hand, reserved, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (branch_id, variant_id) DO UPDATE
		SET on_hand = EXCLUDED.on_hand,
		    reserved = EXCLUDED.reserved,
		    updated_at = NOW()
		RETURNING branch_id, variant_id, on_hand, reserved, updated_at`

	err := db.QueryRowContext(ctx, query, branchID, variantID, onHand, reserved).Scan(
		&stock.BranchID,
		&stock.VariantID,
		&stock.OnHand,
		&stock.Reserved,
		&stock.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("set stock: %w", err)
	}

	return stock, nil
}

func GetStock(ctx context.Context, db *sql.DB, branchID, variantID int64) (*models.BranchVariantStock, error) {
	stock := &models.BranchVariantStock{}

	query := `
		SELECT branch_id, variant_id, on_hand, reserved, updated_at
		FROM branch_variant_stock
		WHERE branch_id = $1 AND variant_id = $2`

	err := db.QueryRowContext(ctx, query, branchID, variantID).Scan(
		&stock.BranchID,
		&stock.VariantID,
		&stock.OnHand,
		&stock.Reserved,
		&stock.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrStockNotFound
		}
		return nil, fmt.Errorf("get stock: %w", err)
	}

	return stock, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
