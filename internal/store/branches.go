package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-fulfillment/internal/database"
	"github.com/safar/go-fulfillment/internal/models"
)

const branchColumns = `id, name, email, phone, address, city, state, pincode, latitude, longitude, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBranch(row rowScanner) (*models.Branch, error) {
	branch := &models.Branch{}
	var lat, lng sql.NullFloat64

	err := row.Scan(
		&branch.ID,
		&branch.Name,
		&branch.Email,
		&branch.Phone,
		&branch.Address,
		&branch.City,
		&branch.State,
		&branch.Pincode,
		&lat,
		&lng,
		&branch.IsActive,
		&branch.CreatedAt,
		&branch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	branch.Lat = nullFloat(lat)
	branch.Lng = nullFloat(lng)
	return branch, nil
}

func CreateBranch(ctx context.Context, db *sql.DB, b models.Branch) (*models.Branch, error) {
	query := `
		INSERT INTO branches (name, email, phone, address, city, state, pincode, latitude, longitude, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING ` + branchColumns

	branch, err := scanBranch(db.QueryRowContext(ctx, query,
		b.Name, b.Email, b.Phone, b.Address, b.City, b.State, b.Pincode, b.Lat, b.Lng, b.IsActive))
	if err != nil {
		return nil, fmt.Errorf("create branch: %w", err)
	}

	return branch, nil
}

func GetBranch(ctx context.Context, db *sql.DB, id int64) (*models.Branch, error) {
	query := `SELECT ` + branchColumns + ` FROM branches WHERE id = $1`

	branch, err := scanBranch(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrBranchNotFound
		}
		return nil, fmt.Errorf("get branch: %w", err)
	}

	return branch, nil
}

func ListActiveBranches(ctx context.Context, db *sql.DB) ([]models.Branch, error) {
	query := `SELECT ` + branchColumns + ` FROM branches WHERE is_active ORDER BY id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active branches: %w", err)
	}
	defer rows.Close()

	var branches []models.Branch
	for rows.Next() {
		branch, err := scanBranch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, *branch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return branches, nil
}

func ListBranches(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM branches`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count branches: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + branchColumns + `
		FROM branches
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	var branches []models.Branch
	for rows.Next() {
		branch, err := scanBranch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, *branch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(branches, total, page, pageSize), nil
}

// FirstActivePincode returns the pincode of the lowest-id active branch that
// has one, or "" when none does.
func FirstActivePincode(ctx context.Context, db *sql.DB) (string, error) {
	var pincode string
	err := db.QueryRowContext(ctx,
		`SELECT pincode FROM branches
		 WHERE is_active AND pincode <> ''
		 ORDER BY id
		 LIMIT 1`).Scan(&pincode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("first active pincode: %w", err)
	}
	return pincode, nil
}

func GetPickupLocation(ctx context.Context, db *sql.DB, branchID int64) (*models.PickupLocation, error) {
	loc := &models.PickupLocation{}

	query := `
		SELECT branch_id, external_id, name, pincode, city, state, address, phone, created_at, updated_at
		FROM courier_pickup_locations
		WHERE branch_id = $1`

	err := db.QueryRowContext(ctx, query, branchID).Scan(
		&loc.BranchID,
		&loc.ExternalID,
		&loc.Name,
		&loc.Pincode,
		&loc.City,
		&loc.State,
		&loc.Address,
		&loc.Phone,
		&loc.CreatedAt,
		&loc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrPickupLocationNotFound
		}
		return nil, fmt.Errorf("get pickup location: %w", err)
	}

	return loc, nil
}

func UpsertPickupLocation(ctx context.Context, db *sql.DB, loc models.PickupLocation) (*models.PickupLocation, error) {
	out := &models.PickupLocation{}

	query := `
		INSERT INTO courier_pickup_locations (branch_id, external_id, name, pincode, city, state, address, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (branch_id) DO UPDATE
		SET external_id = EXCLUDED.external_id,
		    name = EXCLUDED.name,
		    pincode = EXCLUDED.pincode,
		    city = EXCLUDED.city,
		    state = EXCLUDED.state,
		    address = EXCLUDED.address,
		    phone = EXCLUDED.phone,
		    updated_at = NOW()
		RETURNING branch_id, external_id, name, pincode, city, state, address, phone, created_at, updated_at`

	err := db.QueryRowContext(ctx, query,
		loc.BranchID, loc.ExternalID, loc.Name, loc.Pincode, loc.City, loc.State, loc.Address, loc.Phone,
	).Scan(
		&out.BranchID,
		&out.ExternalID,
		&out.Name,
		&out.Pincode,
		&out.City,
		&out.State,
		&out.Address,
		&out.Phone,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert pickup location: %w", err)
	}

	return out, nil
}
