package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-fulfillment/internal/models"
)

func CreateVariant(ctx context.Context, db *sql.DB, v models.Variant) (*models.Variant, error) {
	variant := &models.Variant{}

	query := `
		INSERT INTO variants (product_id, sku, name, size, colour, price, mrp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, product_id, sku, name, size, colour, price, mrp, created_at`

	err := db.QueryRowContext(ctx, query, v.ProductID, v.SKU, v.Name, v.Size, v.Colour, v.Price, v.MRP).Scan(
		&variant.ID,
		&variant.ProductID,
		&variant.SKU,
		&variant.Name,
		&variant.Size,
		&variant.Colour,
		&variant.Price,
		&variant.MRP,
		&variant.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create variant: %w", err)
	}

	return variant, nil
}
