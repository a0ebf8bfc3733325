package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safar/go-fulfillment/internal/database"
	"github.com/safar/go-fulfillment/internal/dbtest"
	"github.com/safar/go-fulfillment/internal/models"
)

func seedBranchVariant(t *testing.T, db *sql.DB, onHand int) (int64, int64) {
	t.Helper()
	ctx := context.Background()

	branch, err := CreateBranch(ctx, db, models.Branch{Name: "Koramangala", Pincode: "560034", IsActive: true})
	if err != nil {
		t.Fatalf("Create branch: %v", err)
	}

	variant, err := CreateVariant(ctx, db, models.Variant{
		ProductID: 1,
		SKU:       "KRT-M-BLU",
		Name:      "Kurta",
		Price:     decimal.NewFromInt(499),
		MRP:       decimal.NewFromInt(799),
	})
	if err != nil {
		t.Fatalf("Create variant: %v", err)
	}

	if _, err := SetStock(ctx, db, branch.ID, variant.ID, onHand, 0); err != nil {
		t.Fatalf("Set stock: %v", err)
	}
	return branch.ID, variant.ID
}

func TestDecrementAndRestoreStock(t *testing.T) {
	db, cleanup := dbtest.SetupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	branchID, variantID := seedBranchVariant(t, db, 3)

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if _, err := LockStock(ctx, tx, branchID, variantID); err != nil {
			return err
		}
		return DecrementStock(ctx, tx, branchID, variantID, 5)
	})
	if err != nil {
		t.Fatalf("Decrement: %v", err)
	}

	stock, err := GetStock(ctx, db, branchID, variantID)
	if err != nil {
		t.Fatalf("Get stock: %v", err)
	}
	if stock.OnHand != 0 {
		t.Errorf("Expected on_hand floored at 0, got %d", stock.OnHand)
	}

	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		return RestoreStock(ctx, tx, branchID, variantID, 2)
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	stock, err = GetStock(ctx, db, branchID, variantID)
	if err != nil {
		t.Fatalf("Get stock: %v", err)
	}
	if stock.OnHand != 2 {
		t.Errorf("Expected on_hand 2 after restore, got %d", stock.OnHand)
	}
}

func TestLockMissingStockRow(t *testing.T) {
	db, cleanup := dbtest.SetupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	branchID, _ := seedBranchVariant(t, db, 1)

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		_, err := LockStock(ctx, tx, branchID, 424242)
		return err
	})
	if !errors.Is(err, database.ErrStockNotFound) {
		t.Errorf("Expected ErrStockNotFound, got %v", err)
	}
}

func TestCandidateBranchesNeedPickupMapping(t *testing.T) {
	db, cleanup := dbtest.SetupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	branchID, variantID := seedBranchVariant(t, db, 4)

	candidates := func() []models.BranchCandidate {
		var out []models.BranchCandidate
		err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			var err error
			out, err = CandidateBranches(ctx, tx, variantID, 2)
			return err
		})
		if err != nil {
			t.Fatalf("Candidate branches: %v", err)
		}
		return out
	}

	if got := candidates(); len(got) != 0 {
		t.Fatalf("Expected no candidates without a pickup mapping, got %d", len(got))
	}

	_, err := UpsertPickupLocation(ctx, db, models.PickupLocation{BranchID: branchID, ExternalID: "881", Name: "Koramangala"})
	if err != nil {
		t.Fatalf("Upsert pickup location: %v", err)
	}

	got := candidates()
	if len(got) != 1 || got[0].BranchID != branchID || got[0].OnHand != 4 {
		t.Errorf("Unexpected candidates: %+v", got)
	}
}

func TestListShipmentsCursor(t *testing.T) {
	db, cleanup := dbtest.SetupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	branchID, _ := seedBranchVariant(t, db, 1)

	for i := 0; i < 5; i++ {
		_, err := CreateShipment(ctx, db, models.Shipment{
			ID:       uuid.NewString(),
			OrderID:  int64(900 + i%2),
			BranchID: branchID,
		})
		if err != nil {
			t.Fatalf("Create shipment %d: %v", i, err)
		}
	}

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := ListShipmentsCursor(ctx, db, cursor, 2)
		if err != nil {
			t.Fatalf("List shipments: %v", err)
		}
		pages++

		for _, s := range page.Items.([]models.Shipment) {
			if seen[s.ID] {
				t.Fatalf("Shipment %s listed twice", s.ID)
			}
			seen[s.ID] = true
		}

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	if len(seen) != 5 {
		t.Errorf("Expected 5 shipments, got %d", len(seen))
	}
	if pages != 3 {
		t.Errorf("Expected 3 pages, got %d", pages)
	}

	byOrder, err := ListShipmentsByOrder(ctx, db, 900)
	if err != nil {
		t.Fatalf("List by order: %v", err)
	}
	if len(byOrder) != 3 {
		t.Errorf("Expected 3 shipments for order 900, got %d", len(byOrder))
	}
}

func TestUpdateShipmentStatusAppliesToEveryMatch(t *testing.T) {
	db, cleanup := dbtest.SetupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	branchID, _ := seedBranchVariant(t, db, 1)
	external := "SR-1188"

	for i := 0; i < 2; i++ {
		_, err := CreateShipment(ctx, db, models.Shipment{
			ID:                 uuid.NewString(),
			OrderID:            77,
			BranchID:           branchID,
			ExternalShipmentID: &external,
		})
		if err != nil {
			t.Fatalf("Create shipment: %v", err)
		}
	}

	n, err := UpdateShipmentStatus(ctx, db, external, models.ShipmentStatusCancelled)
	if err != nil {
		t.Fatalf("Update status: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 rows updated, got %d", n)
	}

	_, err = UpdateShipmentStatus(ctx, db, external, models.ShipmentStatusDelivered)
	if !errors.Is(err, database.ErrInvalidStatusTransition) {
		t.Errorf("Expected ErrInvalidStatusTransition out of CANCELLED, got %v", err)
	}

	_, err = UpdateShipmentStatus(ctx, db, "missing", models.ShipmentStatusDelivered)
	if !errors.Is(err, database.ErrShipmentNotFound) {
		t.Errorf("Expected ErrShipmentNotFound, got %v", err)
	}
}

func TestListBranchesPages(t *testing.T) {
	db, cleanup := dbtest.SetupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := CreateBranch(ctx, db, models.Branch{Name: fmt.Sprintf("Branch %d", i), IsActive: i%2 == 0})
		if err != nil {
			t.Fatalf("Create branch: %v", err)
		}
	}

	page, err := ListBranches(ctx, db, 2, 2)
	if err != nil {
		t.Fatalf("List branches: %v", err)
	}
	if page.Total != 5 || page.TotalPages != 3 {
		t.Errorf("Expected total 5 over 3 pages, got %d over %d", page.Total, page.TotalPages)
	}
	if got := page.Items.([]models.Branch); len(got) != 2 || got[0].Name != "Branch 2" {
		t.Errorf("Unexpected second page: %+v", got)
	}

	active, err := ListActiveBranches(ctx, db)
	if err != nil {
		t.Fatalf("List active branches: %v", err)
	}
	if len(active) != 3 {
		t.Errorf("Expected 3 active branches, got %d", len(active))
	}
}
