package fulfillment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/safar/go-fulfillment/internal/database"
	"github.com/safar/go-fulfillment/internal/geo"
	"github.com/safar/go-fulfillment/internal/metrics"
	"github.com/safar/go-fulfillment/internal/models"
	"github.com/safar/go-fulfillment/internal/store"
)

// Decrement is one committed stock reduction, kept for compensation.
type Decrement struct {
	BranchID  int64 `json:"branch_id"`
	VariantID int64 `json:"variant_id"`
	Qty       int   `json:"qty"`
}

type BranchGroup struct {
	BranchID int64             `json:"branch_id"`
	Items    []models.LineItem `json:"items"`
}

// Plan is the outcome of a committed allocation. Groups appear in the order
// their branch was first chosen.
type Plan struct {
	Groups     []BranchGroup
	Decrements []Decrement
}

func (p *Plan) add(branchID int64, item models.LineItem) {
	p.Decrements = append(p.Decrements, Decrement{BranchID: branchID, VariantID: item.VariantID, Qty: item.Qty})

	for i := range p.Groups {
		if p.Groups[i].BranchID == branchID {
			p.Groups[i].Items = append(p.Groups[i].Items, item)
			return
		}
	}
	p.Groups = append(p.Groups, BranchGroup{BranchID: branchID, Items: []models.LineItem{item}})
}

// DecrementsExcept returns the decrements of every branch not in skip.
func (p *Plan) DecrementsExcept(skip map[int64]bool) []Decrement {
	var out []Decrement
	for _, d := range p.Decrements {
		if !skip[d.BranchID] {
			out = append(out, d)
		}
	}
	return out
}

type Planner struct {
	db      *sql.DB
	policy  Policy
	txOpts  database.TxOptions
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewPlanner(db *sql.DB, policy Policy, txOpts database.TxOptions, logger *slog.Logger, m *metrics.Metrics) *Planner {
	return &Planner{
		db:      db,
		policy:  policy,
		txOpts:  txOpts,
		logger:  logger,
		metrics: m,
	}
}

// Plan allocates every line of order in one transaction, in item order.
// Either every decrement commits or none does. Deadlocks, serialization
// failures and lock timeouts rerun the whole allocation.
func (p *Planner) Plan(ctx context.Context, order models.Order) (*Plan, error) {
	items, err := NormalizeItems(order.Items)
	if err != nil {
		return nil, err
	}

	var plan *Plan
	err = database.WithRetry(ctx, p.db, p.txOpts, func(tx *sql.Tx) error {
		plan = &Plan{}

		customer, err := ResolveCustomerLocation(ctx, tx, order)
		if err != nil {
			return fmt.Errorf("resolve customer location: %w", err)
		}

		for _, item := range items {
			branchID, err := p.allocate(ctx, tx, order, item, customer)
			if err != nil {
				return err
			}
			plan.add(branchID, item)
		}
		return nil
	})
	if err != nil {
		if database.IsLockTimeout(err) {
			return nil, fmt.Errorf("plan order %d: %w: %w", order.ID, database.ErrLockTimeout, err)
		}
		return nil, err
	}

	p.metrics.RecordAllocations(len(plan.Decrements))
	p.logger.Info("stock allocated",
		"order_id", order.ID,
		"branches", len(plan.Groups),
		"decrements", len(plan.Decrements),
	)
	return plan, nil
}

// allocate picks a branch for one line, locks its stock row, re-checks the
// sellable quantity under the lock and decrements it.
func (p *Planner) allocate(ctx context.Context, tx *sql.Tx, order models.Order, item models.LineItem, customer *geo.Point) (int64, error) {
	candidates, err := store.CandidateBranches(ctx, tx, item.VariantID, item.Qty)
	if err != nil {
		return 0, err
	}

	branchID, ok := p.policy.Pick(candidates, order, customer)
	if !ok {
		return 0, &OutOfStockError{VariantID: item.VariantID}
	}

	stock, err := store.LockStock(ctx, tx, branchID, item.VariantID)
	if err != nil {
		if errors.Is(err, database.ErrStockNotFound) {
			return 0, &OutOfStockError{VariantID: item.VariantID}
		}
		return 0, err
	}

	if stock.Available() < item.Qty {
		p.logger.Debug("candidate lost stock before lock",
			"order_id", order.ID,
			"branch_id", branchID,
			"variant_id", item.VariantID,
			"available", stock.Available(),
			"qty", item.Qty,
		)
		return 0, &OutOfStockError{VariantID: item.VariantID}
	}

	if err := store.DecrementStock(ctx, tx, branchID, item.VariantID, item.Qty); err != nil {
		return 0, err
	}

	return branchID, nil
}
