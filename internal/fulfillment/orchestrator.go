package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safar/go-fulfillment/internal/courier"
	"github.com/safar/go-fulfillment/internal/database"
	"github.com/safar/go-fulfillment/internal/events"
	"github.com/safar/go-fulfillment/internal/metrics"
	"github.com/safar/go-fulfillment/internal/models"
)

type Allocator interface {
	Plan(ctx context.Context, order models.Order) (*Plan, error)
}

type Courier interface {
	CreateOrderShipment(ctx context.Context, req courier.CreateOrderRequest) (*courier.CreateOrderResponse, error)
	AssignAWBAndLabel(ctx context.Context, shipmentIDs ...string) (*courier.AWBResult, error)
	RequestPickup(ctx context.Context, req courier.PickupRequest) (*courier.PickupResponse, error)
	GenerateManifest(ctx context.Context, shipmentIDs []string) (*courier.ManifestResponse, error)
}

type Repository interface {
	PickupLocation(ctx context.Context, branchID int64) (*models.PickupLocation, error)
	CreateShipment(ctx context.Context, s models.Shipment) (*models.Shipment, error)
	Restore(ctx context.Context, decrements []Decrement) error
}

// Guard claims an order for the duration of one fulfillment. A nil release
// with a nil error means someone else holds the claim.
type Guard interface {
	Acquire(ctx context.Context, orderID int64) (func(context.Context) error, error)
}

type ShipmentResult struct {
	ID         string  `json:"id"`
	BranchID   int64   `json:"branch_id"`
	ShipmentID string  `json:"shipment_id,omitempty"`
	AWB        *string `json:"awb"`
	LabelURL   *string `json:"label_url"`
}

type Orchestrator struct {
	planner   Allocator
	courier   Courier
	repo      Repository
	guard     Guard
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	source    string
	now       func() time.Time
}

type Option func(*Orchestrator)

func WithGuard(g Guard) Option {
	return func(o *Orchestrator) { o.guard = g }
}

func WithPublisher(p events.Publisher, source string) Option {
	return func(o *Orchestrator) {
		o.publisher = p
		o.source = source
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func NewOrchestrator(planner Allocator, c Courier, repo Repository, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		planner:   planner,
		courier:   c,
		repo:      repo,
		publisher: events.NopPublisher{},
		logger:    logger,
		source:    "fulfillment-api",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// PaymentMethodFor is what the courier collects: "COD" only when the order
// is cash-on-delivery with something left to pay.
func PaymentMethodFor(order models.Order) string {
	if order.IsCashOnDelivery() {
		return "COD"
	}
	return "Prepaid"
}

// ChannelOrderID identifies one branch's share of an order at the courier.
func ChannelOrderID(orderID, branchID int64) string {
	return fmt.Sprintf("%d-%d", orderID, branchID)
}

// Fulfill plans order, then creates one courier shipment per branch group,
// sequentially. If a group fails hard, stock is restored for every group
// whose courier order was not created and the original error is returned.
// AWB, label, pickup and manifest failures are logged and do not fail the
// call.
func (o *Orchestrator) Fulfill(ctx context.Context, order models.Order) ([]ShipmentResult, error) {
	if o.guard != nil {
		release, err := o.guard.Acquire(ctx, order.ID)
		if err != nil {
			o.logger.Warn("fulfillment guard unavailable, continuing without it",
				"order_id", order.ID, "error", err)
		} else if release == nil {
			o.metrics.RecordFulfillment(metrics.OutcomeInProgress)
			return nil, ErrFulfillmentInProgress
		} else {
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					o.logger.Warn("release fulfillment guard", "order_id", order.ID, "error", err)
				}
			}()
		}
	}

	results, err := o.fulfill(ctx, order)
	o.metrics.RecordFulfillment(outcomeOf(err))
	o.publish(ctx, order.ID, results, err)

	if err != nil {
		o.logger.Error("fulfillment failed", "order_id", order.ID, "error", err)
		return nil, err
	}

	o.logger.Info("fulfillment completed", "order_id", order.ID, "shipments", len(results))
	return results, nil
}

func (o *Orchestrator) fulfill(ctx context.Context, order models.Order) ([]ShipmentResult, error) {
	plan, err := o.planner.Plan(ctx, order)
	if err != nil {
		return nil, err
	}

	paymentMethod := PaymentMethodFor(order)
	created := make(map[int64]bool, len(plan.Groups))
	results := make([]ShipmentResult, 0, len(plan.Groups))
	var manifestIDs []string

	for _, group := range plan.Groups {
		res, courierCreated, manifestable, err := o.shipGroup(ctx, order, group, paymentMethod)
		if courierCreated {
			created[group.BranchID] = true
		}
		if err != nil {
			o.compensate(ctx, order.ID, plan.DecrementsExcept(created))
			return nil, err
		}

		results = append(results, *res)
		if manifestable {
			manifestIDs = append(manifestIDs, res.ShipmentID)
		}
	}

	if len(manifestIDs) > 0 {
		if _, err := o.courier.GenerateManifest(ctx, manifestIDs); err != nil {
			o.logger.Warn("manifest generation failed",
				"order_id", order.ID, "shipment_ids", manifestIDs, "error", err)
		}
	}

	return results, nil
}

// shipGroup creates the courier order for one branch and records it.
// courierCreated reports whether the courier accepted the order, whatever
// happened afterwards.
func (o *Orchestrator) shipGroup(ctx context.Context, order models.Order, group BranchGroup, paymentMethod string) (res *ShipmentResult, courierCreated, manifestable bool, err error) {
	pickup, err := o.repo.PickupLocation(ctx, group.BranchID)
	if err != nil {
		if errors.Is(err, database.ErrPickupLocationNotFound) {
			return nil, false, false, &NoPickupMappingError{BranchID: group.BranchID}
		}
		return nil, false, false, fmt.Errorf("load pickup location for branch %d: %w", group.BranchID, err)
	}

	channelOrderID := ChannelOrderID(order.ID, group.BranchID)
	resp, err := o.courier.CreateOrderShipment(ctx, courier.CreateOrderRequest{
		ChannelOrderID: channelOrderID,
		PickupLocation: pickup.Name,
		Customer: courier.Customer{
			Name:    strings.TrimSpace(order.CustomerName),
			Email:   strings.TrimSpace(order.CustomerEmail),
			Phone:   strings.TrimSpace(order.CustomerMobile),
			Address: shippingAddress(order),
		},
		Items:         group.Items,
		PaymentMethod: paymentMethod,
		OrderDate:     o.now(),
	})
	if err != nil {
		return nil, false, false, fmt.Errorf("create courier order %s: %w", channelOrderID, err)
	}

	shipmentID := resp.ShipmentID.String()
	var awb, labelURL *string

	if shipmentID != "" {
		labels, err := o.courier.AssignAWBAndLabel(ctx, shipmentID)
		if err != nil {
			o.logger.Warn("awb assignment failed, shipment recorded without awb",
				"order_id", order.ID, "branch_id", group.BranchID, "shipment_id", shipmentID, "error", err)
		} else {
			awb = optional(labels.AWB)
			labelURL = optional(labels.LabelURL)
			manifestable = true

			if _, err := o.courier.RequestPickup(ctx, courier.PickupRequest{ShipmentIDs: []string{shipmentID}}); err != nil {
				o.logger.Warn("pickup request failed",
					"order_id", order.ID, "branch_id", group.BranchID, "shipment_id", shipmentID, "error", err)
			}
		}
	}

	shipment, err := o.repo.CreateShipment(ctx, models.Shipment{
		ID:                 uuid.NewString(),
		OrderID:            order.ID,
		BranchID:           group.BranchID,
		ExternalOrderID:    optional(resp.OrderID.String()),
		ExternalShipmentID: optional(shipmentID),
		AWB:                awb,
		LabelURL:           labelURL,
		TrackingURL:        optional(resp.TrackingURL),
		Status:             models.ShipmentStatusCreated,
	})
	if err != nil {
		return nil, true, false, fmt.Errorf("record shipment for branch %d: %w", group.BranchID, err)
	}

	return &ShipmentResult{
		ID:         shipment.ID,
		BranchID:   group.BranchID,
		ShipmentID: shipmentID,
		AWB:        awb,
		LabelURL:   labelURL,
	}, true, manifestable, nil
}

// compensate restores decrements in a fresh transaction that outlives the
// caller's cancellation. Failure is logged only.
func (o *Orchestrator) compensate(ctx context.Context, orderID int64, decrements []Decrement) {
	if len(decrements) == 0 {
		return
	}

	if err := o.repo.Restore(context.WithoutCancel(ctx), decrements); err != nil {
		o.metrics.RecordCompensation(metrics.CompensationFailed)
		compErr := &CompensationError{OrderID: orderID, Decrements: decrements, Err: err}
		o.logger.Error("stock compensation failed, manual reconciliation required",
			"order_id", orderID, "decrements", decrements, "error", compErr)
		return
	}

	o.metrics.RecordCompensation(metrics.CompensationRestored)
	o.logger.Warn("stock restored after failed fulfillment",
		"order_id", orderID, "decrements", decrements)
}

func (o *Orchestrator) publish(ctx context.Context, orderID int64, results []ShipmentResult, ferr error) {
	eventType := events.TypeFulfillmentCompleted
	data := map[string]any{"order_id": orderID, "shipments": results}
	if ferr != nil {
		eventType = events.TypeFulfillmentFailed
		data = map[string]any{"order_id": orderID, "error": ferr.Error(), "reason": outcomeOf(ferr)}
	}

	env, err := events.NewEnvelope(o.source, eventType, data)
	if err == nil {
		err = o.publisher.Publish(context.WithoutCancel(ctx), fmt.Sprintf("%d", orderID), env)
	}
	if err != nil {
		o.logger.Warn("publish fulfillment event", "order_id", orderID, "event_type", eventType, "error", err)
	}
}

func outcomeOf(err error) string {
	var (
		invalid *InvalidItemError
		oos     *OutOfStockError
		remote  *courier.RemoteError
	)
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &invalid):
		return metrics.OutcomeInvalid
	case errors.As(err, &oos):
		return metrics.OutcomeOutOfStock
	case errors.Is(err, ErrFulfillmentInProgress):
		return metrics.OutcomeInProgress
	case errors.As(err, &remote):
		return metrics.OutcomeRemote
	default:
		return metrics.OutcomeError
	}
}

// shippingAddress falls back to the order-level pincode.
func shippingAddress(order models.Order) models.Address {
	addr := order.ShippingAddress
	addr.Pincode = order.ShippingPincode()
	return addr
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
