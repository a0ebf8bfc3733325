package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/safar/go-fulfillment/internal/courier"
	"github.com/safar/go-fulfillment/internal/fulfillment"
	"github.com/safar/go-fulfillment/internal/models"
	"github.com/safar/go-fulfillment/internal/store"
)

type Fulfiller interface {
	Fulfill(ctx context.Context, order models.Order) ([]fulfillment.ShipmentResult, error)
}

type ServiceabilityChecker interface {
	Check(ctx context.Context, deliveryPincode string, preferredBranchID *int64, cod bool) (*courier.ServiceabilityResult, error)
}

type PickupSyncer interface {
	Sync(ctx context.Context) ([]fulfillment.PickupSyncResult, error)
}

// Store is the read side plus the webhook write.
type Store interface {
	ShipmentsByOrder(ctx context.Context, orderID int64) ([]models.Shipment, error)
	Shipments(ctx context.Context, cursor string, limit int) (*store.CursorPage, error)
	Branches(ctx context.Context, page, pageSize int) (*store.OffsetPage, error)
	ApplyCourierStatus(ctx context.Context, shipmentID, status string) (bool, error)
}

type Handler struct {
	fulfiller      Fulfiller
	store          Store
	serviceability ServiceabilityChecker
	pickups        PickupSyncer
	logger         *slog.Logger
}

func NewHandler(f Fulfiller, s Store, svc ServiceabilityChecker, pickups PickupSyncer, logger *slog.Logger) *Handler {
	return &Handler{
		fulfiller:      f,
		store:          s,
		serviceability: svc,
		pickups:        pickups,
		logger:         logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/fulfillments", h.fulfill)
	r.Get("/orders/serviceability", h.checkServiceability)
	r.Get("/orders/{orderID}/shipments", h.orderShipments)
	r.Get("/shipments", h.listShipments)
	r.Post("/courier/webhook", h.courierWebhook)
	r.Post("/branches/pickup-locations/sync", h.syncPickupLocations)
	r.Get("/branches", h.listBranches)
}

func (h *Handler) fulfill(w http.ResponseWriter, r *http.Request) {
	var order models.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := Validator().Struct(order); err != nil {
		h.fail(w, r, err)
		return
	}

	shipments, err := h.fulfiller.Fulfill(r.Context(), order)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"shipments": shipments})
}

func (h *Handler) orderShipments(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || orderID < 1 {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	shipments, err := h.store.ShipmentsByOrder(ctx, orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"shipments": shipments})
}

func (h *Handler) listShipments(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	if _, err := store.DecodeCursor(cursor); err != nil {
		writeError(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	limit := intQuery(r, "limit", 20)
	if limit > 100 {
		limit = 20
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	page, err := h.store.Shipments(ctx, cursor, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

type webhookStatus struct {
	ShipmentID    courier.FlexibleID `json:"shipment_id"`
	CurrentStatus string             `json:"current_status"`
}

type webhookPayload struct {
	webhookStatus
	Data *webhookStatus `json:"data"`
}

func (p webhookPayload) resolve() (string, string) {
	id, status := p.ShipmentID.String(), p.CurrentStatus
	if p.Data != nil {
		if id == "" {
			id = p.Data.ShipmentID.String()
		}
		if status == "" {
			status = p.Data.CurrentStatus
		}
	}
	return id, status
}

// courierWebhook always acknowledges so the courier does not redeliver.
func (h *Handler) courierWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("courier webhook: undecodable body", "error", err)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	shipmentID, status := payload.resolve()
	if shipmentID != "" && status != "" {
		updated, err := h.store.ApplyCourierStatus(r.Context(), shipmentID, status)
		switch {
		case err != nil:
			h.logger.Warn("courier webhook: status not applied",
				"shipment_id", shipmentID,
				"status", status,
				"error", err,
			)
		case updated:
			h.logger.Info("courier webhook: status applied", "shipment_id", shipmentID, "status", status)
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) checkServiceability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var preferred *int64
	if raw := strings.TrimSpace(q.Get("preferred_branch_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid preferred_branch_id")
			return
		}
		preferred = &id
	}

	cod, _ := strconv.ParseBool(q.Get("cod"))

	result, err := h.serviceability.Check(r.Context(), q.Get("pincode"), preferred, cod)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) syncPickupLocations(w http.ResponseWriter, r *http.Request) {
	results, err := h.pickups.Sync(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      failed == 0,
		"failed":  failed,
		"results": results,
	})
}

func (h *Handler) listBranches(w http.ResponseWriter, r *http.Request) {
	page := intQuery(r, "page", 1)
	pageSize := intQuery(r, "page_size", 20)
	if pageSize > 100 {
		pageSize = 20
	}

	result, err := h.store.Branches(r.Context(), page, pageSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
