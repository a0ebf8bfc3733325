package courier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// AddPickupLocation registers (or re-registers) a dispatch address.
func (c *Client) AddPickupLocation(ctx context.Context, req PickupLocationRequest) (*PickupLocationResponse, error) {
	var out PickupLocationResponse
	if err := c.Do(ctx, "add_pickup", http.MethodPost, "/settings/company/addpickup", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListPickupLocations(ctx context.Context) ([]PickupAddress, error) {
	var out struct {
		Data struct {
			ShippingAddress []PickupAddress `json:"shipping_address"`
		} `json:"data"`
	}
	if err := c.Do(ctx, "list_pickup", http.MethodGet, "/settings/company/pickup", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Data.ShippingAddress, nil
}

func (c *Client) CreateOrderShipment(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	var out CreateOrderResponse
	if err := c.Do(ctx, "create_order", http.MethodPost, "/orders/create/adhoc", nil, req.payload(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignAWBAndLabel assigns an air waybill to the shipments, then generates
// their label. A 2xx response that carries no AWB code is a RemoteError.
func (c *Client) AssignAWBAndLabel(ctx context.Context, shipmentIDs ...string) (*AWBResult, error) {
	ids := toIDs(shipmentIDs)
	if len(ids) == 0 {
		return nil, errors.New("assign awb: no shipment ids")
	}

	var awb awbResponse
	if err := c.Do(ctx, "assign_awb", http.MethodPost, "/courier/assign/awb", nil,
		map[string]any{"shipment_id": ids}, &awb); err != nil {
		return nil, err
	}

	data := awb.Response.Data
	if data.AWBCode == "" {
		msg := awb.Message
		if len(data.AWBAssignError) > 0 && string(data.AWBAssignError) != "null" {
			msg = string(data.AWBAssignError)
		}
		if msg == "" {
			msg = "awb not assigned"
		}
		return nil, &RemoteError{Operation: "assign_awb", StatusCode: http.StatusOK, Message: msg}
	}

	var label labelResponse
	if err := c.Do(ctx, "generate_label", http.MethodPost, "/courier/generate/label", nil,
		map[string]any{"shipment_id": ids}, &label); err != nil {
		return nil, err
	}

	return &AWBResult{
		AWB:         data.AWBCode,
		CourierName: data.CourierName,
		LabelURL:    label.LabelURL,
	}, nil
}

func (c *Client) RequestPickup(ctx context.Context, req PickupRequest) (*PickupResponse, error) {
	payload := pickupPayload{
		ShipmentID: toIDs(req.ShipmentIDs),
		PickupDate: req.PickupDates,
		Status:     req.Status,
	}

	var out PickupResponse
	if err := c.Do(ctx, "request_pickup", http.MethodPost, "/courier/generate/pickup", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateManifest asks for one manifest covering every shipment id.
func (c *Client) GenerateManifest(ctx context.Context, shipmentIDs []string) (*ManifestResponse, error) {
	var out ManifestResponse
	if err := c.Do(ctx, "generate_manifest", http.MethodPost, "/manifests/generate", nil,
		map[string]any{"shipment_id": toIDs(shipmentIDs)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckServiceability lists the couriers able to carry a parcel between two
// postcodes. A 404 from the aggregator means no courier serves the route.
func (c *Client) CheckServiceability(ctx context.Context, q ServiceabilityQuery) (*ServiceabilityResult, error) {
	weight := q.WeightKg
	if weight <= 0 {
		weight = DefaultWeightKg
	}
	cod := "0"
	if q.COD {
		cod = "1"
	}

	params := url.Values{}
	params.Set("pickup_postcode", q.PickupPostcode)
	params.Set("delivery_postcode", q.DeliveryPostcode)
	params.Set("cod", cod)
	params.Set("weight", strconv.FormatFloat(weight, 'f', -1, 64))

	result := &ServiceabilityResult{
		PickupPostcode:   q.PickupPostcode,
		DeliveryPostcode: q.DeliveryPostcode,
		COD:              q.COD,
		WeightKg:         weight,
		Couriers:         []CourierOption{},
	}

	var out struct {
		Data struct {
			AvailableCourierCompanies []CourierOption `json:"available_courier_companies"`
		} `json:"data"`
	}
	err := c.Do(ctx, "serviceability", http.MethodGet, "/courier/serviceability", params, nil, &out)
	if err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) && remote.StatusCode == http.StatusNotFound {
			return result, nil
		}
		return nil, err
	}

	if out.Data.AvailableCourierCompanies != nil {
		result.Couriers = out.Data.AvailableCourierCompanies
	}
	result.Serviceable = len(result.Couriers) > 0
	return result, nil
}

// CancelOrders cancels aggregator orders by id. No ids is a no-op.
func (c *Client) CancelOrders(ctx context.Context, orderIDs ...string) error {
	ids := toIDs(orderIDs)
	if len(ids) == 0 {
		return nil
	}
	return c.Do(ctx, "cancel_orders", http.MethodPost, "/orders/cancel", nil, map[string]any{"ids": ids}, nil)
}

// TrackOrder returns the aggregator's tracking document for a channel order
// id as-is.
func (c *Client) TrackOrder(ctx context.Context, orderID, channelID string) (json.RawMessage, error) {
	if orderID == "" {
		return nil, fmt.Errorf("track order: empty order id")
	}

	params := url.Values{}
	params.Set("order_id", orderID)
	if channelID != "" {
		params.Set("channel_id", channelID)
	}

	var out json.RawMessage
	if err := c.Do(ctx, "track", http.MethodGet, "/courier/track", params, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
