package courier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/go-fulfillment/internal/models"
)

// FlexibleID is an aggregator identifier. Responses carry ids as numbers,
// strings or single-element arrays; the first element of an array wins.
// Numeric ids are sent back as JSON numbers.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("decode id list: %w", err)
		}
		if len(items) == 0 {
			*id = ""
			return nil
		}
		return id.UnmarshalJSON(items[0])
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = FlexibleID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = FlexibleID(n.String())
		return nil
	}
}

func (id FlexibleID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if id.numeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id FlexibleID) String() string {
	return string(id)
}

func (id FlexibleID) numeric() bool {
	if id == "" || (len(id) > 1 && id[0] == '0') {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func toIDs(ids []string) []FlexibleID {
	out := make([]FlexibleID, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, FlexibleID(id))
		}
	}
	return out
}

type PickupLocationRequest struct {
	PickupLocation string `json:"pickup_location"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	Address2       string `json:"address_2"`
	City           string `json:"city"`
	State          string `json:"state"`
	Country        string `json:"country"`
	PinCode        string `json:"pin_code"`
}

// NewPickupLocationRequest registers a branch under its own name.
func NewPickupLocationRequest(b models.Branch) PickupLocationRequest {
	return PickupLocationRequest{
		PickupLocation: b.Name,
		Name:           b.Name,
		Email:          orDefault(b.Email, "support@example.com"),
		Phone:          orDefault(b.Phone, "9999999999"),
		Address:        b.Address,
		City:           b.City,
		State:          b.State,
		Country:        "India",
		PinCode:        b.Pincode,
	}
}

type PickupLocationResponse struct {
	Success  bool       `json:"success"`
	PickupID FlexibleID `json:"pickup_id"`
	Address  struct {
		ID             FlexibleID `json:"id"`
		PickupLocation string     `json:"pickup_location"`
	} `json:"address"`
}

// ID is the aggregator's identifier for the registered location.
func (r PickupLocationResponse) ID() string {
	if r.PickupID != "" {
		return r.PickupID.String()
	}
	return r.Address.ID.String()
}

type PickupAddress struct {
	ID             FlexibleID `json:"id"`
	PickupLocation string     `json:"pickup_location"`
	Address        string     `json:"address"`
	City           string     `json:"city"`
	State          string     `json:"state"`
	PinCode        FlexibleID `json:"pin_code"`
	Phone          string     `json:"phone"`
}

type Customer struct {
	Name    string
	Email   string
	Phone   string
	Address models.Address
}

type Dimensions struct {
	Length  float64
	Breadth float64
	Height  float64
}

var DefaultDimensions = Dimensions{Length: 10, Breadth: 10, Height: 5}

const DefaultWeightKg = 0.5

// CreateOrderRequest is one branch group's shipment.
type CreateOrderRequest struct {
	ChannelOrderID string
	PickupLocation string
	Customer       Customer
	Items          []models.LineItem
	PaymentMethod  string
	Dimensions     *Dimensions
	WeightKg       float64
	OrderDate      time.Time
}

type orderItemPayload struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
}

type createOrderPayload struct {
	OrderID           string             `json:"order_id"`
	OrderDate         string             `json:"order_date"`
	PickupLocation    string             `json:"pickup_location"`
	BillingName       string             `json:"billing_customer_name"`
	BillingLastName   string             `json:"billing_last_name"`
	BillingAddress    string             `json:"billing_address"`
	BillingAddress2   string             `json:"billing_address_2"`
	BillingCity       string             `json:"billing_city"`
	BillingPincode    string             `json:"billing_pincode"`
	BillingState      string             `json:"billing_state"`
	BillingCountry    string             `json:"billing_country"`
	BillingEmail      string             `json:"billing_email"`
	BillingPhone      string             `json:"billing_phone"`
	ShippingIsBilling bool               `json:"shipping_is_billing"`
	OrderItems        []orderItemPayload `json:"order_items"`
	PaymentMethod     string             `json:"payment_method"`
	SubTotal          float64            `json:"sub_total"`
	Length            float64            `json:"length"`
	Breadth           float64            `json:"breadth"`
	Height            float64            `json:"height"`
	Weight            float64            `json:"weight"`
}

func (r CreateOrderRequest) payload() createOrderPayload {
	dims := DefaultDimensions
	if r.Dimensions != nil {
		dims = withDefaultDimensions(*r.Dimensions)
	}
	weight := r.WeightKg
	if weight <= 0 {
		weight = DefaultWeightKg
	}
	paymentMethod := "Prepaid"
	if r.PaymentMethod == "COD" {
		paymentMethod = "COD"
	}

	items := make([]orderItemPayload, 0, len(r.Items))
	subTotal := decimal.Zero
	for _, it := range r.Items {
		items = append(items, orderItemPayload{
			Name:         orDefault(it.Name, fmt.Sprintf("Variant %d", it.VariantID)),
			SKU:          fmt.Sprintf("%d", it.VariantID),
			Units:        it.Qty,
			SellingPrice: it.Price.InexactFloat64(),
		})
		subTotal = subTotal.Add(it.Subtotal())
	}

	addr := r.Customer.Address
	return createOrderPayload{
		OrderID:           r.ChannelOrderID,
		OrderDate:         r.OrderDate.UTC().Format(time.RFC3339),
		PickupLocation:    r.PickupLocation,
		BillingName:       orDefault(r.Customer.Name, "Customer"),
		BillingAddress:    addr.Line1,
		BillingAddress2:   addr.Line2,
		BillingCity:       addr.City,
		BillingPincode:    addr.Pincode,
		BillingState:      addr.State,
		BillingCountry:    "India",
		BillingEmail:      orDefault(r.Customer.Email, "na@example.com"),
		BillingPhone:      orDefault(r.Customer.Phone, "9999999999"),
		ShippingIsBilling: true,
		OrderItems:        items,
		PaymentMethod:     paymentMethod,
		SubTotal:          subTotal.InexactFloat64(),
		Length:            dims.Length,
		Breadth:           dims.Breadth,
		Height:            dims.Height,
		Weight:            weight,
	}
}

type CreateOrderResponse struct {
	OrderID     FlexibleID `json:"order_id"`
	ShipmentID  FlexibleID `json:"shipment_id"`
	Status      string     `json:"status"`
	AWBCode     string     `json:"awb_code"`
	CourierName string     `json:"courier_name"`
	TrackingURL string     `json:"tracking_url"`
}

type AWBResult struct {
	AWB         string
	CourierName string
	LabelURL    string
}

type awbResponse struct {
	AWBAssignStatus int `json:"awb_assign_status"`
	Response        struct {
		Data struct {
			AWBCode        string          `json:"awb_code"`
			CourierName    string          `json:"courier_name"`
			AWBAssignError json.RawMessage `json:"awb_assign_error"`
		} `json:"data"`
	} `json:"response"`
	Message string `json:"message"`
}

type labelResponse struct {
	LabelCreated int    `json:"label_created"`
	LabelURL     string `json:"label_url"`
	Response     string `json:"response"`
}

type PickupRequest struct {
	ShipmentIDs []string
	PickupDates []string
	Status      string
}

type pickupPayload struct {
	ShipmentID []FlexibleID `json:"shipment_id"`
	PickupDate []string     `json:"pickup_date,omitempty"`
	Status     string       `json:"status,omitempty"`
}

type PickupResponse struct {
	PickupStatus int `json:"pickup_status"`
	Response     struct {
		PickupScheduledDate string     `json:"pickup_scheduled_date"`
		PickupTokenNumber   FlexibleID `json:"pickup_token_number"`
	} `json:"response"`
}

type ManifestResponse struct {
	Status      int    `json:"status"`
	ManifestURL string `json:"manifest_url"`
}

type ServiceabilityQuery struct {
	PickupPostcode   string
	DeliveryPostcode string
	COD              bool
	WeightKg         float64
}

type CourierOption struct {
	CourierCompanyID      FlexibleID      `json:"courier_company_id"`
	CourierName           string          `json:"courier_name"`
	Rate                  decimal.Decimal `json:"rate"`
	EstimatedDeliveryDays string          `json:"estimated_delivery_days"`
	ETD                   string          `json:"etd"`
	COD                   int             `json:"cod"`
}

type ServiceabilityResult struct {
	PickupPostcode   string          `json:"pickup_postcode"`
	DeliveryPostcode string          `json:"delivery_postcode"`
	COD              bool            `json:"cod"`
	WeightKg         float64         `json:"weight"`
	Serviceable      bool            `json:"serviceable"`
	Couriers         []CourierOption `json:"couriers"`
}

func withDefaultDimensions(d Dimensions) Dimensions {
	if d.Length <= 0 {
		d.Length = DefaultDimensions.Length
	}
	if d.Breadth <= 0 {
		d.Breadth = DefaultDimensions.Breadth
	}
	if d.Height <= 0 {
		d.Height = DefaultDimensions.Height
	}
	return d
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
