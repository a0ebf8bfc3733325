package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Address struct {
	Line1   string   `json:"line1"`
	Line2   string   `json:"line2,omitempty"`
	City    string   `json:"city"`
	State   string   `json:"state"`
	Pincode string   `json:"pincode" validate:"omitempty,pincode"`
	Lat     *float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lng     *float64 `json:"lng,omitempty" validate:"omitempty,longitude"`
}

// Order is the placed order as handed over by order intake. The fulfillment
// core never mutates it.
type Order struct {
	ID                int64           `json:"id" validate:"required,gt=0"`
	CustomerName      string          `json:"customer_name"`
	CustomerEmail     string          `json:"customer_email" validate:"omitempty,email"`
	CustomerMobile    string          `json:"customer_mobile"`
	ShippingAddress   Address         `json:"shipping_address"`
	Pincode           string          `json:"pincode,omitempty" validate:"omitempty,pincode"`
	PaymentMethod     string          `json:"payment_method,omitempty"`
	PaymentStatus     string          `json:"payment_status"`
	Payable           decimal.Decimal `json:"payable"`
	Total             decimal.Decimal `json:"total"`
	PreferredBranchID *int64          `json:"branch_id,omitempty"`
	OrderedAt         time.Time       `json:"ordered_at"`
	Items             []LineItemInput `json:"items" validate:"required,min=1"`
}

// ShippingPincode prefers the address pincode over the order-level one.
func (o Order) ShippingPincode() string {
	if pc := strings.TrimSpace(o.ShippingAddress.Pincode); pc != "" {
		return pc
	}
	return strings.TrimSpace(o.Pincode)
}

// IsCashOnDelivery reports whether the courier has to collect money on delivery.
func (o Order) IsCashOnDelivery() bool {
	return strings.EqualFold(strings.TrimSpace(o.PaymentStatus), "COD") && o.Payable.IsPositive()
}

// LineItemInput accepts every field spelling order intake has used over time.
// fulfillment.NormalizeItem folds it into a LineItem.
type LineItemInput struct {
	VariantID      *int64           `json:"variant_id,omitempty"`
	ProductID      *int64           `json:"product_id,omitempty"`
	Qty            *int             `json:"qty,omitempty"`
	Quantity       *int             `json:"quantity,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	FinalPrice     *decimal.Decimal `json:"final_price,omitempty"`
	FinalPriceB2C  *decimal.Decimal `json:"final_price_b2c,omitempty"`
	FinalPriceB2B  *decimal.Decimal `json:"final_price_b2b,omitempty"`
	MRP            *decimal.Decimal `json:"mrp,omitempty"`
	OriginalPrice  *decimal.Decimal `json:"original_price,omitempty"`
	Size           *string          `json:"size,omitempty"`
	SelectedSize   *string          `json:"selected_size,omitempty"`
	Colour         *string          `json:"colour,omitempty"`
	Color          *string          `json:"color,omitempty"`
	SelectedColor  *string          `json:"selected_color,omitempty"`
	SelectedColour *string          `json:"selected_colour,omitempty"`
	ImageURL       *string          `json:"image_url,omitempty"`
	EANCode        *string          `json:"ean_code,omitempty"`
	EAN            *string          `json:"ean,omitempty"`
	BarcodeValue   *string          `json:"barcode_value,omitempty"`
	Name           *string          `json:"name,omitempty"`
	ProductName    *string          `json:"product_name,omitempty"`
}

type LineItem struct {
	VariantID int64            `json:"variant_id"`
	Qty       int              `json:"qty"`
	Price     decimal.Decimal  `json:"price"`
	MRP       *decimal.Decimal `json:"mrp,omitempty"`
	Size      string           `json:"size,omitempty"`
	Colour    string           `json:"colour,omitempty"`
	ImageURL  string           `json:"image_url,omitempty"`
	EANCode   string           `json:"ean_code,omitempty"`
	Name      string           `json:"name,omitempty"`
}

// Subtotal is price × qty.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Qty)))
}

type Branch struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	Pincode   string    `json:"pincode"`
	Lat       *float64  `json:"lat,omitempty"`
	Lng       *float64  `json:"lng,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Variant struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Size      string          `json:"size,omitempty"`
	Colour    string          `json:"colour,omitempty"`
	Price     decimal.Decimal `json:"price"`
	MRP       decimal.Decimal `json:"mrp"`
	CreatedAt time.Time       `json:"created_at"`
}

type BranchVariantStock struct {
	BranchID  int64     `json:"branch_id"`
	VariantID int64     `json:"variant_id"`
	OnHand    int       `json:"on_hand"`
	Reserved  int       `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Available is the sellable quantity: on_hand minus reserved.
func (s BranchVariantStock) Available() int {
	return s.OnHand - s.Reserved
}

// BranchCandidate is a branch able to serve a variant line right now.
type BranchCandidate struct {
	BranchID int64
	Lat      *float64
	Lng      *float64
	Pincode  string
	OnHand   int
	Reserved int
}

// PickupLocation maps a branch onto the courier's registered pickup address.
type PickupLocation struct {
	BranchID   int64     `json:"branch_id"`
	ExternalID string    `json:"pickup_id"`
	Name       string    `json:"name"`
	Pincode    string    `json:"pincode"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	Address    string    `json:"address"`
	Phone      string    `json:"phone"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Shipment struct {
	ID                 string         `json:"id"`
	OrderID            int64          `json:"order_id"`
	BranchID           int64          `json:"branch_id"`
	ExternalOrderID    *string        `json:"external_order_id,omitempty"`
	ExternalShipmentID *string        `json:"external_shipment_id,omitempty"`
	AWB                *string        `json:"awb,omitempty"`
	LabelURL           *string        `json:"label_url,omitempty"`
	TrackingURL        *string        `json:"tracking_url,omitempty"`
	Status             ShipmentStatus `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}
