package fulfillment

import (
	"errors"
	"fmt"
)

var (
	ErrFulfillmentInProgress = errors.New("fulfillment already in progress for order")
	ErrInvalidPincode        = errors.New("delivery pincode must be 6 digits")
	ErrNoPickupPincode       = errors.New("no branch pincode available for pickup")
)

// InvalidItemError rejects a line item before any stock is touched.
type InvalidItemError struct {
	Index  int
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid item at position %d: %s", e.Index, e.Reason)
}

// OutOfStockError means no eligible branch could serve the variant.
type OutOfStockError struct {
	VariantID int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock for variant %d", e.VariantID)
}

type NoPickupMappingError struct {
	BranchID int64
}

func (e *NoPickupMappingError) Error() string {
	return fmt.Sprintf("no courier pickup location mapped for branch %d", e.BranchID)
}

// CompensationError is a failed stock restore. The listed decrements are
// still applied and need manual reconciliation.
type CompensationError struct {
	OrderID    int64
	Decrements []Decrement
	Err        error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("restore stock for order %d (%d decrements): %v", e.OrderID, len(e.Decrements), e.Err)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}
