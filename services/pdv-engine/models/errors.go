package models

import "fmt"

// ValidationError covers empty carts, missing required customer and invalid
// quantities. The cart is left unchanged when one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// PaymentError covers insufficient cash and invalid installment counts.
// No state transition happens when one is returned.
type PaymentError struct {
	Reason string
}

func (e *PaymentError) Error() string { return e.Reason }

// FailureCode classifies terminal settlement failures.
type FailureCode string

const (
	FailureInsufficientStock   FailureCode = "insufficient_stock"
	FailureReservationConflict FailureCode = "reservation_conflict"
	FailureSubmissionTimeout   FailureCode = "submission_timeout"
	FailureSubmissionRejected  FailureCode = "submission_rejected"
	FailureLedgerUnavailable   FailureCode = "ledger_unavailable"
)

// Failure is the structured reason attached to a Failed settlement state.
// It is consumable by the UI layer: ProductID/Available are set for stock
// failures, Err keeps the underlying cause for transient ones.
type Failure struct {
	Code      FailureCode
	ProductID string
	Available int
	Err       error
}

func (f *Failure) Error() string {
	switch f.Code {
	case FailureInsufficientStock:
		return fmt.Sprintf("insufficient stock for product %s: available=%d", f.ProductID, f.Available)
	case FailureReservationConflict:
		return fmt.Sprintf("reservation conflict for product %s", f.ProductID)
	case FailureSubmissionTimeout:
		return fmt.Sprintf("order submission failed after retries: %v", f.Err)
	case FailureLedgerUnavailable:
		return fmt.Sprintf("stock ledger unavailable: %v", f.Err)
	}
	return string(f.Code)
}

func (f *Failure) Unwrap() error { return f.Err }
