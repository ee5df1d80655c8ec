package models

// PaymentMethod identifies how a sale is settled.
type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "cash"
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentDebitCard  PaymentMethod = "debit_card"
	PaymentPix        PaymentMethod = "pix"
)

// MaxInstallments caps credit card installment plans.
const MaxInstallments = 12

// PaymentSpec describes the chosen settlement for a sale.
// ReceivedAmount is only meaningful for cash; Installments only for credit.
type PaymentSpec struct {
	Method         PaymentMethod `json:"method"`
	ReceivedAmount int64         `json:"received_amount,omitempty"`
	Installments   int           `json:"installments,omitempty"`
}

// CompletesImmediately reports whether the method settles at the counter.
// Card payments stay pending until the gateway confirmation event arrives.
func (p PaymentSpec) CompletesImmediately() bool {
	return p.Method == PaymentCash || p.Method == PaymentPix
}

// Totals is the derived pricing of a cart for a given payment spec.
// It is recomputed from scratch on every change, never stored.
type Totals struct {
	Subtotal       int64   `json:"subtotal"`
	DiscountTotal  int64   `json:"discount_total"`
	Total          int64   `json:"total"`
	Change         int64   `json:"change,omitempty"`
	InstallmentPlan []int64 `json:"installment_plan,omitempty"`

	// NegativeTotalClamped is set when discounts exceeded the subtotal and
	// the payable amount was clamped to zero. Kept for audit.
	NegativeTotalClamped bool `json:"negative_total_clamped,omitempty"`
}
