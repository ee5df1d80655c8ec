package services

import (
	"fmt"

	"github.com/KallebyX/terman-os-sub000/services/pdv-engine/models"
)

// ComputeTotals derives the payable totals for a cart and payment spec. It is
// a pure function: identical inputs always yield identical Totals, with no
// hidden state, so the UI can recompute on every render.
func ComputeTotals(cart models.Cart, payment models.PaymentSpec) (models.Totals, error) {
	var totals models.Totals

	for _, item := range cart.Items {
		totals.Subtotal += item.UnitPrice * int64(item.Quantity)
		totals.DiscountTotal += item.Discount
	}

	totals.Total = totals.Subtotal - totals.DiscountTotal
	if totals.Total < 0 {
		// Never propagate a negative payable amount.
		totals.Total = 0
		totals.NegativeTotalClamped = true
	}

	switch payment.Method {
	case models.PaymentCash:
		if payment.ReceivedAmount < totals.Total {
			return totals, &models.PaymentError{
				Reason: fmt.Sprintf("received %d below total %d", payment.ReceivedAmount, totals.Total),
			}
		}
		totals.Change = payment.ReceivedAmount - totals.Total

	case models.PaymentCreditCard:
		plan, err := installmentPlan(totals.Total, payment.Installments)
		if err != nil {
			return totals, err
		}
		totals.InstallmentPlan = plan

	case models.PaymentDebitCard, models.PaymentPix:
		// Settled in full, nothing to derive.

	default:
		return totals, &models.PaymentError{
			Reason: fmt.Sprintf("unknown payment method %q", payment.Method),
		}
	}

	return totals, nil
}

// installmentPlan divides total across n installments, cent-exact. The
// remainder goes to the first installment so the plan always sums to total.
func installmentPlan(total int64, n int) ([]int64, error) {
	if n < 1 || n > models.MaxInstallments {
		return nil, &models.PaymentError{
			Reason: fmt.Sprintf("installments must be between 1 and %d, got %d", models.MaxInstallments, n),
		}
	}

	per := total / int64(n)
	remainder := total - per*int64(n)

	plan := make([]int64, n)
	for i := range plan {
		plan[i] = per
	}
	plan[0] += remainder
	return plan, nil
}
