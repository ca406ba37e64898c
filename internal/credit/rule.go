// Package credit decides whether a settlement creates a debt record and whether that debt
// fits the counterparty's credit limit.
package credit

import (
	"github.com/shopspring/decimal"

	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
)

type Assessment struct {
	RequiresCounterparty bool
	DebtAmount           decimal.Decimal
	ViolatesLimit        bool
	AmountTendered       decimal.Decimal
	Change               decimal.Decimal
	// PartialPayment is set when cash below the total leaves a balance as debt.
	PartialPayment bool
}

func (a Assessment) CreatesDebt() bool {
	return a.DebtAmount.IsPositive()
}

func (a Assessment) PaymentStatus(method domain.PaymentMethod) string {
	if method.OnAccount() {
		return domain.PaymentStatusUnpaid
	}
	return domain.PaymentStatusPaid
}

// Evaluate applies the payment-method rules. profile is nil when no counterparty is selected.
// The returned error is a *domain.ValidationError; the assessment is still filled in as far as
// it could be computed.
func Evaluate(method domain.PaymentMethod, tendered decimal.Decimal, total decimal.Decimal, profile *domain.CreditProfile) (Assessment, error) {
	var a Assessment

	switch method {
	case domain.PaymentDebt, domain.PaymentCredit:
		a.RequiresCounterparty = true
		a.DebtAmount = total
		a.AmountTendered = decimal.Zero
		a.Change = decimal.Zero
	case domain.PaymentCash:
		if tendered.IsNegative() {
			return a, domain.NewValidationError(domain.ErrInsufficientTender, "tendered amount %s is negative", tendered)
		}
		a.AmountTendered = tendered
		if tendered.GreaterThanOrEqual(total) {
			a.Change = tendered.Sub(total)
			if a.Change.IsNegative() {
				return a, domain.NewValidationError(domain.ErrInsufficientTender, "change %s is negative", a.Change)
			}
			return a, nil
		}
		if !tendered.IsPositive() {
			return a, domain.NewValidationError(domain.ErrInsufficientTender, "tendered %s, total %s", tendered, total)
		}
		a.PartialPayment = true
		a.RequiresCounterparty = true
		a.DebtAmount = total.Sub(tendered)
		a.Change = decimal.Zero
	case domain.PaymentCard, domain.PaymentMobile:
		a.AmountTendered = total
		a.Change = decimal.Zero
		return a, nil
	default:
		return a, domain.NewValidationError(domain.ErrUnsupportedPaymentMethod, "%q", method)
	}

	if profile == nil {
		return a, domain.NewValidationError(domain.ErrCounterpartyRequired, "payment method %s books %s against a counterparty", method, a.DebtAmount)
	}
	if profile.CreditLimit != nil && a.DebtAmount.GreaterThan(*profile.CreditLimit) {
		a.ViolatesLimit = true
		return a, domain.NewValidationError(domain.ErrCreditLimitExceeded, "debt %s exceeds limit %s", a.DebtAmount, profile.CreditLimit)
	}
	return a, nil
}
