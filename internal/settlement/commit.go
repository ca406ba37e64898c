package settlement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/osama-dev255/kilango1v1-sub000/internal/credit"
	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
	"github.com/osama-dev255/kilango1v1-sub000/internal/numbering"
	"github.com/osama-dev255/kilango1v1-sub000/internal/store"
	"github.com/osama-dev255/kilango1v1-sub000/internal/xid"
)

const (
	stepHeader   = "transaction header"
	stepLineItem = "line item"
	stepDebt     = "debt record"
	stepStock    = "stock adjustment"
	stepLoyalty  = "loyalty points"
)

// draft is everything validated before the first write.
type draft struct {
	flow         Flow
	lines        []domain.CartLine
	counterparty *domain.Counterparty
	discount     domain.DiscountSpec
	totals       domain.Totals
	payment      Payment
	assessment   credit.Assessment
}

// commit writes header, line items, debt and stock in that order, each awaited before the
// next. The writes are independent; unless compensation is enabled a failure leaves earlier
// writes in place.
func (e *Engine) commit(ctx context.Context, d draft) (*domain.SettlementResult, error) {
	now := e.now().UTC()
	documentNo := numbering.NewTimeToken(d.flow.DocumentPrefix, e.now).Next()
	log := e.logger.With(
		zap.String("flow", d.flow.Name),
		zap.String("document_number", documentNo))
	uow := newUnitOfWork(log, documentNo)

	header := domain.TransactionHeader{
		ID:               xid.New("txn"),
		DocumentNumber:   documentNo,
		Direction:        d.flow.Direction,
		CounterpartyKind: d.flow.CounterpartyKind,
		Subtotal:         d.totals.Subtotal,
		DiscountKind:     d.discount.Kind,
		DiscountValue:    d.discount.Value,
		DiscountAmount:   d.totals.DiscountAmount,
		DisplayTax:       d.totals.DisplayTax,
		Total:            d.totals.Total,
		PaymentMethod:    d.payment.Method,
		PaymentStatus:    d.assessment.PaymentStatus(d.payment.Method),
		AmountTendered:   d.assessment.AmountTendered,
		Change:           d.assessment.Change,
		TransactionDate:  now,
		CreatedAt:        now,
	}
	if d.counterparty != nil {
		header.CounterpartyID = d.counterparty.ID
	}

	created, err := e.repo.CreateTransactionHeader(ctx, header)
	if err != nil {
		return nil, e.fail(ctx, log, uow, stepHeader, err)
	}
	headerID := created.ID
	uow.record(stepHeader, func(ctx context.Context) error {
		return e.repo.VoidTransactionHeader(ctx, headerID, "settlement rolled back")
	})

	result := &domain.SettlementResult{
		Header:       *created,
		Items:        make([]domain.LineItem, 0, len(d.lines)),
		Counterparty: d.counterparty,
	}
	result.LoyaltyPoints = e.accrueLoyalty(ctx, log, uow, d)

	for _, line := range d.lines {
		item, err := e.repo.CreateLineItem(ctx, domain.LineItem{
			ID:            xid.New("item"),
			TransactionID: headerID,
			ProductID:     line.ProductRef,
			Name:          line.Name,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			LineTotal:     line.LineTotal(),
		})
		if err != nil {
			return nil, e.fail(ctx, log, uow, stepLineItem, err)
		}
		result.Items = append(result.Items, *item)
	}

	if d.assessment.CreatesDebt() {
		debt, err := e.repo.CreateDebtRecord(ctx, domain.DebtRecord{
			ID:               xid.New("debt"),
			TransactionID:    headerID,
			DocumentNumber:   documentNo,
			CounterpartyKind: d.flow.CounterpartyKind,
			CounterpartyID:   header.CounterpartyID,
			Amount:           d.assessment.DebtAmount,
			Status:           domain.DebtStatusOutstanding,
			CreatedAt:        now,
		})
		switch {
		case err == nil:
			result.Debt = debt
			debtID := debt.ID
			uow.record(stepDebt, func(ctx context.Context) error {
				return e.repo.CancelDebtRecord(ctx, debtID)
			})
		case d.payment.Method.OnAccount():
			return nil, e.fail(ctx, log, uow, stepDebt, err)
		default:
			// Balance of a partial cash payment; the sale itself is already paid.
			log.Warn("partial payment balance not recorded",
				zap.String("counterparty_id", header.CounterpartyID),
				zap.String("amount", d.assessment.DebtAmount.String()),
				zap.Error(err))
		}
	}

	for _, line := range d.lines {
		outcome, err := e.applyStock(ctx, d.flow, line)
		result.StockOutcomes = append(result.StockOutcomes, outcome)
		if err != nil {
			return nil, e.fail(ctx, log, uow, stepStock, err)
		}
		productID, previous := outcome.ProductID, outcome.PreviousQuantity
		uow.record(stepStock, func(ctx context.Context) error {
			return e.repo.AdjustStock(ctx, productID, previous)
		})
	}

	log.Info("settlement completed",
		zap.String("transaction_id", headerID),
		zap.String("total", d.totals.Total.String()),
		zap.String("payment_method", string(d.payment.Method)),
		zap.Int("lines", len(result.Items)),
		zap.Bool("debt", result.Debt != nil))
	return result, nil
}

// applyStock reads the current quantity and writes current+delta. The read and write are two
// calls, so a concurrent settlement in between is lost.
func (e *Engine) applyStock(ctx context.Context, flow Flow, line domain.CartLine) (domain.StockOutcome, error) {
	outcome := domain.StockOutcome{
		ProductID: line.ProductRef,
		Delta:     flow.stockDelta(line.Quantity),
	}

	current, err := e.repo.GetStock(ctx, line.ProductRef)
	if err != nil {
		outcome.Error = err.Error()
		return outcome, err
	}
	outcome.PreviousQuantity = current
	outcome.NewQuantity = current + outcome.Delta

	if outcome.NewQuantity < 0 {
		err := fmt.Errorf("%s has %d, needs %d: %w", line.ProductRef, current, line.Quantity, store.ErrInsufficientStock)
		outcome.Error = err.Error()
		return outcome, err
	}
	if err := e.repo.AdjustStock(ctx, line.ProductRef, outcome.NewQuantity); err != nil {
		outcome.Error = err.Error()
		return outcome, err
	}
	outcome.Applied = true
	return outcome, nil
}

// accrueLoyalty credits points to the customer once the header exists. Failures are logged and
// never fail the settlement.
func (e *Engine) accrueLoyalty(ctx context.Context, log *zap.Logger, uow *unitOfWork, d draft) int64 {
	if !d.flow.AccruesLoyalty || d.counterparty == nil {
		return 0
	}
	points := LoyaltyPoints(d.totals.Total, e.loyaltyUnit)
	if points == 0 {
		return 0
	}

	customerID := d.counterparty.ID
	if err := e.repo.AccrueLoyaltyPoints(ctx, customerID, points); err != nil {
		log.Warn("loyalty accrual failed",
			zap.String("customer_id", customerID),
			zap.Int64("points", points),
			zap.Error(err))
		return 0
	}
	uow.record(stepLoyalty, func(ctx context.Context) error {
		return e.repo.AccrueLoyaltyPoints(ctx, customerID, -points)
	})
	return points
}

func (e *Engine) fail(ctx context.Context, log *zap.Logger, uow *unitOfWork, step string, err error) error {
	log.Error("settlement step failed", zap.String("step", step), zap.Error(err))
	if e.compensate {
		undone := uow.rollback(ctx)
		log.Warn("settlement compensated", zap.String("failed_step", step), zap.Int("undone", undone))
	}
	return &domain.PersistenceError{Step: step, Err: err}
}
