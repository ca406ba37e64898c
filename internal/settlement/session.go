package settlement

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/osama-dev255/kilango1v1-sub000/internal/credit"
	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
	"github.com/osama-dev255/kilango1v1-sub000/internal/pricing"
	"github.com/osama-dev255/kilango1v1-sub000/internal/receipt"
	"github.com/osama-dev255/kilango1v1-sub000/internal/stockguard"
)

type State string

const (
	StateBuilding        State = "building"
	StateAwaitingPayment State = "awaiting_payment"
	StateSettling        State = "settling"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

var ErrInvalidState = errors.New("operation not allowed in current session state")

type Payment struct {
	Method   domain.PaymentMethod `json:"method"`
	Tendered decimal.Decimal      `json:"tendered"`
}

// Session is one cart moving through checkout. Methods are safe for concurrent use, but only
// one settlement runs at a time and cart edits are refused while it does.
type Session struct {
	mu     sync.Mutex
	id     string
	flow   Flow
	engine *Engine

	state        State
	catalog      map[string]domain.Product
	guard        *stockguard.Guard
	lines        []domain.CartLine
	counterparty *domain.Counterparty
	discount     domain.DiscountSpec
	result       *domain.SettlementResult
	lastErr      error
}

// View is a copy of the session state for callers outside the package.
type View struct {
	ID           string                   `json:"id"`
	Flow         string                   `json:"flow"`
	State        State                    `json:"state"`
	Lines        []domain.CartLine        `json:"lines"`
	Counterparty *domain.Counterparty     `json:"counterparty,omitempty"`
	Discount     domain.DiscountSpec      `json:"discount"`
	Totals       domain.Totals            `json:"totals"`
	Result       *domain.SettlementResult `json:"result,omitempty"`
	LastError    string                   `json:"last_error,omitempty"`
}

func noDiscount() domain.DiscountSpec {
	return domain.DiscountSpec{Kind: domain.DiscountAmount, Value: decimal.Zero}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Flow() Flow {
	return s.flow
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:       s.id,
		Flow:     s.flow.Name,
		State:    s.state,
		Lines:    slices.Clone(s.lines),
		Discount: s.discount,
		Totals:   s.totalsLocked(),
		Result:   s.result,
	}
	if v.Lines == nil {
		v.Lines = []domain.CartLine{}
	}
	if s.counterparty != nil {
		cp := *s.counterparty
		v.Counterparty = &cp
	}
	if s.lastErr != nil {
		v.LastError = s.lastErr.Error()
	}
	return v
}

// Totals recomputes the cart totals. It never touches the network.
func (s *Session) Totals() domain.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalsLocked()
}

func (s *Session) totalsLocked() domain.Totals {
	discount := s.discount
	if discount.Kind == "" {
		discount = noDiscount()
	}
	return s.flow.Pricing.Calculate(s.lines, discount)
}

// AddItem adds one unit of productID, snapshotting its price on first add. For stock-bounded
// flows the increment is refused once the cart holds everything available.
func (s *Session) AddItem(productID string) (domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("add item", StateBuilding); err != nil {
		return domain.CartLine{}, err
	}
	product, ok := s.catalog[productID]
	if !ok {
		return domain.CartLine{}, domain.NewValidationError(domain.ErrUnknownProduct, "%s", productID)
	}

	idx := s.lineIndex(productID)
	current := 0
	if idx >= 0 {
		current = s.lines[idx].Quantity
	}
	if s.flow.EnforceStock {
		if err := s.guard.CheckIncrement(productID, product.Name, current); err != nil {
			return domain.CartLine{}, err
		}
	}

	if idx >= 0 {
		s.lines[idx].Quantity++
		return s.lines[idx], nil
	}
	line := domain.CartLine{
		ProductRef: product.ID,
		Name:       product.Name,
		UnitPrice:  product.Price,
		Quantity:   1,
	}
	s.lines = append(s.lines, line)
	return line, nil
}

// SetQuantity is the manual edit path. Stock-bounded flows cap the quantity at the snapshot
// value instead of refusing; the returned adjustment says whether that happened. Zero keeps
// the line in the cart but out of the settlement.
func (s *Session) SetQuantity(productID string, quantity int) (stockguard.Adjustment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("set quantity", StateBuilding); err != nil {
		return stockguard.Adjustment{}, err
	}
	idx := s.lineIndex(productID)
	if idx < 0 {
		return stockguard.Adjustment{}, domain.NewValidationError(domain.ErrUnknownProduct, "%s is not in the cart", productID)
	}

	var adj stockguard.Adjustment
	if s.flow.EnforceStock {
		adj = s.guard.ClampEdit(productID, quantity)
	} else {
		available, _ := s.guard.Snapshot().Available(productID)
		adj = stockguard.Adjustment{Quantity: max(quantity, 0), Available: available}
	}
	if adj.Capped {
		s.engine.logger.Info("cart quantity capped to stock",
			zap.String("session_id", s.id),
			zap.String("product_id", productID),
			zap.Int("requested", quantity),
			zap.Int("available", adj.Available))
	}
	s.lines[idx].Quantity = adj.Quantity
	return adj, nil
}

func (s *Session) RemoveLine(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("remove line", StateBuilding); err != nil {
		return err
	}
	idx := s.lineIndex(productID)
	if idx < 0 {
		return domain.NewValidationError(domain.ErrUnknownProduct, "%s is not in the cart", productID)
	}
	s.lines = slices.Delete(s.lines, idx, idx+1)
	return nil
}

func (s *Session) SetDiscount(discount domain.DiscountSpec) error {
	if err := pricing.ValidateDiscount(discount); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("set discount", StateBuilding); err != nil {
		return err
	}
	s.discount = discount
	return nil
}

// SelectCounterparty attaches a customer or supplier of the flow's kind. It is also allowed
// while awaiting payment, so a debt payment can be retried after picking one.
func (s *Session) SelectCounterparty(ctx context.Context, id string) error {
	cp, err := s.engine.repo.GetCounterparty(ctx, s.flow.CounterpartyKind, id)
	if err != nil {
		return fmt.Errorf("%s %s: %w", s.flow.CounterpartyKind, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("select counterparty", StateBuilding, StateAwaitingPayment); err != nil {
		return err
	}
	s.counterparty = cp
	return nil
}

func (s *Session) ClearCounterparty() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("clear counterparty", StateBuilding); err != nil {
		return err
	}
	s.counterparty = nil
	return nil
}

// Checkout moves the cart to payment. It needs at least one line with a positive quantity and,
// when the flow requires one, a counterparty.
func (s *Session) Checkout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("checkout", StateBuilding); err != nil {
		return err
	}
	if len(settleableLines(s.lines)) == 0 {
		return domain.NewValidationError(domain.ErrEmptyCart, "add at least one item")
	}
	if s.flow.CounterpartyRequired && s.counterparty == nil {
		return domain.NewValidationError(domain.ErrCounterpartyRequired, "select a %s before checkout", s.flow.CounterpartyKind)
	}
	s.state = StateAwaitingPayment
	return nil
}

// ReturnToCart reopens the cart for edits after checkout or a failed settlement.
func (s *Session) ReturnToCart() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("return to cart", StateAwaitingPayment, StateFailed); err != nil {
		return err
	}
	s.state = StateBuilding
	s.lastErr = nil
	return nil
}

// Settle validates payment and stock, then writes the transaction. Validation failures leave
// the session where it was with nothing written. A write failure moves it to Failed with the
// cart intact; Settle may be called again from there. Cancelling ctx does not interrupt a
// settlement that has started.
func (s *Session) Settle(ctx context.Context, payment Payment) (*domain.SettlementResult, error) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if err := s.requireState("settle", StateAwaitingPayment, StateFailed); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	resumeState := s.state
	d := draft{
		flow:     s.flow,
		lines:    settleableLines(s.lines),
		discount: s.discount,
		totals:   s.totalsLocked(),
		payment:  payment,
	}
	if d.discount.Kind == "" {
		d.discount = noDiscount()
	}
	if len(d.lines) == 0 {
		s.mu.Unlock()
		return nil, domain.NewValidationError(domain.ErrEmptyCart, "add at least one item")
	}

	var profile *domain.CreditProfile
	if s.counterparty != nil {
		cp := *s.counterparty
		d.counterparty = &cp
		p := cp.CreditProfile()
		profile = &p
	}
	assessment, err := credit.Evaluate(payment.Method, payment.Tendered, d.totals.Total, profile)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	d.assessment = assessment
	s.state = StateSettling
	s.mu.Unlock()

	if s.flow.EnforceStock {
		if err := s.recheckStock(ctx, d.lines); err != nil {
			s.mu.Lock()
			s.state = resumeState
			s.mu.Unlock()
			return nil, err
		}
	}

	result, err := s.engine.commit(ctx, d)

	s.mu.Lock()
	if err != nil {
		s.state = StateFailed
		s.lastErr = err
		s.mu.Unlock()
		return nil, err
	}
	s.state = StateCompleted
	s.result = result
	s.lastErr = nil
	s.mu.Unlock()

	s.refreshSnapshot(ctx)
	return result, nil
}

// recheckStock validates the lines against stock read from the repository, not the cached
// snapshot.
func (s *Session) recheckStock(ctx context.Context, lines []domain.CartLine) error {
	products, err := s.engine.repo.FetchProducts(ctx)
	if err != nil {
		return &domain.PersistenceError{Step: "stock recheck", Err: err}
	}

	s.mu.Lock()
	s.applySnapshot(products)
	s.mu.Unlock()

	return stockguard.Recheck(lines, stockguard.SnapshotFromProducts(products))
}

func (s *Session) refreshSnapshot(ctx context.Context) {
	s.engine.invalidateProducts(ctx)
	products, err := s.engine.reloadProducts(ctx)
	if err != nil {
		s.engine.logger.Warn("snapshot refresh after settlement failed",
			zap.String("session_id", s.id),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applySnapshot(products)
}

// Result returns the last completed settlement until it is acknowledged.
func (s *Session) Result() (*domain.SettlementResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.result != nil
}

func (s *Session) Receipt() (domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("receipt", StateCompleted); err != nil {
		return domain.Receipt{}, err
	}
	return receipt.Build(*s.result), nil
}

// Acknowledge confirms the receipt was handled and clears the cart for the next transaction.
func (s *Session) Acknowledge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState("acknowledge", StateCompleted); err != nil {
		return err
	}
	s.resetLocked()
	return nil
}

// Abandon drops the cart. It is refused while a settlement is running.
func (s *Session) Abandon() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSettling {
		return fmt.Errorf("%w: abandon while %s", ErrInvalidState, s.state)
	}
	s.resetLocked()
	return nil
}

func (s *Session) resetLocked() {
	s.state = StateBuilding
	s.lines = nil
	s.counterparty = nil
	s.discount = noDiscount()
	s.result = nil
	s.lastErr = nil
}

func (s *Session) applySnapshot(products []domain.Product) {
	catalog := make(map[string]domain.Product, len(products))
	for _, p := range products {
		catalog[p.ID] = p
	}
	s.catalog = catalog
	s.guard = stockguard.New(stockguard.SnapshotFromProducts(products))
}

func (s *Session) requireState(op string, allowed ...State) error {
	if slices.Contains(allowed, s.state) {
		return nil
	}
	return fmt.Errorf("%w: %s while %s", ErrInvalidState, op, s.state)
}

func (s *Session) lineIndex(productID string) int {
	return slices.IndexFunc(s.lines, func(l domain.CartLine) bool {
		return l.ProductRef == productID
	})
}

func settleableLines(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		if line.Quantity > 0 {
			out = append(out, line)
		}
	}
	return out
}
