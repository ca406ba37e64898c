package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
	"github.com/osama-dev255/kilango1v1-sub000/internal/store"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	counterparties   map[domain.CounterpartyKind]map[string]domain.Counterparty
	headersByID      map[string]domain.TransactionHeader
	headerIDByNumber map[string]string
	itemsByHeader    map[string][]domain.LineItem
	debtsByID        map[string]domain.DebtRecord
	lastNumbers      map[string]string
	usersByUsername  map[string]domain.UserAccount
}

// New returns an empty store.
func New() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		counterparties: map[domain.CounterpartyKind]map[string]domain.Counterparty{
			domain.CounterpartyCustomer: {},
			domain.CounterpartySupplier: {},
		},
		headersByID:      make(map[string]domain.TransactionHeader),
		headerIDByNumber: make(map[string]string),
		itemsByHeader:    make(map[string][]domain.LineItem),
		debtsByID:        make(map[string]domain.DebtRecord),
		lastNumbers:      make(map[string]string),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; when unset,
// dev defaults are used with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo products, customers, suppliers and users.
func NewSeeded() *Store {
	s := New()

	for _, p := range []domain.Product{
		{ID: "prd-sugar", SKU: "SKU-GULA-01", Name: "Sugar 1kg", Category: "grocery", Price: decimal.RequireFromString("10.00"), Stock: 120},
		{ID: "prd-rice", SKU: "SKU-BERAS-05", Name: "Rice 5kg", Category: "grocery", Price: decimal.RequireFromString("15.00"), Stock: 80},
		{ID: "prd-oil", SKU: "SKU-MINYAK-02", Name: "Cooking Oil 2L", Category: "grocery", Price: decimal.RequireFromString("7.50"), Stock: 60},
		{ID: "prd-milk", SKU: "SKU-SUSU-01", Name: "UHT Milk 1L", Category: "dairy", Price: decimal.RequireFromString("1.89"), Stock: 200},
		{ID: "prd-soap", SKU: "SKU-SABUN-01", Name: "Bath Soap", Category: "household", Price: decimal.RequireFromString("0.74"), Stock: 3},
	} {
		p.Active = true
		s.products[p.ID] = p
	}

	walkInLimit := decimal.RequireFromString("100")
	wholesaleLimit := decimal.RequireFromString("5000")
	for _, c := range []domain.Counterparty{
		{ID: "cus-walkin", Kind: domain.CounterpartyCustomer, Name: "Regular Walk-in", Phone: "+255700000001", CreditLimit: &walkInLimit},
		{ID: "cus-wholesale", Kind: domain.CounterpartyCustomer, Name: "Mama Neema Wholesale", Phone: "+255700000002", CreditLimit: &wholesaleLimit},
		{ID: "cus-open", Kind: domain.CounterpartyCustomer, Name: "Open Account"},
		{ID: "sup-mill", Kind: domain.CounterpartySupplier, Name: "Kilimo Mills", Phone: "+255700000010"},
		{ID: "sup-dairy", Kind: domain.CounterpartySupplier, Name: "Highland Dairy", Phone: "+255700000011", CreditLimit: &wholesaleLimit},
	} {
		s.counterparties[c.Kind][c.ID] = c
	}

	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) PutCounterparty(c domain.Counterparty) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counterparties[c.Kind] == nil {
		s.counterparties[c.Kind] = make(map[string]domain.Counterparty)
	}
	s.counterparties[c.Kind][c.ID] = c
}

func (s *Store) PutUser(u domain.UserAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usersByUsername[u.Username] = u
}

func (s *Store) FetchProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetStock(_ context.Context, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return p.Stock, nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, newQuantity int) error {
	if newQuantity < 0 {
		return store.ErrInsufficientStock
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	p.Stock = newQuantity
	s.products[productID] = p
	return nil
}

func (s *Store) FetchCounterparties(_ context.Context, kind domain.CounterpartyKind) ([]domain.Counterparty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]domain.Counterparty, 0, len(s.counterparties[kind]))
	for _, c := range s.counterparties[kind] {
		list = append(list, c)
	}
	slices.SortFunc(list, func(a, b domain.Counterparty) int {
		return strings.Compare(a.Name, b.Name)
	})
	return list, nil
}

func (s *Store) GetCounterparty(_ context.Context, kind domain.CounterpartyKind, id string) (*domain.Counterparty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.counterparties[kind][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) AccrueLoyaltyPoints(_ context.Context, customerID string, points int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counterparties[domain.CounterpartyCustomer][customerID]
	if !ok {
		return store.ErrNotFound
	}
	c.LoyaltyPoints += points
	s.counterparties[domain.CounterpartyCustomer][customerID] = c
	return nil
}

func (s *Store) CreateTransactionHeader(_ context.Context, header domain.TransactionHeader) (*domain.TransactionHeader, error) {
	if header.ID == "" || header.DocumentNumber == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.headersByID[header.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	s.headersByID[header.ID] = header
	s.headerIDByNumber[header.DocumentNumber] = header.ID
	created := header
	return &created, nil
}

func (s *Store) CreateLineItem(_ context.Context, item domain.LineItem) (*domain.LineItem, error) {
	if item.ID == "" || item.Quantity < 1 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.headersByID[item.TransactionID]; !ok {
		return nil, store.ErrNotFound
	}
	s.itemsByHeader[item.TransactionID] = append(s.itemsByHeader[item.TransactionID], item)
	created := item
	return &created, nil
}

func (s *Store) CreateDebtRecord(_ context.Context, debt domain.DebtRecord) (*domain.DebtRecord, error) {
	if debt.ID == "" || debt.CounterpartyID == "" || !debt.Amount.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.debtsByID[debt.ID] = debt
	created := debt
	return &created, nil
}

func (s *Store) VoidTransactionHeader(_ context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, ok := s.headersByID[id]
	if !ok {
		return store.ErrNotFound
	}
	header.PaymentStatus = domain.PaymentStatusVoided
	header.VoidReason = reason
	s.headersByID[id] = header
	return nil
}

func (s *Store) CancelDebtRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	debt, ok := s.debtsByID[id]
	if !ok {
		return store.ErrNotFound
	}
	debt.Status = domain.DebtStatusCancelled
	s.debtsByID[id] = debt
	return nil
}

func (s *Store) FindTransactionByDocumentNumber(_ context.Context, documentNumber string) (*domain.SettlementResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.headerIDByNumber[documentNumber]
	if !ok {
		return nil, store.ErrNotFound
	}
	result := &domain.SettlementResult{
		Header: s.headersByID[id],
		Items:  slices.Clone(s.itemsByHeader[id]),
	}
	for _, debt := range s.debtsByID {
		if debt.TransactionID == id {
			d := debt
			result.Debt = &d
			break
		}
	}
	if cpID := result.Header.CounterpartyID; cpID != "" {
		if c, ok := s.counterparties[result.Header.CounterpartyKind][cpID]; ok {
			result.Counterparty = &c
		}
	}
	return result, nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) LastDocumentNumber(_ context.Context, series string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastNumbers[series], nil
}

func (s *Store) SaveLastDocumentNumber(_ context.Context, series string, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNumbers[series] = number
	return nil
}

func (s *Store) UpdateLastDocumentNumber(_ context.Context, series string, next func(last string) (string, error)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	number, err := next(s.lastNumbers[series])
	if err != nil {
		return "", err
	}
	s.lastNumbers[series] = number
	return number, nil
}

// Headers, Items and Debts expose the committed records for inspection.
func (s *Store) Headers() []domain.TransactionHeader {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]domain.TransactionHeader, 0, len(s.headersByID))
	for _, h := range s.headersByID {
		list = append(list, h)
	}
	slices.SortFunc(list, func(a, b domain.TransactionHeader) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return list
}

func (s *Store) Items() []domain.LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []domain.LineItem
	for _, items := range s.itemsByHeader {
		list = append(list, items...)
	}
	return list
}

func (s *Store) Debts() []domain.DebtRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]domain.DebtRecord, 0, len(s.debtsByID))
	for _, d := range s.debtsByID {
		list = append(list, d)
	}
	return list
}
