package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
	"github.com/osama-dev255/kilango1v1-sub000/internal/store"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates missing tables. Existing tables are left untouched.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, category, price, stock, active
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetStock(ctx context.Context, productID string) (int, error) {
	var qty int
	err := s.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return qty, nil
}

// AdjustStock writes an absolute quantity. The caller computed it from an earlier read, so a
// concurrent writer in between is overwritten.
func (s *Store) AdjustStock(ctx context.Context, productID string, newQuantity int) error {
	if newQuantity < 0 {
		return store.ErrInsufficientStock
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock = $2, updated_at = now()
		WHERE id = $1
	`, productID, newQuantity)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FetchCounterparties(ctx context.Context, kind domain.CounterpartyKind) ([]domain.Counterparty, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, name, phone, credit_limit, outstanding_debt_ref, loyalty_points
		FROM counterparties
		WHERE kind = $1
		ORDER BY name
	`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]domain.Counterparty, 0, 32)
	for rows.Next() {
		c, err := scanCounterparty(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) GetCounterparty(ctx context.Context, kind domain.CounterpartyKind, id string) (*domain.Counterparty, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, name, phone, credit_limit, outstanding_debt_ref, loyalty_points
		FROM counterparties
		WHERE kind = $1 AND id = $2
	`, string(kind), id)
	c, err := scanCounterparty(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCounterparty(row rowScanner) (domain.Counterparty, error) {
	var (
		c       domain.Counterparty
		kind    string
		phone   sql.NullString
		limit   decimal.NullDecimal
		debtRef sql.NullString
	)
	if err := row.Scan(&c.ID, &kind, &c.Name, &phone, &limit, &debtRef, &c.LoyaltyPoints); err != nil {
		return domain.Counterparty{}, err
	}
	c.Kind = domain.CounterpartyKind(kind)
	c.Phone = phone.String
	c.OutstandingDebtRef = debtRef.String
	if limit.Valid {
		l := limit.Decimal
		c.CreditLimit = &l
	}
	return c, nil
}

func (s *Store) AccrueLoyaltyPoints(ctx context.Context, customerID string, points int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE counterparties
		SET loyalty_points = loyalty_points + $2
		WHERE kind = 'customer' AND id = $1
	`, customerID, points)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateTransactionHeader(ctx context.Context, header domain.TransactionHeader) (*domain.TransactionHeader, error) {
	if header.ID == "" || header.DocumentNumber == "" {
		return nil, store.ErrInvalidTransaction
	}
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_headers (
			id, document_number, direction, counterparty_kind, counterparty_id,
			subtotal, discount_kind, discount_value, discount_amount, display_tax, total,
			payment_method, payment_status, amount_tendered, change_amount,
			transaction_date, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		header.ID, header.DocumentNumber, string(header.Direction), string(header.CounterpartyKind), nullIfEmpty(header.CounterpartyID),
		header.Subtotal, string(header.DiscountKind), header.DiscountValue, header.DiscountAmount, header.DisplayTax, header.Total,
		string(header.PaymentMethod), header.PaymentStatus, header.AmountTendered, header.Change,
		header.TransactionDate, header.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := header
	return &created, nil
}

func (s *Store) CreateLineItem(ctx context.Context, item domain.LineItem) (*domain.LineItem, error) {
	if item.ID == "" || item.TransactionID == "" || item.Quantity < 1 {
		return nil, store.ErrInvalidTransaction
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_lines (id, transaction_id, product_id, name, quantity, unit_price, line_total)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, item.ID, item.TransactionID, item.ProductID, item.Name, item.Quantity, item.UnitPrice, item.LineTotal)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func (s *Store) CreateDebtRecord(ctx context.Context, debt domain.DebtRecord) (*domain.DebtRecord, error) {
	if debt.ID == "" || debt.CounterpartyID == "" || !debt.Amount.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if debt.CreatedAt.IsZero() {
		debt.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO debts (id, transaction_id, document_number, counterparty_kind, counterparty_id, amount, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, debt.ID, debt.TransactionID, debt.DocumentNumber, string(debt.CounterpartyKind), debt.CounterpartyID, debt.Amount, debt.Status, debt.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := debt
	return &created, nil
}

func (s *Store) VoidTransactionHeader(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transaction_headers
		SET payment_status = $2, void_reason = $3
		WHERE id = $1
	`, id, domain.PaymentStatusVoided, reason)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CancelDebtRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE debts SET status = $2 WHERE id = $1`, id, domain.DebtStatusCancelled)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FindTransactionByDocumentNumber(ctx context.Context, documentNumber string) (*domain.SettlementResult, error) {
	var (
		h             domain.TransactionHeader
		direction     string
		cpKind        string
		cpID          sql.NullString
		discountKind  string
		paymentMethod string
		voidReason    sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_number, direction, counterparty_kind, counterparty_id,
			subtotal, discount_kind, discount_value, discount_amount, display_tax, total,
			payment_method, payment_status, amount_tendered, change_amount,
			transaction_date, created_at, void_reason
		FROM transaction_headers
		WHERE document_number = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, documentNumber).Scan(
		&h.ID, &h.DocumentNumber, &direction, &cpKind, &cpID,
		&h.Subtotal, &discountKind, &h.DiscountValue, &h.DiscountAmount, &h.DisplayTax, &h.Total,
		&paymentMethod, &h.PaymentStatus, &h.AmountTendered, &h.Change,
		&h.TransactionDate, &h.CreatedAt, &voidReason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	h.Direction = domain.Direction(direction)
	h.CounterpartyKind = domain.CounterpartyKind(cpKind)
	h.CounterpartyID = cpID.String
	h.DiscountKind = domain.DiscountKind(discountKind)
	h.PaymentMethod = domain.PaymentMethod(paymentMethod)
	h.VoidReason = voidReason.String
	h.TransactionDate = h.TransactionDate.UTC()
	h.CreatedAt = h.CreatedAt.UTC()

	result := &domain.SettlementResult{Header: h}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, product_id, name, quantity, unit_price, line_total
		FROM transaction_lines
		WHERE transaction_id = $1
		ORDER BY id
	`, h.ID)
	if err != nil {
		return nil, err
	}
	for itemRows.Next() {
		var item domain.LineItem
		if err := itemRows.Scan(&item.ID, &item.TransactionID, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		result.Items = append(result.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	var (
		debt     domain.DebtRecord
		debtKind string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, document_number, counterparty_kind, counterparty_id, amount, status, created_at
		FROM debts
		WHERE transaction_id = $1
		LIMIT 1
	`, h.ID).Scan(&debt.ID, &debt.TransactionID, &debt.DocumentNumber, &debtKind, &debt.CounterpartyID, &debt.Amount, &debt.Status, &debt.CreatedAt)
	switch {
	case err == nil:
		debt.CounterpartyKind = domain.CounterpartyKind(debtKind)
		debt.CreatedAt = debt.CreatedAt.UTC()
		result.Debt = &debt
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	if h.CounterpartyID != "" {
		cp, err := s.GetCounterparty(ctx, h.CounterpartyKind, h.CounterpartyID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		result.Counterparty = cp
	}

	return result, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) LastDocumentNumber(ctx context.Context, series string) (string, error) {
	var number string
	err := s.db.QueryRowContext(ctx, `SELECT last_number FROM document_counters WHERE series = $1`, series).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return number, err
}

func (s *Store) SaveLastDocumentNumber(ctx context.Context, series string, number string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_counters (series, last_number, updated_at)
		VALUES ($1,$2,now())
		ON CONFLICT (series)
		DO UPDATE SET last_number = EXCLUDED.last_number, updated_at = now()
	`, series, number)
	return err
}

// UpdateLastDocumentNumber locks the counter row for the duration of next.
func (s *Store) UpdateLastDocumentNumber(ctx context.Context, series string, next func(last string) (string, error)) (string, error) {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = pgTx.Rollback() }()

	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO document_counters (series, last_number, updated_at)
		VALUES ($1, '', now())
		ON CONFLICT (series) DO NOTHING
	`, series); err != nil {
		return "", err
	}

	var last string
	if err := pgTx.QueryRowContext(ctx, `
		SELECT last_number FROM document_counters WHERE series = $1 FOR UPDATE
	`, series).Scan(&last); err != nil {
		return "", err
	}

	number, err := next(last)
	if err != nil {
		return "", err
	}
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE document_counters SET last_number = $2, updated_at = now() WHERE series = $1
	`, series, number); err != nil {
		return "", err
	}
	if err := pgTx.Commit(); err != nil {
		return "", err
	}
	return number, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
