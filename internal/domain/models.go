package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentMobile PaymentMethod = "mobile"
	PaymentDebt   PaymentMethod = "debt"
	PaymentCredit PaymentMethod = "credit"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobile, PaymentDebt, PaymentCredit:
		return true
	default:
		return false
	}
}

// OnAccount reports whether the whole amount is booked against the counterparty.
func (m PaymentMethod) OnAccount() bool {
	return m == PaymentDebt || m == PaymentCredit
}

type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountAmount     DiscountKind = "amount"
)

type DiscountSpec struct {
	Kind  DiscountKind    `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Direction is the stock direction of a flow: sales move goods out, purchases move them in.
type Direction string

const (
	DirectionOutflow Direction = "outflow"
	DirectionInflow  Direction = "inflow"
)

type CounterpartyKind string

const (
	CounterpartyCustomer CounterpartyKind = "customer"
	CounterpartySupplier CounterpartyKind = "supplier"
)

type Product struct {
	ID       string          `json:"id"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Active   bool            `json:"active"`
}

type Counterparty struct {
	ID                 string           `json:"id"`
	Kind               CounterpartyKind `json:"kind"`
	Name               string           `json:"name"`
	Phone              string           `json:"phone,omitempty"`
	CreditLimit        *decimal.Decimal `json:"credit_limit,omitempty"`
	OutstandingDebtRef string           `json:"outstanding_debt_ref,omitempty"`
	LoyaltyPoints      int64            `json:"loyalty_points"`
}

type CreditProfile struct {
	CreditLimit        *decimal.Decimal
	OutstandingDebtRef string
}

func (c Counterparty) CreditProfile() CreditProfile {
	return CreditProfile{CreditLimit: c.CreditLimit, OutstandingDebtRef: c.OutstandingDebtRef}
}

type CartLine struct {
	ProductRef string          `json:"product_ref"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
}

func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
	DisplayTax     decimal.Decimal `json:"display_tax"`
}

type TransactionHeader struct {
	ID               string           `json:"id"`
	DocumentNumber   string           `json:"document_number"`
	Direction        Direction        `json:"direction"`
	CounterpartyKind CounterpartyKind `json:"counterparty_kind"`
	CounterpartyID   string           `json:"counterparty_id,omitempty"`
	Subtotal         decimal.Decimal  `json:"subtotal"`
	DiscountKind     DiscountKind     `json:"discount_kind"`
	DiscountValue    decimal.Decimal  `json:"discount_value"`
	DiscountAmount   decimal.Decimal  `json:"discount_amount"`
	DisplayTax       decimal.Decimal  `json:"display_tax"`
	Total            decimal.Decimal  `json:"total"`
	PaymentMethod    PaymentMethod    `json:"payment_method"`
	PaymentStatus    string           `json:"payment_status"`
	AmountTendered   decimal.Decimal  `json:"amount_tendered"`
	Change           decimal.Decimal  `json:"change"`
	TransactionDate  time.Time        `json:"transaction_date"`
	CreatedAt        time.Time        `json:"created_at"`
	VoidReason       string           `json:"void_reason,omitempty"`
}

type LineItem struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	ProductID     string          `json:"product_id"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

type DebtRecord struct {
	ID               string           `json:"id"`
	TransactionID    string           `json:"transaction_id"`
	DocumentNumber   string           `json:"document_number"`
	CounterpartyKind CounterpartyKind `json:"counterparty_kind"`
	CounterpartyID   string           `json:"counterparty_id"`
	Amount           decimal.Decimal  `json:"amount"`
	Status           string           `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
}

type StockOutcome struct {
	ProductID        string `json:"product_id"`
	Delta            int    `json:"delta"`
	PreviousQuantity int    `json:"previous_quantity"`
	NewQuantity      int    `json:"new_quantity"`
	Applied          bool   `json:"applied"`
	Error            string `json:"error,omitempty"`
}

type SettlementResult struct {
	Header        TransactionHeader `json:"header"`
	Items         []LineItem        `json:"items"`
	Debt          *DebtRecord       `json:"debt,omitempty"`
	StockOutcomes []StockOutcome    `json:"stock_outcomes"`
	Counterparty  *Counterparty     `json:"counterparty,omitempty"`
	LoyaltyPoints int64             `json:"loyalty_points"`
}

// Receipt is the payload handed to printing and export code. Field names are part of that
// contract and must not change.
type Receipt struct {
	DocumentNumber string          `json:"documentNumber"`
	Date           string          `json:"date"`
	Counterparty   *string         `json:"counterparty,omitempty"`
	Lines          []ReceiptLine   `json:"lines"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DisplayTax     decimal.Decimal `json:"displayTax"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  PaymentMethod   `json:"paymentMethod"`
	AmountTendered decimal.Decimal `json:"amountTendered"`
	Change         decimal.Decimal `json:"change"`
}

type ReceiptLine struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusVoided = "voided"
)

const (
	DebtStatusOutstanding = "outstanding"
	DebtStatusCancelled   = "cancelled"
)
