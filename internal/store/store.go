package store

import (
	"context"
	"errors"

	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
	"github.com/osama-dev255/kilango1v1-sub000/internal/numbering"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// Repository is the data-access collaborator used by settlement. No call is transactional
// with any other call.
type Repository interface {
	FetchProducts(ctx context.Context) ([]domain.Product, error)
	GetStock(ctx context.Context, productID string) (int, error)
	AdjustStock(ctx context.Context, productID string, newQuantity int) error

	FetchCounterparties(ctx context.Context, kind domain.CounterpartyKind) ([]domain.Counterparty, error)
	GetCounterparty(ctx context.Context, kind domain.CounterpartyKind, id string) (*domain.Counterparty, error)
	AccrueLoyaltyPoints(ctx context.Context, customerID string, points int64) error

	CreateTransactionHeader(ctx context.Context, header domain.TransactionHeader) (*domain.TransactionHeader, error)
	CreateLineItem(ctx context.Context, item domain.LineItem) (*domain.LineItem, error)
	CreateDebtRecord(ctx context.Context, debt domain.DebtRecord) (*domain.DebtRecord, error)
	VoidTransactionHeader(ctx context.Context, id string, reason string) error
	CancelDebtRecord(ctx context.Context, id string) error
	FindTransactionByDocumentNumber(ctx context.Context, documentNumber string) (*domain.SettlementResult, error)

	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)

	numbering.CounterStore
}
