package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
	"github.com/osama-dev255/kilango1v1-sub000/internal/numbering"
	"github.com/osama-dev255/kilango1v1-sub000/internal/receipt"
	"github.com/osama-dev255/kilango1v1-sub000/internal/settlement"
	"github.com/osama-dev255/kilango1v1-sub000/internal/store"
)

var ErrUnknownFlow = errors.New("unknown flow")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Service is what terminals talk to: master data reads, open checkout sessions and document
// numbers that are not tied to a settlement.
type Service struct {
	repo          store.Repository
	engine        *settlement.Engine
	flows         map[string]settlement.Flow
	deliveryNotes *numbering.DayCounter
	logger        *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*settlement.Session
}

func New(repo store.Repository, engine *settlement.Engine, flows []settlement.Flow, deliveryNotes *numbering.DayCounter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]settlement.Flow, len(flows))
	for _, f := range flows {
		byName[f.Name] = f
	}

	return &Service{
		repo:          repo,
		engine:        engine,
		flows:         byName,
		deliveryNotes: deliveryNotes,
		logger:        logger,
		sessions:      make(map[string]*settlement.Session),
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.FetchProducts(ctx)
}

func (s *Service) ListCounterparties(ctx context.Context, kind domain.CounterpartyKind) ([]domain.Counterparty, error) {
	return s.repo.FetchCounterparties(ctx, kind)
}

func (s *Service) OpenSession(ctx context.Context, flowName string) (*settlement.Session, error) {
	flow, ok := s.flows[flowName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlow, flowName)
	}

	session, err := s.engine.NewSession(ctx, flow)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	s.logAudit(ctx, "session_open", session.ID(), zap.String("flow", flow.Name))
	return session, nil
}

func (s *Service) Session(id string) (*settlement.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return session, nil
}

// CloseSession abandons the cart and forgets the session.
func (s *Service) CloseSession(ctx context.Context, id string) error {
	session, err := s.Session(id)
	if err != nil {
		return err
	}
	if err := session.Abandon(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	s.logAudit(ctx, "session_close", id)
	return nil
}

func (s *Service) Settle(ctx context.Context, id string, payment settlement.Payment) (*domain.SettlementResult, error) {
	session, err := s.Session(id)
	if err != nil {
		return nil, err
	}

	result, err := session.Settle(ctx, payment)
	if err != nil {
		s.logAudit(ctx, "settle_rejected", id,
			zap.String("payment_method", string(payment.Method)),
			zap.Error(err))
		return nil, err
	}

	s.logAudit(ctx, "settle", id,
		zap.String("document_number", result.Header.DocumentNumber),
		zap.String("total", result.Header.Total.String()),
		zap.String("payment_method", string(payment.Method)))
	return result, nil
}

// FindReceipt rebuilds the receipt of a committed transaction for reprinting.
func (s *Service) FindReceipt(ctx context.Context, documentNumber string) (domain.Receipt, error) {
	result, err := s.repo.FindTransactionByDocumentNumber(ctx, documentNumber)
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt.Build(*result), nil
}

func (s *Service) NextDeliveryNoteNumber(ctx context.Context) (string, error) {
	number, err := s.deliveryNotes.Next(ctx)
	if err != nil {
		return "", err
	}
	s.logAudit(ctx, "delivery_note_number", number)
	return number, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityID string, fields ...zap.Field) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	s.logger.Info("audit",
		append([]zap.Field{
			zap.String("action", action),
			zap.String("entity_id", entityID),
			zap.String("actor", actor.Username),
			zap.String("actor_role", actor.Role),
		}, fields...)...)
}
