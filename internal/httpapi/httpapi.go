package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
	"github.com/osama-dev255/kilango1v1-sub000/internal/service"
	"github.com/osama-dev255/kilango1v1-sub000/internal/settlement"
	"github.com/osama-dev255/kilango1v1-sub000/internal/stockguard"
	"github.com/osama-dev255/kilango1v1-sub000/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	logger        *zap.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		logger:        logger,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.withSecurityHeaders)
	r.Use(a.logRequests)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth("cashier", "admin"))

			r.Get("/products", a.handleProducts)
			r.Get("/customers", a.handleCounterparties(domain.CounterpartyCustomer))
			r.Get("/suppliers", a.handleCounterparties(domain.CounterpartySupplier))

			r.Post("/sessions", a.handleOpenSession)
			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Get("/", a.handleGetSession)
				r.Delete("/", a.handleCloseSession)
				r.Post("/lines", a.handleAddLine)
				r.Patch("/lines/{productID}", a.handleSetQuantity)
				r.Delete("/lines/{productID}", a.handleRemoveLine)
				r.Put("/discount", a.handleSetDiscount)
				r.Put("/counterparty", a.handleSelectCounterparty)
				r.Delete("/counterparty", a.handleClearCounterparty)
				r.Post("/checkout", a.handleCheckout)
				r.Post("/return-to-cart", a.handleReturnToCart)
				r.Post("/settle", a.handleSettle)
				r.Get("/receipt", a.handleSessionReceipt)
				r.Post("/acknowledge", a.handleAcknowledge)
			})

			r.Get("/receipts/{documentNumber}", a.handleReceiptLookup)
			r.Post("/delivery-notes/number", a.handleDeliveryNoteNumber)
		})
	})

	return r
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.ParseToken(token)
			if err != nil {
				a.writeError(w, http.StatusUnauthorized, err)
				return
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				a.writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(startedAt)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": products})
}

func (a *API) handleCounterparties(kind domain.CounterpartyKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := a.service.ListCounterparties(r.Context(), kind)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": list})
	}
}

type openSessionRequest struct {
	Flow string `json:"flow"`
}

func (a *API) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Flow == "" {
		req.Flow = settlement.FlowSales
	}

	session, err := a.service.OpenSession(r.Context(), req.Flow)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session.View())
}

// withSession resolves {sessionID} and hands the session to fn.
func (a *API) withSession(w http.ResponseWriter, r *http.Request, fn func(*settlement.Session)) {
	session, err := a.service.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	fn(session)
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	a.withSession(w, r, func(s *settlement.Session) {
		writeJSON(w, http.StatusOK, s.View())
	})
}

func (a *API) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := a.service.CloseSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addLineRequest struct {
	ProductID string `json:"product_id"`
}

func (a *API) handleAddLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.withSession(w, r, func(s *settlement.Session) {
		if _, err := s.AddItem(req.ProductID); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	})
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type setQuantityResponse struct {
	Adjustment stockguard.Adjustment `json:"adjustment"`
	Session    settlement.View       `json:"session"`
}

func (a *API) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	var req setQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.withSession(w, r, func(s *settlement.Session) {
		adj, err := s.SetQuantity(chi.URLParam(r, "productID"), req.Quantity)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, setQuantityResponse{Adjustment: adj, Session: s.View()})
	})
}

func (a *API) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	a.withSession(w, r, func(s *settlement.Session) {
		if err := s.RemoveLine(chi.URLParam(r, "productID")); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	})
}

func (a *API) handleSetDiscount(w http.ResponseWriter, r *http.Request) {
	var req domain.DiscountSpec
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.withSession(w, r, func(s *settlement.Session) {
		if err := s.SetDiscount(req); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	})
}

type selectCounterpartyRequest struct {
	ID string `json:"id"`
}

func (a *API) handleSelectCounterparty(w http.ResponseWriter, r *http.Request) {
	var req selectCounterpartyRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.withSession(w, r, func(s *settlement.Session) {
		if err := s.SelectCounterparty(r.Context(), req.ID); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	})
}

func (a *API) handleClearCounterparty(w http.ResponseWriter, r *http.Request) {
	a.withSession(w, r, func(s *settlement.Session) {
		if err := s.ClearCounterparty(); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	a.withSession(w, r, func(s *settlement.Session) {
		if err := s.Checkout(); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	})
}

func (a *API) handleReturnToCart(w http.ResponseWriter, r *http.Request) {
	a.withSession(w, r, func(s *settlement.Session) {
		if err := s.ReturnToCart(); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	})
}

func (a *API) handleSettle(w http.ResponseWriter, r *http.Request) {
	var payment settlement.Payment
	if err := decodeJSON(r, &payment); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.Settle(r.Context(), chi.URLParam(r, "sessionID"), payment)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleSessionReceipt(w http.ResponseWriter, r *http.Request) {
	a.withSession(w, r, func(s *settlement.Session) {
		rcpt, err := s.Receipt()
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rcpt)
	})
}

func (a *API) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	a.withSession(w, r, func(s *settlement.Session) {
		if err := s.Acknowledge(); err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	})
}

func (a *API) handleReceiptLookup(w http.ResponseWriter, r *http.Request) {
	rcpt, err := a.service.FindReceipt(r.Context(), chi.URLParam(r, "documentNumber"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
}

func (a *API) handleDeliveryNoteNumber(w http.ResponseWriter, r *http.Request) {
	number, err := a.service.NextDeliveryNoteNumber(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_number": number})
}

func statusFor(err error) int {
	var verr *domain.ValidationError
	var perr *domain.PersistenceError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, settlement.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnknownFlow):
		return http.StatusBadRequest
	case errors.As(err, &perr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	a.writeError(w, statusFor(err), err)
}

// writeError hides the message of unexpected 5xx errors. Settlement write failures keep their
// cause so the terminal can show what to retry.
func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
		if status != http.StatusBadGateway {
			msg = "internal server error"
		}
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
