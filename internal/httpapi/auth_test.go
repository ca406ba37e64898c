package httpapi

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/osama-dev255/kilango1v1-sub000/internal/domain"
	"github.com/osama-dev255/kilango1v1-sub000/internal/store"
)

type userStoreStub struct {
	users map[string]domain.UserAccount
}

func (s *userStoreStub) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	user, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func newUserStoreStub(t *testing.T, active bool) *userStoreStub {
	t.Helper()
	hash, err := hashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return &userStoreStub{users: map[string]domain.UserAccount{
		"cashier": {Username: "cashier", Password: hash, Role: "cashier", Active: active, CreatedAt: time.Now().UTC()},
	}}
}

func TestLoginIssuesTokenThatParsesBack(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, newUserStoreStub(t, true))

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "  Cashier ", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "cashier" || resp.AccessToken == "" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "cashier" || actor.Role != "cashier" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsWrongPasswordAndUnknownUserAlike(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, newUserStoreStub(t, true))

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "cashier", Password: "nope"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	_, err = auth.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "s3cret-pass"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, newUserStoreStub(t, false))

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "cashier", Password: "s3cret-pass"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	users := newUserStoreStub(t, true)
	issuer := NewAuthManager("issuer-secret-key", time.Hour, users)
	verifier := NewAuthManager("another-secret-key", time.Hour, users)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "cashier", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpiredToken(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, newUserStoreStub(t, true))

	token, err := auth.sign("cashier", "cashier", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestAttemptLimiterIsPerClient(t *testing.T) {
	limiter := newAttemptLimiter(2, time.Minute)

	if !limiter.Allow("10.0.0.1") || !limiter.Allow("10.0.0.1") {
		t.Fatalf("expected first two attempts to pass")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("expected third attempt to be limited")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatalf("expected a different client to have its own budget")
	}
}

func TestClientKeyStripsPort(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.20:53211"
	if got := clientKey(req); got != "192.168.1.20" {
		t.Fatalf("expected host only, got %q", got)
	}

	req.RemoteAddr = "[::1]:8080"
	if got := clientKey(req); got != "::1" {
		t.Fatalf("expected ::1, got %q", got)
	}
}
