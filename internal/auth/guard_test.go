package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVerifySharedSecret(t *testing.T) {
	g := NewGuard("service-secret", "")

	id, err := g.Verify(context.Background(), "service-secret")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !id.Service {
		t.Fatal("identity not marked as service")
	}
	if id.UserID != "service" {
		t.Fatalf("UserID = %q, want %q", id.UserID, "service")
	}
}

func TestVerifyFailsClosedWithoutBackends(t *testing.T) {
	g := NewGuard("", "")
	if _, err := g.Verify(context.Background(), "anything"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	g := NewGuard("secret", "")
	if _, err := g.Verify(context.Background(), "  "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyDelegatesToIdentityProvider(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Token != "user-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"user_id": "rep-42"})
	}))
	defer idp.Close()

	g := NewGuard("service-secret", idp.URL)

	id, err := g.Verify(context.Background(), "user-token")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.UserID != "rep-42" || id.Service {
		t.Fatalf("identity = %+v, want user rep-42", id)
	}

	if _, err := g.Verify(context.Background(), "wrong-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify(wrong) error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyIdentityProviderOutageIsNotInvalidToken(t *testing.T) {
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer idp.Close()

	g := NewGuard("", idp.URL)
	_, err := g.Verify(context.Background(), "user-token")
	if err == nil {
		t.Fatal("Verify() succeeded against failing provider")
	}
	if errors.Is(err, ErrInvalidToken) {
		t.Fatal("provider outage reported as invalid token")
	}
}
