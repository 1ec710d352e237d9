package auth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the resolved caller behind a bearer token.
type Identity struct {
	UserID  string
	Service bool
}

// Guard validates bearer tokens. The shared service secret is checked
// first in constant time; user tokens are delegated to the external
// identity provider. With neither configured, verification fails closed.
type Guard struct {
	sharedSecret string
	idpURL       string
	client       *http.Client
}

func NewGuard(sharedSecret, idpURL string) *Guard {
	return &Guard{
		sharedSecret: strings.TrimSpace(sharedSecret),
		idpURL:       strings.TrimSpace(idpURL),
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (g *Guard) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	if g.sharedSecret != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(g.sharedSecret)) == 1 {
		return Identity{UserID: "service", Service: true}, nil
	}

	if g.idpURL != "" {
		return g.verifyRemote(ctx, token)
	}
	return Identity{}, ErrInvalidToken
}

func (g *Guard) verifyRemote(ctx context.Context, token string) (Identity, error) {
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return Identity{}, fmt.Errorf("marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.idpURL, bytes.NewReader(payload))
	if err != nil {
		return Identity{}, fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("identity provider: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return Identity{}, ErrInvalidToken
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Identity{}, fmt.Errorf("identity provider status %d: %s", res.StatusCode, string(body))
	}

	var out struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Identity{}, fmt.Errorf("decode verify response: %w", err)
	}
	if strings.TrimSpace(out.UserID) == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: out.UserID}, nil
}
