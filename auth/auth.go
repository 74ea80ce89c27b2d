// Package auth verifies bearer tokens against the auth service.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/varannik/dental-saas/config"
)

type contextKey struct{}

// User is the identity attached to authenticated requests.
type User struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role,omitempty"`
}

// FromContext returns the authenticated user, if any.
func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(contextKey{}).(*User)
	return u, ok
}

// Verifier checks tokens with the external auth service.
type Verifier struct {
	httpClient *http.Client
	authURL    string
	logger     *slog.Logger
}

func NewVerifier(cfg *config.Config, logger *slog.Logger) *Verifier {
	return &Verifier{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		authURL:    cfg.AuthServiceURL,
		logger:     logger.With("component", "auth"),
	}
}

// Middleware rejects requests without a valid bearer token. A missing
// or rejected credential is 401; an unreachable auth service is 503.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, `{"error":"missing credentials"}`, http.StatusUnauthorized)
			return
		}

		user, err := v.verify(r.Context(), token)
		if err != nil {
			v.logger.Error("auth service unreachable", "error", err)
			http.Error(w, `{"error":"authentication service unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		if user == nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	})
}

// verify returns (nil, nil) for a rejected token and an error only when
// the auth service could not be reached.
func (v *Verifier) verify(ctx context.Context, token string) (*User, error) {
	payload, _ := json.Marshal(map[string]string{"token": token})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.authURL+"/verify-token", bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	user := &User{}
	if err := json.NewDecoder(resp.Body).Decode(user); err != nil {
		return nil, err
	}
	return user, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
