// Package auth resolves the caller of a gateway request from its bearer
// token and makes the identity available to handlers.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angeloszaimis/library-gateway/internal/model"
)

const DefaultUsernameClaim = "preferred_username"

var (
	ErrMissingToken    = errors.New("missing bearer token")
	ErrInvalidToken    = errors.New("invalid token")
	ErrMissingUsername = errors.New("token carries no username")
)

type contextKey struct{}

// Middleware validates HS256 tokens signed with a shared secret.
type Middleware struct {
	secret        []byte
	usernameClaim string
	logger        *slog.Logger
}

func NewMiddleware(secret, usernameClaim string, logger *slog.Logger) *Middleware {
	if usernameClaim == "" {
		usernameClaim = DefaultUsernameClaim
	}

	return &Middleware{
		secret:        []byte(secret),
		usernameClaim: usernameClaim,
		logger:        logger,
	}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.Authenticate(r)
		if err != nil {
			m.logger.Warn("Authentication failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Any("err", err))
			writeUnauthorized(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Authenticate extracts and validates the bearer token of r.
func (m *Middleware) Authenticate(r *http.Request) (model.Identity, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return model.Identity{}, ErrMissingToken
	}
	token = strings.TrimSpace(token)

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return model.Identity{}, errors.Join(ErrInvalidToken, err)
	}

	username, _ := claims[m.usernameClaim].(string)
	if username == "" {
		username, _ = claims.GetSubject()
	}
	if username == "" {
		return model.Identity{}, ErrMissingUsername
	}

	return model.Identity{Username: username, Token: token}, nil
}

func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(model.Identity)
	return id, ok
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	message := "invalid token"
	if errors.Is(err, ErrMissingToken) {
		message = "missing bearer token"
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
