package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"brandconfig/internal/metrics"
	"brandconfig/internal/model"
	"brandconfig/internal/repository"
	"brandconfig/internal/util"

	"github.com/rs/zerolog"
)

// Injected key type to avoid context collisions
type contextKey string

const PrincipalContextKey = contextKey("principal")

// APIKeyHeader carries SDK credentials.
const APIKeyHeader = "X-API-Key"

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// PrincipalFromContext returns the authenticated caller, or nil.
func PrincipalFromContext(ctx context.Context) *model.Principal {
	p, _ := ctx.Value(PrincipalContextKey).(*model.Principal)
	return p
}

// WriteError writes the JSON error envelope shared with the handlers.
func WriteError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": kind, "message": message})
}

func unauthorized(w http.ResponseWriter, reason, message string) {
	metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
	WriteError(w, http.StatusUnauthorized, "unauthenticated", message)
}

// AuthMiddleware authenticates operators by bearer JWT and rejects revoked
// token ids.
func AuthMiddleware(jwtSecret string, tokens repository.TokenRepository, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "missing", "Authorization header missing")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, "malformed", "Invalid authorization header")
				return
			}
			claims, err := util.ValidateJWT(parts[1], jwtSecret)
			if err != nil {
				logger.Debug().Err(err).Msg("Invalid token")
				unauthorized(w, "invalid_token", "Invalid token")
				return
			}
			if claims.Company == "" {
				unauthorized(w, "no_company", "Token has no company claim")
				return
			}
			if claims.ID != "" {
				revoked, err := tokens.IsRevoked(r.Context(), claims.ID)
				if err != nil {
					logger.Error().Err(err).Msg("Failed to check token revocation")
					WriteError(w, http.StatusServiceUnavailable, "upstream_unavailable", "could not verify token")
					return
				}
				if revoked {
					unauthorized(w, "revoked", "Token has been revoked")
					return
				}
			}
			p := &model.Principal{
				Kind:    model.PrincipalUser,
				Auth0ID: claims.Subject,
				Email:   claims.Email,
				Name:    claims.Name,
				Company: claims.Company,
				Scopes:  claims.Scopes(),
				TokenID: claims.ID,
			}
			if claims.ExpiresAt != nil {
				p.ExpiresAt = claims.ExpiresAt.Time
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// APIKeyMiddleware authenticates SDK callers by X-API-Key.
func APIKeyMiddleware(keys repository.APIKeyRepository, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if raw == "" {
				unauthorized(w, "missing", "API key missing")
				return
			}
			key, err := keys.FindByHash(r.Context(), repository.HashAPIKey(raw))
			if err != nil {
				logger.Debug().Err(err).Msg("API key lookup failed")
				unauthorized(w, "invalid_key", "Invalid API key")
				return
			}
			if !key.Usable(time.Now()) {
				unauthorized(w, "expired_key", "API key expired or revoked")
				return
			}
			p := &model.Principal{
				Kind:     model.PrincipalMachine,
				ClientID: key.ClientID,
				Company:  key.Company,
				Scopes:   key.Scopes,
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
