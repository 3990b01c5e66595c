package handler

import (
	"net/http"
	"time"

	"brandconfig/internal/apperr"
	"brandconfig/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// AuthHandler handles token lifecycle endpoints.
type AuthHandler struct {
	tokens repository.TokenRepository
	logger zerolog.Logger
}

func NewAuthHandler(tokens repository.TokenRepository, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{tokens: tokens, logger: logger}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/revoke", h.revoke)
}

// revoke godoc
// @Summary Revoke the caller's token
// @Description Adds the bearer token's id to the revocation list until it expires.
// @Tags auth
// @Success 204
// @Failure 400 {object} map[string]string "token has no jti"
// @Router /auth/revoke [post]
func (h *AuthHandler) revoke(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if p.TokenID == "" {
		writeError(w, h.logger, apperr.Validation("token has no id and cannot be revoked"))
		return
	}
	expires := p.ExpiresAt
	if expires.IsZero() {
		expires = time.Now().Add(24 * time.Hour)
	}
	if err := h.tokens.Revoke(r.Context(), p.TokenID, expires); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info().Str("user_id", p.UserID()).Msg("Token revoked")
	w.WriteHeader(http.StatusNoContent)
}
