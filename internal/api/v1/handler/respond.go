package handler

import (
	"encoding/json"
	"net/http"

	"brandconfig/internal/apperr"
	"brandconfig/internal/middleware"
	"brandconfig/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps a classified error to its status. Unclassified errors are
// logged and reported as internal without their text.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		logger.Error().Err(err).Msg("Request failed")
	}
	middleware.WriteError(w, apperr.HTTPStatus(kind), string(kind), apperr.Message(err))
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, w http.ResponseWriter, validate *validator.Validate, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid JSON payload: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.Validation("validation failed: %v", err)
	}
	return nil
}

func principal(r *http.Request) (*model.Principal, error) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		return nil, apperr.PermissionDenied("no authenticated principal")
	}
	return p, nil
}
