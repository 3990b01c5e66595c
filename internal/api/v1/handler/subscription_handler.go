package handler

import (
	"io"
	"net/http"

	"brandconfig/internal/api/v1/dto"
	"brandconfig/internal/apperr"
	"brandconfig/internal/service"
	"brandconfig/internal/tier"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxWebhookBytes = 65536

// SubscriptionHandler handles subscription and billing endpoints.
type SubscriptionHandler struct {
	stripeSvc *service.StripeService
	subSvc    service.SubscriptionService
	limits    service.LimitEnforcer
	logger    zerolog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler. stripeSvc may be
// nil when billing is not configured.
func NewSubscriptionHandler(stripeSvc *service.StripeService, subSvc service.SubscriptionService, limits service.LimitEnforcer, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{stripeSvc: stripeSvc, subSvc: subSvc, limits: limits, logger: logger}
}

// RegisterRoutes registers the authenticated subscription endpoints.
func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/subscription", h.Get)
	r.Get("/subscription/violations", h.Violations)
	r.Get("/subscription/portal", h.Portal)
}

// Get godoc
// @Summary Get the caller's subscription
// @Description Returns the plan, its limits and the features usable now. A first call creates a free plan.
// @Tags subscriptions
// @Produce json
// @Success 200 {object} dto.SubscriptionResponseDTO
// @Router /subscription [get]
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	sub, err := h.subSvc.Get(r.Context(), p.UserID())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, dto.SubscriptionResponseDTO{
		Tier:             sub.Tier,
		Status:           sub.Status,
		Limits:           tier.LimitsFor(sub.Tier),
		Features:         tier.Granted(sub.Tier, sub.Status),
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
	})
}

// Violations godoc
// @Summary Report usage over the plan's limits
// @Description Lists brands and configs that exceed the current plan, e.g. after a downgrade.
// @Tags subscriptions
// @Produce json
// @Success 200 {object} service.ViolationReport
// @Router /subscription/violations [get]
func (h *SubscriptionHandler) Violations(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	report, err := h.limits.CheckViolations(r.Context(), p.UserID())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, report)
}

// Portal godoc
// @Summary Create a Stripe Customer Portal session
// @Description Generates a Stripe Customer Portal session URL for the authenticated user.
// @Tags subscriptions
// @Produce json
// @Success 200 {object} dto.PortalResponseDTO
// @Failure 404 {object} map[string]string "no billing account"
// @Failure 503 {object} map[string]string "billing provider unavailable"
// @Router /subscription/portal [get]
func (h *SubscriptionHandler) Portal(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	url, err := h.subSvc.PortalURL(r.Context(), p.UserID())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, dto.PortalResponseDTO{URL: url})
}

// Webhook godoc
// @Summary Stripe webhook
// @Description Receives Stripe subscription events. Authenticated by the Stripe-Signature header.
// @Tags billing
// @Accept json
// @Success 200
// @Failure 400 {object} map[string]string "bad signature or payload"
// @Router /billing/webhook [post]
func (h *SubscriptionHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.stripeSvc == nil {
		writeError(w, h.logger, apperr.Upstream(nil, "billing is not configured"))
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, h.logger, apperr.Validation("error reading request body"))
		return
	}
	if err := h.stripeSvc.HandleEvent(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
