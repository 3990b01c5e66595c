package handler

import (
	"net/http"

	"brandconfig/internal/api/v1/dto"
	"brandconfig/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// BrandHandler handles brand endpoints
type BrandHandler struct {
	gateway  service.ConfigGateway
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewBrandHandler creates a new BrandHandler
func NewBrandHandler(gateway service.ConfigGateway, validate *validator.Validate, logger zerolog.Logger) *BrandHandler {
	return &BrandHandler{gateway: gateway, validate: validate, logger: logger}
}

// RegisterRoutes mounts brand routes
func (h *BrandHandler) RegisterRoutes(r chi.Router) {
	r.Get("/brands", h.listBrands)
	r.Post("/brands", h.createBrand)
	r.Delete("/brands/{brandId}", h.deleteBrand)
}

// listBrands godoc
// @Summary List brands
// @Description Lists the company's brands with their config counts.
// @Tags brands
// @Produce json
// @Success 200 {array} model.BrandSummary
// @Failure 401 {object} map[string]string "unauthenticated"
// @Router /brands [get]
func (h *BrandHandler) listBrands(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	brands, err := h.gateway.ListBrands(r.Context(), p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, brands)
}

// createBrand godoc
// @Summary Create a brand
// @Description Creates a brand owned by the caller. Subject to the plan's brand limit.
// @Tags brands
// @Accept json
// @Produce json
// @Param brand body dto.BrandCreateDTO true "Brand creation request"
// @Success 201 {object} model.Brand
// @Failure 400 {object} map[string]string "validation_error"
// @Failure 403 {object} map[string]string "brand limit reached"
// @Failure 409 {object} map[string]string "brand name already used"
// @Router /brands [post]
func (h *BrandHandler) createBrand(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req dto.BrandCreateDTO
	if err := decode(r, w, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	b, err := h.gateway.CreateBrand(r.Context(), p, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, b)
}

// deleteBrand godoc
// @Summary Delete a brand
// @Description Deletes a brand with all its configs and versions.
// @Tags brands
// @Param brandId path string true "Brand ID"
// @Success 204
// @Failure 404 {object} map[string]string "not_found"
// @Router /brands/{brandId} [delete]
func (h *BrandHandler) deleteBrand(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.gateway.DeleteBrand(r.Context(), p, chi.URLParam(r, "brandId")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
