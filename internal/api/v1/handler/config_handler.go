package handler

import (
	"net/http"

	"brandconfig/internal/api/v1/dto"
	"brandconfig/internal/model"
	"brandconfig/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ConfigHandler handles config definition and version endpoints
type ConfigHandler struct {
	gateway  service.ConfigGateway
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewConfigHandler creates a new ConfigHandler
func NewConfigHandler(gateway service.ConfigGateway, validate *validator.Validate, logger zerolog.Logger) *ConfigHandler {
	return &ConfigHandler{gateway: gateway, validate: validate, logger: logger}
}

// RegisterRoutes mounts config routes. {config} is a version id on the
// single-version routes and a definition name elsewhere.
func (h *ConfigHandler) RegisterRoutes(r chi.Router) {
	r.Route("/brands/{brandId}", func(r chi.Router) {
		r.Get("/config-definitions", h.listDefinitions)
		r.Patch("/config-definitions/{definitionId}", h.renameDefinition)
		r.Delete("/config-definitions/{definitionId}", h.deleteDefinition)

		r.Post("/configs", h.createConfig)
		r.Get("/configs/{config}", h.getConfig)
		r.Patch("/configs/{config}", h.updateConfig)
		r.Get("/configs/{config}/versions", h.listVersions)
		r.Get("/configs/{config}/active", h.getActive)
		r.Patch("/configs/{config}/active-version", h.setActiveVersion)
	})
}

// listDefinitions godoc
// @Summary List config definitions
// @Description Lists a brand's configs with latest and active version numbers.
// @Tags configs
// @Produce json
// @Param brandId path string true "Brand ID"
// @Success 200 {array} model.DefinitionSummary
// @Failure 404 {object} map[string]string "brand not found"
// @Router /brands/{brandId}/config-definitions [get]
func (h *ConfigHandler) listDefinitions(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defs, err := h.gateway.ListDefinitions(r.Context(), p, chi.URLParam(r, "brandId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, defs)
}

// renameDefinition godoc
// @Summary Rename a config definition
// @Tags configs
// @Accept json
// @Produce json
// @Param brandId path string true "Brand ID"
// @Param definitionId path string true "Definition ID"
// @Param body body dto.DefinitionRenameDTO true "New name"
// @Success 200 {object} model.ConfigDefinition
// @Failure 404 {object} map[string]string "not_found"
// @Failure 409 {object} map[string]string "name already used"
// @Router /brands/{brandId}/config-definitions/{definitionId} [patch]
func (h *ConfigHandler) renameDefinition(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req dto.DefinitionRenameDTO
	if err := decode(r, w, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	def, err := h.gateway.RenameDefinition(r.Context(), p, chi.URLParam(r, "brandId"), chi.URLParam(r, "definitionId"), req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, def)
}

// deleteDefinition godoc
// @Summary Delete a config definition
// @Description Deletes the definition with all of its versions and its active pointer.
// @Tags configs
// @Param brandId path string true "Brand ID"
// @Param definitionId path string true "Definition ID"
// @Success 204
// @Failure 404 {object} map[string]string "not_found"
// @Router /brands/{brandId}/config-definitions/{definitionId} [delete]
func (h *ConfigHandler) deleteDefinition(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.gateway.DeleteDefinition(r.Context(), p, chi.URLParam(r, "brandId"), chi.URLParam(r, "definitionId")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createConfig godoc
// @Summary Create a config version
// @Description Creates version 1 of a new config, or the next version when the name already exists.
// @Tags configs
// @Accept json
// @Produce json
// @Param brandId path string true "Brand ID"
// @Param config body dto.ConfigCreateDTO true "Config payload"
// @Success 201 {object} model.ConfigVersion
// @Failure 403 {object} map[string]string "config limit reached"
// @Failure 404 {object} map[string]string "brand not found"
// @Router /brands/{brandId}/configs [post]
func (h *ConfigHandler) createConfig(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req dto.ConfigCreateDTO
	if err := decode(r, w, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	v, err := h.gateway.CreateConfig(r.Context(), p, chi.URLParam(r, "brandId"), req.Name, model.ConfigPayload{
		FormData:    req.FormData,
		Layout:      req.Layout,
		Schema:      req.Schema,
		UISchema:    req.UISchema,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, v)
}

// getConfig godoc
// @Summary Get one config version
// @Tags configs
// @Produce json
// @Param brandId path string true "Brand ID"
// @Param config path string true "Version ID"
// @Success 200 {object} model.ConfigVersion
// @Failure 404 {object} map[string]string "not_found"
// @Router /brands/{brandId}/configs/{config} [get]
func (h *ConfigHandler) getConfig(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	v, err := h.gateway.GetConfig(r.Context(), p, chi.URLParam(r, "brandId"), chi.URLParam(r, "config"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, v)
}

// updateConfig godoc
// @Summary Update a config
// @Description Creates a new version from the given version plus the supplied overrides. The base version is unchanged.
// @Tags configs
// @Accept json
// @Produce json
// @Param brandId path string true "Brand ID"
// @Param config path string true "Base version ID"
// @Param body body dto.ConfigUpdateDTO true "Overrides"
// @Success 201 {object} model.ConfigVersion
// @Failure 404 {object} map[string]string "not_found"
// @Router /brands/{brandId}/configs/{config} [patch]
func (h *ConfigHandler) updateConfig(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req dto.ConfigUpdateDTO
	if err := decode(r, w, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	v, err := h.gateway.UpdateConfig(r.Context(), p, chi.URLParam(r, "brandId"), chi.URLParam(r, "config"), service.ConfigPatch{
		FormData:    req.FormData,
		Layout:      req.Layout,
		Schema:      req.Schema,
		UISchema:    req.UISchema,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, v)
}

// listVersions godoc
// @Summary List config versions
// @Description Lists every version of a config, newest first. Accepts a definition name or id.
// @Tags configs
// @Produce json
// @Param brandId path string true "Brand ID"
// @Param config path string true "Config name or definition ID"
// @Success 200 {array} model.ConfigVersion
// @Failure 404 {object} map[string]string "not_found"
// @Router /brands/{brandId}/configs/{config}/versions [get]
func (h *ConfigHandler) listVersions(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	vs, err := h.gateway.ListVersions(r.Context(), p, chi.URLParam(r, "brandId"), chi.URLParam(r, "config"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, vs)
}

// getActive godoc
// @Summary Get the active config
// @Description Returns the version selected by the active pointer, or the latest version when none is set.
// @Tags configs
// @Produce json
// @Param brandId path string true "Brand ID"
// @Param config path string true "Config name"
// @Success 200 {object} model.ConfigVersion
// @Failure 404 {object} map[string]string "not_found"
// @Router /brands/{brandId}/configs/{config}/active [get]
func (h *ConfigHandler) getActive(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	v, err := h.gateway.ResolveActive(r.Context(), p, chi.URLParam(r, "brandId"), chi.URLParam(r, "config"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, v)
}

// setActiveVersion godoc
// @Summary Set the active version
// @Description Points the config at an existing version. Requires CONFIG_VERSIONING.
// @Tags configs
// @Accept json
// @Produce json
// @Param brandId path string true "Brand ID"
// @Param config path string true "Config name"
// @Param body body dto.SetActiveVersionDTO true "Version number"
// @Success 200 {object} model.ActiveVersionPointer
// @Failure 403 {object} map[string]string "feature not in plan"
// @Failure 404 {object} map[string]string "not_found"
// @Router /brands/{brandId}/configs/{config}/active-version [patch]
func (h *ConfigHandler) setActiveVersion(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req dto.SetActiveVersionDTO
	if err := decode(r, w, h.validate, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ptr, err := h.gateway.SetActiveVersion(r.Context(), p, chi.URLParam(r, "brandId"), chi.URLParam(r, "config"), req.Version)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, ptr)
}
