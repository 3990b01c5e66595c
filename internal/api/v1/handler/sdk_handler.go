package handler

import (
	"context"
	"encoding/json"

	"brandconfig/internal/api/v1/dto"
	"brandconfig/internal/api/v1/operation"
	"brandconfig/internal/apperr"
	"brandconfig/internal/middleware"
	"brandconfig/internal/model"
	"brandconfig/internal/service"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"
)

// SDKHandler serves read-only config access to API key holders.
type SDKHandler struct {
	gateway service.ConfigGateway
	logger  zerolog.Logger
}

func NewSDKHandler(gateway service.ConfigGateway, logger zerolog.Logger) *SDKHandler {
	return &SDKHandler{gateway: gateway, logger: logger}
}

func getPrincipalFromContext(ctx context.Context) (*model.Principal, error) {
	p := middleware.PrincipalFromContext(ctx)
	if p == nil {
		return nil, huma.Error401Unauthorized("API key required")
	}
	return p, nil
}

// toHumaError keeps the status mapping of the operator API.
func (h *SDKHandler) toHumaError(err error) error {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		h.logger.Error().Err(err).Msg("SDK request failed")
	}
	return huma.NewError(apperr.HTTPStatus(kind), apperr.Message(err))
}

func rawToAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// ListBrands lists the company's brands
func (h *SDKHandler) ListBrands(ctx context.Context, _ *operation.ListBrandsInput) (*operation.ListBrandsOutput, error) {
	p, err := getPrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	brands, err := h.gateway.SDKListBrands(ctx, p)
	if err != nil {
		return nil, h.toHumaError(err)
	}
	out := make([]dto.SDKBrandDTO, 0, len(brands))
	for _, b := range brands {
		out = append(out, dto.SDKBrandDTO{ID: b.ID, Name: b.Name, ConfigCount: b.ConfigCount})
	}
	return &operation.ListBrandsOutput{Body: out}, nil
}

// ListConfigs lists a brand's configs
func (h *SDKHandler) ListConfigs(ctx context.Context, input *operation.ListConfigsInput) (*operation.ListConfigsOutput, error) {
	p, err := getPrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	defs, err := h.gateway.SDKListConfigs(ctx, p, input.BrandName)
	if err != nil {
		return nil, h.toHumaError(err)
	}
	out := make([]dto.SDKConfigSummaryDTO, 0, len(defs))
	for _, d := range defs {
		out = append(out, dto.SDKConfigSummaryDTO{
			ID:            d.ID,
			Name:          d.Name,
			LatestVersion: d.LatestVersion,
			ActiveVersion: d.ActiveVersion,
		})
	}
	return &operation.ListConfigsOutput{Body: out}, nil
}

// GetConfig returns the value currently served for a config
func (h *SDKHandler) GetConfig(ctx context.Context, input *operation.GetConfigInput) (*operation.GetConfigOutput, error) {
	p, err := getPrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	v, err := h.gateway.SDKGetConfig(ctx, p, input.BrandName, input.ConfigName)
	if err != nil {
		return nil, h.toHumaError(err)
	}
	return &operation.GetConfigOutput{
		CacheControl: "no-cache",
		Body: dto.SDKConfigDTO{
			Name:      v.Name,
			Version:   v.Version,
			FormData:  v.FormData,
			CreatedAt: v.CreatedAt,
		},
	}, nil
}

// GetSchema returns the schemas stored with the served version
func (h *SDKHandler) GetSchema(ctx context.Context, input *operation.GetSchemaInput) (*operation.GetSchemaOutput, error) {
	p, err := getPrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	sv, err := h.gateway.SDKGetSchema(ctx, p, input.BrandName, input.ConfigName)
	if err != nil {
		return nil, h.toHumaError(err)
	}
	return &operation.GetSchemaOutput{Body: dto.SDKSchemaDTO{
		Brand:    sv.Brand,
		Config:   sv.Config,
		Version:  sv.Version,
		Schema:   rawToAny(sv.Schema),
		UISchema: rawToAny(sv.UISchema),
	}}, nil
}

// Introspect describes every brand and config visible to the key
func (h *SDKHandler) Introspect(ctx context.Context, _ *operation.IntrospectInput) (*operation.IntrospectOutput, error) {
	p, err := getPrincipalFromContext(ctx)
	if err != nil {
		return nil, err
	}
	brands, err := h.gateway.SDKIntrospect(ctx, p)
	if err != nil {
		return nil, h.toHumaError(err)
	}
	out := make([]dto.SDKIntrospectBrandDTO, 0, len(brands))
	for _, b := range brands {
		ib := dto.SDKIntrospectBrandDTO{ID: b.ID, Name: b.Name, Configs: make([]dto.SDKIntrospectConfigDTO, 0, len(b.Configs))}
		for _, c := range b.Configs {
			ib.Configs = append(ib.Configs, dto.SDKIntrospectConfigDTO{Name: c.Name, Version: c.Version, Keys: c.Keys})
		}
		out = append(out, ib)
	}
	return &operation.IntrospectOutput{Body: out}, nil
}
