package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"brandconfig/internal/apperr"
	"brandconfig/internal/metrics"
	"brandconfig/internal/model"
	"brandconfig/internal/repository"
	"brandconfig/internal/tier"

	"github.com/rs/zerolog"
)

// ConfigPatch is a copy-on-write update. Nil fields keep the base version's value.
type ConfigPatch struct {
	FormData    model.Document
	Layout      json.RawMessage
	Schema      json.RawMessage
	UISchema    json.RawMessage
	Description *string
}

type SchemaView struct {
	Brand    string          `json:"brand"`
	Config   string          `json:"config"`
	Version  int             `json:"version"`
	Schema   json.RawMessage `json:"schema,omitempty"`
	UISchema json.RawMessage `json:"uiSchema,omitempty"`
}

type IntrospectConfig struct {
	Name    string   `json:"name"`
	Version int      `json:"version"`
	Keys    []string `json:"keys"`
}

type IntrospectBrand struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	Configs []IntrospectConfig `json:"configs"`
}

// ConfigGateway is the tenant-scoped entry point for operators and SDK
// callers. Brands outside the caller's company are reported as not found.
type ConfigGateway interface {
	ListBrands(ctx context.Context, p *model.Principal) ([]model.BrandSummary, error)
	CreateBrand(ctx context.Context, p *model.Principal, name string) (*model.Brand, error)
	DeleteBrand(ctx context.Context, p *model.Principal, brandID string) error

	ListDefinitions(ctx context.Context, p *model.Principal, brandID string) ([]model.DefinitionSummary, error)
	CreateConfig(ctx context.Context, p *model.Principal, brandID, name string, payload model.ConfigPayload) (*model.ConfigVersion, error)
	GetConfig(ctx context.Context, p *model.Principal, brandID, versionID string) (*model.ConfigVersion, error)
	UpdateConfig(ctx context.Context, p *model.Principal, brandID, versionID string, patch ConfigPatch) (*model.ConfigVersion, error)
	ListVersions(ctx context.Context, p *model.Principal, brandID, nameOrID string) ([]model.ConfigVersion, error)
	ResolveActive(ctx context.Context, p *model.Principal, brandID, name string) (*model.ConfigVersion, error)
	SetActiveVersion(ctx context.Context, p *model.Principal, brandID, name string, version int) (*model.ActiveVersionPointer, error)
	RenameDefinition(ctx context.Context, p *model.Principal, brandID, definitionID, newName string) (*model.ConfigDefinition, error)
	DeleteDefinition(ctx context.Context, p *model.Principal, brandID, definitionID string) error

	SDKListBrands(ctx context.Context, p *model.Principal) ([]model.BrandSummary, error)
	SDKListConfigs(ctx context.Context, p *model.Principal, brandName string) ([]model.DefinitionSummary, error)
	SDKGetConfig(ctx context.Context, p *model.Principal, brandName, configName string) (*model.ConfigVersion, error)
	SDKGetSchema(ctx context.Context, p *model.Principal, brandName, configName string) (*SchemaView, error)
	SDKIntrospect(ctx context.Context, p *model.Principal) ([]IntrospectBrand, error)
}

type configGateway struct {
	brands   repository.BrandRepository
	store    repository.VersionStore
	resolver ActiveVersionResolver
	limits   LimitEnforcer
	notifier  ActivationNotifier
	snapshots SnapshotStore
	now       func() time.Time
	logger    zerolog.Logger
}

// NewConfigGateway wires the gateway. notifier and snapshots may be nil.
func NewConfigGateway(
	brands repository.BrandRepository,
	store repository.VersionStore,
	resolver ActiveVersionResolver,
	limits LimitEnforcer,
	notifier ActivationNotifier,
	snapshots SnapshotStore,
	logger zerolog.Logger,
) ConfigGateway {
	return &configGateway{
		brands:    brands,
		store:     store,
		resolver:  resolver,
		limits:    limits,
		notifier:  notifier,
		snapshots: snapshots,
		now:       time.Now,
		logger:    logger.With().Str("service", "ConfigGateway").Logger(),
	}
}

func requireCompany(p *model.Principal) error {
	if p == nil || p.Company == "" {
		return apperr.PermissionDenied("no tenant scope on principal")
	}
	return nil
}

func requireScopes(p *model.Principal, scopes ...string) error {
	if err := requireCompany(p); err != nil {
		return err
	}
	for _, s := range scopes {
		if !p.HasScope(s) {
			return apperr.PermissionDenied("missing scope %s", s)
		}
	}
	return nil
}

// brand loads a brand in the caller's company.
func (g *configGateway) brand(ctx context.Context, p *model.Principal, brandID string) (*model.Brand, error) {
	if err := requireCompany(p); err != nil {
		return nil, err
	}
	return g.brands.GetByID(ctx, p.Company, brandID)
}

func (g *configGateway) ListBrands(ctx context.Context, p *model.Principal) ([]model.BrandSummary, error) {
	if err := requireCompany(p); err != nil {
		return nil, err
	}
	return g.brands.ListSummaries(ctx, p.Company)
}

func (g *configGateway) CreateBrand(ctx context.Context, p *model.Principal, name string) (*model.Brand, error) {
	if err := requireCompany(p); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("brand name is required")
	}
	if err := g.limits.CheckBrandLimit(ctx, p.UserID()); err != nil {
		return nil, err
	}
	b := &model.Brand{UserID: p.UserID(), Company: p.Company, Name: name}
	if err := g.brands.Create(ctx, b); err != nil {
		return nil, err
	}
	g.logger.Info().Str("brand_id", b.ID).Str("company", b.Company).Msg("Brand created")
	return b, nil
}

func (g *configGateway) DeleteBrand(ctx context.Context, p *model.Principal, brandID string) error {
	if err := requireCompany(p); err != nil {
		return err
	}
	if g.snapshots == nil {
		return g.brands.Delete(ctx, p.Company, brandID)
	}
	b, err := g.brand(ctx, p, brandID)
	if err != nil {
		return err
	}
	defs, err := g.store.ListDefinitions(ctx, brandID, p.Company)
	if err != nil {
		return err
	}
	if err := g.brands.Delete(ctx, p.Company, brandID); err != nil {
		return err
	}
	for i := range defs {
		g.dropSnapshot(ctx, p.Company, b.Name, defs[i].Name)
	}
	return nil
}

func (g *configGateway) ListDefinitions(ctx context.Context, p *model.Principal, brandID string) ([]model.DefinitionSummary, error) {
	if _, err := g.brand(ctx, p, brandID); err != nil {
		return nil, err
	}
	return g.store.ListDefinitions(ctx, brandID, p.Company)
}

func createdBy(p *model.Principal) string {
	if p.Email != "" {
		return p.Email
	}
	return p.UserID()
}

func (g *configGateway) CreateConfig(ctx context.Context, p *model.Principal, brandID, name string, payload model.ConfigPayload) (*model.ConfigVersion, error) {
	b, err := g.brand(ctx, p, brandID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("config name is required")
	}
	// Only a new name counts against the per-brand config limit.
	_, err = g.store.FindDefinition(ctx, brandID, name, p.Company)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if err := g.limits.CheckConfigLimit(ctx, p.UserID(), brandID, p.Company); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	payload.CreatedBy = createdBy(p)
	v, err := g.store.CreateVersion(ctx, brandID, name, p.Company, payload)
	if err != nil {
		return nil, err
	}
	metrics.VersionsCreatedTotal.Inc()
	g.refreshLatest(ctx, p, b, v)
	return v, nil
}

func (g *configGateway) GetConfig(ctx context.Context, p *model.Principal, brandID, versionID string) (*model.ConfigVersion, error) {
	if _, err := g.brand(ctx, p, brandID); err != nil {
		return nil, err
	}
	return g.store.GetVersion(ctx, brandID, p.Company, versionID)
}

func (g *configGateway) UpdateConfig(ctx context.Context, p *model.Principal, brandID, versionID string, patch ConfigPatch) (*model.ConfigVersion, error) {
	b, err := g.brand(ctx, p, brandID)
	if err != nil {
		return nil, err
	}
	base, err := g.store.GetVersion(ctx, brandID, p.Company, versionID)
	if err != nil {
		return nil, err
	}
	next := base.Payload()
	if patch.FormData != nil {
		next.FormData = patch.FormData
	}
	if patch.Layout != nil {
		next.Layout = patch.Layout
	}
	if patch.Schema != nil {
		next.Schema = patch.Schema
	}
	if patch.UISchema != nil {
		next.UISchema = patch.UISchema
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	next.CreatedBy = createdBy(p)
	// Append by id: the definition may have been renamed since base was read.
	v, err := g.store.CreateVersionFor(ctx, base.DefinitionID, brandID, p.Company, next)
	if err != nil {
		return nil, err
	}
	metrics.VersionsCreatedTotal.Inc()
	g.refreshLatest(ctx, p, b, v)
	return v, nil
}

func (g *configGateway) ListVersions(ctx context.Context, p *model.Principal, brandID, nameOrID string) ([]model.ConfigVersion, error) {
	if _, err := g.brand(ctx, p, brandID); err != nil {
		return nil, err
	}
	return g.store.ListVersions(ctx, brandID, nameOrID, p.Company)
}

func (g *configGateway) ResolveActive(ctx context.Context, p *model.Principal, brandID, name string) (*model.ConfigVersion, error) {
	if _, err := g.brand(ctx, p, brandID); err != nil {
		return nil, err
	}
	return g.resolver.Resolve(ctx, brandID, name, p.Company)
}

func (g *configGateway) SetActiveVersion(ctx context.Context, p *model.Principal, brandID, name string, version int) (*model.ActiveVersionPointer, error) {
	b, err := g.brand(ctx, p, brandID)
	if err != nil {
		return nil, err
	}
	if err := g.limits.RequireFeature(ctx, p.UserID(), tier.FeatureConfigVersioning); err != nil {
		return nil, err
	}
	ptr, err := g.store.SetActive(ctx, brandID, name, version, p.Company)
	if err != nil {
		return nil, err
	}
	metrics.ActivationsTotal.Inc()
	g.logger.Info().Str("brand_id", brandID).Str("config", ptr.DefinitionName).Int("version", version).Msg("Active version set")
	g.notify(ctx, p, b, ptr)
	return ptr, nil
}

// notify is best-effort: the pointer is already committed.
func (g *configGateway) notify(ctx context.Context, p *model.Principal, b *model.Brand, ptr *model.ActiveVersionPointer) {
	if g.notifier == nil && g.snapshots == nil {
		return
	}
	v, err := g.store.GetVersionByNumber(ctx, ptr.DefinitionID, ptr.ActiveVersion)
	if err != nil {
		g.logger.Warn().Err(err).Str("definition_id", ptr.DefinitionID).Msg("Could not load activated version for notification")
		return
	}
	g.writeSnapshot(ctx, p, b, v)
	if g.notifier == nil {
		return
	}
	granted, err := g.limits.Granted(ctx, p.UserID())
	if err != nil {
		g.logger.Warn().Err(err).Msg("Could not read entitlements for notification")
	}
	ev := g.event(p, b, v)
	ev.WebhooksEnabled = tier.Has(granted, tier.FeatureWebhooks)
	if err := g.notifier.NotifyActivation(ctx, ev); err != nil {
		g.logger.Error().Err(err).Str("config", ev.Config).Int("version", ev.Version).Msg("Activation notification failed")
	}
}

func (g *configGateway) event(p *model.Principal, b *model.Brand, v *model.ConfigVersion) ActivationEvent {
	return ActivationEvent{
		Company:      v.Company,
		BrandID:      b.ID,
		BrandName:    b.Name,
		DefinitionID: v.DefinitionID,
		Config:       v.Name,
		Version:      v.Version,
		FormData:     v.FormData,
		ActivatedBy:  createdBy(p),
		ActivatedAt:  g.now().UTC(),
	}
}

func (g *configGateway) writeSnapshot(ctx context.Context, p *model.Principal, b *model.Brand, v *model.ConfigVersion) {
	if g.snapshots == nil {
		return
	}
	if err := g.snapshots.NotifyActivation(ctx, g.event(p, b, v)); err != nil {
		g.logger.Error().Err(err).Str("config", v.Name).Int("version", v.Version).Msg("Snapshot write failed")
	}
}

// refreshLatest rewrites the snapshot when v is what SDK callers now resolve,
// which is the case while the definition has no active pointer.
func (g *configGateway) refreshLatest(ctx context.Context, p *model.Principal, b *model.Brand, v *model.ConfigVersion) {
	if g.snapshots == nil {
		return
	}
	_, err := g.store.GetActivePointer(ctx, v.DefinitionID)
	switch {
	case err == nil:
		return
	case !errors.Is(err, apperr.ErrNotFound):
		g.logger.Warn().Err(err).Str("definition_id", v.DefinitionID).Msg("Could not read active pointer for snapshot")
		return
	}
	g.writeSnapshot(ctx, p, b, v)
}

// syncSnapshot writes the resolved version of def. A definition without
// versions has nothing to serve.
func (g *configGateway) syncSnapshot(ctx context.Context, p *model.Principal, b *model.Brand, def *model.ConfigDefinition) {
	v, err := g.resolver.ResolveDefinition(ctx, def)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			g.logger.Warn().Err(err).Str("definition_id", def.ID).Msg("Could not resolve config for snapshot")
		}
		return
	}
	g.writeSnapshot(ctx, p, b, v)
}

func (g *configGateway) dropSnapshot(ctx context.Context, company, brand, config string) {
	if err := g.snapshots.DeleteSnapshot(ctx, company, brand, config); err != nil {
		g.logger.Error().Err(err).Str("brand", brand).Str("config", config).Msg("Snapshot delete failed")
	}
}

func (g *configGateway) RenameDefinition(ctx context.Context, p *model.Principal, brandID, definitionID, newName string) (*model.ConfigDefinition, error) {
	b, err := g.brand(ctx, p, brandID)
	if err != nil {
		return nil, err
	}
	if g.snapshots == nil {
		return g.store.UpdateName(ctx, definitionID, newName, brandID, p.Company)
	}
	old, err := g.store.FindDefinition(ctx, brandID, definitionID, p.Company)
	if err != nil {
		return nil, err
	}
	def, err := g.store.UpdateName(ctx, definitionID, newName, brandID, p.Company)
	if err != nil {
		return nil, err
	}
	if def.Name != old.Name {
		g.dropSnapshot(ctx, p.Company, b.Name, old.Name)
		g.syncSnapshot(ctx, p, b, def)
	}
	return def, nil
}

func (g *configGateway) DeleteDefinition(ctx context.Context, p *model.Principal, brandID, definitionID string) error {
	b, err := g.brand(ctx, p, brandID)
	if err != nil {
		return err
	}
	if g.snapshots == nil {
		return g.store.Remove(ctx, definitionID, brandID, p.Company)
	}
	def, err := g.store.FindDefinition(ctx, brandID, definitionID, p.Company)
	if err != nil {
		return err
	}
	if err := g.store.Remove(ctx, definitionID, brandID, p.Company); err != nil {
		return err
	}
	g.dropSnapshot(ctx, p.Company, b.Name, def.Name)
	return nil
}

func (g *configGateway) SDKListBrands(ctx context.Context, p *model.Principal) ([]model.BrandSummary, error) {
	if err := requireScopes(p, model.ScopeReadBrands); err != nil {
		return nil, err
	}
	return g.brands.ListSummaries(ctx, p.Company)
}

func (g *configGateway) sdkBrand(ctx context.Context, p *model.Principal, brandName string) (*model.Brand, error) {
	if err := requireScopes(p, model.ScopeReadConfigs); err != nil {
		return nil, err
	}
	return g.brands.GetByName(ctx, p.Company, brandName)
}

func (g *configGateway) SDKListConfigs(ctx context.Context, p *model.Principal, brandName string) ([]model.DefinitionSummary, error) {
	b, err := g.sdkBrand(ctx, p, brandName)
	if err != nil {
		return nil, err
	}
	return g.store.ListDefinitions(ctx, b.ID, p.Company)
}

func (g *configGateway) SDKGetConfig(ctx context.Context, p *model.Principal, brandName, configName string) (*model.ConfigVersion, error) {
	b, err := g.sdkBrand(ctx, p, brandName)
	if err != nil {
		return nil, err
	}
	return g.resolver.Resolve(ctx, b.ID, configName, p.Company)
}

func (g *configGateway) SDKGetSchema(ctx context.Context, p *model.Principal, brandName, configName string) (*SchemaView, error) {
	b, err := g.sdkBrand(ctx, p, brandName)
	if err != nil {
		return nil, err
	}
	v, err := g.resolver.Resolve(ctx, b.ID, configName, p.Company)
	if err != nil {
		return nil, err
	}
	return &SchemaView{
		Brand:    b.Name,
		Config:   v.Name,
		Version:  v.Version,
		Schema:   v.Schema,
		UISchema: v.UISchema,
	}, nil
}

func (g *configGateway) SDKIntrospect(ctx context.Context, p *model.Principal) ([]IntrospectBrand, error) {
	if err := requireScopes(p, model.ScopeReadBrands, model.ScopeReadConfigs); err != nil {
		return nil, err
	}
	brands, err := g.brands.ListByCompany(ctx, p.Company)
	if err != nil {
		return nil, err
	}
	out := make([]IntrospectBrand, 0, len(brands))
	for _, b := range brands {
		defs, err := g.store.ListDefinitions(ctx, b.ID, p.Company)
		if err != nil {
			return nil, err
		}
		ib := IntrospectBrand{ID: b.ID, Name: b.Name, Configs: make([]IntrospectConfig, 0, len(defs))}
		for i := range defs {
			ic := IntrospectConfig{Name: defs[i].Name, Keys: []string{}}
			v, err := g.resolver.ResolveDefinition(ctx, &defs[i].ConfigDefinition)
			switch {
			case err == nil:
				ic.Version = v.Version
				ic.Keys = v.FormData.Keys()
				sort.Strings(ic.Keys)
			case !errors.Is(err, apperr.ErrNotFound):
				return nil, err
			}
			ib.Configs = append(ib.Configs, ic)
		}
		out = append(out, ib)
	}
	return out, nil
}
