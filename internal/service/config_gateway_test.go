package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"brandconfig/internal/apperr"
	"brandconfig/internal/model"
	"brandconfig/internal/repository"
	"brandconfig/internal/repository/memstore"

	"github.com/rs/zerolog"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []ActivationEvent
	err    error
}

func (r *recordingNotifier) NotifyActivation(_ context.Context, ev ActivationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

type gatewayFixture struct {
	store    *memstore.Store
	subs     SubscriptionService
	limits   LimitEnforcer
	notifier *recordingNotifier
	gw       ConfigGateway
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	logger := zerolog.Nop()
	store := memstore.New()
	subs := NewSubscriptionService(store.Subscriptions(), nil, logger)
	limits := NewLimitEnforcer(subs, store.Brands(), store.Versions(), logger)
	n := &recordingNotifier{}
	gw := NewConfigGateway(store.Brands(), store.Versions(), NewActiveVersionResolver(store.Versions()), limits, n, nil, logger)
	return &gatewayFixture{store: store, subs: subs, limits: limits, notifier: n, gw: gw}
}

func (f *gatewayFixture) setTier(t *testing.T, userID string, tr model.Tier) {
	t.Helper()
	if _, err := f.subs.ApplyTierChange(context.Background(), model.TierChangeEvent{UserID: userID, Tier: tr, Status: model.StatusActive}); err != nil {
		t.Fatalf("ApplyTierChange: %v", err)
	}
}

func operator(userID, company string) *model.Principal {
	return &model.Principal{Kind: model.PrincipalUser, Auth0ID: userID, Email: userID + "@example.com", Company: company}
}

func mustKind(t *testing.T, err error, want apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := apperr.KindOf(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}

func TestGatewayActiveVersionLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	p := operator("auth0|u1", "acme")
	f.setTier(t, p.UserID(), model.TierPro)

	brand, err := f.gw.CreateBrand(ctx, p, "  Shop ")
	if err != nil {
		t.Fatalf("CreateBrand: %v", err)
	}
	if brand.Name != "Shop" {
		t.Fatalf("brand name not trimmed: %q", brand.Name)
	}

	v1, err := f.gw.CreateConfig(ctx, p, brand.ID, "FeatureFlags", model.ConfigPayload{FormData: model.Document{"enableDarkMode": true}})
	if err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}
	if v1.Version != 1 || v1.CreatedBy != "auth0|u1@example.com" {
		t.Fatalf("unexpected v1: %+v", v1)
	}

	desc := "dark mode off"
	v2, err := f.gw.UpdateConfig(ctx, p, brand.ID, v1.ID, ConfigPatch{FormData: model.Document{"enableDarkMode": false}, Description: &desc})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if v2.Version != 2 || v2.ID == v1.ID || v2.Description != desc {
		t.Fatalf("unexpected v2: %+v", v2)
	}

	// v1 is untouched by the update.
	again, err := f.gw.GetConfig(ctx, p, brand.ID, v1.ID)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if again.FormData["enableDarkMode"] != true {
		t.Fatalf("v1 mutated: %+v", again.FormData)
	}

	active, err := f.gw.ResolveActive(ctx, p, brand.ID, "FeatureFlags")
	if err != nil {
		t.Fatalf("ResolveActive: %v", err)
	}
	if active.Version != 2 {
		t.Fatalf("expected latest version 2 without a pointer, got %d", active.Version)
	}

	ptr, err := f.gw.SetActiveVersion(ctx, p, brand.ID, "FeatureFlags", 1)
	if err != nil {
		t.Fatalf("SetActiveVersion: %v", err)
	}
	if ptr.ActiveVersion != 1 {
		t.Fatalf("pointer = %+v", ptr)
	}
	active, err = f.gw.ResolveActive(ctx, p, brand.ID, "FeatureFlags")
	if err != nil {
		t.Fatalf("ResolveActive: %v", err)
	}
	if active.Version != 1 || active.FormData["enableDarkMode"] != true {
		t.Fatalf("expected v1 active, got %+v", active)
	}

	if len(f.notifier.events) != 1 {
		t.Fatalf("expected one activation event, got %d", len(f.notifier.events))
	}
	ev := f.notifier.events[0]
	if ev.BrandName != "Shop" || ev.Config != "FeatureFlags" || ev.Version != 1 || !ev.WebhooksEnabled {
		t.Fatalf("unexpected event: %+v", ev)
	}

	versions, err := f.gw.ListVersions(ctx, p, brand.ID, "FeatureFlags")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
}

func TestGatewayCreateConfigWithExistingNameAddsVersion(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	p := operator("auth0|u1", "acme")

	b, err := f.gw.CreateBrand(ctx, p, "Shop")
	if err != nil {
		t.Fatalf("CreateBrand: %v", err)
	}
	if _, err := f.gw.CreateConfig(ctx, p, b.ID, "Theme", model.ConfigPayload{FormData: model.Document{"a": 1}}); err != nil {
		t.Fatalf("first CreateConfig: %v", err)
	}
	// Free plan allows one config; the same name is not a new config.
	v, err := f.gw.CreateConfig(ctx, p, b.ID, "Theme", model.ConfigPayload{FormData: model.Document{"a": 2}})
	if err != nil {
		t.Fatalf("second CreateConfig: %v", err)
	}
	if v.Version != 2 {
		t.Fatalf("expected version 2, got %d", v.Version)
	}
	_, err = f.gw.CreateConfig(ctx, p, b.ID, "Other", model.ConfigPayload{})
	mustKind(t, err, apperr.KindPermissionDenied)
}

func TestGatewayLimitBoundary(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	p := operator("auth0|u1", "acme")

	if _, err := f.gw.CreateBrand(ctx, p, "One"); err != nil {
		t.Fatalf("CreateBrand: %v", err)
	}
	_, err := f.gw.CreateBrand(ctx, p, "Two")
	mustKind(t, err, apperr.KindPermissionDenied)

	f.setTier(t, p.UserID(), model.TierStarter)
	for i := 2; i <= 5; i++ {
		if _, err := f.gw.CreateBrand(ctx, p, fmt.Sprintf("Brand %d", i)); err != nil {
			t.Fatalf("CreateBrand %d on starter: %v", i, err)
		}
	}
	_, err = f.gw.CreateBrand(ctx, p, "Six")
	mustKind(t, err, apperr.KindPermissionDenied)
}

func TestGatewayViolationsAfterDowngrade(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	p := operator("auth0|u1", "acme")
	f.setTier(t, p.UserID(), model.TierPro)

	var first *model.Brand
	for i := 0; i < 8; i++ {
		b, err := f.gw.CreateBrand(ctx, p, fmt.Sprintf("Brand %d", i))
		if err != nil {
			t.Fatalf("CreateBrand: %v", err)
		}
		if first == nil {
			first = b
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := f.gw.CreateConfig(ctx, p, first.ID, fmt.Sprintf("cfg-%d", i), model.ConfigPayload{}); err != nil {
			t.Fatalf("CreateConfig: %v", err)
		}
	}

	if err := f.subs.Cancel(ctx, p.UserID()); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	report, err := f.limits.CheckViolations(ctx, p.UserID())
	if err != nil {
		t.Fatalf("CheckViolations: %v", err)
	}
	if !report.HasViolations || report.CurrentTier != model.TierFree {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Violations) != 2 {
		t.Fatalf("expected brand and config violations, got %+v", report.Violations)
	}
	if v := report.Violations[0]; v.Type != ViolationBrands || v.Current != 8 || v.Limit != 1 {
		t.Fatalf("unexpected brand violation: %+v", v)
	}
	if v := report.Violations[1]; v.Type != ViolationConfigs || v.BrandID != first.ID || v.Current != 3 {
		t.Fatalf("unexpected config violation: %+v", v)
	}

	// Existing data stays readable; new writes are blocked.
	if _, err := f.gw.ListDefinitions(ctx, p, first.ID); err != nil {
		t.Fatalf("ListDefinitions after downgrade: %v", err)
	}
	_, err = f.gw.CreateBrand(ctx, p, "Nine")
	mustKind(t, err, apperr.KindPermissionDenied)
}

func TestGatewayTenantIsolation(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	acme := operator("auth0|u1", "acme")
	globex := operator("auth0|u2", "globex")

	b, err := f.gw.CreateBrand(ctx, acme, "Shop")
	if err != nil {
		t.Fatalf("CreateBrand: %v", err)
	}
	v, err := f.gw.CreateConfig(ctx, acme, b.ID, "Theme", model.ConfigPayload{FormData: model.Document{"c": "red"}})
	if err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	_, err = f.gw.ListDefinitions(ctx, globex, b.ID)
	mustKind(t, err, apperr.KindNotFound)
	_, err = f.gw.GetConfig(ctx, globex, b.ID, v.ID)
	mustKind(t, err, apperr.KindNotFound)
	_, err = f.gw.ResolveActive(ctx, globex, b.ID, "Theme")
	mustKind(t, err, apperr.KindNotFound)
	mustKind(t, f.gw.DeleteBrand(ctx, globex, b.ID), apperr.KindNotFound)

	brands, err := f.gw.ListBrands(ctx, globex)
	if err != nil {
		t.Fatalf("ListBrands: %v", err)
	}
	if len(brands) != 0 {
		t.Fatalf("globex sees acme brands: %+v", brands)
	}

	_, err = f.gw.ListBrands(ctx, &model.Principal{Kind: model.PrincipalUser, Auth0ID: "x"})
	mustKind(t, err, apperr.KindPermissionDenied)
}

func TestGatewaySetActiveRequiresVersioning(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	p := operator("auth0|u1", "acme")

	b, _ := f.gw.CreateBrand(ctx, p, "Shop")
	if _, err := f.gw.CreateConfig(ctx, p, b.ID, "Theme", model.ConfigPayload{}); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}
	_, err := f.gw.SetActiveVersion(ctx, p, b.ID, "Theme", 1)
	mustKind(t, err, apperr.KindPermissionDenied)
	if len(f.notifier.events) != 0 {
		t.Fatal("denied activation must not notify")
	}

	// A lapsed pro plan keeps the tier but loses the feature.
	if _, err := f.subs.ApplyTierChange(ctx, model.TierChangeEvent{UserID: p.UserID(), Tier: model.TierPro, Status: model.StatusPastDue}); err != nil {
		t.Fatalf("ApplyTierChange: %v", err)
	}
	_, err = f.gw.SetActiveVersion(ctx, p, b.ID, "Theme", 1)
	mustKind(t, err, apperr.KindPermissionDenied)

	f.setTier(t, p.UserID(), model.TierPro)
	_, err = f.gw.SetActiveVersion(ctx, p, b.ID, "Theme", 7)
	mustKind(t, err, apperr.KindNotFound)
}

func TestGatewayNotifierFailureKeepsActivation(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	f.notifier.err = errors.New("pubsub down")
	p := operator("auth0|u1", "acme")
	f.setTier(t, p.UserID(), model.TierPro)

	b, _ := f.gw.CreateBrand(ctx, p, "Shop")
	for i := 0; i < 2; i++ {
		if _, err := f.gw.CreateConfig(ctx, p, b.ID, "Theme", model.ConfigPayload{FormData: model.Document{"i": i}}); err != nil {
			t.Fatalf("CreateConfig: %v", err)
		}
	}
	if _, err := f.gw.SetActiveVersion(ctx, p, b.ID, "Theme", 1); err != nil {
		t.Fatalf("SetActiveVersion: %v", err)
	}
	v, err := f.gw.ResolveActive(ctx, p, b.ID, "Theme")
	if err != nil {
		t.Fatalf("ResolveActive: %v", err)
	}
	if v.Version != 1 {
		t.Fatalf("expected version 1 active, got %d", v.Version)
	}
}

func TestGatewayRenameAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	p := operator("auth0|u1", "acme")
	f.setTier(t, p.UserID(), model.TierStarter)

	b, _ := f.gw.CreateBrand(ctx, p, "Shop")
	v, _ := f.gw.CreateConfig(ctx, p, b.ID, "Theme", model.ConfigPayload{})
	if _, err := f.gw.CreateConfig(ctx, p, b.ID, "Flags", model.ConfigPayload{}); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	_, err := f.gw.RenameDefinition(ctx, p, b.ID, v.DefinitionID, "Flags")
	mustKind(t, err, apperr.KindConflict)

	def, err := f.gw.RenameDefinition(ctx, p, b.ID, v.DefinitionID, "Palette")
	if err != nil {
		t.Fatalf("RenameDefinition: %v", err)
	}
	if def.Name != "Palette" {
		t.Fatalf("rename = %+v", def)
	}
	got, err := f.gw.GetConfig(ctx, p, b.ID, v.ID)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if got.Name != "Palette" {
		t.Fatalf("version still reports old name %q", got.Name)
	}

	if err := f.gw.DeleteDefinition(ctx, p, b.ID, v.DefinitionID); err != nil {
		t.Fatalf("DeleteDefinition: %v", err)
	}
	_, err = f.gw.GetConfig(ctx, p, b.ID, v.ID)
	mustKind(t, err, apperr.KindNotFound)

	defs, err := f.gw.ListDefinitions(ctx, p, b.ID)
	if err != nil {
		t.Fatalf("ListDefinitions: %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "Flags" {
		t.Fatalf("unexpected definitions: %+v", defs)
	}
}

func TestGatewaySDKScopes(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	op := operator("auth0|u1", "acme")
	f.setTier(t, op.UserID(), model.TierStarter)

	b, _ := f.gw.CreateBrand(ctx, op, "Shop")
	schema := []byte(`{"type":"object"}`)
	if _, err := f.gw.CreateConfig(ctx, op, b.ID, "Theme", model.ConfigPayload{
		FormData: model.Document{"primary": "#000", "accent": "#fff"},
		Schema:   schema,
	}); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}
	if _, err := f.store.Versions().GetOrCreateDefinition(ctx, b.ID, "Empty", "acme"); err != nil {
		t.Fatalf("GetOrCreateDefinition: %v", err)
	}

	noScopes := &model.Principal{Kind: model.PrincipalMachine, ClientID: "client-1", Company: "acme"}
	_, err := f.gw.SDKListBrands(ctx, noScopes)
	mustKind(t, err, apperr.KindPermissionDenied)
	_, err = f.gw.SDKGetConfig(ctx, noScopes, "Shop", "Theme")
	mustKind(t, err, apperr.KindPermissionDenied)

	sdk := &model.Principal{Kind: model.PrincipalMachine, ClientID: "client-1", Company: "acme",
		Scopes: []string{model.ScopeReadBrands, model.ScopeReadConfigs}}

	brands, err := f.gw.SDKListBrands(ctx, sdk)
	if err != nil || len(brands) != 1 || brands[0].ConfigCount != 2 {
		t.Fatalf("SDKListBrands = %+v, %v", brands, err)
	}
	cfgs, err := f.gw.SDKListConfigs(ctx, sdk, "Shop")
	if err != nil || len(cfgs) != 2 {
		t.Fatalf("SDKListConfigs = %+v, %v", cfgs, err)
	}
	v, err := f.gw.SDKGetConfig(ctx, sdk, "Shop", "Theme")
	if err != nil || v.FormData["primary"] != "#000" {
		t.Fatalf("SDKGetConfig = %+v, %v", v, err)
	}
	_, err = f.gw.SDKGetConfig(ctx, sdk, "Shop", "Empty")
	mustKind(t, err, apperr.KindNotFound)
	_, err = f.gw.SDKGetConfig(ctx, sdk, "Nope", "Theme")
	mustKind(t, err, apperr.KindNotFound)

	sv, err := f.gw.SDKGetSchema(ctx, sdk, "Shop", "Theme")
	if err != nil {
		t.Fatalf("SDKGetSchema: %v", err)
	}
	if sv.Brand != "Shop" || sv.Version != 1 || string(sv.Schema) != string(schema) {
		t.Fatalf("unexpected schema view: %+v", sv)
	}

	intro, err := f.gw.SDKIntrospect(ctx, sdk)
	if err != nil {
		t.Fatalf("SDKIntrospect: %v", err)
	}
	if len(intro) != 1 || len(intro[0].Configs) != 2 {
		t.Fatalf("unexpected introspection: %+v", intro)
	}
	for _, c := range intro[0].Configs {
		switch c.Name {
		case "Theme":
			if c.Version != 1 || !reflect.DeepEqual(c.Keys, []string{"accent", "primary"}) {
				t.Fatalf("unexpected Theme entry: %+v", c)
			}
		case "Empty":
			if c.Version != 0 || len(c.Keys) != 0 {
				t.Fatalf("unexpected Empty entry: %+v", c)
			}
		}
	}

	other := &model.Principal{Kind: model.PrincipalMachine, ClientID: "client-2", Company: "globex",
		Scopes: []string{model.ScopeReadBrands, model.ScopeReadConfigs}}
	_, err = f.gw.SDKGetConfig(ctx, other, "Shop", "Theme")
	mustKind(t, err, apperr.KindNotFound)
}

// renameOnRead renames a definition right after one of its versions is read,
// as an operator editing the same config from another session would.
type renameOnRead struct {
	repository.VersionStore
	to string
}

func (r *renameOnRead) GetVersion(ctx context.Context, brandID, company, versionID string) (*model.ConfigVersion, error) {
	v, err := r.VersionStore.GetVersion(ctx, brandID, company, versionID)
	if err != nil || r.to == "" {
		return v, err
	}
	if _, err := r.VersionStore.UpdateName(ctx, v.DefinitionID, r.to, brandID, company); err != nil {
		return nil, err
	}
	r.to = ""
	return v, nil
}

func TestGatewayUpdateConfigAfterConcurrentRename(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	p := operator("auth0|u1", "acme")
	f.setTier(t, p.UserID(), model.TierStarter)

	b, _ := f.gw.CreateBrand(ctx, p, "Shop")
	v1, err := f.gw.CreateConfig(ctx, p, b.ID, "Theme", model.ConfigPayload{FormData: model.Document{"primary": "#000"}})
	if err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	rs := &renameOnRead{VersionStore: f.store.Versions(), to: "Renamed"}
	gw := NewConfigGateway(f.store.Brands(), rs, NewActiveVersionResolver(rs), f.limits, nil, nil, zerolog.Nop())

	v2, err := gw.UpdateConfig(ctx, p, b.ID, v1.ID, ConfigPatch{FormData: model.Document{"primary": "#111"}})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if v2.DefinitionID != v1.DefinitionID || v2.Version != 2 || v2.Name != "Renamed" {
		t.Fatalf("update landed on the wrong definition: %+v", v2)
	}
	defs, err := f.gw.ListDefinitions(ctx, p, b.ID)
	if err != nil {
		t.Fatalf("ListDefinitions: %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "Renamed" || defs[0].LatestVersion != 2 {
		t.Fatalf("unexpected definitions: %+v", defs)
	}
}

type recordingSnapshots struct {
	objects map[string]ActivationEvent
	deleted []string
}

func newRecordingSnapshots() *recordingSnapshots {
	return &recordingSnapshots{objects: map[string]ActivationEvent{}}
}

func (r *recordingSnapshots) NotifyActivation(_ context.Context, ev ActivationEvent) error {
	r.objects[SnapshotKey(ev.Company, ev.BrandName, ev.Config)] = ev
	return nil
}

func (r *recordingSnapshots) DeleteSnapshot(_ context.Context, company, brand, config string) error {
	key := SnapshotKey(company, brand, config)
	delete(r.objects, key)
	r.deleted = append(r.deleted, key)
	return nil
}

func (r *recordingSnapshots) version(t *testing.T, key string) int {
	t.Helper()
	ev, ok := r.objects[key]
	if !ok {
		t.Fatalf("no snapshot at %s (have %d objects)", key, len(r.objects))
	}
	return ev.Version
}

func TestGatewaySnapshotsFollowServedVersion(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	snaps := newRecordingSnapshots()
	gw := NewConfigGateway(f.store.Brands(), f.store.Versions(), NewActiveVersionResolver(f.store.Versions()), f.limits, nil, snaps, zerolog.Nop())
	p := operator("auth0|u1", "acme")
	f.setTier(t, p.UserID(), model.TierPro)

	b, _ := gw.CreateBrand(ctx, p, "Shop")
	theme := SnapshotKey("acme", "Shop", "Theme")

	v1, err := gw.CreateConfig(ctx, p, b.ID, "Theme", model.ConfigPayload{FormData: model.Document{"primary": "#000"}})
	if err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}
	if got := snaps.version(t, theme); got != 1 {
		t.Fatalf("snapshot after create = v%d", got)
	}

	// No pointer yet: the latest version is served.
	v2, err := gw.UpdateConfig(ctx, p, b.ID, v1.ID, ConfigPatch{FormData: model.Document{"primary": "#222"}})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if got := snaps.version(t, theme); got != 2 || snaps.objects[theme].FormData["primary"] != "#222" {
		t.Fatalf("snapshot after update = %+v", snaps.objects[theme])
	}

	if _, err := gw.SetActiveVersion(ctx, p, b.ID, "Theme", 1); err != nil {
		t.Fatalf("SetActiveVersion: %v", err)
	}
	if got := snaps.version(t, theme); got != 1 {
		t.Fatalf("snapshot after activation = v%d", got)
	}

	// A pinned pointer keeps serving v1.
	if _, err := gw.UpdateConfig(ctx, p, b.ID, v2.ID, ConfigPatch{FormData: model.Document{"primary": "#333"}}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if got := snaps.version(t, theme); got != 1 {
		t.Fatalf("pinned snapshot moved to v%d", got)
	}

	if _, err := gw.RenameDefinition(ctx, p, b.ID, v1.DefinitionID, "Palette"); err != nil {
		t.Fatalf("RenameDefinition: %v", err)
	}
	palette := SnapshotKey("acme", "Shop", "Palette")
	if _, stale := snaps.objects[theme]; stale {
		t.Fatal("old snapshot kept after rename")
	}
	if got := snaps.version(t, palette); got != 1 {
		t.Fatalf("renamed snapshot = v%d", got)
	}

	if err := gw.DeleteDefinition(ctx, p, b.ID, v1.DefinitionID); err != nil {
		t.Fatalf("DeleteDefinition: %v", err)
	}
	if _, stale := snaps.objects[palette]; stale {
		t.Fatal("snapshot kept after definition delete")
	}

	if _, err := gw.CreateConfig(ctx, p, b.ID, "Flags", model.ConfigPayload{}); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}
	flags := SnapshotKey("acme", "Shop", "Flags")
	snaps.version(t, flags)
	if err := gw.DeleteBrand(ctx, p, b.ID); err != nil {
		t.Fatalf("DeleteBrand: %v", err)
	}
	if len(snaps.objects) != 0 {
		t.Fatalf("snapshots kept after brand delete: %v", snaps.objects)
	}
	if snaps.deleted[len(snaps.deleted)-1] != flags {
		t.Fatalf("unexpected deletes: %v", snaps.deleted)
	}
}

func TestGatewaySDKSameNamesAcrossCompanies(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	colors := map[string]string{"acme": "#a00", "globex": "#0b0"}
	for _, company := range []string{"acme", "globex"} {
		op := operator("auth0|"+company, company)
		f.setTier(t, op.UserID(), model.TierStarter)
		b, err := f.gw.CreateBrand(ctx, op, "Acme")
		if err != nil {
			t.Fatalf("CreateBrand(%s): %v", company, err)
		}
		if _, err := f.gw.CreateConfig(ctx, op, b.ID, "Theme", model.ConfigPayload{
			FormData: model.Document{"primary": colors[company]},
		}); err != nil {
			t.Fatalf("CreateConfig(%s): %v", company, err)
		}
	}

	for company, want := range colors {
		sdk := &model.Principal{Kind: model.PrincipalMachine, ClientID: "client-" + company, Company: company,
			Scopes: []string{model.ScopeReadBrands, model.ScopeReadConfigs}}

		v, err := f.gw.SDKGetConfig(ctx, sdk, "Acme", "Theme")
		if err != nil {
			t.Fatalf("SDKGetConfig(%s): %v", company, err)
		}
		if v.Company != company || v.FormData["primary"] != want {
			t.Fatalf("%s resolved another tenant's config: %+v", company, v)
		}

		cfgs, err := f.gw.SDKListConfigs(ctx, sdk, "Acme")
		if err != nil {
			t.Fatalf("SDKListConfigs(%s): %v", company, err)
		}
		if len(cfgs) != 1 || cfgs[0].Company != company || cfgs[0].Name != "Theme" {
			t.Fatalf("%s listed: %+v", company, cfgs)
		}
	}
}

func TestGatewayRenameToNameUsedByAnotherCompany(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	acme := operator("auth0|u1", "acme")
	globex := operator("auth0|u2", "globex")
	f.setTier(t, acme.UserID(), model.TierStarter)
	f.setTier(t, globex.UserID(), model.TierStarter)

	gb, _ := f.gw.CreateBrand(ctx, globex, "Shop")
	if _, err := f.gw.CreateConfig(ctx, globex, gb.ID, "Palette", model.ConfigPayload{}); err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}
	ab, _ := f.gw.CreateBrand(ctx, acme, "Shop")
	v, err := f.gw.CreateConfig(ctx, acme, ab.ID, "Theme", model.ConfigPayload{})
	if err != nil {
		t.Fatalf("CreateConfig: %v", err)
	}

	def, err := f.gw.RenameDefinition(ctx, acme, ab.ID, v.DefinitionID, "Palette")
	if err != nil {
		t.Fatalf("RenameDefinition: %v", err)
	}
	if def.Name != "Palette" || def.Company != "acme" {
		t.Fatalf("unexpected definition: %+v", def)
	}
}
