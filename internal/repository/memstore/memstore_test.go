package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"brandconfig/internal/apperr"
	"brandconfig/internal/model"
)

func newBrand(t *testing.T, s *Store, user, company, name string) *model.Brand {
	t.Helper()
	b := &model.Brand{UserID: user, Company: company, Name: name}
	if err := s.Brands().Create(context.Background(), b); err != nil {
		t.Fatalf("create brand: %v", err)
	}
	return b
}

func TestConcurrentCreateVersionIsMonotonic(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := newBrand(t, s, "u1", "Acme", "Shop")

	const writers = 50
	var wg sync.WaitGroup
	got := make([]int, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.Versions().CreateVersion(ctx, b.ID, "FeatureFlags", "Acme", model.ConfigPayload{
				FormData: model.Document{"i": i},
			})
			if err != nil {
				t.Errorf("create version: %v", err)
				return
			}
			got[i] = v.Version
		}(i)
	}
	wg.Wait()

	sort.Ints(got)
	for i, v := range got {
		if v != i+1 {
			t.Fatalf("versions not contiguous: %v", got)
		}
	}

	defs, _ := s.Versions().ListDefinitions(ctx, b.ID, "Acme")
	if len(defs) != 1 {
		t.Fatalf("expected exactly one definition, got %d", len(defs))
	}
	if defs[0].LatestVersion != writers {
		t.Fatalf("latest version = %d, want %d", defs[0].LatestVersion, writers)
	}
}

func TestConcurrentGetOrCreateDefinitionYieldsOneRow(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := newBrand(t, s, "u1", "Acme", "Shop")

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := s.Versions().GetOrCreateDefinition(ctx, b.ID, "Theme", "Acme")
			if err != nil {
				t.Errorf("get or create: %v", err)
				return
			}
			ids[i] = d.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("definitions diverged: %v", ids)
		}
	}
}

func TestUpdateNameNoopAndConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := newBrand(t, s, "u1", "Acme", "Shop")
	a, _ := s.Versions().GetOrCreateDefinition(ctx, b.ID, "A", "Acme")
	if _, err := s.Versions().GetOrCreateDefinition(ctx, b.ID, "B", "Acme"); err != nil {
		t.Fatal(err)
	}

	same, err := s.Versions().UpdateName(ctx, a.ID, "  A ", b.ID, "Acme")
	if err != nil {
		t.Fatalf("no-op rename failed: %v", err)
	}
	if same.Name != "A" || !same.UpdatedAt.Equal(a.UpdatedAt) {
		t.Fatalf("no-op rename changed the row: %#v", same)
	}

	_, err = s.Versions().UpdateName(ctx, a.ID, "B", b.ID, "Acme")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	_, err = s.Versions().UpdateName(ctx, a.ID, "C", b.ID, "Other")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found across companies, got %v", err)
	}
}

func TestRenameCarriesVersionsAndPointer(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := newBrand(t, s, "u1", "Acme", "Shop")
	v1, _ := s.Versions().CreateVersion(ctx, b.ID, "Flags", "Acme", model.ConfigPayload{})
	if _, err := s.Versions().SetActive(ctx, b.ID, "Flags", 1, "Acme"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Versions().UpdateName(ctx, v1.DefinitionID, "Toggles", b.ID, "Acme"); err != nil {
		t.Fatal(err)
	}

	vs, err := s.Versions().ListVersions(ctx, b.ID, "Toggles", "Acme")
	if err != nil || len(vs) != 1 || vs[0].Name != "Toggles" {
		t.Fatalf("versions did not follow rename: %v %#v", err, vs)
	}
	p, err := s.Versions().GetActivePointer(ctx, v1.DefinitionID)
	if err != nil || p.DefinitionName != "Toggles" {
		t.Fatalf("pointer did not follow rename: %v %#v", err, p)
	}
}

func TestSetActiveRequiresExistingVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := newBrand(t, s, "u1", "Acme", "Shop")
	if _, err := s.Versions().CreateVersion(ctx, b.ID, "Flags", "Acme", model.ConfigPayload{}); err != nil {
		t.Fatal(err)
	}
	_, err := s.Versions().SetActive(ctx, b.ID, "Flags", 7, "Acme")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = s.Versions().SetActive(ctx, b.ID, "Flags", 0, "Acme")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteBrandCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := newBrand(t, s, "u1", "Acme", "Shop")
	v, _ := s.Versions().CreateVersion(ctx, b.ID, "Flags", "Acme", model.ConfigPayload{})

	if err := s.Brands().Delete(ctx, "Other", b.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("cross-company delete must be not found, got %v", err)
	}
	if err := s.Brands().Delete(ctx, "Acme", b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Versions().LatestVersion(ctx, v.DefinitionID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("versions survived brand delete: %v", err)
	}
}

func TestDuplicateBrandNameConflicts(t *testing.T) {
	s := New()
	newBrand(t, s, "u1", "Acme", "Shop")
	err := s.Brands().Create(context.Background(), &model.Brand{UserID: "u1", Company: "Acme", Name: "Shop"})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateVersionForFollowsRename(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := newBrand(t, s, "u1", "Acme", "Shop")
	v1, err := s.Versions().CreateVersion(ctx, b.ID, "Theme", "Acme", model.ConfigPayload{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Versions().UpdateName(ctx, v1.DefinitionID, "Palette", b.ID, "Acme"); err != nil {
		t.Fatal(err)
	}

	v2, err := s.Versions().CreateVersionFor(ctx, v1.DefinitionID, b.ID, "Acme", model.ConfigPayload{})
	if err != nil {
		t.Fatalf("CreateVersionFor: %v", err)
	}
	if v2.DefinitionID != v1.DefinitionID || v2.Version != 2 || v2.Name != "Palette" {
		t.Fatalf("unexpected version: %+v", v2)
	}
	if n, _ := s.Versions().CountDefinitions(ctx, b.ID, "Acme"); n != 1 {
		t.Fatalf("expected one definition, got %d", n)
	}

	_, err = s.Versions().CreateVersionFor(ctx, v1.DefinitionID, b.ID, "Other", model.ConfigPayload{})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("cross-company append must be not found, got %v", err)
	}
	_, err = s.Versions().CreateVersionFor(ctx, "missing", b.ID, "Acme", model.ConfigPayload{})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoredFormDataIsNotShared(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := newBrand(t, s, "u1", "Acme", "Shop")
	in := model.Document{"colors": map[string]any{"primary": "#000"}, "tags": []any{"a"}}
	v, err := s.Versions().CreateVersion(ctx, b.ID, "Theme", "Acme", model.ConfigPayload{FormData: in})
	if err != nil {
		t.Fatal(err)
	}

	in["colors"].(map[string]any)["primary"] = "#f00"
	v.FormData["colors"].(map[string]any)["primary"] = "#0f0"
	v.FormData["tags"].([]any)[0] = "b"

	got, err := s.Versions().GetVersion(ctx, b.ID, "Acme", v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FormData["colors"].(map[string]any)["primary"] != "#000" || got.FormData["tags"].([]any)[0] != "a" {
		t.Fatalf("stored form data was mutated: %v", got.FormData)
	}
}

func TestRenameToNameUsedByAnotherCompany(t *testing.T) {
	s := New()
	ctx := context.Background()
	acme := newBrand(t, s, "u1", "acme", "Shop")
	globex := newBrand(t, s, "u2", "globex", "Shop")
	if _, err := s.Versions().CreateVersion(ctx, globex.ID, "Palette", "globex", model.ConfigPayload{}); err != nil {
		t.Fatal(err)
	}
	v, err := s.Versions().CreateVersion(ctx, acme.ID, "Theme", "acme", model.ConfigPayload{})
	if err != nil {
		t.Fatal(err)
	}

	d, err := s.Versions().UpdateName(ctx, v.DefinitionID, "Palette", acme.ID, "acme")
	if err != nil {
		t.Fatalf("rename across tenants should not conflict: %v", err)
	}
	if d.Name != "Palette" || d.Company != "acme" {
		t.Fatalf("unexpected definition: %+v", d)
	}
}
