package repository

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"

	"brandconfig/internal/apperr"
	"brandconfig/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// testPool connects to TEST_DATABASE_URL and applies the schema. Tests that
// need Postgres are skipped when it is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func seedBrand(t *testing.T, pool *pgxpool.Pool) *model.Brand {
	t.Helper()
	b := &model.Brand{UserID: "user-" + uuid.NewString(), Company: "co-" + uuid.NewString(), Name: "Shop"}
	if err := NewBrandRepo(pool).Create(context.Background(), b); err != nil {
		t.Fatalf("create brand: %v", err)
	}
	return b
}

func TestPgConcurrentCreateVersion(t *testing.T) {
	pool := testPool(t)
	b := seedBrand(t, pool)
	store := NewVersionStore(pool, zerolog.Nop())
	ctx := context.Background()

	const writers = 10
	var wg sync.WaitGroup
	got := make([]int, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := store.CreateVersion(ctx, b.ID, "FeatureFlags", b.Company, model.ConfigPayload{
				FormData: model.Document{"writer": i},
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
	n, err := store.CountDefinitions(ctx, b.ID, b.Company)
	if err != nil || n != 1 {
		t.Fatalf("expected one definition, got %d (%v)", n, err)
	}
}

func TestPgActiveVersionAndRename(t *testing.T) {
	pool := testPool(t)
	b := seedBrand(t, pool)
	store := NewVersionStore(pool, zerolog.Nop())
	ctx := context.Background()

	v1, err := store.CreateVersion(ctx, b.ID, "Flags", b.Company, model.ConfigPayload{FormData: model.Document{"dark": false}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateVersion(ctx, b.ID, "Flags", b.Company, model.ConfigPayload{FormData: model.Document{"dark": true}}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SetActive(ctx, b.ID, "Flags", 3, b.Company); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for missing version, got %v", err)
	}
	p, err := store.SetActive(ctx, b.ID, "Flags", 1, b.Company)
	if err != nil || p.ActiveVersion != 1 {
		t.Fatalf("set active: %v %#v", err, p)
	}

	if _, err := store.UpdateName(ctx, v1.DefinitionID, "Toggles", b.ID, b.Company); err != nil {
		t.Fatal(err)
	}
	vs, err := store.ListVersions(ctx, b.ID, "Toggles", b.Company)
	if err != nil || len(vs) != 2 || vs[0].Version != 2 || vs[0].Name != "Toggles" {
		t.Fatalf("unexpected versions after rename: %v %#v", err, vs)
	}
	if vs[1].FormData["dark"] != false {
		t.Fatalf("form data did not round-trip: %#v", vs[1].FormData)
	}

	v3, err := store.CreateVersionFor(ctx, v1.DefinitionID, b.ID, b.Company, model.ConfigPayload{})
	if err != nil || v3.DefinitionID != v1.DefinitionID || v3.Version != 3 || v3.Name != "Toggles" {
		t.Fatalf("append by id after rename: %v %#v", err, v3)
	}
	if _, err := store.CreateVersionFor(ctx, v1.DefinitionID, b.ID, "other-company", model.ConfigPayload{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("cross-company append must be not found, got %v", err)
	}
	if n, err := store.CountDefinitions(ctx, b.ID, b.Company); err != nil || n != 1 {
		t.Fatalf("expected one definition, got %d (%v)", n, err)
	}

	if err := store.Remove(ctx, v1.DefinitionID, b.ID, "other-company"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("cross-company remove must be not found, got %v", err)
	}
	if err := store.Remove(ctx, v1.DefinitionID, b.ID, b.Company); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetActivePointer(ctx, v1.DefinitionID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("pointer survived remove: %v", err)
	}
}

func TestPgGetOrCreateDefinitionIgnoresFirstCallerCancel(t *testing.T) {
	pool := testPool(t)
	b := seedBrand(t, pool)
	store := NewVersionStore(pool, zerolog.Nop())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	d1, err := store.GetOrCreateDefinition(cancelled, b.ID, "Flags", b.Company)
	if err != nil {
		t.Fatalf("shared lookup failed with the caller's cancellation: %v", err)
	}
	d2, err := store.GetOrCreateDefinition(context.Background(), b.ID, "Flags", b.Company)
	if err != nil || d2.ID != d1.ID {
		t.Fatalf("second caller got %#v (%v), want %s", d2, err, d1.ID)
	}
}
