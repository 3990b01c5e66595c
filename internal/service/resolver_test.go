package service

import (
	"context"
	"testing"

	"brandconfig/internal/apperr"
	"brandconfig/internal/model"
	"brandconfig/internal/repository/memstore"
)

func TestResolverFallsBackToLatest(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	b := &model.Brand{UserID: "u1", Company: "acme", Name: "Shop"}
	if err := store.Brands().Create(ctx, b); err != nil {
		t.Fatal(err)
	}
	r := NewActiveVersionResolver(store.Versions())

	_, err := r.Resolve(ctx, b.ID, "Theme", "acme")
	mustKind(t, err, apperr.KindNotFound)
	if _, err := store.Versions().GetOrCreateDefinition(ctx, b.ID, "Theme", "acme"); err != nil {
		t.Fatal(err)
	}
	_, err = r.Resolve(ctx, b.ID, "Theme", "acme")
	mustKind(t, err, apperr.KindNotFound)

	for _, color := range []string{"red", "blue", "green"} {
		if _, err := store.Versions().CreateVersion(ctx, b.ID, "Theme", "acme", model.ConfigPayload{
			FormData: model.Document{"color": color},
		}); err != nil {
			t.Fatal(err)
		}
	}
	v, err := r.Resolve(ctx, b.ID, "Theme", "acme")
	if err != nil {
		t.Fatal(err)
	}
	if v.Version != 3 || v.FormData["color"] != "green" {
		t.Fatalf("latest = %+v", v)
	}

	if _, err := store.Versions().SetActive(ctx, b.ID, "Theme", 2, "acme"); err != nil {
		t.Fatal(err)
	}
	v, err = r.Resolve(ctx, b.ID, "Theme", "acme")
	if err != nil {
		t.Fatal(err)
	}
	if v.Version != 2 || v.FormData["color"] != "blue" {
		t.Fatalf("pinned = %+v", v)
	}

	_, err = r.Resolve(ctx, b.ID, "Theme", "globex")
	mustKind(t, err, apperr.KindNotFound)
}
