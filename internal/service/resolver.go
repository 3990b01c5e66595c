package service

import (
	"context"
	"errors"

	"brandconfig/internal/apperr"
	"brandconfig/internal/model"
	"brandconfig/internal/repository"
)

// ActiveVersionResolver answers "what is the current value" of a config.
type ActiveVersionResolver interface {
	// Resolve returns the version named by the active pointer, or the latest
	// version when no pointer is set. A config without versions is not found.
	Resolve(ctx context.Context, brandID, name, company string) (*model.ConfigVersion, error)
	ResolveDefinition(ctx context.Context, def *model.ConfigDefinition) (*model.ConfigVersion, error)
}

type activeVersionResolver struct {
	store repository.VersionStore
}

func NewActiveVersionResolver(store repository.VersionStore) ActiveVersionResolver {
	return &activeVersionResolver{store: store}
}

func (r *activeVersionResolver) Resolve(ctx context.Context, brandID, name, company string) (*model.ConfigVersion, error) {
	def, err := r.store.FindDefinition(ctx, brandID, name, company)
	if err != nil {
		return nil, err
	}
	return r.ResolveDefinition(ctx, def)
}

func (r *activeVersionResolver) ResolveDefinition(ctx context.Context, def *model.ConfigDefinition) (*model.ConfigVersion, error) {
	p, err := r.store.GetActivePointer(ctx, def.ID)
	switch {
	case err == nil:
		return r.store.GetVersionByNumber(ctx, def.ID, p.ActiveVersion)
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}
	return r.store.LatestVersion(ctx, def.ID)
}
