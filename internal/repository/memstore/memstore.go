// Package memstore is an in-process implementation of the repository
// interfaces. It backs STORE_DRIVER=memory and the service and handler tests,
// and mirrors the Postgres semantics: the same uniqueness rules, cascades and
// error kinds.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"brandconfig/internal/apperr"
	"brandconfig/internal/model"
	"brandconfig/internal/repository"

	"github.com/google/uuid"
)

// Store holds every table behind one mutex.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	brands     map[string]*model.Brand
	brandOrder []string
	defs       map[string]*model.ConfigDefinition
	versions   map[string][]*model.ConfigVersion // definition id -> ascending
	pointers   map[string]*model.ActiveVersionPointer
	subs       map[string]*model.Subscription
	revoked    map[string]time.Time
	keys       map[string]*model.APIKey // key hash -> key
}

func New() *Store {
	return &Store{
		now:      time.Now,
		brands:   map[string]*model.Brand{},
		defs:     map[string]*model.ConfigDefinition{},
		versions: map[string][]*model.ConfigVersion{},
		pointers: map[string]*model.ActiveVersionPointer{},
		subs:     map[string]*model.Subscription{},
		revoked:  map[string]time.Time{},
		keys:     map[string]*model.APIKey{},
	}
}

// SetClock overrides the time source. Used by tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Brands() repository.BrandRepository               { return brandView{s} }
func (s *Store) Versions() repository.VersionStore                { return versionView{s} }
func (s *Store) Subscriptions() repository.SubscriptionRepository { return subscriptionView{s} }
func (s *Store) Tokens() repository.TokenRepository               { return tokenView{s} }
func (s *Store) APIKeys() repository.APIKeyRepository             { return apiKeyView{s} }

type brandView struct{ s *Store }

func (v brandView) Create(_ context.Context, b *model.Brand) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.brandOrder {
		if e := s.brands[id]; e.UserID == b.UserID && e.Name == b.Name {
			return apperr.Conflict("brand %q already exists", b.Name)
		}
	}
	now := s.now()
	b.ID = uuid.NewString()
	b.CreatedAt, b.UpdatedAt = now, now
	cp := *b
	s.brands[b.ID] = &cp
	s.brandOrder = append(s.brandOrder, b.ID)
	return nil
}

func (v brandView) GetByID(_ context.Context, company, brandID string) (*model.Brand, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.brands[brandID]
	if !ok || b.Company != company {
		return nil, apperr.NotFound("brand not found")
	}
	cp := *b
	return &cp, nil
}

func (v brandView) GetByName(_ context.Context, company, name string) (*model.Brand, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.brandOrder {
		if b := s.brands[id]; b.Company == company && b.Name == name {
			cp := *b
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("brand %q not found", name)
}

func (s *Store) brandsWhere(match func(*model.Brand) bool) []model.Brand {
	out := []model.Brand{}
	for _, id := range s.brandOrder {
		if b := s.brands[id]; match(b) {
			out = append(out, *b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (v brandView) ListByCompany(_ context.Context, company string) ([]model.Brand, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.brandsWhere(func(b *model.Brand) bool { return b.Company == company }), nil
}

func (v brandView) ListByUser(_ context.Context, userID string) ([]model.Brand, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.brandsWhere(func(b *model.Brand) bool { return b.UserID == userID }), nil
}

func (v brandView) CountByUser(_ context.Context, userID string) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return len(v.s.brandsWhere(func(b *model.Brand) bool { return b.UserID == userID })), nil
}

func (v brandView) ListSummaries(_ context.Context, company string) ([]model.BrandSummary, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.BrandSummary{}
	for _, b := range s.brandsWhere(func(b *model.Brand) bool { return b.Company == company }) {
		out = append(out, model.BrandSummary{Brand: b, ConfigCount: s.countDefs(b.ID, company)})
	}
	return out, nil
}

func (v brandView) Delete(_ context.Context, company, brandID string) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.brands[brandID]
	if !ok || b.Company != company {
		return apperr.NotFound("brand not found")
	}
	for id, d := range s.defs {
		if d.BrandID == brandID {
			s.dropDef(id)
		}
	}
	delete(s.brands, brandID)
	for i, id := range s.brandOrder {
		if id == brandID {
			s.brandOrder = append(s.brandOrder[:i], s.brandOrder[i+1:]...)
			break
		}
	}
	return nil
}

type versionView struct{ s *Store }

func (s *Store) countDefs(brandID, company string) int {
	n := 0
	for _, d := range s.defs {
		if d.BrandID == brandID && d.Company == company {
			n++
		}
	}
	return n
}

func (s *Store) dropDef(id string) {
	delete(s.defs, id)
	delete(s.versions, id)
	delete(s.pointers, id)
}

func (s *Store) defByName(brandID, name, company string) *model.ConfigDefinition {
	for _, d := range s.defs {
		if d.BrandID == brandID && d.Name == name && d.Company == company {
			return d
		}
	}
	return nil
}

func (s *Store) getOrCreateDef(brandID, name, company string) (*model.ConfigDefinition, error) {
	if d := s.defByName(brandID, name, company); d != nil {
		return d, nil
	}
	b, ok := s.brands[brandID]
	if !ok || b.Company != company {
		return nil, apperr.NotFound("brand not found")
	}
	now := s.now()
	d := &model.ConfigDefinition{
		ID:        uuid.NewString(),
		BrandID:   brandID,
		Company:   company,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.defs[d.ID] = d
	return d, nil
}

func (s *Store) findDef(brandID, nameOrID, company string) (*model.ConfigDefinition, error) {
	key := strings.TrimSpace(nameOrID)
	if d, ok := s.defs[key]; ok && d.BrandID == brandID && d.Company == company {
		return d, nil
	}
	if d := s.defByName(brandID, key, company); d != nil {
		return d, nil
	}
	return nil, apperr.NotFound("config %q not found", key)
}

func copyVersion(v *model.ConfigVersion, d *model.ConfigDefinition) *model.ConfigVersion {
	cp := *v
	cp.Name, cp.Company = d.Name, d.Company
	cp.FormData = v.FormData.Clone()
	if cp.FormData == nil {
		cp.FormData = model.Document{}
	}
	cp.Layout = cloneRaw(v.Layout)
	cp.Schema = cloneRaw(v.Schema)
	cp.UISchema = cloneRaw(v.UISchema)
	return &cp
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func (v versionView) GetOrCreateDefinition(_ context.Context, brandID, name, company string) (*model.ConfigDefinition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("config name is required")
	}
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.getOrCreateDef(brandID, name, company)
	if err != nil {
		return nil, err
	}
	cp := *d
	return &cp, nil
}

func (v versionView) FindDefinition(_ context.Context, brandID, nameOrID, company string) (*model.ConfigDefinition, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.findDef(brandID, nameOrID, company)
	if err != nil {
		return nil, err
	}
	cp := *d
	return &cp, nil
}

func (v versionView) ListDefinitions(_ context.Context, brandID, company string) ([]model.DefinitionSummary, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.DefinitionSummary{}
	for _, d := range s.defs {
		if d.BrandID != brandID || d.Company != company {
			continue
		}
		ds := model.DefinitionSummary{ConfigDefinition: *d}
		if vs := s.versions[d.ID]; len(vs) > 0 {
			ds.LatestVersion = vs[len(vs)-1].Version
		}
		if p, ok := s.pointers[d.ID]; ok {
			active := p.ActiveVersion
			ds.ActiveVersion = &active
		}
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v versionView) CountDefinitions(_ context.Context, brandID, company string) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.countDefs(brandID, company), nil
}

func (v versionView) CreateVersion(_ context.Context, brandID, name, company string, p model.ConfigPayload) (*model.ConfigVersion, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("config name is required")
	}
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.getOrCreateDef(brandID, name, company)
	if err != nil {
		return nil, err
	}
	return s.appendVersion(d, p), nil
}

func (v versionView) CreateVersionFor(_ context.Context, definitionID, brandID, company string, p model.ConfigPayload) (*model.ConfigVersion, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[definitionID]
	if !ok || d.BrandID != brandID || d.Company != company {
		return nil, apperr.NotFound("config not found")
	}
	return s.appendVersion(d, p), nil
}

// appendVersion stores version MAX+1 of d. Callers hold s.mu.
func (s *Store) appendVersion(d *model.ConfigDefinition, p model.ConfigPayload) *model.ConfigVersion {
	next := 1
	if vs := s.versions[d.ID]; len(vs) > 0 {
		next = vs[len(vs)-1].Version + 1
	}
	cv := &model.ConfigVersion{
		ID:           uuid.NewString(),
		BrandID:      d.BrandID,
		DefinitionID: d.ID,
		Version:      next,
		FormData:     p.FormData,
		Layout:       p.Layout,
		Schema:       p.Schema,
		UISchema:     p.UISchema,
		Description:  p.Description,
		CreatedBy:    p.CreatedBy,
		CreatedAt:    s.now(),
	}
	cv = copyVersion(cv, d)
	s.versions[d.ID] = append(s.versions[d.ID], cv)
	return copyVersion(cv, d)
}

func (v versionView) GetVersion(_ context.Context, brandID, company, versionID string) (*model.ConfigVersion, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for defID, vs := range s.versions {
		d := s.defs[defID]
		if d.BrandID != brandID || d.Company != company {
			continue
		}
		for _, cv := range vs {
			if cv.ID == versionID {
				return copyVersion(cv, d), nil
			}
		}
	}
	return nil, apperr.NotFound("config not found")
}

func (v versionView) GetVersionByNumber(_ context.Context, definitionID string, version int) (*model.ConfigVersion, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[definitionID]
	if !ok {
		return nil, apperr.NotFound("config not found")
	}
	for _, cv := range s.versions[definitionID] {
		if cv.Version == version {
			return copyVersion(cv, d), nil
		}
	}
	return nil, apperr.NotFound("version %d not found", version)
}

func (v versionView) LatestVersion(_ context.Context, definitionID string) (*model.ConfigVersion, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[definitionID]
	if !ok {
		return nil, apperr.NotFound("config not found")
	}
	vs := s.versions[definitionID]
	if len(vs) == 0 {
		return nil, apperr.NotFound("config has no versions")
	}
	return copyVersion(vs[len(vs)-1], d), nil
}

func (v versionView) ListVersions(_ context.Context, brandID, nameOrID, company string) ([]model.ConfigVersion, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.findDef(brandID, nameOrID, company)
	if err != nil {
		return nil, err
	}
	vs := s.versions[d.ID]
	out := make([]model.ConfigVersion, 0, len(vs))
	for i := len(vs) - 1; i >= 0; i-- {
		out = append(out, *copyVersion(vs[i], d))
	}
	return out, nil
}

func (v versionView) UpdateName(_ context.Context, definitionID, newName, brandID, company string) (*model.ConfigDefinition, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, apperr.Validation("config name is required")
	}
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[definitionID]
	if !ok || d.BrandID != brandID || d.Company != company {
		return nil, apperr.NotFound("config not found")
	}
	if d.Name == newName {
		cp := *d
		return &cp, nil
	}
	if other := s.defByName(brandID, newName, company); other != nil && other.ID != d.ID {
		return nil, apperr.Conflict("a config named %q already exists", newName)
	}
	d.Name = newName
	d.UpdatedAt = s.now()
	cp := *d
	return &cp, nil
}

func (v versionView) SetActive(_ context.Context, brandID, name string, version int, company string) (*model.ActiveVersionPointer, error) {
	if version <= 0 {
		return nil, apperr.Validation("version must be a positive integer")
	}
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.findDef(brandID, name, company)
	if err != nil {
		return nil, err
	}
	found := false
	for _, cv := range s.versions[d.ID] {
		if cv.Version == version {
			found = true
			break
		}
	}
	if !found {
		return nil, apperr.NotFound("version %d of %q not found", version, d.Name)
	}
	p, ok := s.pointers[d.ID]
	if !ok {
		p = &model.ActiveVersionPointer{
			ID:           uuid.NewString(),
			BrandID:      d.BrandID,
			DefinitionID: d.ID,
			Company:      d.Company,
		}
		s.pointers[d.ID] = p
	}
	p.ActiveVersion = version
	p.UpdatedAt = s.now()
	cp := *p
	cp.DefinitionName = d.Name
	return &cp, nil
}

func (v versionView) GetActivePointer(_ context.Context, definitionID string) (*model.ActiveVersionPointer, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pointers[definitionID]
	if !ok {
		return nil, apperr.NotFound("no active version")
	}
	cp := *p
	cp.DefinitionName = s.defs[definitionID].Name
	return &cp, nil
}

func (v versionView) Remove(_ context.Context, definitionID, brandID, company string) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[definitionID]
	if !ok || d.BrandID != brandID || d.Company != company {
		return apperr.NotFound("config not found")
	}
	s.dropDef(definitionID)
	return nil
}

type subscriptionView struct{ s *Store }

func (v subscriptionView) Get(_ context.Context, userID string) (*model.Subscription, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok {
		return nil, apperr.NotFound("no subscription for user")
	}
	cp := *sub
	return &cp, nil
}

func (v subscriptionView) GetOrCreate(_ context.Context, def model.Subscription) (*model.Subscription, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[def.UserID]
	if !ok {
		now := s.now()
		def.CreatedAt, def.UpdatedAt = now, now
		sub = &def
		s.subs[def.UserID] = sub
	}
	cp := *sub
	return &cp, nil
}

func (v subscriptionView) FindByBillingCustomer(_ context.Context, customerID string) (*model.Subscription, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.BillingCustomerID != nil && *sub.BillingCustomerID == customerID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("no subscription for billing customer")
}

func (v subscriptionView) Upsert(_ context.Context, in *model.Subscription) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cur, ok := s.subs[in.UserID]
	if !ok {
		cur = &model.Subscription{UserID: in.UserID, CreatedAt: now}
		s.subs[in.UserID] = cur
	}
	cur.Tier = in.Tier
	cur.Status = in.Status
	cur.MaxBrands = in.MaxBrands
	cur.MaxConfigsPerBrand = in.MaxConfigsPerBrand
	if in.BillingCustomerID != nil {
		cur.BillingCustomerID = in.BillingCustomerID
	}
	if in.BillingSubscriptionID != nil {
		cur.BillingSubscriptionID = in.BillingSubscriptionID
	}
	cur.CurrentPeriodEnd = in.CurrentPeriodEnd
	cur.UpdatedAt = now
	in.CreatedAt, in.UpdatedAt = cur.CreatedAt, cur.UpdatedAt
	return nil
}

func (v subscriptionView) DowngradeToFree(_ context.Context, userID string, maxBrands, maxConfigsPerBrand int) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.subs[userID]
	if !ok {
		return apperr.NotFound("no subscription for user")
	}
	cur.Tier = model.TierFree
	cur.Status = model.StatusActive
	cur.MaxBrands = maxBrands
	cur.MaxConfigsPerBrand = maxConfigsPerBrand
	cur.BillingCustomerID = nil
	cur.BillingSubscriptionID = nil
	cur.CurrentPeriodEnd = nil
	cur.UpdatedAt = s.now()
	return nil
}

type tokenView struct{ s *Store }

func (v tokenView) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if cur, ok := v.s.revoked[jti]; !ok || expiresAt.After(cur) {
		v.s.revoked[jti] = expiresAt
	}
	return nil
}

func (v tokenView) IsRevoked(_ context.Context, jti string) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	_, ok := v.s.revoked[jti]
	return ok, nil
}

func (v tokenView) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var n int64
	for jti, exp := range v.s.revoked {
		if exp.Before(now) {
			delete(v.s.revoked, jti)
			n++
		}
	}
	return n, nil
}

type apiKeyView struct{ s *Store }

func (v apiKeyView) Create(_ context.Context, k *model.APIKey) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.keys[k.KeyHash]; ok {
		return apperr.Conflict("api key already exists")
	}
	k.ID = uuid.NewString()
	k.CreatedAt = v.s.now()
	cp := *k
	v.s.keys[k.KeyHash] = &cp
	return nil
}

func (v apiKeyView) FindByHash(_ context.Context, keyHash string) (*model.APIKey, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	k, ok := v.s.keys[keyHash]
	if !ok {
		return nil, apperr.NotFound("api key not found")
	}
	cp := *k
	return &cp, nil
}

func (v apiKeyView) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var n int64
	for h, k := range v.s.keys {
		if !k.Usable(now) {
			delete(v.s.keys, h)
			n++
		}
	}
	return n, nil
}
