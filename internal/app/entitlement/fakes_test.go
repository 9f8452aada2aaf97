// internal/app/entitlement/fakes_test.go
package entitlement

import (
	"context"
	"sync"

	membershipstore "github.com/commonward/communitygate/internal/app/store/memberships"
	userstore "github.com/commonward/communitygate/internal/app/store/users"
	"github.com/commonward/communitygate/internal/app/system/memberstatus"
	"github.com/commonward/communitygate/internal/app/system/normalize"
	"github.com/commonward/communitygate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory fakes mirroring the Mongo stores' contracts: same sentinel
// errors, nil-for-missing reads, and state-machine enforcement. Each
// fake has a failures counter that makes the next N calls fail with
// errInjected so retry behavior can be exercised.

type errInjectedType struct{}

func (errInjectedType) Error() string { return "injected store failure" }

var errInjected = errInjectedType{}

type failer struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *failer) tick() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errInjected
	}
	return nil
}

/* ---------------------------- memberships ---------------------------- */

type fakeMembershipStore struct {
	failer
	mu        sync.Mutex
	rows      map[primitive.ObjectID]models.Membership
	assignErr error // returned by AssignHousehold when set
}

func newFakeMembershipStore() *fakeMembershipStore {
	return &fakeMembershipStore{rows: make(map[primitive.ObjectID]models.Membership)}
}

func (s *fakeMembershipStore) Create(_ context.Context, m models.Membership) (models.Membership, error) {
	if err := s.tick(); err != nil {
		return models.Membership{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.TenantID == m.TenantID && r.UserID == m.UserID {
			return models.Membership{}, membershipstore.ErrAlreadyMember
		}
	}
	m.ID = primitive.NewObjectID()
	s.rows[m.ID] = m
	return m, nil
}

func (s *fakeMembershipStore) Get(_ context.Context, tenantID, userID primitive.ObjectID) (*models.Membership, error) {
	if err := s.tick(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.TenantID == tenantID && r.UserID == userID {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (s *fakeMembershipStore) GetByID(_ context.Context, id primitive.ObjectID) (*models.Membership, error) {
	if err := s.tick(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[id]; ok {
		out := r
		return &out, nil
	}
	return nil, nil
}

func (s *fakeMembershipStore) Transition(_ context.Context, id primitive.ObjectID, newStatus string) (*models.Membership, error) {
	if err := s.tick(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, membershipstore.ErrNotFound
	}
	if !memberstatus.CanTransition(r.Status, newStatus) {
		return nil, membershipstore.ErrInvalidTransition
	}
	r.Status = newStatus
	s.rows[id] = r
	out := r
	return &out, nil
}

func (s *fakeMembershipStore) AssignHousehold(_ context.Context, id primitive.ObjectID, householdID *primitive.ObjectID) (*models.Membership, error) {
	if err := s.tick(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assignErr != nil {
		return nil, s.assignErr
	}
	r, ok := s.rows[id]
	if !ok {
		return nil, membershipstore.ErrNotFound
	}
	r.HouseholdID = householdID
	if householdID == nil {
		r.IsHouseholdHead = false
	}
	s.rows[id] = r
	out := r
	return &out, nil
}

func (s *fakeMembershipStore) Remove(_ context.Context, id primitive.ObjectID) error {
	if err := s.tick(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

/* ---------------------------- households ----------------------------- */

type fakeHouseholdStore struct {
	failer
	mu   sync.Mutex
	rows map[primitive.ObjectID]models.Household
}

func newFakeHouseholdStore() *fakeHouseholdStore {
	return &fakeHouseholdStore{rows: make(map[primitive.ObjectID]models.Household)}
}

func (s *fakeHouseholdStore) ResolveOrCreate(_ context.Context, tenantID primitive.ObjectID, name string) (models.Household, error) {
	if err := s.tick(); err != nil {
		return models.Household{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name = normalize.HouseholdName(name)
	for _, r := range s.rows {
		if r.TenantID == tenantID && r.Name == name {
			return r, nil
		}
	}
	h := models.Household{ID: primitive.NewObjectID(), TenantID: tenantID, Name: name}
	s.rows[h.ID] = h
	return h, nil
}

/* ------------------------------- users ------------------------------- */

type fakeUserStore struct {
	failer
	mu   sync.Mutex
	rows map[primitive.ObjectID]models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{rows: make(map[primitive.ObjectID]models.User)}
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if err := s.tick(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email = normalize.Email(email)
	for _, r := range s.rows {
		if r.Email == email {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (s *fakeUserStore) Create(_ context.Context, u models.User) (models.User, error) {
	if err := s.tick(); err != nil {
		return models.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Email = normalize.Email(u.Email)
	for _, r := range s.rows {
		if r.Email == u.Email {
			return models.User{}, userstore.ErrDuplicateEmail
		}
	}
	u.ID = primitive.NewObjectID()
	s.rows[u.ID] = u
	return u, nil
}

/* ------------------------------ features ----------------------------- */

type overrideKey struct {
	tenant primitive.ObjectID
	role   string // "" means tenant-scoped
	key    string
}

type fakeFeatureStore struct {
	failer
	mu        sync.Mutex
	defaults  map[string]bool
	overrides map[overrideKey]bool
}

func newFakeFeatureStore() *fakeFeatureStore {
	return &fakeFeatureStore{
		defaults:  make(map[string]bool),
		overrides: make(map[overrideKey]bool),
	}
}

func (s *fakeFeatureStore) Definition(_ context.Context, key string) (*models.FeatureDefinition, error) {
	if err := s.tick(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.defaults[key]; ok {
		return &models.FeatureDefinition{Key: key, DefaultEnabled: v}, nil
	}
	return nil, nil
}

func (s *fakeFeatureStore) TenantOverride(_ context.Context, tenantID primitive.ObjectID, key string) (*models.FeatureOverride, error) {
	if err := s.tick(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.overrides[overrideKey{tenant: tenantID, key: key}]; ok {
		return &models.FeatureOverride{TenantID: tenantID, Key: key, Enabled: v}, nil
	}
	return nil, nil
}

func (s *fakeFeatureStore) RoleOverride(_ context.Context, tenantID primitive.ObjectID, role, key string) (*models.FeatureOverride, error) {
	if err := s.tick(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.overrides[overrideKey{tenant: tenantID, role: role, key: key}]; ok {
		return &models.FeatureOverride{TenantID: tenantID, Role: &role, Key: key, Enabled: v}, nil
	}
	return nil, nil
}

func (s *fakeFeatureStore) setDefault(key string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[key] = enabled
}

func (s *fakeFeatureStore) setTenantOverride(tenantID primitive.ObjectID, key string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[overrideKey{tenant: tenantID, key: key}] = enabled
}

func (s *fakeFeatureStore) setRoleOverride(tenantID primitive.ObjectID, role, key string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[overrideKey{tenant: tenantID, role: role, key: key}] = enabled
}

func (s *fakeFeatureStore) clearRoleOverride(tenantID primitive.ObjectID, role, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, overrideKey{tenant: tenantID, role: role, key: key})
}

func (s *fakeFeatureStore) clearTenantOverride(tenantID primitive.ObjectID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, overrideKey{tenant: tenantID, key: key})
}

/* ---------------------------- subscriptions -------------------------- */

type fakeSubscriptionStore struct {
	failer
	mu   sync.Mutex
	rows map[primitive.ObjectID]models.SubscriptionState
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{rows: make(map[primitive.ObjectID]models.SubscriptionState)}
}

func (s *fakeSubscriptionStore) Get(_ context.Context, tenantID primitive.ObjectID) (*models.SubscriptionState, error) {
	if err := s.tick(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[tenantID]; ok {
		out := r
		return &out, nil
	}
	return nil, nil
}

func (s *fakeSubscriptionStore) set(sub models.SubscriptionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[sub.TenantID] = sub
}

/* ------------------------------ tenants ------------------------------ */

type fakeTenantCounter struct {
	failer
	mu     sync.Mutex
	counts map[primitive.ObjectID]int64
}

func newFakeTenantCounter() *fakeTenantCounter {
	return &fakeTenantCounter{counts: make(map[primitive.ObjectID]int64)}
}

func (s *fakeTenantCounter) CountByOwner(_ context.Context, ownerUserID primitive.ObjectID) (int64, error) {
	if err := s.tick(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[ownerUserID], nil
}

func (s *fakeTenantCounter) setCount(ownerUserID primitive.ObjectID, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[ownerUserID] = n
}

/* ------------------------------ provider ----------------------------- */

// flakyProvider wraps another provider and fails its first N calls.
type flakyProvider struct {
	failer
	inner IdentityProvider
}

func (p *flakyProvider) FindByEmail(ctx context.Context, email string) (*ProviderUser, error) {
	if err := p.tick(); err != nil {
		return nil, err
	}
	return p.inner.FindByEmail(ctx, email)
}

func (p *flakyProvider) ProvisionAndInvite(ctx context.Context, email string, meta ProvisionMetadata) (*ProviderUser, error) {
	if err := p.tick(); err != nil {
		return nil, err
	}
	return p.inner.ProvisionAndInvite(ctx, email, meta)
}
