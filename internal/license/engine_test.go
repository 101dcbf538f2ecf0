package license_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "keygate/internal/errors"
	"keygate/internal/infrastructure"
	"keygate/internal/license"
	"keygate/internal/lock"
	"keygate/internal/provider"
)

var fixedNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

// fakeRepo is an in-memory ProfileRepository mirroring the conditional
// update semantics of the postgres implementation.
type fakeRepo struct {
	mu       sync.Mutex
	profiles map[string]*license.Profile

	setKeyErr   error
	activateErr error
	consumeErr  error
	markErr     error

	// failActivateOnce makes the first ActivatePlan report a lost race.
	failActivateOnce bool

	activateCalls int
	consumeCalls  int
}

func newFakeRepo(profiles ...*license.Profile) *fakeRepo {
	r := &fakeRepo{profiles: make(map[string]*license.Profile)}
	for _, p := range profiles {
		cp := *p
		r.profiles[p.ID] = &cp
	}
	return r
}

func (r *fakeRepo) Get(_ context.Context, userID string) (*license.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, apperrors.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) SetLicenseKey(_ context.Context, userID, key string) error {
	if r.setKeyErr != nil {
		return r.setKeyErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return apperrors.ErrProfileNotFound
	}
	p.LicenseKey = &key
	p.PlanStatus = license.PlanInactive
	return nil
}

func (r *fakeRepo) ActivatePlan(_ context.Context, userID, planName string, expiresAt time.Time, prevExpiresAt *time.Time) error {
	r.activateCalls++
	if r.activateErr != nil {
		return r.activateErr
	}
	if r.failActivateOnce {
		r.failActivateOnce = false
		return apperrors.ErrConcurrentUpdate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return apperrors.ErrProfileNotFound
	}
	if !timePtrEqual(p.PlanExpiresAt, prevExpiresAt) {
		return apperrors.ErrConcurrentUpdate
	}
	p.PlanName = &planName
	p.PlanStatus = license.PlanActive
	p.PlanExpiresAt = &expiresAt
	return nil
}

func (r *fakeRepo) ConsumeHWIDReset(_ context.Context, userID string, at time.Time) (*int, error) {
	r.consumeCalls++
	if r.consumeErr != nil {
		return nil, r.consumeErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, apperrors.ErrProfileNotFound
	}
	if p.HWIDResetsRemaining != nil {
		if *p.HWIDResetsRemaining <= 0 {
			return nil, apperrors.ErrQuotaExhausted
		}
		n := *p.HWIDResetsRemaining - 1
		p.HWIDResetsRemaining = &n
	}
	p.LastHWIDResetAt = &at
	if p.HWIDResetsRemaining == nil {
		return nil, nil
	}
	cp := *p.HWIDResetsRemaining
	return &cp, nil
}

func (r *fakeRepo) MarkExpired(_ context.Context, userID string, observedExpiry time.Time) error {
	if r.markErr != nil {
		return r.markErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil
	}
	if p.PlanStatus == license.PlanActive && timePtrEqual(p.PlanExpiresAt, &observedExpiry) {
		p.PlanStatus = license.PlanExpired
	}
	return nil
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// fakeProvider records calls and fails per operation on demand.
type fakeProvider struct {
	mu sync.Mutex

	createErr error
	patchErr  error
	resetErr  error
	deleteErr error

	// failPatchOnKey fails PatchExpiry only for this key, used to trip the
	// provisioning saga after credential creation succeeded.
	failPatchOnKey string

	created  []string
	patched  map[string]time.Time
	deleted  []string
	resets   []string
	forces   []bool
	nextKeys []string
}

func newFakeProvider(keys ...string) *fakeProvider {
	return &fakeProvider{patched: make(map[string]time.Time), nextKeys: keys}
}

func (f *fakeProvider) CreateCredential(_ context.Context, note string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	key := fmt.Sprintf("KG-GEN-%04d", len(f.created)+1)
	if len(f.nextKeys) > 0 {
		key = f.nextKeys[0]
		f.nextKeys = f.nextKeys[1:]
	}
	f.created = append(f.created, note)
	return key, nil
}

func (f *fakeProvider) PatchExpiry(_ context.Context, key string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patchErr != nil {
		return f.patchErr
	}
	if f.failPatchOnKey != "" && f.failPatchOnKey == key {
		return apperrors.NewProviderError("patch-expiry", "credential rejected", nil)
	}
	f.patched[key] = expiresAt
	return nil
}

func (f *fakeProvider) DeleteCredential(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeProvider) ResetHWID(_ context.Context, key string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resets = append(f.resets, key)
	f.forces = append(f.forces, force)
	return nil
}

func (f *fakeProvider) GetCredential(_ context.Context, key string) (*provider.Credential, error) {
	return &provider.Credential{Key: key}, nil
}

var _ provider.Client = (*fakeProvider)(nil)

func strPtr(s string) *string       { return &s }
func intPtr(n int) *int             { return &n }
func timePtr(t time.Time) *time.Time { return &t }

type engineFixture struct {
	engine   *license.Engine
	repo     *fakeRepo
	provider *fakeProvider
}

func newEngine(t *testing.T, repo *fakeRepo, prov *fakeProvider) *engineFixture {
	t.Helper()
	e := license.NewEngine(
		repo, prov, lock.NewKeyedMutex(),
		infrastructure.GetLogger(), nil, 24*time.Hour,
	)
	e.SetNowFunc(func() time.Time { return fixedNow })
	return &engineFixture{engine: e, repo: repo, provider: prov}
}

func provisionedProfile(id string) *license.Profile {
	return &license.Profile{
		ID:                  id,
		LicenseKey:          strPtr("KG-EXISTING-KEY1"),
		PlanStatus:          license.PlanInactive,
		HWIDResetsRemaining: intPtr(3),
		CreatedAt:           fixedNow.Add(-30 * 24 * time.Hour),
		UpdatedAt:           fixedNow.Add(-30 * 24 * time.Hour),
	}
}

func TestEngine_Provision(t *testing.T) {
	ctx := context.Background()

	t.Run("new user gets key with neutralized expiry", func(t *testing.T) {
		fx := newEngine(t, newFakeRepo(&license.Profile{ID: "alice", PlanStatus: license.PlanInactive}), newFakeProvider("KG-NEW-0001"))

		key, err := fx.engine.Provision(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "KG-NEW-0001", key)

		// The fresh key must grant nothing until activation.
		patched, ok := fx.provider.patched["KG-NEW-0001"]
		require.True(t, ok)
		assert.True(t, patched.Before(fixedNow.Add(-50*365*24*time.Hour)))

		p, err := fx.repo.Get(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, p.LicenseKey)
		assert.Equal(t, "KG-NEW-0001", *p.LicenseKey)
		assert.Equal(t, license.PlanInactive, p.PlanStatus)
	})

	t.Run("idempotent when key already exists", func(t *testing.T) {
		fx := newEngine(t, newFakeRepo(provisionedProfile("alice")), newFakeProvider())

		key, err := fx.engine.Provision(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "KG-EXISTING-KEY1", key)
		assert.Empty(t, fx.provider.created, "provider must not be called on short-circuit")
	})

	t.Run("missing profile", func(t *testing.T) {
		fx := newEngine(t, newFakeRepo(), newFakeProvider())

		_, err := fx.engine.Provision(ctx, "ghost")
		assert.ErrorIs(t, err, apperrors.ErrProfileNotFound)
	})

	t.Run("failed expiry patch compensates with delete", func(t *testing.T) {
		prov := newFakeProvider("KG-DOOMED-KEY01")
		prov.failPatchOnKey = "KG-DOOMED-KEY01"
		fx := newEngine(t, newFakeRepo(&license.Profile{ID: "alice"}), prov)

		_, err := fx.engine.Provision(ctx, "alice")
		assert.ErrorIs(t, err, apperrors.ErrProviderFailure)
		assert.Equal(t, []string{"KG-DOOMED-KEY01"}, prov.deleted)

		p, _ := fx.repo.Get(ctx, "alice")
		assert.False(t, p.HasLicenseKey(), "no key persisted after rollback")
	})

	t.Run("compensation failure does not mask the original error", func(t *testing.T) {
		prov := newFakeProvider("KG-DOOMED-KEY02")
		prov.failPatchOnKey = "KG-DOOMED-KEY02"
		prov.deleteErr = apperrors.NewProviderError("delete-credential", "gone", nil)
		fx := newEngine(t, newFakeRepo(&license.Profile{ID: "alice"}), prov)

		_, err := fx.engine.Provision(ctx, "alice")
		require.Error(t, err)
		var pe *apperrors.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "patch-expiry", pe.Op)
	})

	t.Run("create failure runs no compensation", func(t *testing.T) {
		prov := newFakeProvider()
		prov.createErr = apperrors.NewProviderError("create-credential", "pool exhausted", nil)
		fx := newEngine(t, newFakeRepo(&license.Profile{ID: "alice"}), prov)

		_, err := fx.engine.Provision(ctx, "alice")
		assert.ErrorIs(t, err, apperrors.ErrProviderFailure)
		assert.Empty(t, prov.deleted)
	})

	t.Run("persistence failure after provider success is distinct", func(t *testing.T) {
		repo := newFakeRepo(&license.Profile{ID: "alice"})
		repo.setKeyErr = errors.New("connection reset")
		fx := newEngine(t, repo, newFakeProvider("KG-ORPHAN-KEY01"))

		_, err := fx.engine.Provision(ctx, "alice")
		assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
		assert.NotErrorIs(t, err, apperrors.ErrProviderFailure)
		// The orphaned key is expired upstream; it is not deleted.
		assert.Empty(t, fx.provider.deleted)
	})
}

func TestEngine_Activate(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects non-positive day count before any external call", func(t *testing.T) {
		fx := newEngine(t, newFakeRepo(provisionedProfile("alice")), newFakeProvider())

		for _, days := range []int{0, -5} {
			_, err := fx.engine.Activate(ctx, "alice", "gold", days)
			assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
		}
		assert.Empty(t, fx.provider.patched)
		assert.Zero(t, fx.repo.activateCalls)
	})

	t.Run("requires a provisioned key", func(t *testing.T) {
		fx := newEngine(t, newFakeRepo(&license.Profile{ID: "alice", PlanStatus: license.PlanInactive}), newFakeProvider())

		_, err := fx.engine.Activate(ctx, "alice", "gold", 30)
		assert.ErrorIs(t, err, apperrors.ErrNoLicenseKey)
	})

	t.Run("first activation starts from now", func(t *testing.T) {
		fx := newEngine(t, newFakeRepo(provisionedProfile("alice")), newFakeProvider())

		res, err := fx.engine.Activate(ctx, "alice", "gold", 30)
		require.NoError(t, err)
		assert.True(t, res.ExpiresAt.Equal(fixedNow.Add(30*24*time.Hour)))
		assert.False(t, res.Extended)

		p, _ := fx.repo.Get(ctx, "alice")
		assert.Equal(t, license.PlanActive, p.PlanStatus)
		assert.Equal(t, "gold", *p.PlanName)
	})

	t.Run("active plan extends from current expiry", func(t *testing.T) {
		current := fixedNow.Add(10 * 24 * time.Hour)
		p := provisionedProfile("alice")
		p.PlanStatus = license.PlanActive
		p.PlanName = strPtr("silver")
		p.PlanExpiresAt = &current
		fx := newEngine(t, newFakeRepo(p), newFakeProvider())

		res, err := fx.engine.Activate(ctx, "alice", "gold", 30)
		require.NoError(t, err)
		assert.True(t, res.ExpiresAt.Equal(current.Add(30*24*time.Hour)), "remaining time is never forfeited")
		assert.True(t, res.Extended)

		got, _ := fx.repo.Get(ctx, "alice")
		assert.Equal(t, "gold", *got.PlanName, "plan name is overwritten on extension")
	})

	t.Run("lapsed active plan starts from now", func(t *testing.T) {
		past := fixedNow.Add(-24 * time.Hour)
		p := provisionedProfile("alice")
		p.PlanStatus = license.PlanActive
		p.PlanExpiresAt = &past
		fx := newEngine(t, newFakeRepo(p), newFakeProvider())

		res, err := fx.engine.Activate(ctx, "alice", "gold", 7)
		require.NoError(t, err)
		assert.True(t, res.ExpiresAt.Equal(fixedNow.Add(7*24*time.Hour)))
		assert.False(t, res.Extended)
	})

	t.Run("provider failure leaves no local change", func(t *testing.T) {
		prov := newFakeProvider()
		prov.patchErr = apperrors.NewProviderError("patch-expiry", "unreachable", nil)
		fx := newEngine(t, newFakeRepo(provisionedProfile("alice")), prov)

		_, err := fx.engine.Activate(ctx, "alice", "gold", 30)
		assert.ErrorIs(t, err, apperrors.ErrProviderFailure)

		p, _ := fx.repo.Get(ctx, "alice")
		assert.Equal(t, license.PlanInactive, p.PlanStatus)
		assert.Nil(t, p.PlanExpiresAt)
	})

	t.Run("persistence failure after provider success is distinct", func(t *testing.T) {
		repo := newFakeRepo(provisionedProfile("alice"))
		repo.activateErr = errors.New("connection reset")
		fx := newEngine(t, repo, newFakeProvider())

		_, err := fx.engine.Activate(ctx, "alice", "gold", 30)
		assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
		assert.NotErrorIs(t, err, apperrors.ErrProviderFailure)
	})

	t.Run("lost write race retried once from fresh read", func(t *testing.T) {
		repo := newFakeRepo(provisionedProfile("alice"))
		repo.failActivateOnce = true
		fx := newEngine(t, repo, newFakeProvider())

		res, err := fx.engine.Activate(ctx, "alice", "gold", 30)
		require.NoError(t, err)
		assert.Equal(t, 2, repo.activateCalls)
		assert.True(t, res.ExpiresAt.Equal(fixedNow.Add(30*24*time.Hour)))
	})
}

func TestEngine_ResetHWID(t *testing.T) {
	ctx := context.Background()

	t.Run("success decrements quota and stamps reset time", func(t *testing.T) {
		fx := newEngine(t, newFakeRepo(provisionedProfile("alice")), newFakeProvider())

		remaining, err := fx.engine.ResetHWID(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, remaining)
		assert.Equal(t, 2, *remaining)
		assert.Equal(t, []bool{true}, fx.provider.forces, "provider limiter is bypassed, ours governs")

		p, _ := fx.repo.Get(ctx, "alice")
		require.NotNil(t, p.LastHWIDResetAt)
		assert.True(t, p.LastHWIDResetAt.Equal(fixedNow))
	})

	t.Run("unlimited quota never decrements", func(t *testing.T) {
		p := provisionedProfile("alice")
		p.HWIDResetsRemaining = nil
		fx := newEngine(t, newFakeRepo(p), newFakeProvider())

		remaining, err := fx.engine.ResetHWID(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, remaining)

		got, _ := fx.repo.Get(ctx, "alice")
		assert.Nil(t, got.HWIDResetsRemaining)
	})

	t.Run("exhausted quota rejected before provider call", func(t *testing.T) {
		p := provisionedProfile("alice")
		p.HWIDResetsRemaining = intPtr(0)
		fx := newEngine(t, newFakeRepo(p), newFakeProvider())

		_, err := fx.engine.ResetHWID(ctx, "alice")
		assert.ErrorIs(t, err, apperrors.ErrQuotaExhausted)
		assert.Empty(t, fx.provider.resets)
	})

	t.Run("quota gate runs before cooldown gate", func(t *testing.T) {
		p := provisionedProfile("alice")
		p.HWIDResetsRemaining = intPtr(0)
		p.LastHWIDResetAt = timePtr(fixedNow.Add(-time.Hour))
		fx := newEngine(t, newFakeRepo(p), newFakeProvider())

		_, err := fx.engine.ResetHWID(ctx, "alice")
		assert.ErrorIs(t, err, apperrors.ErrQuotaExhausted)
	})

	t.Run("cooldown active carries remaining wait rounded up", func(t *testing.T) {
		p := provisionedProfile("alice")
		p.LastHWIDResetAt = timePtr(fixedNow.Add(-time.Hour))
		fx := newEngine(t, newFakeRepo(p), newFakeProvider())

		_, err := fx.engine.ResetHWID(ctx, "alice")
		require.ErrorIs(t, err, apperrors.ErrCooldownActive)

		var cd *apperrors.CooldownError
		require.ErrorAs(t, err, &cd)
		assert.Equal(t, 23, cd.HoursRemaining())
		assert.Empty(t, fx.provider.resets)
	})

	t.Run("sub-hour remainder still reports one hour", func(t *testing.T) {
		p := provisionedProfile("alice")
		p.LastHWIDResetAt = timePtr(fixedNow.Add(-23*time.Hour - 59*time.Minute))
		fx := newEngine(t, newFakeRepo(p), newFakeProvider())

		_, err := fx.engine.ResetHWID(ctx, "alice")
		var cd *apperrors.CooldownError
		require.ErrorAs(t, err, &cd)
		assert.Equal(t, 1, cd.HoursRemaining())
	})

	t.Run("boundary at exactly the cooldown succeeds", func(t *testing.T) {
		p := provisionedProfile("alice")
		p.LastHWIDResetAt = timePtr(fixedNow.Add(-24 * time.Hour))
		fx := newEngine(t, newFakeRepo(p), newFakeProvider())

		_, err := fx.engine.ResetHWID(ctx, "alice")
		assert.NoError(t, err)
	})

	t.Run("provider failure consumes nothing", func(t *testing.T) {
		prov := newFakeProvider()
		prov.resetErr = apperrors.NewProviderError("reset-hwid", "unreachable", nil)
		repo := newFakeRepo(provisionedProfile("alice"))
		fx := newEngine(t, repo, prov)

		_, err := fx.engine.ResetHWID(ctx, "alice")
		assert.ErrorIs(t, err, apperrors.ErrProviderFailure)
		assert.Zero(t, repo.consumeCalls)

		p, _ := repo.Get(ctx, "alice")
		assert.Equal(t, 3, *p.HWIDResetsRemaining)
		assert.Nil(t, p.LastHWIDResetAt)
	})

	t.Run("persistence failure after provider success is distinct", func(t *testing.T) {
		repo := newFakeRepo(provisionedProfile("alice"))
		repo.consumeErr = errors.New("connection reset")
		fx := newEngine(t, repo, newFakeProvider())

		_, err := fx.engine.ResetHWID(ctx, "alice")
		assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
	})

	t.Run("missing key", func(t *testing.T) {
		fx := newEngine(t, newFakeRepo(&license.Profile{ID: "alice"}), newFakeProvider())

		_, err := fx.engine.ResetHWID(ctx, "alice")
		assert.ErrorIs(t, err, apperrors.ErrNoLicenseKey)
	})
}

func TestEngine_Status(t *testing.T) {
	ctx := context.Background()

	t.Run("active with future expiry is returned as is", func(t *testing.T) {
		p := provisionedProfile("alice")
		p.PlanStatus = license.PlanActive
		p.PlanExpiresAt = timePtr(fixedNow.Add(time.Hour))
		fx := newEngine(t, newFakeRepo(p), newFakeProvider())

		got, err := fx.engine.Status(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, license.PlanActive, got.PlanStatus)
	})

	t.Run("stale active is corrected and persisted before returning", func(t *testing.T) {
		p := provisionedProfile("alice")
		p.PlanStatus = license.PlanActive
		p.PlanExpiresAt = timePtr(fixedNow.Add(-time.Minute))
		repo := newFakeRepo(p)
		fx := newEngine(t, repo, newFakeProvider())

		got, err := fx.engine.Status(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, license.PlanExpired, got.PlanStatus)

		stored, _ := repo.Get(ctx, "alice")
		assert.Equal(t, license.PlanExpired, stored.PlanStatus)
	})

	t.Run("expired never transitions back without activation", func(t *testing.T) {
		p := provisionedProfile("alice")
		p.PlanStatus = license.PlanExpired
		p.PlanExpiresAt = timePtr(fixedNow.Add(-time.Hour))
		fx := newEngine(t, newFakeRepo(p), newFakeProvider())

		got, err := fx.engine.Status(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, license.PlanExpired, got.PlanStatus)
	})

	t.Run("inactive profile untouched", func(t *testing.T) {
		fx := newEngine(t, newFakeRepo(provisionedProfile("alice")), newFakeProvider())

		got, err := fx.engine.Status(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, license.PlanInactive, got.PlanStatus)
	})

	t.Run("reconciliation write failure surfaces", func(t *testing.T) {
		p := provisionedProfile("alice")
		p.PlanStatus = license.PlanActive
		p.PlanExpiresAt = timePtr(fixedNow.Add(-time.Minute))
		repo := newFakeRepo(p)
		repo.markErr = errors.New("connection reset")
		fx := newEngine(t, repo, newFakeProvider())

		_, err := fx.engine.Status(ctx, "alice")
		assert.Error(t, err)
	})
}

func TestEngine_EndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo(&license.Profile{ID: "newuser", PlanStatus: license.PlanInactive, HWIDResetsRemaining: intPtr(3)})
	fx := newEngine(t, repo, newFakeProvider("KG-E2E-0000001"))

	// Provision
	key, err := fx.engine.Provision(ctx, "newuser")
	require.NoError(t, err)
	assert.Equal(t, "KG-E2E-0000001", key)

	p, _ := repo.Get(ctx, "newuser")
	assert.Equal(t, license.PlanInactive, p.PlanStatus)

	// Trusted peer activates a 30 day gold plan
	res, err := fx.engine.Activate(ctx, "newuser", "gold", 30)
	require.NoError(t, err)
	assert.True(t, res.ExpiresAt.Equal(fixedNow.Add(30*24*time.Hour)))

	p, _ = repo.Get(ctx, "newuser")
	assert.Equal(t, license.PlanActive, p.PlanStatus)

	// First reset succeeds and decrements
	remaining, err := fx.engine.ResetHWID(ctx, "newuser")
	require.NoError(t, err)
	assert.Equal(t, 2, *remaining)

	// Immediate second reset is in cooldown
	_, err = fx.engine.ResetHWID(ctx, "newuser")
	assert.ErrorIs(t, err, apperrors.ErrCooldownActive)
}
