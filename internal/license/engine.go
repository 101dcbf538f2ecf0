// Package license holds the license lifecycle engine: key provisioning,
// plan activation arithmetic, HWID reset quota and cooldown enforcement,
// and lazy expiry reconciliation. The engine orchestrates two remote
// systems that fail independently and share no transaction, so every
// workflow is explicit about which side has already been mutated when an
// error surfaces.
package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "keygate/internal/errors"
	"keygate/internal/infrastructure"
	"keygate/internal/lock"
	"keygate/internal/provider"
)

// sentinelExpiry is patched onto a freshly minted key so it grants nothing
// until the first activation. Epoch+1s rather than zero so the provider
// treats it as a real, long-past timestamp.
var sentinelExpiry = time.Unix(1, 0).UTC()

// ActivationResult is the outcome of a successful plan activation.
type ActivationResult struct {
	UserID    string    `json:"user_id"`
	PlanName  string    `json:"plan_name"`
	ExpiresAt time.Time `json:"expires_at"`
	// Extended is true when the new expiry was stacked on remaining time
	// instead of starting from now.
	Extended bool `json:"extended"`
}

// Engine implements the four lifecycle workflows. Same-user mutations are
// serialized through the locker; all writes are conditional so even a lost
// lock (TTL expiry) cannot silently overwrite a concurrent update.
type Engine struct {
	repo     ProfileRepository
	provider provider.Client
	locks    lock.Locker
	logger   *slog.Logger
	metrics  *infrastructure.LifecycleMetrics
	cooldown time.Duration
	now      func() time.Time
}

// NewEngine creates the lifecycle engine. cooldown is the minimum wait
// between HWID resets for one user.
func NewEngine(
	repo ProfileRepository,
	providerClient provider.Client,
	locks lock.Locker,
	logger *slog.Logger,
	metrics *infrastructure.LifecycleMetrics,
	cooldown time.Duration,
) *Engine {
	return &Engine{
		repo:     repo,
		provider: providerClient,
		locks:    locks,
		logger:   logger.With(slog.String("component", "license_engine")),
		metrics:  metrics,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// SetNowFunc overrides the engine clock. Tests use it to pin time.
func (e *Engine) SetNowFunc(now func() time.Time) {
	e.now = now
}

// Provision mints a license key for the user. Idempotent: a profile that
// already holds a key gets it back unchanged and the provider is not
// called. A new key is immediately patched to the sentinel expiry; if that
// patch fails the key is deleted again so no live unpatched credential
// survives the failure.
func (e *Engine) Provision(ctx context.Context, userID string) (string, error) {
	release, err := e.locks.Acquire(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to serialize provision: %w", err)
	}
	defer release()

	profile, err := e.repo.Get(ctx, userID)
	if err != nil {
		return "", err
	}

	if profile.HasLicenseKey() {
		e.logger.InfoContext(ctx, "provision short-circuit, key already exists",
			slog.String("user_id", userID),
			slog.String("license_key", provider.MaskKey(*profile.LicenseKey)))
		return *profile.LicenseKey, nil
	}

	var key string
	err = runSaga(ctx, e.logger, e.recordCompensation, []sagaStep{
		{
			name: "create-credential",
			run: func(ctx context.Context) error {
				created, err := e.provider.CreateCredential(ctx, userID)
				e.recordProviderCall("create-credential", err)
				if err != nil {
					return err
				}
				key = created
				return nil
			},
			compensate: func(ctx context.Context) error {
				err := e.provider.DeleteCredential(ctx, key)
				e.recordProviderCall("delete-credential", err)
				return err
			},
		},
		{
			name: "neutralize-expiry",
			run: func(ctx context.Context) error {
				err := e.provider.PatchExpiry(ctx, key, sentinelExpiry)
				e.recordProviderCall("patch-expiry", err)
				return err
			},
		},
	})
	if err != nil {
		return "", err
	}

	if err := e.repo.SetLicenseKey(ctx, userID, key); err != nil {
		// The key exists upstream, expired and harmless, but is not
		// recorded locally. Surfaced distinctly so operators reconcile.
		e.recordPersistenceFailure()
		e.logger.ErrorContext(ctx, "provisioned key not recorded",
			slog.String("user_id", userID),
			slog.String("license_key", provider.MaskKey(key)),
			slog.String("error", err.Error()))
		return "", &apperrors.PersistenceError{Op: "provision", Err: err}
	}

	e.logger.InfoContext(ctx, "license key provisioned",
		slog.String("user_id", userID),
		slog.String("license_key", provider.MaskKey(key)))

	return key, nil
}

// Activate sets or extends the user's plan. The expiry base is the current
// expiry when the plan is still active (paying early never forfeits
// remaining time), otherwise now. The provider is patched first; the local
// record is then written with a compare-and-swap on the expiry that was
// read, retried once from a fresh read on a miss.
func (e *Engine) Activate(ctx context.Context, userID, planName string, planDays int) (*ActivationResult, error) {
	if planDays <= 0 {
		return nil, fmt.Errorf("%w: plan_days must be a positive integer", apperrors.ErrValidationFailed)
	}
	if planName == "" {
		return nil, fmt.Errorf("%w: plan_name must not be empty", apperrors.ErrValidationFailed)
	}

	release, err := e.locks.Acquire(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize activation: %w", err)
	}
	defer release()

	const maxAttempts = 2
	for attempt := 1; ; attempt++ {
		profile, err := e.repo.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !profile.HasLicenseKey() {
			return nil, apperrors.ErrNoLicenseKey
		}

		now := e.now()
		base := now
		extended := false
		if profile.PlanStatus == PlanActive && profile.PlanExpiresAt != nil && profile.PlanExpiresAt.After(now) {
			base = *profile.PlanExpiresAt
			extended = true
		}
		newExpiry := base.Add(time.Duration(planDays) * 24 * time.Hour)

		err = e.provider.PatchExpiry(ctx, *profile.LicenseKey, newExpiry)
		e.recordProviderCall("patch-expiry", err)
		if err != nil {
			// Nothing was changed locally; the caller may retry.
			return nil, err
		}

		err = e.repo.ActivatePlan(ctx, userID, planName, newExpiry, profile.PlanExpiresAt)
		if err == nil {
			e.logger.InfoContext(ctx, "plan activated",
				slog.String("user_id", userID),
				slog.String("plan_name", planName),
				slog.Int("plan_days", planDays),
				slog.Time("expires_at", newExpiry),
				slog.Bool("extended", extended))

			return &ActivationResult{
				UserID:    userID,
				PlanName:  planName,
				ExpiresAt: newExpiry,
				Extended:  extended,
			}, nil
		}

		if errors.Is(err, apperrors.ErrConcurrentUpdate) && attempt < maxAttempts {
			e.logger.WarnContext(ctx, "activation write lost a race, retrying from fresh read",
				slog.String("user_id", userID),
				slog.Int("attempt", attempt))
			continue
		}

		e.recordPersistenceFailure()
		e.logger.ErrorContext(ctx, "plan granted upstream but not recorded",
			slog.String("user_id", userID),
			slog.String("plan_name", planName),
			slog.Time("expires_at", newExpiry),
			slog.String("error", err.Error()))
		return nil, &apperrors.PersistenceError{Op: "activate", Err: err}
	}
}

// ResetHWID clears the user's hardware binding. Gates run cheapest first:
// key presence, quota, cooldown; the provider is only called once all local
// gates pass, and the quota is only consumed after the provider succeeds.
// Returns the resets remaining after this one, nil meaning unlimited.
func (e *Engine) ResetHWID(ctx context.Context, userID string) (*int, error) {
	release, err := e.locks.Acquire(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize hwid reset: %w", err)
	}
	defer release()

	profile, err := e.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !profile.HasLicenseKey() {
		return nil, apperrors.ErrNoLicenseKey
	}

	if profile.HWIDResetsRemaining != nil && *profile.HWIDResetsRemaining <= 0 {
		return nil, apperrors.ErrQuotaExhausted
	}

	now := e.now()
	if profile.LastHWIDResetAt != nil {
		elapsed := now.Sub(*profile.LastHWIDResetAt)
		// The boundary is inclusive: exactly cooldown elapsed succeeds.
		if elapsed < e.cooldown {
			return nil, &apperrors.CooldownError{Remaining: e.cooldown - elapsed}
		}
	}

	// force=true: the 24h gate above is our user-facing policy in front of
	// the provider's own limiter.
	err = e.provider.ResetHWID(ctx, *profile.LicenseKey, true)
	e.recordProviderCall("reset-hwid", err)
	if err != nil {
		return nil, err
	}

	remaining, err := e.repo.ConsumeHWIDReset(ctx, userID, now)
	if err != nil {
		e.recordPersistenceFailure()
		e.logger.ErrorContext(ctx, "hwid reset done upstream but not recorded",
			slog.String("user_id", userID),
			slog.String("license_key", provider.MaskKey(*profile.LicenseKey)),
			slog.String("error", err.Error()))
		return nil, &apperrors.PersistenceError{Op: "reset-hwid", Err: err}
	}

	attrs := []any{
		slog.String("user_id", userID),
		slog.String("license_key", provider.MaskKey(*profile.LicenseKey)),
	}
	if remaining != nil {
		attrs = append(attrs, slog.Int("resets_remaining", *remaining))
	}
	e.logger.InfoContext(ctx, "hwid reset completed", attrs...)

	return remaining, nil
}

// Status returns the user's profile, lazily correcting a stale active
// status whose expiry has passed. The correction is persisted before the
// view is returned so a caller never observes active after the true expiry
// moment. There is no background sweep; a never-queried profile may stay
// active in storage, which is harmless because access checks go through
// the provider's own expiry enforcement.
func (e *Engine) Status(ctx context.Context, userID string) (*Profile, error) {
	profile, err := e.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if profile.PlanStatus == PlanActive && profile.PlanExpiresAt != nil && profile.PlanExpiresAt.Before(e.now()) {
		if err := e.repo.MarkExpired(ctx, userID, *profile.PlanExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to reconcile expired plan: %w", err)
		}
		profile.PlanStatus = PlanExpired

		e.logger.InfoContext(ctx, "plan lazily reconciled to expired",
			slog.String("user_id", userID),
			slog.Time("expired_at", *profile.PlanExpiresAt))
	}

	return profile, nil
}

func (e *Engine) recordPersistenceFailure() {
	if e.metrics != nil {
		e.metrics.PersistenceFailures.Inc()
	}
}

func (e *Engine) recordCompensation() {
	if e.metrics != nil {
		e.metrics.SagaCompensations.Inc()
	}
}

func (e *Engine) recordProviderCall(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.metrics.RecordProviderCall(operation, outcome)
}
