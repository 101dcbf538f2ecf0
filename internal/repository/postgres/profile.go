package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "keygate/internal/errors"
	"keygate/internal/license"
)

var _ license.ProfileRepository = (*ProfileRepository)(nil)

type ProfileRepository struct {
	db *Connection
}

func NewProfileRepository(db *Connection) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `id, license_key, plan_status, plan_name, plan_expires_at,
	hwid_resets_remaining, last_hwid_reset_at, created_at, updated_at`

func (r *ProfileRepository) Get(ctx context.Context, userID string) (*license.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	var p license.Profile
	var status string
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.ID, &p.LicenseKey, &status, &p.PlanName, &p.PlanExpiresAt,
		&p.HWIDResetsRemaining, &p.LastHWIDResetAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p.PlanStatus = license.PlanStatus(status)

	return &p, nil
}

// SetLicenseKey records the provisioned key. The guard on license_key IS NULL
// keeps the set-exactly-once invariant even if two provisions race past the
// engine's short-circuit.
func (r *ProfileRepository) SetLicenseKey(ctx context.Context, userID, licenseKey string) error {
	query := `UPDATE profiles
			  SET license_key = $2, plan_status = 'inactive', updated_at = now()
			  WHERE id = $1 AND license_key IS NULL`

	tag, err := r.db.Exec(ctx, query, userID, licenseKey)
	if err != nil {
		return fmt.Errorf("failed to set license key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, getErr := r.Get(ctx, userID)
		if getErr != nil {
			return getErr
		}
		if existing.HasLicenseKey() {
			return apperrors.ErrConcurrentUpdate
		}
		return apperrors.ErrProfileNotFound
	}

	return nil
}

// ActivatePlan is the compare-and-swap write for plan activation. The guard
// compares against the expiry the engine read before calling the provider;
// IS NOT DISTINCT FROM makes null (never activated) participate in the
// comparison.
func (r *ProfileRepository) ActivatePlan(ctx context.Context, userID, planName string, expiresAt time.Time, prevExpiresAt *time.Time) error {
	query := `UPDATE profiles
			  SET plan_name = $2, plan_status = 'active', plan_expires_at = $3, updated_at = now()
			  WHERE id = $1 AND plan_expires_at IS NOT DISTINCT FROM $4`

	tag, err := r.db.Exec(ctx, query, userID, planName, expiresAt, prevExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to activate plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, userID); getErr != nil {
			return getErr
		}
		return apperrors.ErrConcurrentUpdate
	}

	return nil
}

// ConsumeHWIDReset decrements the quota and stamps the reset time in one
// conditional update. A null counter means unlimited and is left null. The
// WHERE clause refuses the decrement at zero so the counter never goes
// negative regardless of interleaving.
func (r *ProfileRepository) ConsumeHWIDReset(ctx context.Context, userID string, at time.Time) (*int, error) {
	query := `UPDATE profiles
			  SET hwid_resets_remaining = CASE
					WHEN hwid_resets_remaining IS NULL THEN NULL
					ELSE hwid_resets_remaining - 1
				  END,
				  last_hwid_reset_at = $2,
				  updated_at = now()
			  WHERE id = $1
				AND (hwid_resets_remaining IS NULL OR hwid_resets_remaining > 0)
			  RETURNING hwid_resets_remaining`

	var remaining *int
	err := r.db.QueryRow(ctx, query, userID, at).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the row vanished or a concurrent reset drained the
			// quota between the engine's gate check and this write.
			if _, getErr := r.Get(ctx, userID); getErr != nil {
				return nil, getErr
			}
			return nil, apperrors.ErrQuotaExhausted
		}
		return nil, fmt.Errorf("failed to consume hwid reset: %w", err)
	}

	return remaining, nil
}

// MarkExpired performs the lazy expiry correction. The expiry guard makes it
// a no-op when a concurrent activation already pushed the expiry forward.
func (r *ProfileRepository) MarkExpired(ctx context.Context, userID string, observedExpiry time.Time) error {
	query := `UPDATE profiles
			  SET plan_status = 'expired', updated_at = now()
			  WHERE id = $1 AND plan_status = 'active'
				AND plan_expires_at IS NOT DISTINCT FROM $2`

	if _, err := r.db.Exec(ctx, query, userID, observedExpiry); err != nil {
		return fmt.Errorf("failed to mark profile expired: %w", err)
	}

	return nil
}
