package license

import (
	"context"
	"time"
)

// PlanStatus is the locally recorded lifecycle state of a user's plan.
type PlanStatus string

const (
	PlanInactive PlanStatus = "inactive"
	PlanActive   PlanStatus = "active"
	PlanExpired  PlanStatus = "expired"
)

// Profile is the per-user entitlement record. The provider remains the
// source of truth for key validity; this record is the local view used for
// orchestration decisions.
type Profile struct {
	ID                  string     `json:"id"`
	LicenseKey          *string    `json:"license_key,omitempty"`
	PlanStatus          PlanStatus `json:"plan_status"`
	PlanName            *string    `json:"plan_name,omitempty"`
	PlanExpiresAt       *time.Time `json:"plan_expires_at,omitempty"`
	HWIDResetsRemaining *int       `json:"hwid_resets_remaining,omitempty"`
	LastHWIDResetAt     *time.Time `json:"last_hwid_reset_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// HasLicenseKey reports whether provisioning has completed for this profile.
func (p *Profile) HasLicenseKey() bool {
	return p.LicenseKey != nil && *p.LicenseKey != ""
}

// ProfileRepository is the engine's view of the profile store. Conditional
// updates return ErrConcurrentUpdate (ActivatePlan) or zero-row outcomes so
// the engine can distinguish races from missing rows.
type ProfileRepository interface {
	// Get returns the profile or ErrProfileNotFound.
	Get(ctx context.Context, userID string) (*Profile, error)

	// SetLicenseKey records the provisioned key and plan_status=inactive.
	SetLicenseKey(ctx context.Context, userID, licenseKey string) error

	// ActivatePlan persists plan_name, plan_status=active and the new expiry,
	// guarded by a compare-and-swap on the previously observed expiry.
	// Returns ErrConcurrentUpdate when the guard misses.
	ActivatePlan(ctx context.Context, userID, planName string, expiresAt time.Time, prevExpiresAt *time.Time) error

	// ConsumeHWIDReset decrements the reset counter (no-op decrement when the
	// quota is unlimited) and stamps last_hwid_reset_at, in one conditional
	// update that never drives the counter below zero. Returns the remaining
	// count after the decrement, nil meaning unlimited.
	ConsumeHWIDReset(ctx context.Context, userID string, at time.Time) (*int, error)

	// MarkExpired flips plan_status active -> expired. A concurrent
	// activation that already moved the expiry forward makes this a no-op.
	MarkExpired(ctx context.Context, userID string, observedExpiry time.Time) error
}
