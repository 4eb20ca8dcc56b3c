package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/google/uuid"
)

// GetAutoReleaseHours returns the organization's auto-release window in
// hours. The bool reports whether a per-organization setting exists; callers
// fall back to the configured default when it does not.
func (r *Repository) GetAutoReleaseHours(ctx context.Context, organizationID uuid.UUID) (int, bool, error) {
	var hours int
	err := r.pool.QueryRow(ctx, `
		SELECT hitl_auto_release_hours
		FROM organization_settings
		WHERE organization_id = $1
	`, organizationID).Scan(&hours)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return hours, true, nil
}

// SetAutoReleaseHours upserts the organization's auto-release window.
func (r *Repository) SetAutoReleaseHours(ctx context.Context, organizationID uuid.UUID, hours int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO organization_settings (organization_id, hitl_auto_release_hours, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (organization_id)
		DO UPDATE SET hitl_auto_release_hours = EXCLUDED.hitl_auto_release_hours, updated_at = now()
	`, organizationID, hours)
	return err
}
