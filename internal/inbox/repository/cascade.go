package repository

import (
	"context"

	"github.com/google/uuid"
)

// The cascade correlates by phone number, not by lead foreign key: sessions
// and agent-side turn records carry no lead id. These methods isolate that
// denormalization so a future migration to a proper foreign key touches one
// place.

// DeleteSessionsByPhone removes the organization's sessions for a phone.
func (r *Repository) DeleteSessionsByPhone(ctx context.Context, organizationID uuid.UUID, phone string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM conversation_sessions
		WHERE organization_id = $1 AND phone = $2
	`, organizationID, phone)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteAgentTurnsByPhone removes the agent runtime's turn records for a
// phone. The agent_turns table sits outside the organization schema boundary
// and has no organization_id column, so this delete is scoped by phone
// globally. Known blast-radius caveat of the source data model.
func (r *Repository) DeleteAgentTurnsByPhone(ctx context.Context, phone string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM agent_turns
		WHERE phone = $1
	`, phone)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteMessagesBySession removes all turns owned by a session.
func (r *Repository) DeleteMessagesBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM conversation_messages
		WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteLead removes the lead row itself and reports how many rows were
// affected. Zero rows on an existing id means a policy rule blocked the
// delete; the service treats that as a hard failure, not a silent success.
func (r *Repository) DeleteLead(ctx context.Context, organizationID, leadID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM leads
		WHERE id = $1 AND organization_id = $2
	`, leadID, organizationID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
