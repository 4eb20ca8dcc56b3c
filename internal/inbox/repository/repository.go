// Package repository provides data access for the inbox bounded context.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"salesdesk_backend/internal/inbox/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrSessionNotFound = errors.New("conversation session not found")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, organization_id, phone, contact_name, company_name,
	qualification_score, status, qualification, created_at, updated_at`

// ListLeads returns the organization's leads. Status and score predicates are
// pushed down to the store to bound the result size; everything else is
// applied after the merge.
func (r *Repository) ListLeads(ctx context.Context, organizationID uuid.UUID, filters domain.Filters) ([]domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE organization_id = $1`
	args := []interface{}{organizationID}

	if filters.Status != nil {
		args = append(args, string(*filters.Status))
		query += ` AND status = $2`
	}
	if filters.Score != nil {
		args = append(args, string(*filters.Score))
		if filters.Status != nil {
			query += ` AND qualification_score = $3`
		} else {
			query += ` AND qualification_score = $2`
		}
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	return leads, rows.Err()
}

func scanLead(row pgx.Row) (domain.Lead, error) {
	var lead domain.Lead
	var qualification []byte
	err := row.Scan(
		&lead.ID, &lead.OrganizationID, &lead.Phone, &lead.ContactName, &lead.CompanyName,
		&lead.Score, &lead.Status, &qualification, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	if len(qualification) > 0 {
		if err := json.Unmarshal(qualification, &lead.Qualification); err != nil {
			return domain.Lead{}, err
		}
	}
	return lead, nil
}

const sessionColumns = `id, organization_id, phone, control_mode, reason, escalated_at,
	unread_count, lead_contact_name, lead_company_name, lead_qualification_score,
	lead_status, created_at, updated_at`

// ListSessions returns all of the organization's sessions, freshest first.
// The merge relies on this ordering to keep the newest session per phone.
func (r *Repository) ListSessions(ctx context.Context, organizationID uuid.UUID) ([]domain.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM conversation_sessions
		WHERE organization_id = $1
		ORDER BY updated_at DESC
	`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID, &s.OrganizationID, &s.Phone, &s.ControlMode, &s.Reason, &s.EscalatedAt,
		&s.UnreadCount, &s.LeadSummary.ContactName, &s.LeadSummary.CompanyName,
		&s.LeadSummary.Score, &s.LeadSummary.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// GetSession fetches a single session within the organization scope.
func (r *Repository) GetSession(ctx context.Context, organizationID, sessionID uuid.UUID) (domain.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM conversation_sessions
		WHERE id = $1 AND organization_id = $2
	`, sessionID, organizationID)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, ErrSessionNotFound
	}
	return session, err
}

// UpdateSessionControl persists a control-mode transition. Returns
// ErrSessionNotFound when the session vanished between snapshot and mutation.
func (r *Repository) UpdateSessionControl(ctx context.Context, organizationID, sessionID uuid.UUID, mode domain.ControlMode, reason string, escalatedAt *time.Time) (domain.Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE conversation_sessions
		SET control_mode = $3, reason = $4, escalated_at = $5, updated_at = now()
		WHERE id = $1 AND organization_id = $2
		RETURNING `+sessionColumns+`
	`, sessionID, organizationID, string(mode), reason, escalatedAt)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, ErrSessionNotFound
	}
	return session, err
}

// ResetUnread clears the unread counter after the operator opened the thread.
func (r *Repository) ResetUnread(ctx context.Context, organizationID, sessionID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversation_sessions
		SET unread_count = 0
		WHERE id = $1 AND organization_id = $2
	`, sessionID, organizationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListMessagesBySession returns the latest turns of a session, newest first.
func (r *Repository) ListMessagesBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, direction, body, created_at
		FROM conversation_messages
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ListMessagesByPhone returns every stored turn for a phone within the
// organization, oldest first, for transcript archival.
func (r *Repository) ListMessagesByPhone(ctx context.Context, organizationID uuid.UUID, phone string) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.session_id, m.direction, m.body, m.created_at
		FROM conversation_messages m
		JOIN conversation_sessions s ON s.id = m.session_id
		WHERE s.organization_id = $1 AND s.phone = $2
		ORDER BY m.created_at ASC
	`, organizationID, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Direction, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
