package service

import (
	"context"
	"fmt"

	"salesdesk_backend/internal/events"
	"salesdesk_backend/internal/store"
	"salesdesk_backend/platform/apperr"
	"salesdesk_backend/platform/phone"

	"github.com/google/uuid"
)

// DeleteTarget identifies the entry being removed. The handler resolves it
// from the merged view so the cascade knows whether a persisted lead row
// exists at all.
type DeleteTarget struct {
	LeadID    uuid.UUID
	Phone     string
	SessionID *uuid.UUID
	Virtual   bool
}

// DeleteResult reports what the cascade actually achieved. Warnings carry the
// best-effort steps that failed. LeadDeleted reports that the entry no longer
// targets a persisted lead row: the row was removed, or the entry was virtual
// and never had one.
type DeleteResult struct {
	LeadDeleted bool
	Warnings    []string
}

// DeleteLead runs the ordered cascade for one entry:
//
//  1. archive the transcript (optional, best-effort)
//  2. delete the phone's sessions
//  3. delete the agent runtime's turn records for the phone
//  4. delete the session's stored messages
//  5. delete the lead row (authoritative; skipped for virtual entries)
//
// Steps 1-4 tolerate failure: each failed step becomes a warning and the
// cascade continues, so a flaky agent-runtime table cannot strand the lead
// row. Step 5 is strict: an error or a zero-row delete aborts with a typed
// error, and the partial progress is reported on the result either way.
func (s *Service) DeleteLead(ctx context.Context, organizationID uuid.UUID, target DeleteTarget) (DeleteResult, error) {
	var result DeleteResult

	// The phone arrives as client metadata; normalize it so the by-phone
	// deletes hit the same rows the merge correlated on.
	target.Phone = phone.NormalizeE164(target.Phone)

	warn := func(step, format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		result.Warnings = append(result.Warnings, msg)
		if s.log != nil {
			s.log.CascadeWarning(step, target.Phone, fmt.Errorf("%s", msg))
		}
	}

	if s.archiver != nil && target.Phone != "" {
		if key, err := s.archiver.ArchiveTranscript(ctx, organizationID, target.Phone); err != nil {
			warn("archive_transcript", "failed to archive transcript: %v", err)
		} else if key != "" && s.log != nil {
			s.log.Info("archived transcript before delete", "phone", target.Phone, "objectKey", key)
		}
	}

	if target.Phone != "" {
		if _, err := s.store.DeleteSessionsByPhone(ctx, organizationID, target.Phone); err != nil {
			warn("delete_sessions", "failed to delete conversation sessions: %v", err)
		}
		if _, err := s.store.DeleteAgentTurnsByPhone(ctx, target.Phone); err != nil {
			warn("delete_agent_turns", "failed to delete agent turn records: %v", err)
		}
	}

	if target.SessionID != nil {
		if _, err := s.store.DeleteMessagesBySession(ctx, *target.SessionID); err != nil {
			warn("delete_messages", "failed to delete conversation messages: %v", err)
		}
	}

	if target.Virtual {
		// No lead row exists; the conversation-side cleanup above is the
		// whole job.
		result.LeadDeleted = true
		s.finishDelete(ctx, organizationID, target, result)
		return result, nil
	}

	affected, err := s.store.DeleteLead(ctx, organizationID, target.LeadID)
	if err != nil {
		return result, apperr.TransientStore("failed to delete lead", err)
	}
	if affected == 0 {
		return result, apperr.BlockedDeletion("lead row was not removed; a policy rule may be blocking the delete").
			WithDetails(result.Warnings)
	}

	result.LeadDeleted = true
	s.finishDelete(ctx, organizationID, target, result)
	return result, nil
}

func (s *Service) finishDelete(ctx context.Context, organizationID uuid.UUID, target DeleteTarget, result DeleteResult) {
	s.notifyChanged(ctx, store.TableLeads, organizationID)
	s.notifyChanged(ctx, store.TableSessions, organizationID)

	s.bus.Publish(ctx, events.LeadCascadeDeleted{
		BaseEvent:      events.NewBaseEvent(),
		LeadID:         target.LeadID,
		OrganizationID: organizationID,
		Phone:          target.Phone,
		LeadDeleted:    result.LeadDeleted,
		Warnings:       result.Warnings,
	})
}
