package domain

import (
	"errors"
	"time"
)

// DefaultEscalationReason is recorded when an operator escalates without
// supplying one.
const DefaultEscalationReason = "manual takeover"

// ErrInvalidTransition is returned for control-mode transitions that are
// neither valid nor an idempotent repeat.
var ErrInvalidTransition = errors.New("invalid control mode transition")

// ApplyEscalate hands the conversation to a human. Valid from agent; a repeat
// on an already-human session is a successful no-op. The bool reports whether
// the session actually changed.
func ApplyEscalate(s Session, reason string, now time.Time) (Session, bool, error) {
	switch s.ControlMode {
	case ControlHuman:
		return s, false, nil
	case ControlAgent:
		if reason == "" {
			reason = DefaultEscalationReason
		}
		s.ControlMode = ControlHuman
		s.Reason = reason
		s.EscalatedAt = &now
		s.UpdatedAt = now
		return s, true, nil
	default:
		return s, false, ErrInvalidTransition
	}
}

// ApplyRelease returns control to the agent. Valid from human or paused; a
// repeat on an already-agent session is a successful no-op.
func ApplyRelease(s Session, now time.Time) (Session, bool, error) {
	switch s.ControlMode {
	case ControlAgent:
		return s, false, nil
	case ControlHuman, ControlPaused:
		s.ControlMode = ControlAgent
		s.Reason = ""
		s.EscalatedAt = nil
		s.UpdatedAt = now
		return s, true, nil
	default:
		return s, false, ErrInvalidTransition
	}
}

// ApplyProlong pushes the auto-release countdown back out by resetting
// escalated_at without changing mode. Valid only from human.
func ApplyProlong(s Session, now time.Time) (Session, bool, error) {
	if s.ControlMode != ControlHuman {
		return s, false, ErrInvalidTransition
	}
	s.EscalatedAt = &now
	s.UpdatedAt = now
	return s, true, nil
}

// TimeRemaining computes how long until the auto-release window expires.
// Returns nil when the session is not human-controlled or auto-release is
// disabled (zero hours). A non-positive duration signals expiry; the caller
// must surface it, never swallow it.
func TimeRemaining(s Session, autoReleaseHours int, now time.Time) *time.Duration {
	if s.ControlMode != ControlHuman || s.EscalatedAt == nil || autoReleaseHours <= 0 {
		return nil
	}
	remaining := s.EscalatedAt.Add(time.Duration(autoReleaseHours) * time.Hour).Sub(now)
	return &remaining
}

// AutoReleaseDue reports whether the auto-release window has elapsed.
func AutoReleaseDue(s Session, autoReleaseHours int, now time.Time) bool {
	remaining := TimeRemaining(s, autoReleaseHours, now)
	return remaining != nil && *remaining <= 0
}
