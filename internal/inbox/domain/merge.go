package domain

import (
	"sort"
	"strings"
)

// Filters is the active filter set for a merge pass. Status and Score are
// pushed down to the store when fetching leads; Search and ControlMode can
// only be applied after the join because they depend on the merged shape.
type Filters struct {
	Status *LeadStatus
	Score  *QualificationScore
	Search string
	// ControlMode filters by session control mode. ControlFilterNone matches
	// entries with no session at all. Empty means no filter.
	ControlMode string
}

// HasLeadPredicates reports whether a lead-status or lead-score predicate is
// active. Virtual leads are suppressed while one is: their status and score
// are synthetic, so any such predicate would be silently violated.
func (f Filters) HasLeadPredicates() bool {
	return f.Status != nil || f.Score != nil
}

// Merge joins leads and sessions by phone into the ordered view the console
// renders. Sessions must be pre-sorted by updated_at descending so the first
// session seen per phone is the freshest.
func Merge(leads []Lead, sessions []Session, filters Filters) []MergedLead {
	sessionsByPhone := make(map[string]*Session, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		if s.Phone == "" {
			// No correlation key; excluded from the merge entirely.
			continue
		}
		if _, ok := sessionsByPhone[s.Phone]; !ok {
			sessionsByPhone[s.Phone] = s
		}
	}

	merged := make([]MergedLead, 0, len(leads))
	matchedPhones := make(map[string]bool, len(leads))
	for _, lead := range leads {
		// Two leads sharing a phone each get their own entry with the same
		// session. The unique constraint makes this unreachable in practice,
		// but the merge must not lose data if the store ever diverges.
		merged = append(merged, NewRealEntry(lead, sessionsByPhone[lead.Phone]))
		matchedPhones[lead.Phone] = true
	}

	if !filters.HasLeadPredicates() {
		for _, s := range sessionsByPhone {
			if !matchedPhones[s.Phone] {
				merged = append(merged, NewVirtualEntry(*s))
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].LastActivity().After(merged[j].LastActivity())
	})

	return applyClientFilters(merged, filters)
}

func applyClientFilters(entries []MergedLead, filters Filters) []MergedLead {
	if filters.Search == "" && filters.ControlMode == "" {
		return entries
	}

	needle := strings.ToLower(strings.TrimSpace(filters.Search))
	out := entries[:0]
	for _, entry := range entries {
		if needle != "" && !matchesSearch(entry, needle) {
			continue
		}
		if !matchesControlMode(entry, filters.ControlMode) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func matchesSearch(entry MergedLead, needle string) bool {
	return strings.Contains(strings.ToLower(entry.Lead.Phone), needle) ||
		strings.Contains(strings.ToLower(entry.Lead.ContactName), needle) ||
		strings.Contains(strings.ToLower(entry.Lead.CompanyName), needle)
}

func matchesControlMode(entry MergedLead, mode string) bool {
	switch mode {
	case "":
		return true
	case ControlFilterNone:
		return entry.Session == nil
	default:
		return entry.Session != nil && string(entry.Session.ControlMode) == mode
	}
}
