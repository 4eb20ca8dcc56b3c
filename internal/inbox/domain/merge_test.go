package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func mkLead(phone string, updatedAt time.Time) Lead {
	return Lead{
		ID:        uuid.New(),
		Phone:     phone,
		Score:     ScoreWarm,
		Status:    LeadStatusQualified,
		UpdatedAt: updatedAt,
	}
}

func mkSession(phone string, updatedAt time.Time) Session {
	return Session{
		ID:          uuid.New(),
		Phone:       phone,
		ControlMode: ControlAgent,
		UpdatedAt:   updatedAt,
	}
}

func TestMergeLeadWithoutSession(t *testing.T) {
	t0 := time.Now()
	lead := mkLead("+14155550100", t0)

	merged := Merge([]Lead{lead}, nil, Filters{})
	if len(merged) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(merged))
	}
	if merged[0].Session != nil {
		t.Fatalf("expected nil session")
	}
	if merged[0].Virtual() {
		t.Fatalf("expected real entry")
	}
}

func TestMergeDecoratesLeadWithFreshestSession(t *testing.T) {
	now := time.Now()
	lead := mkLead("+14155550100", now.Add(-time.Hour))
	fresh := mkSession("+14155550100", now)
	stale := mkSession("+14155550100", now.Add(-2*time.Hour))

	// Sessions arrive pre-sorted by updated_at descending.
	merged := Merge([]Lead{lead}, []Session{fresh, stale}, Filters{})
	if len(merged) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(merged))
	}
	if merged[0].Session == nil || merged[0].Session.ID != fresh.ID {
		t.Fatalf("expected freshest session to win")
	}
}

func TestMergeSynthesizesVirtualLeadForOrphanSession(t *testing.T) {
	now := time.Now()
	orphan := mkSession("+14155550999", now)
	orphan.LeadSummary = LeadSummary{ContactName: "Dana Fox", CompanyName: "Foxtrot BV"}

	merged := Merge(nil, []Session{orphan}, Filters{})
	if len(merged) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(merged))
	}

	entry := merged[0]
	if !entry.Virtual() {
		t.Fatalf("expected virtual entry")
	}
	if entry.Lead.Status != LeadStatusNew || entry.Lead.Score != ScoreNew {
		t.Fatalf("expected defaulted status/score, got %q/%q", entry.Lead.Status, entry.Lead.Score)
	}
	if entry.Lead.ContactName != "Dana Fox" {
		t.Fatalf("expected identity from session summary, got %q", entry.Lead.ContactName)
	}
	if entry.Lead.ID != VirtualLeadID(orphan.ID) {
		t.Fatalf("expected synthetic id derived from session id")
	}

	// Identity must be stable across merge passes.
	again := Merge(nil, []Session{orphan}, Filters{})
	if again[0].Lead.ID != entry.Lead.ID {
		t.Fatalf("virtual lead id changed between merge passes")
	}
}

func TestMergeSuppressesVirtualLeadsUnderLeadPredicates(t *testing.T) {
	now := time.Now()
	orphan := mkSession("+14155550999", now)
	status := LeadStatusQualified
	score := ScoreHot

	cases := []struct {
		name    string
		filters Filters
	}{
		{"status filter", Filters{Status: &status}},
		{"score filter", Filters{Score: &score}},
		{"both filters", Filters{Status: &status, Score: &score}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			merged := Merge(nil, []Session{orphan}, tc.filters)
			if len(merged) != 0 {
				t.Fatalf("expected no virtual entries under lead predicates, got %d", len(merged))
			}
		})
	}
}

func TestMergeExcludesSessionsWithoutPhone(t *testing.T) {
	noPhone := mkSession("", time.Now())

	merged := Merge(nil, []Session{noPhone}, Filters{})
	if len(merged) != 0 {
		t.Fatalf("session without phone must not appear in the merge, got %d entries", len(merged))
	}
}

func TestMergeDuplicatePhoneLeadsShareOneSession(t *testing.T) {
	now := time.Now()
	first := mkLead("+14155550100", now)
	second := mkLead("+14155550100", now.Add(-time.Minute))
	session := mkSession("+14155550100", now)

	merged := Merge([]Lead{first, second}, []Session{session}, Filters{})
	if len(merged) != 2 {
		t.Fatalf("expected both duplicate-phone leads, got %d", len(merged))
	}
	for _, entry := range merged {
		if entry.Session == nil || entry.Session.ID != session.ID {
			t.Fatalf("both entries must share the session")
		}
	}
}

func TestMergeSortsByMostRecentActivityOnEitherSide(t *testing.T) {
	now := time.Now()

	staleLeadHotSession := mkLead("+14155550101", now.Add(-48*time.Hour))
	hotSession := mkSession("+14155550101", now)

	freshLeadNoSession := mkLead("+14155550102", now.Add(-time.Hour))
	oldOrphan := mkSession("+14155550103", now.Add(-24*time.Hour))

	merged := Merge(
		[]Lead{freshLeadNoSession, staleLeadHotSession},
		[]Session{hotSession, oldOrphan},
		Filters{},
	)

	if len(merged) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(merged))
	}

	wantPhones := []string{"+14155550101", "+14155550102", "+14155550103"}
	for i, want := range wantPhones {
		if merged[i].Lead.Phone != want {
			t.Fatalf("position %d: expected phone %s, got %s", i, want, merged[i].Lead.Phone)
		}
	}
}

func TestMergeFreeTextSearch(t *testing.T) {
	now := time.Now()
	lead := mkLead("+14155550100", now)
	lead.ContactName = "Alice Jensen"
	lead.CompanyName = "Jensen Logistics"
	other := mkLead("+31612345678", now)

	cases := []struct {
		name   string
		search string
		want   int
	}{
		{"by partial phone", "41555", 1},
		{"by contact name", "alice", 1},
		{"by company name", "logistics", 1},
		{"no match", "zzz", 0},
		{"empty matches all", "", 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			merged := Merge([]Lead{lead, other}, nil, Filters{Search: tc.search})
			if len(merged) != tc.want {
				t.Fatalf("search %q: expected %d entries, got %d", tc.search, tc.want, len(merged))
			}
		})
	}
}

func TestMergeControlModeFilter(t *testing.T) {
	now := time.Now()
	humanSession := mkSession("+14155550101", now)
	humanSession.ControlMode = ControlHuman
	leadWithHuman := mkLead("+14155550101", now)
	leadWithout := mkLead("+14155550102", now)

	leads := []Lead{leadWithHuman, leadWithout}
	sessions := []Session{humanSession}

	human := Merge(leads, sessions, Filters{ControlMode: string(ControlHuman)})
	if len(human) != 1 || human[0].Lead.Phone != "+14155550101" {
		t.Fatalf("expected only the human-controlled entry")
	}

	none := Merge(leads, sessions, Filters{ControlMode: ControlFilterNone})
	if len(none) != 1 || none[0].Lead.Phone != "+14155550102" {
		t.Fatalf("expected only the sessionless entry")
	}
}

func TestMergeOneEntryPerDistinctPhone(t *testing.T) {
	now := time.Now()
	leadOnly := mkLead("+14155550101", now)
	both := mkLead("+14155550102", now)
	bothSession := mkSession("+14155550102", now)
	orphan := mkSession("+14155550103", now)

	merged := Merge([]Lead{leadOnly, both}, []Session{bothSession, orphan}, Filters{})

	phones := make(map[string]int)
	for _, entry := range merged {
		phones[entry.Lead.Phone]++
	}
	if len(phones) != 3 {
		t.Fatalf("expected 3 distinct phones, got %d", len(phones))
	}
	for phone, count := range phones {
		if count != 1 {
			t.Fatalf("phone %s appears %d times, expected exactly once", phone, count)
		}
	}
}
