package client

import (
	"testing"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
)

func TestSessionBeginResetsSnapshot(t *testing.T) {
	s := NewSession()
	id := s.Begin(DraftCount)
	if id == "" {
		t.Fatal("Begin() returned empty request ID")
	}

	snap := s.Snapshot()
	if len(snap.Drafts) != DraftCount {
		t.Fatalf("drafts = %d, want %d", len(snap.Drafts), DraftCount)
	}
	for i, d := range snap.Drafts {
		if d.Status != domain.DraftPending || d.Index != i {
			t.Errorf("draft %d = %+v, want pending", i, d)
		}
	}
	if snap.Done || snap.Err != "" || snap.Result != nil {
		t.Errorf("snapshot = %+v, want clean state", snap)
	}
}

func TestSessionAppliesDraftProgress(t *testing.T) {
	s := NewSession()
	id := s.Begin(DraftCount)

	if !s.Apply(id, domain.DraftProgressEvent(2, domain.DraftLoading, nil)) {
		t.Fatal("Apply(loading) = false")
	}
	ranking := map[string]int{"age": 1}
	if !s.Apply(id, domain.DraftProgressEvent(2, domain.DraftSuccess, ranking)) {
		t.Fatal("Apply(success) = false")
	}

	snap := s.Snapshot()
	if snap.Drafts[2].Status != domain.DraftSuccess {
		t.Errorf("draft 2 status = %q", snap.Drafts[2].Status)
	}
	if snap.Drafts[2].Ranking["age"] != 1 {
		t.Errorf("draft 2 ranking = %v", snap.Drafts[2].Ranking)
	}
	if snap.Drafts[0].Status != domain.DraftPending {
		t.Errorf("draft 0 status = %q, want untouched", snap.Drafts[0].Status)
	}
}

func TestSessionTerminalDraftStateNeverRegresses(t *testing.T) {
	s := NewSession()
	id := s.Begin(DraftCount)

	s.Apply(id, domain.DraftProgressEvent(1, domain.DraftSuccess, nil))
	if s.Apply(id, domain.DraftProgressEvent(1, domain.DraftLoading, nil)) {
		t.Error("Apply() accepted a regression from success to loading")
	}
	if s.Apply(id, domain.DraftProgressEvent(1, domain.DraftFailed, nil)) {
		t.Error("Apply() accepted a flip from success to failed")
	}
	if got := s.Snapshot().Drafts[1].Status; got != domain.DraftSuccess {
		t.Errorf("draft 1 status = %q, want success preserved", got)
	}
}

func TestSessionDropsStaleAndOutOfRangeEvents(t *testing.T) {
	s := NewSession()
	old := s.Begin(DraftCount)
	current := s.Begin(DraftCount)

	if s.Apply(old, domain.DraftProgressEvent(0, domain.DraftLoading, nil)) {
		t.Error("Apply() accepted an event from a superseded request")
	}
	if s.Apply(current, domain.DraftProgressEvent(DraftCount, domain.DraftLoading, nil)) {
		t.Error("Apply() accepted an out-of-range draft index")
	}
	if s.Apply(current, domain.StreamEvent{Type: domain.EventDraftProgress, Status: domain.DraftLoading}) {
		t.Error("Apply() accepted a draft event with no index")
	}
}

func TestSessionCompleteReplacesSnapshot(t *testing.T) {
	s := NewSession()
	id := s.Begin(DraftCount)
	s.Apply(id, domain.DraftProgressEvent(0, domain.DraftLoading, nil))

	score := 0.82
	result := &domain.ExplanationResult{
		Explanation:    "final narrative",
		Status:         "success",
		ConsensusScore: &score,
		Drafts: []domain.DraftStatus{
			{Index: 0, Status: domain.DraftSuccess},
			{Index: 1, Status: domain.DraftSuccess},
			{Index: 2, Status: domain.DraftFailed},
			{Index: 3, Status: domain.DraftSuccess},
			{Index: 4, Status: domain.DraftSuccess},
		},
	}
	if !s.Apply(id, domain.CompleteEvent(result)) {
		t.Fatal("Apply(complete) = false")
	}

	snap := s.Snapshot()
	if !snap.Done || snap.Err != "" {
		t.Fatalf("snapshot = %+v, want done without error", snap)
	}
	if snap.Result == nil || snap.Result.Explanation != "final narrative" {
		t.Fatalf("Result = %+v", snap.Result)
	}
	if snap.Drafts[2].Status != domain.DraftFailed {
		t.Error("complete event did not replace the draft list")
	}

	// Nothing may mutate a finished request.
	if s.Apply(id, domain.DraftProgressEvent(0, domain.DraftFailed, nil)) {
		t.Error("Apply() accepted an event after the terminal complete")
	}
	if s.Apply(id, domain.ErrorEvent("late error")) {
		t.Error("Apply() accepted an error after the terminal complete")
	}
}

func TestSessionCompleteReplacesDraftsUnconditionally(t *testing.T) {
	s := NewSession()
	id := s.Begin(DraftCount)
	s.Apply(id, domain.DraftProgressEvent(0, domain.DraftSuccess, map[string]int{"age": 1}))
	s.Apply(id, domain.DraftProgressEvent(1, domain.DraftLoading, nil))

	// A complete event whose result carries no draft snapshot still
	// replaces the locally tracked list.
	if !s.Apply(id, domain.CompleteEvent(&domain.ExplanationResult{
		Explanation: "narrative",
		Status:      "success",
	})) {
		t.Fatal("Apply(complete) = false")
	}

	snap := s.Snapshot()
	if !snap.Done || snap.Err != "" {
		t.Fatalf("snapshot = %+v, want done without error", snap)
	}
	if len(snap.Drafts) != 0 {
		t.Errorf("drafts = %+v, want the result's empty snapshot", snap.Drafts)
	}
}

func TestSessionErrorIsTerminal(t *testing.T) {
	s := NewSession()
	id := s.Begin(DraftCount)

	if !s.Apply(id, domain.ErrorEvent("all drafts failed")) {
		t.Fatal("Apply(error) = false")
	}
	snap := s.Snapshot()
	if !snap.Done || snap.Err != "all drafts failed" {
		t.Fatalf("snapshot = %+v, want terminal error", snap)
	}
	if s.Apply(id, domain.CompleteEvent(&domain.ExplanationResult{})) {
		t.Error("Apply() accepted a complete after the terminal error")
	}
}

func TestSessionFailPreservesDraftStates(t *testing.T) {
	s := NewSession()
	id := s.Begin(DraftCount)
	s.Apply(id, domain.DraftProgressEvent(2, domain.DraftFailed, nil))

	if !s.Fail(id, "connection lost") {
		t.Fatal("Fail() = false")
	}

	snap := s.Snapshot()
	if !snap.Done || snap.Err != "connection lost" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Drafts[2].Status != domain.DraftFailed {
		t.Error("Fail() disturbed draft 2's terminal state")
	}
	for _, i := range []int{0, 1, 3, 4} {
		if snap.Drafts[i].Status != domain.DraftPending {
			t.Errorf("draft %d status = %q, want pending preserved", i, snap.Drafts[i].Status)
		}
	}

	if s.Fail(id, "again") {
		t.Error("Fail() succeeded twice for the same request")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewSession()
	id := s.Begin(DraftCount)

	snap := s.Snapshot()
	snap.Drafts[0].Status = domain.DraftFailed

	s.Apply(id, domain.DraftProgressEvent(0, domain.DraftLoading, nil))
	if got := s.Snapshot().Drafts[0].Status; got != domain.DraftLoading {
		t.Errorf("draft 0 status = %q; external mutation leaked into the session", got)
	}
}
