package client

import (
	"sync"

	"github.com/google/uuid"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
)

// DraftCount is the fixed length of the draft list shown while a
// self-refinement request streams.
const DraftCount = 5

// Snapshot is the observable state of a session's current request. Draft
// list length never changes during a request; terminal draft states never
// revert.
type Snapshot struct {
	RequestID string
	Drafts    []domain.DraftStatus
	Result    *domain.ExplanationResult
	Err       string
	Done      bool
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Drafts = append([]domain.DraftStatus(nil), s.Drafts...)
	return out
}

// Session serializes explanation requests for one consumer. Only the most
// recently started request may mutate the snapshot; events from earlier
// requests arriving late are dropped.
type Session struct {
	mu       sync.Mutex
	snapshot Snapshot
}

func NewSession() *Session {
	return &Session{}
}

// Begin starts a new request and resets the snapshot to a pending draft
// list. It returns the request ID that subsequent Apply calls must present.
func (s *Session) Begin(drafts int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.snapshot = Snapshot{
		RequestID: id,
		Drafts:    domain.NewDraftList(drafts),
	}
	return id
}

// Apply folds one stream event into the snapshot. It reports whether the
// event was accepted; stale, out-of-range and state-regressing events are
// dropped without effect.
func (s *Session) Apply(requestID string, event domain.StreamEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requestID != s.snapshot.RequestID || s.snapshot.Done {
		return false
	}

	switch event.Type {
	case domain.EventDraftProgress:
		if event.Index == nil || *event.Index < 0 || *event.Index >= len(s.snapshot.Drafts) {
			return false
		}
		draft := &s.snapshot.Drafts[*event.Index]
		if draft.Status.Terminal() {
			return false
		}
		draft.Status = event.Status
		if event.Ranking != nil {
			draft.Ranking = event.Ranking
		}
		return true

	case domain.EventComplete:
		if event.Result == nil {
			return false
		}
		s.snapshot.Result = event.Result
		// The result's draft snapshot is authoritative, even when it
		// disagrees with locally tracked progress.
		s.snapshot.Drafts = append([]domain.DraftStatus(nil), event.Result.Drafts...)
		s.snapshot.Done = true
		return true

	case domain.EventError:
		s.snapshot.Err = event.Message
		s.snapshot.Done = true
		return true
	}
	return false
}

// Fail marks the current request failed without touching draft states, for
// transport-level failures where no terminal event arrived.
func (s *Session) Fail(requestID, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requestID != s.snapshot.RequestID || s.snapshot.Done {
		return false
	}
	s.snapshot.Err = message
	s.snapshot.Done = true
	return true
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.clone()
}
