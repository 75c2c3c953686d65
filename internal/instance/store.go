package instance

import (
	"sort"
	"sync"
	"time"

	"campaign-engine/internal/event"
)

// Store holds all live and terminated instances. Every status mutation
// goes through Transition, a mutex-guarded compare-and-swap, so a
// monitor match and a reaper sweep racing on one instance resolve to
// exactly one terminal state.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*Instance
}

func NewStore() *Store {
	return &Store{byID: make(map[string]*Instance)}
}

func (s *Store) Add(inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[inst.ID] = inst
}

// Transition moves id from `from` to `to` if and only if the instance is
// currently in `from` and the move is legal. Returns false otherwise;
// the caller observing false treats the instance as already claimed.
func (s *Store) Transition(id string, from, to Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.byID[id]
	if !ok || inst.Status != from || !CanTransition(from, to) {
		return false
	}
	inst.Status = to
	return true
}

// Fail terminates the instance with a recorded reason.
func (s *Store) Fail(id string, from Status, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.byID[id]
	if !ok || inst.Status != from || !CanTransition(from, StatusFailed) {
		return false
	}
	inst.Status = StatusFailed
	inst.FailReason = reason
	return true
}

func (s *Store) SetMonitorDeadline(id string, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.byID[id]; ok {
		inst.MonitorDeadline = &deadline
	}
}

// AppendSubEvent records a qualifying sub-event while the instance is
// monitoring. Returns the new count and whether the append happened.
// maxEvents <= 0 means uncapped; at the cap the event is not recorded.
func (s *Store) AppendSubEvent(id string, ev event.Event, maxEvents int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.byID[id]
	if !ok || inst.Status != StatusMonitoring {
		return 0, false
	}
	if maxEvents > 0 && len(inst.MatchedSubEvents) >= maxEvents {
		return len(inst.MatchedSubEvents), false
	}
	inst.MatchedSubEvents = append(inst.MatchedSubEvents, ev)
	return len(inst.MatchedSubEvents), true
}

func (s *Store) SetDispatchError(id, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.byID[id]; ok {
		inst.DispatchErr = msg
	}
}

// Get returns a copy so readers never observe concurrent mutation.
func (s *Store) Get(id string) (Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.byID[id]
	if !ok {
		return Instance{}, false
	}
	cp := *inst
	cp.MatchedSubEvents = append([]event.Event(nil), inst.MatchedSubEvents...)
	return cp, true
}

// Monitoring returns the ids and correlation state of all monitoring
// instances, for the router's monitor lane and the reaper.
func (s *Store) Monitoring() []Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Instance
	for _, inst := range s.byID {
		if inst.Status == StatusMonitoring {
			out = append(out, *inst)
		}
	}
	return out
}

// NonTerminal returns live instances for the reaper's lifetime sweep.
func (s *Store) NonTerminal() []Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Instance
	for _, inst := range s.byID {
		if !inst.Status.Terminal() {
			out = append(out, *inst)
		}
	}
	return out
}

// ListByCampaign returns summaries ordered newest first.
func (s *Store) ListByCampaign(campaignID string) []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Summary
	for _, inst := range s.byID {
		if inst.CampaignID == campaignID {
			out = append(out, inst.Summarize())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
