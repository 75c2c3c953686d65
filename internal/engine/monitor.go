package engine

import (
	"sync"

	"campaign-engine/internal/campaign"
	"campaign-engine/internal/event"
	"campaign-engine/internal/instance"
)

// monitorSub is one monitoring instance's correlation subscription,
// keyed by its trigger wallet.
type monitorSub struct {
	instanceID string
	plan       *campaign.Plan
}

type monitorTable struct {
	mu sync.RWMutex
	// wallet -> instance id -> subscription
	byWallet map[string]map[string]monitorSub
}

func newMonitorTable() *monitorTable {
	return &monitorTable{byWallet: make(map[string]map[string]monitorSub)}
}

func (t *monitorTable) add(wallet, instanceID string, plan *campaign.Plan) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs, ok := t.byWallet[wallet]
	if !ok {
		subs = make(map[string]monitorSub)
		t.byWallet[wallet] = subs
	}
	subs[instanceID] = monitorSub{instanceID: instanceID, plan: plan}
}

func (t *monitorTable) remove(wallet, instanceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if subs, ok := t.byWallet[wallet]; ok {
		delete(subs, instanceID)
		if len(subs) == 0 {
			delete(t.byWallet, wallet)
		}
	}
}

func (t *monitorTable) subsFor(wallet string) []monitorSub {
	t.mu.RLock()
	defer t.mu.RUnlock()
	subs, ok := t.byWallet[wallet]
	if !ok {
		return nil
	}
	out := make([]monitorSub, 0, len(subs))
	for _, s := range subs {
		out = append(out, s)
	}
	return out
}

func (e *Engine) subscribeMonitor(inst instance.Instance, plan *campaign.Plan) {
	e.monitors.add(inst.TriggerWallet, inst.ID, plan)
}

// correlate feeds an event to every monitoring instance whose trigger
// wallet the event references. Correlation is scoped per wallet: an
// event for wallet A never reaches an instance keyed on wallet B. This
// lane is never subject to queue drops.
func (e *Engine) correlate(ev event.Event) {
	for _, addr := range candidateAddresses(ev) {
		for _, sub := range e.monitors.subsFor(addr) {
			e.correlateOne(addr, sub, ev)
		}
	}
}

func (e *Engine) correlateOne(wallet string, sub monitorSub, ev event.Event) {
	mc := sub.plan.Monitor
	if !qualifies(mc, ev) {
		return
	}

	maxEvents := 0
	if mc.MaxEvents != nil {
		maxEvents = *mc.MaxEvents
	}
	count, appended := e.store.AppendSubEvent(sub.instanceID, ev, maxEvents)
	if !appended {
		return
	}
	if count < mc.MinEvents {
		return
	}
	// Eager completion: advance the moment min_events is reached. The
	// CAS loses cleanly if the reaper expired the instance first.
	if e.store.Transition(sub.instanceID, instance.StatusMonitoring, instance.StatusActionReady) {
		e.monitors.remove(wallet, sub.instanceID)
		e.dispatcher.Submit(sub.instanceID, sub.plan)
	}
}

func qualifies(mc *campaign.MonitorConfig, ev event.Event) bool {
	if len(mc.ProgramsToWatch) > 0 && !contains(mc.ProgramsToWatch, ev.ProgramID) {
		return false
	}
	if len(mc.Events) > 0 {
		found := false
		for _, k := range mc.Events {
			if k == ev.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
