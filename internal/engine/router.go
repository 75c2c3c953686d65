package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"campaign-engine/internal/cache"
	"campaign-engine/internal/campaign"
	"campaign-engine/internal/event"
	"campaign-engine/internal/observability"
)

type routerIndex struct {
	wallet  map[string][]*campaign.Plan
	program map[string][]*campaign.Plan
}

type triggerWork struct {
	plan *campaign.Plan
	ev   event.Event
}

// Router fans incoming events out to trigger evaluation through
// per-campaign bounded queues. A full queue drops its oldest pending
// event; the monitor-correlation lane never goes through these queues.
type Router struct {
	snap      cache.Snapshot[routerIndex]
	queueSize int
	handle    func(triggerWork)

	mu     sync.Mutex
	ctx    context.Context
	queues map[string]chan triggerWork
}

func newRouter(ctx context.Context, queueSize int, handle func(triggerWork)) *Router {
	return &Router{
		queueSize: queueSize,
		handle:    handle,
		ctx:       ctx,
		queues:    make(map[string]chan triggerWork),
	}
}

// Rebuild swaps in fresh wallet/program indexes for the enabled plans.
// Matching uses only this snapshot, so a disabled campaign stops
// receiving new trigger events as soon as the swap lands.
func (r *Router) Rebuild(plans []*campaign.Plan) {
	idx := routerIndex{
		wallet:  make(map[string][]*campaign.Plan),
		program: make(map[string][]*campaign.Plan),
	}
	for _, p := range plans {
		if p.Trigger.Type.WalletKeyed() {
			for _, w := range p.Trigger.Wallets {
				idx.wallet[w] = append(idx.wallet[w], p)
			}
			continue
		}
		idx.program[p.Trigger.ProgramID] = append(idx.program[p.Trigger.ProgramID], p)
	}
	r.snap.Store(idx)
}

// Route looks up candidate (campaign, trigger) pairs for the event and
// enqueues them. Dispatch only; no state mutation here.
func (r *Router) Route(ev event.Event) {
	idx, ok := r.snap.Load()
	if !ok {
		return
	}
	observability.EventsRouted.Inc()

	seen := map[string]bool{}
	enq := func(plans []*campaign.Plan) {
		for _, p := range plans {
			if seen[p.Campaign.ID] {
				continue
			}
			seen[p.Campaign.ID] = true
			r.enqueue(p, ev)
		}
	}

	for _, addr := range candidateAddresses(ev) {
		enq(idx.wallet[addr])
	}
	if ev.Kind == event.KindProgramLog && ev.ProgramID != "" {
		enq(idx.program[ev.ProgramID])
	}
}

func (r *Router) enqueue(p *campaign.Plan, ev event.Event) {
	q := r.queue(p.Campaign.ID)
	w := triggerWork{plan: p, ev: ev}
	select {
	case q <- w:
		return
	default:
	}
	// Queue full: shed the oldest pending event for this campaign.
	select {
	case <-q:
		observability.TriggerEventsDropped.WithLabelValues(p.Campaign.ID).Inc()
		log.Warn().Str("campaign_id", p.Campaign.ID).Msg("trigger queue full, dropped oldest event")
	default:
	}
	select {
	case q <- w:
	default:
		observability.TriggerEventsDropped.WithLabelValues(p.Campaign.ID).Inc()
	}
}

func (r *Router) queue(campaignID string) chan triggerWork {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[campaignID]
	if !ok {
		q = make(chan triggerWork, r.queueSize)
		r.queues[campaignID] = q
		go r.drain(q)
	}
	return q
}

func (r *Router) drain(q chan triggerWork) {
	for {
		select {
		case <-r.ctx.Done():
			return
		case w := <-q:
			r.handle(w)
		}
	}
}

// candidateAddresses lists every address the event references, each a
// possible watched-wallet hit.
func candidateAddresses(ev event.Event) []string {
	out := make([]string, 0, len(ev.Addresses)+3)
	seen := map[string]bool{}
	add := func(a string) {
		if a != "" && !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	add(ev.Sender)
	add(ev.Receiver)
	add(ev.Creator)
	for _, a := range ev.Addresses {
		add(a)
	}
	return out
}
