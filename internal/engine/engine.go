package engine

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"campaign-engine/internal/campaign"
	"campaign-engine/internal/event"
	"campaign-engine/internal/instance"
)

// Options tunes the engine's concurrency and retry behavior.
type Options struct {
	Shards           int
	TriggerQueueSize int
	LookupWorkers    int
	DispatchWorkers  int
	LookupAttempts   int
	DispatchAttempts int
	BackoffBase      time.Duration
}

type filterJob struct {
	inst instance.Instance
	plan *campaign.Plan
}

// Engine ties the pipeline together: sharded ingestion, trigger
// matching, filter evaluation, monitor correlation, action dispatch and
// expiry. Per-wallet event order is preserved by hashing events onto a
// fixed shard; cross-wallet work runs in parallel.
type Engine struct {
	opts       Options
	registry   *campaign.Registry
	store      *instance.Store
	accounts   AccountContext
	custom     CustomPredicate
	dispatcher *Dispatcher
	router     *Router
	monitors   *monitorTable

	shards     []chan event.Event
	lookupJobs chan filterJob

	mu        sync.RWMutex
	lifetimes map[string]time.Duration

	startOnce sync.Once
}

func New(opts Options, registry *campaign.Registry, store *instance.Store, accounts AccountContext, custom CustomPredicate, sinks Sinks) *Engine {
	if opts.Shards <= 0 {
		opts.Shards = 1
	}
	e := &Engine{
		opts:      opts,
		registry:  registry,
		store:     store,
		accounts:  accounts,
		custom:    custom,
		monitors:  newMonitorTable(),
		lifetimes: make(map[string]time.Duration),
	}
	e.dispatcher = NewDispatcher(store, sinks, opts.DispatchWorkers, opts.DispatchAttempts, opts.BackoffBase)
	return e
}

// Start launches the shard workers, lookup pool and dispatch pool, and
// builds the initial routing indexes. Idempotent.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.router = newRouter(ctx, e.opts.TriggerQueueSize, e.handleTrigger)
		e.router.Rebuild(e.registry.Enabled())

		e.shards = make([]chan event.Event, e.opts.Shards)
		for i := range e.shards {
			ch := make(chan event.Event, 64)
			e.shards[i] = ch
			go e.runShard(ctx, ch)
		}

		e.lookupJobs = make(chan filterJob, e.opts.LookupWorkers*2)
		for i := 0; i < e.opts.LookupWorkers; i++ {
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case j := <-e.lookupJobs:
						e.runFilters(ctx, j.inst, j.plan)
					}
				}
			}()
		}

		e.dispatcher.Start(ctx, e.opts.DispatchWorkers)
		log.Info().Int("shards", e.opts.Shards).Msg("engine started")
	})
}

// Refresh rebuilds the routing indexes from the registry's current
// enabled set. Called after every registry rebuild.
func (e *Engine) Refresh() {
	if e.router != nil {
		e.router.Rebuild(e.registry.Enabled())
	}
}

// Ingest accepts one normalized event from the feed. Events for the
// same wallet land on the same shard, preserving their order.
func (e *Engine) Ingest(ev event.Event) {
	e.shards[shardFor(ev.SubjectWallet(), len(e.shards))] <- ev
}

func (e *Engine) runShard(ctx context.Context, ch chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			// Monitor correlation first and inline: this lane must
			// never drop a sub-event for an in-flight instance.
			e.correlate(ev)
			e.router.Route(ev)
		}
	}
}

// handleTrigger runs on a per-campaign queue worker: evaluate the
// trigger predicate and spawn an instance on a match.
func (e *Engine) handleTrigger(w triggerWork) {
	// Re-check enablement: the campaign may have been disabled after
	// this event was queued.
	if _, ok := e.registry.Get(w.plan.Campaign.ID); !ok {
		return
	}
	if !MatchTrigger(w.plan.Trigger, w.ev) {
		return
	}

	inst := instance.New(w.plan.Campaign.ID, triggerWallet(w.plan.Trigger, w.ev), w.ev)
	e.store.Add(inst)
	e.rememberLifetime(w.plan.Campaign)
	log.Debug().
		Str("instance_id", inst.ID).
		Str("campaign_id", inst.CampaignID).
		Str("wallet", inst.TriggerWallet).
		Msg("trigger matched, instance created")

	e.lookupJobs <- filterJob{inst: *inst, plan: w.plan}
}

func (e *Engine) rememberLifetime(c campaign.Campaign) {
	if c.LifetimeMS <= 0 {
		return
	}
	e.mu.Lock()
	e.lifetimes[c.ID] = time.Duration(c.LifetimeMS) * time.Millisecond
	e.mu.Unlock()
}

func shardFor(wallet string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(wallet))
	return int(h.Sum32() % uint32(n))
}
