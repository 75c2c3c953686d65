package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"campaign-engine/internal/campaign"
	"campaign-engine/internal/instance"
	"campaign-engine/internal/observability"
)

// runFilters evaluates the plan's filter chain as a conjunction with
// short-circuit, then advances the instance to monitoring or
// action_ready. Called on the lookup pool, never on a shard worker.
func (e *Engine) runFilters(ctx context.Context, inst instance.Instance, plan *campaign.Plan) {
	for _, fc := range plan.Filters {
		ok, err := e.evalFilter(ctx, fc, inst)
		if err != nil {
			e.store.Fail(inst.ID, instance.StatusPendingFilter, fmt.Sprintf("%s filter: %v", fc.Type, err))
			observability.InstancesTerminal.WithLabelValues(string(instance.StatusFailed)).Inc()
			return
		}
		if !ok {
			e.store.Fail(inst.ID, instance.StatusPendingFilter, fmt.Sprintf("%s filter rejected", fc.Type))
			observability.InstancesTerminal.WithLabelValues(string(instance.StatusFailed)).Inc()
			return
		}
	}

	if plan.Monitor != nil {
		if e.store.Transition(inst.ID, instance.StatusPendingFilter, instance.StatusMonitoring) {
			deadline := inst.CreatedAt.Add(time.Duration(plan.Monitor.WindowMS) * time.Millisecond)
			e.store.SetMonitorDeadline(inst.ID, deadline)
			e.subscribeMonitor(inst, plan)
		}
		return
	}
	if e.store.Transition(inst.ID, instance.StatusPendingFilter, instance.StatusActionReady) {
		e.dispatcher.Submit(inst.ID, plan)
	}
}

func (e *Engine) evalFilter(ctx context.Context, fc campaign.FilterConfig, inst instance.Instance) (bool, error) {
	switch fc.Type {
	case campaign.FilterAccountAge:
		firstSeen, err := withLookupRetry(ctx, e.opts.LookupAttempts, e.opts.BackoffBase, func() (time.Time, error) {
			return e.accounts.FirstSeenAt(ctx, inst.TriggerWallet)
		})
		if err != nil {
			return false, fmt.Errorf("first_seen lookup: %w", err)
		}
		age := inst.TriggerEvent.Timestamp.Sub(firstSeen)
		return age <= time.Duration(fc.MaxAgeSeconds)*time.Second, nil

	case campaign.FilterPriorBalance:
		// Snapshot at the trigger timestamp; a later "current" balance
		// would race with transfers that happened after the trigger.
		bal, err := withLookupRetry(ctx, e.opts.LookupAttempts, e.opts.BackoffBase, func() (uint64, error) {
			return e.accounts.BalanceAt(ctx, inst.TriggerWallet, inst.TriggerEvent.Timestamp)
		})
		if err != nil {
			return false, fmt.Errorf("balance lookup: %w", err)
		}
		if fc.MinBalance != nil && bal < *fc.MinBalance {
			return false, nil
		}
		if fc.MaxBalance != nil && bal > *fc.MaxBalance {
			return false, nil
		}
		return true, nil

	case campaign.FilterInboundSources:
		return contains(fc.Sources, inst.TriggerEvent.Sender), nil

	case campaign.FilterCustom:
		if e.custom == nil {
			return false, fmt.Errorf("no custom predicate evaluator configured")
		}
		return e.custom(ctx, fc.Expression, inst.TriggerWallet)
	}
	return false, fmt.Errorf("unknown filter_type %q", fc.Type)
}

// withLookupRetry retries a flaky external lookup with exponential
// backoff and jitter before giving up.
func withLookupRetry[T any](ctx context.Context, attempts int, base time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			observability.LookupRetries.Inc()
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(jitter(base << uint(i-1))):
			}
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	return zero, lastErr
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64() // 0.5x-1.5x
	return time.Duration(float64(base) * factor)
}
