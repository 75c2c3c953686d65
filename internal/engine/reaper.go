package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"campaign-engine/internal/instance"
	"campaign-engine/internal/observability"
)

// RunReaper sweeps live instances on a fixed interval, expiring
// monitoring instances past their window deadline and enforcing
// campaign-level lifetimes. Every expiry goes through the same CAS as
// monitor matches, so a racing late sub-event resolves to exactly one
// terminal state.
func (e *Engine) RunReaper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.sweep(time.Now().UTC())
		}
	}
}

func (e *Engine) sweep(now time.Time) {
	for _, inst := range e.store.Monitoring() {
		if inst.MonitorDeadline != nil && now.After(*inst.MonitorDeadline) {
			e.expire(inst, "monitor window elapsed")
		}
	}
	for _, inst := range e.store.NonTerminal() {
		lifetime := e.lifetimeFor(inst.CampaignID)
		if lifetime > 0 && now.Sub(inst.CreatedAt) > lifetime {
			e.expire(inst, "campaign lifetime exceeded")
		}
	}
}

func (e *Engine) expire(inst instance.Instance, why string) {
	if !e.store.Transition(inst.ID, inst.Status, instance.StatusExpired) {
		return // already claimed by a concurrent transition
	}
	if inst.Status == instance.StatusMonitoring {
		e.monitors.remove(inst.TriggerWallet, inst.ID)
	}
	observability.InstancesTerminal.WithLabelValues(string(instance.StatusExpired)).Inc()
	log.Debug().
		Str("instance_id", inst.ID).
		Str("campaign_id", inst.CampaignID).
		Str("reason", why).
		Msg("instance expired")
}

// lifetimeFor reads lifetime_ms from the enabled plan, falling back to
// the lifetimes remembered at instance creation for campaigns disabled
// since; a disabled campaign's live instances still age out.
func (e *Engine) lifetimeFor(campaignID string) time.Duration {
	if p, ok := e.registry.Get(campaignID); ok {
		return time.Duration(p.Campaign.LifetimeMS) * time.Millisecond
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lifetimes[campaignID]
}
