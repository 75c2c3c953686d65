package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"campaign-engine/internal/campaign"
	"campaign-engine/internal/instance"
	"campaign-engine/internal/observability"
	"campaign-engine/internal/sink"
)

// Sinks groups the external side-effect targets actions write to.
type Sinks struct {
	Webhook sink.Webhook
	Tags    sink.TagStore
	Fetcher sink.FetchQueue
	Alerts  sink.AlertLog
}

type dispatchJob struct {
	instanceID string
	plan       *campaign.Plan
}

// Dispatcher executes actions for instances reaching action_ready, on
// its own bounded worker pool so a hung sink never blocks the pipeline.
// Delivery failure is recorded for operator visibility but the instance
// still completes; actions are never replayed.
type Dispatcher struct {
	store    *instance.Store
	sinks    Sinks
	jobs     chan dispatchJob
	attempts int
	backoff  time.Duration
}

func NewDispatcher(store *instance.Store, sinks Sinks, workers, attempts int, backoff time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		store:    store,
		sinks:    sinks,
		jobs:     make(chan dispatchJob, workers*4),
		attempts: attempts,
		backoff:  backoff,
	}
}

func (d *Dispatcher) Start(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-d.jobs:
					d.run(ctx, j)
				}
			}
		}()
	}
}

// Submit hands over an instance already claimed into action_ready. The
// claim CAS upstream guarantees at most one Submit per instance.
func (d *Dispatcher) Submit(instanceID string, plan *campaign.Plan) {
	d.jobs <- dispatchJob{instanceID: instanceID, plan: plan}
}

func (d *Dispatcher) run(ctx context.Context, j dispatchJob) {
	inst, ok := d.store.Get(j.instanceID)
	if !ok || inst.Status != instance.StatusActionReady {
		return
	}

	var errs []string
	for _, ac := range j.plan.Actions {
		if err := d.execute(ctx, ac, inst); err != nil {
			observability.DispatchErrors.WithLabelValues(string(ac.Type)).Inc()
			log.Error().Err(err).
				Str("instance_id", inst.ID).
				Str("campaign_id", inst.CampaignID).
				Str("action", string(ac.Type)).
				Msg("action dispatch failed")
			errs = append(errs, fmt.Sprintf("%s: %v", ac.Type, err))
		}
	}
	if len(errs) > 0 {
		d.store.SetDispatchError(j.instanceID, strings.Join(errs, "; "))
	}
	if d.store.Transition(j.instanceID, instance.StatusActionReady, instance.StatusCompleted) {
		observability.InstancesTerminal.WithLabelValues(string(instance.StatusCompleted)).Inc()
	}
}

// execute retries one action with exponential backoff before giving up.
func (d *Dispatcher) execute(ctx context.Context, ac campaign.ActionConfig, inst instance.Instance) error {
	var lastErr error
	for i := 0; i < d.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter(d.backoff << uint(i-1))):
			}
		}
		lastErr = d.attempt(ctx, ac, inst)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (d *Dispatcher) attempt(ctx context.Context, ac campaign.ActionConfig, inst instance.Instance) error {
	switch ac.Type {
	case campaign.ActionWebhook:
		return d.sinks.Webhook.Post(ctx, ac.URL, sink.WebhookPayload{
			CampaignID:       inst.CampaignID,
			InstanceID:       inst.ID,
			TriggerEvent:     inst.TriggerEvent,
			MatchedSubEvents: inst.MatchedSubEvents,
		})
	case campaign.ActionTagDB:
		return d.sinks.Tags.EnsureTag(ctx, inst.TriggerWallet, ac.TagName)
	case campaign.ActionSendToFetcher:
		return d.sinks.Fetcher.Enqueue(ctx, inst.TriggerWallet)
	case campaign.ActionCreateAlert:
		return d.sinks.Alerts.Emit(ctx, sink.Alert{
			CampaignID: inst.CampaignID,
			InstanceID: inst.ID,
			Wallet:     inst.TriggerWallet,
			Message:    ac.AlertMessage,
		})
	}
	return fmt.Errorf("unknown action_type %q", ac.Type)
}
