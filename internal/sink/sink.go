// Package sink holds the concrete side-effect targets the dispatcher
// writes to: webhook endpoints, the wallet tag store, the fetch queue,
// and the alert log.
package sink

import (
	"context"

	"campaign-engine/internal/event"
)

// WebhookPayload is the summary POSTed for webhook actions.
type WebhookPayload struct {
	CampaignID       string        `json:"campaign_id"`
	InstanceID       string        `json:"instance_id"`
	TriggerEvent     event.Event   `json:"trigger_event"`
	MatchedSubEvents []event.Event `json:"matched_sub_events,omitempty"`
}

type Webhook interface {
	Post(ctx context.Context, url string, payload WebhookPayload) error
}

// TagStore maps wallet -> set<tag>. Tag application is idempotent.
type TagStore interface {
	EnsureTag(ctx context.Context, wallet, tag string) error
}

// FetchQueue receives addresses for an external fetcher. Delivery is
// at-least-once.
type FetchQueue interface {
	Enqueue(ctx context.Context, wallet string) error
}

type Alert struct {
	CampaignID string `json:"campaign_id"`
	InstanceID string `json:"instance_id"`
	Wallet     string `json:"wallet"`
	Message    string `json:"message"`
}

type AlertLog interface {
	Emit(ctx context.Context, a Alert) error
}
