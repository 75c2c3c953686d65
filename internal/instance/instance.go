package instance

import (
	"time"

	"github.com/google/uuid"

	"campaign-engine/internal/event"
)

// Status is the per-instance lifecycle state. Transitions are strictly
// forward-only and validated by CanTransition.
type Status string

const (
	StatusPendingFilter Status = "pending_filter"
	StatusMonitoring    Status = "monitoring"
	StatusActionReady   Status = "action_ready"
	StatusCompleted     Status = "completed"
	StatusExpired       Status = "expired"
	StatusFailed        Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusFailed
}

var transitions = map[Status][]Status{
	StatusPendingFilter: {StatusMonitoring, StatusActionReady, StatusFailed, StatusExpired},
	StatusMonitoring:    {StatusActionReady, StatusExpired, StatusFailed},
	StatusActionReady:   {StatusCompleted, StatusExpired},
}

// CanTransition reports whether from -> to is a legal move. Terminal
// states absorb everything.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Instance is one in-flight execution of a campaign pipeline for one
// trigger match. Terminated instances are retained for audit.
type Instance struct {
	ID               string        `json:"id"`
	CampaignID       string        `json:"campaign_id"`
	TriggerWallet    string        `json:"trigger_wallet"`
	TriggerEvent     event.Event   `json:"trigger_event"`
	Status           Status        `json:"status"`
	FailReason       string        `json:"fail_reason,omitempty"`
	DispatchErr      string        `json:"dispatch_error,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	MonitorDeadline  *time.Time    `json:"monitor_deadline,omitempty"`
	MatchedSubEvents []event.Event `json:"matched_sub_events,omitempty"`
}

// New creates a pending_filter instance for a trigger match.
func New(campaignID, wallet string, ev event.Event) *Instance {
	return &Instance{
		ID:            uuid.NewString(),
		CampaignID:    campaignID,
		TriggerWallet: wallet,
		TriggerEvent:  ev,
		Status:        StatusPendingFilter,
		CreatedAt:     time.Now().UTC(),
	}
}

// Summary is the read-only projection served by the query API.
type Summary struct {
	ID              string     `json:"id"`
	CampaignID      string     `json:"campaign_id"`
	Status          Status     `json:"status"`
	TriggerWallet   string     `json:"trigger_wallet"`
	TriggerKind     event.Kind `json:"trigger_kind"`
	SubEventCount   int        `json:"matched_sub_events"`
	CreatedAt       time.Time  `json:"created_at"`
	MonitorDeadline *time.Time `json:"monitor_deadline,omitempty"`
}

func (i *Instance) Summarize() Summary {
	return Summary{
		ID:              i.ID,
		CampaignID:      i.CampaignID,
		Status:          i.Status,
		TriggerWallet:   i.TriggerWallet,
		TriggerKind:     i.TriggerEvent.Kind,
		SubEventCount:   len(i.MatchedSubEvents),
		CreatedAt:       i.CreatedAt,
		MonitorDeadline: i.MonitorDeadline,
	}
}
