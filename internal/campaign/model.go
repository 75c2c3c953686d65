package campaign

import (
	"encoding/json"

	"campaign-engine/internal/event"
)

type NodeType string

const (
	NodeTrigger NodeType = "trigger"
	NodeFilter  NodeType = "filter"
	NodeMonitor NodeType = "monitor"
	NodeAction  NodeType = "action"
)

type TriggerType string

const (
	TriggerTransferCredited   TriggerType = "transfer_credited"
	TriggerSignatureToAddress TriggerType = "signature_to_address"
	TriggerProgramLog         TriggerType = "program_log"
	TriggerAccountCreated     TriggerType = "account_created"
	TriggerTokenMint          TriggerType = "token_mint"
)

type FilterType string

const (
	FilterAccountAge     FilterType = "account_age"
	FilterPriorBalance   FilterType = "prior_balance"
	FilterInboundSources FilterType = "inbound_sources"
	FilterCustom         FilterType = "custom"
)

type ActionType string

const (
	ActionWebhook       ActionType = "webhook"
	ActionTagDB         ActionType = "tag_db"
	ActionSendToFetcher ActionType = "send_to_fetcher"
	ActionCreateAlert   ActionType = "create_alert"
)

// Campaign is the authored definition. Once loaded into the registry it
// is treated as immutable; updates replace the whole definition.
type Campaign struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Enabled    bool     `json:"enabled"`
	Tags       []string `json:"tags,omitempty"`
	LifetimeMS int64    `json:"lifetime_ms,omitempty"`
	Nodes      []Node   `json:"nodes"`
}

// Node is one step in a campaign's declared chain. ParentNodeID encodes
// declaration order; Compile turns the chain into an explicit stage list.
type Node struct {
	NodeID       string          `json:"node_id"`
	Type         NodeType        `json:"node_type"`
	ParentNodeID string          `json:"parent_node_id,omitempty"`
	Config       json.RawMessage `json:"config"`
}

type TriggerConfig struct {
	Type          TriggerType `json:"trigger_type"`
	Wallets       []string    `json:"wallets,omitempty"`
	LamportsExact *uint64     `json:"lamports_exact,omitempty"`
	LamportsMin   *uint64     `json:"lamports_min,omitempty"`
	LamportsMax   *uint64     `json:"lamports_max,omitempty"`
	SenderList    []string    `json:"sender_list,omitempty"`
	ProgramID     string      `json:"program_id,omitempty"`
	// LogPattern is matched as a plain substring of the log line.
	LogPattern string `json:"log_pattern,omitempty"`
}

type FilterConfig struct {
	Type          FilterType `json:"filter_type"`
	MaxAgeSeconds int64      `json:"max_age_seconds,omitempty"`
	MinBalance    *uint64    `json:"min_balance,omitempty"`
	MaxBalance    *uint64    `json:"max_balance,omitempty"`
	Sources       []string   `json:"sources,omitempty"`
	Expression    string     `json:"expression,omitempty"`
}

type MonitorConfig struct {
	WindowMS        int64        `json:"window_ms"`
	ProgramsToWatch []string     `json:"programs_to_watch,omitempty"`
	Events          []event.Kind `json:"events,omitempty"`
	MinEvents       int          `json:"min_events,omitempty"`
	MaxEvents       *int         `json:"max_events,omitempty"`
}

type ActionConfig struct {
	Type         ActionType `json:"action_type"`
	URL          string     `json:"url,omitempty"`
	TagName      string     `json:"tag_name,omitempty"`
	AlertMessage string     `json:"alert_message,omitempty"`
}

// WalletKeyed reports whether the trigger type subscribes by wallet
// address (as opposed to by program id).
func (t TriggerType) WalletKeyed() bool {
	return t != TriggerProgramLog
}
