package campaign

import (
	"encoding/json"
	"fmt"
)

// ValidationError marks a campaign definition rejected at save time.
type ValidationError struct {
	CampaignID string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("campaign %s invalid: %s", e.CampaignID, e.Reason)
}

func invalid(id, format string, args ...any) error {
	return &ValidationError{CampaignID: id, Reason: fmt.Sprintf(format, args...)}
}

// Plan is the compiled, runtime form of a campaign: one trigger, ordered
// filters, an optional monitor, and one or more actions. The engine only
// ever walks this stage list, never the raw node chain.
type Plan struct {
	Campaign Campaign
	Trigger  TriggerConfig
	Filters  []FilterConfig
	Monitor  *MonitorConfig
	Actions  []ActionConfig
}

// Compile orders the node chain via parent_node_id and validates shape
// and per-node config. All violations surface as *ValidationError.
func Compile(c Campaign) (*Plan, error) {
	if len(c.Nodes) == 0 {
		return nil, invalid(c.ID, "no nodes")
	}

	byParent := make(map[string]*Node, len(c.Nodes))
	var root *Node
	for i := range c.Nodes {
		n := &c.Nodes[i]
		if n.ParentNodeID == "" {
			if root != nil {
				return nil, invalid(c.ID, "multiple root nodes (%s, %s)", root.NodeID, n.NodeID)
			}
			root = n
			continue
		}
		if _, dup := byParent[n.ParentNodeID]; dup {
			return nil, invalid(c.ID, "node %s has multiple children", n.ParentNodeID)
		}
		byParent[n.ParentNodeID] = n
	}
	if root == nil {
		return nil, invalid(c.ID, "no root node (cyclic chain)")
	}

	// Walk the chain; a revisit or truncated walk means a cycle or an
	// orphaned node, both rejected.
	ordered := make([]*Node, 0, len(c.Nodes))
	seen := map[string]bool{}
	for n := root; n != nil; n = byParent[n.NodeID] {
		if seen[n.NodeID] {
			return nil, invalid(c.ID, "cycle at node %s", n.NodeID)
		}
		seen[n.NodeID] = true
		ordered = append(ordered, n)
	}
	if len(ordered) != len(c.Nodes) {
		return nil, invalid(c.ID, "disconnected nodes in chain")
	}

	plan := &Plan{Campaign: c}
	stage := NodeTrigger
	for i, n := range ordered {
		switch n.Type {
		case NodeTrigger:
			if i != 0 {
				return nil, invalid(c.ID, "trigger node %s not at chain head", n.NodeID)
			}
			var tc TriggerConfig
			if err := json.Unmarshal(n.Config, &tc); err != nil {
				return nil, invalid(c.ID, "trigger config: %v", err)
			}
			if err := validateTrigger(c.ID, tc); err != nil {
				return nil, err
			}
			plan.Trigger = tc
			stage = NodeFilter
		case NodeFilter:
			if stage != NodeFilter {
				return nil, invalid(c.ID, "filter node %s after %s stage", n.NodeID, stage)
			}
			var fc FilterConfig
			if err := json.Unmarshal(n.Config, &fc); err != nil {
				return nil, invalid(c.ID, "filter config: %v", err)
			}
			if err := validateFilter(c.ID, fc); err != nil {
				return nil, err
			}
			plan.Filters = append(plan.Filters, fc)
		case NodeMonitor:
			if stage != NodeFilter {
				return nil, invalid(c.ID, "monitor node %s after %s stage", n.NodeID, stage)
			}
			var mc MonitorConfig
			if err := json.Unmarshal(n.Config, &mc); err != nil {
				return nil, invalid(c.ID, "monitor config: %v", err)
			}
			if mc.WindowMS <= 0 {
				return nil, invalid(c.ID, "monitor window_ms must be positive")
			}
			if mc.MinEvents <= 0 {
				mc.MinEvents = 1
			}
			if mc.MaxEvents != nil && *mc.MaxEvents < mc.MinEvents {
				return nil, invalid(c.ID, "monitor max_events < min_events")
			}
			plan.Monitor = &mc
			stage = NodeAction
		case NodeAction:
			var ac ActionConfig
			if err := json.Unmarshal(n.Config, &ac); err != nil {
				return nil, invalid(c.ID, "action config: %v", err)
			}
			if err := validateAction(c.ID, ac); err != nil {
				return nil, err
			}
			plan.Actions = append(plan.Actions, ac)
			stage = NodeAction
		default:
			return nil, invalid(c.ID, "unknown node_type %q on node %s", n.Type, n.NodeID)
		}
	}

	if i := firstActionIndex(ordered); i >= 0 {
		for _, n := range ordered[i:] {
			if n.Type != NodeAction {
				return nil, invalid(c.ID, "node %s (%s) after first action", n.NodeID, n.Type)
			}
		}
	}
	if ordered[0].Type != NodeTrigger {
		return nil, invalid(c.ID, "chain head %s is not a trigger", ordered[0].NodeID)
	}
	if len(plan.Actions) == 0 {
		return nil, invalid(c.ID, "no action nodes")
	}
	return plan, nil
}

func firstActionIndex(nodes []*Node) int {
	for i, n := range nodes {
		if n.Type == NodeAction {
			return i
		}
	}
	return -1
}

func validateTrigger(id string, tc TriggerConfig) error {
	switch tc.Type {
	case TriggerTransferCredited, TriggerSignatureToAddress, TriggerAccountCreated, TriggerTokenMint:
		if len(tc.Wallets) == 0 {
			return invalid(id, "%s trigger requires a non-empty wallets list", tc.Type)
		}
		if tc.Type == TriggerTransferCredited && tc.LamportsMin != nil && tc.LamportsMax != nil &&
			*tc.LamportsMin > *tc.LamportsMax {
			return invalid(id, "lamports_min > lamports_max")
		}
	case TriggerProgramLog:
		if tc.ProgramID == "" {
			return invalid(id, "program_log trigger requires program_id")
		}
		if tc.LogPattern == "" {
			return invalid(id, "program_log trigger requires log_pattern")
		}
	default:
		return invalid(id, "unknown trigger_type %q", tc.Type)
	}
	return nil
}

func validateFilter(id string, fc FilterConfig) error {
	switch fc.Type {
	case FilterAccountAge:
		if fc.MaxAgeSeconds <= 0 {
			return invalid(id, "account_age filter requires max_age_seconds")
		}
	case FilterPriorBalance:
		if fc.MinBalance == nil && fc.MaxBalance == nil {
			return invalid(id, "prior_balance filter requires min_balance or max_balance")
		}
	case FilterInboundSources:
		if len(fc.Sources) == 0 {
			return invalid(id, "inbound_sources filter requires sources")
		}
	case FilterCustom:
		if fc.Expression == "" {
			return invalid(id, "custom filter requires expression")
		}
	default:
		return invalid(id, "unknown filter_type %q", fc.Type)
	}
	return nil
}

func validateAction(id string, ac ActionConfig) error {
	switch ac.Type {
	case ActionWebhook:
		if ac.URL == "" {
			return invalid(id, "webhook action requires url")
		}
	case ActionTagDB:
		if ac.TagName == "" {
			return invalid(id, "tag_db action requires tag_name")
		}
	case ActionSendToFetcher:
	case ActionCreateAlert:
		if ac.AlertMessage == "" {
			return invalid(id, "create_alert action requires alert_message")
		}
	default:
		return invalid(id, "unknown action_type %q", ac.Type)
	}
	return nil
}
