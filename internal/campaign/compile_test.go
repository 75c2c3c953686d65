package campaign

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(t *testing.T, id string, typ NodeType, parent string, cfg any) Node {
	t.Helper()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	return Node{NodeID: id, Type: typ, ParentNodeID: parent, Config: raw}
}

func validChain(t *testing.T) []Node {
	return []Node{
		node(t, "t1", NodeTrigger, "", map[string]any{
			"trigger_type": "transfer_credited",
			"wallets":      []string{"W1"},
		}),
		node(t, "f1", NodeFilter, "t1", map[string]any{
			"filter_type":     "account_age",
			"max_age_seconds": 86400,
		}),
		node(t, "m1", NodeMonitor, "f1", map[string]any{
			"window_ms": 60000,
		}),
		node(t, "a1", NodeAction, "m1", map[string]any{
			"action_type": "tag_db",
			"tag_name":    "hot_wallet",
		}),
	}
}

func TestCompile_ValidChain(t *testing.T) {
	plan, err := Compile(Campaign{ID: "c1", Name: "test", Enabled: true, Nodes: validChain(t)})
	require.NoError(t, err)

	assert.Equal(t, TriggerTransferCredited, plan.Trigger.Type)
	require.Len(t, plan.Filters, 1)
	assert.Equal(t, FilterAccountAge, plan.Filters[0].Type)
	require.NotNil(t, plan.Monitor)
	assert.Equal(t, int64(60000), plan.Monitor.WindowMS)
	assert.Equal(t, 1, plan.Monitor.MinEvents) // defaulted
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, ActionTagDB, plan.Actions[0].Type)
}

func TestCompile_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		nodes func(t *testing.T) []Node
	}{
		{
			name: "empty wallets on wallet-keyed trigger",
			nodes: func(t *testing.T) []Node {
				return []Node{
					node(t, "t1", NodeTrigger, "", map[string]any{
						"trigger_type": "transfer_credited",
					}),
					node(t, "a1", NodeAction, "t1", map[string]any{
						"action_type": "send_to_fetcher",
					}),
				}
			},
		},
		{
			name: "empty wallets on token_mint trigger",
			nodes: func(t *testing.T) []Node {
				return []Node{
					node(t, "t1", NodeTrigger, "", map[string]any{
						"trigger_type": "token_mint",
					}),
					node(t, "a1", NodeAction, "t1", map[string]any{
						"action_type": "send_to_fetcher",
					}),
				}
			},
		},
		{
			name: "cyclic chain",
			nodes: func(t *testing.T) []Node {
				return []Node{
					node(t, "a", NodeTrigger, "b", map[string]any{"trigger_type": "token_mint", "wallets": []string{"W"}}),
					node(t, "b", NodeAction, "a", map[string]any{"action_type": "send_to_fetcher"}),
				}
			},
		},
		{
			name: "unknown node type",
			nodes: func(t *testing.T) []Node {
				ns := validChain(t)
				ns[1].Type = "teleport"
				return ns
			},
		},
		{
			name: "unknown trigger type",
			nodes: func(t *testing.T) []Node {
				return []Node{
					node(t, "t1", NodeTrigger, "", map[string]any{"trigger_type": "comet_sighted"}),
					node(t, "a1", NodeAction, "t1", map[string]any{"action_type": "send_to_fetcher"}),
				}
			},
		},
		{
			name: "no action nodes",
			nodes: func(t *testing.T) []Node {
				return []Node{
					node(t, "t1", NodeTrigger, "", map[string]any{"trigger_type": "token_mint", "wallets": []string{"W"}}),
				}
			},
		},
		{
			name: "monitor max_events below min_events",
			nodes: func(t *testing.T) []Node {
				ns := validChain(t)
				ns[2] = node(t, "m1", NodeMonitor, "f1", map[string]any{
					"window_ms":  60000,
					"min_events": 3,
					"max_events": 2,
				})
				return ns
			},
		},
		{
			name: "filter after monitor",
			nodes: func(t *testing.T) []Node {
				return []Node{
					node(t, "t1", NodeTrigger, "", map[string]any{"trigger_type": "token_mint", "wallets": []string{"W"}}),
					node(t, "m1", NodeMonitor, "t1", map[string]any{"window_ms": 1000}),
					node(t, "f1", NodeFilter, "m1", map[string]any{"filter_type": "account_age", "max_age_seconds": 60}),
					node(t, "a1", NodeAction, "f1", map[string]any{"action_type": "send_to_fetcher"}),
				}
			},
		},
		{
			name: "trigger not at head",
			nodes: func(t *testing.T) []Node {
				return []Node{
					node(t, "a1", NodeAction, "", map[string]any{"action_type": "send_to_fetcher"}),
					node(t, "t1", NodeTrigger, "a1", map[string]any{"trigger_type": "token_mint", "wallets": []string{"W"}}),
				}
			},
		},
		{
			name: "program_log without pattern",
			nodes: func(t *testing.T) []Node {
				return []Node{
					node(t, "t1", NodeTrigger, "", map[string]any{"trigger_type": "program_log", "program_id": "P1"}),
					node(t, "a1", NodeAction, "t1", map[string]any{"action_type": "send_to_fetcher"}),
				}
			},
		},
		{
			name: "webhook without url",
			nodes: func(t *testing.T) []Node {
				return []Node{
					node(t, "t1", NodeTrigger, "", map[string]any{"trigger_type": "token_mint", "wallets": []string{"W"}}),
					node(t, "a1", NodeAction, "t1", map[string]any{"action_type": "webhook"}),
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(Campaign{ID: "c1", Nodes: tt.nodes(t)})
			require.Error(t, err)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestCompile_MultipleFiltersAndActions(t *testing.T) {
	nodes := []Node{
		node(t, "t1", NodeTrigger, "", map[string]any{"trigger_type": "signature_to_address", "wallets": []string{"W"}}),
		node(t, "f1", NodeFilter, "t1", map[string]any{"filter_type": "account_age", "max_age_seconds": 60}),
		node(t, "f2", NodeFilter, "f1", map[string]any{"filter_type": "prior_balance", "min_balance": 100}),
		node(t, "a1", NodeAction, "f2", map[string]any{"action_type": "create_alert", "alert_message": "seen"}),
		node(t, "a2", NodeAction, "a1", map[string]any{"action_type": "send_to_fetcher"}),
	}
	plan, err := Compile(Campaign{ID: "c1", Nodes: nodes})
	require.NoError(t, err)
	assert.Len(t, plan.Filters, 2)
	assert.Equal(t, FilterAccountAge, plan.Filters[0].Type)
	assert.Equal(t, FilterPriorBalance, plan.Filters[1].Type)
	assert.Nil(t, plan.Monitor)
	assert.Len(t, plan.Actions, 2)
}
