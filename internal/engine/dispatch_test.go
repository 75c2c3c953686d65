package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-engine/internal/campaign"
	"campaign-engine/internal/instance"
)

func webhookPlan(t *testing.T) *campaign.Plan {
	plan, err := campaign.Compile(campaign.Campaign{ID: "c1", Enabled: true, Nodes: []campaign.Node{
		mkNode(t, "t1", campaign.NodeTrigger, "", map[string]any{
			"trigger_type": "token_mint",
			"wallets":      []string{"W1"},
		}),
		mkNode(t, "a1", campaign.NodeAction, "t1", map[string]any{
			"action_type": "webhook",
			"url":         "http://sink.local/hook",
		}),
	}})
	require.NoError(t, err)
	return plan
}

func actionReadyInstance(t *testing.T, st *instance.Store) *instance.Instance {
	inst := instance.New("c1", "W1", twoSol("W1"))
	st.Add(inst)
	require.True(t, st.Transition(inst.ID, instance.StatusPendingFilter, instance.StatusActionReady))
	return inst
}

func TestDispatcher_FailedWebhookStillCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := instance.NewStore()
	sk := newMemSinks()
	sk.webhookErr = assert.AnError

	d := NewDispatcher(st, Sinks{Webhook: sk, Tags: sk, Fetcher: sk, Alerts: sk}, 1, 2, time.Millisecond)
	d.Start(ctx, 1)

	inst := actionReadyInstance(t, st)
	d.Submit(inst.ID, webhookPlan(t))

	require.Eventually(t, func() bool {
		got, _ := st.Get(inst.ID)
		return got.Status == instance.StatusCompleted
	}, time.Second, 2*time.Millisecond)

	got, _ := st.Get(inst.ID)
	assert.Contains(t, got.DispatchErr, "webhook",
		"delivery failure is recorded, not replayed")
	assert.Zero(t, sk.webhookCount())
}

func TestDispatcher_RetriesTransientFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := instance.NewStore()
	sk := newMemSinks()

	d := NewDispatcher(st, Sinks{Webhook: sk, Tags: sk, Fetcher: sk, Alerts: sk}, 1, 3, time.Millisecond)

	inst := actionReadyInstance(t, st)

	// First attempt fails, the retry succeeds.
	sk.webhookFailures = 1
	d.run(ctx, dispatchJob{instanceID: inst.ID, plan: webhookPlan(t)})

	got, _ := st.Get(inst.ID)
	assert.Equal(t, instance.StatusCompleted, got.Status)
	assert.Empty(t, got.DispatchErr)
	assert.Equal(t, 1, sk.webhookCount())
}

func TestDispatcher_IgnoresAlreadyTerminalInstance(t *testing.T) {
	ctx := context.Background()
	st := instance.NewStore()
	sk := newMemSinks()
	d := NewDispatcher(st, Sinks{Webhook: sk, Tags: sk, Fetcher: sk, Alerts: sk}, 1, 2, time.Millisecond)

	inst := actionReadyInstance(t, st)
	require.True(t, st.Transition(inst.ID, instance.StatusActionReady, instance.StatusExpired))

	d.run(ctx, dispatchJob{instanceID: inst.ID, plan: webhookPlan(t)})
	assert.Zero(t, sk.webhookCount(), "terminal instance must not dispatch")
}
