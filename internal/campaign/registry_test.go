package campaign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RebuildSkipsDisabledAndInvalid(t *testing.T) {
	good := Campaign{ID: "good", Enabled: true, Nodes: validChain(t)}
	disabled := Campaign{ID: "off", Enabled: false, Nodes: validChain(t)}
	broken := Campaign{ID: "broken", Enabled: true} // no nodes

	reg := NewRegistry()
	reg.Rebuild([]Campaign{good, disabled, broken})

	plans := reg.Enabled()
	require.Len(t, plans, 1)
	assert.Equal(t, "good", plans[0].Campaign.ID)

	_, ok := reg.Get("good")
	assert.True(t, ok)
	_, ok = reg.Get("off")
	assert.False(t, ok)
	_, ok = reg.Get("broken")
	assert.False(t, ok)
}

func TestRegistry_EmptyBeforeRebuild(t *testing.T) {
	reg := NewRegistry()
	assert.Nil(t, reg.Enabled())
	_, ok := reg.Get("any")
	assert.False(t, ok)
}

func TestRegistry_RebuildReplacesView(t *testing.T) {
	reg := NewRegistry()
	reg.Rebuild([]Campaign{{ID: "c1", Enabled: true, Nodes: validChain(t)}})
	require.Len(t, reg.Enabled(), 1)

	reg.Rebuild(nil)
	assert.Empty(t, reg.Enabled())
}
