package campaign

import (
	"github.com/rs/zerolog/log"

	"campaign-engine/internal/cache"
)

type view struct {
	plans []*Plan
	byID  map[string]*Plan
}

// Registry is the enabled-only view of campaign definitions. It is
// rebuilt wholesale on activate/deactivate/save; readers never block.
type Registry struct {
	snap cache.Snapshot[view]
}

func NewRegistry() *Registry { return &Registry{} }

// Rebuild compiles the enabled campaigns and swaps in a fresh view.
// A campaign whose definition fails to compile is skipped and logged;
// one corrupted definition must not take down the rest.
func (r *Registry) Rebuild(campaigns []Campaign) {
	v := view{byID: make(map[string]*Plan)}
	for _, c := range campaigns {
		if !c.Enabled {
			continue
		}
		plan, err := Compile(c)
		if err != nil {
			log.Error().Err(err).Str("campaign_id", c.ID).Msg("skipping campaign with invalid definition")
			continue
		}
		v.plans = append(v.plans, plan)
		v.byID[c.ID] = plan
	}
	r.snap.Store(v)
	log.Info().Int("enabled", len(v.plans)).Msg("campaign registry rebuilt")
}

// Enabled returns the current compiled plans. The slice is shared and
// must not be mutated.
func (r *Registry) Enabled() []*Plan {
	v, ok := r.snap.Load()
	if !ok {
		return nil
	}
	return v.plans
}

func (r *Registry) Get(id string) (*Plan, bool) {
	v, ok := r.snap.Load()
	if !ok {
		return nil, false
	}
	p, ok := v.byID[id]
	return p, ok
}
