package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-engine/internal/campaign"
	"campaign-engine/internal/event"
	"campaign-engine/internal/instance"
	"campaign-engine/internal/sink"
	"campaign-engine/internal/storage"
)

// memStore mirrors the real store's contract: Save compiles first, so
// invalid definitions are rejected before persistence.
type memStore struct {
	mu    sync.Mutex
	items map[string]campaign.Campaign
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]campaign.Campaign)}
}

func (m *memStore) Save(_ context.Context, c campaign.Campaign) error {
	if _, err := campaign.Compile(c); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[c.ID] = c
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (campaign.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return campaign.Campaign{}, storage.ErrNotFound
	}
	return c, nil
}

func (m *memStore) List(_ context.Context) ([]campaign.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]campaign.Campaign, 0, len(m.items))
	for _, c := range m.items {
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) SetEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return storage.ErrNotFound
	}
	c.Enabled = enabled
	m.items[id] = c
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memStore) LoadEnabled(_ context.Context) ([]campaign.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []campaign.Campaign
	for _, c := range m.items {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeEngine struct {
	mu     sync.Mutex
	events []event.Event
}

func (f *fakeEngine) Ingest(ev event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeEngine) Refresh() {}

func newTestAPI() (http.Handler, *memStore, *campaign.Registry, *fakeEngine, *instance.Store) {
	store := newMemStore()
	reg := campaign.NewRegistry()
	eng := &fakeEngine{}
	instances := instance.NewStore()
	h := NewHandler(store, reg, eng, instances, sink.NewLogAlertLog(0))
	return Router(h), store, reg, eng, instances
}

func validBody(id string, enabled bool) []byte {
	body, _ := json.Marshal(map[string]any{
		"id":      id,
		"name":    "watch " + id,
		"enabled": enabled,
		"nodes": []map[string]any{
			{
				"node_id":   "t1",
				"node_type": "trigger",
				"config": map[string]any{
					"trigger_type": "transfer_credited",
					"wallets":      []string{"W1"},
				},
			},
			{
				"node_id":        "a1",
				"node_type":      "action",
				"parent_node_id": "t1",
				"config": map[string]any{
					"action_type": "tag_db",
					"tag_name":    "seen",
				},
			},
		},
	})
	return body
}

func invalidBody() []byte {
	// Empty wallets on a wallet-keyed trigger fails save-time validation.
	body, _ := json.Marshal(map[string]any{
		"id":      "bad",
		"enabled": true,
		"nodes": []map[string]any{
			{
				"node_id":   "t1",
				"node_type": "trigger",
				"config":    map[string]any{"trigger_type": "transfer_credited"},
			},
			{
				"node_id":        "a1",
				"node_type":      "action",
				"parent_node_id": "t1",
				"config":         map[string]any{"action_type": "send_to_fetcher"},
			},
		},
	})
	return body
}

func TestCreateCampaign(t *testing.T) {
	r, _, reg, _, _ := newTestAPI()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/v1/campaigns", bytes.NewReader(validBody("c1", true))))
	require.Equal(t, http.StatusCreated, w.Code)

	// The enabled view reloads immediately.
	_, ok := reg.Get("c1")
	assert.True(t, ok)
}

func TestCreateCampaign_ValidationRejected(t *testing.T) {
	r, store, _, _, _ := newTestAPI()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/v1/campaigns", bytes.NewReader(invalidBody())))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, store.items, "invalid campaign must never reach the store")
}

func TestActivateDeactivate(t *testing.T) {
	r, _, reg, _, _ := newTestAPI()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/v1/campaigns", bytes.NewReader(validBody("c1", false))))
	require.Equal(t, http.StatusCreated, w.Code)
	_, ok := reg.Get("c1")
	require.False(t, ok)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/v1/campaigns/c1/activate", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	_, ok = reg.Get("c1")
	assert.True(t, ok)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/v1/campaigns/c1/deactivate", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	_, ok = reg.Get("c1")
	assert.False(t, ok)
}

func TestActivate_UnknownCampaign(t *testing.T) {
	r, _, _, _, _ := newTestAPI()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/v1/campaigns/nope/activate", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIngestEvent(t *testing.T) {
	r, _, _, eng, _ := newTestAPI()

	body, _ := json.Marshal(event.Event{
		Kind:      event.KindTransfer,
		Receiver:  "W1",
		Lamports:  2_000_000_000,
		Timestamp: time.Now().UTC(),
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/v1/events", bytes.NewReader(body)))
	require.Equal(t, http.StatusAccepted, w.Code)

	eng.mu.Lock()
	defer eng.mu.Unlock()
	require.Len(t, eng.events, 1)
	assert.Equal(t, "W1", eng.events[0].Receiver)
}

func TestIngestEvent_MissingType(t *testing.T) {
	r, _, _, eng, _ := newTestAPI()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/v1/events", bytes.NewReader([]byte(`{"address_set":["W1"]}`))))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, eng.events)
}

func TestListInstances(t *testing.T) {
	r, _, _, _, instances := newTestAPI()

	inst := instance.New("c1", "W1", event.Event{Kind: event.KindTransfer, Receiver: "W1"})
	instances.Add(inst)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/campaigns/c1/instances", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got []instance.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, inst.ID, got[0].ID)
	assert.Equal(t, instance.StatusPendingFilter, got[0].Status)
}

func TestCampaignCRUD(t *testing.T) {
	r, _, _, _, _ := newTestAPI()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/v1/campaigns", bytes.NewReader(validBody("c1", true))))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/campaigns/c1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/campaigns", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/v1/campaigns/c1", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/campaigns/c1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
