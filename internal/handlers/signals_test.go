package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Netflix/dispatch-sub003/internal/api"
	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/handlers"
	"github.com/Netflix/dispatch-sub003/internal/middleware"
)

func TestIngestSignal(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/default/signals/ingest",
		map[string]interface{}{"variant": "crowdstrike-epp", "severity": "high"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := f.queue.Len(); got != 1 {
		t.Errorf("queue depth = %d, want 1", got)
	}
}

func TestIngestSignal_EmptyPayload(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/default/signals/ingest", map[string]interface{}{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if f.queue.Len() != 0 {
		t.Error("empty payload must not be queued")
	}
}

func TestIngestSignal_QueueFull(t *testing.T) {
	f := newFixture(t)

	payload := map[string]interface{}{"variant": "crowdstrike-epp"}
	for i := 0; i < 16; i++ {
		w := f.do(t, http.MethodPost, "/api/default/signals/ingest", payload)
		if w.Code != http.StatusAccepted {
			t.Fatalf("fill %d: status = %d", i, w.Code)
		}
	}
	w := f.do(t, http.MethodPost, "/api/default/signals/ingest", payload)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 when the queue is full", w.Code)
	}
}

func TestListSignalInstances(t *testing.T) {
	f := newFixture(t)

	sig := database.Signal{ProjectID: f.project.ID, Name: "EPP detection", Variant: "crowdstrike-epp", Enabled: true}
	if err := f.db.Create(&sig).Error; err != nil {
		t.Fatalf("create signal: %v", err)
	}
	for _, action := range []database.SignalFilterAction{
		database.FilterActionNone, database.FilterActionSnooze,
	} {
		si := database.SignalInstance{
			ProjectID:    f.project.ID,
			SignalID:     sig.ID,
			Fingerprint:  "fp-" + string(action),
			FilterAction: action,
			Raw:          database.JSONB{"variant": "crowdstrike-epp"},
		}
		if err := f.db.Create(&si).Error; err != nil {
			t.Fatalf("create instance: %v", err)
		}
	}

	w := f.do(t, http.MethodGet, "/api/default/signal-instances", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var envelope listEnvelope
	decode(t, w, &envelope)
	if envelope.Pagination.Total != 2 {
		t.Errorf("total = %d, want 2", envelope.Pagination.Total)
	}

	w = f.do(t, http.MethodGet, "/api/default/signal-instances?filter_action=snooze", nil)
	decode(t, w, &envelope)
	if envelope.Pagination.Total != 1 {
		t.Errorf("snoozed total = %d, want 1", envelope.Pagination.Total)
	}
	var items []api.SignalInstanceListItem
	if err := json.Unmarshal(envelope.Data, &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items) != 1 || items[0].FilterAction != database.FilterActionSnooze {
		t.Errorf("items = %+v", items)
	}
}

func TestWebhookIngest_APIKey(t *testing.T) {
	f := newFixture(t)
	guard := middleware.NewAPIKeyMiddleware(&middleware.APIKeyConfig{
		Enabled: true,
		Keys:    []string{"det-source-key"},
	})
	apiHandler := handlers.NewAPIHandler(f.db, nil, nil, nil, nil, nil, f.queue, nil, handlers.NewTimelineHub())
	apiHandler.SetupWebhookRoutes(f.mux, guard)

	body := `{"variant":"crowdstrike-epp"}`

	req := httptest.NewRequest(http.MethodPost, "/webhook/default/signals/ingest", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without key", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhook/default/signals/ingest", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "det-source-key")
	w = httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202 with key: %s", w.Code, w.Body.String())
	}
	if f.queue.Len() != 1 {
		t.Errorf("queue depth = %d, want 1", f.queue.Len())
	}
}
