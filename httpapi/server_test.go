package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pkt.systems/paneflow/schema"
)

type fakeSource struct {
	snap    *schema.DebugSnapshot
	report  schema.WatchdogReport
	tier    schema.DegradationTier
	dropped uint64
}

func (f *fakeSource) LatestSnapshot() *schema.DebugSnapshot { return f.snap }
func (f *fakeSource) Watchdog() schema.WatchdogReport       { return f.report }
func (f *fakeSource) Tier() schema.DegradationTier          { return f.tier }
func (f *fakeSource) DroppedIntents() uint64                { return f.dropped }

func newTestSource() *fakeSource {
	now := time.Unix(1_700_000_000, 0)
	events := []schema.LifecycleEvent{
		{Seq: 1, PaneID: "pane-a", Stage: schema.StageQueued, Detail: schema.LifecycleDetail{Kind: schema.DetailIntentQueued, Seq: 1}, At: now},
		{Seq: 2, PaneID: "pane-a", Stage: schema.StagePreparing, Detail: schema.LifecycleDetail{Kind: schema.DetailPrepareStarted, Seq: 1}, At: now},
		{Seq: 3, PaneID: "pane-a", Stage: schema.StageReflowing, Detail: schema.LifecycleDetail{Kind: schema.DetailReflowStarted, Seq: 1}, At: now},
	}
	return &fakeSource{
		snap: &schema.DebugSnapshot{
			SchedulerSnapshot: schema.SchedulerSnapshot{
				TakenAt:      now,
				Panes:        []schema.PaneSnapshot{{PaneID: "pane-a", TabID: "tab-1", Domain: schema.LocalDomain(), LatestSeq: 1}},
				PendingTotal: 1,
				Gate:         schema.GateState{Active: true},
			},
			Events:       events,
			NextEventSeq: 4,
		},
		report: schema.WatchdogReport{Severity: schema.SeverityHealthy, EvaluatedAt: now},
		tier:   schema.TierFullQuality,
	}
}

func doRequest(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	source := newTestSource()
	handler := NewServer(Config{}, source, nil).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["severity"] != "healthy" || body["tier"] != "full_quality" {
		t.Fatalf("body = %v", body)
	}

	source.report.Severity = schema.SeveritySafeModeActive
	rec = doRequest(t, handler, http.MethodGet, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("safe mode status = %d, want 503", rec.Code)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	source := newTestSource()
	handler := NewServer(Config{}, source, nil).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/api/snapshot")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap schema.DebugSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Panes) != 1 || snap.Panes[0].PaneID != "pane-a" || snap.NextEventSeq != 4 {
		t.Fatalf("snapshot = %+v", snap)
	}

	source.snap = nil
	rec = doRequest(t, handler, http.MethodGet, "/api/snapshot")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("missing snapshot status = %d, want 503", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/snapshot")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d, want 405", rec.Code)
	}
}

func TestEventsSinceFiltersAndLimits(t *testing.T) {
	source := newTestSource()
	handler := NewServer(Config{EventLimit: 1}, source, nil).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/api/events?since=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Events  []schema.LifecycleEvent `json:"events"`
		NextSeq schema.EventSeq         `json:"next_seq"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].Seq != 2 || body.NextSeq != 4 {
		t.Fatalf("body = %+v", body)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/events?since=nope")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad since status = %d, want 400", rec.Code)
	}
}

func TestWatchdogEndpoint(t *testing.T) {
	source := newTestSource()
	source.dropped = 3
	handler := NewServer(Config{}, source, nil).Handler()

	rec := doRequest(t, handler, http.MethodGet, "/api/watchdog")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Report  schema.WatchdogReport  `json:"report"`
		Tier    schema.DegradationTier `json:"tier"`
		Dropped uint64                 `json:"dropped_intents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Report.Severity != schema.SeverityHealthy || body.Dropped != 3 {
		t.Fatalf("body = %+v", body)
	}
}

func TestMetricsEndpointServesGatherer(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "paneflow_test_total"})
	registry.MustRegister(counter)
	counter.Inc()

	handler := NewServer(Config{}, newTestSource(), registry).Handler()
	rec := doRequest(t, handler, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); !strings.Contains(body, "paneflow_test_total 1") {
		t.Fatalf("metrics body missing counter:\n%s", body)
	}

	withoutMetrics := NewServer(Config{}, newTestSource(), nil).Handler()
	rec = doRequest(t, withoutMetrics, http.MethodGet, "/metrics")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nil gatherer status = %d, want 404", rec.Code)
	}
}
