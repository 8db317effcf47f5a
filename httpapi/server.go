package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pkt.systems/paneflow/internal/version"
	"pkt.systems/paneflow/schema"
)

// StateSource provides the latest published scheduler state. The driver
// satisfies it; handlers only ever read atomically published copies, so
// requests never touch the tick loop.
type StateSource interface {
	LatestSnapshot() *schema.DebugSnapshot
	Watchdog() schema.WatchdogReport
	Tier() schema.DegradationTier
	DroppedIntents() uint64
}

// Server serves the read-only debug API and Prometheus metrics.
type Server struct {
	cfg      Config
	source   StateSource
	gatherer prometheus.Gatherer
}

// NewServer constructs a debug API server. gatherer may be nil, in
// which case /metrics is not registered.
func NewServer(cfg Config, source StateSource, gatherer prometheus.Gatherer) *Server {
	if cfg.EventLimit <= 0 {
		cfg.EventLimit = 256
	}
	return &Server{cfg: cfg, source: source, gatherer: gatherer}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/watchdog", s.handleWatchdog)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return withRequestLogging(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	report := s.source.Watchdog()
	status := http.StatusOK
	if report.Severity == schema.SeveritySafeModeActive {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"version":  version.Current(),
		"severity": report.Severity,
		"tier":     s.source.Tier(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	snap := s.source.LatestSnapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no snapshot published yet"))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleEvents serves the lifecycle tail. since is exclusive: the
// response starts after the given event sequence. The tail is bounded,
// so a since far behind NextEventSeq silently skips the evicted range.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	snap := s.source.LatestSnapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no snapshot published yet"))
		return
	}
	var since schema.EventSeq
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("since must be an unsigned integer"))
			return
		}
		since = schema.EventSeq(parsed)
	}
	events := make([]schema.LifecycleEvent, 0, len(snap.Events))
	for _, event := range snap.Events {
		if event.Seq <= since {
			continue
		}
		events = append(events, event)
		if len(events) >= s.cfg.EventLimit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":   events,
		"next_seq": snap.NextEventSeq,
	})
}

func (s *Server) handleWatchdog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report":          s.source.Watchdog(),
		"tier":            s.source.Tier(),
		"dropped_intents": s.source.DroppedIntents(),
	})
}

var errMethodNotAllowed = errors.New("method not allowed")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
