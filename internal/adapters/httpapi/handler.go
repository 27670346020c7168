// Package httpapi serves the monitor's read side over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/NetPulse/internal/adapters/diagnosis"
	"github.com/ghalamif/NetPulse/internal/app/monitor"
	"github.com/ghalamif/NetPulse/internal/domain"
	"github.com/ghalamif/NetPulse/internal/ports"
)

// Monitor is the read side the handlers need.
type Monitor interface {
	Snapshot(ctx context.Context) (monitor.Snapshot, error)
	Evaluate(ctx context.Context) (monitor.Report, error)
	Diagnose(ctx context.Context) (ports.Diagnosis, monitor.Report, error)
	Summary(ctx context.Context, window time.Duration) (monitor.Summary, error)
}

// DiagnosisResponse is the body of GET /api/diagnosis.
type DiagnosisResponse struct {
	Diagnosis string           `json:"diagnosis"`
	Source    string           `json:"source"`
	HasIssues bool             `json:"has_issues"`
	Anomalies []domain.Anomaly `json:"anomalies"`
	Summary   string           `json:"summary"`
	ReportID  string           `json:"report_id"`
}

type Handler struct {
	mon     Monitor
	obs     ports.Observability
	metrics http.Handler
}

// NewRouter registers the API routes. A nil metrics handler serves the
// default Prometheus registry.
func NewRouter(mon Monitor, obs ports.Observability, metrics http.Handler) *mux.Router {
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	h := &Handler{mon: mon, obs: obs, metrics: metrics}

	r := mux.NewRouter()
	r.HandleFunc("/api/metrics", h.snapshotHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/evaluate", h.evaluateHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/diagnosis", h.diagnosisHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/summary", h.summaryHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	return r
}

// NewServer wraps the router in a server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

func (h *Handler) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.mon.Snapshot(r.Context())
	if err != nil {
		h.fail(w, "read metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) evaluateHandler(w http.ResponseWriter, r *http.Request) {
	rep, err := h.mon.Evaluate(r.Context())
	if err != nil {
		h.fail(w, "evaluate", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) diagnosisHandler(w http.ResponseWriter, r *http.Request) {
	d, rep, err := h.mon.Diagnose(r.Context())
	if err != nil {
		h.fail(w, "diagnose", err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(diagnosis.RenderHTML(d.Text)))
		return
	}

	writeJSON(w, http.StatusOK, DiagnosisResponse{
		Diagnosis: d.Text,
		Source:    d.Source,
		HasIssues: rep.HasIssues,
		Anomalies: rep.Anomalies,
		Summary:   rep.Summary,
		ReportID:  rep.ID,
	})
}

func (h *Handler) summaryHandler(w http.ResponseWriter, r *http.Request) {
	window := monitor.DefaultSummaryWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			http.Error(w, fmt.Sprintf("invalid window %q", raw), http.StatusBadRequest)
			return
		}
		window = d
	}
	sum, err := h.mon.Summary(r.Context(), window)
	if err != nil {
		h.fail(w, "summarize", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.obs.LogError("http_request_failed", err, ports.Field{Key: "op", Value: op})
	http.Error(w, fmt.Sprintf("failed to %s: %v", op, err), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
