package bot

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthWorker is one worker entry of the health report.
type healthWorker struct {
	Name      string    `json:"name"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
	Stopped   bool      `json:"stopped"`
}

type healthReport struct {
	Status    string         `json:"status"`
	Time      string         `json:"time"`
	Uptime    string         `json:"uptime"`
	LatencyMS int64          `json:"latency_ms"`
	Commands  int            `json:"commands"`
	Workers   []healthWorker `json:"workers"`
}

// Router serves /metrics and /healthz.
func (b *Bot) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/healthz", b.handleHealthz)
	return r
}

// MetricsServer returns the HTTP server for Router on addr.
func (b *Bot) MetricsServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           b.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (b *Bot) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	report := healthReport{
		Status:    "ok",
		Time:      time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(b.startedAt).Round(time.Second).String(),
		LatencyMS: b.Latency().Milliseconds(),
		Commands:  len(b.Registry.Commands()),
		Workers:   []healthWorker{},
	}
	for _, st := range b.workerSnapshot() {
		hw := healthWorker{
			Name:      st.Name,
			Runs:      st.Runs,
			Failures:  st.Failures,
			LastError: st.LastError,
			NextRun:   st.NextRun,
			Stopped:   st.Stopped,
		}
		report.Workers = append(report.Workers, hw)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(report)
}
