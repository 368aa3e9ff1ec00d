// Package api provides the HTTP status surface of the coordinator:
// health, status, metrics, insights, decisions, and worker rankings.
// Read-only — all mutation goes through the polling loop.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stipend-works/stipend/internal/app/coordinator"
	"github.com/stipend-works/stipend/internal/app/memory"
	"github.com/stipend-works/stipend/internal/domain"
	"github.com/stipend-works/stipend/internal/health"
)

// Server is the coordinator's HTTP API server.
type Server struct {
	coord          *coordinator.Coordinator
	mem            *memory.Memory
	checker        *health.Checker // nil when health checks are disabled
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(coord *coordinator.Coordinator, mem *memory.Memory) *Server {
	return &Server{coord: coord, mem: mem}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetChecker wires the health checker into /health.
func (s *Server) SetChecker(c *health.Checker) { s.checker = c }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/insights", s.handleInsights)
		r.Get("/decisions", s.handleDecisions)
		r.Get("/workers", s.handleWorkers)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	status := http.StatusOK
	overall := "ok"
	if !s.checker.IsHealthy() {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": s.checker.Statuses(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Status())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mem.MetricsSummary())
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mem.LearningInsights())
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	decisions := s.mem.RecentDecisions(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(decisions),
		"decisions": decisions,
	})
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	cat := domain.TaskCategory(queryInt(r, "category", int(domain.CatOther)))
	limit := queryInt(r, "limit", 10)

	type ranked struct {
		Address     string  `json:"address"`
		Reliability float64 `json:"reliability"`
		SuccessRate float64 `json:"success_rate"`
		TotalTasks  int     `json:"total_tasks"`
	}

	addrs := s.mem.BestWorkersFor(cat, limit)
	out := make([]ranked, 0, len(addrs))
	for _, addr := range addrs {
		rec := s.mem.GetOrCreateWorker(addr)
		out = append(out, ranked{
			Address:     addr,
			Reliability: rec.Reliability,
			SuccessRate: rec.SuccessRate(),
			TotalTasks:  rec.TotalTasks,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"category": cat.String(),
		"workers":  out,
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
