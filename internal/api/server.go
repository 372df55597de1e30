// Package api provides the HTTP server for the taskme economy core: ledger
// queries, contribution submission, reviews, streaks, proposal intake, and
// the live event feed.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskme-network/taskme/internal/app/approval"
	"github.com/taskme-network/taskme/internal/app/dispatch"
	"github.com/taskme-network/taskme/internal/app/intake"
	"github.com/taskme-network/taskme/internal/app/ledger"
	"github.com/taskme-network/taskme/internal/app/streak"
	"github.com/taskme-network/taskme/internal/domain"
)

// Server is the taskme HTTP API server.
type Server struct {
	ledger     *ledger.Service
	approvals  *approval.Workflow
	streaks    *streak.Engine
	dispatcher *dispatch.Dispatcher
	proposals  *intake.Service

	metricsEnabled bool
	signupBonus    int64
	hub            *EventHub
}

// NewServer creates a new API server.
func NewServer(lg *ledger.Service, wf *approval.Workflow, se *streak.Engine, d *dispatch.Dispatcher) *Server {
	return &Server{ledger: lg, approvals: wf, streaks: se, dispatcher: d}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetIntake sets the proposal intake service.
func (s *Server) SetIntake(p *intake.Service) { s.proposals = p }

// SetEventHub sets the live event SSE hub.
func (s *Server) SetEventHub(h *EventHub) { s.hub = h }

// EventHub returns the live event hub (for broadcasting).
func (s *Server) EventHub() *EventHub { return s.hub }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/ledger", func(r chi.Router) {
			r.Post("/accounts", s.handleCreateAccount)
			r.Post("/apply", s.handleApply)
			r.Get("/stats", s.handleStats)
			r.Get("/{account}/balance", s.handleBalance)
			r.Get("/{account}/entries", s.handleEntries)
			r.Get("/{account}/level", s.handleLevel)
			r.Get("/{account}/badges", s.handleBadges)
		})

		r.Route("/commitments", func(r chi.Router) {
			r.Post("/", s.handleCreateCommitment)
			r.Get("/{id}", s.handleGetCommitment)
		})

		r.Route("/contributions", func(r chi.Router) {
			r.Post("/", s.handleSubmitContribution)
			r.Get("/{id}", s.handleGetContribution)
			r.Post("/{id}/withdraw", s.handleWithdraw)
		})

		r.Post("/proofs/{id}/reviews", s.handleRecordReview)

		r.Get("/streaks/{participant}/{commitment}", s.handleGetStreak)

		if s.proposals != nil {
			r.Route("/proposals", func(r chi.Router) {
				r.Post("/", s.handlePropose)
				r.Get("/", s.handleListProposals)
				r.Post("/{id}/confirm", s.handleConfirmProposal)
				r.Post("/{id}/discard", s.handleDiscardProposal)
			})
		}

		if s.hub != nil {
			r.Get("/events/live", s.hub.HandleEventsSSE)
		}
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps the error taxonomy onto HTTP statuses:
// validation → 400, not-found → 404, conflict → 409, insufficient funds →
// 422, transient → 503, anything else → 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, intake.ErrUnknownProposal):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, intake.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
