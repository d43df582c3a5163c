// Package api exposes the harvester's HTTP surface: health and metrics
// probes plus read endpoints over the harvested case records.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/auctionlens/gazette-harvester/internal/metrics"
	"github.com/auctionlens/gazette-harvester/internal/store"
)

type caseReader interface {
	List(ctx context.Context, f store.CaseFilter) ([]store.CaseRecord, error)
	Count(ctx context.Context, f store.CaseFilter) (int, error)
	FindByProcess(ctx context.Context, processNumber string) (*store.CaseRecord, error)
}

type timelineReader interface {
	ListByProcess(ctx context.Context, processNumber string) ([]store.TimelineEntry, error)
}

type browser interface {
	Browse(ctx context.Context, date string) (int, error)
}

// Server wires the HTTP handlers to the stores and dispatcher.
type Server struct {
	router   chi.Router
	cases    caseReader
	timeline timelineReader
	browser  browser
	ready    func(ctx context.Context) error
	logger   *zap.Logger
}

// NewServer constructs a Server. ready is polled by the readiness probe;
// nil means always ready.
func NewServer(cases caseReader, timeline timelineReader, browser browser, ready func(ctx context.Context) error, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cases:    cases,
		timeline: timeline,
		browser:  browser,
		ready:    ready,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/cases", s.listCases)
		r.Get("/cases/{processNumber}", s.getCase)
		r.Post("/browse", s.browse)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	f := store.CaseFilter{
		SourceID: r.URL.Query().Get("source"),
		Limit:    50,
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.ParseUint(limit, 10, 32)
		if err != nil || n == 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		f.Limit = n
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		n, err := strconv.ParseUint(offset, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		f.Offset = n
	}
	for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if raw := r.URL.Query().Get(name); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid "+name+" date")
				return
			}
			*dst = parsed
		}
	}

	records, err := s.cases.List(r.Context(), f)
	if err != nil {
		s.logger.Error("list cases failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	total, err := s.cases.Count(r.Context(), f)
	if err != nil {
		s.logger.Error("count cases failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": total,
		"cases": records,
	})
}

func (s *Server) getCase(w http.ResponseWriter, r *http.Request) {
	processNumber := chi.URLParam(r, "processNumber")
	rec, err := s.cases.FindByProcess(r.Context(), processNumber)
	if err != nil {
		s.logger.Error("find case failed", zap.String("process", processNumber), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "case not found")
		return
	}
	timeline, err := s.timeline.ListByProcess(r.Context(), processNumber)
	if err != nil {
		s.logger.Error("list timeline failed", zap.String("process", processNumber), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"case":     rec,
		"timeline": timeline,
	})
}

func (s *Server) browse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if r.Body != nil {
		// An empty body means "today's edition".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	dispatched, err := s.browser.Browse(r.Context(), req.Date)
	if err != nil {
		s.logger.Error("browse failed", zap.String("date", req.Date), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"dispatched": dispatched})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
