// Package control exposes the producer's add/remove/list operations, job and
// health snapshots, metrics and a live stream of published quotes over HTTP.
package control

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"

	"github.com/rickgao/quote-producer/internal/model"
	"github.com/rickgao/quote-producer/internal/publisher"
	"github.com/rickgao/quote-producer/internal/scheduler"
	"github.com/rickgao/quote-producer/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Service is the subset of service.Service used by the handlers.
type Service interface {
	AddKey(key string) service.Result
	AddKeyWithInterval(key string, interval time.Duration) service.Result
	RemoveKey(key string) service.Result
	ListKeys() []string
}

// JobSource lists scheduled jobs.
type JobSource interface {
	Jobs() []scheduler.JobInfo
}

// StateSource reports the publisher lifecycle state.
type StateSource interface {
	State() publisher.State
}

// Tap delivers every message published on the quote subject.
// The returned function cancels the subscription.
type Tap interface {
	Subscribe(fn func(data []byte)) (func(), error)
}

// Config wires the router's dependencies. Jobs, Publisher, Tap and Metrics
// are optional; their routes are omitted when nil.
type Config struct {
	Service   Service
	Jobs      JobSource
	Publisher StateSource
	Tap       Tap
	Metrics   http.Handler
	Logger    *slog.Logger
}

type handler struct {
	svc       Service
	jobs      JobSource
	publisher StateSource
	tap       Tap
	logger    *slog.Logger
}

// NewRouter builds the control surface.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handler{
		svc:       cfg.Service,
		jobs:      cfg.Jobs,
		publisher: cfg.Publisher,
		tap:       cfg.Tap,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Post("/{key}/add", h.add)
	r.Post("/{key}/delete", h.remove)
	r.Get("/keys", h.keys)
	r.Get("/health", h.health)

	if cfg.Jobs != nil {
		r.Get("/jobs", h.listJobs)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.Tap != nil {
		r.Get("/stream", h.stream)
	}

	return r
}

type resultsResponse struct {
	Results []string `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Keys      int    `json:"keys"`
	Publisher string `json:"publisher,omitempty"`
}

func (h *handler) add(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	raw := r.URL.Query().Get("interval")
	if raw == "" {
		h.writeResult(w, h.svc.AddKey(key))
		return
	}

	interval, err := time.ParseDuration(raw)
	if err != nil || interval <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid interval: " + raw})
		return
	}
	h.writeResult(w, h.svc.AddKeyWithInterval(key, interval))
}

func (h *handler) remove(w http.ResponseWriter, r *http.Request) {
	h.writeResult(w, h.svc.RemoveKey(chi.URLParam(r, "key")))
}

func (h *handler) keys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, resultsResponse{Results: nonNil(h.svc.ListKeys())})
}

func (h *handler) listJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := h.jobs.Jobs()
	if jobs == nil {
		jobs = []scheduler.JobInfo{}
	}
	writeJSON(w, http.StatusOK, struct {
		Jobs []scheduler.JobInfo `json:"jobs"`
	}{Jobs: jobs})
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status: "healthy",
		Keys:   len(h.svc.ListKeys()),
	}
	if h.publisher != nil {
		state := h.publisher.State()
		resp.Publisher = state.String()
		if state != publisher.StateOpen {
			resp.Status = "draining"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) writeResult(w http.ResponseWriter, res service.Result) {
	switch res.Status {
	case service.StatusOK:
		writeJSON(w, http.StatusOK, resultsResponse{Results: nonNil(res.Keys)})
	case service.StatusBadRequest:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: badRequestMessage(res.Err)})
	case service.StatusUnavailable:
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "shutting down"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// badRequestMessage surfaces the validation reason to the caller.
func badRequestMessage(err error) string {
	var vErr *model.ValidationError
	if errors.As(err, &vErr) && vErr.Key == "" {
		return capitalize(vErr.Reason)
	}
	if err == nil {
		return "bad request"
	}
	return err.Error()
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

func nonNil(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
