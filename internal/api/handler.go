// Package api exposes the job service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/dispatch"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/service"
	"github.com/hassaanshafqatt/reels-ui-sub000/internal/storage"
)

// Service is the part of the job service the HTTP layer calls.
type Service interface {
	Submit(ctx context.Context, req *service.CreateJobRequest) (*domain.Job, bool, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, userID, category string) ([]*domain.Job, error)
	Reconcile(ctx context.Context, jobID, typeName string) (domain.PollResult, error)
	Post(ctx context.Context, jobID string) (*domain.Job, error)
	ClearJobs(ctx context.Context, userID, category string) (int64, error)
	Ping(ctx context.Context) error
}

type Handler struct {
	svc    Service
	logger *zap.Logger
}

func NewHandler(svc Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes builds the router.
func (h *Handler) Routes() chi.Router {
	rtr := chi.NewRouter()
	rtr.Use(middleware.RequestID)
	rtr.Use(middleware.RealIP)
	rtr.Use(h.requestLogger)
	rtr.Use(middleware.Recoverer)

	rtr.Get("/healthz", h.health)
	rtr.Route("/v1/jobs", func(rtr chi.Router) {
		rtr.Post("/", h.createJob)
		rtr.Get("/", h.listJobs)
		rtr.Delete("/", h.clearJobs)
		rtr.Get("/{id}", h.getJob)
		rtr.Post("/{id}/reconcile", h.reconcile)
		rtr.Post("/{id}/post", h.postJob)
	})
	return rtr
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		h.writeError(w, r, errors.Wrap(err, "store unavailable"), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var req service.CreateJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		h.writeError(w, r, errors.Wrap(service.ErrInvalidInput, "invalid request body"), 0)
		return
	}

	j, created, err := h.svc.Submit(r.Context(), &req)
	if err != nil {
		if j != nil {
			// the job exists but dispatch failed; report both
			code := statusFor(err)
			if code == http.StatusInternalServerError {
				code = http.StatusBadGateway
			}
			writeJSON(w, code, map[string]any{"error": err.Error(), "job": j})
			return
		}
		h.writeError(w, r, err, 0)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, j)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.svc.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jobs, err := h.svc.ListJobs(r.Context(), q.Get("user_id"), q.Get("category"))
	if err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (h *Handler) clearJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	n, err := h.svc.ClearJobs(r.Context(), q.Get("user_id"), q.Get("category"))
	if err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reconcile(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("type"))
	if err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) postJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.svc.Post(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var cerr *dispatch.ConfigError
	switch {
	case errors.Is(err, storage.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, dispatch.ErrAlreadyDispatched):
		return http.StatusConflict
	case errors.As(err, &cerr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, code int) {
	if code == 0 {
		code = statusFor(err)
	}
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
