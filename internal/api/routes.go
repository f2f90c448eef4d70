package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"classroom-sync-service/internal/auth"
	"classroom-sync-service/internal/config"
	"classroom-sync-service/internal/report"
	"classroom-sync-service/internal/store"
	"classroom-sync-service/internal/sync"
	syncerrors "classroom-sync-service/pkg/errors"
)

type Handler struct {
	cfg         config.ServerConfig
	syncManager *sync.Manager
	reports     *report.Service
	authStore   *auth.Store
	store       store.Store
}

func NewHandler(cfg config.ServerConfig, manager *sync.Manager, reports *report.Service, authStore *auth.Store, st store.Store) *Handler {
	return &Handler{
		cfg:         cfg,
		syncManager: manager,
		reports:     reports,
		authStore:   authStore,
		store:       st,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Post("/sync/run", h.RunSync)
		r.Get("/sync/status", h.GetSyncStatus)
		r.Get("/sync/runs", h.ListSyncRuns)

		r.Post("/reports/generate", h.GenerateReports)
		r.Post("/reports/generate/{studentID}", h.GenerateStudentReport)

		r.Get("/auth/url", h.AuthURL)
		r.Post("/auth/exchange", h.AuthExchange)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// runSummary is the JSON shape of one sync run.
type runSummary struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Courses     int        `json:"courses"`
	Assignments int        `json:"assignments"`
	Submissions int        `json:"submissions"`
	Warnings    []string   `json:"warnings,omitempty"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
}

func summarize(run *store.SyncRun) runSummary {
	s := runSummary{
		ID:          run.ID,
		StartedAt:   run.StartedAt,
		Courses:     run.Courses,
		Assignments: run.Assignments,
		Submissions: run.Submissions,
		Warnings:    run.Warnings,
		Status:      run.Status,
	}
	if run.CompletedAt.Valid {
		t := run.CompletedAt.Time
		s.CompletedAt = &t
	}
	if run.ErrorMessage.Valid {
		s.Error = run.ErrorMessage.String
	}
	return s
}

func (h *Handler) RunSync(w http.ResponseWriter, r *http.Request) {
	run, err := h.syncManager.RunSync(r.Context())
	switch {
	case errors.Is(err, syncerrors.ErrSyncRunning):
		writeError(w, http.StatusConflict, err.Error())
		return
	case sync.IsAuthError(err):
		writeError(w, http.StatusUnauthorized, "re-authentication required")
		return
	case err != nil && run == nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	case err != nil:
		writeJSON(w, http.StatusBadGateway, summarize(run))
		return
	}
	writeJSON(w, http.StatusOK, summarize(run))
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": h.syncManager.GetStatus(),
	}
	if last := h.syncManager.LastRun(); last != nil {
		resp["lastRun"] = summarize(last)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListSyncRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	runs, err := h.store.ListSyncRuns(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	summaries := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, summarize(run))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) GenerateReports(w http.ResponseWriter, r *http.Request) {
	results, err := h.reports.GenerateForAll(r.Context())
	if err != nil {
		if errors.Is(err, syncerrors.ErrNoSuccessfulSync) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) GenerateStudentReport(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")

	result, err := h.reports.GenerateForStudent(r.Context(), studentID)
	switch {
	case errors.Is(err, syncerrors.ErrNoSuccessfulSync):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, syncerrors.ErrStudentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) AuthURL(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	writeJSON(w, http.StatusOK, map[string]string{"url": h.authStore.AuthCodeURL(state)})
}

func (h *Handler) AuthExchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "authorization code required")
		return
	}
	if err := h.authStore.Exchange(r.Context(), req.Code); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "authorized"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AuthMiddleware requires the configured bearer token on /api/v1 routes.
// An empty configured token disables the check.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.AuthToken != "" {
			if r.Header.Get("Authorization") != "Bearer "+h.cfg.AuthToken {
				writeError(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
