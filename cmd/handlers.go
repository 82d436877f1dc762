package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-api/internal/apperr"
	"github.com/sells-group/prospect-api/internal/model"
	"github.com/sells-group/prospect-api/internal/notify"
	"github.com/sells-group/prospect-api/internal/store"
)

// newRouter builds the HTTP API served by the serve command.
func newRouter(env *appEnv, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/companies", func(r chi.Router) {
			r.Get("/search", handleSearch(env))
			r.Get("/natural-search", handleNaturalSearch(env))
			r.Post("/ai-search", handleAISearch(env))
			r.Get("/industries", handleDistinct(env.Search.Industries))
			r.Get("/countries", handleDistinct(env.Search.Countries))
			r.Get("/saved/list", handleSavedList(env))
			r.Get("/{id}", handleGetCompany(env))
			r.Post("/{id}/save", handleSetSaved(env, true))
			r.Post("/{id}/unsave", handleSetSaved(env, false))
			r.Post("/{id}/describe", handleDescribe(env))
			r.Get("/{id}/jobs", handleCompanyJobs(env))
		})
		r.Get("/jobs/{jobID}", handleJobStatus(env))
		r.Get("/events/jobs/{jobID}", handleJobEvents(env))
	})

	return r
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

// handleSearch runs the structured filter search. Free-text params share the
// store's text-search condition; size terms resolve through the registry
// aliases.
func handleSearch(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.CompanyFilter{
			TextSearch: q.Get("query"),
			Name:       q.Get("name"),
			Industry:   q.Get("industry"),
		}
		if c := q.Get("country"); c != "" {
			filter.Countries = []string{c}
		}
		if s := q.Get("size"); s != "" {
			filter.Sizes = []string{env.Registry.CanonicalSize(s)}
		}
		if from := queryInt(r, "founded_from"); from > 0 {
			filter.FoundedFrom = from
		}
		if to := queryInt(r, "founded_to"); to > 0 {
			filter.FoundedTo = to
		}

		page, err := env.Search.Structured(r.Context(), filter, queryInt(r, "page"), queryInt(r, "limit"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, page)
	}
}

func handleNaturalSearch(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := env.Search.Natural(r.Context(), r.URL.Query().Get("query"),
			queryInt(r, "page"), queryInt(r, "limit"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

func handleAISearch(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
			Page  int    `json:"page"`
			Limit int    `json:"limit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, apperr.Validation("invalid request body"))
			return
		}
		resp, err := env.Search.Web(r.Context(), req.Query, req.Page, req.Limit)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

func handleDistinct(fetch func(ctx context.Context) ([]string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := fetch(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		if values == nil {
			values = []string{}
		}
		respondJSON(w, http.StatusOK, values)
	}
}

func handleSavedList(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := env.Search.Structured(r.Context(), store.CompanyFilter{SavedOnly: true},
			queryInt(r, "page"), queryInt(r, "limit"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, page)
	}
}

func handleGetCompany(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		company, err := env.Store.GetCompany(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, company)
	}
}

func handleSetSaved(env *appEnv, saved bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := env.Store.SetSaved(r.Context(), id, saved); err != nil {
			respondError(w, err)
			return
		}
		company, err := env.Store.GetCompany(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, company)
	}
}

func handleDescribe(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := env.Queue.Enqueue(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
	}
}

// handleJobStatus always answers 200: unknown ids report status not_found
// so clients can poll without special-casing errors.
func handleJobStatus(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := env.Queue.GetStatus(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, status)
	}
}

func handleCompanyJobs(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := env.Queue.ListJobs(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit"))
		if err != nil {
			respondError(w, err)
			return
		}
		if jobs == nil {
			jobs = []model.Job{}
		}
		respondJSON(w, http.StatusOK, jobs)
	}
}

const sseHeartbeat = 15 * time.Second

// handleJobEvents streams job lifecycle events over SSE. The current ledger
// state is sent first, then hub events until the job reaches a terminal
// status or the client disconnects.
func handleJobEvents(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			respondError(w, eris.New("streaming not supported"))
			return
		}
		jobID := chi.URLParam(r, "jobID")

		events, cancel := env.Hub.Subscribe(notify.JobTopic(jobID))
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		status, err := env.Queue.GetStatus(r.Context(), jobID)
		if err != nil {
			return
		}
		if !writeSSE(w, flusher, status) || status.Status.Terminal() {
			return
		}

		heartbeat := time.NewTicker(sseHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case payload, open := <-events:
				if !open {
					return
				}
				if !writeSSE(w, flusher, payload) {
					return
				}
				if ev, ok := payload.(notify.JobEvent); ok && model.JobStatus(ev.Status).Terminal() {
					return
				}
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		zap.L().Warn("marshal sse event", zap.Error(err))
		return true
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
