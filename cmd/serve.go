package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/orgmap/internal/model"
	"github.com/sells-group/orgmap/internal/override"
	"github.com/sells-group/orgmap/internal/pipeline"
	"github.com/sells-group/orgmap/internal/resilience"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mapping and household query API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		env, err := initPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		router := buildRouter(env.Pipeline, cfg.Server.AllowedOrigins, cfg.Query.DefaultLimit)
		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, configPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return configPort
}

// startServer serves h on port until ctx is cancelled, then shuts down.
func startServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

type api struct {
	p            *pipeline.Pipeline
	defaultLimit int
}

// buildRouter wires the HTTP API. A nil pipeline serves only /health; every
// other route answers 503.
func buildRouter(p *pipeline.Pipeline, origins []string, defaultLimit int) http.Handler {
	a := &api{p: p, defaultLimit: defaultLimit}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(a.requirePipeline)
		r.Post("/classify", a.classify)
		r.Post("/choices", a.choices)
		r.Get("/tenants", a.tenants)
		r.Route("/tenants/{tenant}", func(r chi.Router) {
			r.Get("/mapping", a.mapping)
			r.Delete("/mapping", a.deleteMapping)
			r.Get("/history", a.history)
			r.Post("/override", a.override)
			r.Get("/query/households", a.queryHouseholds)
			r.Post("/households", a.createHousehold)
			r.Post("/households/{household}/contacts", a.createContact)
		})
	})
	return r
}

func (a *api) requirePipeline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.p == nil {
			writeError(w, pipeline.ErrOffline)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type classifyRequest struct {
	TenantID string                `json:"tenant_id"`
	Bundle   *model.MetadataBundle `json:"bundle,omitempty"`
	Save     bool                  `json:"save"`
}

func (a *api) classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.p.Classify(r.Context(), req.TenantID, req.Bundle, req.Save)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) choices(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.TenantID == "" {
		writeError(w, model.NewValidationError("tenant_id", "is required"))
		return
	}
	cs, err := a.p.Choices(r.Context(), req.TenantID, req.Bundle)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (a *api) tenants(w http.ResponseWriter, r *http.Request) {
	list, err := a.p.Tenants(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) mapping(w http.ResponseWriter, r *http.Request) {
	m, err := a.p.Mapping(r.Context(), chi.URLParam(r, "tenant"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *api) deleteMapping(w http.ResponseWriter, r *http.Request) {
	if err := a.p.DeleteMapping(r.Context(), chi.URLParam(r, "tenant")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) history(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	hist, err := a.p.History(r.Context(), chi.URLParam(r, "tenant"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (a *api) override(w http.ResponseWriter, r *http.Request) {
	var answers override.Answers
	if !decode(w, r, &answers) {
		return
	}
	m, err := a.p.Override(r.Context(), chi.URLParam(r, "tenant"), answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *api) queryHouseholds(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	if limit == 0 {
		limit = a.defaultLimit
	}
	run, ok := boolParam(w, r, "run")
	if !ok {
		return
	}

	q, err := a.p.Households(r.Context(), chi.URLParam(r, "tenant"), r.URL.Query().Get("q"), limit, run)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type createHouseholdRequest struct {
	Name   string         `json:"name"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (a *api) createHousehold(w http.ResponseWriter, r *http.Request) {
	var req createHouseholdRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := a.p.CreateHousehold(r.Context(), chi.URLParam(r, "tenant"), req.Name, req.Fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (a *api) createContact(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if !decode(w, r, &fields) {
		return
	}
	id, err := a.p.CreateContact(r.Context(), chi.URLParam(r, "tenant"), chi.URLParam(r, "household"), fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return false
	}
	return true
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func boolParam(w http.ResponseWriter, r *http.Request, name string) (bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", name+" must be a boolean")
		return false, false
	}
	return v, true
}

// statusFor maps pipeline errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, pipeline.ErrNoMapping), errors.Is(err, pipeline.ErrNoBundle):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, pipeline.ErrOffline), errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	writeErrorCode(w, status, code, msg)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
