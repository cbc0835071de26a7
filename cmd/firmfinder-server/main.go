// Command firmfinder-server exposes record enrichment over HTTP.
//
// Usage:
//
//	firmfinder-server -addr :8080
//
// Endpoints:
//
//	GET  /healthz      liveness probe
//	GET  /api/stats    page cache statistics
//	POST /api/enrich   {"targets": [{"raw_name": "...", ...}]} -> results
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/leadgroove/firmfinder"
	"github.com/leadgroove/firmfinder/httpcache"
)

const maxBatchTargets = 100

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	baseURL := flag.String("base-url", "", "directory service origin (default: primary service)")
	sessions := flag.Int("sessions", 1, "parallel sessions per batch")
	contacts := flag.Bool("contacts", false, "follow decision-maker profiles for contact details")
	noCache := flag.Bool("no-cache", false, "disable page caching")
	cacheTTL := flag.Duration("cache-ttl", 30*24*time.Hour, "page cache time-to-live")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debug("no .env loaded", "error", err)
	}

	srv := &server{
		logger:   logger,
		baseURL:  *baseURL,
		sessions: *sessions,
		contacts: *contacts,
	}

	if !*noCache {
		cache, err := httpcache.New(*cacheTTL)
		if err != nil {
			logger.Warn("failed to initialize cache, continuing without cache", "error", err)
		} else {
			defer func() {
				if err := cache.Close(); err != nil {
					logger.Warn("failed to close cache", "error", err)
				}
			}()
			srv.cache = cache
		}
	}

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("server listening", "addr", *addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type server struct {
	logger   *slog.Logger
	cache    httpcache.Cacher
	baseURL  string
	sessions int
	contacts bool
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/enrich", s.handleEnrich)
		r.Get("/stats", s.handleStats)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := httpcache.CacheStats()
	writeJSON(w, http.StatusOK, map[string]int64{
		"cache_hits":   stats.Hits,
		"cache_misses": stats.Misses,
	})
}

type enrichRequest struct {
	Targets []firmfinder.Target `json:"targets"`
}

type enrichResponse struct {
	Results []firmfinder.Result `json:"results"`
}

func (s *server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Targets) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no targets"})
		return
	}
	if len(req.Targets) > maxBatchTargets {
		writeJSON(w, http.StatusBadRequest,
			map[string]string{"error": fmt.Sprintf("too many targets, max %d", maxBatchTargets)})
		return
	}

	opts := []firmfinder.Option{
		firmfinder.WithLogger(s.logger),
		firmfinder.WithSessions(s.sessions),
	}
	if s.baseURL != "" {
		opts = append(opts, firmfinder.WithBaseURL(s.baseURL))
	}
	if s.cache != nil {
		opts = append(opts, firmfinder.WithCache(s.cache))
	}
	if s.contacts {
		opts = append(opts, firmfinder.WithContactReveal())
	}

	results, err := firmfinder.ResolveBatch(r.Context(), req.Targets, opts...)
	if err != nil {
		s.logger.Error("batch failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, enrichResponse{Results: results})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Debug("response encode failed", "error", err)
	}
}
