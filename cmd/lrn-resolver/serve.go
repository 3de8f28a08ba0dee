package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/lrn-resolver/internal/config"
	"github.com/Sternrassler/lrn-resolver/pkg/batch"
	"github.com/Sternrassler/lrn-resolver/pkg/cache"
	"github.com/Sternrassler/lrn-resolver/pkg/logging"
	"github.com/Sternrassler/lrn-resolver/pkg/lrn"
	"github.com/Sternrassler/lrn-resolver/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	maxBatchNumbers   = 10000
	lookupTimeout     = 90 * time.Second
	readyPingTimeout  = 2 * time.Second
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func serveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve LRN lookups over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := newServer(ctx, a)
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:              ":" + strconv.Itoa(cfg.Port),
				Handler:           srv.routes(),
				ReadHeaderTimeout: readHeaderTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				srv.logger.Info().
					Str("addr", httpServer.Addr).
					Str("cache_backend", cfg.CacheBackend).
					Str("user_agent", cfg.UserAgent).
					Msg("Starting LRN server")
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			srv.logger.Info().Msg("Shutting down LRN server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
}

// server answers lookups from a cache map loaded once at startup. Single
// lookups persist their result immediately; batch lookups go through the
// orchestrator, which persists at the end of the run.
type server struct {
	app    *app
	cache  *cache.Map
	logger zerolog.Logger
}

func newServer(ctx context.Context, a *app) (*server, error) {
	entries, err := a.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	return &server{
		app:    a,
		cache:  cache.NewMap(entries),
		logger: logging.NewLogger(logging.ComponentServer),
	}, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(s.app.ping))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /lrn/{number}", s.lookupHandler)
	mux.HandleFunc("POST /lrn/batch", s.batchHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports 503 while the cache backend is unreachable.
func readyHandler(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyPingTimeout)
			defer cancel()
			if err := ping(ctx); err != nil {
				http.Error(w, fmt.Sprintf("cache backend unavailable: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func (s *server) lookupHandler(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimSpace(r.PathValue("number"))
	if number == "" {
		http.Error(w, "number is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()

	_, cached := s.cache.Get(number)
	result := s.app.resolver.ResolveOne(ctx, s.app.endpoint, number, s.cache)

	if !cached && !lrn.IsError(result) {
		if err := s.app.store.Save(ctx, map[string]string{number: result}); err != nil {
			s.logger.Warn().Err(err).Str("number", number).Msg("Failed to persist lookup")
		}
	}

	status := http.StatusOK
	if lrn.IsError(result) {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, lrn.NewResult(number, result))
}

type batchRequest struct {
	Numbers []string `json:"numbers"`
}

type batchResponse struct {
	RunStats batchStats   `json:"stats"`
	Results  []lrn.Result `json:"results"`
}

type batchStats struct {
	Requested      int     `json:"requested"`
	CacheHits      int     `json:"cache_hits"`
	CacheMisses    int     `json:"cache_misses"`
	Successes      int     `json:"successes"`
	Errors         int     `json:"errors"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Rate           float64 `json:"rate"`
}

func (s *server) batchHandler(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	numbers := make([]string, 0, len(req.Numbers))
	for _, n := range req.Numbers {
		if n = strings.TrimSpace(n); n != "" {
			numbers = append(numbers, n)
		}
	}
	if len(numbers) == 0 {
		http.Error(w, "numbers must not be empty", http.StatusBadRequest)
		return
	}
	if len(numbers) > maxBatchNumbers {
		http.Error(w, fmt.Sprintf("at most %d numbers per request", maxBatchNumbers), http.StatusRequestEntityTooLarge)
		return
	}

	results, stats, err := s.app.orchestrator.Resolve(r.Context(), numbers)
	if results == nil {
		http.Error(w, fmt.Sprintf("batch lookup failed: %v", err), http.StatusInternalServerError)
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Int("numbers", len(numbers)).Msg("Batch lookup finished with error")
	}

	writeJSON(w, http.StatusOK, s.buildBatchResponse(numbers, results, stats))
}

// buildBatchResponse lists one result per distinct number in request order
// and refreshes the server's cache map with new successes.
func (s *server) buildBatchResponse(numbers []string, results map[string]string, stats batch.Stats) batchResponse {
	resp := batchResponse{
		RunStats: batchStats{
			Requested:      stats.Requested,
			CacheHits:      stats.CacheHits,
			CacheMisses:    stats.CacheMisses,
			Successes:      stats.Successes,
			Errors:         stats.Errors,
			ElapsedSeconds: stats.Elapsed.Seconds(),
			Rate:           stats.Rate(),
		},
		Results: make([]lrn.Result, 0, len(results)),
	}

	seen := make(map[string]bool, len(results))
	for _, number := range numbers {
		if seen[number] {
			continue
		}
		seen[number] = true

		result := results[number]
		if !lrn.IsError(result) {
			s.cache.SetIfAbsent(number, result)
		}
		resp.Results = append(resp.Results, lrn.NewResult(number, result))
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := logging.NewLogger(logging.ComponentServer)
		logger.Warn().Err(err).Msg("Failed to write response")
	}
}
