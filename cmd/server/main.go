package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/enercast/enercast/internal/api"
	"github.com/enercast/enercast/internal/metrics"
	"github.com/enercast/enercast/internal/runner"
	"github.com/enercast/enercast/internal/silver"
	"github.com/enercast/enercast/pkg/otel"
)

type Server struct {
	runner      *runner.Runner
	store       silver.Store
	writer      silver.ResultsWriter
	metrics     *metrics.Metrics
	limiter     *rate.Limiter
	backend     string
	apiKey      string
	metricsAuth struct {
		enabled  bool
		user     string
		password string
	}
}

func main() {
	ctx := context.Background()

	// Tracing
	if endpoint := getEnv("OTEL_COLLECTOR_ENDPOINT", ""); endpoint != "" {
		cfg := otel.DefaultConfig("enercast")
		cfg.CollectorEndpoint = endpoint
		cfg.Environment = getEnv("OTEL_ENVIRONMENT", "production")
		tp, err := otel.InitTracer(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to init tracing: %v", err)
		}
		defer func() {
			if err := otel.Shutdown(context.Background(), tp); err != nil {
				log.Printf("Tracer shutdown error: %v", err)
			}
		}()
	}

	// Optional Redis: shared degree-day cache and distributed run lock.
	var rdb *redis.Client
	if addr := getEnv("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Redis ping failed: %v", err)
		}
	}

	// Silver store
	sentinel := getEnvFloat("SENTINEL_VALUE", silver.DefaultSentinel)
	backend := getEnv("STORE_BACKEND", "memory")
	var store silver.Store
	var writer silver.ResultsWriter
	var err error

	switch backend {
	case "memory":
		mem := silver.NewMemoryStore(sentinel)
		store, writer = mem, mem
	case "postgres":
		connStr := getEnv("POSTGRES_CONN", "")
		if connStr == "" {
			log.Fatal("POSTGRES_CONN is required when STORE_BACKEND=postgres")
		}
		pg, perr := silver.NewPostgresStore(ctx, connStr, sentinel)
		if perr != nil {
			log.Fatalf("Failed to create Postgres store: %v", perr)
		}
		store, writer = pg, pg
	default:
		log.Fatalf("Unknown STORE_BACKEND: %s", backend)
	}

	// Degree-day read-through cache
	cacheSize := getEnvInt("DJU_CACHE_SIZE", 256)
	cacheTTL := time.Duration(getEnvInt("DJU_CACHE_TTL_SECONDS", 3600)) * time.Second
	djuCache, err := silver.NewDegreeDayCache(store, cacheSize, cacheTTL, rdb)
	if err != nil {
		log.Fatalf("Failed to create degree-day cache: %v", err)
	}

	// Run lock
	var lock silver.RunLock
	if rdb != nil {
		lock = silver.NewRedisLock(rdb)
	} else {
		lock = silver.NewMemoryLock()
	}

	// Metrics
	m := metrics.New()
	djuCache.WithCounters(m.DegreeDayCacheHits, m.DegreeDayCacheMisses)

	// Rate limiter
	tokenRate := getEnvInt("TOKEN_RATE", 10)
	limiter := rate.NewLimiter(rate.Limit(tokenRate), tokenRate*2)

	run := runner.New(store, djuCache, writer, lock, runner.Options{
		Workers: getEnvInt("WORKERS", 4),
		Metrics: m,
	})

	srv := &Server{
		runner:  run,
		store:   store,
		writer:  writer,
		metrics: m,
		limiter: limiter,
		backend: backend,
		apiKey:  getEnv("API_KEY", ""),
	}
	srv.metricsAuth.enabled = getEnv("METRICS_USER", "") != ""
	srv.metricsAuth.user = getEnv("METRICS_USER", "")
	srv.metricsAuth.password = getEnv("METRICS_PASS", "")

	// HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/predict/run", srv.handleRun)
	mux.HandleFunc("/v1/predict/results/", srv.handleResults)
	mux.Handle("/metrics", srv.metricsHandler())
	mux.HandleFunc("/health", srv.handleHealth)

	port := getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdown
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	if err := store.Close(); err != nil {
		log.Printf("Error closing silver store: %v", err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Printf("Error closing Redis client: %v", err)
		}
	}

	log.Println("Server stopped")
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
		respondError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "10")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	var req api.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	params, err := req.Validate()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.runner.Run(r.Context(), params)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, api.Summarize(results))
	case errors.Is(err, runner.ErrAlreadyRunning):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, silver.ErrNotFound):
		respondError(w, http.StatusNotFound, "building not found")
	case errors.Is(err, runner.ErrNoInvoices), errors.Is(err, runner.ErrNoWeatherStation):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("Run failed for %s: %v", params.BuildingID, err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	buildingID := strings.TrimPrefix(r.URL.Path, "/v1/predict/results/")
	if buildingID == "" || strings.Contains(buildingID, "/") {
		respondError(w, http.StatusBadRequest, "building id is required")
		return
	}

	results, err := s.writer.LatestRun(r.Context(), buildingID)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, results)
	case errors.Is(err, silver.ErrNotFound):
		respondError(w, http.StatusNotFound, "no run found for building")
	default:
		log.Printf("Results lookup failed for %s: %v", buildingID, err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) metricsHandler() http.Handler {
	handler := promhttp.Handler()

	if !s.metricsAuth.enabled {
		return handler
	}

	// Wrap with Basic Auth
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.metricsAuth.user || pass != s.metricsAuth.password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": s.backend,
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, api.ErrorResponse{Error: msg})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
