// Command zeus-server exposes the query pipeline over HTTP.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"zeus-pipeline/internal/common/config"
	"zeus-pipeline/internal/common/database"
	"zeus-pipeline/internal/common/logger"
	"zeus-pipeline/internal/common/observability"
	"zeus-pipeline/internal/models"
	"zeus-pipeline/internal/zeus/analysis"
	"zeus-pipeline/internal/zeus/cache"
	"zeus-pipeline/internal/zeus/generate"
	"zeus-pipeline/internal/zeus/intent"
	"zeus-pipeline/internal/zeus/memory"
	"zeus-pipeline/internal/zeus/orchestrator"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := logger.NewZapAdapter(zapLogger)

	log.Info("starting zeus-server", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		log.Error("redis connection failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer redisClient.Close()

	pgClient, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		log.Error("postgres connection failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer pgClient.Close()

	esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		log.Error("elasticsearch connection failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	generator, err := buildGenerator(ctx, cfg, log)
	if err != nil {
		log.Error("generator setup failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	provider := analysis.NewStoreProvider(pgClient.GetDB(), esClient.GetClient(), log)
	responseCache := cache.New(redisClient.GetClient(), log)
	memoryStore := memory.NewStore(redisClient.GetClient(), log)

	rules := intent.NewRuleStage()
	model := intent.NewModelStage(generator, log)
	classifier := intent.NewClassifier(rules, model, log)

	orch := orchestrator.New(classifier, responseCache, memoryStore, provider, generator, cfg.Zeus, log)

	srv := &server{
		orchestrator: orch,
		redis:        redisClient,
		postgres:     pgClient,
		obs:          obs,
		logger:       log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/zeus/query", srv.handleQuery)
	mux.HandleFunc("/api/zeus/cache", srv.handleInvalidate)
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
	}

	go func() {
		log.Info("http server listening", map[string]interface{}{"address": cfg.Server.Address})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	log.Info("zeus-server stopped", nil)
}

// buildGenerator prefers the internal generation endpoint and falls back to
// the Gemini API when none is configured.
func buildGenerator(ctx context.Context, cfg *config.Config, log logger.Logger) (generate.Generator, error) {
	if cfg.APIs.GenAI.BaseURL != "" {
		return generate.NewHTTPGenerator(cfg, log), nil
	}
	return generate.NewGeminiGenerator(ctx, cfg, log)
}

type server struct {
	orchestrator *orchestrator.Orchestrator
	redis        *database.RedisClient
	postgres     *database.PostgresClient
	obs          *observability.Observability
	logger       logger.Logger
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "userId and query are required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	start := time.Now()
	resp := s.orchestrator.HandleQuery(r.Context(), &req)
	s.obs.RecordQueryProcessed(r.Context(), string(resp.Source))
	s.obs.RecordQueryDuration(r.Context(), time.Since(start), string(resp.Source))

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.QueryType == "" {
		writeError(w, http.StatusBadRequest, "userId and queryType are required")
		return
	}

	deleted, err := s.orchestrator.InvalidateCache(r.Context(), req.UserID, intent.QueryType(req.QueryType))
	if err != nil {
		s.logger.Error("cache invalidation failed", map[string]interface{}{
			"userId": req.UserID,
			"error":  err.Error(),
		})
		writeError(w, http.StatusInternalServerError, "invalidation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"redis": "ok", "postgres": "ok"}
	healthy := true

	if err := s.redis.Ping(ctx); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}
	if err := s.postgres.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
