package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"recap-board/internal/adapters/httpapi"
	"recap-board/internal/adapters/repo"
	"recap-board/internal/adapters/summarizer"
	"recap-board/internal/domain"
	"recap-board/internal/infra/config"
	"recap-board/internal/infra/db"
	httpinfra "recap-board/internal/infra/http"
	"recap-board/internal/infra/lock"
	applog "recap-board/internal/infra/log"
	"recap-board/internal/infra/metrics"
	"recap-board/internal/infra/openai"
	goalsusecase "recap-board/internal/usecase/goals"
	recapusecase "recap-board/internal/usecase/recap"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var keyLock domain.KeyLock
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		keyLock = lock.NewRedis(redisClient)
	} else {
		logger.Warn().Msg("api: REDIS_ADDR не задан, лок обработки живёт в памяти процесса")
		keyLock = lock.NewMemory()
	}

	var recapSummarizer domain.RecapSummarizer
	if cfg.OpenAI.APIKey != "" {
		client := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
		recapSummarizer = summarizer.NewOpenAI(client, cfg.OpenAI.Model, cfg.OpenAI.Timeout)
	} else {
		logger.Warn().Msg("api: OPENAI_API_KEY не задан, используется эвристический суммаризатор")
		recapSummarizer = summarizer.NewSimple()
	}

	recapService := recapusecase.NewService(repoAdapter, recapSummarizer, keyLock, cfg.Ingest.LockTTL,
		logger.With().Str("component", "recap").Logger())
	goalService := goalsusecase.NewService(repoAdapter)
	handler := httpapi.NewHandler(recapService, goalService, repoAdapter,
		logger.With().Str("component", "api").Logger())

	server := httpinfra.NewServer(logger)
	server.Router.Group(func(protected chi.Router) {
		protected.Use(httpinfra.SessionAuthMiddleware(cfg.SessionToken, cfg.OwnerID))
		handler.Register(protected)
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api: остановка сервера")
		}
	}()

	if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Fatal().Err(err).Msg("api: сервер завершился с ошибкой")
	}
	logger.Info().Msg("api: сервер остановлен")
}
