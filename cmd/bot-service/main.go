package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"zenith-bot/internal/config"
	"zenith-bot/internal/db"
	"zenith-bot/internal/health"
	"zenith-bot/internal/ledger"
	"zenith-bot/internal/llm"
	"zenith-bot/internal/logging"
	"zenith-bot/internal/metrics"
	"zenith-bot/internal/payment"
	"zenith-bot/internal/scheduler"
	"zenith-bot/internal/session"
	"zenith-bot/internal/telegram"
)

// dedupTTL сколько помним обработанные уведомления ЮKassa
const dedupTTL = 24 * time.Hour

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logging.New(cfg.AppEnv)
	log.Info().Int("pid", os.Getpid()).Str("env", cfg.AppEnv).Msg("Starting bot-service")
	log.Info().
		Str("http_addr", cfg.HTTPAddr).
		Bool("has_root_admin", cfg.RootAdminID != 0).
		Bool("redis", cfg.Redis.Addr != "").
		Bool("payments", cfg.PaymentsEnabled()).
		Str("llm_model", cfg.LLM.Model).
		Msg("Configuration loaded")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.MustRegister(registry)

	// Инициализируем репозиторий
	repo, err := db.NewRepository(cfg.DBDsn)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize database repository")
		os.Exit(1)
	}
	defer repo.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = repo.Ping(pingCtx)
	cancelPing()
	if err != nil {
		log.Error().Err(err).Msg("Database is unreachable")
		os.Exit(1)
	}

	// Выполняем миграции
	if err := repo.AutoMigrate(); err != nil {
		log.Error().Err(err).Msg("Database migration failed")
		os.Exit(1)
	}
	log.Info().Msg("Database migrations completed successfully")

	// Redis необязателен: без него состояние диалогов и дедупликация живут в памяти процесса
	var sessions session.Store = session.NewMemoryStore(cfg.SessionTTL)
	var dedup payment.Dedup = payment.NewMemoryDedup(dedupTTL)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, falling back to in-memory state")
			rdb.Close()
		} else {
			defer rdb.Close()
			sessions = session.NewRedisStore(rdb, cfg.SessionTTL)
			dedup = payment.NewRedisDedup(rdb, dedupTTL)
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connected")
		}
	}

	ledgerService := ledger.New(repo, ledger.Config{
		RootAdminID:   cfg.RootAdminID,
		MinWithdrawal: cfg.ReferralMinWithdrawal,
	}, log)

	deps := telegram.Deps{
		Ledger:   ledgerService,
		Sessions: sessions,
	}
	if cfg.LLM.APIKey != "" {
		client := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Timeout)
		deps.Assistant = llm.NewAssistant(client, repo, cfg.LLM.Model, cfg.LLM.HistoryLimit, cfg.LLM.Timeout, log)
	} else {
		log.Warn().Msg("LLM_API_KEY is not set, chat with the model is disabled")
	}

	var processor *payment.Processor
	var poller *payment.Poller
	if cfg.PaymentsEnabled() {
		gateway := payment.NewClient(cfg.YooKassa.ShopID, cfg.YooKassa.SecretKey, cfg.YooKassa.APIURL, cfg.YooKassa.ReturnURL)
		processor = payment.NewProcessor(repo, gateway, dedup, payment.Limits{
			Min:            cfg.Payments.DepositMin,
			Max:            cfg.Payments.DepositMax,
			ReconcileAfter: cfg.Payments.ReconcileAfter,
		}, log)
		poller = payment.NewPoller(processor, cfg.Payments.PollDelay, cfg.Payments.PollInterval, cfg.Payments.PollAttempts, log)
		deps.Payments = processor
		deps.Watcher = poller
	} else {
		log.Warn().Msg("YooKassa is not configured, deposits are disabled")
	}

	// Создаем Telegram сервис
	telegramService, err := telegram.New(cfg, deps, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create Telegram service")
		os.Exit(1)
	}

	var reconciler scheduler.Reconciler
	if processor != nil {
		processor.SetNotifier(telegramService)
		reconciler = processor
	}

	// Создаем health сервер
	healthServer := health.NewServer(cfg.HTTPAddr, registry, repo, log)
	if processor != nil {
		healthServer.MountWebhook(cfg.YooKassa.WebhookPath, payment.NewWebhookHandler(processor, cfg.YooKassa.TrustAnyIP, log))
		log.Info().Str("path", cfg.YooKassa.WebhookPath).Msg("YooKassa webhook mounted")
	}

	cron := scheduler.NewScheduler(repo, telegramService.Bot(), reconciler, scheduler.Config{
		RootAdminID:   cfg.RootAdminID,
		ReconcileSpec: cfg.Payments.ReconcileSpec,
	}, log)

	// Настраиваем graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Starting health server")
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Health server failed")
		}
	}()
	defer func() {
		if err := healthServer.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop health server")
		}
	}()

	if err := cron.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start scheduler")
		log.Warn().Msg("Continuing without scheduler")
	} else {
		defer cron.Stop()
	}

	log.Info().Msg("Starting Telegram bot...")
	err = telegramService.Start(ctx)
	cancel()
	if poller != nil {
		poller.Wait()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Telegram bot failed")
		os.Exit(1)
	}

	log.Info().Msg("Bot service shutdown completed")
}
