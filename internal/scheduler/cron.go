package scheduler

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"zenith-bot/internal/db"
	"zenith-bot/internal/domain"
	"zenith-bot/internal/metrics"
)

// Sender отправка сообщений в Telegram.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Reconciler сверка зависших платежей.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

const messageRetention = 30 * 24 * time.Hour

type Config struct {
	RootAdminID   int64
	ReconcileSpec string
}

type Scheduler struct {
	cron       *cron.Cron
	repo       *db.Repository
	bot        Sender
	reconciler Reconciler
	cfg        Config
	ctx        context.Context
	cancel     context.CancelFunc
	now        func() time.Time
	log        zerolog.Logger
}

func NewScheduler(repo *db.Repository, bot Sender, reconciler Reconciler, cfg Config, log zerolog.Logger) *Scheduler {
	if cfg.ReconcileSpec == "" {
		cfg.ReconcileSpec = "*/5 * * * *"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(),
		repo:       repo,
		bot:        bot,
		reconciler: reconciler,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() error {
	jobs := []struct {
		spec string
		name string
		run  func(context.Context) error
	}{
		// сверка платежей, которые не закрыл ни опрос, ни вебхук
		{s.cfg.ReconcileSpec, "reconcile_payments", s.reconcilePayments},
		// понижение истекших подписок (ежедневно в 00:10)
		{"10 0 * * *", "downgrade_expired", s.downgradeExpiredSubscriptions},
		// очистка журнала сообщений (ежедневно в 03:00)
		{"0 3 * * *", "cleanup_messages", s.cleanupMessages},
		// сводка для root-админа (ежедневно в 09:00)
		{"0 9 * * *", "daily_stats", s.sendDailyStats},
		// напоминания об истечении (ежедневно в 12:00)
		{"0 12 * * *", "expiration_reminders", s.sendExpirationReminders},
		// проверка хранилища (каждые 5 минут)
		{"*/5 * * * *", "store_health", s.healthCheckStore},
	}

	for _, job := range jobs {
		job := job
		if job.name == "reconcile_payments" && s.reconciler == nil {
			continue
		}
		_, err := s.cron.AddFunc(job.spec, func() { s.runJob(job.name, job.run) })
		if err != nil {
			return fmt.Errorf("failed to add %s job: %w", job.name, err)
		}
	}

	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Cron scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Cron scheduler stopped")
}

func (s *Scheduler) runJob(name string, run func(context.Context) error) {
	start := time.Now()
	err := run(s.ctx)
	metrics.ObserveJob(name, err)
	if err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("job failed")
		return
	}
	s.log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job finished")
}

func (s *Scheduler) reconcilePayments(ctx context.Context) error {
	_, err := s.reconciler.Reconcile(ctx)
	return err
}

// downgradeExpiredSubscriptions переводит истекшие подписки на бесплатный тариф
func (s *Scheduler) downgradeExpiredSubscriptions(ctx context.Context) error {
	n, err := s.repo.DowngradeExpired(ctx, s.now())
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	s.log.Info().Int64("downgraded", n).Msg("Expired subscriptions downgraded")
	s.sendAdminReport(fmt.Sprintf("🕒 Автоматическая проверка подписок:\n⬇️ Переведено на %s: %d", domain.TierFree.DisplayName(), n))
	return nil
}

// sendExpirationReminders напоминает о подписках, которые закончатся в ближайшие 3 дня
func (s *Scheduler) sendExpirationReminders(ctx context.Context) error {
	now := s.now()
	users, err := s.repo.UsersExpiringBetween(ctx, now, now.AddDate(0, 0, 3))
	if err != nil {
		return err
	}

	for _, u := range users {
		if u.SubscriptionExpires == nil {
			continue
		}
		text := fmt.Sprintf(`⚠️ Напоминание о подписке

Ваша подписка %s истекает %s.

Продлите подписку, чтобы сохранить увеличенный дневной лимит.

Для продления используйте команду /buy`,
			domain.Tier(u.SubscriptionType).DisplayName(),
			u.SubscriptionExpires.Format("02.01.2006"),
		)

		if _, err := s.bot.Send(tgbotapi.NewMessage(u.TgID, text)); err != nil {
			metrics.BotSendErrors.Inc()
			s.log.Warn().Err(err).Int64("user_id", u.TgID).Msg("Failed to send expiration reminder")
		}
	}
	return nil
}

func (s *Scheduler) cleanupMessages(ctx context.Context) error {
	n, err := s.repo.CleanupMessages(ctx, s.now().Add(-messageRetention))
	if err != nil {
		return err
	}
	s.log.Info().Int64("deleted", n).Msg("Old messages removed")
	return nil
}

func (s *Scheduler) sendDailyStats(ctx context.Context) error {
	stats, err := s.repo.CollectStats(ctx, s.now())
	if err != nil {
		return err
	}
	s.sendAdminReport(fmt.Sprintf(`📊 Ежедневная статистика

👥 Пользователей: %d
💎 Активных подписок: %d
💰 Сумма балансов: %d руб.
🤝 Рефералов: %d (выплачено %d руб.)
⏳ Платежей в ожидании: %d`,
		stats.TotalUsers, stats.ActiveSubscribers, stats.TotalBalance,
		stats.TotalReferrals, stats.ReferralPaidOut, stats.PendingPayments))
	return nil
}

// healthCheckStore проверяет доступность хранилища
func (s *Scheduler) healthCheckStore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		s.sendHealthAlert(fmt.Sprintf("❌ База данных недоступна: %v", err))
		return err
	}
	return nil
}

// sendAdminReport отправляет отчет root-админу
func (s *Scheduler) sendAdminReport(message string) {
	if s.cfg.RootAdminID == 0 {
		return
	}
	if _, err := s.bot.Send(tgbotapi.NewMessage(s.cfg.RootAdminID, message)); err != nil {
		metrics.BotSendErrors.Inc()
		s.log.Warn().Err(err).Msg("Failed to send admin report")
	}
}

// sendHealthAlert отправляет алерт о проблемах со здоровьем системы
func (s *Scheduler) sendHealthAlert(message string) {
	s.log.Warn().Str("message", message).Msg("Health alert")
	s.sendAdminReport("🚨 " + message)
}
