package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"zenith-bot/internal/db"
	"zenith-bot/internal/domain"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

type fakeReconciler struct{ calls int }

func (f *fakeReconciler) Reconcile(context.Context) (int, error) {
	f.calls++
	return 0, nil
}

const rootID int64 = 1

func setupScheduler(t *testing.T) (*Scheduler, *db.Repository, *fakeSender) {
	repo, err := db.NewRepository(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	sender := &fakeSender{}
	s := NewScheduler(repo, sender, &fakeReconciler{}, Config{RootAdminID: rootID}, zerolog.Nop())
	return s, repo, sender
}

func TestDowngradeExpiredSubscriptions(t *testing.T) {
	s, repo, sender := setupScheduler(t)
	ctx := context.Background()
	now := time.Now().UTC()

	repo.EnsureUser(ctx, 10, "expired", "")
	repo.EnsureUser(ctx, 11, "active", "")
	repo.UpdateSubscription(ctx, 10, domain.TierNova, domain.SubscriptionDays, now.AddDate(0, 0, -31))
	repo.UpdateSubscription(ctx, 11, domain.TierNova, domain.SubscriptionDays, now)

	if err := s.downgradeExpiredSubscriptions(ctx); err != nil {
		t.Fatalf("downgradeExpiredSubscriptions: %v", err)
	}

	u, _ := repo.GetUser(ctx, 10)
	if u.SubscriptionType != domain.TierFree.String() {
		t.Errorf("expired user not downgraded: %s", u.SubscriptionType)
	}
	u, _ = repo.GetUser(ctx, 11)
	if u.SubscriptionType != domain.TierNova.String() {
		t.Errorf("active user downgraded: %s", u.SubscriptionType)
	}
	if len(sender.sent) != 1 || sender.sent[0].ChatID != rootID {
		t.Fatalf("expected one report to root, got %+v", sender.sent)
	}

	// повторный запуск ничего не меняет и не шлет отчет
	s.downgradeExpiredSubscriptions(ctx)
	if len(sender.sent) != 1 {
		t.Errorf("empty run must not report, sent %d", len(sender.sent))
	}
}

func TestExpirationReminders(t *testing.T) {
	s, repo, sender := setupScheduler(t)
	ctx := context.Background()
	now := time.Now().UTC()

	repo.EnsureUser(ctx, 10, "soon", "")
	repo.EnsureUser(ctx, 11, "later", "")
	repo.EnsureUser(ctx, 12, "free", "")
	// истекает через 2 дня
	repo.UpdateSubscription(ctx, 10, domain.TierPulse, domain.SubscriptionDays, now.AddDate(0, 0, -28))
	repo.UpdateSubscription(ctx, 11, domain.TierPulse, domain.SubscriptionDays, now)

	if err := s.sendExpirationReminders(ctx); err != nil {
		t.Fatalf("sendExpirationReminders: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].ChatID != 10 {
		t.Fatalf("expected one reminder to user 10, got %+v", sender.sent)
	}
	if !strings.Contains(sender.sent[0].Text, domain.TierPulse.DisplayName()) {
		t.Errorf("reminder missing tier name: %q", sender.sent[0].Text)
	}
}

func TestCleanupMessages(t *testing.T) {
	s, repo, _ := setupScheduler(t)
	ctx := context.Background()

	repo.LogMessage(ctx, 10, "user", "fresh")
	repo.DB().Create(&db.MessageLog{UserID: 10, Role: "user", Message: "old", Timestamp: time.Now().UTC().AddDate(0, 0, -40)})

	if err := s.cleanupMessages(ctx); err != nil {
		t.Fatalf("cleanupMessages: %v", err)
	}
	msgs, _ := repo.LastMessages(ctx, 10, 10)
	if len(msgs) != 1 || msgs[0].Message != "fresh" {
		t.Errorf("unexpected messages after cleanup: %+v", msgs)
	}
}

func TestDailyStatsAndHealth(t *testing.T) {
	s, repo, sender := setupScheduler(t)
	ctx := context.Background()
	repo.EnsureUser(ctx, 10, "u", "")

	if err := s.sendDailyStats(ctx); err != nil {
		t.Fatalf("sendDailyStats: %v", err)
	}
	if len(sender.sent) != 1 || !strings.Contains(sender.sent[0].Text, "Пользователей: 1") {
		t.Errorf("unexpected stats report: %+v", sender.sent)
	}

	if err := s.healthCheckStore(ctx); err != nil {
		t.Errorf("healthCheckStore: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Error("healthy store must not alert")
	}
}

func TestStartRegistersJobs(t *testing.T) {
	s, _, _ := setupScheduler(t)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if n := len(s.cron.Entries()); n != 6 {
		t.Errorf("expected 6 jobs, got %d", n)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	repo, _ := db.NewRepository(":memory:")
	defer repo.Close()
	s := NewScheduler(repo, &fakeSender{}, &fakeReconciler{}, Config{ReconcileSpec: "not a spec"}, zerolog.Nop())
	if err := s.Start(); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}
