package ledger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"zenith-bot/internal/db"
	"zenith-bot/internal/domain"
)

const testRootID int64 = 1

func setupTestService(t *testing.T) (*Service, *db.Repository) {
	repo, err := db.NewRepository(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return New(repo, Config{RootAdminID: testRootID, MinWithdrawal: 10}, zerolog.Nop()), repo
}

func mustUser(t *testing.T, repo *db.Repository, id int64, username string) {
	t.Helper()
	if _, _, err := repo.EnsureUser(context.Background(), id, username, username); err != nil {
		t.Fatalf("EnsureUser(%d): %v", id, err)
	}
}

func referralBalance(t *testing.T, repo *db.Repository, id int64) int {
	t.Helper()
	user, err := repo.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUser(%d): %v", id, err)
	}
	return user.ReferralBalance
}

// A пригласил B, B пригласил C, C пригласил D
func buildChain(t *testing.T, svc *Service, repo *db.Repository) {
	ctx := context.Background()
	for id, name := range map[int64]string{10: "a", 11: "b", 12: "c", 13: "d"} {
		mustUser(t, repo, id, name)
	}
	links := [][2]int64{{11, 10}, {12, 11}, {13, 12}}
	for _, l := range links {
		if _, err := svc.RegisterReferral(ctx, l[0], l[1]); err != nil {
			t.Fatalf("RegisterReferral(%d, %d): %v", l[0], l[1], err)
		}
	}
}

func TestProcessReferralBonusesThreeLevels(t *testing.T) {
	svc, repo := setupTestService(t)
	ctx := context.Background()
	buildChain(t, svc, repo)

	payouts, err := svc.ProcessReferralBonuses(ctx, 13, 1000, domain.TierEclipse)
	if err != nil {
		t.Fatalf("ProcessReferralBonuses: %v", err)
	}
	if len(payouts) != 3 {
		t.Fatalf("expected 3 payouts, got %d", len(payouts))
	}

	want := map[int64]int{12: 150, 11: 100, 10: 50}
	for id, amount := range want {
		if got := referralBalance(t, repo, id); got != amount {
			t.Errorf("referrer %d: expected %d, got %d", id, amount, got)
		}
	}

	var records int64
	repo.DB().Model(&db.ReferralPayment{}).Where("user_id = ?", 13).Count(&records)
	if records != 3 {
		t.Errorf("expected 3 payment records, got %d", records)
	}
}

func TestProcessReferralBonusesShortChain(t *testing.T) {
	svc, repo := setupTestService(t)
	ctx := context.Background()
	buildChain(t, svc, repo)

	payouts, err := svc.ProcessReferralBonuses(ctx, 11, 1000, domain.TierEclipse)
	if err != nil {
		t.Fatalf("ProcessReferralBonuses: %v", err)
	}
	if len(payouts) != 1 || payouts[0].ReferrerID != 10 || payouts[0].Amount != 150 {
		t.Fatalf("unexpected payouts: %+v", payouts)
	}

	payouts, err = svc.ProcessReferralBonuses(ctx, 10, 1000, domain.TierEclipse)
	if err != nil {
		t.Fatalf("ProcessReferralBonuses: %v", err)
	}
	if len(payouts) != 0 {
		t.Errorf("user without referrer must not produce payouts: %+v", payouts)
	}
}

func TestPurchaseWithDiscountAndReferrer(t *testing.T) {
	svc, repo := setupTestService(t)
	ctx := context.Background()
	mustUser(t, repo, 10, "ref")
	mustUser(t, repo, 20, "buyer")

	if _, err := svc.RegisterReferral(ctx, 20, 10); err != nil {
		t.Fatalf("RegisterReferral: %v", err)
	}
	if err := repo.CreditBalance(ctx, 20, 1000); err != nil {
		t.Fatalf("CreditBalance: %v", err)
	}
	if _, err := svc.CreateCode(ctx, "save10", 10, 5, testRootID); err != nil {
		t.Fatalf("CreateCode: %v", err)
	}
	if _, err := svc.ApplyCode(ctx, 20, " Save10 "); err != nil {
		t.Fatalf("ApplyCode: %v", err)
	}

	receipt, err := svc.Purchase(ctx, 20, domain.TierNova)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if receipt.FinalPrice != 450 || receipt.DiscountCode != "SAVE10" {
		t.Errorf("unexpected receipt: %+v", receipt)
	}

	user, _ := repo.GetUser(ctx, 20)
	if user.Balance != 550 {
		t.Errorf("expected balance 550, got %d", user.Balance)
	}
	if user.SubscriptionType != domain.TierNova.String() || !svc.IsSubscriptionActive(user) {
		t.Errorf("subscription not activated: %+v", user)
	}
	if got := referralBalance(t, repo, 10); got != 67 {
		t.Errorf("referrer bonus should be based on final price: got %d", got)
	}

	dc, _ := repo.GetDiscountCode(ctx, "SAVE10")
	if dc.UsedCount != 1 {
		t.Errorf("expected used_count 1, got %d", dc.UsedCount)
	}
	if _, err := svc.ActiveDiscount(ctx, 20); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("discount must be consumed, got %v", err)
	}
}

func TestPurchaseInsufficientFundsRollsBack(t *testing.T) {
	svc, repo := setupTestService(t)
	ctx := context.Background()
	mustUser(t, repo, 10, "ref")
	mustUser(t, repo, 20, "buyer")
	svc.RegisterReferral(ctx, 20, 10)
	repo.CreditBalance(ctx, 20, 100)

	_, err := svc.Purchase(ctx, 20, domain.TierPulse)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	user, _ := repo.GetUser(ctx, 20)
	if user.Balance != 100 || user.SubscriptionType != domain.TierFree.String() {
		t.Errorf("state changed after failed purchase: %+v", user)
	}
	if got := referralBalance(t, repo, 10); got != 0 {
		t.Errorf("referrer credited after failed purchase: %d", got)
	}
}

func TestPurchaseExhaustedDiscount(t *testing.T) {
	svc, repo := setupTestService(t)
	ctx := context.Background()
	mustUser(t, repo, 20, "first")
	mustUser(t, repo, 21, "second")
	repo.CreditBalance(ctx, 20, 1000)
	repo.CreditBalance(ctx, 21, 1000)

	svc.CreateCode(ctx, "ONCE", 50, 1, testRootID)
	if _, err := svc.ApplyCode(ctx, 20, "ONCE"); err != nil {
		t.Fatalf("ApplyCode first: %v", err)
	}
	if _, err := svc.ApplyCode(ctx, 21, "ONCE"); err != nil {
		t.Fatalf("ApplyCode second: %v", err)
	}

	if _, err := svc.Purchase(ctx, 20, domain.TierPulse); err != nil {
		t.Fatalf("first purchase: %v", err)
	}

	_, err := svc.Purchase(ctx, 21, domain.TierPulse)
	if !errors.Is(err, domain.ErrDiscountExhausted) {
		t.Fatalf("expected ErrDiscountExhausted, got %v", err)
	}
	user, _ := repo.GetUser(ctx, 21)
	if user.Balance != 1000 {
		t.Errorf("balance changed after rollback: %d", user.Balance)
	}
	if _, err := svc.ActiveDiscount(ctx, 21); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("exhausted application should be cancelled, got %v", err)
	}

	// без скидки покупка проходит по полной цене
	receipt, err := svc.Purchase(ctx, 21, domain.TierPulse)
	if err != nil {
		t.Fatalf("retry purchase: %v", err)
	}
	if receipt.FinalPrice != 300 {
		t.Errorf("expected full price, got %d", receipt.FinalPrice)
	}
}

func TestPurchaseRejectsFreeTier(t *testing.T) {
	svc, repo := setupTestService(t)
	mustUser(t, repo, 20, "buyer")
	if _, err := svc.Purchase(context.Background(), 20, domain.TierFree); !errors.Is(err, domain.ErrInvalidTier) {
		t.Errorf("expected ErrInvalidTier, got %v", err)
	}
}

func TestApplyCode(t *testing.T) {
	svc, repo := setupTestService(t)
	ctx := context.Background()
	mustUser(t, repo, 20, "user")
	svc.CreateCode(ctx, "A10", 10, 3, testRootID)
	svc.CreateCode(ctx, "B20", 20, 3, testRootID)
	svc.CreateCode(ctx, "FULL", 20, 1, testRootID)

	tests := []struct {
		name    string
		code    string
		wantErr error
	}{
		{"unknown code", "NOPE", domain.ErrNotFound},
		{"empty code", "  ", domain.ErrNotFound},
		{"first apply", "a10", nil},
		{"second while pending", "B20", domain.ErrDiscountAlreadyApplied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ApplyCode(ctx, 20, tt.code)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ApplyCode(%q) = %v, want %v", tt.code, err, tt.wantErr)
			}
		})
	}

	// деактивированный код освобождает место для новой заявки
	if _, err := svc.DeactivateCode(ctx, "A10"); err != nil {
		t.Fatalf("DeactivateCode: %v", err)
	}
	if _, err := svc.ApplyCode(ctx, 20, "B20"); err != nil {
		t.Errorf("apply after deactivation: %v", err)
	}

	repo.DB().Model(&db.DiscountCode{}).Where("code = ?", "FULL").Update("used_count", 1)
	mustUser(t, repo, 21, "other")
	if _, err := svc.ApplyCode(ctx, 21, "FULL"); !errors.Is(err, domain.ErrDiscountExhausted) {
		t.Errorf("expected ErrDiscountExhausted, got %v", err)
	}
}

func TestCreateCodeValidation(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		percent int
		uses    int
		wantErr bool
	}{
		{"valid", 15, 10, false},
		{"zero percent", 0, 10, true},
		{"over hundred", 101, 10, true},
		{"zero uses", 10, 0, true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := string(rune('A'+i)) + "CODE"
			_, err := svc.CreateCode(ctx, code, tt.percent, tt.uses, testRootID)
			if (err != nil) != tt.wantErr {
				t.Errorf("CreateCode(%d, %d) error = %v, wantErr %v", tt.percent, tt.uses, err, tt.wantErr)
			}
		})
	}

	if _, err := svc.CreateCode(ctx, "acode", 20, 1, testRootID); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("duplicate code should fail with ErrAlreadyExists, got %v", err)
	}
}

func TestCreatePersonalCode(t *testing.T) {
	svc, _ := setupTestService(t)
	svc.now = func() time.Time { return time.Unix(1700000000, 0).UTC() }

	dc, err := svc.CreatePersonalCode(context.Background(), 42, 25, 1, "tier2", testRootID)
	if err != nil {
		t.Fatalf("CreatePersonalCode: %v", err)
	}
	if !strings.HasPrefix(dc.Code, "DISC_42_1700000000_") || !strings.HasSuffix(dc.Code, "_TIER2") {
		t.Errorf("unexpected personal code %q", dc.Code)
	}
	if dc.DiscountPercent != 25 || dc.MaxUses != 1 {
		t.Errorf("unexpected params: %+v", dc)
	}

	if _, err := svc.CreatePersonalCode(context.Background(), 42, 25, 1, "gold", testRootID); !errors.Is(err, domain.ErrInvalidTier) {
		t.Errorf("expected ErrInvalidTier, got %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func TestCreatePersonalCodeRandomFailure(t *testing.T) {
	svc, repo := setupTestService(t)
	svc.rand = failingReader{}

	if _, err := svc.CreatePersonalCode(context.Background(), 42, 25, 1, "", testRootID); err == nil {
		t.Fatal("expected error when random source fails")
	}
	codes, err := repo.ListDiscountCodes(context.Background())
	if err != nil {
		t.Fatalf("ListDiscountCodes: %v", err)
	}
	if len(codes) != 0 {
		t.Errorf("no code should be stored, got %d", len(codes))
	}
}

func TestConsumeTokens(t *testing.T) {
	svc, repo := setupTestService(t)
	ctx := context.Background()
	mustUser(t, repo, 20, "user")

	usage, err := svc.ConsumeTokens(ctx, 20, "one two three four five")
	if err != nil {
		t.Fatalf("ConsumeTokens: %v", err)
	}
	if usage.Cost != 10 || usage.Used != 10 || usage.Limit != 20 {
		t.Errorf("unexpected usage: %+v", usage)
	}

	if _, err := svc.ConsumeTokens(ctx, 20, "a b c d e f"); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	// на следующий день счетчик сбрасывается
	svc.now = func() time.Time { return time.Now().UTC().AddDate(0, 0, 1) }
	usage, err = svc.ConsumeTokens(ctx, 20, "a b c d e f")
	if err != nil {
		t.Fatalf("ConsumeTokens next day: %v", err)
	}
	if usage.Used != 12 {
		t.Errorf("expected counter reset, used %d", usage.Used)
	}
}

func TestConsumeTokensExpiredSubscriptionUsesFreeLimit(t *testing.T) {
	svc, repo := setupTestService(t)
	ctx := context.Background()
	mustUser(t, repo, 20, "user")

	past := time.Now().UTC().AddDate(0, 0, -40)
	if _, err := repo.UpdateSubscription(ctx, 20, domain.TierEclipse, domain.SubscriptionDays, past); err != nil {
		t.Fatalf("UpdateSubscription: %v", err)
	}

	usage, err := svc.ConsumeTokens(ctx, 20, "hi")
	if err != nil {
		t.Fatalf("ConsumeTokens: %v", err)
	}
	if usage.Tier != domain.TierFree || usage.Limit != 20 {
		t.Errorf("expired subscription should fall back to free: %+v", usage)
	}
}

func TestExchangeAndWithdrawal(t *testing.T) {
	svc, repo := setupTestService(t)
	ctx := context.Background()
	mustUser(t, repo, 20, "user")

	if _, err := svc.ExchangeAll(ctx, 20); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("exchange of empty balance: %v", err)
	}

	repo.AddReferralBalance(ctx, 20, 100)
	if _, err := svc.RequestWithdrawal(ctx, 20, 5); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("withdrawal below minimum: %v", err)
	}
	if _, err := svc.RequestWithdrawal(ctx, 20, 500); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("withdrawal above balance: %v", err)
	}

	remaining, err := svc.RequestWithdrawal(ctx, 20, 30)
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	if remaining != 70 {
		t.Errorf("expected 70 left, got %d", remaining)
	}

	moved, err := svc.ExchangeAll(ctx, 20)
	if err != nil {
		t.Fatalf("ExchangeAll: %v", err)
	}
	user, _ := repo.GetUser(ctx, 20)
	if moved != 70 || user.Balance != 70 || user.ReferralBalance != 0 {
		t.Errorf("unexpected exchange result %d: %+v", moved, user)
	}
}

func TestAdminAuthorization(t *testing.T) {
	svc, repo := setupTestService(t)
	ctx := context.Background()
	mustUser(t, repo, testRootID, "root")
	mustUser(t, repo, 30, "Helper")

	if ok, _ := svc.IsAdmin(ctx, testRootID); !ok {
		t.Error("root must always be admin")
	}
	if ok, _ := svc.IsAdmin(ctx, 30); ok {
		t.Error("user 30 should not be admin yet")
	}

	id, added, err := svc.AddAdminByUsername(ctx, "@helper", testRootID)
	if err != nil || !added || id != 30 {
		t.Fatalf("AddAdminByUsername = %d, %v, %v", id, added, err)
	}
	if added, _ := svc.AddAdmin(ctx, 30, testRootID); added {
		t.Error("second grant must report not added")
	}
	if _, _, err := svc.AddAdminByUsername(ctx, "ghost", testRootID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown username: %v", err)
	}

	if _, err := svc.RemoveAdmin(ctx, testRootID); !errors.Is(err, domain.ErrRootAdmin) {
		t.Errorf("root removal must be rejected, got %v", err)
	}
	if _, err := svc.AddAdmin(ctx, testRootID, 30); !errors.Is(err, domain.ErrRootAdmin) {
		t.Errorf("root grant must be rejected, got %v", err)
	}

	admins, err := svc.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("ListAdmins: %v", err)
	}
	if len(admins) != 2 || !admins[0].Root || admins[1].UserID != 30 || admins[1].Username != "Helper" {
		t.Errorf("unexpected admin list: %+v", admins)
	}

	removed, err := svc.RemoveAdmin(ctx, 30)
	if err != nil || !removed {
		t.Fatalf("RemoveAdmin = %v, %v", removed, err)
	}
	if ok, _ := svc.IsAdmin(ctx, 30); ok {
		t.Error("removed admin still authorized")
	}
}

func TestPurchaseExhaustedDiscountCancelFailureLogged(t *testing.T) {
	svc, repo := setupTestService(t)
	ctx := context.Background()
	var logs bytes.Buffer
	svc.log = zerolog.New(&logs)

	mustUser(t, repo, 20, "first")
	mustUser(t, repo, 21, "second")
	repo.CreditBalance(ctx, 20, 1000)
	repo.CreditBalance(ctx, 21, 1000)
	svc.CreateCode(ctx, "ONCE", 50, 1, testRootID)
	svc.ApplyCode(ctx, 20, "ONCE")
	svc.ApplyCode(ctx, 21, "ONCE")
	if _, err := svc.Purchase(ctx, 20, domain.TierPulse); err != nil {
		t.Fatalf("first purchase: %v", err)
	}

	// покупка не удаляет строк, поэтому ломаем только снятие заявки
	err := repo.DB().Callback().Delete().Before("gorm:delete").Register("test:fail_delete", func(tx *gorm.DB) {
		tx.AddError(errors.New("disk full"))
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	if _, err := svc.Purchase(ctx, 21, domain.TierPulse); !errors.Is(err, domain.ErrDiscountExhausted) {
		t.Fatalf("expected ErrDiscountExhausted, got %v", err)
	}
	if !strings.Contains(logs.String(), "failed to cancel exhausted discount") || !strings.Contains(logs.String(), "disk full") {
		t.Errorf("cancel failure not logged: %s", logs.String())
	}
}
