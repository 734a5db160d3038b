package ledger

import (
	"context"
	"fmt"
	"time"

	"zenith-bot/internal/db"
	"zenith-bot/internal/domain"
)

// Usage итог списания токенов за сообщение
type Usage struct {
	Cost  int
	Used  int
	Limit int
	Tier  domain.Tier
}

// SubscriptionInfo текущее состояние подписки пользователя
type SubscriptionInfo struct {
	Tier       domain.Tier
	Active     bool
	Expires    *time.Time
	UsedToday  int
	DailyLimit int
}

func (s *Service) IsSubscriptionActive(user *db.User) bool {
	return domain.IsSubscriptionActive(domain.Tier(user.SubscriptionType), user.SubscriptionExpires, s.now())
}

func (s *Service) Subscription(ctx context.Context, userID int64) (*SubscriptionInfo, error) {
	if err := s.repo.ResetDailyTokensIfNeeded(ctx, userID, s.now()); err != nil {
		return nil, err
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	tier := domain.Tier(user.SubscriptionType)
	effective := domain.EffectiveTier(tier, user.SubscriptionExpires, s.now())
	return &SubscriptionInfo{
		Tier:       tier,
		Active:     s.IsSubscriptionActive(user),
		Expires:    user.SubscriptionExpires,
		UsedToday:  user.TokensUsedToday,
		DailyLimit: effective.DailyLimit(),
	}, nil
}

// ConsumeTokens сбрасывает суточный счетчик при смене дня и списывает стоимость text.
// При превышении лимита возвращает domain.ErrQuotaExceeded и ничего не меняет.
func (s *Service) ConsumeTokens(ctx context.Context, userID int64, text string) (Usage, error) {
	now := s.now()
	if err := s.repo.ResetDailyTokensIfNeeded(ctx, userID, now); err != nil {
		return Usage{}, fmt.Errorf("reset tokens: %w", err)
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return Usage{}, err
	}

	tier := domain.EffectiveTier(domain.Tier(user.SubscriptionType), user.SubscriptionExpires, now)
	usage := Usage{
		Cost:  domain.TokenCost(text),
		Limit: tier.DailyLimit(),
		Tier:  tier,
	}

	if err := s.repo.ConsumeTokens(ctx, userID, usage.Cost, usage.Limit); err != nil {
		usage.Used = user.TokensUsedToday
		return usage, err
	}
	usage.Used = user.TokensUsedToday + usage.Cost
	return usage, nil
}

// GrantSubscription выдает подписку вручную (админ), без списания.
func (s *Service) GrantSubscription(ctx context.Context, userID int64, tier domain.Tier) (time.Time, error) {
	days := domain.SubscriptionDays
	if tier == domain.TierFree {
		days = 0
	}
	return s.repo.UpdateSubscription(ctx, userID, tier, days, s.now())
}

func (s *Service) UpgradeOptions(user *db.User) []domain.Tier {
	return domain.UpgradeOptions(domain.Tier(user.SubscriptionType), user.SubscriptionExpires, s.now())
}
