package ledger

import (
	"context"
	"fmt"

	"zenith-bot/internal/db"
	"zenith-bot/internal/domain"
)

// Payout начисление одному уровню цепочки
type Payout struct {
	ReferrerID int64
	Level      int
	Amount     int
}

// ProcessReferralBonuses начисляет бонусы вверх по цепочке в отдельной транзакции.
func (s *Service) ProcessReferralBonuses(ctx context.Context, userID int64, amount int, tier domain.Tier) ([]Payout, error) {
	var payouts []Payout
	err := s.repo.Transaction(ctx, func(tx *db.Repository) error {
		var err error
		payouts, err = processReferralBonuses(ctx, tx, userID, amount, tier)
		return err
	})
	return payouts, err
}

// processReferralBonuses проходит до трех уровней вверх от userID.
// Уровень с нулевым бонусом пропускается, обход продолжается.
func processReferralBonuses(ctx context.Context, repo *db.Repository, userID int64, amount int, tier domain.Tier) ([]Payout, error) {
	var payouts []Payout
	seen := map[int64]bool{userID: true}
	current := userID

	for level := 1; level <= domain.ReferralLevels; level++ {
		referrerID, ok, err := repo.ReferrerOf(ctx, current)
		if err != nil {
			return nil, err
		}
		if !ok || seen[referrerID] {
			break
		}
		seen[referrerID] = true

		bonus := domain.ReferralBonus(amount, level)
		if bonus > 0 {
			if err := repo.AddReferralBalance(ctx, referrerID, bonus); err != nil {
				return nil, fmt.Errorf("credit referrer %d: %w", referrerID, err)
			}
			err := repo.AddReferralPayment(ctx, &db.ReferralPayment{
				UserID:           userID,
				ReferrerID:       referrerID,
				Amount:           bonus,
				Level:            level,
				SubscriptionType: tier.String(),
			})
			if err != nil {
				return nil, err
			}
			payouts = append(payouts, Payout{ReferrerID: referrerID, Level: level, Amount: bonus})
		}

		current = referrerID
	}
	return payouts, nil
}

// RegisterReferral сохраняет связь при первом контакте.
func (s *Service) RegisterReferral(ctx context.Context, userID, referrerID int64) (bool, error) {
	return s.repo.SetReferrer(ctx, userID, referrerID)
}

// TransferReferral переводит amount на баланс покупок; false означает отказ без изменений.
func (s *Service) TransferReferral(ctx context.Context, userID int64, amount int) (bool, error) {
	return s.repo.TransferReferralToBalance(ctx, userID, amount)
}

// ExchangeAll переводит весь реферальный баланс. Возвращает переведенную сумму.
func (s *Service) ExchangeAll(ctx context.Context, userID int64) (int, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.ReferralBalance <= 0 {
		return 0, domain.ErrInsufficientFunds
	}

	ok, err := s.repo.TransferReferralToBalance(ctx, userID, user.ReferralBalance)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, domain.ErrInsufficientFunds
	}
	return user.ReferralBalance, nil
}

// RequestWithdrawal сразу списывает сумму с реферального баланса.
// Выплату root-админ проводит вручную.
func (s *Service) RequestWithdrawal(ctx context.Context, userID int64, amount int) (remaining int, err error) {
	if amount < s.cfg.MinWithdrawal {
		return 0, fmt.Errorf("minimum is %d: %w", s.cfg.MinWithdrawal, domain.ErrInvalidAmount)
	}

	if err := s.repo.AddReferralBalance(ctx, userID, -amount); err != nil {
		return 0, err
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.ReferralBalance, nil
}

func (s *Service) ReferralStats(ctx context.Context, userID int64) (*db.ReferralStats, error) {
	return s.repo.ReferralStats(ctx, userID)
}
