package ledger

import (
	"context"
	"errors"
	"time"

	"zenith-bot/internal/db"
	"zenith-bot/internal/domain"
)

// Receipt результат покупки подписки
type Receipt struct {
	Tier            domain.Tier
	OriginalPrice   int
	FinalPrice      int
	DiscountCode    string
	DiscountPercent int
	Expires         time.Time
	Payouts         []Payout
}

// Purchase покупает tier за баланс одной транзакцией:
// списание, погашение скидки, активация на 30 дней и реферальные бонусы от итоговой цены.
func (s *Service) Purchase(ctx context.Context, userID int64, tier domain.Tier) (*Receipt, error) {
	if !tier.IsPaid() {
		return nil, domain.ErrInvalidTier
	}
	now := s.now()

	receipt := &Receipt{
		Tier:          tier,
		OriginalPrice: tier.Price(),
		FinalPrice:    tier.Price(),
	}

	err := s.repo.Transaction(ctx, func(tx *db.Repository) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}

		discount, err := tx.GetUserActiveDiscount(ctx, userID)
		switch {
		case err == nil:
			receipt.DiscountCode = discount.Code
			receipt.DiscountPercent = discount.DiscountPercent
			receipt.FinalPrice = domain.DiscountedPrice(receipt.OriginalPrice, discount.DiscountPercent)
		case errors.Is(err, domain.ErrNotFound):
		default:
			return err
		}

		if err := tx.DebitBalance(ctx, userID, receipt.FinalPrice); err != nil {
			return err
		}

		if receipt.DiscountCode != "" {
			ok, err := tx.UseDiscountCode(ctx, receipt.DiscountCode)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrDiscountExhausted
			}
			if err := tx.MarkDiscountAsUsed(ctx, userID, receipt.DiscountCode); err != nil {
				return err
			}
		}

		receipt.Expires, err = tx.UpdateSubscription(ctx, userID, tier, domain.SubscriptionDays, now)
		if err != nil {
			return err
		}

		receipt.Payouts, err = processReferralBonuses(ctx, tx, userID, receipt.FinalPrice, tier)
		return err
	})

	if errors.Is(err, domain.ErrDiscountExhausted) {
		// заявка на исчерпанный код больше не пригодится
		if _, cerr := s.repo.CancelUserDiscount(ctx, userID); cerr != nil {
			s.log.Error().Err(cerr).Int64("user_id", userID).Str("code", receipt.DiscountCode).Msg("failed to cancel exhausted discount")
		}
	}
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// Quote считает цену без изменений в хранилище.
func (s *Service) Quote(ctx context.Context, userID int64, tier domain.Tier) (price int, percent int, err error) {
	price = tier.Price()
	discount, err := s.repo.GetUserActiveDiscount(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return price, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return domain.DiscountedPrice(price, discount.DiscountPercent), discount.DiscountPercent, nil
}
