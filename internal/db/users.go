package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zenith-bot/internal/domain"
)

const dateLayout = "2006-01-02"

// EnsureUser создает пользователя при первом обращении и обновляет имя при последующих.
func (r *Repository) EnsureUser(ctx context.Context, tgID int64, username, fullName string) (*User, bool, error) {
	user := &User{
		TgID:             tgID,
		Username:         username,
		FullName:         fullName,
		Mode:             DefaultMode,
		SubscriptionType: domain.TierFree.String(),
		LastTokenReset:   time.Now().UTC().Format(dateLayout),
		CreatedAt:        time.Now().UTC(),
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(user)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return user, true, nil
	}

	existing, err := r.GetUser(ctx, tgID)
	if err != nil {
		return nil, false, err
	}

	if existing.Username != username || existing.FullName != fullName {
		err := r.db.WithContext(ctx).Model(&User{}).Where("tg_id = ?", tgID).
			Updates(map[string]interface{}{"username": username, "full_name": fullName}).Error
		if err != nil {
			return nil, false, err
		}
		existing.Username = username
		existing.FullName = fullName
	}

	return existing, false, nil
}

func (r *Repository) GetUser(ctx context.Context, tgID int64) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).First(&user, "tg_id = ?", tgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserIDByUsername ищет пользователя без учета регистра, @ в начале допускается.
func (r *Repository) UserIDByUsername(ctx context.Context, username string) (int64, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return 0, domain.ErrNotFound
	}

	var user User
	err := r.db.WithContext(ctx).Where("LOWER(username) = LOWER(?)", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return user.TgID, nil
}

func (r *Repository) userExists(ctx context.Context, tgID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&User{}).Where("tg_id = ?", tgID).Count(&count).Error
	return count > 0, err
}

// addToColumn меняет баланс только если он не станет отрицательным.
func (r *Repository) addToColumn(ctx context.Context, tgID int64, column string, delta int) error {
	result := r.db.WithContext(ctx).Model(&User{}).
		Where("tg_id = ? AND "+column+" + ? >= 0", tgID, delta).
		Update(column, gorm.Expr(column+" + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	exists, err := r.userExists(ctx, tgID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrInsufficientFunds
}

// AddBalance изменяет баланс покупок на delta (может быть отрицательной).
func (r *Repository) AddBalance(ctx context.Context, tgID int64, delta int) error {
	return r.addToColumn(ctx, tgID, "balance", delta)
}

func (r *Repository) DebitBalance(ctx context.Context, tgID int64, amount int) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	if amount == 0 {
		return nil
	}
	return r.addToColumn(ctx, tgID, "balance", -amount)
}

func (r *Repository) CreditBalance(ctx context.Context, tgID int64, amount int) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	return r.addToColumn(ctx, tgID, "balance", amount)
}

// AddReferralBalance изменяет реферальный баланс на delta.
func (r *Repository) AddReferralBalance(ctx context.Context, tgID int64, delta int) error {
	return r.addToColumn(ctx, tgID, "referral_balance", delta)
}

// TransferReferralToBalance переводит amount с реферального баланса на баланс покупок.
// Возвращает false без изменений, если amount <= 0 или средств недостаточно.
func (r *Repository) TransferReferralToBalance(ctx context.Context, tgID int64, amount int) (bool, error) {
	if amount <= 0 {
		return false, nil
	}

	result := r.db.WithContext(ctx).Model(&User{}).
		Where("tg_id = ? AND referral_balance >= ?", tgID, amount).
		Updates(map[string]interface{}{
			"referral_balance": gorm.Expr("referral_balance - ?", amount),
			"balance":          gorm.Expr("balance + ?", amount),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) SetMode(ctx context.Context, tgID int64, mode string) error {
	result := r.db.WithContext(ctx).Model(&User{}).Where("tg_id = ?", tgID).Update("mode", mode)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateSubscription ставит уровень и срок now+days, перезаписывая оставшийся остаток времени.
func (r *Repository) UpdateSubscription(ctx context.Context, tgID int64, tier domain.Tier, days int, now time.Time) (time.Time, error) {
	if !tier.IsValid() {
		return time.Time{}, domain.ErrInvalidTier
	}

	expires := now.UTC().AddDate(0, 0, days)
	result := r.db.WithContext(ctx).Model(&User{}).Where("tg_id = ?", tgID).
		Updates(map[string]interface{}{
			"subscription_type":    tier.String(),
			"subscription_expires": expires,
		})
	if result.Error != nil {
		return time.Time{}, result.Error
	}
	if result.RowsAffected == 0 {
		return time.Time{}, domain.ErrNotFound
	}
	return expires, nil
}

// ResetDailyTokensIfNeeded обнуляет счетчик, если последний сброс был раньше today.
func (r *Repository) ResetDailyTokensIfNeeded(ctx context.Context, tgID int64, today time.Time) error {
	day := today.UTC().Format(dateLayout)
	return r.db.WithContext(ctx).Model(&User{}).
		Where("tg_id = ? AND (last_token_reset IS NULL OR last_token_reset < ?)", tgID, day).
		Updates(map[string]interface{}{
			"tokens_used_today": 0,
			"last_token_reset":  day,
		}).Error
}

// ConsumeTokens увеличивает счетчик, только если итог не превысит limit.
func (r *Repository) ConsumeTokens(ctx context.Context, tgID int64, cost, limit int) error {
	result := r.db.WithContext(ctx).Model(&User{}).
		Where("tg_id = ? AND tokens_used_today + ? <= ?", tgID, cost, limit).
		Update("tokens_used_today", gorm.Expr("tokens_used_today + ?", cost))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	exists, err := r.userExists(ctx, tgID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrQuotaExceeded
}

func (r *Repository) ListUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&User{}).Order("tg_id").Pluck("tg_id", &ids).Error
	return ids, err
}
