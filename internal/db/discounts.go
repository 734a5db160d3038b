package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zenith-bot/internal/domain"
)

// CreateDiscountCode создает активный код; дубликат возвращает ErrAlreadyExists.
func (r *Repository) CreateDiscountCode(ctx context.Context, code string, percent, maxUses int, createdBy int64) (*DiscountCode, error) {
	dc := &DiscountCode{
		Code:            code,
		DiscountPercent: percent,
		MaxUses:         maxUses,
		CreatedBy:       createdBy,
		CreatedAt:       time.Now().UTC(),
		IsActive:        true,
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(dc)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, domain.ErrAlreadyExists
	}
	return dc, nil
}

// GetDiscountCode возвращает только активные коды.
func (r *Repository) GetDiscountCode(ctx context.Context, code string) (*DiscountCode, error) {
	var dc DiscountCode
	err := r.db.WithContext(ctx).Where("code = ? AND is_active = ?", code, true).First(&dc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

func (r *Repository) ListDiscountCodes(ctx context.Context) ([]DiscountCode, error) {
	var codes []DiscountCode
	err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&codes).Error
	return codes, err
}

func (r *Repository) DeactivateDiscountCode(ctx context.Context, code string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&DiscountCode{}).
		Where("code = ? AND is_active = ?", code, true).
		Update("is_active", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeleteDiscountCode удаляет код и неиспользованные заявки на него.
func (r *Repository) DeleteDiscountCode(ctx context.Context, code string) (bool, error) {
	var deleted bool
	err := r.Transaction(ctx, func(tx *Repository) error {
		result := tx.db.WithContext(ctx).Delete(&DiscountCode{}, "code = ?", code)
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0

		return tx.db.WithContext(ctx).
			Delete(&UserDiscount{}, "discount_code = ? AND used = ?", code, false).Error
	})
	return deleted, err
}

// UseDiscountCode засчитывает одно использование, если код активен и лимит не исчерпан.
func (r *Repository) UseDiscountCode(ctx context.Context, code string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&DiscountCode{}).
		Where("code = ? AND is_active = ? AND used_count < max_uses", code, true).
		Update("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) HasUnusedDiscount(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&UserDiscount{}).
		Where("user_id = ? AND used = ?", userID, false).
		Count(&count).Error
	return count > 0, err
}

// ApplyDiscountToUser записывает неиспользованную заявку, used_count не меняется.
func (r *Repository) ApplyDiscountToUser(ctx context.Context, userID int64, code string) error {
	ud := &UserDiscount{
		UserID:       userID,
		DiscountCode: code,
		AppliedAt:    time.Now().UTC(),
		Used:         false,
	}
	err := r.db.WithContext(ctx).Create(ud).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrDiscountAlreadyApplied
	}
	return err
}

// GetUserActiveDiscount возвращает неиспользованную заявку с актуальными данными кода.
func (r *Repository) GetUserActiveDiscount(ctx context.Context, userID int64) (*ActiveDiscount, error) {
	var ad ActiveDiscount
	result := r.db.WithContext(ctx).Table("user_discounts AS ud").
		Select("ud.id AS application_id, dc.code, dc.discount_percent, dc.max_uses, dc.used_count").
		Joins("JOIN discount_codes dc ON dc.code = ud.discount_code").
		Where("ud.user_id = ? AND ud.used = ? AND dc.is_active = ?", userID, false, true).
		Order("ud.applied_at DESC").
		Limit(1).
		Scan(&ad)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, domain.ErrNotFound
	}
	return &ad, nil
}

func (r *Repository) MarkDiscountAsUsed(ctx context.Context, userID int64, code string) error {
	return r.db.WithContext(ctx).Model(&UserDiscount{}).
		Where("user_id = ? AND discount_code = ? AND used = ?", userID, code, false).
		Update("used", true).Error
}

// CancelUserDiscount снимает неиспользованную заявку пользователя.
func (r *Repository) CancelUserDiscount(ctx context.Context, userID int64) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&UserDiscount{}, "user_id = ? AND used = ?", userID, false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
