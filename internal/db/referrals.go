package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zenith-bot/internal/domain"
)

// ReferralStats сводка по приглашенным пользователя
type ReferralStats struct {
	TotalReferrals  int64
	ActiveReferrals int64
	TotalEarned     int64
	LastPayments    []ReferralPayment
}

// ReferrerSummary строка рейтинга пригласивших
type ReferrerSummary struct {
	UserID         int64
	Username       string
	ReferralsCount int64
	EarnedTotal    int64
}

// SetReferrer задает пригласившего один раз. Возвращает false, если связь уже есть.
func (r *Repository) SetReferrer(ctx context.Context, userID, referrerID int64) (bool, error) {
	if userID == referrerID {
		return false, domain.ErrSelfReferral
	}

	exists, err := r.userExists(ctx, referrerID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrNotFound
	}

	ref := &Referral{UserID: userID, ReferrerID: referrerID, RegistrationDate: time.Now().UTC()}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ref)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReferrerOf возвращает пригласившего; ok=false, если его нет.
func (r *Repository) ReferrerOf(ctx context.Context, userID int64) (int64, bool, error) {
	var ref Referral
	err := r.db.WithContext(ctx).First(&ref, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return ref.ReferrerID, true, nil
}

func (r *Repository) AddReferralPayment(ctx context.Context, p *ReferralPayment) error {
	if p.PaymentDate.IsZero() {
		p.PaymentDate = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repository) ReferralPaymentsOf(ctx context.Context, referrerID int64) ([]ReferralPayment, error) {
	var payments []ReferralPayment
	err := r.db.WithContext(ctx).Where("referrer_id = ?", referrerID).Order("id ASC").Find(&payments).Error
	return payments, err
}

func (r *Repository) ReferralStats(ctx context.Context, referrerID int64) (*ReferralStats, error) {
	stats := &ReferralStats{}
	db := r.db.WithContext(ctx)

	if err := db.Model(&Referral{}).Where("referrer_id = ?", referrerID).Count(&stats.TotalReferrals).Error; err != nil {
		return nil, err
	}

	err := db.Model(&Referral{}).
		Joins("JOIN users ON users.tg_id = referrals.user_id").
		Where("referrals.referrer_id = ? AND users.subscription_type <> ?", referrerID, domain.TierFree.String()).
		Count(&stats.ActiveReferrals).Error
	if err != nil {
		return nil, err
	}

	err = db.Model(&ReferralPayment{}).
		Where("referrer_id = ?", referrerID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&stats.TotalEarned).Error
	if err != nil {
		return nil, err
	}

	err = db.Where("referrer_id = ?", referrerID).
		Order("payment_date DESC, id DESC").
		Limit(5).
		Find(&stats.LastPayments).Error
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// TopReferrers рейтинг по сумме начислений.
func (r *Repository) TopReferrers(ctx context.Context, limit int) ([]ReferrerSummary, error) {
	var out []ReferrerSummary
	err := r.db.WithContext(ctx).Raw(`
		SELECT r.referrer_id AS user_id,
		       COALESCE(u.username, '') AS username,
		       COUNT(*) AS referrals_count,
		       COALESCE((SELECT SUM(rp.amount) FROM referral_payments rp WHERE rp.referrer_id = r.referrer_id), 0) AS earned_total
		FROM referrals r
		LEFT JOIN users u ON u.tg_id = r.referrer_id
		GROUP BY r.referrer_id, u.username
		ORDER BY earned_total DESC, referrals_count DESC
		LIMIT ?`, limit).Scan(&out).Error
	return out, err
}

func (r *Repository) CountReferrals(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Referral{}).Count(&count).Error
	return count, err
}

func (r *Repository) SumReferralPayments(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&ReferralPayment{}).Select("COALESCE(SUM(amount), 0)").Scan(&total).Error
	return total, err
}
