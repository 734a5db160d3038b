package db

import (
	"context"
	"time"

	"zenith-bot/internal/domain"
)

// Stats общая статистика для админ-панели
type Stats struct {
	TotalUsers        int64
	ActiveSubscribers int64
	TotalAdmins       int64
	TotalBalance      int64
	TotalReferral     int64
	TotalReferrals    int64
	ReferralPaidOut   int64
	PendingPayments   int64
}

func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&User{}).Count(&count).Error
	return count, err
}

func (r *Repository) CountActiveSubscribers(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&User{}).
		Where("subscription_type <> ? AND subscription_expires > ?", domain.TierFree.String(), now.UTC()).
		Count(&count).Error
	return count, err
}

// CollectStats собирает сводку; root-админ не учитывается.
func (r *Repository) CollectStats(ctx context.Context, now time.Time) (*Stats, error) {
	var err error
	s := &Stats{}
	db := r.db.WithContext(ctx)

	if s.TotalUsers, err = r.CountUsers(ctx); err != nil {
		return nil, err
	}
	if s.ActiveSubscribers, err = r.CountActiveSubscribers(ctx, now); err != nil {
		return nil, err
	}
	if s.TotalAdmins, err = r.CountAdmins(ctx); err != nil {
		return nil, err
	}
	if s.TotalBalance, s.TotalReferral, err = r.SumBalances(ctx); err != nil {
		return nil, err
	}
	if s.TotalReferrals, err = r.CountReferrals(ctx); err != nil {
		return nil, err
	}
	if s.ReferralPaidOut, err = r.SumReferralPayments(ctx); err != nil {
		return nil, err
	}
	if err = db.Model(&Payment{}).Where("processed = ?", false).Count(&s.PendingPayments).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// UsersExpiringBetween платные подписки, истекающие в (from, to].
func (r *Repository) UsersExpiringBetween(ctx context.Context, from, to time.Time) ([]User, error) {
	var users []User
	err := r.db.WithContext(ctx).
		Where("subscription_type <> ? AND subscription_expires > ? AND subscription_expires <= ?",
			domain.TierFree.String(), from.UTC(), to.UTC()).
		Find(&users).Error
	return users, err
}

// DowngradeExpired переводит истекшие подписки на бесплатный уровень.
func (r *Repository) DowngradeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&User{}).
		Where("subscription_type <> ? AND (subscription_expires IS NULL OR subscription_expires <= ?)",
			domain.TierFree.String(), now.UTC()).
		Update("subscription_type", domain.TierFree.String())
	return result.RowsAffected, result.Error
}

// SumBalances возвращает сумму основных и реферальных балансов всех пользователей.
func (r *Repository) SumBalances(ctx context.Context) (balance, referral int64, err error) {
	var row struct {
		Balance  int64
		Referral int64
	}
	err = r.db.WithContext(ctx).Model(&User{}).
		Select("COALESCE(SUM(balance), 0) AS balance, COALESCE(SUM(referral_balance), 0) AS referral").
		Scan(&row).Error
	return row.Balance, row.Referral, err
}
