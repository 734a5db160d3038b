package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"zenith-bot/internal/domain"
)

// Статусы платежа ЮKassa
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentCanceled  = "canceled"
	PaymentExpired   = "expired"
)

func (r *Repository) CreatePayment(ctx context.Context, p *Payment) error {
	if p.Status == "" {
		p.Status = PaymentPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repository) GetPayment(ctx context.Context, providerID string) (*Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).First(&p, "provider_id = ?", providerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkPaymentFinal фиксирует финальный статус ровно один раз.
// Возвращает true только для вызова, который выполнил переход.
func (r *Repository) MarkPaymentFinal(ctx context.Context, providerID, status string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&Payment{}).
		Where("provider_id = ? AND processed = ?", providerID, false).
		Updates(map[string]interface{}{
			"status":     status,
			"processed":  true,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// PendingPaymentsOlderThan необработанные платежи, созданные раньше before.
func (r *Repository) PendingPaymentsOlderThan(ctx context.Context, before time.Time) ([]Payment, error) {
	var payments []Payment
	err := r.db.WithContext(ctx).
		Where("processed = ? AND created_at < ?", false, before.UTC()).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

// SetPaymentMessage запоминает сообщение со ссылкой на оплату, чтобы убрать его после зачисления.
func (r *Repository) SetPaymentMessage(ctx context.Context, providerID string, messageID int) error {
	return r.db.WithContext(ctx).Model(&Payment{}).
		Where("provider_id = ?", providerID).
		Update("message_id", messageID).Error
}
