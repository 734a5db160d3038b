package db

import (
	"context"
	"time"
)

func (r *Repository) LogMessage(ctx context.Context, userID int64, role, text string) error {
	return r.db.WithContext(ctx).Create(&MessageLog{
		UserID:    userID,
		Role:      role,
		Message:   text,
		Timestamp: time.Now().UTC(),
	}).Error
}

// LastMessages возвращает последние limit сообщений в хронологическом порядке.
func (r *Repository) LastMessages(ctx context.Context, userID int64, limit int) ([]MessageLog, error) {
	var msgs []MessageLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *Repository) CleanupMessages(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&MessageLog{}, "timestamp < ?", before.UTC())
	return result.RowsAffected, result.Error
}

func (r *Repository) LogError(ctx context.Context, e *ErrorLog) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *Repository) RecentErrors(ctx context.Context, limit int) ([]ErrorLog, error) {
	var logs []ErrorLog
	err := r.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

func (r *Repository) ClearErrors(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("1 = 1").Delete(&ErrorLog{})
	return result.RowsAffected, result.Error
}
