package db

import (
	"context"
	"time"

	"gorm.io/gorm/clause"
)

func (r *Repository) IsAdminGrant(ctx context.Context, tgID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Admin{}).Where("user_id = ?", tgID).Count(&count).Error
	return count > 0, err
}

// AddAdmin выдает права, если их еще нет. Возвращает true, если запись создана.
func (r *Repository) AddAdmin(ctx context.Context, tgID, addedBy int64) (bool, error) {
	admin := &Admin{UserID: tgID, AddedBy: addedBy, AddedAt: time.Now().UTC()}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(admin)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RemoveAdmin удаляет запись; root-админ в таблице не хранится.
func (r *Repository) RemoveAdmin(ctx context.Context, tgID int64) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&Admin{}, "user_id = ?", tgID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) ListAdmins(ctx context.Context) ([]Admin, error) {
	var admins []Admin
	err := r.db.WithContext(ctx).Order("added_at ASC").Find(&admins).Error
	return admins, err
}

func (r *Repository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Admin{}).Count(&count).Error
	return count, err
}
