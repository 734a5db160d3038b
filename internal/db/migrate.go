package db

import (
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	// Сначала выполняем обычную миграцию
	err := db.AutoMigrate(
		&User{},
		&Admin{},
		&DiscountCode{},
		&UserDiscount{},
		&Referral{},
		&ReferralPayment{},
		&MessageLog{},
		&ErrorLog{},
		&Payment{},
	)
	if err != nil {
		return err
	}

	// Не больше одной неиспользованной скидки на пользователя
	return createUnusedDiscountIndex(db)
}

func createUnusedDiscountIndex(db *gorm.DB) error {
	// Проверяем тип базы данных
	switch db.Dialector.Name() {
	case "sqlite":
		// В SQLite bool хранится как 0/1
		return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_user_discounts_one_unused ON user_discounts (user_id) WHERE used = 0").Error
	case "postgres":
		return db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_user_discounts_one_unused ON user_discounts (user_id) WHERE used = false").Error
	}
	return nil
}
