package db

import "time"

// DefaultMode режим ассистента для новых пользователей
const DefaultMode = "chat"

// User - пользователи
type User struct {
	TgID                int64  `gorm:"primaryKey;autoIncrement:false"`
	Username            string `gorm:"index"`
	FullName            string
	Balance             int    `gorm:"not null;default:0;check:chk_users_balance,balance >= 0"`
	ReferralBalance     int    `gorm:"not null;default:0;check:chk_users_referral_balance,referral_balance >= 0"`
	Mode                string `gorm:"not null"`
	SubscriptionType    string `gorm:"not null;index"`
	SubscriptionExpires *time.Time
	TokensUsedToday     int    `gorm:"not null;default:0"`
	LastTokenReset      string `gorm:"size:10"`
	CreatedAt           time.Time
}

// Admin - выданные права администратора (root хранится в конфиге)
type Admin struct {
	UserID  int64 `gorm:"primaryKey;autoIncrement:false"`
	AddedBy int64
	AddedAt time.Time
}

// DiscountCode - скидочные коды
type DiscountCode struct {
	ID              uint   `gorm:"primaryKey"`
	Code            string `gorm:"uniqueIndex;not null"`
	DiscountPercent int    `gorm:"not null;check:chk_discount_codes_percent,discount_percent BETWEEN 1 AND 100"`
	MaxUses         int    `gorm:"not null"`
	UsedCount       int    `gorm:"not null;default:0"`
	CreatedBy       int64
	CreatedAt       time.Time
	IsActive        bool `gorm:"not null"`
}

// UserDiscount - примененные пользователем коды
type UserDiscount struct {
	ID           uint   `gorm:"primaryKey"`
	UserID       int64  `gorm:"not null;index"`
	DiscountCode string `gorm:"not null"`
	AppliedAt    time.Time
	Used         bool `gorm:"not null"`
}

// ActiveDiscount неиспользованная скидка вместе с данными кода
type ActiveDiscount struct {
	ApplicationID   uint
	Code            string
	DiscountPercent int
	MaxUses         int
	UsedCount       int
}

// Referral - кто кого пригласил, один пригласивший на пользователя
type Referral struct {
	UserID           int64 `gorm:"primaryKey;autoIncrement:false"`
	ReferrerID       int64 `gorm:"not null;index"`
	RegistrationDate time.Time
}

// ReferralPayment - начисления по реферальной программе
type ReferralPayment struct {
	ID               uint  `gorm:"primaryKey"`
	UserID           int64 `gorm:"not null;index"`
	ReferrerID       int64 `gorm:"not null;index"`
	Amount           int   `gorm:"not null"`
	Level            int   `gorm:"not null"`
	SubscriptionType string
	PaymentDate      time.Time
}

// MessageLog - история диалога с моделью
type MessageLog struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    int64     `gorm:"not null;index"`
	Role      string    `gorm:"not null"`
	Message   string    `gorm:"type:text"`
	Timestamp time.Time `gorm:"index"`
}

// ErrorLog - ошибки обработчиков
type ErrorLog struct {
	ID           uint   `gorm:"primaryKey"`
	ErrorType    string `gorm:"not null"`
	ErrorMessage string `gorm:"type:text"`
	Traceback    string `gorm:"type:text"`
	UserID       *int64
	Timestamp    time.Time `gorm:"index"`
}

// Payment - пополнения через ЮKassa
type Payment struct {
	ID         string `gorm:"primaryKey;size:36"`
	ProviderID string `gorm:"uniqueIndex;not null"`
	UserID     int64  `gorm:"not null;index"`
	ChatID     int64
	MessageID  int
	Amount     int    `gorm:"not null"`
	Status     string `gorm:"not null;check:chk_payments_status,status IN ('pending','succeeded','canceled','expired')"`
	Processed  bool   `gorm:"not null;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
