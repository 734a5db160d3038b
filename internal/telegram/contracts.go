package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"zenith-bot/internal/payment"
)

// Sender часть tgbotapi.BotAPI, через которую бот пишет в чаты
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Assistant отвечает пользователю через модель
type Assistant interface {
	Reply(ctx context.Context, userID int64, mode, text string) (string, error)
}

// Payments создание пополнений
type Payments interface {
	Deposit(ctx context.Context, userID, chatID int64, amount int) (*payment.Deposit, error)
	AttachMessage(ctx context.Context, providerID string, messageID int) error
	Limits() payment.Limits
}

// PaymentWatcher фоновая проверка статуса созданного платежа
type PaymentWatcher interface {
	Watch(ctx context.Context, providerID string)
}
