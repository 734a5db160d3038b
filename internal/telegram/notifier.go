package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"zenith-bot/internal/db"
	"zenith-bot/internal/payment"
)

var _ payment.Notifier = (*Service)(nil)

// DepositCredited заменяет счет на подтверждение и сообщает новый баланс.
func (s *Service) DepositCredited(ctx context.Context, p *db.Payment, balance int) {
	chatID := paymentChat(p)
	s.closeInvoice(chatID, p.MessageID, fmt.Sprintf("✅ Платеж на %d руб. получен", p.Amount))
	s.replyWithMarkup(chatID, fmt.Sprintf("💰 Баланс пополнен на %d руб.\nТекущий баланс: %d руб.", p.Amount, balance),
		backKeyboard("👤 Профиль", CallbackProfile))
}

func (s *Service) DepositFailed(ctx context.Context, p *db.Payment) {
	chatID := paymentChat(p)
	s.closeInvoice(chatID, p.MessageID, fmt.Sprintf("❌ Платеж на %d руб. отменен", p.Amount))
	s.replyWithMarkup(chatID, fmt.Sprintf("❌ Платеж на %d руб. не был завершен. Если деньги списались, напишите администратору.", p.Amount),
		backKeyboard("💳 Пополнить снова", CallbackDeposit))
}

// closeInvoice убирает кнопку оплаты из сообщения со счетом
func (s *Service) closeInvoice(chatID int64, messageID int, text string) {
	if messageID == 0 {
		return
	}
	if _, err := s.bot.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil && !isNotModified(err) {
		s.log.Debug().Err(err).Int64("chat_id", chatID).Int("message_id", messageID).Msg("failed to edit invoice message")
	}
}

func paymentChat(p *db.Payment) int64 {
	if p.ChatID != 0 {
		return p.ChatID
	}
	return p.UserID
}
