package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"zenith-bot/internal/db"
	"zenith-bot/internal/domain"
	"zenith-bot/internal/ledger"
	"zenith-bot/internal/metrics"
)

func (s *Service) showSubscriptions(ctx context.Context, chatID, userID int64, messageID int) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		s.handleError(ctx, chatID, userID, err)
		return
	}

	discount, err := s.ledger.ActiveDiscount(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.handleError(ctx, chatID, userID, err)
		return
	}
	percent := 0
	if discount != nil {
		percent = discount.DiscountPercent
	}

	options := s.ledger.UpgradeOptions(user)
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, tier := range options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(tierButtonLabel(tier, percent), CallbackSubscribe.WithID(tier)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", CallbackProfile.String()),
	))
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)

	current := domain.Tier(user.SubscriptionType)
	active := s.ledger.IsSubscriptionActive(user)
	s.show(ctx, chatID, userID, messageID, subscriptionMenuText(current, active, user, options, percent), &keyboard)
}

func tierButtonLabel(tier domain.Tier, percent int) string {
	if percent == 0 {
		return fmt.Sprintf("%s - %d₽", tier.DisplayName(), tier.Price())
	}
	return fmt.Sprintf("%s - %d₽ (-%d%%)", tier.DisplayName(), domain.DiscountedPrice(tier.Price(), percent), percent)
}

func subscriptionMenuText(current domain.Tier, active bool, user *db.User, options []domain.Tier, percent int) string {
	var b strings.Builder

	switch {
	case active && current == domain.TierEclipse:
		b.WriteString("💰 У вас максимальный уровень подписки\n\n")
		fmt.Fprintf(&b, "💫 %s (%s)", current.DisplayName(), current.LimitLabel())
		if user.SubscriptionExpires != nil {
			fmt.Fprintf(&b, " до %s", user.SubscriptionExpires.Format("02.01.2006"))
		}
		fmt.Fprintf(&b, "\nПродление заменит текущий срок на %d дней с момента оплаты.\n", domain.SubscriptionDays)
	case active:
		b.WriteString("💰 Доступные улучшения подписки\n\n")
		fmt.Fprintf(&b, "💫 У вас активна: %s (%s)\n\n", current.DisplayName(), current.LimitLabel())
		writeTierList(&b, options)
	default:
		b.WriteString("💰 Выберите подписку\n\n")
		writeTierList(&b, options)
	}

	fmt.Fprintf(&b, "\n💳 Ваш баланс: %d руб.", user.Balance)
	if percent > 0 {
		fmt.Fprintf(&b, "\n🎁 Активная скидка: %d%%", percent)
	}
	return b.String()
}

func writeTierList(b *strings.Builder, options []domain.Tier) {
	for i, tier := range options {
		fmt.Fprintf(b, "%d. %s - %d₽ (%s)\n", i+1, tier.DisplayName(), tier.Price(), tier.LimitLabel())
	}
	fmt.Fprintf(b, "\nПодписка действует %d дней.\n", domain.SubscriptionDays)
}

func (s *Service) handleSubscriptionPurchase(ctx context.Context, callback *tgbotapi.CallbackQuery, raw string) {
	chatID := callback.Message.Chat.ID
	userID := callback.From.ID

	tier, err := domain.ParseTier(raw)
	if err != nil || !tier.IsPaid() {
		s.answerAlert(callback.ID, "Неизвестный тариф")
		return
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		s.answerCallback(callback.ID, "")
		s.handleError(ctx, chatID, userID, err)
		return
	}

	if !containsTier(s.ledger.UpgradeOptions(user), tier) {
		s.answerAlert(callback.ID, ErrSubscriptionf("tier %s not offered to %d", tier, userID).UserMessage)
		return
	}

	receipt, err := s.ledger.Purchase(ctx, userID, tier)
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		price, _, _ := s.ledger.Quote(ctx, userID, tier)
		s.answerAlert(callback.ID, fmt.Sprintf("❌ Недостаточно средств на балансе!\nСтоимость: %d руб.\nВаш баланс: %d руб.", price, user.Balance))
		return
	case errors.Is(err, domain.ErrDiscountExhausted):
		s.answerAlert(callback.ID, "❌ Лимит использований вашего скидочного кода исчерпан. Скидка отменена, попробуйте снова.")
		s.showSubscriptions(ctx, chatID, userID, callback.Message.MessageID)
		return
	case err != nil:
		s.answerCallback(callback.ID, "")
		s.handleError(ctx, chatID, userID, err)
		return
	}

	metrics.SubscriptionsPurchased.WithLabelValues(tier.String()).Inc()
	s.log.Info().Int64("user_id", userID).Str("tier", tier.String()).Int("price", receipt.FinalPrice).Msg("subscription purchased")

	s.answerCallback(callback.ID, "✅ Подписка активирована")
	s.show(ctx, chatID, userID, callback.Message.MessageID, purchaseText(receipt), backKeyboard("👤 Профиль", CallbackProfile))
	s.notifyReferralPayouts(receipt.Payouts)
}

func purchaseText(r *ledger.Receipt) string {
	text := fmt.Sprintf("✅ Подписка %s активирована до %s!\n⚡️ Лимит: %s\n💰 Списано: %d руб.",
		r.Tier.DisplayName(), r.Expires.Format("02.01.2006"), r.Tier.LimitLabel(), r.FinalPrice)
	if r.DiscountCode != "" {
		text += fmt.Sprintf("\n🎁 Скидка %d%% по коду %s (без скидки %d руб.)", r.DiscountPercent, r.DiscountCode, r.OriginalPrice)
	}
	return text
}

func (s *Service) notifyReferralPayouts(payouts []ledger.Payout) {
	for _, p := range payouts {
		s.reply(p.ReferrerID, fmt.Sprintf(
			"🎉 Реферальное начисление: +%d руб. (%d уровень)\nСредства зачислены на реферальный баланс.",
			p.Amount, p.Level,
		))
	}
}

func containsTier(tiers []domain.Tier, tier domain.Tier) bool {
	for _, t := range tiers {
		if t == tier {
			return true
		}
	}
	return false
}
