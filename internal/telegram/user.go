package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"zenith-bot/internal/db"
	"zenith-bot/internal/domain"
	"zenith-bot/internal/ledger"
	"zenith-bot/internal/llm"
	"zenith-bot/internal/session"
)

func (s *Service) handleStart(ctx context.Context, msg *tgbotapi.Message, created bool) {
	// Пригласившего запоминаем только при первом контакте
	if referrerID, ok := parseReferral(msg.CommandArguments()); ok && created {
		added, err := s.ledger.RegisterReferral(ctx, msg.From.ID, referrerID)
		switch {
		case err == nil && added:
			s.log.Info().Int64("user_id", msg.From.ID).Int64("referrer_id", referrerID).Msg("referral registered")
			s.reply(referrerID, "👥 По вашей реферальной ссылке зарегистрировался новый пользователь!")
		case errors.Is(err, domain.ErrSelfReferral), errors.Is(err, domain.ErrNotFound):
		case err != nil:
			s.log.Warn().Err(err).Int64("user_id", msg.From.ID).Msg("failed to register referral")
		}
	}

	s.showMainMenu(ctx, msg.Chat.ID, msg.From.ID, 0)
}

// parseReferral разбирает аргумент /start вида ref<id>
func parseReferral(arg string) (int64, bool) {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, "ref") {
		return 0, false
	}
	id, err := strconv.ParseInt(arg[len("ref"):], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *Service) showMainMenu(ctx context.Context, chatID, userID int64, messageID int) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		s.handleError(ctx, chatID, userID, err)
		return
	}

	admin := s.isAdmin(ctx, userID)
	tier := domain.EffectiveTier(domain.Tier(user.SubscriptionType), user.SubscriptionExpires, s.now())
	keyboard := mainKeyboard(admin)
	s.show(ctx, chatID, userID, messageID, welcomeText(tier, admin), &keyboard)
}

func welcomeText(tier domain.Tier, admin bool) string {
	text := fmt.Sprintf("🤖 Zenith - лучший друг, специалист и просто AI помощник\n⚠️ У вас подписка: %s (%s)",
		tier.DisplayName(), tier.LimitLabel())
	if admin {
		text += "\n👑 У вас права администратора"
	}
	return text + "\n🔄 Версия: Zenith Beta v1.0\n\nНапишите сообщение, чтобы задать вопрос ИИ."
}

func mainKeyboard(admin bool) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		{
			tgbotapi.NewInlineKeyboardButtonData("👤 Профиль", CallbackProfile.String()),
			tgbotapi.NewInlineKeyboardButtonData("🛠 Режимы", CallbackModes.String()),
		},
	}
	if admin {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👑 Админ-панель", CallbackAdminPanel.String()),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func backKeyboard(text string, data CallbackData) *tgbotapi.InlineKeyboardMarkup {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(text, data.String())),
	)
	return &keyboard
}

func (s *Service) showProfile(ctx context.Context, chatID, userID int64, messageID int) {
	info, err := s.ledger.Subscription(ctx, userID)
	if err != nil {
		s.handleError(ctx, chatID, userID, err)
		return
	}
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

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💳 Пополнить баланс", CallbackDeposit.String())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💎 Подписки", CallbackSubscriptions.String())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("👥 Реферальная программа", CallbackReferral.String())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", CallbackBackToMain.String())),
	)
	s.show(ctx, chatID, userID, messageID, profileText(user, info, discount), &keyboard)
}

func profileText(user *db.User, info *ledger.SubscriptionInfo, discount *db.ActiveDiscount) string {
	username := user.Username
	if username == "" {
		username = "не указан"
	}
	name := user.FullName
	if name == "" {
		name = "Не указано"
	}

	text := fmt.Sprintf(`👤 Личный кабинет

🆔 %d
📛 Имя: %s
🪪 Логин: @%s
💰 Баланс: %d руб.
💸 Реферальный баланс: %d руб.
🧠 Режим: %s

`, user.TgID, name, username, user.Balance, user.ReferralBalance, llm.ModeTitle(user.Mode))

	if info.Active {
		text += fmt.Sprintf("📶 Подписка: %s\n", info.Tier.DisplayName())
	} else {
		text += fmt.Sprintf("📶 Подписка: %s\n", domain.TierFree.DisplayName())
		if info.Tier.IsPaid() {
			text += fmt.Sprintf("⏰ Подписка %s истекла\n", info.Tier.DisplayName())
		}
	}
	text += fmt.Sprintf("⚡️ Использовано сегодня: %d из %d\n", info.UsedToday, info.DailyLimit)
	if info.Active && info.Expires != nil {
		text += fmt.Sprintf("📅 Истекает: %s\n", info.Expires.Format("02.01.2006"))
	}
	if discount != nil {
		text += fmt.Sprintf("🎁 Активная скидка: %d%% (код %s)\n", discount.DiscountPercent, discount.Code)
	}
	return strings.TrimRight(text, "\n")
}

func (s *Service) showModes(ctx context.Context, chatID, userID int64, messageID int) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range llm.Personas {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(p.Title, CallbackMode.WithID(p.Mode)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", CallbackBackToMain.String()),
	))
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	s.show(ctx, chatID, userID, messageID, "Выберите режим работы:", &keyboard)
}

func (s *Service) handleModeSelection(ctx context.Context, callback *tgbotapi.CallbackQuery, mode string) {
	persona, ok := llm.PersonaFor(mode)
	if !ok {
		s.answerCallback(callback.ID, "Неизвестный режим")
		return
	}

	if err := s.repo.SetMode(ctx, callback.From.ID, persona.Mode); err != nil {
		s.answerCallback(callback.ID, "")
		s.handleError(ctx, callback.Message.Chat.ID, callback.From.ID, err)
		return
	}

	s.answerCallback(callback.ID, fmt.Sprintf("✅ Режим «%s» активирован!", persona.Title))
	s.showMainMenu(ctx, callback.Message.Chat.ID, callback.From.ID, callback.Message.MessageID)
}

func (s *Service) handleDiscount(ctx context.Context, msg *tgbotapi.Message) {
	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		s.reply(msg.Chat.ID, "Использование: /discount <код>\nПример: /discount SPRING20")
		return
	}

	dc, err := s.ledger.ApplyCode(ctx, msg.From.ID, code)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.reply(msg.Chat.ID, "❌ Скидочный код не найден или неактивен")
		return
	case err != nil:
		s.handleError(ctx, msg.Chat.ID, msg.From.ID, err)
		return
	}

	s.replyWithMarkup(msg.Chat.ID, fmt.Sprintf(
		"✅ Скидочный код %s применен!\n🎁 Скидка %d%% будет учтена при следующей покупке подписки.",
		dc.Code, dc.DiscountPercent,
	), backKeyboard("💎 Подписки", CallbackSubscriptions))
}

func (s *Service) showReferral(ctx context.Context, chatID, userID int64, messageID int) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		s.handleError(ctx, chatID, userID, err)
		return
	}
	stats, err := s.ledger.ReferralStats(ctx, userID)
	if err != nil {
		s.handleError(ctx, chatID, userID, err)
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	if user.ReferralBalance > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💱 Обменять на баланс покупок", CallbackExchangeReferral.String()),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💸 Вывод средств", CallbackReferralWithdrawal.String())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", CallbackProfile.String())),
	)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)

	s.show(ctx, chatID, userID, messageID, referralText(s.botName, user, stats, s.ledger.MinWithdrawal()), &keyboard)
}

func referralText(botName string, user *db.User, stats *db.ReferralStats, minWithdrawal int) string {
	return fmt.Sprintf(`👥 Реферальная программа

🔗 Ваша реферальная ссылка:
https://t.me/%s?start=ref%d

📊 Статистика:
👥 Всего рефералов: %d
💎 Активных рефералов: %d
💰 Всего заработано: %d руб.
💸 Реферальный баланс: %d руб.

💡 Как это работает?
1. Вы приглашаете друзей по своей ссылке
2. Когда они покупают подписку, вы получаете:
   - %d%% с покупки прямого реферала
   - %d%% с покупки реферала 2 уровня
   - %d%% с покупки реферала 3 уровня
3. Вывод средств доступен от %d руб.`,
		botName, user.TgID,
		stats.TotalReferrals, stats.ActiveReferrals, stats.TotalEarned, user.ReferralBalance,
		domain.ReferralPercent(1), domain.ReferralPercent(2), domain.ReferralPercent(3),
		minWithdrawal,
	)
}

func (s *Service) handleExchangeReferral(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	userID := callback.From.ID
	if s.isStaleMenu(ctx, userID, callback.Message.MessageID) {
		s.answerAlert(callback.ID, "Пожалуйста, используйте актуальное меню. Повторите действие.")
		return
	}

	moved, err := s.ledger.ExchangeAll(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		s.answerAlert(callback.ID, "У вас нет средств на реферальном балансе для обмена")
		return
	case err != nil:
		s.answerCallback(callback.ID, "")
		s.handleError(ctx, callback.Message.Chat.ID, userID, err)
		return
	}

	s.answerAlert(callback.ID, fmt.Sprintf("✅ Успешно переведено %d руб. с реферального баланса на баланс покупок!", moved))
	s.showReferral(ctx, callback.Message.Chat.ID, userID, callback.Message.MessageID)
}

func (s *Service) startWithdrawal(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	userID := callback.From.ID
	if s.isStaleMenu(ctx, userID, callback.Message.MessageID) {
		s.answerAlert(callback.ID, "Пожалуйста, используйте актуальное меню. Повторите действие.")
		return
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		s.answerCallback(callback.ID, "")
		s.handleError(ctx, callback.Message.Chat.ID, userID, err)
		return
	}

	minAmount := s.ledger.MinWithdrawal()
	if user.ReferralBalance < minAmount {
		s.answerAlert(callback.ID, fmt.Sprintf("Минимальная сумма для вывода: %d руб.", minAmount))
		return
	}

	if err := s.expect(ctx, userID, session.KindWithdrawalAmount, nil); err != nil {
		s.answerCallback(callback.ID, "")
		s.handleError(ctx, callback.Message.Chat.ID, userID, err)
		return
	}

	s.answerCallback(callback.ID, "")
	s.show(ctx, callback.Message.Chat.ID, userID, callback.Message.MessageID, fmt.Sprintf(
		"Введите сумму для вывода (максимум: %d руб.):\nМинимальная сумма: %d руб.\n\nИли введите 'отмена' для отмены.",
		user.ReferralBalance, minAmount,
	), backKeyboard("❌ Отмена", CallbackCancelInput))
}

func (s *Service) handleWithdrawalInput(ctx context.Context, msg *tgbotapi.Message) bool {
	userID := msg.From.ID
	amount, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil || amount <= 0 {
		s.reply(msg.Chat.ID, "❌ Введите сумму целым числом или 'отмена' для выхода.")
		return true
	}

	remaining, err := s.ledger.RequestWithdrawal(ctx, userID, amount)
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		s.reply(msg.Chat.ID, fmt.Sprintf("❌ Минимальная сумма для вывода: %d руб.", s.ledger.MinWithdrawal()))
		return true
	case errors.Is(err, domain.ErrInsufficientFunds):
		s.reply(msg.Chat.ID, "❌ Недостаточно средств на реферальном балансе. Введите сумму меньше.")
		return true
	case err != nil:
		s.handleError(ctx, msg.Chat.ID, userID, err)
		return false
	}

	s.log.Info().Int64("user_id", userID).Int("amount", amount).Msg("withdrawal requested")
	s.replyWithMarkup(msg.Chat.ID, fmt.Sprintf(
		"✅ Заявка на вывод %d руб. принята!\n💸 Остаток реферального баланса: %d руб.\n\nАдминистратор свяжется с вами для выплаты.",
		amount, remaining,
	), backKeyboard("👤 Профиль", CallbackProfile))

	if rootID := s.ledger.RootAdminID(); rootID != 0 {
		username := msg.From.UserName
		if username == "" {
			username = "не указан"
		}
		s.reply(rootID, fmt.Sprintf(`💸 Заявка на вывод средств

👤 @%s (ID: %d)
💰 Сумма: %d руб.

После выплаты подтвердите командой:
/withdraw %d %d Обработано`, username, userID, amount, userID, amount))
	}
	return false
}

func (s *Service) startDeposit(ctx context.Context, chatID, userID int64, messageID int) {
	if s.payments == nil {
		s.show(ctx, chatID, userID, messageID, "💳 Пополнение баланса временно недоступно.", backKeyboard("🔙 Назад", CallbackProfile))
		return
	}

	if err := s.expect(ctx, userID, session.KindDepositAmount, nil); err != nil {
		s.handleError(ctx, chatID, userID, err)
		return
	}

	limits := s.payments.Limits()
	s.show(ctx, chatID, userID, messageID, fmt.Sprintf(
		"💰 Пополнение баланса\n\nВведите сумму пополнения в рублях (от %d до %d руб.):\n\nИли нажмите 'Отмена' для возврата в профиль.",
		limits.Min, limits.Max,
	), backKeyboard("❌ Отмена", CallbackCancelInput))
}

func (s *Service) handleDepositInput(ctx context.Context, msg *tgbotapi.Message) bool {
	if s.payments == nil {
		s.reply(msg.Chat.ID, "💳 Пополнение баланса временно недоступно.")
		return false
	}

	limits := s.payments.Limits()
	amount, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil {
		s.reply(msg.Chat.ID, fmt.Sprintf("❌ Введите сумму числом от %d до %d руб.", limits.Min, limits.Max))
		return true
	}

	dep, err := s.payments.Deposit(ctx, msg.From.ID, msg.Chat.ID, amount)
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		s.reply(msg.Chat.ID, fmt.Sprintf("❌ Сумма должна быть от %d до %d руб.", limits.Min, limits.Max))
		return true
	case err != nil:
		s.handleError(ctx, msg.Chat.ID, msg.From.ID, ErrPaymentf("deposit %d for user %d", amount, msg.From.ID).Wrap(err))
		return false
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf(
		"💳 Счет на пополнение %d руб. создан.\n\nНажмите кнопку ниже для оплаты. Баланс пополнится автоматически после подтверждения платежа.",
		dep.Amount,
	))
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("💳 Оплатить", dep.ConfirmationURL)),
	)
	sent, err := s.bot.Send(out)
	if err != nil {
		s.log.Warn().Err(err).Str("payment_id", dep.ProviderID).Msg("failed to send payment link")
	} else if err := s.payments.AttachMessage(ctx, dep.ProviderID, sent.MessageID); err != nil {
		s.log.Warn().Err(err).Str("payment_id", dep.ProviderID).Msg("failed to attach payment message")
	}

	if s.watcher != nil {
		s.watcher.Watch(ctx, dep.ProviderID)
	}
	return false
}
