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
	"zenith-bot/internal/llm"
	"zenith-bot/internal/session"
)

func (s *Service) showAdminPanel(ctx context.Context, chatID, userID int64, messageID int) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Статистика", CallbackAdminStats.String()),
			tgbotapi.NewInlineKeyboardButtonData("👑 Администраторы", CallbackAdminAdmins.String()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👥 Пользователи", CallbackAdminUsers.String()),
			tgbotapi.NewInlineKeyboardButtonData("🎟 Скидки", CallbackAdminDiscounts.String()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🤝 Рефералы", CallbackAdminReferrals.String()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 В главное меню", CallbackBackToMain.String()),
		),
	)
	s.show(ctx, chatID, userID, messageID, "🎛 Панель администратора", &keyboard)
}

func (s *Service) handleAdminCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID
	userID := callback.From.ID
	messageID := callback.Message.MessageID

	if code, ok := CallbackAdminDeactivate.Param(callback.Data); ok {
		s.handleDeactivateDiscount(ctx, callback, code)
		return
	}

	switch CallbackData(callback.Data) {
	case CallbackAdminPanel:
		s.showAdminPanel(ctx, chatID, userID, messageID)
	case CallbackAdminStats:
		s.showAdminStats(ctx, chatID, userID, messageID)
	case CallbackAdminDiscounts:
		s.showDiscountMenu(ctx, chatID, userID, messageID)
	case CallbackAdminCreateDiscount:
		s.promptInput(ctx, chatID, userID, messageID, session.KindDiscountParams,
			"Введите параметры скидочного кода в формате:\n[код] [процент] [максимум использований]\n\nПример: SUMMER25 25 100\n\nИли введите 'отмена' для отмены.",
			CallbackAdminDiscounts)
	case CallbackAdminListDiscounts:
		s.showDiscountList(ctx, chatID, userID, messageID)
	case CallbackAdminDeleteDiscount:
		s.promptInput(ctx, chatID, userID, messageID, session.KindDiscountCodeToDelete,
			"Введите скидочный код, который нужно удалить.\nНеиспользованные применения кода будут отменены.\n\nИли введите 'отмена' для отмены.",
			CallbackAdminDiscounts)
	case CallbackAdminAdmins:
		s.showAdmins(ctx, chatID, userID, messageID)
	case CallbackAdminAddID:
		s.promptInput(ctx, chatID, userID, messageID, session.KindAdminIDToAdd,
			"Введите Telegram ID нового администратора.\n\nИли введите 'отмена' для отмены.",
			CallbackAdminAdmins)
	case CallbackAdminAddUsername:
		s.promptInput(ctx, chatID, userID, messageID, session.KindAdminUsernameToAdd,
			"Введите username нового администратора (можно с @).\nПользователь должен хотя бы раз запустить бота.\n\nИли введите 'отмена' для отмены.",
			CallbackAdminAdmins)
	case CallbackAdminRemove:
		s.promptInput(ctx, chatID, userID, messageID, session.KindAdminIDToRemove,
			"Введите Telegram ID администратора, у которого нужно забрать права.\n\nИли введите 'отмена' для отмены.",
			CallbackAdminAdmins)
	case CallbackAdminReferrals:
		s.showTopReferrers(ctx, chatID, userID, messageID)
	case CallbackAdminUsers:
		s.show(ctx, chatID, userID, messageID, userCommandUsage, backKeyboard("🔙 Назад", CallbackAdminPanel))
	}

	s.answerCallback(callback.ID, "")
}

// promptInput запоминает ожидаемый ввод и показывает подсказку
func (s *Service) promptInput(ctx context.Context, chatID, userID int64, messageID int, kind session.Kind, prompt string, back CallbackData) {
	if err := s.expect(ctx, userID, kind, nil); err != nil {
		s.handleError(ctx, chatID, userID, err)
		return
	}
	s.show(ctx, chatID, userID, messageID, prompt, backKeyboard("❌ Отмена", back))
}

func (s *Service) showAdminStats(ctx context.Context, chatID, userID int64, messageID int) {
	stats, err := s.repo.CollectStats(ctx, s.now())
	if err != nil {
		s.handleError(ctx, chatID, userID, ErrDatabasef("collect stats").Wrap(err))
		return
	}
	s.show(ctx, chatID, userID, messageID, statsText(stats), backKeyboard("🔙 Назад", CallbackAdminPanel))
}

func statsText(st *db.Stats) string {
	return fmt.Sprintf(`📊 Статистика бота

👥 Пользователей: %d
💎 Активных подписок: %d
👑 Администраторов (кроме root): %d

💰 Сумма балансов: %d руб.
💸 Сумма реферальных балансов: %d руб.
🤝 Реферальных связей: %d
🏦 Начислено рефералам: %d руб.

⏳ Платежей в ожидании: %d`,
		st.TotalUsers, st.ActiveSubscribers, st.TotalAdmins,
		st.TotalBalance, st.TotalReferral, st.TotalReferrals, st.ReferralPaidOut,
		st.PendingPayments,
	)
}

func (s *Service) showDiscountMenu(ctx context.Context, chatID, userID int64, messageID int) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("➕ Создать код", CallbackAdminCreateDiscount.String())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📋 Список кодов", CallbackAdminListDiscounts.String())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить код", CallbackAdminDeleteDiscount.String())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", CallbackAdminPanel.String())),
	)
	s.show(ctx, chatID, userID, messageID, "🎟 Управление скидочными кодами", &keyboard)
}

func (s *Service) showDiscountList(ctx context.Context, chatID, userID int64, messageID int) {
	codes, err := s.ledger.ListCodes(ctx)
	if err != nil {
		s.handleError(ctx, chatID, userID, ErrDatabasef("list discount codes").Wrap(err))
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range codes {
		if c.IsActive {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("⛔ Деактивировать "+c.Code, CallbackAdminDeactivate.WithID(c.Code)),
			))
		}
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", CallbackAdminDiscounts.String()),
	))
	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	s.show(ctx, chatID, userID, messageID, discountListText(codes), &keyboard)
}

func discountListText(codes []db.DiscountCode) string {
	if len(codes) == 0 {
		return "🎟 Скидочных кодов пока нет"
	}

	var b strings.Builder
	b.WriteString("🎟 Скидочные коды:\n\n")
	for _, c := range codes {
		status := "✅"
		if !c.IsActive {
			status = "⛔"
		}
		fmt.Fprintf(&b, "%s %s - %d%%, использовано %d из %d\n", status, c.Code, c.DiscountPercent, c.UsedCount, c.MaxUses)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Service) handleDeactivateDiscount(ctx context.Context, callback *tgbotapi.CallbackQuery, code string) {
	ok, err := s.ledger.DeactivateCode(ctx, code)
	if err != nil {
		s.answerCallback(callback.ID, "")
		s.handleError(ctx, callback.Message.Chat.ID, callback.From.ID, err)
		return
	}
	if !ok {
		s.answerAlert(callback.ID, "Код не найден")
		return
	}

	s.log.Info().Int64("admin_id", callback.From.ID).Str("code", code).Msg("discount code deactivated")
	s.answerCallback(callback.ID, fmt.Sprintf("Код %s деактивирован", code))
	s.showDiscountList(ctx, callback.Message.Chat.ID, callback.From.ID, callback.Message.MessageID)
}

func (s *Service) handleDiscountParamsInput(ctx context.Context, msg *tgbotapi.Message) bool {
	parts := strings.Fields(msg.Text)
	if len(parts) != 3 {
		s.reply(msg.Chat.ID, "❌ Неверный формат. Используйте: [код] [процент] [максимум использований]")
		return true
	}
	percent, err1 := strconv.Atoi(parts[1])
	maxUses, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		s.reply(msg.Chat.ID, "❌ Процент и число использований должны быть числами")
		return true
	}

	dc, err := s.ledger.CreateCode(ctx, parts[0], percent, maxUses, msg.From.ID)
	switch {
	case errors.Is(err, domain.ErrInvalidDiscount):
		s.reply(msg.Chat.ID, "❌ Процент скидки должен быть от 1 до 100, а число использований больше 0.")
		return true
	case errors.Is(err, domain.ErrAlreadyExists):
		s.reply(msg.Chat.ID, "❌ Код с таким названием уже существует. Введите другой.")
		return true
	case err != nil:
		s.handleError(ctx, msg.Chat.ID, msg.From.ID, ErrDatabasef("create discount code").Wrap(err))
		return false
	}

	s.log.Info().Int64("admin_id", msg.From.ID).Str("code", dc.Code).Int("percent", dc.DiscountPercent).Msg("discount code created")
	s.replyWithMarkup(msg.Chat.ID, fmt.Sprintf(
		"✅ Скидочный код создан!\n\n🎟 Код: %s\n🎁 Скидка: %d%%\n🔢 Использований: %d",
		dc.Code, dc.DiscountPercent, dc.MaxUses,
	), backKeyboard("🔙 К скидкам", CallbackAdminDiscounts))
	return false
}

func (s *Service) handleDeleteDiscountInput(ctx context.Context, msg *tgbotapi.Message) bool {
	code := strings.TrimSpace(msg.Text)
	deleted, err := s.ledger.DeleteCode(ctx, code)
	if err != nil {
		s.handleError(ctx, msg.Chat.ID, msg.From.ID, ErrDatabasef("delete discount code %s", code).Wrap(err))
		return false
	}
	if !deleted {
		s.replyWithMarkup(msg.Chat.ID, "❌ Код не найден",
			backKeyboard("🔙 К скидкам", CallbackAdminDiscounts))
		return false
	}

	s.log.Info().Int64("admin_id", msg.From.ID).Str("code", code).Msg("discount code deleted")
	s.replyWithMarkup(msg.Chat.ID, "✅ Скидочный код удален", backKeyboard("🔙 К скидкам", CallbackAdminDiscounts))
	return false
}

func (s *Service) showAdmins(ctx context.Context, chatID, userID int64, messageID int) {
	admins, err := s.ledger.ListAdmins(ctx)
	if err != nil {
		s.handleError(ctx, chatID, userID, ErrDatabasef("list admins").Wrap(err))
		return
	}

	var b strings.Builder
	b.WriteString("👑 Администраторы:\n\n")
	for _, a := range admins {
		name := "без username"
		if a.Username != "" {
			name = "@" + a.Username
		}
		if a.Root {
			fmt.Fprintf(&b, "⭐ %d (%s) - ROOT\n", a.UserID, name)
			continue
		}
		fmt.Fprintf(&b, "• %d (%s), добавлен %s\n", a.UserID, name, a.AddedAt.Format("02.01.2006"))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ По ID", CallbackAdminAddID.String()),
			tgbotapi.NewInlineKeyboardButtonData("➕ По username", CallbackAdminAddUsername.String()),
		),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("➖ Удалить", CallbackAdminRemove.String())),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", CallbackAdminPanel.String())),
	)
	s.show(ctx, chatID, userID, messageID, strings.TrimRight(b.String(), "\n"), &keyboard)
}

func (s *Service) handleAddAdminIDInput(ctx context.Context, msg *tgbotapi.Message) bool {
	id, err := strconv.ParseInt(strings.TrimSpace(msg.Text), 10, 64)
	if err != nil || id <= 0 {
		s.reply(msg.Chat.ID, "❌ Введите числовой Telegram ID")
		return true
	}

	added, err := s.ledger.AddAdmin(ctx, id, msg.From.ID)
	s.reportAdminGrant(ctx, msg, id, added, err)
	return false
}

func (s *Service) handleAddAdminUsernameInput(ctx context.Context, msg *tgbotapi.Message) bool {
	username := strings.TrimPrefix(strings.TrimSpace(msg.Text), "@")
	if username == "" {
		s.reply(msg.Chat.ID, "❌ Введите username")
		return true
	}

	id, added, err := s.ledger.AddAdminByUsername(ctx, username, msg.From.ID)
	if errors.Is(err, domain.ErrNotFound) {
		s.replyWithMarkup(msg.Chat.ID, fmt.Sprintf("❌ Пользователь @%s не найден. Он должен сначала запустить бота.", username),
			backKeyboard("🔙 К администраторам", CallbackAdminAdmins))
		return false
	}
	s.reportAdminGrant(ctx, msg, id, added, err)
	return false
}

func (s *Service) reportAdminGrant(ctx context.Context, msg *tgbotapi.Message, id int64, added bool, err error) {
	back := backKeyboard("🔙 К администраторам", CallbackAdminAdmins)
	switch {
	case errors.Is(err, domain.ErrRootAdmin):
		s.replyWithMarkup(msg.Chat.ID, "ℹ️ Этот пользователь уже ROOT администратор", back)
		return
	case err != nil:
		s.handleError(ctx, msg.Chat.ID, msg.From.ID, ErrDatabasef("add admin %d", id).Wrap(err))
		return
	case !added:
		s.replyWithMarkup(msg.Chat.ID, fmt.Sprintf("ℹ️ Пользователь %d уже администратор", id), back)
		return
	}

	s.log.Info().Int64("admin_id", msg.From.ID).Int64("user_id", id).Msg("admin added")
	s.replyWithMarkup(msg.Chat.ID, fmt.Sprintf("✅ Пользователь %d назначен администратором", id), back)
	s.reply(id, "👑 Вам выданы права администратора. Используйте /admin")
}

func (s *Service) handleRemoveAdminInput(ctx context.Context, msg *tgbotapi.Message) bool {
	id, err := strconv.ParseInt(strings.TrimSpace(msg.Text), 10, 64)
	if err != nil || id <= 0 {
		s.reply(msg.Chat.ID, "❌ Введите числовой Telegram ID")
		return true
	}

	back := backKeyboard("🔙 К администраторам", CallbackAdminAdmins)
	removed, err := s.ledger.RemoveAdmin(ctx, id)
	switch {
	case errors.Is(err, domain.ErrRootAdmin):
		s.replyWithMarkup(msg.Chat.ID, "❌ Нельзя забрать права у ROOT администратора", back)
	case err != nil:
		s.handleError(ctx, msg.Chat.ID, msg.From.ID, ErrDatabasef("remove admin %d", id).Wrap(err))
	case !removed:
		s.replyWithMarkup(msg.Chat.ID, fmt.Sprintf("ℹ️ Пользователь %d не является администратором", id), back)
	default:
		s.log.Info().Int64("admin_id", msg.From.ID).Int64("user_id", id).Msg("admin removed")
		s.replyWithMarkup(msg.Chat.ID, fmt.Sprintf("✅ Права администратора у %d отозваны", id), back)
	}
	return false
}

func (s *Service) showTopReferrers(ctx context.Context, chatID, userID int64, messageID int) {
	top, err := s.repo.TopReferrers(ctx, 10)
	if err != nil {
		s.handleError(ctx, chatID, userID, ErrDatabasef("top referrers").Wrap(err))
		return
	}
	s.show(ctx, chatID, userID, messageID, topReferrersText(top), backKeyboard("🔙 Назад", CallbackAdminPanel))
}

func topReferrersText(top []db.ReferrerSummary) string {
	if len(top) == 0 {
		return "🤝 Рефералов пока нет"
	}

	var b strings.Builder
	b.WriteString("🤝 Топ пригласивших:\n\n")
	for i, r := range top {
		name := strconv.FormatInt(r.UserID, 10)
		if r.Username != "" {
			name = "@" + r.Username
		}
		fmt.Fprintf(&b, "%d. %s - %d реф., %d руб.\n", i+1, name, r.ReferralsCount, r.EarnedTotal)
	}
	return strings.TrimRight(b.String(), "\n")
}

const userCommandUsage = `👥 Управление пользователями

/user <ID> info - информация о пользователе
/user <ID> balance <+/-сумма> - изменить баланс
/user <ID> subscription <tier1|tier2|tier3|free> - выдать подписку
/user <ID> discount <процент> <использований> [тариф] - персональный код`

// handleUserCommand /user <id> <действие> [аргументы]
func (s *Service) handleUserCommand(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 2 {
		s.reply(msg.Chat.ID, userCommandUsage)
		return
	}

	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		s.reply(msg.Chat.ID, "❌ Неверный ID пользователя")
		return
	}
	if _, err := s.repo.GetUser(ctx, targetID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.reply(msg.Chat.ID, fmt.Sprintf("❌ Пользователь %d не найден", targetID))
			return
		}
		s.handleError(ctx, msg.Chat.ID, msg.From.ID, err)
		return
	}

	switch args[1] {
	case "info":
		text, err := s.userInfoText(ctx, targetID)
		if err != nil {
			s.handleError(ctx, msg.Chat.ID, msg.From.ID, err)
			return
		}
		s.reply(msg.Chat.ID, text)

	case "balance":
		if len(args) < 3 {
			s.reply(msg.Chat.ID, "Использование: /user <ID> balance <+/-сумма>")
			return
		}
		delta, err := strconv.Atoi(args[2])
		if err != nil || delta == 0 {
			s.reply(msg.Chat.ID, "❌ Сумма должна быть ненулевым целым числом, например +100 или -50")
			return
		}
		err = s.repo.AddBalance(ctx, targetID, delta)
		if errors.Is(err, domain.ErrInsufficientFunds) {
			s.reply(msg.Chat.ID, "❌ Баланс не может стать отрицательным")
			return
		}
		if err != nil {
			s.handleError(ctx, msg.Chat.ID, msg.From.ID, ErrDatabasef("adjust balance of %d", targetID).Wrap(err))
			return
		}
		user, err := s.repo.GetUser(ctx, targetID)
		if err != nil {
			s.handleError(ctx, msg.Chat.ID, msg.From.ID, err)
			return
		}
		s.log.Info().Int64("admin_id", msg.From.ID).Int64("user_id", targetID).Int("delta", delta).Msg("balance adjusted")
		s.reply(msg.Chat.ID, fmt.Sprintf("✅ Баланс пользователя %d изменен на %+d руб.\n💰 Текущий баланс: %d руб.", targetID, delta, user.Balance))
		s.reply(targetID, fmt.Sprintf("💰 Ваш баланс изменен администратором на %+d руб.\nТекущий баланс: %d руб.", delta, user.Balance))

	case "subscription":
		if len(args) < 3 {
			s.reply(msg.Chat.ID, "Использование: /user <ID> subscription <tier1|tier2|tier3|free>")
			return
		}
		tier, err := domain.ParseTier(args[2])
		if err != nil {
			s.handleError(ctx, msg.Chat.ID, msg.From.ID, err)
			return
		}
		expires, err := s.ledger.GrantSubscription(ctx, targetID, tier)
		if err != nil {
			s.handleError(ctx, msg.Chat.ID, msg.From.ID, ErrDatabasef("grant %s to %d", tier, targetID).Wrap(err))
			return
		}
		s.log.Info().Int64("admin_id", msg.From.ID).Int64("user_id", targetID).Str("tier", tier.String()).Msg("subscription granted")
		if !tier.IsPaid() {
			s.reply(msg.Chat.ID, fmt.Sprintf("✅ Пользователь %d переведен на бесплатный тариф", targetID))
			return
		}
		s.reply(msg.Chat.ID, fmt.Sprintf("✅ Пользователю %d выдана подписка %s до %s", targetID, tier.DisplayName(), expires.Format("02.01.2006")))
		s.reply(targetID, fmt.Sprintf("🎁 Администратор выдал вам подписку %s до %s!\n⚡️ Лимит: %s",
			tier.DisplayName(), expires.Format("02.01.2006"), tier.LimitLabel()))

	case "discount":
		if len(args) < 4 {
			s.reply(msg.Chat.ID, "Использование: /user <ID> discount <процент> <использований> [тариф]")
			return
		}
		percent, err1 := strconv.Atoi(args[2])
		uses, err2 := strconv.Atoi(args[3])
		if err1 != nil || err2 != nil {
			s.reply(msg.Chat.ID, "❌ Процент и число использований должны быть числами")
			return
		}
		var tier string
		if len(args) > 4 {
			tier = args[4]
		}
		dc, err := s.ledger.CreatePersonalCode(ctx, targetID, percent, uses, tier, msg.From.ID)
		if err != nil {
			s.handleError(ctx, msg.Chat.ID, msg.From.ID, err)
			return
		}
		s.log.Info().Int64("admin_id", msg.From.ID).Int64("user_id", targetID).Str("code", dc.Code).Msg("personal discount created")
		s.reply(msg.Chat.ID, fmt.Sprintf("✅ Персональный код создан: %s (%d%%, %d исп.)", dc.Code, dc.DiscountPercent, dc.MaxUses))
		s.reply(targetID, fmt.Sprintf("🎁 Для вас создан персональный скидочный код на %d%%!\nПримените его командой:\n/discount %s",
			dc.DiscountPercent, dc.Code))

	default:
		s.reply(msg.Chat.ID, userCommandUsage)
	}
}

func (s *Service) userInfoText(ctx context.Context, userID int64) (string, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	info, err := s.ledger.Subscription(ctx, userID)
	if err != nil {
		return "", err
	}
	stats, err := s.ledger.ReferralStats(ctx, userID)
	if err != nil {
		return "", err
	}
	referrer, hasReferrer, err := s.repo.ReferrerOf(ctx, userID)
	if err != nil {
		return "", err
	}
	admin := s.isAdmin(ctx, userID)

	username := user.Username
	if username == "" {
		username = "не указан"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👤 Пользователь %d\n\n", user.TgID)
	fmt.Fprintf(&b, "📛 Имя: %s\n🪪 Логин: @%s\n", user.FullName, username)
	fmt.Fprintf(&b, "📅 Регистрация: %s\n", user.CreatedAt.Format("02.01.2006 15:04"))
	fmt.Fprintf(&b, "💰 Баланс: %d руб.\n💸 Реферальный баланс: %d руб.\n", user.Balance, user.ReferralBalance)
	fmt.Fprintf(&b, "🧠 Режим: %s\n", llm.ModeTitle(user.Mode))

	if info.Active && info.Expires != nil {
		fmt.Fprintf(&b, "📶 Подписка: %s до %s\n", info.Tier.DisplayName(), info.Expires.Format("02.01.2006"))
	} else {
		fmt.Fprintf(&b, "📶 Подписка: %s\n", domain.TierFree.DisplayName())
	}
	fmt.Fprintf(&b, "⚡️ Токенов сегодня: %d из %d\n", info.UsedToday, info.DailyLimit)

	fmt.Fprintf(&b, "👥 Рефералов: %d (активных %d), заработано %d руб.\n", stats.TotalReferrals, stats.ActiveReferrals, stats.TotalEarned)
	if hasReferrer {
		fmt.Fprintf(&b, "🤝 Пригласил: %d\n", referrer)
	}
	if admin {
		b.WriteString("👑 Администратор\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// handleWithdrawCommand /withdraw <id> <сумма> <комментарий>: подтверждение выплаты
func (s *Service) handleWithdrawCommand(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 3 {
		s.reply(msg.Chat.ID, "Использование: /withdraw <ID> <сумма> <комментарий>")
		return
	}

	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		s.reply(msg.Chat.ID, "❌ Неверный ID пользователя")
		return
	}
	amount, err := strconv.Atoi(args[1])
	if err != nil || amount <= 0 {
		s.reply(msg.Chat.ID, "❌ Неверная сумма")
		return
	}
	comment := strings.Join(args[2:], " ")

	if _, err := s.repo.GetUser(ctx, targetID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.reply(msg.Chat.ID, fmt.Sprintf("❌ Пользователь %d не найден", targetID))
			return
		}
		s.handleError(ctx, msg.Chat.ID, msg.From.ID, err)
		return
	}

	if err := s.reply(targetID, fmt.Sprintf(
		"✅ Ваша заявка на вывод средств в размере %d руб. обработана!\nКомментарий: %s\n\nСредства поступят в течение 3 рабочих дней.",
		amount, comment,
	)); err != nil {
		s.reply(msg.Chat.ID, fmt.Sprintf("⚠️ Не удалось уведомить пользователя %d", targetID))
		return
	}

	s.log.Info().Int64("admin_id", msg.From.ID).Int64("user_id", targetID).Int("amount", amount).Msg("withdrawal confirmed")
	s.reply(msg.Chat.ID, fmt.Sprintf("✅ Пользователь %d уведомлен о выплате %d руб.", targetID, amount))
}
