package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"zenith-bot/internal/metrics"
)

// broadcastDelay пауза между сообщениями рассылки, чтобы не упереться в лимиты Telegram
const broadcastDelay = 40 * time.Millisecond

const consoleUsage = `🖥 Консоль администратора

/console stats - статистика
/console errors - последние ошибки
/console clear_errors - очистить журнал ошибок
/console users count - число пользователей
/console user <ID> info - информация о пользователе
/console broadcast <текст> - рассылка всем пользователям`

func (s *Service) handleConsole(ctx context.Context, msg *tgbotapi.Message) {
	raw := strings.TrimSpace(msg.CommandArguments())
	args := strings.Fields(raw)
	if len(args) == 0 {
		s.reply(msg.Chat.ID, consoleUsage)
		return
	}

	switch args[0] {
	case "stats":
		stats, err := s.repo.CollectStats(ctx, s.now())
		if err != nil {
			s.handleError(ctx, msg.Chat.ID, msg.From.ID, ErrDatabasef("collect stats").Wrap(err))
			return
		}
		s.reply(msg.Chat.ID, statsText(stats))

	case "errors":
		s.consoleErrors(ctx, msg)

	case "clear_errors":
		n, err := s.repo.ClearErrors(ctx)
		if err != nil {
			s.handleError(ctx, msg.Chat.ID, msg.From.ID, ErrDatabasef("clear errors").Wrap(err))
			return
		}
		s.log.Info().Int64("admin_id", msg.From.ID).Int64("deleted", n).Msg("error log cleared")
		s.reply(msg.Chat.ID, fmt.Sprintf("🧹 Журнал ошибок очищен, удалено записей: %d", n))

	case "users":
		if len(args) < 2 || args[1] != "count" {
			s.reply(msg.Chat.ID, consoleUsage)
			return
		}
		n, err := s.repo.CountUsers(ctx)
		if err != nil {
			s.handleError(ctx, msg.Chat.ID, msg.From.ID, ErrDatabasef("count users").Wrap(err))
			return
		}
		s.reply(msg.Chat.ID, fmt.Sprintf("👥 Всего пользователей: %d", n))

	case "user":
		if len(args) < 3 || args[2] != "info" {
			s.reply(msg.Chat.ID, "Использование: /console user <ID> info")
			return
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			s.reply(msg.Chat.ID, "❌ Неверный ID пользователя")
			return
		}
		text, err := s.userInfoText(ctx, id)
		if err != nil {
			s.handleError(ctx, msg.Chat.ID, msg.From.ID, err)
			return
		}
		s.reply(msg.Chat.ID, text)

	case "broadcast":
		text := strings.TrimSpace(strings.TrimPrefix(raw, "broadcast"))
		if text == "" {
			s.reply(msg.Chat.ID, "Использование: /console broadcast <текст>")
			return
		}
		s.broadcast(ctx, msg, text)

	default:
		s.reply(msg.Chat.ID, consoleUsage)
	}
}

func (s *Service) consoleErrors(ctx context.Context, msg *tgbotapi.Message) {
	entries, err := s.repo.RecentErrors(ctx, 10)
	if err != nil {
		s.handleError(ctx, msg.Chat.ID, msg.From.ID, ErrDatabasef("recent errors").Wrap(err))
		return
	}
	if len(entries) == 0 {
		s.reply(msg.Chat.ID, "✅ Ошибок не зарегистрировано")
		return
	}

	var b strings.Builder
	b.WriteString("🚨 Последние ошибки:\n")
	for _, e := range entries {
		user := "-"
		if e.UserID != nil {
			user = strconv.FormatInt(*e.UserID, 10)
		}
		fmt.Fprintf(&b, "\n[%s] %s (пользователь %s)\n%s\n",
			e.Timestamp.Format("02.01 15:04:05"), e.ErrorType, user, truncate(e.ErrorMessage, alertMessageLimit))
	}
	for _, part := range splitMessage(b.String(), messageLimit) {
		s.reply(msg.Chat.ID, part)
	}
}

// broadcast рассылает text всем пользователям последовательно
func (s *Service) broadcast(ctx context.Context, msg *tgbotapi.Message, text string) {
	ids, err := s.repo.ListUserIDs(ctx)
	if err != nil {
		s.handleError(ctx, msg.Chat.ID, msg.From.ID, ErrDatabasef("list users").Wrap(err))
		return
	}

	s.reply(msg.Chat.ID, fmt.Sprintf("📢 Рассылка запущена, получателей: %d", len(ids)))

	var sent, failed int
	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			time.Sleep(broadcastDelay)
		}
		if _, err := s.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
			metrics.BotSendErrors.Inc()
			s.log.Debug().Err(err).Int64("user_id", id).Msg("broadcast delivery failed")
			failed++
			continue
		}
		sent++
	}

	s.log.Info().Int64("admin_id", msg.From.ID).Int("sent", sent).Int("failed", failed).Msg("broadcast finished")
	s.reply(msg.Chat.ID, fmt.Sprintf("📢 Рассылка завершена\n✅ Отправлено: %d\n❌ Ошибок: %d", sent, failed))
}
