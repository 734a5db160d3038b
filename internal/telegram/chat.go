package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"zenith-bot/internal/domain"
	"zenith-bot/internal/llm"
	"zenith-bot/internal/session"
)

const messageLimit = 4096

// handleChat вопрос модели. Квота списывается до запроса.
func (s *Service) handleChat(ctx context.Context, msg *tgbotapi.Message, state session.State) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if s.assistant == nil {
		s.reply(chatID, "🤖 Модель временно недоступна. Попробуйте позже.")
		return
	}

	usage, err := s.ledger.ConsumeTokens(ctx, userID, msg.Text)
	if errors.Is(err, domain.ErrQuotaExceeded) {
		s.log.Debug().Int64("user_id", userID).Int("cost", usage.Cost).Int("limit", usage.Limit).Msg("daily quota exceeded")
		s.replyWithMarkup(chatID, quotaExceededText, backKeyboard("💎 Подписки", CallbackSubscriptions))
		return
	}
	if err != nil {
		s.handleError(ctx, chatID, userID, err)
		return
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		s.handleError(ctx, chatID, userID, err)
		return
	}

	if _, err := s.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		s.log.Debug().Err(err).Int64("chat_id", chatID).Msg("failed to send typing action")
	}

	answer, err := s.assistant.Reply(ctx, userID, user.Mode, msg.Text)
	if err != nil {
		var apiErr *llm.APIError
		if !errors.As(err, &apiErr) && !errors.Is(err, llm.ErrEmptyAnswer) {
			err = ErrLLMf("reply for user %d", userID).Wrap(err)
		}
		s.handleError(ctx, chatID, userID, err)
		return
	}

	parts := splitMessage(answer, messageLimit)
	for i, part := range parts {
		var markup *tgbotapi.InlineKeyboardMarkup
		if i == len(parts)-1 && state.ChatMode == session.ChatModeMenu {
			markup = backKeyboard("🔙 В главное меню", CallbackBackToMain)
		}
		if err := s.replyWithMarkup(chatID, part, markup); err != nil {
			break
		}
	}

	_, err = s.sessions.Update(ctx, userID, func(st *session.State) error {
		st.ChatMode = session.ChatModeDialog
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to switch chat mode")
	}
}

// splitMessage режет текст на части не длиннее limit рун, по возможности по переводам строк.
func splitMessage(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	runes := []rune(trimmed)
	if len(runes) <= limit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + limit
		if end >= len(runes) {
			if chunk := strings.Trim(string(runes[start:]), "\n"); chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		split := end
		for i := end; i > start; i-- {
			if runes[i-1] == '\n' {
				split = i
				break
			}
		}

		if chunk := strings.Trim(string(runes[start:split]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		start = split
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}
	return parts
}
