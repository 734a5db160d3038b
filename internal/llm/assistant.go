package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"zenith-bot/internal/db"
)

// MaxHistoryLength системный промпт плюс хвост диалога
const MaxHistoryLength = 21

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error)
}

// HistoryStore журнал сообщений диалога.
type HistoryStore interface {
	LastMessages(ctx context.Context, userID int64, limit int) ([]db.MessageLog, error)
	LogMessage(ctx context.Context, userID int64, role, text string) error
}

var ErrEmptyAnswer = errors.New("llm: empty answer")

// BuildMessages собирает запрос: системный промпт режима, история и новое сообщение,
// обрезанные до maxLen с сохранением системного промпта.
func BuildMessages(mode string, history []db.MessageLog, userText string, maxLen int) []ChatMessage {
	if maxLen < 2 {
		maxLen = 2
	}

	tail := make([]ChatMessage, 0, len(history)+1)
	for _, m := range history {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		tail = append(tail, ChatMessage{Role: m.Role, Content: m.Message})
	}
	tail = append(tail, ChatMessage{Role: RoleUser, Content: userText})

	if len(tail) > maxLen-1 {
		tail = tail[len(tail)-(maxLen-1):]
	}

	messages := make([]ChatMessage, 0, len(tail)+1)
	messages = append(messages, ChatMessage{Role: RoleSystem, Content: SystemPrompt(mode)})
	return append(messages, tail...)
}

type Assistant struct {
	client       chatClient
	history      HistoryStore
	model        string
	historyLimit int
	timeout      time.Duration
	log          zerolog.Logger
}

func NewAssistant(client chatClient, history HistoryStore, model string, historyLimit int, timeout time.Duration, log zerolog.Logger) *Assistant {
	if historyLimit <= 0 {
		historyLimit = MaxHistoryLength - 1
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Assistant{
		client:       client,
		history:      history,
		model:        model,
		historyLimit: historyLimit,
		timeout:      timeout,
		log:          log.With().Str("component", "llm").Logger(),
	}
}

// Reply отвечает пользователю в выбранном режиме и пишет обе реплики в журнал.
func (a *Assistant) Reply(ctx context.Context, userID int64, mode, text string) (string, error) {
	past, err := a.history.LastMessages(ctx, userID, a.historyLimit)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	if err := a.history.LogMessage(ctx, userID, RoleUser, text); err != nil {
		a.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to log user message")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(ctx, ChatCompletionRequest{
		Model:    a.model,
		Messages: BuildMessages(mode, past, text, MaxHistoryLength),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyAnswer
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	if err := a.history.LogMessage(ctx, userID, RoleAssistant, answer); err != nil {
		a.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to log assistant message")
	}

	a.log.Debug().Int64("user_id", userID).Str("mode", mode).Int("history", len(past)).Msg("reply generated")
	return answer, nil
}
