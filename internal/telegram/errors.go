package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"zenith-bot/internal/db"
	"zenith-bot/internal/domain"
	"zenith-bot/internal/llm"
	"zenith-bot/internal/metrics"
)

// Error коды для различных типов ошибок
const (
	ErrInvalidInput      = "INVALID_INPUT"
	ErrDatabaseError     = "DATABASE_ERROR"
	ErrPermissionDenied  = "PERMISSION_DENIED"
	ErrUserNotFound      = "USER_NOT_FOUND"
	ErrPaymentError      = "PAYMENT_ERROR"
	ErrSubscriptionError = "SUBSCRIPTION_ERROR"
	ErrLLMError          = "LLM_ERROR"
	ErrPanic             = "PANIC"
	ErrUnknown           = "UNKNOWN_ERROR"
)

const (
	genericErrorMessage = "⚠️ Произошла ошибка. Администраторы уведомлены."
	quotaExceededText   = "⚠️ Превышен дневной лимит токенов для вашей подписки!"

	alertMessageLimit = 200
	alertTraceLimit   = 500
)

// BotError представляет ошибку бота с кодом и сообщением для пользователя
type BotError struct {
	Code        string
	Message     string
	UserMessage string
	Details     string
	Err         error
}

func (e *BotError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
}

func (e *BotError) Unwrap() error {
	return e.Err
}

// Wrap сохраняет причину, чтобы errors.Is видел доменные ошибки
func (e *BotError) Wrap(err error) *BotError {
	e.Err = err
	if err != nil && e.Details == "" {
		e.Details = err.Error()
	}
	return e
}

// NewBotError создает новую ошибку бота
func NewBotError(code, message, userMessage, details string) *BotError {
	return &BotError{
		Code:        code,
		Message:     message,
		UserMessage: userMessage,
		Details:     details,
	}
}

// expected ошибки показываются пользователю и не уходят в журнал ошибок
func (e *BotError) expected() bool {
	switch e.Code {
	case ErrInvalidInput, ErrPermissionDenied, ErrUserNotFound, ErrSubscriptionError:
		return true
	}
	return false
}

// describeError сопоставляет ошибку с сообщением пользователю
func describeError(err error) (code, userMessage string, expected bool) {
	var apiErr *llm.APIError
	var botErr *BotError

	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return ErrInvalidInput, "❌ Недостаточно средств на балансе.", true
	case errors.Is(err, domain.ErrQuotaExceeded):
		return ErrSubscriptionError, quotaExceededText, true
	case errors.Is(err, domain.ErrDiscountExhausted):
		return ErrInvalidInput, "❌ Лимит использований скидочного кода исчерпан.", true
	case errors.Is(err, domain.ErrDiscountAlreadyApplied):
		return ErrInvalidInput, "❌ У вас уже есть активная скидка. Используйте ее при покупке подписки.", true
	case errors.Is(err, domain.ErrInvalidDiscount):
		return ErrInvalidInput, "❌ Процент скидки должен быть от 1 до 100, а число использований больше 0.", true
	case errors.Is(err, domain.ErrInvalidAmount):
		return ErrInvalidInput, "❌ Неверная сумма.", true
	case errors.Is(err, domain.ErrInvalidTier):
		return ErrInvalidInput, "❌ Неверный тип подписки. Доступные: tier1, tier2, tier3, free", true
	case errors.Is(err, domain.ErrRootAdmin):
		return ErrPermissionDenied, "❌ Права ROOT администратора изменить нельзя.", true
	case errors.Is(err, domain.ErrSelfReferral):
		return ErrInvalidInput, "❌ Нельзя пригласить самого себя.", true
	case errors.Is(err, domain.ErrAlreadyExists):
		return ErrInvalidInput, "❌ Такая запись уже существует.", true
	case errors.As(err, &apiErr):
		return ErrLLMError, "❌ Ошибка модели: " + apiErr.Message, true
	case errors.Is(err, llm.ErrEmptyAnswer):
		return ErrLLMError, "❌ Модель вернула пустой ответ. Попробуйте переформулировать вопрос.", true
	case errors.As(err, &botErr):
		return botErr.Code, "❌ " + botErr.UserMessage, botErr.expected()
	case errors.Is(err, domain.ErrNotFound):
		return ErrUserNotFound, "❌ Не найдено. Запустите бота командой /start.", true
	}
	return ErrUnknown, genericErrorMessage, false
}

// isNotModified ответ Telegram на редактирование без изменений
func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

// handleError обрабатывает ошибки и отправляет соответствующие сообщения пользователю
func (s *Service) handleError(ctx context.Context, chatID, userID int64, err error) {
	if err == nil || isNotModified(err) {
		return
	}

	code, userMessage, expected := describeError(err)
	metrics.BotErrorsTotal.WithLabelValues(code).Inc()

	if expected {
		s.log.Debug().Err(err).Int64("user_id", userID).Str("code", code).Msg("handler rejected request")
	} else {
		s.log.Error().Err(err).Int64("user_id", userID).Str("code", code).Msg("bot error occurred")
		s.reportError(ctx, code, err.Error(), "", userID)
	}

	s.reply(chatID, userMessage)
}

// reportError пишет ошибку в журнал и отправляет отчет root-админу
func (s *Service) reportError(ctx context.Context, errType, message, trace string, userID int64) {
	if strings.Contains(message, "message is not modified") {
		return
	}

	entry := &db.ErrorLog{
		ErrorType:    errType,
		ErrorMessage: message,
		Traceback:    trace,
	}
	if userID != 0 {
		entry.UserID = &userID
	}
	if err := s.repo.LogError(ctx, entry); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist error log")
	}

	s.sendErrorReport(errType, message, trace, userID)
}

// sendErrorReport отправляет отчет об ошибке root-админу
func (s *Service) sendErrorReport(errType, message, trace string, userID int64) {
	rootID := s.ledger.RootAdminID()
	if rootID == 0 {
		return
	}

	report := fmt.Sprintf(`🚨 Ошибка в боте:

Код: %s
Пользователь: %d
Сообщение: %s`,
		errType,
		userID,
		truncate(message, alertMessageLimit),
	)
	if trace != "" {
		report += "\n\nТрассировка:\n" + truncate(trace, alertTraceLimit)
	}

	if _, err := s.bot.Send(tgbotapi.NewMessage(rootID, report)); err != nil {
		metrics.BotSendErrors.Inc()
		s.log.Warn().Err(err).Msg("failed to send error report")
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

// Вспомогательные функции для создания типичных ошибок

func ErrInvalidInputf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrInvalidInput,
		"Invalid input provided",
		"Неверный формат данных. Проверьте правильность ввода.",
		fmt.Sprintf(details, args...),
	)
}

func ErrDatabasef(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrDatabaseError,
		"Database operation failed",
		"Ошибка базы данных. Попробуйте позже.",
		fmt.Sprintf(details, args...),
	)
}

func ErrPermission(details string) *BotError {
	return NewBotError(
		ErrPermissionDenied,
		"Permission denied",
		"У вас нет прав для выполнения этой операции.",
		details,
	)
}

func ErrUserNotFoundf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrUserNotFound,
		"User not found",
		"Пользователь не найден.",
		fmt.Sprintf(details, args...),
	)
}

func ErrPaymentf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrPaymentError,
		"Payment processing failed",
		"Не удалось создать платеж. Попробуйте позже.",
		fmt.Sprintf(details, args...),
	)
}

func ErrSubscriptionf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrSubscriptionError,
		"Subscription operation failed",
		"Этот тариф сейчас недоступен для покупки.",
		fmt.Sprintf(details, args...),
	)
}

func ErrLLMf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrLLMError,
		"LLM request failed",
		"Модель сейчас недоступна. Попробуйте позже.",
		fmt.Sprintf(details, args...),
	)
}
