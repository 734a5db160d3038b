// Package session хранит состояние диалога пользователя между апдейтами:
// ожидаемый ввод, режим чата и id активного меню.
package session

import (
	"context"
	"strings"
	"time"
)

// Kind какой ввод бот ожидает от пользователя
type Kind string

const (
	KindNone                 Kind = ""
	KindDiscountParams       Kind = "discount_params"
	KindDiscountCodeToDelete Kind = "discount_code_to_delete"
	KindAdminIDToAdd         Kind = "admin_id_to_add"
	KindAdminUsernameToAdd   Kind = "admin_username_to_add"
	KindAdminIDToRemove      Kind = "admin_id_to_remove"
	KindWithdrawalAmount     Kind = "withdrawal_amount"
	KindDepositAmount        Kind = "deposit_amount"
)

func (k Kind) Valid() bool {
	switch k {
	case KindNone, KindDiscountParams, KindDiscountCodeToDelete, KindAdminIDToAdd,
		KindAdminUsernameToAdd, KindAdminIDToRemove, KindWithdrawalAmount, KindDepositAmount:
		return true
	}
	return false
}

// AdminOnly ввод, который принимается только от администратора.
func (k Kind) AdminOnly() bool {
	switch k {
	case KindDiscountParams, KindDiscountCodeToDelete, KindAdminIDToAdd,
		KindAdminUsernameToAdd, KindAdminIDToRemove:
		return true
	}
	return false
}

// ChatMode меню или свободный диалог с моделью
type ChatMode string

const (
	ChatModeMenu   ChatMode = "menu"
	ChatModeDialog ChatMode = "dialog"
)

type Pending struct {
	Kind      Kind              `json:"kind"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// State все, что бот помнит о чате между апдейтами.
type State struct {
	Pending       Pending  `json:"pending"`
	ChatMode      ChatMode `json:"chat_mode"`
	MenuMessageID int      `json:"menu_message_id,omitempty"`
}

// Expect переводит состояние в ожидание ввода kind, старое ожидание теряется.
func (s *State) Expect(kind Kind, payload map[string]string) {
	s.Pending = Pending{Kind: kind, Payload: payload, CreatedAt: time.Now().UTC()}
}

func (s *State) Reset() {
	s.Pending = Pending{}
}

// Awaiting текущий ожидаемый ввод с учетом срока жизни.
func (s State) Awaiting(ttl time.Duration, now time.Time) Kind {
	if s.Pending.Kind == KindNone {
		return KindNone
	}
	if ttl > 0 && now.Sub(s.Pending.CreatedAt) > ttl {
		return KindNone
	}
	return s.Pending.Kind
}

func (s State) normalized() State {
	if s.ChatMode == "" {
		s.ChatMode = ChatModeMenu
	}
	return s
}

// Store хранилище состояний по id пользователя.
type Store interface {
	Get(ctx context.Context, userID int64) (State, error)
	Set(ctx context.Context, userID int64, state State) error
	Clear(ctx context.Context, userID int64) error
	// Update читает, меняет и сохраняет состояние без гонок с другими апдейтами того же пользователя.
	Update(ctx context.Context, userID int64, fn func(*State) error) (State, error)
}

var cancelWords = map[string]bool{
	"cancel":  true,
	"отмена":  true,
	"назад":   true,
	"/cancel": true,
}

// IsCancel true для слов отмены ввода.
func IsCancel(text string) bool {
	return cancelWords[strings.ToLower(strings.TrimSpace(text))]
}
