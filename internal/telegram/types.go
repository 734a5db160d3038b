package telegram

import (
	"fmt"
	"strings"
)

// Command представляет команды бота
type Command string

const (
	CmdStart    Command = "start"
	CmdHelp     Command = "help"
	CmdProfile  Command = "profile"
	CmdMode     Command = "mode"
	CmdDiscount Command = "discount"
	CmdBuy      Command = "buy"
	CmdDeposit  Command = "deposit"
	CmdReferral Command = "referral"
	CmdCancel   Command = "cancel"
	CmdAdmin    Command = "admin"
	CmdUser     Command = "user"
	CmdWithdraw Command = "withdraw"
	CmdConsole  Command = "console"
)

// String возвращает строковое представление команды
func (c Command) String() string {
	return string(c)
}

// IsValid проверяет, является ли команда валидной
func (c Command) IsValid() bool {
	switch c {
	case CmdStart, CmdHelp, CmdProfile, CmdMode, CmdDiscount, CmdBuy, CmdDeposit,
		CmdReferral, CmdCancel, CmdAdmin, CmdUser, CmdWithdraw, CmdConsole:
		return true
	default:
		return false
	}
}

// IsAdminOnly проверяет, требует ли команда прав администратора
func (c Command) IsAdminOnly() bool {
	switch c {
	case CmdAdmin, CmdUser, CmdWithdraw, CmdConsole:
		return true
	default:
		return false
	}
}

// CallbackData представляет данные для callback кнопок
type CallbackData string

const (
	CallbackBackToMain         CallbackData = "back_to_main"
	CallbackProfile            CallbackData = "profile"
	CallbackModes              CallbackData = "modes"
	CallbackSubscriptions      CallbackData = "subscriptions"
	CallbackDeposit            CallbackData = "deposit"
	CallbackReferral           CallbackData = "referral"
	CallbackExchangeReferral   CallbackData = "exchange_referral"
	CallbackReferralWithdrawal CallbackData = "referral_withdrawal"
	CallbackCancelInput        CallbackData = "cancel_input"

	CallbackAdminPanel          CallbackData = "admin_panel"
	CallbackAdminStats          CallbackData = "admin_stats"
	CallbackAdminDiscounts      CallbackData = "admin_discounts"
	CallbackAdminCreateDiscount CallbackData = "admin_create_discount"
	CallbackAdminListDiscounts  CallbackData = "admin_list_discounts"
	CallbackAdminDeleteDiscount CallbackData = "admin_delete_discount"
	CallbackAdminAdmins         CallbackData = "admin_admins"
	CallbackAdminAddID          CallbackData = "admin_add_id"
	CallbackAdminAddUsername    CallbackData = "admin_add_username"
	CallbackAdminRemove         CallbackData = "admin_remove"
	CallbackAdminReferrals      CallbackData = "admin_referrals"
	CallbackAdminUsers          CallbackData = "admin_users"
)

// String возвращает строковое представление callback данных
func (c CallbackData) String() string {
	return string(c)
}

// IsAdmin callback из админ-панели
func (c CallbackData) IsAdmin() bool {
	switch c {
	case CallbackAdminPanel, CallbackAdminStats, CallbackAdminDiscounts, CallbackAdminCreateDiscount,
		CallbackAdminListDiscounts, CallbackAdminDeleteDiscount, CallbackAdminAdmins, CallbackAdminAddID,
		CallbackAdminAddUsername, CallbackAdminRemove, CallbackAdminReferrals, CallbackAdminUsers:
		return true
	}
	return false
}

// CallbackPrefix представляет префиксы для callback с параметром
type CallbackPrefix string

const (
	CallbackMode            CallbackPrefix = "mode_"
	CallbackSubscribe       CallbackPrefix = "sub_"
	CallbackAdminDeactivate CallbackPrefix = "admin_deactivate_"
)

// String возвращает строковое представление префикса
func (c CallbackPrefix) String() string {
	return string(c)
}

// WithID создает callback с параметром
func (c CallbackPrefix) WithID(id interface{}) string {
	return fmt.Sprintf("%s%v", c, id)
}

// Param возвращает параметр callback, если data начинается с префикса
func (c CallbackPrefix) Param(data string) (string, bool) {
	if !strings.HasPrefix(data, string(c)) {
		return "", false
	}
	return data[len(c):], true
}
