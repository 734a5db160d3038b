package domain

import "errors"

var (
	// ErrNotFound возвращается, когда запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists возвращается при попытке создать дубликат.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInsufficientFunds возвращается, когда на балансе недостаточно средств.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount возвращается для нулевых, отрицательных или выходящих за пределы сумм.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidTier возвращается для неизвестного типа подписки.
	ErrInvalidTier = errors.New("invalid subscription tier")

	// ErrQuotaExceeded возвращается, когда дневной лимит токенов исчерпан.
	ErrQuotaExceeded = errors.New("daily token quota exceeded")

	// ErrDiscountExhausted возвращается, когда лимит использований кода исчерпан.
	ErrDiscountExhausted = errors.New("discount code exhausted")

	// ErrDiscountAlreadyApplied возвращается, если у пользователя уже есть неиспользованная скидка.
	ErrDiscountAlreadyApplied = errors.New("discount already applied")

	// ErrInvalidDiscount возвращается для процента вне 1..100 или max_uses < 1.
	ErrInvalidDiscount = errors.New("invalid discount parameters")

	// ErrRootAdmin возвращается при попытке изменить права root-админа.
	ErrRootAdmin = errors.New("root admin cannot be modified")

	// ErrSelfReferral возвращается при попытке пригласить самого себя.
	ErrSelfReferral = errors.New("self referral")
)
