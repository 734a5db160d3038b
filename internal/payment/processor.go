// Package payment проводит пополнения баланса через ЮKassa:
// создание платежа, проверку статуса, вебхук и сверку зависших платежей.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zenith-bot/internal/db"
	"zenith-bot/internal/domain"
	"zenith-bot/internal/metrics"
)

// Gateway платежный провайдер.
type Gateway interface {
	CreatePayment(ctx context.Context, amount int, description string, metadata map[string]string) (*PaymentResponse, error)
	GetPayment(ctx context.Context, id string) (*PaymentResponse, error)
}

// Notifier сообщает пользователю итог платежа.
type Notifier interface {
	DepositCredited(ctx context.Context, p *db.Payment, balance int)
	DepositFailed(ctx context.Context, p *db.Payment)
}

// Outcome результат проверки платежа
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeCredited
	OutcomeClosed
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCredited:
		return "credited"
	case OutcomeClosed:
		return "closed"
	case OutcomeDuplicate:
		return "duplicate"
	}
	return "pending"
}

// Final true, если опрашивать платеж больше не нужно.
func (o Outcome) Final() bool {
	return o != OutcomePending
}

type Limits struct {
	Min            int
	Max            int
	ReconcileAfter time.Duration
}

// Deposit созданный платеж, готовый к оплате
type Deposit struct {
	PaymentID       string
	ProviderID      string
	Amount          int
	ConfirmationURL string
}

type Processor struct {
	repo     *db.Repository
	gateway  Gateway
	dedup    Dedup
	notifier Notifier
	limits   Limits
	locks    *keyedMutex
	log      zerolog.Logger
}

func NewProcessor(repo *db.Repository, gateway Gateway, dedup Dedup, limits Limits, log zerolog.Logger) *Processor {
	if dedup == nil {
		dedup = NewMemoryDedup(24 * time.Hour)
	}
	return &Processor{
		repo:    repo,
		gateway: gateway,
		dedup:   dedup,
		limits:  limits,
		locks:   newKeyedMutex(),
		log:     log.With().Str("component", "payment").Logger(),
	}
}

// SetNotifier задается после создания бота, который сам зависит от Processor.
func (p *Processor) SetNotifier(n Notifier) {
	p.notifier = n
}

func (p *Processor) Limits() Limits {
	return p.limits
}

// ValidateAmount проверяет границы суммы пополнения.
func (p *Processor) ValidateAmount(amount int) error {
	if amount < p.limits.Min || amount > p.limits.Max {
		return fmt.Errorf("amount %d outside %d..%d: %w", amount, p.limits.Min, p.limits.Max, domain.ErrInvalidAmount)
	}
	return nil
}

// Deposit создает платеж у провайдера и сохраняет его как pending.
func (p *Processor) Deposit(ctx context.Context, userID, chatID int64, amount int) (*Deposit, error) {
	if err := p.ValidateAmount(amount); err != nil {
		return nil, err
	}

	internalID := uuid.New().String()
	resp, err := p.gateway.CreatePayment(ctx, amount, fmt.Sprintf("Пополнение баланса на %d руб.", amount), map[string]string{
		"user_id":    strconv.FormatInt(userID, 10),
		"payment_id": internalID,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	if resp.ID == "" || resp.Confirmation.ConfirmationURL == "" {
		return nil, errors.New("create payment: empty gateway response")
	}

	err = p.repo.CreatePayment(ctx, &db.Payment{
		ID:         internalID,
		ProviderID: resp.ID,
		UserID:     userID,
		ChatID:     chatID,
		Amount:     amount,
	})
	if err != nil {
		return nil, fmt.Errorf("save payment: %w", err)
	}

	p.log.Info().Int64("user_id", userID).Str("payment_id", resp.ID).Int("amount", amount).Msg("payment created")
	return &Deposit{
		PaymentID:       internalID,
		ProviderID:      resp.ID,
		Amount:          amount,
		ConfirmationURL: resp.Confirmation.ConfirmationURL,
	}, nil
}

func (p *Processor) AttachMessage(ctx context.Context, providerID string, messageID int) error {
	return p.repo.SetPaymentMessage(ctx, providerID, messageID)
}

// Check запрашивает статус у провайдера и закрывает платеж, если он финальный.
func (p *Processor) Check(ctx context.Context, providerID string) (Outcome, error) {
	resp, err := p.gateway.GetPayment(ctx, providerID)
	if err != nil {
		return OutcomePending, fmt.Errorf("get payment %s: %w", providerID, err)
	}
	return p.Settle(ctx, providerID, resp.Status)
}

// Settle однократно применяет финальный статус. Зачисление и отметка processed
// идут в одной транзакции, повторный вызов возвращает OutcomeDuplicate.
func (p *Processor) Settle(ctx context.Context, providerID, status string) (Outcome, error) {
	switch status {
	case db.PaymentSucceeded, db.PaymentCanceled, db.PaymentExpired:
	default:
		return OutcomePending, nil
	}

	unlock := p.locks.Lock(providerID)
	defer unlock()

	claimed, err := p.dedup.Claim(ctx, providerID)
	if err != nil {
		p.log.Warn().Err(err).Str("payment_id", providerID).Msg("dedup unavailable, relying on store")
		claimed = true
	}
	if !claimed {
		return OutcomeDuplicate, nil
	}

	var payment *db.Payment
	var balance int
	won := false
	err = p.repo.Transaction(ctx, func(tx *db.Repository) error {
		var err error
		payment, err = tx.GetPayment(ctx, providerID)
		if err != nil {
			return err
		}
		won, err = tx.MarkPaymentFinal(ctx, providerID, status)
		if err != nil || !won {
			return err
		}
		if status != db.PaymentSucceeded {
			return nil
		}
		if err := tx.CreditBalance(ctx, payment.UserID, payment.Amount); err != nil {
			return err
		}
		user, err := tx.GetUser(ctx, payment.UserID)
		if err != nil {
			return err
		}
		balance = user.Balance
		return nil
	})
	if err != nil {
		p.dedup.Release(ctx, providerID)
		return OutcomePending, fmt.Errorf("settle %s: %w", providerID, err)
	}
	if !won {
		return OutcomeDuplicate, nil
	}

	metrics.PaymentsSettled.WithLabelValues(status).Inc()
	payment.Status = status
	payment.Processed = true

	if status == db.PaymentSucceeded {
		metrics.DepositAmountTotal.Add(float64(payment.Amount))
		p.log.Info().Int64("user_id", payment.UserID).Str("payment_id", providerID).Int("amount", payment.Amount).Msg("deposit credited")
		if p.notifier != nil {
			p.notifier.DepositCredited(ctx, payment, balance)
		}
		return OutcomeCredited, nil
	}

	p.log.Info().Int64("user_id", payment.UserID).Str("payment_id", providerID).Str("status", status).Msg("payment closed")
	if p.notifier != nil {
		p.notifier.DepositFailed(ctx, payment)
	}
	return OutcomeClosed, nil
}

// Reconcile перепроверяет pending-платежи старше ReconcileAfter.
func (p *Processor) Reconcile(ctx context.Context) (int, error) {
	before := time.Now().UTC().Add(-p.limits.ReconcileAfter)
	pending, err := p.repo.PendingPaymentsOlderThan(ctx, before)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, pay := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		outcome, err := p.Check(ctx, pay.ProviderID)
		if err != nil {
			p.log.Warn().Err(err).Str("payment_id", pay.ProviderID).Msg("reconcile check failed")
			continue
		}
		if outcome == OutcomeCredited || outcome == OutcomeClosed {
			settled++
		}
	}
	if settled > 0 {
		p.log.Info().Int("settled", settled).Int("checked", len(pending)).Msg("payments reconciled")
	}
	return settled, nil
}
