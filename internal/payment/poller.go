package payment

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type checker interface {
	Check(ctx context.Context, providerID string) (Outcome, error)
}

// Poller ограниченно опрашивает статус только что созданного платежа.
// Поздние оплаты подхватывают вебхук и сверка по расписанию.
type Poller struct {
	checker  checker
	delay    time.Duration
	interval time.Duration
	attempts int
	wg       sync.WaitGroup
	log      zerolog.Logger
}

func NewPoller(checker checker, delay, interval time.Duration, attempts int, log zerolog.Logger) *Poller {
	return &Poller{
		checker:  checker,
		delay:    delay,
		interval: interval,
		attempts: attempts,
		log:      log.With().Str("component", "payment_poller").Logger(),
	}
}

// Watch запускает опрос в фоне, ctx останавливает его досрочно.
func (p *Poller) Watch(ctx context.Context, providerID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, providerID)
	}()
}

func (p *Poller) run(ctx context.Context, providerID string) {
	if !sleep(ctx, p.delay) {
		return
	}
	for i := 0; i < p.attempts; i++ {
		outcome, err := p.checker.Check(ctx, providerID)
		if err != nil {
			p.log.Debug().Err(err).Str("payment_id", providerID).Int("attempt", i+1).Msg("payment check failed")
		} else if outcome.Final() {
			p.log.Debug().Str("payment_id", providerID).Str("outcome", outcome.String()).Msg("payment watch finished")
			return
		}
		if i < p.attempts-1 && !sleep(ctx, p.interval) {
			return
		}
	}
	p.log.Debug().Str("payment_id", providerID).Msg("payment still pending, left to reconciliation")
}

// Wait ждет завершения всех опросов.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
