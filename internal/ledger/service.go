// Package ledger содержит правила подписок, скидок и реферальных начислений
// поверх хранилища db.Repository.
package ledger

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/rs/zerolog"

	"zenith-bot/internal/db"
)

// Config параметры движка
type Config struct {
	RootAdminID   int64
	MinWithdrawal int
}

type Service struct {
	repo *db.Repository
	cfg  Config
	log  zerolog.Logger
	now  func() time.Time
	rand io.Reader
}

func New(repo *db.Repository, cfg Config, log zerolog.Logger) *Service {
	if cfg.MinWithdrawal <= 0 {
		cfg.MinWithdrawal = 10
	}
	return &Service{
		repo: repo,
		cfg:  cfg,
		log:  log.With().Str("component", "ledger").Logger(),
		now:  func() time.Time { return time.Now().UTC() },
		rand: rand.Reader,
	}
}

func (s *Service) Repo() *db.Repository {
	return s.repo
}

func (s *Service) MinWithdrawal() int {
	return s.cfg.MinWithdrawal
}

func (s *Service) RootAdminID() int64 {
	return s.cfg.RootAdminID
}
