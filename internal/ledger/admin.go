package ledger

import (
	"context"
	"errors"
	"time"

	"zenith-bot/internal/domain"
)

// AdminEntry строка списка администраторов
type AdminEntry struct {
	UserID   int64
	Username string
	Root     bool
	AddedBy  int64
	AddedAt  time.Time
}

func (s *Service) IsRoot(userID int64) bool {
	return s.cfg.RootAdminID != 0 && userID == s.cfg.RootAdminID
}

func (s *Service) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if s.IsRoot(userID) {
		return true, nil
	}
	return s.repo.IsAdminGrant(ctx, userID)
}

// AddAdmin возвращает false, если права уже были выданы.
func (s *Service) AddAdmin(ctx context.Context, userID, addedBy int64) (bool, error) {
	if s.IsRoot(userID) {
		return false, domain.ErrRootAdmin
	}
	return s.repo.AddAdmin(ctx, userID, addedBy)
}

// AddAdminByUsername требует, чтобы пользователь уже запускал бота.
func (s *Service) AddAdminByUsername(ctx context.Context, username string, addedBy int64) (int64, bool, error) {
	userID, err := s.repo.UserIDByUsername(ctx, username)
	if err != nil {
		return 0, false, err
	}
	added, err := s.AddAdmin(ctx, userID, addedBy)
	return userID, added, err
}

// RemoveAdmin никогда не трогает root-админа.
func (s *Service) RemoveAdmin(ctx context.Context, userID int64) (bool, error) {
	if s.IsRoot(userID) {
		return false, domain.ErrRootAdmin
	}
	return s.repo.RemoveAdmin(ctx, userID)
}

// ListAdmins root первым, затем выданные права по дате.
func (s *Service) ListAdmins(ctx context.Context) ([]AdminEntry, error) {
	grants, err := s.repo.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}

	var entries []AdminEntry
	if s.cfg.RootAdminID != 0 {
		entries = append(entries, AdminEntry{
			UserID:   s.cfg.RootAdminID,
			Username: s.usernameOf(ctx, s.cfg.RootAdminID),
			Root:     true,
		})
	}
	for _, g := range grants {
		if s.IsRoot(g.UserID) {
			continue
		}
		entries = append(entries, AdminEntry{
			UserID:   g.UserID,
			Username: s.usernameOf(ctx, g.UserID),
			AddedBy:  g.AddedBy,
			AddedAt:  g.AddedAt,
		})
	}
	return entries, nil
}

func (s *Service) usernameOf(ctx context.Context, userID int64) string {
	user, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) || err != nil {
		return ""
	}
	return user.Username
}
