package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"zenith-bot/internal/db"
	"zenith-bot/internal/domain"
)

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CreateCode проверяет параметры и создает код.
func (s *Service) CreateCode(ctx context.Context, code string, percent, maxUses int, createdBy int64) (*db.DiscountCode, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, domain.ErrInvalidDiscount
	}
	if err := domain.ValidateDiscountParams(percent, maxUses); err != nil {
		return nil, err
	}
	return s.repo.CreateDiscountCode(ctx, code, percent, maxUses, createdBy)
}

// CreatePersonalCode генерирует код для конкретного пользователя, опционально с пометкой тарифа.
func (s *Service) CreatePersonalCode(ctx context.Context, targetUserID int64, percent, maxUses int, tier string, createdBy int64) (*db.DiscountCode, error) {
	if err := domain.ValidateDiscountParams(percent, maxUses); err != nil {
		return nil, err
	}

	suffix, err := randomHex(s.rand, 3)
	if err != nil {
		return nil, fmt.Errorf("generate code suffix: %w", err)
	}
	code := fmt.Sprintf("DISC_%d_%d_%s", targetUserID, s.now().Unix(), suffix)
	if tier != "" {
		t, err := domain.ParseTier(tier)
		if err != nil {
			return nil, err
		}
		code += "_" + t.String()
	}
	return s.repo.CreateDiscountCode(ctx, normalizeCode(code), percent, maxUses, createdBy)
}

func randomHex(r io.Reader, n int) (string, error) {
	bytes := make([]byte, n)
	if _, err := io.ReadFull(r, bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// ApplyCode привязывает код к пользователю до покупки. used_count не меняется.
func (s *Service) ApplyCode(ctx context.Context, userID int64, rawCode string) (*db.DiscountCode, error) {
	code := normalizeCode(rawCode)
	if code == "" {
		return nil, domain.ErrNotFound
	}

	var applied *db.DiscountCode
	err := s.repo.Transaction(ctx, func(tx *db.Repository) error {
		dc, err := tx.GetDiscountCode(ctx, code)
		if err != nil {
			return err
		}
		if dc.UsedCount >= dc.MaxUses {
			return domain.ErrDiscountExhausted
		}

		has, err := tx.HasUnusedDiscount(ctx, userID)
		if err != nil {
			return err
		}
		if has {
			_, err := tx.GetUserActiveDiscount(ctx, userID)
			if err == nil {
				return domain.ErrDiscountAlreadyApplied
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			// код заявки деактивирован, такую заявку можно заменить
			if _, err := tx.CancelUserDiscount(ctx, userID); err != nil {
				return err
			}
		}

		if err := tx.ApplyDiscountToUser(ctx, userID, dc.Code); err != nil {
			return err
		}
		applied = dc
		return nil
	})
	return applied, err
}

func (s *Service) ActiveDiscount(ctx context.Context, userID int64) (*db.ActiveDiscount, error) {
	return s.repo.GetUserActiveDiscount(ctx, userID)
}

func (s *Service) DeleteCode(ctx context.Context, code string) (bool, error) {
	return s.repo.DeleteDiscountCode(ctx, normalizeCode(code))
}

func (s *Service) DeactivateCode(ctx context.Context, code string) (bool, error) {
	return s.repo.DeactivateDiscountCode(ctx, normalizeCode(code))
}

func (s *Service) ListCodes(ctx context.Context) ([]db.DiscountCode, error) {
	return s.repo.ListDiscountCodes(ctx)
}
