package services

import (
	"context"
	"errors"
	"log/slog"

	"financas/internal/core"
	"financas/internal/storage"
)

// CardService manages cards. The available limit is owned by the expense and
// invoice flows; here it is only seeded on create and shifted when the total
// limit itself changes.
type CardService struct {
	repo *storage.Repository
}

func NewCardService(repo *storage.Repository) *CardService {
	return &CardService{repo: repo}
}

func (s *CardService) CreateCard(ctx context.Context, c core.Card) (*core.Card, error) {
	if c.Kind == core.CardCredit && c.CloseDaysBefore == 0 {
		c.CloseDaysBefore = core.DefaultCloseDaysBefore
	}
	if err := c.Validate(); err != nil {
		return nil, core.NewValidationError("%s", err.Error())
	}

	// A new card has no charges, so the whole limit is available.
	c.AvailableLimit = c.Limit
	if err := s.repo.CreateCard(ctx, s.repo.DB(), &c); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Card created",
		"user_id", c.UserID,
		"card_id", c.ID,
		"name", c.Name,
		"kind", string(c.Kind))
	return &c, nil
}

func (s *CardService) GetCard(ctx context.Context, userID, id int64) (*core.Card, error) {
	card, err := s.repo.GetCard(ctx, s.repo.DB(), id, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, core.NewNotFoundError("card %d not found", id)
	}
	return card, err
}

func (s *CardService) ListCards(ctx context.Context, userID int64) ([]core.Card, error) {
	return s.repo.ListCards(ctx, s.repo.DB(), userID)
}

// UpdateCard applies edits and carries a limit change through to the
// available balance, so raising the limit by R$500 frees R$500.
func (s *CardService) UpdateCard(ctx context.Context, userID int64, c core.Card) (*core.Card, error) {
	if err := c.Validate(); err != nil {
		return nil, core.NewValidationError("%s", err.Error())
	}

	var updated *core.Card
	err := s.repo.WithTx(ctx, func(q storage.Querier) error {
		existing, err := s.repo.GetCard(ctx, q, c.ID, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return core.NewNotFoundError("card %d not found", c.ID)
		}
		if err != nil {
			return err
		}

		next := *existing
		next.Name = c.Name
		next.Kind = c.Kind
		next.LastDigits = c.LastDigits
		next.Color = c.Color
		next.DueDay = c.DueDay
		next.CloseDaysBefore = c.CloseDaysBefore
		next.Limit = c.Limit
		next.AvailableLimit.Cents += c.Limit.Cents - existing.Limit.Cents

		if err := s.repo.UpdateCard(ctx, q, &next); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Card updated", "user_id", userID, "card_id", c.ID)
	return updated, nil
}

// DeleteCard removes the card together with its charges and payment history.
func (s *CardService) DeleteCard(ctx context.Context, userID, id int64) error {
	err := s.repo.WithTx(ctx, func(q storage.Querier) error {
		if _, err := s.repo.GetCard(ctx, q, id, userID); errors.Is(err, storage.ErrNotFound) {
			return core.NewNotFoundError("card %d not found", id)
		} else if err != nil {
			return err
		}
		if err := s.repo.DeleteExpensesByCard(ctx, q, id, userID); err != nil {
			return err
		}
		if err := s.repo.DeletePaymentsByCard(ctx, q, id, userID); err != nil {
			return err
		}
		return s.repo.DeleteCard(ctx, q, id, userID)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Card deleted", "user_id", userID, "card_id", id)
	return nil
}
