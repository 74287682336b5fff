package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"financas/internal/amqp"
	"financas/internal/core"
	"financas/internal/storage"
)

// ExpenseService orchestrates the expense lifecycle. A create fans out into
// one of four shapes (plain, single credit charge, installment series, fixed
// series) and keeps the card's available limit in sync inside the same
// transaction that writes the rows.
type ExpenseService struct {
	repo   *storage.Repository
	events EventPublisher
}

func NewExpenseService(repo *storage.Repository, events EventPublisher) *ExpenseService {
	return &ExpenseService{
		repo:   repo,
		events: events,
	}
}

// CreateExpense validates and persists an expense, expanding installments and
// fixed replicas into their own rows. The created rows are returned with the
// anchor row first.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) ([]core.Expense, error) {
	if err := e.Validate(); err != nil {
		return nil, core.NewValidationError("%s", err.Error())
	}
	if e.Method.IsCredit() && e.CardID == 0 {
		return nil, core.NewValidationError("credit expenses require a card")
	}

	var card *core.Card
	if e.CardID != 0 {
		var err error
		card, err = s.repo.GetCard(ctx, s.repo.DB(), e.CardID, e.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, core.NewNotFoundError("card %d not found", e.CardID)
		}
		if err != nil {
			return nil, err
		}
		if e.Method.IsCredit() && card.Kind != core.CardCredit {
			return nil, core.NewValidationError("card %q is not a credit card", card.Name)
		}
		if e.Method.IsCredit() && e.Amount.Cents > card.AvailableLimit.Cents {
			return nil, core.NewValidationError("amount %s exceeds available limit %s",
				core.FormatBRL(e.Amount.Cents), core.FormatBRL(card.AvailableLimit.Cents))
		}
	}

	var created []core.Expense
	err := s.repo.WithTx(ctx, func(q storage.Querier) error {
		var err error
		switch {
		case e.IsCardLinked() && e.Parcelas > 1:
			created, err = s.createInstallments(ctx, q, e, card)
		case e.Fixed:
			created, err = s.createFixedSeries(ctx, q, e, card)
		case e.IsCardLinked():
			created, err = s.createCreditCharge(ctx, q, e, card)
		default:
			created, err = s.createPlain(ctx, q, e)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Expense created",
		"user_id", e.UserID,
		"tipo", e.Tipo,
		"amount", core.FormatBRL(e.Amount.Cents),
		"rows", len(created))
	s.publish(ctx, amqp.NewEvent(amqp.EventExpenseCreated, e.UserID, created[0].ID,
		e.Amount.Cents, created[0].CompetenciaMes, created[0].CompetenciaAno))
	return created, nil
}

// createPlain inserts the expense as a single row. A parcelas count on a
// non-card expense is kept as metadata only; nothing splits or touches a
// limit.
func (s *ExpenseService) createPlain(ctx context.Context, q storage.Querier, e core.Expense) ([]core.Expense, error) {
	if e.Parcelas < 1 {
		e.Parcelas = 1
	}
	if err := s.repo.InsertExpense(ctx, q, &e); err != nil {
		return nil, err
	}
	return []core.Expense{e}, nil
}

// createCreditCharge books a single credit purchase into its billing period
// and consumes the card's available limit.
func (s *ExpenseService) createCreditCharge(ctx context.Context, q storage.Querier, e core.Expense, card *core.Card) ([]core.Expense, error) {
	comp := core.CalculateCompetencia(e.Date, card.DueDay, card.CloseDaysBefore)
	if err := s.requireOpenCompetencia(ctx, q, e.UserID, card.ID, comp); err != nil {
		return nil, err
	}
	e.CompetenciaMes, e.CompetenciaAno = comp.Mes, comp.Ano

	if err := s.repo.InsertExpense(ctx, q, &e); err != nil {
		return nil, err
	}
	if err := s.repo.AdjustAvailableLimit(ctx, q, card.ID, e.UserID, -e.Amount.Cents); err != nil {
		return nil, err
	}
	return []core.Expense{e}, nil
}

// createInstallments splits the total into N monthly rows sharing one series
// id. The card's limit is consumed once by the full total, not per month.
func (s *ExpenseService) createInstallments(ctx context.Context, q storage.Querier, e core.Expense, card *core.Card) ([]core.Expense, error) {
	seriesID := uuid.NewString()
	parts := core.SplitInstallments(e.Amount, e.Parcelas)

	created := make([]core.Expense, 0, e.Parcelas)
	for i := 0; i < e.Parcelas; i++ {
		row := e
		row.ID = 0
		row.SeriesID = seriesID
		row.Amount = parts[i]
		row.Tipo = fmt.Sprintf("%s (%d/%d)", e.Tipo, i+1, e.Parcelas)
		row.Date = core.AddMonthsClamped(e.Date, i)

		comp := core.CalculateCompetencia(row.Date, card.DueDay, card.CloseDaysBefore)
		if err := s.requireOpenCompetencia(ctx, q, e.UserID, card.ID, comp); err != nil {
			return nil, err
		}
		row.CompetenciaMes, row.CompetenciaAno = comp.Mes, comp.Ano

		if err := s.repo.InsertExpense(ctx, q, &row); err != nil {
			return nil, err
		}
		created = append(created, row)
	}

	if err := s.repo.AdjustAvailableLimit(ctx, q, card.ID, e.UserID, -e.Amount.Cents); err != nil {
		return nil, err
	}
	return created, nil
}

// createFixedSeries writes the base row plus one replica per remaining month
// of the year. When the expense is card-linked only the base row consumes the
// limit; each replica settles through its own invoice later.
func (s *ExpenseService) createFixedSeries(ctx context.Context, q storage.Querier, e core.Expense, card *core.Card) ([]core.Expense, error) {
	e.SeriesID = uuid.NewString()
	e.Parcelas = 1

	credit := e.IsCardLinked() && card != nil
	if credit {
		comp := core.CalculateCompetencia(e.Date, card.DueDay, card.CloseDaysBefore)
		if err := s.requireOpenCompetencia(ctx, q, e.UserID, card.ID, comp); err != nil {
			return nil, err
		}
		e.CompetenciaMes, e.CompetenciaAno = comp.Mes, comp.Ano
	}
	if err := s.repo.InsertExpense(ctx, q, &e); err != nil {
		return nil, err
	}
	created := []core.Expense{e}

	for _, date := range core.ReplicaDates(e.Date) {
		row := e
		row.ID = 0
		row.Date = date
		row.CompetenciaMes, row.CompetenciaAno = 0, 0
		if credit {
			comp := core.CalculateCompetencia(date, card.DueDay, card.CloseDaysBefore)
			paid, err := s.repo.HasPayment(ctx, q, e.UserID, card.ID, comp.Mes, comp.Ano)
			if err != nil {
				return nil, err
			}
			if paid {
				continue
			}
			row.CompetenciaMes, row.CompetenciaAno = comp.Mes, comp.Ano
		}
		if err := s.repo.InsertExpense(ctx, q, &row); err != nil {
			return nil, err
		}
		created = append(created, row)
	}

	if credit {
		if err := s.repo.AdjustAvailableLimit(ctx, q, card.ID, e.UserID, -e.Amount.Cents); err != nil {
			return nil, err
		}
	}
	return created, nil
}

// requireOpenCompetencia rejects charges aimed at a billing period whose
// invoice was already paid. A settled invoice is immutable.
func (s *ExpenseService) requireOpenCompetencia(ctx context.Context, q storage.Querier, userID, cardID int64, comp core.Competencia) error {
	paid, err := s.repo.HasPayment(ctx, q, userID, cardID, comp.Mes, comp.Ano)
	if err != nil {
		return err
	}
	if paid {
		return core.NewConflictError("competência %02d/%d is already paid, cannot add expenses", comp.Mes, comp.Ano)
	}
	return nil
}

func (s *ExpenseService) GetExpense(ctx context.Context, userID, id int64) (*core.Expense, error) {
	e, err := s.repo.GetExpense(ctx, s.repo.DB(), id, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, core.NewNotFoundError("expense %d not found", id)
	}
	return e, err
}

func (s *ExpenseService) ListExpenses(ctx context.Context, userID int64, year, month int) ([]core.Expense, error) {
	return s.repo.ListExpensesByMonth(ctx, s.repo.DB(), userID, year, month)
}

// UpdateExpense edits a non-credit expense in place. When the row anchors a
// fixed series the edit cascades to the later rows of the same year. The
// pre-image is kept in the audit table.
func (s *ExpenseService) UpdateExpense(ctx context.Context, userID int64, e core.Expense) (*core.Expense, error) {
	if err := e.Validate(); err != nil {
		return nil, core.NewValidationError("%s", err.Error())
	}

	existing, err := s.GetExpense(ctx, userID, e.ID)
	if err != nil {
		return nil, err
	}
	if existing.Method.IsCredit() {
		return nil, core.NewValidationError("credit expenses cannot be edited; delete and recreate instead")
	}
	if e.Method.IsCredit() {
		return nil, core.NewValidationError("an expense cannot be switched to the credit method")
	}

	updated := *existing
	updated.Tipo = e.Tipo
	updated.Amount = e.Amount
	updated.Method = e.Method
	updated.Date = e.Date
	updated.Frequency = e.Frequency
	updated.CategoryID = e.CategoryID
	updated.Notes = e.Notes

	err = s.repo.WithTx(ctx, func(q storage.Querier) error {
		snapshot, err := json.Marshal(existing)
		if err != nil {
			return fmt.Errorf("marshal audit snapshot: %w", err)
		}
		if err := s.repo.InsertAudit(ctx, q, userID, existing.ID, "update", snapshot); err != nil {
			return err
		}
		if err := s.repo.UpdateExpense(ctx, q, &updated); err != nil {
			return err
		}
		if existing.Fixed && existing.SeriesID != "" {
			return s.repo.UpdateSeriesAfter(ctx, q, &updated)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Expense updated",
		"user_id", userID,
		"expense_id", existing.ID,
		"series_id", existing.SeriesID)
	s.publish(ctx, amqp.NewEvent(amqp.EventExpenseUpdated, userID, existing.ID,
		updated.Amount.Cents, 0, 0))
	return &updated, nil
}

// DeleteExpense removes an expense. Series members fall together, and the
// card's available limit gets back whatever the deleted rows had consumed
// from billing periods that were never paid.
func (s *ExpenseService) DeleteExpense(ctx context.Context, userID, id int64) error {
	existing, err := s.GetExpense(ctx, userID, id)
	if err != nil {
		return err
	}

	err = s.repo.WithTx(ctx, func(q storage.Querier) error {
		rows := []core.Expense{*existing}
		if existing.SeriesID != "" {
			rows, err = s.repo.ListSeries(ctx, q, userID, existing.SeriesID)
			if err != nil {
				return err
			}
		}

		refund, err := s.creditRefund(ctx, q, userID, rows)
		if err != nil {
			return err
		}
		if refund > 0 {
			if err := s.repo.AdjustAvailableLimit(ctx, q, existing.CardID, userID, refund); err != nil {
				return err
			}
		}

		snapshot, err := json.Marshal(existing)
		if err != nil {
			return fmt.Errorf("marshal audit snapshot: %w", err)
		}
		if err := s.repo.InsertAudit(ctx, q, userID, existing.ID, "delete", snapshot); err != nil {
			return err
		}

		if existing.SeriesID != "" {
			return s.repo.DeleteSeries(ctx, q, userID, existing.SeriesID)
		}
		return s.repo.DeleteExpense(ctx, q, id, userID)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Expense deleted",
		"user_id", userID,
		"expense_id", id,
		"series_id", existing.SeriesID)
	s.publish(ctx, amqp.NewEvent(amqp.EventExpenseDeleted, userID, id,
		existing.Amount.Cents, existing.CompetenciaMes, existing.CompetenciaAno))
	return nil
}

// creditRefund computes how much available limit the deleted rows give back.
// Only rows that consumed the limit count: every installment row, a single
// charge, or the base row of a fixed series. Rows whose billing period was
// already paid had their amount restored by the payment and are skipped.
func (s *ExpenseService) creditRefund(ctx context.Context, q storage.Querier, userID int64, rows []core.Expense) (int64, error) {
	var refund int64
	fixedBaseSeen := false
	for _, row := range rows {
		if !row.IsCardLinked() {
			continue
		}
		if row.Fixed {
			// Rows are date-ordered; only the first row of a fixed
			// series consumed the limit.
			if fixedBaseSeen {
				continue
			}
			fixedBaseSeen = true
		}
		if row.CompetenciaMes == 0 {
			continue
		}
		paid, err := s.repo.HasPayment(ctx, q, userID, row.CardID, row.CompetenciaMes, row.CompetenciaAno)
		if err != nil {
			return 0, err
		}
		if paid {
			continue
		}
		refund += row.Amount.Cents
	}
	return refund, nil
}

func (s *ExpenseService) publish(ctx context.Context, ev *amqp.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish event", "kind", ev.Kind, "error", err)
	}
}
