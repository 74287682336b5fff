package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"financas/internal/amqp"
	"financas/internal/core"
	"financas/internal/storage"
)

// EventPublisher pushes domain events to the broker. Satisfied by
// *amqp.Client; nil disables publishing.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *amqp.Event) error
}

// InvoiceService handles the credit-card invoice payment workflow: paying a
// closed billing period restores the card's available limit by the period's
// total, canceling a payment takes it back.
type InvoiceService struct {
	repo   *storage.Repository
	events EventPublisher
	now    func() time.Time
}

func NewInvoiceService(repo *storage.Repository, events EventPublisher) *InvoiceService {
	return &InvoiceService{
		repo:   repo,
		events: events,
		now:    time.Now,
	}
}

// InvoiceSummary describes one open billing period of a card.
type InvoiceSummary struct {
	Mes       int        `json:"mes"`
	Ano       int        `json:"ano"`
	Total     core.Money `json:"total"`
	DueDate   time.Time  `json:"due_date"`
	CloseDate time.Time  `json:"close_date"`
	Closed    bool       `json:"closed"`
	PodePagar bool       `json:"pode_pagar"`
}

func (s *InvoiceService) creditCard(ctx context.Context, q storage.Querier, userID, cardID int64) (*core.Card, error) {
	card, err := s.repo.GetCard(ctx, q, cardID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, core.NewNotFoundError("card %d not found", cardID)
	}
	if err != nil {
		return nil, err
	}
	if card.Kind != core.CardCredit {
		return nil, core.NewValidationError("card %q is not a credit card", card.Name)
	}
	return card, nil
}

// resolveCompetencia fills in the card's current billing period when the
// request omits mes/ano.
func (s *InvoiceService) resolveCompetencia(card *core.Card, mes, ano int) (core.Competencia, error) {
	if mes == 0 && ano == 0 {
		return core.CurrentCompetencia(s.now(), card.DueDay), nil
	}
	if mes < 1 || mes > 12 || ano < 1 {
		return core.Competencia{}, core.NewValidationError("invalid competência %d/%d", mes, ano)
	}
	return core.Competencia{Mes: mes, Ano: ano}, nil
}

// PaymentReceipt is what PayInvoice hands back: the recorded payment plus
// the close date of the period it settled.
type PaymentReceipt struct {
	core.InvoicePayment
	CloseDate time.Time
}

// PaymentCheck is the dry-run verdict of the payment preconditions.
type PaymentCheck struct {
	CanPay    bool
	Reason    string
	CloseDate time.Time
}

// PayInvoice settles one billing period of a credit card. The period must be
// closed and unpaid; the card's available limit grows back by the period's
// total inside the same transaction that records the payment.
func (s *InvoiceService) PayInvoice(ctx context.Context, userID, cardID int64, mes, ano int) (*PaymentReceipt, error) {
	card, err := s.creditCard(ctx, s.repo.DB(), userID, cardID)
	if err != nil {
		return nil, err
	}
	comp, err := s.resolveCompetencia(card, mes, ano)
	if err != nil {
		return nil, err
	}

	closeDate := core.CloseDate(comp, card.DueDay, card.CloseDaysBefore)
	if s.now().Before(closeDate) {
		return nil, core.NewValidationError("invoice %s only closes on %s",
			comp, closeDate.Format("2006-01-02"))
	}

	payment := &core.InvoicePayment{
		UserID:         userID,
		CardID:         cardID,
		CompetenciaMes: comp.Mes,
		CompetenciaAno: comp.Ano,
	}
	err = s.repo.WithTx(ctx, func(q storage.Querier) error {
		paid, err := s.repo.HasPayment(ctx, q, userID, cardID, comp.Mes, comp.Ano)
		if err != nil {
			return err
		}
		if paid {
			return core.NewConflictError("invoice %s is already paid", comp)
		}

		total, err := s.repo.CompetenciaTotal(ctx, q, userID, cardID, comp.Mes, comp.Ano)
		if err != nil {
			return err
		}
		if total <= 0 {
			return core.NewValidationError("invoice %s has no charges", comp)
		}
		payment.AmountPaid = core.Money{Cents: total}

		if err := s.repo.AdjustAvailableLimit(ctx, q, cardID, userID, total); err != nil {
			return err
		}
		return s.repo.InsertPayment(ctx, q, payment)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Invoice paid",
		"user_id", userID,
		"card_id", cardID,
		"competencia", comp.String(),
		"amount", core.FormatBRL(payment.AmountPaid.Cents))
	s.publish(ctx, amqp.NewEvent(amqp.EventInvoicePaid, userID, payment.ID,
		payment.AmountPaid.Cents, comp.Mes, comp.Ano))
	return &PaymentReceipt{InvoicePayment: *payment, CloseDate: closeDate}, nil
}

// CanPay runs the payment preconditions without mutating anything. Failing a
// precondition is not an error: the verdict carries the refusal reason and
// the period's close date either way.
func (s *InvoiceService) CanPay(ctx context.Context, userID, cardID int64, mes, ano int) (*PaymentCheck, error) {
	card, err := s.creditCard(ctx, s.repo.DB(), userID, cardID)
	if err != nil {
		return nil, err
	}
	comp, err := s.resolveCompetencia(card, mes, ano)
	if err != nil {
		return nil, err
	}

	check := &PaymentCheck{CloseDate: core.CloseDate(comp, card.DueDay, card.CloseDaysBefore)}
	if s.now().Before(check.CloseDate) {
		check.Reason = fmt.Sprintf("invoice %s only closes on %s",
			comp, check.CloseDate.Format("2006-01-02"))
		return check, nil
	}

	paid, err := s.repo.HasPayment(ctx, s.repo.DB(), userID, cardID, comp.Mes, comp.Ano)
	if err != nil {
		return nil, err
	}
	if paid {
		check.Reason = fmt.Sprintf("invoice %s is already paid", comp)
		return check, nil
	}

	total, err := s.repo.CompetenciaTotal(ctx, s.repo.DB(), userID, cardID, comp.Mes, comp.Ano)
	if err != nil {
		return nil, err
	}
	if total <= 0 {
		check.Reason = fmt.Sprintf("invoice %s has no charges", comp)
		return check, nil
	}
	check.CanPay = true
	return check, nil
}

// AvailableInvoices lists the card's unpaid billing periods, oldest first,
// marking which ones are closed and payable today.
func (s *InvoiceService) AvailableInvoices(ctx context.Context, userID, cardID int64) ([]InvoiceSummary, error) {
	card, err := s.creditCard(ctx, s.repo.DB(), userID, cardID)
	if err != nil {
		return nil, err
	}

	unpaid, err := s.repo.UnpaidCompetencias(ctx, s.repo.DB(), userID, cardID)
	if err != nil {
		return nil, err
	}

	today := s.now()
	out := make([]InvoiceSummary, 0, len(unpaid))
	for _, u := range unpaid {
		comp := core.Competencia{Mes: u.Mes, Ano: u.Ano}
		closeDate := core.CloseDate(comp, card.DueDay, card.CloseDaysBefore)
		closed := !today.Before(closeDate)
		out = append(out, InvoiceSummary{
			Mes:       u.Mes,
			Ano:       u.Ano,
			Total:     core.Money{Cents: u.Total},
			DueDate:   core.DueDate(comp, card.DueDay),
			CloseDate: closeDate,
			Closed:    closed,
			PodePagar: closed && u.Total > 0,
		})
	}
	return out, nil
}

// CancelPayment undoes a settled invoice: the payment row is removed and the
// card's available limit shrinks back by the paid amount.
func (s *InvoiceService) CancelPayment(ctx context.Context, userID, cardID int64, mes, ano int) error {
	if _, err := s.creditCard(ctx, s.repo.DB(), userID, cardID); err != nil {
		return err
	}
	if mes < 1 || mes > 12 || ano < 1 {
		return core.NewValidationError("invalid competência %d/%d", mes, ano)
	}

	var amount int64
	var paymentID int64
	err := s.repo.WithTx(ctx, func(q storage.Querier) error {
		payment, err := s.repo.GetPayment(ctx, q, userID, cardID, mes, ano)
		if errors.Is(err, storage.ErrNotFound) {
			return core.NewNotFoundError("no payment found for invoice %02d/%d", mes, ano)
		}
		if err != nil {
			return err
		}
		amount = payment.AmountPaid.Cents
		paymentID = payment.ID

		if err := s.repo.AdjustAvailableLimit(ctx, q, cardID, userID, -amount); err != nil {
			return err
		}
		return s.repo.DeletePayment(ctx, q, userID, cardID, mes, ano)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Invoice payment canceled",
		"user_id", userID,
		"card_id", cardID,
		"competencia", fmt.Sprintf("%02d/%d", mes, ano),
		"amount", core.FormatBRL(amount))
	s.publish(ctx, amqp.NewEvent(amqp.EventInvoiceCanceled, userID, paymentID, amount, mes, ano))
	return nil
}

func (s *InvoiceService) publish(ctx context.Context, ev *amqp.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, ev); err != nil {
		// Payments are durable in SQLite; a lost event only delays the
		// audit trail and the statement export.
		slog.ErrorContext(ctx, "Failed to publish event", "kind", ev.Kind, "error", err)
	}
}
