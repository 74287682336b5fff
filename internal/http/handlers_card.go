package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"financas/internal/core"
)

type cardRequest struct {
	Name            string `json:"nome"`
	Kind            string `json:"tipo"`
	LastDigits      string `json:"ultimos_digitos"`
	Color           string `json:"cor"`
	Limit           string `json:"limite"`
	DueDay          int    `json:"dia_vencimento"`
	CloseDaysBefore int    `json:"dias_fechamento_antes"`
}

type cardResponse struct {
	ID                  int64  `json:"id"`
	Name                string `json:"nome"`
	Kind                string `json:"tipo"`
	LastDigits          string `json:"ultimos_digitos"`
	Color               string `json:"cor,omitempty"`
	LimitCents          int64  `json:"limite_cents"`
	Limit               string `json:"limite"`
	AvailableLimitCents int64  `json:"limite_disponivel_cents"`
	AvailableLimit      string `json:"limite_disponivel"`
	DueDay              int    `json:"dia_vencimento"`
	CloseDaysBefore     int    `json:"dias_fechamento_antes"`
}

func cardToResponse(c core.Card) cardResponse {
	return cardResponse{
		ID:                  c.ID,
		Name:                c.Name,
		Kind:                string(c.Kind),
		LastDigits:          c.LastDigits,
		Color:               c.Color,
		LimitCents:          c.Limit.Cents,
		Limit:               core.FormatBRL(c.Limit.Cents),
		AvailableLimitCents: c.AvailableLimit.Cents,
		AvailableLimit:      core.FormatBRL(c.AvailableLimit.Cents),
		DueDay:              c.DueDay,
		CloseDaysBefore:     c.CloseDaysBefore,
	}
}

func (req cardRequest) toCard(uid int64) (core.Card, error) {
	card := core.Card{
		UserID:          uid,
		Name:            sanitizeInput(req.Name),
		Kind:            core.CardKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		LastDigits:      strings.TrimSpace(req.LastDigits),
		Color:           sanitizeInput(req.Color),
		DueDay:          req.DueDay,
		CloseDaysBefore: req.CloseDaysBefore,
	}
	if strings.TrimSpace(req.Limit) != "" {
		limit, err := parseAmount(req.Limit)
		if err != nil {
			return core.Card{}, err
		}
		card.Limit = limit
	}
	return card, nil
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req cardRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	card, err := req.toCard(uid)
	if err != nil {
		fail(w, err)
		return
	}
	created, err := s.cards.CreateCard(r.Context(), card)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cardToResponse(*created))
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	cards, err := s.cards.ListCards(r.Context(), uid)
	if err != nil {
		fail(w, err)
		return
	}
	out := make([]cardResponse, len(cards))
	for i, c := range cards {
		out[i] = cardToResponse(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		fail(w, err)
		return
	}
	card, err := s.cards.GetCard(r.Context(), uid, id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cardToResponse(*card))
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req cardRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	card, err := req.toCard(uid)
	if err != nil {
		fail(w, err)
		return
	}
	card.ID = id
	updated, err := s.cards.UpdateCard(r.Context(), uid, card)
	if err != nil {
		fail(w, err)
		return
	}
	s.invalidateUserOverviews(uid)
	writeJSON(w, http.StatusOK, cardToResponse(*updated))
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		fail(w, err)
		return
	}
	if err := s.cards.DeleteCard(r.Context(), uid, id); err != nil {
		fail(w, err)
		return
	}
	s.invalidateUserOverviews(uid)
	w.WriteHeader(http.StatusNoContent)
}

type invoiceResponse struct {
	Mes        int    `json:"mes"`
	Ano        int    `json:"ano"`
	TotalCents int64  `json:"total_cents"`
	Total      string `json:"total"`
	DueDate    string `json:"due_date"`
	CloseDate  string `json:"close_date"`
	Closed     bool   `json:"closed"`
	PodePagar  bool   `json:"pode_pagar"`
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	cardID, err := pathID(r)
	if err != nil {
		fail(w, err)
		return
	}
	invoices, err := s.invoices.AvailableInvoices(r.Context(), uid, cardID)
	if err != nil {
		fail(w, err)
		return
	}
	out := make([]invoiceResponse, len(invoices))
	for i, inv := range invoices {
		out[i] = invoiceResponse{
			Mes:        inv.Mes,
			Ano:        inv.Ano,
			TotalCents: inv.Total.Cents,
			Total:      core.FormatBRL(inv.Total.Cents),
			DueDate:    inv.DueDate.Format(dateLayout),
			CloseDate:  inv.CloseDate.Format(dateLayout),
			Closed:     inv.Closed,
			PodePagar:  inv.PodePagar,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type competenciaRequest struct {
	Mes int `json:"mes"`
	Ano int `json:"ano"`
}

// competenciaFromQuery reads mes/ano query parameters, zero when absent.
func competenciaFromQuery(r *http.Request) (mes, ano int) {
	if v := r.URL.Query().Get("mes"); v != "" {
		mes, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("ano"); v != "" {
		ano, _ = strconv.Atoi(v)
	}
	return mes, ano
}

type paymentResponse struct {
	ID           int64  `json:"id"`
	CardID       int64  `json:"card_id"`
	Mes          int    `json:"competencia_mes"`
	Ano          int    `json:"competencia_ano"`
	AmountCents  int64  `json:"amount_paid_cents"`
	Amount       string `json:"amount_paid"`
	FechamentoEm string `json:"fechamento_em"`
	PaidAt       string `json:"paid_at,omitempty"`
}

type canPayResponse struct {
	PodePagar bool   `json:"pode_pagar"`
	Motivo    string `json:"motivo,omitempty"`
	CloseDate string `json:"close_date"`
}

func (s *Server) handlePayInvoice(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	cardID, err := pathID(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req competenciaRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	payment, err := s.invoices.PayInvoice(r.Context(), uid, cardID, req.Mes, req.Ano)
	if err != nil {
		fail(w, err)
		return
	}
	s.invalidateUserOverviews(uid)
	resp := paymentResponse{
		ID:           payment.ID,
		CardID:       payment.CardID,
		Mes:          payment.CompetenciaMes,
		Ano:          payment.CompetenciaAno,
		AmountCents:  payment.AmountPaid.Cents,
		Amount:       core.FormatBRL(payment.AmountPaid.Cents),
		FechamentoEm: payment.CloseDate.Format(dateLayout),
	}
	if !payment.CreatedAt.IsZero() {
		resp.PaidAt = payment.CreatedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleCanPayInvoice(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	cardID, err := pathID(r)
	if err != nil {
		fail(w, err)
		return
	}
	mes, ano := competenciaFromQuery(r)
	check, err := s.invoices.CanPay(r.Context(), uid, cardID, mes, ano)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, canPayResponse{
		PodePagar: check.CanPay,
		Motivo:    check.Reason,
		CloseDate: check.CloseDate.Format(dateLayout),
	})
}

func (s *Server) handleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	cardID, err := pathID(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req competenciaRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	if err := s.invoices.CancelPayment(r.Context(), uid, cardID, req.Mes, req.Ano); err != nil {
		fail(w, err)
		return
	}
	s.invalidateUserOverviews(uid)
	w.WriteHeader(http.StatusNoContent)
}
