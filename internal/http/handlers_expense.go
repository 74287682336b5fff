package http

import (
	"net/http"

	"financas/internal/core"
)

type expenseRequest struct {
	Tipo       string `json:"tipo"`
	Amount     string `json:"quantidade"`
	Method     string `json:"metodo_pagamento"`
	Fixed      bool   `json:"fixo"`
	Date       string `json:"data"`
	Parcelas   int    `json:"parcelas"`
	Frequency  string `json:"frequencia"`
	CardID     int64  `json:"card_id"`
	CategoryID int64  `json:"category_id"`
	Notes      string `json:"observacoes"`
}

type expenseResponse struct {
	ID             int64  `json:"id"`
	Tipo           string `json:"tipo"`
	AmountCents    int64  `json:"quantidade_cents"`
	Amount         string `json:"quantidade"`
	Method         string `json:"metodo_pagamento"`
	Fixed          bool   `json:"fixo"`
	Date           string `json:"data"`
	Parcelas       int    `json:"parcelas"`
	Frequency      string `json:"frequencia,omitempty"`
	CardID         int64  `json:"card_id,omitempty"`
	CategoryID     int64  `json:"category_id,omitempty"`
	Notes          string `json:"observacoes,omitempty"`
	SeriesID       string `json:"series_id,omitempty"`
	CompetenciaMes int    `json:"competencia_mes,omitempty"`
	CompetenciaAno int    `json:"competencia_ano,omitempty"`
}

func expenseToResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:             e.ID,
		Tipo:           e.Tipo,
		AmountCents:    e.Amount.Cents,
		Amount:         core.FormatBRL(e.Amount.Cents),
		Method:         string(e.Method),
		Fixed:          e.Fixed,
		Date:           e.Date.Format(dateLayout),
		Parcelas:       e.Parcelas,
		Frequency:      e.Frequency,
		CardID:         e.CardID,
		CategoryID:     e.CategoryID,
		Notes:          e.Notes,
		SeriesID:       e.SeriesID,
		CompetenciaMes: e.CompetenciaMes,
		CompetenciaAno: e.CompetenciaAno,
	}
}

func (req expenseRequest) toExpense(uid int64) (core.Expense, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.Expense{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return core.Expense{}, err
	}
	method, err := core.ParsePaymentMethod(req.Method)
	if err != nil {
		return core.Expense{}, core.NewValidationError("invalid payment method %q", req.Method)
	}
	parcelas := req.Parcelas
	if parcelas == 0 {
		parcelas = 1
	}
	return core.Expense{
		UserID:     uid,
		Tipo:       sanitizeInput(req.Tipo),
		Amount:     amount,
		Method:     method,
		Fixed:      req.Fixed,
		Date:       date,
		Parcelas:   parcelas,
		Frequency:  sanitizeInput(req.Frequency),
		CardID:     req.CardID,
		CategoryID: req.CategoryID,
		Notes:      sanitizeInput(req.Notes),
	}, nil
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	expense, err := req.toExpense(uid)
	if err != nil {
		fail(w, err)
		return
	}
	rows, err := s.expenses.CreateExpense(r.Context(), expense)
	if err != nil {
		fail(w, err)
		return
	}
	out := make([]expenseResponse, len(rows))
	for i, row := range rows {
		out[i] = expenseToResponse(row)
		s.invalidateOverview(uid, row.Date.Year(), int(row.Date.Month()))
	}
	if len(rows) > 0 && rows[0].IsCardLinked() {
		// The charge moved the card's available limit, which renders in
		// every cached month.
		s.invalidateUserOverviews(uid)
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	year, month := parseYearMonth(r)
	rows, err := s.expenses.ListExpenses(r.Context(), uid, year, month)
	if err != nil {
		fail(w, err)
		return
	}
	out := make([]expenseResponse, len(rows))
	for i, row := range rows {
		out[i] = expenseToResponse(row)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
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
	expense, err := s.expenses.GetExpense(r.Context(), uid, id)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expenseToResponse(*expense))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
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
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	expense, err := req.toExpense(uid)
	if err != nil {
		fail(w, err)
		return
	}
	expense.ID = id
	updated, err := s.expenses.UpdateExpense(r.Context(), uid, expense)
	if err != nil {
		fail(w, err)
		return
	}
	s.invalidateOverview(uid, updated.Date.Year(), int(updated.Date.Month()))
	if updated.IsCardLinked() {
		s.invalidateUserOverviews(uid)
	}
	writeJSON(w, http.StatusOK, expenseToResponse(*updated))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
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
	expense, err := s.expenses.GetExpense(r.Context(), uid, id)
	if err != nil {
		fail(w, err)
		return
	}
	if err := s.expenses.DeleteExpense(r.Context(), uid, id); err != nil {
		fail(w, err)
		return
	}
	s.invalidateOverview(uid, expense.Date.Year(), int(expense.Date.Month()))
	if expense.IsCardLinked() {
		s.invalidateUserOverviews(uid)
	}
	w.WriteHeader(http.StatusNoContent)
}
