package http

import (
	"net/http"

	"financas/internal/core"
)

type categoryAmountJSON struct {
	Name        string `json:"nome"`
	AmountCents int64  `json:"quantidade_cents"`
	Amount      string `json:"quantidade"`
}

type cardUsageJSON struct {
	CardID              int64  `json:"card_id"`
	Name                string `json:"nome"`
	LimitCents          int64  `json:"limite_cents"`
	AvailableLimitCents int64  `json:"limite_disponivel_cents"`
	UnpaidTotalCents    int64  `json:"total_aberto_cents"`
	UnpaidTotal         string `json:"total_aberto"`
}

type overviewResponse struct {
	Year               int                  `json:"year"`
	Month              int                  `json:"month"`
	TotalExpensesCents int64                `json:"total_despesas_cents"`
	TotalExpenses      string               `json:"total_despesas"`
	TotalIncomesCents  int64                `json:"total_receitas_cents"`
	TotalIncomes       string               `json:"total_receitas"`
	BalanceCents       int64                `json:"saldo_cents"`
	Balance            string               `json:"saldo"`
	ByTipo             []categoryAmountJSON `json:"por_tipo"`
	Cards              []cardUsageJSON      `json:"cartoes"`
}

func overviewToResponse(o core.MonthOverview) overviewResponse {
	resp := overviewResponse{
		Year:               o.Year,
		Month:              o.Month,
		TotalExpensesCents: o.TotalExpenses.Cents,
		TotalExpenses:      core.FormatBRL(o.TotalExpenses.Cents),
		TotalIncomesCents:  o.TotalIncomes.Cents,
		TotalIncomes:       core.FormatBRL(o.TotalIncomes.Cents),
		BalanceCents:       o.Balance.Cents,
		Balance:            core.FormatBRL(o.Balance.Cents),
		ByTipo:             make([]categoryAmountJSON, len(o.ByTipo)),
		Cards:              make([]cardUsageJSON, len(o.Cards)),
	}
	for i, c := range o.ByTipo {
		resp.ByTipo[i] = categoryAmountJSON{
			Name:        c.Name,
			AmountCents: c.Amount.Cents,
			Amount:      core.FormatBRL(c.Amount.Cents),
		}
	}
	for i, c := range o.Cards {
		resp.Cards[i] = cardUsageJSON{
			CardID:              c.CardID,
			Name:                c.Name,
			LimitCents:          c.Limit.Cents,
			AvailableLimitCents: c.AvailableLimit.Cents,
			UnpaidTotalCents:    c.UnpaidTotal.Cents,
			UnpaidTotal:         core.FormatBRL(c.UnpaidTotal.Cents),
		}
	}
	return resp
}

// handleDashboard serves the month aggregation, cached per user and month.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	year, month := parseYearMonth(r)
	if month < 1 || month > 12 {
		fail(w, core.NewValidationError("month must be between 1 and 12"))
		return
	}

	key := overviewCacheKey(uid, year, month)
	if overview, ok := s.overviewCache.Get(key); ok {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, overviewToResponse(overview))
		return
	}

	overview, err := s.repo.MonthOverview(r.Context(), s.repo.DB(), uid, year, month)
	if err != nil {
		fail(w, err)
		return
	}
	s.overviewCache.Set(key, overview)
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, overviewToResponse(overview))
}
