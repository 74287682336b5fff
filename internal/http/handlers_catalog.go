package http

import (
	"errors"
	"net/http"
	"strings"

	"financas/internal/core"
	"financas/internal/storage"
)

// mapStoreErr turns storage row misses into 404s for the thin CRUD
// handlers that talk to the repository directly.
func mapStoreErr(err error, what string, id int64) error {
	if errors.Is(err, storage.ErrNotFound) {
		return core.NewNotFoundError("%s %d not found", what, id)
	}
	return err
}

type incomeRequest struct {
	Descricao  string `json:"descricao"`
	Amount     string `json:"quantidade"`
	Date       string `json:"data"`
	Fixed      bool   `json:"fixo"`
	CategoryID int64  `json:"category_id"`
}

type incomeResponse struct {
	ID          int64  `json:"id"`
	Descricao   string `json:"descricao"`
	AmountCents int64  `json:"quantidade_cents"`
	Amount      string `json:"quantidade"`
	Date        string `json:"data"`
	Fixed       bool   `json:"fixo"`
	CategoryID  int64  `json:"category_id,omitempty"`
}

func incomeToResponse(in core.Income) incomeResponse {
	return incomeResponse{
		ID:          in.ID,
		Descricao:   in.Descricao,
		AmountCents: in.Amount.Cents,
		Amount:      core.FormatBRL(in.Amount.Cents),
		Date:        in.Date.Format(dateLayout),
		Fixed:       in.Fixed,
		CategoryID:  in.CategoryID,
	}
}

func (req incomeRequest) toIncome(uid int64) (core.Income, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.Income{}, err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return core.Income{}, err
	}
	return core.Income{
		UserID:     uid,
		Descricao:  sanitizeInput(req.Descricao),
		Amount:     amount,
		Date:       date,
		Fixed:      req.Fixed,
		CategoryID: req.CategoryID,
	}, nil
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req incomeRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	income, err := req.toIncome(uid)
	if err != nil {
		fail(w, err)
		return
	}
	if err := income.Validate(); err != nil {
		fail(w, core.NewValidationError("%v", err))
		return
	}
	if err := s.repo.CreateIncome(r.Context(), s.repo.DB(), &income); err != nil {
		fail(w, err)
		return
	}
	s.invalidateOverview(uid, income.Date.Year(), int(income.Date.Month()))
	writeJSON(w, http.StatusCreated, incomeToResponse(income))
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	year, month := parseYearMonth(r)
	rows, err := s.repo.ListIncomesByMonth(r.Context(), s.repo.DB(), uid, year, month)
	if err != nil {
		fail(w, err)
		return
	}
	out := make([]incomeResponse, len(rows))
	for i, row := range rows {
		out[i] = incomeToResponse(row)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
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
	var req incomeRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	income, err := req.toIncome(uid)
	if err != nil {
		fail(w, err)
		return
	}
	income.ID = id
	if err := income.Validate(); err != nil {
		fail(w, core.NewValidationError("%v", err))
		return
	}
	if err := s.repo.UpdateIncome(r.Context(), s.repo.DB(), &income); err != nil {
		fail(w, mapStoreErr(err, "income", id))
		return
	}
	s.invalidateOverview(uid, income.Date.Year(), int(income.Date.Month()))
	writeJSON(w, http.StatusOK, incomeToResponse(income))
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
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
	if err := s.repo.DeleteIncome(r.Context(), s.repo.DB(), id, uid); err != nil {
		fail(w, mapStoreErr(err, "income", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categoryRequest struct {
	Name  string `json:"nome"`
	Kind  string `json:"tipo"`
	Color string `json:"cor"`
}

type categoryResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"nome"`
	Kind  string `json:"tipo"`
	Color string `json:"cor,omitempty"`
}

func (req categoryRequest) toCategory(uid int64) (core.Category, error) {
	name := sanitizeInput(req.Name)
	if name == "" {
		return core.Category{}, core.NewValidationError("empty category name")
	}
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if kind != "expense" && kind != "income" {
		return core.Category{}, core.NewValidationError("category kind must be expense or income")
	}
	return core.Category{UserID: uid, Name: name, Kind: kind, Color: sanitizeInput(req.Color)}, nil
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	category, err := req.toCategory(uid)
	if err != nil {
		fail(w, err)
		return
	}
	if err := s.repo.CreateCategory(r.Context(), s.repo.DB(), &category); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryResponse{ID: category.ID, Name: category.Name, Kind: category.Kind, Color: category.Color})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	rows, err := s.repo.ListCategories(r.Context(), s.repo.DB(), uid)
	if err != nil {
		fail(w, err)
		return
	}
	out := make([]categoryResponse, len(rows))
	for i, c := range rows {
		out[i] = categoryResponse{ID: c.ID, Name: c.Name, Kind: c.Kind, Color: c.Color}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
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
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	category, err := req.toCategory(uid)
	if err != nil {
		fail(w, err)
		return
	}
	category.ID = id
	if err := s.repo.UpdateCategory(r.Context(), s.repo.DB(), &category); err != nil {
		fail(w, mapStoreErr(err, "category", id))
		return
	}
	writeJSON(w, http.StatusOK, categoryResponse{ID: category.ID, Name: category.Name, Kind: category.Kind, Color: category.Color})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
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
	if err := s.repo.DeleteCategory(r.Context(), s.repo.DB(), id, uid); err != nil {
		fail(w, mapStoreErr(err, "category", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type thresholdRequest struct {
	CategoryID int64  `json:"category_id"`
	Mes        int    `json:"mes"`
	Ano        int    `json:"ano"`
	Limit      string `json:"limite"`
}

type thresholdResponse struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"category_id"`
	Mes        int    `json:"mes"`
	Ano        int    `json:"ano"`
	LimitCents int64  `json:"limite_cents"`
	Limit      string `json:"limite"`
}

func (req thresholdRequest) toThreshold(uid int64) (core.Threshold, error) {
	if req.CategoryID <= 0 {
		return core.Threshold{}, core.NewValidationError("category_id is required")
	}
	if req.Mes < 1 || req.Mes > 12 {
		return core.Threshold{}, core.NewValidationError("mes must be between 1 and 12")
	}
	if req.Ano < 2000 || req.Ano > 2200 {
		return core.Threshold{}, core.NewValidationError("ano out of range")
	}
	limit, err := parseAmount(req.Limit)
	if err != nil {
		return core.Threshold{}, err
	}
	return core.Threshold{UserID: uid, CategoryID: req.CategoryID, Mes: req.Mes, Ano: req.Ano, Limit: limit}, nil
}

func thresholdToResponse(t core.Threshold) thresholdResponse {
	return thresholdResponse{
		ID:         t.ID,
		CategoryID: t.CategoryID,
		Mes:        t.Mes,
		Ano:        t.Ano,
		LimitCents: t.Limit.Cents,
		Limit:      core.FormatBRL(t.Limit.Cents),
	}
}

func (s *Server) handleCreateThreshold(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req thresholdRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	threshold, err := req.toThreshold(uid)
	if err != nil {
		fail(w, err)
		return
	}
	if err := s.repo.CreateThreshold(r.Context(), s.repo.DB(), &threshold); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, thresholdToResponse(threshold))
}

func (s *Server) handleListThresholds(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	year, month := parseYearMonth(r)
	rows, err := s.repo.ListThresholds(r.Context(), s.repo.DB(), uid, month, year)
	if err != nil {
		fail(w, err)
		return
	}
	out := make([]thresholdResponse, len(rows))
	for i, t := range rows {
		out[i] = thresholdToResponse(t)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateThreshold(w http.ResponseWriter, r *http.Request) {
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
	var req thresholdRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	threshold, err := req.toThreshold(uid)
	if err != nil {
		fail(w, err)
		return
	}
	threshold.ID = id
	if err := s.repo.UpdateThreshold(r.Context(), s.repo.DB(), &threshold); err != nil {
		fail(w, mapStoreErr(err, "threshold", id))
		return
	}
	writeJSON(w, http.StatusOK, thresholdToResponse(threshold))
}

func (s *Server) handleDeleteThreshold(w http.ResponseWriter, r *http.Request) {
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
	if err := s.repo.DeleteThreshold(r.Context(), s.repo.DB(), id, uid); err != nil {
		fail(w, mapStoreErr(err, "threshold", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type planRequest struct {
	Name     string `json:"nome"`
	Target   string `json:"meta"`
	Saved    string `json:"guardado"`
	Deadline string `json:"prazo"`
}

type planResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"nome"`
	TargetCents int64  `json:"meta_cents"`
	Target      string `json:"meta"`
	SavedCents  int64  `json:"guardado_cents"`
	Saved       string `json:"guardado"`
	Deadline    string `json:"prazo,omitempty"`
}

func (req planRequest) toPlan(uid int64) (core.Plan, error) {
	name := sanitizeInput(req.Name)
	if name == "" {
		return core.Plan{}, core.NewValidationError("empty plan name")
	}
	target, err := parseAmount(req.Target)
	if err != nil {
		return core.Plan{}, err
	}
	plan := core.Plan{UserID: uid, Name: name, Target: target}
	if strings.TrimSpace(req.Saved) != "" {
		saved, err := parseAmount(req.Saved)
		if err != nil {
			return core.Plan{}, err
		}
		plan.Saved = saved
	}
	if strings.TrimSpace(req.Deadline) != "" {
		deadline, err := parseDate(req.Deadline)
		if err != nil {
			return core.Plan{}, err
		}
		plan.Deadline = deadline
	}
	return plan, nil
}

func planToResponse(p core.Plan) planResponse {
	resp := planResponse{
		ID:          p.ID,
		Name:        p.Name,
		TargetCents: p.Target.Cents,
		Target:      core.FormatBRL(p.Target.Cents),
		SavedCents:  p.Saved.Cents,
		Saved:       core.FormatBRL(p.Saved.Cents),
	}
	if !p.Deadline.IsZero() {
		resp.Deadline = p.Deadline.Format(dateLayout)
	}
	return resp
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	plan, err := req.toPlan(uid)
	if err != nil {
		fail(w, err)
		return
	}
	if err := s.repo.CreatePlan(r.Context(), s.repo.DB(), &plan); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, planToResponse(plan))
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		fail(w, err)
		return
	}
	rows, err := s.repo.ListPlans(r.Context(), s.repo.DB(), uid)
	if err != nil {
		fail(w, err)
		return
	}
	out := make([]planResponse, len(rows))
	for i, p := range rows {
		out[i] = planToResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
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
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, err)
		return
	}
	plan, err := req.toPlan(uid)
	if err != nil {
		fail(w, err)
		return
	}
	plan.ID = id
	if err := s.repo.UpdatePlan(r.Context(), s.repo.DB(), &plan); err != nil {
		fail(w, mapStoreErr(err, "plan", id))
		return
	}
	writeJSON(w, http.StatusOK, planToResponse(plan))
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
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
	if err := s.repo.DeletePlan(r.Context(), s.repo.DB(), id, uid); err != nil {
		fail(w, mapStoreErr(err, "plan", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
