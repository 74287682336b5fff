package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"financas/internal/core"

	_ "modernc.org/sqlite"
)

// dateLayout is how calendar dates are stored; comparisons stay lexical.
const dateLayout = "2006-01-02"

// ErrNotFound is returned when a row is absent or owned by another user.
var ErrNotFound = errors.New("record not found")

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Repository methods take it explicitly so multi-statement sequences can run
// inside one transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db *sql.DB
}

// NewRepository opens the SQLite database at dbPath, creating the parent
// directory if needed, and applies pending migrations.
func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// DB exposes the pool as a Querier for non-transactional calls.
func (r *Repository) DB() Querier {
	return r.db
}

// WithTx runs fn inside one transaction, rolling back on error or panic.
func (r *Repository) WithTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ---- cards ----

func (r *Repository) CreateCard(ctx context.Context, q Querier, c *core.Card) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO cards (user_id, nome, tipo, ultimos_digitos, cor, limite, limite_disponivel, dia_vencimento, dias_fechamento_antes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.Name, string(c.Kind), c.LastDigits, c.Color,
		c.Limit.Cents, c.AvailableLimit.Cents, c.DueDay, c.CloseDaysBefore)
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("card insert id: %w", err)
	}
	return nil
}

func (r *Repository) GetCard(ctx context.Context, q Querier, id, userID int64) (*core.Card, error) {
	var c core.Card
	var kind string
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, nome, tipo, ultimos_digitos, cor, limite, limite_disponivel, dia_vencimento, dias_fechamento_antes
		FROM cards WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&c.ID, &c.UserID, &c.Name, &kind, &c.LastDigits, &c.Color,
			&c.Limit.Cents, &c.AvailableLimit.Cents, &c.DueDay, &c.CloseDaysBefore)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get card: %w", err)
	}
	c.Kind = core.CardKind(kind)
	return &c, nil
}

func (r *Repository) ListCards(ctx context.Context, q Querier, userID int64) ([]core.Card, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, nome, tipo, ultimos_digitos, cor, limite, limite_disponivel, dia_vencimento, dias_fechamento_antes
		FROM cards WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var out []core.Card
	for rows.Next() {
		var c core.Card
		var kind string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &kind, &c.LastDigits, &c.Color,
			&c.Limit.Cents, &c.AvailableLimit.Cents, &c.DueDay, &c.CloseDaysBefore); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		c.Kind = core.CardKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateCard(ctx context.Context, q Querier, c *core.Card) error {
	res, err := q.ExecContext(ctx, `
		UPDATE cards SET nome = ?, tipo = ?, ultimos_digitos = ?, cor = ?, limite = ?, limite_disponivel = ?, dia_vencimento = ?, dias_fechamento_antes = ?
		WHERE id = ? AND user_id = ?`,
		c.Name, string(c.Kind), c.LastDigits, c.Color, c.Limit.Cents, c.AvailableLimit.Cents,
		c.DueDay, c.CloseDaysBefore, c.ID, c.UserID)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	return requireRow(res, "update card")
}

func (r *Repository) DeleteCard(ctx context.Context, q Querier, id, userID int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM cards WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return requireRow(res, "delete card")
}

// DeleteExpensesByCard removes every expense charged to the card. Used by
// the card-delete cascade.
func (r *Repository) DeleteExpensesByCard(ctx context.Context, q Querier, cardID, userID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM expenses WHERE card_id = ? AND user_id = ?`, cardID, userID)
	if err != nil {
		return fmt.Errorf("delete expenses by card: %w", err)
	}
	return nil
}

// DeletePaymentsByCard removes the card's invoice payment history.
func (r *Repository) DeletePaymentsByCard(ctx context.Context, q Querier, cardID, userID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM card_invoice_payments WHERE card_id = ? AND user_id = ?`, cardID, userID)
	if err != nil {
		return fmt.Errorf("delete payments by card: %w", err)
	}
	return nil
}

// AdjustAvailableLimit applies a signed delta to the card's running
// available-credit balance. Every code path that creates or removes unpaid
// credit-card charges must perform the matching adjustment.
func (r *Repository) AdjustAvailableLimit(ctx context.Context, q Querier, cardID, userID, delta int64) error {
	res, err := q.ExecContext(ctx, `
		UPDATE cards SET limite_disponivel = limite_disponivel + ?
		WHERE id = ? AND user_id = ?`, delta, cardID, userID)
	if err != nil {
		return fmt.Errorf("adjust available limit: %w", err)
	}
	return requireRow(res, "adjust available limit")
}

// UnpaidCardTotal recomputes the card's unpaid exposure from the expense
// rows. It is the derived counterpart of the running balance, used by the
// dashboard and by the conservation check in tests.
func (r *Repository) UnpaidCardTotal(ctx context.Context, q Querier, userID, cardID int64) (int64, error) {
	var total sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT SUM(e.quantidade)
		FROM expenses e
		LEFT JOIN card_invoice_payments p
			ON p.user_id = e.user_id AND p.card_id = e.card_id
			AND p.competencia_mes = e.competencia_mes AND p.competencia_ano = e.competencia_ano
		WHERE e.user_id = ? AND e.card_id = ? AND e.metodo_pagamento = ? AND p.id IS NULL`,
		userID, cardID, string(core.PaymentCredit)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("unpaid card total: %w", err)
	}
	return total.Int64, nil
}

// ---- expenses ----

const expenseColumns = `id, user_id, tipo, quantidade, metodo_pagamento, fixo, data, parcelas, frequencia, card_id, category_id, observacoes, series_id, competencia_mes, competencia_ano`

func scanExpense(s interface{ Scan(...any) error }) (core.Expense, error) {
	var e core.Expense
	var method, data string
	var fixo int
	var cardID, categoryID, mes, ano sql.NullInt64
	var seriesID sql.NullString
	err := s.Scan(&e.ID, &e.UserID, &e.Tipo, &e.Amount.Cents, &method, &fixo, &data,
		&e.Parcelas, &e.Frequency, &cardID, &categoryID, &e.Notes, &seriesID, &mes, &ano)
	if err != nil {
		return e, err
	}
	e.Method = core.PaymentMethod(method)
	e.Fixed = fixo != 0
	e.Date, err = time.Parse(dateLayout, data)
	if err != nil {
		return e, fmt.Errorf("parse expense date %q: %w", data, err)
	}
	e.CardID = cardID.Int64
	e.CategoryID = categoryID.Int64
	e.SeriesID = seriesID.String
	e.CompetenciaMes = int(mes.Int64)
	e.CompetenciaAno = int(ano.Int64)
	return e, nil
}

func nullID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func (r *Repository) InsertExpense(ctx context.Context, q Querier, e *core.Expense) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO expenses (user_id, tipo, quantidade, metodo_pagamento, fixo, data, parcelas, frequencia, card_id, category_id, observacoes, series_id, competencia_mes, competencia_ano)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Tipo, e.Amount.Cents, string(e.Method), boolToInt(e.Fixed),
		e.Date.Format(dateLayout), e.Parcelas, e.Frequency,
		nullID(e.CardID), nullID(e.CategoryID), e.Notes, nullStr(e.SeriesID),
		nullInt(e.CompetenciaMes), nullInt(e.CompetenciaAno))
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("expense insert id: %w", err)
	}
	return nil
}

func (r *Repository) GetExpense(ctx context.Context, q Querier, id, userID int64) (*core.Expense, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return &e, nil
}

func (r *Repository) ListExpensesByMonth(ctx context.Context, q Querier, userID int64, year, month int) ([]core.Expense, error) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	rows, err := q.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? AND data >= ? AND data < ? ORDER BY data, id`,
		userID, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list expenses by month: %w", err)
	}
	defer rows.Close()
	return collectExpenses(rows)
}

func (r *Repository) ListSeries(ctx context.Context, q Querier, userID int64, seriesID string) ([]core.Expense, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? AND series_id = ? ORDER BY data, id`,
		userID, seriesID)
	if err != nil {
		return nil, fmt.Errorf("list expense series: %w", err)
	}
	defer rows.Close()
	return collectExpenses(rows)
}

func collectExpenses(rows *sql.Rows) ([]core.Expense, error) {
	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateExpense(ctx context.Context, q Querier, e *core.Expense) error {
	res, err := q.ExecContext(ctx, `
		UPDATE expenses SET tipo = ?, quantidade = ?, metodo_pagamento = ?, fixo = ?, data = ?, parcelas = ?, frequencia = ?, category_id = ?, observacoes = ?
		WHERE id = ? AND user_id = ?`,
		e.Tipo, e.Amount.Cents, string(e.Method), boolToInt(e.Fixed), e.Date.Format(dateLayout),
		e.Parcelas, e.Frequency, nullID(e.CategoryID), e.Notes, e.ID, e.UserID)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return requireRow(res, "update expense")
}

// UpdateSeriesAfter cascades edited fields to the later rows of a fixed
// series within the same calendar year.
func (r *Repository) UpdateSeriesAfter(ctx context.Context, q Querier, e *core.Expense) error {
	yearEnd := time.Date(e.Date.Year()+1, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := q.ExecContext(ctx, `
		UPDATE expenses SET tipo = ?, quantidade = ?, frequencia = ?, category_id = ?, observacoes = ?
		WHERE user_id = ? AND series_id = ? AND data > ? AND data < ?`,
		e.Tipo, e.Amount.Cents, e.Frequency, nullID(e.CategoryID), e.Notes,
		e.UserID, e.SeriesID, e.Date.Format(dateLayout), yearEnd.Format(dateLayout))
	if err != nil {
		return fmt.Errorf("update expense series: %w", err)
	}
	return nil
}

func (r *Repository) DeleteExpense(ctx context.Context, q Querier, id, userID int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return requireRow(res, "delete expense")
}

func (r *Repository) DeleteSeries(ctx context.Context, q Querier, userID int64, seriesID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = ? AND series_id = ?`, userID, seriesID)
	if err != nil {
		return fmt.Errorf("delete expense series: %w", err)
	}
	return nil
}

// CompetenciaTotal sums the card's charges assigned to one billing period.
func (r *Repository) CompetenciaTotal(ctx context.Context, q Querier, userID, cardID int64, mes, ano int) (int64, error) {
	var total sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT SUM(quantidade) FROM expenses
		WHERE user_id = ? AND card_id = ? AND competencia_mes = ? AND competencia_ano = ?`,
		userID, cardID, mes, ano).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("competencia total: %w", err)
	}
	return total.Int64, nil
}

// UnpaidCompetencia is one open billing period with its accumulated total.
type UnpaidCompetencia struct {
	Mes   int
	Ano   int
	Total int64
}

// UnpaidCompetencias lists the card's billing periods that have expenses but
// no payment row, oldest first.
func (r *Repository) UnpaidCompetencias(ctx context.Context, q Querier, userID, cardID int64) ([]UnpaidCompetencia, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT e.competencia_mes, e.competencia_ano, SUM(e.quantidade)
		FROM expenses e
		LEFT JOIN card_invoice_payments p
			ON p.user_id = e.user_id AND p.card_id = e.card_id
			AND p.competencia_mes = e.competencia_mes AND p.competencia_ano = e.competencia_ano
		WHERE e.user_id = ? AND e.card_id = ? AND e.competencia_mes IS NOT NULL AND p.id IS NULL
		GROUP BY e.competencia_mes, e.competencia_ano
		ORDER BY e.competencia_ano, e.competencia_mes`, userID, cardID)
	if err != nil {
		return nil, fmt.Errorf("unpaid competencias: %w", err)
	}
	defer rows.Close()

	var out []UnpaidCompetencia
	for rows.Next() {
		var u UnpaidCompetencia
		if err := rows.Scan(&u.Mes, &u.Ano, &u.Total); err != nil {
			return nil, fmt.Errorf("scan unpaid competencia: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ---- invoice payments ----

func (r *Repository) GetPayment(ctx context.Context, q Querier, userID, cardID int64, mes, ano int) (*core.InvoicePayment, error) {
	var p core.InvoicePayment
	var exported int
	var createdAt string
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, card_id, competencia_mes, competencia_ano, amount_paid, exported, created_at
		FROM card_invoice_payments
		WHERE user_id = ? AND card_id = ? AND competencia_mes = ? AND competencia_ano = ?`,
		userID, cardID, mes, ano).
		Scan(&p.ID, &p.UserID, &p.CardID, &p.CompetenciaMes, &p.CompetenciaAno,
			&p.AmountPaid.Cents, &exported, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice payment: %w", err)
	}
	p.Exported = exported != 0
	p.CreatedAt = parseTimestamp(createdAt)
	return &p, nil
}

func (r *Repository) HasPayment(ctx context.Context, q Querier, userID, cardID int64, mes, ano int) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `
		SELECT 1 FROM card_invoice_payments
		WHERE user_id = ? AND card_id = ? AND competencia_mes = ? AND competencia_ano = ?`,
		userID, cardID, mes, ano).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check invoice payment: %w", err)
	}
	return true, nil
}

func (r *Repository) InsertPayment(ctx context.Context, q Querier, p *core.InvoicePayment) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO card_invoice_payments (user_id, card_id, competencia_mes, competencia_ano, amount_paid)
		VALUES (?, ?, ?, ?, ?)`,
		p.UserID, p.CardID, p.CompetenciaMes, p.CompetenciaAno, p.AmountPaid.Cents)
	if err != nil {
		return fmt.Errorf("insert invoice payment: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("invoice payment insert id: %w", err)
	}
	return nil
}

func (r *Repository) DeletePayment(ctx context.Context, q Querier, userID, cardID int64, mes, ano int) error {
	res, err := q.ExecContext(ctx, `
		DELETE FROM card_invoice_payments
		WHERE user_id = ? AND card_id = ? AND competencia_mes = ? AND competencia_ano = ?`,
		userID, cardID, mes, ano)
	if err != nil {
		return fmt.Errorf("delete invoice payment: %w", err)
	}
	return requireRow(res, "delete invoice payment")
}

// ListUnexportedPayments feeds the worker's statement-export backup loop.
func (r *Repository) ListUnexportedPayments(ctx context.Context, q Querier, limit int) ([]core.InvoicePayment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, card_id, competencia_mes, competencia_ano, amount_paid, exported, created_at
		FROM card_invoice_payments WHERE exported = 0 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unexported payments: %w", err)
	}
	defer rows.Close()

	var out []core.InvoicePayment
	for rows.Next() {
		var p core.InvoicePayment
		var exported int
		var createdAt string
		if err := rows.Scan(&p.ID, &p.UserID, &p.CardID, &p.CompetenciaMes, &p.CompetenciaAno,
			&p.AmountPaid.Cents, &exported, &createdAt); err != nil {
			return nil, fmt.Errorf("scan unexported payment: %w", err)
		}
		p.Exported = exported != 0
		p.CreatedAt = parseTimestamp(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) MarkPaymentExported(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx, `UPDATE card_invoice_payments SET exported = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark payment exported: %w", err)
	}
	return nil
}

// ---- audit & event log ----

func (r *Repository) InsertAudit(ctx context.Context, q Querier, userID, expenseID int64, action string, snapshot []byte) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO expense_audit (user_id, expense_id, action, snapshot) VALUES (?, ?, ?, ?)`,
		userID, expenseID, action, string(snapshot))
	if err != nil {
		return fmt.Errorf("insert expense audit: %w", err)
	}
	return nil
}

func (r *Repository) InsertEvent(ctx context.Context, q Querier, kind string, userID, refID, amountCents int64, mes, ano int) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO event_log (kind, user_id, ref_id, amount_cents, competencia_mes, competencia_ano)
		VALUES (?, ?, ?, ?, ?, ?)`,
		kind, userID, refID, amountCents, nullInt(mes), nullInt(ano))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ---- incomes ----

func (r *Repository) CreateIncome(ctx context.Context, q Querier, in *core.Income) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO incomes (user_id, descricao, quantidade, data, fixo, category_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		in.UserID, in.Descricao, in.Amount.Cents, in.Date.Format(dateLayout),
		boolToInt(in.Fixed), nullID(in.CategoryID))
	if err != nil {
		return fmt.Errorf("insert income: %w", err)
	}
	in.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("income insert id: %w", err)
	}
	return nil
}

func (r *Repository) GetIncome(ctx context.Context, q Querier, id, userID int64) (*core.Income, error) {
	var in core.Income
	var data string
	var fixo int
	var categoryID sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, descricao, quantidade, data, fixo, category_id
		FROM incomes WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&in.ID, &in.UserID, &in.Descricao, &in.Amount.Cents, &data, &fixo, &categoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get income: %w", err)
	}
	in.Fixed = fixo != 0
	in.CategoryID = categoryID.Int64
	in.Date, err = time.Parse(dateLayout, data)
	if err != nil {
		return nil, fmt.Errorf("parse income date %q: %w", data, err)
	}
	return &in, nil
}

func (r *Repository) ListIncomesByMonth(ctx context.Context, q Querier, userID int64, year, month int) ([]core.Income, error) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, descricao, quantidade, data, fixo, category_id
		FROM incomes WHERE user_id = ? AND data >= ? AND data < ? ORDER BY data, id`,
		userID, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list incomes by month: %w", err)
	}
	defer rows.Close()

	var out []core.Income
	for rows.Next() {
		var in core.Income
		var data string
		var fixo int
		var categoryID sql.NullInt64
		if err := rows.Scan(&in.ID, &in.UserID, &in.Descricao, &in.Amount.Cents, &data, &fixo, &categoryID); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		in.Fixed = fixo != 0
		in.CategoryID = categoryID.Int64
		in.Date, err = time.Parse(dateLayout, data)
		if err != nil {
			return nil, fmt.Errorf("parse income date %q: %w", data, err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateIncome(ctx context.Context, q Querier, in *core.Income) error {
	res, err := q.ExecContext(ctx, `
		UPDATE incomes SET descricao = ?, quantidade = ?, data = ?, fixo = ?, category_id = ?
		WHERE id = ? AND user_id = ?`,
		in.Descricao, in.Amount.Cents, in.Date.Format(dateLayout), boolToInt(in.Fixed),
		nullID(in.CategoryID), in.ID, in.UserID)
	if err != nil {
		return fmt.Errorf("update income: %w", err)
	}
	return requireRow(res, "update income")
}

func (r *Repository) DeleteIncome(ctx context.Context, q Querier, id, userID int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM incomes WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	return requireRow(res, "delete income")
}

// ---- categories ----

func (r *Repository) CreateCategory(ctx context.Context, q Querier, c *core.Category) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO categories (user_id, nome, tipo, cor) VALUES (?, ?, ?, ?)`,
		c.UserID, c.Name, c.Kind, c.Color)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("category insert id: %w", err)
	}
	return nil
}

func (r *Repository) ListCategories(ctx context.Context, q Querier, userID int64) ([]core.Category, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, nome, tipo, cor FROM categories WHERE user_id = ? ORDER BY nome`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Kind, &c.Color); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateCategory(ctx context.Context, q Querier, c *core.Category) error {
	res, err := q.ExecContext(ctx,
		`UPDATE categories SET nome = ?, tipo = ?, cor = ? WHERE id = ? AND user_id = ?`,
		c.Name, c.Kind, c.Color, c.ID, c.UserID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return requireRow(res, "update category")
}

func (r *Repository) DeleteCategory(ctx context.Context, q Querier, id, userID int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return requireRow(res, "delete category")
}

// ---- thresholds ----

func (r *Repository) CreateThreshold(ctx context.Context, q Querier, t *core.Threshold) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO thresholds (user_id, category_id, mes, ano, limite) VALUES (?, ?, ?, ?, ?)`,
		t.UserID, t.CategoryID, t.Mes, t.Ano, t.Limit.Cents)
	if err != nil {
		return fmt.Errorf("insert threshold: %w", err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("threshold insert id: %w", err)
	}
	return nil
}

func (r *Repository) ListThresholds(ctx context.Context, q Querier, userID int64, mes, ano int) ([]core.Threshold, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, category_id, mes, ano, limite
		FROM thresholds WHERE user_id = ? AND mes = ? AND ano = ? ORDER BY id`,
		userID, mes, ano)
	if err != nil {
		return nil, fmt.Errorf("list thresholds: %w", err)
	}
	defer rows.Close()

	var out []core.Threshold
	for rows.Next() {
		var t core.Threshold
		if err := rows.Scan(&t.ID, &t.UserID, &t.CategoryID, &t.Mes, &t.Ano, &t.Limit.Cents); err != nil {
			return nil, fmt.Errorf("scan threshold: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateThreshold(ctx context.Context, q Querier, t *core.Threshold) error {
	res, err := q.ExecContext(ctx,
		`UPDATE thresholds SET limite = ? WHERE id = ? AND user_id = ?`,
		t.Limit.Cents, t.ID, t.UserID)
	if err != nil {
		return fmt.Errorf("update threshold: %w", err)
	}
	return requireRow(res, "update threshold")
}

func (r *Repository) DeleteThreshold(ctx context.Context, q Querier, id, userID int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM thresholds WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete threshold: %w", err)
	}
	return requireRow(res, "delete threshold")
}

// ---- plans ----

func (r *Repository) CreatePlan(ctx context.Context, q Querier, p *core.Plan) error {
	prazo := ""
	if !p.Deadline.IsZero() {
		prazo = p.Deadline.Format(dateLayout)
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO plans (user_id, nome, meta, guardado, prazo) VALUES (?, ?, ?, ?, ?)`,
		p.UserID, p.Name, p.Target.Cents, p.Saved.Cents, prazo)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("plan insert id: %w", err)
	}
	return nil
}

func (r *Repository) ListPlans(ctx context.Context, q Querier, userID int64) ([]core.Plan, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, nome, meta, guardado, prazo FROM plans WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []core.Plan
	for rows.Next() {
		var p core.Plan
		var prazo string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Target.Cents, &p.Saved.Cents, &prazo); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		if prazo != "" {
			p.Deadline, err = time.Parse(dateLayout, prazo)
			if err != nil {
				return nil, fmt.Errorf("parse plan deadline %q: %w", prazo, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) UpdatePlan(ctx context.Context, q Querier, p *core.Plan) error {
	prazo := ""
	if !p.Deadline.IsZero() {
		prazo = p.Deadline.Format(dateLayout)
	}
	res, err := q.ExecContext(ctx,
		`UPDATE plans SET nome = ?, meta = ?, guardado = ?, prazo = ? WHERE id = ? AND user_id = ?`,
		p.Name, p.Target.Cents, p.Saved.Cents, prazo, p.ID, p.UserID)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return requireRow(res, "update plan")
}

func (r *Repository) DeletePlan(ctx context.Context, q Querier, id, userID int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM plans WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	return requireRow(res, "delete plan")
}

// ---- dashboard ----

// MonthOverview aggregates the month's totals, per-label sums and per-card
// unpaid exposure in a handful of read-only queries.
func (r *Repository) MonthOverview(ctx context.Context, q Querier, userID int64, year, month int) (core.MonthOverview, error) {
	ov := core.MonthOverview{Year: year, Month: month}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	startStr, endStr := start.Format(dateLayout), end.Format(dateLayout)

	var total sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT SUM(quantidade) FROM expenses WHERE user_id = ? AND data >= ? AND data < ?`,
		userID, startStr, endStr).Scan(&total)
	if err != nil {
		return ov, fmt.Errorf("month expense total: %w", err)
	}
	ov.TotalExpenses.Cents = total.Int64

	err = q.QueryRowContext(ctx,
		`SELECT SUM(quantidade) FROM incomes WHERE user_id = ? AND data >= ? AND data < ?`,
		userID, startStr, endStr).Scan(&total)
	if err != nil {
		return ov, fmt.Errorf("month income total: %w", err)
	}
	ov.TotalIncomes.Cents = total.Int64
	ov.Balance.Cents = ov.TotalIncomes.Cents - ov.TotalExpenses.Cents

	rows, err := q.QueryContext(ctx, `
		SELECT tipo, SUM(quantidade) FROM expenses
		WHERE user_id = ? AND data >= ? AND data < ?
		GROUP BY tipo ORDER BY SUM(quantidade) DESC`,
		userID, startStr, endStr)
	if err != nil {
		return ov, fmt.Errorf("month sums by tipo: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Name, &ca.Amount.Cents); err != nil {
			return ov, fmt.Errorf("scan tipo sum: %w", err)
		}
		ov.ByTipo = append(ov.ByTipo, ca)
	}
	if err := rows.Err(); err != nil {
		return ov, err
	}

	cards, err := r.ListCards(ctx, q, userID)
	if err != nil {
		return ov, err
	}
	for _, c := range cards {
		if c.Kind != core.CardCredit {
			continue
		}
		unpaid, err := r.UnpaidCardTotal(ctx, q, userID, c.ID)
		if err != nil {
			return ov, err
		}
		ov.Cards = append(ov.Cards, core.CardUsage{
			CardID:         c.ID,
			Name:           c.Name,
			Limit:          c.Limit,
			AvailableLimit: c.AvailableLimit,
			UnpaidTotal:    core.Money{Cents: unpaid},
		})
	}
	return ov, nil
}

// parseTimestamp reads the TEXT timestamps SQLite writes for
// CURRENT_TIMESTAMP defaults. A zero time is returned for malformed values.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
