package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	applog "financas/internal/log"
	"financas/internal/services"
	"financas/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	es := services.NewExpenseService(repo, nil)
	cs := services.NewCardService(repo)
	is := services.NewInvoiceService(repo, nil)
	logger := applog.New(applog.DefaultConfig())

	s := NewServer(":0", repo, es, cs, is, logger, 0)
	t.Cleanup(func() { s.rateLimiter.stop(); s.cacheManager.Stop() })
	return s
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("X-User-ID", "1")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d", rec.Code)
	}
}

func TestMissingUserHeader(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/expenses", nil)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if !strings.Contains(body["error"], "X-User-ID") {
		t.Fatalf("error = %q, want mention of X-User-ID", body["error"])
	}
}

func TestExpenseLifecycle(t *testing.T) {
	s := newTestServer(t)
	today := time.Now().Format("2006-01-02")

	rec := doRequest(t, s, http.MethodPost, "/expenses",
		fmt.Sprintf(`{"tipo":"mercado","quantidade":"120,50","metodo_pagamento":"cash","data":%q}`, today))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[[]expenseResponse](t, rec)
	if len(created) != 1 {
		t.Fatalf("created %d rows, want 1", len(created))
	}
	if created[0].AmountCents != 12050 {
		t.Fatalf("amount = %d cents, want 12050", created[0].AmountCents)
	}
	id := created[0].ID

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/expenses/%d", id), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodGet, "/expenses", "")
	if got := decodeBody[[]expenseResponse](t, rec); len(got) != 1 {
		t.Fatalf("list returned %d rows, want 1", len(got))
	}

	rec = doRequest(t, s, http.MethodPut, fmt.Sprintf("/expenses/%d", id),
		fmt.Sprintf(`{"tipo":"farmacia","quantidade":"99,90","metodo_pagamento":"debit","data":%q}`, today))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[expenseResponse](t, rec)
	if updated.Tipo != "farmacia" || updated.AmountCents != 9990 {
		t.Fatalf("updated = %+v", updated)
	}

	rec = doRequest(t, s, http.MethodDelete, fmt.Sprintf("/expenses/%d", id), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/expenses/%d", id), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestExpenseValidationErrors(t *testing.T) {
	s := newTestServer(t)
	today := time.Now().Format("2006-01-02")

	cases := []struct {
		name string
		body string
	}{
		{"bad amount", fmt.Sprintf(`{"tipo":"x","quantidade":"abc","metodo_pagamento":"cash","data":%q}`, today)},
		{"bad method", fmt.Sprintf(`{"tipo":"x","quantidade":"10,00","metodo_pagamento":"pix","data":%q}`, today)},
		{"bad date", `{"tipo":"x","quantidade":"10,00","metodo_pagamento":"cash","data":"25/03/2025"}`},
		{"unknown field", fmt.Sprintf(`{"tipo":"x","quantidade":"10,00","metodo_pagamento":"cash","data":%q,"bogus":1}`, today)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/expenses", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCardAndInvoiceEndpoints(t *testing.T) {
	s := newTestServer(t)
	today := time.Now().Format("2006-01-02")

	rec := doRequest(t, s, http.MethodPost, "/cards",
		`{"nome":"Nubank","tipo":"credit","ultimos_digitos":"4242","limite":"5000,00","dia_vencimento":10,"dias_fechamento_antes":10}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create card status = %d, body %s", rec.Code, rec.Body.String())
	}
	card := decodeBody[cardResponse](t, rec)
	if card.AvailableLimitCents != 500000 {
		t.Fatalf("available limit = %d, want 500000", card.AvailableLimitCents)
	}

	rec = doRequest(t, s, http.MethodPost, "/expenses",
		fmt.Sprintf(`{"tipo":"assinatura","quantidade":"80,00","metodo_pagamento":"credit","data":%q,"card_id":%d}`, today, card.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create charge status = %d, body %s", rec.Code, rec.Body.String())
	}
	charge := decodeBody[[]expenseResponse](t, rec)
	if charge[0].CompetenciaMes == 0 || charge[0].CompetenciaAno == 0 {
		t.Fatalf("charge missing billing period: %+v", charge[0])
	}

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/cards/%d", card.ID), "")
	got := decodeBody[cardResponse](t, rec)
	if got.AvailableLimitCents != 492000 {
		t.Fatalf("available limit after charge = %d, want 492000", got.AvailableLimitCents)
	}

	rec = doRequest(t, s, http.MethodGet, fmt.Sprintf("/cards/%d/invoices", card.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list invoices status = %d", rec.Code)
	}
	invoices := decodeBody[[]invoiceResponse](t, rec)
	if len(invoices) != 1 {
		t.Fatalf("got %d invoices, want 1", len(invoices))
	}
	if invoices[0].TotalCents != 8000 {
		t.Fatalf("invoice total = %d, want 8000", invoices[0].TotalCents)
	}

	rec = doRequest(t, s, http.MethodGet,
		fmt.Sprintf("/cards/%d/invoices/can-pay?mes=%d&ano=%d", card.ID, invoices[0].Mes, invoices[0].Ano), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("can-pay status = %d", rec.Code)
	}
	verdict := decodeBody[map[string]any](t, rec)
	if _, ok := verdict["pode_pagar"]; !ok {
		t.Fatalf("can-pay body missing pode_pagar: %v", verdict)
	}
	if d, _ := verdict["close_date"].(string); d == "" {
		t.Fatalf("can-pay body missing close_date: %v", verdict)
	}

	rec = doRequest(t, s, http.MethodPost, fmt.Sprintf("/cards/%d/invoices/cancel", card.ID),
		fmt.Sprintf(`{"mes":%d,"ano":%d}`, invoices[0].Mes, invoices[0].Ano))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cancel without payment status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, fmt.Sprintf("/cards/%d", card.ID), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete card status = %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/expenses", "")
	if left := decodeBody[[]expenseResponse](t, rec); len(left) != 0 {
		t.Fatalf("card deletion left %d expenses behind", len(left))
	}
}

func TestDashboardCaching(t *testing.T) {
	s := newTestServer(t)
	now := time.Now()
	today := now.Format("2006-01-02")

	rec := doRequest(t, s, http.MethodPost, "/incomes",
		fmt.Sprintf(`{"descricao":"salario","quantidade":"3000,00","data":%q}`, today))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create income status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, s, http.MethodPost, "/expenses",
		fmt.Sprintf(`{"tipo":"mercado","quantidade":"200,00","metodo_pagamento":"cash","data":%q}`, today))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create expense status = %d", rec.Code)
	}

	path := fmt.Sprintf("/dashboard?year=%d&month=%d", now.Year(), int(now.Month()))

	rec = doRequest(t, s, http.MethodGet, path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first read X-Cache = %q, want MISS", rec.Header().Get("X-Cache"))
	}
	overview := decodeBody[overviewResponse](t, rec)
	if overview.TotalIncomesCents != 300000 || overview.TotalExpensesCents != 20000 {
		t.Fatalf("overview totals = %+v", overview)
	}
	if overview.BalanceCents != 280000 {
		t.Fatalf("balance = %d, want 280000", overview.BalanceCents)
	}

	rec = doRequest(t, s, http.MethodGet, path, "")
	if rec.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second read X-Cache = %q, want HIT", rec.Header().Get("X-Cache"))
	}

	// A new expense in the same month drops the cached entry.
	rec = doRequest(t, s, http.MethodPost, "/expenses",
		fmt.Sprintf(`{"tipo":"padaria","quantidade":"15,00","metodo_pagamento":"cash","data":%q}`, today))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create expense status = %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, path, "")
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("post-write read X-Cache = %q, want MISS", rec.Header().Get("X-Cache"))
	}
	overview = decodeBody[overviewResponse](t, rec)
	if overview.TotalExpensesCents != 21500 {
		t.Fatalf("refreshed expenses = %d, want 21500", overview.TotalExpensesCents)
	}
}

func TestInvoicePaymentRefreshesDashboard(t *testing.T) {
	s := newTestServer(t)
	now := time.Now()
	// A day-old purchase always sits in an already closed billing period.
	chargeDay := now.AddDate(0, 0, -1).Format("2006-01-02")

	rec := doRequest(t, s, http.MethodPost, "/cards",
		`{"nome":"Nubank","tipo":"credit","ultimos_digitos":"4242","limite":"5000,00","dia_vencimento":10,"dias_fechamento_antes":10}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create card status = %d, body %s", rec.Code, rec.Body.String())
	}
	card := decodeBody[cardResponse](t, rec)

	rec = doRequest(t, s, http.MethodPost, "/expenses",
		fmt.Sprintf(`{"tipo":"assinatura","quantidade":"80,00","metodo_pagamento":"credit","data":%q,"card_id":%d}`, chargeDay, card.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create charge status = %d, body %s", rec.Code, rec.Body.String())
	}
	charge := decodeBody[[]expenseResponse](t, rec)

	path := fmt.Sprintf("/dashboard?year=%d&month=%d", now.Year(), int(now.Month()))
	rec = doRequest(t, s, http.MethodGet, path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d, body %s", rec.Code, rec.Body.String())
	}
	overview := decodeBody[overviewResponse](t, rec)
	if len(overview.Cards) != 1 || overview.Cards[0].AvailableLimitCents != 492000 {
		t.Fatalf("cards before payment = %+v", overview.Cards)
	}
	rec = doRequest(t, s, http.MethodGet, path, "")
	if rec.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("warm read X-Cache = %q, want HIT", rec.Header().Get("X-Cache"))
	}

	competencia := fmt.Sprintf(`{"mes":%d,"ano":%d}`, charge[0].CompetenciaMes, charge[0].CompetenciaAno)
	rec = doRequest(t, s, http.MethodPost, fmt.Sprintf("/cards/%d/invoices/pay", card.ID), competencia)
	if rec.Code != http.StatusCreated {
		t.Fatalf("pay status = %d, body %s", rec.Code, rec.Body.String())
	}
	payment := decodeBody[paymentResponse](t, rec)
	if payment.AmountCents != 8000 {
		t.Fatalf("amount paid = %d, want 8000", payment.AmountCents)
	}
	if payment.FechamentoEm == "" {
		t.Fatalf("payment response missing fechamento_em: %s", rec.Body.String())
	}
	if _, err := time.Parse("2006-01-02", payment.FechamentoEm); err != nil {
		t.Fatalf("fechamento_em = %q: %v", payment.FechamentoEm, err)
	}

	// The payment restored the limit, so the cached month must be dropped.
	rec = doRequest(t, s, http.MethodGet, path, "")
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("post-payment X-Cache = %q, want MISS", rec.Header().Get("X-Cache"))
	}
	overview = decodeBody[overviewResponse](t, rec)
	if overview.Cards[0].AvailableLimitCents != 500000 {
		t.Fatalf("available limit after payment = %d, want 500000", overview.Cards[0].AvailableLimitCents)
	}
	rec = doRequest(t, s, http.MethodGet, path, "")
	if rec.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("re-warm read X-Cache = %q, want HIT", rec.Header().Get("X-Cache"))
	}

	rec = doRequest(t, s, http.MethodPost, fmt.Sprintf("/cards/%d/invoices/cancel", card.ID), competencia)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, s, http.MethodGet, path, "")
	if rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("post-cancel X-Cache = %q, want MISS", rec.Header().Get("X-Cache"))
	}
	overview = decodeBody[overviewResponse](t, rec)
	if overview.Cards[0].AvailableLimitCents != 492000 {
		t.Fatalf("available limit after cancel = %d, want 492000", overview.Cards[0].AvailableLimitCents)
	}
}

func TestRateLimiterBlocksAfterBudget(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	var metrics securityMetrics
	for i := 0; i < requestsPerMinute; i++ {
		if !rl.allow("10.1.1.1", &metrics) {
			t.Fatalf("request %d rejected before budget exhausted", i+1)
		}
	}
	if rl.allow("10.1.1.1", &metrics) {
		t.Fatal("request above budget allowed")
	}
	if metrics.rateLimitHits != 1 {
		t.Fatalf("rateLimitHits = %d, want 1", metrics.rateLimitHits)
	}
	if !rl.allow("10.2.2.2", &metrics) {
		t.Fatal("unrelated client blocked")
	}
}

func TestExtractClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct", "203.0.113.9:1234", "", "203.0.113.9"},
		{"trusted proxy honors xff", "127.0.0.1:1234", "198.51.100.7", "198.51.100.7"},
		{"untrusted peer ignores xff", "203.0.113.9:1234", "198.51.100.7", "203.0.113.9"},
		{"invalid xff falls back", "127.0.0.1:1234", "not-an-ip", "127.0.0.1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if got := extractClientIP(req); got != tc.want {
				t.Fatalf("extractClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}
