// Package http exposes the JSON API over net/http.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"financas/internal/cache"
	"financas/internal/core"
	applog "financas/internal/log"
	"financas/internal/services"
	"financas/internal/storage"
)

// Server wires the HTTP boundary: routing, security headers, per-IP rate
// limiting, request logging and the dashboard read cache.
type Server struct {
	http.Server

	repo     *storage.Repository
	expenses *services.ExpenseService
	cards    *services.CardService
	invoices *services.InvoiceService

	httpLog     *applog.StructuredLogger
	rateLimiter *rateLimiter
	metrics     securityMetrics

	overviewCache *cache.LRUCache[core.MonthOverview]
	cacheManager  *cache.Manager

	shutdownOnce sync.Once
}

// NewServer builds the server and registers all routes. A zero cacheTTL
// falls back to five minutes for the dashboard read cache.
func NewServer(addr string, repo *storage.Repository, es *services.ExpenseService, cs *services.CardService, is *services.InvoiceService, logger *applog.Logger, cacheTTL time.Duration) *Server {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		repo:          repo,
		expenses:      es,
		cards:         cs,
		invoices:      is,
		httpLog:       applog.NewStructuredLogger(logger.WithComponent(applog.ComponentHTTP)),
		rateLimiter:   newRateLimiter(),
		overviewCache: cache.NewLRUCache[core.MonthOverview](100, cacheTTL),
		cacheManager:  cache.NewManager(),
	}
	s.cacheManager.Register(s.overviewCache)
	s.cacheManager.StartCleanup(time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /expenses", s.guard(s.handleCreateExpense))
	mux.HandleFunc("GET /expenses", s.guard(s.handleListExpenses))
	mux.HandleFunc("GET /expenses/{id}", s.guard(s.handleGetExpense))
	mux.HandleFunc("PUT /expenses/{id}", s.guard(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /expenses/{id}", s.guard(s.handleDeleteExpense))

	mux.HandleFunc("POST /cards", s.guard(s.handleCreateCard))
	mux.HandleFunc("GET /cards", s.guard(s.handleListCards))
	mux.HandleFunc("GET /cards/{id}", s.guard(s.handleGetCard))
	mux.HandleFunc("PUT /cards/{id}", s.guard(s.handleUpdateCard))
	mux.HandleFunc("DELETE /cards/{id}", s.guard(s.handleDeleteCard))

	mux.HandleFunc("GET /cards/{id}/invoices", s.guard(s.handleListInvoices))
	mux.HandleFunc("GET /cards/{id}/invoices/can-pay", s.guard(s.handleCanPayInvoice))
	mux.HandleFunc("POST /cards/{id}/invoices/pay", s.guard(s.handlePayInvoice))
	mux.HandleFunc("POST /cards/{id}/invoices/cancel", s.guard(s.handleCancelInvoice))

	mux.HandleFunc("POST /incomes", s.guard(s.handleCreateIncome))
	mux.HandleFunc("GET /incomes", s.guard(s.handleListIncomes))
	mux.HandleFunc("PUT /incomes/{id}", s.guard(s.handleUpdateIncome))
	mux.HandleFunc("DELETE /incomes/{id}", s.guard(s.handleDeleteIncome))

	mux.HandleFunc("POST /categories", s.guard(s.handleCreateCategory))
	mux.HandleFunc("GET /categories", s.guard(s.handleListCategories))
	mux.HandleFunc("PUT /categories/{id}", s.guard(s.handleUpdateCategory))
	mux.HandleFunc("DELETE /categories/{id}", s.guard(s.handleDeleteCategory))

	mux.HandleFunc("POST /thresholds", s.guard(s.handleCreateThreshold))
	mux.HandleFunc("GET /thresholds", s.guard(s.handleListThresholds))
	mux.HandleFunc("PUT /thresholds/{id}", s.guard(s.handleUpdateThreshold))
	mux.HandleFunc("DELETE /thresholds/{id}", s.guard(s.handleDeleteThreshold))

	mux.HandleFunc("POST /plans", s.guard(s.handleCreatePlan))
	mux.HandleFunc("GET /plans", s.guard(s.handleListPlans))
	mux.HandleFunc("PUT /plans/{id}", s.guard(s.handleUpdatePlan))
	mux.HandleFunc("DELETE /plans/{id}", s.guard(s.handleDeletePlan))

	mux.HandleFunc("GET /dashboard", s.guard(s.handleDashboard))

	return s
}

// guard is the middleware chain applied to every API route: security
// headers, rate limiting on mutating methods, request id and structured
// start/end logging.
func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), applog.ContextKey("request_id"), requestID)
		r = r.WithContext(ctx)

		s.httpLog.LogHTTPStart(ctx, r, clientIP)

		if isMutating(r.Method) && !s.rateLimiter.allow(clientIP, &s.metrics) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			s.httpLog.LogHTTPEnd(ctx, r, http.StatusTooManyRequests, time.Since(start).Milliseconds(), clientIP)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.httpLog.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

// responseWriter captures the status code for access logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.repo.ListCards(r.Context(), s.repo.DB(), 0); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// overviewCacheKey scopes dashboard cache entries per user and month.
func overviewCacheKey(userID int64, year, month int) string {
	return fmt.Sprintf("overview:%d:%04d-%02d", userID, year, month)
}

// invalidateOverview drops the cached dashboard for one user month.
func (s *Server) invalidateOverview(userID int64, year, month int) {
	s.overviewCache.Delete(overviewCacheKey(userID, year, month))
}

// invalidateUserOverviews drops every cached dashboard month of a user.
// Card limits show up in all of them, so limit changes cannot invalidate a
// single month.
func (s *Server) invalidateUserOverviews(userID int64) {
	s.overviewCache.DeletePrefix(fmt.Sprintf("overview:%d:", userID))
}

// Shutdown stops background loops and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		s.cacheManager.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
