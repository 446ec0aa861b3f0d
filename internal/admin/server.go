package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/otpmart/otpshopbot/internal/repository"
	"github.com/otpmart/otpshopbot/internal/service"
)

// Server is the operator panel: read-only stats and listings plus gift-code
// management and top-up approval, behind basic auth.
type Server struct {
	addr     string
	username string
	password string
	log      *slog.Logger
	users    *service.UserService
	gifts    *service.GiftService
	topups   *service.TopupService
	stats    *service.StatsService
	ledger   *service.LedgerService
	logs     *repository.AdminLogRepository
	router   *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, users *service.UserService, gifts *service.GiftService, topups *service.TopupService, stats *service.StatsService, ledger *service.LedgerService, logs *repository.AdminLogRepository) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:     addr,
		username: username,
		password: password,
		log:      log,
		users:    users,
		gifts:    gifts,
		topups:   topups,
		stats:    stats,
		ledger:   ledger,
		logs:     logs,
		router:   r,
	}
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Get("/stats", s.handleStats)
		protected.Get("/depositors/top", s.handleTopDepositors)
		protected.Get("/depositors/above", s.handleDepositorsAbove)
		protected.Get("/depositors", s.handleAllDepositors)
		protected.Get("/users/search", s.handleSearchUsers)
		protected.Get("/users/{id}", s.handleGetUser)
		protected.Post("/users/{id}/balance", s.handleAdjustBalance)
		protected.Post("/users/{id}/monthly-deposit", s.handleSetMonthlyDeposit)
		protected.Post("/users/{id}/monthly-deposit/reset", s.handleResetMonthlyDeposit)
		protected.Get("/topups/pending", s.handlePendingTopups)
		protected.Post("/topups/{id}/approve", s.handleApproveTopup)
		protected.Post("/topups/{id}/reject", s.handleRejectTopup)
		protected.Route("/gift-codes", func(r chi.Router) {
			r.Get("/", s.handleListGiftCodes)
			r.Post("/", s.handleCreateGiftCode)
			r.Delete("/{code}", s.handleDeleteGiftCode)
		})
		protected.Get("/logs", s.handleAdminLogs)
	})
	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin panel listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Totals(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_users":   stats.TotalUsers,
		"total_orders":  stats.TotalOrders,
		"total_revenue": stats.TotalRevenue,
	})
}

func (s *Server) handleTopDepositors(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	depositors, total, err := s.stats.TopDepositors(r.Context(), limit, offset)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"depositors": depositors, "total": total})
}

func (s *Server) handleAllDepositors(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	depositors, total, err := s.stats.AllDepositors(r.Context(), limit, offset)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"depositors": depositors, "total": total})
}

func (s *Server) handleDepositorsAbove(w http.ResponseWriter, r *http.Request) {
	threshold, err := decimal.NewFromString(r.URL.Query().Get("min"))
	if err != nil {
		http.Error(w, "invalid min", http.StatusBadRequest)
		return
	}
	depositors, err := s.stats.DepositorsAbove(r.Context(), threshold)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"depositors": depositors})
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		http.Error(w, "q required", http.StatusBadRequest)
		return
	}
	users, err := s.users.Search(r.Context(), term, 50)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	user, err := s.users.Get(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if user == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

type amountRequest struct {
	Amount string `json:"amount"`
}

// handleAdjustBalance applies a relative balance correction. The body's
// amount may be negative.
func (s *Server) handleAdjustBalance(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	delta, err := decimal.NewFromString(req.Amount)
	if err != nil {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	after, err := s.ledger.UpdateBalance(r.Context(), id, delta)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		s.internalError(w, err)
		return
	}
	if err := s.logs.Append(r.Context(), adminID(r), "balance_adjust", id, delta.String()); err != nil {
		s.log.Warn("append admin log", "err", err)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"balance": after})
}

func (s *Server) handleSetMonthlyDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	if err := s.ledger.SetMonthlyDeposit(r.Context(), id, amount); err != nil {
		s.internalError(w, err)
		return
	}
	if err := s.logs.Append(r.Context(), adminID(r), "monthly_deposit_set", id, amount.String()); err != nil {
		s.log.Warn("append admin log", "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetMonthlyDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.ledger.ResetMonthlyDeposit(r.Context(), id); err != nil {
		s.internalError(w, err)
		return
	}
	if err := s.logs.Append(r.Context(), adminID(r), "monthly_deposit_reset", id, ""); err != nil {
		s.log.Warn("append admin log", "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePendingTopups(w http.ResponseWriter, r *http.Request) {
	topups, err := s.topups.ListPending(r.Context(), 100)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, topups)
}

func (s *Server) handleApproveTopup(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.topups.Approve(r.Context(), adminID(r), id); err != nil {
		if errors.Is(err, repository.ErrTopupNotFound) {
			http.Error(w, "topup not pending", http.StatusConflict)
			return
		}
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRejectTopup(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.topups.Reject(r.Context(), adminID(r), id); err != nil {
		if errors.Is(err, repository.ErrTopupNotFound) {
			http.Error(w, "topup not pending", http.StatusConflict)
			return
		}
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type giftCodeRequest struct {
	Amount     string     `json:"amount"`
	MaxUses    int        `json:"max_uses"`
	ExpiresAt  *time.Time `json:"expires_at"`
	MinDeposit string     `json:"min_deposit"`
	CreatedBy  int64      `json:"created_by"`
}

func (s *Server) handleCreateGiftCode(w http.ResponseWriter, r *http.Request) {
	var req giftCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		http.Error(w, "amount must be a positive number", http.StatusBadRequest)
		return
	}
	minDeposit := decimal.Zero
	if req.MinDeposit != "" {
		if minDeposit, err = decimal.NewFromString(req.MinDeposit); err != nil {
			http.Error(w, "invalid min_deposit", http.StatusBadRequest)
			return
		}
	}
	code, err := s.gifts.Create(r.Context(), req.CreatedBy, amount, req.MaxUses, req.ExpiresAt, minDeposit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, code)
}

func (s *Server) handleListGiftCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.gifts.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, codes)
}

func (s *Server) handleDeleteGiftCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := s.gifts.Delete(r.Context(), code); err != nil {
		s.internalError(w, err)
		return
	}
	if err := s.logs.Append(r.Context(), adminID(r), "gift_code_delete", 0, code); err != nil {
		s.log.Warn("append admin log", "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.logs.Recent(r.Context(), 100)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, logs)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="otpshop"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("write json response", "err", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin request failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

// adminID identifies the acting operator for the audit trail.
func adminID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Admin-ID"), 10, 64)
	return id
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 10
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			page = v
		}
	}
	return limit, (page - 1) * limit
}
