package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tycoon/internal/achievements"
	"tycoon/internal/events"
	"tycoon/internal/game"
	"tycoon/internal/journal"
	"tycoon/internal/ledger"
	"tycoon/internal/market"
	"tycoon/internal/modal"
	"tycoon/internal/portfolio"
	"tycoon/internal/progression"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type Server struct {
	log     *slog.Logger
	game    *game.Session
	hub     *Hub
	journal journal.Store
	metrics http.Handler
	mux     *chi.Mux
}

type Options struct {
	Logger  *slog.Logger
	Session *game.Session
	Hub     *Hub
	Journal journal.Store
	Metrics http.Handler
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := opts.Journal
	if store == nil {
		store = journal.Discard{}
	}
	s := &Server{
		log:     logger,
		game:    opts.Session,
		hub:     opts.Hub,
		journal: store,
		metrics: opts.Metrics,
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ended": s.game.Ended()})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if s.hub != nil {
			r.Get("/ws", s.hub.ServeWS)
		}

		r.Group(func(r chi.Router) {
			// Orders wait on a confirmation, so they get their own deadline.
			r.Use(middleware.Timeout(5 * time.Minute))
			r.Post("/orders", s.handleOrder)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/dashboard", s.handleDashboard)
			r.Post("/reset", s.handleReset)

			r.Get("/clock", s.handleClock)
			r.Post("/clock/speed", s.handleClockSpeed)
			r.Post("/clock/pause", s.handleClockPause)
			r.Post("/clock/resume", s.handleClockResume)

			r.Get("/stocks", s.handleStocksList)
			r.Get("/stocks/{id}", s.handleStockDetail)

			r.Get("/ledger", s.handleLedger)
			r.Post("/loans/take", s.handleTakeLoan)
			r.Post("/loans/repay", s.handleRepayLoan)
			r.Post("/loans/plan", s.handleLoanPlan)
			r.Post("/budget/income", s.handleBudget(s.game.AddIncome, s.game.RemoveIncome))
			r.Post("/budget/expense", s.handleBudget(s.game.AddExpense, s.game.RemoveExpense))

			r.Get("/progression", s.handleProgression)
			r.Get("/achievements", s.handleAchievements)

			r.Get("/events", s.handleEventsList)
			r.Post("/events/{id}/trigger", s.handleTriggerEvent)

			r.Get("/modals", s.handleModalsPending)
			r.Get("/modals/active", s.handleModalActive)
			r.Post("/modals/{id}/respond", s.handleModalRespond)
			r.Post("/modals/{id}/dismiss", s.handleModalDismiss)

			r.Get("/journal", s.handleJournal)
		})
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Dashboard())
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.game.Reset()
	writeJSON(w, http.StatusOK, s.game.Dashboard())
}

func (s *Server) handleClock(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.game.ClockState())
}

func (s *Server) handleClockSpeed(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Multiplier float64 `json:"multiplier"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Multiplier < 0 {
		writeError(w, http.StatusBadRequest, "multiplier must not be negative")
		return
	}
	s.game.SetSpeed(in.Multiplier)
	writeJSON(w, http.StatusOK, s.game.ClockState())
}

func (s *Server) handleClockPause(w http.ResponseWriter, _ *http.Request) {
	s.game.Pause()
	writeJSON(w, http.StatusOK, s.game.ClockState())
}

func (s *Server) handleClockResume(w http.ResponseWriter, _ *http.Request) {
	s.game.Resume()
	writeJSON(w, http.StatusOK, s.game.ClockState())
}

func (s *Server) handleStocksList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"stocks": s.game.Stocks()})
}

func (s *Server) handleStockDetail(w http.ResponseWriter, r *http.Request) {
	stock, err := s.game.Stock(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stock)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var in struct {
		InstrumentID string `json:"instrument_id"`
		Side         string `json:"side"`
		Quantity     int64  `json:"quantity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.game.PlaceOrder(r.Context(), game.OrderInput{
		InstrumentID: in.InstrumentID,
		Side:         in.Side,
		Quantity:     in.Quantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLedger(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Ledger())
}

type amountInput struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleTakeLoan(w http.ResponseWriter, r *http.Request) {
	var in amountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.TakeLoan(in.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.game.Ledger())
}

func (s *Server) handleRepayLoan(w http.ResponseWriter, r *http.Request) {
	var in amountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.RepayLoan(in.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.game.Ledger())
}

func (s *Server) handleLoanPlan(w http.ResponseWriter, r *http.Request) {
	var in amountInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.game.SetMonthlyRepayment(in.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.game.Ledger())
}

func (s *Server) handleBudget(add, remove func(int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Amount int64 `json:"amount"`
			Remove bool  `json:"remove"`
		}
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		apply := add
		if in.Remove {
			apply = remove
		}
		if err := apply(in.Amount); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.game.Ledger())
	}
}

func (s *Server) handleProgression(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Progression())
}

func (s *Server) handleAchievements(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"achievements": s.game.Achievements()})
}

func (s *Server) handleEventsList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"events": s.game.Events()})
}

func (s *Server) handleTriggerEvent(w http.ResponseWriter, r *http.Request) {
	inst, err := s.game.TriggerEvent(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, inst)
}

func (s *Server) handleModalsPending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"modals": s.game.Modals().Pending()})
}

func (s *Server) handleModalActive(w http.ResponseWriter, _ *http.Request) {
	p, ok := s.game.Modals().Active()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleModalRespond(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid modal id")
		return
	}
	var in struct {
		Answer bool `json:"answer"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.RespondModal(id, in.Answer); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleModalDismiss(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid modal id")
		return
	}
	if err := s.game.DismissModal(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	entries, err := s.journal.List(r.Context(), s.game.ID(), limit)
	if err != nil {
		s.log.Error("journal list failed", "err", err)
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, portfolio.ErrInsufficientShares),
		errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, portfolio.ErrInvalidQuantity),
		errors.Is(err, portfolio.ErrInvalidSide), errors.Is(err, progression.ErrNegativeXP),
		errors.Is(err, ledger.ErrNoOutstandingLoan):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrLoanDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, market.ErrUnknownInstrument), errors.Is(err, events.ErrUnknownEvent),
		errors.Is(err, modal.ErrUnknownRequest), errors.Is(err, achievements.ErrUnknownAchievement):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrDeclined), errors.Is(err, modal.ErrNotActive), errors.Is(err, modal.ErrCanceled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrGameEnded):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, modal.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
