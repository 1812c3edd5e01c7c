package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/billbatista/finance-tracker/account"
	"github.com/billbatista/finance-tracker/config"
	"github.com/billbatista/finance-tracker/eventlogger"
	"github.com/billbatista/finance-tracker/ledger"
	"github.com/billbatista/finance-tracker/middleware"
	"github.com/billbatista/finance-tracker/session"
	"github.com/billbatista/finance-tracker/settings"
	"github.com/billbatista/finance-tracker/store"
	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))
	if err := cfg.Validate(); err != nil {
		printErrorAndExit("invalid configuration", err)
	}

	db, err := store.OpenDirectory(cfg.DataDir)
	if err != nil {
		printErrorAndExit("directory store", err)
	}
	defer db.Close()

	stores := store.NewManager(cfg.DataDir)
	defer stores.Close()

	evtlogger := eventlogger.NewSqlEventLogger(db)
	worker := eventlogger.NewWorker(evtlogger, 100)
	worker.Start()
	defer worker.Shutdown()

	accountRepo := account.NewRepository(db)
	sessionRepo := session.NewRepository(db)
	engine := ledger.NewEngine(ledger.NewRepository(stores))
	budgets := settings.NewStore(stores)

	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(middleware.AuthMiddleware(sessionRepo)) // Add auth middleware globally

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{
			"authenticated": middleware.IsAuthenticated(r.Context()),
		})
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		evt := eventlogger.NewEvent(
			eventlogger.WithType("health_request"),
			eventlogger.WithData(map[string]string{
				"message":     "ok",
				"http_status": strconv.Itoa(http.StatusOK),
			}),
		)
		worker.Log(evt)
		w.Write([]byte("ok"))
	})

	router.Post("/user/register", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		acct, err := accountRepo.Register(ctx, req.Username, req.Password)
		if err != nil {
			switch err {
			case account.ErrDuplicateUsername, account.ErrDuplicateAndWeakPassword:
				http.Error(w, err.Error(), http.StatusConflict)
			case account.ErrEmptyUsername, account.ErrWeakPassword, account.ErrEmptyUsernameAndWeakPassword:
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				slog.Error("failed to register account", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		evt := eventlogger.NewEvent(
			eventlogger.WithType(eventlogger.TypeUserRegistered),
			eventlogger.WithData(map[string]string{
				"username": acct.Username,
			}),
		)
		worker.Log(evt)

		writeJSON(w, http.StatusCreated, map[string]string{"username": acct.Username})
	})

	router.Post("/user/login", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		acct, err := accountRepo.Login(ctx, req.Username, req.Password)
		if err != nil {
			if err == account.ErrInvalidCredentials {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			slog.Error("failed to log in", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		sess, err := sessionRepo.Create(ctx, acct.Username)
		if err != nil {
			slog.Error("failed to create session", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     session.CookieName,
			Value:    sess.Token,
			Path:     "/",
			Expires:  sess.ExpiresAt,
			HttpOnly: true,
			Secure:   false,
			SameSite: http.SameSiteLaxMode,
		})

		evt := eventlogger.NewEvent(
			eventlogger.WithType(eventlogger.TypeUserLoggedIn),
			eventlogger.WithData(map[string]string{
				"username":   acct.Username,
				"session_id": sess.ID.String(),
			}),
		)
		worker.Log(evt)

		writeJSON(w, http.StatusOK, map[string]string{"username": acct.Username})
	})

	// Protected routes - require authentication
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth())

		r.Post("/transactions", func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			username, _ := middleware.GetUsername(ctx)

			var req submitRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			// A budget can ride along with the batch. Supplied, it replaces
			// the stored value; absent, the persisted budget applies.
			var budgetCents int64
			var err error
			if req.Budget != "" {
				budgetCents, err = ledger.ParseAmount(req.Budget)
				if err != nil {
					http.Error(w, "please enter a valid budget amount", http.StatusBadRequest)
					return
				}
				if err := budgets.SetBudget(ctx, username, budgetCents); err != nil {
					slog.Error("failed to persist budget", "error", err)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
					return
				}
			} else {
				budgetCents, err = budgets.Budget(ctx, username)
				if err != nil {
					slog.Error("failed to load budget", "error", err)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
					return
				}
			}

			records, err := engine.SubmitBatch(ctx, username, req.Date, req.Entries, budgetCents)
			if err != nil {
				worker.Log(eventlogger.NewEvent(
					eventlogger.WithType(eventlogger.TypeBatchRejected),
					eventlogger.WithData(map[string]string{
						"username": username,
						"date":     req.Date,
						"reason":   err.Error(),
					}),
				))
				writeLedgerError(w, err)
				return
			}

			evt := eventlogger.NewEvent(
				eventlogger.WithType(eventlogger.TypeBatchCommitted),
				eventlogger.WithData(map[string]string{
					"username":    username,
					"date":        req.Date,
					"count":       strconv.Itoa(len(records)),
					"total_cents": strconv.FormatInt(ledger.BatchTotal(records), 10),
				}),
			)
			worker.Log(evt)

			writeJSON(w, http.StatusCreated, submitResponse{
				Committed:  len(records),
				Records:    records,
				TotalCents: ledger.BatchTotal(records),
			})
		})

		r.Patch("/transactions", func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			username, _ := middleware.GetUsername(ctx)

			var req ledger.Update
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			rec, err := engine.UpdateEntry(ctx, username, req)
			if err != nil {
				writeLedgerError(w, err)
				return
			}

			evt := eventlogger.NewEvent(
				eventlogger.WithType(eventlogger.TypeEntryUpdated),
				eventlogger.WithData(map[string]string{
					"username": username,
					"date":     rec.Date,
					"expense":  rec.Expense,
				}),
			)
			worker.Log(evt)

			writeJSON(w, http.StatusOK, rec)
		})

		r.Get("/transactions", func(w http.ResponseWriter, r *http.Request) {
			username, _ := middleware.GetUsername(r.Context())

			date := r.URL.Query().Get("date")
			if date == "" {
				http.Error(w, "date query parameter is required", http.StatusBadRequest)
				return
			}

			writeJSON(w, http.StatusOK, engine.RecordsForDate(r.Context(), username, date))
		})

		r.Get("/reports/monthly", func(w http.ResponseWriter, r *http.Request) {
			username, _ := middleware.GetUsername(r.Context())

			month := r.URL.Query().Get("month")
			if month == "" {
				http.Error(w, "month query parameter is required", http.StatusBadRequest)
				return
			}

			writeJSON(w, http.StatusOK, engine.RecordsForMonth(r.Context(), username, month))
		})

		r.Get("/reports/monthly/total", func(w http.ResponseWriter, r *http.Request) {
			username, _ := middleware.GetUsername(r.Context())

			month := r.URL.Query().Get("month")
			if month == "" {
				http.Error(w, "month query parameter is required", http.StatusBadRequest)
				return
			}

			writeJSON(w, http.StatusOK, map[string]any{
				"month_year":  month,
				"total_cents": engine.MonthlyTotal(r.Context(), username, month),
			})
		})

		r.Get("/budget", func(w http.ResponseWriter, r *http.Request) {
			username, _ := middleware.GetUsername(r.Context())

			cents, err := budgets.Budget(r.Context(), username)
			if err != nil {
				slog.Error("failed to load budget", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, map[string]int64{"budget_cents": cents})
		})

		r.Put("/budget", func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			username, _ := middleware.GetUsername(ctx)

			var req budgetRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}

			cents, err := ledger.ParseAmount(req.Budget)
			if err != nil {
				http.Error(w, "please enter a valid budget amount", http.StatusBadRequest)
				return
			}

			if err := budgets.SetBudget(ctx, username, cents); err != nil {
				slog.Error("failed to set budget", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			evt := eventlogger.NewEvent(
				eventlogger.WithType(eventlogger.TypeBudgetUpdated),
				eventlogger.WithData(map[string]string{
					"username":     username,
					"budget_cents": strconv.FormatInt(cents, 10),
				}),
			)
			worker.Log(evt)

			writeJSON(w, http.StatusOK, map[string]int64{"budget_cents": cents})
		})

		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			eventType := r.URL.Query().Get("type")
			if eventType == "" {
				http.Error(w, "type query parameter is required", http.StatusBadRequest)
				return
			}

			events, err := evtlogger.GetByType(r.Context(), eventType)
			if err != nil {
				slog.Error("failed to fetch events", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, events)
		})

		r.Post("/user/logout", func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(session.CookieName)
			if err == nil {
				sessionRepo.Delete(r.Context(), cookie.Value)
			}

			http.SetCookie(w, &http.Cookie{
				Name:   session.CookieName,
				Value:  "",
				Path:   "/",
				MaxAge: -1,
			})

			w.WriteHeader(http.StatusNoContent)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		printErrorAndExit("server", err)
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type submitRequest struct {
	Date    string              `json:"date"`
	Entries []ledger.BatchEntry `json:"entries"`
	Budget  string              `json:"budget,omitempty"`
}

type submitResponse struct {
	Committed  int             `json:"committed"`
	Records    []ledger.Record `json:"records"`
	TotalCents int64           `json:"total_cents"`
}

type budgetRequest struct {
	Budget string `json:"budget"`
}

// writeLedgerError maps engine failures onto HTTP statuses. Every ledger
// error is terminal for its call; nothing here retries.
func writeLedgerError(w http.ResponseWriter, err error) {
	var dup *ledger.DuplicateError
	switch {
	case errors.As(err, &dup):
		http.Error(w, dup.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrBudgetExceeded):
		http.Error(w, "transaction failed: monthly budget exceeded", http.StatusUnprocessableEntity)
	case errors.Is(err, ledger.ErrEmptyBatch),
		errors.Is(err, ledger.ErrBatchTooLarge),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidDate),
		errors.Is(err, ledger.ErrMissingFields):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrUnavailable):
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
	default:
		slog.Error("ledger operation failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func printErrorAndExit(msg string, e error) {
	slog.Error(msg, "error", e)
	os.Exit(1)
}
