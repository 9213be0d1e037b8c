package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealroom-cli/internal/faults"
	"github.com/sells-group/dealroom-cli/internal/model"
	"github.com/sells-group/dealroom-cli/internal/queryengine"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only HTTP query surface",
	Long: "Serves guarded fact queries and conflict listings over HTTP. The surface is " +
		"read-only: ingestion and conflict resolution stay on the CLI.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter assembles the read-only route set.
func buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/deals/{deal}", func(r chi.Router) {
		r.Get("/", handleDealSummary)
		r.Get("/facts", handleFacts)
		r.Get("/conflicts", handleConflicts)
	})
	return r
}

func handleDealSummary(w http.ResponseWriter, r *http.Request) {
	env, err := openExistingDeal(r.Context(), chi.URLParam(r, "deal"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer env.Close()

	deal, err := env.store.GetDeal(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	cases, err := env.store.ListCases(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	docs, err := env.store.ListDocuments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	conflicts, err := env.store.ListConflicts(r.Context(), true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deal":           deal,
		"cases":          cases,
		"documents":      docs,
		"open_conflicts": len(conflicts),
	})
}

func handleFacts(w http.ResponseWriter, r *http.Request) {
	env, err := openExistingDeal(r.Context(), chi.URLParam(r, "deal"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer env.Close()

	q := r.URL.Query()
	res, err := env.engine.QueryFacts(r.Context(), queryengine.Filters{
		Table:       model.FactTable(q.Get("table")),
		Category:    q.Get("category"),
		CaseName:    q.Get("case"),
		SemanticKey: q.Get("key"),
		Entity:      q.Get("entity"),
		PeriodFrom:  q.Get("from"),
		PeriodTo:    q.Get("to"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func handleConflicts(w http.ResponseWriter, r *http.Request) {
	env, err := openExistingDeal(r.Context(), chi.URLParam(r, "deal"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer env.Close()

	onlyOpen := r.URL.Query().Get("all") == ""
	conflicts, err := env.store.ListConflicts(r.Context(), onlyOpen)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conflicts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch faults.KindOf(err) {
	case faults.Validation, faults.Query:
		status = http.StatusBadRequest
	case faults.NotFound:
		status = http.StatusNotFound
	case faults.Timeout:
		status = http.StatusGatewayTimeout
	}
	zap.L().Warn("request failed", zap.Int("status", status), zap.Error(err))
	writeJSON(w, status, map[string]string{
		"kind":  string(faults.KindOf(err)),
		"error": err.Error(),
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
