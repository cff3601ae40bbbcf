package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

var servePort int

// submitRequest is the POST /v1/documents body: filing metadata plus the raw
// fact-document content.
type submitRequest struct {
	ID             string          `json:"id"`
	PeriodEnd      string          `json:"period_end"`
	FilingType     string          `json:"filing_type"`
	Standard       string          `json:"standard"`
	Classification string          `json:"classification"`
	Amended        bool            `json:"amended"`
	Content        json.RawMessage `json:"content"`
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status and submission server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		go func() {
			if err := e.Processor.Run(ctx); err != nil {
				zap.L().Error("processor stopped", zap.Error(err))
			}
		}()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/v1/documents", func(w http.ResponseWriter, req *http.Request) {
			var sr submitRequest
			if err := json.NewDecoder(req.Body).Decode(&sr); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
			if sr.ID == "" || len(sr.Content) == 0 {
				http.Error(w, `{"error":"id and content are required"}`, http.StatusBadRequest)
				return
			}
			periodEnd, err := time.Parse("2006-01-02", sr.PeriodEnd)
			if err != nil {
				http.Error(w, `{"error":"period_end must be YYYY-MM-DD"}`, http.StatusBadRequest)
				return
			}

			doc := model.FilingDocument{
				Meta: model.FilingMetadata{
					ID:             sr.ID,
					PeriodEnd:      periodEnd,
					FilingType:     sr.FilingType,
					Standard:       model.AccountingStandard(sr.Standard),
					Classification: model.IssuerClassification(sr.Classification),
					Amended:        sr.Amended,
				},
				Content: sr.Content,
			}
			if _, err := e.Processor.Submit(doc); err != nil {
				http.Error(w, `{"error":"processor closed"}`, http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":   "accepted",
				"document": sr.ID,
			})
		})

		r.Get("/v1/documents/{id}", func(w http.ResponseWriter, req *http.Request) {
			state, err := e.Processor.Status(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				http.Error(w, `{"error":"load state failed"}`, http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, state)
		})

		r.Get("/v1/metrics", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, e.Recorder.Snapshot())
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go shutdownWhenDone(ctx, srv, 10*time.Second)

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// shutdownWhenDone drains the server once the run context is cancelled. The
// signal context is already dead at that point, so the drain runs under its
// own deadline to let in-flight requests complete.
func shutdownWhenDone(ctx context.Context, srv *http.Server, grace time.Duration) {
	<-ctx.Done()
	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
