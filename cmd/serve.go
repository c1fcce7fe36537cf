package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fieldforge/extract-cli/internal/config"
	"github.com/fieldforge/extract-cli/internal/model"
	"github.com/fieldforge/extract-cli/internal/tokendoc"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction and feedback HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func newRouter(env *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	// Retraining is expensive; the limiter sheds bursts instead of queueing
	// them behind the per-template lock.
	retrainLimiter := rate.NewLimiter(rate.Limit(cfg.Server.RetrainsPerMinute/60), 1)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/extract", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			DocumentID string   `json:"document_id"`
			TemplateID string   `json:"template_id"`
			Fields     []string `json:"fields"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.DocumentID == "" || body.TemplateID == "" {
			writeError(w, http.StatusBadRequest, "document_id and template_id are required")
			return
		}

		tpl, err := config.LoadTemplate(cfg.Templates.Dir, body.TemplateID)
		if err != nil {
			writeError(w, http.StatusNotFound, "unknown template")
			return
		}
		fields, err := selectFields(tpl, body.Fields)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		doc, err := env.Docs.Load(req.Context(), body.DocumentID)
		if eris.Is(err, tokendoc.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown document")
			return
		}
		if err != nil {
			zap.L().Error("serve: load document failed", zap.String("document_id", body.DocumentID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "document load failed")
			return
		}
		doc.TemplateID = tpl.TemplateID

		results, err := env.Service.ExtractFields(req.Context(), doc, fields)
		if err != nil {
			zap.L().Error("serve: extraction failed", zap.String("document_id", body.DocumentID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "extraction failed")
			return
		}
		writeJSON(w, http.StatusOK, results)
	})

	r.Post("/api/feedback", func(w http.ResponseWriter, req *http.Request) {
		var fb model.FeedbackRecord
		if err := json.NewDecoder(req.Body).Decode(&fb); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if fb.DocumentID == "" || fb.TemplateID == "" || fb.FieldName == "" || fb.CorrectedValue == "" {
			writeError(w, http.StatusBadRequest, "document_id, template_id, field_name and corrected_value are required")
			return
		}

		saved, err := env.Service.SubmitFeedback(req.Context(), fb)
		if err != nil {
			zap.L().Error("serve: feedback failed", zap.String("document_id", fb.DocumentID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "feedback failed")
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	})

	r.Post("/api/retrain", func(w http.ResponseWriter, req *http.Request) {
		if !retrainLimiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "retrain rate limit exceeded")
			return
		}
		var body struct {
			TemplateID string `json:"template_id"`
			All        bool   `json:"all"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.TemplateID == "" {
			writeError(w, http.StatusBadRequest, "template_id is required")
			return
		}

		// Run the cycle in the background; progress lands in the training
		// history, queryable via the history endpoint.
		go func() {
			result, err := env.Pipeline.Retrain(context.Background(), body.TemplateID, body.All)
			if err != nil {
				zap.L().Error("serve: retrain failed",
					zap.String("template_id", body.TemplateID),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("serve: retrain finished",
				zap.String("template_id", body.TemplateID),
				zap.String("outcome", string(result.Outcome)),
				zap.Int("model_version", result.ModelVersion),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":      "accepted",
			"template_id": body.TemplateID,
		})
	})

	r.Get("/api/templates/{templateID}/stats", func(w http.ResponseWriter, req *http.Request) {
		records, err := env.Store.ListPerformance(req.Context(), chi.URLParam(req, "templateID"))
		if err != nil {
			zap.L().Error("serve: list performance failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "stats lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, records)
	})

	r.Get("/api/templates/{templateID}/history", func(w http.ResponseWriter, req *http.Request) {
		limit := 20
		if raw := req.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}
		runs, err := env.Store.ListTrainingRuns(req.Context(), chi.URLParam(req, "templateID"), limit)
		if err != nil {
			zap.L().Error("serve: list training runs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "history lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
