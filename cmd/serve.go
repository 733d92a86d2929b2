package main

import (
	"context"
	"encoding/json"
	"errors"
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

	"github.com/veridocs/reviewctl/internal/checks"
	"github.com/veridocs/reviewctl/internal/model"
	"github.com/veridocs/reviewctl/internal/monitoring"
	"github.com/veridocs/reviewctl/internal/store"
	"github.com/veridocs/reviewctl/internal/workflow"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	Long:  "Serves the review workflow over HTTP and runs the background SLA checker.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initReadyStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng := newEngine(st)

		// Background SLA checker
		checker := monitoring.NewChecker(
			monitoring.NewCollector(st),
			monitoring.NewAlerter(cfg.Server.AlertWebhook),
			time.Duration(cfg.Server.SLACheckSecs)*time.Second,
		)
		go checker.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st, eng),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the HTTP API over an open store and engine.
func newRouter(st store.Store, eng *workflow.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/records", func(r chi.Router) {
		r.Post("/", handleIntake(eng))
		r.Get("/", handleListRecords(st))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", handleGetRecord(st))
			r.Post("/advance", handleAdvance(eng))
			r.Post("/archive", handleArchive(st))
			r.Post("/approve", handleApprove(eng))
			r.Post("/risk", handleRisk(eng))
			r.Post("/claims", handleAddClaim(eng))
			r.Post("/claims/{claimID}/mark", handleMarkClaim(eng))
			r.Post("/claims/{claimID}/escalate", handleEscalateClaim(eng))
			r.Post("/incidents", handleLogIncident(eng))
			r.Get("/incidents", handleListIncidents(st))
			r.Get("/audit", handleListAudit(st))
		})
	})

	r.Post("/checks", handleRunChecks())

	return r
}

func handleIntake(eng *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ContentID        string   `json:"content_id"`
			AIGenerated      string   `json:"ai_generated"`
			Sources          []string `json:"sources"`
			RiskLevel        string   `json:"risk_level"`
			Model            string   `json:"model"`
			PromptVersion    string   `json:"prompt_version"`
			RetrievalContext string   `json:"retrieval_context"`
			Author           string   `json:"author"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.ContentID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content_id is required"})
			return
		}

		rec, err := eng.Intake(r.Context(), workflow.IntakeParams{
			ContentID:        req.ContentID,
			AIAssist:         model.AssistMode(req.AIGenerated),
			Sources:          req.Sources,
			RiskLevel:        model.RiskLevel(req.RiskLevel),
			Model:            req.Model,
			PromptVersion:    req.PromptVersion,
			RetrievalContext: req.RetrievalContext,
			Author:           req.Author,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func handleListRecords(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.RecordFilter{
			State:     model.WorkflowState(q.Get("state")),
			RiskLevel: model.RiskLevel(q.Get("risk")),
			ContentID: q.Get("content"),
			Limit:     100,
		}
		if q.Get("archived") != "true" {
			archived := false
			filter.Archived = &archived
		}

		recs, err := st.ListRecords(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func handleGetRecord(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := st.GetRecord(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleAdvance(eng *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			To    string `json:"to"`
			Actor string `json:"actor"`
			Notes string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		id := chi.URLParam(r, "id")
		to := model.WorkflowState(req.To)

		var rec *model.ReviewRecord
		var err error
		if to == model.StatePostMergeLogged {
			rec, err = eng.CompletePostMerge(r.Context(), id, req.Notes, req.Actor)
		} else {
			rec, err = eng.Advance(r.Context(), id, to, req.Actor)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleArchive(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.ArchiveRecord(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
	}
}

func handleApprove(eng *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Role       string `json:"role"`
			ApproverID string `json:"approver_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Role == "" || req.ApproverID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role and approver_id are required"})
			return
		}

		rec, err := eng.Approve(r.Context(), chi.URLParam(r, "id"), model.Role(req.Role), req.ApproverID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleRisk(eng *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Level         string `json:"level"`
			Justification string `json:"justification"`
			Actor         string `json:"actor"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		rec, err := eng.SetRisk(r.Context(), chi.URLParam(r, "id"), model.RiskLevel(req.Level), req.Justification, req.Actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleAddClaim(eng *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text     string `json:"text"`
			Citation string `json:"citation"`
			Severity string `json:"severity"`
			Actor    string `json:"actor"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Text == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
			return
		}

		rec, err := eng.AddClaim(r.Context(), chi.URLParam(r, "id"), req.Text, req.Citation, model.RiskLevel(req.Severity), req.Actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleMarkClaim(eng *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status   string `json:"status"`
			Citation string `json:"citation"`
			Actor    string `json:"actor"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		rec, err := eng.MarkClaim(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "claimID"),
			model.ClaimStatus(req.Status), req.Citation, req.Actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleEscalateClaim(eng *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Actor string `json:"actor"`
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		rec, err := eng.EscalateClaim(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "claimID"), req.Actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleLogIncident(eng *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Severity      string   `json:"severity"`
			FailureMode   string   `json:"failure_mode"`
			Impact        string   `json:"impact"`
			ObservedText  string   `json:"observed_text"`
			ExpectedTruth string   `json:"expected_truth"`
			SourceLinks   []string `json:"system_of_record_links"`
			Reproduction  string   `json:"reproduction"`
			RootCause     string   `json:"root_cause"`
			Fix           string   `json:"fix"`
			Reopen        bool     `json:"reopen"`
			Actor         string   `json:"actor"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		inc, rec, err := eng.LogIncident(r.Context(), chi.URLParam(r, "id"), workflow.IncidentParams{
			Severity:      model.RiskLevel(req.Severity),
			FailureMode:   model.FailureMode(req.FailureMode),
			Impact:        model.Impact(req.Impact),
			ObservedText:  req.ObservedText,
			ExpectedTruth: req.ExpectedTruth,
			SourceLinks:   req.SourceLinks,
			Reproduction:  req.Reproduction,
			RootCause:     req.RootCause,
			Fix:           req.Fix,
			Reopen:        req.Reopen,
			Actor:         req.Actor,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"incident": inc, "record": rec})
	}
}

func handleListIncidents(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		incidents, err := st.ListIncidents(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, incidents)
	}
}

func handleListAudit(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := st.ListAudit(r.Context(), chi.URLParam(r, "id"), 500)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func handleRunChecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ContentID string `json:"content_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContentID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content_id is required"})
			return
		}

		results, err := newRunner().Run(r.Context(), req.ContentID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps workflow errors onto HTTP statuses. Gate failures are 422
// so callers can distinguish "fix the record" from "fix the request".
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var (
		incomplete *model.IncompleteIntakeError
		missing    *model.MissingFieldsError
		unresolved *model.UnresolvedClaimsError
		approval   *model.MissingApprovalError
		transition *model.InvalidTransitionError
		escalation *model.EscalationRequiredError
		corrLimit  *model.CorrectionLimitError
		downgrade  *model.RiskDowngradeError
		locked     *model.ClaimLockedError
		checkFail  *checks.FailedError
	)
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrDuplicateRecord),
		errors.Is(err, model.ErrConflict),
		errors.Is(err, model.ErrArchived):
		status = http.StatusConflict
	case errors.As(err, &transition):
		status = http.StatusConflict
	case errors.As(err, &incomplete),
		errors.As(err, &missing),
		errors.As(err, &unresolved),
		errors.As(err, &approval),
		errors.As(err, &escalation),
		errors.As(err, &corrLimit),
		errors.As(err, &downgrade),
		errors.As(err, &locked),
		errors.As(err, &checkFail):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
