// Package workflow drives review records through the hallucination-review
// state machine. Every transition failure is recoverable: the record stays
// where it is and the returned error names exactly what a human must fix.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/veridocs/reviewctl/internal/checks"
	"github.com/veridocs/reviewctl/internal/model"
	"github.com/veridocs/reviewctl/internal/store"
	"github.com/veridocs/reviewctl/internal/validate"
)

// CheckRunner is the external automated-checker collaborator invoked by the
// automated_checks stage. Any failed result blocks the stage.
type CheckRunner interface {
	Run(ctx context.Context, contentID string) ([]checks.Result, error)
}

// transitions is the allowed state graph. published -> incident_logged is
// deliberately absent: incidents go through LogIncident, which also creates
// the incident row.
var transitions = map[model.WorkflowState][]model.WorkflowState{
	model.StateIntake:             {model.StateAutomatedChecks},
	model.StateAutomatedChecks:    {model.StateEditorialScreening},
	model.StateEditorialScreening: {model.StateSMEVerification},
	model.StateSMEVerification:    {model.StateCorrection, model.StateApproval},
	model.StateCorrection:         {model.StateSMEVerification},
	model.StateApproval:           {model.StatePublished},
	model.StatePublished:          {model.StatePostMergeLogged},
	model.StateIncidentLogged:     {model.StateCorrection},
}

// Options configures an Engine.
type Options struct {
	Checks              CheckRunner
	SLA                 SLAPolicy
	MaxCorrectionRounds int
}

// Engine coordinates the record store, the validator, and the automated
// checkers. All mutation goes through the store's revision-checked update.
type Engine struct {
	store     store.Store
	validator *validate.Validator
	runner    CheckRunner
	sla       SLAPolicy
	maxRounds int
}

// New creates an Engine. A nil Checks runner disables external checkers;
// the metadata gate still applies.
func New(st store.Store, v *validate.Validator, opts Options) *Engine {
	maxRounds := opts.MaxCorrectionRounds
	if maxRounds <= 0 {
		maxRounds = 10
	}
	sla := opts.SLA
	if sla == (SLAPolicy{}) {
		sla = DefaultSLAPolicy()
	}
	return &Engine{
		store:     st,
		validator: v,
		runner:    opts.Checks,
		sla:       sla,
		maxRounds: maxRounds,
	}
}

// IntakeParams are the author's declarations at record creation.
type IntakeParams struct {
	ContentID        string
	AIAssist         model.AssistMode
	Sources          []string
	RiskLevel        model.RiskLevel
	Model            string
	PromptVersion    string
	RetrievalContext string
	Author           string
}

// Intake creates a review record for a content item. The record starts in
// the intake state; declarations may still be incomplete at this point.
func (e *Engine) Intake(ctx context.Context, p IntakeParams) (*model.ReviewRecord, error) {
	rec := &model.ReviewRecord{
		ContentID:        p.ContentID,
		AIAssist:         p.AIAssist,
		Sources:          p.Sources,
		RiskLevel:        p.RiskLevel,
		Model:            p.Model,
		PromptVersion:    p.PromptVersion,
		RetrievalContext: p.RetrievalContext,
	}
	if p.RiskLevel != "" {
		deadline := e.sla.Deadline(p.RiskLevel, time.Now().UTC())
		rec.SLADeadline = &deadline
	}

	created, err := e.store.CreateRecord(ctx, rec)
	if err != nil {
		return nil, err
	}

	e.audit(ctx, created.ID, model.AuditStateChange, p.Author, "record created at intake")
	zap.L().Info("review record created",
		zap.String("record_id", created.ID),
		zap.String("content_id", created.ContentID),
		zap.String("ai_generated", string(created.AIAssist)),
	)
	return created, nil
}

// Advance moves a record to the target state, enforcing the gate for that
// transition. On failure the record is untouched.
func (e *Engine) Advance(ctx context.Context, recordID string, to model.WorkflowState, actor string) (*model.ReviewRecord, error) {
	rec, err := e.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Archived {
		return nil, model.ErrArchived
	}
	if !allowed(rec.State, to) {
		return nil, &model.InvalidTransitionError{From: rec.State, To: to}
	}

	if err := e.gate(ctx, rec, to); err != nil {
		return nil, err
	}

	from := rec.State
	rec.State = to
	switch to {
	case model.StateCorrection:
		rec.CorrectionRounds++
	case model.StatePostMergeLogged:
		count, err := e.store.CountIncidents(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		rec.PostMerge = &model.PostMergeSummary{
			IncidentCount: count,
			LoggedAt:      time.Now().UTC(),
		}
	}

	if err := e.store.UpdateRecord(ctx, rec); err != nil {
		return nil, err
	}

	e.audit(ctx, rec.ID, model.AuditStateChange, actor, fmt.Sprintf("%s -> %s", from, to))
	zap.L().Info("record advanced",
		zap.String("record_id", rec.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor),
	)
	return rec, nil
}

// gate enforces the entry condition for the target state.
func (e *Engine) gate(ctx context.Context, rec *model.ReviewRecord, to model.WorkflowState) error {
	switch to {
	case model.StateAutomatedChecks:
		var missing []string
		if rec.AIAssist == "" {
			missing = append(missing, validate.FieldAIGenerated)
		}
		if len(rec.Sources) == 0 {
			missing = append(missing, validate.FieldSources)
		}
		if len(missing) > 0 {
			return &model.IncompleteIntakeError{Missing: missing}
		}

	case model.StateEditorialScreening:
		if err := e.validator.MetadataComplete(rec); err != nil {
			return err
		}
		if e.runner != nil {
			results, err := e.runner.Run(ctx, rec.ContentID)
			if err != nil {
				return err
			}
			if failures := checks.Failures(results); len(failures) > 0 {
				for _, f := range failures {
					e.audit(ctx, rec.ID, model.AuditCheckFailure, "", fmt.Sprintf("%s: %s", f.Name, f.Detail))
				}
				return &checks.FailedError{Failures: failures}
			}
		}

	case model.StateSMEVerification:
		// Escalation is advisory to the SME stage, but it must be recorded
		// before screening hands off.
		if rec.State == model.StateEditorialScreening {
			if unescalated := rec.UnescalatedHighSeverityClaims(); len(unescalated) > 0 {
				ids := make([]string, len(unescalated))
				for i, c := range unescalated {
					ids[i] = c.ID
				}
				return &model.EscalationRequiredError{ClaimIDs: ids}
			}
		}

	case model.StateCorrection:
		if rec.State == model.StateSMEVerification && len(rec.UnresolvedClaims()) == 0 {
			return &model.InvalidTransitionError{From: rec.State, To: to}
		}
		if rec.CorrectionRounds+1 > e.maxRounds {
			return &model.CorrectionLimitError{Rounds: rec.CorrectionRounds + 1, Max: e.maxRounds}
		}

	case model.StateApproval:
		if err := e.validator.ClaimsResolved(rec); err != nil {
			return err
		}

	case model.StatePublished:
		// The single hard gate: both named approvals must be recorded in
		// the record itself, and no claim may still be unresolved. Claims
		// are re-checked here because their status can change between the
		// approval gate and publish.
		if err := e.validator.ClaimsResolved(rec); err != nil {
			return err
		}
		if errs := e.validator.Approvals(rec); len(errs) > 0 {
			return errors.Join(errs...)
		}
	}
	return nil
}

// CompletePostMerge advances a published record to post_merge_logged with
// tuning notes attached.
func (e *Engine) CompletePostMerge(ctx context.Context, recordID, tuningNotes, actor string) (*model.ReviewRecord, error) {
	rec, err := e.Advance(ctx, recordID, model.StatePostMergeLogged, actor)
	if err != nil {
		return nil, err
	}
	if tuningNotes != "" {
		rec.PostMerge.TuningNotes = tuningNotes
		if err := e.store.UpdateRecord(ctx, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// AddClaim attaches a claim annotation to a record. New claims always start
// unclear; verification is a human act.
func (e *Engine) AddClaim(ctx context.Context, recordID, text, citation string, severity model.RiskLevel, actor string) (*model.ReviewRecord, error) {
	rec, err := e.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	rec.Claims = append(rec.Claims, model.ClaimAnnotation{
		ID:       uuid.New().String(),
		Text:     text,
		Status:   model.ClaimUnclear,
		Citation: citation,
		Severity: severity,
	})
	if err := e.store.UpdateRecord(ctx, rec); err != nil {
		return nil, err
	}
	e.audit(ctx, rec.ID, model.AuditComment, actor, "claim added: "+truncate(text, 120))
	return rec, nil
}

// MarkClaim sets a claim's verification status. Marking a claim verified
// without a citation is allowed but logged, since approval requires every
// claim to resolve to a source eventually. Once a record reaches approval
// its claims can no longer be marked unresolved; defects found after
// publish go through LogIncident.
func (e *Engine) MarkClaim(ctx context.Context, recordID, claimID string, status model.ClaimStatus, citation, actor string) (*model.ReviewRecord, error) {
	rec, err := e.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if status != model.ClaimVerified {
		switch rec.State {
		case model.StateApproval, model.StatePublished, model.StatePostMergeLogged:
			return nil, &model.ClaimLockedError{State: rec.State}
		}
	}
	claim := rec.Claim(claimID)
	if claim == nil {
		return nil, model.ErrNotFound
	}

	now := time.Now().UTC()
	claim.Status = status
	claim.MarkedBy = actor
	claim.MarkedAt = &now
	if citation != "" {
		claim.Citation = citation
	}
	if status == model.ClaimVerified && claim.Citation == "" {
		zap.L().Warn("claim verified without citation",
			zap.String("record_id", recordID),
			zap.String("claim_id", claimID),
		)
	}

	if err := e.store.UpdateRecord(ctx, rec); err != nil {
		return nil, err
	}
	e.audit(ctx, rec.ID, model.AuditComment, actor, fmt.Sprintf("claim %s marked %s", claimID, status))
	return rec, nil
}

// EscalateClaim records an escalation on a high-severity claim.
func (e *Engine) EscalateClaim(ctx context.Context, recordID, claimID, actor string) (*model.ReviewRecord, error) {
	rec, err := e.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	claim := rec.Claim(claimID)
	if claim == nil {
		return nil, model.ErrNotFound
	}
	claim.Escalated = true
	if err := e.store.UpdateRecord(ctx, rec); err != nil {
		return nil, err
	}
	e.audit(ctx, rec.ID, model.AuditComment, actor, "claim escalated: "+claimID)
	return rec, nil
}

// Approve records a role sign-off on the record. Approvals may be recorded
// during SME verification or approval; publish checks for both.
func (e *Engine) Approve(ctx context.Context, recordID string, role model.Role, approverID string) (*model.ReviewRecord, error) {
	rec, err := e.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.State != model.StateSMEVerification && rec.State != model.StateApproval {
		return nil, &model.InvalidTransitionError{From: rec.State, To: model.StatePublished}
	}

	if existing := rec.ApprovalFor(role); existing != nil {
		existing.ApproverID = approverID
		existing.ApprovedAt = time.Now().UTC()
	} else {
		rec.Approvals = append(rec.Approvals, model.Approval{
			Role:       role,
			ApproverID: approverID,
			ApprovedAt: time.Now().UTC(),
		})
	}
	if !hasVerifier(rec, role, approverID) {
		rec.VerifiedBy = append(rec.VerifiedBy, model.Verifier{Role: role, ID: approverID})
	}

	if err := e.store.UpdateRecord(ctx, rec); err != nil {
		return nil, err
	}
	e.audit(ctx, rec.ID, model.AuditComment, approverID, fmt.Sprintf("%s approval recorded", role))
	return rec, nil
}

// SetRisk changes a record's severity. Escalation is always allowed;
// downgrades require a recorded justification. The new advisory SLA
// deadline is attached either way.
func (e *Engine) SetRisk(ctx context.Context, recordID string, to model.RiskLevel, justification, actor string) (*model.ReviewRecord, error) {
	rec, err := e.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	from := rec.RiskLevel
	if from != "" && to.Rank() < from.Rank() && strings.TrimSpace(justification) == "" {
		return nil, &model.RiskDowngradeError{From: from, To: to}
	}

	now := time.Now().UTC()
	deadline := e.sla.Deadline(to, now)
	rec.RiskLevel = to
	rec.SLADeadline = &deadline
	rec.RiskHistory = append(rec.RiskHistory, model.RiskChange{
		From:          from,
		To:            to,
		Justification: justification,
		ChangedBy:     actor,
		ChangedAt:     now,
	})

	if err := e.store.UpdateRecord(ctx, rec); err != nil {
		return nil, err
	}
	e.audit(ctx, rec.ID, model.AuditComment, actor, fmt.Sprintf("risk %s -> %s", from, to))
	return rec, nil
}

// IncidentParams describe a defect discovered after publish.
type IncidentParams struct {
	Severity      model.RiskLevel
	FailureMode   model.FailureMode
	Impact        model.Impact
	ObservedText  string
	ExpectedTruth string
	SourceLinks   []string
	Reproduction  string
	RootCause     string
	Fix           string
	Reopen        bool
	Actor         string
}

// LogIncident records a hallucination incident against a published record
// and moves the record to incident_logged. With Reopen set, the record
// continues straight to correction for a republish cycle.
func (e *Engine) LogIncident(ctx context.Context, recordID string, p IncidentParams) (*model.Incident, *model.ReviewRecord, error) {
	rec, err := e.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, nil, err
	}
	if rec.State != model.StatePublished && rec.State != model.StatePostMergeLogged {
		return nil, nil, &model.InvalidTransitionError{From: rec.State, To: model.StateIncidentLogged}
	}

	inc := &model.Incident{
		RecordID:           rec.ID,
		ContentID:          rec.ContentID,
		Severity:           p.Severity,
		FailureMode:        p.FailureMode,
		Impact:             p.Impact,
		ObservedText:       p.ObservedText,
		ExpectedTruth:      p.ExpectedTruth,
		SourceLinks:        p.SourceLinks,
		Reproduction:       p.Reproduction,
		RootCause:          p.RootCause,
		Fix:                p.Fix,
		ModelPromptVersion: strings.TrimSpace(rec.Model + " / " + rec.PromptVersion),
		Reopened:           p.Reopen,
	}
	created, err := e.store.CreateIncident(ctx, inc)
	if err != nil {
		return nil, nil, err
	}

	rec.State = model.StateIncidentLogged
	if p.Reopen {
		rec.State = model.StateCorrection
		rec.CorrectionRounds++
	}
	if err := e.store.UpdateRecord(ctx, rec); err != nil {
		return created, nil, err
	}

	e.audit(ctx, rec.ID, model.AuditStateChange, p.Actor,
		fmt.Sprintf("incident %s logged (%s)", created.ID, p.FailureMode))
	zap.L().Warn("hallucination incident logged",
		zap.String("record_id", rec.ID),
		zap.String("incident_id", created.ID),
		zap.String("failure_mode", string(p.FailureMode)),
		zap.Bool("reopened", p.Reopen),
	)
	return created, rec, nil
}

// RecordContext appends prompt/retrieval context to the audit log so it
// stays addressable through the retention window.
func (e *Engine) RecordContext(ctx context.Context, recordID, actor, detail string) error {
	return e.store.AppendAudit(ctx, model.AuditEvent{
		RecordID: recordID,
		Kind:     model.AuditPromptContext,
		Actor:    actor,
		Detail:   detail,
	})
}

// Comment appends a reviewer comment to the audit log.
func (e *Engine) Comment(ctx context.Context, recordID, actor, text string) error {
	return e.store.AppendAudit(ctx, model.AuditEvent{
		RecordID: recordID,
		Kind:     model.AuditComment,
		Actor:    actor,
		Detail:   text,
	})
}

func (e *Engine) audit(ctx context.Context, recordID string, kind model.AuditEventKind, actor, detail string) {
	err := e.store.AppendAudit(ctx, model.AuditEvent{
		RecordID: recordID,
		Kind:     kind,
		Actor:    actor,
		Detail:   detail,
	})
	if err != nil {
		zap.L().Error("audit append failed",
			zap.String("record_id", recordID),
			zap.Error(err),
		)
	}
}

func allowed(from, to model.WorkflowState) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func hasVerifier(rec *model.ReviewRecord, role model.Role, id string) bool {
	for _, v := range rec.VerifiedBy {
		if v.Role == role && v.ID == id {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
