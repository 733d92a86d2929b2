package workflow

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridocs/reviewctl/internal/checks"
	"github.com/veridocs/reviewctl/internal/model"
	"github.com/veridocs/reviewctl/internal/store"
	"github.com/veridocs/reviewctl/internal/validate"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestEngine(t *testing.T, st store.Store, opts Options) *Engine {
	t.Helper()
	return New(st, validate.New(validate.Policy{}), opts)
}

// stubRunner returns canned check results.
type stubRunner struct {
	results []checks.Result
	err     error
}

func (s *stubRunner) Run(_ context.Context, _ string) ([]checks.Result, error) {
	return s.results, s.err
}

func intakeRecord(t *testing.T, eng *Engine, contentID string) *model.ReviewRecord {
	t.Helper()
	rec, err := eng.Intake(context.Background(), IntakeParams{
		ContentID:        contentID,
		AIAssist:         model.AssistPartial,
		Sources:          []string{"https://config-service/docs"},
		RiskLevel:        model.RiskP2,
		Model:            "claude-sonnet-4-5",
		PromptVersion:    "v3",
		RetrievalContext: "docs-repo@abc123",
		Author:           "alex",
	})
	require.NoError(t, err)
	return rec
}

// completeMetadata fills the reviewer fields the author declares in front
// matter, so the record can pass the editorial screening gate.
func completeMetadata(t *testing.T, st store.Store, rec *model.ReviewRecord) *model.ReviewRecord {
	t.Helper()
	ctx := context.Background()
	loaded, err := st.GetRecord(ctx, rec.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	loaded.VerifiedBy = []model.Verifier{{Role: model.RoleSME, ID: "sme-1"}}
	loaded.ReviewDate = &now
	require.NoError(t, st.UpdateRecord(ctx, loaded))
	return loaded
}

// toSMEVerification walks a fresh record to sme_verification.
func toSMEVerification(t *testing.T, st store.Store, eng *Engine, contentID string) *model.ReviewRecord {
	t.Helper()
	ctx := context.Background()

	rec := intakeRecord(t, eng, contentID)
	_, err := eng.Advance(ctx, rec.ID, model.StateAutomatedChecks, "alex")
	require.NoError(t, err)

	completeMetadata(t, st, rec)
	_, err = eng.Advance(ctx, rec.ID, model.StateEditorialScreening, "alex")
	require.NoError(t, err)

	rec2, err := eng.Advance(ctx, rec.ID, model.StateSMEVerification, "alex")
	require.NoError(t, err)
	return rec2
}

// toPublished walks a fresh record all the way to published.
func toPublished(t *testing.T, st store.Store, eng *Engine, contentID string) *model.ReviewRecord {
	t.Helper()
	ctx := context.Background()

	rec := toSMEVerification(t, st, eng, contentID)
	_, err := eng.Approve(ctx, rec.ID, model.RoleSME, "sme-1")
	require.NoError(t, err)
	_, err = eng.Approve(ctx, rec.ID, model.RoleEditor, "ed-1")
	require.NoError(t, err)

	_, err = eng.Advance(ctx, rec.ID, model.StateApproval, "alex")
	require.NoError(t, err)
	rec2, err := eng.Advance(ctx, rec.ID, model.StatePublished, "alex")
	require.NoError(t, err)
	return rec2
}

// --- Intake ---

func TestEngine_Intake(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})

	rec := intakeRecord(t, eng, "docs/retry-policy.md")
	assert.Equal(t, model.StateIntake, rec.State)
	require.NotNil(t, rec.SLADeadline)

	evs, err := st.ListAudit(context.Background(), rec.ID, 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, model.AuditStateChange, evs[0].Kind)
}

func TestEngine_Intake_DuplicateContent(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})

	intakeRecord(t, eng, "docs/dup.md")
	_, err := eng.Intake(context.Background(), IntakeParams{
		ContentID: "docs/dup.md",
		AIAssist:  model.AssistFull,
		Sources:   []string{"s"},
	})
	assert.ErrorIs(t, err, model.ErrDuplicateRecord)
}

// --- Automated checks gate ---

func TestEngine_Advance_IncompleteIntake(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	t.Run("missing everything", func(t *testing.T) {
		rec, err := eng.Intake(ctx, IntakeParams{ContentID: "docs/empty.md"})
		require.NoError(t, err)

		_, err = eng.Advance(ctx, rec.ID, model.StateAutomatedChecks, "alex")
		var incomplete *model.IncompleteIntakeError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, []string{validate.FieldAIGenerated, validate.FieldSources}, incomplete.Missing)
	})

	t.Run("zero sources is incomplete", func(t *testing.T) {
		rec, err := eng.Intake(ctx, IntakeParams{
			ContentID: "docs/nosources.md",
			AIAssist:  model.AssistFull,
			Sources:   []string{},
		})
		require.NoError(t, err)

		_, err = eng.Advance(ctx, rec.ID, model.StateAutomatedChecks, "alex")
		var incomplete *model.IncompleteIntakeError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, []string{validate.FieldSources}, incomplete.Missing)

		// The record did not move.
		got, err := st.GetRecord(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StateIntake, got.State)
	})

	t.Run("declared none still needs sources", func(t *testing.T) {
		rec, err := eng.Intake(ctx, IntakeParams{
			ContentID: "docs/manual.md",
			AIAssist:  model.AssistNone,
			Sources:   []string{"https://config-service/docs"},
		})
		require.NoError(t, err)

		_, err = eng.Advance(ctx, rec.ID, model.StateAutomatedChecks, "alex")
		require.NoError(t, err)
	})
}

// --- Editorial screening gate ---

func TestEngine_Advance_MetadataGate(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := intakeRecord(t, eng, "docs/meta.md")
	_, err := eng.Advance(ctx, rec.ID, model.StateAutomatedChecks, "alex")
	require.NoError(t, err)

	// verified_by and review_date are still missing.
	_, err = eng.Advance(ctx, rec.ID, model.StateEditorialScreening, "alex")
	var missing *model.MissingFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Fields, validate.FieldVerifiedBy)
	assert.Contains(t, missing.Fields, validate.FieldReviewDate)

	completeMetadata(t, st, rec)
	_, err = eng.Advance(ctx, rec.ID, model.StateEditorialScreening, "alex")
	require.NoError(t, err)
}

func TestEngine_Advance_CheckFailuresBlock(t *testing.T) {
	st := newTestStore(t)
	runner := &stubRunner{results: []checks.Result{
		{Name: "links", Passed: false, Detail: "https://gone.example: 404"},
		{Name: "schema", Passed: true},
	}}
	eng := newTestEngine(t, st, Options{Checks: runner})
	ctx := context.Background()

	rec := intakeRecord(t, eng, "docs/badlinks.md")
	_, err := eng.Advance(ctx, rec.ID, model.StateAutomatedChecks, "alex")
	require.NoError(t, err)
	completeMetadata(t, st, rec)

	_, err = eng.Advance(ctx, rec.ID, model.StateEditorialScreening, "alex")
	var failed *checks.FailedError
	require.ErrorAs(t, err, &failed)
	require.Len(t, failed.Failures, 1)
	assert.Equal(t, "links", failed.Failures[0].Name)

	// Each failure is audited.
	evs, err := st.ListAudit(ctx, rec.ID, 10)
	require.NoError(t, err)
	var checkFailures int
	for _, ev := range evs {
		if ev.Kind == model.AuditCheckFailure {
			checkFailures++
		}
	}
	assert.Equal(t, 1, checkFailures)
}

// --- Escalation gate ---

func TestEngine_Advance_EscalationRequired(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := intakeRecord(t, eng, "docs/escalate.md")
	_, err := eng.Advance(ctx, rec.ID, model.StateAutomatedChecks, "alex")
	require.NoError(t, err)
	completeMetadata(t, st, rec)
	_, err = eng.Advance(ctx, rec.ID, model.StateEditorialScreening, "alex")
	require.NoError(t, err)

	updated, err := eng.AddClaim(ctx, rec.ID, "supports 10k concurrent connections", "", model.RiskP0, "ed-1")
	require.NoError(t, err)
	claimID := updated.Claims[0].ID

	_, err = eng.Advance(ctx, rec.ID, model.StateSMEVerification, "ed-1")
	var escalation *model.EscalationRequiredError
	require.ErrorAs(t, err, &escalation)
	assert.Equal(t, []string{claimID}, escalation.ClaimIDs)

	_, err = eng.EscalateClaim(ctx, rec.ID, claimID, "ed-1")
	require.NoError(t, err)
	_, err = eng.Advance(ctx, rec.ID, model.StateSMEVerification, "ed-1")
	require.NoError(t, err)
}

// --- Correction loop ---

func TestEngine_CorrectionLoop(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{MaxCorrectionRounds: 2})
	ctx := context.Background()

	rec := toSMEVerification(t, st, eng, "docs/loop.md")

	// No unresolved claims means nothing to correct.
	_, err := eng.Advance(ctx, rec.ID, model.StateCorrection, "sme-1")
	var invalid *model.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)

	updated, err := eng.AddClaim(ctx, rec.ID, "default timeout is 60s", "", model.RiskP2, "sme-1")
	require.NoError(t, err)
	claimID := updated.Claims[0].ID
	_, err = eng.MarkClaim(ctx, rec.ID, claimID, model.ClaimIncorrect, "https://config-service/schema", "sme-1")
	require.NoError(t, err)

	// Round 1.
	got, err := eng.Advance(ctx, rec.ID, model.StateCorrection, "sme-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CorrectionRounds)
	_, err = eng.Advance(ctx, rec.ID, model.StateSMEVerification, "alex")
	require.NoError(t, err)

	// Round 2.
	got, err = eng.Advance(ctx, rec.ID, model.StateCorrection, "sme-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CorrectionRounds)
	_, err = eng.Advance(ctx, rec.ID, model.StateSMEVerification, "alex")
	require.NoError(t, err)

	// Round 3 exceeds the bound.
	_, err = eng.Advance(ctx, rec.ID, model.StateCorrection, "sme-1")
	var limit *model.CorrectionLimitError
	require.ErrorAs(t, err, &limit)
	assert.Equal(t, 2, limit.Max)
}

// --- Approval and publish gates ---

func TestEngine_Advance_ApprovalGate(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := toSMEVerification(t, st, eng, "docs/approve.md")

	updated, err := eng.AddClaim(ctx, rec.ID, "default timeout is 30s", "", model.RiskP2, "sme-1")
	require.NoError(t, err)
	claimID := updated.Claims[0].ID

	// An unclear claim blocks the move to approval.
	_, err = eng.Advance(ctx, rec.ID, model.StateApproval, "sme-1")
	var unresolved *model.UnresolvedClaimsError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []string{claimID}, unresolved.ClaimIDs)

	_, err = eng.MarkClaim(ctx, rec.ID, claimID, model.ClaimVerified, "https://config-service/schema", "sme-1")
	require.NoError(t, err)
	_, err = eng.Advance(ctx, rec.ID, model.StateApproval, "sme-1")
	require.NoError(t, err)
}

func TestEngine_Advance_PublishRequiresBothApprovals(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := toSMEVerification(t, st, eng, "docs/publish.md")
	_, err := eng.Advance(ctx, rec.ID, model.StateApproval, "alex")
	require.NoError(t, err)

	// No approvals at all: both roles are named.
	_, err = eng.Advance(ctx, rec.ID, model.StatePublished, "alex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sme")
	assert.Contains(t, err.Error(), "editor")

	// SME alone is not enough.
	_, err = eng.Approve(ctx, rec.ID, model.RoleSME, "sme-1")
	require.NoError(t, err)
	_, err = eng.Advance(ctx, rec.ID, model.StatePublished, "alex")
	var missing *model.MissingApprovalError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, model.RoleEditor, missing.Role)

	_, err = eng.Approve(ctx, rec.ID, model.RoleEditor, "ed-1")
	require.NoError(t, err)
	got, err := eng.Advance(ctx, rec.ID, model.StatePublished, "alex")
	require.NoError(t, err)
	assert.Equal(t, model.StatePublished, got.State)
}

func TestEngine_Approve_OnlyDuringReview(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := intakeRecord(t, eng, "docs/early.md")
	_, err := eng.Approve(ctx, rec.ID, model.RoleEditor, "ed-1")
	var invalid *model.InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestEngine_Approve_ReplacesSameRole(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := toSMEVerification(t, st, eng, "docs/rerole.md")
	_, err := eng.Approve(ctx, rec.ID, model.RoleSME, "sme-1")
	require.NoError(t, err)
	got, err := eng.Approve(ctx, rec.ID, model.RoleSME, "sme-2")
	require.NoError(t, err)

	require.Len(t, got.Approvals, 1)
	assert.Equal(t, "sme-2", got.Approvals[0].ApproverID)
	assert.Len(t, got.VerifiedBy, 2) // declared sme-1 plus the second approver
}

// PublishedUnreachable drives random allowed transitions and asserts a
// record can never reach published without both approvals recorded.
func TestEngine_PublishedUnreachableWithoutApprovals(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{MaxCorrectionRounds: 100})
	ctx := context.Background()

	rec := toSMEVerification(t, st, eng, "docs/random.md")
	rng := rand.New(rand.NewSource(42))

	targets := []model.WorkflowState{
		model.StateSMEVerification,
		model.StateCorrection,
		model.StateApproval,
		model.StatePublished,
	}
	for i := 0; i < 200; i++ {
		to := targets[rng.Intn(len(targets))]
		got, err := eng.Advance(ctx, rec.ID, to, "fuzz")
		if err != nil {
			continue
		}
		require.NotEqual(t, model.StatePublished, got.State,
			"published reached without approvals")
	}
}

// --- Incidents ---

func TestEngine_LogIncident(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := toPublished(t, st, eng, "docs/incident.md")

	inc, got, err := eng.LogIncident(ctx, rec.ID, IncidentParams{
		Severity:      model.RiskP1,
		FailureMode:   model.FailureWrongDefault,
		Impact:        model.ImpactCustomerMinor,
		ObservedText:  "timeout defaults to 60s",
		ExpectedTruth: "timeout defaults to 30s",
		SourceLinks:   []string{"https://config-service/schema"},
		Actor:         "support-1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StateIncidentLogged, got.State)
	assert.Equal(t, rec.ContentID, inc.ContentID)
	assert.Equal(t, "claude-sonnet-4-5 / v3", inc.ModelPromptVersion)
	assert.False(t, inc.Reopened)
}

func TestEngine_LogIncident_Reopen(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := toPublished(t, st, eng, "docs/reopen.md")

	inc, got, err := eng.LogIncident(ctx, rec.ID, IncidentParams{
		Severity:    model.RiskP0,
		FailureMode: model.FailureInventedEntity,
		Reopen:      true,
		Actor:       "support-1",
	})
	require.NoError(t, err)
	assert.True(t, inc.Reopened)
	assert.Equal(t, model.StateCorrection, got.State)
	assert.Equal(t, 1, got.CorrectionRounds)

	// The reopened record cycles back through verification normally.
	_, err = eng.Advance(ctx, rec.ID, model.StateSMEVerification, "alex")
	require.NoError(t, err)
}

func TestEngine_LogIncident_OnlyAfterPublish(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := toSMEVerification(t, st, eng, "docs/tooearly.md")
	_, _, err := eng.LogIncident(ctx, rec.ID, IncidentParams{
		Severity:    model.RiskP2,
		FailureMode: model.FailureOther,
	})
	var invalid *model.InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

// --- Post merge ---

func TestEngine_CompletePostMerge(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := toPublished(t, st, eng, "docs/postmerge.md")
	_, _, err := eng.LogIncident(ctx, rec.ID, IncidentParams{
		Severity:    model.RiskP2,
		FailureMode: model.FailureVersionDrift,
	})
	require.NoError(t, err)

	// incident_logged -> correction -> ... is one path; here the record was
	// not reopened, so walk it back through the review cycle first.
	loaded, err := st.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateIncidentLogged, loaded.State)

	_, err = eng.Advance(ctx, rec.ID, model.StateCorrection, "alex")
	require.NoError(t, err)
	_, err = eng.Advance(ctx, rec.ID, model.StateSMEVerification, "alex")
	require.NoError(t, err)
	_, err = eng.Advance(ctx, rec.ID, model.StateApproval, "alex")
	require.NoError(t, err)
	_, err = eng.Advance(ctx, rec.ID, model.StatePublished, "alex")
	require.NoError(t, err)

	got, err := eng.CompletePostMerge(ctx, rec.ID, "tighten retrieval to pinned schema version", "alex")
	require.NoError(t, err)
	assert.Equal(t, model.StatePostMergeLogged, got.State)
	require.NotNil(t, got.PostMerge)
	assert.Equal(t, 1, got.PostMerge.IncidentCount)
	assert.Equal(t, "tighten retrieval to pinned schema version", got.PostMerge.TuningNotes)
}

// --- Risk ---

func TestEngine_SetRisk(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := intakeRecord(t, eng, "docs/risk.md")

	t.Run("escalation needs no justification", func(t *testing.T) {
		got, err := eng.SetRisk(ctx, rec.ID, model.RiskP0, "", "ed-1")
		require.NoError(t, err)
		assert.Equal(t, model.RiskP0, got.RiskLevel)
		require.NotNil(t, got.SLADeadline)
		require.Len(t, got.RiskHistory, 1)
		assert.Equal(t, model.RiskP2, got.RiskHistory[0].From)
	})

	t.Run("downgrade without justification rejected", func(t *testing.T) {
		_, err := eng.SetRisk(ctx, rec.ID, model.RiskP3, "", "ed-1")
		var downgrade *model.RiskDowngradeError
		require.ErrorAs(t, err, &downgrade)
		assert.Equal(t, model.RiskP0, downgrade.From)
		assert.Equal(t, model.RiskP3, downgrade.To)
	})

	t.Run("downgrade with justification recorded", func(t *testing.T) {
		got, err := eng.SetRisk(ctx, rec.ID, model.RiskP3, "content moved behind auth, exposure reduced", "ed-1")
		require.NoError(t, err)
		assert.Equal(t, model.RiskP3, got.RiskLevel)
		require.Len(t, got.RiskHistory, 2)
		assert.NotEmpty(t, got.RiskHistory[1].Justification)
	})
}

// --- Archived records ---

func TestEngine_Advance_ArchivedRecord(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := toPublished(t, st, eng, "docs/archived.md")
	require.NoError(t, st.ArchiveRecord(ctx, rec.ID))

	_, err := eng.Advance(ctx, rec.ID, model.StatePostMergeLogged, "alex")
	assert.ErrorIs(t, err, model.ErrArchived)
}

// --- Invalid transitions ---

func TestEngine_Advance_InvalidTransitions(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := intakeRecord(t, eng, "docs/jump.md")

	for _, to := range []model.WorkflowState{
		model.StatePublished,
		model.StateApproval,
		model.StateIncidentLogged,
		model.StateIntake,
	} {
		_, err := eng.Advance(ctx, rec.ID, to, "alex")
		var invalid *model.InvalidTransitionError
		require.ErrorAs(t, err, &invalid, "intake -> %s should be rejected", to)
	}
}

// --- Claims ---

func TestEngine_MarkClaim_Missing(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})

	rec := intakeRecord(t, eng, "docs/noclaim.md")
	_, err := eng.MarkClaim(context.Background(), rec.ID, "nonexistent", model.ClaimVerified, "", "sme-1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestEngine_AddClaim_StartsUnclear(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})

	rec := intakeRecord(t, eng, "docs/unclear.md")
	got, err := eng.AddClaim(context.Background(), rec.ID, "supports TLS 1.3", "", model.RiskP3, "ed-1")
	require.NoError(t, err)
	require.Len(t, got.Claims, 1)
	assert.Equal(t, model.ClaimUnclear, got.Claims[0].Status)
	assert.NotEmpty(t, got.Claims[0].ID)
}

func TestEngine_MarkClaim_LockedAfterApproval(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := toSMEVerification(t, st, eng, "docs/locked.md")
	rec, err := eng.AddClaim(ctx, rec.ID, "retries default to three attempts", "", model.RiskP2, "sme-1")
	require.NoError(t, err)
	claimID := rec.Claims[0].ID
	_, err = eng.MarkClaim(ctx, rec.ID, claimID, model.ClaimVerified, "https://config-service/docs#retries", "sme-1")
	require.NoError(t, err)
	_, err = eng.Advance(ctx, rec.ID, model.StateApproval, "alex")
	require.NoError(t, err)

	_, err = eng.MarkClaim(ctx, rec.ID, claimID, model.ClaimIncorrect, "", "sme-1")
	var locked *model.ClaimLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, model.StateApproval, locked.State)

	got, err := st.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClaimVerified, got.Claims[0].Status)

	// Re-marking verified with a better citation is still allowed.
	_, err = eng.MarkClaim(ctx, rec.ID, claimID, model.ClaimVerified, "https://config-service/docs#retry-budget", "sme-1")
	require.NoError(t, err)
}

func TestEngine_MarkClaim_LockedAfterPublish(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := toPublished(t, st, eng, "docs/late-defect.md")
	rec, err := eng.AddClaim(ctx, rec.ID, "the default timeout is 30 seconds", "", model.RiskP1, "sme-1")
	require.NoError(t, err)

	_, err = eng.MarkClaim(ctx, rec.ID, rec.Claims[0].ID, model.ClaimIncorrect, "", "sme-1")
	var locked *model.ClaimLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, model.StatePublished, locked.State)
}

func TestEngine_Advance_PublishRechecksClaims(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(t, st, Options{})
	ctx := context.Background()

	rec := toSMEVerification(t, st, eng, "docs/recheck.md")
	rec, err := eng.AddClaim(ctx, rec.ID, "the retry budget defaults to three attempts", "", model.RiskP2, "sme-1")
	require.NoError(t, err)
	claimID := rec.Claims[0].ID
	_, err = eng.MarkClaim(ctx, rec.ID, claimID, model.ClaimVerified, "https://config-service/docs#retries", "sme-1")
	require.NoError(t, err)
	_, err = eng.Approve(ctx, rec.ID, model.RoleSME, "sme-1")
	require.NoError(t, err)
	_, err = eng.Approve(ctx, rec.ID, model.RoleEditor, "ed-1")
	require.NoError(t, err)
	_, err = eng.Advance(ctx, rec.ID, model.StateApproval, "alex")
	require.NoError(t, err)

	// A claim going bad between the approval gate and publish must still
	// block publish, even with both approvals recorded.
	loaded, err := st.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	loaded.Claims[0].Status = model.ClaimIncorrect
	require.NoError(t, st.UpdateRecord(ctx, loaded))

	_, err = eng.Advance(ctx, rec.ID, model.StatePublished, "alex")
	var unresolved *model.UnresolvedClaimsError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []string{claimID}, unresolved.ClaimIDs)

	got, err := st.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateApproval, got.State)
	assert.Equal(t, model.ClaimIncorrect, got.Claims[0].Status)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghij", 10))

	// Never cuts inside a multi-byte rune.
	out := truncate(strings.Repeat("é", 10), 10)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "ééé...", out)
}
