package model

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Every error in this taxonomy is recoverable by a human: the record stays
// where it is and the error names exactly what must be fixed.

// ErrNotFound is returned when a record or incident does not exist.
var ErrNotFound = eris.New("record not found")

// ErrDuplicateRecord is returned when an open record already exists for a
// content ID.
var ErrDuplicateRecord = eris.New("open review record already exists for content")

// ErrConflict is returned when a concurrent update won the revision race.
var ErrConflict = eris.New("record was modified concurrently, reload and retry")

// ErrArchived is returned for any mutation of an archived record.
var ErrArchived = eris.New("record is archived and immutable")

// IncompleteIntakeError reports what intake declarations are missing before
// automated checks can run.
type IncompleteIntakeError struct {
	Missing []string
}

func (e *IncompleteIntakeError) Error() string {
	return fmt.Sprintf("incomplete intake: missing %s", strings.Join(e.Missing, ", "))
}

// MissingFieldsError lists required metadata fields absent from a record.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required metadata: %s", strings.Join(e.Fields, ", "))
}

// UnresolvedClaimsError lists claims still unclear or incorrect.
type UnresolvedClaimsError struct {
	ClaimIDs []string
}

func (e *UnresolvedClaimsError) Error() string {
	return fmt.Sprintf("unresolved claims: %s", strings.Join(e.ClaimIDs, ", "))
}

// MissingApprovalError names a role that has not signed off.
type MissingApprovalError struct {
	Role Role
}

func (e *MissingApprovalError) Error() string {
	return fmt.Sprintf("missing approval: %s", e.Role)
}

// InvalidTransitionError reports a transition not allowed by the workflow.
type InvalidTransitionError struct {
	From WorkflowState
	To   WorkflowState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// EscalationRequiredError lists high-severity claims that editorial
// screening has not yet escalated.
type EscalationRequiredError struct {
	ClaimIDs []string
}

func (e *EscalationRequiredError) Error() string {
	return fmt.Sprintf("P0/P1 claims require recorded escalation: %s", strings.Join(e.ClaimIDs, ", "))
}

// CorrectionLimitError reports that the correction loop exceeded the
// configured bound. The bound is local policy, not part of the review
// process itself; a human must escalate outside the engine.
type CorrectionLimitError struct {
	Rounds int
	Max    int
}

func (e *CorrectionLimitError) Error() string {
	return fmt.Sprintf("correction loop exceeded %d rounds (limit %d), escalate manually", e.Rounds, e.Max)
}

// RiskDowngradeError reports an attempted severity downgrade without a
// recorded justification.
type RiskDowngradeError struct {
	From RiskLevel
	To   RiskLevel
}

func (e *RiskDowngradeError) Error() string {
	return fmt.Sprintf("risk downgrade %s -> %s requires a justification", e.From, e.To)
}

// ClaimLockedError reports an attempt to mark a claim unclear or incorrect
// after a record has reached approval. Defects found from that point on go
// through incident logging instead.
type ClaimLockedError struct {
	State WorkflowState
}

func (e *ClaimLockedError) Error() string {
	return fmt.Sprintf("claims cannot be marked unresolved at %s, log an incident instead", e.State)
}

// RetentionViolationError reports an attempt to purge audit context that is
// still inside the retention window.
type RetentionViolationError struct {
	RetentionDays int
}

func (e *RetentionViolationError) Error() string {
	return fmt.Sprintf("audit context must be retained for %d days after publish", e.RetentionDays)
}
