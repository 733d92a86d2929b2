package model

import "time"

// FailureMode categorizes how a published claim turned out to be wrong.
type FailureMode string

const (
	FailureInventedEntity FailureMode = "invented_entity"
	FailureVersionDrift   FailureMode = "version_drift"
	FailureWrongDefault   FailureMode = "wrong_default"
	FailureSchemaMismatch FailureMode = "schema_mismatch"
	FailureOther          FailureMode = "other"
)

// Impact categorizes who was affected by a published defect.
type Impact string

const (
	ImpactInternal      Impact = "internal"
	ImpactCustomerMinor Impact = "customer_minor"
	ImpactCustomerMajor Impact = "customer_major"
)

// Incident records a hallucination discovered after publish. Incidents are
// append-only and always reference an existing review record.
type Incident struct {
	ID                 string      `json:"id"`
	RecordID           string      `json:"record_id"`
	ContentID          string      `json:"content_id"`
	Date               time.Time   `json:"date"`
	Severity           RiskLevel   `json:"severity"`
	FailureMode        FailureMode `json:"failure_mode"`
	Impact             Impact      `json:"impact,omitempty"`
	ObservedText       string      `json:"observed_text,omitempty"`
	ExpectedTruth      string      `json:"expected_truth,omitempty"`
	SourceLinks        []string    `json:"system_of_record_links,omitempty"`
	Reproduction       string      `json:"reproduction,omitempty"`
	RootCause          string      `json:"root_cause,omitempty"`
	Fix                string      `json:"fix,omitempty"`
	ModelPromptVersion string      `json:"model_prompt_version,omitempty"`
	Reopened           bool        `json:"reopened"`
	CreatedAt          time.Time   `json:"created_at"`
}

// AuditEventKind labels what an audit event captures.
type AuditEventKind string

const (
	AuditStateChange   AuditEventKind = "state_change"
	AuditComment       AuditEventKind = "comment"
	AuditCheckFailure  AuditEventKind = "check_failure"
	AuditPromptContext AuditEventKind = "prompt_context"
)

// AuditEvent is one append-only entry in the review audit log.
type AuditEvent struct {
	ID        string         `json:"id"`
	RecordID  string         `json:"record_id"`
	Kind      AuditEventKind `json:"kind"`
	Actor     string         `json:"actor,omitempty"`
	Detail    string         `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}
