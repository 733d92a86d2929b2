package model

import "time"

// WorkflowState represents the current stage of a review record.
type WorkflowState string

const (
	StateIntake             WorkflowState = "intake"
	StateAutomatedChecks    WorkflowState = "automated_checks"
	StateEditorialScreening WorkflowState = "editorial_screening"
	StateSMEVerification    WorkflowState = "sme_verification"
	StateCorrection         WorkflowState = "correction"
	StateApproval           WorkflowState = "approval"
	StatePublished          WorkflowState = "published"
	StatePostMergeLogged    WorkflowState = "post_merge_logged"
	StateIncidentLogged     WorkflowState = "incident_logged"
)

// AssistMode describes how much of the content was AI-generated.
type AssistMode string

const (
	AssistFull    AssistMode = "full"
	AssistPartial AssistMode = "partial"
	AssistNone    AssistMode = "none"
)

// RiskLevel is an ordered severity tier. P0 is the highest.
type RiskLevel string

const (
	RiskP0 RiskLevel = "P0"
	RiskP1 RiskLevel = "P1"
	RiskP2 RiskLevel = "P2"
	RiskP3 RiskLevel = "P3"
)

// Rank returns a comparable severity rank; higher means more severe.
// Unknown levels rank below P3.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskP0:
		return 4
	case RiskP1:
		return 3
	case RiskP2:
		return 2
	case RiskP3:
		return 1
	default:
		return 0
	}
}

// Role identifies a reviewer role in the workflow.
type Role string

const (
	RoleEditor Role = "editor"
	RoleSME    Role = "sme"
)

// Verifier is a named reviewer attached to a record.
type Verifier struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

// Approval records a sign-off by a role. Publish requires one per role.
type Approval struct {
	Role       Role      `json:"role"`
	ApproverID string    `json:"approver_id"`
	ApprovedAt time.Time `json:"approved_at"`
}

// RiskChange records a risk level change with its justification.
// Downgrades without a justification are rejected by the engine.
type RiskChange struct {
	From          RiskLevel `json:"from"`
	To            RiskLevel `json:"to"`
	Justification string    `json:"justification,omitempty"`
	ChangedBy     string    `json:"changed_by,omitempty"`
	ChangedAt     time.Time `json:"changed_at"`
}

// PostMergeSummary is written when a record moves to post_merge_logged.
type PostMergeSummary struct {
	IncidentCount int       `json:"incident_count"`
	TuningNotes   string    `json:"tuning_notes,omitempty"`
	LoggedAt      time.Time `json:"logged_at"`
}

// ReviewRecord tracks one content item through the review workflow.
type ReviewRecord struct {
	ID               string            `json:"id"`
	ContentID        string            `json:"content_id"`
	AIAssist         AssistMode        `json:"ai_generated"`
	Sources          []string          `json:"sources"`
	VerifiedBy       []Verifier        `json:"verified_by"`
	ReviewDate       *time.Time        `json:"review_date,omitempty"`
	RiskLevel        RiskLevel         `json:"risk_level,omitempty"`
	Model            string            `json:"model,omitempty"`
	PromptVersion    string            `json:"prompt_version,omitempty"`
	RetrievalContext string            `json:"retrieval_context,omitempty"`
	State            WorkflowState     `json:"state"`
	Claims           []ClaimAnnotation `json:"claims,omitempty"`
	Approvals        []Approval        `json:"approvals,omitempty"`
	RiskHistory      []RiskChange      `json:"risk_history,omitempty"`
	SLADeadline      *time.Time        `json:"sla_deadline,omitempty"`
	CorrectionRounds int               `json:"correction_rounds"`
	PostMerge        *PostMergeSummary `json:"post_merge,omitempty"`
	Archived         bool              `json:"archived"`
	Revision         int64             `json:"revision"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// ApprovalFor returns the approval recorded for role, or nil.
func (r *ReviewRecord) ApprovalFor(role Role) *Approval {
	for i := range r.Approvals {
		if r.Approvals[i].Role == role {
			return &r.Approvals[i]
		}
	}
	return nil
}

// HasApproval reports whether an approval for role is recorded.
func (r *ReviewRecord) HasApproval(role Role) bool {
	return r.ApprovalFor(role) != nil
}

// UnresolvedClaims returns claims still marked unclear or incorrect.
func (r *ReviewRecord) UnresolvedClaims() []ClaimAnnotation {
	var out []ClaimAnnotation
	for _, c := range r.Claims {
		if c.Status != ClaimVerified {
			out = append(out, c)
		}
	}
	return out
}

// Claim returns the claim with the given ID, or nil.
func (r *ReviewRecord) Claim(id string) *ClaimAnnotation {
	for i := range r.Claims {
		if r.Claims[i].ID == id {
			return &r.Claims[i]
		}
	}
	return nil
}

// UnescalatedHighSeverityClaims returns P0/P1 claims that have no recorded
// escalation. Editorial screening must escalate these before advancing.
func (r *ReviewRecord) UnescalatedHighSeverityClaims() []ClaimAnnotation {
	var out []ClaimAnnotation
	for _, c := range r.Claims {
		if (c.Severity == RiskP0 || c.Severity == RiskP1) && !c.Escalated {
			out = append(out, c)
		}
	}
	return out
}
