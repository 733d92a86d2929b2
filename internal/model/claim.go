package model

import "time"

// ClaimStatus is the verification status of a single factual assertion.
type ClaimStatus string

const (
	ClaimVerified  ClaimStatus = "verified"
	ClaimUnclear   ClaimStatus = "unclear"
	ClaimIncorrect ClaimStatus = "incorrect"
)

// ClaimAnnotation is one factual assertion extracted from content.
// New claims start as unclear; only a human reviewer marks them verified.
type ClaimAnnotation struct {
	ID        string      `json:"id"`
	Text      string      `json:"text"`
	Status    ClaimStatus `json:"status"`
	Citation  string      `json:"citation,omitempty"`
	Severity  RiskLevel   `json:"severity,omitempty"`
	Escalated bool        `json:"escalated,omitempty"`
	MarkedBy  string      `json:"marked_by,omitempty"`
	MarkedAt  *time.Time  `json:"marked_at,omitempty"`
}
