// Package tracker files hallucination incidents with an external issue
// tracker. Adapters render the fixed incident field set; the engine never
// depends on a specific tracker product.
package tracker

import (
	"context"
	"fmt"

	"github.com/veridocs/reviewctl/internal/model"
)

// Issue is the fixed field set an issue tracker consumes for an incident.
type Issue struct {
	Title               string            `json:"title"`
	Labels              []string          `json:"labels,omitempty"`
	Assignees           []string          `json:"assignees,omitempty"`
	ObservedText        string            `json:"observed_text"`
	ExpectedTruth       string            `json:"expected_truth"`
	SystemOfRecordLinks []string          `json:"system_of_record_links,omitempty"`
	FailureMode         model.FailureMode `json:"failure_mode"`
	Impact              model.Impact      `json:"impact,omitempty"`
	Reproduction        string            `json:"reproduction,omitempty"`
	Fix                 string            `json:"fix,omitempty"`
	ModelPromptVersion  string            `json:"model_prompt_version,omitempty"`
}

// Tracker files an issue and returns an external reference (URL or ID).
type Tracker interface {
	File(ctx context.Context, issue Issue) (string, error)
}

// FromIncident renders an incident into the tracker field set.
func FromIncident(inc *model.Incident, labels, assignees []string) Issue {
	return Issue{
		Title:               fmt.Sprintf("[%s] hallucination in %s: %s", inc.Severity, inc.ContentID, inc.FailureMode),
		Labels:              labels,
		Assignees:           assignees,
		ObservedText:        inc.ObservedText,
		ExpectedTruth:       inc.ExpectedTruth,
		SystemOfRecordLinks: inc.SourceLinks,
		FailureMode:         inc.FailureMode,
		Impact:              inc.Impact,
		Reproduction:        inc.Reproduction,
		Fix:                 inc.Fix,
		ModelPromptVersion:  inc.ModelPromptVersion,
	}
}
