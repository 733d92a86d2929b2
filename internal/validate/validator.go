// Package validate implements the deterministic structural checks of the
// review workflow. It judges form, never truth: metadata completeness, claim
// resolution status, and approval presence are all pure functions over a
// record's state.
package validate

import (
	"github.com/veridocs/reviewctl/internal/model"
)

// Required metadata field names, in the order they are reported.
const (
	FieldAIGenerated      = "ai_generated"
	FieldSources          = "sources"
	FieldVerifiedBy       = "verified_by"
	FieldReviewDate       = "review_date"
	FieldRiskLevel        = "risk_level"
	FieldModel            = "model"
	FieldRetrievalContext = "retrieval_context"
)

// Policy is the injected configuration for structural checks. Shared state
// like the required-field set is passed in explicitly so checks stay pure.
type Policy struct {
	// RequiredFields overrides the default required metadata set when
	// non-empty. Unknown names are ignored.
	RequiredFields []string
}

// Validator runs structural checks against review records.
type Validator struct {
	required []string
}

// DefaultRequiredFields is the metadata every record must carry before it
// can leave automated checks.
var DefaultRequiredFields = []string{
	FieldAIGenerated,
	FieldSources,
	FieldVerifiedBy,
	FieldReviewDate,
	FieldRiskLevel,
	FieldModel,
	FieldRetrievalContext,
}

// New creates a Validator with the given policy.
func New(policy Policy) *Validator {
	required := policy.RequiredFields
	if len(required) == 0 {
		required = DefaultRequiredFields
	}
	return &Validator{required: required}
}

// MetadataComplete checks that every required metadata field is present.
// It returns nil when the record is complete, or a MissingFieldsError
// listing each absent field. Calling it twice on an unmodified record
// yields identical results.
func (v *Validator) MetadataComplete(rec *model.ReviewRecord) error {
	var missing []string
	for _, f := range v.required {
		if !fieldPresent(rec, f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &model.MissingFieldsError{Fields: missing}
	}
	return nil
}

// ClaimsResolved checks that no claim annotation is still unclear or
// incorrect. It returns an UnresolvedClaimsError naming each offender.
func (v *Validator) ClaimsResolved(rec *model.ReviewRecord) error {
	var ids []string
	for _, c := range rec.Claims {
		if c.Status != model.ClaimVerified {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) > 0 {
		return &model.UnresolvedClaimsError{ClaimIDs: ids}
	}
	return nil
}

// Approvals checks that both the editor and the SME have signed off.
// It returns one MissingApprovalError per absent role so the caller knows
// exactly who still has to act.
func (v *Validator) Approvals(rec *model.ReviewRecord) []error {
	var errs []error
	for _, role := range []model.Role{model.RoleSME, model.RoleEditor} {
		if !rec.HasApproval(role) {
			errs = append(errs, &model.MissingApprovalError{Role: role})
		}
	}
	return errs
}

func fieldPresent(rec *model.ReviewRecord, field string) bool {
	switch field {
	case FieldAIGenerated:
		return rec.AIAssist != ""
	case FieldSources:
		return len(rec.Sources) > 0
	case FieldVerifiedBy:
		return len(rec.VerifiedBy) > 0
	case FieldReviewDate:
		return rec.ReviewDate != nil && !rec.ReviewDate.IsZero()
	case FieldRiskLevel:
		return rec.RiskLevel != ""
	case FieldModel:
		return rec.Model != ""
	case FieldRetrievalContext:
		return rec.RetrievalContext != ""
	default:
		return true
	}
}
