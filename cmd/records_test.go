package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/veridocs/reviewctl/internal/model"
)

func TestComputeRecordStats(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	recs := []model.ReviewRecord{
		{State: model.StateSMEVerification, RiskLevel: model.RiskP0, SLADeadline: &past, CorrectionRounds: 2},
		{State: model.StateSMEVerification, RiskLevel: model.RiskP2, SLADeadline: &future},
		{State: model.StatePublished, RiskLevel: model.RiskP1, SLADeadline: &past},
		{State: model.StateIntake, Archived: true},
	}

	s := computeRecordStats(recs)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.ByState[model.StateSMEVerification])
	assert.Equal(t, 1, s.ByState[model.StatePublished])
	assert.Equal(t, 1, s.ByRisk[model.RiskP0])
	// The published record is past its deadline but no longer counts.
	assert.Equal(t, 1, s.Overdue)
	assert.Equal(t, 1, s.Archived)
	assert.InDelta(t, 0.5, s.AvgRounds, 0.001)
}

func TestComputeRecordStats_Empty(t *testing.T) {
	s := computeRecordStats(nil)
	assert.Equal(t, 0, s.Total)
	assert.Equal(t, 0, s.Overdue)
	assert.Zero(t, s.AvgRounds)
}

func TestFormatRecordsList(t *testing.T) {
	deadline := time.Date(2026, 8, 20, 17, 0, 0, 0, time.UTC)
	recs := []model.ReviewRecord{
		{
			ID:               "0198c1de-5a4b-7000-8000-000000000001",
			ContentID:        "docs/a-very-long-content-identifier-path.md",
			State:            model.StateSMEVerification,
			RiskLevel:        model.RiskP1,
			CorrectionRounds: 1,
			SLADeadline:      &deadline,
			UpdatedAt:        time.Date(2026, 8, 18, 9, 30, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	formatRecordsList(&buf, recs)
	out := buf.String()

	assert.Contains(t, out, "0198c1de")
	assert.NotContains(t, out, "0198c1de-5a4b")
	assert.Contains(t, out, "sme_verification")
	assert.Contains(t, out, "P1")
	assert.Contains(t, out, "2026-08-20 17:00")
	assert.Contains(t, out, "...") // long content id truncated
}

func TestFormatRecordStats(t *testing.T) {
	var buf bytes.Buffer
	formatRecordStats(&buf, recordStats{
		Total:     3,
		ByState:   map[model.WorkflowState]int{model.StatePublished: 2, model.StateCorrection: 1},
		ByRisk:    map[model.RiskLevel]int{model.RiskP0: 1},
		Overdue:   1,
		AvgRounds: 1.5,
	})
	out := buf.String()

	assert.Contains(t, out, "Total records:")
	assert.Contains(t, out, "published:")
	assert.Contains(t, out, "correction:")
	assert.Contains(t, out, "P0:")
	assert.Contains(t, out, "Overdue:")
	assert.Contains(t, out, "1.5")
}

func TestFormatClaims(t *testing.T) {
	var buf bytes.Buffer
	formatClaims(&buf, []model.ClaimAnnotation{
		{
			ID:        "0198c1de-5a4b-7000-8000-000000000002",
			Text:      "the retry budget defaults to three attempts before surfacing an error",
			Status:    model.ClaimUnclear,
			Severity:  model.RiskP1,
			Escalated: true,
		},
	})
	out := buf.String()

	assert.Contains(t, out, "unclear")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "...")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "0198c1de", truncateID("0198c1de-5a4b-7000"))
	assert.Equal(t, "short", truncateID("short"))
}
