package workflow

import (
	"time"

	"github.com/veridocs/reviewctl/internal/model"
)

// SLAPolicy maps severity tiers to advisory fix deadlines. Deadlines are
// attached to records as metadata; nothing in the engine enforces them.
type SLAPolicy struct {
	P0             time.Duration
	P1BusinessDays int
	Cycle          time.Duration
}

// DefaultSLAPolicy mirrors the review process defaults: P0 within 24 hours,
// P1 within 3 business days, P2/P3 by the next scheduled cycle.
func DefaultSLAPolicy() SLAPolicy {
	return SLAPolicy{
		P0:             24 * time.Hour,
		P1BusinessDays: 3,
		Cycle:          14 * 24 * time.Hour,
	}
}

// Deadline computes the advisory deadline for a severity set at the given
// time.
func (p SLAPolicy) Deadline(level model.RiskLevel, from time.Time) time.Time {
	switch level {
	case model.RiskP0:
		return from.Add(p.P0)
	case model.RiskP1:
		return addBusinessDays(from, p.P1BusinessDays)
	default:
		return from.Add(p.Cycle)
	}
}

func addBusinessDays(t time.Time, days int) time.Time {
	for days > 0 {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days--
		}
	}
	return t
}
