package store

import (
	"context"
	"time"

	"github.com/veridocs/reviewctl/internal/model"
)

// RecordFilter specifies criteria for listing review records.
type RecordFilter struct {
	State     model.WorkflowState `json:"state,omitempty"`
	RiskLevel model.RiskLevel     `json:"risk_level,omitempty"`
	ContentID string              `json:"content_id,omitempty"`
	Archived  *bool               `json:"archived,omitempty"`
	Limit     int                 `json:"limit,omitempty"`
	Offset    int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the review workflow.
//
// Record updates use optimistic locking: UpdateRecord matches on the
// record's revision and returns model.ErrConflict when a concurrent writer
// got there first. All workflow mutations go through this path.
type Store interface {
	// Records
	CreateRecord(ctx context.Context, rec *model.ReviewRecord) (*model.ReviewRecord, error)
	GetRecord(ctx context.Context, id string) (*model.ReviewRecord, error)
	GetOpenRecordByContent(ctx context.Context, contentID string) (*model.ReviewRecord, error)
	UpdateRecord(ctx context.Context, rec *model.ReviewRecord) error
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.ReviewRecord, error)
	ArchiveRecord(ctx context.Context, id string) error

	// Incidents (append-only)
	CreateIncident(ctx context.Context, inc *model.Incident) (*model.Incident, error)
	ListIncidents(ctx context.Context, recordID string) ([]model.Incident, error)
	CountIncidents(ctx context.Context, recordID string) (int, error)

	// Audit log (append-only)
	AppendAudit(ctx context.Context, ev model.AuditEvent) error
	ListAudit(ctx context.Context, recordID string, limit int) ([]model.AuditEvent, error)
	PurgeAudit(ctx context.Context, olderThan time.Time) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
