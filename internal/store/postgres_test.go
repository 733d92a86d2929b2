package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridocs/reviewctl/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func recordRow(t *testing.T, rec *model.ReviewRecord) *pgxmock.Rows {
	t.Helper()
	doc, err := json.Marshal(rec)
	require.NoError(t, err)
	return pgxmock.NewRows([]string{"doc", "revision", "archived", "updated_at"}).
		AddRow(doc, rec.Revision, rec.Archived, rec.UpdatedAt)
}

func TestPostgresStore_GetRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT doc, revision, archived, updated_at FROM review_records WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRecord(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec := &model.ReviewRecord{
		ID:        "rec-1",
		ContentID: "docs/retry-policy.md",
		State:     model.StateSMEVerification,
		Revision:  3,
		UpdatedAt: time.Now().UTC(),
	}
	mock.ExpectQuery(`SELECT doc, revision, archived, updated_at FROM review_records WHERE id = \$1`).
		WithArgs("rec-1").
		WillReturnRows(recordRow(t, rec))

	got, err := s.GetRecord(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "docs/retry-policy.md", got.ContentID)
	assert.Equal(t, model.StateSMEVerification, got.State)
	assert.Equal(t, int64(3), got.Revision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRecord_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO review_records`).
		WithArgs(pgxmock.AnyArg(), "docs/dup.md", "intake", "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := s.CreateRecord(context.Background(), &model.ReviewRecord{ContentID: "docs/dup.md"})
	assert.ErrorIs(t, err, model.ErrDuplicateRecord)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRecord_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec := &model.ReviewRecord{
		ID:        "rec-2",
		ContentID: "docs/conflict.md",
		State:     model.StateIntake,
		Revision:  1,
		UpdatedAt: time.Now().UTC(),
	}
	mock.ExpectQuery(`SELECT doc, revision, archived, updated_at FROM review_records WHERE id = \$1`).
		WithArgs("rec-2").
		WillReturnRows(recordRow(t, rec))
	// Another writer bumped the revision, so the guarded update matches no rows.
	mock.ExpectExec(`UPDATE review_records`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	rec.State = model.StateAutomatedChecks
	err := s.UpdateRecord(context.Background(), rec)
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRecord_Archived(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec := &model.ReviewRecord{
		ID:        "rec-3",
		ContentID: "docs/frozen.md",
		State:     model.StatePublished,
		Revision:  5,
		Archived:  true,
		UpdatedAt: time.Now().UTC(),
	}
	mock.ExpectQuery(`SELECT doc, revision, archived, updated_at FROM review_records WHERE id = \$1`).
		WithArgs("rec-3").
		WillReturnRows(recordRow(t, rec))

	err := s.UpdateRecord(context.Background(), rec)
	assert.ErrorIs(t, err, model.ErrArchived)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ArchiveRecord_MissingApproval(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec := &model.ReviewRecord{
		ID:        "rec-4",
		ContentID: "docs/unapproved.md",
		State:     model.StatePublished,
		Revision:  2,
		Approvals: []model.Approval{
			{Role: model.RoleEditor, ApproverID: "ed-1", ApprovedAt: time.Now().UTC()},
		},
		UpdatedAt: time.Now().UTC(),
	}
	mock.ExpectQuery(`SELECT doc, revision, archived, updated_at FROM review_records WHERE id = \$1`).
		WithArgs("rec-4").
		WillReturnRows(recordRow(t, rec))

	err := s.ArchiveRecord(context.Background(), "rec-4")
	var missing *model.MissingApprovalError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, model.RoleSME, missing.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountIncidents(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM incidents WHERE record_id = \$1`).
		WithArgs("rec-5").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	n, err := s.CountIncidents(context.Background(), "rec-5")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendAudit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO audit_events`).
		WithArgs(pgxmock.AnyArg(), "rec-6", "comment", "alex", "looks wrong", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendAudit(context.Background(), model.AuditEvent{
		RecordID: "rec-6",
		Kind:     model.AuditComment,
		Actor:    "alex",
		Detail:   "looks wrong",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PurgeAudit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM audit_events WHERE created_at <= \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := s.PurgeAudit(context.Background(), time.Now().UTC().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
