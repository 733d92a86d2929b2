package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/veridocs/reviewctl/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS review_records (
	id         TEXT PRIMARY KEY,
	content_id TEXT NOT NULL,
	state      TEXT NOT NULL DEFAULT 'intake',
	risk_level TEXT NOT NULL DEFAULT '',
	archived   INTEGER NOT NULL DEFAULT 0,
	revision   INTEGER NOT NULL DEFAULT 1,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS incidents (
	id         TEXT PRIMARY KEY,
	record_id  TEXT NOT NULL REFERENCES review_records(id),
	content_id TEXT NOT NULL,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT PRIMARY KEY,
	record_id  TEXT NOT NULL,
	kind       TEXT NOT NULL,
	actor      TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_records_open_content
	ON review_records(content_id) WHERE archived = 0;
CREATE INDEX IF NOT EXISTS idx_records_state ON review_records(state);
CREATE INDEX IF NOT EXISTS idx_incidents_record_id ON incidents(record_id);
CREATE INDEX IF NOT EXISTS idx_audit_record_id ON audit_events(record_id);
CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_events(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRecord(ctx context.Context, rec *model.ReviewRecord) (*model.ReviewRecord, error) {
	now := time.Now().UTC()
	out := *rec
	out.ID = uuid.New().String()
	out.State = model.StateIntake
	out.Revision = 1
	out.Archived = false
	out.CreatedAt = now
	out.UpdatedAt = now

	doc, err := json.Marshal(&out)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal record")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO review_records (id, content_id, state, risk_level, archived, revision, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, 1, ?, ?, ?)`,
		out.ID, out.ContentID, string(out.State), string(out.RiskLevel), string(doc), now, now,
	)
	if err != nil {
		// The partial unique index on (content_id) WHERE archived = 0 is the
		// backstop against racing intakes.
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, model.ErrDuplicateRecord
		}
		return nil, eris.Wrap(err, "sqlite: insert record")
	}
	return &out, nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.ReviewRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc, revision, archived, updated_at FROM review_records WHERE id = ?`, id)
	return scanRecord(row)
}

func (s *SQLiteStore) GetOpenRecordByContent(ctx context.Context, contentID string) (*model.ReviewRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc, revision, archived, updated_at FROM review_records
		 WHERE content_id = ? AND archived = 0`, contentID)
	return scanRecord(row)
}

func (s *SQLiteStore) UpdateRecord(ctx context.Context, rec *model.ReviewRecord) error {
	current, err := s.GetRecord(ctx, rec.ID)
	if err != nil {
		return err
	}
	if current.Archived {
		return model.ErrArchived
	}

	now := time.Now().UTC()
	next := *rec
	next.Revision = rec.Revision + 1
	next.UpdatedAt = now

	doc, err := json.Marshal(&next)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE review_records
		 SET state = ?, risk_level = ?, revision = ?, doc = ?, updated_at = ?
		 WHERE id = ? AND revision = ? AND archived = 0`,
		string(next.State), string(next.RiskLevel), next.Revision, string(doc), now,
		rec.ID, rec.Revision,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update record %s", rec.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return model.ErrConflict
	}

	*rec = next
	return nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.ReviewRecord, error) {
	query := `SELECT doc, revision, archived, updated_at FROM review_records WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.RiskLevel != "" {
		query += ` AND risk_level = ?`
		args = append(args, string(filter.RiskLevel))
	}
	if filter.ContentID != "" {
		query += ` AND content_id = ?`
		args = append(args, filter.ContentID)
	}
	if filter.Archived != nil {
		query += ` AND archived = ?`
		args = append(args, boolToInt(*filter.Archived))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var recs []model.ReviewRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) ArchiveRecord(ctx context.Context, id string) error {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.Archived {
		return model.ErrArchived
	}
	if !rec.HasApproval(model.RoleEditor) {
		return &model.MissingApprovalError{Role: model.RoleEditor}
	}
	if !rec.HasApproval(model.RoleSME) {
		return &model.MissingApprovalError{Role: model.RoleSME}
	}

	rec.Archived = true
	now := time.Now().UTC()
	doc, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE review_records SET archived = 1, doc = ?, updated_at = ? WHERE id = ? AND archived = 0`,
		string(doc), now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: archive record %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return model.ErrConflict
	}
	return nil
}

func (s *SQLiteStore) CreateIncident(ctx context.Context, inc *model.Incident) (*model.Incident, error) {
	if _, err := s.GetRecord(ctx, inc.RecordID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := *inc
	out.ID = uuid.New().String()
	out.CreatedAt = now
	if out.Date.IsZero() {
		out.Date = now
	}

	doc, err := json.Marshal(&out)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal incident")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO incidents (id, record_id, content_id, doc, created_at) VALUES (?, ?, ?, ?, ?)`,
		out.ID, out.RecordID, out.ContentID, string(doc), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert incident for record %s", inc.RecordID)
	}
	return &out, nil
}

func (s *SQLiteStore) ListIncidents(ctx context.Context, recordID string) ([]model.Incident, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM incidents WHERE record_id = ? ORDER BY created_at DESC`, recordID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list incidents")
	}
	defer rows.Close()

	var incs []model.Incident
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan incident")
		}
		var inc model.Incident
		if err := json.Unmarshal([]byte(doc), &inc); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal incident")
		}
		incs = append(incs, inc)
	}
	return incs, eris.Wrap(rows.Err(), "sqlite: list incidents iterate")
}

func (s *SQLiteStore) CountIncidents(ctx context.Context, recordID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM incidents WHERE record_id = ?`, recordID).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count incidents")
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, ev model.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, record_id, kind, actor, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.RecordID, string(ev.Kind), ev.Actor, ev.Detail, ev.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: append audit event")
}

func (s *SQLiteStore) ListAudit(ctx context.Context, recordID string, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, record_id, kind, actor, detail, created_at FROM audit_events
		 WHERE record_id = ? ORDER BY created_at DESC LIMIT ?`, recordID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit events")
	}
	defer rows.Close()

	var evs []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var kind string
		if err := rows.Scan(&ev.ID, &ev.RecordID, &kind, &ev.Actor, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit event")
		}
		ev.Kind = model.AuditEventKind(kind)
		evs = append(evs, ev)
	}
	return evs, eris.Wrap(rows.Err(), "sqlite: list audit events iterate")
}

func (s *SQLiteStore) PurgeAudit(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE created_at <= ?`, olderThan.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge audit events")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.ReviewRecord, error) {
	var doc string
	var revision int64
	var archived int
	var updatedAt time.Time

	err := row.Scan(&doc, &revision, &archived, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan record")
	}

	var rec model.ReviewRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal record")
	}
	// The columns, not the doc, are authoritative for concurrency control.
	rec.Revision = revision
	rec.Archived = archived != 0
	rec.UpdatedAt = updatedAt
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
