package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/veridocs/reviewctl/internal/model"
)

// Pool abstracts the pgx connection pool so tests can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS review_records (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	content_id TEXT NOT NULL,
	state      TEXT NOT NULL DEFAULT 'intake',
	risk_level TEXT NOT NULL DEFAULT '',
	archived   BOOLEAN NOT NULL DEFAULT false,
	revision   BIGINT NOT NULL DEFAULT 1,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS incidents (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	record_id  TEXT NOT NULL REFERENCES review_records(id),
	content_id TEXT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	record_id  TEXT NOT NULL,
	kind       TEXT NOT NULL,
	actor      TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_records_open_content
	ON review_records(content_id) WHERE archived = false;
CREATE INDEX IF NOT EXISTS idx_records_state ON review_records(state);
CREATE INDEX IF NOT EXISTS idx_incidents_record_id ON incidents(record_id);
CREATE INDEX IF NOT EXISTS idx_audit_record_id ON audit_events(record_id);
CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_events(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRecord(ctx context.Context, rec *model.ReviewRecord) (*model.ReviewRecord, error) {
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
		return nil, eris.Wrap(err, "postgres: marshal record")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO review_records (id, content_id, state, risk_level, archived, revision, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, false, 1, $5, $6, $7)`,
		out.ID, out.ContentID, string(out.State), string(out.RiskLevel), doc, now, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, model.ErrDuplicateRecord
		}
		return nil, eris.Wrap(err, "postgres: insert record")
	}
	return &out, nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*model.ReviewRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT doc, revision, archived, updated_at FROM review_records WHERE id = $1`, id)
	return scanPostgresRecord(row)
}

func (s *PostgresStore) GetOpenRecordByContent(ctx context.Context, contentID string) (*model.ReviewRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT doc, revision, archived, updated_at FROM review_records
		 WHERE content_id = $1 AND archived = false`, contentID)
	return scanPostgresRecord(row)
}

func (s *PostgresStore) UpdateRecord(ctx context.Context, rec *model.ReviewRecord) error {
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
		return eris.Wrap(err, "postgres: marshal record")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE review_records
		 SET state = $1, risk_level = $2, revision = $3, doc = $4, updated_at = $5
		 WHERE id = $6 AND revision = $7 AND archived = false`,
		string(next.State), string(next.RiskLevel), next.Revision, doc, now,
		rec.ID, rec.Revision,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update record %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrConflict
	}

	*rec = next
	return nil
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.ReviewRecord, error) {
	query := `SELECT doc, revision, archived, updated_at FROM review_records WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.State != "" {
		query += ` AND state = ` + arg(string(filter.State))
	}
	if filter.RiskLevel != "" {
		query += ` AND risk_level = ` + arg(string(filter.RiskLevel))
	}
	if filter.ContentID != "" {
		query += ` AND content_id = ` + arg(filter.ContentID)
	}
	if filter.Archived != nil {
		query += ` AND archived = ` + arg(*filter.Archived)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var recs []model.ReviewRecord
	for rows.Next() {
		r, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) ArchiveRecord(ctx context.Context, id string) error {
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
	doc, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE review_records SET archived = true, doc = $1, updated_at = $2 WHERE id = $3 AND archived = false`,
		doc, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: archive record %s", id)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrConflict
	}
	return nil
}

func (s *PostgresStore) CreateIncident(ctx context.Context, inc *model.Incident) (*model.Incident, error) {
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
		return nil, eris.Wrap(err, "postgres: marshal incident")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO incidents (id, record_id, content_id, doc, created_at) VALUES ($1, $2, $3, $4, $5)`,
		out.ID, out.RecordID, out.ContentID, doc, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert incident for record %s", inc.RecordID)
	}
	return &out, nil
}

func (s *PostgresStore) ListIncidents(ctx context.Context, recordID string) ([]model.Incident, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM incidents WHERE record_id = $1 ORDER BY created_at DESC`, recordID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list incidents")
	}
	defer rows.Close()

	var incs []model.Incident
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan incident")
		}
		var inc model.Incident
		if err := json.Unmarshal(doc, &inc); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal incident")
		}
		incs = append(incs, inc)
	}
	return incs, eris.Wrap(rows.Err(), "postgres: list incidents iterate")
}

func (s *PostgresStore) CountIncidents(ctx context.Context, recordID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM incidents WHERE record_id = $1`, recordID).Scan(&n)
	return n, eris.Wrap(err, "postgres: count incidents")
}

func (s *PostgresStore) AppendAudit(ctx context.Context, ev model.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_events (id, record_id, kind, actor, detail, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.RecordID, string(ev.Kind), ev.Actor, ev.Detail, ev.CreatedAt,
	)
	return eris.Wrap(err, "postgres: append audit event")
}

func (s *PostgresStore) ListAudit(ctx context.Context, recordID string, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, record_id, kind, actor, detail, created_at FROM audit_events
		 WHERE record_id = $1 ORDER BY created_at DESC LIMIT $2`, recordID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit events")
	}
	defer rows.Close()

	var evs []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var kind string
		if err := rows.Scan(&ev.ID, &ev.RecordID, &kind, &ev.Actor, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit event")
		}
		ev.Kind = model.AuditEventKind(kind)
		evs = append(evs, ev)
	}
	return evs, eris.Wrap(rows.Err(), "postgres: list audit events iterate")
}

func (s *PostgresStore) PurgeAudit(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM audit_events WHERE created_at <= $1`, olderThan.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge audit events")
	}
	return int(tag.RowsAffected()), nil
}

// helpers

func scanPostgresRecord(row scannable) (*model.ReviewRecord, error) {
	var doc []byte
	var revision int64
	var archived bool
	var updatedAt time.Time

	err := row.Scan(&doc, &revision, &archived, &updatedAt)
	if err == pgx.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan record")
	}

	var rec model.ReviewRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal record")
	}
	rec.Revision = revision
	rec.Archived = archived
	rec.UpdatedAt = updatedAt
	return &rec, nil
}
