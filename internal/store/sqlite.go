package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/orgmap/internal/model"
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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tenant_mappings (
	tenant_id          TEXT PRIMARY KEY,
	mapping_id         TEXT NOT NULL,
	source             TEXT NOT NULL,
	overall_confidence REAL NOT NULL,
	mapping            TEXT NOT NULL,
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS mapping_history (
	id                 TEXT PRIMARY KEY,
	tenant_id          TEXT NOT NULL,
	mapping_id         TEXT NOT NULL,
	source             TEXT NOT NULL,
	overall_confidence REAL NOT NULL,
	mapping            TEXT NOT NULL,
	saved_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tenant_bundles (
	tenant_id   TEXT PRIMARY KEY,
	bundle      TEXT NOT NULL,
	captured_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_mapping_history_tenant ON mapping_history(tenant_id, saved_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveMapping(ctx context.Context, m *model.OrgMapping) error {
	if err := validateMapping(m); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save mapping")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := writeMappingSQLite(ctx, tx, m, time.Now().UTC()); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save mapping")
}

func (s *SQLiteStore) SaveClassification(ctx context.Context, b *model.MetadataBundle, m *model.OrgMapping) error {
	if err := validateBundle(b); err != nil {
		return err
	}
	if err := validateMapping(m); err != nil {
		return err
	}
	if b.TenantID != m.TenantID {
		return eris.Errorf("sqlite: bundle tenant %s does not match mapping tenant %s", b.TenantID, m.TenantID)
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save classification")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := writeBundleSQLite(ctx, tx, b, now); err != nil {
		return err
	}
	if err := writeMappingSQLite(ctx, tx, m, now); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save classification")
}

// sqlExecer is satisfied by both *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeMappingSQLite(ctx context.Context, ex sqlExecer, m *model.OrgMapping, now time.Time) error {
	data, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal mapping")
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO tenant_mappings (tenant_id, mapping_id, source, overall_confidence, mapping, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET
		   mapping_id = excluded.mapping_id,
		   source = excluded.source,
		   overall_confidence = excluded.overall_confidence,
		   mapping = excluded.mapping,
		   updated_at = excluded.updated_at`,
		m.TenantID, m.ID, string(m.Source), m.OverallConfidence, string(data), now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert mapping %s", m.TenantID)
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO mapping_history (id, tenant_id, mapping_id, source, overall_confidence, mapping, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), m.TenantID, m.ID, string(m.Source), m.OverallConfidence, string(data), now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert mapping history %s", m.TenantID)
	}
	return nil
}

func writeBundleSQLite(ctx context.Context, ex sqlExecer, b *model.MetadataBundle, now time.Time) error {
	data, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal bundle")
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO tenant_bundles (tenant_id, bundle, captured_at) VALUES (?, ?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET bundle = excluded.bundle, captured_at = excluded.captured_at`,
		b.TenantID, string(data), now,
	)
	return eris.Wrapf(err, "sqlite: save bundle %s", b.TenantID)
}

func (s *SQLiteStore) GetMapping(ctx context.Context, tenantID string) (*model.OrgMapping, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT mapping FROM tenant_mappings WHERE tenant_id = ?`, tenantID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get mapping %s", tenantID)
	}
	var m model.OrgMapping
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal mapping")
	}
	return &m, nil
}

func (s *SQLiteStore) DeleteMapping(ctx context.Context, tenantID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenant_mappings WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete mapping %s", tenantID)
	}
	return checkRowsAffected(res, tenantID)
}

func (s *SQLiteStore) ListTenants(ctx context.Context) ([]MappingSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, mapping_id, source, overall_confidence, updated_at
		 FROM tenant_mappings ORDER BY tenant_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tenants")
	}
	defer rows.Close() //nolint:errcheck
	return scanSummaries(rows)
}

func (s *SQLiteStore) MappingHistory(ctx context.Context, tenantID string, limit int) ([]MappingSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, mapping_id, source, overall_confidence, saved_at
		 FROM mapping_history WHERE tenant_id = ?
		 ORDER BY saved_at DESC, rowid DESC LIMIT ?`,
		tenantID, historyLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: mapping history %s", tenantID)
	}
	defer rows.Close() //nolint:errcheck
	return scanSummaries(rows)
}

func (s *SQLiteStore) SaveBundle(ctx context.Context, b *model.MetadataBundle) error {
	if err := validateBundle(b); err != nil {
		return err
	}
	return writeBundleSQLite(ctx, s.db, b, time.Now().UTC())
}

func (s *SQLiteStore) GetBundle(ctx context.Context, tenantID string) (*model.MetadataBundle, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT bundle FROM tenant_bundles WHERE tenant_id = ?`, tenantID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get bundle %s", tenantID)
	}
	var b model.MetadataBundle
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal bundle")
	}
	return &b, nil
}

func checkRowsAffected(res sql.Result, tenantID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "mapping for tenant %s", tenantID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
	Next() bool
	Err() error
}

func scanSummaries(rows scannable) ([]MappingSummary, error) {
	var out []MappingSummary
	for rows.Next() {
		var ms MappingSummary
		var source string
		if err := rows.Scan(&ms.TenantID, &ms.MappingID, &source, &ms.OverallConfidence, &ms.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan mapping summary")
		}
		ms.Source = model.MappingSource(source)
		out = append(out, ms)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate mapping summaries")
}
