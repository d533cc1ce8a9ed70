package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/orgmap/internal/db"
	"github.com/sells-group/orgmap/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
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
	minConns := int32(1)
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS tenant_mappings (
	tenant_id          TEXT PRIMARY KEY,
	mapping_id         TEXT NOT NULL,
	source             TEXT NOT NULL,
	overall_confidence DOUBLE PRECISION NOT NULL,
	mapping            JSONB NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS mapping_history (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	tenant_id          TEXT NOT NULL,
	mapping_id         TEXT NOT NULL,
	source             TEXT NOT NULL,
	overall_confidence DOUBLE PRECISION NOT NULL,
	mapping            JSONB NOT NULL,
	saved_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tenant_bundles (
	tenant_id   TEXT PRIMARY KEY,
	bundle      JSONB NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_mapping_history_tenant ON mapping_history(tenant_id, saved_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveMapping(ctx context.Context, m *model.OrgMapping) error {
	if err := validateMapping(m); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save mapping")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := writeMappingPostgres(ctx, tx, m, time.Now().UTC()); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save mapping")
}

func (s *PostgresStore) SaveClassification(ctx context.Context, b *model.MetadataBundle, m *model.OrgMapping) error {
	if err := validateBundle(b); err != nil {
		return err
	}
	if err := validateMapping(m); err != nil {
		return err
	}
	if b.TenantID != m.TenantID {
		return eris.Errorf("postgres: bundle tenant %s does not match mapping tenant %s", b.TenantID, m.TenantID)
	}
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save classification")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := writeBundlePostgres(ctx, tx, b, now); err != nil {
		return err
	}
	if err := writeMappingPostgres(ctx, tx, m, now); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save classification")
}

// pgExecer is satisfied by both db.Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func writeMappingPostgres(ctx context.Context, ex pgExecer, m *model.OrgMapping, now time.Time) error {
	data, err := json.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal mapping")
	}
	_, err = ex.Exec(ctx,
		`INSERT INTO tenant_mappings (tenant_id, mapping_id, source, overall_confidence, mapping, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		   mapping_id = EXCLUDED.mapping_id,
		   source = EXCLUDED.source,
		   overall_confidence = EXCLUDED.overall_confidence,
		   mapping = EXCLUDED.mapping,
		   updated_at = EXCLUDED.updated_at`,
		m.TenantID, m.ID, string(m.Source), m.OverallConfidence, data, now,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert mapping %s", m.TenantID)
	}
	_, err = ex.Exec(ctx,
		`INSERT INTO mapping_history (id, tenant_id, mapping_id, source, overall_confidence, mapping, saved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), m.TenantID, m.ID, string(m.Source), m.OverallConfidence, data, now,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert mapping history %s", m.TenantID)
	}
	return nil
}

func writeBundlePostgres(ctx context.Context, ex pgExecer, b *model.MetadataBundle, now time.Time) error {
	data, err := json.Marshal(b)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal bundle")
	}
	_, err = ex.Exec(ctx,
		`INSERT INTO tenant_bundles (tenant_id, bundle, captured_at) VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id) DO UPDATE SET bundle = EXCLUDED.bundle, captured_at = EXCLUDED.captured_at`,
		b.TenantID, data, now,
	)
	return eris.Wrapf(err, "postgres: save bundle %s", b.TenantID)
}

func (s *PostgresStore) GetMapping(ctx context.Context, tenantID string) (*model.OrgMapping, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT mapping FROM tenant_mappings WHERE tenant_id = $1`, tenantID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get mapping %s", tenantID)
	}
	var m model.OrgMapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal mapping")
	}
	return &m, nil
}

func (s *PostgresStore) DeleteMapping(ctx context.Context, tenantID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tenant_mappings WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete mapping %s", tenantID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "mapping for tenant %s", tenantID)
	}
	return nil
}

func (s *PostgresStore) ListTenants(ctx context.Context) ([]MappingSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tenant_id, mapping_id, source, overall_confidence, updated_at
		 FROM tenant_mappings ORDER BY tenant_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tenants")
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func (s *PostgresStore) MappingHistory(ctx context.Context, tenantID string, limit int) ([]MappingSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tenant_id, mapping_id, source, overall_confidence, saved_at
		 FROM mapping_history WHERE tenant_id = $1
		 ORDER BY saved_at DESC LIMIT $2`,
		tenantID, historyLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: mapping history %s", tenantID)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func (s *PostgresStore) SaveBundle(ctx context.Context, b *model.MetadataBundle) error {
	if err := validateBundle(b); err != nil {
		return err
	}
	return writeBundlePostgres(ctx, s.pool, b, time.Now().UTC())
}

func (s *PostgresStore) GetBundle(ctx context.Context, tenantID string) (*model.MetadataBundle, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT bundle FROM tenant_bundles WHERE tenant_id = $1`, tenantID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get bundle %s", tenantID)
	}
	var b model.MetadataBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal bundle")
	}
	return &b, nil
}
