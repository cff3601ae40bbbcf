package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

// PgxPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresStore implements Store using pgxpool, for deployments where the
// checkpoint record must be shared across hosts.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgres connects a PostgresStore.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "checkpoint: parse postgres config")
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "checkpoint: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "checkpoint: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS checkpoints (
	document_id   TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	current_tier  INTEGER NOT NULL,
	state         JSONB NOT NULL,
	write_version BIGINT NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON checkpoints(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "checkpoint: migrate postgres")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, state *model.PipelineState) error {
	next := state.WriteVersion + 1
	now := time.Now().UTC()

	persisted := state.Clone()
	persisted.WriteVersion = next
	persisted.UpdatedAt = now

	stateJSON, err := json.Marshal(persisted)
	if err != nil {
		return eris.Wrap(err, "checkpoint: marshal state")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO checkpoints (document_id, status, current_tier, state, write_version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (document_id) DO UPDATE SET
			status = excluded.status,
			current_tier = excluded.current_tier,
			state = excluded.state,
			write_version = excluded.write_version,
			updated_at = excluded.updated_at
		 WHERE excluded.write_version > checkpoints.write_version`,
		persisted.DocumentID, string(persisted.Status), int(persisted.CurrentTier),
		stateJSON, next, now,
	)
	if err != nil {
		return eris.Wrapf(err, "checkpoint: save %s", state.DocumentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrStaleWrite, "%s at version %d", state.DocumentID, state.WriteVersion)
	}

	state.WriteVersion = next
	state.UpdatedAt = now
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, documentID string) (*model.PipelineState, error) {
	var stateJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM checkpoints WHERE document_id = $1`, documentID,
	).Scan(&stateJSON)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrap(ErrNotFound, documentID)
		}
		return nil, eris.Wrapf(err, "checkpoint: load %s", documentID)
	}
	return unmarshalState(string(stateJSON))
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]model.PipelineState, error) {
	query := `SELECT state FROM checkpoints WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	if len(args) == 1 {
		query += ` LIMIT $1`
	} else {
		query += ` LIMIT $2`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "checkpoint: list")
	}
	defer rows.Close()

	var states []model.PipelineState
	for rows.Next() {
		var stateJSON []byte
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, eris.Wrap(err, "checkpoint: scan state")
		}
		st, err := unmarshalState(string(stateJSON))
		if err != nil {
			return nil, err
		}
		states = append(states, *st)
	}
	return states, eris.Wrap(rows.Err(), "checkpoint: list iterate")
}
