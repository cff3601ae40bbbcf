package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode
// so concurrent workers writing distinct documents do not serialize on fsync.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "checkpoint: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "checkpoint: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS checkpoints (
	document_id   TEXT PRIMARY KEY,
	status        TEXT NOT NULL,
	current_tier  INTEGER NOT NULL,
	state         TEXT NOT NULL,
	write_version INTEGER NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON checkpoints(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "checkpoint: migrate sqlite")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts the state under a bumped write version. The conditional
// update makes last-write-wins an explicit contract: a stale version never
// overwrites a newer record, and the lost write surfaces as ErrStaleWrite.
func (s *SQLiteStore) Save(ctx context.Context, state *model.PipelineState) error {
	next := state.WriteVersion + 1
	now := time.Now().UTC()

	persisted := state.Clone()
	persisted.WriteVersion = next
	persisted.UpdatedAt = now

	stateJSON, err := json.Marshal(persisted)
	if err != nil {
		return eris.Wrap(err, "checkpoint: marshal state")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (document_id, status, current_tier, state, write_version, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET
			status = excluded.status,
			current_tier = excluded.current_tier,
			state = excluded.state,
			write_version = excluded.write_version,
			updated_at = excluded.updated_at
		 WHERE excluded.write_version > checkpoints.write_version`,
		persisted.DocumentID, string(persisted.Status), int(persisted.CurrentTier),
		string(stateJSON), next, now,
	)
	if err != nil {
		return eris.Wrapf(err, "checkpoint: save %s", state.DocumentID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "checkpoint: save %s", state.DocumentID)
	}
	if affected == 0 {
		return eris.Wrapf(ErrStaleWrite, "%s at version %d", state.DocumentID, state.WriteVersion)
	}

	state.WriteVersion = next
	state.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, documentID string) (*model.PipelineState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE document_id = ?`, documentID,
	)
	var stateJSON string
	if err := row.Scan(&stateJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, eris.Wrap(ErrNotFound, documentID)
		}
		return nil, eris.Wrapf(err, "checkpoint: load %s", documentID)
	}
	return unmarshalState(stateJSON)
}

func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]model.PipelineState, error) {
	query := `SELECT state FROM checkpoints WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "checkpoint: list")
	}
	defer rows.Close()

	var states []model.PipelineState
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, eris.Wrap(err, "checkpoint: scan state")
		}
		st, err := unmarshalState(stateJSON)
		if err != nil {
			return nil, err
		}
		states = append(states, *st)
	}
	return states, eris.Wrap(rows.Err(), "checkpoint: list iterate")
}

func unmarshalState(stateJSON string) (*model.PipelineState, error) {
	var st model.PipelineState
	if err := json.Unmarshal([]byte(stateJSON), &st); err != nil {
		return nil, eris.Wrap(err, "checkpoint: unmarshal state")
	}
	return &st, nil
}
