package checkpoint

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syz51/fundamental-analysis-system-sub002/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewPostgresWithPool(mock), mock
}

func TestPostgres_Save(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO checkpoints`).
		WithArgs("doc-1", "PENDING", 1, pgxmock.AnyArg(), int64(1), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	state := sampleState("doc-1")
	require.NoError(t, s.Save(context.Background(), state))
	assert.Equal(t, int64(1), state.WriteVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Save_ExecError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO checkpoints`).
		WithArgs("doc-1", "PENDING", 1, pgxmock.AnyArg(), int64(1), pgxmock.AnyArg()).
		WillReturnError(eris.New("connection reset"))

	state := sampleState("doc-1")
	err := s.Save(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save doc-1")
	// A failed save leaves the in-memory version untouched.
	assert.Equal(t, int64(0), state.WriteVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Save_StaleWrite(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// The conditional upsert matches nothing when the record already holds a
	// newer write version.
	mock.ExpectExec(`INSERT INTO checkpoints`).
		WithArgs("doc-1", "PENDING", 1, pgxmock.AnyArg(), int64(1), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	state := sampleState("doc-1")
	err := s.Save(context.Background(), state)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrStaleWrite))
	assert.Equal(t, int64(0), state.WriteVersion)
	assert.True(t, state.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Load(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	stored := sampleState("doc-1")
	stored.WriteVersion = 3
	stateJSON, err := json.Marshal(stored)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT state FROM checkpoints WHERE document_id = \$1`).
		WithArgs("doc-1").
		WillReturnRows(pgxmock.NewRows([]string{"state"}).AddRow(stateJSON))

	loaded, err := s.Load(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", loaded.DocumentID)
	assert.Equal(t, int64(3), loaded.WriteVersion)
	assert.Equal(t, model.TierRepair, loaded.CurrentTier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Load_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT state FROM checkpoints WHERE document_id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_List_FilteredByStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	escalated := model.NewPipelineState("doc-b")
	escalated.Status = model.StatusEscalated
	stateJSON, err := json.Marshal(escalated)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT state FROM checkpoints WHERE 1=1 AND status = \$1`).
		WithArgs("ESCALATED", 100).
		WillReturnRows(pgxmock.NewRows([]string{"state"}).AddRow(stateJSON))

	states, err := s.List(context.Background(), ListFilter{Status: model.StatusEscalated})
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "doc-b", states[0].DocumentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS checkpoints`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
