package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcast/internal/apperr"
	"feedcast/internal/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { mockDb.Close() })
	return New(sqlx.NewDb(mockDb, "sqlmock")), mock
}

var runCols = []string{"id", "job_id", "status", "started_at", "finished_at", "podcast_id",
	"selected_articles", "failure_reason", "error_message", "created_at"}

func TestIncrementUsageIsSingleUpsert(t *testing.T) {
	store, mock := newMockStore(t)

	for i := 1; i <= 3; i++ {
		mock.ExpectQuery(`INSERT INTO usage \(user_id, month, generation_count\)\s+VALUES \(\$1, \$2, 1\)\s+ON CONFLICT \(user_id, month\) DO UPDATE SET\s+generation_count = usage.generation_count \+ 1`).
			WithArgs(int64(7), "2026-10").
			WillReturnRows(sqlmock.NewRows([]string{"generation_count"}).AddRow(i))
	}

	for i := 1; i <= 3; i++ {
		count, err := store.IncrementUsage(context.Background(), 7, "2026-10")
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsageCountAbsentRowIsZero(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT generation_count FROM usage WHERE user_id = \$1 AND month = \$2`).
		WithArgs(int64(7), "2026-10").
		WillReturnRows(sqlmock.NewRows([]string{"generation_count"}))

	count, err := store.GetUsageCount(context.Background(), 7, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateQueuedRunSkipsJobWithRunInFlight(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO job_runs \(job_id, status\)\s+SELECT \$1::bigint, 'queued'\s+WHERE NOT EXISTS`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(runCols))

	run, err := store.CreateQueuedRun(context.Background(), 3)
	assert.Nil(t, run)
	assert.ErrorIs(t, err, ErrRunInFlight)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateQueuedRun(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery(`INSERT INTO job_runs`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(runCols).AddRow(11, 3, "queued", nil, nil, nil, nil, "", "", now))

	run, err := store.CreateQueuedRun(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(11), run.ID)
	assert.Equal(t, models.RunQueued, run.Status)
	assert.Nil(t, run.SelectedArticles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailRunLeavesTerminalRunAlone(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectExec(`UPDATE job_runs\s+SET status = 'failed', failure_reason = \$2, error_message = \$3, finished_at = \$4\s+WHERE id = \$1 AND status IN \('queued', 'running'\)`).
		WithArgs(int64(5), "no_content", "nothing to publish", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.FailRun(context.Background(), 5, models.ReasonNoContent, "nothing to publish", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeRunCommitsAllThreeUpdates(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE podcasts\s+SET status = 'done'`).
		WithArgs(int64(21), "https://cdn.example.com/a.mp3", "podcasts/a.mp3", int64(2048), 95).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO usage`).
		WithArgs(int64(7), "2026-10").
		WillReturnRows(sqlmock.NewRows([]string{"generation_count"}).AddRow(2))
	mock.ExpectExec(`UPDATE job_runs\s+SET status = 'succeeded'`).
		WithArgs(int64(11), int64(21), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.FinalizeRun(context.Background(), FinalizeParams{
		RunID: 11, PodcastID: 21, UserID: 7, Month: "2026-10",
		AudioURL: "https://cdn.example.com/a.mp3", AudioKey: "podcasts/a.mp3", AudioSize: 2048,
		Duration: 95, FinishedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeRunRollsBackWhenRunIsNotRunning(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE podcasts\s+SET status = 'done'`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO usage`).
		WillReturnRows(sqlmock.NewRows([]string{"generation_count"}).AddRow(1))
	mock.ExpectExec(`UPDATE job_runs\s+SET status = 'succeeded'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.FinalizeRun(context.Background(), FinalizeParams{RunID: 11, PodcastID: 21, UserID: 7, Month: "2026-10", FinishedAt: now})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumePasswordResetExpiredTokenKeepsHash(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE password_resets\s+SET used_at = \$2\s+WHERE token = \$1 AND used_at IS NULL AND expires_at > \$2`).
		WithArgs("expired-token", now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	mock.ExpectRollback()

	err := store.ConsumePasswordReset(context.Background(), "expired-token", "new-hash", now)
	assert.ErrorIs(t, err, ErrResetLinkInvalid)
	assert.Equal(t, "auth.resetLinkInvalid", apperr.KeyOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumePasswordReset(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE password_resets`).
		WithArgs("good-token", now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(9))
	mock.ExpectExec(`UPDATE users SET password_hash = \$1, updated_at = NOW\(\) WHERE id = \$2`).
		WithArgs("new-hash", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.ConsumePasswordReset(context.Background(), "good-token", "new-hash", now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmailNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .* FROM users WHERE email = \$1`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetUserByEmail(context.Background(), "  Nobody@Example.com ")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPodcastsByUserCursor(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM podcasts\s+WHERE user_id = \$1 AND id < \$2\s+ORDER BY id DESC\s+LIMIT \$3`).
		WithArgs(int64(7), int64(40), 11).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "status"}).
			AddRow(39, 7, "Episode 39", "done").
			AddRow(35, 7, "Episode 35", "failed"))

	podcasts, err := store.ListPodcastsByUser(context.Background(), 7, 40, 11)
	require.NoError(t, err)
	require.Len(t, podcasts, 2)
	assert.Equal(t, int64(39), podcasts[0].ID)
	assert.Equal(t, models.PodcastFailed, podcasts[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
