package history

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "marketplace-search/internal/common/errors"
)

var fixedNow = time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db, time.Second)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

// ==========================
// Writes
// ==========================

func TestRecordSearch(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_searches (user_id,search_term,search_date) VALUES ($1,$2,$3)`)).
		WithArgs("42", "laptop", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.RecordSearch(context.Background(), "42", "laptop"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSearch_DatabaseDown(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_searches`)).
		WillReturnError(errors.New("connection reset by peer"))

	err := repo.RecordSearch(context.Background(), "42", "laptop")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabaseUnavailable))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSearch_Timeout(t *testing.T) {
	repo, mock := newTestRepository(t)
	repo.timeout = 20 * time.Millisecond

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_searches`)).
		WillDelayFor(200 * time.Millisecond).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.RecordSearch(context.Background(), "42", "laptop")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeQueryTimeout))
}

func TestAddStopPreference(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_preferences (user_id,listing_id,weight) VALUES ($1,$2,$3)`)).
		WithArgs("42", "L7", 1.0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.AddStopPreference(context.Background(), "42", "L7"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Reads
// ==========================

func TestFetchClickHistory(t *testing.T) {
	repo, mock := newTestRepository(t)

	rows := sqlmock.NewRows([]string{"listing_id"}).AddRow("L1").AddRow("L3")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT listing_id FROM user_clicks WHERE user_id = $1 LIMIT 50`)).
		WithArgs("42").
		WillReturnRows(rows)

	clicks, err := repo.FetchClickHistory(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"L1", "L3"}, clicks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchSearchHistory(t *testing.T) {
	repo, mock := newTestRepository(t)

	rows := sqlmock.NewRows([]string{"search_term"}).AddRow("laptop").AddRow("desk lamp")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT search_term FROM user_searches WHERE user_id = $1 ORDER BY search_date DESC LIMIT 50`)).
		WithArgs("42").
		WillReturnRows(rows)

	terms, err := repo.FetchSearchHistory(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"laptop", "desk lamp"}, terms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchSearchHistory_Empty(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT search_term FROM user_searches`)).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{"search_term"}))

	terms, err := repo.FetchSearchHistory(context.Background(), "42")
	require.NoError(t, err)
	assert.NotNil(t, terms)
	assert.Empty(t, terms)
}

func TestFetchStoppedListings(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT listing_id FROM user_preferences WHERE user_id = $1 AND weight >= $2`)).
		WithArgs("42", 1.0).
		WillReturnRows(sqlmock.NewRows([]string{"listing_id"}).AddRow("L9"))

	stopped, err := repo.FetchStoppedListings(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"L9"}, stopped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetch_RowError(t *testing.T) {
	repo, mock := newTestRepository(t)

	rows := sqlmock.NewRows([]string{"listing_id"}).
		AddRow("L1").
		RowError(0, errors.New("network blip"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT listing_id FROM user_clicks`)).
		WithArgs("42").
		WillReturnRows(rows)

	_, err := repo.FetchClickHistory(context.Background(), "42")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabaseUnavailable))
}

func TestUserExists(t *testing.T) {
	const query = `SELECT 1 FROM users WHERE user_id = $1 LIMIT 1`

	t.Run("known user", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("42").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		ok, err := repo.UserExists(context.Background(), "42")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("7").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

		ok, err := repo.UserExists(context.Background(), "7")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("database down", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta(query)).
			WithArgs("42").
			WillReturnError(errors.New("too many connections"))

		_, err := repo.UserExists(context.Background(), "42")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabaseUnavailable))
	})
}

// ==========================
// Caller identifiers
// ==========================

func TestNonNumericUserNeverQueries(t *testing.T) {
	ctx := context.Background()

	for _, userID := range []string{"abc", "", "12x", "u-42", "9999999999999999999999"} {
		t.Run(userID, func(t *testing.T) {
			repo, mock := newTestRepository(t)

			ok, err := repo.UserExists(ctx, userID)
			require.NoError(t, err)
			assert.False(t, ok)

			err = repo.RecordSearch(ctx, userID, "laptop")
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUserNotFound))

			_, err = repo.FetchClickHistory(ctx, userID)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUserNotFound))

			_, err = repo.FetchSearchHistory(ctx, userID)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUserNotFound))

			_, err = repo.FetchStoppedListings(ctx, userID)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUserNotFound))

			err = repo.AddStopPreference(ctx, userID, "L1")
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUserNotFound))

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
