// Package history is the relational store adapter for per-user search and
// click history and recommendation preferences.
package history

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"

	apperrors "marketplace-search/internal/common/errors"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const (
	// DefaultHistoryLimit caps how many history rows a fetch returns.
	DefaultHistoryLimit = 50
	stopWeight          = 1.0
)

type Repository struct {
	db      *sql.DB
	timeout time.Duration
	now     func() time.Time
}

func NewRepository(db *sql.DB, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Repository{db: db, timeout: timeout, now: time.Now}
}

// RecordSearch appends one search term to the user's history.
func (r *Repository) RecordSearch(ctx context.Context, userID, term string) error {
	if !validUserID(userID) {
		return apperrors.NewUserNotFoundError(userID)
	}
	query, args, err := psql.Insert("user_searches").
		Columns("user_id", "search_term", "search_date").
		Values(userID, term, r.now().UTC()).
		ToSql()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return r.exec(ctx, "record_search", query, args)
}

// FetchClickHistory returns the listings the user clicked.
func (r *Repository) FetchClickHistory(ctx context.Context, userID string) ([]string, error) {
	if !validUserID(userID) {
		return nil, apperrors.NewUserNotFoundError(userID)
	}
	query, args, err := psql.Select("listing_id").
		From("user_clicks").
		Where(sq.Eq{"user_id": userID}).
		Limit(DefaultHistoryLimit).
		ToSql()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return r.strings(ctx, "fetch_click_history", query, args)
}

// FetchSearchHistory returns the user's search terms, most recent first.
func (r *Repository) FetchSearchHistory(ctx context.Context, userID string) ([]string, error) {
	if !validUserID(userID) {
		return nil, apperrors.NewUserNotFoundError(userID)
	}
	query, args, err := psql.Select("search_term").
		From("user_searches").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("search_date DESC").
		Limit(DefaultHistoryLimit).
		ToSql()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return r.strings(ctx, "fetch_search_history", query, args)
}

// FetchStoppedListings returns the listings the user asked not to be shown.
func (r *Repository) FetchStoppedListings(ctx context.Context, userID string) ([]string, error) {
	if !validUserID(userID) {
		return nil, apperrors.NewUserNotFoundError(userID)
	}
	query, args, err := psql.Select("listing_id").
		From("user_preferences").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.GtOrEq{"weight": stopWeight}).
		ToSql()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return r.strings(ctx, "fetch_stopped_listings", query, args)
}

// UserExists reports whether the user is known to the relational store.
func (r *Repository) UserExists(ctx context.Context, userID string) (bool, error) {
	if !validUserID(userID) {
		return false, nil
	}
	query, args, err := psql.Select("1").
		From("users").
		Where(sq.Eq{"user_id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, apperrors.NewInternalError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, storeError(ctx, "user_exists", err)
	}
	return true, nil
}

// AddStopPreference records that the user no longer wants a listing suggested.
func (r *Repository) AddStopPreference(ctx context.Context, userID, listingID string) error {
	if !validUserID(userID) {
		return apperrors.NewUserNotFoundError(userID)
	}
	query, args, err := psql.Insert("user_preferences").
		Columns("user_id", "listing_id", "weight").
		Values(userID, listingID, stopWeight).
		ToSql()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return r.exec(ctx, "add_stop_preference", query, args)
}

func (r *Repository) exec(ctx context.Context, name, query string, args []interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return storeError(ctx, name, err)
	}
	return nil
}

func (r *Repository) strings(ctx context.Context, name, query string, args []interface{}) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError(ctx, name, err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, storeError(ctx, name, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(ctx, name, err)
	}
	return out, nil
}

// validUserID reports whether userID can match the integer users.user_id
// column. Anything else would be rejected by Postgres as invalid input.
func validUserID(userID string) bool {
	_, err := strconv.ParseInt(userID, 10, 64)
	return err == nil
}

func storeError(ctx context.Context, name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewQueryTimeoutError(name)
	}
	return apperrors.NewDatabaseUnavailableError(err)
}
