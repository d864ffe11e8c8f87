package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/donghyeun02/calendar-notifier/internal/common"
	"github.com/donghyeun02/calendar-notifier/internal/models"
)

func newStoreWithMock(t *testing.T) (*Postgres, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgres(db), mock, db
}

func TestCreateUser_InsertsUserAndSubscription(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT\s+INTO\s+users`).
		WithArgs("U1", "u1@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT\s+INTO\s+subscriptions`).
		WithArgs("U1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user := &models.User{UserKey: "U1", Email: "u1@example.com", RefreshToken: "refresh"}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateUser_RollsBackOnSubscriptionInsert(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT\s+INTO\s+users`).
		WithArgs("U1", "u1@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT\s+INTO\s+subscriptions`).
		WithArgs("U1").
		WillReturnError(errors.New("db down"))
	mock.ExpectRollback()

	user := &models.User{UserKey: "U1", Email: "u1@example.com"}
	if err := store.CreateUser(context.Background(), user); err == nil {
		t.Fatal("expected an error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+user_key.+FROM\s+users`).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetUser(context.Background(), "nobody")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetUser_NullRefreshToken(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"user_key", "email", "refresh_token", "is_deleted", "created_at"}).
		AddRow("U1", "u1@example.com", nil, false, time.Now())
	mock.ExpectQuery(`SELECT\s+user_key.+FROM\s+users`).
		WithArgs("U1").
		WillReturnRows(rows)

	user, err := store.GetUser(context.Background(), "U1")
	if err != nil {
		t.Fatalf("GetUser error: %v", err)
	}
	if user.RefreshToken != "" {
		t.Errorf("expected empty refresh token, got %q", user.RefreshToken)
	}
}

func TestActivate_GuardsOnNullResourceID(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	expiresAt := time.Now().Add(5 * time.Minute)
	mock.ExpectExec(`(?s)UPDATE\s+subscriptions\s+SET\s+channel_id.+WHERE\s+user_key\s*=\s*\$1\s+AND\s+resource_id\s+IS\s+NULL`).
		WithArgs("U1", "chan-1", "res-1", expiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Activate(context.Background(), "U1", "chan-1", "res-1", expiresAt); err != nil {
		t.Fatalf("Activate error: %v", err)
	}
}

func TestActivate_ConflictWhenAlreadyRegistered(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	expiresAt := time.Now().Add(5 * time.Minute)
	mock.ExpectExec(`UPDATE\s+subscriptions\s+SET\s+channel_id`).
		WithArgs("U1", "chan-2", "res-2", expiresAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Activate(context.Background(), "U1", "chan-2", "res-2", expiresAt)
	if !errors.Is(err, common.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestReplace_ConflictWhenResourceMoved(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	expiresAt := time.Now().Add(5 * time.Minute)
	mock.ExpectExec(`(?s)UPDATE\s+subscriptions\s+SET\s+channel_id.+WHERE\s+user_key\s*=\s*\$1\s+AND\s+resource_id\s*=\s*\$2`).
		WithArgs("U1", "res-old", "chan-new", "res-new", expiresAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Replace(context.Background(), "U1", "res-old", "chan-new", "res-new", expiresAt)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClear_NullsBothIdentifiers(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+subscriptions\s+SET\s+channel_id\s*=\s*NULL,\s*resource_id\s*=\s*NULL`).
		WithArgs("U1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Clear(context.Background(), "U1"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
}

func TestOwnerByResourceID(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"user_key"}).AddRow("U1")
	mock.ExpectQuery(`SELECT\s+user_key\s+FROM\s+subscriptions\s+WHERE\s+resource_id`).
		WithArgs("res-1").
		WillReturnRows(rows)

	userKey, err := store.OwnerByResourceID(context.Background(), "res-1")
	if err != nil {
		t.Fatalf("OwnerByResourceID error: %v", err)
	}
	if userKey != "U1" {
		t.Errorf("expected 'U1', got %q", userKey)
	}
}

func TestOwnerByResourceID_NotFound(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+user_key\s+FROM\s+subscriptions`).
		WithArgs("res-gone").
		WillReturnError(sql.ErrNoRows)

	_, err := store.OwnerByResourceID(context.Background(), "res-gone")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUsersByReminderTime(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"user_key", "email", "refresh_token", "is_deleted", "created_at"}).
		AddRow("U1", "u1@example.com", "refresh", false, time.Now())
	mock.ExpectQuery(`(?s)SELECT\s+u\.user_key.+JOIN\s+subscriptions.+WHERE\s+s\.reminder_time\s*=\s*\$1\s+AND\s+NOT\s+u\.is_deleted`).
		WithArgs("09:00").
		WillReturnRows(rows)

	users, err := store.UsersByReminderTime(context.Background(), "09:00")
	if err != nil {
		t.Fatalf("UsersByReminderTime error: %v", err)
	}
	if len(users) != 1 || users[0].UserKey != "U1" {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestExpiringBefore(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	cutoff := time.Now().Add(2 * time.Minute)
	expires := time.Now().Add(time.Minute)
	rows := sqlmock.NewRows([]string{"user_key", "calendar_id", "delivery_channel", "reminder_time", "channel_id", "resource_id", "expires_at"}).
		AddRow("U1", "C1", "general", nil, "chan-1", "res-1", expires)
	mock.ExpectQuery(`(?s)SELECT.+FROM\s+subscriptions\s+WHERE\s+resource_id\s+IS\s+NOT\s+NULL`).
		WithArgs(cutoff).
		WillReturnRows(rows)

	subs, err := store.ExpiringBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ExpiringBefore error: %v", err)
	}
	if len(subs) != 1 || subs[0].UserKey != "U1" || subs[0].ResourceID != "res-1" {
		t.Fatalf("unexpected subscriptions: %+v", subs)
	}
}
