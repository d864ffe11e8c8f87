package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/donghyeun02/calendar-notifier/internal/common"
	"github.com/donghyeun02/calendar-notifier/internal/models"
	"github.com/donghyeun02/calendar-notifier/internal/store/migrations"
)

// Postgres is the production Store backed by PostgreSQL via the pgx stdlib
// driver.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Open connects to PostgreSQL, waits for it to become reachable with
// exponential backoff, and applies the embedded migrations.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return retry.RetryableError(db.PingContext(pingCtx))
	}); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("migration dialect error: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return NewPostgres(db), nil
}

// Close releases the underlying database handle.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) CreateUser(ctx context.Context, user *models.User) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer tx.Rollback()

	query :=
		`INSERT INTO users (user_key, email, refresh_token, is_deleted)
		 VALUES ($1, $2, $3, FALSE)
		 `
	if _, err := tx.ExecContext(ctx, query,
		user.UserKey, user.Email, nullString(user.RefreshToken)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	query =
		`INSERT INTO subscriptions (user_key)
		 VALUES ($1)
		 `
	if _, err := tx.ExecContext(ctx, query, user.UserKey); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (p *Postgres) GetUser(ctx context.Context, userKey string) (*models.User, error) {
	query :=
		`SELECT user_key, email, refresh_token, is_deleted, created_at FROM users
		 WHERE user_key = $1
		 `

	user := &models.User{}
	var refreshToken sql.NullString
	err := p.db.QueryRowContext(ctx, query, userKey).Scan(
		&user.UserKey, &user.Email, &refreshToken, &user.Deleted, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	user.RefreshToken = refreshToken.String

	return user, nil
}

func (p *Postgres) SetUserDeleted(ctx context.Context, userKey string, deleted bool) error {
	query :=
		`UPDATE users SET is_deleted = $2
		 WHERE user_key = $1
		 `
	return p.execOne(ctx, query, userKey, deleted)
}

func (p *Postgres) UpdateRefreshToken(ctx context.Context, userKey, token string) error {
	query :=
		`UPDATE users SET refresh_token = $2
		 WHERE user_key = $1
		 `
	return p.execOne(ctx, query, userKey, nullString(token))
}

func (p *Postgres) UsersByReminderTime(ctx context.Context, tod string) ([]models.User, error) {
	query :=
		`SELECT u.user_key, u.email, u.refresh_token, u.is_deleted, u.created_at
		 FROM users u
		 JOIN subscriptions s ON s.user_key = u.user_key
		 WHERE s.reminder_time = $1 AND NOT u.is_deleted
		 `

	rows, err := p.db.QueryContext(ctx, query, tod)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var refreshToken sql.NullString
		if err := rows.Scan(&u.UserKey, &u.Email, &refreshToken, &u.Deleted, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		u.RefreshToken = refreshToken.String
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return users, nil
}

func (p *Postgres) Subscription(ctx context.Context, userKey string) (*models.Subscription, error) {
	query :=
		`SELECT user_key, calendar_id, delivery_channel, reminder_time, channel_id, resource_id, expires_at
		 FROM subscriptions
		 WHERE user_key = $1
		 `

	sub, err := scanSubscription(p.db.QueryRowContext(ctx, query, userKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sub, nil
}

func (p *Postgres) SetCalendar(ctx context.Context, userKey, calendarID string) error {
	query :=
		`UPDATE subscriptions SET calendar_id = $2
		 WHERE user_key = $1
		 `
	return p.execOne(ctx, query, userKey, nullString(calendarID))
}

func (p *Postgres) SetDeliveryChannel(ctx context.Context, userKey, channel string) error {
	query :=
		`UPDATE subscriptions SET delivery_channel = $2
		 WHERE user_key = $1
		 `
	return p.execOne(ctx, query, userKey, nullString(channel))
}

func (p *Postgres) SetReminderTime(ctx context.Context, userKey, tod string) error {
	query :=
		`UPDATE subscriptions SET reminder_time = $2
		 WHERE user_key = $1
		 `
	return p.execOne(ctx, query, userKey, nullString(tod))
}

// Activate is the guarded Unregistered → Registered transition. The
// WHERE clause makes concurrent registrations race on the database row
// instead of silently overwriting each other.
func (p *Postgres) Activate(ctx context.Context, userKey, channelID, resourceID string, expiresAt time.Time) error {
	query :=
		`UPDATE subscriptions
		 SET channel_id = $2, resource_id = $3, expires_at = $4
		 WHERE user_key = $1 AND resource_id IS NULL
		 `

	res, err := p.db.ExecContext(ctx, query, userKey, channelID, resourceID, expiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrAlreadyRegistered
	}
	return nil
}

func (p *Postgres) Replace(ctx context.Context, userKey, oldResourceID, channelID, resourceID string, expiresAt time.Time) error {
	query :=
		`UPDATE subscriptions
		 SET channel_id = $3, resource_id = $4, expires_at = $5
		 WHERE user_key = $1 AND resource_id = $2
		 `

	res, err := p.db.ExecContext(ctx, query, userKey, oldResourceID, channelID, resourceID, expiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (p *Postgres) Clear(ctx context.Context, userKey string) error {
	query :=
		`UPDATE subscriptions
		 SET channel_id = NULL, resource_id = NULL, expires_at = NULL
		 WHERE user_key = $1
		 `
	return p.execOne(ctx, query, userKey)
}

func (p *Postgres) OwnerByResourceID(ctx context.Context, resourceID string) (string, error) {
	query :=
		`SELECT user_key FROM subscriptions
		 WHERE resource_id = $1
		 `

	var userKey string
	err := p.db.QueryRowContext(ctx, query, resourceID).Scan(&userKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return userKey, nil
}

func (p *Postgres) ExpiringBefore(ctx context.Context, t time.Time) ([]models.Subscription, error) {
	query :=
		`SELECT user_key, calendar_id, delivery_channel, reminder_time, channel_id, resource_id, expires_at
		 FROM subscriptions
		 WHERE resource_id IS NOT NULL AND expires_at < $1
		 `

	rows, err := p.db.QueryContext(ctx, query, t)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return subs, nil
}

func (p *Postgres) execOne(ctx context.Context, query string, args ...any) error {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (*models.Subscription, error) {
	sub := &models.Subscription{}
	var calendarID, deliveryChannel, reminderTime, channelID, resourceID sql.NullString
	var expiresAt sql.NullTime

	if err := row.Scan(&sub.UserKey, &calendarID, &deliveryChannel, &reminderTime,
		&channelID, &resourceID, &expiresAt); err != nil {
		return nil, err
	}

	sub.CalendarID = calendarID.String
	sub.DeliveryChannel = deliveryChannel.String
	sub.ReminderTime = reminderTime.String
	sub.ChannelID = channelID.String
	sub.ResourceID = resourceID.String
	sub.ExpiresAt = expiresAt.Time
	return sub, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
