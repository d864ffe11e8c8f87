// Package store persists users and their push-subscription records.
//
// The subscription record doubles as the registration state machine: a null
// resource id means Unregistered, a non-null one means Registered. All
// transitions go through conditional single-statement updates so that
// concurrent check-then-act sequences fail loudly instead of overwriting
// each other.
package store

import (
	"context"
	"time"

	"github.com/donghyeun02/calendar-notifier/internal/models"
)

// Store is the persistence contract for users and subscriptions.
type Store interface {
	// CreateUser inserts a user together with its empty subscription
	// record in one transaction.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUser returns the user for the given chat user key, or
	// common.ErrNotFound.
	GetUser(ctx context.Context, userKey string) (*models.User, error)

	// SetUserDeleted toggles the soft-delete flag. The stored refresh
	// token is left untouched either way.
	SetUserDeleted(ctx context.Context, userKey string, deleted bool) error

	// UpdateRefreshToken replaces the stored long-lived credential,
	// e.g. on re-login.
	UpdateRefreshToken(ctx context.Context, userKey, token string) error

	// UsersByReminderTime returns active users whose reminder time-of-day
	// matches tod ("HH:MM").
	UsersByReminderTime(ctx context.Context, tod string) ([]models.User, error)

	// Subscription returns the user's subscription record, or
	// common.ErrNotFound.
	Subscription(ctx context.Context, userKey string) (*models.Subscription, error)

	// SetCalendar, SetDeliveryChannel and SetReminderTime update the
	// user's selections independently of registration state.
	SetCalendar(ctx context.Context, userKey, calendarID string) error
	SetDeliveryChannel(ctx context.Context, userKey, channel string) error
	SetReminderTime(ctx context.Context, userKey, tod string) error

	// Activate writes the channel and resource identifiers, but only if
	// the record is currently unregistered. A record that already holds a
	// resource id yields common.ErrAlreadyRegistered and is left
	// unchanged.
	Activate(ctx context.Context, userKey, channelID, resourceID string, expiresAt time.Time) error

	// Replace swaps in new identifiers, but only if the record still
	// holds oldResourceID. Used by renewal; a concurrent clear or renew
	// yields common.ErrNotFound and writes nothing.
	Replace(ctx context.Context, userKey, oldResourceID, channelID, resourceID string, expiresAt time.Time) error

	// Clear nulls both identifiers and the expiry in a single atomic
	// update. Clearing an unregistered record is a no-op, not an error.
	Clear(ctx context.Context, userKey string) error

	// OwnerByResourceID resolves a provider-assigned resource id to the
	// owning user key, or common.ErrNotFound.
	OwnerByResourceID(ctx context.Context, resourceID string) (string, error)

	// ExpiringBefore returns registered subscriptions whose channel
	// expires before the given instant.
	ExpiringBefore(ctx context.Context, t time.Time) ([]models.Subscription, error)
}
