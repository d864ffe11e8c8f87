package calendar

import (
	"context"
	"time"

	"google.golang.org/api/calendar/v3"
)

// WatchResult is the provider's answer to a successful watch call: the
// resource identifier naming the live subscription instance, and when the
// channel expires.
type WatchResult struct {
	ResourceID string
	Expiration time.Time
}

// Provider is the interface to the remote push-subscription service.
// Every call carries its own access token; implementations must not keep
// per-user credentials between calls.
type Provider interface {
	Watch(ctx context.Context, accessToken, calendarID, channelID, address string, ttl time.Duration) (*WatchResult, error)
	Stop(ctx context.Context, accessToken, channelID, resourceID string) error
	ListCalendars(ctx context.Context, accessToken string) ([]*calendar.CalendarListEntry, error)
	UpcomingEvents(ctx context.Context, accessToken, calendarID string, max int64) ([]*calendar.Event, error)
}
