package calendar

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Client is a wrapper around the Google Calendar API for push-channel
// management. It builds a fresh service per call from the supplied access
// token, so no credential is ever shared between requests.
type Client struct {
	opts []option.ClientOption
}

// NewClient creates a new Google Calendar client. Extra options are mainly
// for tests (endpoint overrides).
func NewClient(opts ...option.ClientOption) *Client {
	return &Client{opts: opts}
}

func (c *Client) service(ctx context.Context, accessToken string) (*calendar.Service, error) {
	opts := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: accessToken,
			TokenType:   "Bearer",
		})),
	}, c.opts...)

	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return service, nil
}

// Watch registers a web_hook push channel on the given calendar. The
// channel id is caller-generated; the provider answers with the resource id
// naming the live subscription and its expiration.
func (c *Client) Watch(ctx context.Context, accessToken, calendarID, channelID, address string, ttl time.Duration) (*WatchResult, error) {
	service, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	channel := &calendar.Channel{
		Id:      channelID,
		Type:    "web_hook",
		Address: address,
		Params: map[string]string{
			"ttl": strconv.FormatInt(int64(ttl.Seconds()), 10),
		},
	}

	created, err := service.Events.Watch(calendarID, channel).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to watch calendar: %w", err)
	}

	expiration := time.UnixMilli(created.Expiration)
	if created.Expiration == 0 {
		// The provider may ignore the requested ttl; assume it honored it.
		expiration = time.Now().Add(ttl)
	}

	return &WatchResult{ResourceID: created.ResourceId, Expiration: expiration}, nil
}

// Stop closes a push channel on the provider side. Both identifiers are
// required: the channel id names our registration, the resource id names
// the watched resource.
func (c *Client) Stop(ctx context.Context, accessToken, channelID, resourceID string) error {
	service, err := c.service(ctx, accessToken)
	if err != nil {
		return err
	}

	channel := &calendar.Channel{
		Id:         channelID,
		ResourceId: resourceID,
	}

	if err := service.Channels.Stop(channel).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to stop channel: %w", err)
	}
	return nil
}

// ListCalendars returns the user's calendar list for the selection surface.
func (c *Client) ListCalendars(ctx context.Context, accessToken string) ([]*calendar.CalendarListEntry, error) {
	service, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	list, err := service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	return list.Items, nil
}

// UpcomingEvents returns the next events on a calendar, recurring events
// expanded. Used to re-fetch state after a push notification.
func (c *Client) UpcomingEvents(ctx context.Context, accessToken, calendarID string, max int64) ([]*calendar.Event, error) {
	service, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	events, err := service.Events.List(calendarID).
		TimeMin(time.Now().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(max).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events.Items, nil
}
