// Package webhook implements the push-channel lifecycle: registration,
// routing of inbound notifications, renewal, and teardown.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/donghyeun02/calendar-notifier/internal/calendar"
	"github.com/donghyeun02/calendar-notifier/internal/common"
	"github.com/donghyeun02/calendar-notifier/internal/logging"
	"github.com/donghyeun02/calendar-notifier/internal/models"
	"github.com/donghyeun02/calendar-notifier/internal/store"
)

// TokenSource mints a short-lived access token for a user.
type TokenSource interface {
	AccessToken(ctx context.Context, userKey string) (string, error)
}

// Registration is the outcome of a successful channel registration.
type Registration struct {
	ChannelID  string
	ResourceID string
	ExpiresAt  time.Time
}

// Service owns the subscription-channel state machine. Registration and
// cleanup for one user are serialized through a per-user lock; the store's
// conditional writes back that up, so a race can surface as a conflict but
// never as a silent overwrite.
type Service struct {
	store    store.Store
	tokens   TokenSource
	provider calendar.Provider
	address  string
	ttl      time.Duration
	log      logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a Service. address is the fixed callback URL the
// provider will push to; ttl is the channel time-to-live requested on each
// watch call.
func NewService(st store.Store, tokens TokenSource, provider calendar.Provider, address string, ttl time.Duration, log logging.Logger) *Service {
	return &Service{
		store:    st,
		tokens:   tokens,
		provider: provider,
		address:  address,
		ttl:      ttl,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
	}
}

// userLock returns the lock serializing state transitions for one user.
// Locks are small and never reclaimed; the user population is bounded by
// the workspace size.
func (s *Service) userLock(userKey string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[userKey]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userKey] = lock
	}
	return lock
}

// Register creates a push channel for the user's selected calendar and
// persists the resulting identifiers.
//
// Preconditions, checked in order: a calendar and a delivery channel must be
// selected (common.ErrPreconditionMissing), and no channel may currently be
// active (common.ErrAlreadyRegistered). No provider call is made if either
// check fails. A provider failure surfaces as common.ErrRegistrationFailed
// with the cause attached, and nothing is written.
func (s *Service) Register(ctx context.Context, userKey string) (*Registration, error) {
	lock := s.userLock(userKey)
	lock.Lock()
	defer lock.Unlock()

	sub, err := s.store.Subscription(ctx, userKey)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// No record means the user never completed login.
			return nil, common.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	if !sub.HasSelections() {
		return nil, common.ErrPreconditionMissing
	}
	if sub.State() == models.Registered {
		return nil, common.ErrAlreadyRegistered
	}

	channelID := uuid.NewString()

	accessToken, err := s.tokens.AccessToken(ctx, userKey)
	if err != nil {
		return nil, err
	}

	result, err := s.provider.Watch(ctx, accessToken, sub.CalendarID, channelID, s.address, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrRegistrationFailed, err)
	}

	if err := s.store.Activate(ctx, userKey, channelID, result.ResourceID, result.Expiration); err != nil {
		// The provider-side channel is already open; close it again so a
		// failed persist does not leak a live subscription.
		s.stopQuietly(ctx, accessToken, channelID, result.ResourceID)
		if errors.Is(err, common.ErrAlreadyRegistered) {
			return nil, common.ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("%w: %w", common.ErrRegistrationFailed, err)
	}

	s.log.Info(ctx, "webhook registered",
		"user", userKey,
		"calendar", sub.CalendarID,
		"channel", channelID,
		"resource", result.ResourceID,
		"expires", result.Expiration)

	return &Registration{
		ChannelID:  channelID,
		ResourceID: result.ResourceID,
		ExpiresAt:  result.Expiration,
	}, nil
}

// HasActiveChannel reports whether a live channel exists for the user,
// derived purely from the persisted resource identifier.
func (s *Service) HasActiveChannel(ctx context.Context, userKey string) (bool, error) {
	sub, err := s.store.Subscription(ctx, userKey)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load subscription: %w", err)
	}
	return sub.State() == models.Registered, nil
}

// Route resolves an inbound push notification to the owning user. A miss is
// common.ErrUnknownResource: pushes race with cleanup and expiry, so the
// caller should log it quietly and drop the notification.
func (s *Service) Route(ctx context.Context, resourceID string) (string, error) {
	userKey, err := s.store.OwnerByResourceID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", common.ErrUnknownResource, resourceID)
		}
		return "", fmt.Errorf("failed to resolve resource owner: %w", err)
	}
	return userKey, nil
}

// Clear tears down the user's channel: the provider-side subscription is
// stopped best-effort, then both identifiers are nulled in one atomic
// update. Clearing an unregistered or unknown user is a no-op.
func (s *Service) Clear(ctx context.Context, userKey string) error {
	lock := s.userLock(userKey)
	lock.Lock()
	defer lock.Unlock()

	sub, err := s.store.Subscription(ctx, userKey)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load subscription: %w", err)
	}

	if sub.State() == models.Registered {
		// The stored record is authoritative; a failed provider stop must
		// not keep the identifiers around.
		if accessToken, err := s.tokens.AccessToken(ctx, userKey); err != nil {
			s.log.Warn(ctx, "skipping provider-side channel stop", "user", userKey, "error", err)
		} else {
			s.stopQuietly(ctx, accessToken, sub.ChannelID, sub.ResourceID)
		}
	}

	if err := s.store.Clear(ctx, userKey); err != nil {
		return fmt.Errorf("failed to clear subscription: %w", err)
	}

	s.log.Info(ctx, "webhook cleared", "user", userKey)
	return nil
}

// ListCalendars returns the user's calendars for the selection surface.
func (s *Service) ListCalendars(ctx context.Context, userKey string) ([]*gcal.CalendarListEntry, error) {
	accessToken, err := s.tokens.AccessToken(ctx, userKey)
	if err != nil {
		return nil, err
	}
	return s.provider.ListCalendars(ctx, accessToken)
}

// Refresh re-fetches the user's upcoming events after a push notification.
func (s *Service) Refresh(ctx context.Context, userKey string) ([]*gcal.Event, error) {
	sub, err := s.store.Subscription(ctx, userKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	accessToken, err := s.tokens.AccessToken(ctx, userKey)
	if err != nil {
		return nil, err
	}
	return s.provider.UpcomingEvents(ctx, accessToken, sub.CalendarID, 10)
}

// Renew replaces a channel that is about to expire with a fresh one. The
// swap is conditional on the old resource id still being persisted, so a
// concurrent clear or an earlier renewal pass wins cleanly.
func (s *Service) Renew(ctx context.Context, userKey string) error {
	lock := s.userLock(userKey)
	lock.Lock()
	defer lock.Unlock()

	sub, err := s.store.Subscription(ctx, userKey)
	if err != nil {
		return fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub.State() != models.Registered {
		return nil
	}

	accessToken, err := s.tokens.AccessToken(ctx, userKey)
	if err != nil {
		return err
	}

	channelID := uuid.NewString()
	result, err := s.provider.Watch(ctx, accessToken, sub.CalendarID, channelID, s.address, s.ttl)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrRegistrationFailed, err)
	}

	if err := s.store.Replace(ctx, userKey, sub.ResourceID, channelID, result.ResourceID, result.Expiration); err != nil {
		s.stopQuietly(ctx, accessToken, channelID, result.ResourceID)
		if errors.Is(err, common.ErrNotFound) {
			// The record moved under us; nothing left to renew.
			return nil
		}
		return fmt.Errorf("failed to persist renewed channel: %w", err)
	}

	s.stopQuietly(ctx, accessToken, sub.ChannelID, sub.ResourceID)

	s.log.Info(ctx, "webhook renewed",
		"user", userKey,
		"channel", channelID,
		"resource", result.ResourceID,
		"expires", result.Expiration)
	return nil
}

func (s *Service) stopQuietly(ctx context.Context, accessToken, channelID, resourceID string) {
	if err := s.provider.Stop(ctx, accessToken, channelID, resourceID); err != nil {
		s.log.Warn(ctx, "failed to stop provider channel",
			"channel", channelID, "resource", resourceID, "error", err)
	}
}
