package store

import (
	"context"
	"sync"
	"time"

	"github.com/donghyeun02/calendar-notifier/internal/common"
	"github.com/donghyeun02/calendar-notifier/internal/models"
)

// Memory is an in-memory Store used in tests. It keeps the same
// conditional-write semantics as the Postgres implementation, including
// failing loudly on registration conflicts.
type Memory struct {
	mu            sync.Mutex
	users         map[string]*models.User
	subscriptions map[string]*models.Subscription
}

func NewMemory() *Memory {
	return &Memory{
		users:         make(map[string]*models.User),
		subscriptions: make(map[string]*models.Subscription),
	}
}

func (m *Memory) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := *user
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	m.users[u.UserKey] = &u
	m.subscriptions[u.UserKey] = &models.Subscription{UserKey: u.UserKey}
	return nil
}

func (m *Memory) GetUser(ctx context.Context, userKey string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userKey]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *Memory) SetUserDeleted(ctx context.Context, userKey string, deleted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userKey]
	if !ok {
		return common.ErrNotFound
	}
	u.Deleted = deleted
	return nil
}

func (m *Memory) UpdateRefreshToken(ctx context.Context, userKey, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userKey]
	if !ok {
		return common.ErrNotFound
	}
	u.RefreshToken = token
	return nil
}

func (m *Memory) UsersByReminderTime(ctx context.Context, tod string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var users []models.User
	for key, sub := range m.subscriptions {
		if sub.ReminderTime != tod {
			continue
		}
		if u, ok := m.users[key]; ok && !u.Deleted {
			users = append(users, *u)
		}
	}
	return users, nil
}

func (m *Memory) Subscription(ctx context.Context, userKey string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[userKey]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

func (m *Memory) SetCalendar(ctx context.Context, userKey, calendarID string) error {
	return m.updateSubscription(userKey, func(sub *models.Subscription) error {
		sub.CalendarID = calendarID
		return nil
	})
}

func (m *Memory) SetDeliveryChannel(ctx context.Context, userKey, channel string) error {
	return m.updateSubscription(userKey, func(sub *models.Subscription) error {
		sub.DeliveryChannel = channel
		return nil
	})
}

func (m *Memory) SetReminderTime(ctx context.Context, userKey, tod string) error {
	return m.updateSubscription(userKey, func(sub *models.Subscription) error {
		sub.ReminderTime = tod
		return nil
	})
}

func (m *Memory) Activate(ctx context.Context, userKey, channelID, resourceID string, expiresAt time.Time) error {
	return m.updateSubscription(userKey, func(sub *models.Subscription) error {
		if sub.ResourceID != "" {
			return common.ErrAlreadyRegistered
		}
		sub.ChannelID = channelID
		sub.ResourceID = resourceID
		sub.ExpiresAt = expiresAt
		return nil
	})
}

func (m *Memory) Replace(ctx context.Context, userKey, oldResourceID, channelID, resourceID string, expiresAt time.Time) error {
	return m.updateSubscription(userKey, func(sub *models.Subscription) error {
		if sub.ResourceID != oldResourceID {
			return common.ErrNotFound
		}
		sub.ChannelID = channelID
		sub.ResourceID = resourceID
		sub.ExpiresAt = expiresAt
		return nil
	})
}

func (m *Memory) Clear(ctx context.Context, userKey string) error {
	return m.updateSubscription(userKey, func(sub *models.Subscription) error {
		sub.ChannelID = ""
		sub.ResourceID = ""
		sub.ExpiresAt = time.Time{}
		return nil
	})
}

func (m *Memory) OwnerByResourceID(ctx context.Context, resourceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, sub := range m.subscriptions {
		if sub.ResourceID != "" && sub.ResourceID == resourceID {
			return key, nil
		}
	}
	return "", common.ErrNotFound
}

func (m *Memory) ExpiringBefore(ctx context.Context, t time.Time) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var subs []models.Subscription
	for _, sub := range m.subscriptions {
		if sub.ResourceID != "" && sub.ExpiresAt.Before(t) {
			subs = append(subs, *sub)
		}
	}
	return subs, nil
}

func (m *Memory) updateSubscription(userKey string, fn func(*models.Subscription) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[userKey]
	if !ok {
		return common.ErrNotFound
	}
	return fn(sub)
}
