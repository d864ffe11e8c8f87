package models

import "time"

// ChannelState is the registration state of a subscription, derived from
// the persisted identifiers rather than stored separately.
type ChannelState int

const (
	// Unregistered means no provider channel exists: both identifiers null.
	Unregistered ChannelState = iota
	// Registered means a live provider channel exists: both identifiers set.
	Registered
)

// Subscription is the per-user push-subscription record. Exactly one exists
// per user, created empty alongside the user and never hard-deleted while
// the user exists.
//
// ChannelID is generated locally at registration time; ResourceID is
// assigned by the provider on a successful watch call. The two are set and
// cleared together: a record with only one of them is not a valid rest
// state.
type Subscription struct {
	UserKey         string
	CalendarID      string
	DeliveryChannel string
	ReminderTime    string
	ChannelID       string
	ResourceID      string
	ExpiresAt       time.Time
}

// State reports the registration state. The resource id alone is
// authoritative: routing and the registration guard both key on it.
func (s *Subscription) State() ChannelState {
	if s.ResourceID != "" {
		return Registered
	}
	return Unregistered
}

// HasSelections reports whether the user picked both a calendar and a
// delivery channel, the preconditions for registering a webhook.
func (s *Subscription) HasSelections() bool {
	return s.CalendarID != "" && s.DeliveryChannel != ""
}
