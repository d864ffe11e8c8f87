// Package reminder triggers the daily calendar re-fetch for users who
// picked a reminder time-of-day.
package reminder

import (
	"context"
	"time"

	"github.com/donghyeun02/calendar-notifier/internal/logging"
	"github.com/donghyeun02/calendar-notifier/internal/store"
)

// Consumer is the downstream side receiving the reminder trigger. It is the
// same boundary a routed push lands on, so reminders and pushes reach the
// delivery surface identically.
type Consumer interface {
	CalendarChanged(ctx context.Context, userKey string)
}

// Sweeper fires each user's reminder once per day, at the chosen minute.
type Sweeper struct {
	store    store.Store
	consumer Consumer
	interval time.Duration
	log      logging.Logger

	lastSlot string
}

// NewSweeper creates a Sweeper that checks every interval whether a new
// minute slot was entered. The interval must be below one minute or slots
// get skipped.
func NewSweeper(st store.Store, consumer Consumer, interval time.Duration, log logging.Logger) *Sweeper {
	return &Sweeper{
		store:    st,
		consumer: consumer,
		interval: interval,
		log:      log,
	}
}

// Run loops until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx, time.Now())
		}
	}
}

// Sweep fires the reminders for now's minute slot. Repeated calls within
// the same minute are no-ops, so a sub-minute tick never double-fires.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) {
	dedup := now.Format("2006-01-02 15:04")
	if dedup == s.lastSlot {
		return
	}
	s.lastSlot = dedup

	slot := now.Format("15:04")
	users, err := s.store.UsersByReminderTime(ctx, slot)
	if err != nil {
		s.log.Error(ctx, "failed to list reminder users", "slot", slot, "error", err)
		return
	}

	for _, user := range users {
		s.log.Debug(ctx, "reminder due", "user", user.UserKey, "slot", slot)
		s.consumer.CalendarChanged(ctx, user.UserKey)
	}
}
