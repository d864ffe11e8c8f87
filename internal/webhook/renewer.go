package webhook

import (
	"context"
	"time"

	"github.com/donghyeun02/calendar-notifier/internal/logging"
	"github.com/donghyeun02/calendar-notifier/internal/store"
)

// Renewer re-registers channels before their time-to-live runs out.
// Without it, channels silently go stale once the provider stops pushing.
type Renewer struct {
	service  *Service
	store    store.Store
	interval time.Duration
	lead     time.Duration
	log      logging.Logger
}

// NewRenewer creates a Renewer that scans every interval for channels
// expiring within lead.
func NewRenewer(service *Service, st store.Store, interval, lead time.Duration, log logging.Logger) *Renewer {
	return &Renewer{
		service:  service,
		store:    st,
		interval: interval,
		lead:     lead,
		log:      log,
	}
}

// Run loops until the context is canceled.
func (r *Renewer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RenewDue(ctx)
		}
	}
}

// RenewDue renews every channel expiring within the lead window. One user's
// failure does not stop the sweep.
func (r *Renewer) RenewDue(ctx context.Context) {
	subs, err := r.store.ExpiringBefore(ctx, time.Now().Add(r.lead))
	if err != nil {
		r.log.Error(ctx, "failed to list expiring channels", "error", err)
		return
	}

	for _, sub := range subs {
		if err := r.service.Renew(ctx, sub.UserKey); err != nil {
			r.log.Error(ctx, "failed to renew channel", "user", sub.UserKey, "error", err)
		}
	}
}
