// Package events turns discrete chat-surface actions into notifier
// operations. Every action is acknowledged immediately and handled on its
// own goroutine, so one user's slow provider call never blocks another
// user's actions.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/donghyeun02/calendar-notifier/internal/common"
	"github.com/donghyeun02/calendar-notifier/internal/logging"
	"github.com/donghyeun02/calendar-notifier/internal/store"
	"github.com/donghyeun02/calendar-notifier/internal/webhook"
)

// Intent names a discrete user action emitted by the chat surface.
type Intent string

const (
	IntentSelectCalendar     Intent = "select-calendar"
	IntentSelectChannel      Intent = "select-channel"
	IntentSelectReminderTime Intent = "select-reminder-time"
	IntentRegisterWebhook    Intent = "register-webhook"
	IntentLogout             Intent = "logout"
)

// actionTimeout bounds the work behind one action, provider round-trips
// included. A timed-out registration surfaces as a failure, never a retry.
const actionTimeout = 30 * time.Second

// Action is one inbound chat-surface event.
type Action struct {
	UserID  string
	Intent  Intent
	Payload string
}

// Responder renders an outcome back to the user. Implemented by the chat
// surface; how the message is displayed (modal, ephemeral, ...) is its
// concern.
type Responder interface {
	Notify(ctx context.Context, userKey, message string)
}

// UserLifecycle is the slice of the user service the dispatcher needs.
type UserLifecycle interface {
	Logout(ctx context.Context, userKey string) error
}

// Dispatcher routes actions to their handlers.
type Dispatcher struct {
	store     store.Store
	webhooks  *webhook.Service
	users     UserLifecycle
	responder Responder
	log       logging.Logger
	wg        sync.WaitGroup
}

func NewDispatcher(st store.Store, webhooks *webhook.Service, users UserLifecycle, responder Responder, log logging.Logger) *Dispatcher {
	return &Dispatcher{
		store:     st,
		webhooks:  webhooks,
		users:     users,
		responder: responder,
		log:       log,
	}
}

// Handle acknowledges the action and schedules the real work. It returns
// as soon as the work is enqueued; the chat surface's ack deadline is never
// spent on provider round-trips.
func (d *Dispatcher) Handle(ctx context.Context, action Action) {
	// The surface's request context may be canceled right after the ack;
	// the scheduled work must outlive it.
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		d.dispatch(ctx, action)
	}()
}

// Drain waits for all in-flight handlers, for shutdown and tests.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, action Action) {
	var err error

	switch action.Intent {
	case IntentSelectCalendar:
		err = d.store.SetCalendar(ctx, action.UserID, action.Payload)
	case IntentSelectChannel:
		err = d.store.SetDeliveryChannel(ctx, action.UserID, action.Payload)
	case IntentSelectReminderTime:
		err = d.store.SetReminderTime(ctx, action.UserID, action.Payload)
	case IntentRegisterWebhook:
		d.registerWebhook(ctx, action.UserID)
		return
	case IntentLogout:
		if err = d.users.Logout(ctx, action.UserID); err == nil {
			d.responder.Notify(ctx, action.UserID, "You have been logged out.")
		}
	default:
		d.log.Warn(ctx, "unknown intent", "intent", action.Intent, "user", action.UserID)
		return
	}

	if err != nil {
		d.log.Error(ctx, "action failed",
			"intent", action.Intent, "user", action.UserID, "error", err)
	}
}

// registerWebhook maps registration outcomes to user-facing messages.
// Precondition and conflict failures are user mistakes, not system errors;
// only genuine registration failures get logged in full.
func (d *Dispatcher) registerWebhook(ctx context.Context, userKey string) {
	reg, err := d.webhooks.Register(ctx, userKey)
	switch {
	case err == nil:
		d.log.Info(ctx, "registration confirmed", "user", userKey, "resource", reg.ResourceID)
		d.responder.Notify(ctx, userKey, "Webhook registered. You will now receive calendar notifications.")
	case errors.Is(err, common.ErrNotAuthenticated), errors.Is(err, common.ErrCredentialRevoked):
		d.responder.Notify(ctx, userKey, "Please log in with Google again.")
	case errors.Is(err, common.ErrPreconditionMissing):
		d.responder.Notify(ctx, userKey, "Select a calendar and a channel first.")
	case errors.Is(err, common.ErrAlreadyRegistered):
		d.responder.Notify(ctx, userKey, "A webhook is already registered.")
	default:
		d.log.Error(ctx, "webhook registration failed", "user", userKey, "error", err)
		d.responder.Notify(ctx, userKey, "Webhook registration failed. Please try again.")
	}
}
