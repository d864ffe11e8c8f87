package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/donghyeun02/calendar-notifier/internal/common"
	"github.com/donghyeun02/calendar-notifier/internal/models"
)

func TestMemory_ActivateConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if err := store.CreateUser(ctx, &models.User{UserKey: "U1"}); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}

	expiresAt := time.Now().Add(5 * time.Minute)
	if err := store.Activate(ctx, "U1", "chan-1", "res-1", expiresAt); err != nil {
		t.Fatalf("Activate error: %v", err)
	}

	err := store.Activate(ctx, "U1", "chan-2", "res-2", expiresAt)
	if !errors.Is(err, common.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}

	// The loser must not have overwritten anything.
	sub, err := store.Subscription(ctx, "U1")
	if err != nil {
		t.Fatalf("Subscription error: %v", err)
	}
	if sub.ChannelID != "chan-1" || sub.ResourceID != "res-1" {
		t.Errorf("record was overwritten: %+v", sub)
	}
}

func TestMemory_ClearAndRoute(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if err := store.CreateUser(ctx, &models.User{UserKey: "U1"}); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
	if err := store.Activate(ctx, "U1", "chan-1", "res-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Activate error: %v", err)
	}

	owner, err := store.OwnerByResourceID(ctx, "res-1")
	if err != nil || owner != "U1" {
		t.Fatalf("OwnerByResourceID = %q, %v; want U1", owner, err)
	}

	if err := store.Clear(ctx, "U1"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}

	sub, err := store.Subscription(ctx, "U1")
	if err != nil {
		t.Fatalf("Subscription error: %v", err)
	}
	if sub.State() != models.Unregistered {
		t.Error("expected record to be unregistered after Clear")
	}
	if _, err := store.OwnerByResourceID(ctx, "res-1"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after Clear, got %v", err)
	}
}

func TestMemory_UsersByReminderTime(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	for _, key := range []string{"U1", "U2", "U3"} {
		if err := store.CreateUser(ctx, &models.User{UserKey: key}); err != nil {
			t.Fatalf("CreateUser error: %v", err)
		}
	}
	if err := store.SetReminderTime(ctx, "U1", "09:00"); err != nil {
		t.Fatalf("SetReminderTime error: %v", err)
	}
	if err := store.SetReminderTime(ctx, "U2", "09:00"); err != nil {
		t.Fatalf("SetReminderTime error: %v", err)
	}
	// Soft-deleted users are excluded.
	if err := store.SetUserDeleted(ctx, "U2", true); err != nil {
		t.Fatalf("SetUserDeleted error: %v", err)
	}

	users, err := store.UsersByReminderTime(ctx, "09:00")
	if err != nil {
		t.Fatalf("UsersByReminderTime error: %v", err)
	}
	if len(users) != 1 || users[0].UserKey != "U1" {
		t.Fatalf("unexpected users: %+v", users)
	}
}
