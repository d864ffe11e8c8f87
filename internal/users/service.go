// Package users manages the chat-identity lifecycle: creation on first
// login, soft-deletion on logout, reactivation on re-login.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/donghyeun02/calendar-notifier/internal/common"
	"github.com/donghyeun02/calendar-notifier/internal/logging"
	"github.com/donghyeun02/calendar-notifier/internal/models"
	"github.com/donghyeun02/calendar-notifier/internal/store"
)

// ChannelCleaner tears down a user's push channel. Satisfied by
// webhook.Service.
type ChannelCleaner interface {
	Clear(ctx context.Context, userKey string) error
}

// Service implements the user lifecycle.
type Service struct {
	store   store.Store
	cleaner ChannelCleaner
	log     logging.Logger
}

func NewService(st store.Store, cleaner ChannelCleaner, log logging.Logger) *Service {
	return &Service{store: st, cleaner: cleaner, log: log}
}

// CompleteLogin is called by the OAuth consent flow (out of scope here)
// once it holds the user's email and refresh token. First login creates the
// user with an empty subscription record; a returning user gets the fresh
// credential stored and the soft-delete flag lifted.
func (s *Service) CompleteLogin(ctx context.Context, userKey, email, refreshToken string) error {
	_, err := s.store.GetUser(ctx, userKey)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("failed to load user: %w", err)
		}
		user := &models.User{UserKey: userKey, Email: email, RefreshToken: refreshToken}
		if err := s.store.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		s.log.Info(ctx, "user created", "user", userKey)
		return nil
	}

	if err := s.store.UpdateRefreshToken(ctx, userKey, refreshToken); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	if err := s.store.SetUserDeleted(ctx, userKey, false); err != nil {
		return fmt.Errorf("failed to reactivate user: %w", err)
	}
	s.log.Info(ctx, "user reactivated", "user", userKey)
	return nil
}

// Logout soft-deletes the user and tears down any active channel. The
// stored refresh token is kept so a re-login does not need a new consent
// round-trip; only the flag changes.
func (s *Service) Logout(ctx context.Context, userKey string) error {
	if err := s.cleaner.Clear(ctx, userKey); err != nil {
		return fmt.Errorf("failed to clear channel on logout: %w", err)
	}

	if err := s.store.SetUserDeleted(ctx, userKey, true); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to soft-delete user: %w", err)
	}
	s.log.Info(ctx, "user logged out", "user", userKey)
	return nil
}

// IsActive reports whether the user exists and is not soft-deleted. The
// chat surface uses this to decide between the login view and the main
// view.
func (s *Service) IsActive(ctx context.Context, userKey string) (bool, error) {
	user, err := s.store.GetUser(ctx, userKey)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load user: %w", err)
	}
	return !user.Deleted, nil
}
