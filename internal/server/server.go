// Package server receives push notifications from the calendar provider on
// the fixed callback address.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/donghyeun02/calendar-notifier/internal/common"
	"github.com/donghyeun02/calendar-notifier/internal/logging"
)

// Google push notification headers.
const (
	headerChannelID     = "X-Goog-Channel-ID"
	headerResourceID    = "X-Goog-Resource-ID"
	headerResourceState = "X-Goog-Resource-State"
)

// Resource states the provider sends. "sync" acknowledges channel creation,
// "not_exists" signals the watched resource is gone.
const (
	stateSync      = "sync"
	stateNotExists = "not_exists"
)

// notificationTimeout bounds the async work behind one acked push.
const notificationTimeout = 30 * time.Second

// Router resolves an inbound resource id to its owner and can tear the
// record down on a provider stop signal. Satisfied by webhook.Service.
type Router interface {
	Route(ctx context.Context, resourceID string) (string, error)
	Clear(ctx context.Context, userKey string) error
}

// Consumer is the downstream side notified when a user's calendar changed.
type Consumer interface {
	CalendarChanged(ctx context.Context, userKey string)
}

// Server is the HTTP listener for the callback address.
type Server struct {
	router   Router
	consumer Consumer
	log      logging.Logger
	wg       sync.WaitGroup
}

func New(router Router, consumer Consumer, log logging.Logger) *Server {
	return &Server{router: router, consumer: consumer, log: log}
}

// Handler returns the HTTP handler for the callback and health endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recovery(s.log))
	r.Use(Logging(s.log))

	r.Post("/calendar-webhook", s.handleNotification)
	r.Get("/healthz", s.handleHealth)
	return r
}

// handleNotification acks every well-formed push immediately; routing and
// the re-fetch run asynchronously. The notification is only a signal to
// re-sync, and the provider guarantees no body payload, so nothing the
// downstream work can learn would change the response.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := r.Header.Get(headerChannelID)
	resourceID := r.Header.Get(headerResourceID)
	state := r.Header.Get(headerResourceState)

	if resourceID == "" {
		http.Error(w, "missing resource id", http.StatusBadRequest)
		return
	}

	if state == stateSync {
		// Creation ack for a channel we just opened; nothing to re-fetch.
		s.log.Debug(ctx, "channel sync ack", "channel", channelID, "resource", resourceID)
		w.WriteHeader(http.StatusOK)
		return
	}

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bg, cancel := context.WithTimeout(bg, notificationTimeout)
		defer cancel()
		s.process(bg, resourceID, state)
	}()

	w.WriteHeader(http.StatusOK)
}

// process runs the routed side of an already-acked push.
func (s *Server) process(ctx context.Context, resourceID, state string) {
	userKey, err := s.router.Route(ctx, resourceID)
	if err != nil {
		if errors.Is(err, common.ErrUnknownResource) {
			// Expected race: the push outlived its subscription.
			s.log.Debug(ctx, "dropping push for unknown resource", "resource", resourceID)
			return
		}
		s.log.Error(ctx, "failed to route notification", "resource", resourceID, "error", err)
		return
	}

	if state == stateNotExists {
		// Provider-initiated teardown; drop our side of the channel.
		if err := s.router.Clear(ctx, userKey); err != nil {
			s.log.Error(ctx, "failed to clear on provider stop", "user", userKey, "error", err)
		}
		return
	}
	s.consumer.CalendarChanged(ctx, userKey)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Run serves until the context is canceled, then shuts down gracefully and
// waits for in-flight notification work.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := httpServer.Shutdown(shutdownCtx)
	s.wg.Wait()
	return err
}
