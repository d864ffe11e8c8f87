package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/donghyeun02/calendar-notifier/internal/auth"
	"github.com/donghyeun02/calendar-notifier/internal/calendar"
	"github.com/donghyeun02/calendar-notifier/internal/config"
	"github.com/donghyeun02/calendar-notifier/internal/logging"
	"github.com/donghyeun02/calendar-notifier/internal/reminder"
	"github.com/donghyeun02/calendar-notifier/internal/server"
	"github.com/donghyeun02/calendar-notifier/internal/store"
	"github.com/donghyeun02/calendar-notifier/internal/webhook"
)

func printHelp() {
	fmt.Fprintf(os.Stderr, `Calendar Notifier Daemon

Links chat workspace users to their Google Calendar and keeps them in sync
via push notifications: registers watch channels, routes inbound pushes back
to the owning user, and renews channels before they expire.

USAGE:
    %s [OPTIONS]

OPTIONS:
    -h, --help                     Show this help message and exit
    --config FILE                  Path to JSON config file (optional)
    --listen-addr ADDR             HTTP listen address for the callback endpoint
                                   (default: ":8080", overrides config file and LISTEN_ADDR env var)
    --callback-url URL             Public callback URL registered with the provider
                                   (overrides config file and CALLBACK_URL env var)
    --database-url URL             PostgreSQL connection string
                                   (overrides config file and DATABASE_URL env var)
    --google-credentials-path PATH Path to Google OAuth credentials JSON file
                                   (overrides config file and GOOGLE_CREDENTIALS_PATH env var)
    --channel-ttl-seconds N        Requested push-channel time-to-live
                                   (default: 300, overrides config file and CHANNEL_TTL_SECONDS env var)
    --renew-interval-seconds N     How often the renewal sweep runs
                                   (default: 60, overrides config file and RENEW_INTERVAL_SECONDS env var)
    --renew-lead-seconds N         How long before expiry a channel is renewed
                                   (default: twice the sweep interval, overrides config file
                                   and RENEW_LEAD_SECONDS env var)

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables
    3. Config file (--config)
    4. Defaults

The Google credentials JSON file should be in the format downloaded from
Google Cloud Console, containing an "installed" or "web" section with
"client_id" and "client_secret" fields.

`, os.Args[0])
}

func main() {
	helpFlag := flag.Bool("help", false, "Show help message")
	helpFlagShort := flag.Bool("h", false, "Show help message (shorthand)")
	configFile := flag.String("config", "", "Path to JSON config file (optional)")
	listenAddr := flag.String("listen-addr", "", "HTTP listen address for the callback endpoint")
	callbackURL := flag.String("callback-url", "", "Public callback URL registered with the provider")
	databaseURL := flag.String("database-url", "", "PostgreSQL connection string")
	googleCredentialsPath := flag.String("google-credentials-path", "", "Path to Google OAuth credentials JSON file")
	channelTTL := flag.String("channel-ttl-seconds", "", "Requested push-channel time-to-live")
	renewInterval := flag.String("renew-interval-seconds", "", "How often the renewal sweep runs")
	renewLead := flag.String("renew-lead-seconds", "", "How long before expiry a channel is renewed")
	flag.Parse()

	if *helpFlag || *helpFlagShort {
		printHelp()
		os.Exit(0)
	}

	log := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load .env if present (non-fatal)
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configFile, config.Flags{
		ListenAddr:            *listenAddr,
		CallbackURL:           *callbackURL,
		DatabaseURL:           *databaseURL,
		GoogleCredentialsPath: *googleCredentialsPath,
		ChannelTTLSeconds:     *channelTTL,
		RenewIntervalSeconds:  *renewInterval,
		RenewLeadSeconds:      *renewLead,
	})
	if err != nil {
		log.Error(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	clientID, clientSecret, err := config.LoadGoogleCredentials(cfg.GoogleCredentialsPath)
	if err != nil {
		log.Error(ctx, "failed to load Google credentials", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error(ctx, "failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	tokens := auth.NewTokenProvider(auth.NewGoogleConfig(clientID, clientSecret), db)
	provider := calendar.NewClient()
	service := webhook.NewService(db, tokens, provider, cfg.CallbackURL, cfg.ChannelTTL(), log)
	renewer := webhook.NewRenewer(service, db, cfg.RenewInterval(), cfg.RenewLead(), log)
	consumer := &refreshConsumer{service: service, log: log}
	sweeper := reminder.NewSweeper(db, consumer, 20*time.Second, log)
	srv := server.New(service, consumer, log)

	log.Info(ctx, "starting notifier",
		"listen", cfg.ListenAddr,
		"callback", cfg.CallbackURL,
		"channel_ttl", cfg.ChannelTTL())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		renewer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	if err := srv.Run(ctx, cfg.ListenAddr); err != nil {
		log.Error(ctx, "server error", "error", err)
	}
	cancel()
	wg.Wait()
}

// refreshConsumer is the downstream side of a routed push: it re-fetches
// the user's calendar so whatever delivery surface is attached can pick the
// events up.
type refreshConsumer struct {
	service *webhook.Service
	log     logging.Logger
}

func (c *refreshConsumer) CalendarChanged(ctx context.Context, userKey string) {
	events, err := c.service.Refresh(ctx, userKey)
	if err != nil {
		c.log.Error(ctx, "failed to refresh calendar", "user", userKey, "error", err)
		return
	}
	c.log.Info(ctx, "calendar refreshed", "user", userKey, "events", len(events))
}
