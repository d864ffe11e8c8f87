package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// oauthClient is one client section of a Google Cloud Console credentials
// JSON file.
type oauthClient struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// GoogleCredentials mirrors the credentials JSON downloaded from Google
// Cloud Console. Desktop-app downloads carry an "installed" section, web-app
// downloads a "web" section; the notifier accepts either.
type GoogleCredentials struct {
	Installed oauthClient `json:"installed"`
	Web       oauthClient `json:"web"`
}

// LoadGoogleCredentials reads the OAuth client id and secret the daemon uses
// for refresh-token exchanges.
func LoadGoogleCredentials(path string) (clientID, clientSecret string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read Google credentials %q: %w", path, err)
	}

	var creds GoogleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", "", fmt.Errorf("failed to parse Google credentials %q: %w", path, err)
	}

	for _, client := range []oauthClient{creds.Installed, creds.Web} {
		if client.ClientID != "" {
			return client.ClientID, client.ClientSecret, nil
		}
	}
	return "", "", fmt.Errorf("%q has no 'installed' or 'web' client section", path)
}

// Config holds the configuration for the notifier daemon.
type Config struct {
	ListenAddr            string `json:"listen_addr,omitempty"`
	CallbackURL           string `json:"callback_url,omitempty"`
	DatabaseURL           string `json:"database_url,omitempty"`
	GoogleCredentialsPath string `json:"google_credentials_path,omitempty"`
	ChannelTTLSeconds     int    `json:"channel_ttl_seconds,omitempty"`
	RenewIntervalSeconds  int    `json:"renew_interval_seconds,omitempty"`
	RenewLeadSeconds      int    `json:"renew_lead_seconds,omitempty"`
}

// Flags carries the command-line overrides for LoadConfig. Empty values
// mean "not provided".
type Flags struct {
	ListenAddr            string
	CallbackURL           string
	DatabaseURL           string
	GoogleCredentialsPath string
	ChannelTTLSeconds     string
	RenewIntervalSeconds  string
	RenewLeadSeconds      string
}

// ChannelTTL returns the requested channel time-to-live.
func (c *Config) ChannelTTL() time.Duration {
	return time.Duration(c.ChannelTTLSeconds) * time.Second
}

// RenewInterval returns how often the renewal sweep runs.
func (c *Config) RenewInterval() time.Duration {
	return time.Duration(c.RenewIntervalSeconds) * time.Second
}

// RenewLead returns how long before expiry a channel is renewed.
func (c *Config) RenewLead() time.Duration {
	return time.Duration(c.RenewLeadSeconds) * time.Second
}

// LoadConfigFromFile loads configuration from a JSON file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Returns an error if any required value is missing.
func LoadConfig(configFile string, flags Flags) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	if listenAddr := os.Getenv("LISTEN_ADDR"); listenAddr != "" {
		config.ListenAddr = listenAddr
	}
	if callbackURL := os.Getenv("CALLBACK_URL"); callbackURL != "" {
		config.CallbackURL = callbackURL
	}
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		config.DatabaseURL = databaseURL
	}
	if credentialsPath := os.Getenv("GOOGLE_CREDENTIALS_PATH"); credentialsPath != "" {
		config.GoogleCredentialsPath = credentialsPath
	}
	if err := overrideIntFromEnv("CHANNEL_TTL_SECONDS", &config.ChannelTTLSeconds); err != nil {
		return nil, err
	}
	if err := overrideIntFromEnv("RENEW_INTERVAL_SECONDS", &config.RenewIntervalSeconds); err != nil {
		return nil, err
	}
	if err := overrideIntFromEnv("RENEW_LEAD_SECONDS", &config.RenewLeadSeconds); err != nil {
		return nil, err
	}

	// Step 3: Override with command-line flags (highest priority)
	if flags.ListenAddr != "" {
		config.ListenAddr = flags.ListenAddr
	}
	if flags.CallbackURL != "" {
		config.CallbackURL = flags.CallbackURL
	}
	if flags.DatabaseURL != "" {
		config.DatabaseURL = flags.DatabaseURL
	}
	if flags.GoogleCredentialsPath != "" {
		config.GoogleCredentialsPath = flags.GoogleCredentialsPath
	}
	if err := overrideIntFromFlag("channel-ttl-seconds", flags.ChannelTTLSeconds, &config.ChannelTTLSeconds); err != nil {
		return nil, err
	}
	if err := overrideIntFromFlag("renew-interval-seconds", flags.RenewIntervalSeconds, &config.RenewIntervalSeconds); err != nil {
		return nil, err
	}
	if err := overrideIntFromFlag("renew-lead-seconds", flags.RenewLeadSeconds, &config.RenewLeadSeconds); err != nil {
		return nil, err
	}

	// Step 4: Apply defaults and validate required fields
	if config.CallbackURL == "" {
		return nil, fmt.Errorf("callback_url must be provided via --callback-url flag, CALLBACK_URL environment variable, or config file")
	}

	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url must be provided via --database-url flag, DATABASE_URL environment variable, or config file")
	}

	if config.GoogleCredentialsPath == "" {
		return nil, fmt.Errorf("google_credentials_path must be provided via --google-credentials-path flag, GOOGLE_CREDENTIALS_PATH environment variable, or config file")
	}

	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}

	if config.ChannelTTLSeconds == 0 {
		config.ChannelTTLSeconds = 300
	}

	if config.RenewIntervalSeconds == 0 {
		config.RenewIntervalSeconds = 60
	}

	if config.RenewLeadSeconds == 0 {
		// Renew with two sweep periods of headroom before expiry.
		config.RenewLeadSeconds = 2 * config.RenewIntervalSeconds
	}

	return &config, nil
}

func overrideIntFromEnv(name string, dst *int) error {
	value := os.Getenv(name)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

func overrideIntFromFlag(name, value string, dst *int) error {
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid --%s: %w", name, err)
	}
	*dst = n
	return nil
}
