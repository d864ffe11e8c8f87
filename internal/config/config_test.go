package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"LISTEN_ADDR", "CALLBACK_URL", "DATABASE_URL", "GOOGLE_CREDENTIALS_PATH",
		"CHANNEL_TTL_SECONDS", "RENEW_INTERVAL_SECONDS", "RENEW_LEAD_SECONDS",
	} {
		t.Setenv(name, "")
	}
}

func requiredFlags() Flags {
	return Flags{
		CallbackURL:           "https://example.com/calendar-webhook",
		DatabaseURL:           "postgres://localhost/notifier",
		GoogleCredentialsPath: "/etc/notifier/credentials.json",
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	config, err := LoadConfig("", requiredFlags())
	if err != nil {
		t.Fatalf("LoadConfig() returned an error: %v", err)
	}

	if config.ListenAddr != ":8080" {
		t.Errorf("Expected default listen addr ':8080', got %q", config.ListenAddr)
	}
	if config.ChannelTTLSeconds != 300 {
		t.Errorf("Expected default channel ttl 300, got %d", config.ChannelTTLSeconds)
	}
	if config.RenewIntervalSeconds != 60 {
		t.Errorf("Expected default renew interval 60, got %d", config.RenewIntervalSeconds)
	}
	if config.RenewLeadSeconds != 120 {
		t.Errorf("Expected default renew lead of two sweep periods, got %d", config.RenewLeadSeconds)
	}
	if config.ChannelTTL() != 300*time.Second {
		t.Errorf("Expected ChannelTTL() of 300s, got %v", config.ChannelTTL())
	}
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name  string
		flags Flags
		want  string
	}{
		{
			name: "missing callback url",
			flags: Flags{
				DatabaseURL:           "postgres://localhost/notifier",
				GoogleCredentialsPath: "/etc/notifier/credentials.json",
			},
			want: "callback_url",
		},
		{
			name: "missing database url",
			flags: Flags{
				CallbackURL:           "https://example.com/calendar-webhook",
				GoogleCredentialsPath: "/etc/notifier/credentials.json",
			},
			want: "database_url",
		},
		{
			name: "missing credentials path",
			flags: Flags{
				CallbackURL: "https://example.com/calendar-webhook",
				DatabaseURL: "postgres://localhost/notifier",
			},
			want: "google_credentials_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig("", tt.flags)
			if err == nil {
				t.Fatal("Expected an error for missing required value")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error to mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	clearEnv(t)

	configFile := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"listen_addr": ":9000",
		"callback_url": "https://file.example.com/calendar-webhook",
		"database_url": "postgres://file-host/notifier",
		"google_credentials_path": "/from/file.json",
		"channel_ttl_seconds": 600
	}`
	if err := os.WriteFile(configFile, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://env-host/notifier")
	t.Setenv("CHANNEL_TTL_SECONDS", "900")

	config, err := LoadConfig(configFile, Flags{})
	if err != nil {
		t.Fatalf("LoadConfig() returned an error: %v", err)
	}

	if config.ListenAddr != ":9000" {
		t.Errorf("Expected listen addr from file, got %q", config.ListenAddr)
	}
	if config.DatabaseURL != "postgres://env-host/notifier" {
		t.Errorf("Expected database url from env, got %q", config.DatabaseURL)
	}
	if config.ChannelTTLSeconds != 900 {
		t.Errorf("Expected channel ttl from env, got %d", config.ChannelTTLSeconds)
	}
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	clearEnv(t)

	t.Setenv("CALLBACK_URL", "https://env.example.com/calendar-webhook")
	t.Setenv("RENEW_INTERVAL_SECONDS", "30")

	flags := requiredFlags()
	flags.RenewIntervalSeconds = "15"

	config, err := LoadConfig("", flags)
	if err != nil {
		t.Fatalf("LoadConfig() returned an error: %v", err)
	}

	if config.CallbackURL != flags.CallbackURL {
		t.Errorf("Expected callback url from flags, got %q", config.CallbackURL)
	}
	if config.RenewIntervalSeconds != 15 {
		t.Errorf("Expected renew interval from flags, got %d", config.RenewIntervalSeconds)
	}
}

func TestLoadConfig_InvalidInt(t *testing.T) {
	clearEnv(t)

	t.Setenv("CHANNEL_TTL_SECONDS", "not-a-number")

	if _, err := LoadConfig("", requiredFlags()); err == nil {
		t.Error("Expected an error for non-numeric CHANNEL_TTL_SECONDS")
	}

	clearEnv(t)
	flags := requiredFlags()
	flags.ChannelTTLSeconds = "also-not-a-number"
	if _, err := LoadConfig("", flags); err == nil {
		t.Error("Expected an error for non-numeric --channel-ttl-seconds")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"), requiredFlags()); err == nil {
		t.Error("Expected an error for missing config file")
	}
}

func TestLoadGoogleCredentials(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name       string
		content    string
		wantID     string
		wantSecret string
		wantErr    bool
	}{
		{
			name:       "installed section",
			content:    `{"installed": {"client_id": "id-installed", "client_secret": "secret-installed"}}`,
			wantID:     "id-installed",
			wantSecret: "secret-installed",
		},
		{
			name:       "web section",
			content:    `{"web": {"client_id": "id-web", "client_secret": "secret-web"}}`,
			wantID:     "id-web",
			wantSecret: "secret-web",
		},
		{
			name:    "neither section",
			content: `{}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			content: `{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "-")+".json")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("Failed to write credentials file: %v", err)
			}

			id, secret, err := LoadGoogleCredentials(path)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadGoogleCredentials() returned an error: %v", err)
			}
			if id != tt.wantID || secret != tt.wantSecret {
				t.Errorf("Expected (%q, %q), got (%q, %q)", tt.wantID, tt.wantSecret, id, secret)
			}
		})
	}
}

func TestLoadGoogleCredentials_MissingFile(t *testing.T) {
	if _, _, err := LoadGoogleCredentials(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected an error for a missing credentials file")
	}
}
