package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                     = "PULSE"
	defaultHTTPAddress            = "0.0.0.0:8080"
	defaultDatabasePath           = "pulse.db"
	defaultLogLevel               = "info"
	defaultTokenTTLMinutes        = 60
	defaultGoogleJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultCookieName             = "app_session"
	defaultSessionIssuer          = "tauth"
	defaultLeaderboardConcurrency = 4
	defaultAllowedOrigins         = "*"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress            string
	DatabasePath           string
	LogLevel               string
	SigningSecret          string
	TokenTTL               time.Duration
	GoogleClientID         string
	GoogleJWKSURL          string
	TAuthSigningKey        string
	TAuthCookieName        string
	TAuthIssuer            string
	LeaderboardConcurrency int
	AllowedOrigins         []string
}

// GoogleAuthEnabled reports whether the Google sign-in exchange should be exposed.
func (c AppConfig) GoogleAuthEnabled() bool {
	return c.GoogleClientID != ""
}

// SessionCookiesEnabled reports whether TAuth session cookies are accepted.
func (c AppConfig) SessionCookiesEnabled() bool {
	return c.TAuthSigningKey != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("google.jwks_url", defaultGoogleJWKSURL)
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", defaultSessionIssuer)
	configViper.SetDefault("leaderboard.concurrency", defaultLeaderboardConcurrency)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigins)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:            strings.TrimSpace(configViper.GetString("http.address")),
		DatabasePath:           strings.TrimSpace(configViper.GetString("database.path")),
		LogLevel:               configViper.GetString("log.level"),
		SigningSecret:          configViper.GetString("auth.signing_secret"),
		TokenTTL:               time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		GoogleClientID:         strings.TrimSpace(configViper.GetString("google.client_id")),
		GoogleJWKSURL:          strings.TrimSpace(configViper.GetString("google.jwks_url")),
		TAuthSigningKey:        configViper.GetString("tauth.signing_secret"),
		TAuthCookieName:        strings.TrimSpace(configViper.GetString("tauth.cookie_name")),
		TAuthIssuer:            strings.TrimSpace(configViper.GetString("tauth.issuer")),
		LeaderboardConcurrency: configViper.GetInt("leaderboard.concurrency"),
		AllowedOrigins:         splitList(configViper.GetString("cors.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	if c.GoogleAuthEnabled() && c.GoogleJWKSURL == "" {
		return fmt.Errorf("google.jwks_url is required when google.client_id is set")
	}
	if c.SessionCookiesEnabled() {
		if c.TAuthCookieName == "" {
			return fmt.Errorf("tauth.cookie_name is required")
		}
		if c.TAuthIssuer == "" {
			return fmt.Errorf("tauth.issuer is required")
		}
	}
	if c.LeaderboardConcurrency <= 0 {
		return fmt.Errorf("leaderboard.concurrency must be positive")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("cors.allowed_origins must list at least one origin")
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
