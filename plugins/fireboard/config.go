package fireboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/joshp123/gohome-fireboard/internal/config"
)

const (
	defaultBaseURL        = config.DefaultFireboardBaseURL
	defaultPollInterval   = 30 * time.Second
	defaultRefreshTimeout = 10 * time.Second
	defaultUserAgent      = "gohome FireBoard Integration"

	loginPath = "/api/rest-auth/login/"
	apiPrefix = "/api/v1"
)

// Config defines runtime configuration for one FireBoard account.
type Config struct {
	EntryID        string
	BaseURL        string
	Credentials    Credentials
	PollInterval   time.Duration
	RefreshTimeout time.Duration
	UserAgent      string
}

func ConfigFromEntry(entry config.FireboardEntry) (Config, error) {
	if strings.TrimSpace(entry.Username) == "" {
		return Config{}, fmt.Errorf("fireboard username is required")
	}
	password, err := config.ReadSecret(entry.Password, entry.PasswordFile)
	if err != nil {
		return Config{}, err
	}
	if password == "" {
		return Config{}, fmt.Errorf("fireboard password is required")
	}

	cfg := Config{
		EntryID:        entry.ID,
		BaseURL:        entry.BaseURL,
		Credentials:    Credentials{Username: entry.Username, Password: password},
		PollInterval:   time.Duration(entry.PollIntervalSeconds) * time.Second,
		RefreshTimeout: time.Duration(entry.RefreshTimeoutSeconds) * time.Second,
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = defaultRefreshTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	return c
}
