// Package config loads the service configuration from a YAML file with
// environment overrides for deploy-level settings and secrets.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"platinmods-notifier/pkg/notifier"
)

// Telegram holds the chat transport settings.
type Telegram struct {
	Token              string  `yaml:"token"`
	NotificationChatID int64   `yaml:"notification_chat_id"`
	OwnerID            int64   `yaml:"owner_id"`
	Admins             []int64 `yaml:"admins"`
	AuthUsers          []int64 `yaml:"auth_users"`
}

// Storage selects the state backend: a GCS bucket when Bucket is set,
// otherwise local files under LocalPath.
type Storage struct {
	Bucket    string `yaml:"bucket"`
	LocalPath string `yaml:"local_path"`
}

// Config is the full service configuration. Loaded once at startup; the
// target set is not hot-reloaded.
type Config struct {
	Telegram Telegram `yaml:"telegram"`
	Storage  Storage  `yaml:"storage"`

	// CheckIntervalRaw is the inter-pass sleep as a duration string ("5m").
	CheckIntervalRaw string `yaml:"check_interval"`
	Port             string `yaml:"port"`
	UsersDB          string `yaml:"users_db"`

	// CheckInterval is the parsed form of CheckIntervalRaw.
	CheckInterval time.Duration `yaml:"-"`

	// SiteOrigin resolves relative thread links, e.g. "https://platinmods.com".
	SiteOrigin string `yaml:"site_origin"`

	// ThreadPathSegments is the accept rule for thread links: a link counts
	// as a thread when its path contains any of these segments. The exact
	// predicate is a product knob, not a constant.
	ThreadPathSegments []string `yaml:"thread_path_segments"`

	PresenceTargets []notifier.Target `yaml:"presence_targets"`
	ForumTargets    []notifier.Target `yaml:"forum_targets"`
}

const (
	defaultInterval   = 5 * time.Minute
	defaultPort       = "8080"
	defaultUsersDB    = "./data/users.db"
	defaultSiteOrigin = "https://platinmods.com"
)

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets deploy-level env vars override file values. Secrets
// (BOT_TOKEN) are expected from the environment in cloud deployments.
func (c *Config) applyEnv() {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("NOTIFICATION_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.NotificationChatID = id
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("STORAGE_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("LOCAL_STORAGE"); v != "" {
		c.Storage.LocalPath = v
	}
}

func (c *Config) applyDefaults() error {
	c.CheckInterval = defaultInterval
	if raw := c.CheckIntervalRaw; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("check_interval: invalid duration %q: %w", raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("check_interval: must be > 0, got %q", raw)
		}
		c.CheckInterval = d
	}
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.UsersDB == "" {
		c.UsersDB = defaultUsersDB
	}
	if c.SiteOrigin == "" {
		c.SiteOrigin = defaultSiteOrigin
	}
	if len(c.ThreadPathSegments) == 0 {
		c.ThreadPathSegments = []string{"threads/"}
	}
	if c.Storage.Bucket == "" && c.Storage.LocalPath == "" {
		c.Storage.LocalPath = "./data"
	}
	for i := range c.PresenceTargets {
		c.PresenceTargets[i].Kind = notifier.KindPresence
	}
	for i := range c.ForumTargets {
		c.ForumTargets[i].Kind = notifier.KindForum
	}
	return nil
}

func (c *Config) validate() error {
	if c.Telegram.Token == "" {
		return errors.New("telegram token required (config telegram.token or BOT_TOKEN)")
	}
	if c.Telegram.NotificationChatID == 0 {
		return errors.New("telegram notification_chat_id required")
	}
	if _, err := url.Parse(c.SiteOrigin); err != nil {
		return fmt.Errorf("invalid site_origin: %w", err)
	}
	seen := make(map[string]bool)
	for _, t := range append(append([]notifier.Target{}, c.PresenceTargets...), c.ForumTargets...) {
		if t.Name == "" || t.URL == "" {
			return fmt.Errorf("target needs both name and url (name=%q url=%q)", t.Name, t.URL)
		}
		key := t.StateKey()
		if seen[key] {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[key] = true
		if _, err := url.ParseRequestURI(t.URL); err != nil {
			return fmt.Errorf("target %q: invalid url: %w", t.Name, err)
		}
	}
	return nil
}

// IsAuthorized reports whether a user may run the manual check.
func (t Telegram) IsAuthorized(userID int64) bool {
	if userID == t.OwnerID {
		return true
	}
	for _, id := range t.AuthUsers {
		if id == userID {
			return true
		}
	}
	return t.IsAdmin(userID)
}

// IsAdmin reports whether a user may run broadcast/user-management commands.
func (t Telegram) IsAdmin(userID int64) bool {
	if userID == t.OwnerID {
		return true
	}
	for _, id := range t.Admins {
		if id == userID {
			return true
		}
	}
	return false
}
