package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var repoRe = regexp.MustCompile(`^[\w.-]+/[\w.-]+$`)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Remote platforms.
const (
	PlatformMemory = "memory"
	PlatformGitHub = "github"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Specs   SpecsConfig       `yaml:"specs"`
	Journal JournalConfig     `yaml:"journal"`
	Auth    AuthConfig        `yaml:"auth"`
	Sync    SyncConfig        `yaml:"sync"`
	GitHub  GitHubConfig      `yaml:"github"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Specs.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if c.Sync.Platform == PlatformGitHub {
		return c.GitHub.Validate()
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SpecsConfig holds the path to the specs root directory.
type SpecsConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the specs configuration.
func (c *SpecsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// JournalConfig holds the operation journal configuration. An empty path
// disables journaling.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether an operation journal should be opened.
func (c *JournalConfig) Enabled() bool {
	return c.Path != ""
}

// SyncConfig holds synchronization behavior configuration.
type SyncConfig struct {
	// Platform selects the remote adapter.
	Platform string `yaml:"platform"`
	// BatchLimit caps concurrent pushes during a full sync pass.
	BatchLimit int `yaml:"batch_limit"`
	// Watch enables the filesystem watcher for auto_sync documents.
	Watch bool `yaml:"watch"`
	// Debounce batches rapid file changes into one watcher-driven sync.
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Platform, validation.Required, validation.In(PlatformMemory, PlatformGitHub)),
		validation.Field(&c.BatchLimit, validation.Min(0)),
	)
}

// GitHubConfig holds GitHub adapter configuration.
type GitHubConfig struct {
	// Repo is the target repository in owner/name form.
	Repo string `yaml:"repo"`
	// Labels are applied to every created issue.
	Labels []string `yaml:"labels"`
}

// Validate validates the GitHub configuration.
func (c *GitHubConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Repo, validation.Required,
			validation.Match(repoRe).Error("must be owner/name")),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Specs: SpecsConfig{
			Path: "./specs",
		},
		Journal: JournalConfig{
			Path: "./ansuz.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Sync: SyncConfig{
			Platform:   PlatformMemory,
			BatchLimit: 5,
			Debounce:   500 * time.Millisecond,
		},
	}
}
