package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/decryptor/internal/chunk"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Library LibraryConfig     `yaml:"library"`
	Relay   RelayConfig       `yaml:"relay"`
	Agent   AgentConfig       `yaml:"agent"`
	Fetch   FetchConfig       `yaml:"fetch"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Library.Validate(); err != nil {
		return err
	}
	if err := c.Relay.Validate(); err != nil {
		return err
	}
	if err := c.Fetch.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// LibraryConfig points at the directory of HTML documents.
type LibraryConfig struct {
	Path string `yaml:"path"`
	// OutputPath receives rendered documents from the decrypt command.
	OutputPath string `yaml:"output_path"`
}

// Validate validates the library configuration.
func (c *LibraryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RelayConfig holds relay bridge configuration.
type RelayConfig struct {
	// Encoding is the wire codec between relay and agent: "json" or "cbor".
	Encoding       string         `yaml:"encoding"`
	MaxChunk       int            `yaml:"max_chunk"`
	HandshakeRetry time.Duration  `yaml:"handshake_retry"`
	KeyStore       KeyStoreConfig `yaml:"keystore"`
}

// Validate validates the relay configuration.
func (c *RelayConfig) Validate() error {
	if c.Encoding == "" {
		c.Encoding = "json"
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Encoding, validation.In("json", "cbor")),
		validation.Field(&c.MaxChunk, validation.Min(0), validation.Max(chunk.DefaultMaxChunk)),
		validation.Field(&c.HandshakeRetry, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	return c.KeyStore.Validate()
}

// KeyStoreConfig holds the SQLite key store location.
type KeyStoreConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the key store configuration.
func (c *KeyStoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AgentConfig describes how the native agent is run. With an empty Command
// the agent runs in-process.
type AgentConfig struct {
	Command string    `yaml:"command"`
	Args    []string  `yaml:"args"`
	GPG     GPGConfig `yaml:"gpg"`
}

// InProcess reports whether the agent runs inside this process.
func (c *AgentConfig) InProcess() bool {
	return c.Command == ""
}

// GPGConfig holds gpg invocation settings.
type GPGConfig struct {
	Binary  string `yaml:"binary"`
	Homedir string `yaml:"homedir"`
}

// FetchConfig holds settings for loading encrypted file locators.
type FetchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the fetch configuration.
func (c *FetchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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
		Library: LibraryConfig{
			Path:       "./library",
			OutputPath: "./decrypted",
		},
		Relay: RelayConfig{
			Encoding:       "json",
			HandshakeRetry: 100 * time.Millisecond,
			KeyStore: KeyStoreConfig{
				Path: "./decryptor-keys.db",
			},
		},
		Agent: AgentConfig{
			GPG: GPGConfig{Binary: "gpg"},
		},
		Fetch: FetchConfig{
			Timeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
