package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"storychain/internal/domain"
)

// EnvPrefix prefixes every environment variable that mirrors a flag
const EnvPrefix = "STORYCHAIN"

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Game    GameConfig
	Logging LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Bind    string
	Port    int
	Env     string // "development" or "production"
	Prefix  string
	Profile bool
	TLSCert string
	TLSKey  string
}

// GameConfig holds the bounds applied to every room
type GameConfig struct {
	MaxPlayers     int
	MaxRounds      int
	MaxTimeLimit   int
	MaxCharLimit   int
	SessionTimeout time.Duration
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// RegisterFlags defines the configuration flags on fs, writing into c
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	limits := domain.DefaultLimits()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&c.Server.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: STORYCHAIN_BIND)")
	fs.IntVarP(&c.Server.Port, "port", "p", 8080, "port to listen on (env: STORYCHAIN_PORT)")
	fs.StringVar(&c.Server.Env, "env", "development", "development or production (env: STORYCHAIN_ENV)")
	fs.StringVar(&c.Server.Prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: STORYCHAIN_PREFIX)")
	fs.BoolVar(&c.Server.Profile, "profile", false, "register net/http/pprof handlers (env: STORYCHAIN_PROFILE)")
	fs.StringVar(&c.Server.TLSCert, "tls-cert", "", "path to tls certificate (env: STORYCHAIN_TLS_CERT)")
	fs.StringVar(&c.Server.TLSKey, "tls-key", "", "path to tls keyfile (env: STORYCHAIN_TLS_KEY)")

	fs.IntVar(&c.Game.MaxPlayers, "max-players", limits.MaxPlayers, "maximum players per room (env: STORYCHAIN_MAX_PLAYERS)")
	fs.IntVar(&c.Game.MaxRounds, "max-rounds", limits.MaxRounds, "maximum rounds per game (env: STORYCHAIN_MAX_ROUNDS)")
	fs.IntVar(&c.Game.MaxTimeLimit, "max-time-limit", limits.MaxTimeLimit, "maximum round time limit in seconds (env: STORYCHAIN_MAX_TIME_LIMIT)")
	fs.IntVar(&c.Game.MaxCharLimit, "max-char-limit", limits.MaxCharLimit, "maximum characters per turn (env: STORYCHAIN_MAX_CHAR_LIMIT)")
	fs.DurationVar(&c.Game.SessionTimeout, "session-timeout", 2*time.Hour, "time before idle rooms are removed (env: STORYCHAIN_SESSION_TIMEOUT)")

	fs.StringVar(&c.Logging.Level, "log-level", "info", "debug, info, warn or error (env: STORYCHAIN_LOG_LEVEL)")
	fs.StringVar(&c.Logging.Format, "log-format", "text", "text or json (env: STORYCHAIN_LOG_FORMAT)")
}

// NewViper returns a viper instance reading STORYCHAIN_* environment variables
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyEnv binds every flag in fs to v and copies environment values into
// flags not set on the command line. Explicit flags win over the environment.
func ApplyEnv(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := bindFlag(v, f.Name, f); err != nil {
			errs = append(errs, err)
			return
		}
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("env for --%s: %w", f.Name, err))
			}
		}
	})
	return errors.Join(errs...)
}

// bindFlag ties key to both the flag and its environment variable
func bindFlag(v *viper.Viper, key string, f *pflag.Flag) error {
	if err := v.BindPFlag(key, f); err != nil {
		return fmt.Errorf("bind --%s: %w", key, err)
	}
	if err := v.BindEnv(key); err != nil {
		return fmt.Errorf("bind env for --%s: %w", key, err)
	}
	return nil
}

// Validate checks ranges and flag pairings
func (c *Config) Validate() error {
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Server.Port)
	}
	if c.Server.Env != "development" && c.Server.Env != "production" {
		return fmt.Errorf("invalid env %q (must be development or production)", c.Server.Env)
	}
	if c.Game.MaxPlayers < 2 {
		return fmt.Errorf("invalid max players (must be at least 2): %d", c.Game.MaxPlayers)
	}
	if c.Game.MaxRounds < 1 {
		return fmt.Errorf("invalid max rounds (must be at least 1): %d", c.Game.MaxRounds)
	}
	if c.Game.MaxTimeLimit < 0 || c.Game.MaxCharLimit < 0 {
		return errors.New("max time limit and max char limit must not be negative")
	}
	if c.Game.SessionTimeout <= 0 {
		return fmt.Errorf("invalid session timeout: %s", c.Game.SessionTimeout)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.Logging.Format)
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// Scheme returns https when TLS is configured
func (c *Config) Scheme() string {
	if c.Server.TLSCert != "" && c.Server.TLSKey != "" {
		return "https"
	}
	return "http"
}

// GetAddr returns the server address in host:port format
func (c *Config) GetAddr() string {
	return net.JoinHostPort(c.Server.Bind, strconv.Itoa(c.Server.Port))
}

// BasePath returns the URL prefix without a trailing slash
func (c *Config) BasePath() string {
	return strings.TrimSuffix(c.Server.Prefix, "/")
}

// Limits returns the room bounds
func (c *Config) Limits() domain.Limits {
	return domain.Limits{
		MaxPlayers:   c.Game.MaxPlayers,
		MaxRounds:    c.Game.MaxRounds,
		MaxTimeLimit: c.Game.MaxTimeLimit,
		MaxCharLimit: c.Game.MaxCharLimit,
	}
}
