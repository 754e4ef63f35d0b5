// Package config loads the steeze-assets service configuration. The decoder is
// chosen by file extension: TOML (default), YAML, or JSON with comments.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeydtaylor/steeze-assets/pkg/codec"
	"github.com/joeydtaylor/steeze-assets/pkg/handoff"
	"github.com/joeydtaylor/steeze-assets/pkg/resolver"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	PathEnv     = "STEEZE_ASSETS_CONFIG"
	DefaultPath = "steeze-assets.toml"

	DefaultListen     = ":4000"
	DefaultRelayTopic = "steeze-assets.load"
)

type Config struct {
	Resolver Resolver `toml:"resolver" yaml:"resolver" json:"resolver"`
	Server   Server   `toml:"server" yaml:"server" json:"server"`
	Relay    Relay    `toml:"relay" yaml:"relay" json:"relay"`
	Auth     Auth     `toml:"auth" yaml:"auth" json:"auth"`
}

// Resolver mirrors resolver.Options. Durations are milliseconds; a zero
// reload_delay_ms takes the default and a negative one reloads immediately.
type Resolver struct {
	HandoffFile          string  `toml:"handoff_file" yaml:"handoff_file" json:"handoff_file"`
	LockFile             string  `toml:"lock_file" yaml:"lock_file" json:"lock_file"`
	ProjectRoot          string  `toml:"project_root" yaml:"project_root" json:"project_root"`
	StartDelayMS         int     `toml:"start_delay_ms" yaml:"start_delay_ms" json:"start_delay_ms"`
	ReloadDelayMS        int     `toml:"reload_delay_ms" yaml:"reload_delay_ms" json:"reload_delay_ms"`
	PollConfigIntervalMS int     `toml:"poll_config_interval_ms" yaml:"poll_config_interval_ms" json:"poll_config_interval_ms"`
	ValidPollIntervalMS  int     `toml:"valid_poll_interval_ms" yaml:"valid_poll_interval_ms" json:"valid_poll_interval_ms"`
	LockPollIntervalMS   int     `toml:"lock_poll_interval_ms" yaml:"lock_poll_interval_ms" json:"lock_poll_interval_ms"`
	WaitConfigTimeoutMS  int     `toml:"wait_config_timeout_ms" yaml:"wait_config_timeout_ms" json:"wait_config_timeout_ms"`
	WaitingNoticeDelayMS int     `toml:"waiting_notice_delay_ms" yaml:"waiting_notice_delay_ms" json:"waiting_notice_delay_ms"`
	ExpectedVersion      string  `toml:"expected_version" yaml:"expected_version" json:"expected_version"`
	PublicPath           *string `toml:"public_path" yaml:"public_path" json:"public_path"`
	Watch                bool    `toml:"watch" yaml:"watch" json:"watch"`
	CorruptConfig        string  `toml:"corrupt_config" yaml:"corrupt_config" json:"corrupt_config"` // "fatal" | "retry"
	SnapshotFile         string  `toml:"snapshot_file" yaml:"snapshot_file" json:"snapshot_file"`
}

type Server struct {
	Listen  string `toml:"listen" yaml:"listen" json:"listen"`
	TLSCert string `toml:"tls_cert" yaml:"tls_cert" json:"tls_cert"`
	TLSKey  string `toml:"tls_key" yaml:"tls_key" json:"tls_key"`
}

type Relay struct {
	Enabled bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	Topic   string `toml:"topic" yaml:"topic" json:"topic"`
	Target  string `toml:"target" yaml:"target" json:"target"` // overridden by ELECTRICIAN_TARGET
}

type Auth struct {
	JWTSecret string `toml:"jwt_secret" yaml:"jwt_secret" json:"jwt_secret"`
	JWTIssuer string `toml:"jwt_issuer" yaml:"jwt_issuer" json:"jwt_issuer"`
	DevBypass bool   `toml:"dev_bypass" yaml:"dev_bypass" json:"dev_bypass"`
}

// Path picks the config file: explicit flag, then STEEZE_ASSETS_CONFIG, then
// the default file name.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	return envOr(PathEnv, DefaultPath)
}

// Load reads path, applies environment overrides and validates. A missing file
// at the default path yields the defaults; any other read error is returned.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && path == DefaultPath:
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	case ".json", ".jsonc":
		return codec.JSONStrict.Unmarshal(jsonc.ToJSON(b), cfg)
	default:
		return codec.TOML.Unmarshal(b, cfg)
	}
}

func (c *Config) applyEnv() {
	c.Server.Listen = envOr("SERVER_LISTEN_ADDRESS", c.Server.Listen)
	c.Server.TLSCert = envOr("SSL_SERVER_CERTIFICATE", c.Server.TLSCert)
	c.Server.TLSKey = envOr("SSL_SERVER_KEY", c.Server.TLSKey)
	c.Relay.Target = envOr("ELECTRICIAN_TARGET", c.Relay.Target)
	c.Auth.JWTSecret = envOr("ADMIN_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTIssuer = envOr("ADMIN_JWT_ISSUER", c.Auth.JWTIssuer)
	if v := os.Getenv("AUTH_DEV_BYPASS"); v != "" {
		c.Auth.DevBypass = strings.EqualFold(v, "true") || v == "1"
	}
}

// Validate normalizes c in place and fills defaults.
func (c *Config) Validate() error {
	r := &c.Resolver
	r.HandoffFile = strings.TrimSpace(r.HandoffFile)
	if r.HandoffFile == "" {
		r.HandoffFile = resolver.DefaultHandoffPath
	}
	r.LockFile = strings.TrimSpace(r.LockFile)
	if r.LockFile == "" {
		r.LockFile = r.HandoffFile + ".lock"
	}
	for name, v := range map[string]int{
		"start_delay_ms":          r.StartDelayMS,
		"poll_config_interval_ms": r.PollConfigIntervalMS,
		"valid_poll_interval_ms":  r.ValidPollIntervalMS,
		"lock_poll_interval_ms":   r.LockPollIntervalMS,
		"wait_config_timeout_ms":  r.WaitConfigTimeoutMS,
	} {
		if v < 0 {
			return fmt.Errorf("resolver.%s must be >= 0", name)
		}
	}
	if r.ReloadDelayMS == 0 {
		r.ReloadDelayMS = ms(resolver.DefaultReloadDelay)
	}
	if r.PollConfigIntervalMS == 0 {
		r.PollConfigIntervalMS = ms(resolver.DefaultPollConfigInterval)
	}
	if r.ValidPollIntervalMS == 0 {
		r.ValidPollIntervalMS = ms(resolver.DefaultValidPollInterval)
	}
	if r.LockPollIntervalMS == 0 {
		r.LockPollIntervalMS = ms(resolver.DefaultLockFilePollInterval)
	}
	if r.WaitConfigTimeoutMS == 0 {
		r.WaitConfigTimeoutMS = ms(resolver.DefaultWaitConfigTimeout)
	}
	if r.WaitingNoticeDelayMS == 0 {
		r.WaitingNoticeDelayMS = ms(resolver.DefaultInitialWaitingNoticeDelay)
	}
	r.CorruptConfig = strings.ToLower(strings.TrimSpace(r.CorruptConfig))
	switch r.CorruptConfig {
	case "":
		r.CorruptConfig = handoff.CorruptFatal.String()
	case "fatal", "retry":
	default:
		return fmt.Errorf("resolver.corrupt_config: unsupported %q (use fatal or retry)", r.CorruptConfig)
	}

	c.Server.Listen = strings.TrimSpace(c.Server.Listen)
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server: tls_cert and tls_key must be set together")
	}

	c.Relay.Topic = strings.TrimSpace(c.Relay.Topic)
	if c.Relay.Topic == "" {
		c.Relay.Topic = DefaultRelayTopic
	}
	if c.Relay.Target != "" {
		c.Relay.Enabled = true
	}
	return nil
}

// ResolverOptions converts the [resolver] section.
func (c *Config) ResolverOptions(log *zap.Logger) resolver.Options {
	r := c.Resolver
	policy := handoff.CorruptFatal
	if r.CorruptConfig == "retry" {
		policy = handoff.CorruptRetry
	}
	reload := dur(r.ReloadDelayMS)
	if reload < 0 {
		reload = 0
	}
	return resolver.Options{
		HandoffPath:               r.HandoffFile,
		LockPath:                  r.LockFile,
		ProjectRoot:               r.ProjectRoot,
		StartDelay:                dur(r.StartDelayMS),
		ReloadDelay:               reload,
		PollConfigInterval:        dur(r.PollConfigIntervalMS),
		ValidPollInterval:         dur(r.ValidPollIntervalMS),
		LockFilePollInterval:      dur(r.LockPollIntervalMS),
		WaitConfigTimeout:         dur(r.WaitConfigTimeoutMS),
		InitialWaitingNoticeDelay: dur(r.WaitingNoticeDelayMS),
		ExpectedVersion:           r.ExpectedVersion,
		PublicPathOverride:        r.PublicPath,
		Watch:                     r.Watch,
		CorruptPolicy:             policy,
		SnapshotPath:              r.SnapshotFile,
		Logger:                    log,
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func ms(d time.Duration) int { return int(d / time.Millisecond) }

func dur(n int) time.Duration { return time.Duration(n) * time.Millisecond }
