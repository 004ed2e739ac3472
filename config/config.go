// Package config loads the checkin configuration from a JSON or YAML file
// with CHECKIN_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/spf13/viper"

	"github.com/ytget/checkin/errs"
	"github.com/ytget/checkin/internal/logger"
	"github.com/ytget/checkin/sites/enshan"
)

// EnvPrefix prefixes every environment override, e.g. CHECKIN_HTTP_TIMEOUT.
const EnvPrefix = "CHECKIN"

// Config is the full application configuration.
type Config struct {
	Log    logger.LogConfig `mapstructure:"log"`
	HTTP   HTTPConfig       `mapstructure:"http"`
	Run    RunConfig        `mapstructure:"run"`
	Notify NotifyConfig     `mapstructure:"notify"`
	Enshan EnshanConfig     `mapstructure:"enshan"`
}

// HTTPConfig configures the shared HTTP client.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	Retries   int           `mapstructure:"retries"`
	UserAgent string        `mapstructure:"user_agent"`
	Proxy     string        `mapstructure:"proxy"`
}

// RunConfig bounds how accounts are processed.
type RunConfig struct {
	// Concurrency is the number of accounts signed in at once.
	Concurrency int `mapstructure:"concurrency"`
	// Rate is the number of sign-ins started per second. Zero disables the limit.
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
	// SessionDir keeps signed-in cookies between runs when set.
	SessionDir string        `mapstructure:"session_dir"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// NotifyConfig selects the notification channels.
type NotifyConfig struct {
	Title string     `mapstructure:"title"`
	Bark  BarkConfig `mapstructure:"bark"`
	SMTP  SMTPConfig `mapstructure:"smtp"`
}

// BarkConfig configures the Bark push channel. It is enabled when Key is set.
type BarkConfig struct {
	Server string `mapstructure:"server"`
	Key    string `mapstructure:"key"`
	Sound  string `mapstructure:"sound"`
	Group  string `mapstructure:"group"`
}

// SMTPConfig configures the mail channel. It is enabled when Host is set.
type SMTPConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// EnshanConfig is the forum section.
type EnshanConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// FallbackEngine names the script engine used when the challenge grammar
	// does not match ("otto", "goja" or empty for none).
	FallbackEngine string           `mapstructure:"fallback_engine"`
	Defaults       enshan.Account   `mapstructure:"defaults"`
	Accounts       []enshan.Account `mapstructure:"accounts"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	lc := logger.DefaultLogConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.output", lc.Output)
	v.SetDefault("log.file", "")
	v.SetDefault("log.components", lc.Components)
	v.SetDefault("log.show_caller", lc.ShowCaller)
	v.SetDefault("log.timestamp", lc.Timestamp)
	v.SetDefault("log.rotation.max_size", lc.Rotation.MaxSize)
	v.SetDefault("log.rotation.max_age", lc.Rotation.MaxAge)
	v.SetDefault("log.rotation.max_backups", lc.Rotation.MaxBackups)
	v.SetDefault("log.rotation.compress", lc.Rotation.Compress)

	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.retries", 3)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.proxy", "")

	v.SetDefault("run.concurrency", 2)
	v.SetDefault("run.rate", 1.0)
	v.SetDefault("run.burst", 1)
	v.SetDefault("run.session_dir", "")
	v.SetDefault("run.session_ttl", "6h")

	v.SetDefault("notify.title", "Check-in")
	v.SetDefault("notify.bark.server", "https://api.day.app")
	v.SetDefault("notify.bark.key", "")
	v.SetDefault("notify.bark.sound", "birdsong")
	v.SetDefault("notify.bark.group", "checkin")
	v.SetDefault("notify.smtp.host", "")
	v.SetDefault("notify.smtp.port", 465)
	v.SetDefault("notify.smtp.username", "")
	v.SetDefault("notify.smtp.password", "")
	v.SetDefault("notify.smtp.from", "")
	v.SetDefault("notify.smtp.to", []string{})

	v.SetDefault("enshan.base_url", enshan.DefaultBaseURL)
	v.SetDefault("enshan.fallback_engine", "")
}

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads path (JSON or YAML by extension) and applies environment
// overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	log := logger.WithComponent(logger.ComponentConfig)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Debug("Config file loaded", map[string]interface{}{"path": path})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyAccountDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info("Config ready", map[string]interface{}{
		"enshan_accounts": len(cfg.Enshan.Accounts),
		"bark":            cfg.Notify.Bark.Key != "",
		"smtp":            cfg.Notify.SMTP.Host != "",
	})
	return &cfg, nil
}

// applyAccountDefaults fills empty account fields from the site defaults.
func (c *Config) applyAccountDefaults() error {
	for i := range c.Enshan.Accounts {
		if err := mergo.Merge(&c.Enshan.Accounts[i], c.Enshan.Defaults); err != nil {
			return fmt.Errorf("apply enshan defaults to account %d: %w", i, err)
		}
	}
	return nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	var problems []error
	if err := c.Log.ValidateConfig(); err != nil {
		problems = append(problems, fmt.Errorf("log: %w", err))
	}
	if c.HTTP.Timeout <= 0 {
		problems = append(problems, errors.New("http.timeout must be positive"))
	}
	if c.HTTP.Retries < 0 {
		problems = append(problems, errors.New("http.retries must not be negative"))
	}
	if c.HTTP.Proxy != "" {
		if _, err := url.Parse(c.HTTP.Proxy); err != nil {
			problems = append(problems, fmt.Errorf("http.proxy: %w", err))
		}
	}
	if c.Run.Concurrency < 1 {
		problems = append(problems, errors.New("run.concurrency must be at least 1"))
	}
	if c.Run.Rate < 0 {
		problems = append(problems, errors.New("run.rate must not be negative"))
	}
	if c.Run.Rate > 0 && c.Run.Burst < 1 {
		problems = append(problems, errors.New("run.burst must be at least 1 when run.rate is set"))
	}
	if c.Run.SessionTTL < 0 {
		problems = append(problems, errors.New("run.session_ttl must not be negative"))
	}
	if c.Notify.SMTP.Host != "" {
		if c.Notify.SMTP.From == "" || len(c.Notify.SMTP.To) == 0 {
			problems = append(problems, errors.New("notify.smtp needs from and to"))
		}
		if c.Notify.SMTP.Port <= 0 {
			problems = append(problems, errors.New("notify.smtp.port must be positive"))
		}
	}
	if u, err := url.Parse(c.Enshan.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Errorf("enshan.base_url %q is not an absolute URL", c.Enshan.BaseURL))
	}
	switch strings.ToLower(c.Enshan.FallbackEngine) {
	case "", "otto", "goja":
	default:
		problems = append(problems, fmt.Errorf("enshan.fallback_engine: %w: %q", errs.ErrUnknownEngine, c.Enshan.FallbackEngine))
	}
	seen := make(map[string]bool)
	for i, a := range c.Enshan.Accounts {
		if a.Name == "" {
			problems = append(problems, fmt.Errorf("enshan.accounts[%d]: name is required", i))
		} else if seen[a.Name] {
			problems = append(problems, fmt.Errorf("enshan.accounts[%d]: duplicate name %q", i, a.Name))
		}
		seen[a.Name] = true
		if a.Cookies == "" {
			problems = append(problems, fmt.Errorf("enshan.accounts[%d]: cookies are required", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", errs.ErrInvalidConfig, errors.Join(problems...))
	}
	return nil
}

// Accounts returns the number of configured accounts across all sites.
func (c *Config) Accounts() int {
	return len(c.Enshan.Accounts)
}
