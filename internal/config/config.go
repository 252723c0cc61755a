// Package config loads the kvedit settings from defaults, a YAML file, the
// environment and command line flags, in increasing order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/maruel/kvedit/internal/autonav"
	"github.com/maruel/kvedit/internal/notify"
)

// EnvPrefix prefixes the environment variables read by Load.
const EnvPrefix = "KVEDIT_"

// Backends lists the supported host store implementations.
var Backends = []string{"memory", "file", "sqlite"}

// Config is the complete set of settings.
type Config struct {
	Backend       string        `koanf:"backend" json:"backend" jsonschema:"enum=memory,enum=file,enum=sqlite,description=Host store implementation"`
	DataDir       string        `koanf:"data_dir" json:"data_dir" jsonschema:"description=Directory of the file and sqlite backends"`
	Seed          string        `koanf:"seed" json:"seed,omitempty" jsonschema:"description=YAML fixture applied at startup"`
	Enumerate     bool          `koanf:"enumerate" json:"enumerate" jsonschema:"description=Whether the host store lists its databases"`
	HTTP          string        `koanf:"http" json:"http" jsonschema:"description=Address the API listens on"`
	LogLevel      string        `koanf:"log_level" json:"log_level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	ToastDuration time.Duration `koanf:"toast_duration" json:"toast_duration" jsonschema:"oneof_type=string;integer,description=How long a notification stays active"`
	RateLimit     RateLimit     `koanf:"rate_limit" json:"rate_limit"`
	AutoNav       AutoNav       `koanf:"autonav" json:"autonav"`
}

// RateLimit bounds the commands a client can send per window. Queries get
// ten times as much.
type RateLimit struct {
	Requests int           `koanf:"requests" json:"requests" jsonschema:"minimum=1"`
	Window   time.Duration `koanf:"window" json:"window" jsonschema:"oneof_type=string;integer"`
	Burst    int           `koanf:"burst" json:"burst" jsonschema:"minimum=1"`
}

// AutoNav configures the drill-down triggered by the page URL.
type AutoNav struct {
	URLPattern      string        `koanf:"url_pattern" json:"url_pattern" jsonschema:"description=Regular expression with one capture group"`
	DatabaseKeyword string        `koanf:"database_keyword" json:"database_keyword"`
	StoreKeywords   []string      `koanf:"store_keywords" json:"store_keywords"`
	Timeout         time.Duration `koanf:"timeout" json:"timeout" jsonschema:"oneof_type=string;integer"`
}

// Defaults returns the built-in settings as koanf keys.
func Defaults() map[string]any {
	nav := autonav.DefaultConfig()
	return map[string]any{
		"backend":                  "memory",
		"data_dir":                 "./data",
		"seed":                     "",
		"enumerate":                true,
		"http":                     "localhost:8080",
		"log_level":                "info",
		"toast_duration":           notify.DefaultTTL.String(),
		"rate_limit.requests":      120,
		"rate_limit.window":        time.Minute.String(),
		"rate_limit.burst":         30,
		"autonav.url_pattern":      autonav.DefaultPattern,
		"autonav.database_keyword": nav.DatabaseKeyword,
		"autonav.store_keywords":   nav.StoreKeywords,
		"autonav.timeout":          nav.Timeout.String(),
	}
}

// FindFile returns explicit, or kvedit.yaml / kvedit.yml in the current
// directory, or "" when there is none.
func FindFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"kvedit.yaml", "kvedit.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load reads the settings. cfgFile may be empty; flags may be nil. Only flags
// explicitly set override the other sources.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

// envKey maps KVEDIT_AUTONAV_URL_PATTERN to autonav.url_pattern.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range []string{"autonav", "rate_limit"} {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(Backends, c.Backend) {
		errs = append(errs, fmt.Errorf("backend: must be one of %s, got %q", strings.Join(Backends, ", "), c.Backend))
	}
	if c.Backend != "memory" && c.DataDir == "" {
		errs = append(errs, fmt.Errorf("data_dir: required by backend %q", c.Backend))
	}
	if c.HTTP == "" {
		errs = append(errs, errors.New("http: address is required"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.ToastDuration <= 0 {
		errs = append(errs, errors.New("toast_duration: must be positive"))
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Burst <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit: requests, window and burst must be positive"))
	}
	if _, err := c.AutoNavConfig(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AutoNavConfig compiles the auto-navigation settings.
func (c *Config) AutoNavConfig() (autonav.Config, error) {
	re, err := regexp.Compile(c.AutoNav.URLPattern)
	if err != nil {
		return autonav.Config{}, fmt.Errorf("autonav.url_pattern: %w", err)
	}
	out := autonav.Config{
		Pattern:         re,
		DatabaseKeyword: c.AutoNav.DatabaseKeyword,
		StoreKeywords:   slices.Clone(c.AutoNav.StoreKeywords),
		Timeout:         c.AutoNav.Timeout,
	}
	if err := out.Validate(); err != nil {
		return autonav.Config{}, err
	}
	return out, nil
}

// ParseLevel maps a log_level value to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Schema returns the JSON schema of the configuration file.
func Schema() ([]byte, error) {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true, FieldNameTag: "koanf", RequiredFromJSONSchemaTags: true}
	s := r.Reflect(&Config{})
	s.Title = "kvedit configuration"
	return json.MarshalIndent(s, "", "  ")
}
