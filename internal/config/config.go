// Package config loads run settings from defaults, an optional YAML file
// and TITLE_RESOLVE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/Digital-Shane/title-resolve/internal/format"
	"github.com/Digital-Shane/title-resolve/internal/log"
	"github.com/Digital-Shane/title-resolve/internal/provider"
	"github.com/Digital-Shane/title-resolve/internal/provider/providers"
	"github.com/Digital-Shane/title-resolve/internal/rename"
)

const (
	appDir    = ".title-resolve"
	envPrefix = "TITLE_RESOLVE"
)

// EnvKeyReplacer maps config keys to environment variable names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Config is the validated run configuration.
type Config struct {
	Locale           string          `mapstructure:"locale"`
	Workers          int             `mapstructure:"workers"`
	Order            string          `mapstructure:"order"`
	Conflict         string          `mapstructure:"conflict"`
	RateWait         time.Duration   `mapstructure:"rate_wait"`
	JournalDir       string          `mapstructure:"journal_dir"`
	JournalRetention int             `mapstructure:"journal_retention_days"`
	Retry            RetryConfig     `mapstructure:"retry"`
	Cache            CacheConfig     `mapstructure:"cache"`
	Match            MatchConfig     `mapstructure:"match"`
	Templates        TemplateConfig  `mapstructure:"templates"`
	Providers        ProvidersConfig `mapstructure:"providers"`
	Log              LogConfig       `mapstructure:"log"`
}

type RetryConfig struct {
	Attempts int `mapstructure:"attempts"`
}

type CacheConfig struct {
	SearchTTL time.Duration `mapstructure:"search_ttl"`
	RecordTTL time.Duration `mapstructure:"record_ttl"`
}

type MatchConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	Epsilon   float64 `mapstructure:"epsilon"`
}

type TemplateConfig struct {
	Movie   string `mapstructure:"movie"`
	Episode string `mapstructure:"episode"`
}

type ProvidersConfig struct {
	Movie  string         `mapstructure:"movie"`
	Series string         `mapstructure:"series"`
	TMDB   ProviderConfig `mapstructure:"tmdb"`
	TVDB   ProviderConfig `mapstructure:"tvdb"`
	OMDb   ProviderConfig `mapstructure:"omdb"`
	TVmaze ProviderConfig `mapstructure:"tvmaze"`
	AniDB  ProviderConfig `mapstructure:"anidb"`
}

// ProviderConfig holds one provider's credentials and request budget. A
// zero Rate keeps the provider's published limit.
type ProviderConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	PIN     string        `mapstructure:"pin"`
	BaseURL string        `mapstructure:"base_url"`
	Rate    int           `mapstructure:"rate"`
	Window  time.Duration `mapstructure:"window"`
	Burst   int           `mapstructure:"burst"`

	// AniDB only.
	Client        string `mapstructure:"client"`
	ClientVersion int    `mapstructure:"client_version"`
	TitlesURL     string `mapstructure:"titles_url"`
}

type LogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
	JSON    bool   `mapstructure:"json"`
}

// Defaults lists every key with its default value. Keys absent here are
// not read from the environment.
var Defaults = map[string]any{
	"locale":                         "en-US",
	"workers":                        8,
	"order":                          string(provider.SortAired),
	"conflict":                       string(rename.PolicySkip),
	"rate_wait":                      30 * time.Second,
	"journal_dir":                    "",
	"journal_retention_days":         30,
	"retry.attempts":                 3,
	"cache.search_ttl":               10 * time.Minute,
	"cache.record_ttl":               24 * time.Hour,
	"match.threshold":                0.6,
	"match.epsilon":                  0.02,
	"templates.movie":                format.DefaultMovieTemplate,
	"templates.episode":              format.DefaultEpisodeTemplate,
	"providers.movie":                "",
	"providers.series":               "",
	"providers.tmdb.api_key":         "",
	"providers.tmdb.rate":            0,
	"providers.tmdb.window":          time.Second,
	"providers.tmdb.burst":           0,
	"providers.tvdb.api_key":         "",
	"providers.tvdb.pin":             "",
	"providers.tvdb.base_url":        "",
	"providers.tvdb.rate":            0,
	"providers.tvdb.window":          time.Second,
	"providers.tvdb.burst":           0,
	"providers.omdb.api_key":         "",
	"providers.omdb.base_url":        "",
	"providers.omdb.rate":            0,
	"providers.omdb.window":          time.Second,
	"providers.tvmaze.enabled":       true,
	"providers.tvmaze.base_url":      "",
	"providers.tvmaze.rate":          0,
	"providers.tvmaze.window":        time.Second,
	"providers.anidb.client":         "",
	"providers.anidb.client_version": 0,
	"providers.anidb.base_url":       "",
	"providers.anidb.titles_url":     "",
	"providers.anidb.rate":           0,
	"providers.anidb.window":         2 * time.Second,
	"log.enabled":                    true,
	"log.level":                      "warn",
	"log.json":                       false,
}

// Dir returns ~/.title-resolve.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, appDir), nil
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// NewViper returns a viper instance with defaults and environment bindings
// reading files from fs. Callers bind command line flags onto it before
// Load.
func NewViper(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()
	v.SetTypeByDefaultValue(true)
	for key, value := range Defaults {
		v.SetDefault(key, value)
	}
	return v
}

// Load reads the config file into v and returns the validated result. An
// explicit file must exist; the default file is optional.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.JournalDir == "" {
		dir, err := rename.DefaultJournalDir()
		if err != nil {
			return nil, err
		}
		cfg.JournalDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Locale) == "" {
		errs = append(errs, errors.New("locale must not be empty"))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if _, err := provider.ParseSortOrder(c.Order); err != nil {
		errs = append(errs, err)
	}
	if _, err := rename.ParsePolicy(c.Conflict); err != nil {
		errs = append(errs, err)
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts))
	}
	if c.RateWait <= 0 {
		errs = append(errs, fmt.Errorf("rate_wait must be positive, got %s", c.RateWait))
	}
	if c.Match.Threshold <= 0 || c.Match.Threshold > 1 {
		errs = append(errs, fmt.Errorf("match.threshold must be in (0, 1], got %g", c.Match.Threshold))
	}
	if c.Match.Epsilon < 0 || c.Match.Epsilon >= 1 {
		errs = append(errs, fmt.Errorf("match.epsilon must be in [0, 1), got %g", c.Match.Epsilon))
	}
	if err := format.Validate(c.Templates.Movie, false); err != nil {
		errs = append(errs, fmt.Errorf("templates.movie: %w", err))
	}
	if err := format.Validate(c.Templates.Episode, true); err != nil {
		errs = append(errs, fmt.Errorf("templates.episode: %w", err))
	}
	if m := strings.ToLower(c.Providers.Movie); m != "" && !lo.Contains(providers.MovieProviders, m) {
		errs = append(errs, fmt.Errorf("providers.movie %q is not one of %s", c.Providers.Movie, strings.Join(providers.MovieProviders, ", ")))
	}
	if s := strings.ToLower(c.Providers.Series); s != "" && !lo.Contains(providers.SeriesProviders, s) {
		errs = append(errs, fmt.Errorf("providers.series %q is not one of %s", c.Providers.Series, strings.Join(providers.SeriesProviders, ", ")))
	}
	return errors.Join(errs...)
}

// Policy returns the parsed conflict policy.
func (c *Config) Policy() rename.Policy {
	p, _ := rename.ParsePolicy(c.Conflict)
	return p
}

// SortOrder returns the parsed episode order.
func (c *Config) SortOrder() provider.SortOrder {
	o, _ := provider.ParseSortOrder(c.Order)
	return o
}

// ProviderConfig converts the settings into the form the registry builder
// consumes.
func (c *Config) ProviderConfig() provider.Config {
	p := c.Providers
	return provider.Config{
		Locale:        c.Locale,
		RetryAttempts: c.Retry.Attempts,
		RateWait:      c.RateWait,
		SearchTTL:     c.Cache.SearchTTL,
		RecordTTL:     c.Cache.RecordTTL,
		Movie:         strings.ToLower(p.Movie),
		Series:        strings.ToLower(p.Series),
		TMDB:          provider.TMDBConfig{APIKey: p.TMDB.APIKey, Rate: p.TMDB.rate()},
		TVDB:          provider.TVDBConfig{APIKey: p.TVDB.APIKey, PIN: p.TVDB.PIN, BaseURL: p.TVDB.BaseURL, Rate: p.TVDB.rate()},
		OMDb:          provider.OMDbConfig{APIKey: p.OMDb.APIKey, BaseURL: p.OMDb.BaseURL, Rate: p.OMDb.rate()},
		TVmaze:        provider.TVmazeConfig{Disabled: !p.TVmaze.Enabled, BaseURL: p.TVmaze.BaseURL, Rate: p.TVmaze.rate()},
		AniDB:         provider.AniDBConfig{
			Client:        p.AniDB.Client,
			ClientVersion: p.AniDB.ClientVersion,
			BaseURL:       p.AniDB.BaseURL,
			TitlesURL:     p.AniDB.TitlesURL,
			Rate:          p.AniDB.rate(),
		},
	}
}

func (p ProviderConfig) rate() provider.RateConfig {
	if p.Rate <= 0 {
		return provider.RateConfig{}
	}
	window := p.Window
	if window <= 0 {
		window = time.Second
	}
	return provider.RateConfig{Requests: p.Rate, Window: window, Burst: p.Burst}
}

// LogOptions converts the log settings for log.Setup.
func (c *Config) LogOptions() log.Options {
	return log.Options{Enabled: c.Log.Enabled, Level: c.Log.Level, JSON: c.Log.JSON}
}

// Setting is one effective key and its printable value.
type Setting struct {
	Key   string
	Value string
}

// Settings lists the effective values in v sorted by key, with credentials
// masked.
func Settings(v *viper.Viper) []Setting {
	keys := v.AllKeys()
	sort.Strings(keys)
	out := make([]Setting, 0, len(keys))
	for _, key := range keys {
		value := fmt.Sprint(v.Get(key))
		if isSecret(key) {
			value = log.Mask(value)
		}
		out = append(out, Setting{Key: key, Value: value})
	}
	return out
}

func isSecret(key string) bool {
	return strings.HasSuffix(key, "api_key") || strings.HasSuffix(key, ".pin")
}

// WriteDefault writes the defaults to path unless a file is already there.
func WriteDefault(v *viper.Viper, path string) error {
	if err := v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
