package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FeedConfig describes a single ICS feed.
type FeedConfig struct {
	// ID is used for logging; defaults to the URL.
	ID  string `yaml:"id" json:"id"`
	URL string `yaml:"url" json:"url"`
}

// HTTPConfig controls how feeds are downloaded.
type HTTPConfig struct {
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	From      string        `yaml:"from" json:"from"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	// RequestDelay is the pause between two feed requests.
	RequestDelay time.Duration `yaml:"request_delay" json:"request_delay"`
	// Charset the feed bodies are decoded from.
	Charset string `yaml:"charset" json:"charset"`
}

// CuratedConfig points to the manually maintained events.
type CuratedConfig struct {
	// Dir holds the *.json event files. Empty disables curated events.
	Dir string `yaml:"dir" json:"dir"`
	// Repo, if set, is cloned into (or pulled in) RepoDir before reading.
	Repo    string `yaml:"repo" json:"repo"`
	RepoDir string `yaml:"repo_dir" json:"repo_dir"`
	// Description replaces the description of every curated event.
	Description    string `yaml:"description" json:"description"`
	HorizonDays    int    `yaml:"horizon_days" json:"horizon_days"`
	MaxOccurrences int    `yaml:"max_occurrences" json:"max_occurrences"`
}

// GitConfig publishes the output directory as a git working copy.
type GitConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Remote  string `yaml:"remote" json:"remote"`
	Author  string `yaml:"author" json:"author"`
	Message string `yaml:"message" json:"message"`
	Push    bool   `yaml:"push" json:"push"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone feed timestamps are local to. It must match
	// the TZID used by the feeds.
	Timezone string `yaml:"timezone" json:"timezone"`

	// OutputDir receives one JSON file per series and all.txt.
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	// ICSDir, if set, additionally receives one .ics file per series.
	ICSDir   string `yaml:"ics_dir" json:"ics_dir"`
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// DescriptionTemplate renders the DESCRIPTION value, e.g. "Dozent: %s".
	DescriptionTemplate string `yaml:"description_template" json:"description_template"`

	// RefreshCron is a cron-style schedule string used by watch mode.
	RefreshCron            string `yaml:"refresh" json:"refresh"`
	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures" json:"max_consecutive_failures"`

	HTTP    HTTPConfig    `yaml:"http" json:"http"`
	Feeds   []FeedConfig  `yaml:"feeds" json:"feeds"`
	Curated CuratedConfig `yaml:"curated" json:"curated"`
	Git     GitConfig     `yaml:"git" json:"git"`

	// Listen is the status server address in watch mode. Empty disables it.
	Listen string `yaml:"listen" json:"listen"`
	// BasicAuth, if non-nil, protects all status endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

const (
	defaultTimezone     = "Europe/Berlin"
	defaultOutputDir    = "eventfiles"
	defaultCacheDir     = ".cache/feeds"
	defaultTemplate     = "Dozent: %s"
	defaultRefresh      = "@every 100m"
	defaultMaxFailures  = 3
	defaultUserAgent    = "github.com/HAWHHCalendarBot/downloader"
	defaultTimeout      = 15 * time.Second
	defaultRequestDelay = 200 * time.Millisecond
	defaultCharset      = "ISO-8859-1"
	defaultHorizonDays  = 366
	defaultMaxOccur     = 500
	defaultGitAuthor    = "downloader <calendarbot-downloader@hawhh.de>"
	defaultGitMessage   = "update"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.OutputDir == "" {
		c.OutputDir = defaultOutputDir
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.DescriptionTemplate == "" {
		c.DescriptionTemplate = defaultTemplate
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = defaultMaxFailures
	}

	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = defaultUserAgent
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = defaultTimeout
	}
	// A negative delay disables the pause.
	if c.HTTP.RequestDelay == 0 {
		c.HTTP.RequestDelay = defaultRequestDelay
	}
	if c.HTTP.Charset == "" {
		c.HTTP.Charset = defaultCharset
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}

	if c.Curated.RepoDir == "" && c.Curated.Dir != "" {
		c.Curated.RepoDir = filepath.Dir(filepath.Clean(c.Curated.Dir))
	}
	if c.Curated.HorizonDays <= 0 {
		c.Curated.HorizonDays = defaultHorizonDays
	}
	if c.Curated.MaxOccurrences <= 0 {
		c.Curated.MaxOccurrences = defaultMaxOccur
	}

	if c.Git.Author == "" {
		c.Git.Author = defaultGitAuthor
	}
	if c.Git.Message == "" {
		c.Git.Message = defaultGitMessage
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// ApplyEnv overrides selected keys from CALFEED_* environment variables,
// after loading a .env file from the working directory if there is one.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if v := os.Getenv("CALFEED_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("CALFEED_ICS_DIR"); v != "" {
		c.ICSDir = v
	}
	if v := os.Getenv("CALFEED_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CALFEED_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("CALFEED_REFRESH"); v != "" {
		c.RefreshCron = v
	}
	if v := os.Getenv("CALFEED_GIT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("CALFEED_GIT_ENABLED: " + err.Error())
		}
		c.Git.Enabled = enabled
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calfeed-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
