package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Duration decodes TOML strings like "500ms" or "30s". go-toml does not
// unmarshal into time.Duration directly, so every duration knob in the config
// file uses this wrapper.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Site        SiteConfig      `toml:"site"`
	Ingestion   IngestionConfig `toml:"ingestion"`
	Storage     StorageConfig   `toml:"storage"`
	Browser     BrowserConfig   `toml:"browser"`
	Logging     LoggingConfig   `toml:"logging"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

// SiteConfig describes the target search page.
type SiteConfig struct {
	RootURL  string `toml:"root_url" validate:"required,url"`
	PageSize int    `toml:"page_size" validate:"gt=0"` // rows per page; the max supported value minimizes page count
}

// IngestionConfig bounds the windowed pagination walk. Every limit here exists
// to guarantee the engine halts even under pathological site behavior.
type IngestionConfig struct {
	MaxWindows          int           `toml:"max_windows" validate:"gt=0"`          // outer loop cap regardless of discovery success
	MaxJumpCandidates   int           `toml:"max_jump_candidates" validate:"gt=0"`  // bounded ascending jump sequence length
	JumpStep            int           `toml:"jump_step" validate:"gt=0"`            // jump granularity heuristic (50, 100, 150, ...)
	MaxSanePage         int           `toml:"max_sane_page" validate:"gt=0"`        // reject junk pager values above this
	RequestDelay        Duration      `toml:"request_delay"`                        // courtesy delay between navigations and writes
	NavigationRetries   int           `toml:"navigation_retries" validate:"gte=0"`  // per-page retries before the page is skipped
	ConsecutiveFailures int           `toml:"consecutive_failures" validate:"gt=0"` // store failures in a row before aborting the page
	AncestorHops        int           `toml:"ancestor_hops" validate:"gt=0"`        // DOM hops when locating a listing container
}

// StorageConfig selects the store adapter.
type StorageConfig struct {
	Type   string       `toml:"type" validate:"oneof=sqlite d1"`
	SQLite SQLiteConfig `toml:"sqlite"`
	D1     D1Config     `toml:"d1"`
}

// SQLiteConfig represents SQLite-specific configuration
type SQLiteConfig struct {
	Path string `toml:"path"` // Database file path (":memory:" supported)
}

// D1Config holds Cloudflare D1 HTTP API settings. The API token normally
// arrives via CALWATCH_D1_API_TOKEN or CLOUDFLARE_API_TOKEN rather than the
// config file.
type D1Config struct {
	AccountID  string   `toml:"account_id"`
	DatabaseID string   `toml:"database_id"`
	APIToken   string   `toml:"api_token"`
	Timeout    Duration `toml:"timeout"`
}

// BrowserConfig controls the chromedp session driving the search page.
type BrowserConfig struct {
	UserAgent         string   `toml:"user_agent"`
	Headless          bool     `toml:"headless"`
	DisableGPU        bool     `toml:"disable_gpu"`
	NoSandbox         bool     `toml:"no_sandbox"`
	NavigationTimeout Duration `toml:"navigation_timeout"`
	StabilizeWait     Duration `toml:"stabilize_wait"` // settle time after a postback re-render
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// SchedulerConfig enables recurring in-process runs, the local analog of the
// original cron-triggered deployment.
type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron expression, e.g. "0 */6 * * *"
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// user-facing settings belong in calwatch.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Site: SiteConfig{
			RootURL:  "https://calcareers.ca.gov/CalHRPublic/Search/JobSearchResults.aspx",
			PageSize: 100, // largest size the results grid supports
		},
		Ingestion: IngestionConfig{
			MaxWindows:          25,
			MaxJumpCandidates:   7, // 50, 100, ... 350
			JumpStep:            50,
			MaxSanePage:         1000,
			RequestDelay:        Duration(500 * time.Millisecond),
			NavigationRetries:   1,
			ConsecutiveFailures: 3,
			AncestorHops:        10,
		},
		Storage: StorageConfig{
			Type: "sqlite",
			SQLite: SQLiteConfig{
				Path: "./data/calwatch.db",
			},
			D1: D1Config{
				Timeout: Duration(30 * time.Second),
			},
		},
		Browser: BrowserConfig{
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Headless:          true,
			DisableGPU:        true,
			NoSandbox:         false,
			NavigationTimeout: Duration(30 * time.Second),
			StabilizeWait:     Duration(2 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "0 */6 * * *", // every 6 hours
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files; later files override
// earlier ones. Priority: CLI flags > environment variables > last config
// file > ... > first config file > defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Storage.Type == "d1" && (c.Storage.D1.AccountID == "" || c.Storage.D1.DatabaseID == "") {
		return fmt.Errorf("invalid configuration: d1 storage requires account_id and database_id")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CALWATCH_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Site configuration
	if rootURL := os.Getenv("CALWATCH_SITE_ROOT_URL"); rootURL != "" {
		config.Site.RootURL = rootURL
	}
	if pageSize := os.Getenv("CALWATCH_SITE_PAGE_SIZE"); pageSize != "" {
		if ps, err := strconv.Atoi(pageSize); err == nil {
			config.Site.PageSize = ps
		}
	}

	// Ingestion configuration
	if maxWindows := os.Getenv("CALWATCH_INGESTION_MAX_WINDOWS"); maxWindows != "" {
		if mw, err := strconv.Atoi(maxWindows); err == nil {
			config.Ingestion.MaxWindows = mw
		}
	}
	if maxJump := os.Getenv("CALWATCH_INGESTION_MAX_JUMP_CANDIDATES"); maxJump != "" {
		if mj, err := strconv.Atoi(maxJump); err == nil {
			config.Ingestion.MaxJumpCandidates = mj
		}
	}
	if jumpStep := os.Getenv("CALWATCH_INGESTION_JUMP_STEP"); jumpStep != "" {
		if js, err := strconv.Atoi(jumpStep); err == nil {
			config.Ingestion.JumpStep = js
		}
	}
	if delay := os.Getenv("CALWATCH_INGESTION_REQUEST_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			config.Ingestion.RequestDelay = Duration(d)
		}
	}

	// Storage configuration
	if storageType := os.Getenv("CALWATCH_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if sqlitePath := os.Getenv("CALWATCH_SQLITE_PATH"); sqlitePath != "" {
		config.Storage.SQLite.Path = sqlitePath
	}
	if accountID := os.Getenv("CALWATCH_D1_ACCOUNT_ID"); accountID != "" {
		config.Storage.D1.AccountID = accountID
	}
	if databaseID := os.Getenv("CALWATCH_D1_DATABASE_ID"); databaseID != "" {
		config.Storage.D1.DatabaseID = databaseID
	}
	if apiToken := os.Getenv("CALWATCH_D1_API_TOKEN"); apiToken != "" {
		config.Storage.D1.APIToken = apiToken
	} else if apiToken := os.Getenv("CLOUDFLARE_API_TOKEN"); apiToken != "" {
		config.Storage.D1.APIToken = apiToken
	}

	// Browser configuration
	if userAgent := os.Getenv("CALWATCH_BROWSER_USER_AGENT"); userAgent != "" {
		config.Browser.UserAgent = userAgent
	}
	if headless := os.Getenv("CALWATCH_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if timeout := os.Getenv("CALWATCH_BROWSER_NAVIGATION_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			config.Browser.NavigationTimeout = Duration(t)
		}
	}

	// Logging configuration
	if level := os.Getenv("CALWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CALWATCH_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range splitString(output, ",") {
			trimmed := trimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Scheduler configuration
	if schedule := os.Getenv("CALWATCH_SCHEDULE"); schedule != "" {
		config.Scheduler.Enabled = true
		config.Scheduler.Schedule = schedule
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, rootURL string, pageSize int, storageType string) {
	// Command-line flags have highest priority
	if rootURL != "" {
		config.Site.RootURL = rootURL
	}
	if pageSize > 0 {
		config.Site.PageSize = pageSize
	}
	if storageType != "" {
		config.Storage.Type = storageType
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Helper functions for string manipulation
func splitString(s, sep string) []string {
	result := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i = start - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}
