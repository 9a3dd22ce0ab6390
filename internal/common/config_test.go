package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "https://calcareers.ca.gov/CalHRPublic/Search/JobSearchResults.aspx", config.Site.RootURL)
	assert.Equal(t, 100, config.Site.PageSize)
	assert.Equal(t, 25, config.Ingestion.MaxWindows)
	assert.Equal(t, 50, config.Ingestion.JumpStep)
	assert.Equal(t, 7, config.Ingestion.MaxJumpCandidates)
	assert.Equal(t, "sqlite", config.Storage.Type)
	assert.False(t, config.Scheduler.Enabled)

	require.NoError(t, config.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, "calwatch.toml", `
environment = "production"

[site]
page_size = 50

[ingestion]
request_delay = "250ms"

[storage]
type = "sqlite"

[storage.sqlite]
path = ":memory:"
`)

	config, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.True(t, config.IsProduction())
	assert.Equal(t, 50, config.Site.PageSize)
	assert.Equal(t, 250*time.Millisecond, config.Ingestion.RequestDelay.Std())
	assert.Equal(t, ":memory:", config.Storage.SQLite.Path)
	// Untouched sections keep their defaults.
	assert.Equal(t, 25, config.Ingestion.MaxWindows)
}

// Every duration knob the sample config ships must decode from its string
// form; a file the loader cannot parse kills the process before startup.
func TestLoadFromFileDurationStrings(t *testing.T) {
	path := writeConfigFile(t, "calwatch.toml", `
[ingestion]
request_delay = "500ms"

[storage.d1]
timeout = "30s"

[browser]
navigation_timeout = "45s"
stabilize_wait = "1500ms"
`)

	config, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, config.Ingestion.RequestDelay.Std())
	assert.Equal(t, 30*time.Second, config.Storage.D1.Timeout.Std())
	assert.Equal(t, 45*time.Second, config.Browser.NavigationTimeout.Std())
	assert.Equal(t, 1500*time.Millisecond, config.Browser.StabilizeWait.Std())
}

func TestDurationUnmarshalRejectsGarbage(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("2m30s")))
	assert.Equal(t, 2*time.Minute+30*time.Second, d.Std())

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestLoadFromFilesLaterOverridesEarlier(t *testing.T) {
	base := writeConfigFile(t, "base.toml", `
[site]
page_size = 25
`)
	override := writeConfigFile(t, "override.toml", `
[site]
page_size = 75
`)

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)
	assert.Equal(t, 75, config.Site.PageSize)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CALWATCH_SITE_PAGE_SIZE", "42")
	t.Setenv("CALWATCH_INGESTION_REQUEST_DELAY", "2s")
	t.Setenv("CALWATCH_STORAGE_TYPE", "d1")
	t.Setenv("CALWATCH_D1_ACCOUNT_ID", "acct-123")
	t.Setenv("CALWATCH_D1_DATABASE_ID", "db-456")
	t.Setenv("CLOUDFLARE_API_TOKEN", "token-from-cf")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 42, config.Site.PageSize)
	assert.Equal(t, 2*time.Second, config.Ingestion.RequestDelay.Std())
	assert.Equal(t, "d1", config.Storage.Type)
	assert.Equal(t, "acct-123", config.Storage.D1.AccountID)
	assert.Equal(t, "token-from-cf", config.Storage.D1.APIToken)
}

func TestSchedulerEnvOverride(t *testing.T) {
	t.Setenv("CALWATCH_SCHEDULE", "0 */2 * * *")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.True(t, config.Scheduler.Enabled)
	assert.Equal(t, "0 */2 * * *", config.Scheduler.Schedule)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad root url", func(c *Config) { c.Site.RootURL = "not-a-url" }},
		{"zero page size", func(c *Config) { c.Site.PageSize = 0 }},
		{"unknown storage type", func(c *Config) { c.Storage.Type = "postgres" }},
		{"d1 without identifiers", func(c *Config) { c.Storage.Type = "d1" }},
		{"zero max windows", func(c *Config) { c.Ingestion.MaxWindows = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, "https://example.test/results.aspx", 10, "d1")

	assert.Equal(t, "https://example.test/results.aspx", config.Site.RootURL)
	assert.Equal(t, 10, config.Site.PageSize)
	assert.Equal(t, "d1", config.Storage.Type)

	// Zero values leave the config untouched.
	ApplyFlagOverrides(config, "", 0, "")
	assert.Equal(t, 10, config.Site.PageSize)
}
