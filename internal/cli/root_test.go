package cmd

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SiliconLion/sumi/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Crawler: config.Crawler{
			MaxDepth:               3,
			MaxConcurrentPagesOpen: 10,
			MinimumTimeOnPage:      1000,
			MaxDomainRequests:      500,
		},
		UserAgent: config.UserAgent{
			CrawlerName:    "TestBot",
			CrawlerVersion: "1.0",
			ContactURL:     "https://bot.test/about",
			ContactEmail:   "bot@bot.test",
		},
		Output: config.Output{
			DatabasePath: ":memory:",
			SummaryPath:  "summary.md",
		},
		Quality: []config.QualityEntry{
			{Domain: "example.test", Seeds: []string{"https://example.test/"}},
		},
	}
}

func TestSetupLoggingLevels(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, setupLogging(0, false).GetLevel())
	assert.Equal(t, zerolog.DebugLevel, setupLogging(1, false).GetLevel())
	assert.Equal(t, zerolog.TraceLevel, setupLogging(2, false).GetLevel())
	assert.Equal(t, zerolog.TraceLevel, setupLogging(5, false).GetLevel())
	assert.Equal(t, zerolog.ErrorLevel, setupLogging(0, true).GetLevel())
}

func TestSetupLoggingEnvOverride(t *testing.T) {
	t.Setenv(logEnvVar, "warn")
	assert.Equal(t, zerolog.WarnLevel, setupLogging(0, false).GetLevel())
}

func TestRunDryRun(t *testing.T) {
	require.NoError(t, runDryRun(testConfig()))
}

func TestRunStatsAgainstEmptyDatabase(t *testing.T) {
	require.NoError(t, runStats(testConfig()))
}

func TestMutuallyExclusiveFlags(t *testing.T) {
	rootCmd.SetArgs([]string{"config.toml", "--fresh", "--resume"})
	err := rootCmd.Execute()
	assert.Error(t, err)

	// Reset for other tests.
	fresh = false
	resume = false
	rootCmd.SetArgs(nil)
}
