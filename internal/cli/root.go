package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/SiliconLion/sumi/internal/build"
	"github.com/SiliconLion/sumi/internal/config"
	"github.com/SiliconLion/sumi/internal/crawler"
	"github.com/SiliconLion/sumi/internal/output"
	"github.com/SiliconLion/sumi/internal/storage"
)

// logEnvVar optionally overrides the log level (trace, debug, info,
// warn, error).
const logEnvVar = "SUMI_LOG"

var (
	verbose       int
	quiet         bool
	fresh         bool
	resume        bool
	dryRun        bool
	stats         bool
	exportSummary bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sumi CONFIG",
	Short: "A polite web terrain mapper.",
	Long: `sumi crawls websites while respecting robots.txt, rate limits,
and domain classifications. Starting from configured quality seed
domains it maps link relationships between sites, persists the evolving
page graph into SQLite so interrupted runs can resume, and generates a
human-readable summary.`,
	Version:       build.FullVersion(),
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogging(verbose, quiet)

		configPath := args[0]
		logger.Info().Str("path", configPath).Msg("loading configuration")

		cfg, configHash, err := config.LoadWithHash(configPath)
		if err != nil {
			logger.Error().Err(err).Msg("failed to load configuration")
			return err
		}
		logger.Info().Str("hash", configHash).Msg("configuration loaded")

		switch {
		case dryRun:
			return runDryRun(cfg)
		case stats:
			return runStats(cfg)
		case exportSummary:
			return runExportSummary(cfg)
		default:
			return runCrawl(cmd.Context(), cfg, configHash, fresh, logger)
		}
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().CountVarP(&verbose, "verbose", "v", "increase logging verbosity (-v, -vv, -vvv)")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.Flags().BoolVar(&fresh, "fresh", false, "start a fresh crawl, ignoring previous state")
	rootCmd.Flags().BoolVar(&resume, "resume", false, "resume an interrupted crawl (default behavior)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate config and show what would be crawled")
	rootCmd.Flags().BoolVar(&stats, "stats", false, "show statistics from the database and exit")
	rootCmd.Flags().BoolVar(&exportSummary, "export-summary", false, "generate markdown summary from existing data and exit")

	rootCmd.MarkFlagsMutuallyExclusive("fresh", "resume")
	rootCmd.MarkFlagsMutuallyExclusive("dry-run", "stats", "export-summary")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

// setupLogging builds the process logger from the verbosity flags and
// the optional log-filter environment variable.
func setupLogging(verbose int, quiet bool) zerolog.Logger {
	level := zerolog.InfoLevel
	switch {
	case quiet:
		level = zerolog.ErrorLevel
	case verbose == 1:
		level = zerolog.DebugLevel
	case verbose >= 2:
		level = zerolog.TraceLevel
	}

	if env := os.Getenv(logEnvVar); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func runCrawl(ctx context.Context, cfg *config.Config, configHash string, fresh bool, logger zerolog.Logger) error {
	coordinator, err := crawler.New(cfg, configHash, fresh, logger)
	if err != nil {
		return err
	}
	if err := coordinator.Run(ctx); err != nil {
		coordinator.Close()
		return err
	}
	if err := coordinator.Close(); err != nil {
		return err
	}

	// Print the closing state-count summary.
	store, err := storage.Open(cfg.Output.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	crawlStats, err := output.LoadStatistics(store)
	if err != nil {
		return err
	}
	crawlStats.Print(os.Stdout)
	return nil
}

func runDryRun(cfg *config.Config) error {
	fmt.Printf("=== Sumi Dry Run ===\n\n")

	fmt.Println("Crawler Configuration:")
	fmt.Printf("  Max depth: %d\n", cfg.Crawler.MaxDepth)
	fmt.Printf("  Max concurrent pages: %d\n", cfg.Crawler.MaxConcurrentPagesOpen)
	fmt.Printf("  Minimum time on page: %dms\n", cfg.Crawler.MinimumTimeOnPage)
	fmt.Printf("  Max domain requests: %d\n", cfg.Crawler.MaxDomainRequests)

	fmt.Println("\nUser Agent:")
	fmt.Printf("  Name: %s\n", cfg.UserAgent.CrawlerName)
	fmt.Printf("  Version: %s\n", cfg.UserAgent.CrawlerVersion)
	fmt.Printf("  Contact URL: %s\n", cfg.UserAgent.ContactURL)
	fmt.Printf("  Contact Email: %s\n", cfg.UserAgent.ContactEmail)

	fmt.Println("\nOutput:")
	fmt.Printf("  Database: %s\n", cfg.Output.DatabasePath)
	fmt.Printf("  Summary: %s\n", cfg.Output.SummaryPath)

	fmt.Printf("\nQuality Domains (%d):\n", len(cfg.Quality))
	totalSeeds := 0
	for _, entry := range cfg.Quality {
		fmt.Printf("  - %s (%d seeds)\n", entry.Domain, len(entry.Seeds))
		for _, seed := range entry.Seeds {
			fmt.Printf("    * %s\n", seed)
		}
		totalSeeds += len(entry.Seeds)
	}

	fmt.Printf("\nBlacklisted Domains (%d):\n", len(cfg.Blacklist))
	for _, entry := range cfg.Blacklist {
		fmt.Printf("  - %s\n", entry.Domain)
	}

	fmt.Printf("\nStubbed Domains (%d):\n", len(cfg.Stub))
	for _, entry := range cfg.Stub {
		fmt.Printf("  - %s\n", entry.Domain)
	}

	fmt.Println("\nConfiguration is valid")
	fmt.Printf("Would start crawling with %d seed URLs\n", totalSeeds)
	return nil
}

func runStats(cfg *config.Config) error {
	fmt.Printf("Database: %s\n\n", cfg.Output.DatabasePath)

	store, err := storage.Open(cfg.Output.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	crawlStats, err := output.LoadStatistics(store)
	if err != nil {
		return err
	}
	crawlStats.Print(os.Stdout)
	return nil
}

func runExportSummary(cfg *config.Config) error {
	fmt.Printf("=== Exporting Crawl Summary ===\n\n")
	fmt.Printf("Database: %s\n", cfg.Output.DatabasePath)
	fmt.Printf("Output: %s\n\n", cfg.Output.SummaryPath)

	store, err := storage.Open(cfg.Output.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := output.GenerateSummary(store, cfg)
	if err != nil {
		return err
	}
	if err := output.WriteMarkdown(summary, cfg.Output.SummaryPath); err != nil {
		return err
	}

	fmt.Printf("Summary exported to: %s\n", cfg.Output.SummaryPath)
	return nil
}
