package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner.
func PrintBanner(config *Config, logger arbor.ILogger) {
	version := GetVersion()
	build := GetBuild()

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("CRAWLINDEX")
	b.PrintCenteredText("Crawl & Index Daemon")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 15)
	b.PrintKeyValue("Build", build, 15)
	b.PrintKeyValue("Environment", config.Environment, 15)
	b.PrintKeyValue("Storage", config.Storage.Path, 15)
	b.PrintKeyValue("Tick", config.Scheduler.TickCron, 15)
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("version", version).
		Str("build", build).
		Str("environment", config.Environment).
		Str("storage_path", config.Storage.Path).
		Msg("crawlindex started")

	printCapabilities(config, logger)
	fmt.Printf("\n")
}

// printCapabilities displays the daemon's enabled capabilities.
func printCapabilities(config *Config, logger arbor.ILogger) {
	fmt.Printf("Capabilities:\n")
	fmt.Printf("   - sqlite index store with FTS5 full-text search\n")
	fmt.Printf("   - crawl coordinator (debounce %s)\n", config.Crawler.DebounceInterval)
	fmt.Printf("   - crawl scheduler (%s, %d targets/tick)\n", config.Scheduler.TickCron, config.Scheduler.TargetsPerTick)
	fmt.Printf("   - federated search (trust-scoped, hop limit per query)\n")

	logger.Info().
		Str("storage", "sqlite_fts5").
		Str("scheduler_tick", config.Scheduler.TickCron).
		Int("scheduler_targets_per_tick", config.Scheduler.TargetsPerTick).
		Dur("crawler_debounce", config.Crawler.DebounceInterval).
		Msg("daemon capabilities")
}

// PrintShutdownBanner displays the application shutdown banner.
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText("CRAWLINDEX")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("crawlindex shutting down")
}

// PrintColorizedMessage prints a message with the specified color to
// stdout. It does not log; logger is not used.
func PrintColorizedMessage(color, message string, logger arbor.ILogger) {
	fmt.Printf("%s%s%s\n", color, message, banner.ColorReset)
}

// PrintSuccess prints a success message in green and logs it.
func PrintSuccess(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorGreen, fmt.Sprintf("[ok] %s", message), logger)
	logger.Info().Str("type", "success").Msg(message)
}

// PrintError prints an error message in red and logs it.
func PrintError(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorRed, fmt.Sprintf("[error] %s", message), logger)
	logger.Error().Str("type", "error").Msg(message)
}

// PrintWarning prints a warning message in yellow and logs it.
func PrintWarning(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorYellow, fmt.Sprintf("[warn] %s", message), logger)
	logger.Warn().Str("type", "warning").Msg(message)
}

// PrintInfo prints an info message in cyan and logs it.
func PrintInfo(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorCyan, fmt.Sprintf("[info] %s", message), logger)
	logger.Info().Str("type", "info").Msg(message)
}
