package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sriharshay/web-resource-processor/internal/output"
	"github.com/sriharshay/web-resource-processor/internal/scope"
	"github.com/sriharshay/web-resource-processor/internal/state"
	"github.com/sriharshay/web-resource-processor/pkg/crawler"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Crawl flags
	resources       []string
	responseHeaders []string
	tags            []string
	fileName        string
	enableExternal  string
	workers         int
	timeoutSeconds  int
	rate            float64
	burst           int
	retries         int
	maxHostFailures int
	format          string
	outputDir       string
	archivePath     string
	noProgress      bool

	// History flags
	historyArchive string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "webres",
		Short: "webres - Web Resource Header Collector",
		Long: `webres fetches seed pages, follows every reference they make one level
deep, and reports each referenced resource's type and selected response
headers as CSV or JSON.`,
		Version: version,
	}

	crawlCmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl seed URLs and report their referenced resources",
		Long: `Crawl fetches each seed URL, extracts the references made by its markup,
fetches every referenced resource once, and writes one record per
reference with the captured response headers.`,
		Args: cobra.NoArgs,
		RunE: runCrawl,
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List archived crawl runs",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("webres %s\n", version)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	// Crawl flags
	crawlCmd.Flags().StringArrayVarP(&resources, "resource", "r", nil, "Seed URL to crawl (repeatable)")
	crawlCmd.Flags().StringSliceVar(&responseHeaders, "response-headers", []string{"Cache-Control", "Pragma"}, "Response headers to capture")
	crawlCmd.Flags().StringSliceVarP(&tags, "tags", "t", []string{"a", "link", "script", "source", "img"}, "Tags scanned for references")
	crawlCmd.Flags().StringVar(&fileName, "file-name", "headers.csv", "Output file base name (timestamp appended)")
	crawlCmd.Flags().StringVarP(&enableExternal, "enable-external", "e", "n", "Follow references to other origins (y/n)")
	crawlCmd.Flags().IntVarP(&workers, "workers", "w", 8, "Number of concurrent fetch workers")
	crawlCmd.Flags().IntVar(&timeoutSeconds, "timeout", 15, "Request timeout in seconds")
	crawlCmd.Flags().Float64Var(&rate, "rate", 0, "Per-domain requests per second (0 = unlimited)")
	crawlCmd.Flags().IntVar(&burst, "burst", 1, "Rate limit burst size")
	crawlCmd.Flags().IntVar(&retries, "retries", 0, "Retries for transport failures")
	crawlCmd.Flags().IntVar(&maxHostFailures, "max-host-failures", 0, "Consecutive failures before a host is suspended (0 = off)")
	crawlCmd.Flags().StringVar(&format, "format", "csv", "Output format (csv or json)")
	crawlCmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for the output file")
	crawlCmd.Flags().StringVar(&archivePath, "archive", "", "Archive database for run summaries")
	crawlCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress display")
	crawlCmd.MarkFlagRequired("resource")

	// History flags
	historyCmd.Flags().StringVar(&historyArchive, "archive", "", "Archive database to read")
	historyCmd.MarkFlagRequired("archive")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCrawl(cmd *cobra.Command, args []string) error {
	config := crawler.DefaultConfig()
	if configFile != "" {
		loaded, err := crawler.LoadFromFile(configFile)
		if err != nil {
			return fmt.Errorf("loading config file: %w", err)
		}
		config = loaded
	}

	// Command-line flags override the config file.
	if cmd.Flags().Changed("workers") {
		config.Workers = workers
	}
	if cmd.Flags().Changed("timeout") {
		config.Timeout = time.Duration(timeoutSeconds) * time.Second
	}
	if cmd.Flags().Changed("response-headers") {
		config.AllowedHeaders = responseHeaders
	}
	if cmd.Flags().Changed("tags") {
		config.Tags = tags
	}
	if cmd.Flags().Changed("rate") {
		config.RateLimit.RequestsPerSecond = rate
	}
	if cmd.Flags().Changed("burst") {
		config.RateLimit.Burst = burst
	}
	if cmd.Flags().Changed("retries") {
		config.Retries = retries
	}
	if cmd.Flags().Changed("max-host-failures") {
		config.MaxHostFailures = maxHostFailures
	}
	if cmd.Flags().Changed("format") {
		config.Output.Format = format
	}
	if cmd.Flags().Changed("file-name") {
		config.Output.FileName = fileName
	} else if config.Output.Format == output.FormatJSON && config.Output.FileName == "headers.csv" {
		config.Output.FileName = "headers.json"
	}
	if cmd.Flags().Changed("output-dir") {
		config.Output.Dir = outputDir
	}
	if cmd.Flags().Changed("archive") {
		config.Archive = archivePath
	}
	if cmd.Flags().Changed("enable-external") {
		config.AllowExternal = parseYesNo(enableExternal)
	}
	config.Verbose = verbose
	config.Debug = debug
	config.ShowProgress = !noProgress && !verbose && !debug

	// Setup failures are fatal before any fetch happens: a bad output
	// name or an empty validated seed list stops the run here.
	if _, err := output.DeriveFilename(config.Output.FileName, config.Output.Format, time.Now()); err != nil {
		return err
	}

	seeds := make([]string, 0, len(resources))
	for _, raw := range resources {
		candidate := strings.TrimSpace(raw)
		if !scope.IsValidURL(candidate) {
			fmt.Fprintf(os.Stderr, "Skipping invalid resource URL: %s\n", raw)
			continue
		}
		seeds = append(seeds, candidate)
	}
	if len(seeds) == 0 {
		return fmt.Errorf("no valid resource URLs were provided")
	}

	c, err := crawler.New(crawler.WithConfig(config))
	if err != nil {
		return err
	}

	if config.ShowProgress {
		fmt.Println()
		fmt.Printf("webres %s - crawling %d resource(s)\n", version, len(seeds))
		fmt.Println()
	} else {
		printBanner(seeds, config)
	}

	start := time.Now()
	result, err := c.Run(context.Background(), seeds)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	printSummary(result, c, time.Since(start))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(historyArchive); err != nil {
		return fmt.Errorf("archive %s: %w", historyArchive, err)
	}

	archive, err := state.NewBoltArchive(historyArchive)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer archive.Close()

	runs, err := archive.ListRuns()
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No archived runs.")
		return nil
	}

	for _, run := range runs {
		target := "-"
		if len(run.Seeds) > 0 {
			target = run.Seeds[0]
			if len(run.Seeds) > 1 {
				target = fmt.Sprintf("%s (+%d more)", target, len(run.Seeds)-1)
			}
		}
		fmt.Printf("%s  %-50s records=%-5d errors=%-4d %s\n",
			run.StartedAt.Format("2006-01-02 15:04:05"),
			target, run.Records, run.Failures, run.OutputFile)
	}
	return nil
}

// parseYesNo maps the external-link toggle's y/n vocabulary to a bool.
// Anything other than yes counts as no.
func parseYesNo(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func printBanner(seeds []string, config *crawler.Config) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          webres v1.0                         ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	for _, seed := range seeds {
		fmt.Printf("Resource:   %s\n", seed)
	}
	fmt.Printf("Workers:    %d\n", config.Workers)
	fmt.Printf("Headers:    %s\n", strings.Join(config.AllowedHeaders, ", "))
	fmt.Printf("Tags:       %s\n", strings.Join(config.Tags, ", "))
	fmt.Printf("External:   %t\n", config.AllowExternal)
	fmt.Println()
	fmt.Println("Starting crawl...")
	fmt.Println()
}

func printSummary(result *output.RunResult, c *crawler.Crawler, duration time.Duration) {
	stats := result.Stats

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                         Crawl Summary                        ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Duration:            %v\n", duration.Round(time.Millisecond))
	fmt.Printf("Seeds Processed:     %d\n", stats.SeedsProcessed)
	fmt.Printf("Records:             %d\n", stats.RecordCount)
	fmt.Printf("References Fetched:  %d\n", stats.ChildrenFetched)
	fmt.Printf("Unresolved Links:    %d\n", stats.BadLinks)
	fmt.Printf("Duplicates Reused:   %d\n", stats.DuplicatesSkipped)
	fmt.Printf("Externals Skipped:   %d\n", stats.ExternalsSkipped)
	fmt.Printf("Errors:              %d\n", stats.Errors)
	fmt.Println()

	if snap := c.MetricsSnapshot(); snap != nil && len(snap.StatusCodes) > 0 {
		codes := make([]int, 0, len(snap.StatusCodes))
		for code := range snap.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		fmt.Println("Status Codes:")
		for _, code := range codes {
			fmt.Printf("  [%d] %d\n", code, snap.StatusCodes[code])
		}
		fmt.Println()
	}

	if path := c.OutputFile(); path != "" {
		fmt.Printf("Results written to %s\n", path)
	}
}
