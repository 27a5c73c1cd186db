package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-wools/config"
	"github.com/aluiziolira/go-scrape-wools/models"
	"github.com/aluiziolira/go-scrape-wools/pipeline"
	"github.com/aluiziolira/go-scrape-wools/registry"
	"github.com/aluiziolira/go-scrape-wools/scraper"
)

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(value string) error {
	*l = append(*l, value)
	return nil
}

func main() {
	var websites, products listFlag
	configPath := flag.String("config", "", "YAML configuration file")
	flag.Var(&websites, "website", "Website URL to search (repeatable)")
	flag.Var(&products, "product", `Product as "Brand:Model" (repeatable)`)
	outputFile := flag.String("output", "", "Output file path")
	outputFormat := flag.String("format", "", "Output format: json, csv, or dual")
	searchURL := flag.String("search-url", "", "Wollplatz search endpoint")
	timeout := flag.Duration("timeout", 0, "Per request timeout")
	cacheSize := flag.Int("cache-size", 0, "Responses kept in the in-run cache (0 disables it)")
	respectRobots := flag.Bool("respect-robots", false, "Respect robots.txt directives")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := config.DefaultConfig()
	if *configPath == "" {
		if value, ok := config.EnvString("WOOLSCRAPER_CONFIG"); ok {
			*configPath = value
		}
	}
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}
	if err := applyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	if len(websites) > 0 {
		cfg.Websites = websites
	}
	if len(products) > 0 {
		parsed, err := parseProducts(products)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -product: %v\n", err)
			os.Exit(1)
		}
		cfg.Products = parsed
	}
	if set["output"] {
		cfg.OutputFile = *outputFile
	}
	if set["format"] {
		cfg.OutputFormat = strings.ToLower(*outputFormat)
	}
	if set["search-url"] {
		cfg.SearchURL = *searchURL
	}
	if set["timeout"] {
		cfg.Timeout = *timeout
	}
	if set["cache-size"] {
		cfg.CacheSize = *cacheSize
	}
	if set["respect-robots"] {
		cfg.RespectRobotsTxt = *respectRobots
	}
	if set["metrics-addr"] {
		cfg.MetricsAddr = *metricsAddr
	}
	if set["v"] {
		cfg.Verbose = *verbose
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	queries, err := models.NewQueries(cfg.Products)
	if err != nil {
		slog.Error("invalid product list", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting scrape",
		slog.Any("websites", cfg.Websites),
		slog.Int("products", len(queries)),
		slog.String("format", cfg.OutputFormat),
	)

	client, err := scraper.NewClient(cfg)
	if err != nil {
		slog.Error("initialising client", slog.Any("error", err))
		os.Exit(1)
	}
	reg := registry.Default(registry.Options{WollplatzSearchURL: cfg.SearchURL})
	orchestrator := pipeline.NewOrchestrator(reg, client, client.Metrics)
	orchestrator.Logger = logger

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && client.Metrics != nil {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(client.Metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	result, runErr := orchestrator.Execute(ctx, queries, cfg.Websites, writer)
	if err := writer.Close(); err != nil {
		slog.Error("close writer", slog.Any("error", err))
	}
	shutdownMetrics(metricsServer)

	if runErr != nil {
		slog.Error("scraping failed", slog.Any("error", runErr))
		os.Exit(1)
	}
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	printSummary(result, cfg.OutputFile)
}

// applyEnv overlays the WOOLSCRAPER_* variables onto cfg.
func applyEnv(cfg *config.Config) error {
	if value, ok := config.EnvList("WOOLSCRAPER_WEBSITES"); ok {
		cfg.Websites = value
	}
	if value, ok := config.EnvString("WOOLSCRAPER_OUTPUT"); ok {
		cfg.OutputFile = value
	}
	if value, ok := config.EnvString("WOOLSCRAPER_FORMAT"); ok {
		cfg.OutputFormat = strings.ToLower(value)
	}
	if value, ok := config.EnvString("WOOLSCRAPER_SEARCH_URL"); ok {
		cfg.SearchURL = value
	}
	if value, ok := config.EnvString("WOOLSCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	if value, ok := config.EnvString("WOOLSCRAPER_TIMEOUT"); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("WOOLSCRAPER_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	value, ok, err := config.EnvInt("WOOLSCRAPER_CACHE_SIZE")
	if err != nil {
		return err
	}
	if ok {
		cfg.CacheSize = value
	}
	return nil
}

func parseProducts(values []string) ([][]string, error) {
	out := make([][]string, 0, len(values))
	for _, v := range values {
		brand, model, ok := strings.Cut(v, ":")
		if !ok {
			return nil, fmt.Errorf("%q is not Brand:Model", v)
		}
		out = append(out, []string{strings.TrimSpace(brand), strings.TrimSpace(model)})
	}
	return out, nil
}

func createWriter(format, filename string) (pipeline.ReportWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		base := strings.TrimSuffix(strings.TrimSuffix(filename, ".json"), ".csv")
		return pipeline.NewDualWriter(base+".csv", base+".json")
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func shutdownMetrics(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(result *models.RunResult, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Platforms:     %s\n", strings.Join(result.Platforms, ", "))
	fmt.Printf("  Invocations:   %d\n", result.Invocations)
	fmt.Printf("  Found:         %d\n", result.FoundCount)
	fmt.Printf("  Not found:     %d\n", result.MissingCount)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	if len(result.ErrorsByType) > 0 {
		types := make([]string, 0, len(result.ErrorsByType))
		for k := range result.ErrorsByType {
			types = append(types, k)
		}
		sort.Strings(types)
		parts := make([]string, 0, len(types))
		for _, k := range types {
			parts = append(parts, fmt.Sprintf("%s=%d", k, result.ErrorsByType[k]))
		}
		fmt.Printf("  Error types:   %s\n", strings.Join(parts, " "))
	}
	for _, pair := range result.FailedPairs {
		fmt.Printf("  Failed:        %s\n", pair)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
