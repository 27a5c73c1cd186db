// Package pipeline runs product lookups across platforms and writes the report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-wools/models"
	"github.com/aluiziolira/go-scrape-wools/parser"
	"github.com/aluiziolira/go-scrape-wools/registry"
	"github.com/aluiziolira/go-scrape-wools/scraper"
)

// Orchestrator looks up every product on every resolved platform, one
// invocation at a time. A failing invocation only costs that platform's
// offer for that product.
type Orchestrator struct {
	registry registry.Registry
	fetcher  scraper.Fetcher

	Logger  *slog.Logger
	Metrics *scraper.Metrics
}

// NewOrchestrator builds an orchestrator whose scrapers fetch through f.
func NewOrchestrator(reg registry.Registry, f scraper.Fetcher, metrics *scraper.Metrics) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		fetcher:  f,
		Logger:   slog.Default(),
		Metrics:  metrics,
	}
}

// Execute runs the lookups and hands the finished document to sink once.
func (o *Orchestrator) Execute(ctx context.Context, products []models.ProductQuery, websiteURLs []string, sink ReportWriter) (*models.RunResult, error) {
	doc, result, err := o.Run(ctx, products, websiteURLs)
	if err != nil {
		return nil, err
	}
	if err := sink.Write(doc); err != nil {
		return result, fmt.Errorf("store report: %w", err)
	}
	return result, nil
}

// Run validates products, resolves websiteURLs to platforms and scrapes
// every (product, platform) pair. Only an invalid query or a cancelled
// context make it fail.
func (o *Orchestrator) Run(ctx context.Context, products []models.ProductQuery, websiteURLs []string) (*models.ReportDocument, *models.RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for i, q := range products {
		if err := q.Validate(); err != nil {
			var contractErr *models.ContractError
			if errors.As(err, &contractErr) {
				contractErr.Index = i
			}
			return nil, nil, err
		}
	}

	platforms := o.registry.Resolve(websiteURLs)
	result := &models.RunResult{
		StartTime:    time.Now(),
		Platforms:    make([]string, 0, len(platforms)),
		ErrorsByType: make(map[string]int),
	}
	for _, p := range platforms {
		result.Platforms = append(result.Platforms, p.Name)
	}
	if len(platforms) == 0 {
		o.logger().Warn("no registered platform among websites", slog.Any("websites", websiteURLs))
	}

	doc := &models.ReportDocument{Wools: make([]models.WoolReport, 0, len(products))}
	for _, q := range products {
		report := models.WoolReport{
			Brand:              q.Brand,
			Model:              q.Model,
			OfferedInPlatforms: make([]models.PlatformOffer, 0, len(platforms)),
		}

		for _, platform := range platforms {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			result.Invocations++

			res, err := o.invoke(ctx, platform, q)
			if err == nil && res.Found {
				if verr := parser.ValidateInfo(res.Info); verr != nil {
					err = &scraper.ExtractionError{Stage: "validate", Field: "info", Err: verr}
				}
			}
			if err != nil {
				o.recordFailure(result, q, platform, err)
				continue
			}
			if !res.Found {
				result.MissingCount++
				o.Metrics.IncScrape(platform.Name, "not_found")
				o.logger().Debug("product not found",
					slog.String("brand", q.Brand),
					slog.String("model", q.Model),
					slog.String("platform", platform.Name),
				)
				continue
			}

			result.FoundCount++
			o.Metrics.IncScrape(platform.Name, "found")
			report.OfferedInPlatforms = append(report.OfferedInPlatforms, models.PlatformOffer{
				Platform: platform.Name,
				Info:     res.Info,
			})
		}

		doc.Wools = append(doc.Wools, report)
	}

	result.EndTime = time.Now()
	return doc, result, nil
}

func (o *Orchestrator) invoke(ctx context.Context, platform registry.Descriptor, q models.ProductQuery) (res scraper.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", scraper.ErrScraperPanic, r)
		}
	}()

	s, err := o.registry.NewScraper(platform, o.fetcher)
	if err != nil {
		return scraper.Result{}, err
	}
	return s.ScrapeWoolInfo(ctx, q)
}

func (o *Orchestrator) recordFailure(result *models.RunResult, q models.ProductQuery, platform registry.Descriptor, err error) {
	category := scraper.ErrorTypeLabel(err)
	result.ErrorCount++
	result.ErrorsByType[category]++
	result.FailedPairs = append(result.FailedPairs, fmt.Sprintf("%s @ %s", q, platform.Name))

	o.Metrics.IncScrape(platform.Name, "error")
	o.Metrics.IncError(category)
	o.logger().Error("scrape failed",
		slog.String("brand", q.Brand),
		slog.String("model", q.Model),
		slog.String("platform", platform.Name),
		slog.String("category", category),
		slog.Any("error", err),
	)
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
