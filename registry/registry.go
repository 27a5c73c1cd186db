// Package registry maps website hosts to the platform scrapers that serve them.
package registry

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-scrape-wools/scraper"
	"github.com/aluiziolira/go-scrape-wools/scraper/wollplatz"
)

// SelectorWollplatz selects the wollplatz.de scraper.
const SelectorWollplatz = "wollplatz"

// Descriptor describes a supported platform.
type Descriptor struct {
	Name     string
	Selector string
}

// Factory builds a scraper that fetches through f.
type Factory func(f scraper.Fetcher) scraper.WoolScraper

// Options configure the default factories.
type Options struct {
	WollplatzSearchURL string
}

// Registry is a read-only host → Descriptor table plus the factories the
// descriptors select. The zero value is empty.
type Registry struct {
	byHost    map[string]Descriptor
	factories map[string]Factory
}

// DefaultFactories returns a factory for every selector with an implementation.
func DefaultFactories(opts Options) map[string]Factory {
	return map[string]Factory{
		SelectorWollplatz: func(f scraper.Fetcher) scraper.WoolScraper {
			return wollplatz.New(f, wollplatz.Options{SearchURL: opts.WollplatzSearchURL})
		},
	}
}

// New copies entries and factories into a Registry. Keys are normalized with
// NormalizeHost and every descriptor must select a known factory.
func New(entries map[string]Descriptor, factories map[string]Factory) (Registry, error) {
	byHost := make(map[string]Descriptor, len(entries))
	for key, desc := range entries {
		host, err := NormalizeHost(key)
		if err != nil {
			return Registry{}, fmt.Errorf("registry key %q: %w", key, err)
		}
		if strings.TrimSpace(desc.Name) == "" {
			return Registry{}, fmt.Errorf("registry key %q: platform name is empty", key)
		}
		if _, ok := factories[desc.Selector]; !ok {
			return Registry{}, fmt.Errorf("registry key %q: unknown scraper selector %q", key, desc.Selector)
		}
		if _, ok := byHost[host]; ok {
			return Registry{}, fmt.Errorf("duplicate registry host %q", host)
		}
		byHost[host] = desc
	}
	copied := make(map[string]Factory, len(factories))
	for selector, factory := range factories {
		copied[selector] = factory
	}
	return Registry{byHost: byHost, factories: copied}, nil
}

// Default returns the registry of every platform with a scraper.
func Default(opts Options) Registry {
	reg, err := New(map[string]Descriptor{
		"wollplatz.de": {Name: "Wollplatz", Selector: SelectorWollplatz},
	}, DefaultFactories(opts))
	if err != nil {
		panic(err)
	}
	return reg
}

// NormalizeHost reduces a website URL to its host: scheme, path, query,
// fragment and a leading "www." are dropped. A bare host is accepted.
func NormalizeHost(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("empty website url")
	}
	if !strings.Contains(rawURL, "://") && !strings.HasPrefix(rawURL, "//") {
		rawURL = "//" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse website url: %w", err)
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return "", fmt.Errorf("website url %q has no host", rawURL)
	}
	return strings.TrimPrefix(host, "www."), nil
}

// Lookup returns the descriptor registered for a normalized host.
func (r Registry) Lookup(host string) (Descriptor, bool) {
	desc, ok := r.byHost[host]
	return desc, ok
}

// Resolve maps website URLs to descriptors in input order. Unregistered
// hosts and repeated platforms are skipped; malformed URLs are logged.
func (r Registry) Resolve(websiteURLs []string) []Descriptor {
	seen := make(map[string]struct{}, len(websiteURLs))
	out := make([]Descriptor, 0, len(websiteURLs))
	for _, raw := range websiteURLs {
		host, err := NormalizeHost(raw)
		if err != nil {
			slog.Warn("skipping website", slog.String("url", raw), slog.Any("error", err))
			continue
		}
		desc, ok := r.Lookup(host)
		if !ok {
			slog.Debug("no platform registered for host", slog.String("host", host))
			continue
		}
		if _, dup := seen[desc.Name]; dup {
			continue
		}
		seen[desc.Name] = struct{}{}
		out = append(out, desc)
	}
	return out
}

// NewScraper builds the scraper selected by desc.
func (r Registry) NewScraper(desc Descriptor, f scraper.Fetcher) (scraper.WoolScraper, error) {
	factory, ok := r.factories[desc.Selector]
	if !ok {
		return nil, fmt.Errorf("platform %q: unknown scraper selector %q", desc.Name, desc.Selector)
	}
	return factory(f), nil
}
