// Package engine defines the per-site capability contracts and the registry
// that maps a site identifier to its constructors. Implementations encapsulate
// exactly one site's page shape; callers stay site-agnostic.
package engine

import (
	"context"
	"fmt"

	"lokum/internal/adapters/fetch"
	"lokum/internal/domain"
)

// SearchParams drive one discovery run.
type SearchParams struct {
	Query    string
	Location string
	MaxPages int
}

// Discovery turns a search into lightweight references, paginating internally
// up to MaxPages.
type Discovery interface {
	Search(ctx context.Context, params SearchParams) ([]domain.Reference, error)
}

// DetailScraper turns a canonical URL into structured facts.
type DetailScraper interface {
	Scrape(ctx context.Context, url string) (domain.ScrapeFacts, error)
}

// Enricher augments structured facts with model-derived facts. Failure is
// recoverable; callers proceed with structured facts only.
type Enricher interface {
	Enrich(ctx context.Context, facts domain.ScrapeFacts) (domain.EnrichedFacts, error)
}

// Factory builds both capabilities for one site around a shared transport.
// The transport is handed in, never owned.
type Factory struct {
	NewDiscovery     func(c *fetch.Client) Discovery
	NewDetailScraper func(c *fetch.Client) DetailScraper
}

var registry = map[domain.Site]Factory{}

// Register installs a site factory. Called from site package init.
func Register(site domain.Site, f Factory) { registry[site] = f }

func NewDiscovery(site domain.Site, c *fetch.Client) (Discovery, error) {
	f, ok := registry[site]
	if !ok {
		return nil, fmt.Errorf("no discovery engine registered for site %q", site)
	}
	return f.NewDiscovery(c), nil
}

func NewDetailScraper(site domain.Site, c *fetch.Client) (DetailScraper, error) {
	f, ok := registry[site]
	if !ok {
		return nil, fmt.Errorf("no detail scraper registered for site %q", site)
	}
	return f.NewDetailScraper(c), nil
}
