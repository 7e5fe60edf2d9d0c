package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"lokum/internal/adapters/observability"
	"lokum/internal/domain"
	"lokum/internal/engine"
)

// outcome labels for summaries and metrics.
const (
	outcomeConsolidated      = "consolidated"
	outcomeEnrichmentSkipped = "enrichment_skipped"
	outcomeFailed            = "failed"
	outcomeGone              = "gone"
)

// DetailSummary reports one detail cycle.
type DetailSummary struct {
	Eligible          int
	Consolidated      int
	EnrichmentSkipped int // consolidated, but with structured facts only
	Failed            int
	Gone              int
	Errors            []ItemError
}

type ItemError struct {
	SourceRecordID string
	Class          string
	Message        string
}

// Pipeline drives eligible source records through scrape → enrich →
// consolidate with per-item failure isolation and a bounded worker pool.
type Pipeline struct {
	repo     domain.ListingRepository
	scraper  func(domain.Site) (engine.DetailScraper, error)
	enricher engine.Enricher
	cache    domain.Cache
	window   time.Duration
	workers  int
	now      func() time.Time
}

// NewPipeline wires the orchestrator. enricher may be nil, in which case
// every item degrades to structured facts. cache may be nil.
func NewPipeline(repo domain.ListingRepository, scraper func(domain.Site) (engine.DetailScraper, error), enricher engine.Enricher, cache domain.Cache, window time.Duration, workers int) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{
		repo:     repo,
		scraper:  scraper,
		enricher: enricher,
		cache:    cache,
		window:   window,
		workers:  workers,
		now:      time.Now,
	}
}

type itemResult struct {
	outcome string
	err     *ItemError
}

// RunDetailCycle claims the eligible set once, then processes each record
// independently. One item's failure never aborts the batch; a storage
// failure fetching the eligible set is fatal to the cycle. Not safe to
// invoke concurrently with itself.
func (p *Pipeline) RunDetailCycle(ctx context.Context) (DetailSummary, error) {
	now := p.now().UTC()
	cutoff := now.Add(-p.window)

	// Short transaction: the eligible set crosses into slow work as DTOs.
	work, err := p.repo.EligibleSources(ctx, cutoff)
	if err != nil {
		return DetailSummary{}, err
	}
	summary := DetailSummary{Eligible: len(work)}
	if len(work) == 0 {
		return summary, nil
	}
	log.Info().Int("eligible", len(work)).Msg("detail cycle starting")

	sem := semaphore.NewWeighted(int64(p.workers))
	results := make(chan itemResult, len(work))
	var wg sync.WaitGroup

	for _, w := range work {
		// Stop dispatching on shutdown; unstarted records stay eligible.
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(w domain.SourceWork) {
			defer wg.Done()
			defer sem.Release(1)
			results <- p.processItem(ctx, w)
		}(w)
	}

	wg.Wait()
	close(results)

	for r := range results {
		switch r.outcome {
		case outcomeConsolidated:
			summary.Consolidated++
		case outcomeEnrichmentSkipped:
			summary.Consolidated++
			summary.EnrichmentSkipped++
		case outcomeFailed:
			summary.Failed++
		case outcomeGone:
			summary.Gone++
		}
		if r.err != nil {
			summary.Errors = append(summary.Errors, *r.err)
		}
	}
	log.Info().
		Int("consolidated", summary.Consolidated).
		Int("enrichment_skipped", summary.EnrichmentSkipped).
		Int("failed", summary.Failed).
		Int("gone", summary.Gone).
		Msg("detail cycle finished")
	return summary, nil
}

func (p *Pipeline) processItem(ctx context.Context, w domain.SourceWork) itemResult {
	site := string(w.Site)

	fail := func(state domain.SourceState, err error) itemResult {
		class := domain.ErrClass(err)
		at := p.now().UTC()
		if rerr := p.repo.RecordSourceError(ctx, w.SourceRecordID, state, class, err.Error(), at); rerr != nil {
			log.Error().Str("source", w.SourceRecordID).Err(rerr).Msg("recording item error failed")
		}
		outcome := outcomeFailed
		if state == domain.StateGone {
			outcome = outcomeGone
		}
		observability.ObservePipelineItem(site, outcome)
		return itemResult{outcome: outcome, err: &ItemError{SourceRecordID: w.SourceRecordID, Class: class, Message: err.Error()}}
	}

	scraper, err := p.scraper(w.Site)
	if err != nil {
		return fail(domain.StateFailed, err)
	}

	if err := p.repo.SetSourceState(ctx, w.SourceRecordID, domain.StateScraping); err != nil {
		return fail(domain.StateFailed, err)
	}

	facts, err := scraper.Scrape(ctx, w.URL)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			log.Info().Str("url", w.URL).Msg("listing gone at source")
			return fail(domain.StateGone, err)
		}
		log.Warn().Str("url", w.URL).Err(err).Msg("detail scrape failed")
		return fail(domain.StateFailed, err)
	}

	// Structured facts land before enrichment is attempted, so a later
	// enrichment failure still leaves usable data.
	detail := rawDetailFromFacts(w.SourceRecordID, facts, p.now().UTC())
	if err := p.repo.ReplaceRawDetail(ctx, detail); err != nil {
		return fail(domain.StateFailed, err)
	}
	if err := p.repo.SetSourceState(ctx, w.SourceRecordID, domain.StateScraped); err != nil {
		return fail(domain.StateFailed, err)
	}

	enriched := false
	if p.enricher != nil && facts.Description != "" {
		_ = p.repo.SetSourceState(ctx, w.SourceRecordID, domain.StateEnriching)
		ef, eerr := p.enricher.Enrich(ctx, facts)
		if eerr != nil {
			// Degrades gracefully: record the error, keep structured facts.
			log.Warn().Str("url", w.URL).Err(eerr).Msg("enrichment failed, continuing without it")
			at := p.now().UTC()
			_ = p.repo.RecordSourceError(ctx, w.SourceRecordID, domain.StateEnrichmentSkipped, domain.ErrClass(eerr), eerr.Error(), at)
		} else if aerr := p.repo.AttachEnrichment(ctx, w.SourceRecordID, ef, p.now().UTC()); aerr != nil {
			return fail(domain.StateFailed, aerr)
		} else {
			_ = p.repo.SetSourceState(ctx, w.SourceRecordID, domain.StateEnriched)
			enriched = true
		}
	} else {
		_ = p.repo.SetSourceState(ctx, w.SourceRecordID, domain.StateEnrichmentSkipped)
	}

	if err := p.consolidate(ctx, w.ListingID); err != nil {
		return fail(domain.StateFailed, err)
	}
	if err := p.repo.SetSourceState(ctx, w.SourceRecordID, domain.StateConsolidated); err != nil {
		return fail(domain.StateFailed, err)
	}

	outcome := outcomeConsolidated
	if !enriched {
		outcome = outcomeEnrichmentSkipped
	}
	observability.ObservePipelineItem(site, outcome)
	return itemResult{outcome: outcome}
}

// consolidate recomputes the canonical listing in its own short transaction
// and drops the cached view.
func (p *Pipeline) consolidate(ctx context.Context, listingID string) error {
	listing, details, err := p.repo.ListingWithDetails(ctx, listingID)
	if err != nil {
		return err
	}
	updated := Consolidate(listing, details, p.now())
	if err := p.repo.UpdateListing(ctx, updated); err != nil {
		return err
	}
	if p.cache != nil {
		_ = p.cache.Del(ctx, listingCacheKey(listingID))
	}
	return nil
}

func rawDetailFromFacts(sourceRecordID string, f domain.ScrapeFacts, at time.Time) domain.RawDetail {
	return domain.RawDetail{
		ID:                uuid.NewString(),
		SourceRecordID:    sourceRecordID,
		Price:             f.Price,
		PriceCurrency:     f.PriceCurrency,
		AdminRent:         f.AdminRent,
		AdminRentCurrency: f.AdminRentCurrency,
		Area:              f.Area,
		Rooms:             f.Rooms,
		Floor:             f.Floor,
		Furnished:         f.Furnished,
		PetsAllowed:       f.PetsAllowed,
		Elevator:          f.Elevator,
		Parking:           f.Parking,
		BuildingType:      f.BuildingType,
		Address:           f.Address,
		Description:       f.Description,
		Photos:            f.Photos,
		ExternalID:        f.ExternalID,
		ScrapedAt:         at,
	}
}
