package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"lokum/internal/adapters/observability"
	"lokum/internal/domain"
	"lokum/internal/engine"
)

// DiscoverySummary reports one discovery cycle.
type DiscoverySummary struct {
	Queries    int
	References int
	New        int
	Known      int
	Failed     int
}

// DiscoveryService runs the stored search queries that are due and resolves
// what they find into source records.
type DiscoveryService struct {
	repo      domain.ListingRepository
	resolver  *Resolver
	discovery func(domain.Site) (engine.Discovery, error)
	now       func() time.Time
}

func NewDiscoveryService(repo domain.ListingRepository, resolver *Resolver, discovery func(domain.Site) (engine.Discovery, error)) *DiscoveryService {
	return &DiscoveryService{repo: repo, resolver: resolver, discovery: discovery, now: time.Now}
}

// RunDiscoveryCycle executes every due query. A query's failure is recorded
// on the query itself and never aborts the cycle; only storage failures are
// fatal.
func (s *DiscoveryService) RunDiscoveryCycle(ctx context.Context) (DiscoverySummary, error) {
	queries, err := s.repo.DueQueries(ctx, s.now().UTC())
	if err != nil {
		return DiscoverySummary{}, err
	}
	summary := DiscoverySummary{Queries: len(queries)}
	if len(queries) == 0 {
		return summary, nil
	}
	log.Info().Int("due", len(queries)).Msg("discovery cycle starting")

	for _, q := range queries {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if err := s.runQuery(ctx, q, &summary); err != nil {
			return summary, err
		}
	}
	log.Info().
		Int("references", summary.References).
		Int("new", summary.New).
		Int("known", summary.Known).
		Int("failed_queries", summary.Failed).
		Msg("discovery cycle finished")
	return summary, nil
}

func (s *DiscoveryService) runQuery(ctx context.Context, q domain.SearchQuery, summary *DiscoverySummary) error {
	eng, err := s.discovery(q.Site)
	if err != nil {
		summary.Failed++
		return s.repo.RecordQueryRun(ctx, q.ID, s.now().UTC(), err.Error())
	}

	refs, err := eng.Search(ctx, engine.SearchParams{
		Query:    q.Query,
		Location: q.Location,
		MaxPages: q.MaxPages,
	})
	if err != nil {
		log.Warn().Str("query", q.Name).Err(err).Msg("search failed")
		summary.Failed++
		return s.repo.RecordQueryRun(ctx, q.ID, s.now().UTC(), err.Error())
	}
	summary.References += len(refs)

	resolutions, err := s.resolver.Resolve(ctx, refs)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(resolutions))
	for _, res := range resolutions {
		ids = append(ids, res.SourceRecordID)
		observability.ObserveDiscovery(string(q.Site), res.IsNew)
		if res.IsNew {
			summary.New++
		} else {
			summary.Known++
		}
	}
	if err := s.repo.AddQueryMatches(ctx, q.ID, ids, s.now().UTC()); err != nil {
		return err
	}
	return s.repo.RecordQueryRun(ctx, q.ID, s.now().UTC(), "")
}
