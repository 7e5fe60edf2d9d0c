package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"lokum/internal/domain"
)

// QueryService is the read side used by the HTTP API, with cache-aside
// reads for single listings.
type QueryService struct {
	repo   domain.ListingRepository
	cache  domain.Cache
	ttlSec int
}

// NewQueryService wires the read side. cache may be nil.
func NewQueryService(repo domain.ListingRepository, cache domain.Cache, ttlSec int) *QueryService {
	return &QueryService{repo: repo, cache: cache, ttlSec: ttlSec}
}

func listingCacheKey(id string) string { return "listing:" + id }

// GetListing returns the consolidated listing with its per-site source
// records. Cache errors are logged and treated as misses.
func (s *QueryService) GetListing(ctx context.Context, id string) (domain.ListingView, error) {
	key := listingCacheKey(id)
	if s.cache != nil {
		var view domain.ListingView
		if ok, err := s.cache.Get(ctx, key, &view); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("cache get failed")
		} else if ok {
			return view, nil
		}
	}

	view, err := s.repo.GetListing(ctx, id)
	if err != nil {
		return domain.ListingView{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, view, s.ttlSec); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("cache set failed")
		}
	}
	return view, nil
}

// ListListings returns a filtered page of consolidated listings. The result
// set changes on every pipeline cycle, so it is served straight from storage.
func (s *QueryService) ListListings(ctx context.Context, q domain.ListingsQuery) (domain.ListingsPage, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 50
	}
	return s.repo.ListListings(ctx, q)
}

func (s *QueryService) ListQueries(ctx context.Context) ([]domain.SearchQuery, error) {
	return s.repo.ListQueries(ctx)
}

// CreateQuery registers a stored search. Defaults: 1 page, active, run
// every 6 hours.
func (s *QueryService) CreateQuery(ctx context.Context, q domain.SearchQuery) (domain.SearchQuery, error) {
	q.ID = uuid.NewString()
	if q.Site == "" {
		q.Site = domain.SiteOLX
	}
	if q.MaxPages <= 0 {
		q.MaxPages = 1
	}
	if q.RunIntervalHours <= 0 {
		q.RunIntervalHours = 6
	}
	q.IsActive = true
	if err := s.repo.CreateQuery(ctx, q); err != nil {
		return domain.SearchQuery{}, err
	}
	return q, nil
}
