package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"lokum/internal/domain"
	"lokum/internal/engine"
)

// fakeRepo is an in-memory ListingRepository shared by the app tests.
// All methods are safe for concurrent use because the pipeline fans out.
type fakeRepo struct {
	mu       sync.Mutex
	listings map[string]domain.Listing
	sources  map[string]*domain.SourceRecord
	byKey    map[string]string // site|canonical URL -> source record ID
	details  map[string]domain.RawDetail // keyed by source record ID
	queries  map[string]*domain.SearchQuery
	matches  map[string]map[string]bool
	history  map[string][]domain.SourceState

	window time.Duration

	resolveErr  error
	eligibleErr error
	updateErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		listings: map[string]domain.Listing{},
		sources:  map[string]*domain.SourceRecord{},
		byKey:    map[string]string{},
		details:  map[string]domain.RawDetail{},
		queries:  map[string]*domain.SearchQuery{},
		matches:  map[string]map[string]bool{},
		history:  map[string][]domain.SourceState{},
		window:   14 * 24 * time.Hour,
	}
}

func key(site domain.Site, url string) string { return string(site) + "|" + url }

func (f *fakeRepo) ResolveReference(_ context.Context, ref domain.Reference, parsed *domain.ParsedPrice, _ time.Time) (domain.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return domain.Resolution{}, f.resolveErr
	}
	if id, ok := f.byKey[key(ref.Site, ref.URL)]; ok {
		src := f.sources[id]
		src.Title = ref.Title
		src.RawPrice = parsed
		return domain.Resolution{SourceRecordID: id, ListingID: src.ListingID, IsNew: false}, nil
	}
	listing := domain.Listing{ID: uuid.NewString(), Title: ref.Title}
	if ref.Location != "" {
		loc := ref.Location
		listing.Location = &loc
	}
	src := &domain.SourceRecord{
		ID:        uuid.NewString(),
		ListingID: listing.ID,
		Site:      ref.Site,
		URL:       ref.URL,
		Title:     ref.Title,
		RawPrice:  parsed,
		State:     domain.StateDiscovered,
	}
	f.listings[listing.ID] = listing
	f.sources[src.ID] = src
	f.byKey[key(ref.Site, ref.URL)] = src.ID
	return domain.Resolution{SourceRecordID: src.ID, ListingID: listing.ID, IsNew: true}, nil
}

func (f *fakeRepo) EligibleSources(_ context.Context, cutoff time.Time) ([]domain.SourceWork, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.eligibleErr != nil {
		return nil, f.eligibleErr
	}
	now := cutoff.Add(f.window)
	var out []domain.SourceWork
	for _, src := range f.sources {
		if src.State == domain.StateGone {
			continue
		}
		if d, ok := f.details[src.ID]; ok && !domain.Stale(d.ScrapedAt, now, f.window) {
			continue
		}
		out = append(out, domain.SourceWork{
			SourceRecordID: src.ID,
			ListingID:      src.ListingID,
			Site:           src.Site,
			URL:            src.URL,
		})
	}
	return out, nil
}

func (f *fakeRepo) SetSourceState(_ context.Context, id string, state domain.SourceState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.sources[id]
	if !ok {
		return fmt.Errorf("no source %s", id)
	}
	src.State = state
	f.history[id] = append(f.history[id], state)
	return nil
}

func (f *fakeRepo) RecordSourceError(_ context.Context, id string, state domain.SourceState, class, msg string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.sources[id]
	if !ok {
		return fmt.Errorf("no source %s", id)
	}
	src.State = state
	m := class + ": " + msg
	src.LastError = &m
	src.LastErrorAt = &at
	f.history[id] = append(f.history[id], state)
	return nil
}

func (f *fakeRepo) ReplaceRawDetail(_ context.Context, d domain.RawDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details[d.SourceRecordID] = d
	return nil
}

func (f *fakeRepo) AttachEnrichment(_ context.Context, id string, e domain.EnrichedFacts, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.details[id]
	if !ok {
		return fmt.Errorf("no detail for %s", id)
	}
	s := e.Summary
	d.Summary = &s
	d.EnrichedAddress = e.Address
	d.EnrichedRent = e.Costs.Rent
	d.EnrichedAdminRent = e.Costs.AdminRent
	d.TotalMonthlyCost = e.Costs.TotalMonthly
	d.TotalMonthlyCurrency = e.Costs.TotalMonthlyCurrency
	d.EnrichedAt = &at
	f.details[id] = d
	return nil
}

func (f *fakeRepo) ListingWithDetails(_ context.Context, listingID string) (domain.Listing, []domain.RawDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[listingID]
	if !ok {
		return domain.Listing{}, nil, fmt.Errorf("no listing %s", listingID)
	}
	var ds []domain.RawDetail
	for _, src := range f.sources {
		if src.ListingID != listingID {
			continue
		}
		if d, ok := f.details[src.ID]; ok {
			ds = append(ds, d)
		}
	}
	return l, ds, nil
}

func (f *fakeRepo) UpdateListing(_ context.Context, l domain.Listing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.listings[l.ID] = l
	return nil
}

func (f *fakeRepo) DueQueries(_ context.Context, now time.Time) ([]domain.SearchQuery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SearchQuery
	for _, q := range f.queries {
		if !q.IsActive {
			continue
		}
		if q.LastRunAt != nil && now.Sub(*q.LastRunAt) < time.Duration(q.RunIntervalHours)*time.Hour {
			continue
		}
		out = append(out, *q)
	}
	return out, nil
}

func (f *fakeRepo) RecordQueryRun(_ context.Context, id string, at time.Time, runErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queries[id]
	if !ok {
		return fmt.Errorf("no query %s", id)
	}
	q.LastRunAt = &at
	if runErr == "" {
		q.LastError = nil
		q.LastErrorAt = nil
	} else {
		q.LastError = &runErr
		q.LastErrorAt = &at
	}
	return nil
}

func (f *fakeRepo) AddQueryMatches(_ context.Context, id string, sourceRecordIDs []string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.matches[id]
	if !ok {
		set = map[string]bool{}
		f.matches[id] = set
	}
	for _, sid := range sourceRecordIDs {
		set[sid] = true
	}
	return nil
}

func (f *fakeRepo) GetListing(_ context.Context, id string) (domain.ListingView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	if !ok {
		return domain.ListingView{}, domain.ErrNotFound
	}
	view := domain.ListingView{Listing: l}
	for _, src := range f.sources {
		if src.ListingID == id {
			view.Sources = append(view.Sources, *src)
		}
	}
	return view, nil
}

func (f *fakeRepo) ListListings(_ context.Context, q domain.ListingsQuery) (domain.ListingsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var page domain.ListingsPage
	for _, l := range f.listings {
		if q.MaxRent != nil && (l.Rent == nil || *l.Rent > *q.MaxRent) {
			continue
		}
		page.Items = append(page.Items, l)
		if len(page.Items) == q.Limit {
			break
		}
	}
	return page, nil
}

func (f *fakeRepo) ListQueries(_ context.Context) ([]domain.SearchQuery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SearchQuery
	for _, q := range f.queries {
		out = append(out, *q)
	}
	return out, nil
}

func (f *fakeRepo) CreateQuery(_ context.Context, q domain.SearchQuery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries[q.ID] = &q
	return nil
}

// stateSeen reports whether the source passed through the given state.
func (f *fakeRepo) stateSeen(id string, state domain.SourceState) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.history[id] {
		if s == state {
			return true
		}
	}
	return false
}

// fakeScraper serves canned facts or errors keyed by URL.
type fakeScraper struct {
	mu    sync.Mutex
	facts map[string]domain.ScrapeFacts
	errs  map[string]error
	calls int
}

func (s *fakeScraper) Scrape(_ context.Context, url string) (domain.ScrapeFacts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.errs[url]; ok {
		return domain.ScrapeFacts{}, err
	}
	if f, ok := s.facts[url]; ok {
		return f, nil
	}
	return domain.ScrapeFacts{}, fmt.Errorf("no fixture for %s", url)
}

func scraperFor(s engine.DetailScraper) func(domain.Site) (engine.DetailScraper, error) {
	return func(domain.Site) (engine.DetailScraper, error) { return s, nil }
}

// fakeEnricher returns one canned result, or an error for every call.
type fakeEnricher struct {
	mu     sync.Mutex
	result domain.EnrichedFacts
	err    error
	calls  int
}

func (e *fakeEnricher) Enrich(_ context.Context, _ domain.ScrapeFacts) (domain.EnrichedFacts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return domain.EnrichedFacts{}, e.err
	}
	return e.result, nil
}

// fakeCache records operations; Get always misses unless primed.
type fakeCache struct {
	mu   sync.Mutex
	data map[string]any
	dels []string
	sets int
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string]any{}} }

func (c *fakeCache) Get(_ context.Context, k string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[k]
	if !ok {
		return false, nil
	}
	if view, ok := v.(domain.ListingView); ok {
		if p, ok := dst.(*domain.ListingView); ok {
			*p = view
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeCache) Set(_ context.Context, k string, v any, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if view, ok := v.(domain.ListingView); ok {
		c.data[k] = view
	} else {
		c.data[k] = v
	}
	return nil
}

func (c *fakeCache) Del(_ context.Context, k string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, k)
	c.dels = append(c.dels, k)
	return nil
}

// fakeDiscovery serves canned references per (query, location).
type fakeDiscovery struct {
	refs map[string][]domain.Reference
	err  error
}

func (d *fakeDiscovery) Search(_ context.Context, p engine.SearchParams) ([]domain.Reference, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.refs[p.Query], nil
}

func discoveryFor(d engine.Discovery) func(domain.Site) (engine.Discovery, error) {
	return func(domain.Site) (engine.Discovery, error) { return d, nil }
}

func ptr[T any](v T) *T { return &v }
