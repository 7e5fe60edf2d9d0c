package domain

import (
	"context"
	"time"
)

// Resolution is the outcome of upserting one discovered reference.
type Resolution struct {
	SourceRecordID string
	ListingID      string
	IsNew          bool
}

// SourceWork is a frozen DTO handed to pipeline workers; it carries everything
// a worker needs so no storage handle crosses into slow work.
type SourceWork struct {
	SourceRecordID string
	ListingID      string
	Site           Site
	URL            string
}

type ListingRepository interface {
	// Resolver path. Each call runs in its own short transaction.
	ResolveReference(ctx context.Context, ref Reference, parsed *ParsedPrice, now time.Time) (Resolution, error)

	// Pipeline path.
	EligibleSources(ctx context.Context, cutoff time.Time) ([]SourceWork, error)
	SetSourceState(ctx context.Context, sourceRecordID string, state SourceState) error
	RecordSourceError(ctx context.Context, sourceRecordID string, state SourceState, class, msg string, at time.Time) error
	ReplaceRawDetail(ctx context.Context, d RawDetail) error
	AttachEnrichment(ctx context.Context, sourceRecordID string, e EnrichedFacts, at time.Time) error
	ListingWithDetails(ctx context.Context, listingID string) (Listing, []RawDetail, error)
	UpdateListing(ctx context.Context, l Listing) error

	// Discovery path.
	DueQueries(ctx context.Context, now time.Time) ([]SearchQuery, error)
	RecordQueryRun(ctx context.Context, queryID string, at time.Time, runErr string) error
	AddQueryMatches(ctx context.Context, queryID string, sourceRecordIDs []string, at time.Time) error

	// Read paths.
	GetListing(ctx context.Context, id string) (ListingView, error)
	ListListings(ctx context.Context, q ListingsQuery) (ListingsPage, error)
	ListQueries(ctx context.Context) ([]SearchQuery, error)
	CreateQuery(ctx context.Context, q SearchQuery) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Read models & queries

type ListingView struct {
	Listing Listing
	Sources []SourceRecord
}

type ListingsQuery struct {
	Q        *string
	Location *string
	MaxRent  *float64
	MinRooms *int
	Limit    int
}

type ListingsPage struct {
	Items []Listing
}
