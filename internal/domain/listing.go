package domain

import "time"

type Site string

const SiteOLX Site = "olx"

// SourceState is the per-source pipeline state.
type SourceState string

const (
	StateDiscovered        SourceState = "discovered"
	StateScraping          SourceState = "scraping"
	StateScraped           SourceState = "scraped"
	StateEnriching         SourceState = "enriching"
	StateEnriched          SourceState = "enriched"
	StateEnrichmentSkipped SourceState = "enrichment_skipped"
	StateConsolidated      SourceState = "consolidated"
	StateFailed            SourceState = "failed"
	StateGone              SourceState = "gone"
)

// Listing is the canonical, deduplicated record. Only the consolidator
// writes to it after creation.
type Listing struct {
	ID               string
	Title            string
	Location         *string
	Summary          *string
	StreetAddress    *string
	Area             *float64
	Rooms            *int
	Rent             *float64
	AdminFee         *float64
	TotalMonthlyCost *float64
	Currency         *Currency
	Lat, Lon         *float64
	UpdatedAt        time.Time
}

// SourceRecord is one (site, canonical URL) pair under a Listing.
// The pair is the dedup key.
type SourceRecord struct {
	ID          string
	ListingID   string
	Site        Site
	URL         string
	Title       string
	RawPrice    *ParsedPrice
	State       SourceState
	FetchedAt   *time.Time
	LastError   *string
	LastErrorAt *time.Time
}

// RawDetail holds one source's scrape + enrichment facts, replaced wholesale
// on each successful fetch.
type RawDetail struct {
	ID             string
	SourceRecordID string

	// structured scrape facts
	Price             *float64
	PriceCurrency     *Currency
	AdminRent         *float64
	AdminRentCurrency *Currency
	Area              *float64
	Rooms             *int
	Floor             *int
	Furnished         *bool
	PetsAllowed       *bool
	Elevator          *bool
	Parking           *bool
	BuildingType      *string
	Address           *string
	Description       string
	Photos            []string
	ExternalID        *string

	// enrichment facts
	Summary              *string
	EnrichedAddress      *string
	EnrichedRent         *float64
	EnrichedAdminRent    *float64
	TotalMonthlyCost     *float64
	TotalMonthlyCurrency *Currency
	Provenance           []byte // {"model":...,"duration_ms":...,"notes":...}

	ScrapedAt  time.Time
	EnrichedAt *time.Time
}

// Reference is the lightweight result of a discovery search page.
type Reference struct {
	Site     Site
	URL      string
	Title    string
	RawPrice string
	Location string
	PostedAt string
}

// ScrapeFacts is the immutable output of a detail scrape.
type ScrapeFacts struct {
	URL               string
	Title             string
	Description       string
	Price             *float64
	PriceCurrency     *Currency
	AdminRent         *float64
	AdminRentCurrency *Currency
	Area              *float64
	Rooms             *int
	Floor             *int
	Furnished         *bool
	PetsAllowed       *bool
	Elevator          *bool
	Parking           *bool
	BuildingType      *string
	Address           *string
	Photos            []string
	ExternalID        *string
}

// CostBreakdown is the model-extracted price decomposition.
type CostBreakdown struct {
	Rent                 *float64  `json:"rent"`
	RentCurrency         *Currency `json:"rent_currency"`
	AdminRent            *float64  `json:"admin_rent"`
	AdminRentCurrency    *Currency `json:"admin_rent_currency"`
	TotalMonthly         *float64  `json:"total_monthly"`
	TotalMonthlyCurrency *Currency `json:"total_monthly_currency"`
}

// Provenance records how an enrichment was produced.
type Provenance struct {
	Model      string  `json:"model"`
	DurationMs int64   `json:"duration_ms"`
	Notes      *string `json:"notes,omitempty"`
}

// EnrichedFacts is the immutable output of an enrichment call.
type EnrichedFacts struct {
	Summary    string
	Address    *string
	Costs      CostBreakdown
	Provenance Provenance
}

// SearchQuery is a user-defined discovery search.
type SearchQuery struct {
	ID               string
	Name             string
	Query            string
	Location         string
	Site             Site
	MaxPages         int
	IsActive         bool
	RunIntervalHours int
	LastRunAt        *time.Time
	LastError        *string
	LastErrorAt      *time.Time
}

// Stale reports whether a fetch at t has aged out of the freshness window.
// A fetch exactly at the boundary is still fresh.
func Stale(t time.Time, now time.Time, window time.Duration) bool {
	return t.Before(now.Add(-window))
}
