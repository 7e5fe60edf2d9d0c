package app

import (
	"sort"
	"time"

	"lokum/internal/domain"
)

// Consolidate recomputes the canonical listing from all raw detail records
// under it. Pure and idempotent: inputs are value objects, the updated
// listing is returned, nothing is mutated.
//
// Field precedence: enriched fact over structured fact over the cheap
// discovery fields already on the listing. Within a rank, the most recently
// scraped detail wins. A non-empty listing field is never cleared by an
// empty candidate.
func Consolidate(l domain.Listing, details []domain.RawDetail, at time.Time) domain.Listing {
	if len(details) == 0 {
		return l
	}

	sorted := make([]domain.RawDetail, len(details))
	copy(sorted, details)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ScrapedAt.After(sorted[j].ScrapedAt) })

	assign(&l.Summary, pick(sorted,
		func(d domain.RawDetail) *string { return d.Summary }))
	assign(&l.StreetAddress, pick(sorted,
		func(d domain.RawDetail) *string { return d.EnrichedAddress },
		func(d domain.RawDetail) *string { return d.Address }))
	assign(&l.Rent, pick(sorted,
		func(d domain.RawDetail) *float64 { return d.EnrichedRent },
		func(d domain.RawDetail) *float64 { return d.Price }))
	assign(&l.AdminFee, pick(sorted,
		func(d domain.RawDetail) *float64 { return d.EnrichedAdminRent },
		func(d domain.RawDetail) *float64 { return d.AdminRent }))
	assign(&l.TotalMonthlyCost, pick(sorted,
		func(d domain.RawDetail) *float64 { return d.TotalMonthlyCost }))
	assign(&l.Currency, pick(sorted,
		func(d domain.RawDetail) *domain.Currency { return d.TotalMonthlyCurrency },
		func(d domain.RawDetail) *domain.Currency { return d.PriceCurrency }))
	assign(&l.Area, pick(sorted,
		func(d domain.RawDetail) *float64 { return d.Area }))
	assign(&l.Rooms, pick(sorted,
		func(d domain.RawDetail) *int { return d.Rooms }))

	l.UpdatedAt = at.UTC()
	return l
}

// pick scans getters in precedence order; within one getter the details are
// already newest-first, so recency only breaks ties inside a rank.
func pick[T any](sorted []domain.RawDetail, getters ...func(domain.RawDetail) *T) *T {
	for _, get := range getters {
		for _, d := range sorted {
			if v := get(d); v != nil {
				return v
			}
		}
	}
	return nil
}

// assign overwrites dst only with a present value (monotonic non-regression).
func assign[T any](dst **T, v *T) {
	if v != nil {
		*dst = v
	}
}
