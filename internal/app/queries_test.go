package app

import (
	"context"
	"errors"
	"testing"

	"lokum/internal/domain"
)

func TestGetListing_CacheMissThenHit(t *testing.T) {
	repo := newFakeRepo()
	res := seedSources(t, repo, "https://www.olx.pl/d/oferta/a.html")
	cache := newFakeCache()
	svc := NewQueryService(repo, cache, 300)

	first, err := svc.GetListing(context.Background(), res[0].ListingID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("cache sets: %d", cache.sets)
	}

	// Second read is served from the cache even if storage changes underneath.
	l := repo.listings[res[0].ListingID]
	l.Title = "changed behind the cache"
	repo.listings[res[0].ListingID] = l

	second, err := svc.GetListing(context.Background(), res[0].ListingID)
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if second.Listing.Title != first.Listing.Title {
		t.Fatalf("second read bypassed the cache: %q", second.Listing.Title)
	}
}

func TestGetListing_UnknownIsNotFound(t *testing.T) {
	svc := NewQueryService(newFakeRepo(), nil, 300)
	_, err := svc.GetListing(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListListings_ClampsLimit(t *testing.T) {
	repo := newFakeRepo()
	seedSources(t, repo, "https://www.olx.pl/d/oferta/a.html", "https://www.olx.pl/d/oferta/b.html")
	svc := NewQueryService(repo, nil, 300)

	page, err := svc.ListListings(context.Background(), domain.ListingsQuery{Limit: -5})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items: %d", len(page.Items))
	}
}

func TestCreateQuery_AppliesDefaults(t *testing.T) {
	repo := newFakeRepo()
	svc := NewQueryService(repo, nil, 300)

	q, err := svc.CreateQuery(context.Background(), domain.SearchQuery{Name: "studios", Query: "kawalerka", Location: "wroclaw"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if q.ID == "" || q.Site != domain.SiteOLX || q.MaxPages != 1 || q.RunIntervalHours != 6 || !q.IsActive {
		t.Fatalf("defaults not applied: %+v", q)
	}
	if _, ok := repo.queries[q.ID]; !ok {
		t.Fatal("query not persisted")
	}
}
