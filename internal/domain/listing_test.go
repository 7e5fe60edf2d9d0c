package domain_test

import (
	"testing"
	"time"

	"lokum/internal/domain"
)

func TestStale_BoundaryIsFresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 14 * 24 * time.Hour

	if domain.Stale(now.Add(-window), now, window) {
		t.Error("a fetch exactly at the window boundary must still be fresh")
	}
	if domain.Stale(now.Add(-window+time.Second), now, window) {
		t.Error("a fetch inside the window must be fresh")
	}
	if !domain.Stale(now.Add(-window-time.Second), now, window) {
		t.Error("a fetch past the window must be stale")
	}
}
