package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"lokum/internal/domain"
)

// Resolver deduplicates discovered references against persisted source
// records keyed by (site, canonical URL).
type Resolver struct {
	repo domain.ListingRepository
	now  func() time.Time
}

func NewResolver(repo domain.ListingRepository) *Resolver {
	return &Resolver{repo: repo, now: time.Now}
}

// Resolve upserts each reference: first sight creates a Listing + SourceRecord
// pair, later sights refresh only the cheap discovery fields. Safe to call
// repeatedly with overlapping reference sets. A storage failure is fatal to
// the batch; malformed references and cross-site canonical collisions are
// skipped and logged.
func (r *Resolver) Resolve(ctx context.Context, refs []domain.Reference) ([]domain.Resolution, error) {
	now := r.now().UTC()
	seen := make(map[string]domain.Site, len(refs))
	byURL := make(map[string]domain.Resolution, len(refs))

	out := make([]domain.Resolution, 0, len(refs))
	for _, ref := range refs {
		canonical, err := CanonicalURL(ref.URL)
		if err != nil {
			log.Warn().Str("url", ref.URL).Err(err).Msg("skipping unparseable reference URL")
			continue
		}

		if firstSite, ok := seen[canonical]; ok {
			if firstSite != ref.Site {
				// first wins
				conflict := &domain.DedupConflictError{URL: canonical, First: firstSite, Next: ref.Site}
				log.Warn().Str("url", canonical).Msg(conflict.Error())
				continue
			}
			out = append(out, byURL[canonical])
			continue
		}

		ref.URL = canonical
		var parsed *domain.ParsedPrice
		if ref.RawPrice != "" {
			p := domain.ParsePrice(ref.RawPrice)
			parsed = &p
		}

		res, err := r.repo.ResolveReference(ctx, ref, parsed, now)
		if err != nil {
			return out, fmt.Errorf("resolve %s: %w", canonical, err)
		}

		seen[canonical] = ref.Site
		byURL[canonical] = res
		out = append(out, res)
	}
	return out, nil
}

// CanonicalURL normalizes a listing URL into the dedup key form: lowercase
// scheme and host, no query or fragment, no trailing slash.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("not an absolute URL: %q", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}
