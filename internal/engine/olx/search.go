// Package olx implements the engine contracts for olx.pl rental listings.
package olx

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"lokum/internal/adapters/fetch"
	"lokum/internal/domain"
	"lokum/internal/engine"
)

func init() {
	engine.Register(domain.SiteOLX, engine.Factory{
		NewDiscovery:     func(c *fetch.Client) engine.Discovery { return NewSearch(c, "") },
		NewDetailScraper: func(c *fetch.Client) engine.DetailScraper { return NewScraper(c) },
	})
}

const defaultBase = "https://www.olx.pl"

var (
	titlePattern        = regexp.MustCompile(`class="css-hzlye5">(.*?)</h4>`)
	pricePattern        = regexp.MustCompile(`(?s)data-testid="ad-price"[^>]*>(.*?)</p>`)
	adURLPattern        = regexp.MustCompile(`href="(/d/oferta/[^"]+)"`)
	locationDatePattern = regexp.MustCompile(`(?s)data-testid="location-date"[^>]*>(.*?)</p>`)
	nextPagePattern     = regexp.MustCompile(`data-testid="pagination-forward"`)
	stylePattern        = regexp.MustCompile(`(?s)<style[^>]*>.*?</style>`)
	tagPattern          = regexp.MustCompile(`<[^>]+>`)
)

// Search discovers listing references from olx.pl search result pages.
type Search struct {
	client *fetch.Client
	base   string
}

// NewSearch builds a discovery engine. An empty base means production olx.pl.
func NewSearch(c *fetch.Client, base string) *Search {
	if base == "" {
		base = defaultBase
	}
	return &Search{client: c, base: strings.TrimRight(base, "/")}
}

func (s *Search) Search(ctx context.Context, params engine.SearchParams) ([]domain.Reference, error) {
	maxPages := params.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	var refs []domain.Reference
	for page := 1; page <= maxPages; page++ {
		pageURL := s.searchURL(params, page)
		body, err := s.client.Get(ctx, pageURL)
		if err != nil {
			return refs, err
		}
		html := string(body)
		if !strings.Contains(html, "data-testid") {
			return refs, &domain.ParseError{URL: pageURL, Reason: "no result markers in search page"}
		}
		refs = append(refs, s.parseSearchPage(html)...)

		if !nextPagePattern.MatchString(html) {
			break
		}
	}
	return refs, nil
}

func (s *Search) searchURL(params engine.SearchParams, page int) string {
	qp := url.Values{}
	qp.Set("search[order]", "created_at:desc")
	if page > 1 {
		qp.Set("page", fmt.Sprintf("%d", page))
	}
	return fmt.Sprintf("%s/nieruchomosci/mieszkania/wynajem/%s/q-%s/?%s",
		s.base,
		url.PathEscape(strings.ToLower(params.Location)),
		url.PathEscape(params.Query),
		qp.Encode(),
	)
}

// parseSearchPage splits the page on result-card markers and extracts one
// reference per complete card; incomplete cards are skipped.
func (s *Search) parseSearchPage(html string) []domain.Reference {
	cards := strings.Split(html, `data-testid="l-card"`)
	if len(cards) < 2 {
		return nil
	}

	refs := make([]domain.Reference, 0, len(cards)-1)
	for _, card := range cards[1:] {
		titleM := titlePattern.FindStringSubmatch(card)
		priceM := pricePattern.FindStringSubmatch(card)
		urlM := adURLPattern.FindStringSubmatch(card)
		locM := locationDatePattern.FindStringSubmatch(card)
		if titleM == nil || priceM == nil || urlM == nil || locM == nil {
			continue
		}

		price := strings.TrimSpace(tagPattern.ReplaceAllString(stylePattern.ReplaceAllString(priceM[1], ""), ""))

		adPath := urlM[1]
		if i := strings.IndexByte(adPath, '?'); i >= 0 {
			adPath = adPath[:i]
		}

		locRaw := strings.Trim(strings.TrimSpace(tagPattern.ReplaceAllString(locM[1], " - ")), " -")
		var parts []string
		for _, p := range strings.Split(locRaw, " - ") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		location, date := "", ""
		if len(parts) > 0 {
			location = parts[0]
		}
		if len(parts) > 1 {
			date = parts[len(parts)-1]
		}

		refs = append(refs, domain.Reference{
			Site:     domain.SiteOLX,
			URL:      s.base + adPath,
			Title:    strings.TrimSpace(titleM[1]),
			RawPrice: price,
			Location: location,
			PostedAt: date,
		})
	}
	return refs
}
