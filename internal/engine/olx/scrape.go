package olx

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"lokum/internal/adapters/fetch"
	"lokum/internal/domain"
)

var (
	prerenderedStatePattern = regexp.MustCompile(`(?s)window\.__PRERENDERED_STATE__\s*=\s*"(.*?)"\s*;`)
	photoSizePattern        = regexp.MustCompile(`;s=\d+x\d+$`)
	floorPattern            = regexp.MustCompile(`floor_select_floor_(\d+)`)
)

var roomsMap = map[string]int{
	"one":   1,
	"two":   2,
	"three": 3,
	"four":  4,
}

// Scraper extracts structured facts from an olx.pl ad page. The page embeds a
// prerendered JSON state, so no DOM walking is needed.
type Scraper struct {
	client *fetch.Client
}

func NewScraper(c *fetch.Client) *Scraper { return &Scraper{client: c} }

type adParam struct {
	Key             string `json:"key"`
	Value           string `json:"value"`
	NormalizedValue string `json:"normalizedValue"`
}

type adState struct {
	Ad struct {
		Ad struct {
			ID          int64     `json:"id"`
			Title       string    `json:"title"`
			Description string    `json:"description"`
			Params      []adParam `json:"params"`
			Photos      []string  `json:"photos"`
			Price       struct {
				RegularPrice struct {
					Value        *float64 `json:"value"`
					CurrencyCode string   `json:"currencyCode"`
				} `json:"regularPrice"`
			} `json:"price"`
			Location struct {
				CityName     string `json:"cityName"`
				DistrictName string `json:"districtName"`
				RegionName   string `json:"regionName"`
			} `json:"location"`
		} `json:"ad"`
	} `json:"ad"`
}

func (s *Scraper) Scrape(ctx context.Context, url string) (domain.ScrapeFacts, error) {
	body, err := s.client.Get(ctx, url)
	if err != nil {
		return domain.ScrapeFacts{}, err
	}

	ad, err := extractAdState(string(body), url)
	if err != nil {
		return domain.ScrapeFacts{}, err
	}
	return parseAd(ad, url), nil
}

func extractAdState(html, url string) (adState, error) {
	m := prerenderedStatePattern.FindStringSubmatch(html)
	if m == nil {
		return adState{}, &domain.ParseError{URL: url, Reason: "__PRERENDERED_STATE__ not found"}
	}

	// The state is a JSON document embedded inside a JS string literal.
	raw := strings.ReplaceAll(m[1], `\"`, `"`)
	raw = strings.ReplaceAll(raw, `\\`, `\`)

	var state adState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return adState{}, &domain.ParseError{URL: url, Reason: "prerendered state is not valid JSON"}
	}
	if state.Ad.Ad.ID == 0 && state.Ad.Ad.Title == "" {
		return adState{}, &domain.ParseError{URL: url, Reason: "no ad data in prerendered state"}
	}
	return state, nil
}

func parseAd(state adState, url string) domain.ScrapeFacts {
	ad := state.Ad.Ad

	facts := domain.ScrapeFacts{
		URL:         url,
		Title:       ad.Title,
		Description: strings.TrimSpace(tagPattern.ReplaceAllString(ad.Description, "")),
	}

	if ad.Price.RegularPrice.Value != nil {
		facts.Price = ad.Price.RegularPrice.Value
		if cur, ok := currencyCode(ad.Price.RegularPrice.CurrencyCode); ok {
			facts.PriceCurrency = &cur
		}
	}

	for _, p := range ad.Params {
		switch p.Key {
		case "m":
			if f, err := strconv.ParseFloat(p.NormalizedValue, 64); err == nil {
				facts.Area = &f
			}
		case "rent":
			if f, err := strconv.ParseFloat(p.NormalizedValue, 64); err == nil {
				facts.AdminRent = &f
			}
			if parsed := domain.ParsePrice(p.Value); parsed.Currency != nil {
				facts.AdminRentCurrency = parsed.Currency
			}
		case "rooms":
			if n, ok := roomsMap[p.NormalizedValue]; ok {
				facts.Rooms = &n
			}
		case "floor_select":
			if m := floorPattern.FindStringSubmatch(p.NormalizedValue); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					facts.Floor = &n
				}
			}
		case "furniture":
			facts.Furnished = yesNo(p.Value)
		case "animals", "pets":
			facts.PetsAllowed = yesNo(p.Value)
		case "winda", "elevator":
			facts.Elevator = yesNo(p.Value)
		case "parking", "garage":
			facts.Parking = yesNo(p.Value)
		case "builttype":
			if p.Value != "" {
				v := p.Value
				facts.BuildingType = &v
			}
		}
	}

	loc := ad.Location
	var addrParts []string
	for _, p := range []string{loc.DistrictName, loc.CityName, loc.RegionName} {
		if p != "" {
			addrParts = append(addrParts, p)
		}
	}
	if len(addrParts) > 0 {
		addr := strings.Join(addrParts, ", ")
		facts.Address = &addr
	}

	for _, photo := range ad.Photos {
		facts.Photos = append(facts.Photos, photoSizePattern.ReplaceAllString(photo, ""))
	}

	if ad.ID != 0 {
		id := strconv.FormatInt(ad.ID, 10)
		facts.ExternalID = &id
	}
	return facts
}

func currencyCode(code string) (domain.Currency, bool) {
	switch strings.ToUpper(code) {
	case "PLN":
		return domain.CurrencyPLN, true
	case "EUR":
		return domain.CurrencyEUR, true
	case "USD":
		return domain.CurrencyUSD, true
	default:
		return "", false
	}
}

func yesNo(v string) *bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "tak", "yes":
		b := true
		return &b
	case "nie", "no":
		b := false
		return &b
	default:
		return nil
	}
}
