package olx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lokum/internal/adapters/fetch"
	"lokum/internal/domain"
	"lokum/internal/engine/olx"
)

const adStateJSON = `{
  "ad": {
    "ad": {
      "id": 912345678,
      "title": "Kawalerka w centrum, po remoncie",
      "description": "<p>Wynajmę kawalerkę przy ul. Legnickiej 12.<br/>Czynsz administracyjny 450 zł.</p>",
      "params": [
        {"key": "m", "value": "38 m²", "normalizedValue": "38"},
        {"key": "rent", "value": "450 zł", "normalizedValue": "450"},
        {"key": "rooms", "value": "Kawalerka", "normalizedValue": "one"},
        {"key": "floor_select", "value": "3", "normalizedValue": "floor_select_floor_3"},
        {"key": "furniture", "value": "Tak", "normalizedValue": "yes"},
        {"key": "builttype", "value": "Blok", "normalizedValue": "blok"}
      ],
      "photos": ["https://img.olx.pl/1.jpg;s=1000x700", "https://img.olx.pl/2.jpg;s=644x461"],
      "price": {"regularPrice": {"value": 2500, "currencyCode": "PLN"}},
      "location": {"cityName": "Wrocław", "districtName": "Śródmieście", "regionName": "Dolnośląskie"}
    }
  }
}`

func adPageHTML(stateJSON string) string {
	escaped := strings.ReplaceAll(stateJSON, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `<html><head><script>window.__PRERENDERED_STATE__ = "` + escaped + `";</script></head><body></body></html>`
}

func TestScrape_ExtractsFacts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(adPageHTML(adStateJSON)))
	}))
	defer ts.Close()

	s := olx.NewScraper(fetch.New("", 100))
	facts, err := s.Scrape(context.Background(), ts.URL+"/d/oferta/kawalerka-IDabc.html")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}

	if facts.Title != "Kawalerka w centrum, po remoncie" {
		t.Errorf("title: %q", facts.Title)
	}
	if !strings.Contains(facts.Description, "ul. Legnickiej 12") || strings.Contains(facts.Description, "<p>") {
		t.Errorf("description must be tag-free text: %q", facts.Description)
	}
	if facts.Price == nil || *facts.Price != 2500 {
		t.Errorf("price: %+v", facts.Price)
	}
	if facts.PriceCurrency == nil || *facts.PriceCurrency != domain.CurrencyPLN {
		t.Errorf("currency: %+v", facts.PriceCurrency)
	}
	if facts.AdminRent == nil || *facts.AdminRent != 450 {
		t.Errorf("admin rent: %+v", facts.AdminRent)
	}
	if facts.Area == nil || *facts.Area != 38 {
		t.Errorf("area: %+v", facts.Area)
	}
	if facts.Rooms == nil || *facts.Rooms != 1 {
		t.Errorf("rooms: %+v", facts.Rooms)
	}
	if facts.Floor == nil || *facts.Floor != 3 {
		t.Errorf("floor: %+v", facts.Floor)
	}
	if facts.Furnished == nil || !*facts.Furnished {
		t.Errorf("furnished: %+v", facts.Furnished)
	}
	if facts.BuildingType == nil || *facts.BuildingType != "Blok" {
		t.Errorf("building type: %+v", facts.BuildingType)
	}
	if facts.Address == nil || *facts.Address != "Śródmieście, Wrocław, Dolnośląskie" {
		t.Errorf("address: %+v", facts.Address)
	}
	if len(facts.Photos) != 2 || facts.Photos[0] != "https://img.olx.pl/1.jpg" {
		t.Errorf("photos must lose size suffix: %+v", facts.Photos)
	}
	if facts.ExternalID == nil || *facts.ExternalID != "912345678" {
		t.Errorf("external id: %+v", facts.ExternalID)
	}
}

func TestScrape_MissingStateIsParseError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>no state here</body></html>"))
	}))
	defer ts.Close()

	s := olx.NewScraper(fetch.New("", 100))
	_, err := s.Scrape(context.Background(), ts.URL)
	var pe *domain.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestScrape_RemovedListingIsNotFound(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	s := olx.NewScraper(fetch.New("", 100))
	_, err := s.Scrape(context.Background(), ts.URL)
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
