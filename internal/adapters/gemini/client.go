// Package gemini calls the Gemini generateContent API to derive summary,
// address and cost-breakdown facts from scraped listing text.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"lokum/internal/adapters/observability"
	"lokum/internal/domain"
)

type Client struct {
	base  string
	model string
	key   string
	hc    *http.Client
	rl    *rate.Limiter
}

func New(base, key, model string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if base == "" {
		base = "https://generativelanguage.googleapis.com/v1beta"
	}
	if model == "" {
		model = "gemini-2.5-flash-lite"
	}
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		model: model,
		key:   key,
		hc:    &http.Client{Timeout: 60 * time.Second},
		rl:    rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// wire types

type generateRequest struct {
	SystemInstruction content        `json:"system_instruction"`
	Contents          []content      `json:"contents"`
	GenerationConfig  generateConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateConfig struct {
	ResponseMIMEType string `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type costsSchema struct {
	Rent                 *float64         `json:"rent"`
	RentCurrency         *domain.Currency `json:"rent_currency"`
	AdminRent            *float64         `json:"admin_rent"`
	AdminRentCurrency    *domain.Currency `json:"admin_rent_currency"`
	TotalMonthly         *float64         `json:"total_monthly"`
	TotalMonthlyCurrency *domain.Currency `json:"total_monthly_currency"`
}

type outputSchema struct {
	Summary string      `json:"summary"`
	Address *string     `json:"address"`
	Costs   costsSchema `json:"costs"`
	Notes   *string     `json:"notes"`
}

// Enrich asks the model for derived facts. Any transport, refusal or schema
// problem surfaces as domain.EnrichmentError; the caller degrades to
// structured facts only.
func (c *Client) Enrich(ctx context.Context, facts domain.ScrapeFacts) (domain.EnrichedFacts, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return domain.EnrichedFacts{}, err
	}

	reqBody, _ := json.Marshal(generateRequest{
		SystemInstruction: content{Parts: []part{{Text: systemPrompt}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: userPrompt(facts)}}}},
		GenerationConfig:  generateConfig{ResponseMIMEType: "application/json"},
	})

	url := fmt.Sprintf("%s/models/%s:generateContent", c.base, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return domain.EnrichedFacts{}, &domain.EnrichmentError{URL: facts.URL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.key)

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.EnrichedFacts{}, ctx.Err()
		}
		observability.ObserveExternal("gemini", c.model, 0, time.Since(start))
		return domain.EnrichedFacts{}, &domain.EnrichmentError{URL: facts.URL, Err: err}
	}
	defer resp.Body.Close()
	dur := time.Since(start)
	observability.ObserveExternal("gemini", c.model, resp.StatusCode, dur)

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.EnrichedFacts{}, &domain.EnrichmentError{
			URL: facts.URL,
			Err: fmt.Errorf("model call status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))),
		}
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return domain.EnrichedFacts{}, &domain.EnrichmentError{URL: facts.URL, Err: err}
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return domain.EnrichedFacts{}, &domain.EnrichmentError{URL: facts.URL, Err: fmt.Errorf("no candidates in response")}
	}

	var out outputSchema
	if err := json.Unmarshal([]byte(gr.Candidates[0].Content.Parts[0].Text), &out); err != nil {
		return domain.EnrichedFacts{}, &domain.EnrichmentError{URL: facts.URL, Err: fmt.Errorf("unparseable model output: %w", err)}
	}
	if strings.TrimSpace(out.Summary) == "" {
		return domain.EnrichedFacts{}, &domain.EnrichmentError{URL: facts.URL, Err: fmt.Errorf("model output missing summary")}
	}

	return domain.EnrichedFacts{
		Summary: strings.TrimSpace(out.Summary),
		Address: out.Address,
		Costs: domain.CostBreakdown{
			Rent:                 out.Costs.Rent,
			RentCurrency:         out.Costs.RentCurrency,
			AdminRent:            out.Costs.AdminRent,
			AdminRentCurrency:    out.Costs.AdminRentCurrency,
			TotalMonthly:         out.Costs.TotalMonthly,
			TotalMonthlyCurrency: out.Costs.TotalMonthlyCurrency,
		},
		Provenance: domain.Provenance{
			Model:      c.model,
			DurationMs: dur.Milliseconds(),
			Notes:      out.Notes,
		},
	}, nil
}
