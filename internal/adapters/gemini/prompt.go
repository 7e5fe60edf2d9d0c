package gemini

import (
	"fmt"

	"lokum/internal/domain"
)

const systemPrompt = `You are a real estate data extraction assistant. You analyze rental listing descriptions and extract structured information.

Your goals:
1. Write a compact 2-3 sentence summary of the offer.
2. Extract the best street-level address for geocoding, if the description mentions one.
3. Break down the costs: what is included in rent, admin fees, other charges, and a total monthly estimate.
4. Note any observations or red flags.

Important:
- Structured data (price, area, rooms) is already extracted; focus on the description text.
- Be precise with addresses: only include what is explicitly stated.
- Use one currency for all cost fields (usually PLN for Polish listings).
- Leave unclear or missing fields null.

Respond with JSON: {"summary": string, "address": string|null, "costs": {"rent": number|null, "rent_currency": "PLN"|"EUR"|"USD"|null, "admin_rent": number|null, "admin_rent_currency": string|null, "total_monthly": number|null, "total_monthly_currency": string|null}, "notes": string|null}`

func userPrompt(facts domain.ScrapeFacts) string {
	location := "Unknown"
	if facts.Address != nil && *facts.Address != "" {
		location = *facts.Address
	}
	return fmt.Sprintf("Extract structured data from this rental listing:\n\nTitle: %s\nLocation: %s\nDescription:\n%s",
		facts.Title, location, facts.Description)
}
