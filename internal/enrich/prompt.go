package enrich

import (
	"fmt"
	"strings"

	"github.com/prospectly/assignment-engine/internal/domain"
)

const systemPrompt = `You are a B2B sales research assistant. Given a contact and their
company, respond with a single JSON object and nothing else, using exactly these keys:
job_title, company_name, company_description, category, category_confidence,
custom_category, sector, region, region_insight, pain_point, comparable_companies,
personalization.
- category_confidence is a number between 0 and 1.
- comparable_companies is an array of 2 to 3 well-known company names.
- personalization is one short opening paragraph, at most 600 characters, written
  directly to the contact. No greetings, no sign-off, no placeholders.`

// buildUserPrompt renders the candidate context the model personalizes against.
// Blank fields are omitted so the model never echoes "unknown".
func buildUserPrompt(candidate domain.Candidate) string {
	var b strings.Builder

	writeLine := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}

	writeLine("Contact name", candidate.FullName())
	writeLine("Contact title", candidate.Title)
	writeLine("Company", candidate.CompanyName)
	writeLine("Company website", candidate.CompanyWebsite)
	writeLine("Company size", candidate.CompanySize)
	writeLine("Company location", candidate.CompanyLocation)
	writeLine("Outreach channel", candidate.Channel)
	writeLine("Recent job posting", candidate.JobPostingNote)

	return strings.TrimRight(b.String(), "\n")
}
