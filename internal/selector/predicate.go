package selector

import (
	"strings"

	"github.com/prospectly/assignment-engine/internal/domain"
)

// excludedEmailDomains are addresses that are never worth enrolling.
var excludedEmailDomains = map[string]struct{}{
	"example.com":       {},
	"example.org":       {},
	"test.com":          {},
	"localhost":         {},
	"mailinator.com":    {},
	"guerrillamail.com": {},
}

// EmailPlausible reports whether an address is worth sending to. This is a
// cheap syntactic screen, not RFC validation.
func EmailPlausible(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if len(email) <= 5 {
		return false
	}
	if strings.Count(email, "@") != 1 {
		return false
	}
	if !strings.Contains(email, ".") {
		return false
	}
	if _, blocked := excludedEmailDomains[domain.EmailDomain(email)]; blocked {
		return false
	}
	return true
}

// Eligible is the selection predicate. Both selection paths run it client-side
// against the same row shape, so the precomputed pool and the fallback join
// cannot drift apart semantically. channels maps routing keys to enabled
// outreach channels.
func Eligible(row domain.CandidateRow, channels map[string]domain.OutreachChannel) bool {
	if row.Disqualified {
		return false
	}
	if row.ContactCampaignID != nil && *row.ContactCampaignID != "" {
		return false
	}
	if row.CompanyCRMOrgID != nil && *row.CompanyCRMOrgID != "" {
		return false
	}
	if row.CompanyStatus != domain.CompanyStatusProspect {
		return false
	}
	if row.CompanySizeTier == domain.SizeTierEnterprise {
		return false
	}
	if !EmailPlausible(row.Email) {
		return false
	}

	ch, ok := channels[row.RoutingKey]
	if !ok || !ch.Enabled || ch.CampaignID == "" {
		return false
	}
	return true
}
