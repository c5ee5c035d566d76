package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prospectly/assignment-engine/internal/crm"
	"github.com/prospectly/assignment-engine/internal/domain"
	"github.com/prospectly/assignment-engine/internal/observability"
	"github.com/prospectly/assignment-engine/internal/repository"
	"go.uber.org/zap"
)

// PlatformSuppressionChecker is the outreach platform's own suppression list.
type PlatformSuppressionChecker interface {
	IsAddressSuppressed(ctx context.Context, email string) (bool, error)
}

// Gate runs the cheap synchronous eligibility checks before any expensive
// enrichment work. Checks run in a fixed order and short-circuit on the first
// rejection: target validity, CRM customer protection, suppression lists.
//
// The CRM and suppression lookups fail open: a lookup error is logged and
// counted, and the candidate is treated as clear. Pipeline availability wins
// over strict protection for these secondary checks.
type Gate struct {
	crm         crm.Client
	suppression repository.SuppressionRepository
	companies   repository.CompanyRepository
	platform    PlatformSuppressionChecker
	metrics     *observability.Metrics
	logger      *zap.Logger
}

func NewGate(
	crmClient crm.Client,
	suppression repository.SuppressionRepository,
	companies repository.CompanyRepository,
	platform PlatformSuppressionChecker,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Gate, error) {
	if suppression == nil {
		return nil, errors.New("gate: suppression repository is required")
	}
	if companies == nil {
		return nil, errors.New("gate: company repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gate{
		crm:         crmClient,
		suppression: suppression,
		companies:   companies,
		platform:    platform,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

func (g *Gate) Check(ctx context.Context, candidate domain.Candidate) domain.GateDecision {
	if strings.TrimSpace(candidate.CampaignID) == "" {
		return domain.SkipDecision(domain.ProcessingSkippedNoTarget, "no destination campaign for channel")
	}

	crmOrgID, decision := g.checkCRM(ctx, candidate)
	if decision != nil {
		return *decision
	}

	if decision := g.checkSuppression(ctx, candidate.Email); decision != nil {
		return *decision
	}

	return domain.PassDecision(crmOrgID)
}

// checkCRM searches the CRM by company name. A discovered organization ID is
// written back to the company regardless of the verdict, so later runs can
// exclude the company at selection time.
func (g *Gate) checkCRM(ctx context.Context, candidate domain.Candidate) (string, *domain.GateDecision) {
	if g.crm == nil {
		return "", nil
	}

	org, err := g.crm.FindOrganizationByName(ctx, candidate.CompanyName)
	if err != nil {
		g.failOpen("crm", err, zap.String("companyName", candidate.CompanyName))
		return "", nil
	}
	if org == nil {
		return "", nil
	}

	if err := g.companies.SetCRMOrgID(ctx, candidate.CompanyID, org.ID); err != nil {
		g.logger.Warn("crm org id write-back failed",
			zap.String("companyId", candidate.CompanyID),
			zap.String("crmOrgId", org.ID),
			zap.Error(err))
	}

	if org.IsCustomer() {
		d := domain.SkipDecision(domain.ProcessingSkippedCustomer,
			fmt.Sprintf("company matches crm customer %s", org.ID))
		d.CRMOrgID = org.ID
		return "", &d
	}
	return org.ID, nil
}

// checkSuppression checks the internal store first (exact address, then
// domain), then the outreach platform's list. First match wins.
func (g *Gate) checkSuppression(ctx context.Context, email string) *domain.GateDecision {
	email = strings.ToLower(strings.TrimSpace(email))

	if entry := g.findInternal(ctx, email, domain.SuppressionExact); entry != nil {
		d := domain.SkipDecision(domain.ProcessingSkippedSuppressed,
			fmt.Sprintf("address on internal suppression list (%s)", entry.ID))
		return &d
	}
	if entry := g.findInternal(ctx, domain.EmailDomain(email), domain.SuppressionDomain); entry != nil {
		d := domain.SkipDecision(domain.ProcessingSkippedSuppressed,
			fmt.Sprintf("domain on internal suppression list (%s)", entry.ID))
		return &d
	}

	if g.platform == nil {
		return nil
	}
	suppressed, err := g.platform.IsAddressSuppressed(ctx, email)
	if err != nil {
		g.failOpen("platform_suppression", err, zap.String("email", email))
		return nil
	}
	if suppressed {
		d := domain.SkipDecision(domain.ProcessingSkippedSuppressed, "address on platform suppression list")
		return &d
	}
	return nil
}

func (g *Gate) findInternal(ctx context.Context, value string, typ domain.SuppressionType) *domain.SuppressionEntry {
	entry, err := g.suppression.FindActive(ctx, value, typ)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			g.failOpen("suppression", err, zap.String("value", value), zap.String("type", typ.String()))
		}
		return nil
	}
	return entry
}

func (g *Gate) failOpen(check string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("check", check), zap.Error(err))
	g.logger.Warn("gate check failed open", fields...)
	if g.metrics != nil {
		g.metrics.IncGateFailOpen(check)
	}
}
