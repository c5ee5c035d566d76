package outreach

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prospectly/assignment-engine/internal/domain"
	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

// capacityLimitMarkers are substrings of platform error bodies that indicate
// a hard account-level lead cap, not a per-request failure.
var capacityLimitMarkers = []string{
	"lead limit reached",
	"lead limit exceeded",
	"maximum leads",
	"leads quota",
}

// EnrollmentResult reports one enrollment attempt. Duplicate means the
// platform already knew the address and refused to create a second lead.
type EnrollmentResult struct {
	LeadID    string
	Duplicate bool
}

// Client is the outreach platform port.
type Client interface {
	// Enroll adds a candidate to its destination campaign.
	Enroll(ctx context.Context, candidate domain.Candidate, enrichment *domain.Enrichment) (*EnrollmentResult, error)
	// IsAddressSuppressed checks the platform's own suppression list.
	IsAddressSuppressed(ctx context.Context, email string) (bool, error)
}

type leadRequest struct {
	Email             string            `json:"email"`
	FirstName         string            `json:"firstName,omitempty"`
	LastName          string            `json:"lastName,omitempty"`
	CompanyName       string            `json:"companyName,omitempty"`
	Phone             string            `json:"phone,omitempty"`
	LinkedinURL       string            `json:"linkedinUrl,omitempty"`
	DeduplicateCamp   bool              `json:"deduplicate"`
	SkipIfInWorkspace bool              `json:"skipIfInWorkspace"`
	SkipIfInCampaign  bool              `json:"skipIfInCampaign"`
	Variables         map[string]string `json:"variables,omitempty"`
}

type leadResponse struct {
	ID        string `json:"_id"`
	Email     string `json:"email"`
	IsSkipped bool   `json:"isSkipped"`
	Skipped   string `json:"skippedReason,omitempty"`
}

type suppressionResponse struct {
	Items []struct {
		Value string `json:"value"`
		Type  string `json:"type"`
	} `json:"items"`
}

// RestyClient talks to the outreach platform over its JSON API.
type RestyClient struct {
	client  *resty.Client
	baseURL string
	apiKey  string
	logger  *zap.Logger
}

func NewRestyClient(baseURL, apiKey string, logger *zap.Logger) (*RestyClient, error) {
	client := resty.New()
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)

	return NewRestyClientWithClient(baseURL, apiKey, client, logger)
}

func NewRestyClientWithClient(baseURL, apiKey string, client *resty.Client, logger *zap.Logger) (*RestyClient, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, fmt.Errorf("outreach base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid outreach base url: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("outreach api key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	client.SetRetryCount(0)

	return &RestyClient{
		client:  client,
		baseURL: trimmedURL,
		apiKey:  apiKey,
		logger:  logger,
	}, nil
}

func (c *RestyClient) Enroll(ctx context.Context, candidate domain.Candidate, enrichment *domain.Enrichment) (*EnrollmentResult, error) {
	if err := candidate.Validate(); err != nil {
		return nil, fmt.Errorf("invalid candidate: %w", err)
	}
	if strings.TrimSpace(candidate.CampaignID) == "" {
		return nil, fmt.Errorf("%w: candidate has no destination campaign", domain.ErrValidation)
	}

	reqBody := leadRequest{
		Email:             candidate.Email,
		FirstName:         candidate.FirstName,
		LastName:          candidate.LastName,
		CompanyName:       candidate.CompanyName,
		Phone:             candidate.Phone,
		LinkedinURL:       candidate.ProfileURL,
		DeduplicateCamp:   true,
		SkipIfInWorkspace: true,
		SkipIfInCampaign:  true,
		Variables:         enrichmentVariables(enrichment),
	}

	var parsed leadResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetBody(reqBody).
		SetResult(&parsed).
		Post(fmt.Sprintf("%s/api/campaigns/%s/leads", c.baseURL, candidate.CampaignID))
	if err != nil {
		return nil, &APIError{
			Message:   "enroll request failed",
			Transient: !strings.Contains(err.Error(), "context canceled"),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	switch {
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		if parsed.IsSkipped {
			return &EnrollmentResult{LeadID: parsed.ID, Duplicate: true}, nil
		}
		if parsed.ID == "" {
			return nil, &APIError{
				StatusCode: statusCode,
				Message:    "platform returned no lead id",
				Transient:  true,
			}
		}
		return &EnrollmentResult{LeadID: parsed.ID}, nil
	case statusCode == http.StatusConflict:
		// Conflict on the address means the lead already exists somewhere
		// in the workspace.
		return &EnrollmentResult{Duplicate: true}, nil
	default:
		body := strings.TrimSpace(response.String())
		return nil, &APIError{
			StatusCode: statusCode,
			Message:    enrollErrorMessage(statusCode, body),
			Transient:  isTransientHTTPStatus(statusCode) && !IsCapacityLimit(body),
		}
	}
}

func (c *RestyClient) IsAddressSuppressed(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, fmt.Errorf("%w: email is required", domain.ErrValidation)
	}

	var parsed suppressionResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetQueryParam("value", email).
		SetResult(&parsed).
		Get(c.baseURL + "/api/suppressions")
	if err != nil {
		return false, &APIError{Message: "suppression lookup failed", Transient: true, Cause: err}
	}
	if response.StatusCode() == http.StatusNotFound {
		return false, nil
	}
	if response.StatusCode() != http.StatusOK {
		return false, &APIError{
			StatusCode: response.StatusCode(),
			Message:    "suppression lookup returned unexpected status",
			Transient:  isTransientHTTPStatus(response.StatusCode()),
		}
	}

	emailDomain := domain.EmailDomain(email)
	for _, item := range parsed.Items {
		value := strings.ToLower(strings.TrimSpace(item.Value))
		if value == email {
			return true, nil
		}
		if strings.EqualFold(item.Type, "domain") && value == emailDomain {
			return true, nil
		}
	}
	return false, nil
}

// IsCapacityLimit reports whether an error message names the platform's hard
// lead cap. Capacity errors fast-fail the whole chunk instead of burning
// through the remaining candidates.
func IsCapacityLimit(message string) bool {
	lowered := strings.ToLower(message)
	for _, marker := range capacityLimitMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

func enrichmentVariables(e *domain.Enrichment) map[string]string {
	if e == nil {
		return nil
	}
	vars := map[string]string{
		"jobTitle":        e.JobTitle,
		"companyName":     e.CompanyName,
		"category":        e.Category,
		"sector":          e.Sector,
		"region":          e.Region,
		"painPoint":       e.PainPoint,
		"personalization": e.Personalization,
	}
	for key, value := range vars {
		if strings.TrimSpace(value) == "" {
			delete(vars, key)
		}
	}
	return vars
}

func enrollErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("platform returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
