package crm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// customerStatus is the protected lifecycle status. Contacts of companies in
// this status are never auto-enrolled.
const customerStatus = "customer"

// Organization is the minimal CRM record shape the pipeline depends on.
type Organization struct {
	ID     string
	Name   string
	Status string
}

// IsCustomer reports whether the organization is in the protected status.
func (o *Organization) IsCustomer() bool {
	return o != nil && strings.EqualFold(strings.TrimSpace(o.Status), customerStatus)
}

// Client is the CRM lookup port. Lookups are advisory; callers fail open on
// errors.
type Client interface {
	// FindOrganizationByName searches the CRM by exact-ish name and returns
	// the best match, or nil when nothing matches.
	FindOrganizationByName(ctx context.Context, name string) (*Organization, error)
}

type searchResponse struct {
	Data []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"data"`
}

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
		return nil, fmt.Errorf("crm base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid crm base url: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("crm api key is required")
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

func (c *RestyClient) FindOrganizationByName(ctx context.Context, name string) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	var parsed searchResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetQueryParam("term", name).
		SetQueryParam("fields", "name,status").
		SetResult(&parsed).
		Get(c.baseURL + "/api/v1/organizations/search")
	if err != nil {
		return nil, fmt.Errorf("crm search request: %w", err)
	}
	if response.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if response.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("crm search returned status %d", response.StatusCode())
	}

	// Prefer an exact case-insensitive name match, otherwise take the first hit.
	var first *Organization
	for _, item := range parsed.Data {
		org := &Organization{ID: item.ID, Name: item.Name, Status: item.Status}
		if strings.EqualFold(strings.TrimSpace(item.Name), name) {
			return org, nil
		}
		if first == nil {
			first = org
		}
	}
	return first, nil
}
