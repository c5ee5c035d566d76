package outreach

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prospectly/assignment-engine/internal/domain"
	"go.uber.org/zap"
)

func testCandidate() domain.Candidate {
	return domain.Candidate{
		ContactID:   "c-1",
		Channel:     "dach",
		CampaignID:  "camp-dach",
		CompanyName: "Acme GmbH",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Email:       "ada@acme.io",
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*RestyClient, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewRestyClient(server.URL, "test-key", zap.NewNop())
	if err != nil {
		t.Fatalf("NewRestyClient() error = %v", err)
	}
	return client, server
}

func TestRestyClientEnrollSuccess(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody leadRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(leadResponse{ID: "lead-42", Email: "ada@acme.io"})
	})

	enrichment := &domain.Enrichment{Personalization: "Hi Ada", Category: "SaaS"}
	result, err := client.Enroll(context.Background(), testCandidate(), enrichment)
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	if gotPath != "/api/campaigns/camp-dach/leads" {
		t.Errorf("request path = %q, want campaign-scoped leads path", gotPath)
	}
	if !gotBody.SkipIfInWorkspace || !gotBody.SkipIfInCampaign {
		t.Error("duplicate-skip flags not set on lead request")
	}
	if gotBody.Variables["personalization"] != "Hi Ada" {
		t.Errorf("personalization variable = %q, want %q", gotBody.Variables["personalization"], "Hi Ada")
	}
	if result.LeadID != "lead-42" || result.Duplicate {
		t.Errorf("Enroll() = %+v, want lead-42 non-duplicate", result)
	}
}

func TestRestyClientEnrollDuplicate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "platform skip flag",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(leadResponse{ID: "lead-7", IsSkipped: true})
			},
		},
		{
			name: "conflict status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusConflict)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, _ := newTestClient(t, tt.handler)
			result, err := client.Enroll(context.Background(), testCandidate(), nil)
			if err != nil {
				t.Fatalf("Enroll() error = %v", err)
			}
			if !result.Duplicate {
				t.Errorf("Enroll() = %+v, want duplicate", result)
			}
		})
	}
}

func TestRestyClientEnrollErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		statusCode    int
		body          string
		wantTransient bool
		wantCapacity  bool
	}{
		{name: "service unavailable", statusCode: http.StatusServiceUnavailable, body: "upstream down", wantTransient: true},
		{name: "rate limited", statusCode: http.StatusTooManyRequests, body: "slow down", wantTransient: true},
		{name: "bad request", statusCode: http.StatusBadRequest, body: "invalid email", wantTransient: false},
		{name: "capacity limit", statusCode: http.StatusForbidden, body: "Lead limit reached for this account", wantTransient: false, wantCapacity: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Enroll(context.Background(), testCandidate(), nil)
			if err == nil {
				t.Fatal("Enroll() error = nil, want error")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Enroll() error type = %T, want *APIError", err)
			}
			if apiErr.StatusCode != tt.statusCode {
				t.Errorf("status code = %d, want %d", apiErr.StatusCode, tt.statusCode)
			}
			if IsTransient(err) != tt.wantTransient {
				t.Errorf("IsTransient() = %v, want %v", IsTransient(err), tt.wantTransient)
			}
			if IsCapacityLimit(apiErr.Message) != tt.wantCapacity {
				t.Errorf("IsCapacityLimit() = %v, want %v", IsCapacityLimit(apiErr.Message), tt.wantCapacity)
			}
		})
	}
}

func TestRestyClientEnrollMissingCampaign(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for candidate without campaign")
	})

	candidate := testCandidate()
	candidate.CampaignID = ""
	if _, err := client.Enroll(context.Background(), candidate, nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Enroll() error = %v, want ErrValidation", err)
	}
}

func TestRestyClientIsAddressSuppressed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		email string
		items []map[string]string
		want  bool
	}{
		{
			name:  "exact match",
			email: "ada@acme.io",
			items: []map[string]string{{"value": "ada@acme.io", "type": "email"}},
			want:  true,
		},
		{
			name:  "domain match",
			email: "ada@blocked.io",
			items: []map[string]string{{"value": "blocked.io", "type": "domain"}},
			want:  true,
		},
		{
			name:  "no match",
			email: "ada@acme.io",
			items: []map[string]string{{"value": "other@acme.io", "type": "email"}},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{"items": tt.items})
			})

			got, err := client.IsAddressSuppressed(context.Background(), tt.email)
			if err != nil {
				t.Fatalf("IsAddressSuppressed() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsAddressSuppressed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRestyClientIsAddressSuppressedNotFound(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	got, err := client.IsAddressSuppressed(context.Background(), "ada@acme.io")
	if err != nil {
		t.Fatalf("IsAddressSuppressed() error = %v", err)
	}
	if got {
		t.Error("IsAddressSuppressed() = true, want false on 404")
	}
}

func TestNewRestyClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRestyClient("", "key", zap.NewNop()); err == nil {
		t.Error("NewRestyClient() with empty url, want error")
	}
	if _, err := NewRestyClient("http://localhost:9", "", zap.NewNop()); err == nil {
		t.Error("NewRestyClient() with empty key, want error")
	}
}
