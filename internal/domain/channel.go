package domain

import (
	"fmt"
	"strings"
	"time"
)

// OutreachChannel is a regional/topical outreach destination with its own
// capacity cap and linked destination campaign.
type OutreachChannel struct {
	ID         string
	Name       string
	RoutingKey string
	CampaignID string
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c *OutreachChannel) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: channel name is required", ErrValidation)
	}
	if strings.TrimSpace(c.RoutingKey) == "" {
		return fmt.Errorf("%w: channel routing key is required", ErrValidation)
	}
	if strings.TrimSpace(c.CampaignID) == "" {
		return fmt.Errorf("%w: channel campaign id is required", ErrValidation)
	}
	return nil
}
