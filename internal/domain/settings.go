package domain

import (
	"fmt"
	"time"
)

// Settings is operator-controlled pipeline configuration, loaded at run start.
// The pipeline never mutates it.
type Settings struct {
	MaxTotalContacts int
	MaxPerChannel    int
	Enabled          bool
	Delay            time.Duration
	UpdatedAt        time.Time
}

// DefaultSettings is the fallback used when the settings store is unavailable.
func DefaultSettings() Settings {
	return Settings{
		MaxTotalContacts: 100,
		MaxPerChannel:    25,
		Enabled:          true,
		Delay:            2 * time.Second,
	}
}

func (s *Settings) Validate() error {
	if s.MaxTotalContacts < 1 {
		return fmt.Errorf("%w: max total contacts must be >= 1", ErrValidation)
	}
	if s.MaxPerChannel < 1 {
		return fmt.Errorf("%w: max per channel must be >= 1", ErrValidation)
	}
	if s.Delay < 0 {
		return fmt.Errorf("%w: delay must not be negative", ErrValidation)
	}
	return nil
}
