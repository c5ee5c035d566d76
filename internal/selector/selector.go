package selector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/prospectly/assignment-engine/internal/domain"
	"github.com/prospectly/assignment-engine/internal/repository"
	"go.uber.org/zap"
)

// scanMultiplier oversizes the raw row scan so that client-side predicate
// filtering still leaves enough rows to fill the caps.
const scanMultiplier = 5

// Selector produces a capped, channel-balanced candidate list for one batch.
type Selector struct {
	source   repository.CandidateSourceRepository
	channels repository.ChannelRepository
	logger   *zap.Logger
}

func NewSelector(source repository.CandidateSourceRepository, channels repository.ChannelRepository, logger *zap.Logger) (*Selector, error) {
	if source == nil {
		return nil, errors.New("selector: candidate source is required")
	}
	if channels == nil {
		return nil, errors.New("selector: channel repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{source: source, channels: channels, logger: logger}, nil
}

// Select returns up to limits.MaxTotal candidates, no more than
// limits.MaxPerChannel per channel, each bound to its channel's destination
// campaign. The primary precomputed path is tried first; on error it falls
// back to the direct join path with identical filtering semantics.
func (s *Selector) Select(ctx context.Context, limits domain.SelectionLimits) ([]domain.Candidate, error) {
	if limits.MaxTotal <= 0 {
		return nil, fmt.Errorf("%w: max total must be positive", domain.ErrValidation)
	}
	if limits.MaxPerChannel <= 0 {
		return nil, fmt.Errorf("%w: max per channel must be positive", domain.ErrValidation)
	}

	channels, err := s.enabledChannels(ctx, limits.Channels)
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}
	if len(channels) == 0 {
		return nil, nil
	}

	scanLimit := limits.MaxTotal * scanMultiplier
	rows, err := s.source.FromPool(ctx, scanLimit)
	if err != nil {
		s.logger.Warn("candidate pool unavailable, falling back to join path", zap.Error(err))
		rows, err = s.source.FromJoin(ctx, scanLimit)
		if err != nil {
			return nil, fmt.Errorf("candidate join fallback: %w", err)
		}
	}

	return balance(filterRows(rows, channels), limits), nil
}

// LoadCandidates rebuilds the candidate snapshot for a resumed batch,
// preserving the stored selection order. Rows whose routing key no longer
// maps to an enabled channel are returned unbound; the eligibility gate
// skips them as having no target.
func (s *Selector) LoadCandidates(ctx context.Context, ids []string) ([]domain.Candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	channels, err := s.enabledChannels(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}

	rows, err := s.source.ByContactIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reload candidates: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, bindChannel(row, channels))
	}
	return candidates, nil
}

func (s *Selector) enabledChannels(ctx context.Context, scope []string) (map[string]domain.OutreachChannel, error) {
	all, err := s.channels.Enabled(ctx)
	if err != nil {
		return nil, err
	}

	var scoped map[string]struct{}
	if len(scope) > 0 {
		scoped = make(map[string]struct{}, len(scope))
		for _, name := range scope {
			scoped[name] = struct{}{}
		}
	}

	byKey := make(map[string]domain.OutreachChannel, len(all))
	for _, ch := range all {
		if scoped != nil {
			if _, ok := scoped[ch.Name]; !ok {
				continue
			}
		}
		byKey[ch.RoutingKey] = ch
	}
	return byKey, nil
}

func filterRows(rows []domain.CandidateRow, channels map[string]domain.OutreachChannel) []domain.Candidate {
	eligible := make([]domain.Candidate, 0, len(rows))
	for _, row := range rows {
		if !Eligible(row, channels) {
			continue
		}
		eligible = append(eligible, bindChannel(row, channels))
	}
	return eligible
}

// bindChannel stamps the candidate with its channel name and destination
// campaign resolved from the routing key.
func bindChannel(row domain.CandidateRow, channels map[string]domain.OutreachChannel) domain.Candidate {
	c := row.Candidate
	if ch, ok := channels[row.RoutingKey]; ok {
		c.Channel = ch.Name
		c.CampaignID = ch.CampaignID
	}
	return c
}

// balance interleaves candidates channel by channel so no channel exceeds
// its per-channel cap and no channel starves another within MaxTotal.
func balance(candidates []domain.Candidate, limits domain.SelectionLimits) []domain.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	queues := make(map[string][]domain.Candidate)
	order := make([]string, 0)
	for _, c := range candidates {
		if _, seen := queues[c.Channel]; !seen {
			order = append(order, c.Channel)
		}
		queues[c.Channel] = append(queues[c.Channel], c)
	}
	sort.Strings(order)

	selected := make([]domain.Candidate, 0, limits.MaxTotal)
	taken := make(map[string]int, len(order))
	for len(selected) < limits.MaxTotal {
		progressed := false
		for _, channel := range order {
			if len(selected) >= limits.MaxTotal {
				break
			}
			if taken[channel] >= limits.MaxPerChannel || len(queues[channel]) == 0 {
				continue
			}
			selected = append(selected, queues[channel][0])
			queues[channel] = queues[channel][1:]
			taken[channel]++
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return selected
}
