package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prospectly/assignment-engine/internal/domain"
	"github.com/prospectly/assignment-engine/internal/enrich"
	"github.com/prospectly/assignment-engine/internal/observability"
	"github.com/prospectly/assignment-engine/internal/outreach"
	"github.com/prospectly/assignment-engine/internal/ratelimit"
	"github.com/prospectly/assignment-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultChunkSize       = 10
	defaultBreakerCooldown = 4 * time.Hour
)

// Run modes for metrics attribution.
const (
	RunModeScheduled = "scheduled"
	RunModeManual    = "manual"
	RunModeChannel   = "channel"
)

// CandidateSelector is the selection port the orchestrator drives.
type CandidateSelector interface {
	Select(ctx context.Context, limits domain.SelectionLimits) ([]domain.Candidate, error)
	LoadCandidates(ctx context.Context, ids []string) ([]domain.Candidate, error)
}

// EligibilityGate runs the cheap pre-enrichment checks for one candidate.
type EligibilityGate interface {
	Check(ctx context.Context, candidate domain.Candidate) domain.GateDecision
}

// RunOutcome summarizes one orchestrator invocation.
type RunOutcome struct {
	BatchID        string
	Status         domain.BatchStatus
	BreakerSkipped bool
	Disabled       bool
	NoCandidates   bool
	Processed      int
	Added          int
	Skipped        int
	Errors         int
	Remaining      int
}

// Orchestrator is the batch state machine. One invocation processes at most
// one chunk of one batch: it resumes an interrupted batch when one exists,
// otherwise selects fresh candidates, then works through them sequentially,
// persisting progress after every single candidate so a crash at any point
// loses at most the candidate in flight.
type Orchestrator struct {
	batches   repository.BatchRepository
	contacts  repository.ContactRepository
	results   repository.ResultRepository
	settings  repository.SettingsRepository
	selector  CandidateSelector
	gate      EligibilityGate
	generator enrich.Generator
	enroller  outreach.Client
	limiter   ratelimit.RateLimiter
	metrics   *observability.Metrics
	logger    *zap.Logger

	chunkSize       int
	breakerCooldown time.Duration
	now             func() time.Time
	sleep           func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(
	batches repository.BatchRepository,
	contacts repository.ContactRepository,
	results repository.ResultRepository,
	settings repository.SettingsRepository,
	selector CandidateSelector,
	gate EligibilityGate,
	generator enrich.Generator,
	enroller outreach.Client,
	limiter ratelimit.RateLimiter,
	chunkSize int,
	breakerCooldown time.Duration,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if batches == nil {
		return nil, errors.New("orchestrator: batch repository is required")
	}
	if contacts == nil {
		return nil, errors.New("orchestrator: contact repository is required")
	}
	if results == nil {
		return nil, errors.New("orchestrator: result repository is required")
	}
	if settings == nil {
		return nil, errors.New("orchestrator: settings repository is required")
	}
	if selector == nil {
		return nil, errors.New("orchestrator: selector is required")
	}
	if gate == nil {
		return nil, errors.New("orchestrator: eligibility gate is required")
	}
	if generator == nil {
		return nil, errors.New("orchestrator: generator is required")
	}
	if enroller == nil {
		return nil, errors.New("orchestrator: outreach client is required")
	}
	if limiter == nil {
		return nil, errors.New("orchestrator: rate limiter is required")
	}
	if chunkSize < 1 {
		chunkSize = defaultChunkSize
	}
	if breakerCooldown <= 0 {
		breakerCooldown = defaultBreakerCooldown
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		batches:         batches,
		contacts:        contacts,
		results:         results,
		settings:        settings,
		selector:        selector,
		gate:            gate,
		generator:       generator,
		enroller:        enroller,
		limiter:         limiter,
		logger:          logger,
		chunkSize:       chunkSize,
		breakerCooldown: breakerCooldown,
		now:             time.Now,
		sleep:           sleepWithContext,
	}, nil
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

// RunOnce executes one scheduled pipeline invocation.
func (o *Orchestrator) RunOnce(ctx context.Context) (*RunOutcome, error) {
	return o.run(ctx, RunModeScheduled, nil, nil)
}

// RunManual executes one operator-triggered invocation.
func (o *Orchestrator) RunManual(ctx context.Context) (*RunOutcome, error) {
	return o.run(ctx, RunModeManual, nil, nil)
}

// RunChannels runs one channel-scoped batch per named channel in parallel.
// The batches share an orchestration group ID, which keeps them out of the
// single-batch resume path.
func (o *Orchestrator) RunChannels(ctx context.Context, channels []string) ([]*RunOutcome, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: at least one channel is required", domain.ErrValidation)
	}

	orchestrationID := uuid.NewString()
	outcomes := make([]*RunOutcome, len(channels))

	g, groupCtx := errgroup.WithContext(ctx)
	for i, channel := range channels {
		g.Go(func() error {
			outcome, err := o.run(groupCtx, RunModeChannel, []string{channel}, &orchestrationID)
			outcomes[i] = outcome
			return err
		})
	}
	return outcomes, g.Wait()
}

func (o *Orchestrator) run(ctx context.Context, mode string, channels []string, orchestrationID *string) (*RunOutcome, error) {
	settings := o.loadSettings(ctx)
	if !settings.Enabled {
		o.logger.Info("pipeline disabled, skipping run")
		return &RunOutcome{Disabled: true}, nil
	}

	if outcome := o.breakerSkip(ctx); outcome != nil {
		return outcome, nil
	}

	channelScoped := len(channels) > 0

	var batch *domain.Batch
	var candidates []domain.Candidate
	var err error
	if !channelScoped {
		batch, candidates, err = o.resumeBatch(ctx)
		if err != nil {
			return nil, err
		}
	}
	if batch == nil {
		batch, candidates, err = o.createBatch(ctx, settings, channels, orchestrationID)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return &RunOutcome{NoCandidates: true}, nil
		}
	}

	ctx = observability.WithBatchID(ctx, batch.ID)
	logger := o.logger.With(zap.String("batchId", batch.ID))

	if o.metrics != nil {
		o.metrics.IncBatchStarted(mode)
		o.metrics.SetBatchInFlight(true)
		defer o.metrics.SetBatchInFlight(false)
	}

	// A channel-scoped batch is small by construction and runs in one chunk.
	chunk := candidates
	if !channelScoped && len(chunk) > o.chunkSize {
		chunk = chunk[:o.chunkSize]
	}

	logger.Info("processing batch chunk",
		zap.String("mode", mode),
		zap.Int("total", batch.Total),
		zap.Int("remaining", len(candidates)),
		zap.Int("chunk", len(chunk)),
	)

	outcome := &RunOutcome{BatchID: batch.ID, Status: domain.BatchStatusProcessing}
	procErr := o.processChunk(ctx, batch, chunk, settings, outcome, logger)
	if procErr != nil {
		return outcome, o.recordBatchFailure(ctx, batch.ID, procErr, outcome, logger)
	}

	outcome.Remaining = len(candidates) - outcome.Processed
	if outcome.Status == domain.BatchStatusProcessing && outcome.Remaining == 0 {
		if err := o.batches.Finalize(ctx, batch.ID, domain.BatchStatusCompleted, o.now().UTC()); err != nil {
			logger.Error("batch finalize failed", zap.Error(err))
		} else {
			outcome.Status = domain.BatchStatusCompleted
		}
	}

	logger.Info("batch chunk done",
		zap.String("status", outcome.Status.String()),
		zap.Int("processed", outcome.Processed),
		zap.Int("added", outcome.Added),
		zap.Int("skipped", outcome.Skipped),
		zap.Int("errors", outcome.Errors),
		zap.Int("remaining", outcome.Remaining),
	)
	return outcome, nil
}

// loadSettings falls back to defaults when the settings store has never been
// written or is unreachable.
func (o *Orchestrator) loadSettings(ctx context.Context) domain.Settings {
	stored, err := o.settings.Get(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn("settings load failed, using defaults", zap.Error(err))
		}
		return domain.DefaultSettings()
	}
	return *stored
}

// breakerSkip returns a synthetic outcome when the most recent lead-limited
// batch is still inside the cooldown window. No selection or processing runs.
func (o *Orchestrator) breakerSkip(ctx context.Context) *RunOutcome {
	last, err := o.batches.LastLeadLimited(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn("circuit breaker lookup failed", zap.Error(err))
		}
		return nil
	}

	elapsed := o.now().Sub(last.UpdatedAt)
	if elapsed >= o.breakerCooldown {
		return nil
	}

	o.logger.Info("circuit breaker open, skipping run",
		zap.String("batchId", last.ID),
		zap.Duration("elapsed", elapsed),
		zap.Duration("cooldown", o.breakerCooldown),
	)
	if o.metrics != nil {
		o.metrics.IncBreakerSkip()
	}
	return &RunOutcome{
		BatchID:        last.ID,
		Status:         domain.BatchStatusLeadLimitReached,
		BreakerSkipped: true,
	}
}

func (o *Orchestrator) resumeBatch(ctx context.Context) (*domain.Batch, []domain.Candidate, error) {
	batch, err := o.batches.FindResumable(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find resumable batch: %w", err)
	}

	remaining := batch.RemainingIDs()
	if len(remaining) == 0 {
		// Fully processed but never finalized, likely a crash between the
		// last append and the finalize.
		if ferr := o.batches.Finalize(ctx, batch.ID, domain.BatchStatusCompleted, o.now().UTC()); ferr != nil {
			o.logger.Warn("stale batch finalize failed", zap.String("batchId", batch.ID), zap.Error(ferr))
		}
		return nil, nil, nil
	}

	candidates, err := o.selector.LoadCandidates(ctx, remaining)
	if err != nil {
		return nil, nil, fmt.Errorf("reload candidate snapshot: %w", err)
	}

	o.logger.Info("resuming batch",
		zap.String("batchId", batch.ID),
		zap.Int("total", batch.Total),
		zap.Int("remaining", len(remaining)),
	)
	return batch, candidates, nil
}

func (o *Orchestrator) createBatch(ctx context.Context, settings domain.Settings, channels []string, orchestrationID *string) (*domain.Batch, []domain.Candidate, error) {
	limits := domain.SelectionLimits{
		MaxTotal:      settings.MaxTotalContacts,
		MaxPerChannel: settings.MaxPerChannel,
		Channels:      channels,
	}

	candidates, err := o.selector.Select(ctx, limits)
	if err != nil {
		// Selection failures are not retried inline; the run is a no-op.
		o.logger.Warn("candidate selection failed, treating run as no-op", zap.Error(err))
		return nil, nil, nil
	}
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	ids := make([]string, 0, len(candidates))
	breakdown := make(map[string]int)
	for _, c := range candidates {
		ids = append(ids, c.ContactID)
		breakdown[c.Channel]++
	}

	batch := &domain.Batch{
		ID:               uuid.NewString(),
		Status:           domain.BatchStatusProcessing,
		OrchestrationID:  orchestrationID,
		Total:            len(candidates),
		ChannelBreakdown: breakdown,
		CandidateIDs:     ids,
		ProcessedIDs:     []string{},
		StartedAt:        o.now().UTC(),
	}
	if err := o.batches.Upsert(ctx, batch); err != nil {
		return nil, nil, fmt.Errorf("create batch: %w", err)
	}

	o.logger.Info("created batch",
		zap.String("batchId", batch.ID),
		zap.Int("total", batch.Total),
		zap.Any("channelBreakdown", breakdown),
	)
	return batch, candidates, nil
}

func (o *Orchestrator) processChunk(
	ctx context.Context,
	batch *domain.Batch,
	chunk []domain.Candidate,
	settings domain.Settings,
	outcome *RunOutcome,
	logger *zap.Logger,
) error {
	for i, candidate := range chunk {
		status, err := o.batches.GetStatus(ctx, batch.ID)
		if err != nil {
			logger.Warn("cancellation poll failed", zap.Error(err))
		} else if status == domain.BatchStatusCancelled {
			logger.Info("batch cancelled by operator, stopping chunk",
				zap.Int("processedThisRun", outcome.Processed))
			outcome.Status = domain.BatchStatusCancelled
			return nil
		}

		delta, procErr := o.processCandidate(ctx, batch, candidate, logger)
		if procErr != nil {
			if isCapacityError(procErr) {
				// Hard platform cap. The candidate in flight and everything
				// after it stay unprocessed for the next run after cooldown;
				// the result row only records why processing stopped here.
				o.recordCapacityStop(ctx, batch, candidate, procErr, logger)
				message := procErr.Error()
				if uerr := o.batches.UpdateStatus(ctx, batch.ID, domain.BatchStatusLeadLimitReached, &message); uerr != nil {
					if errors.Is(uerr, domain.ErrConflict) {
						logger.Info("batch already terminal, skipping lead limit stamp")
					} else {
						logger.Error("lead limit status update failed", zap.Error(uerr))
					}
				}
				logger.Warn("lead limit reached, fast-failing chunk",
					zap.String("contactId", candidate.ContactID),
					zap.Error(procErr))
				outcome.Status = domain.BatchStatusLeadLimitReached
				return nil
			}
			return procErr
		}

		if err := o.batches.AppendProcessed(ctx, batch.ID, candidate.ContactID, delta); err != nil {
			return fmt.Errorf("append processed id: %w", err)
		}
		outcome.Processed++
		outcome.Added += delta.Added
		outcome.Skipped += delta.Skipped
		outcome.Errors += delta.Errors

		if i < len(chunk)-1 && settings.Delay > 0 {
			if err := o.sleep(ctx, settings.Delay); err != nil {
				return err
			}
		}
	}
	return nil
}

// processCandidate runs gate, enrichment and enrollment for one candidate and
// records exactly one ProcessingResult. A non-nil error aborts the chunk;
// ordinary per-candidate failures are folded into the returned delta instead.
func (o *Orchestrator) processCandidate(
	ctx context.Context,
	batch *domain.Batch,
	candidate domain.Candidate,
	logger *zap.Logger,
) (repository.ProgressDelta, error) {
	var delta repository.ProgressDelta

	result := &domain.ProcessingResult{
		ID:        uuid.NewString(),
		BatchID:   batch.ID,
		ContactID: candidate.ContactID,
		Channel:   candidate.Channel,
		CreatedAt: o.now().UTC(),
	}

	decision := o.gate.Check(ctx, candidate)
	if decision.CRMOrgID != "" {
		crmOrgID := decision.CRMOrgID
		result.CRMOrgID = &crmOrgID
	}

	if !decision.Eligible {
		result.Status = decision.Status
		if decision.Reason != "" {
			reason := decision.Reason
			result.SkipReason = &reason
		}
		delta.Skipped = 1
		return delta, o.recordResult(ctx, result)
	}

	if err := o.limiter.Wait(ctx, candidate.Channel); err != nil {
		if ctx.Err() != nil {
			return delta, ctx.Err()
		}
		logger.Warn("rate limiter unavailable, proceeding", zap.Error(err))
	}

	enrichStart := o.now()
	enrichment, err := o.generator.Generate(ctx, candidate)
	enrichDuration := o.now().Sub(enrichStart)
	result.EnrichmentMillis = enrichDuration.Milliseconds()
	if o.metrics != nil {
		o.metrics.ObserveEnrichmentDuration(candidate.Channel, enrichDuration)
	}
	if err != nil {
		return delta, fmt.Errorf("enrichment aborted: %w", err)
	}
	if enrichment == nil {
		// Retries exhausted. The candidate stays eligible for the next run.
		result.Status = domain.ProcessingSkippedEnrichmentFailed
		reason := "enrichment failed after retries"
		result.SkipReason = &reason
		delta.Skipped = 1
		return delta, o.recordResult(ctx, result)
	}
	result.Enrichment = enrichment

	enrollStart := o.now()
	enrollResult, enrollErr := o.enroller.Enroll(ctx, candidate, enrichment)
	if o.metrics != nil {
		o.metrics.ObserveEnrollmentDuration(candidate.Channel, o.now().Sub(enrollStart))
	}

	switch {
	case enrollErr != nil:
		if isCapacityError(enrollErr) {
			return delta, enrollErr
		}
		message := enrollErr.Error()
		result.Status = domain.ProcessingError
		result.Error = &message
		delta.Errors = 1
		o.handleEnrollmentFailure(ctx, candidate, enrollErr, logger)
	case enrollResult.Duplicate:
		// Link the campaign anyway so the contact is never re-selected.
		result.Status = domain.ProcessingSkippedDuplicate
		reason := "address already known to outreach platform"
		result.SkipReason = &reason
		delta.Skipped = 1
		if err := o.contacts.LinkCampaign(ctx, candidate.ContactID, candidate.CampaignID); err != nil {
			logger.Error("campaign link on duplicate failed",
				zap.String("contactId", candidate.ContactID),
				zap.Error(err))
		}
	default:
		result.Status = domain.ProcessingAdded
		leadID := enrollResult.LeadID
		result.LeadID = &leadID
		delta.Added = 1
		if err := o.contacts.MarkEnrolled(ctx, candidate.ContactID, candidate.CampaignID, leadID, o.now().UTC()); err != nil {
			logger.Error("contact enrollment write failed",
				zap.String("contactId", candidate.ContactID),
				zap.Error(err))
		}
	}

	return delta, o.recordResult(ctx, result)
}

// handleEnrollmentFailure updates the contact's future eligibility. Transient
// failures earn a retry counter bump (the repository disqualifies at the
// threshold); permanent failures disqualify immediately.
func (o *Orchestrator) handleEnrollmentFailure(ctx context.Context, candidate domain.Candidate, enrollErr error, logger *zap.Logger) {
	note := enrollErr.Error()

	if isTransientError(enrollErr) {
		count, err := o.contacts.IncrementRetry(ctx, candidate.ContactID, note)
		if err != nil {
			logger.Error("retry counter update failed",
				zap.String("contactId", candidate.ContactID),
				zap.Error(err))
			return
		}
		logger.Warn("transient enrollment failure",
			zap.String("contactId", candidate.ContactID),
			zap.Int("retryCount", count),
			zap.Error(enrollErr))
		return
	}

	if err := o.contacts.Disqualify(ctx, candidate.ContactID, note); err != nil {
		logger.Error("contact disqualification failed",
			zap.String("contactId", candidate.ContactID),
			zap.Error(err))
		return
	}
	logger.Warn("contact disqualified after permanent enrollment failure",
		zap.String("contactId", candidate.ContactID),
		zap.Error(enrollErr))
}

// recordCapacityStop leaves an audit row for the candidate whose enrollment
// hit the platform lead limit. The candidate is not marked processed, so a
// resumed run retries it and appends its real outcome later.
func (o *Orchestrator) recordCapacityStop(ctx context.Context, batch *domain.Batch, candidate domain.Candidate, procErr error, logger *zap.Logger) {
	message := procErr.Error()
	result := &domain.ProcessingResult{
		ID:        uuid.NewString(),
		BatchID:   batch.ID,
		ContactID: candidate.ContactID,
		Channel:   candidate.Channel,
		Status:    domain.ProcessingSkippedChannelLimit,
		Error:     &message,
		CreatedAt: o.now().UTC(),
	}
	if err := o.results.Create(ctx, result); err != nil {
		logger.Warn("capacity stop result write failed", zap.Error(err))
	}
}

func (o *Orchestrator) recordResult(ctx context.Context, result *domain.ProcessingResult) error {
	if err := o.results.Create(ctx, result); err != nil {
		return fmt.Errorf("record processing result: %w", err)
	}
	if o.metrics != nil {
		o.metrics.IncCandidateProcessed(result.Channel, strings.ToLower(result.Status.String()))
	}
	return nil
}

// recordBatchFailure stamps the batch with the chunk-level error. Failures
// that look like the host cutting the run short leave the batch resumable;
// anything else marks it failed.
func (o *Orchestrator) recordBatchFailure(ctx context.Context, batchID string, procErr error, outcome *RunOutcome, logger *zap.Logger) error {
	message := procErr.Error()
	writeCtx := context.WithoutCancel(ctx)

	stamp := domain.BatchStatusFailed
	if isResumableError(procErr) {
		logger.Warn("chunk interrupted, batch stays resumable", zap.Error(procErr))
		stamp = domain.BatchStatusProcessing
	} else {
		logger.Error("chunk failed, marking batch failed", zap.Error(procErr))
	}

	if err := o.batches.UpdateStatus(writeCtx, batchID, stamp, &message); err != nil {
		// A terminal status written concurrently (operator cancellation,
		// another worker's lead-limit stamp) wins over the failure stamp.
		if errors.Is(err, domain.ErrConflict) {
			if current, serr := o.batches.GetStatus(writeCtx, batchID); serr == nil {
				stamp = current
			}
			logger.Info("batch already terminal, keeping its status",
				zap.String("status", stamp.String()))
		} else {
			logger.Error("failure status update failed", zap.Error(err))
		}
	}
	outcome.Status = stamp
	return procErr
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
