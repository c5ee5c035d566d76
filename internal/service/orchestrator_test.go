package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prospectly/assignment-engine/internal/domain"
	"github.com/prospectly/assignment-engine/internal/outreach"
	"github.com/prospectly/assignment-engine/internal/repository"
	"go.uber.org/zap"
)

type fakeBatchRepo struct {
	mu                sync.Mutex
	batches           map[string]*domain.Batch
	findResumableErr  error
	appendErr         error
	onAppend          func(b *domain.Batch)
	statusOverride    func(callCount int, b *domain.Batch) domain.BatchStatus
	statusPollCount   int
	selectLeadLimited *domain.Batch
	invariantViolated bool
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{batches: make(map[string]*domain.Batch)}
}

func (f *fakeBatchRepo) Upsert(ctx context.Context, b *domain.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *b
	f.batches[b.ID] = &copied
	return nil
}

func (f *fakeBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (f *fakeBatchRepo) GetStatus(ctx context.Context, id string) (domain.BatchStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	f.statusPollCount++
	if f.statusOverride != nil {
		return f.statusOverride(f.statusPollCount, b), nil
	}
	return b.Status, nil
}

func (f *fakeBatchRepo) FindResumable(ctx context.Context) (*domain.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findResumableErr != nil {
		return nil, f.findResumableErr
	}
	var newest *domain.Batch
	for _, b := range f.batches {
		if b.Status != domain.BatchStatusProcessing || b.OrchestrationID != nil {
			continue
		}
		if newest == nil || b.StartedAt.After(newest.StartedAt) {
			newest = b
		}
	}
	if newest == nil {
		return nil, domain.ErrNotFound
	}
	copied := *newest
	return &copied, nil
}

func (f *fakeBatchRepo) LastLeadLimited(ctx context.Context) (*domain.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectLeadLimited == nil {
		return nil, domain.ErrNotFound
	}
	copied := *f.selectLeadLimited
	return &copied, nil
}

func (f *fakeBatchRepo) AppendProcessed(ctx context.Context, id string, contactID string, delta repository.ProgressDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	if f.onAppend != nil {
		f.onAppend(b)
	}
	if f.appendErr != nil {
		return f.appendErr
	}
	if b.Status != domain.BatchStatusProcessing {
		return domain.ErrConflict
	}
	b.ProcessedIDs = append(b.ProcessedIDs, contactID)
	b.Processed++
	b.Added += delta.Added
	b.Skipped += delta.Skipped
	b.Errors += delta.Errors
	b.UpdatedAt = time.Now().UTC()
	if !b.CountersConsistent() {
		f.invariantViolated = true
	}
	return nil
}

func (f *fakeBatchRepo) UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, lastError *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Status.IsTerminal() {
		return domain.ErrConflict
	}
	b.Status = status
	b.LastError = lastError
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeBatchRepo) Finalize(ctx context.Context, id string, status domain.BatchStatus, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Status.IsTerminal() {
		return domain.ErrConflict
	}
	b.Status = status
	b.CompletedAt = &completedAt
	return nil
}

func (f *fakeBatchRepo) List(ctx context.Context, limit int) ([]domain.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Batch, 0, len(f.batches))
	for _, b := range f.batches {
		out = append(out, *b)
	}
	return out, nil
}

func (f *fakeBatchRepo) single(t *testing.T) *domain.Batch {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) != 1 {
		t.Fatalf("batch count = %d, want 1", len(f.batches))
	}
	for _, b := range f.batches {
		copied := *b
		return &copied
	}
	return nil
}

type fakeContactRepo struct {
	mu           sync.Mutex
	retries      map[string]int
	disqualified map[string]bool
	enrolled     map[string]string
	linked       map[string]string
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{
		retries:      make(map[string]int),
		disqualified: make(map[string]bool),
		enrolled:     make(map[string]string),
		linked:       make(map[string]string),
	}
}

func (f *fakeContactRepo) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	return &domain.Contact{ID: id}, nil
}

func (f *fakeContactRepo) LinkCampaign(ctx context.Context, id string, campaignID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linked[id] = campaignID
	return nil
}

func (f *fakeContactRepo) MarkEnrolled(ctx context.Context, id string, campaignID string, leadID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrolled[id] = leadID
	f.linked[id] = campaignID
	return nil
}

func (f *fakeContactRepo) IncrementRetry(ctx context.Context, id string, note string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries[id]++
	if f.retries[id] >= repository.MaxContactRetries {
		f.disqualified[id] = true
	}
	return f.retries[id], nil
}

func (f *fakeContactRepo) Disqualify(ctx context.Context, id string, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disqualified[id] = true
	return nil
}

type fakeResultRepo struct {
	mu        sync.Mutex
	results   []domain.ProcessingResult
	createErr error
}

func (f *fakeResultRepo) Create(ctx context.Context, r *domain.ProcessingResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.results = append(f.results, *r)
	return nil
}

func (f *fakeResultRepo) ByBatchID(ctx context.Context, batchID string) ([]domain.ProcessingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ProcessingResult
	for _, r := range f.results {
		if r.BatchID == batchID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeResultRepo) byContact(contactID string) []domain.ProcessingResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ProcessingResult
	for _, r := range f.results {
		if r.ContactID == contactID {
			out = append(out, r)
		}
	}
	return out
}

type fakeSettingsRepo struct {
	settings *domain.Settings
	err      error
}

func (f *fakeSettingsRepo) Get(ctx context.Context) (*domain.Settings, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.settings == nil {
		return nil, domain.ErrNotFound
	}
	copied := *f.settings
	return &copied, nil
}

func (f *fakeSettingsRepo) Update(ctx context.Context, s *domain.Settings) error {
	copied := *s
	f.settings = &copied
	return nil
}

type fakeSelector struct {
	mu          sync.Mutex
	candidates  []domain.Candidate
	selectErr   error
	selectCalls int
	loadCalls   int
	lastLimits  domain.SelectionLimits
	lastLoadIDs []string
}

func (f *fakeSelector) Select(ctx context.Context, limits domain.SelectionLimits) ([]domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectCalls++
	f.lastLimits = limits
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	if len(limits.Channels) == 0 {
		return f.candidates, nil
	}
	scoped := make(map[string]struct{}, len(limits.Channels))
	for _, ch := range limits.Channels {
		scoped[ch] = struct{}{}
	}
	var out []domain.Candidate
	for _, c := range f.candidates {
		if _, ok := scoped[c.Channel]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSelector) LoadCandidates(ctx context.Context, ids []string) ([]domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	f.lastLoadIDs = append([]string(nil), ids...)
	byID := make(map[string]domain.Candidate, len(f.candidates))
	for _, c := range f.candidates {
		byID[c.ContactID] = c
	}
	var out []domain.Candidate
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeGate struct {
	mu        sync.Mutex
	decisions map[string]domain.GateDecision
	calls     []string
}

func (f *fakeGate) Check(ctx context.Context, candidate domain.Candidate) domain.GateDecision {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, candidate.ContactID)
	if d, ok := f.decisions[candidate.ContactID]; ok {
		return d
	}
	return domain.PassDecision("")
}

type fakeGenerator struct {
	mu      sync.Mutex
	calls   []string
	payload *domain.Enrichment
	err     error
	fail    bool
}

func (f *fakeGenerator) Generate(ctx context.Context, candidate domain.Candidate) (*domain.Enrichment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, candidate.ContactID)
	if f.err != nil {
		return nil, f.err
	}
	if f.fail {
		return nil, nil
	}
	if f.payload != nil {
		copied := *f.payload
		return &copied, nil
	}
	return &domain.Enrichment{Personalization: "Hello " + candidate.FirstName}, nil
}

type fakeEnroller struct {
	mu    sync.Mutex
	calls []string
	fn    func(candidate domain.Candidate) (*outreach.EnrollmentResult, error)
}

func (f *fakeEnroller) Enroll(ctx context.Context, candidate domain.Candidate, enrichment *domain.Enrichment) (*outreach.EnrollmentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, candidate.ContactID)
	if f.fn != nil {
		return f.fn(candidate)
	}
	return &outreach.EnrollmentResult{LeadID: "lead-" + candidate.ContactID}, nil
}

func (f *fakeEnroller) IsAddressSuppressed(ctx context.Context, email string) (bool, error) {
	return false, nil
}

type fakeLimiter struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (f *fakeLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	return true, nil
}

func (f *fakeLimiter) Wait(ctx context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
	return f.err
}

type orchestratorFixture struct {
	batches   *fakeBatchRepo
	contacts  *fakeContactRepo
	results   *fakeResultRepo
	settings  *fakeSettingsRepo
	selector  *fakeSelector
	gate      *fakeGate
	generator *fakeGenerator
	enroller  *fakeEnroller
	limiter   *fakeLimiter
}

func candidate(contactID, channel string) domain.Candidate {
	return domain.Candidate{
		ContactID:   contactID,
		CompanyID:   "co-" + contactID,
		CompanyName: "Acme " + contactID,
		Channel:     channel,
		CampaignID:  "camp-" + channel,
		FirstName:   "Ada",
		Email:       contactID + "@acme.io",
	}
}

func newFixture(candidates ...domain.Candidate) *orchestratorFixture {
	return &orchestratorFixture{
		batches:   newFakeBatchRepo(),
		contacts:  newFakeContactRepo(),
		results:   &fakeResultRepo{},
		settings:  &fakeSettingsRepo{},
		selector:  &fakeSelector{candidates: candidates},
		gate:      &fakeGate{decisions: make(map[string]domain.GateDecision)},
		generator: &fakeGenerator{},
		enroller:  &fakeEnroller{},
		limiter:   &fakeLimiter{},
	}
}

func (fx *orchestratorFixture) orchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	o, err := NewOrchestrator(
		fx.batches,
		fx.contacts,
		fx.results,
		fx.settings,
		fx.selector,
		fx.gate,
		fx.generator,
		fx.enroller,
		fx.limiter,
		10,
		4*time.Hour,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	o.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return o
}

func TestRunOnceEndToEndAdded(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"))
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if outcome.Status != domain.BatchStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", outcome.Status)
	}
	if outcome.Added != 1 || outcome.Processed != 1 {
		t.Errorf("outcome = %+v, want 1 processed 1 added", outcome)
	}

	batch := fx.batches.single(t)
	if batch.Status != domain.BatchStatusCompleted || batch.Added != 1 {
		t.Errorf("persisted batch = %+v, want completed with 1 added", batch)
	}
	if batch.CompletedAt == nil {
		t.Error("completed batch has no completion timestamp")
	}

	if fx.contacts.enrolled["c-1"] != "lead-c-1" {
		t.Errorf("contact not marked enrolled: %v", fx.contacts.enrolled)
	}
	if fx.contacts.linked["c-1"] != "camp-dach" {
		t.Errorf("contact not linked to campaign: %v", fx.contacts.linked)
	}

	results := fx.results.byContact("c-1")
	if len(results) != 1 || results[0].Status != domain.ProcessingAdded {
		t.Fatalf("results = %+v, want exactly one ADDED", results)
	}
	if results[0].LeadID == nil || *results[0].LeadID != "lead-c-1" {
		t.Errorf("result lead id = %v, want lead-c-1", results[0].LeadID)
	}
}

func TestRunOnceCustomerProtectedSkipsExpensiveCalls(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"))
	decision := domain.SkipDecision(domain.ProcessingSkippedCustomer, "company matches crm customer org-9")
	decision.CRMOrgID = "org-9"
	fx.gate.decisions["c-1"] = decision
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if outcome.Skipped != 1 || outcome.Added != 0 {
		t.Errorf("outcome = %+v, want 1 skipped", outcome)
	}
	if len(fx.generator.calls) != 0 {
		t.Errorf("generator calls = %v, want none", fx.generator.calls)
	}
	if len(fx.enroller.calls) != 0 {
		t.Errorf("enroller calls = %v, want none", fx.enroller.calls)
	}

	results := fx.results.byContact("c-1")
	if len(results) != 1 || results[0].Status != domain.ProcessingSkippedCustomer {
		t.Fatalf("results = %+v, want one SKIPPED_CUSTOMER_PROTECTED", results)
	}
	if results[0].CRMOrgID == nil || *results[0].CRMOrgID != "org-9" {
		t.Errorf("result crm org id = %v, want org-9", results[0].CRMOrgID)
	}
}

func TestRunOnceDuplicateLinksCampaign(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"))
	fx.enroller.fn = func(c domain.Candidate) (*outreach.EnrollmentResult, error) {
		return &outreach.EnrollmentResult{Duplicate: true}, nil
	}
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if outcome.Skipped != 1 {
		t.Errorf("outcome = %+v, want 1 skipped", outcome)
	}
	if fx.contacts.linked["c-1"] != "camp-dach" {
		t.Errorf("duplicate contact not linked to campaign: %v", fx.contacts.linked)
	}
	if len(fx.contacts.enrolled) != 0 {
		t.Errorf("duplicate contact marked enrolled: %v", fx.contacts.enrolled)
	}

	results := fx.results.byContact("c-1")
	if len(results) != 1 || results[0].Status != domain.ProcessingSkippedDuplicate {
		t.Fatalf("results = %+v, want one SKIPPED_DUPLICATE", results)
	}
}

func TestRunOnceEnrichmentFailureSkipsWithoutDisqualifying(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"))
	fx.generator.fail = true
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if outcome.Skipped != 1 {
		t.Errorf("outcome = %+v, want 1 skipped", outcome)
	}
	if len(fx.enroller.calls) != 0 {
		t.Errorf("enroller calls = %v, want none after enrichment failure", fx.enroller.calls)
	}
	if fx.contacts.disqualified["c-1"] {
		t.Error("contact disqualified after enrichment failure, want still eligible")
	}

	results := fx.results.byContact("c-1")
	if len(results) != 1 || results[0].Status != domain.ProcessingSkippedEnrichmentFailed {
		t.Fatalf("results = %+v, want one SKIPPED_ENRICHMENT_FAILED", results)
	}
}

func TestTransientFailureDisqualifiesOnThirdStrike(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"))
	fx.enroller.fn = func(c domain.Candidate) (*outreach.EnrollmentResult, error) {
		return nil, &outreach.APIError{StatusCode: 503, Message: "service unavailable", Transient: true}
	}
	o := fx.orchestrator(t)

	for run := 1; run <= 3; run++ {
		outcome, err := o.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce() run %d error = %v", run, err)
		}
		if outcome.Errors != 1 {
			t.Fatalf("run %d outcome = %+v, want 1 error", run, outcome)
		}

		wantDisqualified := run == 3
		if fx.contacts.disqualified["c-1"] != wantDisqualified {
			t.Fatalf("run %d disqualified = %v, want %v", run, fx.contacts.disqualified["c-1"], wantDisqualified)
		}
		if fx.contacts.retries["c-1"] != run {
			t.Fatalf("run %d retry count = %d, want %d", run, fx.contacts.retries["c-1"], run)
		}
	}
}

func TestPermanentFailureDisqualifiesImmediately(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"))
	fx.enroller.fn = func(c domain.Candidate) (*outreach.EnrollmentResult, error) {
		return nil, &outreach.APIError{StatusCode: 400, Message: "invalid email"}
	}
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if outcome.Errors != 1 {
		t.Errorf("outcome = %+v, want 1 error", outcome)
	}
	if !fx.contacts.disqualified["c-1"] {
		t.Error("contact not disqualified after permanent failure")
	}
	if fx.contacts.retries["c-1"] != 0 {
		t.Errorf("retry count = %d, want 0 for permanent failure", fx.contacts.retries["c-1"])
	}
}

func TestCapacityLimitFastFailsChunk(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"), candidate("c-2", "dach"), candidate("c-3", "dach"))
	fx.enroller.fn = func(c domain.Candidate) (*outreach.EnrollmentResult, error) {
		return nil, &outreach.APIError{StatusCode: 403, Message: "lead limit reached for this account"}
	}
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if outcome.Status != domain.BatchStatusLeadLimitReached {
		t.Errorf("status = %s, want LEAD_LIMIT_REACHED", outcome.Status)
	}
	if outcome.Processed != 0 {
		t.Errorf("processed = %d, want 0, failing candidate stays pending", outcome.Processed)
	}
	if len(fx.enroller.calls) != 1 {
		t.Errorf("enroller calls = %v, want only the first candidate", fx.enroller.calls)
	}

	batch := fx.batches.single(t)
	if batch.Status != domain.BatchStatusLeadLimitReached {
		t.Errorf("persisted status = %s, want LEAD_LIMIT_REACHED", batch.Status)
	}
	if batch.LastError == nil {
		t.Error("lead-limited batch has no last error recorded")
	}
	if len(batch.ProcessedIDs) != 0 {
		t.Errorf("processed ids = %v, want empty", batch.ProcessedIDs)
	}

	results := fx.results.byContact("c-1")
	if len(results) != 1 || results[0].Status != domain.ProcessingSkippedChannelLimit {
		t.Fatalf("results = %+v, want one SKIPPED_CHANNEL_LIMIT audit row", results)
	}
	if results[0].Error == nil {
		t.Error("capacity stop result has no error text")
	}
}

func TestCircuitBreakerSkipsRunInsideCooldown(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"))
	fx.batches.selectLeadLimited = &domain.Batch{
		ID:        "batch-limited",
		Status:    domain.BatchStatusLeadLimitReached,
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if !outcome.BreakerSkipped {
		t.Fatalf("outcome = %+v, want breaker skip", outcome)
	}
	if outcome.Status != domain.BatchStatusLeadLimitReached || outcome.BatchID != "batch-limited" {
		t.Errorf("outcome = %+v, want synthetic lead-limit result", outcome)
	}
	if fx.selector.selectCalls != 0 || fx.selector.loadCalls != 0 {
		t.Errorf("selector calls = %d select, %d load, want zero", fx.selector.selectCalls, fx.selector.loadCalls)
	}
	if len(fx.gate.calls) != 0 || len(fx.enroller.calls) != 0 {
		t.Error("processing ran despite open circuit breaker")
	}
}

func TestCircuitBreakerExpiredCooldownRuns(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"))
	fx.batches.selectLeadLimited = &domain.Batch{
		ID:        "batch-limited",
		Status:    domain.BatchStatusLeadLimitReached,
		UpdatedAt: time.Now().Add(-5 * time.Hour),
	}
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if outcome.BreakerSkipped {
		t.Fatal("run skipped although cooldown expired")
	}
	if outcome.Added != 1 {
		t.Errorf("outcome = %+v, want 1 added", outcome)
	}
}

func TestRunOnceResumesInterruptedBatch(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"), candidate("c-2", "dach"), candidate("c-3", "nordics"))
	fx.batches.batches["batch-old"] = &domain.Batch{
		ID:           "batch-old",
		Status:       domain.BatchStatusProcessing,
		Total:        3,
		Processed:    1,
		Added:        1,
		CandidateIDs: []string{"c-1", "c-2", "c-3"},
		ProcessedIDs: []string{"c-1"},
		StartedAt:    time.Now().Add(-10 * time.Minute),
	}
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if fx.selector.selectCalls != 0 {
		t.Errorf("select calls = %d, want 0 when resuming", fx.selector.selectCalls)
	}
	if fx.selector.loadCalls != 1 {
		t.Fatalf("load calls = %d, want 1", fx.selector.loadCalls)
	}
	if got, want := fmt.Sprint(fx.selector.lastLoadIDs), fmt.Sprint([]string{"c-2", "c-3"}); got != want {
		t.Errorf("reloaded ids = %v, want %v", got, want)
	}

	if outcome.BatchID != "batch-old" || outcome.Processed != 2 {
		t.Errorf("outcome = %+v, want 2 processed on batch-old", outcome)
	}
	if outcome.Status != domain.BatchStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", outcome.Status)
	}

	b, _ := fx.batches.GetByID(context.Background(), "batch-old")
	if b.Processed != 3 || b.Added != 3 {
		t.Errorf("resumed batch = %+v, want 3 processed 3 added", b)
	}
	if b.HasProcessed("c-1") && len(fx.results.byContact("c-1")) != 0 {
		t.Error("already-processed candidate was reprocessed")
	}
}

func TestRunOnceChunksLargeBatch(t *testing.T) {
	t.Parallel()

	var candidates []domain.Candidate
	for i := 0; i < 25; i++ {
		candidates = append(candidates, candidate(fmt.Sprintf("c-%02d", i), "dach"))
	}
	fx := newFixture(candidates...)
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if outcome.Processed != 10 {
		t.Errorf("processed = %d, want chunk size 10", outcome.Processed)
	}
	if outcome.Status != domain.BatchStatusProcessing {
		t.Errorf("status = %s, want PROCESSING with remainder", outcome.Status)
	}
	if outcome.Remaining != 15 {
		t.Errorf("remaining = %d, want 15", outcome.Remaining)
	}

	// Next invocation resumes the same batch and takes the next chunk.
	outcome2, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce() error = %v", err)
	}
	if outcome2.BatchID != outcome.BatchID {
		t.Errorf("second run batch = %s, want resumed %s", outcome2.BatchID, outcome.BatchID)
	}
	if outcome2.Processed != 10 || outcome2.Remaining != 5 {
		t.Errorf("second outcome = %+v, want 10 processed 5 remaining", outcome2)
	}

	if fx.batches.invariantViolated {
		t.Error("counter invariant violated during processing")
	}
}

func TestRunOnceStopsOnOperatorCancellation(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"), candidate("c-2", "dach"), candidate("c-3", "dach"))
	fx.batches.statusOverride = func(callCount int, b *domain.Batch) domain.BatchStatus {
		if callCount >= 2 {
			return domain.BatchStatusCancelled
		}
		return b.Status
	}
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if outcome.Status != domain.BatchStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", outcome.Status)
	}
	if outcome.Processed != 1 {
		t.Errorf("processed = %d, want 1 before cancellation took effect", outcome.Processed)
	}
}

func TestRunOnceDisabledPipeline(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"))
	fx.settings.settings = &domain.Settings{MaxTotalContacts: 100, MaxPerChannel: 25, Enabled: false}
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if !outcome.Disabled {
		t.Fatalf("outcome = %+v, want disabled", outcome)
	}
	if fx.selector.selectCalls != 0 {
		t.Error("selection ran although pipeline is disabled")
	}
}

func TestRunOnceSelectionFailureIsNoOp(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.selector.selectErr = errors.New("pool query failed")
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if !outcome.NoCandidates {
		t.Fatalf("outcome = %+v, want no-candidates no-op", outcome)
	}
	if len(fx.batches.batches) != 0 {
		t.Error("batch created despite selection failure")
	}
}

func TestRunOnceUsesStoredSettingsLimits(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"))
	fx.settings.settings = &domain.Settings{MaxTotalContacts: 7, MaxPerChannel: 3, Enabled: true}
	o := fx.orchestrator(t)

	if _, err := o.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if fx.selector.lastLimits.MaxTotal != 7 || fx.selector.lastLimits.MaxPerChannel != 3 {
		t.Errorf("selection limits = %+v, want 7/3 from stored settings", fx.selector.lastLimits)
	}
}

func TestBatchLevelErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		appendErr  error
		wantStatus domain.BatchStatus
	}{
		{
			name:       "timeout shaped stays resumable",
			appendErr:  errors.New("pq: canceling statement due to statement timeout"),
			wantStatus: domain.BatchStatusProcessing,
		},
		{
			name:       "other errors mark failed",
			appendErr:  errors.New("pq: null value in column processed_ids"),
			wantStatus: domain.BatchStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fx := newFixture(candidate("c-1", "dach"))
			fx.batches.appendErr = tt.appendErr
			o := fx.orchestrator(t)

			outcome, err := o.RunOnce(context.Background())
			if err == nil {
				t.Fatal("RunOnce() error = nil, want chunk error surfaced")
			}
			if outcome == nil || outcome.Status != tt.wantStatus {
				t.Fatalf("outcome = %+v, want status %s", outcome, tt.wantStatus)
			}

			batch := fx.batches.single(t)
			if batch.Status != tt.wantStatus {
				t.Errorf("persisted status = %s, want %s", batch.Status, tt.wantStatus)
			}
			if batch.LastError == nil {
				t.Error("batch error not recorded")
			}
		})
	}
}

func TestOperatorCancellationOutlivesFailureStamp(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"))
	// Operator cancels between the status poll and the progress write, and the
	// write itself dies with a timeout-shaped error. The resumable stamp must
	// not revive the cancelled batch.
	fx.batches.onAppend = func(b *domain.Batch) { b.Status = domain.BatchStatusCancelled }
	fx.batches.appendErr = errors.New("pq: canceling statement due to statement timeout")
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err == nil {
		t.Fatal("RunOnce() error = nil, want chunk error surfaced")
	}

	batch := fx.batches.single(t)
	if batch.Status != domain.BatchStatusCancelled {
		t.Fatalf("persisted status = %s, want CANCELLED to win over the failure stamp", batch.Status)
	}
	if batch.LastError != nil {
		t.Errorf("last error = %q, want cancelled batch left untouched", *batch.LastError)
	}
	if outcome.Status != domain.BatchStatusCancelled {
		t.Errorf("outcome status = %s, want CANCELLED", outcome.Status)
	}
}

func TestResultWriteFailureMarksBatchFailed(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"))
	fx.results.createErr = errors.New("pq: relation processing_results does not exist")
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err == nil {
		t.Fatal("RunOnce() error = nil, want result write failure surfaced")
	}
	if outcome.Status != domain.BatchStatusFailed {
		t.Errorf("outcome status = %s, want FAILED", outcome.Status)
	}

	batch := fx.batches.single(t)
	if batch.Status != domain.BatchStatusFailed {
		t.Errorf("persisted status = %s, want FAILED", batch.Status)
	}
	if batch.LastError == nil {
		t.Error("batch error not recorded")
	}
	if len(batch.ProcessedIDs) != 0 {
		t.Errorf("processed ids = %v, want empty when the audit write fails", batch.ProcessedIDs)
	}
}

func TestRunChannelsSharesOrchestrationGroup(t *testing.T) {
	t.Parallel()

	fx := newFixture(candidate("c-1", "dach"), candidate("c-2", "nordics"))
	o := fx.orchestrator(t)

	outcomes, err := o.RunChannels(context.Background(), []string{"dach", "nordics"})
	if err != nil {
		t.Fatalf("RunChannels() error = %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcome count = %d, want 2", len(outcomes))
	}

	var orchestrationIDs []string
	for _, b := range fx.batches.batches {
		if b.OrchestrationID == nil {
			t.Fatalf("channel batch %s has no orchestration id", b.ID)
		}
		orchestrationIDs = append(orchestrationIDs, *b.OrchestrationID)
		if b.Total != 1 {
			t.Errorf("channel batch %s total = %d, want 1", b.ID, b.Total)
		}
	}
	if len(orchestrationIDs) != 2 || orchestrationIDs[0] != orchestrationIDs[1] {
		t.Errorf("orchestration ids = %v, want one shared id", orchestrationIDs)
	}

	for _, outcome := range outcomes {
		if outcome.Status != domain.BatchStatusCompleted || outcome.Added != 1 {
			t.Errorf("channel outcome = %+v, want completed with 1 added", outcome)
		}
	}
}

func TestRunChannelsBatchesAreNotResumedBySingleRun(t *testing.T) {
	t.Parallel()

	orchestrationID := "group-1"
	fx := newFixture(candidate("c-9", "dach"))
	fx.batches.batches["batch-grouped"] = &domain.Batch{
		ID:              "batch-grouped",
		Status:          domain.BatchStatusProcessing,
		OrchestrationID: &orchestrationID,
		Total:           5,
		CandidateIDs:    []string{"x-1", "x-2", "x-3", "x-4", "x-5"},
		StartedAt:       time.Now().Add(-time.Hour),
	}
	o := fx.orchestrator(t)

	outcome, err := o.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if outcome.BatchID == "batch-grouped" {
		t.Fatal("single run resumed a parallel-group batch")
	}
	if fx.selector.selectCalls != 1 {
		t.Errorf("select calls = %d, want 1 fresh selection", fx.selector.selectCalls)
	}
}
