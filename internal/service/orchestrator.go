package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pubgate/internal/approval"
	"pubgate/internal/config"
	"pubgate/internal/domain"
	"pubgate/internal/publish"
)

// Orchestrator drives one pass over all sources: discover candidates, skip
// the already processed ones, draft a summary, hold each item for operator
// approval, publish the approved ones and record exactly one terminal
// outcome per item.
type Orchestrator struct {
	sources     []Source
	summarizer  Summarizer
	notifier    Notifier
	publisher   Publisher
	ledger      Ledger
	runState    RunStateStore
	events      OutcomeEvents
	approvals   *approval.Coordinator
	logger      *slog.Logger
	approvalCfg config.ApprovalConfig
	publishCfg  config.PublishConfig
}

func NewOrchestrator(
	sources []Source,
	summarizer Summarizer,
	notifier Notifier,
	publisher Publisher,
	ledger Ledger,
	runState RunStateStore,
	events OutcomeEvents,
	approvals *approval.Coordinator,
	logger *slog.Logger,
	approvalCfg config.ApprovalConfig,
	publishCfg config.PublishConfig,
) *Orchestrator {
	if approvalCfg.TTL <= 0 {
		approvalCfg.TTL = time.Hour
	}
	if approvalCfg.SweepInterval <= 0 {
		approvalCfg.SweepInterval = 30 * time.Second
	}
	if publishCfg.Workers < 1 {
		publishCfg.Workers = 1
	}

	return &Orchestrator{
		sources:     sources,
		summarizer:  summarizer,
		notifier:    notifier,
		publisher:   publisher,
		ledger:      ledger,
		runState:    runState,
		events:      events,
		approvals:   approvals,
		logger:      logger,
		approvalCfg: approvalCfg,
		publishCfg:  publishCfg,
	}
}

func (o *Orchestrator) Run(ctx context.Context) (*domain.PassStats, error) {
	startTime := time.Now()
	state := newPassState()

	o.logger.Info("starting pass",
		"sources", len(o.sources),
		"approval_ttl", o.approvalCfg.TTL,
	)

	// Collect candidates from every source
	items := o.discover(ctx, state)

	// Summarize and hold each unprocessed item for approval
	o.prepare(ctx, items, state)

	if requested := state.snapshot().Requested; requested > 0 {
		// Buffered to the number of open requests so the decision loop
		// never waits behind a slow publish
		jobs := make(chan publishJob, requested)

		var workers errgroup.Group
		for i := 0; i < o.publishCfg.Workers; i++ {
			workers.Go(func() error {
				for job := range jobs {
					o.publishApproved(ctx, job.item, job.text, state)
				}
				return nil
			})
		}

		o.await(ctx, jobs, state)
		close(jobs)
		_ = workers.Wait()
	}

	o.updateRunState(ctx, state)

	stats := state.snapshot()
	stats.Duration = time.Since(startTime)

	o.logger.Info("pass completed",
		"discovered", stats.Discovered,
		"skipped", stats.Skipped,
		"requested", stats.Requested,
		"posted", stats.Posted,
		"ignored", stats.Ignored,
		"timed_out", stats.TimedOut,
		"failed", stats.Failed,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	if err := ctx.Err(); err != nil {
		return &stats, err
	}
	return &stats, nil
}

func (o *Orchestrator) discover(ctx context.Context, state *passState) []domain.ContentItem {
	var items []domain.ContentItem
	seen := make(map[string]bool)

	for _, src := range o.sources {
		discovered, err := src.Discover(ctx)
		if err != nil {
			o.logger.Error("discover failed", "source", src.ID(), "error", err)
			state.addError()
			continue
		}

		o.logger.Debug("discovered items", "source", src.ID(), "count", len(discovered))
		state.addDiscovered(len(discovered))

		for _, item := range discovered {
			if item.Key == "" || seen[item.Key] {
				continue
			}
			seen[item.Key] = true
			items = append(items, item)
			state.setLastKey(item.SourceID, item.Key)
		}
	}

	return items
}

func (o *Orchestrator) prepare(ctx context.Context, items []domain.ContentItem, state *passState) {
	for _, item := range items {
		if ctx.Err() != nil {
			return
		}

		has, err := o.ledger.Has(ctx, item.Key)
		if err != nil {
			o.logger.Error("ledger lookup failed", "item_key", item.Key, "error", err)
			state.addError()
			continue
		}
		if has {
			state.addSkipped()
			continue
		}

		summary, err := o.summarizer.Summarize(ctx, item)
		if err != nil {
			// The item stays unrecorded and is picked up again next pass
			o.logger.Error("summarize failed", "item_key", item.Key, "error", err)
			state.addError()
			continue
		}

		req, err := o.approvals.Request(item, summary, o.approvalCfg.TTL)
		if err != nil {
			o.logger.Error("approval request failed", "item_key", item.Key, "error", err)
			state.addError()
			continue
		}

		deliveryID, err := o.notifier.Send(ctx, req)
		if err != nil {
			o.approvals.Withdraw(req.ID)
			o.logger.Error("review message failed, withdrawing request",
				"request_id", req.ID, "item_key", item.Key, "error", err)
			state.addError()
			continue
		}

		o.logger.Debug("review requested",
			"request_id", req.ID, "item_key", item.Key, "delivery_id", deliveryID)
		state.addRequested(req.ID)
	}
}

// await consumes operator decisions and expiry sweeps until every request
// issued this pass is resolved or the pass context ends.
func (o *Orchestrator) await(ctx context.Context, jobs chan<- publishJob, state *passState) {
	decisions, err := o.notifier.Decisions(ctx)
	if err != nil {
		o.logger.Error("decision stream unavailable, relying on expiry", "error", err)
		decisions = nil
	}

	ticker := time.NewTicker(o.approvalCfg.SweepInterval)
	defer ticker.Stop()

	for o.approvals.OpenCount() > 0 {
		select {
		case <-ctx.Done():
			o.withdrawRemaining(state)
			return
		case dec, ok := <-decisions:
			if !ok {
				o.logger.Warn("decision stream closed, relying on expiry")
				decisions = nil
				continue
			}
			o.applyDecision(ctx, dec, jobs, state)
		case now := <-ticker.C:
			for _, req := range o.approvals.SweepExpired(now) {
				o.logger.Info("approval timed out",
					"request_id", req.ID, "item_key", req.Item.Key)
				o.recordOutcome(ctx, req.Item, domain.OutcomeTimedOut, state)
			}
		}
	}
}

func (o *Orchestrator) applyDecision(ctx context.Context, dec domain.Decision, jobs chan<- publishJob, state *passState) {
	req, err := o.approvals.Decide(dec)
	if err != nil {
		switch {
		case errors.Is(err, approval.ErrAlreadyResolved):
			o.logger.Warn("late decision for resolved request",
				"request_id", dec.RequestID, "kind", dec.Kind)
		case errors.Is(err, approval.ErrUnknownRequest):
			o.logger.Warn("decision for unknown request",
				"request_id", dec.RequestID, "kind", dec.Kind)
		case errors.Is(err, approval.ErrInvalidTransition):
			o.logger.Warn("decision rejected", "request_id", dec.RequestID, "error", err)
		default:
			o.logger.Error("decision failed", "request_id", dec.RequestID, "error", err)
		}
		return
	}

	switch req.State {
	case domain.StateApproved:
		o.logger.Info("approved", "request_id", req.ID, "item_key", req.Item.Key)
		jobs <- publishJob{item: req.Item, text: req.Summary}
	case domain.StateIgnored:
		o.logger.Info("ignored", "request_id", req.ID, "item_key", req.Item.Key)
		o.recordOutcome(ctx, req.Item, domain.OutcomeIgnored, state)
	default:
		// Edit round-trips keep the request open
	}
}

func (o *Orchestrator) publishApproved(ctx context.Context, item domain.ContentItem, text string, state *passState) {
	if ctx.Err() != nil {
		// Approved but never attempted, retried next pass
		o.logger.Warn("skipping publish, pass interrupted", "item_key", item.Key)
		return
	}

	err := o.publisher.Publish(ctx, item, text)
	if err == nil {
		o.recordOutcome(ctx, item, domain.OutcomePosted, state)
		return
	}

	o.logger.Error("publish failed", "item_key", item.Key, "error", err)

	diagnostic := err.Error()
	var failed *publish.FailedError
	if errors.As(err, &failed) && failed.Snapshot != "" {
		diagnostic = fmt.Sprintf("%v (snapshot: %s)", failed.Err, failed.Snapshot)
	}
	if notifyErr := o.notifier.NotifyFailure(ctx, item, diagnostic); notifyErr != nil {
		o.logger.Error("failure notification failed", "item_key", item.Key, "error", notifyErr)
	}

	o.recordOutcome(ctx, item, domain.OutcomeFailed, state)
}

func (o *Orchestrator) recordOutcome(ctx context.Context, item domain.ContentItem, outcome domain.Outcome, state *passState) {
	rec := &domain.ProcessedRecord{
		ItemKey:     item.Key,
		SourceID:    item.SourceID,
		Title:       item.Title,
		Outcome:     outcome,
		ProcessedAt: time.Now(),
	}

	if err := o.ledger.Record(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyRecorded) {
			o.logger.Warn("outcome already recorded", "item_key", item.Key, "outcome", outcome)
			return
		}
		// The item stays absent from the ledger and is retried next pass; a
		// duplicate post is preferred over a silently lost record
		o.logger.Error("ledger write failed",
			"item_key", item.Key, "outcome", outcome, "error", err)
		state.addError()
		return
	}

	state.addOutcome(item.SourceID, outcome)

	if o.events != nil {
		if err := o.events.PublishOutcome(ctx, rec); err != nil {
			o.logger.Error("outcome event failed", "item_key", item.Key, "error", err)
		}
	}
}

// withdrawRemaining drops requests still open when the pass is cut short.
// Their items are requested again next pass instead of being recorded with
// an outcome the operator never chose.
func (o *Orchestrator) withdrawRemaining(state *passState) {
	var withdrawn int
	for _, id := range state.issuedIDs() {
		if o.approvals.Withdraw(id) {
			withdrawn++
		}
	}
	if withdrawn > 0 {
		o.logger.Warn("pass interrupted with open requests, retrying next pass",
			"withdrawn", withdrawn)
	}
}

func (o *Orchestrator) updateRunState(ctx context.Context, state *passState) {
	if o.runState == nil {
		return
	}

	now := time.Now()
	for _, src := range o.sources {
		id := src.ID()

		rs, err := o.runState.Get(ctx, id)
		if err != nil {
			o.logger.Error("run state lookup failed", "source", id, "error", err)
			continue
		}

		rs.SourceID = id
		rs.LastPassAt = now
		if key := state.lastKey(id); key != "" {
			rs.LastItemKey = key
		}
		rs.TotalPosted += int64(state.postedCount(id))

		if err := o.runState.Update(ctx, rs); err != nil {
			o.logger.Error("run state update failed", "source", id, "error", err)
		}
	}
}

type publishJob struct {
	item domain.ContentItem
	text string
}

// passState accumulates counters for one pass. Publish workers report into
// it concurrently with the decision loop.
type passState struct {
	mu     sync.Mutex
	stats  domain.PassStats
	posted map[string]int
	last   map[string]string
	issued []string
}

func newPassState() *passState {
	return &passState{
		posted: make(map[string]int),
		last:   make(map[string]string),
	}
}

func (p *passState) addDiscovered(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Discovered += n
}

func (p *passState) addSkipped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Skipped++
}

func (p *passState) addRequested(requestID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Requested++
	p.issued = append(p.issued, requestID)
}

func (p *passState) addError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Errors++
}

func (p *passState) addOutcome(sourceID string, outcome domain.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch outcome {
	case domain.OutcomePosted:
		p.stats.Posted++
		p.posted[sourceID]++
	case domain.OutcomeIgnored:
		p.stats.Ignored++
	case domain.OutcomeTimedOut:
		p.stats.TimedOut++
	case domain.OutcomeFailed:
		p.stats.Failed++
	}
}

func (p *passState) setLastKey(sourceID, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[sourceID] = key
}

func (p *passState) lastKey(sourceID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last[sourceID]
}

func (p *passState) postedCount(sourceID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.posted[sourceID]
}

func (p *passState) issuedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, len(p.issued))
	copy(ids, p.issued)
	return ids
}

func (p *passState) snapshot() domain.PassStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
