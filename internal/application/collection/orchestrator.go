package collection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/azeebneuron/PaymentReminderCallerAgent/internal/domain/collection"
	"go.uber.org/zap"
)

// ErrCycleInProgress is returned when a dispatch cycle is requested while the
// previous one is still running. Cycles never overlap; the caller should try
// again later.
var ErrCycleInProgress = errors.New("orchestrator: dispatch cycle already in progress")

// OrchestratorConfig holds the orchestrator's tunables
type OrchestratorConfig struct {
	// Workers bounds concurrent dispatch work within a cycle
	Workers int
	// RetryDelay is the minimum gap before a retried invoice may be redialed
	RetryDelay time.Duration
	// ClassifyTimeout bounds a single transcript classification
	ClassifyTimeout time.Duration
	// CallbackURL is where the gateway should deliver webhook events
	CallbackURL string
}

func (c *OrchestratorConfig) applyDefaults() {
	if c.Workers < 1 {
		c.Workers = 4
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Minute
	}
	if c.ClassifyTimeout <= 0 {
		c.ClassifyTimeout = 30 * time.Second
	}
}

// OrchestratorDeps bundles the orchestrator's collaborators
type OrchestratorDeps struct {
	Gateway    collection.CallGateway
	Classifier collection.OutcomeClassifier
	Ledger     collection.Ledger
	Tracker    *CallStateTracker
	Repository collection.CallAttemptRepository
	// DispatchLog persists the rate-limit window across restarts; optional
	DispatchLog collection.DispatchLogStore
	Reconciler  *LedgerReconciler
	Logger      *zap.Logger
}

// CycleSummary reports what one dispatch cycle did
type CycleSummary struct {
	StartedAt time.Time
	Duration  time.Duration

	Clients    int
	Candidates int
	Dispatched int
	Skipped    int
	// SkipReasons breaks Skipped down by policy denial
	SkipReasons map[collection.DenyReason]int
	// Deferred counts invoices waiting out their retry delay
	Deferred int
	// DispatchFailures counts placements the gateway never accepted
	DispatchFailures int
	// FetchFailures counts clients whose pending invoices could not be read
	FetchFailures int
}

// Orchestrator drives the reminder pipeline: it fetches pending invoices,
// asks the policy guard, dispatches calls through the gateway, absorbs
// webhook events via the state tracker, classifies transcripts, and writes
// outcomes back to the ledger.
type Orchestrator struct {
	policy collection.PolicyConfig
	config OrchestratorConfig

	gateway     collection.CallGateway
	classifier  collection.OutcomeClassifier
	ledger      collection.Ledger
	tracker     *CallStateTracker
	repo        collection.CallAttemptRepository
	dispatchLog collection.DispatchLogStore
	reconciler  *LedgerReconciler

	gatewayRetry RetryPolicy
	ledgerRetry  RetryPolicy

	// cycleMu serializes cycles; TryLock makes an overlapping run a no-op
	cycleMu sync.Mutex
	// stateMu is the single-writer lock over the dispatch window, the retry
	// schedule and the client cache
	stateMu sync.Mutex
	window  *collection.DispatchWindow
	// notBefore holds per-invoice earliest redial times set by TriggerRetry
	notBefore map[string]time.Time
	// clients caches contact details seen in cycles so event finalization can
	// route ledger writes
	clients map[string]collection.Client

	now    func() time.Time
	logger *zap.Logger
}

// NewOrchestrator wires an orchestrator from its dependencies
func NewOrchestrator(policy collection.PolicyConfig, config OrchestratorConfig, deps OrchestratorDeps) *Orchestrator {
	config.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		policy:       policy,
		config:       config,
		gateway:      deps.Gateway,
		classifier:   deps.Classifier,
		ledger:       deps.Ledger,
		tracker:      deps.Tracker,
		repo:         deps.Repository,
		dispatchLog:  deps.DispatchLog,
		reconciler:   deps.Reconciler,
		gatewayRetry: DefaultGatewayRetryPolicy(),
		ledgerRetry:  DefaultLedgerRetryPolicy(),
		window:       collection.NewDispatchWindow(),
		notBefore:    make(map[string]time.Time),
		clients:      make(map[string]collection.Client),
		now:          time.Now,
		logger:       logger,
	}
}

// RestoreDispatchWindow reloads the rolling rate-limit window from the
// persisted dispatch log. Best-effort: an empty window after a restart widens
// the budget for at most one minute.
func (o *Orchestrator) RestoreDispatchWindow(ctx context.Context) error {
	if o.dispatchLog == nil {
		return nil
	}
	stamps, err := o.dispatchLog.Since(ctx, o.now().Add(-time.Minute))
	if err != nil {
		return fmt.Errorf("orchestrator: restore dispatch window: %w", err)
	}

	o.stateMu.Lock()
	o.window = collection.NewDispatchWindow(stamps...)
	o.stateMu.Unlock()

	if len(stamps) > 0 {
		o.logger.Info("Restored dispatch rate window", zap.Int("stamps", len(stamps)))
	}
	return nil
}

type dispatchJob struct {
	client  collection.Client
	invoice collection.Invoice
}

// RunCycle executes one dispatch pass over the given clients. At most one
// cycle runs at a time; a second call while one is in flight returns
// ErrCycleInProgress without doing anything.
func (o *Orchestrator) RunCycle(ctx context.Context, clients []collection.Client) (CycleSummary, error) {
	if !o.cycleMu.TryLock() {
		o.logger.Warn("Skipping dispatch cycle, previous cycle still running")
		return CycleSummary{}, ErrCycleInProgress
	}
	defer o.cycleMu.Unlock()

	summary := CycleSummary{
		StartedAt:   o.now(),
		Clients:     len(clients),
		SkipReasons: make(map[collection.DenyReason]int),
	}

	o.rememberClients(clients)

	var jobs []dispatchJob
	for _, client := range clients {
		var invoices []collection.Invoice
		err := o.ledgerRetry.Do(ctx, func(ctx context.Context) error {
			var fetchErr error
			invoices, fetchErr = o.ledger.FetchPending(ctx, client)
			return fetchErr
		})
		if err != nil {
			summary.FetchFailures++
			o.logger.Error("Failed to fetch pending invoices",
				zap.String("client_ref", client.Ref),
				zap.Error(err))
			continue
		}
		for _, inv := range invoices {
			jobs = append(jobs, dispatchJob{client: client, invoice: inv})
		}
	}
	summary.Candidates = len(jobs)

	jobCh := make(chan dispatchJob)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < o.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				o.processJob(ctx, job, &mu, &summary)
			}
		}()
	}
	for _, job := range jobs {
		select {
		case <-ctx.Done():
		case jobCh <- job:
		}
	}
	close(jobCh)
	wg.Wait()

	summary.Duration = o.now().Sub(summary.StartedAt)
	o.logger.Info("Dispatch cycle finished",
		zap.Int("clients", summary.Clients),
		zap.Int("candidates", summary.Candidates),
		zap.Int("dispatched", summary.Dispatched),
		zap.Int("skipped", summary.Skipped),
		zap.Int("deferred", summary.Deferred),
		zap.Int("dispatch_failures", summary.DispatchFailures),
		zap.Int("fetch_failures", summary.FetchFailures),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// processJob runs the policy gate and, on an allow, dispatches one call.
// The decision plus window update happen under stateMu so concurrent workers
// cannot overdraw the rate budget; the network call happens outside it.
func (o *Orchestrator) processJob(ctx context.Context, job dispatchJob, mu *sync.Mutex, summary *CycleSummary) {
	now := o.now()

	o.stateMu.Lock()
	if t, ok := o.notBefore[job.invoice.Ref]; ok && now.Before(t) {
		o.stateMu.Unlock()
		mu.Lock()
		summary.Deferred++
		mu.Unlock()
		return
	}

	prior, err := o.repo.MaxAttemptNumber(ctx, job.invoice.Ref)
	if err != nil {
		o.stateMu.Unlock()
		o.logger.Error("Failed to load attempt history",
			zap.String("invoice_ref", job.invoice.Ref),
			zap.Error(err))
		mu.Lock()
		summary.DispatchFailures++
		mu.Unlock()
		return
	}
	_, active := o.tracker.ActiveAttempt(job.invoice.Ref)

	decision := collection.MayDispatch(o.policy, job.invoice, now, prior, active, o.window)
	if !decision.Allow {
		o.stateMu.Unlock()
		o.logger.Debug("Dispatch denied by policy",
			zap.String("invoice_ref", job.invoice.Ref),
			zap.String("reason", string(decision.Reason)))
		mu.Lock()
		summary.Skipped++
		summary.SkipReasons[decision.Reason]++
		mu.Unlock()
		return
	}

	attempt := collection.NewCallAttempt(job.invoice.Ref, job.client.Ref, prior+1)
	if err := o.tracker.Register(ctx, attempt); err != nil {
		o.stateMu.Unlock()
		if errors.Is(err, collection.ErrAttemptInFlight) {
			mu.Lock()
			summary.Skipped++
			summary.SkipReasons[collection.DenyAttemptInFlight]++
			mu.Unlock()
			return
		}
		o.logger.Error("Failed to register call attempt",
			zap.String("invoice_ref", job.invoice.Ref),
			zap.Error(err))
		mu.Lock()
		summary.DispatchFailures++
		mu.Unlock()
		return
	}

	o.window.Record(now)
	delete(o.notBefore, job.invoice.Ref)
	o.stateMu.Unlock()

	if o.dispatchLog != nil {
		if err := o.dispatchLog.Append(ctx, now); err != nil {
			o.logger.Warn("Failed to persist dispatch timestamp", zap.Error(err))
		}
	}

	if err := o.placeCall(ctx, job, attempt); err != nil {
		mu.Lock()
		summary.DispatchFailures++
		mu.Unlock()
		return
	}
	mu.Lock()
	summary.Dispatched++
	mu.Unlock()
}

// placeCall pushes one placement through the gateway with bounded retry.
// A placement the gateway never accepts closes the attempt as FAILED and
// schedules a redial when the budget allows.
func (o *Orchestrator) placeCall(ctx context.Context, job dispatchJob, attempt *collection.CallAttempt) error {
	req := collection.PlaceCallRequest{
		Client:        job.client,
		Invoice:       job.invoice,
		AttemptNumber: attempt.AttemptNumber,
		MaxDuration:   o.policy.MaxCallDuration,
		CallbackURL:   o.config.CallbackURL,
	}

	var handle collection.CallHandle
	err := o.gatewayRetry.Do(ctx, func(ctx context.Context) error {
		h, err := o.gateway.PlaceCall(ctx, req)
		if err != nil {
			if errors.Is(err, collection.ErrGatewayUnauthorized) {
				return Permanent(err)
			}
			return err
		}
		handle = h
		return nil
	})
	if err != nil {
		o.logger.Error("Call placement failed",
			zap.String("invoice_ref", job.invoice.Ref),
			zap.String("attempt_id", attempt.ID.String()),
			zap.Error(err))
		if markErr := o.tracker.MarkDispatchFailed(ctx, attempt, o.now()); markErr != nil {
			o.logger.Error("Failed to close undispatched attempt",
				zap.String("attempt_id", attempt.ID.String()),
				zap.Error(markErr))
		}
		if attempt.AttemptNumber < o.policy.MaxRetryAttempts {
			o.scheduleRetry(job.invoice.Ref)
		}
		return fmt.Errorf("orchestrator: place call: %w", err)
	}

	if err := o.tracker.MarkDispatched(ctx, attempt, handle, o.now()); err != nil {
		o.logger.Error("Failed to record dispatch",
			zap.String("attempt_id", attempt.ID.String()),
			zap.Error(err))
		return err
	}

	o.logger.Info("Reminder call dispatched",
		zap.String("invoice_ref", job.invoice.Ref),
		zap.String("client_ref", job.client.Ref),
		zap.Int("attempt_number", attempt.AttemptNumber),
		zap.String("handle", handle.String()))
	return nil
}

// HandleGatewayEvent absorbs one normalized webhook event. Duplicate and
// out-of-order events are logged and dropped; an unknown handle is reported
// back as ErrUnknownCallHandle. A terminal event triggers classification and
// the ledger write-back.
func (o *Orchestrator) HandleGatewayEvent(ctx context.Context, event collection.CallEvent) error {
	if !event.Type.IsValid() {
		return fmt.Errorf("orchestrator: unknown event type %q", event.Type)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = o.now()
	}

	result, err := o.tracker.Apply(ctx, event)
	if err != nil {
		if errors.Is(err, collection.ErrUnknownCallHandle) {
			o.logger.Warn("Event for unknown call handle",
				zap.String("handle", event.Handle.String()),
				zap.String("event_type", string(event.Type)))
			return err
		}
		if errors.Is(err, collection.ErrInvalidTransition) {
			o.logger.Info("Dropping out-of-order gateway event",
				zap.String("handle", event.Handle.String()),
				zap.String("event_type", string(event.Type)),
				zap.String("state", result.Attempt.State.String()))
			return nil
		}
		return err
	}
	if result.AlreadyTerminal || !result.BecameTerminal {
		return nil
	}

	return o.finalize(ctx, result.Attempt)
}

// SweepTimeouts force-closes attempts stuck past the watchdog deadline and
// runs their finalization. Returns how many attempts were swept.
func (o *Orchestrator) SweepTimeouts(ctx context.Context) int {
	swept := o.tracker.SweepTimeouts(ctx, o.now(), o.policy.TimeoutDeadline())
	for _, attempt := range swept {
		if err := o.finalize(ctx, attempt); err != nil {
			o.logger.Error("Failed to finalize timed out attempt",
				zap.String("attempt_id", attempt.ID.String()),
				zap.Error(err))
		}
	}
	return len(swept)
}

// TriggerRetry schedules a fresh attempt for an invoice on a later cycle.
// Fails with ErrRetriesExhausted when the invoice has no attempts left.
func (o *Orchestrator) TriggerRetry(ctx context.Context, invoiceRef string) error {
	prior, err := o.repo.MaxAttemptNumber(ctx, invoiceRef)
	if err != nil {
		return fmt.Errorf("orchestrator: load attempt history: %w", err)
	}
	if prior >= o.policy.MaxRetryAttempts {
		return collection.ErrRetriesExhausted
	}
	o.scheduleRetry(invoiceRef)
	return nil
}

// ReconcileLedger replays queued outcome writes that failed earlier
func (o *Orchestrator) ReconcileLedger(ctx context.Context) (written, remaining int) {
	if o.reconciler == nil {
		return 0, 0
	}
	return o.reconciler.Run(ctx)
}

// finalize runs the post-terminal pipeline for one attempt: produce the
// outcome, persist it, write it back to the ledger, and schedule a redial for
// non-contact results. Runs exactly once per attempt because only the event
// or sweep that won the terminal transition reaches here.
func (o *Orchestrator) finalize(ctx context.Context, attempt *collection.CallAttempt) error {
	outcome, needsReview := o.produceOutcome(ctx, attempt)

	if err := o.tracker.Finalize(ctx, attempt, outcome, needsReview); err != nil {
		o.logger.Error("Failed to persist outcome",
			zap.String("attempt_id", attempt.ID.String()),
			zap.Error(err))
	}

	retriesLeft := attempt.AttemptNumber < o.policy.MaxRetryAttempts
	rec := collection.OutcomeRecord{
		InvoiceRef:   attempt.InvoiceRef,
		ClientRef:    attempt.ClientRef,
		Status:       outcome.InvoiceStatusFor(retriesLeft),
		Outcome:      outcome,
		SummaryLine:  summaryLine(outcome),
		CallMadeAt:   o.now(),
		RecordingURL: attempt.RecordingURL,
		NeedsReview:  needsReview,
	}
	if attempt.StartedAt != nil {
		rec.CallMadeAt = *attempt.StartedAt
	}
	if client, ok := o.clientFor(attempt.ClientRef); ok {
		rec.SheetID = client.SheetID
	}

	err := o.ledgerRetry.Do(ctx, func(ctx context.Context) error {
		return o.ledger.WriteOutcome(ctx, rec)
	})
	if err != nil {
		o.logger.Error("Ledger write failed, queueing for reconciliation",
			zap.String("invoice_ref", attempt.InvoiceRef),
			zap.Error(err))
		if o.reconciler != nil {
			o.reconciler.Enqueue(rec)
		}
	}

	if o.shouldRetry(attempt) {
		o.scheduleRetry(attempt.InvoiceRef)
	}

	o.logger.Info("Call attempt finalized",
		zap.String("invoice_ref", attempt.InvoiceRef),
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("state", attempt.State.String()),
		zap.String("outcome", outcome.Tag.String()),
		zap.Bool("needs_review", needsReview))
	return nil
}

// produceOutcome builds the attempt's outcome. Completed calls go through the
// classifier under a bounded timeout; classification failure degrades to
// UNCLEAR with a review flag rather than blocking the pipeline. Non-contact
// terminals synthesize a NO_ANSWER outcome.
func (o *Orchestrator) produceOutcome(ctx context.Context, attempt *collection.CallAttempt) (collection.Outcome, bool) {
	switch attempt.State {
	case collection.CallStateCompleted:
		if strings.TrimSpace(attempt.Transcript) == "" {
			return collection.UnclearOutcome("call ended without a transcript"), true
		}
		classifyCtx, cancel := context.WithTimeout(ctx, o.config.ClassifyTimeout)
		defer cancel()
		outcome, err := o.classifier.Classify(classifyCtx, attempt.Transcript, attempt.Summary)
		if err != nil {
			o.logger.Warn("Transcript classification failed",
				zap.String("attempt_id", attempt.ID.String()),
				zap.Error(err))
			return collection.UnclearOutcome(fmt.Sprintf("classification failed: %v", err)), true
		}
		return outcome, false
	case collection.CallStateNoAnswer:
		return collection.Outcome{Tag: collection.OutcomeTagNoAnswer, Note: "customer did not answer"}, false
	case collection.CallStateFailed:
		return collection.Outcome{Tag: collection.OutcomeTagNoAnswer, Note: "call failed before completion"}, false
	case collection.CallStateTimedOut:
		return collection.Outcome{Tag: collection.OutcomeTagNoAnswer, Note: "no terminal event before the watchdog deadline"}, true
	}
	return collection.UnclearOutcome("attempt finalized in unexpected state " + attempt.State.String()), true
}

// shouldRetry reports whether a terminal attempt earns the invoice a redial
func (o *Orchestrator) shouldRetry(attempt *collection.CallAttempt) bool {
	switch attempt.State {
	case collection.CallStateNoAnswer, collection.CallStateFailed, collection.CallStateTimedOut:
		return attempt.AttemptNumber < o.policy.MaxRetryAttempts
	}
	return false
}

func (o *Orchestrator) scheduleRetry(invoiceRef string) {
	o.stateMu.Lock()
	o.notBefore[invoiceRef] = o.now().Add(o.config.RetryDelay)
	o.stateMu.Unlock()
	o.logger.Info("Retry scheduled",
		zap.String("invoice_ref", invoiceRef),
		zap.Duration("delay", o.config.RetryDelay))
}

func (o *Orchestrator) rememberClients(clients []collection.Client) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	for _, c := range clients {
		o.clients[c.Ref] = c
	}
}

func (o *Orchestrator) clientFor(ref string) (collection.Client, bool) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	c, ok := o.clients[ref]
	return c, ok
}

// summaryLine renders the one-line ledger note for a classified outcome
func summaryLine(o collection.Outcome) string {
	parts := []string{"Outcome: " + o.Tag.String()}
	if o.Note != "" {
		parts = append(parts, o.Note)
	}
	if o.PromisedPaymentDate != nil {
		parts = append(parts, "Promised: "+o.PromisedPaymentDate.Format("2006-01-02"))
	}
	if o.NextFollowUpDate != nil {
		parts = append(parts, "Follow up: "+o.NextFollowUpDate.Format("2006-01-02"))
	}
	if o.NeedsInvoiceResend {
		parts = append(parts, "Resend invoice")
	}
	if o.DisputeReason != "" {
		parts = append(parts, "Dispute: "+o.DisputeReason)
	}
	if o.CustomerSentiment != "" {
		parts = append(parts, "Sentiment: "+string(o.CustomerSentiment))
	}
	return strings.Join(parts, " | ")
}
