package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"benefits/internal/audit"
	fraudmetrics "benefits/internal/fraudcheck/metrics"
	"benefits/internal/fraudcheck/models"
	"benefits/internal/fraudcheck/queue"
	riskmodels "benefits/internal/risk/models"
	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/requestcontext"
)

const defaultMaxAttempts = 3

var defaultBackoff = []time.Duration{10 * time.Second, 30 * time.Second}

type Assessor interface {
	AssessRisk(ctx context.Context, req riskmodels.AssessRequest) (*riskmodels.Verdict, error)
}

// ResultWriter is the guarded claim write-back.
type ResultWriter interface {
	UpdateFraudResult(ctx context.Context, claimID id.ClaimID, isRisky bool, reason string, verdict *riskmodels.Verdict) (bool, error)
}

type DeadLetterStore interface {
	Record(ctx context.Context, letter models.DeadLetter) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Consumer delivers tasks to a handler until its context ends.
type Consumer interface {
	Consume(ctx context.Context, handler queue.Handler) error
}

// Worker re-scores claims held in PENDING_FRAUD_CHECK. Transient failures are
// retried with backoff; when attempts run out the task is dead and the claim
// is left where it is.
type Worker struct {
	assessor       Assessor
	writer         ResultWriter
	deadLetters    DeadLetterStore
	maxAttempts    int
	backoff        []time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *fraudmetrics.Metrics
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(w *Worker) {
		w.auditPublisher = publisher
	}
}

func WithMetrics(m *fraudmetrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithRetry sets the attempt budget and the waits between attempts. The
// last wait repeats if there are more attempts than waits.
func WithRetry(maxAttempts int, backoff []time.Duration) Option {
	return func(w *Worker) {
		if maxAttempts > 0 {
			w.maxAttempts = maxAttempts
		}
		if len(backoff) > 0 {
			w.backoff = backoff
		}
	}
}

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(w *Worker) {
		w.sleep = sleep
	}
}

func New(assessor Assessor, writer ResultWriter, deadLetters DeadLetterStore, opts ...Option) (*Worker, error) {
	switch {
	case assessor == nil:
		return nil, errors.New("risk assessor is required")
	case writer == nil:
		return nil, errors.New("result writer is required")
	case deadLetters == nil:
		return nil, errors.New("dead letter store is required")
	}
	w := &Worker{
		assessor:    assessor,
		writer:      writer,
		deadLetters: deadLetters,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		sleep:       sleepContext,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run consumes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, consumer Consumer) error {
	w.logger.InfoContext(ctx, "fraud check worker started", "max_attempts", w.maxAttempts)
	err := consumer.Consume(ctx, w.Handle)
	w.logger.InfoContext(ctx, "fraud check worker stopped")
	return err
}

// Handle adapts Process to a queue handler. Only an interrupted task is
// reported as an error, so it is not acknowledged.
func (w *Worker) Handle(ctx context.Context, task models.Task) error {
	r := w.Process(ctx, task)
	if r.State == models.StateInterrupted {
		return r.Err
	}
	return nil
}

// Process runs one task to a terminal state.
func (w *Worker) Process(ctx context.Context, task models.Task) models.Result {
	ctx = requestcontext.WithRequestID(ctx, "fraud-check:"+task.ID.String())
	logger := w.logger.With("task_id", task.ID, "claim_id", task.ClaimID)
	result := models.Result{TaskID: task.ID, ClaimID: task.ClaimID}

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		result.Attempts = attempt
		applied, err := w.attempt(ctx, task)
		if err == nil {
			result.State = models.StateSkipped
			if applied {
				result.State = models.StateSucceeded
			}
			logger.InfoContext(ctx, "fraud check completed", "state", result.State, "attempts", attempt)
			w.observe(result)
			return result
		}
		result.Err = err

		if ctx.Err() != nil {
			return w.interrupted(ctx, logger, result)
		}
		if isPermanent(err) {
			logger.ErrorContext(ctx, "fraud check failed permanently", "attempt", attempt, "error", err)
			break
		}
		if attempt == w.maxAttempts {
			break
		}

		wait := w.backoffFor(attempt)
		logger.WarnContext(ctx, "fraud check attempt failed; retrying", "attempt", attempt, "backoff", wait.String(), "error", err)
		if w.metrics != nil {
			w.metrics.IncrementRetry()
		}
		if err := w.sleep(ctx, wait); err != nil {
			return w.interrupted(ctx, logger, result)
		}
	}

	return w.dead(ctx, logger, task, result)
}

func (w *Worker) attempt(ctx context.Context, task models.Task) (bool, error) {
	verdict, err := w.assessor.AssessRisk(ctx, riskmodels.AssessRequest{
		FirstName: task.FirstName,
		LastName:  task.LastName,
		Birthdate: task.Birthdate,
		Category:  task.Category,
	})
	if err != nil {
		return false, fmt.Errorf("assess risk: %w", err)
	}
	applied, err := w.writer.UpdateFraudResult(ctx, task.ClaimID, verdict.IsRisky, verdict.Explanation, verdict)
	if err != nil {
		return false, fmt.Errorf("write fraud result: %w", err)
	}
	return applied, nil
}

// dead records the failure. The claim is not touched: an unscored claim must
// not look clean.
func (w *Worker) dead(ctx context.Context, logger *slog.Logger, task models.Task, result models.Result) models.Result {
	result.State = models.StateDead
	lastErr := ""
	if result.Err != nil {
		lastErr = result.Err.Error()
	}
	letter := models.DeadLetter{
		TaskID:    task.ID,
		ClaimID:   task.ClaimID,
		Attempts:  result.Attempts,
		LastError: lastErr,
		FailedAt:  requestcontext.Now(ctx),
	}
	// Record even if the worker is shutting down.
	recordCtx := context.WithoutCancel(ctx)
	if err := w.deadLetters.Record(recordCtx, letter); err != nil {
		logger.ErrorContext(ctx, "failed to record fraud check dead letter", "error", err)
	}
	logger.ErrorContext(ctx, "fraud check dead; claim left in PENDING_FRAUD_CHECK for manual review",
		"attempts", result.Attempts, "error", lastErr)
	if w.auditPublisher != nil {
		if err := w.auditPublisher.Emit(recordCtx, audit.Event{
			Action:  audit.ActionFraudCheckDead,
			Subject: "claim:" + task.ClaimID.String(),
			After:   audit.Snapshot(letter),
		}); err != nil {
			logger.ErrorContext(ctx, "failed to emit audit event", "action", audit.ActionFraudCheckDead, "error", err)
		}
	}
	w.observe(result)
	return result
}

func (w *Worker) interrupted(ctx context.Context, logger *slog.Logger, result models.Result) models.Result {
	result.State = models.StateInterrupted
	if result.Err == nil || ctx.Err() != nil {
		result.Err = ctx.Err()
	}
	logger.WarnContext(ctx, "fraud check interrupted; task will be redelivered", "attempts", result.Attempts)
	w.observe(result)
	return result
}

func (w *Worker) observe(r models.Result) {
	if w.metrics != nil {
		w.metrics.ObserveResult(r)
	}
}

func (w *Worker) backoffFor(attempt int) time.Duration {
	i := attempt - 1
	if i >= len(w.backoff) {
		i = len(w.backoff) - 1
	}
	return w.backoff[i]
}

// isPermanent reports errors that another attempt cannot fix.
func isPermanent(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeForbidden:
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
