// Package batch commits a homogeneous stream of side-effecting work items in
// bounded-size transactional windows. One malformed item skips only itself;
// a transient database error retries only its window; a commit failure loses
// only the windows it spanned. The error list is bounded so a pathological
// run stays diagnosable without unbounded memory.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rescueradar/rescueradar/internal/types"
)

// maxRecordedErrors caps the structured error list in a Result.
const maxRecordedErrors = 100

// maxItemRepr caps the item representation stored with an error.
const maxItemRepr = 120

// Beginner opens transactions. *pgxpool.Pool satisfies it; nested Begin
// calls on the returned Tx become savepoints, which is what scopes a window
// inside the outer commit-cadence transaction.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Item is one unit of work. ID is used only in error reporting.
type Item struct {
	ID      string
	Payload any
}

// RenderFunc turns an item into a statement. It must be pure; a failure
// skips only that item.
type RenderFunc func(item Item) (sql string, args []any, err error)

// ProgressFunc receives cumulative processed count and total after each
// window.
type ProgressFunc func(processed, total int)

// Config is immutable per Process invocation.
type Config struct {
	BatchSize       int
	MaxRetries      int
	RetryDelay      time.Duration
	CommitFrequency int
}

func (c *Config) normalize() {
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.CommitFrequency < 1 {
		c.CommitFrequency = 1
	}
}

// ItemError is one structured failure inside a run.
type ItemError struct {
	Kind     types.Kind
	Position int
	ItemRepr string
	Detail   string
}

// Result aggregates one Process invocation.
type Result struct {
	TotalProcessed    int
	SuccessfulBatches int
	FailedBatches     int
	RetriedBatches    int
	Errors            []ItemError
	Elapsed           time.Duration
}

// SuccessRate is (processed - item-level errors) / processed, 0 when nothing
// was processed.
func (r *Result) SuccessRate() float64 {
	if r.TotalProcessed == 0 {
		return 0
	}
	itemErrs := 0
	for _, e := range r.Errors {
		if e.Kind == types.KindItemRender {
			itemErrs++
		}
	}
	return float64(r.TotalProcessed-itemErrs) / float64(r.TotalProcessed)
}

func (r *Result) record(e ItemError) {
	if len(r.Errors) < maxRecordedErrors {
		r.Errors = append(r.Errors, e)
	}
}

// Processor runs batched commits against one database.
type Processor struct {
	db     Beginner
	cfg    Config
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Processor. The config is fixed for the processor's lifetime.
func New(db Beginner, cfg Config, logger *slog.Logger) *Processor {
	cfg.normalize()
	return &Processor{
		db:     db,
		cfg:    cfg,
		logger: logger.With("component", "batch_processor"),
		sleep:  sleepCtx,
	}
}

// Process commits items in windows of up to BatchSize. See the package
// comment for the failure semantics.
func (p *Processor) Process(ctx context.Context, items []Item, render RenderFunc, progress ProgressFunc) (*Result, error) {
	start := time.Now()
	res := &Result{}

	if len(items) == 0 {
		res.Elapsed = time.Since(start)
		return res, nil
	}

	var outer pgx.Tx
	windowsInTx := 0
	pendingWindows := 0 // successful windows awaiting commit

	rollbackOuter := func() {
		if outer != nil {
			_ = outer.Rollback(ctx)
			outer = nil
			windowsInTx = 0
		}
	}
	defer rollbackOuter()

	commitOuter := func(position int) {
		if outer == nil || windowsInTx == 0 {
			return
		}
		if err := outer.Commit(ctx); err != nil {
			res.record(ItemError{
				Kind:     types.KindCommit,
				Position: position,
				Detail:   err.Error(),
			})
			res.SuccessfulBatches -= pendingWindows
			res.FailedBatches += pendingWindows
			p.logger.Error("commit failed, windows rolled back",
				"windows", pendingWindows, "error", err)
		}
		outer = nil
		windowsInTx = 0
		pendingWindows = 0
	}

	for offset := 0; offset < len(items); offset += p.cfg.BatchSize {
		end := min(offset+p.cfg.BatchSize, len(items))
		window := items[offset:end]

		if ctx.Err() != nil {
			rollbackOuter()
			res.Elapsed = time.Since(start)
			return res, ctx.Err()
		}

		if outer == nil {
			tx, err := p.db.Begin(ctx)
			if err != nil {
				res.Elapsed = time.Since(start)
				return res, &types.DatabaseError{Op: "batch begin", Err: err}
			}
			outer = tx
			pendingWindows = 0
		}

		ok, retried := p.processWindow(ctx, outer, window, offset, render, res)
		if retried {
			res.RetriedBatches++
		}
		if ok {
			res.SuccessfulBatches++
			windowsInTx++
			pendingWindows++
		} else {
			res.FailedBatches++
			// The failed window rolled back to its savepoint; the outer
			// transaction and its pending windows stay intact.
		}
		res.TotalProcessed += len(window)

		if progress != nil {
			progress(res.TotalProcessed, len(items))
		}

		if pendingWindows >= p.cfg.CommitFrequency {
			commitOuter(end - 1)
		}
	}

	// Residual windows.
	commitOuter(len(items) - 1)

	res.Elapsed = time.Since(start)
	return res, nil
}

// processWindow executes one window inside a savepoint, retrying on database
// errors with linear backoff. Returns success and whether any retry ran.
func (p *Processor) processWindow(ctx context.Context, outer pgx.Tx, window []Item, offset int, render RenderFunc, res *Result) (ok, retried bool) {
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			retried = true
			delay := p.cfg.RetryDelay * time.Duration(attempt)
			p.logger.Warn("retrying window",
				"offset", offset, "attempt", attempt, "delay", delay)
			if err := p.sleep(ctx, delay); err != nil {
				return false, retried
			}
		}

		err := p.execWindow(ctx, outer, window, offset, render, res, attempt == 0)
		if err == nil {
			return true, retried
		}
		if !isRetryable(err) {
			res.record(ItemError{
				Kind:     types.KindBatchDatabase,
				Position: offset,
				Detail:   err.Error(),
			})
			return false, retried
		}
		if attempt == p.cfg.MaxRetries {
			res.record(ItemError{
				Kind:     types.KindBatchDatabase,
				Position: offset,
				Detail:   fmt.Sprintf("retries exhausted: %v", err),
			})
			return false, retried
		}
	}
	return false, retried
}

// execWindow runs one attempt of a window inside a savepoint. Render
// failures are recorded once (on the first attempt) and skipped; statement
// failures roll the savepoint back and surface for retry.
func (p *Processor) execWindow(ctx context.Context, outer pgx.Tx, window []Item, offset int, render RenderFunc, res *Result, firstAttempt bool) error {
	sp, err := outer.Begin(ctx)
	if err != nil {
		return err
	}

	for i, item := range window {
		sql, args, err := safeRender(render, item)
		if err != nil {
			// Item-level isolation: record once, skip, keep the window going.
			if firstAttempt {
				res.record(ItemError{
					Kind:     types.KindItemRender,
					Position: offset + i,
					ItemRepr: truncate(fmt.Sprintf("%s %v", item.ID, item.Payload), maxItemRepr),
					Detail:   err.Error(),
				})
				p.logger.Warn("item render failed, skipping",
					"position", offset+i, "item", item.ID, "error", err)
			}
			continue
		}
		if _, err := sp.Exec(ctx, sql, args...); err != nil {
			_ = sp.Rollback(ctx)
			return err
		}
	}

	return sp.Commit(ctx)
}

// safeRender calls render, converting panics into errors.
func safeRender(render RenderFunc, item Item) (sql string, args []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panic: %v", r)
		}
	}()
	return render(item)
}

// isRetryable treats database statement errors as transient unless the
// context itself is done.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
