// Package batch runs many accounts through the orchestrator with bounded
// parallelism and keeps a live, pollable view of each run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"github.com/dmitrijs2005/gophenroll/internal/logging"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/dmitrijs2005/gophenroll/internal/orchestrator"
	"github.com/google/uuid"
)

// Processor runs one pass over an account. *orchestrator.Orchestrator
// satisfies it.
type Processor interface {
	Process(ctx context.Context, acc *models.Account) orchestrator.Outcome
}

// AccountLoader returns a decrypted account by id.
type AccountLoader interface {
	Load(ctx context.Context, id string) (*models.Account, error)
}

// ProgressStore is the part of the progress repository the runner needs.
type ProgressStore interface {
	Save(ctx context.Context, p *models.Progress) error
	Pending(ctx context.Context, ids []string) ([]string, error)
}

// Reporter receives the final snapshot of every task.
type Reporter interface {
	Report(ctx context.Context, s Snapshot) error
}

type Options struct {
	// LogCap bounds the trailing log kept per task.
	LogCap int
	// ResultsWindow bounds the recent results kept per task.
	ResultsWindow int
	Reporter      Reporter
}

type Runner struct {
	proc     Processor
	accounts AccountLoader
	progress ProgressStore
	opts     Options
	log      logging.Logger
	now      func() time.Time

	mu    sync.RWMutex
	tasks map[string]*task
}

func NewRunner(proc Processor, accounts AccountLoader, progress ProgressStore, opts Options, log logging.Logger) *Runner {
	if opts.LogCap <= 0 {
		opts.LogCap = 500
	}
	if opts.ResultsWindow <= 0 {
		opts.ResultsWindow = 50
	}
	return &Runner{
		proc:     proc,
		accounts: accounts,
		progress: progress,
		opts:     opts,
		log:      log,
		now:      time.Now,
		tasks:    make(map[string]*task),
	}
}

// Start queues ids (duplicates dropped, order kept) and returns at once.
// The run outlives ctx; use Stop to end it.
func (r *Runner) Start(ctx context.Context, ids []string, concurrency int) (string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return "", common.ErrEmptyBatch
	}
	concurrency = max(1, concurrency)

	t := newTask(uuid.NewString(), ids, concurrency, r.opts.LogCap, r.opts.ResultsWindow, r.now())
	r.mu.Lock()
	r.tasks[t.id] = t
	r.mu.Unlock()

	t.appendLog(LogEntry{Time: r.now(), Message: fmt.Sprintf("batch started: %d accounts, %d workers", len(ids), concurrency)})
	r.log.Info(ctx, "batch started", "task", t.id, "accounts", len(ids), "concurrency", concurrency)

	go r.run(context.WithoutCancel(ctx), t)
	return t.id, nil
}

// Resume starts a task over the ids whose last outcome is not SUBSCRIBED.
func (r *Runner) Resume(ctx context.Context, ids []string, concurrency int) (string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return "", common.ErrEmptyBatch
	}
	pending, err := r.progress.Pending(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("resume: %w", err)
	}
	if len(pending) == 0 {
		return "", common.ErrNothingToResume
	}
	r.log.Info(ctx, "resuming batch", "requested", len(ids), "pending", len(pending))
	return r.Start(ctx, pending, concurrency)
}

// Stop asks the task's workers to finish their current account and exit.
func (r *Runner) Stop(taskID string) error {
	t, err := r.get(taskID)
	if err != nil {
		return err
	}
	if t.requestStop() {
		t.appendLog(LogEntry{Time: r.now(), Message: "stop requested"})
		r.log.Info(context.Background(), "batch stop requested", "task", taskID)
	}
	return nil
}

// StopAll stops every running task.
func (r *Runner) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tasks {
		t.requestStop()
	}
}

func (r *Runner) Status(taskID string) (Snapshot, error) {
	t, err := r.get(taskID)
	if err != nil {
		return Snapshot{}, err
	}
	return t.snapshot(), nil
}

// Wait blocks until the task finishes or ctx is done.
func (r *Runner) Wait(ctx context.Context, taskID string) (Snapshot, error) {
	t, err := r.get(taskID)
	if err != nil {
		return Snapshot{}, err
	}
	select {
	case <-t.done:
		return t.snapshot(), nil
	case <-ctx.Done():
		return t.snapshot(), ctx.Err()
	}
}

// WaitAll blocks until every known task finishes or ctx is done.
func (r *Runner) WaitAll(ctx context.Context) error {
	r.mu.RLock()
	tasks := make([]*task, 0, len(r.tasks))
	for _, t := range r.tasks {
		tasks = append(tasks, t)
	}
	r.mu.RUnlock()

	for _, t := range tasks {
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Forget drops a finished task.
func (r *Runner) Forget(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, common.ErrTaskNotFound)
	}
	select {
	case <-t.done:
	default:
		return fmt.Errorf("task %s: %w", taskID, common.ErrTaskRunning)
	}
	delete(r.tasks, taskID)
	return nil
}

func (r *Runner) get(taskID string) (*task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, common.ErrTaskNotFound)
	}
	return t, nil
}

func (r *Runner) run(ctx context.Context, t *task) {
	queue := make(chan string, len(t.ids))
	for _, id := range t.ids {
		queue <- id
	}
	close(queue)

	var wg sync.WaitGroup
	for range t.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range queue {
				if t.stop.Load() {
					return
				}
				r.processOne(ctx, t, id)
			}
		}()
	}
	wg.Wait()

	t.finish(r.now())
	snap := t.snapshot()
	r.log.Info(ctx, "batch finished", "task", t.id, "state", string(snap.State), "processed", snap.Processed, "total", snap.Total)

	if r.opts.Reporter != nil {
		if err := r.opts.Reporter.Report(ctx, snap); err != nil {
			r.log.Error(ctx, "batch report failed", "task", t.id, "error", err)
		}
	}
}

func (r *Runner) processOne(ctx context.Context, t *task, id string) {
	ctx = logging.WithAccountID(ctx, id)

	out := r.outcome(ctx, id)
	t.record(Result{AccountID: id, Status: out.Report(), Message: out.Message, Time: r.now()})

	if errors.Is(out.Err, common.ErrAuthExpired) {
		r.log.Error(ctx, "verification session rejected twice, stopping batch", "task", t.id)
		t.fail(fmt.Errorf("batch stopped: %w", out.Err))
	}
}

func (r *Runner) outcome(ctx context.Context, id string) orchestrator.Outcome {
	acc, err := r.accounts.Load(ctx, id)
	if err == nil {
		return r.proc.Process(ctx, acc)
	}

	out := orchestrator.Outcome{AccountID: id, Status: models.StatusError, Message: fmt.Sprintf("load account: %v", err), Err: err}
	r.log.Warn(ctx, "account could not be loaded", "error", err)
	p := &models.Progress{AccountID: id, Status: out.Status, Message: out.Message, UpdatedAt: r.now()}
	if serr := r.progress.Save(ctx, p); serr != nil {
		r.log.Error(ctx, "failed to save progress", "error", serr)
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
