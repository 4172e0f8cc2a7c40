package batch

import (
	"sync"
	"sync/atomic"
	"time"
)

type State string

const (
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateCompleted State = "completed"
)

func (s State) Finished() bool {
	return s == StateStopped || s == StateCompleted
}

type LogEntry struct {
	Time      time.Time
	AccountID string
	Message   string
}

// Result is the reported outcome of one account.
type Result struct {
	AccountID string
	Status    string
	Message   string
	Time      time.Time
}

// Snapshot is a copy of a task's state, safe to hold while workers run.
type Snapshot struct {
	TaskID      string
	State       State
	Concurrency int
	Total       int
	Processed   int
	// Pending counts accounts not yet finished, including those never
	// started because the task was stopped.
	Pending    int
	Stats      map[string]int
	Logs       []LogEntry
	Results    []Result
	StartedAt  time.Time
	FinishedAt time.Time
	// Err is set when a batch-level failure stopped the task.
	Err string
}

type task struct {
	id          string
	ids         []string
	concurrency int
	logCap      int
	window      int

	stop atomic.Bool
	done chan struct{}

	mu         sync.Mutex
	state      State
	processed  int
	stats      map[string]int
	logs       []LogEntry
	results    []Result
	startedAt  time.Time
	finishedAt time.Time
	err        error
}

func newTask(id string, ids []string, concurrency, logCap, window int, now time.Time) *task {
	return &task{
		id:          id,
		ids:         ids,
		concurrency: concurrency,
		logCap:      logCap,
		window:      window,
		done:        make(chan struct{}),
		state:       StateRunning,
		stats:       make(map[string]int),
		startedAt:   now,
	}
}

// appendLog adds an entry and trims the oldest ones beyond the cap.
func (t *task) appendLog(e LogEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addLogLocked(e)
}

func (t *task) addLogLocked(e LogEntry) {
	t.logs = append(t.logs, e)
	if t.logCap > 0 && len(t.logs) > t.logCap {
		t.logs = append(t.logs[:0:0], t.logs[len(t.logs)-t.logCap:]...)
	}
}

func (t *task) record(r Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.processed++
	t.stats[r.Status]++
	t.results = append(t.results, r)
	if t.window > 0 && len(t.results) > t.window {
		t.results = append(t.results[:0:0], t.results[len(t.results)-t.window:]...)
	}
	t.addLogLocked(LogEntry{Time: r.Time, AccountID: r.AccountID, Message: r.Status + ": " + r.Message})
}

func (t *task) requestStop() bool {
	t.stop.Store(true)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateRunning {
		return false
	}
	t.state = StateStopping
	return true
}

func (t *task) fail(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
	t.requestStop()
}

func (t *task) finish(now time.Time) {
	t.mu.Lock()
	if t.stop.Load() && t.processed < len(t.ids) {
		t.state = StateStopped
	} else {
		t.state = StateCompleted
	}
	t.finishedAt = now
	t.mu.Unlock()
	close(t.done)
}

func (t *task) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		TaskID:      t.id,
		State:       t.state,
		Concurrency: t.concurrency,
		Total:       len(t.ids),
		Processed:   t.processed,
		Pending:     len(t.ids) - t.processed,
		Stats:       make(map[string]int, len(t.stats)),
		Logs:        append([]LogEntry(nil), t.logs...),
		Results:     append([]Result(nil), t.results...),
		StartedAt:   t.startedAt,
		FinishedAt:  t.finishedAt,
	}
	for k, v := range t.stats {
		s.Stats[k] = v
	}
	if t.err != nil {
		s.Err = t.err.Error()
	}
	return s
}
