package slashing

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/din-network/din-monitor/pkg/metrics"
	"github.com/din-network/din-monitor/pkg/types"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	DefaultRetryAttempts uint          = 3
	DefaultRetryDelay    time.Duration = 2 * time.Second

	// DefaultDedupWindow is how many recent violation ids are remembered.
	DefaultDedupWindow = 10_000
)

// Task is one pending auto-slash, keyed by the violation it punishes.
type Task struct {
	OperatorID types.OperatorID `json:"operatorId"`
	Violation  types.Violation  `json:"violation"`
	Reason     string           `json:"reason"`
	EnqueuedAt time.Time        `json:"enqueuedAt"`
	Attempts   uint             `json:"attempts"`
	LastError  string           `json:"lastError,omitempty"`
}

type OutboxStats struct {
	Pending   uint64 `json:"pending"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

type Outbox struct {
	logger   *zap.Logger
	process  func(ctx context.Context, task *Task) error
	onFailed func(ctx context.Context, task *Task)
	attempts uint
	delay    time.Duration

	lock   sync.Mutex
	queue  []*Task
	seen   *lru.Cache
	failed []*Task
	notify chan struct{}

	processed   atomic.Uint64
	failedCount atomic.Uint64
}

func NewOutbox(zapLogger *zap.Logger, process func(ctx context.Context, task *Task) error) *Outbox {
	return &Outbox{
		logger:   zapLogger,
		process:  process,
		attempts: DefaultRetryAttempts,
		delay:    DefaultRetryDelay,
		seen:     newDedupWindow(DefaultDedupWindow),
		notify:   make(chan struct{}, 1),
	}
}

func newDedupWindow(size int) *lru.Cache {
	if size <= 0 {
		size = DefaultDedupWindow
	}
	// only fails on a non-positive size
	cache, _ := lru.New(size)
	return cache
}

// WithDedupWindow bounds how many violation ids Enqueue remembers. Must be
// called before the first Enqueue.
func (o *Outbox) WithDedupWindow(size int) *Outbox {
	o.seen = newDedupWindow(size)
	return o
}

func (o *Outbox) WithRetry(attempts uint, delay time.Duration) *Outbox {
	if attempts > 0 {
		o.attempts = attempts
	}
	o.delay = delay
	return o
}

// OnFailed registers a callback for tasks that exhausted their retries.
func (o *Outbox) OnFailed(fn func(ctx context.Context, task *Task)) {
	o.onFailed = fn
}

// Enqueue adds task unless a task for the same violation was enqueued within
// the dedup window or is still pending.
func (o *Outbox) Enqueue(task *Task) bool {
	o.lock.Lock()
	if o.pending(task.Violation.ID) {
		o.lock.Unlock()
		return false
	}
	if seen, _ := o.seen.ContainsOrAdd(task.Violation.ID, struct{}{}); seen {
		o.lock.Unlock()
		return false
	}
	o.queue = append(o.queue, task)
	o.lock.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return true
}

// pending must be called with the lock held.
func (o *Outbox) pending(violationID string) bool {
	for _, task := range o.queue {
		if task.Violation.ID == violationID {
			return true
		}
	}
	return false
}

func (o *Outbox) next() *Task {
	o.lock.Lock()
	defer o.lock.Unlock()
	if len(o.queue) == 0 {
		return nil
	}
	task := o.queue[0]
	o.queue[0] = nil
	o.queue = o.queue[1:]
	return task
}

// Run drains the queue whenever tasks arrive until ctx is done.
func (o *Outbox) Run(ctx context.Context) error {
	for {
		o.Drain(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-o.notify:
		}
	}
}

// Drain processes every queued task in the calling goroutine.
func (o *Outbox) Drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		task := o.next()
		if task == nil {
			return
		}
		o.handle(ctx, task)
	}
}

func (o *Outbox) handle(ctx context.Context, task *Task) {
	logger := o.logger.Sugar()

	err := retry.Do(
		func() error {
			task.Attempts++
			return o.process(ctx, task)
		},
		retry.Context(ctx),
		retry.Attempts(o.attempts),
		retry.Delay(o.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, types.ErrUnknownOperator)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Warnw("auto-slash failed", "operator", task.OperatorID, "violation", task.Violation.ID, "attempt", n+1, "error", err, "retrying", o.delay)
		}),
	)
	if err == nil {
		o.processed.Inc()
		return
	}

	task.LastError = err.Error()
	o.lock.Lock()
	o.failed = append(o.failed, task)
	o.lock.Unlock()
	o.failedCount.Inc()
	metrics.OutboxFailures.Inc()
	logger.Errorw("auto-slash exhausted retries", "operator", task.OperatorID, "violation", task.Violation.ID, "attempts", task.Attempts, "error", err)

	if o.onFailed != nil {
		o.onFailed(ctx, task)
	}
}

func (o *Outbox) Stats() OutboxStats {
	o.lock.Lock()
	pending := len(o.queue)
	o.lock.Unlock()

	return OutboxStats{
		Pending:   uint64(pending),
		Processed: o.processed.Load(),
		Failed:    o.failedCount.Load(),
	}
}

// Failed returns copies of the tasks that exhausted their retries.
func (o *Outbox) Failed() []Task {
	o.lock.Lock()
	defer o.lock.Unlock()

	tasks := make([]Task, 0, len(o.failed))
	for _, task := range o.failed {
		tasks = append(tasks, *task)
	}
	return tasks
}
