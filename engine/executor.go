package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/hubenschmidt/postsearch/config"
	"github.com/hubenschmidt/postsearch/core"
	"github.com/hubenschmidt/postsearch/monitor"
)

var (
	ErrQueueFull      = errors.New("background queue is full")
	ErrExecutorClosed = errors.New("executor is stopped")
)

// Task is one unit of background work. Run returns a *core.OpError whose Op
// names the stage that failed.
type Task struct {
	ID     string
	PostID int64
	Run    func(ctx context.Context) error
}

// Executor runs tasks on a fixed pool of workers fed by a bounded queue.
// Tasks run on the executor's own context, never a request context.
type Executor struct {
	queue     chan Task
	limiter   *rate.Limiter
	collector monitor.TaskCollector
	log       *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewExecutor(cfg config.Worker, collector monitor.TaskCollector) *Executor {
	workers := max(cfg.Count, 1)
	queueSize := max(cfg.QueueSize, 1)
	if collector == nil {
		collector = monitor.NewNoOpCollector()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		queue:     make(chan Task, queueSize),
		collector: collector,
		log:       logrus.WithField("component", "executor"),
		ctx:       ctx,
		cancel:    cancel,
	}
	if cfg.RatePerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	for range workers {
		e.wg.Add(1)
		go e.worker()
	}
	e.log.WithFields(logrus.Fields{"workers": workers, "queue": queueSize, "rate": cfg.RatePerSecond}).Info("executor started")
	return e
}

// Enqueue hands t to the pool without blocking and returns its id.
func (e *Executor) Enqueue(t Task) (string, error) {
	if t.Run == nil {
		return "", fmt.Errorf("task has no run function")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return "", ErrExecutorClosed
	}

	select {
	case e.queue <- t:
		return t.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Pending reports queued tasks not yet picked up by a worker.
func (e *Executor) Pending() int {
	return len(e.queue)
}

// Stop refuses new work and waits for queued tasks to finish. If ctx expires
// first, the executor context is cancelled so remaining tasks fail fast.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		e.log.Info("executor drained")
		return nil
	case <-ctx.Done():
		e.cancel()
		e.log.WithField("pending", len(e.queue)).Warn("executor stop timed out")
		return ctx.Err()
	}
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for t := range e.queue {
		e.run(t)
	}
}

func (e *Executor) run(t Task) {
	log := e.log.WithFields(logrus.Fields{"task_id": t.ID, "post_id": t.PostID})
	start := time.Now()

	var err error
	if e.limiter != nil {
		if werr := e.limiter.Wait(e.ctx); werr != nil {
			err = core.NewOpError("wait", werr)
		}
	}
	if err == nil {
		err = e.safeRun(t)
	}

	m := monitor.TaskMetrics{
		TaskID:   t.ID,
		PostID:   t.PostID,
		Duration: time.Since(start),
		Success:  err == nil,
		Stage:    monitor.StageDone,
	}
	if err != nil {
		m.Stage = stageOf(err)
		m.Error = err.Error()
		var opErr *core.OpError
		if errors.As(err, &opErr) && len(opErr.Context) > 0 {
			log = log.WithFields(logrus.Fields(opErr.Context))
		}
		log.WithError(err).WithField("stage", m.Stage).Error("background task failed")
	} else {
		log.WithField("elapsed_ms", m.Duration.Milliseconds()).Debug("background task finished")
	}
	e.collector.Record(m)
}

func (e *Executor) safeRun(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("task_id", t.ID).Errorf("task panicked: %v\n%s", r, debug.Stack())
			err = core.NewOpError("panic", fmt.Errorf("%v", r))
		}
	}()
	return t.Run(e.ctx)
}

func stageOf(err error) string {
	var opErr *core.OpError
	if errors.As(err, &opErr) {
		return opErr.Op
	}
	return "unknown"
}
