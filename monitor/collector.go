package monitor

import (
	"sync"
	"time"
)

const DefaultRecentTasks = 50

type TaskCollector interface {
	Record(metrics TaskMetrics)
	Flush() TaskSummary
}

// InMemoryCollector aggregates task outcomes and keeps the most recent ones.
type InMemoryCollector struct {
	mu            sync.RWMutex
	total         int
	succeeded     int
	totalDuration time.Duration
	byStage       map[string]int
	recent        []TaskMetrics
	keep          int
	startTime     time.Time
}

func NewInMemoryCollector(keep int) *InMemoryCollector {
	if keep <= 0 {
		keep = DefaultRecentTasks
	}
	return &InMemoryCollector{
		byStage:   make(map[string]int),
		keep:      keep,
		startTime: time.Now(),
	}
}

func (c *InMemoryCollector) Record(metrics TaskMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	if metrics.Success {
		c.succeeded++
	}
	c.totalDuration += metrics.Duration
	c.byStage[metrics.Stage]++

	c.recent = append(c.recent, metrics)
	if len(c.recent) > c.keep {
		c.recent = c.recent[len(c.recent)-c.keep:]
	}
}

// Flush returns a snapshot; the collector keeps accumulating.
func (c *InMemoryCollector) Flush() TaskSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byStage := make(map[string]int, len(c.byStage))
	for k, v := range c.byStage {
		byStage[k] = v
	}

	var avg time.Duration
	if c.total > 0 {
		avg = c.totalDuration / time.Duration(c.total)
	}

	return TaskSummary{
		Total:       c.total,
		Succeeded:   c.succeeded,
		Failed:      c.total - c.succeeded,
		AvgDuration: avg,
		ByStage:     byStage,
		Recent:      append([]TaskMetrics(nil), c.recent...),
		Since:       c.startTime,
	}
}

func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total, c.succeeded, c.totalDuration = 0, 0, 0
	c.byStage = make(map[string]int)
	c.recent = nil
	c.startTime = time.Now()
}

type NoOpCollector struct{}

func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (c *NoOpCollector) Record(metrics TaskMetrics) {}

func (c *NoOpCollector) Flush() TaskSummary {
	return TaskSummary{}
}
