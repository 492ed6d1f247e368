package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryCollectorSummary(t *testing.T) {
	c := NewInMemoryCollector(10)
	c.Record(TaskMetrics{TaskID: "a", PostID: 1, Duration: 10 * time.Millisecond, Success: true, Stage: StageDone})
	c.Record(TaskMetrics{TaskID: "b", PostID: 2, Duration: 30 * time.Millisecond, Stage: StageEmbed, Error: "boom"})

	s := c.Flush()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 20*time.Millisecond, s.AvgDuration)
	assert.Equal(t, map[string]int{StageDone: 1, StageEmbed: 1}, s.ByStage)
	assert.Len(t, s.Recent, 2)
	assert.Equal(t, "boom", s.Recent[1].Error)
}

func TestInMemoryCollectorKeepsRecent(t *testing.T) {
	c := NewInMemoryCollector(3)
	for i := int64(1); i <= 5; i++ {
		c.Record(TaskMetrics{PostID: i, Success: true, Stage: StageDone})
	}

	s := c.Flush()
	assert.Equal(t, 5, s.Total)
	assert.Len(t, s.Recent, 3)
	assert.Equal(t, int64(3), s.Recent[0].PostID)
	assert.Equal(t, int64(5), s.Recent[2].PostID)
}

func TestInMemoryCollectorConcurrent(t *testing.T) {
	c := NewInMemoryCollector(0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record(TaskMetrics{Success: true, Stage: StageDone})
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, c.Flush().Succeeded)

	c.Reset()
	assert.Zero(t, c.Flush().Total)
}

func TestNoOpCollector(t *testing.T) {
	c := NewNoOpCollector()
	c.Record(TaskMetrics{Success: true})
	assert.Zero(t, c.Flush().Total)
}
