package monitor

import "time"

// Stage names where a background task finished or failed.
const (
	StageLoad  = "load"
	StageEmbed = "embed"
	StageStore = "store"
	StageDone  = "done"
)

type TaskMetrics struct {
	TaskID   string        `json:"task_id"`
	PostID   int64         `json:"post_id"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Stage    string        `json:"stage"`
	Error    string        `json:"error,omitempty"`
}

type TaskSummary struct {
	Total       int            `json:"total"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	AvgDuration time.Duration  `json:"avg_duration"`
	ByStage     map[string]int `json:"by_stage"`
	Recent      []TaskMetrics  `json:"recent"`
	Since       time.Time      `json:"since"`
}
