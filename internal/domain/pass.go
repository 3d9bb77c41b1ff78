package domain

import "time"

// PassStats holds statistics about one orchestrator pass.
type PassStats struct {
	Discovered int
	Skipped    int
	Requested  int
	Posted     int
	Ignored    int
	TimedOut   int
	Failed     int
	Errors     int
	Duration   time.Duration
}

type RunState struct {
	ID          int64     `db:"id"`
	SourceID    string    `db:"source_id"`
	LastPassAt  time.Time `db:"last_pass_at"`
	LastItemKey string    `db:"last_item_key"`
	TotalPosted int64     `db:"total_posted"`
}
