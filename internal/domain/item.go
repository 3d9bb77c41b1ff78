package domain

import (
	"errors"
	"time"
)

// ErrAlreadyRecorded is returned by Ledger.Record when an outcome for the
// item key has already been persisted.
var ErrAlreadyRecorded = errors.New("item already recorded")

// ContentItem is a discovered candidate identified by a stable key
// (the canonical URL for web sources). Never mutated after discovery.
type ContentItem struct {
	Key          string
	SourceID     string // identifies the source (e.g., "hackernews", "techcrunch")
	Title        string
	URL          string
	DiscoveredAt time.Time
}

type Outcome string

const (
	OutcomePosted   Outcome = "posted"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeTimedOut Outcome = "timed_out"
	OutcomeFailed   Outcome = "failed"
)

type ProcessedRecord struct {
	ID          int64     `db:"id"`
	ItemKey     string    `db:"item_key"`
	SourceID    string    `db:"source_id"`
	Title       string    `db:"title"`
	Outcome     Outcome   `db:"outcome"`
	ProcessedAt time.Time `db:"processed_at"`
}
