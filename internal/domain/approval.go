package domain

import "time"

type ApprovalState string

const (
	StatePending  ApprovalState = "pending"
	StateEditing  ApprovalState = "editing"
	StateApproved ApprovalState = "approved"
	StateIgnored  ApprovalState = "ignored"
	StateTimedOut ApprovalState = "timed_out"
)

// Terminal reports whether no further transitions are legal from s.
func (s ApprovalState) Terminal() bool {
	switch s {
	case StateApproved, StateIgnored, StateTimedOut:
		return true
	}
	return false
}

// ApprovalRequest is the unit of human review for one item. The summary
// text is mutable only through the edit flow; everything else is fixed
// at creation.
type ApprovalRequest struct {
	ID        string
	Item      ContentItem
	Summary   string
	State     ApprovalState
	CreatedAt time.Time
	Deadline  time.Time
	TTL       time.Duration
}

type DecisionKind string

const (
	DecisionApprove     DecisionKind = "approve"
	DecisionIgnore      DecisionKind = "ignore"
	DecisionEditRequest DecisionKind = "edit_request"
	DecisionEditSubmit  DecisionKind = "edit_submit"
)

// Decision is an inbound event from the notification channel. Consumed once.
type Decision struct {
	RequestID  string
	Kind       DecisionKind
	Text       string // replacement summary, set only for DecisionEditSubmit
	ReceivedAt time.Time
}
