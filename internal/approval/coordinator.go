package approval

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pubgate/internal/domain"
)

var (
	ErrDuplicateRequest  = errors.New("open request already exists for item")
	ErrUnknownRequest    = errors.New("unknown request id")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyResolved   = errors.New("request already resolved")
)

// Coordinator owns the in-flight approval table. State is reached only
// through its operations and every operation is atomic per request id, so a
// decision and an expiry sweep racing on the same request resolve it exactly
// once. Requests handed back to callers are copies.
type Coordinator struct {
	mu       sync.Mutex
	open     map[string]*domain.ApprovalRequest // request id -> open request
	byItem   map[string]string                  // item key -> open request id
	resolved map[string]domain.ApprovalState    // terminal state by request id
	logger   *slog.Logger
	now      func() time.Time
}

func New(logger *slog.Logger) *Coordinator {
	return &Coordinator{
		open:     make(map[string]*domain.ApprovalRequest),
		byItem:   make(map[string]string),
		resolved: make(map[string]domain.ApprovalState),
		logger:   logger,
		now:      time.Now,
	}
}

// Request registers a new pending request for item with deadline now+ttl.
// Fails with ErrDuplicateRequest while another request for the same item key
// is still open.
func (c *Coordinator) Request(item domain.ContentItem, summary string, ttl time.Duration) (domain.ApprovalRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.byItem[item.Key]; ok {
		return domain.ApprovalRequest{}, fmt.Errorf("item %s held by request %s: %w", item.Key, id, ErrDuplicateRequest)
	}

	now := c.now()
	req := &domain.ApprovalRequest{
		ID:        uuid.NewString(),
		Item:      item,
		Summary:   summary,
		State:     domain.StatePending,
		CreatedAt: now,
		Deadline:  now.Add(ttl),
		TTL:       ttl,
	}
	c.open[req.ID] = req
	c.byItem[item.Key] = req.ID

	c.logger.Debug("approval requested",
		"request_id", req.ID,
		"item_key", item.Key,
		"deadline", req.Deadline,
	)

	return *req, nil
}

// Decide applies an inbound decision to the matching open request and returns
// the request as it stands afterwards. Legal transitions:
//
//	pending: approve, ignore, edit request
//	editing: approve, ignore, edit submit
//
// Approve and ignore are terminal. Edit request moves the request to editing
// and refreshes the deadline without touching the summary; edit submit
// replaces the summary and returns to pending, again refreshing the deadline.
// A decision for a request that already reached a terminal state fails with
// ErrAlreadyResolved, never re-resolves it.
func (c *Coordinator) Decide(dec domain.Decision) (domain.ApprovalRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.open[dec.RequestID]
	if !ok {
		if state, done := c.resolved[dec.RequestID]; done {
			return domain.ApprovalRequest{}, fmt.Errorf("request %s resolved as %s: %w", dec.RequestID, state, ErrAlreadyResolved)
		}
		return domain.ApprovalRequest{}, fmt.Errorf("request %s: %w", dec.RequestID, ErrUnknownRequest)
	}

	switch {
	case dec.Kind == domain.DecisionApprove:
		c.resolve(req, domain.StateApproved)
	case dec.Kind == domain.DecisionIgnore:
		c.resolve(req, domain.StateIgnored)
	case dec.Kind == domain.DecisionEditRequest && req.State == domain.StatePending:
		req.State = domain.StateEditing
		req.Deadline = c.now().Add(req.TTL)
	case dec.Kind == domain.DecisionEditSubmit && req.State == domain.StateEditing:
		req.Summary = dec.Text
		req.State = domain.StatePending
		req.Deadline = c.now().Add(req.TTL)
	default:
		return domain.ApprovalRequest{}, fmt.Errorf("%s while %s: %w", dec.Kind, req.State, ErrInvalidTransition)
	}

	c.logger.Debug("decision applied",
		"request_id", req.ID,
		"kind", dec.Kind,
		"state", req.State,
	)

	return *req, nil
}

// SweepExpired times out every open request whose deadline has passed and
// returns them for downstream handling.
func (c *Coordinator) SweepExpired(now time.Time) []domain.ApprovalRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []domain.ApprovalRequest
	for _, req := range c.open {
		if req.Deadline.After(now) {
			continue
		}
		c.resolve(req, domain.StateTimedOut)
		expired = append(expired, *req)

		c.logger.Debug("request timed out",
			"request_id", req.ID,
			"item_key", req.Item.Key,
		)
	}
	return expired
}

// Withdraw removes an open request without resolving it, so the same item can
// be requested again on a later pass. Used when the review message could not
// be delivered. The id is forgotten entirely; later decisions for it report
// ErrUnknownRequest.
func (c *Coordinator) Withdraw(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok := c.open[id]
	if !ok {
		return false
	}
	delete(c.open, id)
	delete(c.byItem, req.Item.Key)
	return true
}

// OpenCount reports the number of requests not yet resolved.
func (c *Coordinator) OpenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.open)
}

// resolve moves req to a terminal state and drops it from the open table.
// Terminal ids are kept for the life of the process so a late decision maps
// to ErrAlreadyResolved rather than ErrUnknownRequest. Caller holds c.mu.
func (c *Coordinator) resolve(req *domain.ApprovalRequest, state domain.ApprovalState) {
	req.State = state
	delete(c.open, req.ID)
	delete(c.byItem, req.Item.Key)
	c.resolved[req.ID] = state
}
