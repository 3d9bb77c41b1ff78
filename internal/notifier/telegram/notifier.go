package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"pubgate/internal/domain"
)

const (
	callbackApprove = "approve"
	callbackEdit    = "edit"
	callbackIgnore  = "ignore"

	decisionBuffer = 16
	pollRetryDelay = 3 * time.Second
)

// Config holds Telegram notifier configuration.
type Config struct {
	APIBaseURL  string
	Token       string
	ChatID      int64
	PollTimeout time.Duration
	Timeout     time.Duration
}

// Notifier carries review traffic over the Telegram Bot API. Review messages
// go out with an inline keyboard; button presses and edit replies come back
// through getUpdates long polling.
type Notifier struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	chatID      int64
	pollTimeout time.Duration
	logger      *slog.Logger

	mu           sync.Mutex
	offset       int64
	pendingEdits map[int64]string // edit prompt message id -> request id
}

// New creates a new Telegram notifier.
func New(cfg Config, logger *slog.Logger) *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:      strings.TrimSuffix(cfg.APIBaseURL, "/"),
		token:        cfg.Token,
		chatID:       cfg.ChatID,
		pollTimeout:  cfg.PollTimeout,
		logger:       logger.With("component", "telegram"),
		pendingEdits: make(map[int64]string),
	}
}

// Send delivers the review message for req and returns its message id.
func (n *Notifier) Send(ctx context.Context, req domain.ApprovalRequest) (string, error) {
	text := fmt.Sprintf("Title: %s\nSource: %s\n\nSummary:\n%s\n\n%s",
		req.Item.Title, req.Item.SourceID, req.Summary, req.Item.URL)

	markup := InlineKeyboardMarkup{
		InlineKeyboard: [][]InlineKeyboardButton{
			{{Text: "✅ Post", CallbackData: callbackApprove + ":" + req.ID}},
			{{Text: "✏️ Edit", CallbackData: callbackEdit + ":" + req.ID}},
			{{Text: "❌ Ignore", CallbackData: callbackIgnore + ":" + req.ID}},
		},
	}

	msg, err := n.sendMessage(ctx, SendMessageRequest{
		ChatID:      n.chatID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil {
		return "", fmt.Errorf("send review message: %w", err)
	}

	return strconv.FormatInt(msg.MessageID, 10), nil
}

// Decisions starts long polling and returns the stream of operator decisions.
// The channel closes when ctx is done.
func (n *Notifier) Decisions(ctx context.Context) (<-chan domain.Decision, error) {
	out := make(chan domain.Decision, decisionBuffer)
	go n.poll(ctx, out)
	return out, nil
}

// NotifyFailure tells the operator that an approved item could not be posted.
func (n *Notifier) NotifyFailure(ctx context.Context, item domain.ContentItem, diagnostic string) error {
	text := fmt.Sprintf("Publish failed: %s\n%s\n\n%s", item.Title, item.URL, diagnostic)

	if _, err := n.sendMessage(ctx, SendMessageRequest{ChatID: n.chatID, Text: text}); err != nil {
		return fmt.Errorf("send failure notice: %w", err)
	}
	return nil
}

func (n *Notifier) poll(ctx context.Context, out chan<- domain.Decision) {
	defer close(out)

	for {
		if ctx.Err() != nil {
			return
		}

		updates, err := n.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n.logger.Warn("poll updates failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollRetryDelay):
			}
			continue
		}

		for _, upd := range updates {
			n.advanceOffset(upd.UpdateID)

			dec, ok := n.handleUpdate(ctx, upd)
			if !ok {
				continue
			}

			select {
			case out <- dec:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (n *Notifier) handleUpdate(ctx context.Context, upd Update) (domain.Decision, bool) {
	switch {
	case upd.CallbackQuery != nil:
		return n.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		return n.handleMessage(ctx, upd.Message)
	}
	return domain.Decision{}, false
}

func (n *Notifier) handleCallback(ctx context.Context, cb *CallbackQuery) (domain.Decision, bool) {
	n.answerCallback(ctx, cb.ID)

	if cb.Message != nil && cb.Message.Chat.ID != n.chatID {
		n.logger.Warn("callback from unexpected chat", "chat_id", cb.Message.Chat.ID)
		return domain.Decision{}, false
	}

	kind, requestID, ok := strings.Cut(cb.Data, ":")
	if !ok || requestID == "" {
		n.logger.Warn("malformed callback data", "data", cb.Data)
		return domain.Decision{}, false
	}

	switch kind {
	case callbackApprove:
		return domain.Decision{RequestID: requestID, Kind: domain.DecisionApprove, ReceivedAt: time.Now()}, true
	case callbackIgnore:
		return domain.Decision{RequestID: requestID, Kind: domain.DecisionIgnore, ReceivedAt: time.Now()}, true
	case callbackEdit:
		// The request moves to editing only once a prompt to reply to exists
		if !n.promptForEdit(ctx, requestID) {
			return domain.Decision{}, false
		}
		return domain.Decision{RequestID: requestID, Kind: domain.DecisionEditRequest, ReceivedAt: time.Now()}, true
	default:
		n.logger.Warn("unknown callback action", "data", cb.Data)
		return domain.Decision{}, false
	}
}

func (n *Notifier) handleMessage(ctx context.Context, msg *Message) (domain.Decision, bool) {
	if msg.Text == "/start" {
		if _, err := n.sendMessage(ctx, SendMessageRequest{
			ChatID: msg.Chat.ID,
			Text:   fmt.Sprintf("Your chat ID is: %d", msg.Chat.ID),
		}); err != nil {
			n.logger.Warn("start reply failed", "error", err)
		}
		return domain.Decision{}, false
	}

	if msg.Chat.ID != n.chatID || msg.ReplyToMessage == nil {
		return domain.Decision{}, false
	}

	n.mu.Lock()
	requestID, ok := n.pendingEdits[msg.ReplyToMessage.MessageID]
	n.mu.Unlock()
	if !ok {
		return domain.Decision{}, false
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		n.logger.Warn("empty edit reply ignored", "request_id", requestID)
		return domain.Decision{}, false
	}

	n.mu.Lock()
	delete(n.pendingEdits, msg.ReplyToMessage.MessageID)
	n.mu.Unlock()

	return domain.Decision{RequestID: requestID, Kind: domain.DecisionEditSubmit, Text: text, ReceivedAt: time.Now()}, true
}

// promptForEdit asks the operator to reply with replacement text and remembers
// which request the eventual reply belongs to.
func (n *Notifier) promptForEdit(ctx context.Context, requestID string) bool {
	msg, err := n.sendMessage(ctx, SendMessageRequest{
		ChatID:      n.chatID,
		Text:        "Reply to this message with the new summary.",
		ReplyMarkup: ForceReply{ForceReply: true, InputFieldPlaceholder: "New summary"},
	})
	if err != nil {
		n.logger.Error("edit prompt failed", "request_id", requestID, "error", err)
		return false
	}

	n.mu.Lock()
	n.pendingEdits[msg.MessageID] = requestID
	n.mu.Unlock()

	return true
}

func (n *Notifier) getUpdates(ctx context.Context) ([]Update, error) {
	n.mu.Lock()
	offset := n.offset
	n.mu.Unlock()

	var updates []Update
	err := n.call(ctx, "getUpdates", GetUpdatesRequest{
		Offset:         offset,
		Timeout:        int(n.pollTimeout.Seconds()),
		AllowedUpdates: []string{"message", "callback_query"},
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

func (n *Notifier) advanceOffset(updateID int64) {
	n.mu.Lock()
	if updateID >= n.offset {
		n.offset = updateID + 1
	}
	n.mu.Unlock()
}

func (n *Notifier) answerCallback(ctx context.Context, callbackID string) {
	if err := n.call(ctx, "answerCallbackQuery", AnswerCallbackQueryRequest{CallbackQueryID: callbackID}, nil); err != nil {
		n.logger.Warn("answer callback failed", "error", err)
	}
}

func (n *Notifier) sendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	var msg Message
	if err := n.call(ctx, "sendMessage", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// call invokes one Bot API method and decodes its result into result when
// result is non-nil.
func (n *Notifier) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	var envelope Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s: status %d: decode response: %w", method, resp.StatusCode, err)
	}

	if !envelope.OK {
		return fmt.Errorf("%s: %s (code %d)", method, envelope.Description, envelope.ErrorCode)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}

	return nil
}
