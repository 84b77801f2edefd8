package bot

import (
	"context"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"merchbot/core/logger"
	"merchbot/internal/delivery"
)

// TextSender is the outbound slice of delivery.Manager the broadcaster needs.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string, kb delivery.Keyboard) error
}

// BroadcastError records one recipient's failure.
type BroadcastError struct {
	RecipientID int64
	Message     string
}

// BroadcastResult reports exact, mutually exclusive per-recipient outcomes.
type BroadcastResult struct {
	SuccessCount int
	FailureCount int
	Errors       []BroadcastError

	combined *multierror.Error
}

// Err aggregates all per-recipient errors, nil when every send succeeded.
func (r *BroadcastResult) Err() error {
	return r.combined.ErrorOrNil()
}

// Broadcaster fans one message out to many recipients, one send at a time.
// Sequential delivery keeps the outbound rate bounded.
type Broadcaster struct {
	sender TextSender
}

// NewBroadcaster builds a broadcaster over the given sender.
func NewBroadcaster(sender TextSender) *Broadcaster {
	return &Broadcaster{sender: sender}
}

// Broadcast sends text to every recipient in order. A failed recipient is
// recorded and the remaining sends continue; a cancelled context counts the
// unreached recipients as failures so the totals stay exact.
func (b *Broadcaster) Broadcast(ctx context.Context, recipientIDs []int64, text string) BroadcastResult {
	var res BroadcastResult

	for _, id := range recipientIDs {
		if err := ctx.Err(); err != nil {
			res.fail(id, err)
			continue
		}
		if err := b.sender.SendText(ctx, id, text, nil); err != nil {
			res.fail(id, err)
			continue
		}
		res.SuccessCount++
	}

	logger.Info(ctx, "broadcast", "fanout",
		slog.Int("recipients", len(recipientIDs)),
		slog.Int("ok", res.SuccessCount),
		slog.Int("failed", res.FailureCount),
	)
	return res
}

// SendToUser delivers one direct message, reporting success as a boolean.
func (b *Broadcaster) SendToUser(ctx context.Context, userID int64, text string) bool {
	if err := b.sender.SendText(ctx, userID, text, nil); err != nil {
		logger.Warn(ctx, "broadcast", "direct.send",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return false
	}
	return true
}

func (r *BroadcastResult) fail(recipientID int64, err error) {
	r.FailureCount++
	r.Errors = append(r.Errors, BroadcastError{RecipientID: recipientID, Message: err.Error()})
	r.combined = multierror.Append(r.combined, err)
}
