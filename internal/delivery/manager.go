// Package delivery renders responses into a chat transport. It owns the
// edit-or-send policy for menu messages and the sequencing of item photos.
package delivery

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"merchbot/core/logger"
	"merchbot/internal/catalog"
)

// Markup selects the formatting of an outbound text payload.
type Markup string

const (
	MarkupNone     Markup = ""
	MarkupMarkdown Markup = "Markdown"
)

// Keyboard is an opaque reply-control payload forwarded to the transport.
// The bot layer builds it; delivery only carries it along.
type Keyboard any

// Transport is the outbound half of the chat client.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, markup Markup, kb Keyboard) (messageID int, err error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, markup Markup, kb Keyboard) error
	SendPhoto(ctx context.Context, chatID int64, path string) error
}

// Manager sequences outbound messages for one response.
type Manager struct {
	tr        Transport
	mediaDir  string
	sendDelay time.Duration
	timeout   time.Duration
}

// NewManager builds a delivery manager. mediaDir anchors relative photo
// filenames from the catalog.
func NewManager(tr Transport, mediaDir string, sendDelay, sendTimeout time.Duration) *Manager {
	if sendDelay <= 0 {
		sendDelay = 300 * time.Millisecond
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &Manager{tr: tr, mediaDir: mediaDir, sendDelay: sendDelay, timeout: sendTimeout}
}

// ShowMenu renders a menu, editing the previous menu message in place when
// one exists. It returns the id of the message now holding the menu; the
// caller persists it on the session.
func (m *Manager) ShowMenu(ctx context.Context, chatID int64, lastMessageID int, text string, kb Keyboard) (int, error) {
	if lastMessageID != 0 {
		err := m.withTimeout(ctx, func(sctx context.Context) error {
			return m.tr.EditMessage(sctx, chatID, lastMessageID, text, MarkupNone, kb)
		})
		if err == nil {
			return lastMessageID, nil
		}
		// Edit fails when the message was deleted or is too old; fall
		// through to a fresh send.
		logger.Debug(ctx, "delivery", "menu.edit",
			slog.String("status", "fallback"),
			slog.Int("message_id", lastMessageID),
			slog.String("err", err.Error()),
		)
	}

	var newID int
	err := m.withTimeout(ctx, func(sctx context.Context) error {
		id, sendErr := m.tr.SendText(sctx, chatID, text, MarkupNone, kb)
		newID = id
		return sendErr
	})
	if err != nil {
		logger.Error(ctx, "delivery", "menu.send",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return 0, err
	}
	return newID, nil
}

// SendItem delivers a terminal item: photos first, in order, then the
// description. A single photo failure never aborts the rest.
func (m *Manager) SendItem(ctx context.Context, chatID int64, item *catalog.ItemDetail, kb Keyboard) error {
	if item == nil {
		return nil
	}

	for i, name := range item.Photos {
		if i > 0 {
			select {
			case <-time.After(m.sendDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		m.sendOnePhoto(ctx, chatID, name)
	}

	text := item.Text
	if text == "" {
		text = item.Name
	}
	return m.sendTextWithFallback(ctx, chatID, text, kb)
}

// SendText delivers a standalone message with the Markdown-then-plain policy.
func (m *Manager) SendText(ctx context.Context, chatID int64, text string, kb Keyboard) error {
	return m.sendTextWithFallback(ctx, chatID, text, kb)
}

func (m *Manager) sendOnePhoto(ctx context.Context, chatID int64, name string) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.mediaDir, name)
	}
	if _, err := os.Stat(path); err != nil {
		logger.Warn(ctx, "delivery", "photo.send",
			slog.String("status", "skip"),
			slog.String("file", logger.Sanitize(name)),
			slog.String("err", err.Error()),
		)
		return
	}

	err := m.withTimeout(ctx, func(sctx context.Context) error {
		return m.tr.SendPhoto(sctx, chatID, path)
	})
	if err != nil {
		logger.Warn(ctx, "delivery", "photo.send",
			slog.String("status", "fail"),
			slog.String("file", logger.Sanitize(name)),
			slog.String("err", err.Error()),
		)
	}
}

func (m *Manager) sendTextWithFallback(ctx context.Context, chatID int64, text string, kb Keyboard) error {
	err := m.withTimeout(ctx, func(sctx context.Context) error {
		_, sendErr := m.tr.SendText(sctx, chatID, text, MarkupMarkdown, kb)
		return sendErr
	})
	if err == nil {
		return nil
	}

	logger.Warn(ctx, "delivery", "text.send",
		slog.String("status", "fallback_plain"),
		slog.String("err", err.Error()),
	)

	err = m.withTimeout(ctx, func(sctx context.Context) error {
		_, sendErr := m.tr.SendText(sctx, chatID, text, MarkupNone, kb)
		return sendErr
	})
	if err != nil {
		logger.Error(ctx, "delivery", "text.send",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	return err
}

func (m *Manager) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return fn(sctx)
}
