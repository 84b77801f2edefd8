package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	tele "gopkg.in/telebot.v4"

	"merchbot/internal/delivery"
)

// ErrNotConnected is returned for outbound calls before a client exists.
var ErrNotConnected = errors.New("bot: transport not connected")

// SwitchTransport delegates to the transport of the currently running
// client. The delivery manager is built once at startup, while the telebot
// client is rebuilt on every launch and restart; this indirection lets the
// manager survive those rebuilds.
type SwitchTransport struct {
	mu sync.RWMutex
	t  delivery.Transport
}

// NewSwitchTransport returns an unconnected switchable transport.
func NewSwitchTransport() *SwitchTransport {
	return &SwitchTransport{}
}

// Swap points the transport at a new live client.
func (s *SwitchTransport) Swap(t delivery.Transport) {
	s.mu.Lock()
	s.t = t
	s.mu.Unlock()
}

func (s *SwitchTransport) current() (delivery.Transport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.t == nil {
		return nil, ErrNotConnected
	}
	return s.t, nil
}

func (s *SwitchTransport) SendText(ctx context.Context, chatID int64, text string, markup delivery.Markup, kb delivery.Keyboard) (int, error) {
	t, err := s.current()
	if err != nil {
		return 0, err
	}
	return t.SendText(ctx, chatID, text, markup, kb)
}

func (s *SwitchTransport) EditMessage(ctx context.Context, chatID int64, messageID int, text string, markup delivery.Markup, kb delivery.Keyboard) error {
	t, err := s.current()
	if err != nil {
		return err
	}
	return t.EditMessage(ctx, chatID, messageID, text, markup, kb)
}

func (s *SwitchTransport) SendPhoto(ctx context.Context, chatID int64, path string) error {
	t, err := s.current()
	if err != nil {
		return err
	}
	return t.SendPhoto(ctx, chatID, path)
}

// fileDownloader is the optional inbound half a transport may provide.
type fileDownloader interface {
	DownloadFile(ctx context.Context, fileID string, maxBytes int64) ([]byte, error)
}

// DownloadFile fetches an upload through the current client. Handlers go
// through here rather than holding a client reference of their own, so a
// restart never leaves them reading a stale bot instance.
func (s *SwitchTransport) DownloadFile(ctx context.Context, fileID string, maxBytes int64) ([]byte, error) {
	t, err := s.current()
	if err != nil {
		return nil, err
	}
	d, ok := t.(fileDownloader)
	if !ok {
		return nil, ErrNotConnected
	}
	return d.DownloadFile(ctx, fileID, maxBytes)
}

// teleTransport adapts tele.Bot to the delivery.Transport interface.
// telebot calls carry no context of their own, so the context is only
// checked before each call; an in-flight request is bounded by the HTTP
// client's own timeout.
type teleTransport struct {
	b *tele.Bot
}

func newTeleTransport(b *tele.Bot) *teleTransport {
	return &teleTransport{b: b}
}

func (t *teleTransport) SendText(ctx context.Context, chatID int64, text string, markup delivery.Markup, kb delivery.Keyboard) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg, err := t.b.Send(tele.ChatID(chatID), text, sendOpts(markup, kb)...)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (t *teleTransport) EditMessage(ctx context.Context, chatID int64, messageID int, text string, markup delivery.Markup, kb delivery.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    chatID,
	}
	_, err := t.b.Edit(stored, text, sendOpts(markup, kb)...)
	return err
}

func (t *teleTransport) SendPhoto(ctx context.Context, chatID int64, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := &tele.Photo{File: tele.FromDisk(path)}
	_, err := t.b.Send(tele.ChatID(chatID), photo)
	return err
}

// DownloadFile fetches an uploaded file's bytes, refusing anything over
// maxBytes so the feedback wizard never buffers an oversized upload.
func (t *teleTransport) DownloadFile(ctx context.Context, fileID string, maxBytes int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := t.b.File(&tele.File{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("open remote file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read remote file: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxBytes)
	}
	return data, nil
}

func sendOpts(markup delivery.Markup, kb delivery.Keyboard) []interface{} {
	var opts []interface{}
	if markup == delivery.MarkupMarkdown {
		opts = append(opts, tele.ModeMarkdown)
	}
	if rm, ok := kb.(*tele.ReplyMarkup); ok && rm != nil {
		opts = append(opts, rm)
	}
	return opts
}
