package delivery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"merchbot/internal/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	kind   string
	text   string
	markup Markup
	path   string
}

type fakeTransport struct {
	calls []call

	editErr  error
	sendErr  error
	photoErr map[string]error

	// mdErr rejects only Markdown sends, simulating malformed markup.
	mdErr error

	nextID int
}

func (f *fakeTransport) SendText(ctx context.Context, chatID int64, text string, markup Markup, kb Keyboard) (int, error) {
	f.calls = append(f.calls, call{kind: "send", text: text, markup: markup})
	if markup == MarkupMarkdown && f.mdErr != nil {
		return 0, f.mdErr
	}
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.nextID++
	return f.nextID + 100, nil
}

func (f *fakeTransport) EditMessage(ctx context.Context, chatID int64, messageID int, text string, markup Markup, kb Keyboard) error {
	f.calls = append(f.calls, call{kind: "edit", text: text})
	return f.editErr
}

func (f *fakeTransport) SendPhoto(ctx context.Context, chatID int64, path string) error {
	f.calls = append(f.calls, call{kind: "photo", path: path})
	if f.photoErr != nil {
		if err, ok := f.photoErr[filepath.Base(path)]; ok {
			return err
		}
	}
	return nil
}

func newTestManager(tr Transport, mediaDir string) *Manager {
	return NewManager(tr, mediaDir, time.Millisecond, time.Second)
}

func writePhoto(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("jpeg"), 0o644))
}

func TestShowMenuEditsInPlace(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(tr, t.TempDir())

	id, err := m.ShowMenu(context.Background(), 1, 55, "menu", nil)

	require.NoError(t, err)
	assert.Equal(t, 55, id)
	require.Len(t, tr.calls, 1)
	assert.Equal(t, "edit", tr.calls[0].kind)
}

func TestShowMenuFallsBackToSendOnEditFailure(t *testing.T) {
	tr := &fakeTransport{editErr: errors.New("message to edit not found")}
	m := newTestManager(tr, t.TempDir())

	id, err := m.ShowMenu(context.Background(), 1, 55, "menu", nil)

	require.NoError(t, err)
	assert.NotEqual(t, 55, id)
	assert.NotZero(t, id)
	require.Len(t, tr.calls, 2)
	assert.Equal(t, "edit", tr.calls[0].kind)
	assert.Equal(t, "send", tr.calls[1].kind)
}

func TestShowMenuSendsFreshWithoutPriorMessage(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(tr, t.TempDir())

	id, err := m.ShowMenu(context.Background(), 1, 0, "menu", nil)

	require.NoError(t, err)
	assert.NotZero(t, id)
	require.Len(t, tr.calls, 1)
	assert.Equal(t, "send", tr.calls[0].kind)
}

func TestSendItemPhotosInOrderThenText(t *testing.T) {
	dir := t.TempDir()
	writePhoto(t, dir, "a.jpg")
	writePhoto(t, dir, "b.jpg")
	tr := &fakeTransport{}
	m := newTestManager(tr, dir)

	item := &catalog.ItemDetail{
		Node:   catalog.Node{ID: "7", Name: "Hoodie", Text: "*Cozy* hoodie"},
		Photos: []string{"a.jpg", "b.jpg"},
	}
	require.NoError(t, m.SendItem(context.Background(), 1, item, nil))

	require.Len(t, tr.calls, 3)
	assert.Equal(t, "photo", tr.calls[0].kind)
	assert.Equal(t, "a.jpg", filepath.Base(tr.calls[0].path))
	assert.Equal(t, "photo", tr.calls[1].kind)
	assert.Equal(t, "b.jpg", filepath.Base(tr.calls[1].path))
	assert.Equal(t, "send", tr.calls[2].kind)
	assert.Equal(t, MarkupMarkdown, tr.calls[2].markup)
}

func TestSendItemSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	writePhoto(t, dir, "b.jpg")
	tr := &fakeTransport{}
	m := newTestManager(tr, dir)

	item := &catalog.ItemDetail{
		Node:   catalog.Node{ID: "7", Name: "Hoodie", Text: "desc text"},
		Photos: []string{"missing.jpg", "b.jpg"},
	}
	require.NoError(t, m.SendItem(context.Background(), 1, item, nil))

	var photos []string
	for _, c := range tr.calls {
		if c.kind == "photo" {
			photos = append(photos, filepath.Base(c.path))
		}
	}
	assert.Equal(t, []string{"b.jpg"}, photos)
}

func TestSendItemIsolatesPhotoFailures(t *testing.T) {
	dir := t.TempDir()
	writePhoto(t, dir, "a.jpg")
	writePhoto(t, dir, "b.jpg")
	tr := &fakeTransport{photoErr: map[string]error{"a.jpg": errors.New("flood wait")}}
	m := newTestManager(tr, dir)

	item := &catalog.ItemDetail{
		Node:   catalog.Node{ID: "7", Name: "Hoodie", Text: "desc text"},
		Photos: []string{"a.jpg", "b.jpg"},
	}
	require.NoError(t, m.SendItem(context.Background(), 1, item, nil))

	require.Len(t, tr.calls, 3)
	assert.Equal(t, "b.jpg", filepath.Base(tr.calls[1].path))
	assert.Equal(t, "send", tr.calls[2].kind)
}

func TestMarkdownFallsBackToPlainOnce(t *testing.T) {
	tr := &fakeTransport{mdErr: errors.New("can't parse entities")}
	m := newTestManager(tr, t.TempDir())

	err := m.SendText(context.Background(), 1, "*broken", nil)

	require.NoError(t, err)
	require.Len(t, tr.calls, 2)
	assert.Equal(t, MarkupMarkdown, tr.calls[0].markup)
	assert.Equal(t, MarkupNone, tr.calls[1].markup)
}

func TestPlainFallbackFailureIsReturned(t *testing.T) {
	tr := &fakeTransport{mdErr: errors.New("can't parse entities"), sendErr: errors.New("blocked by user")}
	m := newTestManager(tr, t.TempDir())

	err := m.SendText(context.Background(), 1, "hello there", nil)

	assert.Error(t, err)
	assert.Len(t, tr.calls, 2)
}

func TestSendItemCancelledBetweenPhotos(t *testing.T) {
	dir := t.TempDir()
	writePhoto(t, dir, "a.jpg")
	writePhoto(t, dir, "b.jpg")
	tr := &fakeTransport{}
	m := NewManager(tr, dir, 50*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	item := &catalog.ItemDetail{
		Node:   catalog.Node{ID: "7", Name: "Hoodie"},
		Photos: []string{"a.jpg", "b.jpg"},
	}
	err := m.SendItem(ctx, 1, item, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, tr.calls, 1)
}
