package feedback

import (
	"context"
	"errors"
	"strings"
	"testing"

	"merchbot/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	saved []Record
	err   error
}

func (f *fakeStore) Save(ctx context.Context, rec Record) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, rec)
	return nil
}

type fakeFiles struct {
	names []string
	err   error
}

func (f *fakeFiles) SaveFile(data []byte, suggestedName string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.names = append(f.names, suggestedName)
	return suggestedName, nil
}

func newTestWizard(store Store, files ObjectStorage) *Wizard {
	if store == nil {
		store = &fakeStore{}
	}
	if files == nil {
		files = &fakeFiles{}
	}
	return NewWizard(store, files)
}

func sender() Sender {
	return Sender{UserID: 7, Username: "buyer", FirstName: "Ada", LastName: "L"}
}

func advanceToPhoto(t *testing.T, w *Wizard, st *session.FeedbackState) {
	t.Helper()
	r := w.HandleText(context.Background(), st, sender(), "ada@example.com")
	require.Equal(t, session.StepText, st.Step, r.Prompt)
	r = w.HandleText(context.Background(), st, sender(), "the hoodie shrank after one wash")
	require.Equal(t, session.StepPhoto, st.Step, r.Prompt)
}

func TestEmailStepValidation(t *testing.T) {
	w := newTestWizard(nil, nil)
	st, prompt := w.Start()
	assert.Contains(t, prompt, "email")

	r := w.HandleText(context.Background(), st, sender(), "   ")
	assert.Contains(t, r.Prompt, "empty")
	assert.Equal(t, session.StepEmail, st.Step)

	r = w.HandleText(context.Background(), st, sender(), strings.Repeat("a", 250)+"@example.com")
	assert.Contains(t, r.Prompt, "too long")

	r = w.HandleText(context.Background(), st, sender(), "not-an-email")
	assert.Contains(t, r.Prompt, "doesn't look like")

	r = w.HandleText(context.Background(), st, sender(), "ada@example.com")
	assert.Equal(t, session.StepText, st.Step)
	assert.Equal(t, "ada@example.com", st.Email)
	assert.False(t, r.Submitted)
}

func TestTextStepBounds(t *testing.T) {
	w := newTestWizard(nil, nil)
	st, _ := w.Start()
	w.HandleText(context.Background(), st, sender(), "ada@example.com")

	r := w.HandleText(context.Background(), st, sender(), "too short")
	assert.Contains(t, r.Prompt, "at least 10")
	assert.Equal(t, session.StepText, st.Step)

	r = w.HandleText(context.Background(), st, sender(), strings.Repeat("x", 4097))
	assert.Contains(t, r.Prompt, "too long")

	r = w.HandleText(context.Background(), st, sender(), "quality dropped on the last batch")
	assert.Equal(t, session.StepPhoto, st.Step)
}

func TestDoneWithoutPhotosSubmits(t *testing.T) {
	store := &fakeStore{}
	w := newTestWizard(store, nil)
	st, _ := w.Start()
	advanceToPhoto(t, w, st)

	r := w.HandleText(context.Background(), st, sender(), "DONE")

	assert.True(t, r.Submitted)
	require.Len(t, store.saved, 1)
	rec := store.saved[0]
	assert.Equal(t, "ada@example.com", rec.Email)
	assert.Empty(t, rec.Photos)
	assert.Equal(t, "merch_bot", rec.Tool)
	assert.Equal(t, int64(7), rec.UserID)
	assert.Equal(t, "Ada L", rec.FullName)
}

func TestPhotoStepAcceptsUpToCap(t *testing.T) {
	files := &fakeFiles{}
	w := NewWizard(&fakeStore{}, files, WithMaxPhotos(2))
	st, _ := w.Start()
	advanceToPhoto(t, w, st)

	r := w.HandlePhoto(context.Background(), st, 100, []byte("img"), "a.jpg")
	assert.Contains(t, r.Prompt, "Photo 1 saved")

	r = w.HandlePhoto(context.Background(), st, 100, []byte("img"), "b.jpg")
	assert.Contains(t, r.Prompt, "Photo 2 saved")

	r = w.HandlePhoto(context.Background(), st, 100, []byte("img"), "c.jpg")
	assert.Contains(t, r.Prompt, "limit")
	assert.Len(t, st.Photos, 2)
}

func TestOversizedPhotoRejectedWithRetryPrompt(t *testing.T) {
	w := newTestWizard(nil, nil)
	st, _ := w.Start()
	advanceToPhoto(t, w, st)

	r := w.HandlePhoto(context.Background(), st, 25<<20, nil, "big.jpg")

	assert.Contains(t, r.Prompt, "too large")
	assert.Empty(t, st.Photos)
}

func TestUnexpectedInputDuringPhotoStep(t *testing.T) {
	w := newTestWizard(nil, nil)
	st, _ := w.Start()
	advanceToPhoto(t, w, st)

	r := w.HandleText(context.Background(), st, sender(), "is this thing on?")

	assert.False(t, r.Submitted)
	assert.Contains(t, r.Prompt, "done")
}

func TestSubmitFailurePreservesState(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	w := newTestWizard(store, nil)
	st, _ := w.Start()
	advanceToPhoto(t, w, st)
	w.HandlePhoto(context.Background(), st, 100, []byte("img"), "a.jpg")

	r := w.HandleText(context.Background(), st, sender(), "done")

	assert.False(t, r.Submitted)
	assert.Equal(t, "ada@example.com", st.Email)
	assert.Len(t, st.Photos, 1)
	assert.Equal(t, session.StepPhoto, st.Step, "user can retry with done")

	// Retry succeeds once the store recovers.
	store.err = nil
	r = w.HandleText(context.Background(), st, sender(), "done")
	assert.True(t, r.Submitted)
	require.Len(t, store.saved, 1)
	assert.Len(t, store.saved[0].Photos, 1)
}

func TestPhotoSaveFailurePrompt(t *testing.T) {
	files := &fakeFiles{err: errors.New("disk full")}
	w := newTestWizard(nil, files)
	st, _ := w.Start()
	advanceToPhoto(t, w, st)

	r := w.HandlePhoto(context.Background(), st, 100, []byte("img"), "a.jpg")

	assert.Contains(t, r.Prompt, "try sending it again")
	assert.Empty(t, st.Photos)
}
