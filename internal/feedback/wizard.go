// Package feedback implements the multi-step feedback wizard:
// email, then text, then optional photos, then submission.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"merchbot/core/logger"
	"merchbot/internal/session"

	"log/slog"
)

const (
	// MaxEmailLen bounds the email step input.
	MaxEmailLen = 255
	// MinTextLen / MaxTextLen bound the message step input.
	MinTextLen = 10
	MaxTextLen = 4096
	// DefaultMaxPhotos caps attachments per record.
	DefaultMaxPhotos = 10
	// DefaultMaxPhotoBytes rejects oversized photo uploads.
	DefaultMaxPhotoBytes = 20 << 20

	// doneToken completes the photo step, case-insensitive.
	doneToken = "done"

	// sourceTool tags saved records with the submitting surface.
	sourceTool = "merch_bot"
)

// Sender describes who is submitting, recorded alongside the feedback text.
type Sender struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

// Record is the persisted feedback entry.
type Record struct {
	Tool      string
	Email     string
	Text      string
	Photos    []string
	UserID    int64
	Username  string
	FullName  string
	CreatedAt time.Time
}

// Store persists completed feedback records.
type Store interface {
	Save(ctx context.Context, rec Record) error
}

// ObjectStorage saves uploaded photo bytes and returns the stored filename.
type ObjectStorage interface {
	SaveFile(data []byte, suggestedName string) (string, error)
}

// Reply tells the caller what to show the user and whether the wizard is over.
type Reply struct {
	Prompt string
	// Submitted is true when a record was persisted; the caller clears
	// the wizard state and mode.
	Submitted bool
}

// Wizard validates step input and drives the linear flow.
type Wizard struct {
	store    Store
	files    ObjectStorage
	validate *validator.Validate

	maxPhotos     int
	maxPhotoBytes int64
}

// Option tweaks wizard limits.
type Option func(*Wizard)

// WithMaxPhotos overrides the per-record photo cap.
func WithMaxPhotos(n int) Option {
	return func(w *Wizard) {
		if n > 0 {
			w.maxPhotos = n
		}
	}
}

// WithMaxPhotoBytes overrides the per-photo size cap.
func WithMaxPhotoBytes(n int64) Option {
	return func(w *Wizard) {
		if n > 0 {
			w.maxPhotoBytes = n
		}
	}
}

// NewWizard builds a wizard over the given stores.
func NewWizard(store Store, files ObjectStorage, opts ...Option) *Wizard {
	w := &Wizard{
		store:         store,
		files:         files,
		validate:      validator.New(),
		maxPhotos:     DefaultMaxPhotos,
		maxPhotoBytes: DefaultMaxPhotoBytes,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// MaxPhotoBytes exposes the size cap so the transport can skip oversized
// downloads.
func (w *Wizard) MaxPhotoBytes() int64 {
	return w.maxPhotoBytes
}

// Start returns fresh wizard state and the first prompt.
func (w *Wizard) Start() (*session.FeedbackState, string) {
	return &session.FeedbackState{Step: session.StepEmail},
		"Let's collect your feedback. First, what is your email address?"
}

// HandleText advances the wizard with one free-text input.
func (w *Wizard) HandleText(ctx context.Context, st *session.FeedbackState, from Sender, input string) Reply {
	switch st.Step {
	case session.StepEmail:
		return w.handleEmail(st, input)
	case session.StepText:
		return w.handleMessage(st, input)
	case session.StepPhoto:
		if strings.EqualFold(strings.TrimSpace(input), doneToken) {
			return w.submit(ctx, st, from)
		}
		return Reply{Prompt: "Send a photo, or type \"done\" to submit your feedback."}
	}
	return Reply{Prompt: "Send a photo, or type \"done\" to submit your feedback."}
}

// HandlePhoto stores one uploaded photo during the photo step.
func (w *Wizard) HandlePhoto(ctx context.Context, st *session.FeedbackState, sizeBytes int64, data []byte, suggestedName string) Reply {
	if st.Step != session.StepPhoto {
		return Reply{Prompt: "Not expecting a photo yet. Please answer the current question first."}
	}
	if sizeBytes > w.maxPhotoBytes {
		return Reply{Prompt: fmt.Sprintf("That photo is too large (over %d MB). Please send a smaller one.", w.maxPhotoBytes>>20)}
	}
	if len(st.Photos) >= w.maxPhotos {
		return Reply{Prompt: fmt.Sprintf("Photo limit of %d reached. Type \"done\" to submit.", w.maxPhotos)}
	}

	name, err := w.files.SaveFile(data, suggestedName)
	if err != nil {
		logger.Warn(ctx, "feedback", "photo.save",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return Reply{Prompt: "Couldn't store that photo. Please try sending it again."}
	}
	st.Photos = append(st.Photos, name)

	logger.Debug(ctx, "feedback", "photo.save",
		slog.String("status", "ok"),
		slog.Int("photos", len(st.Photos)),
	)
	return Reply{Prompt: fmt.Sprintf("Photo %d saved. Send another, or type \"done\" to submit.", len(st.Photos))}
}

func (w *Wizard) handleEmail(st *session.FeedbackState, input string) Reply {
	email := strings.TrimSpace(input)
	if email == "" {
		return Reply{Prompt: "Email cannot be empty. Please enter your email address."}
	}
	if len(email) > MaxEmailLen {
		return Reply{Prompt: "That email is too long. Please enter a valid email address."}
	}
	if err := w.validate.Var(email, "email"); err != nil {
		return Reply{Prompt: "That doesn't look like an email address. Please try again."}
	}
	st.Email = email
	st.Step = session.StepText
	return Reply{Prompt: "Thanks! Now describe your feedback (10 to 4096 characters)."}
}

func (w *Wizard) handleMessage(st *session.FeedbackState, input string) Reply {
	text := strings.TrimSpace(input)
	n := utf8.RuneCountInString(text)
	if n < MinTextLen {
		return Reply{Prompt: "Please write a bit more, at least 10 characters."}
	}
	if n > MaxTextLen {
		return Reply{Prompt: "That message is too long, 4096 characters max. Please shorten it."}
	}
	st.Text = text
	st.Step = session.StepPhoto
	return Reply{Prompt: "Got it. Attach photos if you like, then type \"done\" to submit. Photos are optional."}
}

func (w *Wizard) submit(ctx context.Context, st *session.FeedbackState, from Sender) Reply {
	// The linear flow guarantees these; check anyway so a broken state
	// never produces an empty record.
	if st.Email == "" || st.Text == "" {
		st.Step = session.StepEmail
		return Reply{Prompt: "Something went missing. Let's start over: what is your email address?"}
	}

	rec := Record{
		Tool:      sourceTool,
		Email:     st.Email,
		Text:      st.Text,
		Photos:    append([]string(nil), st.Photos...),
		UserID:    from.UserID,
		Username:  from.Username,
		FullName:  strings.TrimSpace(from.FirstName + " " + from.LastName),
		CreatedAt: time.Now().UTC(),
	}

	if err := w.store.Save(ctx, rec); err != nil {
		// State is kept so a retry does not redo the whole wizard.
		logger.Error(ctx, "feedback", "record.save",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return Reply{Prompt: "Couldn't save your feedback right now. Please type \"done\" again in a moment."}
	}

	logger.Info(ctx, "feedback", "record.save",
		slog.String("status", "ok"),
		slog.Int("photos", len(rec.Photos)),
	)
	return Reply{Prompt: "Thank you! Your feedback has been submitted.", Submitted: true}
}
