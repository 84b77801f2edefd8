package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "merchbot/core/config"
	"merchbot/core/logger"
	"merchbot/core/telegram/middleware"
	"merchbot/internal/catalog"
	"merchbot/internal/delivery"
	"merchbot/internal/feedback"
	"merchbot/internal/nav"
	"merchbot/internal/search"
	"merchbot/internal/session"
	"merchbot/internal/stats"
)

const helpText = `Browse the catalog with the buttons below.

/start — show the main menu
/search — find an item by keyword
/feedback — send us your feedback
/help — this message`

// Handlers wires inbound Telegram updates to the conversation engine.
type Handlers struct {
	cfg      *coreconfig.Config
	cache    *catalog.Cache
	store    catalog.Store
	sessions *session.Store
	searcher *search.Engine
	wizard   *feedback.Wizard
	dm       *delivery.Manager
	stats    *stats.Recorder
	bcast    *Broadcaster

	// svc is attached after construction; handlers and service reference
	// each other through the composition root.
	svc *Service

	// sw is repointed at the live client on every Register call; all
	// outbound and download traffic goes through it so in-flight handlers
	// never hold a stale client across a restart.
	sw *SwitchTransport
}

// NewHandlers builds the handler set. AttachService must be called before
// the admin routes are used.
func NewHandlers(
	cfg *coreconfig.Config,
	cache *catalog.Cache,
	store catalog.Store,
	sessions *session.Store,
	searcher *search.Engine,
	wizard *feedback.Wizard,
	dm *delivery.Manager,
	rec *stats.Recorder,
	bcast *Broadcaster,
	sw *SwitchTransport,
) *Handlers {
	return &Handlers{
		sw:       sw,
		cfg:      cfg,
		cache:    cache,
		store:    store,
		sessions: sessions,
		searcher: searcher,
		wizard:   wizard,
		dm:       dm,
		stats:    rec,
		bcast:    bcast,
	}
}

// AttachService links the lifecycle service for /status and /restart.
func (h *Handlers) AttachService(svc *Service) {
	h.svc = svc
}

// Register installs middleware and routes on a freshly built bot.
func (h *Handlers) Register(b *tele.Bot) {
	h.sw.Swap(newTeleTransport(b))

	b.Use(
		middleware.RecoverMiddleware,
		middleware.LoggerMiddleware,
		middleware.RateLimitMiddleware(middleware.RateLimitOptions{
			Interval: time.Duration(h.cfg.RateLimit.IntervalMS) * time.Millisecond,
		}),
	)

	b.Handle("/start", h.onStart)
	b.Handle("/help", h.onHelp)
	b.Handle("/search", h.onSearchCommand)
	b.Handle("/feedback", h.onFeedbackCommand)

	b.Handle(tele.OnText, h.onText)
	b.Handle(tele.OnPhoto, h.onPhoto)

	b.Handle(&tele.Btn{Unique: uniqueCategory}, h.onCategory)
	b.Handle(&tele.Btn{Unique: uniqueBack}, h.onBack)
	b.Handle(&tele.Btn{Unique: uniqueHome}, h.onHome)
	b.Handle(&tele.Btn{Unique: uniqueMore}, h.onMore)
	b.Handle(&tele.Btn{Unique: uniqueFeedbackCancel}, h.onFeedbackCancel)

	admin := b.Group()
	admin.Use(middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID: h.cfg.Telegram.AdminID,
	}))
	admin.Handle("/refresh", h.onAdminRefresh)
	admin.Handle("/status", h.onAdminStatus)
	admin.Handle("/broadcast", h.onAdminBroadcast)
	admin.Handle("/restart", h.onAdminRestart)
}

func (h *Handlers) onStart(c tele.Context) error {
	ctx := middleware.BuildContext(c)
	userID := c.Sender().ID

	h.stats.RecordAction(ctx, userID, "start", "")
	h.sessions.Update(userID, func(s *session.Session) {
		s.History = nil
		s.Mode = session.ModeIdle
		s.Feedback = nil
	})
	return h.renderNav(ctx, c, nav.Home())
}

func (h *Handlers) onHelp(c tele.Context) error {
	return c.Send(helpText)
}

func (h *Handlers) onSearchCommand(c tele.Context) error {
	ctx := middleware.BuildContext(c)
	userID := c.Sender().ID

	h.sessions.Update(userID, func(s *session.Session) {
		s.Mode = session.ModeSearching
	})
	h.stats.RecordAction(ctx, userID, "search.start", "")
	return c.Send("What are you looking for? Send a keyword (2 to 100 characters).")
}

func (h *Handlers) onFeedbackCommand(c tele.Context) error {
	ctx := middleware.BuildContext(c)
	userID := c.Sender().ID

	st, prompt := h.wizard.Start()
	h.sessions.Update(userID, func(s *session.Session) {
		s.Mode = session.ModeFeedback
		s.Feedback = st
	})
	h.stats.RecordAction(ctx, userID, "feedback.start", "")
	return c.Send(prompt, feedbackCancelKeyboard())
}

func (h *Handlers) onText(c tele.Context) error {
	ctx := middleware.BuildContext(c)
	userID := c.Sender().ID
	text := c.Text()

	switch h.sessions.Peek(userID).Mode {
	case session.ModeFeedback:
		return h.onFeedbackInput(ctx, c, text)
	case session.ModeSearching:
		return h.onSearchQuery(ctx, c, text)
	}

	// Free text outside a mode is only meaningful as a reply-keyboard
	// category label; anything unmatched is ignored.
	if _, ok := h.cache.ResolveLabel(text); !ok {
		return nil
	}
	h.stats.RecordAction(ctx, userID, "nav.label", logger.Sanitize(text))
	return h.renderNav(ctx, c, nav.SelectByLabel(text))
}

func (h *Handlers) onSearchQuery(ctx context.Context, c tele.Context, query string) error {
	userID := c.Sender().ID
	res := h.searcher.Search(ctx, query)
	if res.Invalid != "" {
		return c.Send(res.Invalid)
	}

	h.sessions.Update(userID, func(s *session.Session) {
		s.Mode = session.ModeIdle
	})
	h.stats.RecordAction(ctx, userID, "search.query", logger.Sanitize(query))
	return c.Send(searchResultsText(res.Nodes, res.Truncated))
}

func (h *Handlers) onFeedbackInput(ctx context.Context, c tele.Context, text string) error {
	userID := c.Sender().ID
	from := senderFrom(c)

	var rep feedback.Reply
	h.sessions.Update(userID, func(s *session.Session) {
		if s.Feedback == nil {
			s.Feedback, _ = h.wizard.Start()
		}
		rep = h.wizard.HandleText(ctx, s.Feedback, from, text)
		if rep.Submitted {
			s.Feedback = nil
			s.Mode = session.ModeIdle
		}
	})
	if rep.Submitted {
		h.stats.RecordAction(ctx, userID, "feedback.submit", "")
		return c.Send(rep.Prompt)
	}
	return c.Send(rep.Prompt, feedbackCancelKeyboard())
}

func (h *Handlers) onPhoto(c tele.Context) error {
	ctx := middleware.BuildContext(c)
	userID := c.Sender().ID

	sess := h.sessions.Peek(userID)
	if sess.Mode != session.ModeFeedback || sess.Feedback == nil {
		return nil
	}

	photo := c.Message().Photo
	if photo == nil {
		return nil
	}
	size := int64(photo.FileSize)
	if size > h.wizard.MaxPhotoBytes() {
		return c.Send(fmt.Sprintf("That photo is too large (over %d MB). Please send a smaller one.",
			h.wizard.MaxPhotoBytes()>>20))
	}

	data, err := h.sw.DownloadFile(ctx, photo.FileID, h.wizard.MaxPhotoBytes())
	if err != nil {
		logger.Warn(ctx, "bot", "photo.download",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return c.Send("Couldn't download that photo. Please try sending it again.")
	}

	name := fmt.Sprintf("fb_%d_%d.jpg", userID, time.Now().UnixNano())
	var rep feedback.Reply
	h.sessions.Update(userID, func(s *session.Session) {
		if s.Feedback == nil {
			return
		}
		rep = h.wizard.HandlePhoto(ctx, s.Feedback, size, data, name)
	})
	if rep.Prompt == "" {
		return nil
	}
	return c.Send(rep.Prompt, feedbackCancelKeyboard())
}

func (h *Handlers) onCategory(c tele.Context) error {
	ctx := middleware.BuildContext(c)
	defer func() { _ = c.Respond() }()

	id := c.Data()
	h.stats.RecordAction(ctx, c.Sender().ID, "nav.select", id)
	return h.renderNav(ctx, c, nav.SelectByID(id))
}

func (h *Handlers) onBack(c tele.Context) error {
	ctx := middleware.BuildContext(c)
	defer func() { _ = c.Respond() }()
	return h.renderNav(ctx, c, nav.Back())
}

func (h *Handlers) onHome(c tele.Context) error {
	ctx := middleware.BuildContext(c)
	defer func() { _ = c.Respond() }()

	// Home abandons any in-flight wizard.
	h.sessions.Update(c.Sender().ID, func(s *session.Session) {
		s.Mode = session.ModeIdle
		s.Feedback = nil
	})
	return h.renderNav(ctx, c, nav.Home())
}

func (h *Handlers) onMore(c tele.Context) error {
	ctx := middleware.BuildContext(c)
	defer func() { _ = c.Respond() }()

	page, err := strconv.Atoi(c.Data())
	if err != nil || page < 0 {
		page = 0
	}
	return h.renderNav(ctx, c, nav.More(page))
}

func (h *Handlers) onFeedbackCancel(c tele.Context) error {
	ctx := middleware.BuildContext(c)
	defer func() { _ = c.Respond() }()
	userID := c.Sender().ID

	h.sessions.Update(userID, func(s *session.Session) {
		s.Mode = session.ModeIdle
		s.Feedback = nil
	})
	h.stats.RecordAction(ctx, userID, "feedback.cancel", "")
	return c.Send("Feedback cancelled. Use /feedback to start over.")
}

// renderNav runs one navigation step and delivers the resulting menu,
// editing the previous menu message in place when possible.
func (h *Handlers) renderNav(ctx context.Context, c tele.Context, act nav.Action) error {
	userID := c.Sender().ID
	chatID := c.Chat().ID

	tree := h.cache.Tree(ctx, false)

	var (
		menu   nav.Menu
		lastID int
	)
	h.sessions.Update(userID, func(s *session.Session) {
		menu, s.History = nav.Navigate(s.History, act, tree, h.cache)
		lastID = s.LastMenuMessageID
	})

	// Terminal leaf: deliver the item's photos and description before the
	// navigation controls.
	if menu.Item != nil {
		detail, err := h.store.FindByID(ctx, menu.Item.ID)
		if err != nil {
			logger.Warn(ctx, "bot", "item.load",
				slog.String("status", "fail"),
				slog.String("id", menu.Item.ID),
				slog.String("err", err.Error()),
			)
		}
		if detail == nil {
			detail = &catalog.ItemDetail{Node: *menu.Item}
		}
		if err := h.dm.SendItem(ctx, chatID, detail, nil); err != nil {
			logger.Warn(ctx, "bot", "item.send",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
		// The previous menu stays above the item content; always send a
		// fresh nav message below it.
		lastID = 0
	}

	text, kb := menuView(menu)
	newID, err := h.dm.ShowMenu(ctx, chatID, lastID, text, kb)
	if err != nil {
		return err
	}
	h.sessions.Update(userID, func(s *session.Session) {
		s.LastMenuMessageID = newID
	})
	return nil
}

func senderFrom(c tele.Context) feedback.Sender {
	u := c.Sender()
	if u == nil {
		return feedback.Sender{}
	}
	return feedback.Sender{
		UserID:    u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

func (h *Handlers) onAdminRefresh(c tele.Context) error {
	ctx := middleware.BuildContext(c)
	if h.cache.Refresh(ctx) {
		return c.Send(fmt.Sprintf("Catalog refreshed: %d nodes.", h.cache.Size()))
	}
	return c.Send("Refresh failed, previous catalog kept.")
}

func (h *Handlers) onAdminStatus(c tele.Context) error {
	if h.svc == nil {
		return c.Send("Service not attached.")
	}
	st := h.svc.Status()
	return c.Send(fmt.Sprintf(
		"state: %s\nrunning: %t\nlaunch retries: %d\ncache: %d nodes, age %s\nsessions: %d",
		st.State, st.Running, st.RetryCount, st.CacheSize, st.CacheAge.Round(time.Second), st.Sessions,
	))
}

func (h *Handlers) onAdminBroadcast(c tele.Context) error {
	ctx := middleware.BuildContext(c)
	text := c.Message().Payload
	if text == "" {
		return c.Send("Usage: /broadcast <message>")
	}

	recipients := h.sessions.UserIDs()
	res := h.bcast.Broadcast(ctx, recipients, text)
	return c.Send(fmt.Sprintf("Broadcast done: %d delivered, %d failed.", res.SuccessCount, res.FailureCount))
}

func (h *Handlers) onAdminRestart(c tele.Context) error {
	if h.svc == nil {
		return c.Send("Service not attached.")
	}
	// Restart stops the poller currently delivering this update, so it
	// must run outside the handler.
	go h.svc.Restart(logger.Background())
	return c.Send("Restarting…")
}
