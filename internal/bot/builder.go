package bot

import (
	"context"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	coreconfig "merchbot/core/config"
	"merchbot/core/logger"
	"merchbot/core/telegram"
	"merchbot/internal/catalog"
	"merchbot/internal/session"
)

// NewTelebotService builds a Service whose launch attempts construct a real
// telebot client with the full handler set registered. A restart therefore
// always gets a cold client.
func NewTelebotService(cfg *coreconfig.Config, h *Handlers, svcDeps ServiceDeps) *Service {
	svc := NewService(cfg, svcDeps.Cache, svcDeps.Sessions, telebotFactory(cfg, h))
	h.AttachService(svc)
	return svc
}

// ServiceDeps carries the read-only collaborators Status reports on.
type ServiceDeps struct {
	Cache    *catalog.Cache
	Sessions *session.Store
}

func telebotFactory(cfg *coreconfig.Config, h *Handlers) clientFactory {
	return func(ctx context.Context) (transportClient, error) {
		b, err := tele.NewBot(tele.Settings{
			Token:  cfg.Telegram.Token,
			Client: telegram.BuildHTTPClient(),
			Poller: telegram.BuildPoller(telegram.PollerOptions{
				RunMode:                cfg.Telegram.RunMode,
				LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
				Webhook: telegram.WebhookOptions{
					Listen: cfg.Webhook.Listen,
					Port:   cfg.Webhook.Port,
					URL:    cfg.Webhook.URL,
				},
			}),
			OnError: func(err error, c tele.Context) {
				logger.Error(logger.Background(), "tg", "handler.error",
					slog.String("err", err.Error()),
				)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("build telegram client: %w", err)
		}
		h.Register(b)
		return b, nil
	}
}
