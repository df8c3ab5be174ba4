package handler

import (
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-amnesia/internal/service"
)

// SetupMessageHandlers configures all bot message and update handlers
func SetupMessageHandlers(bh *th.BotHandler, bot *telego.Bot, services *service.Services) {
	serviceMetrics.Store(services.Erase.Metrics())
	h := NewMessageHandler(bot, services)

	bh.HandleMessage(func(ctx *th.Context, message telego.Message) error {
		return h.handleIncomingMessage(ctx, message)
	})
}
