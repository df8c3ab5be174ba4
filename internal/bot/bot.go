package bot

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"tg-amnesia/internal/config"
	"tg-amnesia/internal/logger"
	"tg-amnesia/internal/models"
)

// BotService represents the Telegram bot service
type BotService struct {
	Bot     *telego.Bot
	Handler *th.BotHandler
	// Webhook is nil in polling mode.
	Webhook *WebhookServer
}

// Start starts the bot handler
func (b *BotService) Start() {
	b.Handler.Start()
}

// Stop stops the bot handler
func (b *BotService) Stop() {
	b.Handler.Stop()
}

// Initialize creates the bot, registers the command menu and opens the update
// source configured in bot.mode. statusFn feeds the webhook debug page.
func Initialize(ctx context.Context, cfg *config.Config, statusFn func() string) (*BotService, error) {
	// Validate configuration
	if cfg.Bot.Token == "" {
		return nil, errors.New("bot token is required")
	}

	var opts []telego.BotOption
	if cfg.Logger.Level == "DEBUG" {
		opts = append(opts, telego.WithDefaultDebugLogger())
	}
	bot, err := telego.NewBot(cfg.Bot.Token, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize bot")
	}

	// Get bot info
	botUser, err := bot.GetMe(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get bot info")
	}
	logger.Infof("Authorized on account %s", botUser.Username)

	// Set bot commands for menu in different languages
	setLocalizedCommands(ctx, bot)

	// Delete any existing webhook
	if err := bot.DeleteWebhook(ctx, &telego.DeleteWebhookParams{}); err != nil {
		return nil, errors.Wrap(err, "failed to delete existing webhook")
	}

	if cfg.Bot.Mode == "polling" {
		updates, err := bot.UpdatesViaLongPolling(ctx, nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to start long polling")
		}
		bh, err := th.NewBotHandler(bot, updates)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create bot handler")
		}
		logger.Infof("Receiving updates via long polling")
		return &BotService{Bot: bot, Handler: bh}, nil
	}

	// Set fixed secret token or generate one based on bot token
	secretToken := webhookSecret(cfg.Bot.Token)

	wh := cfg.Bot.Webhook
	bh, server, err := SetupWebhook(ctx, bot, WebhookOptions{
		Endpoint:    wh.Endpoint,
		ListenPort:  wh.ListenPort,
		DebugPath:   wh.DebugPath,
		SecretToken: secretToken,
		CertFile:    wh.CertFile,
		KeyFile:     wh.KeyFile,
		Status:      statusFn,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to setup webhook")
	}

	return &BotService{
		Bot:     bot,
		Handler: bh,
		Webhook: server,
	}, nil
}

func webhookSecret(token string) string {
	suffix := token
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return "secure_webhook_token_" + suffix
}

// commandLanguages maps our language codes to Telegram language codes
var commandLanguages = map[string]string{
	models.LangEnglish:           "en",
	models.LangSimplifiedChinese: "zh",
}

// menuCommands builds the command menu for one language.
func menuCommands(lang string) []telego.BotCommand {
	return []telego.BotCommand{
		{Command: "clear", Description: models.GetTranslation(lang, "cmd_desc_clear")},
	}
}

// setLocalizedCommands sets bot commands in different languages
func setLocalizedCommands(ctx context.Context, bot *telego.Bot) {
	for lang, telegramLang := range commandLanguages {
		err := bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
			Commands:     menuCommands(lang),
			LanguageCode: telegramLang,
		})
		if err != nil {
			logger.Warningf("Failed to set bot commands for %s: %v", models.GetLanguageName(lang), err)
		}
	}

	// Set default commands (without language code) using Simplified Chinese
	err := bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: menuCommands(models.LangSimplifiedChinese),
	})
	if err != nil {
		logger.Warningf("Failed to set default bot commands: %v", err)
	}
}
