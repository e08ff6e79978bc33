// Package bot implements the operator Telegram bot: supplier state, manual runs,
// run reports and category rules.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"catalog_sync/internal/config"
	"catalog_sync/internal/model"
	"catalog_sync/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Runner starts a supplier import.
type Runner interface {
	Run(ctx context.Context, supplier string) (*model.RunReport, error)
}

// Bot is the Telegram bot that handles operator commands and delivers run reports.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	runner  Runner
	catalog *config.Catalog
	cfg     *config.Config
	log     *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, runner and config.
func New(token string, store storage.Storage, runner Runner, catalog *config.Catalog, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:     api,
		store:   store,
		runner:  runner,
		catalog: catalog,
		cfg:     cfg,
		log:     log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if markup == nil {
		b.reply(chatID, text)
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = *markup
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "suppliers":
		b.handleSuppliers(ctx, chatID)
	case cmdReport:
		b.handleReport(ctx, chatID, args)
	case cmdRun:
		b.handleRun(ctx, chatID, args)
	case "pause":
		b.handleSetActive(ctx, chatID, args, false)
	case "resume":
		b.handleSetActive(ctx, chatID, args, true)
	case "interval":
		b.handleInterval(ctx, chatID, args)
	case "rules":
		b.handleRules(ctx, chatID)
	case "exclude":
		b.handleAddRule(ctx, chatID, args, model.RuleExclude)
	case "exclude_re":
		b.handleAddRule(ctx, chatID, args, model.RuleExcludeRe)
	case cmdRmRule:
		b.handleRmRule(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
