package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"catalog_sync/internal/model"
)

const (
	cmdRun    = "run"
	cmdReport = "report"
	cmdRmRule = "rmrule"

	// Telegram rejects callback data longer than this.
	maxCallbackData = 64
)

// supplierKeyboard offers run and report buttons per supplier. Suppliers whose
// name does not fit into callback data get no buttons.
func supplierKeyboard(names []string) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, name := range names {
		runData := cmdRun + ":" + name
		reportData := cmdReport + ":" + name
		if len(runData) > maxCallbackData || len(reportData) > maxCallbackData {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Run "+name, runData),
			tgbotapi.NewInlineKeyboardButtonData("Report", reportData),
		))
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// ruleKeyboard offers a remove button per operator rule.
func ruleKeyboard(rules []model.CategoryRule) *tgbotapi.InlineKeyboardMarkup {
	if len(rules) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Remove R%d", r.ID), fmt.Sprintf("rmrule_confirm:%d", r.ID)),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, arg, ok := strings.Cut(data, ":")
	if !ok || strings.TrimSpace(arg) == "" {
		return
	}

	b.log.Info("callback",
		"action", action,
		"arg", arg,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cmdRun:
		b.handleRun(ctx, chatID, arg)
	case cmdReport:
		b.handleReport(ctx, chatID, arg)
	case cmdRmRule:
		b.handleRmRule(ctx, chatID, arg)
	case "rmrule_confirm":
		id, err := ParseIDArg(arg)
		if err != nil {
			return
		}
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Remove rule R%d?", id))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Yes, remove", fmt.Sprintf("%s:%d", cmdRmRule, id)),
				tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop:0"),
			),
		)
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send remove confirmation", "error", err)
		}
	}
}
