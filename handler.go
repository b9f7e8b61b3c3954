package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	privateChatName = "Private Chat"
	defaultGreeting = "Hi!"

	callbackUpgradeInfo = "upgrade_info"
)

type HandlerConfig struct {
	FreeLimit      int
	AdminID        int64
	UpgradeContact string
	Workers        int
}

type Handler struct {
	Bot    *Bot
	Usage  *UsageStore
	AI     *Responder
	Config HandlerConfig
	Logger *slog.Logger
}

// processUpdates reads updates until the channel closes or ctx is done. Each
// update runs on its own goroutine, at most Config.Workers at a time, and the
// call returns once every started handler has finished.
func (handler *Handler) processUpdates(ctx context.Context, updates <-chan tgbotapi.Update) {
	workers := max(1, handler.Config.Workers)
	semaphore := make(chan struct{}, workers)
	// In-flight AI calls finish on their own timeout even after shutdown starts.
	handlerCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func(update tgbotapi.Update) {
				defer wg.Done()
				defer func() { <-semaphore }()
				defer func() {
					if r := recover(); r != nil {
						handler.Logger.Error("handler panic", "update_id", update.UpdateID, "panic", r)
					}
				}()
				handler.handleUpdate(handlerCtx, update)
			}(update)
		}
	}
}

func (handler *Handler) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		handler.handleCallback(update.CallbackQuery)
		return
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	if msg.IsCommand() {
		handler.handleCommand(ctx, msg)
		return
	}
	handler.handleText(ctx, msg)
}

func (handler *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if handler.Bot.addressedToOtherBot(msg) {
		return
	}

	switch msg.Command() {
	case "start":
		handler.handleStartCommand(msg)
	case "help":
		handler.handleHelpCommand(msg)
	case "stats":
		handler.handleStatsCommand(msg)
	case "ask":
		handler.handleAskCommand(ctx, msg)
	case "upgrade":
		handler.handleUpgradeCommand(msg)
	case "admin_stats":
		handler.handleAdminStatsCommand(msg)
	case "admin_pro":
		handler.handleAdminProCommand(msg)
	}
}

func (handler *Handler) handleCallback(cb *tgbotapi.CallbackQuery) {
	switch cb.Data {
	case callbackUpgradeInfo:
		handler.Bot.answerCallbackQuery(cb.ID)
		if cb.Message == nil || cb.Message.Chat == nil {
			return
		}
		text := fmt.Sprintf(
			"⭐ <b>Gendolf Pro — $5/month</b>\n\nContact @%s to upgrade your group.",
			handler.Config.UpgradeContact,
		)
		handler.Bot.reply(cb.Message.Chat.ID, text, ReplyOptions{ParseMode: tgbotapi.ModeHTML})
	default:
		handler.Logger.Debug("unknown callback data", "data", cb.Data)
		handler.Bot.answerCallbackQuery(cb.ID)
	}
}

// START, HELP, UPGRADE

func (handler *Handler) handleStartCommand(msg *tgbotapi.Message) {
	text := dedent(fmt.Sprintf(`
		🤓 <b>Gendolf AI Bot</b>

		Smart AI assistant for Telegram groups.

		✅ Answers questions using AI
		✅ Remembers conversation context
		✅ Works in any language

		<b>Free:</b> %d messages/day per group
		<b>Pro:</b> Unlimited — $5/month

		Add me to your group and mention me or reply to my messages!
		`, handler.Config.FreeLimit))

	keyboard := makeKeyboardMarkup([][][]string{
		{{"➕ Add to Group", fmt.Sprintf("https://t.me/%s?startgroup=true", handler.Bot.UserName)}},
		{{"⭐ Upgrade to Pro ($5/mo)", callbackUpgradeInfo}},
	})
	handler.Bot.reply(msg.Chat.ID, text, ReplyOptions{ParseMode: tgbotapi.ModeHTML, ReplyMarkup: keyboard})
}

func (handler *Handler) handleHelpCommand(msg *tgbotapi.Message) {
	text := dedent(fmt.Sprintf(`
		🤓 <b>How to use Gendolf:</b>

		• Mention me (@%s) in a group
		• Reply to my messages
		• Use /ask &lt;question&gt; for direct questions
		• /stats — usage statistics
		• /help — this message

		Free limit: %d messages/day per group.
		`, handler.Bot.UserName, handler.Config.FreeLimit))
	handler.Bot.reply(msg.Chat.ID, text, ReplyOptions{ParseMode: tgbotapi.ModeHTML})
}

func (handler *Handler) handleUpgradeCommand(msg *tgbotapi.Message) {
	text := dedent(`
		⭐ <b>Gendolf Pro — $5/month</b>

		• Unlimited AI messages
		• Priority response time
		• Custom personality/instructions
		• Group conversation memory

		Contact to upgrade ⬇️
		`)
	keyboard := makeKeyboardMarkup([][][]string{
		{{"💳 Contact for Pro", "https://t.me/" + handler.Config.UpgradeContact}},
	})
	handler.Bot.reply(msg.Chat.ID, text, ReplyOptions{ParseMode: tgbotapi.ModeHTML, ReplyMarkup: keyboard})
}

// STATS

func (handler *Handler) handleStatsCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	_, remaining := handler.Usage.CanUse(chatID)
	stats := handler.Usage.Stats()

	status := fmt.Sprintf("Free (%d/%d remaining today)", remaining, handler.Config.FreeLimit)
	if handler.Usage.IsPro(chatID) {
		status = "⭐ Pro"
	}

	text := fmt.Sprintf(
		"📊 <b>Stats</b>\n\nThis group: %s\nActive groups today: %s\nTotal messages served: %s",
		status, humanize.Comma(int64(stats.ActiveGroupsToday)), humanize.Comma(int64(stats.TotalMessages)),
	)
	handler.Bot.reply(chatID, text, ReplyOptions{ParseMode: tgbotapi.ModeHTML})
}

// ADMIN commands are silently ignored for everyone but the operator.

func (handler *Handler) isAdmin(msg *tgbotapi.Message) bool {
	return handler.Config.AdminID != 0 && msg.From != nil && msg.From.ID == handler.Config.AdminID
}

func (handler *Handler) handleAdminStatsCommand(msg *tgbotapi.Message) {
	if !handler.isAdmin(msg) {
		return
	}
	stats := handler.Usage.Stats()
	text := fmt.Sprintf(
		"🔧 Admin Stats:\nActive today: %s\nTotal msgs: %s\nPro groups: %s\nMemory groups: %s",
		humanize.Comma(int64(stats.ActiveGroupsToday)),
		humanize.Comma(int64(stats.TotalMessages)),
		humanize.Comma(int64(stats.ProGroups)),
		humanize.Comma(int64(handler.AI.Memory().Groups())),
	)
	handler.Bot.reply(msg.Chat.ID, text)
}

func (handler *Handler) handleAdminProCommand(msg *tgbotapi.Message) {
	if !handler.isAdmin(msg) {
		return
	}
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		handler.Bot.reply(msg.Chat.ID, "Usage: /admin_pro <chat_id>")
		return
	}

	chatID, err := parseChatID(firstField(args))
	if err != nil {
		handler.Bot.reply(msg.Chat.ID, getUserMessage(err)+"\nUsage: /admin_pro <chat_id>")
		return
	}
	if err := handler.Usage.AddPro(chatID); err != nil {
		handler.Logger.Error("failed to persist pro group", "chat_id", chatID, "err", err)
	}
	handler.Logger.Info("group upgraded to pro", "chat_id", chatID, "admin_id", msg.From.ID)
	handler.Bot.reply(msg.Chat.ID, fmt.Sprintf("✅ Group %d upgraded to Pro", chatID))
}

// ASK and mentions

func (handler *Handler) handleAskCommand(ctx context.Context, msg *tgbotapi.Message) {
	question := strings.TrimSpace(msg.CommandArguments())
	if question == "" {
		handler.Bot.reply(msg.Chat.ID, "Usage: /ask <your question>")
		return
	}

	exhausted := fmt.Sprintf(
		"⚠️ Daily free limit (%d messages) reached.\nUpgrade to Pro for unlimited: /upgrade",
		handler.Config.FreeLimit,
	)
	handler.answer(ctx, msg, question, chatTitle(msg.Chat, "Chat"), exhausted, false)
}

// handleText covers plain messages: every message in a private chat, and in
// groups only the ones that mention the bot or reply to it.
func (handler *Handler) handleText(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Text == "" {
		return
	}

	if msg.Chat.IsPrivate() {
		handler.answer(ctx, msg, msg.Text, privateChatName, "⚠️ Daily limit reached. /upgrade for unlimited.", false)
		return
	}

	if !handler.Bot.isMentioned(msg.Text) && !handler.Bot.isReplyToBot(msg) {
		return
	}

	exhausted := fmt.Sprintf(
		"⚠️ Daily free limit (%d) reached for this group.\nAdmin can upgrade: /upgrade",
		handler.Config.FreeLimit,
	)
	text := handler.Bot.stripMention(msg.Text)
	if text == "" {
		text = defaultGreeting
	}
	handler.answer(ctx, msg, text, chatTitle(msg.Chat, "Group"), exhausted, true)
}

func (handler *Handler) answer(ctx context.Context, msg *tgbotapi.Message, text, groupName, exhausted string, replyOnLimit bool) {
	chatID := msg.Chat.ID

	allowed, remaining, err := handler.Usage.Consume(chatID)
	if err != nil {
		handler.Logger.Error("failed to persist usage", "chat_id", chatID, "err", err)
	}
	if !allowed {
		handler.Logger.Info("daily limit reached", "chat_id", chatID)
		if replyOnLimit {
			handler.Bot.reply(chatID, exhausted, ReplyOptions{ReplyToMessageID: msg.MessageID})
		} else {
			handler.Bot.reply(chatID, exhausted)
		}
		return
	}

	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}
	handler.Logger.Debug("answering message",
		"chat_id", chatID, "user_id", userID, "remaining", remaining, "text", trimString(text, 80))

	response := handler.AI.Respond(ctx, chatID, fullName(msg.From), text, groupName)
	handler.Bot.reply(chatID, response, ReplyOptions{ReplyToMessageID: msg.MessageID})
}
