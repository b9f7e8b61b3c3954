package main

import (
	"log/slog"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// sender is the part of *tgbotapi.BotAPI the handlers use.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	BotApi   sender
	ID       int64
	UserName string

	mention *regexp.Regexp
	logger  *slog.Logger
}

type ReplyOptions struct {
	ReplyMarkup      any
	ParseMode        string
	ReplyToMessageID int
}

func NewBot(api sender, self tgbotapi.User, logger *slog.Logger) *Bot {
	bot := &Bot{
		BotApi:   api,
		ID:       self.ID,
		UserName: self.UserName,
		logger:   logger,
	}
	if self.UserName != "" {
		bot.mention = regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(self.UserName) + `\b`)
	}
	return bot
}

func (bot *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "About the bot"},
		{Command: "help", Description: "How to use the bot"},
		{Command: "ask", Description: "Ask the AI a question"},
		{Command: "stats", Description: "Usage statistics"},
		{Command: "upgrade", Description: "Unlimited messages with Pro"},
	}
	if _, err := bot.BotApi.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		bot.logger.Warn("failed to set bot commands", "err", err)
	}
}

func (bot *Bot) reply(chatID int64, text string, opts ...ReplyOptions) {
	var opt ReplyOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	message := tgbotapi.NewMessage(chatID, text)
	if opt.ReplyMarkup != nil {
		if markup, ok := opt.ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup); ok {
			message.ReplyMarkup = markup
		}
	}
	if opt.ParseMode != "" {
		message.ParseMode = opt.ParseMode
	}
	if opt.ReplyToMessageID != 0 {
		message.ReplyToMessageID = opt.ReplyToMessageID
		message.AllowSendingWithoutReply = true
	}
	if _, err := bot.BotApi.Send(message); err != nil {
		bot.logger.Error("failed to send message", "chat_id", chatID, "err", err)
	}
}

func (bot *Bot) answerCallbackQuery(callbackQueryID string) {
	if _, err := bot.BotApi.Request(tgbotapi.NewCallback(callbackQueryID, "")); err != nil {
		bot.logger.Warn("failed to answer callback query", "err", err)
	}
}

// isMentioned reports an @username mention of the bot, ignoring case.
func (bot *Bot) isMentioned(text string) bool {
	return bot.mention != nil && bot.mention.MatchString(text)
}

func (bot *Bot) stripMention(text string) string {
	if bot.mention == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(bot.mention.ReplaceAllString(text, ""))
}

func (bot *Bot) isReplyToBot(msg *tgbotapi.Message) bool {
	return msg.ReplyToMessage != nil &&
		msg.ReplyToMessage.From != nil &&
		msg.ReplyToMessage.From.ID == bot.ID
}

// addressedToOtherBot is true for "/cmd@otherbot" in groups with several bots.
func (bot *Bot) addressedToOtherBot(msg *tgbotapi.Message) bool {
	_, target, found := strings.Cut(msg.CommandWithAt(), "@")
	return found && !strings.EqualFold(target, bot.UserName)
}
