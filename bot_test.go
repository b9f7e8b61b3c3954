package main

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBot(api sender) *Bot {
	return NewBot(api, tgbotapi.User{ID: testBotID, IsBot: true, UserName: "GendolfBot"}, discardLogger())
}

func TestMentionMatching(t *testing.T) {
	bot := newTestBot(&fakeSender{})

	tests := []struct {
		text string
		want bool
	}{
		{"@GendolfBot hi", true},
		{"hey @gendolfbot, what's up", true},
		{"@GENDOLFBOT", true},
		{"@GendolfBotany", false},
		{"GendolfBot without at", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, bot.isMentioned(tt.text))
		})
	}

	assert.Equal(t, "hey , what's up", bot.stripMention("hey @gendolfbot, what's up"))
	assert.Equal(t, "", bot.stripMention("  @GendolfBot  "))
}

func TestBotWithoutUserNameNeverMatches(t *testing.T) {
	bot := NewBot(&fakeSender{}, tgbotapi.User{ID: 1}, discardLogger())

	assert.False(t, bot.isMentioned("@anything"))
	assert.Equal(t, "text", bot.stripMention(" text "))
}

func TestReplyOptions(t *testing.T) {
	api := &fakeSender{}
	bot := newTestBot(api)

	bot.reply(10, "plain")
	bot.reply(10, "<b>x</b>", ReplyOptions{ParseMode: tgbotapi.ModeHTML, ReplyToMessageID: 3})

	sent := api.messages()
	require.Len(t, sent, 2)
	assert.Empty(t, sent[0].ParseMode)
	assert.Zero(t, sent[0].ReplyToMessageID)
	assert.Nil(t, sent[0].ReplyMarkup)
	assert.Equal(t, tgbotapi.ModeHTML, sent[1].ParseMode)
	assert.Equal(t, 3, sent[1].ReplyToMessageID)
	assert.True(t, sent[1].AllowSendingWithoutReply)
}

func TestSetCommands(t *testing.T) {
	api := &fakeSender{}
	newTestBot(api).setCommands()

	require.Len(t, api.requests, 1)
	config, ok := api.requests[0].(tgbotapi.SetMyCommandsConfig)
	require.True(t, ok)
	var names []string
	for _, command := range config.Commands {
		names = append(names, command.Command)
	}
	assert.Equal(t, []string{"start", "help", "ask", "stats", "upgrade"}, names)
}
