package main

import (
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func trimString(s string, maxLen int) string {
	runeCount := utf8.RuneCountInString(s)
	if runeCount <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

func dedent(s string) string {
	lines := strings.Split(s, "\n")
	minIndent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		count := len(line) - len(strings.TrimLeft(line, " \t"))
		if minIndent == -1 || count < minIndent {
			minIndent = count
		}
	}
	if minIndent > 0 {
		for i, line := range lines {
			if len(line) >= minIndent {
				lines[i] = line[minIndent:]
			}
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// fullName mirrors what Telegram clients show: first and last name, "User" when both are empty.
func fullName(user *tgbotapi.User) string {
	if user == nil {
		return "User"
	}
	name := strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
	if name == "" {
		return "User"
	}
	return name
}

func chatTitle(chat *tgbotapi.Chat, fallback string) string {
	if chat == nil || strings.TrimSpace(chat.Title) == "" {
		return fallback
	}
	return chat.Title
}

// makeKeyboardMarkup builds an inline keyboard from rows of {label, data} pairs.
// Data starting with "https://" becomes a URL button, anything else callback data.
func makeKeyboardMarkup(rows [][][]string) *tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			if len(button) != 2 {
				continue
			}
			label, data := button[0], button[1]
			if strings.HasPrefix(data, "https://") {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(label, data))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(label, data))
			}
		}
		if len(buttons) > 0 {
			keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	return &markup
}
