package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	fallbackReply        = "⚠️ AI temporarily unavailable. Try again in a moment."
	unknownProviderReply = "Unknown AI provider configured."

	defaultContextWindow = 10
	defaultMaxTokens     = 1000
	defaultAITimeout     = 30 * time.Second
)

type ResponderOptions struct {
	MaxTokens     int
	Timeout       time.Duration
	ContextWindow int
}

// Responder turns a chat message into a model reply, keeping per-chat memory.
// A nil provider means the configured provider name was not recognised.
type Responder struct {
	provider Provider
	memory   *ConversationMemory
	opts     ResponderOptions
	logger   *slog.Logger
}

func NewResponder(provider Provider, memory *ConversationMemory, opts ResponderOptions, logger *slog.Logger) *Responder {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultAITimeout
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = defaultContextWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		provider: provider,
		memory:   memory,
		opts:     opts,
		logger:   logger,
	}
}

func (r *Responder) Memory() *ConversationMemory {
	return r.memory
}

func systemPrompt(groupName string) string {
	return fmt.Sprintf(
		"You are Gendolf 🤓, a smart AI assistant in the Telegram group '%s'. "+
			"Be helpful, concise, and friendly. Answer questions, help with tasks, and participate "+
			"in conversations naturally. Keep responses under 500 chars unless more detail is needed. "+
			"Use emoji sparingly. Respond in the same language as the question.",
		groupName,
	)
}

func buildMessages(turns []Turn) []ChatMessage {
	messages := make([]ChatMessage, 0, len(turns))
	for _, turn := range turns {
		if turn.Role == RoleUser {
			messages = append(messages, ChatMessage{
				Role:    RoleUser,
				Content: fmt.Sprintf("[%s]: %s", turn.Name, turn.Text),
			})
			continue
		}
		messages = append(messages, ChatMessage{Role: RoleAssistant, Content: turn.Text})
	}
	return messages
}

// Respond never fails: provider errors are logged and replaced by a fixed apology.
func (r *Responder) Respond(ctx context.Context, chatID int64, userName, text, groupName string) string {
	r.memory.Append(chatID, Turn{Role: RoleUser, Name: userName, Text: text})

	if r.provider == nil {
		return unknownProviderReply
	}

	requestID := uuid.NewString()
	logger := r.logger.With("request_id", requestID, "chat_id", chatID, "provider", r.provider.Name())

	req := CompletionRequest{
		System:    systemPrompt(groupName),
		Messages:  buildMessages(r.memory.Recent(chatID, r.opts.ContextWindow)),
		MaxTokens: r.opts.MaxTokens,
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	started := time.Now()
	completion, err := r.provider.Complete(callCtx, req)
	if err != nil {
		logger.Error("ai request failed", "err", err, "elapsed", time.Since(started))
		return fallbackReply
	}
	logger.Debug("ai request done",
		"model", completion.Model,
		"input_tokens", completion.InputTokens,
		"output_tokens", completion.OutputTokens,
		"elapsed", time.Since(started),
	)

	r.memory.Append(chatID, Turn{Role: RoleAssistant, Text: completion.Text})
	return completion.Text
}
