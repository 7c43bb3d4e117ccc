// Package telegram is the Telegram transport. It long-polls for updates and
// answers choices with inline keyboards.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/p-shah256/coverbot/internal/chat"
	"github.com/p-shah256/coverbot/internal/helper"
	"github.com/p-shah256/coverbot/pkg/types"
)

// MessageLimit is the longest message Telegram accepts.
const MessageLimit = 4096

type Bot struct {
	api         *tgbotapi.BotAPI
	downloadDir string
	maxBytes    int64
}

func NewBot(token, downloadDir string, maxBytes int64) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("error creating Telegram bot: %w", err)
	}
	return &Bot{
		api:         api,
		downloadDir: downloadDir,
		maxBytes:    maxBytes,
	}, nil
}

func (b *Bot) Run(ctx context.Context, h chat.Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	slog.Info("Bot is running...", "transport", "telegram", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, h, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, h chat.Handler, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			slog.Warn("failed to answer callback", "transport", "telegram", "error", err)
		}
		if cq.Message == nil {
			return
		}
		nonce, value, ok := parseCallbackData(cq.Data)
		if !ok {
			return
		}
		h.OnChoice(ctx, conversationID(cq.Message.Chat.ID), nonce, value)
	case update.Message != nil:
		if update.Message.From != nil && update.Message.From.IsBot {
			return
		}
		slog.Info("Received message", "transport", "telegram", "chat_id", update.Message.Chat.ID)
		h.OnMessage(ctx, toInbound(update.Message))
	}
}

func (b *Bot) Send(_ context.Context, conversationID, text string) error {
	chatID, err := parseConversationID(conversationID)
	if err != nil {
		return err
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, plain(text))); err != nil {
		return fmt.Errorf("failed to send Telegram message: %w", err)
	}
	return nil
}

func (b *Bot) SendChoices(_ context.Context, conversationID, prompt, nonce string, choices []types.Choice) error {
	chatID, err := parseConversationID(conversationID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, plain(prompt))
	msg.ReplyMarkup = keyboard(nonce, choices)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send Telegram choices: %w", err)
	}
	return nil
}

func (b *Bot) Download(ctx context.Context, att types.Attachment) (string, error) {
	if b.maxBytes > 0 && int64(att.Size) > b.maxBytes {
		return "", fmt.Errorf("%s is larger than %d bytes", att.Name, b.maxBytes)
	}
	url, err := b.api.GetFileDirectURL(att.ID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve Telegram file: %w", err)
	}
	return helper.DownloadFile(ctx, url, b.downloadDir, att.Name, b.maxBytes)
}

func toInbound(m *tgbotapi.Message) chat.Inbound {
	in := chat.Inbound{
		ConversationID: conversationID(m.Chat.ID),
		Text:           m.Text,
	}
	if m.Document != nil {
		in.Attachments = append(in.Attachments, types.Attachment{
			ID:          m.Document.FileID,
			Name:        m.Document.FileName,
			ContentType: m.Document.MimeType,
			Size:        m.Document.FileSize,
		})
		if in.Text == "" {
			in.Text = m.Caption
		}
	}
	return in
}

func keyboard(nonce string, choices []types.Choice) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(choices))
	for _, c := range choices {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(c.Label, nonce+"|"+c.Value))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func parseCallbackData(data string) (nonce, value string, ok bool) {
	nonce, value, ok = strings.Cut(data, "|")
	if !ok || nonce == "" {
		return "", "", false
	}
	return nonce, value, true
}

func conversationID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func parseConversationID(id string) (int64, error) {
	chatID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid Telegram conversation id %q: %w", id, err)
	}
	return chatID, nil
}

var markdownReplacer = strings.NewReplacer("**", "", "__", "")

// plain drops the markdown headings and emphasis the session messages use,
// since messages are sent without a parse mode.
func plain(text string) string {
	lines := strings.Split(markdownReplacer.Replace(text), "\n")
	for i, line := range lines {
		if trimmed := strings.TrimLeft(line, "#"); trimmed != line && strings.HasPrefix(trimmed, " ") {
			lines[i] = strings.TrimSpace(trimmed)
		}
	}
	return strings.Join(lines, "\n")
}
