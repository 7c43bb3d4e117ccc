// Package bot is the Discord transport.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/p-shah256/coverbot/internal/chat"
	"github.com/p-shah256/coverbot/internal/helper"
	"github.com/p-shah256/coverbot/pkg/types"
)

// MessageLimit is the longest message Discord accepts.
const MessageLimit = 2000

const customIDPrefix = "choice"

type Bot struct {
	session     *discordgo.Session
	downloadDir string
	maxBytes    int64

	ctx     context.Context
	handler chat.Handler
}

func New(token, downloadDir string, maxBytes int64) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	bot := &Bot{
		session:     session,
		downloadDir: downloadDir,
		maxBytes:    maxBytes,
	}
	session.AddHandler(bot.onMessageCreate)
	session.AddHandler(bot.onInteractionCreate)
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return bot, nil
}

// Run connects to the gateway and delivers events to h until ctx is done.
func (b *Bot) Run(ctx context.Context, h chat.Handler) error {
	b.ctx = ctx
	b.handler = h
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("error opening Discord session: %w", err)
	}
	slog.Info("Bot is running...", "transport", "discord")

	<-ctx.Done()
	slog.Info("Closing Discord session")
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("error closing Discord session: %w", err)
	}
	return nil
}

func (b *Bot) Send(ctx context.Context, conversationID, text string) error {
	channelID, _ := splitConversationID(conversationID)
	if _, err := b.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send Discord message: %w", err)
	}
	return nil
}

func (b *Bot) SendChoices(ctx context.Context, conversationID, prompt, nonce string, choices []types.Choice) error {
	channelID, _ := splitConversationID(conversationID)
	msg := &discordgo.MessageSend{
		Content:    prompt,
		Components: choiceComponents(nonce, choices),
	}
	if _, err := b.session.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send Discord choices: %w", err)
	}
	return nil
}

func (b *Bot) Download(ctx context.Context, att types.Attachment) (string, error) {
	if b.maxBytes > 0 && int64(att.Size) > b.maxBytes {
		return "", fmt.Errorf("%s is larger than %d bytes", att.Name, b.maxBytes)
	}
	return helper.DownloadFile(ctx, att.URL, b.downloadDir, att.Name, b.maxBytes)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}
	if !addressedToBot(m.Message, s.State.User.ID) {
		return
	}
	slog.Info("Received message",
		"transport", "discord",
		"author", m.Author.Username,
		"attachments", len(m.Attachments),
	)
	b.handler.OnMessage(b.ctx, toInbound(m.Message, s.State.User.ID))
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	nonce, value, ok := parseCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		slog.Warn("failed to acknowledge interaction", "transport", "discord", "error", err)
	}

	user := i.User
	if i.Member != nil {
		user = i.Member.User
	}
	if user == nil {
		return
	}
	b.handler.OnChoice(b.ctx, conversationID(i.ChannelID, user.ID), nonce, value)
}

// addressedToBot accepts every direct message, and guild messages that mention
// the bot or reply to one of its messages.
func addressedToBot(m *discordgo.Message, botID string) bool {
	if m.GuildID == "" {
		return true
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			return true
		}
	}
	ref := m.ReferencedMessage
	return ref != nil && ref.Author != nil && ref.Author.ID == botID
}

func toInbound(m *discordgo.Message, botID string) chat.Inbound {
	text := m.Content
	if botID != "" {
		text = strings.ReplaceAll(text, "<@"+botID+">", "")
		text = strings.ReplaceAll(text, "<@!"+botID+">", "")
	}
	in := chat.Inbound{
		ConversationID: conversationID(m.ChannelID, m.Author.ID),
		Text:           strings.TrimSpace(text),
	}
	for _, att := range m.Attachments {
		in.Attachments = append(in.Attachments, types.Attachment{
			ID:          att.ID,
			Name:        att.Filename,
			URL:         att.URL,
			ContentType: att.ContentType,
			Size:        att.Size,
		})
	}
	return in
}

func choiceComponents(nonce string, choices []types.Choice) []discordgo.MessageComponent {
	buttons := make([]discordgo.MessageComponent, 0, len(choices))
	for i, c := range choices {
		style := discordgo.PrimaryButton
		if i > 0 {
			style = discordgo.SecondaryButton
		}
		buttons = append(buttons, discordgo.Button{
			Label:    c.Label,
			Style:    style,
			CustomID: strings.Join([]string{customIDPrefix, nonce, c.Value}, "|"),
		})
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func parseCustomID(id string) (nonce, value string, ok bool) {
	parts := strings.SplitN(id, "|", 3)
	if len(parts) != 3 || parts[0] != customIDPrefix || parts[1] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// Conversations are per user and channel, so two people in one channel get
// separate sessions.
func conversationID(channelID, userID string) string {
	return channelID + ":" + userID
}

func splitConversationID(id string) (channelID, userID string) {
	channelID, userID, _ = strings.Cut(id, ":")
	return channelID, userID
}
