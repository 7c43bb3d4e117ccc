package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-shah256/coverbot/internal/chat"
	"github.com/p-shah256/coverbot/pkg/types"
)

type recordingHandler struct {
	messages []chat.Inbound
}

func (r *recordingHandler) OnMessage(_ context.Context, in chat.Inbound) {
	r.messages = append(r.messages, in)
}

func (r *recordingHandler) OnChoice(context.Context, string, string, string) {}

func TestToInbound(t *testing.T) {
	m := &discordgo.Message{
		ChannelID: "chan",
		Content:   "<@bot123> Senior Go engineer wanted",
		Author:    &discordgo.User{ID: "user"},
		Attachments: []*discordgo.MessageAttachment{{
			ID:          "a1",
			Filename:    "cv.pdf",
			URL:         "https://cdn.example/cv.pdf",
			ContentType: "application/pdf",
			Size:        1234,
		}},
	}

	in := toInbound(m, "bot123")

	assert.Equal(t, "chan:user", in.ConversationID)
	assert.Equal(t, "Senior Go engineer wanted", in.Text)
	require.Len(t, in.Attachments, 1)
	assert.Equal(t, types.Attachment{
		ID:          "a1",
		Name:        "cv.pdf",
		URL:         "https://cdn.example/cv.pdf",
		ContentType: "application/pdf",
		Size:        1234,
	}, in.Attachments[0])
}

func TestOnMessageCreateGuildGating(t *testing.T) {
	botUser := &discordgo.User{ID: "bot123"}
	tests := []struct {
		name string
		msg  *discordgo.Message
		want bool
	}{
		{"direct message", &discordgo.Message{Content: "hi"}, true},
		{"guild without mention", &discordgo.Message{GuildID: "g1", Content: "hi all"}, false},
		{
			"guild mention",
			&discordgo.Message{GuildID: "g1", Content: "<@bot123> hi", Mentions: []*discordgo.User{botUser}},
			true,
		},
		{
			"guild mention of someone else",
			&discordgo.Message{GuildID: "g1", Content: "<@u9> hi", Mentions: []*discordgo.User{{ID: "u9"}}},
			false,
		},
		{
			"guild reply to the bot",
			&discordgo.Message{GuildID: "g1", Content: "yes", ReferencedMessage: &discordgo.Message{Author: botUser}},
			true,
		},
		{"author is a bot", &discordgo.Message{Content: "hi", Author: &discordgo.User{ID: "other", Bot: true}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := discordgo.NewState()
			state.User = botUser
			h := &recordingHandler{}
			b := &Bot{ctx: context.Background(), handler: h}

			tt.msg.ChannelID = "chan"
			if tt.msg.Author == nil {
				tt.msg.Author = &discordgo.User{ID: "user", Username: "jane"}
			}
			b.onMessageCreate(&discordgo.Session{State: state}, &discordgo.MessageCreate{Message: tt.msg})

			if tt.want {
				require.Len(t, h.messages, 1)
				assert.Equal(t, "chan:"+tt.msg.Author.ID, h.messages[0].ConversationID)
			} else {
				assert.Empty(t, h.messages)
			}
		})
	}
}

func TestChoiceCustomIDs(t *testing.T) {
	components := choiceComponents("n1", []types.Choice{{Label: "Yes", Value: "yes"}, {Label: "No", Value: "no"}})
	require.Len(t, components, 1)
	row, ok := components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 2)

	yes := row.Components[0].(discordgo.Button)
	assert.Equal(t, "Yes", yes.Label)
	assert.Equal(t, discordgo.PrimaryButton, yes.Style)

	nonce, value, ok := parseCustomID(yes.CustomID)
	require.True(t, ok)
	assert.Equal(t, "n1", nonce)
	assert.Equal(t, "yes", value)
}

func TestParseCustomIDRejectsForeignIDs(t *testing.T) {
	for _, id := range []string{"", "choice|", "other|n1|yes", "choice||yes", "just-text"} {
		_, _, ok := parseCustomID(id)
		assert.False(t, ok, id)
	}
}

func TestSplitConversationID(t *testing.T) {
	channelID, userID := splitConversationID(conversationID("c", "u"))
	assert.Equal(t, "c", channelID)
	assert.Equal(t, "u", userID)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF"))
	}))
	defer srv.Close()

	b := &Bot{downloadDir: t.TempDir(), maxBytes: 100}

	path, err := b.Download(context.Background(), types.Attachment{Name: "cv.pdf", URL: srv.URL, Size: 4})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	_, err = b.Download(context.Background(), types.Attachment{Name: "huge.pdf", URL: srv.URL, Size: 1000})
	assert.ErrorContains(t, err, "larger than 100 bytes")
}
