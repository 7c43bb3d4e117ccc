// Package chat turns platform events into session turns. A Hub implements the
// session UI for every conversation and routes replies back to the questions
// that are waiting for them.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-shah256/coverbot/internal/helper"
	"github.com/p-shah256/coverbot/internal/session"
	"github.com/p-shah256/coverbot/pkg/types"
)

const (
	msgBusy        = "I'm still working on your last message, please wait."
	msgSendJobText = "Please send the job description as text first."
	msgPickChoice  = "Please answer using the buttons above, or type one of: %s"
	msgUploadAs    = "Please upload your CV as a %s file."
)

var ErrAskTimeout = errors.New("no answer received in time")

// Transport is a chat platform connection.
type Transport interface {
	Send(ctx context.Context, conversationID, text string) error
	SendChoices(ctx context.Context, conversationID, prompt, nonce string, choices []types.Choice) error
	// Download stores an attachment locally and returns its path.
	Download(ctx context.Context, att types.Attachment) (string, error)
}

// Handler receives inbound platform events.
type Handler interface {
	OnMessage(ctx context.Context, in Inbound)
	OnChoice(ctx context.Context, conversationID, nonce, value string)
}

// Runner is a Transport that also delivers events until ctx is cancelled.
type Runner interface {
	Transport
	Run(ctx context.Context, h Handler) error
}

type Inbound struct {
	ConversationID string
	Text           string
	Attachments    []types.Attachment
}

// Sessions is the part of session.Registry the hub drives.
type Sessions interface {
	Handle(ctx context.Context, conversationID string, ui session.UI, input string)
	Reset(ctx context.Context, conversationID string, ui session.UI)
}

type waitKind int

const (
	waitFile waitKind = iota
	waitChoice
)

type reply struct {
	value      string
	attachment types.Attachment
}

type waiter struct {
	kind     waitKind
	accepted []string
	nonce    string
	choices  []types.Choice
	ch       chan reply
}

type turn struct {
	cancel context.CancelFunc
}

type conversation struct {
	turn *turn
	wait *waiter
}

type Hub struct {
	transport  Transport
	sessions   Sessions
	askTimeout time.Duration
	limit      int

	mu    sync.Mutex
	convs map[string]*conversation
	wg    sync.WaitGroup
}

type Option func(*Hub)

func WithAskTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.askTimeout = d
		}
	}
}

// WithMessageLimit sets the longest message the platform accepts.
func WithMessageLimit(n int) Option {
	return func(h *Hub) {
		h.limit = n
	}
}

func NewHub(transport Transport, sessions Sessions, opts ...Option) *Hub {
	h := &Hub{
		transport:  transport,
		sessions:   sessions,
		askTimeout: 10 * time.Minute,
		limit:      2000,
		convs:      make(map[string]*conversation),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Wait blocks until every running turn has returned.
func (h *Hub) Wait() {
	h.wg.Wait()
}

func (h *Hub) OnMessage(ctx context.Context, in Inbound) {
	logger := slog.With("component", "chat", "conversation_id", in.ConversationID)
	text := strings.TrimSpace(in.Text)

	if isResetCommand(text) {
		logger.Info("conversation reset")
		h.reset(ctx, in.ConversationID)
		return
	}

	h.mu.Lock()
	conv := h.conversation(in.ConversationID)
	if w := conv.wait; w != nil {
		r, ok, hint := w.match(text, in.Attachments)
		if ok {
			conv.wait = nil
			w.ch <- r
		}
		h.mu.Unlock()
		if !ok {
			h.send(ctx, in.ConversationID, hint)
		}
		return
	}
	if conv.turn != nil {
		h.mu.Unlock()
		h.send(ctx, in.ConversationID, msgBusy)
		return
	}
	if text == "" {
		h.release(in.ConversationID, conv)
		h.mu.Unlock()
		if len(in.Attachments) > 0 {
			h.send(ctx, in.ConversationID, msgSendJobText)
		}
		return
	}

	turnCtx, cancel := context.WithCancel(ctx)
	t := &turn{cancel: cancel}
	conv.turn = t
	h.wg.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		defer cancel()
		ui := &conversationUI{hub: h, conversationID: in.ConversationID}
		defer func() {
			helper.Remove(ui.downloads...)
			h.mu.Lock()
			if conv.turn == t {
				conv.turn = nil
			}
			h.release(in.ConversationID, conv)
			h.mu.Unlock()
		}()

		start := time.Now()
		h.sessions.Handle(turnCtx, in.ConversationID, ui, text)
		logger.Debug("turn finished", "duration_ms", time.Since(start).Milliseconds())
	}()
}

func (h *Hub) OnChoice(ctx context.Context, conversationID, nonce, value string) {
	h.mu.Lock()
	conv := h.conversation(conversationID)
	w := conv.wait
	if w == nil || w.kind != waitChoice || w.nonce != nonce || !w.hasValue(value) {
		h.release(conversationID, conv)
		h.mu.Unlock()
		slog.Debug("ignoring stale choice", "component", "chat", "conversation_id", conversationID, "nonce", nonce)
		return
	}
	conv.wait = nil
	w.ch <- reply{value: value}
	h.mu.Unlock()
}

// reset cancels any running turn and starts the conversation over.
func (h *Hub) reset(ctx context.Context, conversationID string) {
	h.mu.Lock()
	conv := h.conversation(conversationID)
	if conv.turn != nil {
		conv.turn.cancel()
		conv.turn = nil
	}
	conv.wait = nil
	h.release(conversationID, conv)
	h.mu.Unlock()

	h.sessions.Reset(ctx, conversationID, &conversationUI{hub: h, conversationID: conversationID})
}

// conversation must be called with h.mu held.
func (h *Hub) conversation(id string) *conversation {
	conv, ok := h.convs[id]
	if !ok {
		conv = &conversation{}
		h.convs[id] = conv
	}
	return conv
}

// release drops conv once it has no turn and no pending question. It must be
// called with h.mu held.
func (h *Hub) release(id string, conv *conversation) {
	if conv.turn == nil && conv.wait == nil && h.convs[id] == conv {
		delete(h.convs, id)
	}
}

func (h *Hub) send(ctx context.Context, conversationID, text string) {
	for _, part := range SplitMessage(text, h.limit) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if err := h.transport.Send(ctx, conversationID, part); err != nil {
			slog.Error("failed to send message", "component", "chat", "conversation_id", conversationID, "error", err)
			return
		}
	}
}

// wait registers w for the conversation and blocks for its reply. A turn
// cancelled by reset never installs a waiter, since reset cancels under h.mu.
func (h *Hub) wait(ctx context.Context, conversationID string, w *waiter, ask func() error) (reply, error) {
	h.mu.Lock()
	if err := ctx.Err(); err != nil {
		h.mu.Unlock()
		return reply{}, err
	}
	conv := h.conversation(conversationID)
	conv.wait = w
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if conv.wait == w {
			conv.wait = nil
		}
		h.mu.Unlock()
	}()

	if err := ask(); err != nil {
		return reply{}, err
	}

	timer := time.NewTimer(h.askTimeout)
	defer timer.Stop()

	select {
	case r := <-w.ch:
		return r, nil
	case <-timer.C:
		return reply{}, fmt.Errorf("%w after %s", ErrAskTimeout, h.askTimeout)
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

func (w *waiter) hasValue(value string) bool {
	for _, c := range w.choices {
		if c.Value == value {
			return true
		}
	}
	return false
}

// match checks whether a message answers w. When it does not, hint tells the
// user what is expected.
func (w *waiter) match(text string, attachments []types.Attachment) (r reply, ok bool, hint string) {
	switch w.kind {
	case waitFile:
		for _, att := range attachments {
			if mime := acceptedMIME(att, w.accepted); mime != "" {
				if types.MIMEFromFilename(att.Name) == "" {
					att.Name += types.ExtensionFor(mime)
				}
				return reply{attachment: att}, true, ""
			}
		}
		return reply{}, false, fmt.Sprintf(msgUploadAs, describeTypes(w.accepted))
	default:
		labels := make([]string, 0, len(w.choices))
		for _, c := range w.choices {
			if strings.EqualFold(text, c.Label) || strings.EqualFold(text, c.Value) {
				return reply{value: c.Value}, true, ""
			}
			labels = append(labels, c.Label)
		}
		return reply{}, false, fmt.Sprintf(msgPickChoice, strings.Join(labels, ", "))
	}
}

func acceptedMIME(att types.Attachment, accepted []string) string {
	byName := types.MIMEFromFilename(att.Name)
	byType, _, _ := strings.Cut(att.ContentType, ";")
	byType = strings.TrimSpace(byType)
	for _, a := range accepted {
		if a == byName || a == byType {
			return a
		}
	}
	return ""
}

func describeTypes(mimes []string) string {
	names := make([]string, 0, len(mimes))
	for _, m := range mimes {
		switch m {
		case types.MIMEPDF:
			names = append(names, "PDF")
		case types.MIMEDocx:
			names = append(names, "docx")
		default:
			names = append(names, m)
		}
	}
	return strings.Join(names, " or ")
}

func isResetCommand(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	cmd, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	return cmd == "/start" || cmd == "/restart"
}

// conversationUI is the session.UI of one turn.
type conversationUI struct {
	hub            *Hub
	conversationID string
	downloads      []string
}

func (u *conversationUI) SendMessage(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, part := range SplitMessage(text, u.hub.limit) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if err := u.hub.transport.Send(ctx, u.conversationID, part); err != nil {
			return err
		}
	}
	return nil
}

func (u *conversationUI) AskForFile(ctx context.Context, prompt string, accepted []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	w := &waiter{kind: waitFile, accepted: accepted, ch: make(chan reply, 1)}
	r, err := u.hub.wait(ctx, u.conversationID, w, func() error {
		return u.SendMessage(ctx, prompt)
	})
	if err != nil {
		return "", err
	}

	path, err := u.hub.transport.Download(ctx, r.attachment)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", r.attachment.Name, err)
	}
	u.downloads = append(u.downloads, path)
	return path, nil
}

func (u *conversationUI) AskForChoice(ctx context.Context, prompt string, choices []types.Choice) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	nonce := uuid.NewString()
	w := &waiter{kind: waitChoice, nonce: nonce, choices: choices, ch: make(chan reply, 1)}
	r, err := u.hub.wait(ctx, u.conversationID, w, func() error {
		return u.hub.transport.SendChoices(ctx, u.conversationID, prompt, nonce, choices)
	})
	if err != nil {
		return "", err
	}
	return r.value, nil
}
