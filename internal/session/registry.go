package session

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/p-shah256/coverbot/internal/metrics"
	"github.com/p-shah256/coverbot/pkg/types"
)

type entry struct {
	// turn is held for the whole of a HandleInput call.
	turn    sync.Mutex
	session *Session

	// guarded by Registry.mu
	summary types.SessionSummary
}

// Registry owns the sessions of every conversation. Inputs for one
// conversation are handled one at a time; different conversations proceed
// concurrently.
type Registry struct {
	controller *Controller
	metrics    *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*entry
}

func NewRegistry(controller *Controller, m *metrics.Metrics) *Registry {
	return &Registry{
		controller: controller,
		metrics:    m,
		entries:    make(map[string]*entry),
	}
}

// Handle feeds input to the conversation's session. The first message of a
// conversation gets the welcome and, unless it is a greeting, is then handled
// as a job description. Input for a completed session starts a new one.
func (r *Registry) Handle(ctx context.Context, conversationID string, ui UI, input string) {
	e, created := r.acquire(conversationID)
	defer e.turn.Unlock()

	s := e.session
	if created {
		r.controller.Start(ctx, ui)
		if isGreeting(input) {
			r.touch(e)
			return
		}
	}

	if s.State() == Completed {
		slog.Info("starting new session after completion",
			"component", "registry",
			"conversation_id", conversationID,
			"previous_session_id", s.ID,
		)
		s = New(conversationID)
		r.metrics.SessionStarted()
		r.metrics.SessionsEnded(1)
		e.session = s
	}

	r.controller.HandleInput(ctx, ui, s, input)
	r.touch(e)
}

// Reset discards the conversation's session and greets the user again.
func (r *Registry) Reset(ctx context.Context, conversationID string, ui UI) {
	e := r.newEntry(conversationID)

	r.mu.Lock()
	_, existed := r.entries[conversationID]
	r.entries[conversationID] = e
	r.mu.Unlock()

	if existed {
		r.metrics.SessionsEnded(1)
	}
	r.metrics.SessionStarted()
	r.controller.Start(ctx, ui)
}

// Prune drops sessions idle for longer than maxIdle and returns how many were
// removed. Sessions in the middle of a turn are kept.
func (r *Registry) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	removed := 0
	for id, e := range r.entries {
		if !e.summary.LastActive.Before(cutoff) {
			continue
		}
		if !e.turn.TryLock() {
			continue
		}
		delete(r.entries, id)
		e.turn.Unlock()
		removed++
	}
	r.mu.Unlock()

	r.metrics.SessionsEnded(removed)
	return removed
}

// Sessions returns summaries of all sessions, most recently active first.
// Summaries reflect the last finished turn.
func (r *Registry) Sessions() []types.SessionSummary {
	r.mu.Lock()
	out := make([]types.SessionSummary, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.summary)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out
}

func (r *Registry) Session(id string) (types.SessionSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.summary.ID == id {
			return e.summary, true
		}
	}
	return types.SessionSummary{}, false
}

// acquire returns the conversation's entry with its turn lock held, creating
// it if needed. An entry replaced by Reset or Prune while waiting for the lock
// is skipped.
func (r *Registry) acquire(conversationID string) (*entry, bool) {
	for {
		r.mu.Lock()
		e, ok := r.entries[conversationID]
		if !ok {
			e = r.newEntry(conversationID)
			r.entries[conversationID] = e
			e.turn.Lock()
			r.mu.Unlock()
			r.metrics.SessionStarted()
			return e, true
		}
		r.mu.Unlock()

		e.turn.Lock()
		r.mu.Lock()
		current := r.entries[conversationID] == e
		r.mu.Unlock()
		if current {
			return e, false
		}
		e.turn.Unlock()
	}
}

func (r *Registry) newEntry(conversationID string) *entry {
	s := New(conversationID)
	return &entry{
		session: s,
		summary: s.Summary(time.Now().UTC()),
	}
}

func (r *Registry) touch(e *entry) {
	summary := e.session.Summary(time.Now().UTC())
	r.mu.Lock()
	e.summary = summary
	r.mu.Unlock()
}

var greetings = map[string]bool{
	"hi": true, "hii": true, "hello": true, "hey": true, "heya": true, "yo": true,
	"hola": true, "howdy": true, "greetings": true, "start": true, "help": true,
	"good": true, "morning": true, "afternoon": true, "evening": true,
	"there": true, "bot": true, "coverbot": true, "please": true,
}

// isGreeting reports whether a first message is small talk rather than an
// attempt at a job description.
func isGreeting(input string) bool {
	fields := strings.Fields(strings.ToLower(input))
	if len(fields) == 0 || strings.HasPrefix(fields[0], "/") {
		return true
	}
	if len(fields) > 3 {
		return false
	}
	for _, f := range fields {
		if !greetings[strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) })] {
			return false
		}
	}
	return true
}
