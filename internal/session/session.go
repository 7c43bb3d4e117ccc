package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/p-shah256/coverbot/pkg/types"
)

const (
	// MaxRevisions caps feedback rounds; the session completes when it is reached.
	MaxRevisions = 5
	// MinJobDescriptionWords is the shortest accepted job description.
	MinJobDescriptionWords = 20
)

type State int

const (
	AwaitingJobDescription State = iota
	AwaitingFeedback
	Completed
)

func (s State) String() string {
	switch s {
	case AwaitingJobDescription:
		return "awaiting_job_description"
	case AwaitingFeedback:
		return "awaiting_feedback"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Draft is the data a session accumulates once a cover letter exists.
// JobDescription and CVText never change after the draft is created.
type Draft struct {
	JobDescription string
	CVText         string
	CoverLetter    string
	Revisions      int
}

// Session is one conversation's progress through the cover letter workflow.
// It is owned by a single controller call at a time and is not safe for
// concurrent use; Registry serialises access per conversation.
type Session struct {
	ID             string
	ConversationID string
	CreatedAt      time.Time

	state State
	// nil while state == AwaitingJobDescription
	draft *Draft
}

func New(conversationID string) *Session {
	return &Session{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		CreatedAt:      time.Now().UTC(),
		state:          AwaitingJobDescription,
	}
}

func (s *Session) State() State {
	return s.state
}

// Draft returns a copy of the session's draft and whether one exists.
func (s *Session) Draft() (Draft, bool) {
	if s.draft == nil {
		return Draft{}, false
	}
	return *s.draft, true
}

func (s *Session) Revisions() int {
	if s.draft == nil {
		return 0
	}
	return s.draft.Revisions
}

func (s *Session) RemainingRevisions() int {
	return MaxRevisions - s.Revisions()
}

func (s *Session) Summary(lastActive time.Time) types.SessionSummary {
	return types.SessionSummary{
		ID:             s.ID,
		ConversationID: s.ConversationID,
		State:          s.state.String(),
		Revisions:      s.Revisions(),
		Remaining:      s.RemainingRevisions(),
		HasCoverLetter: s.draft != nil,
		CreatedAt:      s.CreatedAt,
		LastActive:     lastActive,
	}
}

// transitions

func (s *Session) complete(d *Draft) {
	s.draft = d
	s.state = Completed
}

func (s *Session) awaitFeedback(d *Draft) {
	s.draft = d
	s.state = AwaitingFeedback
}
