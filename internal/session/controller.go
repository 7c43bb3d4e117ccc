package session

import (
	"context"
	"log/slog"

	"github.com/p-shah256/coverbot/internal/llm"
	"github.com/p-shah256/coverbot/internal/metrics"
	apperrors "github.com/p-shah256/coverbot/pkg/errors"
	"github.com/p-shah256/coverbot/pkg/types"
)

// UI is what the controller needs from the chat platform. The Ask methods
// block until the user answers or the interaction fails.
type UI interface {
	SendMessage(ctx context.Context, text string) error
	AskForFile(ctx context.Context, prompt string, acceptedTypes []string) (string, error)
	AskForChoice(ctx context.Context, prompt string, choices []types.Choice) (string, error)
}

type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

type Completer interface {
	Complete(ctx context.Context, templateName string, variables map[string]string) (string, error)
}

var satisfactionChoices = []types.Choice{
	{Label: "Yes", Value: ChoiceYes},
	{Label: "No", Value: ChoiceNo},
}

// Controller drives a Session through job description, CV upload, generation
// and revision rounds. It holds no per-session state.
type Controller struct {
	extractor      Extractor
	writer         Completer
	acceptDocx     bool
	choiceAttempts int
	metrics        *metrics.Metrics
}

type Option func(*Controller)

func WithDocx(accept bool) Option {
	return func(c *Controller) {
		c.acceptDocx = accept
	}
}

// WithChoiceAttempts sets how many times a failed satisfaction prompt is asked.
func WithChoiceAttempts(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.choiceAttempts = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

func NewController(extractor Extractor, writer Completer, opts ...Option) *Controller {
	c := &Controller{
		extractor:      extractor,
		writer:         writer,
		choiceAttempts: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start greets the user at the beginning of a conversation.
func (c *Controller) Start(ctx context.Context, ui UI) {
	c.say(ctx, ui, msgWelcome)
	c.say(ctx, ui, msgAskJob)
}

// HandleInput advances s with one user message. Failures are reported to the
// user through ui and leave s in a well defined state; nothing is returned.
func (c *Controller) HandleInput(ctx context.Context, ui UI, s *Session, input string) {
	logger := slog.With(
		"component", "session",
		"session_id", s.ID,
		"state", s.state.String(),
	)
	logger.Debug("handling input", "input_length", len(input))

	switch s.state {
	case AwaitingJobDescription:
		c.handleJobDescription(ctx, ui, s, input, logger)
	case AwaitingFeedback:
		c.handleFeedback(ctx, ui, s, input, logger)
	case Completed:
		c.say(ctx, ui, msgAlreadyDone)
	}
}

func (c *Controller) acceptedTypes() []string {
	if c.acceptDocx {
		return []string{types.MIMEPDF, types.MIMEDocx}
	}
	return []string{types.MIMEPDF}
}

func (c *Controller) uploadPrompt() string {
	if c.acceptDocx {
		return msgUploadPDFOrDocx
	}
	return msgUploadPDF
}

func (c *Controller) handleJobDescription(ctx context.Context, ui UI, s *Session, input string, logger *slog.Logger) {
	c.say(ctx, ui, msgProcessingJob)

	jobDescription := NormalizeJobDescription(input)
	if err := ValidateJobDescription(jobDescription); err != nil {
		c.metrics.Step("job_description", "invalid")
		c.fail(ctx, ui, logger, err)
		return
	}
	c.metrics.Step("job_description", "ok")
	c.say(ctx, ui, msgJobAccepted)

	path, err := ui.AskForFile(ctx, c.uploadPrompt(), c.acceptedTypes())
	if err != nil {
		c.metrics.Step("upload", "error")
		c.fail(ctx, ui, logger, apperrors.Wrap(apperrors.KindUIInteraction, msgNoFile, err))
		return
	}

	cvText, err := c.extractor.Extract(ctx, path)
	if err != nil {
		c.metrics.Step("extraction", "error")
		c.fail(ctx, ui, logger, err)
		return
	}
	c.metrics.Step("extraction", "ok")

	c.say(ctx, ui, msgGenerating)
	letter, err := c.writer.Complete(ctx, llm.TemplateCoverLetter, map[string]string{
		llm.VarJobDescription: jobDescription,
		llm.VarCVText:         cvText,
	})
	if err != nil {
		c.metrics.Step("generation", "error")
		c.fail(ctx, ui, logger, apperrors.Wrap(apperrors.KindGeneration, msgGenerationFailed, err))
		return
	}
	c.metrics.Step("generation", "ok")
	logger.Info("cover letter generated", "letter_length", len(letter))

	draft := &Draft{
		JobDescription: jobDescription,
		CVText:         cvText,
		CoverLetter:    letter,
	}
	c.say(ctx, ui, msgHereIsLetter)
	c.say(ctx, ui, letter)

	// The draft is only attached to the session once the user answers, so a
	// failed prompt leaves the session without a CV or letter.
	c.askSatisfaction(ctx, ui, s, draft, msgAskSatisfied, msgChoiceLostFirst, logger)
}

func (c *Controller) handleFeedback(ctx context.Context, ui UI, s *Session, feedback string, logger *slog.Logger) {
	d := s.draft
	c.say(ctx, ui, msgRevising)

	revised, err := c.writer.Complete(ctx, llm.TemplateRevision, map[string]string{
		llm.VarJobDescription: d.JobDescription,
		llm.VarCVText:         d.CVText,
		llm.VarCoverLetter:    d.CoverLetter,
		llm.VarFeedback:       feedback,
	})
	if err != nil {
		c.metrics.Step("revision", "error")
		c.fail(ctx, ui, logger, apperrors.Wrap(apperrors.KindRevision, msgRevisionFailed, err))
		return
	}
	c.metrics.Step("revision", "ok")

	d.CoverLetter = revised
	d.Revisions++
	logger.Info("cover letter revised", "revision", d.Revisions)

	c.say(ctx, ui, msgRevisionHeader(d.Revisions))
	c.say(ctx, ui, revised)

	if d.Revisions >= MaxRevisions {
		s.complete(d)
		c.metrics.Completed("max_revisions")
		c.say(ctx, ui, msgMaxRevisions())
		return
	}

	c.askSatisfaction(ctx, ui, s, d, msgAskRevised, msgChoiceLostRevise, logger)
}

func (c *Controller) askSatisfaction(ctx context.Context, ui UI, s *Session, d *Draft, prompt, onLost string, logger *slog.Logger) {
	var (
		value string
		err   error
	)
	for attempt := 1; attempt <= c.choiceAttempts; attempt++ {
		value, err = ui.AskForChoice(ctx, prompt, satisfactionChoices)
		if err == nil || ctx.Err() != nil {
			break
		}
		logger.Warn("satisfaction prompt failed", "attempt", attempt, "error", err)
	}
	if err != nil {
		c.metrics.Step("satisfaction", "error")
		c.fail(ctx, ui, logger, apperrors.Wrap(apperrors.KindUIInteraction, msgChoiceFailed, err))
		c.say(ctx, ui, onLost)
		return
	}

	if value == ChoiceYes {
		s.complete(d)
		c.metrics.Step("satisfaction", "yes")
		c.metrics.Completed("satisfied")
		c.say(ctx, ui, msgReady)
		return
	}

	s.awaitFeedback(d)
	c.metrics.Step("satisfaction", "no")
	c.say(ctx, ui, msgRemaining(MaxRevisions-d.Revisions))
}

func (c *Controller) fail(ctx context.Context, ui UI, logger *slog.Logger, err error) {
	logger.Warn("step failed", "kind", apperrors.KindOf(err).String(), "error", err)
	c.say(ctx, ui, err.Error())
}

func (c *Controller) say(ctx context.Context, ui UI, text string) {
	if err := ui.SendMessage(ctx, text); err != nil {
		slog.Error("failed to send message", "component", "session", "error", err)
	}
}
