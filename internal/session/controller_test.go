package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-shah256/coverbot/internal/llm"
	"github.com/p-shah256/coverbot/internal/metrics"
	"github.com/p-shah256/coverbot/pkg/types"
)

type choiceAnswer struct {
	value string
	err   error
}

type fakeUI struct {
	messages     []string
	fileRequests [][]string
	filePath     string
	fileErr      error
	choices      []choiceAnswer
	choicePrompt []string
}

func (f *fakeUI) SendMessage(_ context.Context, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeUI) AskForFile(_ context.Context, prompt string, accepted []string) (string, error) {
	f.messages = append(f.messages, prompt)
	f.fileRequests = append(f.fileRequests, accepted)
	return f.filePath, f.fileErr
}

func (f *fakeUI) AskForChoice(_ context.Context, prompt string, choices []types.Choice) (string, error) {
	f.choicePrompt = append(f.choicePrompt, prompt)
	if len(f.choices) == 0 {
		return "", errors.New("no answer queued")
	}
	next := f.choices[0]
	f.choices = f.choices[1:]
	return next.value, next.err
}

func (f *fakeUI) answer(values ...string) {
	for _, v := range values {
		f.choices = append(f.choices, choiceAnswer{value: v})
	}
}

func (f *fakeUI) said(text string) bool {
	for _, m := range f.messages {
		if strings.Contains(m, text) {
			return true
		}
	}
	return false
}

type fakeExtractor struct {
	text  string
	err   error
	paths []string
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (string, error) {
	f.paths = append(f.paths, path)
	return f.text, f.err
}

type completion struct {
	template  string
	variables map[string]string
}

type fakeCompleter struct {
	calls []completion
	errs  []error
}

func (f *fakeCompleter) Complete(_ context.Context, templateName string, variables map[string]string) (string, error) {
	f.calls = append(f.calls, completion{template: templateName, variables: variables})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("letter v%d", len(f.calls)), nil
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(parts, " ")
}

func newTestController(opts ...Option) (*Controller, *fakeExtractor, *fakeCompleter) {
	ext := &fakeExtractor{text: words(60)}
	comp := &fakeCompleter{}
	return NewController(ext, comp, opts...), ext, comp
}

func TestStartSendsWelcome(t *testing.T) {
	c, _, _ := newTestController()
	ui := &fakeUI{}

	c.Start(context.Background(), ui)

	assert.Equal(t, []string{msgWelcome, msgAskJob}, ui.messages)
}

func TestShortJobDescriptionRejected(t *testing.T) {
	c, ext, comp := newTestController()
	ui := &fakeUI{}
	s := New("conv")

	c.HandleInput(context.Background(), ui, s, "I am a software engineer...")

	assert.Equal(t, AwaitingJobDescription, s.State())
	assert.True(t, ui.said(msgJobTooShort))
	assert.Empty(t, ui.fileRequests)
	assert.Empty(t, ext.paths)
	assert.Empty(t, comp.calls)
	_, ok := s.Draft()
	assert.False(t, ok)
}

func TestJobDescriptionWordBoundary(t *testing.T) {
	tests := []struct {
		name     string
		words    int
		accepted bool
	}{
		{"nineteen words", 19, false},
		{"twenty words", 20, true},
		{"padded with whitespace", 20, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestController()
			ui := &fakeUI{filePath: "/tmp/cv.pdf"}
			ui.answer(ChoiceYes)

			c.HandleInput(context.Background(), ui, New("conv"), "  \n"+words(tt.words)+"\t ")

			assert.Equal(t, tt.accepted, ui.said(msgJobAccepted))
			assert.Equal(t, !tt.accepted, ui.said(msgJobTooShort))
		})
	}
}

func TestFirstGenerationReachesSatisfactionPrompt(t *testing.T) {
	c, ext, comp := newTestController()
	ui := &fakeUI{filePath: "/tmp/cv.pdf"}
	ui.answer(ChoiceNo)
	s := New("conv")
	jd := words(25)

	c.HandleInput(context.Background(), ui, s, jd)

	require.Len(t, comp.calls, 1)
	assert.Equal(t, llm.TemplateCoverLetter, comp.calls[0].template)
	assert.Equal(t, map[string]string{
		llm.VarJobDescription: jd,
		llm.VarCVText:         ext.text,
	}, comp.calls[0].variables)
	assert.Equal(t, []string{"/tmp/cv.pdf"}, ext.paths)
	assert.Equal(t, [][]string{{types.MIMEPDF}}, ui.fileRequests)
	assert.Equal(t, []string{msgAskSatisfied}, ui.choicePrompt)

	assert.Equal(t, AwaitingFeedback, s.State())
	d, ok := s.Draft()
	require.True(t, ok)
	assert.Equal(t, 0, d.Revisions)
	assert.Equal(t, "letter v1", d.CoverLetter)
	assert.True(t, ui.said("letter v1"))
	assert.True(t, ui.said(msgRemaining(5)))
}

func TestSatisfiedCompletesSession(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c, _, _ := newTestController(WithMetrics(m))
	ui := &fakeUI{filePath: "/tmp/cv.pdf"}
	ui.answer(ChoiceYes)
	s := New("conv")

	c.HandleInput(context.Background(), ui, s, words(25))

	assert.Equal(t, Completed, s.State())
	assert.Equal(t, msgReady, ui.messages[len(ui.messages)-1])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Completions.WithLabelValues("satisfied")))
}

func TestDocxAcceptedWhenEnabled(t *testing.T) {
	c, _, _ := newTestController(WithDocx(true))
	ui := &fakeUI{filePath: "/tmp/cv.docx"}
	ui.answer(ChoiceYes)

	c.HandleInput(context.Background(), ui, New("conv"), words(25))

	assert.Equal(t, [][]string{{types.MIMEPDF, types.MIMEDocx}}, ui.fileRequests)
	assert.True(t, ui.said(msgUploadPDFOrDocx))
}

func TestUploadAndExtractionFailuresKeepState(t *testing.T) {
	tests := []struct {
		name    string
		fileErr error
		extErr  error
		want    string
	}{
		{"upload timed out", errors.New("timed out"), nil, msgNoFile},
		{"extraction failed", nil, errors.New("The CV is too short."), "The CV is too short."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ext, comp := newTestController()
			ext.err = tt.extErr
			ui := &fakeUI{filePath: "/tmp/cv.pdf", fileErr: tt.fileErr}
			s := New("conv")

			c.HandleInput(context.Background(), ui, s, words(25))

			assert.Equal(t, AwaitingJobDescription, s.State())
			assert.True(t, ui.said(tt.want))
			assert.Empty(t, comp.calls)
			_, ok := s.Draft()
			assert.False(t, ok)
		})
	}
}

func TestGenerationFailureAllowsRetry(t *testing.T) {
	c, _, comp := newTestController()
	comp.errs = []error{errors.New("model overloaded")}
	ui := &fakeUI{filePath: "/tmp/cv.pdf"}
	s := New("conv")

	c.HandleInput(context.Background(), ui, s, words(25))

	assert.Equal(t, AwaitingJobDescription, s.State())
	assert.True(t, ui.said(msgGenerationFailed))
	assert.True(t, ui.said("model overloaded"))
	assert.Empty(t, ui.choicePrompt)
	_, ok := s.Draft()
	assert.False(t, ok)

	ui.answer(ChoiceNo)
	c.HandleInput(context.Background(), ui, s, words(25))

	assert.Equal(t, AwaitingFeedback, s.State())
	assert.Len(t, comp.calls, 2)
}

func TestRevisionCapForcesCompletion(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	c, ext, comp := newTestController(WithMetrics(m))
	ui := &fakeUI{filePath: "/tmp/cv.pdf"}
	ui.answer(ChoiceNo, ChoiceNo, ChoiceNo, ChoiceNo, ChoiceNo)
	s := New("conv")
	jd := words(25)

	c.HandleInput(context.Background(), ui, s, jd)
	for i := 1; i <= MaxRevisions; i++ {
		require.Equal(t, AwaitingFeedback, s.State())
		c.HandleInput(context.Background(), ui, s, fmt.Sprintf("feedback %d", i))
		assert.Equal(t, i, s.Revisions())
		assert.True(t, ui.said(msgRevisionHeader(i)))

		d, _ := s.Draft()
		assert.Equal(t, jd, d.JobDescription)
		assert.Equal(t, ext.text, d.CVText)
	}

	assert.Equal(t, Completed, s.State())
	assert.Equal(t, MaxRevisions, s.Revisions())
	// one prompt after generation, one after each of the first four revisions
	assert.Len(t, ui.choicePrompt, MaxRevisions)
	assert.Equal(t, msgMaxRevisions(), ui.messages[len(ui.messages)-1])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Completions.WithLabelValues("max_revisions")))

	last := comp.calls[len(comp.calls)-1]
	assert.Equal(t, llm.TemplateRevision, last.template)
	assert.Equal(t, "letter v5", last.variables[llm.VarCoverLetter])
	assert.Equal(t, "feedback 5", last.variables[llm.VarFeedback])

	before := len(comp.calls)
	c.HandleInput(context.Background(), ui, s, "one more change please")
	assert.Len(t, comp.calls, before)
	assert.Equal(t, msgAlreadyDone, ui.messages[len(ui.messages)-1])
}

func TestRemainingCountDecreases(t *testing.T) {
	c, _, _ := newTestController()
	ui := &fakeUI{filePath: "/tmp/cv.pdf"}
	ui.answer(ChoiceNo, ChoiceNo)
	s := New("conv")

	c.HandleInput(context.Background(), ui, s, words(25))
	c.HandleInput(context.Background(), ui, s, "shorter please")

	assert.True(t, ui.said(msgRemaining(5)))
	assert.True(t, ui.said(msgRemaining(4)))
	assert.Equal(t, []string{msgAskSatisfied, msgAskRevised}, ui.choicePrompt)
}

func TestRevisionFailureKeepsLetter(t *testing.T) {
	c, _, comp := newTestController()
	ui := &fakeUI{filePath: "/tmp/cv.pdf"}
	ui.answer(ChoiceNo)
	s := New("conv")
	c.HandleInput(context.Background(), ui, s, words(25))

	comp.errs = []error{errors.New("quota exceeded")}
	c.HandleInput(context.Background(), ui, s, "more enthusiasm")

	assert.Equal(t, AwaitingFeedback, s.State())
	assert.Equal(t, 0, s.Revisions())
	d, _ := s.Draft()
	assert.Equal(t, "letter v1", d.CoverLetter)
	assert.True(t, ui.said(msgRevisionFailed))

	ui.answer(ChoiceYes)
	c.HandleInput(context.Background(), ui, s, "more enthusiasm")
	assert.Equal(t, Completed, s.State())
	assert.Equal(t, 1, s.Revisions())
}

func TestChoicePromptRetried(t *testing.T) {
	c, _, _ := newTestController(WithChoiceAttempts(2))
	ui := &fakeUI{filePath: "/tmp/cv.pdf"}
	ui.choices = []choiceAnswer{{err: errors.New("button expired")}, {value: ChoiceYes}}
	s := New("conv")

	c.HandleInput(context.Background(), ui, s, words(25))

	assert.Len(t, ui.choicePrompt, 2)
	assert.Equal(t, Completed, s.State())
}

func TestChoicePromptFailure(t *testing.T) {
	t.Run("first generation", func(t *testing.T) {
		c, _, _ := newTestController(WithChoiceAttempts(3))
		ui := &fakeUI{filePath: "/tmp/cv.pdf"}
		s := New("conv")

		c.HandleInput(context.Background(), ui, s, words(25))

		assert.Len(t, ui.choicePrompt, 3)
		assert.Equal(t, AwaitingJobDescription, s.State())
		_, ok := s.Draft()
		assert.False(t, ok)
		assert.True(t, ui.said(msgChoiceFailed))
		assert.True(t, ui.said(msgChoiceLostFirst))
	})

	t.Run("after revision", func(t *testing.T) {
		c, _, _ := newTestController(WithChoiceAttempts(1))
		ui := &fakeUI{filePath: "/tmp/cv.pdf"}
		ui.answer(ChoiceNo)
		s := New("conv")
		c.HandleInput(context.Background(), ui, s, words(25))

		c.HandleInput(context.Background(), ui, s, "mention Go")

		assert.Equal(t, AwaitingFeedback, s.State())
		assert.Equal(t, 1, s.Revisions())
		d, _ := s.Draft()
		assert.Equal(t, "letter v2", d.CoverLetter)
		assert.True(t, ui.said(msgChoiceLostRevise))
	})
}

func TestHTMLJobDescription(t *testing.T) {
	c, _, comp := newTestController()
	ui := &fakeUI{filePath: "/tmp/cv.pdf"}
	ui.answer(ChoiceYes)
	html := "<html><body><h1>Backend Engineer</h1><p>" + words(12) + "</p><ul><li>" + words(10) + "</li></ul></body></html>"

	c.HandleInput(context.Background(), ui, New("conv"), html)

	require.Len(t, comp.calls, 1)
	jd := comp.calls[0].variables[llm.VarJobDescription]
	assert.NotContains(t, jd, "<p>")
	assert.Contains(t, jd, "Backend Engineer")
}
