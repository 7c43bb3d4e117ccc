package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/p-shah256/coverbot/internal/cleaner"
	apperrors "github.com/p-shah256/coverbot/pkg/errors"
)

// MinWords is the smallest résumé, in words, worth writing a letter from.
const MinWords = 50

const (
	msgPDFOnly     = "Only PDF files are supported. Please upload PDF files."
	msgPDFOrDocx   = "Only PDF and Word (.docx) files are supported. Please upload one of those."
	msgNoText      = "Couldn't read any text from your file."
	msgTooShort    = "The CV is too short."
	msgReadProblem = "Oops! There was a problem reading your file"
)

type Extractor struct {
	acceptDocx bool
}

func New(acceptDocx bool) *Extractor {
	return &Extractor{acceptDocx: acceptDocx}
}

// Extract returns the plain text of the résumé at path. Every failure is an
// *errors.Error of kind KindExtraction whose message can be shown to the user.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	logger := slog.With(
		"component", "extraction",
		"file", filepath.Base(path),
	)
	startTime := time.Now()

	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = readPDF(ctx, path)
	case ".docx":
		if !e.acceptDocx {
			return "", apperrors.New(apperrors.KindExtraction, msgPDFOnly)
		}
		text, err = readDocx(path)
	default:
		if e.acceptDocx {
			return "", apperrors.New(apperrors.KindExtraction, msgPDFOrDocx)
		}
		return "", apperrors.New(apperrors.KindExtraction, msgPDFOnly)
	}
	if err != nil {
		logger.Error("document read failed", "error", err)
		return "", apperrors.Wrap(apperrors.KindExtraction, msgReadProblem, err)
	}

	if strings.TrimSpace(text) == "" {
		return "", apperrors.New(apperrors.KindExtraction, msgNoText)
	}

	words := cleaner.WordCount(text)
	if words < MinWords {
		logger.Info("document rejected as too short", "words", words)
		return "", apperrors.New(apperrors.KindExtraction, msgTooShort)
	}

	logger.Info("document extracted",
		"words", words,
		"duration_ms", time.Since(startTime).Milliseconds())
	return text, nil
}

func readPDF(ctx context.Context, path string) (result string, err error) {
	// the pdf package panics on some malformed object streams
	defer func() {
		if r := recover(); r != nil {
			result, err = "", fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var text strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		if pageText == "" {
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}

	return text.String(), nil
}
