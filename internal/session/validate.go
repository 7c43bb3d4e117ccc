package session

import (
	"strings"

	"github.com/p-shah256/coverbot/internal/cleaner"
	apperrors "github.com/p-shah256/coverbot/pkg/errors"
)

var clean = cleaner.NewCleaner()

// NormalizeJobDescription trims input and converts pasted HTML to text.
func NormalizeJobDescription(input string) string {
	text := strings.TrimSpace(input)
	if clean.LooksLikeHTML(text) {
		return clean.CleanHTML(text)
	}
	return text
}

// ValidateJobDescription rejects descriptions too short to write a letter for.
func ValidateJobDescription(text string) error {
	if cleaner.WordCount(text) < MinJobDescriptionWords {
		return apperrors.New(apperrors.KindValidation, msgJobTooShort)
	}
	return nil
}
