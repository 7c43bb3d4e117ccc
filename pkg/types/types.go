package types

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	MIMEPDF  = "application/pdf"
	MIMEDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var extensionMIME = map[string]string{
	".pdf":  MIMEPDF,
	".docx": MIMEDocx,
}

// MIMEFromFilename maps a document filename to its MIME type, or "" if unknown.
func MIMEFromFilename(name string) string {
	return extensionMIME[strings.ToLower(filepath.Ext(name))]
}

// =============== chat TYPES ===============
type Choice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size,omitempty"`
}

// =============== api TYPES ===============
type SessionSummary struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	State          string    `json:"state"`
	Revisions      int       `json:"revisions"`
	Remaining      int       `json:"remaining_revisions"`
	HasCoverLetter bool      `json:"has_cover_letter"`
	CreatedAt      time.Time `json:"created_at"`
	LastActive     time.Time `json:"last_active"`
}

var mimeExtension = map[string]string{
	MIMEPDF:  ".pdf",
	MIMEDocx: ".docx",
}

// ExtensionFor returns the file extension used for a document MIME type.
func ExtensionFor(mime string) string {
	return mimeExtension[mime]
}
