package domain

import (
	"io"
	"time"
)

// Accepted upload MIME types.
const (
	MIMETypePNG  = "image/png"
	MIMETypeJPEG = "image/jpeg"
	MIMETypePDF  = "application/pdf"
)

// AcceptedMIMETypes lists the document types an upload may carry, in display order.
var AcceptedMIMETypes = []string{MIMETypePNG, MIMETypeJPEG, MIMETypePDF}

// Source is a readable binary blob with a declared name and MIME type.
type Source interface {
	Name() string
	MIMEType() string
	Open() (io.ReadCloser, error)
}

// UploadedDocument is the user's file for one processing cycle. It is replaced,
// never mutated, by the next upload.
type UploadedDocument struct {
	Name       string
	MIMEType   string
	Source     Source
	UploadedAt time.Time
}

// NewUploadedDocument captures the declared name and type of src.
func NewUploadedDocument(src Source) *UploadedDocument {
	return &UploadedDocument{
		Name:       src.Name(),
		MIMEType:   src.MIMEType(),
		Source:     src,
		UploadedAt: time.Now(),
	}
}

// EncodedPayload is the base64 form of a document, alive only for the remote call.
type EncodedPayload struct {
	Data     string
	MIMEType string
}

// ProcessedResult holds the two artifacts returned by the remote model.
type ProcessedResult struct {
	StructuredData string `json:"structuredData"`
	VectorDrawing  string `json:"vectorDrawing"`
}

// Complete reports whether both artifacts are present and non-blank.
func (r ProcessedResult) Complete() bool {
	return !isBlank(r.StructuredData) && !isBlank(r.VectorDrawing)
}

// DocumentInfo is informational metadata about an upload.
type DocumentInfo struct {
	SizeBytes int64
	SHA256    string
	PageCount int
	Width     int
	Height    int
}

// SessionStatus governs which view is active.
type SessionStatus string

const (
	StatusIdle       SessionStatus = "idle"
	StatusProcessing SessionStatus = "processing"
	StatusSuccess    SessionStatus = "success"
	StatusError      SessionStatus = "error"
)

func isBlank(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}
