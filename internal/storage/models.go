// Package storage provides the run audit database for EngiDigitize.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// RunOutcome describes how a processing cycle ended.
type RunOutcome string

const (
	RunOutcomeSuccess   RunOutcome = "success"
	RunOutcomeError     RunOutcome = "error"
	RunOutcomeDiscarded RunOutcome = "discarded"
)

// RunRecord is one processing cycle. It never holds document bytes or results.
type RunRecord struct {
	ID         uuid.UUID  `json:"id"`
	SessionID  string     `json:"sessionId"`
	Generation uint64     `json:"generation"`
	FileName   string     `json:"fileName"`
	MIMEType   string     `json:"mimeType"`
	SizeBytes  int64      `json:"sizeBytes"`
	PageCount  int        `json:"pageCount"`
	SHA256     string     `json:"sha256,omitempty"`
	Outcome    RunOutcome `json:"outcome"`
	ErrorKind  string     `json:"errorKind,omitempty"`
	DurationMs int64      `json:"durationMs"`
	CreatedAt  time.Time  `json:"createdAt"`
}
