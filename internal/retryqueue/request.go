package retryqueue

import (
	"time"

	"github.com/google/uuid"
)

// QueuedRequest is a dependency call captured for later replay.
type QueuedRequest struct {
	ID         string            `json:"id"`
	Target     string            `json:"target"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"body,omitempty"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
	Attempts   int               `json:"attempts"`
	LastError  string            `json:"lastError,omitempty"`

	// raw is the stored encoding this request was claimed as.
	raw string
}

// NewRequest captures a call to target. Path includes any query string.
func NewRequest(target, method, path string, headers map[string]string, body []byte) QueuedRequest {
	return QueuedRequest{
		ID:         uuid.NewString(),
		Target:     target,
		Method:     method,
		Path:       path,
		Headers:    headers,
		Body:       body,
		EnqueuedAt: time.Now().UTC(),
	}
}
