package resilience

import (
	"time"
)

// Dead-letter error classes.
const (
	ErrorTypeTransient = "transient"
	ErrorTypePermanent = "permanent"
)

// DLQEntry records an item whose dispatch exhausted its delivery attempts.
type DLQEntry struct {
	ID           string    `json:"id"`
	ItemID       string    `json:"item_id"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"`
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"`
	// Due limits results to entries whose next retry time has passed.
	Due   bool `json:"due,omitempty"`
	Limit int  `json:"limit,omitempty"`
}

// NewDLQEntry builds a dead-letter entry for itemID failing with err.
func NewDLQEntry(itemID string, err error, maxRetries int, now time.Time) DLQEntry {
	return DLQEntry{
		ItemID:       itemID,
		Error:        err.Error(),
		ErrorType:    ClassifyError(err),
		MaxRetries:   maxRetries,
		NextRetryAt:  now.Add(Backoff(0, DefaultRetryConfig())),
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

// CanRetry reports whether the entry is still below its retry limit.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError categorizes an error as transient or permanent.
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ErrorTypeTransient
	}
	return ErrorTypePermanent
}
