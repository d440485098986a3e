package task

import (
	"time"

	"grocery/crawler/internal/domain"
)

// FailedLinkTask records a link that failed after recovery gave up, so a later
// run can try it again
type FailedLinkTask struct {
	URL           string          `json:"url"`
	Text          string          `json:"text,omitempty"`
	LinkType      domain.LinkType `json:"link_type"`
	Priority      int             `json:"priority,omitempty"`
	CategoryCodes []string        `json:"category_codes,omitempty"`
	Depth         int             `json:"depth"`
	ErrorCategory string          `json:"error_category"`
	Error         string          `json:"error"` // Error message from the original failure
	FailedAt      time.Time       `json:"failed_at"`
	SessionID     string          `json:"session_id,omitempty"`
}

func (t *FailedLinkTask) TaskType() string {
	return "FailedLinkTask"
}

func (t *FailedLinkTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}

// NewFailedLinkTask builds the task for a link that failed at depth
func NewFailedLinkTask(link domain.LinkInfo, depth int, category string, err error, sessionID string) *FailedLinkTask {
	t := &FailedLinkTask{
		URL:           link.URL,
		Text:          link.Text,
		LinkType:      link.Type,
		Priority:      link.Priority,
		CategoryCodes: link.CategoryCodes,
		Depth:         depth,
		ErrorCategory: category,
		FailedAt:      time.Now().UTC(),
		SessionID:     sessionID,
	}
	if err != nil {
		t.Error = err.Error()
	}
	return t
}

// Link rebuilds the link the task was created from
func (t *FailedLinkTask) Link() domain.LinkInfo {
	return domain.LinkInfo{
		URL:           t.URL,
		Text:          t.Text,
		Type:          t.LinkType,
		Priority:      t.Priority,
		CategoryCodes: t.CategoryCodes,
		SourceType:    t.LinkType,
	}
}
