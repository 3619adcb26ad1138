package webhook

import (
	"github.com/google/uuid"
)

// SampleURL is the target of webhooks created by the CLI without an explicit url.
const SampleURL = "http://localhost:9876/echo"

// Webhook represents a registered delivery endpoint.
// Timestamps are unix epoch seconds.
type Webhook struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	FailsCount int64  `json:"fails_count"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// FromURL creates a new webhook for url.
func FromURL(url string, now int64) Webhook {
	return Webhook{
		ID:        uuid.NewString(),
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
