package domain

import "time"

// Category is a persisted taxonomy node keyed by its 13-digit URL code
type Category struct {
	ID        int64     `json:"id"`
	URLCode   string    `json:"url_code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
