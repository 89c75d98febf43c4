package models

import "time"

// Post is one generated content item with its assigned schedule date.
type Post struct {
	ID               int64     `json:"id"`
	PersonaID        int64     `json:"persona_id"`
	Content          string    `json:"content"`
	ScheduledDate    time.Time `json:"scheduled_date"`
	Clicks           int       `json:"clicks"`
	RegenerateClicks int       `json:"regenerate_clicks"`
	CreatedAt        time.Time `json:"created_at"`
}
