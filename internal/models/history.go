package models

import "time"

// Sender distinguishes the two sides of the conversation ledger.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// HistoryEntry is one appended line of the audit ledger. Entries are
// never mutated or deleted.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Message   string    `json:"message"`
	Sender    Sender    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}
