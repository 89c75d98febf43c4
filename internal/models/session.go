package models

import "time"

// Phase identifies which interview stage a session is in.
type Phase string

const (
	PhaseQualify Phase = "qualify"
	PhaseIntake  Phase = "intake"
)

// SessionState is the persisted conversation progress of one user.
// It is loaded in full at the start of every interaction and saved,
// with a version bump, at the end of every state-changing one.
type SessionState struct {
	UserID        int64             `json:"user_id"`
	Phase         Phase             `json:"phase"`
	QuestionIndex int               `json:"question_index"`
	Answers       map[string]string `json:"answers"`
	Completed     bool              `json:"completed"`
	Version       int64             `json:"version"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewSessionState returns the initial state for a user that has never spoken.
func NewSessionState(userID int64) *SessionState {
	return &SessionState{
		UserID:  userID,
		Phase:   PhaseQualify,
		Answers: make(map[string]string),
	}
}
