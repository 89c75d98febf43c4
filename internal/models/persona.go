package models

import "time"

// Persona is the structured profile derived from the intake answers.
// It is created once per completed intake run and never mutated afterwards.
type Persona struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	Profession     string    `json:"profession"`
	CurrentWork    string    `json:"current_work"`
	Goal           string    `json:"goal"`
	IndustryTarget string    `json:"industry_target"`
	TargetType     string    `json:"target_type"`
	WritingSamples string    `json:"writing_samples"`
	PostCount      int       `json:"post_count"`
	Purpose        string    `json:"purpose"`
	TimelineDays   int       `json:"timeline_days"`
	CreatedAt      time.Time `json:"created_at"`
}
