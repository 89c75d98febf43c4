// Package catalog holds the two fixed interview question sequences.
package catalog

import (
	"fmt"

	"postflow/internal/models"
)

// Question is one immutable interview prompt. Ordinal is 1-based;
// Emoji is decorative only.
type Question struct {
	Key     string
	Ordinal int
	Total   int
	Text    string
	Emoji   string
}

// Format renders the prompt the way it is sent to the user.
func (q Question) Format() string {
	return fmt.Sprintf("%s Question %d of %d: %s", q.Emoji, q.Ordinal, q.Total, q.Text)
}

// Answer keys referenced outside the catalog.
const (
	KeyExperienceYears = "experience_years"
	KeyProfession      = "profession"
	KeyCurrentWork     = "current_work"
	KeyGoal            = "goal"
	KeyIndustryTarget  = "industry_target"
	KeyTargetType      = "target_type"
	KeyWritingSamples  = "writing_samples"
	KeyPostCount       = "post_count"
	KeyPurpose         = "purpose"
	KeyTimeline        = "timeline"
)

var qualify = build([]Question{
	{Key: "role", Text: "Could you tell me about your current professional role?", Emoji: "💼"},
	{Key: KeyExperienceYears, Text: "How many years of professional experience do you have?", Emoji: "📈"},
	{Key: "industries", Text: "What industries have you worked in?", Emoji: "🏭"},
	{Key: "achievements", Text: "What are your key career achievements?", Emoji: "🏆"},
	{Key: "career_goals", Text: "What are your short-term and long-term career goals?", Emoji: "🎯"},
})

var intake = build([]Question{
	{Key: KeyProfession, Text: "What do you do professionally?", Emoji: "👔"},
	{Key: KeyCurrentWork, Text: "Tell me about the work you're focused on right now.", Emoji: "🛠️"},
	{Key: KeyGoal, Text: "What do you want these posts to achieve for you?", Emoji: "🎯"},
	{Key: KeyIndustryTarget, Text: "Which industry is your target audience in?", Emoji: "🏭"},
	{Key: KeyTargetType, Text: "Who exactly do you want to reach? (founders, recruiters, peers...)", Emoji: "👥"},
	{Key: KeyWritingSamples, Text: "Paste one or two posts you've written that you're proud of.", Emoji: "✍️"},
	{Key: KeyPostCount, Text: "How many posts should I create for you?", Emoji: "🔢"},
	{Key: KeyPurpose, Text: "What's the main purpose of these posts? (brand, leads, hiring...)", Emoji: "🚀"},
	{Key: KeyTimeline, Text: "Over how many days should the posts be spread?", Emoji: "📅"},
})

func build(qs []Question) []Question {
	for i := range qs {
		qs[i].Ordinal = i + 1
		qs[i].Total = len(qs)
	}
	return qs
}

// ForPhase returns the active catalog for the given interview phase.
func ForPhase(phase models.Phase) []Question {
	switch phase {
	case models.PhaseQualify:
		return qualify
	case models.PhaseIntake:
		return intake
	default:
		return nil
	}
}

// Qualify returns the phase-1 qualification catalog.
func Qualify() []Question { return qualify }

// Intake returns the phase-2 persona intake catalog.
func Intake() []Question { return intake }
