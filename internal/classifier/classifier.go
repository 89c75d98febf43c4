// Package classifier assigns the mentor/mentee role label from the
// qualification answers.
package classifier

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"postflow/internal/catalog"
)

// RoleLabel is the two-valued classification output.
type RoleLabel string

const (
	RoleMentor RoleLabel = "mentor"
	RoleMentee RoleLabel = "mentee"
)

const (
	mentorThreshold = 5
	borderlineLow   = 4
	borderlineHigh  = 6
)

// Generator is the model capability the classifier may consult for
// borderline experience levels.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Classifier derives a role label from qualification answers. The numeric
// experience rule always wins outside the borderline band; the model is
// only consulted inside it, constrained to one of the two label tokens.
type Classifier struct {
	gen Generator
}

// New builds a classifier. gen may be nil, in which case borderline cases
// fall back to mentee.
func New(gen Generator) *Classifier {
	return &Classifier{gen: gen}
}

var yearsPattern = regexp.MustCompile(`\d+`)

// ParseYears extracts the experience-years number from a free-text answer.
// Unparseable input counts as zero years.
func ParseYears(answer string) int {
	match := yearsPattern.FindString(answer)
	if match == "" {
		return 0
	}
	years, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return years
}

// Classify returns the role label for the given qualification answers.
func (c *Classifier) Classify(ctx context.Context, summary string, answers map[string]string) RoleLabel {
	years := ParseYears(answers[catalog.KeyExperienceYears])

	if years >= borderlineLow && years <= borderlineHigh {
		if label, ok := c.consultModel(ctx, summary, answers); ok {
			return label
		}
		// Model unavailable or off-script inside the borderline band.
		return RoleMentee
	}
	if years >= mentorThreshold {
		return RoleMentor
	}
	return RoleMentee
}

func (c *Classifier) consultModel(ctx context.Context, summary string, answers map[string]string) (RoleLabel, bool) {
	if c.gen == nil {
		return "", false
	}
	prompt := fmt.Sprintf(
		"Based on this professional profile, decide if this person should be a MENTOR or a MENTEE.\n"+
			"Consider leadership history, achievement framing and career stage.\n\n"+
			"Profile summary:\n%s\n\n"+
			"Achievements: %s\n"+
			"Career goals: %s\n\n"+
			"Respond with only one word: either 'mentor' or 'mentee'.",
		summary, answers["achievements"], answers["career_goals"],
	)
	out, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		log.Printf("classifier model call failed: %v", err)
		return "", false
	}
	switch RoleLabel(strings.ToLower(strings.TrimSpace(out))) {
	case RoleMentor:
		return RoleMentor, true
	case RoleMentee:
		return RoleMentee, true
	default:
		return "", false
	}
}

// Summary flattens the qualification answers into the profile text used by
// transition messages and the borderline model prompt.
func Summary(answers map[string]string) string {
	var b strings.Builder
	for _, q := range catalog.Qualify() {
		if ans, ok := answers[q.Key]; ok {
			fmt.Fprintf(&b, "%s: %s\n", q.Text, ans)
		}
	}
	return b.String()
}
