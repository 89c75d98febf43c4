// Package generate turns a persona into an exact-count, validated,
// date-scheduled set of posts.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"postflow/internal/catalog"
	"postflow/internal/models"
	"postflow/internal/storage"
)

const defaultTimelineDays = 30

// ErrInsufficient reports that the model, including the one supplemental
// backfill call, could not produce the requested number of valid posts.
var ErrInsufficient = errors.New("generation fell short of requested post count")

// Generator is the opaque model capability the pipeline drives.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Pipeline composes the content prompt, parses and validates model output,
// backfills shortfalls, schedules dates and persists the result.
type Pipeline struct {
	gen   Generator
	store *storage.Store
	now   func() time.Time
}

// NewPipeline wires the pipeline to its collaborators.
func NewPipeline(gen Generator, store *storage.Store) *Pipeline {
	return &Pipeline{gen: gen, store: store, now: time.Now}
}

// BuildPersona maps the intake answers into a persona record. The post
// count answer was validated at intake time; the timeline parses leniently.
func BuildPersona(userID int64, answers map[string]string) (*models.Persona, error) {
	count, err := strconv.Atoi(strings.TrimSpace(answers[catalog.KeyPostCount]))
	if err != nil || count <= 0 {
		return nil, fmt.Errorf("invalid post count %q", answers[catalog.KeyPostCount])
	}
	timeline := parseTimelineDays(answers[catalog.KeyTimeline])

	samples := strings.TrimSpace(answers[catalog.KeyWritingSamples])
	return &models.Persona{
		UserID:         userID,
		Profession:     answers[catalog.KeyProfession],
		CurrentWork:    answers[catalog.KeyCurrentWork],
		Goal:           answers[catalog.KeyGoal],
		IndustryTarget: answers[catalog.KeyIndustryTarget],
		TargetType:     answers[catalog.KeyTargetType],
		WritingSamples: samples,
		PostCount:      count,
		Purpose:        answers[catalog.KeyPurpose],
		TimelineDays:   timeline,
	}, nil
}

func parseTimelineDays(answer string) int {
	digits := strings.TrimFunc(strings.TrimSpace(answer), func(r rune) bool {
		return r < '0' || r > '9'
	})
	days, err := strconv.Atoi(digits)
	if err != nil || days <= 0 {
		return defaultTimelineDays
	}
	return days
}

// Run produces exactly persona.PostCount posts or fails explicitly. On
// success the persona is committed first, then the full post set in one
// transaction; nothing is written on failure.
func (p *Pipeline) Run(ctx context.Context, persona *models.Persona) ([]models.Post, error) {
	target := persona.PostCount
	if target <= 0 {
		return nil, fmt.Errorf("invalid target count %d", target)
	}

	raw, err := p.gen.Generate(ctx, batchPrompt(persona, target))
	if err != nil {
		return nil, fmt.Errorf("generate posts: %w", err)
	}
	valid := ValidPosts(ParsePosts(raw))

	if len(valid) < target {
		shortfall := target - len(valid)
		log.Printf("generation shortfall for user %d: have %d of %d, backfilling", persona.UserID, len(valid), target)
		extraRaw, err := p.gen.Generate(ctx, batchPrompt(persona, shortfall))
		if err != nil {
			return nil, fmt.Errorf("backfill posts: %w", err)
		}
		valid = append(valid, ValidPosts(ParsePosts(extraRaw))...)
	}
	if len(valid) < target {
		return nil, fmt.Errorf("%w: %d of %d", ErrInsufficient, len(valid), target)
	}
	valid = valid[:target]

	posts := p.schedule(persona, valid)

	personaID, err := p.store.SavePersona(ctx, persona)
	if err != nil {
		return nil, err
	}
	if err := p.store.SavePosts(ctx, personaID, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// schedule spreads dates evenly across the persona's timeline window
// starting today.
func (p *Pipeline) schedule(persona *models.Persona, contents []string) []models.Post {
	daysBetween := persona.TimelineDays / len(contents)
	if daysBetween < 1 {
		daysBetween = 1
	}
	start := p.now().UTC().Truncate(24 * time.Hour)

	posts := make([]models.Post, len(contents))
	for i, content := range contents {
		posts[i] = models.Post{
			Content:       content,
			ScheduledDate: start.AddDate(0, 0, i*daysBetween),
		}
	}
	return posts
}

func batchPrompt(persona *models.Persona, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a LinkedIn ghostwriter. Write exactly %d LinkedIn posts for this person:\n\n", count)
	fmt.Fprintf(&b, "Profession: %s\n", persona.Profession)
	fmt.Fprintf(&b, "Current work: %s\n", persona.CurrentWork)
	fmt.Fprintf(&b, "Goal: %s\n", persona.Goal)
	fmt.Fprintf(&b, "Target industry: %s\n", persona.IndustryTarget)
	fmt.Fprintf(&b, "Target audience: %s\n", persona.TargetType)
	fmt.Fprintf(&b, "Purpose: %s\n", persona.Purpose)
	if persona.WritingSamples != "" {
		fmt.Fprintf(&b, "\nMatch the voice of these samples:\n%s\n", persona.WritingSamples)
	}
	fmt.Fprintf(&b, "\nRules:\n")
	fmt.Fprintf(&b, "- Each post must be between 200 and 400 characters.\n")
	fmt.Fprintf(&b, "- Each post must end with 2-3 topical hashtags.\n")
	fmt.Fprintf(&b, "- Wrap every post between %s and %s markers.\n", PostStart, PostEnd)
	fmt.Fprintf(&b, "- Output nothing outside the markers.\n")
	return b.String()
}
