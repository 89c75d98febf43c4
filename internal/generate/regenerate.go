package generate

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"postflow/internal/models"
)

// Regenerate produces replacement content for a single post. One model
// call, no retry; the caller decides what to do with an error. Dates and
// sibling posts are not touched here. Output shorter than the persisted
// minimum is rejected like any other unusable candidate.
func (p *Pipeline) Regenerate(ctx context.Context, persona *models.Persona, existing *models.Post, instruction string) (string, error) {
	raw, err := p.gen.Generate(ctx, singlePrompt(persona, existing, instruction))
	if err != nil {
		return "", fmt.Errorf("regenerate post: %w", err)
	}
	content := ExtractSingle(raw)
	if n := utf8.RuneCountInString(strings.TrimSpace(content)); n < minPostChars {
		return "", fmt.Errorf("regenerate post: unusable model output (%d chars)", n)
	}
	return content, nil
}

func singlePrompt(persona *models.Persona, existing *models.Post, instruction string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a LinkedIn ghostwriter. Rewrite one LinkedIn post for this person:\n\n")
	fmt.Fprintf(&b, "Profession: %s\n", persona.Profession)
	fmt.Fprintf(&b, "Goal: %s\n", persona.Goal)
	fmt.Fprintf(&b, "Target audience: %s in %s\n", persona.TargetType, persona.IndustryTarget)
	fmt.Fprintf(&b, "Purpose: %s\n", persona.Purpose)
	fmt.Fprintf(&b, "\nCurrent post:\n%s\n", existing.Content)
	if strings.TrimSpace(instruction) != "" {
		fmt.Fprintf(&b, "\nInstruction from the author: %s\n", strings.TrimSpace(instruction))
	}
	fmt.Fprintf(&b, "\nWrite exactly one replacement post between 200 and 400 characters, ")
	fmt.Fprintf(&b, "ending with 2-3 topical hashtags, wrapped between %s and %s markers.\n", PostStart, PostEnd)
	return b.String()
}
