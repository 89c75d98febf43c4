package generate

import (
	"strings"
	"unicode/utf8"
)

const (
	// Structural delimiters the model is instructed to wrap each post in.
	PostStart = "===POST_START==="
	PostEnd   = "===POST_END==="

	// Candidates trimmed shorter than this are unusable content.
	minPostChars = 50
)

// ParsePosts splits raw model output into post candidates. Delimited blocks
// are preferred; when the model ignored the delimiter instructions entirely,
// blank-line boundaries are used instead. Output is untrusted either way.
func ParsePosts(raw string) []string {
	var candidates []string
	rest := raw
	for {
		start := strings.Index(rest, PostStart)
		if start < 0 {
			break
		}
		rest = rest[start+len(PostStart):]
		end := strings.Index(rest, PostEnd)
		if end < 0 {
			break
		}
		candidates = append(candidates, strings.TrimSpace(rest[:end]))
		rest = rest[end+len(PostEnd):]
	}
	if len(candidates) > 0 {
		return candidates
	}

	// Fallback: paragraph split.
	for _, block := range strings.Split(raw, "\n\n") {
		block = strings.TrimSpace(block)
		if block != "" {
			candidates = append(candidates, block)
		}
	}
	return candidates
}

// ValidPosts filters candidates down to usable content.
func ValidPosts(candidates []string) []string {
	valid := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if utf8.RuneCountInString(strings.TrimSpace(c)) >= minPostChars {
			valid = append(valid, c)
		}
	}
	return valid
}

// ExtractSingle pulls one post out of a regeneration response, tolerating
// models that skip the delimiters.
func ExtractSingle(raw string) string {
	if posts := ParsePosts(raw); len(posts) > 0 && strings.Contains(raw, PostStart) {
		return posts[0]
	}
	return strings.TrimSpace(raw)
}
