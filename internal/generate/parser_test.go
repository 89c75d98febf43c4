package generate

import (
	"fmt"
	"strings"
	"testing"
)

func delimited(posts ...string) string {
	var b strings.Builder
	for _, p := range posts {
		fmt.Fprintf(&b, "%s\n%s\n%s\n", PostStart, p, PostEnd)
	}
	return b.String()
}

func TestParsePostsDelimited(t *testing.T) {
	raw := delimited("first post body", "second post body")
	posts := ParsePosts(raw)
	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(posts))
	}
	if posts[0] != "first post body" || posts[1] != "second post body" {
		t.Fatalf("unexpected posts: %#v", posts)
	}
}

func TestParsePostsIgnoresChatterAroundDelimiters(t *testing.T) {
	raw := "Sure! Here are your posts:\n" + delimited("the actual content") + "\nHope you like them!"
	posts := ParsePosts(raw)
	if len(posts) != 1 || posts[0] != "the actual content" {
		t.Fatalf("unexpected posts: %#v", posts)
	}
}

func TestParsePostsParagraphFallback(t *testing.T) {
	raw := "first paragraph post\n\nsecond paragraph post\n\n\nthird one"
	posts := ParsePosts(raw)
	if len(posts) != 3 {
		t.Fatalf("got %d posts, want 3: %#v", len(posts), posts)
	}
	if posts[2] != "third one" {
		t.Fatalf("unexpected last post: %q", posts[2])
	}
}

func TestParsePostsUnterminatedDelimiter(t *testing.T) {
	raw := PostStart + "\ndangling content without an end marker"
	posts := ParsePosts(raw)
	// No complete delimited block: the paragraph fallback takes over.
	if len(posts) == 0 {
		t.Fatalf("expected fallback candidates, got none")
	}
}

func TestValidPostsDropsShortCandidates(t *testing.T) {
	long := strings.Repeat("solid content ", 10)
	valid := ValidPosts([]string{"too short", long, "   \n  ", long})
	if len(valid) != 2 {
		t.Fatalf("got %d valid posts, want 2: %#v", len(valid), valid)
	}
}

func TestExtractSingle(t *testing.T) {
	if got := ExtractSingle(delimited("rewritten post")); got != "rewritten post" {
		t.Fatalf("delimited extract = %q", got)
	}
	if got := ExtractSingle("  plain rewritten text \n"); got != "plain rewritten text" {
		t.Fatalf("raw extract = %q", got)
	}
}
