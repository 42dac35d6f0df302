package content

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "is this still available?", "is this still available?"},
		{"script stripped", `hello<script>alert("x")</script>`, "hello"},
		{"link rel rewritten", `<a href="https://example.com">site</a>`, `<a href="https://example.com" rel="nofollow">site</a>`},
		{"event handler stripped", `<b onclick="steal()">bold</b>`, "<b>bold</b>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Sanitize(tc.input); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRenderMarkdown(t *testing.T) {
	html, err := RenderMarkdown("# Fresh apples\n\nPicked *today*.")
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(html, "<h1") || !strings.Contains(html, "<em>today</em>") {
		t.Errorf("unexpected render output: %q", html)
	}

	html, err = RenderMarkdown(`injected <script>alert("x")</script>`)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if strings.Contains(html, "<script") {
		t.Errorf("script survived sanitization: %q", html)
	}
}

func TestValidateMessage(t *testing.T) {
	if err := ValidateMessage("hi"); err != nil {
		t.Errorf("valid message rejected: %v", err)
	}
	if err := ValidateMessage("   \n\t "); err == nil {
		t.Error("whitespace-only message accepted")
	}
	if err := ValidateMessage(""); err == nil {
		t.Error("empty message accepted")
	}
	if err := ValidateMessage(strings.Repeat("a", MaxMessageLength+1)); err == nil {
		t.Error("oversized message accepted")
	}
	if err := ValidateMessage(strings.Repeat("a", MaxMessageLength)); err != nil {
		t.Errorf("message at the limit rejected: %v", err)
	}
}

func TestValidateRating(t *testing.T) {
	for rating := 0; rating <= 5; rating++ {
		if err := ValidateRating(rating); err != nil {
			t.Errorf("rating %d rejected: %v", rating, err)
		}
	}
	if err := ValidateRating(-1); err == nil {
		t.Error("negative rating accepted")
	}
	if err := ValidateRating(6); err == nil {
		t.Error("rating above 5 accepted")
	}
}
