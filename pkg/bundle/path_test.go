package bundle

import (
	"strings"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		`a\b\c`:   "a/b/c",
		"a//b":    "a/b",
		"a///b":   "a/b",
		"~/x":     "~/x",
		"":        "",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizePathIdempotent(t *testing.T) {
	inputs := []string{`a\\b//c`, "~/x//y", "/a/b/c", ""}
	for _, in := range inputs {
		once := normalizePath(in)
		twice := normalizePath(once)
		if once != twice {
			t.Errorf("normalizePath not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestSplitPath(t *testing.T) {
	t.Run("nested", func(t *testing.T) {
		parent, leaf := splitPath("~/s/file.txt")
		if parent != "~/s" || leaf != "file.txt" {
			t.Fatalf("got (%q, %q)", parent, leaf)
		}
	})
	t.Run("no slash", func(t *testing.T) {
		parent, leaf := splitPath("file.txt")
		if parent != "file.txt" || leaf != "" {
			t.Fatalf("got (%q, %q)", parent, leaf)
		}
	})
}

func TestSanitizeSourceName(t *testing.T) {
	existing := make(map[string]bool)

	t.Run("clean path unchanged", func(t *testing.T) {
		got := sanitizeSourceName("~/a/b.src", existing)
		if got != "~/a/b.src" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("dirty path relocated", func(t *testing.T) {
		got := sanitizeSourceName("~/a b.src", existing)
		if got == "~/a b.src" {
			t.Fatalf("expected relocation, got unchanged path")
		}
		if !strings.Contains(got, "~/.tmp/src/dirty") {
			t.Fatalf("got %q, want a ~/.tmp/src/dirty... path", got)
		}
		for _, c := range got {
			if c == ' ' {
				t.Fatalf("sanitized path still contains a space: %q", got)
			}
		}
	})

	t.Run("collision avoidance increments n", func(t *testing.T) {
		existing := map[string]bool{
			"~/.tmp/src/dirtyX[0]/aXb.src": true,
		}
		got := sanitizeSourceName("~/a b.src", existing)
		if got == "~/.tmp/src/dirtyX[0]/aXb.src" {
			t.Fatalf("expected a distinct path, got collision")
		}
	})

	t.Run("leading tilde preserved", func(t *testing.T) {
		got := sanitizeSourceName("~", existing)
		if got != "~" {
			t.Fatalf("got %q, want ~", got)
		}
	})
}
