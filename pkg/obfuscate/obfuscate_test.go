package obfuscate

import (
	"testing"

	"calsync/internal/model"
)

func TestApply(t *testing.T) {
	rules := []Rule{
		{Find: "secret project", Replace: "project"},
		{Find: `client:\s*\w+`, Replace: "client meeting"},
	}
	eng := New(model.DirectionLeftToRight, rules, nil)

	t.Run("Matching Direction Rewrites", func(t *testing.T) {
		got := eng.Apply("Secret Project kickoff", model.DirectionLeftToRight)
		if got != "project kickoff" {
			t.Errorf("unexpected rewrite: %q", got)
		}
	})

	t.Run("Other Direction Passes Through", func(t *testing.T) {
		got := eng.Apply("Secret Project kickoff", model.DirectionRightToLeft)
		if got != "Secret Project kickoff" {
			t.Errorf("expected untouched subject, got %q", got)
		}
	})

	t.Run("Invalid Pattern Dropped", func(t *testing.T) {
		var bad string
		e := New(model.DirectionLeftToRight, []Rule{{Find: "(unclosed", Replace: "x"}}, func(p string, err error) {
			bad = p
		})
		if bad != "(unclosed" {
			t.Errorf("expected invalid pattern callback, got %q", bad)
		}
		if got := e.Apply("(unclosed text", model.DirectionLeftToRight); got != "(unclosed text" {
			t.Errorf("dropped rule must not rewrite, got %q", got)
		}
	})
}
