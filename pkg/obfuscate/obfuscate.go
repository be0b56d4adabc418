// Package obfuscate rewrites event subjects with user-configured regex
// rules before they leave the calendar they were written on. Rules fire
// in one configured direction only, so the untouched side keeps the
// original text.
package obfuscate

import (
	"regexp"

	"calsync/internal/model"
)

// Rule is a single find/replace entry. Find is compiled once at
// construction; a rule that fails to compile is dropped.
type Rule struct {
	Find    string
	Replace string
}

// Engine applies the configured rules for one direction.
type Engine struct {
	direction model.Direction
	rules     []compiledRule
}

type compiledRule struct {
	re      *regexp.Regexp
	replace string
}

// New builds an engine. invalid receives the Find patterns that failed
// to compile so the caller can log them; pass nil to ignore.
func New(direction model.Direction, rules []Rule, invalid func(pattern string, err error)) *Engine {
	e := &Engine{direction: direction}
	for _, r := range rules {
		re, err := regexp.Compile("(?i)" + r.Find)
		if err != nil {
			if invalid != nil {
				invalid(r.Find, err)
			}
			continue
		}
		e.rules = append(e.rules, compiledRule{re: re, replace: r.Replace})
	}
	return e
}

// Apply rewrites subject when the sync direction matches the engine's
// configured direction; otherwise the subject passes through untouched.
func (e *Engine) Apply(subject string, direction model.Direction) string {
	if e == nil || len(e.rules) == 0 || direction != e.direction {
		return subject
	}
	out := subject
	for _, r := range e.rules {
		out = r.re.ReplaceAllString(out, r.replace)
	}
	return out
}
