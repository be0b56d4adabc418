package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"calsync/internal/model"
)

// consolePrompter asks on stdin. Used only when confirm_deletes is on;
// unattended deployments run with a nil prompter instead.
type consolePrompter struct {
	in *bufio.Reader
}

func newConsolePrompter() *consolePrompter {
	return &consolePrompter{in: bufio.NewReader(os.Stdin)}
}

func (p *consolePrompter) ConfirmDelete(ctx context.Context, ev *model.Event) bool {
	fmt.Printf("Delete %s? [y/N]: ", ev.Summary())
	return p.answer(false)
}

func (p *consolePrompter) ContinueAfterError(ctx context.Context, err error) bool {
	fmt.Printf("Error: %v\nContinue the pass? [Y/n]: ", err)
	return p.answer(true)
}

func (p *consolePrompter) answer(def bool) bool {
	line, err := p.in.ReadString('\n')
	if err != nil {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}
