package sync

import (
	"context"

	"calsync/internal/model"
)

// UseCase defines the business logic interface for the sync domain.
type UseCase interface {
	// RunPass executes one full reconciliation pass: list both sides,
	// match, apply deletions and creations, then diff every confirmed
	// pair. The pass is read-fresh; nothing is cached between passes.
	RunPass(ctx context.Context) (PassResult, error)
}

// Prompter answers the questions a pass cannot decide on its own.
// A nil Prompter means unattended operation: deletions proceed and
// item-level errors do not stop the pass.
type Prompter interface {
	// ConfirmDelete is asked once per deletion candidate. Declining
	// unmanages the item instead: its link metadata is removed so it is
	// never considered again.
	ConfirmDelete(ctx context.Context, ev *model.Event) bool

	// ContinueAfterError is asked after an item-level failure.
	ContinueAfterError(ctx context.Context, err error) bool
}

// MetaPatcher is an optional provider capability: persist only the
// metadata map of an item, leaving its content untouched. Providers
// without it take a full SaveEvent for metadata stamps.
type MetaPatcher interface {
	PatchMeta(ctx context.Context, ev *model.Event) error
}
