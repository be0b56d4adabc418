package sync

import "errors"

var (
	// ErrUserCancelled means the prompter declined to continue the pass.
	ErrUserCancelled = errors.New("pass cancelled by user")

	// ErrProviderUnavailable means a side could not be listed at all.
	ErrProviderUnavailable = errors.New("provider unavailable")
)
