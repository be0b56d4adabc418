package webhook

import (
	"sync/atomic"

	pkgLog "calsync/pkg/log"
)

// Handler receives calendar push notifications. Notifications carry no
// payload; they only signal that something changed, so the handler
// counts them and the scheduler drains the counter to decide whether an
// early pass is worth running.
type Handler struct {
	channelToken string
	pending      atomic.Int64
	l            pkgLog.Logger
}

func NewHandler(channelToken string, l pkgLog.Logger) *Handler {
	return &Handler{
		channelToken: channelToken,
		l:            l,
	}
}

// Pending reports the number of change notifications received since the
// last Reset.
func (h *Handler) Pending() int64 {
	return h.pending.Load()
}

// Reset clears the counter and returns the drained count.
func (h *Handler) Reset() int64 {
	return h.pending.Swap(0)
}
