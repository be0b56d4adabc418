package webhook

import (
	"github.com/gin-gonic/gin"

	"calsync/pkg/response"
)

// HandleGoogleNotification processes Google Calendar push notifications.
func (h *Handler) HandleGoogleNotification(c *gin.Context) {
	ctx := c.Request.Context()

	// Verify channel token
	if h.channelToken != "" && c.GetHeader("X-Goog-Channel-Token") != h.channelToken {
		h.l.Errorf(ctx, "webhook: channel token verification failed for channel %s",
			c.GetHeader("X-Goog-Channel-ID"))
		response.Unauthorized(c)
		return
	}

	state := c.GetHeader("X-Goog-Resource-State")
	if state == "sync" {
		// Channel registration handshake, not a change.
		h.l.Infof(ctx, "webhook: channel %s registered", c.GetHeader("X-Goog-Channel-ID"))
		response.OK(c, gin.H{"status": "registered"})
		return
	}

	n := h.pending.Add(1)
	h.l.Debugf(ctx, "webhook: change notification %s (state=%s, pending=%d)",
		c.GetHeader("X-Goog-Message-Number"), state, n)
	response.OK(c, gin.H{"status": "accepted"})
}
