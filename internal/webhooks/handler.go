package webhooks

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxBodyBytes caps webhook body reads. Provider events are small; anything
// larger is not a call event.
const maxBodyBytes = 1 << 20

// Handler adapts the dispatcher to the provider's HTTP callback.
//
// Response contract: 200 {"received": true} for anything that parsed, 400 for
// an unparseable body, 401 only under the enforce verification policy.
type Handler struct {
	Dispatcher *Dispatcher
}

func (h Handler) HandleProviderEvent(c *gin.Context) {
	if h.Dispatcher == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook dispatcher not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	err = h.Dispatcher.Handle(c.Request.Context(), body, c.Request.Header)
	switch {
	case errors.Is(err, ErrInvalidPayload):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
	case errors.Is(err, ErrUnverified):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unverified"})
	default:
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
