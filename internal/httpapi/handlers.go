package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"ai-call-gateway/internal/assistants"
	"ai-call-gateway/internal/auth"
	"ai-call-gateway/internal/calls"
	"ai-call-gateway/internal/reporting"
	"ai-call-gateway/internal/session"
	"ai-call-gateway/internal/telephony"
	"ai-call-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth       *auth.Manager
	Calls      *calls.Service
	Assistants *assistants.Service
	Reports    *reporting.Service
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

// InitiateCall starts an AI-assisted outbound call for the authenticated owner.
func (h Handlers) InitiateCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	ownerID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}

	var req calls.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	out, err := h.Calls.Initiate(c.Request.Context(), ownerID, req)
	if err != nil {
		h.abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) GetCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	ownerID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}

	s, err := h.Calls.Get(c.Request.Context(), ownerID, c.Param("session_id"))
	if err != nil {
		h.abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h Handlers) ListCalls(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	ownerID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}

	limit := intQuery(c, "limit", 0)
	offset := intQuery(c, "offset", 0)

	out, err := h.Calls.List(c.Request.Context(), ownerID, limit, offset)
	if err != nil {
		h.abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Assistants ---

func (h Handlers) ListAssistants(c *gin.Context) {
	if h.Assistants == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "assistants not configured"})
		return
	}
	items, err := h.Assistants.List(c.Request.Context())
	if err != nil {
		h.abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h Handlers) GetAssistant(c *gin.Context) {
	if h.Assistants == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "assistants not configured"})
		return
	}
	a, err := h.Assistants.Get(c.Request.Context(), c.Param("assistant_id"))
	if err != nil {
		h.abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// --- Reporting ---

// CallsSummary aggregates the owner's sessions over a time range.
// from/to are RFC3339 query params; the default window is the last 24h.
func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	ownerID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}

	now := time.Now().UTC()
	from, ok := timeQuery(c, "from", now.Add(-24*time.Hour))
	if !ok {
		return
	}
	to, ok := timeQuery(c, "to", now)
	if !ok {
		return
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		OwnerID: ownerID,
		Range:   reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- error mapping ---

func (h Handlers) abortCallError(c *gin.Context, err error) {
	var verr *calls.ValidationError
	if errors.As(err, &verr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
		return
	}
	var perr *telephony.ProviderError
	switch {
	case errors.Is(err, calls.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrTooManyCalls):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many concurrent call initiations"})
	case errors.Is(err, session.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, telephony.ErrAssistantNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "assistant not found"})
	case errors.As(err, &perr):
		logger.FromGin(c).Warn("provider rejected request", "status", perr.StatusCode, "detail", perr.Detail)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "call provider rejected the request", "detail": perr.Detail})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// timeQuery parses an RFC3339 query param, aborting 400 on a malformed value.
func timeQuery(c *gin.Context, key string, def time.Time) (time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC3339"})
		return time.Time{}, false
	}
	return t.UTC(), true
}
