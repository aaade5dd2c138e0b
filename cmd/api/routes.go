package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"ai-call-gateway/internal/assistants"
	"ai-call-gateway/internal/auth"
	"ai-call-gateway/internal/calls"
	"ai-call-gateway/internal/httpapi"
	"ai-call-gateway/internal/reporting"
	"ai-call-gateway/internal/telephony"
	"ai-call-gateway/internal/webhooks"
	"ai-call-gateway/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type appDeps struct {
	auth       *auth.Manager
	calls      *calls.Service
	assistants *assistants.Service
	reports    *reporting.Service
	dispatcher *webhooks.Dispatcher
	db         *sql.DB
	rdb        *redis.Client
	provider   telephony.CallProvider
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d appDeps) {
	// public
	r.GET("/healthz", healthHandler(d))

	// Provider webhooks (public; origin verification is the dispatcher's job).
	wh := webhooks.Handler{Dispatcher: d.dispatcher}
	r.POST("/webhooks/telnyx", wh.HandleProviderEvent)

	h := httpapi.Handlers{
		Auth:       d.auth,
		Calls:      d.calls,
		Assistants: d.assistants,
		Reports:    d.reports,
	}

	v1 := r.Group("/v1")

	// Token issuance is the only unauthenticated v1 route.
	v1.POST("/auth/token", h.Login)

	v1.Use(auth.RequireAccessToken(d.auth))
	{
		v1.POST("/calls", h.InitiateCall)
		v1.GET("/calls", h.ListCalls)
		v1.GET("/calls/:session_id", h.GetCall)

		v1.GET("/assistants", h.ListAssistants)
		v1.GET("/assistants/:assistant_id", h.GetAssistant)

		v1.GET("/reports/calls", h.CallsSummary)
	}
}

// healthHandler reports dependency reachability. Degraded dependencies are
// listed but the endpoint still answers, so orchestrators can tell "process
// up, backend down" from "process down".
func healthHandler(d appDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks := gin.H{}
		healthy := true

		if d.db != nil {
			if err := utils.HealthCheck(ctx, d.db, 2*time.Second); err != nil {
				checks["postgres"] = "unreachable"
				healthy = false
			} else {
				checks["postgres"] = "ok"
			}
		}
		if d.rdb != nil {
			if err := d.rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unreachable"
				healthy = false
			} else {
				checks["redis"] = "ok"
			}
		}
		if d.provider != nil {
			if err := d.provider.HealthCheck(ctx); err != nil {
				checks["provider"] = "unreachable"
				healthy = false
			} else {
				checks["provider"] = "ok"
			}
		}

		status := "ok"
		code := http.StatusOK
		if !healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "checks": checks, "time": time.Now().UTC().Format(time.RFC3339)})
	}
}
