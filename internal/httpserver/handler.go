package httpserver

import (
	"context"

	"github.com/gin-gonic/gin"
)

func (srv *HTTPServer) mapHandlers() {
	srv.registerMiddlewares()
	srv.registerSystemRoutes()
	srv.registerDomainRoutes()
}

func (srv *HTTPServer) registerMiddlewares() {
	srv.gin.Use(gin.Recovery())
}

func (srv *HTTPServer) registerSystemRoutes() {
	srv.gin.GET("/health", srv.healthCheck)
	srv.gin.GET("/ready", srv.readyCheck)
	srv.gin.GET("/live", srv.liveCheck)
}

// registerDomainRoutes registers all domain routes.
func (srv *HTTPServer) registerDomainRoutes() {
	ctx := context.Background()

	if srv.webhookHandler != nil {
		srv.gin.POST("/webhook/google", srv.webhookHandler.HandleGoogleNotification)
		srv.l.Infof(ctx, "Google push route registered at POST /webhook/google")
	} else {
		srv.l.Infof(ctx, "Webhook handler not configured, skipping push route")
	}
}
