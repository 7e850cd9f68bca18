// Package server wires Routex's HTTP transport: the fasthttp/router route
// table over internal/api's handlers, the middleware chain (moved here from
// the teacher's internal/proxy/middleware.go so internal/proxy stays pure
// business logic), and the Server's Start/Shutdown lifecycle.
package server

import (
	"context"
	"fmt"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/dctx-team/routex/internal/api"
)

// Server is the fasthttp listener wrapping the admin API and proxy routes.
type Server struct {
	srv *fasthttp.Server
	ln  string
}

// New builds a Server with every route in spec §6's admin and proxy surface
// wired to deps, wrapped in the standard middleware chain.
func New(deps *api.Deps) *Server {
	r := router.New()

	r.GET("/health", deps.Health)
	r.GET("/health/live", deps.Health)
	r.GET("/health/ready", deps.HealthReady)
	r.GET("/health/detailed", deps.HealthDetailed)
	r.GET("/metrics", deps.Metrics.Handler())

	r.GET("/api", deps.Identity)
	r.GET("/api/config", deps.GetConfig)
	r.GET("/api/logging/level", deps.GetLoggingLevel)
	r.GET("/api/database/cache/stats", deps.DatabaseCacheStats)
	r.POST("/api/cache/invalidate", deps.InvalidateCache)

	r.GET("/api/channels", deps.ListChannels)
	r.POST("/api/channels", deps.CreateChannel)
	r.GET("/api/channels/export", deps.ExportChannels)
	r.POST("/api/channels/import", deps.ImportChannels)
	r.POST("/api/channels/test/all", deps.TestAllChannels)
	r.POST("/api/channels/test/enabled", deps.TestEnabledChannels)
	r.GET("/api/channels/{id}", deps.GetChannel)
	r.PUT("/api/channels/{id}", deps.UpdateChannel)
	r.DELETE("/api/channels/{id}", deps.DeleteChannel)
	r.POST("/api/channels/{id}/test", deps.TestChannel)

	r.GET("/api/routing/rules", deps.ListRules)
	r.POST("/api/routing/rules", deps.CreateRule)
	r.POST("/api/routing/rules/reload", deps.ReloadRules)
	r.POST("/api/routing/rules/test", deps.TestRule)
	r.GET("/api/routing/rules/{id}", deps.GetRule)
	r.PUT("/api/routing/rules/{id}", deps.UpdateRule)
	r.DELETE("/api/routing/rules/{id}", deps.DeleteRule)
	r.POST("/api/routing/rules/{id}/enable", deps.EnableRule)
	r.POST("/api/routing/rules/{id}/disable", deps.DisableRule)

	r.GET("/api/tee", deps.ListTeeDestinations)
	r.POST("/api/tee", deps.CreateTeeDestination)
	r.GET("/api/tee/{id}", deps.GetTeeDestination)
	r.PUT("/api/tee/{id}", deps.UpdateTeeDestination)
	r.DELETE("/api/tee/{id}", deps.DeleteTeeDestination)
	r.POST("/api/tee/{id}/enable", deps.EnableTeeDestination)
	r.POST("/api/tee/{id}/disable", deps.DisableTeeDestination)

	r.GET("/api/requests", deps.ListRequests)
	r.GET("/api/analytics", deps.GetAnalytics)

	r.GET("/api/metrics", deps.GetMetrics)
	r.GET("/api/metrics/all", deps.GetMetrics)
	r.POST("/api/metrics/reset", deps.ResetMetrics)

	r.GET("/api/tracing/stats", deps.TracingStats)
	r.GET("/api/tracing/traces/{traceId}", deps.GetTrace)
	r.GET("/api/tracing/spans/{spanId}", deps.GetSpan)
	r.POST("/api/tracing/clear", deps.ClearTraces)

	r.GET("/api/load-balancer/strategy", deps.GetStrategy)
	r.PUT("/api/load-balancer/strategy", deps.SetStrategy)
	r.GET("/api/strategy", deps.GetStrategy)
	r.PUT("/api/strategy", deps.SetStrategy)

	r.GET("/api/i18n/locale", deps.GetLocale)
	r.PUT("/api/i18n/locale", deps.SetLocale)

	r.GET("/api/oauth/sessions", deps.ListOAuthSessions)
	r.POST("/api/oauth/sessions", deps.CreateOAuthSession)
	r.GET("/api/oauth/sessions/{id}", deps.GetOAuthSession)
	r.DELETE("/api/oauth/sessions/{id}", deps.RevokeOAuthSession)
	r.POST("/api/oauth/sessions/{id}/refresh", deps.RefreshOAuthSession)
	r.POST("/api/oauth/sessions/{id}/link", deps.LinkOAuthSession)

	r.GET("/v1/{path:*}", deps.ProxyRequest)
	r.POST("/v1/{path:*}", deps.ProxyRequest)
	r.PUT("/v1/{path:*}", deps.ProxyRequest)
	r.DELETE("/v1/{path:*}", deps.ProxyRequest)
	r.PATCH("/v1/{path:*}", deps.ProxyRequest)

	handler := applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		securityHeaders,
		corsHandler(deps.Config.CORSOrigins),
		rateLimited(deps),
		adminAuth(deps),
	)

	return &Server{srv: &fasthttp.Server{Handler: handler, Name: "routex"}}
}

// Start listens and serves, blocking until the listener stops or errors.
func (s *Server) Start(addr string) error {
	s.ln = addr
	if err := s.srv.ListenAndServe(addr); err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	return nil
}

// Shutdown gracefully stops the listener, letting in-flight requests finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}
