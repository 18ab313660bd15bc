package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Doorbell API
	s.echo.POST("/scan", s.handleScan)
	s.echo.POST("/respond", s.handleRespond)
	s.echo.POST("/qr-codes", s.handleGenerateQRCode)
	s.echo.GET("/sessions/:session_id", s.handleGetSession)

	// Websocket transports
	s.echo.GET("/ws/notifications/:owner_id", s.handleNotificationSocket)
	s.echo.GET("/ws/video/:video_session_id", s.handleVideoSocket)
}
