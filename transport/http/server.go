// Package http serves MCP over the streamable HTTP transport on echo.
package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/slighter12/usd-mcp-go/config"
	"github.com/slighter12/usd-mcp-go/logger"
	"github.com/slighter12/usd-mcp-go/stagecache"
	"github.com/slighter12/usd-mcp-go/tools"
)

type Server struct {
	toolManager    *tools.Manager
	sessionManager *SessionManager
	stages         *stagecache.Cache
	config         *config.Config
	echo           *echo.Echo
}

func NewServer(cfg *config.Config, toolManager *tools.Manager, stages *stagecache.Cache) *Server {
	return &Server{
		toolManager:    toolManager,
		sessionManager: NewSessionManager(),
		stages:         stages,
		config:         cfg,
		echo:           echo.New(),
	}
}

func (s *Server) Start() error {
	go s.startCleanupGoroutine()
	s.setupEcho()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	logger.Info("Streamable HTTP server starting to listen", "address", addr)
	return s.echo.Start(addr)
}

func (s *Server) setupEcho() {
	s.echo.HideBanner = true
	s.echo.Use(middleware.Logger())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, headerSessionID, headerProtocolVersion, "Last-Event-ID"},
	}))
	RegisterRoutes(s.echo, s)
}

func (s *Server) startCleanupGoroutine() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		s.sessionManager.CleanupSessions(10 * time.Minute)
	}
}

func (s *Server) GetToolManager() *tools.Manager {
	return s.toolManager
}

func (s *Server) GetSessionManager() *SessionManager {
	return s.sessionManager
}

func (s *Server) GetConfig() *config.Config {
	return s.config
}
