package main

import (
	"log"
	"os"

	"github.com/slighter12/usd-mcp-go/config"
	"github.com/slighter12/usd-mcp-go/logger"
	"github.com/slighter12/usd-mcp-go/stagecache"
	"github.com/slighter12/usd-mcp-go/tools"
	httptransport "github.com/slighter12/usd-mcp-go/transport/http"
	"github.com/slighter12/usd-mcp-go/transport/shared"
	"github.com/slighter12/usd-mcp-go/transport/stdio"
)

func main() {
	configPath, err := config.ResolveConfigPath()
	if err != nil {
		log.Fatalf("Failed to resolve config path: %+v", err)
	}
	if err := config.EnsureDefaultConfig(configPath); err != nil {
		log.Fatalf("Failed to create default configuration: %+v", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %+v", err)
	}

	// stdio carries JSON-RPC frames on stdout, so the logger writes to
	// stderr and the configured log file only.
	if err := logger.Init(logger.GetLevelFromString(cfg.Logging.Level), logger.Format(cfg.Logging.Format), cfg.Logging.Path); err != nil {
		log.Fatalf("Failed to initialize logger: %+v", err)
	}
	if cfg.Server.Debug {
		logger.SetLevel(logger.GetLevelFromString("debug"))
	}

	stages, err := stagecache.New(stagecache.Options{
		AllowedRoots: cfg.StageCache.AllowedRoots,
		WatchFiles:   cfg.StageCache.WatchFiles,
	})
	if err != nil {
		logger.Error("Failed to create stage cache", "error", err)
		os.Exit(1)
	}
	defer stages.Close()

	toolManager := tools.NewManager()
	toolManager.RegisterDefaultTools(stages)

	var httpServer *httptransport.Server
	if cfg.HTTPEnabled() {
		httpServer = httptransport.NewServer(cfg, toolManager, stages)
	}

	switch {
	case cfg.StdioEnabled():
		if httpServer != nil {
			go func() {
				if err := httpServer.Start(); err != nil {
					logger.Error("Streamable HTTP server error", "error", err)
				}
			}()
		}
		logger.Info("Starting MCP server in stdio mode")
		stdioServer := stdio.NewStdioServer(toolManager, shared.NewResourceReader(stages))
		if err := stdioServer.Start(); err != nil {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	case httpServer != nil:
		logger.Info("Starting MCP server in Streamable HTTP mode", "port", cfg.Server.Port)
		if err := httpServer.Start(); err != nil {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}
}
