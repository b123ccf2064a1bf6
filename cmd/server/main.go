package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/finqa/workbench/internal/api"
	"github.com/finqa/workbench/internal/chat"
	"github.com/finqa/workbench/internal/config"
	"github.com/finqa/workbench/internal/ragclient"
	"github.com/finqa/workbench/internal/session"
	"github.com/finqa/workbench/internal/storage"
	"github.com/finqa/workbench/internal/upload"
	"github.com/finqa/workbench/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func configPath() (string, error) {
	if p := os.Getenv("WORKBENCH_CONFIG"); p != "" {
		return p, nil
	}
	// Default to a config file next to the executable
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exePath), "workbench.config.xml"), nil
}

func main() {
	cfgPath, err := configPath()
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log.SetLevel(cfg.GetLogLevel())
	log.SetHeader("${time_rfc3339} ${level}")

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Initialize staging storage; bytes from a previous run are never resumed
	fileStore, err := storage.NewLocalStore(cfg.GetStagingDir(), cfg.GetMaxFileSize())
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}
	if n, err := fileStore.Purge(); err != nil {
		log.Warnf("[Storage] Purge failed: %v", err)
	} else if n > 0 {
		log.Infof("[Storage] Removed %d leftover staged files", n)
	}

	client := ragclient.NewClient(cfg.Service.BaseURL, ragclient.Options{
		UploadPath:    cfg.Service.UploadPath,
		ChatPath:      cfg.Service.ChatPath,
		DocumentsPath: cfg.Service.DocumentsPath,
		HealthPath:    cfg.Service.HealthPath,
		FieldName:     cfg.Upload.FieldName,
		Timeout:       cfg.GetServiceTimeout(),
	})

	// Initialize workspace manager
	sessionMgr := session.NewManager(client, fileStore, session.Options{
		MaxWorkspaces: cfg.Session.MaxWorkspaces,
		Upload: upload.Options{
			AcceptedType: cfg.Upload.AcceptedMediaType,
			TypeLabel:    cfg.Upload.TypeLabel,
		},
		Chat: chat.Options{Greeting: cfg.Session.Greeting},
	})

	// Start background workspace cleanup
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(cfg.GetCleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sessionMgr.CleanupIdle(cfg.GetIdleTimeout())
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(cfg.GetLogLevel())

	origins := strings.Split(cfg.Server.AllowOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	api.SetupMiddleware(e, api.MiddlewareOptions{
		EnableCORS:     cfg.Server.EnableCORS,
		AllowOrigins:   origins,
		RequestLogging: cfg.Advanced.EnableRequestLogging,
		BodyLimit:      cfg.Server.BodyLimit,
	})

	// Compression middleware
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/ws") ||
				strings.HasSuffix(path, "/events") ||
				c.Request().Header.Get("Accept") == "text/event-stream"
		},
	}))

	handlers := api.NewHandlers(&api.Dependencies{
		Store:          fileStore,
		Sessions:       sessionMgr,
		Service:        client,
		FieldName:      cfg.Upload.FieldName,
		WSMaxMessageKB: cfg.Advanced.WebSocketMaxMessageSize,
		Version:        Version,
	})
	api.RegisterRoutes(e, handlers)

	// Register embedded frontend if available
	embeddedMode := web.HasEmbeddedFiles()
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			log.Warnf("failed to register static routes: %v", err)
			embeddedMode = false
		}
	}

	// Configure server with settings from config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Print startup banner
	mode := "API only"
	if embeddedMode {
		mode = "Embedded frontend"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Document QA Workbench                           ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", cfgPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Service:   %-46s║\n", cfg.Service.BaseURL)
	fmt.Printf("║  Staging:   %-46s║\n", cfg.GetStagingDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	stopCleanup()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Errorf("Shutdown: %v", err)
	}
	// Waits for in-flight uploads and turns, then releases staged bytes
	sessionMgr.Close()
}
