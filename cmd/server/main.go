/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the coverage catalog server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Create compat accessors and API handler
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port        HTTP server port (default: 8080)
  -db          SQLite database path (default: catalog.db)
               Use ":memory:" for in-memory database
  -dual-write  Refresh legacy display arrays on every write (default: true)
  -config      Optional migration config JSON for admin-triggered runs

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/catalog.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run with dual-write disabled (post-migration)
  ./server -dual-write=false

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/catalog-engine/api"
	"github.com/warp/catalog-engine/compat"
	"github.com/warp/catalog-engine/config"
	"github.com/warp/catalog-engine/migration"
	"github.com/warp/catalog-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "catalog.db", "SQLite database path")
	dualWrite := flag.Bool("dual-write", true, "refresh legacy display arrays on writes")
	configPath := flag.String("config", "", "migration config JSON for admin-triggered runs")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Migration defaults for the admin endpoints
	var opts migration.Options
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load migration config: %v", err)
		}
		opts.DefaultLimitType = cfg.DefaultLimitType
		opts.DefaultDeductibleType = cfg.DefaultDeductibleType
		opts.Overrides = cfg.Overrides
	}

	// Initialize handler
	accessors := compat.New(store, compat.Config{DualWrite: *dualWrite})
	handler := api.NewHandler(store, accessors, opts, logger)

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
