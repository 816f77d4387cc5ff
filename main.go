package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/canvas"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/scope"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/server"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/storage"
)

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	godotenv.Load()

	transport := flag.String("transport", envDefault("MCP_TRANSPORT", "stdio"), "Transport mode: stdio or http")
	port := flag.String("port", envDefault("MCP_PORT", "8081"), "MCP HTTP port (only used with --transport http)")
	canvasPort := flag.String("canvas-port", envDefault("CANVAS_PORT", "3031"), "Port for the canvas WebSocket/HTTP server")
	dataDir := flag.String("data-dir", envDefault("CANVAS_DATA_DIR", "./data"), "Directory for the SQLite database")
	flag.Parse()

	// Open the element store
	store, err := storage.Open(*dataDir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	sc, err := scope.New(store)
	if err != nil {
		log.Fatalf("Failed to initialize scope: %v", err)
	}

	hub := canvas.NewHub()
	bridge := canvas.NewBridge(hub)

	canvasSrv := canvas.NewServer(store, sc, hub, bridge, ":"+*canvasPort)
	go func() {
		if err := canvasSrv.Start(); err != nil {
			log.Fatalf("Canvas server error: %v", err)
		}
	}()

	// Build the MCP server with all tools registered
	srv := server.New(store, sc, hub, bridge)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch *transport {
	case "stdio":
		log.Println("Canvas MCP server starting (stdio)")
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case "http":
		addr := ":" + *port
		handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return srv
		}, nil)
		log.Printf("Canvas MCP server listening on %s", addr)
		httpSrv := &http.Server{Addr: addr, Handler: handler}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	default:
		log.Fatalf("Unknown transport: %s (use stdio or http)", *transport)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := canvasSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Canvas server shutdown: %v", err)
	}
}
