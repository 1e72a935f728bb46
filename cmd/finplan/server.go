package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/finplan/internal/api"
	"github.com/kalambet/finplan/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP server (foreground)",
	Long: `Run the local HTTP server on 127.0.0.1.

With --mcp, also serve the MCP tools and resources over stdio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return runServer(ctx, a, withMCP)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show finplan status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			showStatus(a)
			return nil
		})
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
}

func runServer(ctx context.Context, a *app.App, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "finplan version %s\n", version)

	addr := fmt.Sprintf("127.0.0.1:%d", a.Config.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(a),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(a, version))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	if !a.Unlocked() {
		printWarning("No verified API key yet: POST /v1/credential or run 'finplan key set'")
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "finplan listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func showStatus(a *app.App) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", a.Config.Server.Port))
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", a.Config.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("API key", "%s", keyStatus(a))
	printStatus("Plan model", "%s", a.Config.Gemini.Model)
	printStatus("Chat model", "%s", a.Config.Gemini.ChatModel)
	printStatus("Search grounding", "%t", a.Config.Gemini.Search)

	if p, err := a.CurrentPlan(); err == nil {
		printStatus("Plan", "%s (generated %s, %d allocations)", p.ID, p.GeneratedAt.Format(time.DateOnly), len(p.Allocations))
	} else {
		printStatus("Plan", "none")
	}
	printStatus("Chat", "%d messages, %s", len(a.Advisor.Messages()), a.Advisor.State())

	printStatus("Data dir", "%s", a.Config.Storage.DataDir)
}
