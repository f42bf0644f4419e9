package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/M-Creative-ltd/TanteBeauty/internal/logging"
	"github.com/M-Creative-ltd/TanteBeauty/internal/web"
)

// shutdownTimeout bounds how long in-flight requests may take to drain.
const shutdownTimeout = 15 * time.Second

var (
	serveHost       string
	servePort       int
	serveContentDir string
	serveWatch      bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the site and the protected admin",
	Long: `Start the HTTP server for the public site and the content admin.

Requests to the admin surface (/keystatic and /api/keystatic) require a
valid session cookie; everything else is public.

Examples:
  tantebeauty serve                       # Use tantebeauty.yaml if present
  tantebeauty serve --port 3000           # Override the listen port
  tantebeauty serve --content ./content   # Serve a different content tree
  tantebeauty serve --watch               # Reload content on change`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides server.port). Use 0 for the configured port")
	serveCmd.Flags().StringVar(&serveContentDir, "content", "", "Content directory (overrides content.dir)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload content when files change")
}

// applyServeFlags overrides the loaded configuration with explicit flags.
func applyServeFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") && servePort > 0 {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("content") && serveContentDir != "" {
		cfg.Content.Dir = serveContentDir
	}
	if cmd.Flags().Changed("watch") {
		cfg.Content.Watch = serveWatch
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	applyServeFlags(cmd)

	srv, err := web.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr(), err)
	}

	logger := logging.Web()
	logger.Info("Server listening",
		"addr", listener.Addr().String(),
		"environment", cfg.Environment,
		"content_dir", cfg.Content.Dir)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s (Ctrl+C to stop)\n", listener.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		logger.Info("Shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("Shutdown did not complete cleanly", "error", err)
		}
	}()

	// Serve blocks until shutdown.
	if err := srv.Serve(listener); err != nil && !srv.IsShutdown() {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
