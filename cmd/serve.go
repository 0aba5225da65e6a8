package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebuddy/facebuddy/internal/agent"
	"github.com/facebuddy/facebuddy/internal/blobstore"
	"github.com/facebuddy/facebuddy/internal/config"
	"github.com/facebuddy/facebuddy/internal/detector"
	"github.com/facebuddy/facebuddy/internal/logger"
	"github.com/facebuddy/facebuddy/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the FaceBuddy API server.
The server registers faces, recognizes the largest known face in a frame and
runs agent requests against it. Without DATABASE_URL the gallery lives in
memory and is lost on restart unless it is published to the blob store.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("no-detector", false, "Accept only precomputed descriptors and detections")
}

// applyServeFlags lets command line flags win over the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	svc, err := newGalleryService(ctx, cfg, store)
	if err != nil {
		return err
	}

	stopSnapshots, err := svc.StartSnapshots(cfg.Gallery.SnapshotInterval)
	if err != nil {
		return err
	}
	defer stopSnapshots()

	var faceDetector agent.Detector
	if !mustGetBool(cmd, "no-detector") {
		faceDetector = detector.New(cfg.Embedding.URL)
	}

	runner, err := newRunner(ctx, cfg, faceDetector, svc)
	if err != nil {
		return err
	}

	server := web.NewServer(cfg, web.Deps{
		Gallery:  svc,
		Detector: faceDetector,
		Runner:   runner,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		_, published, err := svc.PublishIfChanged(shutdownCtx)
		switch {
		case errors.Is(err, blobstore.ErrDisabled):
		case err != nil:
			logger.Warning("final snapshot failed", logger.Options{Key: "error", Data: err})
		case published:
			logger.Info("final snapshot published")
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", logger.Options{Key: "error", Data: err})
		}
	}()

	fmt.Printf("Starting FaceBuddy API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
