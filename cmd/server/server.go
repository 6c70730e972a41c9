package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mandel "github.com/marben/mandel_explorer"
	"github.com/marben/mandel_explorer/config"
	"github.com/marben/mandel_explorer/scheduler"
)

// main is the entry point for the Mandelbrot explorer server.
// Note: All rendering is performed on the server's worker pool; browser viewers only display surfaces and send commands.
func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatalf("run: %+v", err)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var (
		configPath string
		envFile    string
		static     string
	)

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Serve the Mandelbrot explorer to browser viewers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.FromViper(v, configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, static)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "config file (yaml, toml or json)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file with MANDEL_* variables")
	flags.StringVar(&static, "static", "./static", "directory served at /, with index.html and main.wasm")
	flags.String("addr", ":8080", "http listen address")
	flags.Int("width", 1920, "render width in pixels")
	flags.Int("height", 1080, "render height in pixels")
	flags.Int("workers", 0, "render workers, 0 is one per CPU")
	flags.String("landmark", "", "start at a landmark: "+fmt.Sprint(mandel.LandmarkNames()))
	flags.String("loglevel", "info", "debug, info, warn or error")
	return cmd
}

func run(ctx context.Context, cfg config.Config, static string) error {
	logger := cfg.Logger(os.Stderr)
	mandel.SetLogger(logger)

	req, err := cfg.Request()
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	sc, err := cfg.Scheduler()
	if err != nil {
		return fmt.Errorf("scheduler config: %w", err)
	}

	// the work scheduler is shared by all viewers: every viewer sees and steers the same view
	workScheduler, err := scheduler.New(sc, req)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// WEBSOCKET
	websocketListener, httpServer := webServer(ctx, cfg.Addr, static)

	errc := make(chan error, 3)
	go func() {
		errc <- workScheduler.Run(ctx)
	}()

	// httpServer provides index.html, main.wasm along with websocket endpoint
	go func() {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("httpServer: %w", err)
		}
	}()

	go func() {
		errc <- serveViewers(ctx, websocketListener, workScheduler)
	}()

	logger.Info("mb server waiting for websocket connections", "addr", cfg.Addr, "request", req)
	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", "err", serr)
	}
	_ = websocketListener.Close()

	logger.Info("mb server stopped")
	return err
}
