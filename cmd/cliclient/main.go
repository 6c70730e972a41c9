// main.go is a headless CLI client for the Mandelbrot explorer.
// It renders a view to full resolution on all CPUs and saves it as a PNG file
// with a sidecar recording the view, so the session can be restored later.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	mandel "github.com/marben/mandel_explorer"
	"github.com/marben/mandel_explorer/config"
	"github.com/marben/mandel_explorer/scheduler"
	"github.com/marben/mandel_explorer/session"
)

// main is the entry point for the CLI client.
// It runs the client logic and logs any fatal errors.
func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

// progress goes to stderr already, so logging starts at warnings
const defaultLogLevel = "warn"

type options struct {
	configPath string
	envFile    string
	out        string
	restore    string
	quiet      bool
}

func newRootCmd() *cobra.Command {
	v := config.New()
	// a bound flag only wins once changed, so its default goes on v
	v.SetDefault("loglevel", defaultLogLevel)
	var opts options

	cmd := &cobra.Command{
		Use:           "cliclient",
		Short:         "Render a Mandelbrot view to a PNG file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			progress := cmd.ErrOrStderr()
			if opts.quiet {
				progress = io.Discard
			}
			return run(ctx, cfg, opts, progress)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file (yaml, toml or json)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with MANDEL_* variables")

	flags := cmd.Flags()
	flags.StringVarP(&opts.out, "out", "o", "mandel.png", "output PNG file, the sidecar is written next to it")
	flags.StringVarP(&opts.restore, "restore", "r", "", "restore the view from an exported sidecar or its PNG")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "no progress output")
	flags.Int("width", 1920, "image width in pixels")
	flags.Int("height", 1080, "image height in pixels")
	flags.Int("workers", 0, "render workers, 0 is one per CPU")
	flags.Int("maxiteration", 1000, "iteration limit")
	flags.Int("colorcount", 500, "palette size")
	flags.Int("colorshift", 0, "palette offset")
	flags.String("landmark", "", "render a landmark: "+fmt.Sprint(mandel.LandmarkNames()))
	flags.String("loglevel", defaultLogLevel, "debug, info, warn or error")

	cmd.AddCommand(newConfigCmd(v, &opts), newLandmarksCmd())
	return cmd
}

func loadConfig(cmd *cobra.Command, v *viper.Viper, opts options) (config.Config, error) {
	if err := config.LoadEnvFile(opts.envFile, cmd.Flags().Changed("env-file")); err != nil {
		return config.Config{}, err
	}
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	return config.FromViper(v, opts.configPath)
}

func newConfigCmd(v *viper.Viper, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v, *opts)
			if err != nil {
				return err
			}
			doc, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(doc)
			return err
		},
	}
}

func newLandmarksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "landmarks",
		Short: "List the named landmark views",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range mandel.LandmarkNames() {
				r, _ := mandel.Landmark(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", name, r.Frame())
			}
		},
	}
}

// run renders the configured view until its final refinement step and exports it.
func run(ctx context.Context, cfg config.Config, opts options, progress io.Writer) error {
	mandel.SetLogger(cfg.Logger(os.Stderr))
	p := message.NewPrinter(language.English)

	req, err := cfg.Request()
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	if opts.restore != "" {
		if req, err = session.Load(opts.restore, cfg.Width, cfg.Height); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
	sc, err := cfg.Scheduler()
	if err != nil {
		return fmt.Errorf("scheduler config: %w", err)
	}

	start := time.Now()
	final, err := render(ctx, sc, req, progress, p)
	if err != nil {
		return err
	}

	// supersampled steps are scaled down to the requested size
	img := final.Scaled(req.Width, req.Height)
	if err := session.Export(opts.out, img, req); err != nil {
		return err
	}

	p.Fprintf(progress, "saved %d×%d px to %s in %v\n", req.Width, req.Height, opts.out, time.Since(start).Round(time.Millisecond))
	return nil
}

// render runs a scheduler until it publishes the final surface of req.
func render(ctx context.Context, sc scheduler.Config, req mandel.Request, progress io.Writer, p *message.Printer) (*mandel.Surface, error) {
	ws, err := scheduler.New(sc, req)
	if err != nil {
		return nil, err
	}
	surfaces, unsubscribe := ws.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- ws.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var last *mandel.Surface
	for {
		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case s, ok := <-surfaces:
			if !ok {
				return nil, fmt.Errorf("scheduler stopped")
			}
			last = s
			size := s.Image.Bounds().Size()
			p.Fprintf(progress, "\rstep %d · pixel group %v · %d×%d px          \n", s.Step, s.PixelGroup, size.X, size.Y)
			if s.Final {
				return s, nil
			}
		case <-ticker.C:
			step := 0
			if last != nil {
				step = last.Step + 1
			}
			p.Fprintf(progress, "\rstep %d · %.1f%% · %d workers busy", step, ws.Completion()*100, ws.Workers())
		}
	}
}
