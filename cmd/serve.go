package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mabhi256/refwatch/internal/app"
	"github.com/mabhi256/refwatch/internal/demo"
	"github.com/mabhi256/refwatch/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr     string
	serveDemo     bool
	serveInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve watcher state, leak results and metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		a, err := app.Build(cfg, app.Options{Version: version})
		if err != nil {
			return err
		}
		defer a.Close()

		var workload *demo.Workload
		if serveDemo {
			workload = demo.New(a.Watcher)
		}

		srv := server.New(server.Config{
			Watcher:  a.Watcher,
			Store:    a.Store,
			Gatherer: a.Registry,
			Workload: workload,
			Logger:   a.Logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Run(gctx, cfg.Server.Addr)
		})
		g.Go(func() error {
			reportStatus(gctx, a, serveInterval)
			return nil
		})

		fmt.Fprintf(cmd.OutOrStdout(), "🚀 refwatch listening on http://%s\n", cfg.Server.Addr)
		return g.Wait()
	},
}

// reportStatus logs the retained count every interval until ctx ends.
func reportStatus(ctx context.Context, a *app.App, interval time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Logger.Info("watcher status",
				"retained", a.Watcher.RetainedCount(),
				"disabled", a.Watcher.IsDisabled())
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveDemo, "demo", false, "Enable the /demo leak and release endpoints")
	serveCmd.Flags().DurationVar(&serveInterval, "status-interval", time.Minute, "How often to log watcher status (0 disables)")
}
