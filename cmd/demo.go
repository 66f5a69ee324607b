package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mabhi256/refwatch/internal/analysis"
	"github.com/mabhi256/refwatch/internal/app"
	"github.com/mabhi256/refwatch/internal/demo"
	"github.com/mabhi256/refwatch/internal/tui"
	"github.com/mabhi256/refwatch/utils"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	demoLeaks    int
	demoReleased int
	demoDelay    time.Duration
	demoTimeout  time.Duration
	demoTUI      bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a workload that leaks and releases widgets under the watcher",
	Long: `demo watches a batch of widgets that are released and a batch that stay
cached, then reports every leak the watcher detects.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if demoLeaks < 0 || demoReleased < 0 {
			return fmt.Errorf("--leaks and --released must not be negative")
		}
		if demoDelay < 0 {
			return fmt.Errorf("--delay must not be negative")
		}
		if demoTUI && !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			return fmt.Errorf("--tui needs an interactive terminal")
		}
		return nil
	},
	RunE: runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Watch.InitialDelay = demoDelay

	results := make(chan analysis.Result, max(demoLeaks, 1))
	a, err := app.Build(cfg, app.Options{
		Version: version,
		OnResult: func(r analysis.Result) {
			select {
			case results <- r:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	workload := demo.New(a.Watcher)
	if _, err := workload.Release(demoReleased); err != nil {
		return fmt.Errorf("failed to watch released widgets: %w", err)
	}
	if _, err := workload.Leak(demoLeaks); err != nil {
		return fmt.Errorf("failed to watch leaked widgets: %w", err)
	}

	if demoTUI {
		return tui.StartTUI(tui.Source{
			Watcher:  a.Watcher,
			Store:    a.Store,
			Dumps:    a.Dumps,
			Workload: workload,
		}, cfg.TUI.GetRefreshInterval())
	}

	out := cmd.OutOrStdout()
	if a.Watcher.IsDisabled() {
		fmt.Fprintln(out, "⏸  Leak detection is disabled, nothing to watch")
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, demoTimeout)
	defer cancel()

	fmt.Fprintf(out, "👀 Watching %d released and %d leaked widgets (delay %s)\n",
		demoReleased, demoLeaks, utils.FormatDuration(cfg.Watch.InitialDelay))

	reported := waitForLeaks(ctx, a, workload, results, out)

	retained := a.Watcher.RetainedCount()
	fmt.Fprintf(out, "\n📊 %d leaks reported, %d references still retained\n", reported, retained)
	if reported < demoLeaks {
		fmt.Fprintf(out, "⏱️  Stopped waiting after %s\n", utils.FormatDuration(demoTimeout))
	}
	return nil
}

// waitForLeaks prints results until every widget cached by wl has been
// reported and every released one collected, or ctx ends. wl stays
// reachable until it returns.
func waitForLeaks(ctx context.Context, a *app.App, wl *demo.Workload, results <-chan analysis.Result, out io.Writer) int {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	reported := 0
	for {
		leaked := wl.Leaked()
		if reported >= leaked && a.Watcher.RetainedCount() <= leaked {
			return reported
		}
		select {
		case r := <-results:
			reported++
			printResult(out, r)
		case <-ticker.C:
		case <-ctx.Done():
			return reported
		}
	}
}

func printResult(out io.Writer, r analysis.Result) {
	name := r.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(out, "🔴 Leak: %s [%s]\n", name, r.Key)
	fmt.Fprintf(out, "   Watched %s, GC %s, heap dump %s\n",
		utils.FormatDuration(time.Duration(r.WatchDurationMs)*time.Millisecond),
		utils.FormatDuration(time.Duration(r.GcDurationMs)*time.Millisecond),
		utils.FormatDuration(time.Duration(r.HeapDumpDurationMs)*time.Millisecond))
	fmt.Fprintf(out, "   Dump: %s\n", r.File)
	if r.Failed() {
		fmt.Fprintf(out, "   ⚠️  Analysis failed: %s\n", r.Error)
	} else if r.Summary != nil {
		fmt.Fprintf(out, "   %s %s, %d objects\n", r.Summary.Format, r.Summary.Size, r.Summary.Objects)
	}
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().IntVar(&demoLeaks, "leaks", 1, "Number of widgets to leak")
	demoCmd.Flags().IntVar(&demoReleased, "released", 3, "Number of widgets to watch and release")
	demoCmd.Flags().DurationVar(&demoDelay, "delay", time.Second, "Delay before a watched widget is checked (overrides watch.initial_delay)")
	demoCmd.Flags().DurationVar(&demoTimeout, "timeout", 2*time.Minute, "How long to wait for leaks to be reported")
	demoCmd.Flags().BoolVar(&demoTUI, "tui", false, "Open the interactive dashboard instead of printing results")
}
