package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mabhi256/refwatch/internal/heapdump"
	"github.com/mabhi256/refwatch/utils"
	"github.com/spf13/cobra"
)

var heapJSON bool

var heapCmd = &cobra.Command{
	Use:   "heap",
	Short: "Inspect captured heap dumps",
}

var heapInspectCmd = &cobra.Command{
	Use:   "inspect [dump-file]",
	Short: "Summarize a Go heap dump or pprof heap profile",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err != nil {
			return fmt.Errorf("heap dump not found: %s", args[0])
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := heapdump.Inspect(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if heapJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}

		fmt.Fprintf(out, "📄 %s\n", summary.Path)
		fmt.Fprintf(out, "   Format:  %s\n", summary.Format)
		fmt.Fprintf(out, "   Size:    %s\n", summary.Size)
		if summary.Format != heapdump.FormatGo {
			return nil
		}
		fmt.Fprintf(out, "   Runtime: %s (%s, %d-byte pointers, %d CPUs)\n",
			summary.GoVersion, summary.Arch, summary.PointerSize, summary.NumCPU)
		fmt.Fprintf(out, "   Types:   %d\n", summary.Types)
		fmt.Fprintf(out, "   Itabs:   %d\n", summary.Itabs)
		fmt.Fprintf(out, "   Objects: %d (%s)\n", summary.Objects, summary.ObjectBytes)
		if !summary.Complete {
			fmt.Fprintln(out, "⚠️  Dump ended before all object records were read")
		}
		return nil
	},
}

var heapListCmd = &cobra.Command{
	Use:   "list",
	Short: "List heap dumps in the configured dump directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir := heapdump.NewDirectory(cfg.HeapDump.Dir, cfg.HeapDump.MaxStored, nil)
		files, err := dir.Files()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(files) == 0 {
			fmt.Fprintf(out, "No heap dumps in %s\n", dir.Path())
			return nil
		}
		fmt.Fprintf(out, "📁 %s\n", dir.Path())
		for _, f := range files {
			size := "?"
			if info, err := os.Stat(f); err == nil {
				size = utils.MemorySize(info.Size()).String()
			}
			fmt.Fprintf(out, "   %-48s %s\n", filepath.Base(f), size)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(heapCmd)

	heapCmd.AddCommand(heapInspectCmd)
	heapCmd.AddCommand(heapListCmd)

	heapInspectCmd.Flags().BoolVar(&heapJSON, "json", false, "Print the summary as JSON")
	heapInspectCmd.ValidArgsFunction = utils.CompleteFilesByExtension([]string{".heapdump", ".pprof"})
}
