package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

var installShell string

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install shell completions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !isInPath() {
			printPathInstructions(out)
		}

		shell := installShell
		if shell == "" {
			shell = detectShell()
		}
		target, ok := completionTargetFor(shell)
		if !ok {
			return fmt.Errorf("shell completion not supported for %q (supported: bash, zsh, fish, powershell)", shell)
		}

		if target.exists() {
			fmt.Fprintln(out, "✅ Already configured!")
			return nil
		}

		fmt.Fprintln(out, "📦 Installing completions...")
		if err := target.install(cmd.Root()); err != nil {
			return fmt.Errorf("failed to install completions: %w", err)
		}
		fmt.Fprintf(out, "✅ Done! Wrote %s\n", target.path())
		fmt.Fprintf(out, "🔄 Run this to enable completions now:\n   %s\n", target.activate)
		return nil
	},
}

type completionTarget struct {
	dir      string
	file     string
	generate func(root *cobra.Command, w io.Writer) error
	activate string
}

func (t completionTarget) path() string {
	return filepath.Join(t.dir, t.file)
}

func (t completionTarget) exists() bool {
	_, err := os.Stat(t.path())
	return err == nil
}

func (t completionTarget) install(root *cobra.Command) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(t.path())
	if err != nil {
		return err
	}
	if err := t.generate(root, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func completionTargetFor(shell string) (completionTarget, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return completionTarget{}, false
	}

	switch shell {
	case "bash":
		dir := filepath.Join(home, ".local/share/bash-completion/completions")
		return completionTarget{
			dir:      dir,
			file:     "refwatch",
			generate: (*cobra.Command).GenBashCompletion,
			activate: "source " + filepath.Join(dir, "refwatch"),
		}, true
	case "zsh":
		dir := filepath.Join(home, ".zsh/completions")
		return completionTarget{
			dir:      dir,
			file:     "_refwatch",
			generate: (*cobra.Command).GenZshCompletion,
			activate: fmt.Sprintf("fpath=(%s $fpath) && autoload -U compinit && compinit", dir),
		}, true
	case "fish":
		return completionTarget{
			dir:  filepath.Join(home, ".config/fish/completions"),
			file: "refwatch.fish",
			generate: func(root *cobra.Command, w io.Writer) error {
				return root.GenFishCompletion(w, true)
			},
			activate: "complete --do-complete=refwatch",
		}, true
	case "powershell":
		return completionTarget{
			dir:      home,
			file:     "refwatch_completion.ps1",
			generate: (*cobra.Command).GenPowerShellCompletionWithDesc,
			activate: ". " + filepath.Join(home, "refwatch_completion.ps1"),
		}, true
	default:
		return completionTarget{}, false
	}
}

func detectShell() string {
	if runtime.GOOS == "windows" {
		return "powershell"
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return filepath.Base(shell)
	}
	return "bash"
}

func isInPath() bool {
	execPath, err := os.Executable()
	if err != nil {
		return false
	}
	paths := strings.Split(os.Getenv("PATH"), string(os.PathListSeparator))
	return slices.Contains(paths, filepath.Dir(execPath))
}

func printPathInstructions(out io.Writer) {
	execPath, _ := os.Executable()
	execDir := filepath.Dir(execPath)

	fmt.Fprintf(out, "⚠️  refwatch not in PATH. Binary location: %s\n", execPath)
	if runtime.GOOS == "windows" {
		fmt.Fprintf(out, "Add to PATH: %s\n\n", execDir)
	} else {
		fmt.Fprintf(out, "Add to shell profile: export PATH=\"%s:$PATH\"\n\n", execDir)
	}
}

func init() {
	rootCmd.AddCommand(installCmd)

	installCmd.Flags().StringVar(&installShell, "shell", "", "Shell to install for (default: detected from $SHELL)")
	installCmd.RegisterFlagCompletionFunc("shell", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"bash", "zsh", "fish", "powershell"}, cobra.ShellCompDirectiveNoFileComp
	})
}
