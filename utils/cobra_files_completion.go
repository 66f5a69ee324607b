package utils

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// CompleteFilesByExtension suggests directories and files ending in one of
// extensions. Hidden files and half-written dumps (".pending") are skipped.
func CompleteFilesByExtension(extensions []string) func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		dir, prefix := splitCompletion(toComplete)

		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}

		var suggestions []string
		for _, file := range files {
			name := file.Name()

			if strings.HasPrefix(name, ".") || !strings.HasPrefix(name, prefix) {
				continue
			}

			suggestion := name
			if dir != "." {
				suggestion = filepath.Join(dir, name)
			}

			if file.IsDir() {
				suggestions = append(suggestions, suggestion+"/")
			} else if hasExtension(name, extensions) {
				suggestions = append(suggestions, suggestion)
			}
		}

		slices.Sort(suggestions)
		return suggestions, cobra.ShellCompDirectiveNoFileComp
	}
}

// splitCompletion returns the directory to list and the name prefix to match.
// "dumps/" lists dumps with no prefix; "ref" lists the current directory.
func splitCompletion(toComplete string) (string, string) {
	if !strings.Contains(toComplete, "/") {
		return ".", toComplete
	}
	if strings.HasSuffix(toComplete, "/") {
		return filepath.Clean(toComplete), ""
	}
	return filepath.Dir(toComplete), filepath.Base(toComplete)
}

func hasExtension(filename string, extensions []string) bool {
	if strings.HasSuffix(filename, ".pending") {
		return false
	}
	for _, ext := range extensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}
