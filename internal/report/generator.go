package report

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mabhi256/refwatch/internal/analysis"
	"github.com/mabhi256/refwatch/utils"
)

// Embed template files at compile time
//
//go:embed templates/report.html
var htmlTemplate string

//go:embed templates/styles.css
var cssContent string

// ReportData is serialized into the page and rendered by its script.
type ReportData struct {
	Leaks       []analysis.Result `json:"leaks"`
	Stats       Stats             `json:"stats"`
	GeneratedAt time.Time         `json:"generatedAt"`
}

type Stats struct {
	TotalLeaks     int    `json:"totalLeaks"`
	FailedAnalyses int    `json:"failedAnalyses"`
	TotalDumpSize  string `json:"totalDumpSize"`
	AverageWatch   string `json:"averageWatch"`
}

func GenerateHTMLReport(results []analysis.Result, outputPath string) (string, error) {
	if results == nil {
		return "", errors.New("invalid report data: results cannot be nil")
	}

	data := &ReportData{
		Leaks:       results,
		Stats:       computeStats(results),
		GeneratedAt: time.Now(),
	}

	// json.Marshal escapes <, > and &, so the data is safe inside <script>.
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report data: %w", err)
	}

	absPath, err := GetOutputPath(outputPath)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(absPath, []byte(renderHTML(string(jsonData))), 0o644); err != nil {
		return "", fmt.Errorf("failed to write HTML file: %w", err)
	}
	return absPath, nil
}

func computeStats(results []analysis.Result) Stats {
	var stats Stats
	var dumpSize utils.MemorySize
	var watch time.Duration

	for _, r := range results {
		stats.TotalLeaks++
		if r.Failed() {
			stats.FailedAnalyses++
		}
		if r.Summary != nil {
			dumpSize += r.Summary.Size
		}
		watch += time.Duration(r.WatchDurationMs) * time.Millisecond
	}

	stats.TotalDumpSize = dumpSize.String()
	stats.AverageWatch = "-"
	if stats.TotalLeaks > 0 {
		stats.AverageWatch = utils.FormatDuration(watch / time.Duration(stats.TotalLeaks))
	}
	return stats
}

// GetOutputPath returns a safe output path, creating directories if needed
func GetOutputPath(path string) (string, error) {
	outputPath := path
	if outputPath == "" {
		outputPath = GetDefaultOutputPath()
	}

	if !strings.HasSuffix(strings.ToLower(outputPath), ".html") {
		outputPath += ".html"
	}

	absPath, err := filepath.Abs(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for %s: %w", outputPath, err)
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return absPath, nil
}

func renderHTML(jsonData string) string {
	content := strings.ReplaceAll(htmlTemplate, "{{CSS_CONTENT}}", cssContent)
	return strings.ReplaceAll(content, "{{JSON_DATA}}", jsonData)
}

func GetDefaultOutputPath() string {
	return fmt.Sprintf("refwatch-report-%s.html", time.Now().Format("20060102_150405"))
}
