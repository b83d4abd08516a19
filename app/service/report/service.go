package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"envi/app/config"

	"github.com/samber/do"
)

// Result describes a completed export.
type Result struct {
	Status string `json:"status"`
	Path   string `json:"path"`
}

// Service writes advice reports to disk under the configured directory.
type Service struct {
	cfg *config.Config
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		cfg: do.MustInvoke[*config.Config](di),
	}, nil
}

// Export writes the report text, creating parent directories as needed.
// An empty filename gets a timestamped default.
func (s *Service) Export(reportText, filename string) (Result, error) {
	if filename == "" {
		filename = fmt.Sprintf("env_report_%s.md", time.Now().Format("2006-01-02_150405"))
	}

	path := filename
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.cfg.Reports.Dir, filename)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Result{}, fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(reportText), 0644); err != nil {
		return Result{}, fmt.Errorf("failed to write report: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	slog.Info("Exported report", "path", absPath)

	return Result{
		Status: "success",
		Path:   absPath,
	}, nil
}
