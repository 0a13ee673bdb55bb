// internal/report/report.go
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/relaymesh/gauntlet-cli/internal/config"
	"github.com/relaymesh/gauntlet-cli/internal/metrics"
)

// Report is the machine-readable record of one run: every phase's full
// statistics plus the configuration that produced them, for offline analysis.
type Report struct {
	RunID     string            `json:"run_id"`
	Timestamp time.Time         `json:"timestamp"`
	Config    config.Config     `json:"config"`
	Phases    []metrics.Summary `json:"phases"`
	Passed    bool              `json:"passed"`
}

// New assembles a report with a fresh run ID.
func New(cfg config.Config, phases []metrics.Summary, passed bool) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Config:    cfg,
		Phases:    phases,
		Passed:    passed,
	}
}

// Write serializes the report as indented JSON at path.
func (r *Report) Write(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Load reads a report previously produced by Write.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}
