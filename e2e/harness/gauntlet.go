package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// GauntletHarness wraps a built gauntlet binary for E2E testing. Tests that
// need it should skip when no binary path was supplied.
type GauntletHarness struct {
	binaryPath string
	workDir    string
}

// NewGauntletHarness creates a harness around the binary at binaryPath.
func NewGauntletHarness(binaryPath string) *GauntletHarness {
	workDir, _ := os.MkdirTemp("", "gauntlet-e2e-*")
	return &GauntletHarness{
		binaryPath: binaryPath,
		workDir:    workDir,
	}
}

// RunCommand executes a gauntlet command and returns its stdout.
func (h *GauntletHarness) RunCommand(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, h.binaryPath, args...)
	cmd.Dir = h.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return "", fmt.Errorf("command failed: %w\nstdout: %s\nstderr: %s",
			err, stdout.String(), stderr.String())
	}

	return stdout.String(), nil
}

// Cleanup removes the harness working directory.
func (h *GauntletHarness) Cleanup() {
	if h.workDir != "" {
		os.RemoveAll(h.workDir)
	}
}
