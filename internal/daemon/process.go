package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/spendmon/spendmon/internal/version"
)

// EnsureRunning returns a healthy client for socketPath, spawning a detached
// daemon process from the current binary when nothing answers.
func EnsureRunning(ctx context.Context, socketPath string) (*Client, error) {
	socketPath = strings.TrimSpace(socketPath)
	if socketPath == "" {
		return nil, fmt.Errorf("daemon socket path is empty")
	}
	client := NewClient(socketPath)

	health, healthErr := WaitForHealthInfo(ctx, client, 1200*time.Millisecond)
	if healthErr == nil && HealthCurrent(health) {
		return client, nil
	}
	if healthErr == nil {
		return nil, fmt.Errorf(
			"spending daemon is out of date (running=%s expected=%s); stop it and rerun",
			HealthVersion(health), strings.TrimSpace(version.Version),
		)
	}

	if err := spawnDaemonProcess(socketPath); err != nil {
		return nil, fmt.Errorf("start spending daemon: %w", err)
	}
	if err := waitAndVerifyDaemon(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func spawnDaemonProcess(socketPath string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve current binary: %w", err)
	}

	cmd := exec.Command(exe, "daemon", "--socket", socketPath)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %s daemon: %w", exe, err)
	}
	return cmd.Process.Release()
}

func waitAndVerifyDaemon(ctx context.Context, client *Client) error {
	if err := WaitForHealth(ctx, client, 10*time.Second); err != nil {
		return err
	}
	health, err := WaitForHealthInfo(ctx, client, 1500*time.Millisecond)
	if err != nil {
		return nil
	}
	if !HealthCurrent(health) {
		return fmt.Errorf(
			"spending daemon is out of date (running=%s expected=%s)",
			HealthVersion(health), strings.TrimSpace(version.Version),
		)
	}
	return nil
}

func HealthVersion(health HealthResponse) string {
	if v := strings.TrimSpace(health.DaemonVersion); v != "" {
		return v
	}
	return "unknown"
}

// HealthCurrent reports whether the running daemon matches this binary.
// Release builds require an exact version match; local snapshots only need
// a compatible API.
func HealthCurrent(health HealthResponse) bool {
	expected := strings.TrimSpace(version.Version)
	if expected == "" || strings.EqualFold(expected, "dev") || !IsReleaseSemver(expected) {
		return HealthAPICompatible(health)
	}
	return strings.TrimSpace(health.DaemonVersion) == expected && HealthAPICompatible(health)
}

func HealthAPICompatible(health HealthResponse) bool {
	apiVersion := strings.TrimSpace(health.APIVersion)
	return apiVersion == "" || apiVersion == APIVersion
}

func IsReleaseSemver(value string) bool {
	v := strings.TrimSpace(value)
	if !semver.IsValid(v) {
		return false
	}
	if semver.Prerelease(v) != "" || semver.Build(v) != "" {
		return false
	}
	return v == semver.Canonical(v)
}

func WaitForHealth(ctx context.Context, client *Client, timeout time.Duration) error {
	_, err := WaitForHealthInfo(ctx, client, timeout)
	return err
}

func WaitForHealthInfo(
	ctx context.Context,
	client *Client,
	timeout time.Duration,
) (HealthResponse, error) {
	if client == nil {
		return HealthResponse{}, fmt.Errorf("daemon client is nil")
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if pingCtx.Err() != nil {
			break
		}
		hc, hcCancel := context.WithTimeout(pingCtx, 700*time.Millisecond)
		health, err := client.Health(hc)
		hcCancel()
		if err == nil {
			return health, nil
		}
		lastErr = err
		time.Sleep(220 * time.Millisecond)
	}
	if pingCtx.Err() != nil && pingCtx.Err() != context.Canceled {
		return HealthResponse{}, pingCtx.Err()
	}
	if lastErr != nil {
		return HealthResponse{}, fmt.Errorf("spending daemon did not become ready at %s: %w", client.SocketPath, lastErr)
	}
	return HealthResponse{}, fmt.Errorf("spending daemon did not become ready at %s", client.SocketPath)
}
