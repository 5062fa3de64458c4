package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spendmon/spendmon/internal/core"
)

type Client struct {
	SocketPath string
	http       *http.Client
}

func NewClient(socketPath string) *Client {
	dialer := &net.Dialer{Timeout: 2 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		},
		DisableCompression: true,
		DisableKeepAlives:  true,
	}
	return &Client{
		SocketPath: socketPath,
		http: &http.Client{
			Transport: transport,
			Timeout:   12 * time.Second,
		},
	}
}

func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	if c == nil || strings.TrimSpace(c.SocketPath) == "" {
		return HealthResponse{}, fmt.Errorf("daemon client is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/healthz", nil)
	if err != nil {
		return HealthResponse{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("%w: %v", errDaemonUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return HealthResponse{}, fmt.Errorf("daemon health status: %s", resp.Status)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) == 0 {
		return HealthResponse{Status: "ok"}, nil
	}
	var out HealthResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return HealthResponse{}, fmt.Errorf("decode daemon health response: %w", err)
	}
	if strings.TrimSpace(out.Status) == "" {
		out.Status = "ok"
	}
	return out, nil
}

func (c *Client) Snapshot(ctx context.Context) (core.AggregateSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/snapshot", nil)
	if err != nil {
		return core.AggregateSnapshot{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return core.AggregateSnapshot{}, fmt.Errorf("%w: %v", errDaemonUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return core.AggregateSnapshot{}, fmt.Errorf("daemon snapshot failed: %s", strings.TrimSpace(string(body)))
	}

	var out core.AggregateSnapshot
	if err := json.Unmarshal(body, &out); err != nil {
		return core.AggregateSnapshot{}, fmt.Errorf("decode daemon snapshot response: %w", err)
	}
	if out.Providers == nil {
		out.Providers = map[string]core.ProviderSnapshot{}
	}
	return out, nil
}

func (c *Client) Refresh(ctx context.Context, reason string) (RefreshResponse, error) {
	endpoint := "http://unix/refresh"
	if strings.TrimSpace(reason) != "" {
		endpoint += "?reason=" + url.QueryEscape(strings.TrimSpace(reason))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return RefreshResponse{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return RefreshResponse{}, fmt.Errorf("%w: %v", errDaemonUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return RefreshResponse{}, fmt.Errorf("daemon refresh failed: %s", strings.TrimSpace(string(body)))
	}

	var out RefreshResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return RefreshResponse{}, fmt.Errorf("decode daemon refresh response: %w", err)
	}
	return out, nil
}

// IsUnavailable reports whether err means no daemon is listening, as opposed
// to a daemon that answered with an error.
func IsUnavailable(err error) bool {
	return errors.Is(err, errDaemonUnavailable)
}
