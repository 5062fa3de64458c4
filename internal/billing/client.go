// Package billing talks to the remote billing API: an unversioned
// JSON-over-HTTPS service that has silently changed shape before. Every
// call is bearer-authenticated, bounded by a 30s timeout, and wrapped in a
// classify-then-retry policy that backs off on transient failures and
// surfaces auth and schema problems immediately.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://cursor.com/api"
	requestTimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response is kept for
	// diagnostics.
	maxErrorBody = 4096
)

var (
	// ErrAuth marks a rejected credential. Callers treat it as "needs
	// re-login", distinct from "try again later".
	ErrAuth = errors.New("authentication failed")

	// ErrNoTeam marks the account-has-no-team failure shape. Non-retryable.
	ErrNoTeam = errors.New("no team for this account")
)

// Client is the authenticated billing API client. The zero BaseURL targets
// production; tests point it at a local server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	sleep func(time.Duration)
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: requestTimeout},
		sleep:      time.Sleep,
	}
}

// FetchTeams lists the credential's teams. An upstream API change made this
// endpoint return an empty set for individual accounts; a default team is
// synthesized in that case so the rest of the pipeline keeps functioning.
func (c *Client) FetchTeams(ctx context.Context, token string) ([]Team, error) {
	var resp teamsResponse
	if err := c.post(ctx, token, "/dashboard/teams", struct{}{}, &resp); err != nil {
		return nil, fmt.Errorf("fetching teams: %w", err)
	}
	if len(resp.Teams) == 0 {
		log.Printf("[billing] team endpoint returned no teams, synthesizing individual team")
		return []Team{{ID: 0, Name: "Individual"}}, nil
	}
	return resp.Teams, nil
}

func (c *Client) FetchUserInfo(ctx context.Context, token string) (UserInfo, error) {
	var info UserInfo
	if err := c.get(ctx, token, "/auth/me", &info); err != nil {
		return UserInfo{}, fmt.Errorf("fetching user info: %w", err)
	}
	return info, nil
}

// FetchMonthlyInvoice returns the itemized invoice for month/year. teamID
// is optional; nil queries the individual account.
func (c *Client) FetchMonthlyInvoice(ctx context.Context, token string, month, year int, teamID *int) (Invoice, error) {
	req := invoiceRequest{Month: month, Year: year, TeamID: teamID}
	var inv Invoice
	if err := c.post(ctx, token, "/dashboard/get-monthly-invoice", req, &inv); err != nil {
		return Invoice{}, fmt.Errorf("fetching invoice %d/%d: %w", month, year, err)
	}
	return inv, nil
}

func (c *Client) FetchUsageData(ctx context.Context, token string) (UsageData, error) {
	var usage UsageData
	if err := c.get(ctx, token, "/usage", &usage); err != nil {
		return UsageData{}, fmt.Errorf("fetching usage: %w", err)
	}
	return usage, nil
}

// ValidateToken probes the credential without fetching anything else.
// A rejected token reports ErrAuth.
func (c *Client) ValidateToken(ctx context.Context, token string) error {
	var info UserInfo
	if err := c.get(ctx, token, "/auth/me", &info); err != nil {
		return fmt.Errorf("validating token: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, token, path string, result interface{}) error {
	return c.doWithRetry(ctx, token, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, token, path string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return c.doWithRetry(ctx, token, http.MethodPost, path, body, result)
}

// doWithRetry runs one API call under the retry policy: classify first,
// then either surface immediately (auth, no-team, other 4xx, undecodable
// body) or back off and retry (transport errors, 5xx, 429). A 429 with
// Retry-After waits at least the server-supplied duration.
func (c *Client) doWithRetry(ctx context.Context, token, method, path string, body []byte, result interface{}) error {
	var lastErr error
	var retryAfter time.Duration

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := retryAfter
			if delay <= 0 {
				delay = backoff(attempt - 1)
			}
			c.sleep(delay)
		}
		retryAfter = 0
		if err := ctx.Err(); err != nil {
			return err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("calling %s: %w", path, err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			err := json.NewDecoder(resp.Body).Decode(result)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decoding %s response: %w", path, err)
			}
			return nil
		}

		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: HTTP 401 from %s", ErrAuth, path)
		case isNoTeamBody(resp.StatusCode, errBody):
			return fmt.Errorf("%w: HTTP %d from %s", ErrNoTeam, resp.StatusCode, path)
		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			lastErr = fmt.Errorf("rate limited (HTTP 429) on %s", path)
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, path, errBody)
		default:
			return fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, path, errBody)
		}
	}
	return fmt.Errorf("retries exhausted: %w", lastErr)
}
