package billing

import (
	"bytes"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxAttempts = 3

// backoff returns the delay before the given retry attempt (1-based):
// exponential with up to 50% jitter so concurrent pollers don't stampede
// the API in lockstep.
func backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt-1)) * time.Second
	return base + time.Duration(rand.Int63n(int64(base/2)+1))
}

// parseRetryAfter handles both forms the header is allowed to take:
// delay seconds and an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// isNoTeamBody spots the "no team for this account" failure the API reports
// with inconsistent status codes. It must be checked before the generic 5xx
// branch: retrying it would never succeed.
func isNoTeamBody(status int, body []byte) bool {
	if status != http.StatusNotFound && status != http.StatusInternalServerError {
		return false
	}
	return bytes.Contains(bytes.ToLower(body), []byte("no team"))
}
