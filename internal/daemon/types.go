package daemon

import (
	"errors"
	"time"
)

const APIVersion = "v1"

var errDaemonUnavailable = errors.New("spending daemon unavailable")

type Config struct {
	SocketPath      string
	RefreshInterval time.Duration
	Verbose         bool
}

type HealthResponse struct {
	Status        string `json:"status"`
	DaemonVersion string `json:"daemon_version,omitempty"`
	APIVersion    string `json:"api_version,omitempty"`
}

type RefreshResponse struct {
	Requested bool   `json:"requested"`
	Reason    string `json:"reason"`
}
