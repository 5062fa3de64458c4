// Package notify delivers limit-crossing events raised by the aggregation
// engine. Sinks are fire-and-forget: delivery failures are logged and never
// propagate back into the refresh cycle.
package notify

import (
	"fmt"
	"log"
	"os/exec"
	"runtime"

	"github.com/spendmon/spendmon/internal/currency"
)

// Sink receives threshold events. Amounts arrive in the display currency.
type Sink interface {
	WarningCrossed(total, limit float64, currencyCode string)
	UpperCrossed(total, limit float64, currencyCode string)
}

// Sinks fans events out to every configured sink.
type Sinks []Sink

func (s Sinks) WarningCrossed(total, limit float64, currencyCode string) {
	for _, sink := range s {
		sink.WarningCrossed(total, limit, currencyCode)
	}
}

func (s Sinks) UpperCrossed(total, limit float64, currencyCode string) {
	for _, sink := range s {
		sink.UpperCrossed(total, limit, currencyCode)
	}
}

// LogSink writes events to the process log.
type LogSink struct{}

func (LogSink) WarningCrossed(total, limit float64, currencyCode string) {
	log.Printf("[notify] spending %s crossed warning limit %s",
		currency.Format(total, currencyCode), currency.Format(limit, currencyCode))
}

func (LogSink) UpperCrossed(total, limit float64, currencyCode string) {
	log.Printf("[notify] spending %s crossed upper limit %s",
		currency.Format(total, currencyCode), currency.Format(limit, currencyCode))
}

// DesktopSink posts native notifications: osascript on macOS, notify-send
// on Linux and the BSDs. Platforms without a notifier fall through to the log.
type DesktopSink struct {
	goos string
	run  func(name string, args ...string) error
}

func NewDesktopSink() *DesktopSink {
	return &DesktopSink{
		goos: runtime.GOOS,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

func (d *DesktopSink) WarningCrossed(total, limit float64, currencyCode string) {
	d.post("Spending warning",
		fmt.Sprintf("AI spending reached %s (warning limit %s)",
			currency.Format(total, currencyCode), currency.Format(limit, currencyCode)))
}

func (d *DesktopSink) UpperCrossed(total, limit float64, currencyCode string) {
	d.post("Spending limit exceeded",
		fmt.Sprintf("AI spending reached %s (upper limit %s)",
			currency.Format(total, currencyCode), currency.Format(limit, currencyCode)))
}

func (d *DesktopSink) post(title, body string) {
	name, args, ok := notifyCommand(d.goos, title, body)
	if !ok {
		log.Printf("[notify] %s: %s", title, body)
		return
	}
	if err := d.run(name, args...); err != nil {
		log.Printf("[notify] desktop notification failed: %v", err)
	}
}

// notifyCommand picks the platform notifier invocation.
func notifyCommand(goos, title, body string) (name string, args []string, ok bool) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", body, title)
		return "osascript", []string{"-e", script}, true
	case "linux", "freebsd", "openbsd", "netbsd":
		return "notify-send", []string{title, body}, true
	default:
		return "", nil, false
	}
}
