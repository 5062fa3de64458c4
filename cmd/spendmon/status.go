package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/spendmon/spendmon/internal/config"
	"github.com/spendmon/spendmon/internal/core"
	"github.com/spendmon/spendmon/internal/currency"
	"github.com/spendmon/spendmon/internal/daemon"
)

type statusOptions struct {
	SocketPath string
	JSON       bool
	AutoStart  bool
}

func newStatusCommand() *cobra.Command {
	var opts statusOptions
	var noStart bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show current spending across providers",
		RunE: func(_ *cobra.Command, _ []string) error {
			opts.AutoStart = !noStart
			return runStatus(opts)
		},
	}

	cmd.Flags().StringVar(&opts.SocketPath, "socket", defaultSocketPath(), "unix socket of the daemon")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the raw snapshot as JSON")
	cmd.Flags().BoolVar(&noStart, "no-start", false, "fail instead of starting a daemon when none is running")
	return cmd
}

func runStatus(opts statusOptions) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var client *daemon.Client
	if opts.AutoStart {
		c, err := daemon.EnsureRunning(ctx, opts.SocketPath)
		if err != nil {
			return err
		}
		client = c
	} else {
		client = daemon.NewClient(opts.SocketPath)
	}

	snap, err := client.Snapshot(ctx)
	if err != nil {
		if daemon.IsUnavailable(err) {
			return fmt.Errorf("no daemon at %s; start one with: spendmon daemon", opts.SocketPath)
		}
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	settings, err := config.Load()
	if err != nil {
		settings = config.DefaultSettings()
	}
	printSnapshot(os.Stdout, snap, settings)
	return nil
}

func printSnapshot(w io.Writer, snap core.AggregateSnapshot, settings config.Settings) {
	ids := make([]string, 0, len(snap.Providers))
	for id := range snap.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tSTATUS\tSPENDING\tWINDOW\tUPDATED")
	for _, id := range ids {
		p := snap.Providers[id]

		spending := "-"
		if p.SpendingUSD != nil {
			spending = formatDisplayAmount(*p.SpendingUSD, settings)
		}
		window := "-"
		if p.Usage != nil && p.Usage.WindowTotal > 0 {
			window = fmt.Sprintf("%.0f/%.0f", p.Usage.WindowUsed, p.Usage.WindowTotal)
		}
		updated := "-"
		if !p.UpdatedAt.IsZero() {
			updated = p.UpdatedAt.Local().Format("15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", id, p.Status, spending, window, updated)
	}
	tw.Flush()

	for _, id := range ids {
		if msg := snap.Providers[id].Message; msg != "" {
			fmt.Fprintf(w, "  %s: %s\n", id, msg)
		}
	}

	fmt.Fprintf(w, "\nTotal: %s", formatDisplayAmount(snap.TotalSpendingUSD, settings))
	if settings.WarningLimit > 0 || settings.UpperLimit > 0 {
		fmt.Fprintf(w, " (warning %s, limit %s)",
			currency.Format(settings.WarningLimit, settings.CurrencyCode),
			currency.Format(settings.UpperLimit, settings.CurrencyCode))
	}
	fmt.Fprintln(w)
}

// formatDisplayAmount converts a USD amount into the configured display
// currency, falling back to raw USD when no exchange rate is known.
func formatDisplayAmount(usd float64, settings config.Settings) string {
	display, ok := currency.Convert(usd, "USD", settings.CurrencyCode, currency.Rates(settings.ExchangeRates))
	if !ok {
		return currency.Format(usd, "USD")
	}
	return currency.Format(display, settings.CurrencyCode)
}
