package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/spendmon/spendmon/internal/history"
)

func newHistoryCommand() *cobra.Command {
	var dbPath string
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "history <provider>",
		Short: "Show recorded spending history for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runHistory(args[0], dbPath, since)
		},
	}

	cmd.Flags().StringVar(&dbPath, "history-db", defaultHistoryDBPath(), "path of the spending history database")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to list")
	return cmd
}

func runHistory(providerID, dbPath string, since time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := history.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	points, err := store.ProviderHistory(ctx, providerID, time.Now().Add(-since))
	if err != nil {
		return err
	}
	if len(points) == 0 {
		fmt.Printf("no recorded history for %s in the last %s\n", providerID, since)
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCYCLE\tSTATUS\tSPENDING\tTOKENS")
	for _, p := range points {
		spending := "-"
		if p.SpendingUSD != nil {
			spending = fmt.Sprintf("$%.2f", *p.SpendingUSD)
		}
		tokens := "-"
		if p.TokensUsed != nil {
			tokens = fmt.Sprintf("%d", *p.TokensUsed)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			p.RecordedAt.Local().Format("2006-01-02 15:04:05"), p.Cycle, p.Status, spending, tokens)
	}
	return tw.Flush()
}
