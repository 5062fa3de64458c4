package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spendmon/spendmon/internal/daemon"
)

func newRefreshCommand() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Ask the running daemon to refresh all providers now",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
			defer cancel()

			client := daemon.NewClient(socketPath)
			resp, err := client.Refresh(ctx, "manual")
			if err != nil {
				if daemon.IsUnavailable(err) {
					return fmt.Errorf("no daemon at %s; start one with: spendmon daemon", socketPath)
				}
				return err
			}
			fmt.Printf("refresh requested (reason=%s)\n", resp.Reason)
			return nil
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", defaultSocketPath(), "unix socket of the daemon")
	return cmd
}
