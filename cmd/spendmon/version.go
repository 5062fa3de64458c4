package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spendmon/spendmon/internal/appupdate"
	"github.com/spendmon/spendmon/internal/version"
)

func newVersionCommand() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the spendmon version",
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Println(version.String())
			if !check {
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			result, err := appupdate.Check(ctx, appupdate.CheckOptions{CurrentVersion: version.Version})
			if err != nil {
				return fmt.Errorf("checking for updates: %w", err)
			}
			switch {
			case result.LatestVersion == "":
				fmt.Println("update check skipped for non-release build")
			case result.UpdateAvailable:
				fmt.Printf("update available: %s → %s\n", result.CurrentVersion, result.LatestVersion)
				fmt.Printf("  %s\n", result.UpgradeHint)
			default:
				fmt.Println("up to date")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")
	return cmd
}
