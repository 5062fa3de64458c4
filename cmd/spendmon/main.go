package main

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if os.Getenv("SPENDMON_DEBUG") != "" {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	root := cobra.Command{
		Use:   "spendmon",
		Short: "Spendmon tracks AI coding tool spending against your configured limits.",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStatus(statusOptions{
				SocketPath: defaultSocketPath(),
				AutoStart:  true,
			})
		},
	}

	root.AddCommand(newDaemonCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newRefreshCommand())
	root.AddCommand(newHistoryCommand())
	root.AddCommand(newConnectCommand())
	root.AddCommand(newDisconnectCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
