package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spendmon/spendmon/internal/billing"
	"github.com/spendmon/spendmon/internal/config"
	"github.com/spendmon/spendmon/internal/daemon"
	"github.com/spendmon/spendmon/internal/providers/cursor"
)

func newConnectCommand() *cobra.Command {
	var token string
	var baseURL string

	cmd := &cobra.Command{
		Use:   "connect <provider>",
		Short: "Store a validated session token for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runConnect(args[0], token, baseURL)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "session token (discovered from the local browser/app when omitted)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "override the billing API base URL")
	return cmd
}

func runConnect(providerID, token, baseURL string) error {
	if providerID != "cursor" {
		return fmt.Errorf("provider %q does not use session tokens", providerID)
	}

	if token == "" {
		token = os.Getenv("CURSOR_SESSION_TOKEN")
	}
	if token == "" {
		discovered, err := cursor.DiscoverSessionToken()
		if err != nil {
			return fmt.Errorf("no session token found; pass --token or log in to cursor.com first (%v)", err)
		}
		token = discovered
	}

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	client := billing.NewClient(baseURL)
	if err := client.ValidateToken(ctx, token); err != nil {
		if errors.Is(err, billing.ErrAuth) {
			return fmt.Errorf("session token rejected; log in to cursor.com again and retry")
		}
		return fmt.Errorf("validating session token: %w", err)
	}

	if err := config.SaveToken(providerID, token); err != nil {
		return err
	}

	account := providerID
	if info, err := client.FetchUserInfo(ctx, token); err == nil && info.Email != "" {
		account = info.Email
	}
	fmt.Printf("connected %s\n", account)

	notifyDaemonCredentialsChanged()
	return nil
}

func newDisconnectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disconnect <provider>",
		Short: "Remove a provider's stored session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			providerID := args[0]
			if err := config.DeleteToken(providerID); err != nil {
				return err
			}
			fmt.Printf("disconnected %s\n", providerID)
			notifyDaemonCredentialsChanged()
			return nil
		},
	}
	return cmd
}

// notifyDaemonCredentialsChanged nudges a running daemon to pick up the new
// credentials immediately. Best effort: no daemon running is fine, the next
// one reads credentials at startup.
func notifyDaemonCredentialsChanged() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := daemon.NewClient(defaultSocketPath())
	if _, err := client.Refresh(ctx, "credentials-changed"); err != nil && !daemon.IsUnavailable(err) {
		fmt.Fprintf(os.Stderr, "warning: could not notify daemon: %v\n", err)
	}
}
