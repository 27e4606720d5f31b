package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"wallet-ticket-service/internal/apns"
	"wallet-ticket-service/internal/push"
)

var pushCmd = &cobra.Command{
	Use:   "push <serialNumber>...",
	Short: "Notify registered devices that passes changed",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pushSerials(context.Background(), args)
	},
}

func pushSerials(ctx context.Context, serials []string) {
	gateway, err := apns.NewClient(cfg.AppleWallet.APNKeyPath, cfg.AppleWallet.APNKeyID, cfg.AppleWallet.TeamIdentifier, cfg.AppleWallet.APNProduction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize push gateway: %v\n", err)
		os.Exit(1)
	}

	svc := push.NewService(st, gateway, cfg.AppleWallet.PassTypeIdentifier, time.Duration(cfg.UpstreamTimeout)*time.Second)
	pushed, err := svc.Fanout(ctx, cfg.AppleWallet.PassTypeIdentifier, serials)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Push failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Pushed to %d device(s)\n", pushed)
}

func init() {
	rootCmd.AddCommand(pushCmd)
}
