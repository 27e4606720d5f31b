package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"wallet-ticket-service/internal/config"
	"wallet-ticket-service/internal/store"
)

var (
	cfgFile string
	cfg     *config.Config
	st      store.Store
)

var rootCmd = &cobra.Command{
	Use:   "wallet-ticket-service",
	Short: "Event ticket wallet service",
	Long:  `Issues event tickets as Apple and Google Wallet passes and keeps registered devices up to date.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		if cfgFile != "" {
			cfg, err = config.LoadConfig(cfgFile)
		} else {
			cfg, err = config.LoadConfig()
		}
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}

		st, err = store.NewStore(context.Background(), &cfg.Storage)
		if err != nil {
			slog.Error("Failed to initialize storage", "error", err)
			os.Exit(1)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if st != nil {
			st.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./instance/config.yaml)")
}
