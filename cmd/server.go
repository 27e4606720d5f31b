package cmd

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"wallet-ticket-service/internal/apns"
	"wallet-ticket-service/internal/config"
	"wallet-ticket-service/internal/email"
	"wallet-ticket-service/internal/push"
	"wallet-ticket-service/internal/routes"
	"wallet-ticket-service/internal/wallet/apple"
	"wallet-ticket-service/internal/wallet/google"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the wallet web service",
	Run: func(cmd *cobra.Command, args []string) {
		ServerMain(context.Background())
	},
}

// Initialize logger
func initLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
		println("Invalid log level in config, defaulting to INFO")
	}
	handlerOpts := &slog.HandlerOptions{
		Level: level,
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	slog.SetDefault(logger)

	slog.Debug("Logger initialized", "level", level.String())
	return logger
}

func ServerMain(ctx context.Context) {
	if cfg == nil {
		panic("Config not initialized.")
	}
	initLogger(cfg)

	renderer, err := apple.NewRenderer(cfg.AppleWallet)
	if err != nil {
		slog.Error("Failed to initialize pass renderer", "error", err)
		os.Exit(1)
	}

	gateway, err := apns.NewClient(cfg.AppleWallet.APNKeyPath, cfg.AppleWallet.APNKeyID, cfg.AppleWallet.TeamIdentifier, cfg.AppleWallet.APNProduction)
	if err != nil {
		slog.Error("Failed to initialize push gateway", "error", err)
		os.Exit(1)
	}

	gw, err := google.NewClient(ctx, cfg.GoogleWallet)
	if err != nil {
		slog.Error("Failed to initialize Google Wallet client", "error", err)
		os.Exit(1)
	}
	// The ticket class is shared by every object; create it up front so
	// issuance never races its creation.
	if err := gw.EnsureClass(ctx); err != nil {
		slog.Error("Failed to ensure Google Wallet class", "error", err)
		os.Exit(1)
	}

	mailer, err := email.NewClient(cfg.Email)
	if err != nil {
		slog.Error("Failed to initialize email client", "error", err)
		os.Exit(1)
	}

	pushSvc := push.NewService(st, gateway, cfg.AppleWallet.PassTypeIdentifier, time.Duration(cfg.UpstreamTimeout)*time.Second)

	router := routes.NewRouter(routes.Deps{
		Config:   cfg,
		Store:    st,
		Renderer: renderer,
		Google:   gw,
		Email:    mailer,
		Push:     pushSvc,
	})

	slog.Info("Starting wallet web service", "listen", cfg.Listen)
	if err := router.Run(cfg.Listen); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
