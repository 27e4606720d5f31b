package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"
)

// AppleWalletConfig holds everything needed to sign passes and talk to APNs.
type AppleWalletConfig struct {
	TeamIdentifier     string `mapstructure:"team_id"`
	PassTypeIdentifier string `mapstructure:"pass_type_id"`
	OrganizationName   string `mapstructure:"organization_name"`
	Description        string `mapstructure:"description"`

	// Static bearer token devices present as `Authorization: ApplePass <token>`.
	AuthToken string `mapstructure:"auth_token"`

	// Absolute URL the pass advertises as its update web service.
	WebServiceURL string `mapstructure:"web_service_url"`

	TemplateFolder      string `mapstructure:"template_folder"`
	WWDRPath            string `mapstructure:"wwdr_path"`
	SignerCertPath      string `mapstructure:"signer_cert_path"`
	SignerKeyPath       string `mapstructure:"signer_key_path"`
	SignerKeyPassphrase string `mapstructure:"signer_key_passphrase"`

	APNKeyPath    string `mapstructure:"apn_key_path"`
	APNKeyID      string `mapstructure:"apn_key_id"`
	APNProduction bool   `mapstructure:"apn_production"`
}

// GoogleWalletConfig points at the issuer's service account credentials.
type GoogleWalletConfig struct {
	ServiceAccountPath string `mapstructure:"service_account"`
	IssuerID           string `mapstructure:"issuer_id"`
	ClassSuffix        string `mapstructure:"class_suffix"`
}

type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	Subject  string `mapstructure:"subject"`
}

type Config struct {
	LogLevel string `mapstructure:"log_level"`
	Listen   string `mapstructure:"listen"`

	// API key for the internal ticket/booth endpoints (x-api-key header).
	APIKey string `mapstructure:"api_key"`

	// Per-call timeout for store, push gateway and wallet API round-trips,
	// in seconds.
	UpstreamTimeout uint `mapstructure:"upstream_timeout"`

	AppleWallet  AppleWalletConfig  `mapstructure:"apple_wallet"`
	GoogleWallet GoogleWalletConfig `mapstructure:"google_wallet"`
	Email        EmailConfig        `mapstructure:"email"`
	Storage      Storage            `mapstructure:"storage"`
}

// Check if running in Docker container by checking for the presence of /.dockerenv file
func runningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

func getConfigPath() string {
	if runningInDocker() {
		return "/app/instance"
	}
	return "./instance"
}

// LoadConfig reads configuration from an optional config file and the
// environment, environment taking precedence.
func LoadConfig(configFile ...string) (*Config, error) {
	var cfg Config

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(getConfigPath())
	v.AddConfigPath(".")
	v.SetEnvPrefix("")

	if len(configFile) > 0 {
		for _, path := range configFile {
			v.SetConfigFile(path)
		}
	}

	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}

	v.AutomaticEnv()

	// Missing config file is fine, env-only configuration is the common case.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("unable to read config file: %v", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %v", err)
	}

	// Convert relative sqlite path to the instance folder
	if cfg.Storage.SQLite != nil {
		if cfg.Storage.SQLite.Path == ":memory:" {
			// In-memory database, do nothing
		} else if len(cfg.Storage.SQLite.Path) > 0 && !os.IsPathSeparator(cfg.Storage.SQLite.Path[0]) {
			cfg.Storage.SQLite.Path = fmt.Sprintf("%s/%s", getConfigPath(), cfg.Storage.SQLite.Path)
		}
	}

	// These two gate every protected endpoint; refuse to run production without them.
	if cfg.AppleWallet.AuthToken == "" || cfg.APIKey == "" {
		if os.Getenv("GIN_MODE") == "release" {
			panic("APPLE_WALLET_AUTH_TOKEN and API_KEY are required in production")
		}
		slog.Warn("Auth token or API key is not set. Do not use in production.")
	}

	return &cfg, nil
}
