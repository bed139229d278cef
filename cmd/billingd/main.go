package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/solhotel/billing/internal/frontdesk"
	"github.com/solhotel/billing/internal/gateway/mercadopago"
	"github.com/solhotel/billing/internal/httpserver"
	"github.com/solhotel/billing/internal/store/gormstore"
	"github.com/solhotel/billing/internal/store/pgstore"
	"github.com/solhotel/billing/pkg/billing"
)

const (
	flagDatabaseURL      = "database-url"
	flagListenAddr       = "listen-addr"
	flagAllowedOrigins   = "allowed-origins"
	flagFrontDeskURL     = "frontdesk-url"
	flagMPAccessToken    = "mp-access-token"
	flagMPBaseURL        = "mp-base-url"
	flagMPCurrency       = "mp-currency"
	configKeyDatabaseURL = "database_url"
	configKeyListenAddr  = "listen_addr"
	configKeyOrigins     = "allowed_origins"
	configKeyFrontDesk   = "frontdesk_url"
	configKeyMPToken     = "mp_access_token"
	configKeyMPBaseURL   = "mp_base_url"
	configKeyMPCurrency  = "mp_currency"
	defaultDatabaseURL   = "sqlite:///tmp/billing.db"
	defaultListenAddr    = ":8082"
	defaultFrontDeskURL  = "http://localhost:8081"
)

type runtimeConfig struct {
	DatabaseURL    string
	ListenAddr     string
	AllowedOrigins string
	FrontDeskURL   string
	MPAccessToken  string
	MPBaseURL      string
	MPCurrency     string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "billingd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "billingd",
		Short:         "Hotel billing and payment reconciliation server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL connection string or sqlite path")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-delimited CORS origins")
	cmd.Flags().String(flagFrontDeskURL, defaultFrontDeskURL, "front desk service base URL")
	cmd.Flags().String(flagMPAccessToken, "", "MercadoPago access token (empty disables the gateway)")
	cmd.Flags().String(flagMPBaseURL, "", "MercadoPago API base URL override")
	cmd.Flags().String(flagMPCurrency, "", "MercadoPago currency id")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL: "DATABASE_URL",
		configKeyListenAddr:  "LISTEN_ADDR",
		configKeyOrigins:     "ALLOWED_ORIGINS",
		configKeyFrontDesk:   "FRONTDESK_URL",
		configKeyMPToken:     "MP_ACCESS_TOKEN",
		configKeyMPBaseURL:   "MP_BASE_URL",
		configKeyMPCurrency:  "MP_CURRENCY",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	flags := map[string]string{
		configKeyDatabaseURL: flagDatabaseURL,
		configKeyListenAddr:  flagListenAddr,
		configKeyOrigins:     flagAllowedOrigins,
		configKeyFrontDesk:   flagFrontDeskURL,
		configKeyMPToken:     flagMPAccessToken,
		configKeyMPBaseURL:   flagMPBaseURL,
		configKeyMPCurrency:  flagMPCurrency,
	}
	for key, flag := range flags {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.AllowedOrigins = viper.GetString(configKeyOrigins)
	cfg.FrontDeskURL = viper.GetString(configKeyFrontDesk)
	if cfg.FrontDeskURL == "" {
		cfg.FrontDeskURL = defaultFrontDeskURL
	}
	cfg.MPAccessToken = viper.GetString(configKeyMPToken)
	cfg.MPBaseURL = viper.GetString(configKeyMPBaseURL)
	cfg.MPCurrency = viper.GetString(configKeyMPCurrency)
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, cleanup, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	frontDeskClient, err := frontdesk.New(frontdesk.Config{BaseURL: cfg.FrontDeskURL})
	if err != nil {
		return fmt.Errorf("front desk client init: %w", err)
	}
	gateway := mercadopago.New(mercadopago.Config{
		AccessToken: cfg.MPAccessToken,
		BaseURL:     cfg.MPBaseURL,
		CurrencyID:  cfg.MPCurrency,
	})
	if !gateway.IsConfigured() {
		logger.Warn("payment gateway disabled, no access token configured")
	}

	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := billing.NewService(store, frontDeskClient, gateway, clock,
		billing.WithOperationLogger(&zapOperationLogger{logger: logger}))
	if err != nil {
		return fmt.Errorf("billing service init: %w", err)
	}

	serverCfg := httpserver.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: httpserver.ParseAllowedOrigins(cfg.AllowedOrigins),
	}
	return httpserver.Run(ctx, serverCfg, service, logger)
}

type zapOperationLogger struct {
	logger *zap.Logger
}

func (adapter *zapOperationLogger) LogOperation(_ context.Context, entry billing.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.InvoiceID.IsZero() {
		fields = append(fields, zap.String("invoice_id", entry.InvoiceID.String()))
	}
	if entry.PaymentID.String() != "" {
		fields = append(fields, zap.String("payment_id", entry.PaymentID.String()))
	}
	if entry.ClientID.String() != "" {
		fields = append(fields, zap.String("client_id", entry.ClientID.String()))
	}
	if entry.ReservationID.String() != "" {
		fields = append(fields, zap.String("reservation_id", entry.ReservationID.String()))
	}
	if entry.ExternalID != "" {
		fields = append(fields, zap.String("external_payment_id", entry.ExternalID))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount_cents", entry.Amount.Int64()))
	}
	if entry.Error != nil {
		adapter.logger.Warn("billing operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	adapter.logger.Info("billing operation", fields...)
}

// openStore picks the storage backend from the connection string: postgres
// URLs run on the native pgx store against an externally managed schema,
// anything else is treated as sqlite and auto-migrated.
func openStore(ctx context.Context, dsn string) (billing.Store, func(), error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	switch driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pgstore.New(pool), pool.Close, nil
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
		if err != nil {
			return nil, nil, err
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("auto migrate: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() { _ = sqlDB.Close() }
		return gormstore.New(db.WithContext(ctx)), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "billing.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
