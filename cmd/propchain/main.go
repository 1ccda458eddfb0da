// Command propchain reads and trades listings on the PropChain marketplace
// contract, and can serve the read side over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/propchain/internal/journal"
	"github.com/jmerrifield20/propchain/internal/ledger"
	"github.com/jmerrifield20/propchain/internal/marketplace"
	"github.com/jmerrifield20/propchain/internal/metrics"
	"github.com/jmerrifield20/propchain/internal/notify"
	"github.com/jmerrifield20/propchain/internal/txn"
	"github.com/jmerrifield20/propchain/internal/wallet"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile  string
	simulate bool
	verbose  bool
	format   string

	// serving raises the default log level to Info for long-running commands.
	serving bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "propchain",
	Short: "PropChain marketplace client",
	Long: `propchain is the command-line client for the PropChain real-estate
marketplace contract.

Reads work without a wallet. Mutations sign with the first key in
wallet.private_keys (or the account chosen with wallet.account) and wait for
the transaction to be mined:

  propchain listings
  propchain list --title "Sea View Villa" --address "1 Harbour Road" --description "..." --price 1.5
  propchain buy 3

Use --simulate to run against an in-process ledger instead of an RPC node.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default configs/propchain.yaml or ./propchain.yaml)")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Use an in-memory ledger instead of the RPC node")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "Output format: text or json")

	rootCmd.AddCommand(versionCmd)
}

func loadConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("propchain")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("configs")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("propchain")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("ledger.rpc_url", "https://rpc.sepolia.org")
	viper.SetDefault("ledger.contract_address", ledger.DefaultContractAddress)
	viper.SetDefault("ledger.timeout", "2m")
	viper.SetDefault("wallet.private_keys", []string{})
	viper.SetDefault("wallet.account", "")
	viper.SetDefault("simulate.chain_id", ledger.SupportedNetwork)
	viper.SetDefault("explorer.url", txn.DefaultExplorerURL)
	viper.SetDefault("database.url", "")
	viper.SetDefault("nats.url", "")
	viper.SetDefault("nats.subject_prefix", notify.DefaultSubjectPrefix)
	viper.SetDefault("webhook.url", "")
	viper.SetDefault("webhook.secret", "")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("health.check_interval", "1m")
	viper.SetDefault("health.probe_timeout", "10s")
	viper.SetDefault("health.fail_threshold", 3)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	switch {
	case verbose:
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case serving:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// app holds the wired collaborators for one command invocation.
type app struct {
	svc     *marketplace.Service
	journal journal.Journal
	logger  *zap.Logger
	closers []func()

	// publisher is nil unless nats.url or webhook.url is set.
	publisher notify.Publisher
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

// newApp dials the ledger and wires the wallet, journal and notifier
// configured for this invocation.
func newApp(ctx context.Context) (*app, error) {
	a := &app{logger: newLogger()}

	addr, ok := ledger.ParseAddress(viper.GetString("ledger.contract_address"))
	if !ok {
		return nil, fmt.Errorf("invalid contract address %q", viper.GetString("ledger.contract_address"))
	}

	keys, err := wallet.ParseKeys(viper.GetStringSlice("wallet.private_keys"))
	if err != nil {
		return nil, fmt.Errorf("wallet keys: %w", err)
	}

	var (
		l       ledger.Ledger
		chainID int64
	)
	if simulate {
		l = ledger.NewMemoryLedger(addr, true, a.logger)
		chainID = viper.GetInt64("simulate.chain_id")
		if len(keys) == 0 {
			k, err := crypto.GenerateKey()
			if err != nil {
				return nil, fmt.Errorf("generate simulation key: %w", err)
			}
			keys = append(keys, k)
		}
	} else {
		el, err := ledger.Dial(ctx, viper.GetString("ledger.rpc_url"), addr, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, el.Close)
		id, err := el.Client().ChainID(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("query chain id: %w", err)
		}
		l = el
		chainID = id.Int64()
	}

	provider := wallet.NewKeyProvider(chainID, keys...)
	conn := wallet.New(provider, a.logger)
	a.closers = append(a.closers, conn.Close)
	if len(keys) > 0 {
		if _, err := conn.Connect(ctx); err != nil {
			a.logger.Warn("wallet connect failed (non-fatal)", zap.Error(err))
		}
		if acct := viper.GetString("wallet.account"); acct != "" {
			if err := provider.SelectAccount(common.HexToAddress(acct)); err != nil {
				a.Close()
				return nil, fmt.Errorf("select account %s: %w", acct, err)
			}
		}
	}

	a.svc = marketplace.New(l, conn, a.logger)
	a.svc.Transactions().SetExplorerURL(viper.GetString("explorer.url"))

	if err := a.wireJournal(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.wirePublishers()
	return a, nil
}

// wirePublishers attaches the NATS and webhook notifiers that are configured.
func (a *app) wirePublishers() {
	var pubs notify.Multi
	if url := viper.GetString("nats.url"); url != "" {
		pub, err := notify.NewNATSPublisher(url, a.logger)
		if err != nil {
			a.logger.Warn("NATS unavailable, settlement notifications disabled (non-fatal)", zap.Error(err))
		} else {
			a.closers = append(a.closers, pub.Close)
			pubs = append(pubs, pub)
		}
	}
	if url := viper.GetString("webhook.url"); url != "" {
		pub := notify.NewWebhookPublisher(url, viper.GetString("webhook.secret"), a.logger)
		pub.SetMetricsRecorder(metrics.RecordWebhookDelivery)
		a.closers = append(a.closers, pub.Close)
		pubs = append(pubs, pub)
	}

	switch len(pubs) {
	case 0:
		return
	case 1:
		a.publisher = pubs[0]
	default:
		a.publisher = pubs
	}
	a.svc.Transactions().SetPublisher(a.publisher, viper.GetString("nats.subject_prefix"))
}

// wireJournal uses Postgres when database.url is set and an in-memory
// journal otherwise.
func (a *app) wireJournal(ctx context.Context) error {
	dbURL := viper.GetString("database.url")
	if dbURL == "" {
		a.journal = journal.NewMemory()
		a.svc.Transactions().SetJournal(a.journal)
		return nil
	}

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	a.journal = journal.NewPostgres(db, a.logger)
	a.svc.Transactions().SetJournal(a.journal)
	return nil
}

// commandContext bounds a command by ledger.timeout.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), viper.GetDuration("ledger.timeout"))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the propchain version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("propchain %s\n", version)
	},
}
