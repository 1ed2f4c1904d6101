package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolsync/internal/chain"
	"poolsync/internal/checkpoint"
	"poolsync/internal/config"
	"poolsync/internal/dex"
	"poolsync/internal/observer"
	"poolsync/internal/pool"
	"poolsync/internal/storage/postgres"
	"poolsync/internal/syncer"
)

func main() {
	root := &cobra.Command{
		Use:          "poolsync",
		Short:        "AMM pool discovery and state sync",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover pools from factory creation events without refreshing state",
		RunE:  runDiscover,
	}
	addSyncFlags(discoverCmd)
	root.AddCommand(discoverCmd)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Discover pools and refresh their on-chain state",
		RunE:  runSync,
	}
	addSyncFlags(syncCmd)
	syncCmd.Flags().Bool("persist", false, "write a checkpoint after a successful run")
	syncCmd.Flags().String("pg-dsn", "", "Postgres DSN for the pool registry (optional)")
	root.AddCommand(syncCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().Int("rate-limit", 0, "weighted requests per second, 0 means unlimited")
	cmd.Flags().Uint64("window-size", 100000, "blocks per log query window")
	cmd.Flags().String("checkpoint-dir", "./data", "checkpoint directory")
	cmd.Flags().String("checkpoint-name", checkpoint.DefaultDestination, "checkpoint destination name")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	cfg, logger, exchanges, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chain.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("query chain id: %w", err)
	}

	engine := syncer.New(syncer.Config{
		RateLimit:  cfg.RateLimit,
		WindowSize: cfg.WindowSize,
	}, client, nil, observer.NewLogging(logger), logger)

	logger.Info("discover start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", chainID.String()),
		zap.Int("exchanges", len(exchanges)),
		zap.Int("rate_limit", cfg.RateLimit),
	)

	pools, err := engine.DiscoverPools(ctx, exchanges)
	if err != nil {
		return err
	}

	logger.Info("discover complete", zap.Int("pools", len(pools)))
	return nil
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, logger, exchanges, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chain.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("query chain id: %w", err)
	}

	engine := syncer.New(syncer.Config{
		RateLimit:      cfg.RateLimit,
		Persist:        cfg.Persist,
		CheckpointName: cfg.CheckpointName,
		WindowSize:     cfg.WindowSize,
	}, client, checkpoint.NewFileSink(cfg.CheckpointDir), observer.NewLogging(logger), logger)

	logger.Info("sync start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", chainID.String()),
		zap.Int("exchanges", len(exchanges)),
		zap.Int("rate_limit", cfg.RateLimit),
		zap.Bool("persist", cfg.Persist),
	)

	pools, err := engine.SyncPools(ctx, exchanges)
	if err != nil {
		return err
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()

		if err := store.UpsertPools(ctx, pools); err != nil {
			return fmt.Errorf("store pools: %w", err)
		}

		height, err := client.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("query registry height: %w", err)
		}
		if err := store.SaveHeight(ctx, postgres.DefaultSyncName, height); err != nil {
			return fmt.Errorf("store sync height: %w", err)
		}
		logger.Info("pool registry updated", zap.Int("pools", len(pools)), zap.Uint64("height", height))
	}

	logger.Info("sync complete", zap.Int("pools", len(pools)))
	return nil
}

func setup(cmd *cobra.Command) (config.Config, *zap.Logger, []dex.Exchange, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	if cfg.RPCURL == "" {
		return config.Config{}, nil, nil, fmt.Errorf("rpc url is required")
	}

	exchanges, err := buildExchanges(cfg.Exchanges)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	if len(exchanges) == 0 {
		return config.Config{}, nil, nil, fmt.Errorf("at least one exchange is required")
	}

	return cfg, logger, exchanges, nil
}

func buildExchanges(configs []config.ExchangeConfig) ([]dex.Exchange, error) {
	exchanges := make([]dex.Exchange, 0, len(configs))
	for _, ec := range configs {
		if !common.IsHexAddress(ec.Factory) {
			return nil, fmt.Errorf("exchange %s: invalid factory address: %s", ec.Name, ec.Factory)
		}
		variant, err := pool.ParseVariant(ec.Variant)
		if err != nil {
			return nil, fmt.Errorf("exchange %s: %w", ec.Name, err)
		}
		ex, err := dex.New(ec.Name, common.HexToAddress(ec.Factory), ec.CreationBlock, variant)
		if err != nil {
			return nil, err
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
