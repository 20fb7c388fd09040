package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Layr-Labs/ethword-go/pkg/config"
	"github.com/Layr-Labs/ethword-go/pkg/hashing"
	"github.com/Layr-Labs/ethword-go/pkg/hub"
	"github.com/Layr-Labs/ethword-go/pkg/logger"
	"github.com/Layr-Labs/ethword-go/pkg/persistence"
	badgerPersistence "github.com/Layr-Labs/ethword-go/pkg/persistence/badger"
	"github.com/Layr-Labs/ethword-go/pkg/persistence/memory"
	redisPersistence "github.com/Layr-Labs/ethword-go/pkg/persistence/redis"
	"github.com/Layr-Labs/ethword-go/pkg/server"
)

func main() {
	defaults := config.DefaultServerConfig()

	app := &cli.App{
		Name:  "payword-server",
		Usage: "Payword micropayment channel hub",
		Description: `A hub hosting unidirectional micropayment channels.

Payers escrow a deposit against a commitment to N words, either the tip of a
hash chain or the root of a Merkle tree over the chain. The recipient redeems
by revealing a word and is paid in proportion to the words it proves.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   defaults.Port,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvPaywordPort},
			},
			&cli.StringFlag{
				Name:    "persistence-type",
				Usage:   fmt.Sprintf("Channel store: %s", config.GetSupportedPersistenceTypesString()),
				Value:   defaults.Persistence.Type.String(),
				EnvVars: []string{config.EnvPaywordPersistenceType},
			},
			&cli.StringFlag{
				Name:    "data-path",
				Usage:   "Badger data directory",
				Value:   defaults.Persistence.DataPath,
				EnvVars: []string{config.EnvPaywordDataPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis host:port",
				EnvVars: []string{config.EnvPaywordRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvPaywordRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvPaywordRedisDB},
			},
			&cli.StringFlag{
				Name:    "redis-key-prefix",
				Usage:   "Prefix for every redis key",
				EnvVars: []string{config.EnvPaywordRedisKeyPrefix},
			},
			&cli.StringFlag{
				Name:    "hash-function",
				Usage:   fmt.Sprintf("Hash for chains, trees and channel ids: %v", hashing.SupportedNames()),
				Value:   defaults.HashFunction,
				EnvVars: []string{config.EnvPaywordHashFunction},
			},
			&cli.StringFlag{
				Name:    "close-policy",
				Usage:   "always-close or partial",
				Value:   defaults.ClosePolicy,
				EnvVars: []string{config.EnvPaywordClosePolicy},
			},
			&cli.Uint64Flag{
				Name:    "max-word-count",
				Usage:   "Largest word count a new channel may commit to",
				Value:   defaults.MaxWordCount,
				EnvVars: []string{config.EnvPaywordMaxWordCount},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Usage:   "Requests per second, 0 disables limiting",
				Value:   defaults.RateLimit,
				EnvVars: []string{config.EnvPaywordRateLimit},
			},
			&cli.IntFlag{
				Name:    "rate-burst",
				Usage:   "Requests allowed in a burst",
				Value:   defaults.RateBurst,
				EnvVars: []string{config.EnvPaywordRateBurst},
			},
			&cli.BoolFlag{
				Name:    "allow-faucet",
				Usage:   "Enable POST /accounts/{address}/fund",
				EnvVars: []string{config.EnvPaywordAllowFaucet},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvPaywordDebug},
			},
		},
		Action: runPaywordServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runPaywordServer(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	cfg := parseServerConfig(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	policy, err := cfg.Policy()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := newPersistence(&cfg.Persistence, l)
	if err != nil {
		return fmt.Errorf("failed to create persistence: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Sugar().Errorw("Failed to close persistence", "error", err)
		}
	}()

	h, err := hub.NewHub(&hub.Config{
		Store:        store,
		HashName:     cfg.HashFunction,
		Policy:       policy,
		MaxWordCount: cfg.MaxWordCount,
		Logger:       l,
	})
	if err != nil {
		return fmt.Errorf("failed to create hub: %w", err)
	}

	srv := server.NewServer(h, &server.Config{
		Port:        cfg.Port,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
		AllowFaucet: cfg.AllowFaucet,
		Logger:      l,
	})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Sugar().Infow("Payword server running",
		"port", cfg.Port,
		"persistence", cfg.Persistence.Type,
		"hash", cfg.HashFunction,
		"policy", policy.String(),
		"faucet", cfg.AllowFaucet,
	)
	l.Sugar().Info("Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	l.Sugar().Infow("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func parseServerConfig(c *cli.Context) *config.ServerConfig {
	return &config.ServerConfig{
		Port: c.Int("port"),
		Persistence: config.PersistenceConfig{
			Type:     config.PersistenceType(c.String("persistence-type")),
			DataPath: c.String("data-path"),
			Redis: config.RedisConfig{
				Address:   c.String("redis-address"),
				Password:  c.String("redis-password"),
				DB:        c.Int("redis-db"),
				KeyPrefix: c.String("redis-key-prefix"),
			},
		},
		HashFunction: c.String("hash-function"),
		ClosePolicy:  c.String("close-policy"),
		MaxWordCount: c.Uint64("max-word-count"),
		RateLimit:    c.Float64("rate-limit"),
		RateBurst:    c.Int("rate-burst"),
		AllowFaucet:  c.Bool("allow-faucet"),
		Debug:        c.Bool("verbose"),
	}
}

func newPersistence(cfg *config.PersistenceConfig, l *zap.Logger) (persistence.IChannelPersistence, error) {
	switch cfg.Type {
	case config.PersistenceTypeMemory:
		return memory.NewMemoryPersistence(), nil
	case config.PersistenceTypeBadger:
		return badgerPersistence.NewBadgerPersistence(cfg.DataPath, l)
	case config.PersistenceTypeRedis:
		return redisPersistence.NewRedisPersistence(&redisPersistence.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, l)
	default:
		return nil, fmt.Errorf("unsupported persistence type %q", cfg.Type)
	}
}
