// Package duels parses duel daemon flags and composes its entrypoint.
package duels

import (
	"context"
	"flag"
	"fmt"

	"github.com/laurable26/todogame-duels/internal/duel/app"
	entrypoint "github.com/laurable26/todogame-duels/internal/platform/cmd"
)

// Config holds duel daemon configuration.
type Config struct {
	GRPCAddr     string `env:"TODOGAME_DUELS_GRPC_ADDR"      envDefault:":8090"`
	DuelDBPath   string `env:"TODOGAME_DUELS_DB_PATH"        envDefault:"data/duels.db"`
	LedgerDBPath string `env:"TODOGAME_DUELS_LEDGER_DB_PATH" envDefault:"data/ledger.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "duel daemon gRPC listen address")
	fs.StringVar(&cfg.DuelDBPath, "db-path", cfg.DuelDBPath, "challenge store sqlite path")
	fs.StringVar(&cfg.LedgerDBPath, "ledger-db-path", cfg.LedgerDBPath, "ledger store sqlite path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the duel daemon and serves it until the context ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceDuels, func(ctx context.Context) error {
		if err := app.Run(ctx, app.Config{
			GRPCAddr:     cfg.GRPCAddr,
			DuelDBPath:   cfg.DuelDBPath,
			LedgerDBPath: cfg.LedgerDBPath,
		}); err != nil {
			return fmt.Errorf("serve duels: %w", err)
		}
		return nil
	})
}
