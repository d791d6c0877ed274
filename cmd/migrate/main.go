package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/congo-pay/digiwallet/internal/config"
	"github.com/congo-pay/digiwallet/internal/infra"
	"github.com/congo-pay/digiwallet/internal/logging"
)

func main() {
	target := flag.String("target", "postgres", "database to migrate: postgres or mysql")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.AppName+"-migrate", cfg.AppEnv)

	var dsn string
	switch infra.Target(*target) {
	case infra.TargetPostgres:
		dsn = cfg.DatabaseURL
	case infra.TargetMySQL:
		dsn = cfg.MirrorDSN
	default:
		fmt.Fprintf(os.Stderr, "unknown target %q\n", *target)
		os.Exit(2)
	}
	if dsn == "" {
		fmt.Fprintf(os.Stderr, "no connection string configured for %s\n", *target)
		os.Exit(2)
	}

	if err := infra.MigrateUp(infra.Target(*target), dsn, logger); err != nil {
		logger.Error("migration failed", "target", *target, "error", err)
		os.Exit(1)
	}
}
