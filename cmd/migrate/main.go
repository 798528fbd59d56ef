package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	"github.com/tobennaogbu/kobocart-backend/pkg/db"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	"github.com/tobennaogbu/kobocart-backend/pkg/migrate"
)

type cliArgs struct {
	cmd     string
	dir     string
	name    string
	version string
}

func parseArgs() cliArgs {
	var args cliArgs
	flag.StringVar(&args.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&args.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&args.name, "name", "", "migration name (for create)")
	flag.StringVar(&args.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()
	return args
}

func main() {
	_ = godotenv.Load()
	args := parseArgs()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := context.Background()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": args.cmd,
		"dir": args.dir,
	})

	// create and validate run without a database connection
	switch args.cmd {
	case "create":
		if args.name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(args.dir, args.name)
		if err != nil {
			fail(fmt.Sprintf("failed to create migration: %v", err))
		}
		fmt.Println("created migration:", path)
		return

	case "validate":
		if err := migrate.ValidateDir(args.dir); err != nil {
			fail(fmt.Sprintf("migration validation failed: %v", err))
		}
		fmt.Println("migration validation passed")
		return
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	logg.Info(ctx, "migrate ready")

	switch args.cmd {
	case "up", "down", "status":
		if err := migrate.Run(ctx, sqlDB, args.dir, args.cmd); err != nil {
			fail(fmt.Sprintf("goose %s failed: %v", args.cmd, err))
		}

	case "version":
		if args.version == "" {
			fail("missing -version for version command")
		}
		if err := migrate.MigrateToVersion(ctx, sqlDB, args.dir, args.version); err != nil {
			fail(fmt.Sprintf("goose version migrate failed: %v", err))
		}

	default:
		fail("unknown -cmd value: " + args.cmd)
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
