package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/vendorlution-backend/pkg/config"
	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	"github.com/angelmondragon/vendorlution-backend/pkg/migrate"
)

const serviceName = "migrate"

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&opts.cmd, "cmd", string(migrate.CommandUp), "up|up-by-one|down|redo|status|version|create|validate")
	fs.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	fs.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	fs.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}
	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", opts.cmd, err)
		os.Exit(1)
	}
}

// runOffline handles commands that only touch the filesystem. It reports
// false when cmd needs a database.
func runOffline(opts options, out io.Writer) (bool, error) {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return true, fmt.Errorf("missing -name")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return true, err
		}
		fmt.Fprintln(out, "created migration:", path)
		return true, nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return true, err
		}
		fmt.Fprintln(out, "migration validation passed")
		return true, nil
	}
	return false, nil
}

func runOnline(ctx context.Context, sqlDB *sql.DB, opts options) error {
	if opts.cmd == "version" {
		if opts.version == "" {
			return fmt.Errorf("missing -version")
		}
		return migrate.ToVersion(ctx, sqlDB, opts.dir, opts.version)
	}
	cmd, err := migrate.ParseCommand(opts.cmd)
	if err != nil {
		return err
	}
	return migrate.Run(ctx, sqlDB, opts.dir, cmd)
}

func run(opts options, out io.Writer) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	if handled, err := runOffline(opts, out); handled {
		return err
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		return err
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	logg.Info(ctx, "applying migrations")
	if err := runOnline(ctx, sqlDB, opts); err != nil {
		logg.Error(ctx, "migration failed", err)
		return err
	}
	return nil
}
