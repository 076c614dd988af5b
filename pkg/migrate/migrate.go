package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
)

const (
	DefaultDir = "pkg/migrate/migrations"
	dialect    = "postgres"
)

// Command is a goose verb that needs a live connection.
type Command string

const (
	CommandUp      Command = "up"
	CommandUpByOne Command = "up-by-one"
	CommandDown    Command = "down"
	CommandRedo    Command = "redo"
	CommandStatus  Command = "status"
)

var knownCommands = map[Command]struct{}{
	CommandUp:      {},
	CommandUpByOne: {},
	CommandDown:    {},
	CommandRedo:    {},
	CommandStatus:  {},
}

// ParseCommand accepts the verbs Run understands.
func ParseCommand(value string) (Command, error) {
	cmd := Command(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := knownCommands[cmd]; !ok {
		return "", fmt.Errorf("unsupported migration command %q", value)
	}
	return cmd, nil
}

// Run executes cmd against the migrations in dir. Goose prints status output
// to stdout.
func Run(ctx context.Context, db *sql.DB, dir string, cmd Command) error {
	if err := prepare(db, dir); err != nil {
		return err
	}
	if _, ok := knownCommands[cmd]; !ok {
		return fmt.Errorf("unsupported migration command %q", cmd)
	}
	if err := goose.RunContext(ctx, string(cmd), db, dir); err != nil {
		return fmt.Errorf("goose %s: %w", cmd, err)
	}
	return nil
}

// ToVersion moves the schema up or down until it sits at target.
func ToVersion(ctx context.Context, db *sql.DB, dir string, target string) error {
	if err := prepare(db, dir); err != nil {
		return err
	}
	version, err := parseVersion(target)
	if err != nil {
		return err
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == version:
		return nil
	case current < version:
		err = goose.UpToContext(ctx, db, dir, version)
	default:
		err = goose.DownToContext(ctx, db, dir, version)
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, version, err)
	}
	return nil
}

func prepare(db *sql.DB, dir string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

func parseVersion(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if len(value) != len(versionLayout) {
		return 0, fmt.Errorf("invalid version %q (expected %s)", value, versionLayout)
	}
	version, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q (expected %s): %w", value, versionLayout, err)
	}
	return version, nil
}
