package main

import (
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/pkg/errors"

	"github.com/hansini-nalla/pes-sub000/storage/database"
)

var (
	newMigratorFunc = database.NewMigrator // mockable

	errNoDatabase = errors.New("migrations need a postgres database")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	m, err := newMigratorFunc(cli.db)
	if err != nil {
		return err
	}

	switch args[0] {
	case "up":
		return ignoreNoChange(m.Up())
	case "down":
		return ignoreNoChange(m.Down())
	case "version":
		version, dirty, err := m.Version()
		if err != nil && err != migrate.ErrNilVersion {
			return err
		}
		fmt.Fprintf(cli.out, "version %d (dirty: %t)\n", version, dirty)
		return nil
	case "steps", "force":
		if len(args) < 2 {
			return fmt.Errorf("%s must be of form: migrate %s N", args[0], args[0])
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("N must be a number (got '%s')", args[1])
		}
		if args[0] == "force" {
			return m.Force(n)
		}
		return ignoreNoChange(m.Steps(n))
	default:
		return fmt.Errorf("%q: no such command", args[0])
	}
}

func ignoreNoChange(err error) error {
	if err == migrate.ErrNoChange {
		return nil
	}
	return err
}
