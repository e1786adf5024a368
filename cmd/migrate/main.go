package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Dosada05/bracket-engine/db"
	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "migrate",
		Usage: "manage the bracket engine database schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "postgres connection string",
				EnvVars:  []string{"DATABASE_URL"},
				Required: true,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply all pending migrations",
				Action: withMigrator(func(c *cli.Context, m *migrate.Migrate) error {
					if err := db.Up(m); err != nil {
						return err
					}
					return printVersion(m)
				}),
			},
			{
				Name:  "down",
				Usage: "roll back migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to roll back"},
				},
				Action: withMigrator(func(c *cli.Context, m *migrate.Migrate) error {
					steps := c.Int("steps")
					if steps <= 0 {
						return fmt.Errorf("steps must be positive, got %d", steps)
					}
					if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("failed to roll back %d migration(s): %w", steps, err)
					}
					return printVersion(m)
				}),
			},
			{
				Name:   "version",
				Usage:  "print the current schema version",
				Action: withMigrator(func(c *cli.Context, m *migrate.Migrate) error { return printVersion(m) }),
			},
			{
				Name:      "force",
				Usage:     "set the schema version without running migrations (clears the dirty flag)",
				ArgsUsage: "VERSION",
				Action: withMigrator(func(c *cli.Context, m *migrate.Migrate) error {
					var version int
					if _, err := fmt.Sscan(c.Args().First(), &version); err != nil {
						return fmt.Errorf("VERSION must be an integer: %w", err)
					}
					if err := m.Force(version); err != nil {
						return fmt.Errorf("failed to force version %d: %w", version, err)
					}
					return printVersion(m)
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func withMigrator(action func(c *cli.Context, m *migrate.Migrate) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		conn, err := db.Connect(c.String("database-url"), db.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxLifetime: time.Minute}, 5*time.Second)
		if err != nil {
			return err
		}
		defer conn.Close()

		m, err := db.NewPostgresMigrator(conn)
		if err != nil {
			return err
		}
		return action(c, m)
	}
}

func printVersion(m *migrate.Migrate) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("schema version: none")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	fmt.Printf("schema version: %d (dirty: %t)\n", version, dirty)
	return nil
}
