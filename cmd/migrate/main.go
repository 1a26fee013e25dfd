package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"os"

	"github.com/lgulliver/jarhub/pkg/config"
	"github.com/lgulliver/jarhub/pkg/migrate"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	var (
		up     = flag.Bool("up", false, "Run pending migrations")
		down   = flag.Bool("down", false, "Roll back the last migration")
		status = flag.Bool("status", false, "List migrations and whether they are applied")
	)
	flag.Parse()

	if !*up && !*down && !*status {
		fmt.Printf("Usage: %s [-up | -down | -status]\n", os.Args[0])
		fmt.Println("  -up      Run pending migrations")
		fmt.Println("  -down    Roll back the last migration")
		fmt.Println("  -status  List migrations and whether they are applied")
		os.Exit(1)
	}

	cfg := config.LoadFromEnv()
	cfg.Logging.SetupLogging()

	migrator, err := migrate.NewMigrator(&cfg.Database, migrationsFS, "migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}
	defer migrator.Close()

	ctx := context.Background()

	if *up {
		applied, err := migrator.Up(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		log.Info().Int("applied", applied).Msg("Migrations completed successfully")
	}

	if *down {
		if err := migrator.Down(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to roll back migration")
		}
		log.Info().Msg("Rollback completed successfully")
	}

	if *status {
		statuses, err := migrator.Status(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read migration status")
		}
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Printf("%03d  %-40s %s\n", s.Version, s.Name, state)
		}
	}
}
