// Command migrate applies or reverts the storefront schema.
//
//	migrate [-dsn DSN] up|down [-steps N]|version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"

	"github.com/muraguri00/zalora-luxury/internal/app/storage/postgres"
	"github.com/muraguri00/zalora-luxury/internal/platform/migrations"
)

func main() {
	var (
		envFile = flag.String("env", ".env", "Optional .env file")
		dsn     = flag.String("dsn", "", "Postgres DSN (defaults to DATABASE_DSN)")
		steps   = flag.Int("steps", 0, "Migrations to revert with down; 0 reverts all")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load env (%s): %v", *envFile, err)
	}
	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_DSN")
	}
	if *dsn == "" {
		log.Fatal("a DSN is required: pass -dsn or set DATABASE_DSN")
	}

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, *dsn, 2, 1, time.Minute, 10*time.Second)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	m, err := migrations.New(db.DB)
	if err != nil {
		log.Fatalf("prepare migrations: %v", err)
	}

	switch command {
	case "up":
		err = migrations.Up(m)
	case "down":
		err = migrations.Down(m, *steps)
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return
		}
		if err == nil {
			fmt.Printf("version %d (dirty: %v)\n", version, dirty)
			return
		}
	default:
		log.Fatalf("unknown command %q: use up, down or version", command)
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}

	version, dirty, verr := m.Version()
	switch {
	case errors.Is(verr, migrate.ErrNilVersion):
		fmt.Printf("%s complete, no migrations applied\n", command)
	case verr != nil:
		log.Fatalf("read version: %v", verr)
	default:
		fmt.Printf("%s complete, version %d (dirty: %v)\n", command, version, dirty)
	}
}
