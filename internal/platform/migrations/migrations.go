// Package migrations embeds the storefront schema and applies it either
// directly (Apply) or through golang-migrate with version tracking (New).
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var files embed.FS

const dir = "sql"

// Migration is one versioned schema step.
type Migration struct {
	Version uint
	Name    string
	Up      string
	Down    string
}

// List returns the embedded migrations ordered by version.
func List() ([]Migration, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, err
	}
	byVersion := map[uint]*Migration{}
	for _, e := range entries {
		name := e.Name()
		base, direction, ok := splitName(name)
		if !ok {
			continue
		}
		versionText, title, _ := strings.Cut(base, "_")
		version, err := strconv.ParseUint(versionText, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version: %w", name, err)
		}
		body, err := fs.ReadFile(files, dir+"/"+name)
		if err != nil {
			return nil, err
		}
		m := byVersion[uint(version)]
		if m == nil {
			m = &Migration{Version: uint(version), Name: title}
			byVersion[uint(version)] = m
		}
		if direction == "up" {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("migration %d_%s has no up step", m.Version, m.Name)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func splitName(name string) (base, direction string, ok bool) {
	for _, d := range []string{"up", "down"} {
		if b, found := strings.CutSuffix(name, "."+d+".sql"); found {
			return b, d, true
		}
	}
	return "", "", false
}

// Apply runs every up migration in order. The statements are idempotent, so
// Apply is safe on an already migrated database.
func Apply(ctx context.Context, db *sql.DB) error {
	ms, err := List()
	if err != nil {
		return err
	}
	for _, m := range ms {
		if _, err := db.ExecContext(ctx, m.Up); err != nil {
			return fmt.Errorf("apply migration %d_%s: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// Source returns the embedded files as a golang-migrate source driver.
func Source() (source.Driver, error) {
	return iofs.New(files, dir)
}

// New builds a golang-migrate instance over db that records applied versions
// in schema_migrations.
func New(db *sql.DB) (*migrate.Migrate, error) {
	src, err := Source()
	if err != nil {
		return nil, fmt.Errorf("migrations source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrations driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, "postgres", driver)
}

// Up migrates to the latest version. An up-to-date schema is not an error.
func Up(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Down reverts steps migrations, or every migration when steps <= 0.
func Down(m *migrate.Migrate, steps int) error {
	var err error
	if steps > 0 {
		err = m.Steps(-steps)
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
