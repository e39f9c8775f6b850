package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pressly/goose/v3"
)

var sqlFileRe = regexp.MustCompile(`^\d{14}_[a-z0-9_]+\.sql$`)

var requiredAnnotations = []string{"-- +goose Up", "-- +goose Down"}

// ValidateDir checks that every migration in dir uses a timestamp version,
// that goose can order the set, and that each file has both directions.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("stat dir %q: %w", dir, err)
	}

	migrations, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	if errors.Is(err, goose.ErrNoMigrationFiles) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("collect migrations in %q: %w", dir, err)
	}

	// collected migrations are sorted by version
	var prev *goose.Migration
	for _, m := range migrations {
		name := filepath.Base(m.Source)
		if prev != nil && prev.Version == m.Version {
			return fmt.Errorf("duplicate migration version %d in %q and %q", m.Version, filepath.Base(prev.Source), name)
		}
		prev = m
		if filepath.Ext(name) != ".sql" {
			continue
		}
		if !sqlFileRe.MatchString(name) {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if err := checkAnnotations(m.Source); err != nil {
			return err
		}
	}
	return nil
}

func checkAnnotations(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %q: %w", path, err)
	}
	txt := string(b)
	for _, annotation := range requiredAnnotations {
		if !strings.Contains(txt, annotation) {
			return fmt.Errorf("migration %q missing %q", filepath.Base(path), annotation)
		}
	}
	return nil
}
