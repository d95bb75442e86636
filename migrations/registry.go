// Package migrations serves the analytics outbox schema for each supported
// SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	appshell "github.com/goliatone/go-appshell"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	rootDir    = "data/sql/migrations"
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// dialectDirs maps a dialect to its directory below rootDir.
var dialectDirs = map[string]string{
	DialectPostgres: ".",
	DialectSQLite:   "sqlite",
}

var dialectAliases = map[string]string{
	"postgresql": DialectPostgres,
	"pgx":        DialectPostgres,
	"sqlite3":    DialectSQLite,
}

// RegisterFunc receives one dialect's migration directory, e.g.
// persistence.Client.RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, fsys fs.FS) error

// Set is a migration tree laid out as rootDir with one directory per dialect.
type Set struct {
	root fs.FS
}

// New wraps root. Nil uses the schema embedded in the appshell module.
func New(root fs.FS) Set {
	if root == nil {
		root = appshell.GetMigrationsFS()
	}
	return Set{root: root}
}

// Dialects lists the supported dialect names.
func Dialects() []string {
	out := make([]string, 0, len(dialectDirs))
	for dialect := range dialectDirs {
		out = append(out, dialect)
	}
	slices.Sort(out)
	return out
}

// NormalizeDialect accepts driver names such as sqlite3 or pgx.
func NormalizeDialect(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := dialectAliases[name]; ok {
		name = alias
	}
	if _, ok := dialectDirs[name]; !ok {
		return "", fmt.Errorf("migrations: unsupported dialect %q", name)
	}
	return name, nil
}

// FS returns the migration directory for dialect after checking that every
// up migration has a matching down migration.
func (s Set) FS(dialect string) (fs.FS, error) {
	dialect, err := NormalizeDialect(dialect)
	if err != nil {
		return nil, err
	}
	dir := path.Join(rootDir, dialectDirs[dialect])
	sub, err := fs.Sub(s.root, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: open %s: %w", dir, err)
	}
	if _, err := versions(sub); err != nil {
		return nil, fmt.Errorf("migrations: %s: %w", dialect, err)
	}
	return sub, nil
}

// Versions lists migration names for dialect without their suffix, oldest
// first.
func (s Set) Versions(dialect string) ([]string, error) {
	sub, err := s.FS(dialect)
	if err != nil {
		return nil, err
	}
	return versions(sub)
}

// Register hands each requested dialect's directory to fn. With no dialects
// every supported dialect is registered.
func (s Set) Register(ctx context.Context, fn RegisterFunc, dialects ...string) error {
	if fn == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	if len(dialects) == 0 {
		dialects = Dialects()
	}
	seen := map[string]bool{}
	for _, name := range dialects {
		dialect, err := NormalizeDialect(name)
		if err != nil {
			return err
		}
		if seen[dialect] {
			continue
		}
		seen[dialect] = true

		sub, err := s.FS(dialect)
		if err != nil {
			return err
		}
		if err := fn(ctx, dialect, sub); err != nil {
			return fmt.Errorf("migrations: register %s: %w", dialect, err)
		}
	}
	return nil
}

// Register uses the embedded schema.
func Register(ctx context.Context, fn RegisterFunc, dialects ...string) error {
	return New(nil).Register(ctx, fn, dialects...)
}

func versions(fsys fs.FS) ([]string, error) {
	ups, err := fs.Glob(fsys, "*"+upSuffix)
	if err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("no %s files", upSuffix)
	}
	out := make([]string, 0, len(ups))
	for _, up := range ups {
		name := strings.TrimSuffix(up, upSuffix)
		if _, err := fs.Stat(fsys, name+downSuffix); err != nil {
			return nil, fmt.Errorf("%s has no down migration", up)
		}
		out = append(out, name)
	}
	slices.Sort(out)
	return out, nil
}
