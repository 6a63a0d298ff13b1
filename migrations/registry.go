package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	provision "github.com/goliatone/go-provision"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

// Filesystems resolves the per-dialect migration filesystems from the
// embedded tree (or an override passed by tests) and verifies each one
// actually contains *.up.sql files.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := provision.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, err := fs.Sub(root, "data/sql/migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations: data/sql/migrations not found: %w", err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: "data/sql/migrations", FS: base},
		{Dialect: DialectSQLite, Path: "data/sql/migrations/sqlite", FS: sqliteFS},
	}

	for _, fsys := range filesystems {
		matches, globErr := fs.Glob(fsys.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", fsys.Dialect, fsys.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", fsys.Dialect, fsys.Path)
		}
	}

	return filesystems, nil
}

// Register feeds the dialect filesystems matching targets into registerFn.
// With no targets, both dialects are registered.
func Register(ctx context.Context, registerFn RegisterFunc, targets ...string) error {
	if registerFn == nil {
		return fmt.Errorf("migrations: register function is required")
	}

	wanted := map[string]bool{}
	for _, target := range targets {
		trimmed := strings.TrimSpace(strings.ToLower(target))
		if trimmed != "" {
			wanted[trimmed] = true
		}
	}

	filesystems, err := Filesystems()
	if err != nil {
		return err
	}
	for _, fsys := range filesystems {
		if len(wanted) > 0 && !wanted[fsys.Dialect] {
			continue
		}
		if err := registerFn(ctx, fsys.Dialect, "go-provision", fsys.FS); err != nil {
			return fmt.Errorf("migrations: register %s (%s): %w", fsys.Dialect, fsys.Path, err)
		}
	}
	return nil
}
