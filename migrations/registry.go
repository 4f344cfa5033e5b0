package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	marketsync "github.com/goliatone/go-marketsync"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const (
	sourceLabel   = "go-marketsync"
	rootPath      = "data/sql/migrations"
	sqliteSubPath = "sqlite"
)

// FilesystemSpec is the migration tree of one dialect. Postgres files live
// at the root of the tree and the sqlite variants under sqlite/.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*registration)

type registration struct {
	label   string
	targets []string
	root    fs.FS
}

// WithValidationTargets limits registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *registration) {
		if next := normalizeDialects(targets); len(next) > 0 {
			r.targets = next
		}
	}
}

func WithSourceLabel(label string) Option {
	return func(r *registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.label = trimmed
		}
	}
}

// WithRoot replaces the embedded tree, mostly for tests.
func WithRoot(root fs.FS) Option {
	return func(r *registration) {
		if root != nil {
			r.root = root
		}
	}
}

// DialectForDriver maps a database/sql driver name to its migration dialect
// and the canonical driver to open.
func DialectForDriver(driver string) (dialect string, sqlDriver string, err error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, "postgres", nil
	case "sqlite", "sqlite3":
		return DialectSQLite, "sqlite3", nil
	default:
		return "", "", fmt.Errorf("migrations: unsupported database driver %q", driver)
	}
}

// Filesystems resolves both dialect trees and checks that each one carries
// at least one up migration.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := marketsync.GetMigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}

	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, sqliteSubPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: pathJoin(basePath, sqliteSubPath), FS: sqliteFS},
	}
	for _, spec := range filesystems {
		matches, globErr := fs.Glob(spec.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", spec.Dialect, spec.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
		}
	}
	return filesystems, nil
}

// Register hands each targeted dialect tree to registerFn. It returns the
// trees that were registered.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) ([]FilesystemSpec, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	reg := registration{
		label:   sourceLabel,
		targets: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	filesystems, err := Filesystems(reg.root)
	if err != nil {
		return nil, err
	}
	registered := make([]FilesystemSpec, 0, len(reg.targets))
	for _, spec := range filesystems {
		if !slices.Contains(reg.targets, spec.Dialect) {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, reg.label, spec.FS); err != nil {
			return registered, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
		registered = append(registered, spec)
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("migrations: no filesystem matches %v", reg.targets)
	}
	return registered, nil
}

func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	sub, err := fs.Sub(root, rootPath)
	if err == nil {
		if _, statErr := fs.Stat(sub, "."); statErr == nil {
			return sub, rootPath, nil
		}
	}

	entries, readErr := fs.ReadDir(root, ".")
	if readErr == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
				return root, ".", nil
			}
		}
	}
	return nil, "", fmt.Errorf("migrations: %s not found", rootPath)
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(strings.ToLower(value))
		if trimmed == "" || slices.Contains(out, trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func pathJoin(base string, suffix string) string {
	if base == "." {
		return suffix
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(suffix, "/")
}
