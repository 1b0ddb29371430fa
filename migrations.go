package chatrelay

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// MigrationFiles contains all SQL migration files embedded in the binary.
// Table names carry a {{prefix}} placeholder; ApplyMigrations substitutes it.
// The files can also be fed to an external migration tool after the
// placeholder is replaced.
//
//go:embed migrations/*.sql
var MigrationFiles embed.FS

const prefixPlaceholder = "{{prefix}}"

// ApplyMigrations runs every embedded migration in file name order.
// Statements use CREATE ... IF NOT EXISTS so re-running is safe.
//
// Example:
//
//	db, _ := sql.Open("sqlite3", "chat.db")
//	if err := chatrelay.ApplyMigrations(ctx, db, "chat_"); err != nil {
//	    log.Fatal(err)
//	}
func ApplyMigrations(ctx context.Context, db *sql.DB, tablePrefix string) error {
	names, err := fs.Glob(MigrationFiles, "migrations/*.sql")
	if err != nil {
		return NewErrorWithCause(ErrCodeConfiguration, "failed to list migrations", err)
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := MigrationFiles.ReadFile(name)
		if err != nil {
			return NewErrorWithCause(ErrCodeConfiguration, fmt.Sprintf("failed to read migration %s", name), err)
		}

		script := strings.ReplaceAll(string(raw), prefixPlaceholder, tablePrefix)
		for _, stmt := range splitStatements(script) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return NewErrorWithCause(ErrCodeDatabase, fmt.Sprintf("migration %s failed", name), err)
			}
		}
	}
	return nil
}

// splitStatements splits a script on ';' and drops comment-only chunks.
func splitStatements(script string) []string {
	var out []string
	for _, chunk := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(chunk, "\n") {
			if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			out = append(out, strings.TrimSpace(strings.Join(lines, "\n")))
		}
	}
	return out
}
