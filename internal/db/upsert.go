package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// InsertIgnoreConfig describes a single-row insert that silently skips rows
// colliding with a unique constraint.
type InsertIgnoreConfig struct {
	Table        string   // target table, optionally schema-qualified
	Columns      []string // columns in placeholder order
	ConflictKeys []string // columns forming the unique constraint
}

// InsertIgnoreSQL builds
//
//	INSERT INTO t (cols) VALUES ($1, ...) ON CONFLICT (keys) DO NOTHING
//
// with every identifier quoted. Callers read the inserted flag from the
// command tag's RowsAffected.
func InsertIgnoreSQL(cfg InsertIgnoreConfig) (string, error) {
	if cfg.Table == "" {
		return "", eris.New("db: insert ignore: no table specified")
	}
	if len(cfg.Columns) == 0 {
		return "", eris.New("db: insert ignore: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", eris.New("db: insert ignore: no conflict keys specified")
	}

	colSet := make(map[string]bool, len(cfg.Columns))
	for _, c := range cfg.Columns {
		colSet[c] = true
	}
	for _, k := range cfg.ConflictKeys {
		if !colSet[k] {
			return "", eris.Errorf("db: insert ignore: conflict key %q is not an inserted column", k)
		}
	}

	placeholders := make([]string, len(cfg.Columns))
	for i := range cfg.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(placeholders, ", "),
		quoteAndJoin(cfg.ConflictKeys),
	), nil
}

// MustInsertIgnoreSQL is InsertIgnoreSQL for package-level statements built
// from constant input.
func MustInsertIgnoreSQL(cfg InsertIgnoreConfig) string {
	q, err := InsertIgnoreSQL(cfg)
	if err != nil {
		panic(err)
	}
	return q
}

// sanitizeTable handles schema-qualified table names like "public.lead_contacts".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
