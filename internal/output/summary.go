package output

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver for database/sql
)

// SourceSummary aggregates the catalog rows of one source scene.
type SourceSummary struct {
	Source    string `json:"source"`
	Chips     int64  `json:"chips"`
	Clamped   int64  `json:"clamped"`
	Truncated int64  `json:"truncated"`
	FirstTime string `json:"first_start"`
	LastTime  string `json:"last_end"`
}

// CatalogGlob is the pattern matching every catalog file in dir.
func CatalogGlob(dir string) string {
	return filepath.Join(dir, "catalog_*.parquet")
}

// Summarize counts catalog rows per source across all Parquet files
// matching pattern, using an in-memory DuckDB.
func Summarize(ctx context.Context, pattern string) ([]SourceSummary, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad catalog pattern: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	defer db.Close()

	query := fmt.Sprintf(`
		SELECT source,
		       COUNT(*),
		       CAST(SUM(CASE WHEN clamped THEN 1 ELSE 0 END) AS BIGINT),
		       CAST(SUM(CASE WHEN truncated THEN 1 ELSE 0 END) AS BIGINT),
		       MIN(start_time),
		       MAX(end_time)
		FROM read_parquet(%s)
		GROUP BY source
		ORDER BY source`, fileList(matches))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var out []SourceSummary
	for rows.Next() {
		var s SourceSummary
		if err := rows.Scan(&s.Source, &s.Chips, &s.Clamped, &s.Truncated, &s.FirstTime, &s.LastTime); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating catalog rows: %w", err)
	}
	return out, nil
}

// fileList renders paths as a DuckDB list literal, ['a', 'b'].
func fileList(paths []string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = "'" + strings.ReplaceAll(p, "'", "''") + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
