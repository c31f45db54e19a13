package health

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-library/internal/database"
)

// Status classifies the structure of an index file.
type Status string

const (
	StatusHealthy        Status = "healthy"
	StatusMissing        Status = "missing"
	StatusCorrupted      Status = "corrupted"
	StatusMissingColumns Status = "missing_columns"
	StatusExtraColumns   Status = "extra_columns"
	StatusMixedSchema    Status = "mixed_schema"
)

// Action is an operator choice offered for a status.
type Action string

const (
	ActionMigrate   Action = "migrate"
	ActionCreateNew Action = "create_new"
	ActionContinue  Action = "continue_anyway"
	ActionAbort     Action = "abort"
)

const checkTimeout = 10 * time.Second

// column is one canonical photos column and the statement that adds it to
// an older index. Columns that cannot be added have no statement.
type column struct {
	name string
	add  string
}

var canonicalColumns = []column{
	{name: "id"},
	{name: "original_filename", add: "ALTER TABLE photos ADD COLUMN original_filename TEXT"},
	{name: "current_path", add: "ALTER TABLE photos ADD COLUMN current_path TEXT"},
	{name: "date_taken", add: "ALTER TABLE photos ADD COLUMN date_taken TEXT"},
	{name: "content_hash", add: "ALTER TABLE photos ADD COLUMN content_hash TEXT"},
	{name: "file_size", add: "ALTER TABLE photos ADD COLUMN file_size INTEGER"},
	{name: "file_type", add: "ALTER TABLE photos ADD COLUMN file_type TEXT"},
	{name: "width", add: "ALTER TABLE photos ADD COLUMN width INTEGER"},
	{name: "height", add: "ALTER TABLE photos ADD COLUMN height INTEGER"},
	{name: "rating", add: "ALTER TABLE photos ADD COLUMN rating INTEGER DEFAULT NULL"},
}

// Report is the result of Check.
type Report struct {
	Status         Status   `json:"status"`
	Path           string   `json:"db_path"`
	MissingColumns []string `json:"missing_columns,omitempty"`
	ExtraColumns   []string `json:"extra_columns,omitempty"`
	Error          string   `json:"error,omitempty"`

	// IncompleteOperations lists ledgered operations that never finished,
	// usually because the process died mid-way.
	IncompleteOperations []database.Operation `json:"incomplete_operations,omitempty"`

	CanMigrate   bool `json:"can_migrate"`
	CanCreateNew bool `json:"can_create_new"`
	CanContinue  bool `json:"can_continue"`
}

// NeedsAttention reports whether the index needs an operator decision
// before use.
func (r Report) NeedsAttention() bool {
	return r.Status != StatusHealthy
}

// Actions returns the offered actions in a fixed order, or abort alone
// when nothing else applies.
func (r Report) Actions() []Action {
	var actions []Action
	if r.CanMigrate {
		actions = append(actions, ActionMigrate)
	}
	if r.CanCreateNew {
		actions = append(actions, ActionCreateNew)
	}
	if r.CanContinue {
		actions = append(actions, ActionContinue)
	}
	if len(actions) == 0 {
		actions = append(actions, ActionAbort)
	}
	return actions
}

// Message describes the status in one sentence.
func (r Report) Message() string {
	switch r.Status {
	case StatusHealthy:
		return "Database is healthy and up to date"
	case StatusMissing:
		return fmt.Sprintf("No database found at: %s", r.Path)
	case StatusCorrupted:
		return fmt.Sprintf("Database file is corrupted or invalid: %s", r.Error)
	case StatusMissingColumns:
		return fmt.Sprintf("Database schema is outdated. Missing columns: %s", strings.Join(r.MissingColumns, ", "))
	case StatusExtraColumns:
		return fmt.Sprintf("Database has extra columns (not in current schema): %s", strings.Join(r.ExtraColumns, ", "))
	case StatusMixedSchema:
		return fmt.Sprintf("Database schema mismatch. Missing: %s. Extra: %s",
			strings.Join(r.MissingColumns, ", "), strings.Join(r.ExtraColumns, ", "))
	}
	return "Unknown database status"
}

// Format renders the report as a text block for the CLI and logs.
func (r Report) Format() string {
	var b strings.Builder
	rule := strings.Repeat("-", 60)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "Database health check")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Path:   %s\n", r.Path)
	fmt.Fprintf(&b, "Status: %s\n\n", strings.ToUpper(string(r.Status)))
	fmt.Fprintln(&b, r.Message())

	if len(r.MissingColumns) > 0 {
		fmt.Fprintln(&b, "\nMissing columns:")
		for _, c := range r.MissingColumns {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}
	if len(r.ExtraColumns) > 0 {
		fmt.Fprintln(&b, "\nExtra columns:")
		for _, c := range r.ExtraColumns {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}

	if len(r.IncompleteOperations) > 0 {
		fmt.Fprintln(&b, "\nUnfinished operations:")
		for _, op := range r.IncompleteOperations {
			fmt.Fprintf(&b, "  - %s %s (started %s, last update %s)\n", op.Kind, op.ID,
				op.StartedAt.Local().Format(time.DateTime), op.UpdatedAt.Local().Format(time.DateTime))
		}
	}

	fmt.Fprintln(&b, "\nAvailable actions:")
	for _, a := range r.Actions() {
		fmt.Fprintf(&b, "  - %s\n", a)
	}
	fmt.Fprint(&b, rule)
	return b.String()
}

// Check inspects the index at dbPath without modifying it.
func Check(dbPath string) Report {
	if _, err := os.Stat(dbPath); err != nil {
		return Report{Status: StatusMissing, Path: dbPath, CanCreateNew: true}
	}

	corrupted := func(msg string) Report {
		return Report{Status: StatusCorrupted, Path: dbPath, Error: msg, CanCreateNew: true}
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return corrupted(err.Error())
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	tables, err := tableNames(ctx, db)
	if err != nil {
		return corrupted(err.Error())
	}
	if !tables["photos"] {
		return corrupted("no 'photos' table found")
	}

	actual, err := columnNames(ctx, db, "photos")
	if err != nil {
		return corrupted(fmt.Sprintf("schema check failed: %v", err))
	}

	var missing, extra []string
	expected := make(map[string]bool, len(canonicalColumns))
	for _, c := range canonicalColumns {
		expected[c.name] = true
		if !actual[c.name] {
			missing = append(missing, c.name)
		}
	}
	for name := range actual {
		if !expected[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)

	report := Report{Path: dbPath, MissingColumns: missing, ExtraColumns: extra, CanContinue: true}
	if tables["operations"] {
		ops, err := database.ListIncompleteOperations(ctx, db)
		if err != nil {
			return corrupted(fmt.Sprintf("operations check failed: %v", err))
		}
		report.IncompleteOperations = ops
	}
	switch {
	case len(missing) == 0 && len(extra) == 0:
		report.Status = StatusHealthy
	case len(extra) == 0:
		report.Status = StatusMissingColumns
		report.CanMigrate = true
	case len(missing) == 0:
		report.Status = StatusExtraColumns
	default:
		report.Status = StatusMixedSchema
		report.CanMigrate = true
	}
	return report
}

func tableNames(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = true
	}
	return names, rows.Err()
}

func columnNames(ctx context.Context, q interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = true
	}
	return names, rows.Err()
}
