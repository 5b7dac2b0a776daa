package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/ncruces/go-sqlite3"
	"github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/ext/unicode"
)

// Engine selects the SQL engine used to read the OpenCode database file
type Engine string

const (
	// EngineSQLite reads the file with the native SQLite driver
	EngineSQLite Engine = "sqlite"
	// EngineDuckDB attaches the file through DuckDB's sqlite extension
	EngineDuckDB Engine = "duckdb"
)

// attachedSchema is the catalog name the SQLite file is attached under in DuckDB
const attachedSchema = "opencode"

// ParseEngine validates an engine name; empty selects SQLite
func ParseEngine(name string) (Engine, error) {
	switch Engine(strings.ToLower(name)) {
	case "", EngineSQLite:
		return EngineSQLite, nil
	case EngineDuckDB:
		return EngineDuckDB, nil
	default:
		return "", fmt.Errorf("unknown database engine %q (want sqlite or duckdb)", name)
	}
}

// OpenReadOnly opens path read-only with the given engine
func OpenReadOnly(path string, engine Engine) (*sql.DB, error) {
	switch engine {
	case EngineDuckDB:
		return openDuckDB(path)
	case EngineSQLite, "":
		return openSQLite(path)
	default:
		return nil, fmt.Errorf("unknown database engine %q", engine)
	}
}

// readOnlyURI builds a file: URI for path with the query part escaped
func readOnlyURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro"}
	return u.String(), nil
}

// openSQLite opens path read-only. Connections get Unicode aware
// LOWER and LIKE so title search folds non-ASCII letters.
func openSQLite(path string) (*sql.DB, error) {
	uri, err := readOnlyURI(path)
	if err != nil {
		return nil, err
	}

	database, err := driver.Open(uri, func(c *sqlite3.Conn) error {
		return unicode.Register(c)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	return database, nil
}

// openDuckDB opens an in-memory DuckDB and attaches the SQLite file read-only
func openDuckDB(path string) (*sql.DB, error) {
	database, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	// USE is per connection, so pin the pool to a single connection
	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)

	statements := []string{
		"INSTALL sqlite",
		"LOAD sqlite",
		fmt.Sprintf("ATTACH %s AS %s (TYPE SQLITE, READ_ONLY)", quoteLiteral(path), attachedSchema),
		"USE " + attachedSchema,
	}
	for _, stmt := range statements {
		if _, err := database.Exec(stmt); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to run %q: %w", stmt, err)
		}
	}

	return database, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
