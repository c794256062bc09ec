package journal

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS journal (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	file TEXT NOT NULL,
	line TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS journal_file ON journal (file, id);
`

// SQLiteStorage keeps journal lines in a SQLite database, one row per line.
// The file name becomes a column so both rotation policies still apply.
type SQLiteStorage struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Single writer; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Append inserts line under name. Each insert is its own transaction.
func (s *SQLiteStorage) Append(name string, line []byte) error {
	_, err := s.db.Exec(`INSERT INTO journal (file, line) VALUES (?, ?)`,
		name, strings.TrimRight(string(line), "\n"))
	return err
}

// Lines returns the lines stored under name in append order.
func (s *SQLiteStorage) Lines(name string) ([]string, error) {
	rows, err := s.db.Query(`SELECT line FROM journal WHERE file = ? ORDER BY id`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
