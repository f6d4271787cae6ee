package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/examforge/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// An in-memory database lives per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS correction_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		content TEXT NOT NULL,
		md_map TEXT NOT NULL DEFAULT '{}',
		category TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exams (
		uuid TEXT PRIMARY KEY,
		file_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		document TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (file_id) REFERENCES correction_files(id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'teacher',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateFile stores a new correction file.
func (s *Store) CreateFile(f model.CorrectionFile) (int64, error) {
	if f.MdMap == "" {
		f.MdMap = "{}"
	}
	now := time.Now()
	res, err := s.db.Exec(
		`INSERT INTO correction_files (name, content, md_map, category, source, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.Name, f.Content, f.MdMap, f.Category, f.Source, now, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetFile returns a correction file by ID, or nil if it does not exist.
func (s *Store) GetFile(id int64) (*model.CorrectionFile, error) {
	var f model.CorrectionFile
	err := s.db.QueryRow(
		`SELECT id, name, content, md_map, category, source, created_at, updated_at
		 FROM correction_files WHERE id = ?`, id,
	).Scan(&f.ID, &f.Name, &f.Content, &f.MdMap, &f.Category, &f.Source, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFiles returns all correction files, most recently updated first.
func (s *Store) ListFiles() ([]model.FileSummary, error) {
	rows, err := s.db.Query(
		`SELECT id, name, category, source, updated_at FROM correction_files ORDER BY updated_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []model.FileSummary
	for rows.Next() {
		var f model.FileSummary
		if err := rows.Scan(&f.ID, &f.Name, &f.Category, &f.Source, &f.UpdatedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// UpdateMdMap replaces the serialized annotation map of a file.
func (s *Store) UpdateMdMap(id int64, mdMap string) error {
	res, err := s.db.Exec(
		`UPDATE correction_files SET md_map = ?, updated_at = ? WHERE id = ?`,
		mdMap, time.Now(), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteFile removes a correction file and the exams submitted from it.
// It returns sql.ErrNoRows when the file does not exist.
func (s *Store) DeleteFile(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM exams WHERE file_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM correction_files WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// FileCount returns the number of correction files in the database.
func (s *Store) FileCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM correction_files`).Scan(&count)
	return count, err
}
