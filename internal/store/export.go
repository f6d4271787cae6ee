package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/examforge/internal/model"
)

// ErrExamOwned is returned when an exam UUID is resubmitted from a file
// other than the one it was first submitted from.
var ErrExamOwned = errors.New("exam belongs to another file")

// SaveExam inserts or replaces a submitted exam document, keyed by its UUID.
// Only the file that first submitted an exam may replace it.
func (s *Store) SaveExam(fileID int64, doc model.ExamDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal exam %s: %w", doc.UUID, err)
	}
	res, err := s.db.Exec(
		`INSERT INTO exams (uuid, file_id, name, document, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(uuid) DO UPDATE SET name = excluded.name, document = excluded.document
		 WHERE exams.file_id = excluded.file_id`,
		doc.UUID, fileID, doc.Name, string(data), time.Now(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("save exam %s: %w", doc.UUID, ErrExamOwned)
	}
	return nil
}

// GetExam returns a stored exam by UUID, or nil if it does not exist.
func (s *Store) GetExam(uuid string) (*model.StoredExam, error) {
	var (
		e   model.StoredExam
		raw string
	)
	err := s.db.QueryRow(
		`SELECT file_id, created_at, document FROM exams WHERE uuid = ?`, uuid,
	).Scan(&e.FileID, &e.CreatedAt, &raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &e.Document); err != nil {
		return nil, fmt.Errorf("decode exam %s: %w", uuid, err)
	}
	return &e, nil
}

// ListExams returns every stored exam, oldest first.
func (s *Store) ListExams() ([]model.StoredExam, error) {
	rows, err := s.db.Query(`SELECT uuid, file_id, created_at, document FROM exams ORDER BY created_at, uuid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.StoredExam
	for rows.Next() {
		var (
			e    model.StoredExam
			uuid string
			raw  string
		)
		if err := rows.Scan(&uuid, &e.FileID, &e.CreatedAt, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.Document); err != nil {
			return nil, fmt.Errorf("decode exam %s: %w", uuid, err)
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}
