package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/personae/internal/models"
	"github.com/hyperjump/personae/pkg/utils"
)

// SQLiteStorage implements PersonStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB

	// writeMu serializes mutations with their notifications, so observers see
	// mutations in commit order.
	writeMu sync.Mutex

	mu        sync.RWMutex
	observers []Observer
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS persons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		_id_endp TEXT NOT NULL UNIQUE,
		pref_label TEXT NOT NULL,
		forename TEXT NOT NULL DEFAULT '',
		forename_alt_labels TEXT NOT NULL DEFAULT '',
		surname TEXT NOT NULL DEFAULT '',
		surname_alt_labels TEXT NOT NULL DEFAULT '',
		first_mention_date TEXT NOT NULL DEFAULT '',
		last_mention_date TEXT NOT NULL DEFAULT '',
		death_date TEXT NOT NULL DEFAULT '',
		is_canon BOOLEAN NOT NULL DEFAULT 0,
		comment TEXT NOT NULL DEFAULT '',
		bibliography TEXT NOT NULL DEFAULT '',
		_last_editor TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_persons_pref_label ON persons(pref_label);
	`
	_, err := db.Exec(schema)
	return err
}

const personColumns = `id, _id_endp, pref_label, forename, forename_alt_labels, surname,
	surname_alt_labels, first_mention_date, last_mention_date, death_date, is_canon,
	comment, bibliography, _last_editor, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*models.Person, error) {
	var p models.Person
	err := row.Scan(&p.ID, &p.IDEndp, &p.PrefLabel, &p.Forename, &p.ForenameAltLabels, &p.Surname,
		&p.SurnameAltLabels, &p.FirstMentionDate, &p.LastMentionDate, &p.DeathDate, &p.IsCanon,
		&p.Comment, &p.Bibliography, &p.LastEditor, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Subscribe registers obs for after-commit notifications. Observers run while the
// mutation still holds the write lock and must not mutate s.
func (s *SQLiteStorage) Subscribe(obs Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

func (s *SQLiteStorage) notify(fn func(Observer)) {
	s.mu.RLock()
	obs := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()
	for _, o := range obs {
		fn(o)
	}
}

// CreatePerson inserts p, forging its public identifier and defaulting the forename and
// surname to the first alternate label. p receives the assigned id and timestamps.
func (s *SQLiteStorage) CreatePerson(ctx context.Context, p *models.Person) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if p.Forename == "" {
		p.Forename = utils.FirstLabel(p.ForenameAltLabels)
	}
	if p.Surname == "" {
		p.Surname = utils.FirstLabel(p.SurnameAltLabels)
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	idEndp, err := nextIDEndp(ctx, tx)
	if err != nil {
		return fmt.Errorf("failed to forge _id_endp: %w", err)
	}
	p.IDEndp = idEndp

	res, err := tx.ExecContext(ctx,
		`INSERT INTO persons (_id_endp, pref_label, forename, forename_alt_labels, surname,
			surname_alt_labels, first_mention_date, last_mention_date, death_date, is_canon,
			comment, bibliography, _last_editor, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.IDEndp, p.PrefLabel, p.Forename, p.ForenameAltLabels, p.Surname,
		p.SurnameAltLabels, p.FirstMentionDate, p.LastMentionDate, p.DeathDate, p.IsCanon,
		p.Comment, p.Bibliography, p.LastEditor, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	p.ID = id

	snapshot := *p
	s.notify(func(o Observer) { o.AfterInsert(ctx, &snapshot) })
	return nil
}

// nextIDEndp returns "person_<n>" where n follows the suffix of the last inserted
// identifier, or the row count when none parses.
func nextIDEndp(ctx context.Context, tx *sql.Tx) (string, error) {
	var last string
	err := tx.QueryRowContext(ctx, `SELECT _id_endp FROM persons ORDER BY id DESC LIMIT 1`).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if i := strings.LastIndex(last, "_"); i >= 0 {
		if n, perr := strconv.ParseInt(last[i+1:], 10, 64); perr == nil {
			return fmt.Sprintf("%s_%d", IDEndpPrefix, n+1), nil
		}
	}
	var count int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM persons`).Scan(&count); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%d", IDEndpPrefix, count+1), nil
}

// GetPerson returns a person by id.
func (s *SQLiteStorage) GetPerson(ctx context.Context, id int64) (*models.Person, error) {
	p, err := scanPerson(s.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePerson overwrites the mutable columns of p. The public identifier and creation
// time are kept; p is refreshed from the committed row.
func (s *SQLiteStorage) UpdatePerson(ctx context.Context, p *models.Person) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	p.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE persons SET pref_label = ?, forename = ?, forename_alt_labels = ?, surname = ?,
			surname_alt_labels = ?, first_mention_date = ?, last_mention_date = ?, death_date = ?,
			is_canon = ?, comment = ?, bibliography = ?, _last_editor = ?, updated_at = ?
		 WHERE id = ?`,
		p.PrefLabel, p.Forename, p.ForenameAltLabels, p.Surname,
		p.SurnameAltLabels, p.FirstMentionDate, p.LastMentionDate, p.DeathDate,
		p.IsCanon, p.Comment, p.Bibliography, p.LastEditor, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, p.ID)
	}
	stored, err := scanPerson(tx.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons WHERE id = ?`, p.ID))
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	*p = *stored

	snapshot := *stored
	s.notify(func(o Observer) { o.AfterUpdate(ctx, &snapshot) })
	return nil
}

// DeletePerson removes a person by id.
func (s *SQLiteStorage) DeletePerson(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	before, err := scanPerson(tx.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM persons WHERE id = ?`, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.notify(func(o Observer) { o.AfterDelete(ctx, before) })
	return nil
}

// ListPersons returns persons ordered by id with offset and limit.
func (s *SQLiteStorage) ListPersons(ctx context.Context, offset, limit int) ([]*models.Person, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+personColumns+` FROM persons ORDER BY id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var persons []*models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// ForEachPerson streams every person in ascending id order.
func (s *SQLiteStorage) ForEachPerson(ctx context.Context, fn func(*models.Person) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+personColumns+` FROM persons ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountPersons returns the total number of persons.
func (s *SQLiteStorage) CountPersons(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM persons`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
