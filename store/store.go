// Package store persists class images and run history in SQLite.
package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chazu/ristretto/vm"
	"github.com/chazu/ristretto/vm/image"
	"github.com/tliron/commonlog"

	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("ristretto.store")

var (
	// ErrImageNotFound indicates no image is stored under the digest.
	ErrImageNotFound = errors.New("image not found")
	// ErrClassNotFound indicates no class is stored under the name.
	ErrClassNotFound = errors.New("class not found")
	// ErrRunNotFound indicates no run is recorded under the ID.
	ErrRunNotFound = errors.New("run not found")
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS classes (
		digest   TEXT PRIMARY KEY,
		name     TEXT NOT NULL,
		body     BLOB NOT NULL,
		saved_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS classes_name ON classes (name)`,
	`CREATE TABLE IF NOT EXISTS images (
		digest   TEXT PRIMARY KEY,
		entry    TEXT NOT NULL,
		body     BLOB NOT NULL,
		saved_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		image        TEXT NOT NULL,
		entry        TEXT NOT NULL,
		status       TEXT NOT NULL,
		fault_kind   TEXT NOT NULL,
		fault        TEXT NOT NULL,
		result       INTEGER NOT NULL,
		has_result   INTEGER NOT NULL,
		instructions INTEGER NOT NULL,
		invocations  INTEGER NOT NULL,
		max_depth    INTEGER NOT NULL,
		started_at   INTEGER NOT NULL,
		duration_ns  INTEGER NOT NULL
	)`,
}

// Store handles SQLite storage for images and runs.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}

	log.Debugf("opened %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ---------------------------------------------------------------------------
// Images and classes
// ---------------------------------------------------------------------------

// SaveImage stores img and each of its classes, keyed by digest.
// Saving the same content twice is a no-op. Returns the image digest in hex.
func (s *Store) SaveImage(img *image.Image) (string, error) {
	body, err := image.Marshal(img)
	if err != nil {
		return "", fmt.Errorf("encoding image: %w", err)
	}
	root, err := image.Digest(img)
	if err != nil {
		return "", fmt.Errorf("hashing image: %w", err)
	}
	digest := hex.EncodeToString(root[:])
	now := time.Now().UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("saving image: %w", err)
	}
	defer tx.Rollback()

	for _, def := range img.Classes {
		classBody, err := image.MarshalClass(def)
		if err != nil {
			return "", fmt.Errorf("encoding class %s: %w", def.Name, err)
		}
		h, err := image.ClassDigest(def)
		if err != nil {
			return "", fmt.Errorf("hashing class %s: %w", def.Name, err)
		}
		_, err = tx.Exec(
			"INSERT OR IGNORE INTO classes (digest, name, body, saved_at) VALUES (?, ?, ?, ?)",
			hex.EncodeToString(h[:]), def.Name, classBody, now,
		)
		if err != nil {
			return "", fmt.Errorf("saving class %s: %w", def.Name, err)
		}
	}

	_, err = tx.Exec(
		"INSERT OR IGNORE INTO images (digest, entry, body, saved_at) VALUES (?, ?, ?, ?)",
		digest, img.Entry, body, now,
	)
	if err != nil {
		return "", fmt.Errorf("saving image: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("saving image: %w", err)
	}

	log.Infof("saved image %s (%d classes)", digest[:12], len(img.Classes))
	return digest, nil
}

// LoadImage retrieves the image stored under digest.
func (s *Store) LoadImage(digest string) (*image.Image, error) {
	var body []byte
	err := s.db.QueryRow("SELECT body FROM images WHERE digest = ?", digest).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, digest)
		}
		return nil, fmt.Errorf("querying image: %w", err)
	}
	return image.Unmarshal(body)
}

// LatestImage returns the most recently saved image and its digest.
func (s *Store) LatestImage() (*image.Image, string, error) {
	var (
		digest string
		body   []byte
	)
	err := s.db.QueryRow(
		"SELECT digest, body FROM images ORDER BY saved_at DESC, rowid DESC LIMIT 1",
	).Scan(&digest, &body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrImageNotFound
		}
		return nil, "", fmt.Errorf("querying image: %w", err)
	}
	img, err := image.Unmarshal(body)
	return img, digest, err
}

// Class returns the most recently saved definition of the named class.
func (s *Store) Class(name string) (vm.ClassDef, error) {
	var body []byte
	err := s.db.QueryRow(
		"SELECT body FROM classes WHERE name = ? ORDER BY saved_at DESC, rowid DESC LIMIT 1",
		name,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vm.ClassDef{}, fmt.Errorf("%w: %s", ErrClassNotFound, name)
		}
		return vm.ClassDef{}, fmt.Errorf("querying class: %w", err)
	}
	return image.UnmarshalClass(body)
}

// ClassNames lists the distinct stored class names in order.
func (s *Store) ClassNames() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT name FROM classes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing classes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("listing classes: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
