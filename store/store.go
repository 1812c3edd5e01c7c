// Package store owns the SQLite files behind the tracker: a single directory
// database for accounts, sessions and events, and one database file per user
// for that user's transactions and settings. User stores are opened lazily on
// first use and kept for the process lifetime.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrUnavailable reports a user store that could not be opened or read.
var ErrUnavailable = errors.New("user store unavailable")

const directoryFile = "users.db"

// OpenDirectory opens (creating if needed) the global directory database and
// brings its schema up to date.
func OpenDirectory(dataDir string) (*sql.DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	path := filepath.Join(dataDir, directoryFile)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open directory database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping directory database: %w", err)
	}
	if err := runMigrations(path, "migrations/directory"); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// UserStore is one user's database handle. The embedded mutex is the critical
// section around every check-then-write sequence against this user's records.
type UserStore struct {
	db *sql.DB
	mu sync.Mutex
}

func (s *UserStore) DB() *sql.DB { return s.db }

func (s *UserStore) Lock()   { s.mu.Lock() }
func (s *UserStore) Unlock() { s.mu.Unlock() }

// Manager hands out per-user stores, opening each database file at most once.
type Manager struct {
	dataDir string

	mu     sync.Mutex
	stores map[string]*UserStore
}

func NewManager(dataDir string) *Manager {
	return &Manager{
		dataDir: dataDir,
		stores:  make(map[string]*UserStore),
	}
}

// Open returns the store for username, creating the database file and its
// schema on first access.
func (m *Manager) Open(username string) (*UserStore, error) {
	if err := validName(username); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[username]; ok {
		return s, nil
	}

	if err := os.MkdirAll(m.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create data directory: %v", ErrUnavailable, err)
	}

	path := m.userPath(username)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrUnavailable, path, err)
	}
	if err := runMigrations(path, "migrations/userstore"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s := &UserStore{db: db}
	m.stores[username] = s
	slog.Info("user store opened", "username", username, "path", path)
	return s, nil
}

// Lookup returns the store for username only if it already exists, either
// cached or on disk. Reporting reads use this so a user with no saved
// transactions yet gets empty results instead of a freshly created store.
func (m *Manager) Lookup(username string) (*UserStore, bool) {
	if validName(username) != nil {
		return nil, false
	}

	m.mu.Lock()
	s, ok := m.stores[username]
	m.mu.Unlock()
	if ok {
		return s, true
	}

	if _, err := os.Stat(m.userPath(username)); err != nil {
		return nil, false
	}

	s, err := m.Open(username)
	if err != nil {
		slog.Error("failed to open existing user store", "username", username, "error", err)
		return nil, false
	}
	return s, true
}

// Close closes every open user store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for username, s := range m.stores {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close store for %s: %w", username, err)
		}
	}
	m.stores = make(map[string]*UserStore)
	return firstErr
}

func (m *Manager) userPath(username string) string {
	return filepath.Join(m.dataDir, username+"_ledger.db")
}

func validName(username string) error {
	if username == "" {
		return fmt.Errorf("%w: empty username", ErrUnavailable)
	}
	if strings.ContainsAny(username, `/\`) || strings.Contains(username, "..") {
		return fmt.Errorf("%w: unsafe username %q", ErrUnavailable, username)
	}
	return nil
}
