// Package storage persists shell state that must survive restarts: window
// geometry and the supervisor's event history.
package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// DBFilename is the database file inside the data directory
const DBFilename = "shell.db"

// Store wraps the bbolt database
type Store struct {
	db           *bbolt.DB
	logger       *zap.SugaredLogger
	mu           sync.RWMutex
	historyLimit int
}

// Open opens or creates the store in dataDir. A database left locked by a
// crashed shell is moved aside and recreated.
func Open(dataDir string, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	dbPath := filepath.Join(dataDir, DBFilename)

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err == bbolt.ErrTimeout {
		logger.Warnw("Database locked, moving it aside", "path", dbPath)
		backupPath := dbPath + ".backup." + time.Now().Format("20060102-150405")
		if renameErr := os.Rename(dbPath, backupPath); renameErr != nil {
			logger.Warnw("Failed to move locked database", "error", renameErr)
		}
		db, err = bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	s := &Store{db: db, logger: logger, historyLimit: DefaultHistoryLimit}
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.db.Path()
}

// SetHistoryLimit changes how many history entries are retained
func (s *Store) SetHistoryLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.historyLimit = n
	}
}

func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range []string{MetaBucket, WindowStateBucket, HistoryBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		versionBytes := make([]byte, 8)
		binary.LittleEndian.PutUint64(versionBytes, CurrentSchemaVersion)
		return tx.Bucket([]byte(MetaBucket)).Put([]byte(SchemaVersionKey), versionBytes)
	})
}

// GetSchemaVersion returns the stored schema version
func (s *Store) GetSchemaVersion() (uint64, error) {
	var version uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		versionBytes := tx.Bucket([]byte(MetaBucket)).Get([]byte(SchemaVersionKey))
		if versionBytes != nil {
			version = binary.LittleEndian.Uint64(versionBytes)
		}
		return nil
	})
	return version, err
}

// Window state

// SaveWindowState stores the main window geometry
func (s *Store) SaveWindowState(ws WindowState) error {
	if ws.Width < 0 || ws.Height < 0 {
		return fmt.Errorf("invalid window size %dx%d", ws.Width, ws.Height)
	}
	ws.Updated = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := ws.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(WindowStateBucket)).Put([]byte(MainWindowKey), data)
	})
}

// LoadWindowState returns the saved geometry. ok is false when nothing has
// been saved yet.
func (s *Store) LoadWindowState() (ws WindowState, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(WindowStateBucket)).Get([]byte(MainWindowKey))
		if data == nil {
			return nil
		}
		ok = true
		return ws.UnmarshalBinary(data)
	})
	return ws, ok, err
}

// History

// AppendHistory stores entry, assigning an ID and time when missing, and
// drops the oldest entries beyond the retention limit
func (s *Store) AppendHistory(entry HistoryEntry) error {
	if entry.Kind == "" {
		return fmt.Errorf("history entry kind cannot be empty")
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	if entry.ID == "" {
		entry.ID = ulid.MustNew(ulid.Timestamp(entry.Time), ulid.DefaultEntropy()).String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(HistoryBucket))

		data, err := entry.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal history entry: %w", err)
		}
		if err := bucket.Put([]byte(entry.ID), data); err != nil {
			return fmt.Errorf("failed to store history entry: %w", err)
		}

		count := 0
		cursor := bucket.Cursor()
		for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
			count++
		}

		// keys are ULIDs, so the first key is the oldest
		for excess := count - s.historyLimit; excess > 0; excess-- {
			k, _ := cursor.First()
			if k == nil {
				break
			}
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListHistory returns up to limit entries, newest first
func (s *Store) ListHistory(limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []HistoryEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket([]byte(HistoryBucket)).Cursor()
		for k, v := cursor.Last(); k != nil && len(entries) < limit; k, v = cursor.Prev() {
			var entry HistoryEntry
			if err := entry.UnmarshalBinary(v); err != nil {
				s.logger.Warnw("Failed to unmarshal history entry", "key", string(k), "error", err)
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}
