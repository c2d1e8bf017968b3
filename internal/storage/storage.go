// Package storage persists booking assessments and guest activity history.
//
// Assessments live in a BoltDB file keyed by creation time so recent listings
// and time-range queries are cursor scans. Guest attempt and device history can
// be kept in redis so several scoring processes share it.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"securestay-risk/internal/assess"
)

const (
	dbFileName = "securestay-risk.db"

	assessmentsBucket = "assessments"      // time-ordered key -> assessment JSON
	indexBucket       = "assessment_index" // assessment id -> time-ordered key
)

// ErrNotFound is returned when an assessment does not exist.
var ErrNotFound = errors.New("assessment not found")

// Store provides persistent storage for assessments using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database under dataPath and ensures the buckets exist.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(assessmentsBucket)); err != nil {
			return fmt.Errorf("create assessments bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(indexBucket)); err != nil {
			return fmt.Errorf("create index bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is safe.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StoreAssessment writes an assessment and its id index entry in one transaction.
func (s *Store) StoreAssessment(a *assess.Assessment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	key := assessmentKey(a.CreatedAt, a.ID)

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(assessmentsBucket)).Put(key, data); err != nil {
			return err
		}
		return tx.Bucket([]byte(indexBucket)).Put(a.ID[:], key)
	})
}

// GetAssessment looks an assessment up by id.
func (s *Store) GetAssessment(id uuid.UUID) (*assess.Assessment, error) {
	var a assess.Assessment
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(indexBucket)).Get(id[:])
		if key == nil {
			return ErrNotFound
		}
		data := tx.Bucket([]byte(assessmentsBucket)).Get(key)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Recent returns up to limit assessments, newest first.
func (s *Store) Recent(limit int) ([]assess.Assessment, error) {
	var out []assess.Assessment
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(assessmentsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var a assess.Assessment
			if err := json.Unmarshal(v, &a); err != nil {
				continue // Skip malformed records
			}
			out = append(out, a)
		}
		return nil
	})
	return out, err
}

// Between returns assessments created in [start, end], oldest first.
func (s *Store) Between(start, end time.Time) ([]assess.Assessment, error) {
	var out []assess.Assessment
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(assessmentsBucket)).Cursor()
		startKey := timePrefix(start)
		endKey := timePrefix(end)

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k[:len(endKey)], endKey) <= 0; k, v = c.Next() {
			var a assess.Assessment
			if err := json.Unmarshal(v, &a); err != nil {
				continue
			}
			out = append(out, a)
		}
		return nil
	})
	return out, err
}

// Count returns the number of stored assessments.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(assessmentsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

// Keys sort by creation time: 20-digit zero padded unix nanos, then the id.
func assessmentKey(t time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%020d_%s", t.UnixNano(), id))
}

// timePrefix clamps times before the unix epoch, whose nanosecond form is undefined.
func timePrefix(t time.Time) []byte {
	if t.Before(time.Unix(0, 0)) {
		t = time.Unix(0, 0)
	}
	return []byte(fmt.Sprintf("%020d", t.UnixNano()))
}
