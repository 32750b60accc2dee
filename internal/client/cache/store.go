package cache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

const messageBucket = "messages"

// DefaultLimit is how many of the most recent messages are kept.
const DefaultLimit = 100

// Store is a BoltDB-backed mirror of the room's recent messages.
type Store struct {
	db    *bbolt.DB
	limit int
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string, limit int) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	store := &Store{db: db, limit: limit}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the mirror with the last limit entries of msgs.
func (s *Store) Save(msgs []domain.ChatMessage) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("cache is not configured")
	}
	if len(msgs) > s.limit {
		msgs = msgs[len(msgs)-s.limit:]
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(messageBucket)); err != nil && err != bbolt.ErrBucketNotFound {
			return fmt.Errorf("reset message bucket: %w", err)
		}
		bucket, err := tx.CreateBucket([]byte(messageBucket))
		if err != nil {
			return fmt.Errorf("create message bucket: %w", err)
		}
		for i, m := range msgs {
			payload, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("marshal message: %w", err)
			}
			if err := bucket.Put(seqKey(uint64(i)), payload); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns the mirrored messages oldest first.
func (s *Store) Load() ([]domain.ChatMessage, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("cache is not configured")
	}

	var out []domain.ChatMessage
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(messageBucket))
		if bucket == nil {
			return fmt.Errorf("message bucket is missing")
		}
		return bucket.ForEach(func(_, v []byte) error {
			var m domain.ChatMessage
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(messageBucket)); err != nil {
			return fmt.Errorf("create message bucket: %w", err)
		}
		return nil
	})
}

func seqKey(i uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, i)
	return key
}
