// Package peerstore persists the tag a client last paired with, so the
// client can resume the session after a restart.
package peerstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// ErrNotFound is returned when no peer is stored.
var ErrNotFound = errors.New("peerstore: no peer stored")

const (
	sessionBucket = "session"
	peerKey       = "peer"
)

// Record is the stored peer.
type Record struct {
	Peer     string    `json:"peer"`
	LastSeen time.Time `json:"last_seen"`
}

// Store is a bbolt-backed peer store.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open peer database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(sessionBucket)); err != nil {
			return fmt.Errorf("create session bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Load returns the stored record.
func (s *Store) Load() (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(sessionBucket)).Get([]byte(peerKey))
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode peer record: %w", err)
		}
		return nil
	})
	return rec, err
}

// LoadPeer returns the stored peer address.
func (s *Store) LoadPeer() (string, error) {
	rec, err := s.Load()
	return rec.Peer, err
}

// SavePeer stores peer as last seen at at.
func (s *Store) SavePeer(peer string, at time.Time) error {
	data, err := json.Marshal(Record{Peer: peer, LastSeen: at.UTC()})
	if err != nil {
		return fmt.Errorf("encode peer record: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Put([]byte(peerKey), data)
	})
}

// ClearPeer forgets the stored peer.
func (s *Store) ClearPeer() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionBucket)).Delete([]byte(peerKey))
	})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
