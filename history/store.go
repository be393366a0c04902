// Package history provides a persistent audit log of relay outcomes using
// BadgerDB. Recording is best-effort: a failed write is logged by the caller
// and never affects the relay result.
package history

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/sponsorlabs/gasrelay/logging"
)

// Key prefix for relay entries. Keys embed a reverse timestamp so a prefix
// scan yields newest entries first.
const relayPrefix = "relay:"

// Entry is one recorded relay attempt.
type Entry struct {
	RequestID  string    `json:"requestId"`
	APIKeyName string    `json:"apiKeyName"`
	Operation  string    `json:"operation"`
	Sender     string    `json:"sender,omitempty"`
	TxHash     string    `json:"txHash,omitempty"`
	Funded     bool      `json:"funded"`
	FundingTx  string    `json:"fundingTx,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Store is a Badger-backed history log.
type Store struct {
	db     *badger.DB
	logger logging.Logger
}

// Open opens (or creates) the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	opts := badger.DefaultOptions(dbPath).
		WithLogger(nil) // Disable BadgerDB's own logging
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return &Store{
		db:     db,
		logger: logging.New("history"),
	}, nil
}

// Record appends one entry.
func (s *Store) Record(entry Entry) error {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := entryKey(entry)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(relayPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid() && len(entries) < n; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry Entry
				if err := json.Unmarshal(val, &entry); err != nil {
					// Skip undecodable entries rather than failing the scan.
					s.logger.Warnf("skipping corrupt history entry %s: %v", it.Item().Key(), err)
					return nil
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return entries, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// entryKey builds relay:<reverse-nanos>:<request-id>. The reverse timestamp
// makes lexicographic iteration newest-first.
func entryKey(entry Entry) []byte {
	reverse := uint64(math.MaxInt64 - entry.At.UnixNano())
	return []byte(fmt.Sprintf("%s%020d:%s", relayPrefix, reverse, entry.RequestID))
}
