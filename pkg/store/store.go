// Package store persists the engine's event journal and periodic supply
// snapshots.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/log"

	"github.com/stablelabs/dusd/pkg/dusd"
)

var (
	keyLastSeq  = []byte("last_seq")
	keySnapshot = []byte("snapshot")
)

// Store journals accounting events and keeps the latest supply snapshot.
// Events are keyed by a monotonic sequence number so replay order matches
// emission order.
type Store struct {
	db     database.Database
	logger log.Logger

	seq uint64
	mu  sync.Mutex
}

// StoredEvent is the journal entry for one accounting event.
type StoredEvent struct {
	Sequence  uint64          `json:"sequence"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New opens a store on the given database, resuming the sequence counter
// from the previous run.
func New(db database.Database, logger log.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger}

	val, err := db.Get(keyLastSeq)
	if err != nil {
		if err == database.ErrNotFound {
			logger.Info("No previous journal found, starting fresh")
			return s, nil
		}
		return nil, err
	}
	if len(val) >= 8 {
		s.seq = binary.BigEndian.Uint64(val)
		logger.Info("Journal resumed", "lastSeq", s.seq)
	}
	return s, nil
}

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("event:%016d", seq))
}

// AppendEvent journals an event and advances the sequence counter
// atomically.
func (s *Store) AppendEvent(ev dusd.Event) (uint64, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.seq + 1
	entry := StoredEvent{
		Sequence:  seq,
		Type:      string(ev.Type),
		Timestamp: ev.Timestamp.Unix(),
		Data:      data,
	}
	value, err := json.Marshal(entry)
	if err != nil {
		return 0, err
	}

	batch := s.db.NewBatch()
	defer batch.Reset()

	if err := batch.Put(eventKey(seq), value); err != nil {
		return 0, err
	}
	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, seq)
	if err := batch.Put(keyLastSeq, seqBytes); err != nil {
		return 0, err
	}
	if err := batch.Write(); err != nil {
		return 0, err
	}

	s.seq = seq
	return seq, nil
}

// LastSequence returns the highest journaled sequence number.
func (s *Store) LastSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// GetEvent loads one journal entry by sequence number.
func (s *Store) GetEvent(seq uint64) (*StoredEvent, error) {
	val, err := s.db.Get(eventKey(seq))
	if err != nil {
		return nil, err
	}
	var entry StoredEvent
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Replay walks journal entries from sequence `from` upward, stopping at
// the first gap or when fn returns an error.
func (s *Store) Replay(from uint64, fn func(*StoredEvent) error) error {
	for seq := from; ; seq++ {
		entry, err := s.GetEvent(seq)
		if err != nil {
			if err == database.ErrNotFound {
				return nil
			}
			return err
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
}

// SaveSnapshot overwrites the stored supply snapshot.
func (s *Store) SaveSnapshot(snap dusd.Snapshot) error {
	value, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.db.Put(keySnapshot, value)
}

// LoadSnapshot returns the stored snapshot, or ok=false when none has
// been saved yet.
func (s *Store) LoadSnapshot() (dusd.Snapshot, bool, error) {
	val, err := s.db.Get(keySnapshot)
	if err != nil {
		if err == database.ErrNotFound {
			return dusd.Snapshot{}, false, nil
		}
		return dusd.Snapshot{}, false, err
	}
	var snap dusd.Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return dusd.Snapshot{}, false, err
	}
	return snap, true, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
