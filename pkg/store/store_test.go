package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/database/manager"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablelabs/dusd/pkg/dusd"
)

func newTestDB(t *testing.T) database.Database {
	t.Helper()
	dbManager := manager.NewManager(t.TempDir(), nil)
	db, err := dbManager.New(manager.DefaultMemoryConfig())
	require.NoError(t, err)
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	level, _ := log.ToLevel("debug")
	s, err := New(newTestDB(t), log.NewTestLogger(level))
	require.NoError(t, err)
	return s
}

func TestStoreJournal(t *testing.T) {
	s := newTestStore(t)

	t.Run("StartsEmpty", func(t *testing.T) {
		assert.Equal(t, uint64(0), s.LastSequence())
		_, err := s.GetEvent(1)
		assert.Equal(t, database.ErrNotFound, err)
	})

	t.Run("AppendAssignsSequence", func(t *testing.T) {
		seq, err := s.AppendEvent(dusd.Event{
			Type:      dusd.EventIssued,
			Timestamp: time.Now(),
			Data:      dusd.IssueEventData{Caller: "alice", Asset: "USDC", CollateralAmount: "100000000", ReceiptAmount: "100000000"},
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), seq)

		seq, err = s.AppendEvent(dusd.Event{Type: dusd.EventRedeemed, Timestamp: time.Now()})
		require.NoError(t, err)
		assert.Equal(t, uint64(2), seq)
		assert.Equal(t, uint64(2), s.LastSequence())
	})

	t.Run("RoundTripsEntryData", func(t *testing.T) {
		entry, err := s.GetEvent(1)
		require.NoError(t, err)
		assert.Equal(t, string(dusd.EventIssued), entry.Type)

		var data dusd.IssueEventData
		require.NoError(t, json.Unmarshal(entry.Data, &data))
		assert.Equal(t, "alice", data.Caller)
		assert.Equal(t, "100000000", data.ReceiptAmount)
	})

	t.Run("ReplayWalksInOrder", func(t *testing.T) {
		var types []string
		require.NoError(t, s.Replay(1, func(entry *StoredEvent) error {
			types = append(types, entry.Type)
			return nil
		}))
		assert.Equal(t, []string{string(dusd.EventIssued), string(dusd.EventRedeemed)}, types)
	})
}

func TestStoreResumesSequence(t *testing.T) {
	db := newTestDB(t)
	level, _ := log.ToLevel("debug")
	logger := log.NewTestLogger(level)

	s, err := New(db, logger)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := s.AppendEvent(dusd.Event{Type: dusd.EventAllocated, Timestamp: time.Now()})
		require.NoError(t, err)
	}

	// A second store on the same database picks up where the first left
	// off instead of overwriting the journal.
	reopened, err := New(db, logger)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), reopened.LastSequence())

	seq, err := reopened.AppendEvent(dusd.Event{Type: dusd.EventDeallocated, Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), seq)
}

func TestStoreSnapshot(t *testing.T) {
	s := newTestStore(t)

	t.Run("EmptyStoreHasNoSnapshot", func(t *testing.T) {
		_, ok, err := s.LoadSnapshot()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		snap := dusd.Snapshot{
			Timestamp:         time.Now().UTC().Truncate(time.Second),
			TotalSupply:       "350000000",
			CirculatingSupply: "250000000",
			AmoSupply:         "100000000",
			TotalAllocated:    "0",
			CollateralValue:   "25000000000",
			CollateralUSD:     "250.00",
		}
		require.NoError(t, s.SaveSnapshot(snap))

		loaded, ok, err := s.LoadSnapshot()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, snap.TotalSupply, loaded.TotalSupply)
		assert.Equal(t, snap.CollateralUSD, loaded.CollateralUSD)
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		require.NoError(t, s.SaveSnapshot(dusd.Snapshot{TotalSupply: "0"}))
		loaded, ok, err := s.LoadSnapshot()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "0", loaded.TotalSupply)
	})
}
