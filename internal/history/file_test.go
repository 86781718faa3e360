package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Replaya/internal/config"
	"Replaya/internal/replay"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)
	return s
}

func record(id, file, status string) replay.HistoryRecord {
	return replay.HistoryRecord{
		ReplayID:   id,
		File:       file,
		Interface:  "eth0",
		Speed:      1,
		SpeedUnit:  replay.SpeedUnitMultiplier,
		Status:     status,
		StartedAt:  time.Unix(1700000000, 0),
		FinishedAt: time.Unix(1700000010, 0),
	}
}

func TestFileStoreNewestFirst(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(record("a", "one.pcap", replay.StatusCompleted)))
	require.NoError(t, s.Record(record("b", "two.pcap", replay.StatusFailed)))
	require.NoError(t, s.Record(record("c", "three.pcap", replay.StatusCompleted)))

	page, err := s.List(Query{})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	assert.Equal(t, "c", page.Entries[0].ReplayID)
	assert.Equal(t, "b", page.Entries[1].ReplayID)
	assert.Equal(t, "a", page.Entries[2].ReplayID)
}

func TestFileStoreCap(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < maxEntries+20; i++ {
		require.NoError(t, s.Record(record(fmt.Sprintf("id-%d", i), "f.pcap", replay.StatusCompleted)))
	}

	page, err := s.List(Query{})
	require.NoError(t, err)
	assert.Equal(t, maxEntries, page.Total)
	assert.Equal(t, fmt.Sprintf("id-%d", maxEntries+19), page.Entries[0].ReplayID)
}

func TestFileStoreFilters(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(record("a", "web-traffic.pcap", replay.StatusCompleted)))
	require.NoError(t, s.Record(record("b", "dns-capture.pcap", replay.StatusFailed)))
	require.NoError(t, s.Record(record("c", "WEB-replay.pcap", replay.StatusStopped)))

	page, err := s.List(Query{Search: "web"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = s.List(Query{Status: replay.StatusFailed})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "b", page.Entries[0].ReplayID)

	page, err = s.List(Query{Search: "eth0"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total, "search also matches the interface")
}

func TestFileStorePagination(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Record(record(fmt.Sprintf("id-%d", i), "f.pcap", replay.StatusCompleted)))
	}

	page, err := s.List(Query{Limit: 3, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 10, page.Total)
	require.Len(t, page.Entries, 3)
	assert.Equal(t, "id-7", page.Entries[0].ReplayID)

	page, err = s.List(Query{Offset: 50})
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
}

func TestFileStoreClear(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Record(record("a", "f.pcap", replay.StatusCompleted)))
	require.NoError(t, s.Clear())

	page, err := s.List(Query{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Entries)
}

func TestFileStoreSurvivesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))

	s, err := NewFileStore(path)
	require.NoError(t, err)

	page, err := s.List(Query{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	require.NoError(t, s.Record(record("a", "f.pcap", replay.StatusCompleted)))
	page, err = s.List(Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestNewPicksStoreType(t *testing.T) {
	s, err := New(config.HistoryConfig{Type: "file", Path: filepath.Join(t.TempDir(), "h.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = New(config.HistoryConfig{Type: "etcd"})
	assert.Error(t, err)
}
