package realtimestream

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesFreshHeaderOnMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.bin")

	stream, records, err := Open(path)
	require.NoError(t, err)
	defer stream.Close()
	assert.Empty(t, records)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(headerSize), info.Size())
}

func TestAppendThenReopenRoundTripsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.bin")

	stream, _, err := Open(path)
	require.NoError(t, err)

	now := time.Now().Unix()
	rec := NewRecord("AAPL.US", now, 190.5, 1000)
	require.NoError(t, stream.Append(rec))
	require.NoError(t, stream.Close())

	stream2, records, err := Open(path)
	require.NoError(t, err)
	defer stream2.Close()

	require.Len(t, records, 1)
	assert.Equal(t, "AAPL.US", records[0].CodeString())
	assert.Equal(t, 190.5, records[0].Price)
	assert.Equal(t, now, records[0].Timestamp)
}

func TestOpenMigratesOnBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a real stream at all"), 0o644))

	stream, records, err := Open(path)
	require.NoError(t, err)
	defer stream.Close()
	assert.Empty(t, records)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(headerSize), info.Size())
}

func TestOpenDropsStaleAndNonFiniteRecordsOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.bin")
	stream, _, err := Open(path)
	require.NoError(t, err)

	fresh := NewRecord("AAPL.US", time.Now().Unix(), 100, 10)
	stale := NewRecord("MSFT.US", time.Now().Add(-60*24*time.Hour).Unix(), 100, 10)
	nonFinite := NewRecord("TSLA.US", time.Now().Unix(), math.NaN(), 10)

	require.NoError(t, stream.Append(stale))
	require.NoError(t, stream.Append(nonFinite))
	require.NoError(t, stream.Append(fresh))
	require.NoError(t, stream.Close())

	_, records, err := Open(path)
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "AAPL.US", records[0].CodeString())
}

func TestOpenDropsTruncatedTrailingRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.bin")
	stream, _, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, stream.Append(NewRecord("AAPL.US", time.Now().Unix(), 100, 10)))
	require.NoError(t, stream.Close())

	// Simulate a crash mid-write: append a few garbage bytes shorter than
	// one full record.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, records, err := Open(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
}
