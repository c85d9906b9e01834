package fingerprint

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestIndex_FingerprintMatchesSHA256(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte("voice memo "), 10000) // spans several chunks
	p := writeFile(t, dir, "a.m4a", data)

	ix := NewIndex(Options{ChunkSize: 1024})
	got, err := ix.Fingerprint(context.Background(), p)
	require.NoError(t, err)

	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestIndex_IdenticalContentDifferentPaths(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "Documents/rec1.caf", []byte("same bytes"))
	b := writeFile(t, dir, "Documents/Recordings/rec1_copy.caf", []byte("same bytes"))

	ix := NewIndex(Options{})
	ha, err := ix.Fingerprint(context.Background(), a)
	require.NoError(t, err)
	hb, err := ix.Fingerprint(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.False(t, ix.CheckAndRecord(ha))
	assert.True(t, ix.CheckAndRecord(hb))
	assert.Equal(t, 1, ix.Len())
}

func TestIndex_UnreadableFile(t *testing.T) {
	ix := NewIndex(Options{})
	got, err := ix.Fingerprint(context.Background(), filepath.Join(t.TempDir(), "missing.m4a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnreadable)
	assert.Empty(t, got)

	// An empty hash never suppresses a record.
	assert.False(t, ix.IsDuplicate(got))
	assert.False(t, ix.CheckAndRecord(got))
	assert.False(t, ix.CheckAndRecord(got))
	assert.Equal(t, 0, ix.Len())
}

func TestIndex_RecordAndReset(t *testing.T) {
	ix := NewIndex(Options{})
	assert.False(t, ix.IsDuplicate("abc"))
	ix.Record("abc")
	ix.Record("")
	assert.True(t, ix.IsDuplicate("abc"))
	assert.Equal(t, 1, ix.Len())

	ix.Reset()
	assert.False(t, ix.IsDuplicate("abc"))
	assert.Equal(t, 0, ix.Len())
}

func TestIndex_MaxBytes(t *testing.T) {
	dir := t.TempDir()
	head := bytes.Repeat([]byte{1}, 64)
	a := writeFile(t, dir, "a.bin", append(append([]byte{}, head...), 2, 2, 2))
	b := writeFile(t, dir, "b.bin", append(append([]byte{}, head...), 3, 3, 3))
	c := writeFile(t, dir, "c.bin", append(append([]byte{}, head...), 3, 3))
	short := writeFile(t, dir, "short.bin", []byte{9})

	ix := NewIndex(Options{MaxBytes: 64})
	ctx := context.Background()

	ha, err := ix.Fingerprint(ctx, a)
	require.NoError(t, err)
	hb, err := ix.Fingerprint(ctx, b)
	require.NoError(t, err)
	hc, err := ix.Fingerprint(ctx, c)
	require.NoError(t, err)

	// Same prefix and size collapse; different size does not.
	assert.Equal(t, ha, hb)
	assert.NotEqual(t, ha, hc)

	// Files under the bound are hashed in full.
	hs, err := ix.Fingerprint(ctx, short)
	require.NoError(t, err)
	sum := sha256.Sum256([]byte{9})
	assert.Equal(t, hex.EncodeToString(sum[:]), hs)
}

func TestIndex_CancelledContext(t *testing.T) {
	p := writeFile(t, t.TempDir(), "a.wav", []byte("data"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := NewIndex(Options{}).Fingerprint(ctx, p)
	require.Error(t, err)
	assert.Empty(t, got)
}

func TestIndex_CheckAndRecordConcurrent(t *testing.T) {
	ix := NewIndex(Options{})

	var firsts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !ix.CheckAndRecord("same") {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), firsts.Load())
}
