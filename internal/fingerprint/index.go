// Package fingerprint hashes file content and tracks which content bodies
// have already been emitted during an aggregation run.
//
// The index is shared by every source in a run so that the same bytes reached
// through a second application's container are recognised as duplicates.
// An empty fingerprint never counts as a duplicate: a file that cannot be read
// simply opts out of deduplication.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Eigen-Consulting/iLEAPP/internal/common"
)

// DefaultChunkSize is the read buffer used while streaming a file through the digest.
const DefaultChunkSize = 32 * 1024

// Options tune hashing.
type Options struct {
	// MaxBytes bounds how much of a file is hashed. Larger files are
	// fingerprinted over their first MaxBytes plus their size. 0 means no bound.
	MaxBytes int64
	// Timeout bounds the time spent hashing one file. 0 means no bound.
	Timeout time.Duration
	// ChunkSize overrides DefaultChunkSize.
	ChunkSize int
}

// Index is a process-wide set of seen content hashes for one run.
type Index struct {
	seen map[string]struct{}
	opts Options
	mu   sync.Mutex
}

// NewIndex returns an empty index.
func NewIndex(opts Options) *Index {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Index{
		seen: make(map[string]struct{}),
		opts: opts,
	}
}

// Fingerprint streams the file at path through SHA-256 and returns the hex digest.
// On any open or read failure it returns "" together with the error.
func (ix *Index) Fingerprint(ctx context.Context, path string) (string, error) {
	if ix.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ix.opts.Timeout)
		defer cancel()
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", common.ErrUnreadable, path, err)
	}
	defer file.Close()

	h := sha256.New()
	reader := io.Reader(&ctxReader{ctx: ctx, r: file})

	if ix.opts.MaxBytes > 0 {
		info, statErr := file.Stat()
		if statErr != nil {
			return "", fmt.Errorf("%w: stat %s: %v", common.ErrUnreadable, path, statErr)
		}
		if size := info.Size(); size > ix.opts.MaxBytes {
			// Partial digests live in their own namespace so they can never
			// collide with a full digest of a short file.
			_, _ = h.Write([]byte("partial"))
			_, _ = h.Write([]byte{0})
			_, _ = h.Write([]byte(strconv.FormatInt(size, 10)))
			_, _ = h.Write([]byte{0})
			reader = io.LimitReader(reader, ix.opts.MaxBytes)
		}
	}

	buf := make([]byte, ix.opts.ChunkSize)
	if _, err := io.CopyBuffer(h, reader, buf); err != nil {
		return "", fmt.Errorf("%w: hash %s: %v", common.ErrUnreadable, path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsDuplicate reports whether hash was already recorded. "" is never a duplicate.
func (ix *Index) IsDuplicate(hash string) bool {
	if hash == "" {
		return false
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.seen[hash]
	return ok
}

// Record marks hash as seen. "" is ignored.
func (ix *Index) Record(hash string) {
	if hash == "" {
		return
	}
	ix.mu.Lock()
	ix.seen[hash] = struct{}{}
	ix.mu.Unlock()
}

// CheckAndRecord atomically records hash and reports whether it had been
// seen before. Concurrent callers with the same hash get exactly one false.
func (ix *Index) CheckAndRecord(hash string) (duplicate bool) {
	if hash == "" {
		return false
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.seen[hash]; ok {
		return true
	}
	ix.seen[hash] = struct{}{}
	return false
}

// Reset forgets every recorded hash. Call at the start of each run.
func (ix *Index) Reset() {
	ix.mu.Lock()
	ix.seen = make(map[string]struct{})
	ix.mu.Unlock()
}

// Len returns the number of distinct hashes recorded.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.seen)
}

// ctxReader aborts a copy once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
