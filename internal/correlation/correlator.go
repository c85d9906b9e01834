package correlation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Eigen-Consulting/iLEAPP/internal/common"
	"github.com/Eigen-Consulting/iLEAPP/internal/model"
	"github.com/Eigen-Consulting/iLEAPP/internal/storage"
)

// DefaultQueryTimeout bounds the time spent probing one database for one file.
const DefaultQueryTimeout = 5 * time.Second

// ErrorHandler receives database failures that are not plain "no match".
// Each broken database is reported once per Correlator.
type ErrorHandler func(err error)

// Correlator matches candidate files against a pool of application databases.
// It is safe for concurrent use.
type Correlator struct {
	q            storage.Querier
	onError      ErrorHandler
	broken       map[string]struct{}
	signatures   []Signature
	queryTimeout time.Duration
	mu           sync.Mutex
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithQueryTimeout sets the per-database probe timeout. Zero disables it.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Correlator) {
		c.queryTimeout = d
	}
}

// WithSignatures replaces the signature table. Order is priority.
func WithSignatures(sigs []Signature) Option {
	return func(c *Correlator) {
		c.signatures = append([]Signature(nil), sigs...)
	}
}

// WithErrorHandler registers a sink for database failures.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Correlator) {
		c.onError = h
	}
}

// New creates a Correlator reading through q.
func New(q storage.Querier, opts ...Option) *Correlator {
	c := &Correlator{
		q:            q,
		signatures:   DefaultSignatures(),
		queryTimeout: DefaultQueryTimeout,
		broken:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Signatures returns a copy of the signature table.
func (c *Correlator) Signatures() []Signature {
	return append([]Signature(nil), c.signatures...)
}

// Recognize returns the index of the first signature that claims dbPath, or -1.
func (c *Correlator) Recognize(dbPath string) int {
	for i, sig := range c.signatures {
		if sig.Recognizes(dbPath) {
			return i
		}
	}
	return -1
}

// Correlate searches pool for a database that references filename. It returns
// the first hit by signature priority; database failures count as no match.
func (c *Correlator) Correlate(ctx context.Context, filename string, pool []string) (*model.DatabaseContext, bool) {
	dbs := filterPool(pool, c.signatures)
	if len(dbs) == 0 {
		return nil, false
	}

	bySignature := make([][]string, len(c.signatures))
	for _, db := range dbs {
		if i := c.Recognize(db); i >= 0 {
			bySignature[i] = append(bySignature[i], db)
		}
	}

	target := NewTarget(filename)
	logger := common.Logger(ctx)

	for i, sig := range c.signatures {
		for _, db := range bySignature[i] {
			if ctx.Err() != nil {
				return nil, false
			}
			if c.isBroken(db) {
				continue
			}

			dc, err := c.probe(ctx, sig, db, target)
			if err != nil {
				if common.IsNoMatch(err) {
					logger.Debug("No database match",
						"stage", "correlate", "path", db, "signature", sig.Name, "file", target.Name, "reason", err)
					continue
				}
				c.markBroken(db, err)
				logger.Warn("Database probe failed",
					"stage", "correlate", "path", db, "signature", sig.Name, "error", err)
				continue
			}

			dc.Boost = sig.Boost
			dc.Confidence = sig.Confidence
			logger.Debug("Database match",
				"stage", "correlate", "path", db, "signature", sig.Name, "file", target.Name, "reference", dc.Reference)
			return dc, true
		}
	}
	return nil, false
}

func (c *Correlator) probe(ctx context.Context, sig Signature, db string, target Target) (*model.DatabaseContext, error) {
	if sig.lookup == nil {
		return nil, common.ErrNoMatch
	}
	if c.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
	}

	if len(sig.Tables) > 0 {
		found := false
		for _, table := range sig.Tables {
			ok, err := c.q.TableExists(ctx, db, table)
			if err != nil {
				return nil, err
			}
			if ok {
				found = true
				break
			}
		}
		if !found {
			return nil, common.ErrTableMissing
		}
	}

	dc, err := sig.lookup(ctx, probe{q: c.q, dbPath: db, target: target, epoch: sig.Epoch})
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, common.ErrNoMatch
	}
	return dc, nil
}

func (c *Correlator) isBroken(db string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.broken[db]
	return ok
}

// markBroken skips db for the rest of this Correlator's life.
// Timeouts and cancellation are not recorded.
func (c *Correlator) markBroken(db string, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return
	}

	c.mu.Lock()
	_, seen := c.broken[db]
	c.broken[db] = struct{}{}
	c.mu.Unlock()

	if !seen && c.onError != nil {
		c.onError(common.NewStageError("correlate", db, err))
	}
}

// Broken returns the number of databases skipped after a failure.
func (c *Correlator) Broken() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.broken)
}
