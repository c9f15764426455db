package settle

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openvenue/matchd/pkg/match"
	"github.com/openvenue/matchd/pkg/metrics"
)

// Client is the opaque submission channel to the settlement layer. The
// identity determines which credential and sequence counter the call uses.
type Client interface {
	SubmitBatch(ctx context.Context, signer *Signer, fills []match.Fill) error
}

// BatchState tracks a batch through its submission lifecycle.
// There is no retry state: retries belong to the next round.
type BatchState int32

const (
	BatchPending BatchState = iota
	BatchSubmitted
	BatchConfirmed
	BatchFailed
)

func (s BatchState) String() string {
	switch s {
	case BatchPending:
		return "pending"
	case BatchSubmitted:
		return "submitted"
	case BatchConfirmed:
		return "confirmed"
	case BatchFailed:
		return "failed"
	}
	return "unknown"
}

// Batch is an ordered group of fills submitted in one settlement call under
// exactly one identity.
type Batch struct {
	Index  int
	Fills  []match.Fill
	Signer *Signer

	state atomic.Int32
}

func (b *Batch) State() BatchState {
	return BatchState(b.state.Load())
}

func (b *Batch) setState(s BatchState) {
	b.state.Store(int32(s))
}

// SplitBatches chunks fills sequentially into batches of at most size fills.
// The last batch may be smaller. Concatenating the chunks in order
// reconstructs the input exactly.
func SplitBatches(fills []match.Fill, size int) [][]match.Fill {
	if size <= 0 {
		size = 1
	}
	var out [][]match.Fill
	for start := 0; start < len(fills); start += size {
		end := start + size
		if end > len(fills) {
			end = len(fills)
		}
		out = append(out, fills[start:end])
	}
	return out
}

// Dispatcher fans a fill list out to the settlement layer: sequential
// chunking into fixed-size batches, identity rotation across the pool, and a
// concurrency limit on in-flight submissions so a large round cannot flood
// the settlement layer.
type Dispatcher struct {
	client       Client
	pool         *Pool
	batchSize    int
	maxInflight  int
	batchTimeout time.Duration
	log          *zap.SugaredLogger
}

func NewDispatcher(client Client, pool *Pool, batchSize, maxInflight int, batchTimeout time.Duration, log *zap.SugaredLogger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 2
	}
	if maxInflight <= 0 {
		maxInflight = 3
	}
	return &Dispatcher{
		client:       client,
		pool:         pool,
		batchSize:    batchSize,
		maxInflight:  maxInflight,
		batchTimeout: batchTimeout,
		log:          log,
	}
}

// Dispatch submits every batch and waits for all of them. It returns the
// batches (with final per-batch state) and the first error encountered, if
// any. Fills from batches that succeeded before a failure are not rolled
// back; the caller decides what a failed round means for the book.
func (d *Dispatcher) Dispatch(ctx context.Context, fills []match.Fill) ([]*Batch, error) {
	chunks := SplitBatches(fills, d.batchSize)

	batches := make([]*Batch, len(chunks))
	for i, chunk := range chunks {
		batches[i] = &Batch{Index: i, Fills: chunk, Signer: d.pool.ForBatch(i)}
	}

	g := new(errgroup.Group)
	g.SetLimit(d.maxInflight)

	for _, b := range batches {
		b := b
		g.Go(func() error {
			b.setState(BatchSubmitted)
			metrics.SettlementInflight.Inc()
			defer metrics.SettlementInflight.Dec()

			bctx := ctx
			if d.batchTimeout > 0 {
				var cancel context.CancelFunc
				bctx, cancel = context.WithTimeout(ctx, d.batchTimeout)
				defer cancel()
			}

			if err := d.client.SubmitBatch(bctx, b.Signer, b.Fills); err != nil {
				b.setState(BatchFailed)
				metrics.SettlementBatchesTotal.WithLabelValues("failed").Inc()
				d.log.Errorw("batch_submit_failed",
					"batch", b.Index,
					"fills", len(b.Fills),
					"identity", b.Signer.Address().Hex(),
					"err", err)
				return fmt.Errorf("batch %d: %w", b.Index, err)
			}

			b.setState(BatchConfirmed)
			metrics.SettlementBatchesTotal.WithLabelValues("confirmed").Inc()
			d.log.Infow("batch_confirmed",
				"batch", b.Index,
				"fills", len(b.Fills),
				"identity", b.Signer.Address().Hex())
			return nil
		})
	}

	// Wait returns after every batch completed, with the first error seen.
	err := g.Wait()
	return batches, err
}
