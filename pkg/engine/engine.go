package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/openvenue/matchd/pkg/book"
	"github.com/openvenue/matchd/pkg/match"
	"github.com/openvenue/matchd/pkg/metrics"
	"github.com/openvenue/matchd/pkg/settle"
	"github.com/openvenue/matchd/pkg/txlog"
	"github.com/openvenue/matchd/pkg/util"
)

// ReceiptSource reports the most recent settlement transaction, if the
// settlement client tracks one. Optional; the round log carries zero values
// otherwise.
type ReceiptSource interface {
	LastReceipt() (txID string, gasUsed uint64)
}

// Engine drives the matching loop on a fixed cadence and owns the lifecycle
// of one round: snapshot, match, settle, clear, log. Rounds are strictly
// sequential; only settlement batches within a round run concurrently.
type Engine struct {
	book       *book.Book
	dispatcher *settle.Dispatcher
	reporter   *txlog.Reporter
	receipts   ReceiptSource
	log        *zap.SugaredLogger
	clock      util.Clock
	interval   time.Duration

	// start instant of the previous round; engine state, not a global
	lastRound time.Time
}

func New(b *book.Book, d *settle.Dispatcher, r *txlog.Reporter, log *zap.SugaredLogger, clock util.Clock, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = time.Second
	}
	return &Engine{
		book:       b,
		dispatcher: d,
		reporter:   r,
		log:        log,
		clock:      clock,
		interval:   interval,
	}
}

// SetReceiptSource attaches a settlement receipt tracker for round logs.
func (e *Engine) SetReceiptSource(rs ReceiptSource) {
	e.receipts = rs
}

// Run executes rounds until the context is cancelled. A failed round is
// logged and retried on the next tick at the same fixed cadence; there is no
// backoff and a persistent failure never crashes the process.
func (e *Engine) Run(ctx context.Context) {
	e.lastRound = e.clock.Now()
	for {
		if err := e.MatchRound(ctx); err != nil {
			e.log.Errorw("round_failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-e.clock.After(e.interval):
		}
	}
}

// MatchRound performs one matching round. On any settlement failure the book
// is left untouched and no round record is emitted; the next round retries
// from a fresh snapshot.
func (e *Engine) MatchRound(ctx context.Context) error {
	now := e.clock.Now()
	receiveMs := now.Sub(e.lastRound).Milliseconds()
	e.lastRound = now

	buys := e.book.SnapshotBuys()
	sells := e.book.SnapshotSells()

	matchStart := e.clock.Now()
	res := match.Match(buys, sells)
	matchMs := e.clock.Now().Sub(matchStart).Milliseconds()
	metrics.RoundPhaseSeconds.WithLabelValues("match").Observe(float64(matchMs) / 1000)

	metrics.BookDepth.WithLabelValues("buy").Set(float64(res.RestingBuys))
	metrics.BookDepth.WithLabelValues("sell").Set(float64(res.RestingSells))

	if len(res.Fills) == 0 {
		// Absence of crossing orders is not an error; nothing to settle,
		// no round record.
		metrics.RoundsTotal.WithLabelValues("empty").Inc()
		e.log.Debugw("round_empty",
			"resting_buys", res.RestingBuys,
			"resting_sells", res.RestingSells,
			"match_ms", matchMs)
		return nil
	}

	e.log.Infow("round_matched",
		"fills", len(res.Fills),
		"total_amount", res.TotalAmount.String(),
		"match_ms", matchMs)

	postStart := e.clock.Now()
	_, err := e.dispatcher.Dispatch(ctx, res.Fills)
	postMs := e.clock.Now().Sub(postStart).Milliseconds()
	metrics.RoundPhaseSeconds.WithLabelValues("post").Observe(float64(postMs) / 1000)

	if err != nil {
		metrics.RoundsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("settle round: %w", err)
	}

	// Every order considered this round is cleared, matched or not. Leftover
	// quantity from partial fills leaves the book with the rest and must be
	// re-submitted externally if still wanted.
	e.book.Clear()

	var txID string
	var gasUsed uint64
	if e.receipts != nil {
		txID, gasUsed = e.receipts.LastReceipt()
	}

	e.reporter.Publish(txlog.RoundLog{
		Timestamp:     now,
		TotalAmount:   new(big.Int).Set(res.TotalAmount),
		FillCount:     len(res.Fills),
		TxID:          txID,
		GasUsed:       gasUsed,
		MatchTimeMs:   matchMs,
		PostTimeMs:    postMs,
		ReceiveTimeMs: receiveMs,
		RestingBuys:   res.RestingBuys,
		RestingSells:  res.RestingSells,
	})

	metrics.RoundsTotal.WithLabelValues("ok").Inc()
	metrics.FillsTotal.Add(float64(len(res.Fills)))
	amt, _ := new(big.Float).SetInt(res.TotalAmount).Float64()
	metrics.MatchedAmountTotal.Add(amt)

	e.log.Infow("round_settled",
		"fills", len(res.Fills),
		"total_amount", res.TotalAmount.String(),
		"post_ms", postMs,
		"receive_ms", receiveMs)
	return nil
}
