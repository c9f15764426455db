package txlog

import (
	"context"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RoundLog is the single record emitted for one successful matching round.
// Immutable once published.
type RoundLog struct {
	Timestamp     time.Time `json:"timestamp"`
	TotalAmount   *big.Int  `json:"totalAmount"`
	FillCount     int       `json:"fillCount"`
	TxID          string    `json:"txId"`
	GasUsed       uint64    `json:"gasUsed"`
	MatchTimeMs   int64     `json:"matchTimeMs"`
	PostTimeMs    int64     `json:"postTimeMs"`
	ReceiveTimeMs int64     `json:"receiveTimeMs"`
	RestingBuys   int       `json:"restingBuys"`
	RestingSells  int       `json:"restingSells"`
}

// Sink persists round records. Sink errors are operational noise, never a
// reason to fail a round that already settled.
type Sink interface {
	WriteRound(ctx context.Context, rec RoundLog) error
	Close() error
}

// Reporter decouples the matching path from log persistence: Publish never
// blocks, a background goroutine drains the channel into the sinks.
type Reporter struct {
	ch  chan RoundLog
	log *zap.SugaredLogger

	mu        sync.RWMutex
	sinks     []Sink
	latest    RoundLog
	hasLatest bool

	done chan struct{}
}

func NewReporter(sinks []Sink, buffer int, log *zap.SugaredLogger) *Reporter {
	if buffer <= 0 {
		buffer = 1024
	}
	r := &Reporter{
		ch:    make(chan RoundLog, buffer),
		sinks: sinks,
		log:   log,
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// AddSink registers an additional sink. Safe to call while running.
func (r *Reporter) AddSink(s Sink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, s)
	r.mu.Unlock()
}

// Publish hands a round record to the background writer. If the buffer is
// full the record is dropped with a log line; the round itself already
// succeeded and must not be failed retroactively.
func (r *Reporter) Publish(rec RoundLog) {
	r.mu.Lock()
	r.latest = rec
	r.hasLatest = true
	r.mu.Unlock()

	select {
	case r.ch <- rec:
	default:
		r.log.Errorw("round_log_dropped", "fill_count", rec.FillCount, "total_amount", rec.TotalAmount.String())
	}
}

// Latest returns the most recently published round record, for the API.
func (r *Reporter) Latest() (RoundLog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.hasLatest
}

func (r *Reporter) run() {
	defer close(r.done)
	for rec := range r.ch {
		r.mu.RLock()
		sinks := append([]Sink(nil), r.sinks...)
		r.mu.RUnlock()
		for _, s := range sinks {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.WriteRound(ctx, rec); err != nil {
				r.log.Errorw("round_log_sink_failed", "err", err)
			}
			cancel()
		}
	}
}

// Close drains pending records and closes the sinks.
func (r *Reporter) Close() {
	close(r.ch)
	<-r.done
	r.mu.RLock()
	sinks := append([]Sink(nil), r.sinks...)
	r.mu.RUnlock()
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			r.log.Errorw("round_log_sink_close_failed", "err", err)
		}
	}
}
