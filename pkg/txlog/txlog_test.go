package txlog

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type memSink struct {
	mu   sync.Mutex
	recs []RoundLog
	fail bool
}

func (m *memSink) WriteRound(_ context.Context, rec RoundLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("sink down")
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memSink) Close() error { return nil }

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func rec(fills int) RoundLog {
	return RoundLog{
		Timestamp:   time.Now(),
		TotalAmount: big.NewInt(100),
		FillCount:   fills,
	}
}

func TestReporterDeliversToSinks(t *testing.T) {
	sink := &memSink{}
	r := NewReporter([]Sink{sink}, 8, zap.NewNop().Sugar())

	r.Publish(rec(1))
	r.Publish(rec(2))
	r.Close()

	if got := sink.count(); got != 2 {
		t.Fatalf("sink received %d records, want 2", got)
	}
}

func TestReporterPublishNeverBlocks(t *testing.T) {
	// No consumer keeps up: buffer of 1 and a sink that fails instantly.
	sink := &memSink{fail: true}
	r := NewReporter([]Sink{sink}, 1, zap.NewNop().Sugar())
	defer r.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Publish(rec(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
}

func TestReporterLatest(t *testing.T) {
	r := NewReporter(nil, 8, zap.NewNop().Sugar())
	defer r.Close()

	if _, ok := r.Latest(); ok {
		t.Error("Latest before any publish should report false")
	}

	r.Publish(rec(3))
	latest, ok := r.Latest()
	if !ok || latest.FillCount != 3 {
		t.Errorf("Latest = %+v ok=%v, want fillCount 3", latest, ok)
	}
}

func TestPebbleSinkRoundTrip(t *testing.T) {
	sink, err := NewPebbleSink(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sink.Close()

	want := RoundLog{
		Timestamp:     time.Now().Truncate(time.Millisecond),
		TotalAmount:   big.NewInt(12345),
		FillCount:     7,
		TxID:          "0xabc",
		GasUsed:       21000,
		MatchTimeMs:   3,
		PostTimeMs:    250,
		ReceiveTimeMs: 1000,
		RestingBuys:   2,
		RestingSells:  1,
	}
	if err := sink.WriteRound(context.Background(), want); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, ok, err := sink.GetRound(0)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.TotalAmount.Cmp(want.TotalAmount) != 0 || got.FillCount != want.FillCount || got.TxID != want.TxID {
		t.Errorf("round trip mismatch: got %+v want %+v", got, want)
	}
}
