package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/openvenue/matchd/pkg/book"
	"github.com/openvenue/matchd/pkg/match"
	"github.com/openvenue/matchd/pkg/settle"
	"github.com/openvenue/matchd/pkg/txlog"
	"github.com/openvenue/matchd/pkg/util"
)

const testMnemonic = "test test test test test test test test test test test junk"

type stubClient struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (c *stubClient) SubmitBatch(_ context.Context, _ *settle.Signer, _ []match.Fill) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail {
		return errors.New("settlement unavailable")
	}
	return nil
}

func (c *stubClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newTestEngine(t *testing.T, client settle.Client) (*Engine, *book.Book, *txlog.Reporter) {
	t.Helper()
	pool, err := settle.NewPool(testMnemonic, 2)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	log := zap.NewNop().Sugar()
	d := settle.NewDispatcher(client, pool, 2, 3, 0, log)
	r := txlog.NewReporter(nil, 16, log)
	t.Cleanup(r.Close)

	b := book.New()
	e := New(b, d, r, log, util.RealClock{}, time.Second)
	e.lastRound = time.Now()
	return e, b, r
}

func addOrder(t *testing.T, b *book.Book, id string, side book.Side, price, amount int64) {
	t.Helper()
	if !b.Add(&book.Order{ID: id, Side: side, Price: price, Amount: big.NewInt(amount)}) {
		t.Fatalf("failed to add order %s", id)
	}
}

func TestMatchRoundSettlesAndClears(t *testing.T) {
	client := &stubClient{}
	e, b, r := newTestEngine(t, client)

	addOrder(t, b, "0xb1", book.Buy, 100, 5)
	addOrder(t, b, "0xs1", book.Sell, 95, 4)

	if err := e.MatchRound(context.Background()); err != nil {
		t.Fatalf("round: %v", err)
	}

	if client.callCount() != 1 {
		t.Errorf("settlement calls = %d, want 1", client.callCount())
	}
	buys, sells := b.Depth()
	if buys != 0 || sells != 0 {
		t.Errorf("book not cleared: %d buys, %d sells", buys, sells)
	}
	latest, ok := r.Latest()
	if !ok {
		t.Fatal("no round record emitted")
	}
	if latest.FillCount != 1 || latest.TotalAmount.Int64() != 4 {
		t.Errorf("round record = %+v, want 1 fill of 4", latest)
	}
}

// Round atomicity: a failed batch leaves the book untouched and emits no
// round record.
func TestMatchRoundFailureLeavesBookIntact(t *testing.T) {
	client := &stubClient{fail: true}
	e, b, r := newTestEngine(t, client)

	addOrder(t, b, "0xb1", book.Buy, 100, 5)
	addOrder(t, b, "0xs1", book.Sell, 95, 4)

	if err := e.MatchRound(context.Background()); err == nil {
		t.Fatal("expected round error")
	}

	buys, sells := b.Depth()
	if buys != 1 || sells != 1 {
		t.Errorf("book changed on failed round: %d buys, %d sells", buys, sells)
	}
	if _, ok := r.Latest(); ok {
		t.Error("round record emitted for failed round")
	}
}

func TestMatchRoundNoFillsSkipsSettlement(t *testing.T) {
	client := &stubClient{}
	e, b, r := newTestEngine(t, client)

	// Resting interest that does not cross.
	addOrder(t, b, "0xb1", book.Buy, 90, 5)
	addOrder(t, b, "0xs1", book.Sell, 100, 4)

	if err := e.MatchRound(context.Background()); err != nil {
		t.Fatalf("empty round must succeed: %v", err)
	}
	if client.callCount() != 0 {
		t.Errorf("settlement called %d times with no fills", client.callCount())
	}
	if _, ok := r.Latest(); ok {
		t.Error("round record emitted for empty round")
	}
	// Non-crossing orders stay resting; the book is only cleared after a
	// settled round.
	buys, sells := b.Depth()
	if buys != 1 || sells != 1 {
		t.Errorf("book changed on empty round: %d buys, %d sells", buys, sells)
	}
}

// Every round leaves a trace in the log, crossing interest or not.
func TestMatchRoundEmptyRoundLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core).Sugar()

	pool, err := settle.NewPool(testMnemonic, 2)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	d := settle.NewDispatcher(&stubClient{}, pool, 2, 3, 0, log)
	r := txlog.NewReporter(nil, 16, log)
	t.Cleanup(r.Close)

	b := book.New()
	e := New(b, d, r, log, util.RealClock{}, time.Second)
	e.lastRound = time.Now()

	addOrder(t, b, "0xb1", book.Buy, 90, 5)
	addOrder(t, b, "0xs1", book.Sell, 100, 4)

	if err := e.MatchRound(context.Background()); err != nil {
		t.Fatalf("empty round must succeed: %v", err)
	}
	if logs.FilterMessage("round_empty").Len() != 1 {
		t.Errorf("empty round produced no log entry; got %d entries", logs.Len())
	}
}

func TestMatchRoundEmptyBook(t *testing.T) {
	client := &stubClient{}
	e, _, _ := newTestEngine(t, client)

	if err := e.MatchRound(context.Background()); err != nil {
		t.Fatalf("empty book round must succeed: %v", err)
	}
	if client.callCount() != 0 {
		t.Errorf("settlement called on empty book")
	}
}

// A failed round retries against a fresh snapshot once settlement recovers.
func TestRoundRetryAfterRecovery(t *testing.T) {
	client := &stubClient{fail: true}
	e, b, _ := newTestEngine(t, client)

	addOrder(t, b, "0xb1", book.Buy, 100, 5)
	addOrder(t, b, "0xs1", book.Sell, 95, 4)

	if err := e.MatchRound(context.Background()); err == nil {
		t.Fatal("expected first round to fail")
	}

	client.mu.Lock()
	client.fail = false
	client.mu.Unlock()

	if err := e.MatchRound(context.Background()); err != nil {
		t.Fatalf("retry round: %v", err)
	}
	buys, sells := b.Depth()
	if buys != 0 || sells != 0 {
		t.Errorf("book not cleared after recovery: %d buys, %d sells", buys, sells)
	}
}
