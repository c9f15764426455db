package txlog

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
)

// PebbleSink persists round records in a local Pebble store.
// keys: r:<8-byte big-endian sequence>
type PebbleSink struct {
	db  *pebble.DB
	seq atomic.Uint64
}

func NewPebbleSink(path string) (*PebbleSink, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	s := &PebbleSink{db: db}

	// Resume the sequence after the last persisted round.
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("r:"),
		UpperBound: []byte("r;"), // ';' is ':'+1
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	if iter.Last() && len(iter.Key()) == 10 {
		s.seq.Store(binary.BigEndian.Uint64(iter.Key()[2:]) + 1)
	}
	if err := iter.Close(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func kRound(seq uint64) []byte {
	k := make([]byte, 10)
	copy(k, "r:")
	binary.BigEndian.PutUint64(k[2:], seq)
	return k
}

func (s *PebbleSink) WriteRound(_ context.Context, rec RoundLog) error {
	val, err := encodeGob(rec)
	if err != nil {
		return fmt.Errorf("encode round: %w", err)
	}
	seq := s.seq.Add(1) - 1
	if err := s.db.Set(kRound(seq), val, pebble.Sync); err != nil {
		return fmt.Errorf("persist round %d: %w", seq, err)
	}
	return nil
}

// GetRound reads a persisted round by sequence number.
func (s *PebbleSink) GetRound(seq uint64) (RoundLog, bool, error) {
	val, closer, err := s.db.Get(kRound(seq))
	if err != nil {
		if err == pebble.ErrNotFound {
			return RoundLog{}, false, nil
		}
		return RoundLog{}, false, err
	}
	defer closer.Close()
	var out RoundLog
	if err := decodeGob(val, &out); err != nil {
		return RoundLog{}, false, fmt.Errorf("decode round %d: %w", seq, err)
	}
	return out, true, nil
}

func (s *PebbleSink) Close() error { return s.db.Close() }

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

var _ Sink = (*PebbleSink)(nil)
