package settle

import (
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

// Pool is a fixed set of submitting identities: one primary plus K
// secondaries, all derived from the same mnemonic. Batch index 0 submits
// through the primary, indices 1..K through secondary 1..K, and anything
// beyond K wraps back to the primary.
type Pool struct {
	primary     *Signer
	secondaries []*Signer
}

// NewPool derives 1+secondaries identities from a BIP-39 style mnemonic.
// The seed is PBKDF2-SHA512 over the mnemonic (2048 rounds, "mnemonic" salt);
// child keys are keccak-derived from the seed by index.
func NewPool(mnemonic string, secondaries int) (*Pool, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return nil, fmt.Errorf("empty mnemonic")
	}
	if secondaries < 0 {
		return nil, fmt.Errorf("secondary signer count must be >= 0, got %d", secondaries)
	}

	seed := pbkdf2.Key([]byte(mnemonic), []byte("mnemonic"), 2048, 64, sha512.New)

	primary, err := deriveSigner(seed, 0)
	if err != nil {
		return nil, fmt.Errorf("derive primary identity: %w", err)
	}

	pool := &Pool{primary: primary}
	for i := 1; i <= secondaries; i++ {
		s, err := deriveSigner(seed, uint32(i))
		if err != nil {
			return nil, fmt.Errorf("derive identity %d: %w", i, err)
		}
		pool.secondaries = append(pool.secondaries, s)
	}
	return pool, nil
}

func deriveSigner(seed []byte, index uint32) (*Signer, error) {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)

	// Rehash until the candidate is a valid secp256k1 scalar. In practice the
	// first keccak output almost always is.
	d := crypto.Keccak256(seed, idx[:])
	for {
		key, err := crypto.ToECDSA(d)
		if err == nil {
			return NewSigner(key)
		}
		d = crypto.Keccak256(d)
	}
}

// Primary returns the pool's main submitting identity.
func (p *Pool) Primary() *Signer {
	return p.primary
}

// Size returns the total identity count (primary included).
func (p *Pool) Size() int {
	return 1 + len(p.secondaries)
}

// ForBatch assigns an identity to a batch. The assignment is a pure function
// of the batch index, independent of batch content.
func (p *Pool) ForBatch(index int) *Signer {
	if index >= 1 && index <= len(p.secondaries) {
		return p.secondaries[index-1]
	}
	return p.primary
}

// All returns every identity, primary first.
func (p *Pool) All() []*Signer {
	out := make([]*Signer, 0, p.Size())
	out = append(out, p.primary)
	out = append(out, p.secondaries...)
	return out
}

// Addresses returns every identity address, primary first. Logged at startup
// so operators can fund the submitting accounts.
func (p *Pool) Addresses() []common.Address {
	out := make([]common.Address, 0, p.Size())
	for _, s := range p.All() {
		out = append(out, s.Address())
	}
	return out
}
