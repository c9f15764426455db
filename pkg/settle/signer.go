package settle

import (
	"crypto/ecdsa"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is one submitting identity: a secp256k1 key pair plus the identity's
// own transaction sequence counter on the settlement layer. Each identity
// sequences independently, which is what makes parallel batch submission
// possible at all.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	address    common.Address

	seq atomic.Uint64
}

// NewSigner wraps an existing secp256k1 private key.
func NewSigner(privateKey *ecdsa.PrivateKey) (*Signer, error) {
	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}
	return &Signer{
		privateKey: privateKey,
		publicKey:  publicKey,
		address:    crypto.PubkeyToAddress(*publicKey),
	}, nil
}

// FromPrivateKeyHex creates a Signer from a hex-encoded private key
// ("0x1234..." or "1234...", 64 hex chars).
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	if len(hexKey) >= 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewSigner(privateKey)
}

// Address returns the address derived from the public key.
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKey exposes the raw key for transaction signing.
// Keep it out of logs.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey {
	return s.privateKey
}

// SetSequence seeds the sequence counter, normally from the settlement
// layer's pending count at startup.
func (s *Signer) SetSequence(n uint64) {
	s.seq.Store(n)
}

// NextSequence claims the next transaction sequence number for this identity.
func (s *Signer) NextSequence() uint64 {
	return s.seq.Add(1) - 1
}
