package crypto

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrStaleNonce = errors.New("stale nonce")

// Verifier authenticates signed actions and rejects replays. Every address
// must use strictly increasing nonces; the highest accepted one is kept in
// memory.
type Verifier struct {
	domain Domain

	mu     sync.Mutex
	nonces map[common.Address]uint64
}

func NewVerifier(domain Domain) *Verifier {
	return &Verifier{
		domain: domain,
		nonces: make(map[common.Address]uint64),
	}
}

func (v *Verifier) Domain() Domain { return v.domain }

// Verify checks sig (0x-prefixed hex) over a and consumes a's nonce.
func (v *Verifier) Verify(a Action, sig string) error {
	raw, err := DecodeSignature(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if err := v.domain.Verify(a, raw); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	signer, nonce := a.Signer(), a.nonce()
	if last, ok := v.nonces[signer]; ok && nonce <= last {
		return fmt.Errorf("%w: %d <= %d", ErrStaleNonce, nonce, last)
	}
	v.nonces[signer] = nonce
	return nil
}
