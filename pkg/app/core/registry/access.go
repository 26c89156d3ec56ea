package registry

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNotAuthorized = errors.New("not authorized")

// Policy decides who may perform administrative actions. It runs before any
// registry mutation and knows nothing about matching.
type Policy interface {
	Authorize(caller common.Address, action string) error
}

// OwnerPolicy grants every administrative action to a single owner address.
type OwnerPolicy struct {
	Owner common.Address
}

func (p OwnerPolicy) Authorize(caller common.Address, action string) error {
	if caller != p.Owner {
		return fmt.Errorf("%w: %s may not %s", ErrNotAuthorized, caller.Hex(), action)
	}
	return nil
}
