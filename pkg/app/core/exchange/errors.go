package exchange

import (
	"errors"

	"github.com/uhyunpark/ledgerdex/pkg/app/core/ledger"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/registry"
)

var ErrInvalidOrder = errors.New("invalid order")

// Re-exported so callers can match every exchange failure from one package.
var (
	ErrUnknownAsset        = registry.ErrUnknownAsset
	ErrNotAuthorized       = registry.ErrNotAuthorized
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
)
