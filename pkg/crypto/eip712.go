package crypto

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var ErrBadSignature = errors.New("bad signature")

// Domain is the EIP-712 domain separator. It keeps signatures for one
// deployment from being replayed against another.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// DefaultDomain returns the domain used by a local node
func DefaultDomain() Domain {
	return Domain{
		Name:    "LedgerDEX",
		Version: "1",
		ChainID: big.NewInt(1337),
	}
}

// Action is a signable exchange request.
type Action interface {
	// Signer is the address that must have produced the signature.
	Signer() common.Address
	nonce() uint64
	typedData() (primaryType string, fields []apitypes.Type, msg apitypes.TypedDataMessage)
}

// LimitOrder authorizes a resting order.
type LimitOrder struct {
	Trader common.Address
	Side   uint8 // 0 = buy, 1 = sell
	Ticker string
	Amount int64
	Price  int64
	Nonce  uint64
}

func (o LimitOrder) nonce() uint64          { return o.Nonce }
func (o LimitOrder) Signer() common.Address { return o.Trader }

func (o LimitOrder) typedData() (string, []apitypes.Type, apitypes.TypedDataMessage) {
	return "LimitOrder", []apitypes.Type{
			{Name: "trader", Type: "address"},
			{Name: "side", Type: "uint8"},
			{Name: "ticker", Type: "string"},
			{Name: "amount", Type: "uint256"},
			{Name: "price", Type: "uint256"},
			{Name: "nonce", Type: "uint256"},
		}, apitypes.TypedDataMessage{
			"trader": o.Trader.Hex(),
			"side":   strconv.Itoa(int(o.Side)),
			"ticker": o.Ticker,
			"amount": strconv.FormatInt(o.Amount, 10),
			"price":  strconv.FormatInt(o.Price, 10),
			"nonce":  strconv.FormatUint(o.Nonce, 10),
		}
}

// MarketOrder authorizes an immediate fill against the book.
type MarketOrder struct {
	Trader common.Address
	Side   uint8
	Ticker string
	Amount int64
	Nonce  uint64
}

func (o MarketOrder) nonce() uint64          { return o.Nonce }
func (o MarketOrder) Signer() common.Address { return o.Trader }

func (o MarketOrder) typedData() (string, []apitypes.Type, apitypes.TypedDataMessage) {
	return "MarketOrder", []apitypes.Type{
			{Name: "trader", Type: "address"},
			{Name: "side", Type: "uint8"},
			{Name: "ticker", Type: "string"},
			{Name: "amount", Type: "uint256"},
			{Name: "nonce", Type: "uint256"},
		}, apitypes.TypedDataMessage{
			"trader": o.Trader.Hex(),
			"side":   strconv.Itoa(int(o.Side)),
			"ticker": o.Ticker,
			"amount": strconv.FormatInt(o.Amount, 10),
			"nonce":  strconv.FormatUint(o.Nonce, 10),
		}
}

// Transfer authorizes a deposit or withdrawal of one asset.
type Transfer struct {
	Account  common.Address
	Withdraw bool
	Asset    string
	Amount   int64
	Nonce    uint64
}

func (t Transfer) nonce() uint64          { return t.Nonce }
func (t Transfer) Signer() common.Address { return t.Account }

func (t Transfer) typedData() (string, []apitypes.Type, apitypes.TypedDataMessage) {
	primary := "Deposit"
	if t.Withdraw {
		primary = "Withdraw"
	}
	return primary, []apitypes.Type{
			{Name: "account", Type: "address"},
			{Name: "asset", Type: "string"},
			{Name: "amount", Type: "uint256"},
			{Name: "nonce", Type: "uint256"},
		}, apitypes.TypedDataMessage{
			"account": t.Account.Hex(),
			"asset":   t.Asset,
			"amount":  strconv.FormatInt(t.Amount, 10),
			"nonce":   strconv.FormatUint(t.Nonce, 10),
		}
}

// AddToken authorizes a token listing.
type AddToken struct {
	Caller   common.Address
	Ticker   string
	Token    common.Address
	Decimals uint8
	Nonce    uint64
}

func (a AddToken) nonce() uint64          { return a.Nonce }
func (a AddToken) Signer() common.Address { return a.Caller }

func (a AddToken) typedData() (string, []apitypes.Type, apitypes.TypedDataMessage) {
	return "AddToken", []apitypes.Type{
			{Name: "caller", Type: "address"},
			{Name: "ticker", Type: "string"},
			{Name: "token", Type: "address"},
			{Name: "decimals", Type: "uint8"},
			{Name: "nonce", Type: "uint256"},
		}, apitypes.TypedDataMessage{
			"caller":   a.Caller.Hex(),
			"ticker":   a.Ticker,
			"token":    a.Token.Hex(),
			"decimals": strconv.Itoa(int(a.Decimals)),
			"nonce":    strconv.FormatUint(a.Nonce, 10),
		}
}

// Hash returns the EIP-712 digest of a that wallets sign
// (eth_signTypedData_v4).
func (d Domain) Hash(a Action) ([]byte, error) {
	primary, fields, msg := a.typedData()
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			primary: fields,
		},
		PrimaryType: primary,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(d.ChainID),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: msg,
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	// Final digest: keccak256("\x19\x01" || domainSeparator || typedDataHash)
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

// Sign signs a with s. s must be the action's signer for Verify to accept it.
func (d Domain) Sign(s *Signer, a Action) ([]byte, error) {
	hash, err := d.Hash(a)
	if err != nil {
		return nil, err
	}
	return s.Sign(hash)
}

// Verify checks that signature over a was produced by a.Signer().
func (d Domain) Verify(a Action, signature []byte) error {
	hash, err := d.Hash(a)
	if err != nil {
		return err
	}
	recovered, err := RecoverAddress(hash, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if recovered != a.Signer() {
		return fmt.Errorf("%w: signed by %s, not %s", ErrBadSignature, recovered.Hex(), a.Signer().Hex())
	}
	return nil
}
