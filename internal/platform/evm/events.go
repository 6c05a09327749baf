package evm

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Both the CELO credits contract and the GHIBLIFY token payments contract emit
// CreditsPurchased(address indexed buyer, string packageTier, uint256 amount,
// uint256 credits, uint256 timestamp). The token contract names the third
// field tokenAmount; the ABI encoding is identical.
const creditsABIJSON = `[
  {"type":"function","name":"purchaseCredits","stateMutability":"nonpayable",
   "inputs":[{"name":"packageTier","type":"string"}],"outputs":[]},
  {"type":"function","name":"purchaseCreditsWithGhiblify","stateMutability":"nonpayable",
   "inputs":[{"name":"packageTier","type":"string"}],"outputs":[]},
  {"type":"event","name":"CreditsPurchased","anonymous":false,
   "inputs":[
     {"indexed":true,"name":"buyer","type":"address"},
     {"indexed":false,"name":"packageTier","type":"string"},
     {"indexed":false,"name":"amount","type":"uint256"},
     {"indexed":false,"name":"credits","type":"uint256"},
     {"indexed":false,"name":"timestamp","type":"uint256"}
   ]}
]`

var (
	CreditsABI           = mustABI(creditsABIJSON)
	CreditsPurchasedID   = CreditsABI.Events["CreditsPurchased"].ID
	ErrNotCreditsEvent   = errors.New("log is not a CreditsPurchased event")
	ErrNoCreditsPurchase = errors.New("no CreditsPurchased event in receipt")
)

func mustABI(js string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(js))
	if err != nil {
		panic(fmt.Sprintf("evm: bad abi: %v", err))
	}
	return parsed
}

type CreditsPurchased struct {
	Buyer       common.Address
	PackageTier string
	Amount      *big.Int
	Credits     *big.Int
	Timestamp   *big.Int

	Contract    common.Address
	TxHash      common.Hash
	BlockNumber uint64
}

func DecodeCreditsPurchased(l types.Log) (CreditsPurchased, error) {
	if len(l.Topics) < 2 || l.Topics[0] != CreditsPurchasedID {
		return CreditsPurchased{}, ErrNotCreditsEvent
	}
	vals, err := CreditsABI.Unpack("CreditsPurchased", l.Data)
	if err != nil {
		return CreditsPurchased{}, fmt.Errorf("unpack CreditsPurchased: %w", err)
	}
	if len(vals) != 4 {
		return CreditsPurchased{}, fmt.Errorf("unpack CreditsPurchased: want 4 values got %d", len(vals))
	}
	tier, ok1 := vals[0].(string)
	amount, ok2 := vals[1].(*big.Int)
	credits, ok3 := vals[2].(*big.Int)
	ts, ok4 := vals[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return CreditsPurchased{}, errors.New("unpack CreditsPurchased: unexpected value types")
	}
	return CreditsPurchased{
		Buyer:       common.BytesToAddress(l.Topics[1].Bytes()),
		PackageTier: tier,
		Amount:      amount,
		Credits:     credits,
		Timestamp:   ts,
		Contract:    l.Address,
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
	}, nil
}

// FindCreditsPurchased returns the first CreditsPurchased event emitted by
// contract in the receipt.
func FindCreditsPurchased(r *types.Receipt, contract common.Address) (CreditsPurchased, error) {
	if r == nil {
		return CreditsPurchased{}, ErrNoCreditsPurchase
	}
	for _, l := range r.Logs {
		if l == nil || l.Address != contract {
			continue
		}
		ev, err := DecodeCreditsPurchased(*l)
		if errors.Is(err, ErrNotCreditsEvent) {
			continue
		}
		if err != nil {
			return CreditsPurchased{}, err
		}
		if ev.TxHash == (common.Hash{}) {
			ev.TxHash = r.TxHash
		}
		return ev, nil
	}
	return CreditsPurchased{}, ErrNoCreditsPurchase
}
