package evm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// erc6492Magic suffixes signatures of counterfactual (not yet deployed) smart wallets.
	erc6492Magic = common.FromHex("0x6492649264926492649264926492649264926492649264926492649264926492")
	// Base Account wraps its signatures with the multicall factory as the first word.
	baseAccountPrefix = "0x000000000000000000000000ca11bde05977b3631167028862be2a173976ca11"

	eip1271Magic = [4]byte{0x16, 0x26, 0xba, 0x7e}

	ErrBadSignature       = errors.New("invalid signature")
	ErrUnsupportedWrapped = errors.New("wrapped smart-wallet signature requires a signature validator")
)

const sigABIJSON = `[
  {"type":"function","name":"isValidSignature","stateMutability":"view",
   "inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],
   "outputs":[{"name":"","type":"bytes4"}]},
  {"type":"function","name":"isValidSig","stateMutability":"nonpayable",
   "inputs":[{"name":"_signer","type":"address"},{"name":"_hash","type":"bytes32"},{"name":"_signature","type":"bytes"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

var sigABI = mustABI(sigABIJSON)

func DecodeSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, ErrBadSignature
	}
	b := common.FromHex(s)
	if len(b) == 0 {
		return nil, ErrBadSignature
	}
	return b, nil
}

// IsSmartWalletSignature reports ERC-6492 wrapped or Base Account signatures.
func IsSmartWalletSignature(raw string) bool {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if len(raw) > 500 && strings.HasPrefix(raw, baseAccountPrefix) {
		return true
	}
	sig := common.FromHex(raw)
	return len(sig) > len(erc6492Magic) && bytes.HasSuffix(sig, erc6492Magic)
}

// MessageHash is the EIP-191 personal_sign digest.
func MessageHash(message string) common.Hash {
	return common.BytesToHash(accounts.TextHash([]byte(message)))
}

// RecoverPersonal recovers the signer of an EIP-191 personal_sign signature.
func RecoverPersonal(message string, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrBadSignature
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(MessageHash(message).Bytes(), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SmartWalletVerifier checks contract-wallet signatures on chain: through an
// ERC-6492 universal validator when one is configured, else via EIP-1271.
type SmartWalletVerifier struct {
	chain     ChainReader
	validator *common.Address
}

func NewSmartWalletVerifier(chain ChainReader, validator string) (*SmartWalletVerifier, error) {
	v := &SmartWalletVerifier{chain: chain}
	if strings.TrimSpace(validator) != "" {
		addr, err := ParseAddress(validator)
		if err != nil {
			return nil, fmt.Errorf("signature validator: %w", err)
		}
		v.validator = &addr
	}
	return v, nil
}

func (v *SmartWalletVerifier) Verify(ctx context.Context, signer common.Address, message string, sig []byte) (bool, error) {
	if v == nil || v.chain == nil {
		return false, errors.New("smart wallet verification not configured")
	}
	hash := MessageHash(message)
	if v.validator != nil {
		data, err := sigABI.Pack("isValidSig", signer, [32]byte(hash), sig)
		if err != nil {
			return false, err
		}
		out, err := v.chain.CallContract(ctx, ethereum.CallMsg{To: v.validator, Data: data}, nil)
		if err != nil {
			return false, fmt.Errorf("isValidSig call: %w", err)
		}
		vals, err := sigABI.Unpack("isValidSig", out)
		if err != nil || len(vals) != 1 {
			return false, fmt.Errorf("isValidSig decode: %v", err)
		}
		ok, _ := vals[0].(bool)
		return ok, nil
	}
	if bytes.HasSuffix(sig, erc6492Magic) {
		return false, ErrUnsupportedWrapped
	}
	data, err := sigABI.Pack("isValidSignature", [32]byte(hash), sig)
	if err != nil {
		return false, err
	}
	out, err := v.chain.CallContract(ctx, ethereum.CallMsg{To: &signer, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("isValidSignature call: %w", err)
	}
	vals, err := sigABI.Unpack("isValidSignature", out)
	if err != nil || len(vals) != 1 {
		return false, fmt.Errorf("isValidSignature decode: %v", err)
	}
	magic, _ := vals[0].([4]byte)
	return magic == eip1271Magic, nil
}
