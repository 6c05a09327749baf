package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func packCreditsLog(t *testing.T, contract, buyer common.Address, tier string, credits int64) *types.Log {
	t.Helper()
	data, err := CreditsABI.Events["CreditsPurchased"].Inputs.NonIndexed().Pack(
		tier, big.NewInt(499), big.NewInt(credits), big.NewInt(1700000000),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{CreditsPurchasedID, common.BytesToHash(buyer.Bytes())},
		Data:    data,
		TxHash:  common.HexToHash("0x01"),
	}
}

func TestFindCreditsPurchased(t *testing.T) {
	contract := common.HexToAddress("0x0972CAe87506900051BC728f10338ffe35C891Ba")
	other := common.HexToAddress("0x41f2fA6E60A34c26BD2C467d21EcB0a2f9087B03")
	buyer := common.HexToAddress("0x52908400098527886E0F7030069857D2E4169EE7")

	r := &types.Receipt{Logs: []*types.Log{
		packCreditsLog(t, other, buyer, "starter", 1),
		packCreditsLog(t, contract, buyer, "don", 30),
	}}
	ev, err := FindCreditsPurchased(r, contract)
	if err != nil {
		t.Fatalf("FindCreditsPurchased: %v", err)
	}
	if ev.Buyer != buyer || ev.PackageTier != "don" || ev.Credits.Int64() != 30 {
		t.Fatalf("event: got=%+v", ev)
	}
	if _, err := FindCreditsPurchased(&types.Receipt{}, contract); !errors.Is(err, ErrNoCreditsPurchase) {
		t.Fatalf("empty receipt: want=ErrNoCreditsPurchase got=%v", err)
	}
}

func TestDecodeRejectsForeignTopic(t *testing.T) {
	l := types.Log{Topics: []common.Hash{common.HexToHash("0xdead"), {}}}
	if _, err := DecodeCreditsPurchased(l); !errors.Is(err, ErrNotCreditsEvent) {
		t.Fatalf("want=ErrNotCreditsEvent got=%v", err)
	}
}

func TestParseSIWE(t *testing.T) {
	msg := "ghiblify-it.xyz wants you to sign in with your Ethereum account:\n" +
		"0x52908400098527886E0F7030069857D2E4169EE7\n\n" +
		"Sign in to Ghiblify\n\n" +
		"URI: https://ghiblify-it.xyz\n" +
		"Version: 1\n" +
		"Chain ID: 8453\n" +
		"Nonce: \"a1b2c3\"\n" +
		"Issued At: 2025-01-01T00:00:00Z"
	m, err := ParseSIWE(msg)
	if err != nil {
		t.Fatalf("ParseSIWE: %v", err)
	}
	if m.Domain != "ghiblify-it.xyz" || m.Nonce != "a1b2c3" || m.ChainID != 8453 {
		t.Fatalf("parsed: got=%+v", m)
	}
	if m.Address != "0x52908400098527886E0F7030069857D2E4169EE7" || m.URI != "https://ghiblify-it.xyz" {
		t.Fatalf("parsed: got=%+v", m)
	}

	m, _ = ParseSIWE("x wants you to sign in with your Ethereum account:\n0xabc")
	if m.Nonce != "" {
		t.Fatalf("no nonce: got=%q", m.Nonce)
	}
}

func TestRecoverPersonal(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	msg := "hello ghiblify"
	sig, err := crypto.Sign(MessageHash(msg).Bytes(), key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sig[64] += 27

	got, err := RecoverPersonal(msg, sig)
	if err != nil {
		t.Fatalf("RecoverPersonal: %v", err)
	}
	if want := crypto.PubkeyToAddress(key.PublicKey); got != want {
		t.Fatalf("signer: want=%s got=%s", want.Hex(), got.Hex())
	}
	if got, _ := RecoverPersonal("tampered", sig); got == crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("tampered message recovered original signer")
	}
	if _, err := RecoverPersonal(msg, sig[:10]); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("short sig: want=ErrBadSignature got=%v", err)
	}
}

func TestIsSmartWalletSignature(t *testing.T) {
	wrapped := "0x" + "ab" + "6492649264926492649264926492649264926492649264926492649264926492"
	if !IsSmartWalletSignature(wrapped) {
		t.Fatalf("6492 suffix: want=true")
	}
	if IsSmartWalletSignature("0x" + "11") {
		t.Fatalf("plain sig: want=false")
	}
}

type fakeChain struct {
	ChainReader
	calls []ethereum.CallMsg
	reply []byte
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	return f.reply, nil
}

func TestSmartWalletVerifierEIP1271(t *testing.T) {
	out, err := sigABI.Methods["isValidSignature"].Outputs.Pack([4]byte{0x16, 0x26, 0xba, 0x7e})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	chain := &fakeChain{reply: out}
	v, err := NewSmartWalletVerifier(chain, "")
	if err != nil {
		t.Fatalf("NewSmartWalletVerifier: %v", err)
	}
	wallet := common.HexToAddress("0x8617e340b3d01fa5f11f306f4090fd50e238070d")
	ok, err := v.Verify(context.Background(), wallet, "msg", []byte{1, 2, 3})
	if err != nil || !ok {
		t.Fatalf("Verify: want=true got=%v err=%v", ok, err)
	}
	if len(chain.calls) != 1 || *chain.calls[0].To != wallet {
		t.Fatalf("call target: got=%+v", chain.calls)
	}

	wrapped := append([]byte{1}, erc6492Magic...)
	if _, err := v.Verify(context.Background(), wallet, "msg", wrapped); !errors.Is(err, ErrUnsupportedWrapped) {
		t.Fatalf("wrapped without validator: want=ErrUnsupportedWrapped got=%v", err)
	}
}

func TestSmartWalletVerifierValidator(t *testing.T) {
	out, _ := sigABI.Methods["isValidSig"].Outputs.Pack(true)
	chain := &fakeChain{reply: out}
	validator := "0x0000000000000000000000000000000000006492"
	v, err := NewSmartWalletVerifier(chain, validator)
	if err != nil {
		t.Fatalf("NewSmartWalletVerifier: %v", err)
	}
	wallet := common.HexToAddress("0x8617e340b3d01fa5f11f306f4090fd50e238070d")
	ok, err := v.Verify(context.Background(), wallet, "msg", append([]byte{1}, erc6492Magic...))
	if err != nil || !ok {
		t.Fatalf("Verify: want=true got=%v err=%v", ok, err)
	}
	if chain.calls[0].To.Hex() != common.HexToAddress(validator).Hex() {
		t.Fatalf("call target: got=%s", chain.calls[0].To.Hex())
	}
}
