package services

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
	"github.com/yungbote/ghiblify-backend/internal/platform/evm"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

type fakeChain struct {
	head     uint64
	receipts map[common.Hash]*types.Receipt
	txs      map[common.Hash]*types.Transaction
	logs     []types.Log
	queries  []ethereum.FilterQuery
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	if r, ok := f.receipts[h]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeChain) TransactionByHash(ctx context.Context, h common.Hash) (*types.Transaction, bool, error) {
	if tx, ok := f.txs[h]; ok {
		return tx, false, nil
	}
	return nil, false, ethereum.NotFound
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) { return f.head, nil }

func (f *fakeChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.queries = append(f.queries, q)
	return f.logs, nil
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return nil, nil
}

func creditsLog(t *testing.T, contract common.Address, tx common.Hash, buyer, tier string, credits int64) types.Log {
	t.Helper()
	data, err := evm.CreditsABI.Events["CreditsPurchased"].Inputs.NonIndexed().Pack(
		tier, big.NewInt(1_000_000), big.NewInt(credits), big.NewInt(1700000000),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return types.Log{
		Address: contract,
		Topics:  []common.Hash{evm.CreditsPurchasedID, common.BytesToHash(common.HexToAddress(buyer).Bytes())},
		Data:    data,
		TxHash:  tx,
	}
}

func receiptWith(status uint64, logs ...types.Log) *types.Receipt {
	r := &types.Receipt{Status: status}
	for i := range logs {
		r.Logs = append(r.Logs, &logs[i])
	}
	return r
}

func TestCeloCheckPayment(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	contract := common.HexToAddress(DefaultCeloContract)
	paid := common.HexToHash("0xaa")
	alias := common.HexToHash("0xbb")
	reverted := common.HexToHash("0xcc")
	bogus := common.HexToHash("0xdd")
	chain := &fakeChain{receipts: map[common.Hash]*types.Receipt{
		paid:     receiptWith(types.ReceiptStatusSuccessful, creditsLog(t, contract, paid, alice, "pro", 12)),
		alias:    receiptWith(types.ReceiptStatusSuccessful, creditsLog(t, contract, alias, bob, "don", 30)),
		reverted: receiptWith(types.ReceiptStatusFailed),
		bogus:    receiptWith(types.ReceiptStatusSuccessful, creditsLog(t, contract, bogus, bob, "platinum", 99)),
	}}
	svc, err := NewCeloService(logger.Nop(), st, chain, CeloConfig{})
	if err != nil {
		t.Fatalf("NewCeloService: %v", err)
	}

	cases := []struct {
		tx   common.Hash
		want string
	}{
		{paid, CeloStatusProcessed},
		{paid, CeloStatusProcessed},
		{alias, CeloStatusProcessed},
		{reverted, StatusFailed},
		{bogus, CeloStatusInvalidPackage},
		{common.HexToHash("0xee"), StatusPending},
	}
	for _, tc := range cases {
		res, err := svc.CheckPayment(ctx, tc.tx.Hex())
		if err != nil {
			t.Fatalf("CheckPayment(%s): %v", tc.tx.Hex(), err)
		}
		if res.Status != tc.want {
			t.Fatalf("CheckPayment(%s): want=%s got=%s", tc.tx.Hex(), tc.want, res.Status)
		}
	}
	if bal, _ := st.Balance(ctx, alice); bal != 12 {
		t.Fatalf("alice balance: want=12 got=%d", bal)
	}
	if bal, _ := st.Balance(ctx, bob); bal != 30 {
		t.Fatalf("bob balance: want=30 got=%d", bal)
	}
	hist, _ := svc.PurchaseHistory(ctx, alice)
	if len(hist) != 1 || hist[0].Method != payments.MethodCelo || hist[0].Discount != 0.3 {
		t.Fatalf("history: got=%+v", hist)
	}
	_, err = svc.CheckPayment(ctx, "0x12")
	wantStatus(t, err, http.StatusBadRequest)
}

func TestCeloProcessPendingEvents(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	contract := common.HexToAddress(DefaultCeloContract)
	tx1, tx2 := common.HexToHash("0x01"), common.HexToHash("0x02")
	chain := &fakeChain{
		head: 5000,
		logs: []types.Log{
			creditsLog(t, contract, tx1, alice, "starter", 1),
			creditsLog(t, contract, tx2, alice, "pro", 12),
		},
	}
	svc, _ := NewCeloService(logger.Nop(), st, chain, CeloConfig{})

	res, err := svc.ProcessPendingEvents(ctx)
	if err != nil {
		t.Fatalf("ProcessPendingEvents: %v", err)
	}
	if res.ProcessedEvents != 2 || res.FromBlock != 4000 || res.ToBlock != 5000 {
		t.Fatalf("first sync: got=%+v", res)
	}
	q := chain.queries[0]
	if len(q.Addresses) != 1 || q.Addresses[0] != contract || q.Topics[0][0] != evm.CreditsPurchasedID {
		t.Fatalf("filter: got=%+v", q)
	}

	chain.head = 5010
	res, err = svc.ProcessPendingEvents(ctx)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.ProcessedEvents != 0 || res.FromBlock != 5001 {
		t.Fatalf("second sync: got=%+v", res)
	}
	if bal, _ := st.Balance(ctx, alice); bal != 13 {
		t.Fatalf("balance: want=13 got=%d", bal)
	}
	if raw, _, _ := st.Get(ctx, store.CeloLastBlockKey); raw != "5010" {
		t.Fatalf("last block: want=5010 got=%s", raw)
	}
}

// failingGrants fails the next n CreditOnce calls.
type failingGrants struct {
	store.Store
	n int
}

func (f *failingGrants) CreditOnce(ctx context.Context, g store.Grant) (store.GrantResult, error) {
	if f.n > 0 {
		f.n--
		return store.GrantResult{}, errors.New("redis: connection reset")
	}
	return f.Store.CreditOnce(ctx, g)
}

func TestCeloSyncHoldsCursorOnFailedCredit(t *testing.T) {
	ctx := context.Background()
	st := &failingGrants{Store: newTestStore(t), n: 1}
	contract := common.HexToAddress(DefaultCeloContract)
	early := creditsLog(t, contract, common.HexToHash("0x01"), alice, "starter", 1)
	early.BlockNumber = 4100
	failed := creditsLog(t, contract, common.HexToHash("0x02"), alice, "pro", 12)
	failed.BlockNumber = 4500
	chain := &fakeChain{head: 5000, logs: []types.Log{early, failed}}
	svc, _ := NewCeloService(logger.Nop(), st, chain, CeloConfig{})

	res, err := svc.ProcessPendingEvents(ctx)
	if err != nil {
		t.Fatalf("ProcessPendingEvents: %v", err)
	}
	if res.ProcessedEvents != 1 || res.FailedEvents != 1 {
		t.Fatalf("first sync: got=%+v", res)
	}
	if raw, _, _ := st.Get(ctx, store.CeloLastBlockKey); raw != "4499" {
		t.Fatalf("last block: want=4499 got=%s", raw)
	}

	chain.head = 5001
	res, err = svc.ProcessPendingEvents(ctx)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.FromBlock != 4500 || res.ProcessedEvents != 1 || res.FailedEvents != 0 {
		t.Fatalf("second sync: got=%+v", res)
	}
	if bal, _ := st.Balance(ctx, alice); bal != 13 {
		t.Fatalf("balance: want=13 got=%d", bal)
	}
	if raw, _, _ := st.Get(ctx, store.CeloLastBlockKey); raw != "5001" {
		t.Fatalf("last block: want=5001 got=%s", raw)
	}
}

func tokenTx(to common.Address) *types.Transaction {
	return types.NewTx(&types.LegacyTx{Nonce: 1, To: &to, Value: big.NewInt(0), Gas: 21000, GasPrice: big.NewInt(1)})
}

func TestTokenProcessPayment(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	contract := common.HexToAddress(DefaultTokenPaymentsContract)
	good := common.HexToHash("0x10")
	elsewhere := common.HexToHash("0x11")
	chain := &fakeChain{
		receipts: map[common.Hash]*types.Receipt{
			good:      receiptWith(types.ReceiptStatusSuccessful, creditsLog(t, contract, good, alice, "pro", 12)),
			elsewhere: receiptWith(types.ReceiptStatusSuccessful, creditsLog(t, contract, elsewhere, alice, "pro", 12)),
		},
		txs: map[common.Hash]*types.Transaction{
			good:      tokenTx(contract),
			elsewhere: tokenTx(common.HexToAddress("0x01")),
		},
	}
	svc, err := NewTokenPaymentService(logger.Nop(), st, chain, "")
	if err != nil {
		t.Fatalf("NewTokenPaymentService: %v", err)
	}
	req := TokenPaymentRequest{TransactionHash: good.Hex(), UserAddress: alice, Tier: "pro", TokenAmount: "1000000", Discount: "50%"}

	if check, _ := svc.CheckPayment(ctx, good.Hex(), ""); check.Status != TokenStatusConfirmedNotProcessed {
		t.Fatalf("check before: got=%+v", check)
	}
	res, err := svc.ProcessPayment(ctx, req)
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}
	if res.Status != StatusSuccess || res.CreditsAdded != 12 || res.TransactionHash != good.Hex() {
		t.Fatalf("result: got=%+v", res)
	}
	if res, _ := svc.ProcessPayment(ctx, req); res.Status != StatusAlreadyProcessed {
		t.Fatalf("replay: got=%+v", res)
	}
	if check, _ := svc.CheckPayment(ctx, good.Hex(), alice); check.Status != StatusCompleted || *check.Credits != 12 {
		t.Fatalf("check after: got=%+v", check)
	}
	hist, _ := svc.History(ctx, alice)
	if len(hist) != 1 || hist[0].Discount != 0.5 || hist[0].TokenAmount != "1000000" {
		t.Fatalf("history: got=%+v", hist)
	}

	rejects := []TokenPaymentRequest{
		{TransactionHash: elsewhere.Hex(), UserAddress: alice, Tier: "pro", TokenAmount: "1"},
		{TransactionHash: elsewhere.Hex(), UserAddress: alice, Tier: "don", TokenAmount: "1"},
		{TransactionHash: common.HexToHash("0x12").Hex(), UserAddress: alice, Tier: "pro", TokenAmount: "1"},
		{TransactionHash: good.Hex(), UserAddress: alice, Tier: "pro"},
	}
	for _, r := range rejects {
		_, err := svc.ProcessPayment(ctx, r)
		wantStatus(t, err, http.StatusBadRequest)
	}

	mismatch := common.HexToHash("0x13")
	chain.receipts[mismatch] = receiptWith(types.ReceiptStatusSuccessful, creditsLog(t, contract, mismatch, bob, "pro", 12))
	chain.txs[mismatch] = tokenTx(contract)
	_, err = svc.ProcessPayment(ctx, TokenPaymentRequest{TransactionHash: mismatch.Hex(), UserAddress: alice, Tier: "pro", TokenAmount: "1"})
	wantStatus(t, err, http.StatusBadRequest)
	_, err = svc.ProcessPayment(ctx, TokenPaymentRequest{TransactionHash: mismatch.Hex(), UserAddress: bob, Tier: "starter", TokenAmount: "1"})
	wantStatus(t, err, http.StatusBadRequest)
}
