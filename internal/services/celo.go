package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
	"github.com/yungbote/ghiblify-backend/internal/observability"
	"github.com/yungbote/ghiblify-backend/internal/platform/apierr"
	"github.com/yungbote/ghiblify-backend/internal/platform/evm"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/pricing"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

const (
	CeloStatusProcessed      = "processed"
	CeloStatusNoEvents       = "no_events"
	CeloStatusInvalidPackage = "invalid_package"
	CeloStatusError          = "error"

	DefaultCeloContract   = "0x0972CAe87506900051BC728f10338ffe35C891Ba"
	DefaultCeloChainID    = 44787
	DefaultCeloBlockRange = 1000
)

type CeloConfig struct {
	Contract string
	ChainID  int64
	// MaxBlockRange bounds one ProcessPendingEvents scan.
	MaxBlockRange uint64
}

type CeloPaymentStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type CeloSyncResult struct {
	Status          string `json:"status"`
	ProcessedEvents int    `json:"processed_events"`
	FailedEvents    int    `json:"failed_events,omitempty"`
	FromBlock       uint64 `json:"from_block"`
	ToBlock         uint64 `json:"to_block"`
}

type CeloService interface {
	CheckPayment(ctx context.Context, txHash string) (*CeloPaymentStatus, error)
	ProcessPendingEvents(ctx context.Context) (*CeloSyncResult, error)
	PurchaseHistory(ctx context.Context, address string) ([]payments.Record, error)
	Pricing() map[pricing.Tier]pricing.TableEntry
}

type celoService struct {
	log      *logger.Logger
	store    store.Store
	chain    evm.ChainReader
	contract common.Address
	cfg      CeloConfig
}

func NewCeloService(log *logger.Logger, st store.Store, chain evm.ChainReader, cfg CeloConfig) (CeloService, error) {
	if cfg.Contract == "" {
		cfg.Contract = DefaultCeloContract
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = DefaultCeloChainID
	}
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = DefaultCeloBlockRange
	}
	contract, err := evm.ParseAddress(cfg.Contract)
	if err != nil {
		return nil, fmt.Errorf("celo contract: %w", err)
	}
	return &celoService{
		log:      log.With("service", "CeloService"),
		store:    st,
		chain:    chain,
		contract: contract,
		cfg:      cfg,
	}, nil
}

func (s *celoService) Pricing() map[pricing.Tier]pricing.TableEntry {
	return pricing.Table(payments.MethodCelo)
}

func (s *celoService) CheckPayment(ctx context.Context, txHash string) (*CeloPaymentStatus, error) {
	hash, err := evm.ParseTxHash(txHash)
	if err != nil {
		return nil, apierr.BadRequest("invalid_tx_hash", "%v", err)
	}
	key := store.CeloTxKey(s.cfg.ChainID, hash.Hex())
	if m, err := s.store.Processed(ctx, key); err != nil {
		return nil, fmt.Errorf("read tx marker: %w", err)
	} else if m != nil {
		return &CeloPaymentStatus{Status: CeloStatusProcessed}, nil
	}
	if s.chain == nil {
		return nil, apierr.Newf(http.StatusServiceUnavailable, "celo_unavailable", "CELO RPC is not configured")
	}

	receipt, err := s.chain.TransactionReceipt(ctx, hash)
	if evm.IsNotFound(err) {
		return &CeloPaymentStatus{Status: StatusPending}, nil
	}
	if err != nil {
		s.log.Warn("Receipt lookup failed", "tx_hash", hash.Hex(), "error", err)
		return &CeloPaymentStatus{Status: CeloStatusError, Reason: err.Error()}, nil
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &CeloPaymentStatus{Status: StatusFailed}, nil
	}
	ev, err := evm.FindCreditsPurchased(receipt, s.contract)
	if errors.Is(err, evm.ErrNoCreditsPurchase) {
		s.log.Warn("No purchase events in tx", "tx_hash", hash.Hex())
		return &CeloPaymentStatus{Status: CeloStatusNoEvents}, nil
	}
	if err != nil {
		return &CeloPaymentStatus{Status: CeloStatusError, Reason: err.Error()}, nil
	}
	status, reason := s.creditEvent(ctx, ev)
	return &CeloPaymentStatus{Status: status, Reason: reason}, nil
}

// creditEvent returns a CheckPayment status for one decoded event.
func (s *celoService) creditEvent(ctx context.Context, ev evm.CreditsPurchased) (string, string) {
	tier, ok := pricing.ParseTier(ev.PackageTier)
	if !ok {
		s.log.Error("Invalid package tier", "tier", ev.PackageTier, "tx_hash", ev.TxHash.Hex())
		return CeloStatusInvalidPackage, ""
	}
	q, _ := pricing.Price(tier, payments.MethodCelo)
	_, err := grantPurchase(ctx, s.log, s.store, store.CeloTxKey(s.cfg.ChainID, ev.TxHash.Hex()), ev.Buyer.Hex(), q.Credits, payments.Record{
		Method:         payments.MethodCelo,
		TxHash:         ev.TxHash.Hex(),
		Tier:           string(tier),
		Amount:         q.DiscountedPrice,
		OriginalAmount: q.BasePrice,
		Discount:       q.DiscountRate,
		Savings:        q.Savings,
		TokenAmount:    bigString(ev.Amount),
		Status:         StatusCompleted,
		Timestamp:      timestampOr(ev.Timestamp),
	})
	if err != nil {
		s.log.Error("Crediting CELO purchase failed", "tx_hash", ev.TxHash.Hex(), "error", err)
		return CeloStatusError, "redis_error"
	}
	return CeloStatusProcessed, ""
}

func (s *celoService) ProcessPendingEvents(ctx context.Context) (*CeloSyncResult, error) {
	if s.chain == nil {
		return nil, apierr.Newf(http.StatusServiceUnavailable, "celo_unavailable", "CELO RPC is not configured")
	}
	head, err := s.chain.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}
	var last uint64
	if raw, ok, err := s.store.Get(ctx, store.CeloLastBlockKey); err != nil {
		return nil, fmt.Errorf("read last block: %w", err)
	} else if ok {
		last, _ = strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	}
	from := last + 1
	if head > s.cfg.MaxBlockRange && from < head-s.cfg.MaxBlockRange {
		from = head - s.cfg.MaxBlockRange
	}
	out := &CeloSyncResult{Status: StatusSuccess, FromBlock: from, ToBlock: head}
	if from > head {
		return out, nil
	}

	logs, err := s.chain.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{s.contract},
		Topics:    [][]common.Hash{{evm.CreditsPurchasedID}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}
	// The cursor never passes a block holding an uncredited purchase;
	// CreditOnce makes the rescan idempotent.
	cursor := head
	hold := func(block uint64) {
		out.FailedEvents++
		cursor = min(cursor, max(block, from)-1)
	}
	for _, l := range logs {
		ev, err := evm.DecodeCreditsPurchased(l)
		if err != nil {
			s.log.Warn("Skipping undecodable log", "tx_hash", l.TxHash.Hex(), "error", err)
			continue
		}
		m, err := s.store.Processed(ctx, store.CeloTxKey(s.cfg.ChainID, ev.TxHash.Hex()))
		if err != nil {
			s.log.Warn("Reading CELO tx marker failed", "tx_hash", ev.TxHash.Hex(), "error", err)
			hold(l.BlockNumber)
			continue
		}
		if m != nil {
			continue
		}
		switch status, _ := s.creditEvent(ctx, ev); status {
		case CeloStatusProcessed:
			out.ProcessedEvents++
		case CeloStatusError:
			hold(l.BlockNumber)
		}
	}
	if out.FailedEvents > 0 {
		s.log.Warn("CELO cursor held at failed purchase", "failed", out.FailedEvents, "cursor", cursor, "head", head)
	}
	if err := s.store.Put(ctx, store.CeloLastBlockKey, strconv.FormatUint(cursor, 10), 0); err != nil {
		return nil, fmt.Errorf("save last block: %w", err)
	}
	observability.Current().ObserveCeloSync(out.ProcessedEvents, cursor)
	if out.ProcessedEvents > 0 {
		s.log.Info("Processed CELO events", "count", out.ProcessedEvents, "from_block", from, "to_block", head)
	}
	return out, nil
}

func (s *celoService) PurchaseHistory(ctx context.Context, address string) ([]payments.Record, error) {
	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	return s.store.History(ctx, addr, payments.MethodCelo, 0)
}

// Name and Run let the poller drive ProcessPendingEvents.
func (s *celoService) Name() string { return "celo_events" }

func (s *celoService) Run(ctx context.Context) error {
	_, err := s.ProcessPendingEvents(ctx)
	return err
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func timestampOr(v *big.Int) int64 {
	if v == nil || !v.IsInt64() || v.Sign() <= 0 {
		return 0
	}
	return v.Int64()
}
