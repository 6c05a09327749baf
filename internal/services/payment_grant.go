package services

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/ghiblify-backend/internal/domain/payments"
	"github.com/yungbote/ghiblify-backend/internal/journal"
	"github.com/yungbote/ghiblify-backend/internal/observability"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

const (
	StatusSuccess          = "success"
	StatusAlreadyProcessed = "already_processed"
	StatusCompleted        = "completed"
	StatusPending          = "pending"
	StatusFailed           = "failed"
)

// PurchaseResult is the common reply of every payment rail after a credit attempt.
type PurchaseResult struct {
	Status          string `json:"status"`
	CreditsAdded    int64  `json:"credits_added"`
	NewBalance      int64  `json:"new_balance"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	PaymentID       string `json:"payment_id,omitempty"`
	Message         string `json:"message,omitempty"`
}

// grantPurchase credits one provider payment exactly once.
func grantPurchase(ctx context.Context, log *logger.Logger, st store.Store, key, address string, credits int64, rec payments.Record) (*PurchaseResult, error) {
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().Unix()
	}
	if rec.Type == "" {
		rec.Type = "purchase"
	}
	if rec.Credits == 0 {
		rec.Credits = credits
	}
	ctx = journal.WithReason(ctx, "purchase:"+string(rec.Method))
	res, err := st.CreditOnce(ctx, store.Grant{
		Key:     key,
		Address: address,
		Credits: credits,
		Record:  &rec,
	})
	if err != nil {
		observability.Current().ObservePayment(string(rec.Method), "error", 0)
		return nil, fmt.Errorf("credit %s payment: %w", rec.Method, err)
	}
	if !res.Applied {
		observability.Current().ObservePayment(string(rec.Method), StatusAlreadyProcessed, 0)
		log.Info("Payment already processed", "key", key, "address", address)
		return &PurchaseResult{Status: StatusAlreadyProcessed, NewBalance: res.Change.NewBalance}, nil
	}
	observability.Current().ObservePayment(string(rec.Method), StatusSuccess, credits)
	log.Info("Payment credited",
		"method", rec.Method,
		"key", key,
		"address", res.Change.Address,
		"credits", credits,
		"balance", res.Change.NewBalance,
	)
	return &PurchaseResult{
		Status:       StatusSuccess,
		CreditsAdded: credits,
		NewBalance:   res.Change.NewBalance,
	}, nil
}
