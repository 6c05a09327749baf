package journal

import (
	"context"

	"github.com/yungbote/ghiblify-backend/internal/domain/wallet"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
	"github.com/yungbote/ghiblify-backend/internal/store"
)

type journaledStore struct {
	store.Store
	j   *Journal
	log *logger.Logger
}

// Wrap records every successful balance mutation of st. A nil journal returns
// st unchanged. Journal failures are logged and never fail the mutation.
func Wrap(st store.Store, j *Journal, log *logger.Logger) store.Store {
	if j == nil {
		return st
	}
	return &journaledStore{Store: st, j: j, log: log.With("service", "JournaledStore")}
}

func (s *journaledStore) SetBalance(ctx context.Context, address string, amount int64) (wallet.Change, error) {
	c, err := s.Store.SetBalance(ctx, address, amount)
	if err == nil {
		s.record(ctx, OpSet, amount, c, "")
	}
	return c, err
}

func (s *journaledStore) Add(ctx context.Context, address string, amount int64) (wallet.Change, error) {
	c, err := s.Store.Add(ctx, address, amount)
	if err == nil {
		s.record(ctx, OpAdd, amount, c, "")
	}
	return c, err
}

func (s *journaledStore) Spend(ctx context.Context, address string, amount int64) (wallet.Change, error) {
	c, err := s.Store.Spend(ctx, address, amount)
	if err == nil {
		s.record(ctx, OpSpend, amount, c, "")
	}
	return c, err
}

func (s *journaledStore) CreditOnce(ctx context.Context, g store.Grant) (store.GrantResult, error) {
	res, err := s.Store.CreditOnce(ctx, g)
	if err == nil && res.Applied {
		s.record(ctx, OpGrant, g.Credits, res.Change, g.Key)
	}
	return res, err
}

func (s *journaledStore) record(ctx context.Context, op string, amount int64, c wallet.Change, key string) {
	err := s.j.Record(context.WithoutCancel(ctx), Entry{
		Address:        c.Address,
		Operation:      op,
		Amount:         amount,
		OldBalance:     c.OldBalance,
		NewBalance:     c.NewBalance,
		IdempotencyKey: key,
	})
	if err != nil {
		s.log.Warn("Journal write failed", "op", op, "address", c.Address, "error", err)
	}
}
