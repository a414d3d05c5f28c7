// Package memstore provides map-backed implementations of the core store
// interfaces for tests and embedders without their own persistence. Misses
// are reported as gorm.ErrRecordNotFound per the store contract.
package memstore

import (
	"context"
	"sync"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"

	"github.com/pegvault/core/core"
)

type Store struct {
	mu sync.RWMutex

	collateral map[uuid.UUID]map[string]*core.CollateralBalance
	debt       map[uuid.UUID]*core.DebtPosition
	operates   []core.Operate
}

func New() *Store {
	return &Store{
		collateral: make(map[uuid.UUID]map[string]*core.CollateralBalance),
		debt:       make(map[uuid.UUID]*core.DebtPosition),
	}
}

// Ledger bundles the store into the service shape the engine consumes.
func (s *Store) Ledger() *core.LedgerService {
	return &core.LedgerService{
		CollateralStore: s,
		DebtStore:       s,
		OperateStore:    s,
	}
}

func (s *Store) FindCollateral(ctx context.Context, accountId uuid.UUID, assetId string) (*core.CollateralBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, ok := s.collateral[accountId][assetId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return balance.Clone(), nil
}

func (s *Store) UpsertCollateral(ctx context.Context, balance *core.CollateralBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.collateral[balance.AccountId]
	if !ok {
		rows = make(map[string]*core.CollateralBalance)
		s.collateral[balance.AccountId] = rows
	}
	rows[balance.AssetId] = balance.Clone()
	return nil
}

func (s *Store) ListCollateral(ctx context.Context, accountId uuid.UUID) ([]*core.CollateralBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balances := make([]*core.CollateralBalance, 0, len(s.collateral[accountId]))
	for _, balance := range s.collateral[accountId] {
		balances = append(balances, balance.Clone())
	}
	return balances, nil
}

func (s *Store) FindDebt(ctx context.Context, accountId uuid.UUID) (*core.DebtPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	position, ok := s.debt[accountId]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return position.Clone(), nil
}

func (s *Store) UpsertDebt(ctx context.Context, position *core.DebtPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debt[position.AccountId] = position.Clone()
	return nil
}

func (s *Store) CreateOperate(ctx context.Context, operate *core.Operate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operates = append(s.operates, *operate)
	return nil
}

func (s *Store) ListOperates(ctx context.Context, accountId uuid.UUID, op core.ActionType, createdBeforeAt, limit int64) ([]core.Operate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var operates []core.Operate
	for i := len(s.operates) - 1; i >= 0; i-- {
		operate := s.operates[i]
		if accountId != uuid.Nil && operate.AccountId != accountId {
			continue
		}
		if op != 0 && operate.Op != op {
			continue
		}
		if createdBeforeAt > 0 && operate.CreatedAt >= createdBeforeAt {
			continue
		}
		operates = append(operates, operate)
		if limit > 0 && int64(len(operates)) >= limit {
			break
		}
	}
	return operates, nil
}
