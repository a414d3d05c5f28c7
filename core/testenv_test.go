package core_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/pegvault/core/core"
	"github.com/pegvault/core/memstore"
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), core.PRECISION)
}

func newAccount() uuid.UUID {
	return uuid.Must(uuid.NewV4())
}

type fakeOracle struct {
	price     *big.Int
	updatedAt time.Time
	err       error
}

func (f *fakeOracle) LatestPrice(ctx context.Context) (*core.PriceData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.PriceData{
		Price:     new(big.Int).Set(f.price),
		UpdatedAt: f.updatedAt,
	}, nil
}

func (f *fakeOracle) setUSD(price int64, at time.Time) {
	f.price = new(big.Int).Mul(big.NewInt(price), big.NewInt(100_000_000))
	f.updatedAt = at
}

type fakeTransfer struct {
	decimals int32
	balances map[uuid.UUID]*big.Int
	custody  *big.Int

	failIn        bool
	failOut       bool
	onTransferOut func(ctx context.Context) error
}

func newFakeTransfer(decimals int32) *fakeTransfer {
	return &fakeTransfer{
		decimals: decimals,
		balances: make(map[uuid.UUID]*big.Int),
		custody:  big.NewInt(0),
	}
}

func (f *fakeTransfer) fund(owner uuid.UUID, amount *big.Int) {
	f.balances[owner] = new(big.Int).Add(f.balanceOf(owner), amount)
}

func (f *fakeTransfer) balanceOf(owner uuid.UUID) *big.Int {
	if balance, ok := f.balances[owner]; ok {
		return balance
	}
	return big.NewInt(0)
}

func (f *fakeTransfer) TransferIn(ctx context.Context, from uuid.UUID, amount *big.Int) error {
	if f.failIn {
		return errors.New("transfer refused")
	}
	balance := f.balanceOf(from)
	if balance.Cmp(amount) < 0 {
		return errors.New("insufficient external balance")
	}
	f.balances[from] = new(big.Int).Sub(balance, amount)
	f.custody.Add(f.custody, amount)
	return nil
}

func (f *fakeTransfer) TransferOut(ctx context.Context, to uuid.UUID, amount *big.Int) error {
	if f.onTransferOut != nil {
		if err := f.onTransferOut(ctx); err != nil {
			return err
		}
	}
	if f.failOut {
		return errors.New("transfer refused")
	}
	if f.custody.Cmp(amount) < 0 {
		return errors.New("insufficient custody")
	}
	f.custody.Sub(f.custody, amount)
	f.balances[to] = new(big.Int).Add(f.balanceOf(to), amount)
	return nil
}

func (f *fakeTransfer) BalanceOf(ctx context.Context, owner uuid.UUID) (*big.Int, error) {
	return new(big.Int).Set(f.balanceOf(owner)), nil
}

func (f *fakeTransfer) Decimals() int32 {
	return f.decimals
}

type fakeDebtToken struct {
	balances map[uuid.UUID]*big.Int
	custody  *big.Int
	supply   *big.Int
	failMint bool
	failBurn bool
}

func newFakeDebtToken() *fakeDebtToken {
	return &fakeDebtToken{
		balances: make(map[uuid.UUID]*big.Int),
		custody:  big.NewInt(0),
		supply:   big.NewInt(0),
	}
}

func (f *fakeDebtToken) balanceOf(owner uuid.UUID) *big.Int {
	if balance, ok := f.balances[owner]; ok {
		return balance
	}
	return big.NewInt(0)
}

func (f *fakeDebtToken) Mint(ctx context.Context, to uuid.UUID, amount *big.Int) error {
	if f.failMint {
		return errors.New("mint refused")
	}
	f.balances[to] = new(big.Int).Add(f.balanceOf(to), amount)
	f.supply.Add(f.supply, amount)
	return nil
}

func (f *fakeDebtToken) Burn(ctx context.Context, amount *big.Int) error {
	if f.failBurn {
		return errors.New("burn refused")
	}
	if f.custody.Cmp(amount) < 0 {
		return errors.New("burn exceeds custody")
	}
	f.custody.Sub(f.custody, amount)
	f.supply.Sub(f.supply, amount)
	return nil
}

func (f *fakeDebtToken) TransferIn(ctx context.Context, from uuid.UUID, amount *big.Int) error {
	balance := f.balanceOf(from)
	if balance.Cmp(amount) < 0 {
		return errors.New("insufficient token balance")
	}
	f.balances[from] = new(big.Int).Sub(balance, amount)
	f.custody.Add(f.custody, amount)
	return nil
}

type testEnv struct {
	ctx   context.Context
	clk   *clock.Mock
	store *memstore.Store
	eng   *core.Engine

	weth *core.CollateralAsset
	wbtc *core.CollateralAsset

	wethOracle   *fakeOracle
	wbtcOracle   *fakeOracle
	wethTransfer *fakeTransfer
	wbtcTransfer *fakeTransfer
	debtToken    *fakeDebtToken
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clk := clock.NewMock()
	clk.Add(365 * 24 * time.Hour)

	env := &testEnv{
		ctx:          context.Background(),
		clk:          clk,
		store:        memstore.New(),
		weth:         &core.CollateralAsset{AssetId: "weth", Symbol: "WETH", Decimals: 18},
		wbtc:         &core.CollateralAsset{AssetId: "wbtc", Symbol: "WBTC", Decimals: 8},
		wethOracle:   &fakeOracle{},
		wbtcOracle:   &fakeOracle{},
		wethTransfer: newFakeTransfer(18),
		wbtcTransfer: newFakeTransfer(8),
		debtToken:    newFakeDebtToken(),
	}
	env.wethOracle.setUSD(2000, clk.Now())
	env.wbtcOracle.setUSD(30000, clk.Now())

	eng, err := core.NewEngine(core.Config{
		Clock:     clk,
		Ledger:    env.store.Ledger(),
		DebtToken: env.debtToken,
		Assets:    []*core.CollateralAsset{env.weth, env.wbtc},
		Oracles:   []core.PriceAdapter{env.wethOracle, env.wbtcOracle},
		Transfers: []core.AssetTransfer{env.wethTransfer, env.wbtcTransfer},
	})
	require.NoError(t, err)
	env.eng = eng
	return env
}

// depositAndMint funds the account externally, deposits wethAmount and mints
// debtAmount in one composite.
func (env *testEnv) depositAndMint(t *testing.T, accountId uuid.UUID, wethAmount, debtAmount *big.Int) {
	t.Helper()
	env.wethTransfer.fund(accountId, wethAmount)
	require.NoError(t, env.eng.DepositCollateralAndMintDebt(env.ctx, accountId, "weth", wethAmount, debtAmount))
}

func (env *testEnv) collateral(t *testing.T, accountId uuid.UUID, assetId string) *big.Int {
	t.Helper()
	amount, err := env.eng.AccountCollateralBalance(env.ctx, accountId, assetId)
	require.NoError(t, err)
	return amount
}

func (env *testEnv) debt(t *testing.T, accountId uuid.UUID) *big.Int {
	t.Helper()
	minted, _, err := env.eng.AccountInformation(env.ctx, accountId)
	require.NoError(t, err)
	return minted
}
