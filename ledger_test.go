package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/withobsrvr/asset-ledger/account"
	"github.com/withobsrvr/asset-ledger/cqrs"
	"github.com/withobsrvr/asset-ledger/order"
	"github.com/withobsrvr/asset-ledger/transfer"
	"github.com/withobsrvr/asset-ledger/types"
)

// End-to-end scenarios over fully wired engines on the in-memory store:
// every nested saga command runs through the same replay/persist pipeline
// as in production.

func newTestApp() (*application, *cqrs.MemoryStore) {
	store := cqrs.NewMemoryStore()
	return newApplication(zap.NewNop(), store, store, 100), store
}

// replayAccount rebuilds an account aggregate straight from the persisted
// event log, bypassing the view store.
func replayAccount(t *testing.T, store *cqrs.MemoryStore, id string) *account.Account {
	t.Helper()
	rows, err := store.LoadEvents(context.Background(), "account", id, 1)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	acct := account.NewAccount()
	for _, row := range rows {
		var event account.Event
		require.NoError(t, json.Unmarshal(row.Payload, &event))
		acct.Apply(event)
	}
	return acct
}

func testID(b byte) types.ID32 {
	var id types.ID32
	id[0] = b
	return id
}

func accountView(t *testing.T, app *application, id string) account.View {
	t.Helper()
	payload, err := app.views.Load(context.Background(), account.ViewName, id)
	require.NoError(t, err)
	require.NotNil(t, payload)
	var view account.View
	require.NoError(t, json.Unmarshal(payload, &view))
	return view
}

func orderView(t *testing.T, app *application, id string) order.View {
	t.Helper()
	payload, err := app.views.Load(context.Background(), order.ViewName, id)
	require.NoError(t, err)
	require.NotNil(t, payload)
	var view order.View
	require.NoError(t, json.Unmarshal(payload, &view))
	return view
}

func openWithBalance(t *testing.T, app *application, id string, seed byte, asset types.Asset, amount types.Amount) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, app.accounts.Execute(ctx, id, account.OpenAccount(id)))
	require.NoError(t, app.accounts.Execute(ctx, id, account.Deposit(testID(seed), 0, asset, amount)))
}

func TestScenarioDepositShowsInView(t *testing.T) {
	app, _ := newTestApp()
	openWithBalance(t, app, "ACCT-A", 0x01, "BTC", 1000)

	view := accountView(t, app, "ACCT-A")
	require.EqualValues(t, 1000, view.Balance["BTC"])
	require.Len(t, view.RecentLedger, 1)
	front := view.RecentLedger[0]
	require.Equal(t, "Deposit", front.Detail.Type)
	require.Equal(t, types.Asset("BTC"), front.Detail.Asset)
	require.EqualValues(t, 1000, front.Detail.Amount)
}

func TestScenarioLockThenUnlockRestoresBalance(t *testing.T) {
	app, _ := newTestApp()
	ctx := context.Background()
	openWithBalance(t, app, "ACCT-A", 0x01, "BTC", 1000)

	require.NoError(t, app.accounts.Execute(ctx, "ACCT-A", account.LockFunds(testID(0x02), 1, "BTC", 400)))
	view := accountView(t, app, "ACCT-A")
	require.EqualValues(t, 600, view.Balance["BTC"])
	require.EqualValues(t, 400, view.LockedBalance["BTC"])

	require.NoError(t, app.accounts.Execute(ctx, "ACCT-A", account.UnlockFunds(testID(0x02))))
	view = accountView(t, app, "ACCT-A")
	require.EqualValues(t, 1000, view.Balance["BTC"])
	require.EqualValues(t, 0, view.LockedBalance["BTC"])
}

func TestScenarioSwapSettles(t *testing.T) {
	app, _ := newTestApp()
	ctx := context.Background()
	openWithBalance(t, app, "ACCT-A", 0x01, "BTC", 100)
	openWithBalance(t, app, "ACCT-B", 0x02, "ETH", 100)

	orderID := testID(0xAA)
	orderKey := orderID.Hex()
	cfg := order.Config{
		OrderID:    orderID,
		Seller:     "ACCT-A",
		SellAsset:  "BTC",
		SellAmount: 10,
		BuyAsset:   "ETH",
		BuyAmount:  20,
		Timestamp:  1,
	}

	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Open(cfg)))
	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Continue()))
	require.Equal(t, order.StatusPlaced, orderView(t, app, orderKey).Status)

	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Buy("ACCT-B", 2)))
	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Continue()))
	require.Equal(t, order.StatusBought, orderView(t, app, orderKey).Status)

	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Continue()))
	require.Equal(t, order.StatusSettled, orderView(t, app, orderKey).Status)

	seller := accountView(t, app, "ACCT-A")
	require.EqualValues(t, 90, seller.Balance["BTC"])
	require.EqualValues(t, 20, seller.Balance["ETH"])
	require.EqualValues(t, 0, seller.LockedBalance["BTC"])

	buyer := accountView(t, app, "ACCT-B")
	require.EqualValues(t, 10, buyer.Balance["BTC"])
	require.EqualValues(t, 80, buyer.Balance["ETH"])
	require.EqualValues(t, 0, buyer.LockedBalance["ETH"])
}

func TestScenarioSwapReplaysToSameAggregateState(t *testing.T) {
	// The aggregates rebuilt from the persisted event log alone must carry
	// the same balances as the projected views, received legs included —
	// this is what a restarted node sees.
	app, store := newTestApp()
	ctx := context.Background()
	openWithBalance(t, app, "ACCT-A", 0x01, "BTC", 100)
	openWithBalance(t, app, "ACCT-B", 0x02, "ETH", 100)

	orderID := testID(0xAA)
	orderKey := orderID.Hex()
	cfg := order.Config{
		OrderID:    orderID,
		Seller:     "ACCT-A",
		SellAsset:  "BTC",
		SellAmount: 10,
		BuyAsset:   "ETH",
		BuyAmount:  20,
		Timestamp:  1,
	}

	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Open(cfg)))
	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Continue()))
	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Buy("ACCT-B", 2)))
	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Continue()))
	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Continue()))

	seller := replayAccount(t, store, "ACCT-A")
	require.Equal(t, types.Amount(90), seller.State.Assets["BTC"])
	require.Equal(t, types.Amount(20), seller.State.Assets["ETH"])
	require.Empty(t, seller.State.Locks)

	buyer := replayAccount(t, store, "ACCT-B")
	require.Equal(t, types.Amount(10), buyer.State.Assets["BTC"])
	require.Equal(t, types.Amount(80), buyer.State.Assets["ETH"])
	require.Empty(t, buyer.State.Locks)

	// The replayed aggregate agrees with the view store.
	sellerView := accountView(t, app, "ACCT-A")
	require.EqualValues(t, seller.State.Assets["BTC"], sellerView.Balance["BTC"])
	require.EqualValues(t, seller.State.Assets["ETH"], sellerView.Balance["ETH"])
}

func TestScenarioBuyerLockFailureRevertsToPlaced(t *testing.T) {
	app, _ := newTestApp()
	ctx := context.Background()
	openWithBalance(t, app, "ACCT-A", 0x01, "BTC", 100)
	openWithBalance(t, app, "ACCT-B", 0x02, "ETH", 5)

	orderID := testID(0xAA)
	orderKey := orderID.Hex()
	cfg := order.Config{
		OrderID:    orderID,
		Seller:     "ACCT-A",
		SellAsset:  "BTC",
		SellAmount: 10,
		BuyAsset:   "ETH",
		BuyAmount:  20,
		Timestamp:  1,
	}

	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Open(cfg)))
	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Continue()))
	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Buy("ACCT-B", 2)))
	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Continue()))

	require.Equal(t, order.StatusPlaced, orderView(t, app, orderKey).Status)

	// The seller's lock is untouched.
	seller := accountView(t, app, "ACCT-A")
	require.EqualValues(t, 90, seller.Balance["BTC"])
	require.EqualValues(t, 10, seller.LockedBalance["BTC"])

	buyer := accountView(t, app, "ACCT-B")
	require.EqualValues(t, 5, buyer.Balance["ETH"])
	require.EqualValues(t, 0, buyer.LockedBalance["ETH"])
}

func TestScenarioCancelReleasesSellerLock(t *testing.T) {
	app, _ := newTestApp()
	ctx := context.Background()
	openWithBalance(t, app, "ACCT-A", 0x01, "BTC", 100)

	orderID := testID(0xAA)
	orderKey := orderID.Hex()
	cfg := order.Config{
		OrderID:    orderID,
		Seller:     "ACCT-A",
		SellAsset:  "BTC",
		SellAmount: 10,
		BuyAsset:   "ETH",
		BuyAmount:  20,
		Timestamp:  1,
	}

	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Open(cfg)))
	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Continue()))
	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Cancel("changed my mind")))
	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Continue()))

	view := orderView(t, app, orderKey)
	require.Equal(t, order.StatusCancelled, view.Status)
	require.Equal(t, "changed my mind", view.Reason)

	seller := accountView(t, app, "ACCT-A")
	require.EqualValues(t, 100, seller.Balance["BTC"])
	require.EqualValues(t, 0, seller.LockedBalance["BTC"])
}

func TestScenarioTransferMovesFunds(t *testing.T) {
	app, _ := newTestApp()
	ctx := context.Background()
	openWithBalance(t, app, "ACCT-X", 0x01, "BTC", 500)
	require.NoError(t, app.accounts.Execute(ctx, "ACCT-Y", account.OpenAccount("ACCT-Y")))

	transferID := testID(0xBB)
	transferKey := transferID.Hex()
	invoice := transfer.Invoice{
		TransferID:  transferID,
		FromAccount: "ACCT-X",
		ToAccount:   "ACCT-Y",
		Asset:       "BTC",
		Amount:      200,
		Timestamp:   2,
		Description: "rent",
	}

	require.NoError(t, app.transfers.Execute(ctx, transferKey, transfer.Open(invoice)))
	require.NoError(t, app.transfers.Execute(ctx, transferKey, transfer.Continue()))

	require.EqualValues(t, 300, accountView(t, app, "ACCT-X").Balance["BTC"])
	require.EqualValues(t, 200, accountView(t, app, "ACCT-Y").Balance["BTC"])

	// A replayed debit leg reports a duplicate: retry safety at the
	// account boundary, balances unchanged.
	err := app.accounts.Execute(ctx, "ACCT-X", account.Debit(transferID, 3, "ACCT-Y", "BTC", 200))
	require.ErrorIs(t, err, account.ErrDuplicateTransaction)
	require.EqualValues(t, 300, accountView(t, app, "ACCT-X").Balance["BTC"])

	// Once the Done checkpoint landed, further Continues are rejected.
	err = app.transfers.Execute(ctx, transferKey, transfer.Continue())
	var stateErr *transfer.StateError
	require.ErrorAs(t, err, &stateErr)
}

func TestScenarioDedupEviction(t *testing.T) {
	app, _ := newTestApp()
	ctx := context.Background()
	openWithBalance(t, app, "ACCT-A", 0x10, "BTC", 100)

	err := app.accounts.Execute(ctx, "ACCT-A", account.Deposit(testID(0x10), 1, "BTC", 100))
	require.ErrorIs(t, err, account.ErrDuplicateTransaction)

	// A deposit far enough in the future evicts the old txid, which is
	// then accepted as new.
	require.NoError(t, app.accounts.Execute(ctx, "ACCT-A",
		account.Deposit(testID(0x11), account.DefaultTTL+7200, "BTC", 100)))
	require.NoError(t, app.accounts.Execute(ctx, "ACCT-A",
		account.Deposit(testID(0x10), account.DefaultTTL+7201, "BTC", 100)))

	require.EqualValues(t, 300, accountView(t, app, "ACCT-A").Balance["BTC"])
}

func TestScenarioOrderFailsWhenSellerUnderfunded(t *testing.T) {
	app, _ := newTestApp()
	ctx := context.Background()
	openWithBalance(t, app, "ACCT-A", 0x01, "BTC", 5)

	orderID := testID(0xAA)
	orderKey := orderID.Hex()
	cfg := order.Config{
		OrderID:    orderID,
		Seller:     "ACCT-A",
		SellAsset:  "BTC",
		SellAmount: 10,
		BuyAsset:   "ETH",
		BuyAmount:  20,
		Timestamp:  1,
	}

	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Open(cfg)))
	require.NoError(t, app.orders.Execute(ctx, orderKey, order.Continue()))

	view := orderView(t, app, orderKey)
	require.Equal(t, order.StatusFailed, view.Status)
	require.Contains(t, view.Reason, "insufficient funds")
}
