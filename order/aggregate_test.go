package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/withobsrvr/asset-ledger/account"
	"github.com/withobsrvr/asset-ledger/cqrs"
	"github.com/withobsrvr/asset-ledger/order"
	"github.com/withobsrvr/asset-ledger/types"
)

const testNow = types.Timestamp(42)

type accountCall struct {
	AccountID string
	Command   account.Command
}

// fakeAccounts records every nested command and answers with the installed
// responder.
type fakeAccounts struct {
	mu      sync.Mutex
	calls   []accountCall
	respond func(accountID string, cmd account.Command) error
}

func (f *fakeAccounts) Execute(_ context.Context, accountID string, cmd account.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, accountCall{AccountID: accountID, Command: cmd})
	if f.respond == nil {
		return nil
	}
	return f.respond(accountID, cmd)
}

func (f *fakeAccounts) recorded() []accountCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]accountCall(nil), f.calls...)
}

func (f *fakeAccounts) waitForCalls(t *testing.T, n int) []accountCall {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if calls := f.recorded(); len(calls) >= n {
			return calls
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d account calls, got %d", n, len(f.recorded()))
	return nil
}

func orderID() types.ID32 {
	var id types.ID32
	id[0] = 0xAA
	return id
}

func testConfig() order.Config {
	return order.Config{
		OrderID:    orderID(),
		Seller:     "ACCT-A",
		SellAsset:  "BTC",
		SellAmount: 10,
		BuyAsset:   "ETH",
		BuyAmount:  20,
		Timestamp:  1,
	}
}

func framework(accounts *fakeAccounts) *cqrs.TestFramework[*order.Order, order.Command, order.Event] {
	services := order.NewServices(accounts, zap.NewNop())
	services.Clock = func() types.Timestamp { return testNow }
	return cqrs.NewTestFramework[*order.Order, order.Command, order.Event](order.NewOrder(services))
}

func TestOpenOrder(t *testing.T) {
	framework(&fakeAccounts{}).
		GivenNoPreviousEvents().
		When(order.Open(testConfig())).
		ThenExpectEvents(t, order.Initialized(testConfig()))
}

func TestOpenTwiceRejected(t *testing.T) {
	result := framework(&fakeAccounts{}).
		Given(order.Initialized(testConfig())).
		When(order.Open(testConfig()))

	var stateErr *order.StateError
	require.ErrorAs(t, result.Err(), &stateErr)
}

func TestContinuePlacesOrderAfterSellerLock(t *testing.T) {
	accounts := &fakeAccounts{}
	framework(accounts).
		Given(order.Initialized(testConfig())).
		When(order.Continue()).
		ThenExpectEvents(t, order.Placed(testNow))

	calls := accounts.recorded()
	require.Len(t, calls, 1)
	require.Equal(t, "ACCT-A", calls[0].AccountID)
	require.Equal(t, account.LockFunds(orderID(), testNow, "BTC", 10), calls[0].Command)
}

func TestContinueTreatsDuplicateLockAsSuccess(t *testing.T) {
	accounts := &fakeAccounts{
		respond: func(string, account.Command) error { return account.ErrDuplicateLock },
	}
	framework(accounts).
		Given(order.Initialized(testConfig())).
		When(order.Continue()).
		ThenExpectEvents(t, order.Placed(testNow))
}

func TestContinueFailsOrderWhenSellerLockRejected(t *testing.T) {
	accounts := &fakeAccounts{
		respond: func(_ string, cmd account.Command) error {
			if cmd.Transaction != nil && cmd.Transaction.Op.Kind == account.OpLockFunds {
				return account.ErrInsufficientFunds
			}
			return nil
		},
	}
	framework(accounts).
		Given(order.Initialized(testConfig())).
		When(order.Continue()).
		ThenExpectEvents(t, order.Failed(testNow, account.ErrInsufficientFunds.Error()))

	// The failed lock attempt is followed by the compensating unlock.
	calls := accounts.waitForCalls(t, 2)
	require.Equal(t, account.UnlockFunds(orderID()), calls[1].Command)
}

func TestContinuePropagatesInfrastructureError(t *testing.T) {
	infra := &cqrs.AggregateError{Op: "append events", Err: errors.New("connection refused")}
	accounts := &fakeAccounts{
		respond: func(_ string, cmd account.Command) error {
			if cmd.Transaction != nil && cmd.Transaction.Op.Kind == account.OpLockFunds {
				return infra
			}
			return nil
		},
	}
	result := framework(accounts).
		Given(order.Initialized(testConfig())).
		When(order.Continue())

	require.Error(t, result.Err())
	require.True(t, cqrs.IsInfrastructure(result.Err()))
	require.Empty(t, result.Events())
}

func TestBuyFromPlaced(t *testing.T) {
	framework(&fakeAccounts{}).
		Given(order.Initialized(testConfig()), order.Placed(2)).
		When(order.Buy("ACCT-B", 3)).
		ThenExpectEvents(t, order.Buying("ACCT-B", 3))
}

func TestBuyBeforePlacedRejected(t *testing.T) {
	result := framework(&fakeAccounts{}).
		Given(order.Initialized(testConfig())).
		When(order.Buy("ACCT-B", 3))

	var stateErr *order.StateError
	require.ErrorAs(t, result.Err(), &stateErr)
}

func TestContinueBuysAfterBuyerLock(t *testing.T) {
	accounts := &fakeAccounts{}
	framework(accounts).
		Given(order.Initialized(testConfig()), order.Placed(2), order.Buying("ACCT-B", 3)).
		When(order.Continue()).
		ThenExpectEvents(t, order.Bought(testNow))

	calls := accounts.recorded()
	require.Len(t, calls, 1)
	require.Equal(t, "ACCT-B", calls[0].AccountID)
	require.Equal(t, account.LockFunds(orderID(), testNow, "ETH", 20), calls[0].Command)
}

func TestContinueRevertsToPlacedWhenBuyerLockFails(t *testing.T) {
	accounts := &fakeAccounts{
		respond: func(accountID string, cmd account.Command) error {
			if accountID == "ACCT-B" && cmd.Transaction != nil && cmd.Transaction.Op.Kind == account.OpLockFunds {
				return account.ErrInsufficientFunds
			}
			return nil
		},
	}
	framework(accounts).
		Given(order.Initialized(testConfig()), order.Placed(2), order.Buying("ACCT-B", 3)).
		When(order.Continue()).
		ThenExpectEvents(t, order.Placed(testNow))

	// No account command ever touched the seller's lock.
	for _, call := range accounts.waitForCalls(t, 2) {
		require.NotEqual(t, "ACCT-A", call.AccountID)
	}
}

func TestContinueSettlesBothLegs(t *testing.T) {
	accounts := &fakeAccounts{}
	framework(accounts).
		Given(
			order.Initialized(testConfig()),
			order.Placed(2),
			order.Buying("ACCT-B", 3),
			order.Bought(4),
		).
		When(order.Continue()).
		ThenExpectEvents(t, order.Settled(testNow))

	calls := accounts.recorded()
	require.Len(t, calls, 2)
	require.Equal(t, "ACCT-A", calls[0].AccountID)
	require.Equal(t, account.Settle(orderID(), testNow, "ACCT-B", "ETH", 20), calls[0].Command)
	require.Equal(t, "ACCT-B", calls[1].AccountID)
	require.Equal(t, account.Settle(orderID(), testNow, "ACCT-A", "BTC", 10), calls[1].Command)
}

func TestContinueTreatsDuplicateSettleAsSuccess(t *testing.T) {
	// A retried Continue replays both settle legs; the first leg already
	// landed and reports a duplicate.
	accounts := &fakeAccounts{
		respond: func(accountID string, _ account.Command) error {
			if accountID == "ACCT-A" {
				return account.NewDuplicateTransactionError(4)
			}
			return nil
		},
	}
	framework(accounts).
		Given(
			order.Initialized(testConfig()),
			order.Placed(2),
			order.Buying("ACCT-B", 3),
			order.Bought(4),
		).
		When(order.Continue()).
		ThenExpectEvents(t, order.Settled(testNow))
}

func TestContinueStaysBoughtWhenSettleFails(t *testing.T) {
	accounts := &fakeAccounts{
		respond: func(accountID string, _ account.Command) error {
			if accountID == "ACCT-B" {
				return account.ErrAccountNotFound
			}
			return nil
		},
	}
	result := framework(accounts).
		Given(
			order.Initialized(testConfig()),
			order.Placed(2),
			order.Buying("ACCT-B", 3),
			order.Bought(4),
		).
		When(order.Continue())

	require.ErrorIs(t, result.Err(), account.ErrAccountNotFound)
	require.Empty(t, result.Events())
}

func TestCancelPlacedOrder(t *testing.T) {
	framework(&fakeAccounts{}).
		Given(order.Initialized(testConfig()), order.Placed(2)).
		When(order.Cancel("seller changed mind")).
		ThenExpectEvents(t, order.Cancelling(testNow, "seller changed mind"))
}

func TestContinueCancelsAfterUnlock(t *testing.T) {
	accounts := &fakeAccounts{}
	framework(accounts).
		Given(
			order.Initialized(testConfig()),
			order.Placed(2),
			order.Cancelling(3, "seller changed mind"),
		).
		When(order.Continue()).
		ThenExpectEvents(t, order.Cancelled(testNow))

	calls := accounts.recorded()
	require.Len(t, calls, 1)
	require.Equal(t, "ACCT-A", calls[0].AccountID)
	require.Equal(t, account.UnlockFunds(orderID()), calls[0].Command)
}

func TestContinueCancelToleratesMissingLock(t *testing.T) {
	accounts := &fakeAccounts{
		respond: func(string, account.Command) error { return account.ErrLockNotFound },
	}
	framework(accounts).
		Given(
			order.Initialized(testConfig()),
			order.Placed(2),
			order.Cancelling(3, "seller changed mind"),
		).
		When(order.Continue()).
		ThenExpectEvents(t, order.Cancelled(testNow))
}

func TestContinueOnTerminalStatesRejected(t *testing.T) {
	terminal := [][]order.Event{
		{order.Initialized(testConfig()), order.Failed(2, "no funds")},
		{order.Initialized(testConfig()), order.Placed(2), order.Cancelling(3, "x"), order.Cancelled(4)},
		{order.Initialized(testConfig()), order.Placed(2), order.Buying("ACCT-B", 3), order.Bought(4), order.Settled(5)},
	}
	for _, history := range terminal {
		result := framework(&fakeAccounts{}).
			Given(history...).
			When(order.Continue())

		var stateErr *order.StateError
		require.ErrorAs(t, result.Err(), &stateErr)
	}
}
