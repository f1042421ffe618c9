package transfer_test

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
	"github.com/withobsrvr/asset-ledger/transfer"
	"github.com/withobsrvr/asset-ledger/types"
)

const testNow = types.Timestamp(42)

type accountCall struct {
	AccountID string
	Command   account.Command
}

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

func transferID() types.ID32 {
	var id types.ID32
	id[0] = 0xBB
	return id
}

func testInvoice() transfer.Invoice {
	return transfer.Invoice{
		TransferID:  transferID(),
		FromAccount: "ACCT-X",
		ToAccount:   "ACCT-Y",
		Asset:       "BTC",
		Amount:      200,
		Timestamp:   1,
		Description: "rent",
	}
}

func framework(accounts *fakeAccounts) *cqrs.TestFramework[*transfer.Transfer, transfer.Command, transfer.Event] {
	services := transfer.NewServices(accounts, zap.NewNop())
	services.Clock = func() types.Timestamp { return testNow }
	return cqrs.NewTestFramework[*transfer.Transfer, transfer.Command, transfer.Event](transfer.NewTransfer(services))
}

func TestOpenTransfer(t *testing.T) {
	framework(&fakeAccounts{}).
		GivenNoPreviousEvents().
		When(transfer.Open(testInvoice())).
		ThenExpectEvents(t, transfer.Opened(testInvoice()))
}

func TestContinueDebitsThenCredits(t *testing.T) {
	accounts := &fakeAccounts{}
	framework(accounts).
		Given(transfer.Opened(testInvoice())).
		When(transfer.Continue()).
		ThenExpectEvents(t, transfer.Done(testNow))

	calls := accounts.recorded()
	require.Len(t, calls, 2)
	require.Equal(t, "ACCT-X", calls[0].AccountID)
	require.Equal(t, account.Debit(transferID(), testNow, "ACCT-Y", "BTC", 200), calls[0].Command)
	require.Equal(t, "ACCT-Y", calls[1].AccountID)
	require.Equal(t, account.Credit(transferID(), testNow, "ACCT-X", "BTC", 200), calls[1].Command)
}

func TestContinueTreatsDuplicateLegsAsSuccess(t *testing.T) {
	// A Continue retried after a crash replays both legs; the account
	// aggregates answer duplicate and the saga converges to Done.
	accounts := &fakeAccounts{
		respond: func(string, account.Command) error {
			return account.NewDuplicateTransactionError(5)
		},
	}
	framework(accounts).
		Given(transfer.Opened(testInvoice())).
		When(transfer.Continue()).
		ThenExpectEvents(t, transfer.Done(testNow))
}

func TestContinueFailsWhenDebitRejected(t *testing.T) {
	accounts := &fakeAccounts{
		respond: func(string, account.Command) error { return account.ErrInsufficientFunds },
	}
	framework(accounts).
		Given(transfer.Opened(testInvoice())).
		When(transfer.Continue()).
		ThenExpectEvents(t, transfer.Failed(account.ErrInsufficientFunds.Error(), testNow))

	// The debit never landed; no compensation and no credit attempt.
	time.Sleep(50 * time.Millisecond)
	require.Len(t, accounts.recorded(), 1)
}

func TestContinueReversesDebitWhenCreditRejected(t *testing.T) {
	accounts := &fakeAccounts{
		respond: func(accountID string, cmd account.Command) error {
			if accountID == "ACCT-Y" && cmd.Transaction.Op.Kind == account.OpCredit {
				return account.ErrAccountNotFound
			}
			return nil
		},
	}
	framework(accounts).
		Given(transfer.Opened(testInvoice())).
		When(transfer.Continue()).
		ThenExpectEvents(t, transfer.Failed(account.ErrAccountNotFound.Error(), testNow))

	// Debit, credit attempt, then the fired compensation.
	calls := accounts.waitForCalls(t, 3)
	require.Equal(t, "ACCT-X", calls[2].AccountID)
	require.Equal(t, account.OpReverseDebit, calls[2].Command.Transaction.Op.Kind)
	require.Equal(t, transferID(), calls[2].Command.Transaction.Txid)
}

func TestContinueKeepsDebitOnCreditInfrastructureError(t *testing.T) {
	infra := &cqrs.AggregateError{Op: "append events", Err: errors.New("connection reset")}
	accounts := &fakeAccounts{
		respond: func(accountID string, _ account.Command) error {
			if accountID == "ACCT-Y" {
				return infra
			}
			return nil
		},
	}
	result := framework(accounts).
		Given(transfer.Opened(testInvoice())).
		When(transfer.Continue())

	require.True(t, cqrs.IsInfrastructure(result.Err()))
	require.Empty(t, result.Events())

	// Infrastructure failures are not compensated: the debit stays and a
	// retried Continue finishes the credit.
	time.Sleep(50 * time.Millisecond)
	require.Len(t, accounts.recorded(), 2)
}

func TestCancelOpenedTransfer(t *testing.T) {
	framework(&fakeAccounts{}).
		Given(transfer.Opened(testInvoice())).
		When(transfer.Cancel("fat finger")).
		ThenExpectEvents(t, transfer.Cancelled("fat finger"))
}

func TestCommandsRejectedOutsideOpened(t *testing.T) {
	histories := [][]transfer.Event{
		nil,
		{transfer.Opened(testInvoice()), transfer.Done(2)},
		{transfer.Opened(testInvoice()), transfer.Failed("no funds", 2)},
		{transfer.Opened(testInvoice()), transfer.Cancelled("fat finger")},
	}
	for _, history := range histories {
		result := framework(&fakeAccounts{}).
			Given(history...).
			When(transfer.Continue())

		var stateErr *transfer.StateError
		require.ErrorAs(t, result.Err(), &stateErr)
	}

	result := framework(&fakeAccounts{}).
		Given(transfer.Opened(testInvoice())).
		When(transfer.Open(testInvoice()))
	var stateErr *transfer.StateError
	require.ErrorAs(t, result.Err(), &stateErr)
}
