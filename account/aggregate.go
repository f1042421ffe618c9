package account

import (
	"context"
	"fmt"

	"github.com/withobsrvr/asset-ledger/cqrs"
	"github.com/withobsrvr/asset-ledger/types"
)

// Status is the account lifecycle tag.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusInService     Status = "in_service"
	StatusDisabled      Status = "disabled"
	StatusClosed        Status = "closed"
)

// ReservedFunds is the (asset, amount) pair held under a lock id.
type ReservedFunds struct {
	Asset  types.Asset  `json:"asset"`
	Amount types.Amount `json:"amount"`
}

// State carries the balances, locks and dedup window of an open account.
type State struct {
	AccountID string                       `json:"account_id"`
	Assets    map[types.Asset]types.Amount `json:"assets"`
	Locks     map[types.ID32]ReservedFunds `json:"locks"`
	Processed *ProcessedTransactions       `json:"processed"`
}

func newState(accountID string) *State {
	return &State{
		AccountID: accountID,
		Assets:    make(map[types.Asset]types.Amount),
		Locks:     make(map[types.ID32]ReservedFunds),
		Processed: NewProcessedTransactions(DefaultTTL),
	}
}

func (s *State) isEmpty() bool {
	return len(s.Assets) == 0 && len(s.Locks) == 0
}

func (s *State) balance(asset types.Asset) types.Amount {
	return s.Assets[asset]
}

func (s *State) add(asset types.Asset, amount types.Amount) {
	s.Assets[asset] = types.CheckedAdd(s.balance(asset), amount)
}

// sub drops the asset row when the balance reaches zero so that a drained
// account satisfies the empty-assets requirement of Close.
func (s *State) sub(asset types.Asset, amount types.Amount) {
	remaining := types.CheckedSub(s.balance(asset), amount)
	if remaining == 0 {
		delete(s.Assets, asset)
		return
	}
	s.Assets[asset] = remaining
}

// saveTxid records an effecting transaction in the dedup window. The
// command handler already rejected duplicates, so a collision here is a
// programming error.
func (s *State) saveTxid(txid types.ID32, timestamp types.Timestamp) {
	if _, inserted := s.Processed.Insert(txid, timestamp); !inserted {
		panic(fmt.Sprintf("txid %s already recorded", txid))
	}
}

// removeTxid erases a reversed transaction from the dedup window.
func (s *State) removeTxid(txid types.ID32) {
	if _, ok := s.Processed.Remove(txid); !ok {
		panic(fmt.Sprintf("txid %s not recorded", txid))
	}
}

// Account is the per-account state machine: the single source of truth for
// balances and locked funds. All writes flow through Handle; Apply folds
// committed events back into state during replay.
type Account struct {
	Status Status `json:"status"`
	State  *State `json:"state,omitempty"`
}

// Engine is the command engine instantiated for the account aggregate.
type Engine = cqrs.Engine[*Account, Command, Event]

// NewAccount is the engine factory for the account aggregate.
func NewAccount() *Account {
	return &Account{Status: StatusUninitialized}
}

// AggregateType implements cqrs.Aggregate.
func (a *Account) AggregateType() string { return "account" }

// Handle validates one command against current state and returns the
// resulting events. The bulk of the domain logic lives here.
func (a *Account) Handle(_ context.Context, cmd Command) ([]Event, error) {
	switch {
	case cmd.Lifecycle != nil:
		return a.handleLifecycle(*cmd.Lifecycle)
	case cmd.Transaction != nil:
		return a.handleTransaction(*cmd.Transaction)
	}
	return nil, ErrInvalidTransaction
}

func (a *Account) handleLifecycle(cmd LifecycleCommand) ([]Event, error) {
	switch cmd.Kind {
	case LifecycleOpen:
		// Closed -> Open is a deliberate re-open with fresh state.
		if a.Status == StatusUninitialized || a.Status == StatusClosed {
			return []Event{AccountOpened(cmd.AccountID)}, nil
		}
		return nil, ErrAccountAlreadyExists
	case LifecycleDisable:
		if a.Status == StatusInService {
			return []Event{AccountDisabled()}, nil
		}
		return nil, ErrAccountNotInService
	case LifecycleEnable:
		if a.Status == StatusDisabled {
			return []Event{AccountEnabled()}, nil
		}
		return nil, ErrAccountNotDisabled
	case LifecycleClose:
		switch a.Status {
		case StatusInService, StatusDisabled:
			if !a.State.isEmpty() {
				return nil, ErrAccountNotEmpty
			}
			return []Event{AccountClosed()}, nil
		default:
			return nil, ErrAccountNotFound
		}
	}
	return nil, ErrInvalidTransaction
}

func (a *Account) handleTransaction(cmd TransactionCommand) ([]Event, error) {
	switch a.Status {
	case StatusUninitialized, StatusClosed:
		return nil, ErrAccountNotFound
	case StatusDisabled:
		return nil, ErrAccountNotInService
	}
	state := a.State
	txid, timestamp := cmd.Txid, cmd.Timestamp
	op := cmd.Op

	switch op.Kind {
	case OpDeposit:
		if prior, ok := state.Processed.Timestamp(txid); ok {
			return nil, NewDuplicateTransactionError(prior)
		}
		if types.AddWouldOverflow(state.balance(op.Asset), op.Amount) {
			return nil, ErrInvalidTransaction
		}
		return []Event{Deposited(txid, timestamp, op.Asset, op.Amount)}, nil

	case OpWithdraw:
		if prior, ok := state.Processed.Timestamp(txid); ok {
			return nil, NewDuplicateTransactionError(prior)
		}
		if state.balance(op.Asset) < op.Amount {
			return nil, ErrInsufficientFunds
		}
		return []Event{Withdrew(txid, timestamp, op.Asset, op.Amount)}, nil

	case OpDebit:
		if prior, ok := state.Processed.Timestamp(txid); ok {
			return nil, NewDuplicateTransactionError(prior)
		}
		if state.balance(op.Asset) < op.Amount {
			return nil, ErrInsufficientFunds
		}
		return []Event{Debited(txid, timestamp, op.ToAccount, op.Asset, op.Amount)}, nil

	case OpCredit:
		if prior, ok := state.Processed.Timestamp(txid); ok {
			return nil, NewDuplicateTransactionError(prior)
		}
		if types.AddWouldOverflow(state.balance(op.Asset), op.Amount) {
			return nil, ErrInvalidTransaction
		}
		return []Event{Credited(txid, timestamp, op.FromAccount, op.Asset, op.Amount)}, nil

	case OpReverseDebit:
		// The reversal is valid only if the original txid is still known:
		// its presence is the proof that the debit landed. The emitted
		// event carries the original first-seen timestamp.
		if original, ok := state.Processed.Timestamp(txid); ok {
			return []Event{DebitReversed(txid, original, op.ToAccount, op.Asset, op.Amount)}, nil
		}
		return nil, ErrTransactionNotFound

	case OpReverseCredit:
		if original, ok := state.Processed.Timestamp(txid); ok {
			if state.balance(op.Asset) < op.Amount {
				return nil, ErrInsufficientFunds
			}
			return []Event{CreditReversed(txid, original, op.FromAccount, op.Asset, op.Amount)}, nil
		}
		return nil, ErrTransactionNotFound

	case OpLockFunds:
		// Locks are keyed by their own id (the txid), not by the dedup
		// window.
		if _, ok := state.Locks[txid]; ok {
			return nil, ErrDuplicateLock
		}
		if state.balance(op.Asset) < op.Amount {
			return nil, ErrInsufficientFunds
		}
		return []Event{FundsLocked(txid, timestamp, op.Asset, op.Amount)}, nil

	case OpUnlockFunds:
		locked, ok := state.Locks[txid]
		if !ok {
			return nil, ErrLockNotFound
		}
		return []Event{FundsUnlocked(txid, timestamp, locked.Asset, locked.Amount)}, nil

	case OpSettle:
		if prior, ok := state.Processed.Timestamp(txid); ok {
			return nil, NewDuplicateTransactionError(prior)
		}
		locked, ok := state.Locks[txid]
		if !ok {
			return nil, ErrLockNotFound
		}
		if types.AddWouldOverflow(state.balance(op.ReceiveAsset), op.ReceiveAmount) {
			return nil, ErrInvalidTransaction
		}
		// The event captures both legs: the lock is delivered to the
		// counterparty and the receive leg is credited here.
		return []Event{Settled(txid, timestamp, op.ToAccount, locked.Asset, locked.Amount, op.ReceiveAsset, op.ReceiveAmount)}, nil
	}
	return nil, ErrInvalidTransaction
}

// Apply implements cqrs.Aggregate. Arithmetic is strict: an overflow or
// underflow here means the handler emitted an event it should have
// rejected, and the process aborts.
func (a *Account) Apply(event Event) {
	switch {
	case event.Lifecycle != nil:
		a.applyLifecycle(*event.Lifecycle)
	case event.Transaction != nil:
		a.applyTransaction(*event.Transaction)
	}
}

func (a *Account) applyLifecycle(event LifecycleEvent) {
	switch event.Kind {
	case AccountOpenedEvent:
		a.Status = StatusInService
		a.State = newState(event.AccountID)
	case AccountDisabledEvent:
		if a.Status != StatusInService {
			panic("account should be in service")
		}
		a.Status = StatusDisabled
	case AccountEnabledEvent:
		if a.Status != StatusDisabled {
			panic("account should be disabled")
		}
		a.Status = StatusInService
	case AccountClosedEvent:
		a.Status = StatusClosed
		a.State = nil
	}
}

func (a *Account) applyTransaction(record TransactionRecord) {
	if a.Status != StatusInService {
		panic("account should be in service")
	}
	state := a.State
	txid, timestamp := record.Txid, record.Timestamp
	event := record.Event

	switch event.Kind {
	case DepositedEvent:
		state.saveTxid(txid, timestamp)
		state.add(event.Asset, event.Amount)

	case WithdrewEvent:
		state.saveTxid(txid, timestamp)
		state.sub(event.Asset, event.Amount)

	case DebitedEvent:
		state.saveTxid(txid, timestamp)
		state.sub(event.Asset, event.Amount)

	case DebitReversedEvent:
		state.removeTxid(txid)
		state.add(event.Asset, event.Amount)

	case CreditedEvent:
		state.saveTxid(txid, timestamp)
		state.add(event.Asset, event.Amount)

	case CreditReversedEvent:
		state.removeTxid(txid)
		state.sub(event.Asset, event.Amount)

	case FundsLockedEvent:
		state.sub(event.Asset, event.Amount)
		state.Locks[txid] = ReservedFunds{Asset: event.Asset, Amount: event.Amount}

	case FundsUnlockedEvent:
		locked, ok := state.Locks[txid]
		if !ok {
			panic(fmt.Sprintf("lock %s not found", txid))
		}
		delete(state.Locks, txid)
		state.add(locked.Asset, locked.Amount)

	case SettledEvent:
		state.saveTxid(txid, timestamp)
		if _, ok := state.Locks[txid]; !ok {
			panic(fmt.Sprintf("lock %s not found", txid))
		}
		// The locked amount is delivered to the counterparty; the receive
		// leg carried by the event lands here, so replayed state matches
		// the projected views.
		delete(state.Locks, txid)
		state.add(event.ReceiveAsset, event.ReceiveAmount)
	}
}
