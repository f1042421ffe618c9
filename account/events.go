package account

import (
	"encoding/json"
	"fmt"

	"github.com/withobsrvr/asset-ledger/types"
)

// Event is the account event sum: exactly one of Lifecycle or Transaction
// is set.
type Event struct {
	Lifecycle   *LifecycleEvent
	Transaction *TransactionRecord
}

// LifecycleEventKind names the lifecycle event variants.
type LifecycleEventKind string

const (
	AccountOpenedEvent   LifecycleEventKind = "AccountOpened"
	AccountDisabledEvent LifecycleEventKind = "AccountDisabled"
	AccountEnabledEvent  LifecycleEventKind = "AccountEnabled"
	AccountClosedEvent   LifecycleEventKind = "AccountClosed"
)

// LifecycleEvent records an account lifecycle transition. AccountID is set
// for AccountOpened only.
type LifecycleEvent struct {
	Kind      LifecycleEventKind
	AccountID string
}

// TransactionRecord wraps a transaction event with its idempotency key and
// timestamp.
type TransactionRecord struct {
	Timestamp types.Timestamp
	Txid      types.ID32
	Event     TransactionEvent
}

// TransactionEventKind names the transaction event variants.
type TransactionEventKind string

const (
	DepositedEvent      TransactionEventKind = "Deposited"
	WithdrewEvent       TransactionEventKind = "Withdrew"
	DebitedEvent        TransactionEventKind = "Debited"
	DebitReversedEvent  TransactionEventKind = "DebitReversed"
	CreditedEvent       TransactionEventKind = "Credited"
	CreditReversedEvent TransactionEventKind = "CreditReversed"
	FundsLockedEvent    TransactionEventKind = "FundsLocked"
	FundsUnlockedEvent  TransactionEventKind = "FundsUnlocked"
	SettledEvent        TransactionEventKind = "Settled"
)

// TransactionEvent is one transaction event variant. The send/receive pair
// is meaningful for Settled only.
type TransactionEvent struct {
	Kind          TransactionEventKind
	Asset         types.Asset
	Amount        types.Amount
	ToAccount     string
	FromAccount   string
	SendAsset     types.Asset
	SendAmount    types.Amount
	ReceiveAsset  types.Asset
	ReceiveAmount types.Amount
}

// EventType implements cqrs.DomainEvent.
func (e Event) EventType() string {
	switch {
	case e.Lifecycle != nil:
		return "Lifecycle::" + string(e.Lifecycle.Kind)
	case e.Transaction != nil:
		return "Transaction::" + string(e.Transaction.Event.Kind)
	}
	return "Unknown"
}

// EventVersion implements cqrs.DomainEvent.
func (e Event) EventVersion() string { return "1.0" }

// Constructors for every event variant.

func AccountOpened(accountID string) Event {
	return Event{Lifecycle: &LifecycleEvent{Kind: AccountOpenedEvent, AccountID: accountID}}
}

func AccountDisabled() Event {
	return Event{Lifecycle: &LifecycleEvent{Kind: AccountDisabledEvent}}
}

func AccountEnabled() Event {
	return Event{Lifecycle: &LifecycleEvent{Kind: AccountEnabledEvent}}
}

func AccountClosed() Event {
	return Event{Lifecycle: &LifecycleEvent{Kind: AccountClosedEvent}}
}

func transactionEvent(txid types.ID32, timestamp types.Timestamp, event TransactionEvent) Event {
	return Event{Transaction: &TransactionRecord{Timestamp: timestamp, Txid: txid, Event: event}}
}

func Deposited(txid types.ID32, timestamp types.Timestamp, asset types.Asset, amount types.Amount) Event {
	return transactionEvent(txid, timestamp, TransactionEvent{Kind: DepositedEvent, Asset: asset, Amount: amount})
}

func Withdrew(txid types.ID32, timestamp types.Timestamp, asset types.Asset, amount types.Amount) Event {
	return transactionEvent(txid, timestamp, TransactionEvent{Kind: WithdrewEvent, Asset: asset, Amount: amount})
}

func Debited(txid types.ID32, timestamp types.Timestamp, toAccount string, asset types.Asset, amount types.Amount) Event {
	return transactionEvent(txid, timestamp, TransactionEvent{Kind: DebitedEvent, ToAccount: toAccount, Asset: asset, Amount: amount})
}

func DebitReversed(txid types.ID32, timestamp types.Timestamp, toAccount string, asset types.Asset, amount types.Amount) Event {
	return transactionEvent(txid, timestamp, TransactionEvent{Kind: DebitReversedEvent, ToAccount: toAccount, Asset: asset, Amount: amount})
}

func Credited(txid types.ID32, timestamp types.Timestamp, fromAccount string, asset types.Asset, amount types.Amount) Event {
	return transactionEvent(txid, timestamp, TransactionEvent{Kind: CreditedEvent, FromAccount: fromAccount, Asset: asset, Amount: amount})
}

func CreditReversed(txid types.ID32, timestamp types.Timestamp, fromAccount string, asset types.Asset, amount types.Amount) Event {
	return transactionEvent(txid, timestamp, TransactionEvent{Kind: CreditReversedEvent, FromAccount: fromAccount, Asset: asset, Amount: amount})
}

func FundsLocked(txid types.ID32, timestamp types.Timestamp, asset types.Asset, amount types.Amount) Event {
	return transactionEvent(txid, timestamp, TransactionEvent{Kind: FundsLockedEvent, Asset: asset, Amount: amount})
}

func FundsUnlocked(txid types.ID32, timestamp types.Timestamp, asset types.Asset, amount types.Amount) Event {
	return transactionEvent(txid, timestamp, TransactionEvent{Kind: FundsUnlockedEvent, Asset: asset, Amount: amount})
}

func Settled(txid types.ID32, timestamp types.Timestamp, toAccount string, sendAsset types.Asset, sendAmount types.Amount, receiveAsset types.Asset, receiveAmount types.Amount) Event {
	return transactionEvent(txid, timestamp, TransactionEvent{
		Kind:          SettledEvent,
		ToAccount:     toAccount,
		SendAsset:     sendAsset,
		SendAmount:    sendAmount,
		ReceiveAsset:  receiveAsset,
		ReceiveAmount: receiveAmount,
	})
}

// JSON wire form.

type settledPayload struct {
	ToAccount     string       `json:"to_account"`
	SendAsset     types.Asset  `json:"send_asset"`
	SendAmount    types.Amount `json:"send_amount"`
	ReceiveAsset  types.Asset  `json:"receive_asset"`
	ReceiveAmount types.Amount `json:"receive_amount"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch {
	case e.Lifecycle != nil:
		return types.MarshalTagged("Lifecycle", e.Lifecycle)
	case e.Transaction != nil:
		return types.MarshalTagged("Transaction", e.Transaction)
	}
	return nil, fmt.Errorf("empty account event")
}

func (e *Event) UnmarshalJSON(data []byte) error {
	tag, payload, err := types.UnmarshalTagged(data)
	if err != nil {
		return err
	}
	switch tag {
	case "Lifecycle":
		var lifecycle LifecycleEvent
		if err := json.Unmarshal(payload, &lifecycle); err != nil {
			return err
		}
		*e = Event{Lifecycle: &lifecycle}
	case "Transaction":
		var record TransactionRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return err
		}
		*e = Event{Transaction: &record}
	default:
		return fmt.Errorf("unknown account event %q", tag)
	}
	return nil
}

func (l LifecycleEvent) MarshalJSON() ([]byte, error) {
	switch l.Kind {
	case AccountOpenedEvent:
		return types.MarshalTagged(string(AccountOpenedEvent), struct {
			AccountID string `json:"account_id"`
		}{l.AccountID})
	case AccountDisabledEvent, AccountEnabledEvent, AccountClosedEvent:
		return types.MarshalUnit(string(l.Kind))
	}
	return nil, fmt.Errorf("unknown lifecycle event %q", l.Kind)
}

func (l *LifecycleEvent) UnmarshalJSON(data []byte) error {
	tag, payload, err := types.UnmarshalTagged(data)
	if err != nil {
		return err
	}
	switch LifecycleEventKind(tag) {
	case AccountOpenedEvent:
		var opened struct {
			AccountID string `json:"account_id"`
		}
		if err := json.Unmarshal(payload, &opened); err != nil {
			return err
		}
		*l = LifecycleEvent{Kind: AccountOpenedEvent, AccountID: opened.AccountID}
	case AccountDisabledEvent, AccountEnabledEvent, AccountClosedEvent:
		*l = LifecycleEvent{Kind: LifecycleEventKind(tag)}
	default:
		return fmt.Errorf("unknown lifecycle event %q", tag)
	}
	return nil
}

func (t TransactionRecord) MarshalJSON() ([]byte, error) {
	event, err := t.Event.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Timestamp types.Timestamp `json:"timestamp"`
		Txid      types.ID32      `json:"txid"`
		Event     json.RawMessage `json:"event"`
	}{t.Timestamp, t.Txid, event})
}

func (t *TransactionRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		Timestamp types.Timestamp `json:"timestamp"`
		Txid      types.ID32      `json:"txid"`
		Event     json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var event TransactionEvent
	if err := event.UnmarshalJSON(raw.Event); err != nil {
		return err
	}
	*t = TransactionRecord{Timestamp: raw.Timestamp, Txid: raw.Txid, Event: event}
	return nil
}

func (t TransactionEvent) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case DepositedEvent, WithdrewEvent, FundsLockedEvent, FundsUnlockedEvent:
		return types.MarshalTagged(string(t.Kind), assetAmountPayload{t.Asset, t.Amount})
	case DebitedEvent, DebitReversedEvent:
		return types.MarshalTagged(string(t.Kind), toAccountPayload{t.ToAccount, t.Asset, t.Amount})
	case CreditedEvent, CreditReversedEvent:
		return types.MarshalTagged(string(t.Kind), fromAccountPayload{t.FromAccount, t.Asset, t.Amount})
	case SettledEvent:
		return types.MarshalTagged(string(SettledEvent), settledPayload{
			t.ToAccount, t.SendAsset, t.SendAmount, t.ReceiveAsset, t.ReceiveAmount,
		})
	}
	return nil, fmt.Errorf("unknown transaction event %q", t.Kind)
}

func (t *TransactionEvent) UnmarshalJSON(data []byte) error {
	tag, payload, err := types.UnmarshalTagged(data)
	if err != nil {
		return err
	}
	kind := TransactionEventKind(tag)
	switch kind {
	case DepositedEvent, WithdrewEvent, FundsLockedEvent, FundsUnlockedEvent:
		var p assetAmountPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*t = TransactionEvent{Kind: kind, Asset: p.Asset, Amount: p.Amount}
	case DebitedEvent, DebitReversedEvent:
		var p toAccountPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*t = TransactionEvent{Kind: kind, ToAccount: p.ToAccount, Asset: p.Asset, Amount: p.Amount}
	case CreditedEvent, CreditReversedEvent:
		var p fromAccountPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*t = TransactionEvent{Kind: kind, FromAccount: p.FromAccount, Asset: p.Asset, Amount: p.Amount}
	case SettledEvent:
		var p settledPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*t = TransactionEvent{
			Kind:          SettledEvent,
			ToAccount:     p.ToAccount,
			SendAsset:     p.SendAsset,
			SendAmount:    p.SendAmount,
			ReceiveAsset:  p.ReceiveAsset,
			ReceiveAmount: p.ReceiveAmount,
		}
	default:
		return fmt.Errorf("unknown transaction event %q", tag)
	}
	return nil
}
