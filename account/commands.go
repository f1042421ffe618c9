package account

import (
	"encoding/json"
	"fmt"

	"github.com/withobsrvr/asset-ledger/types"
)

// Command is the account command sum: exactly one of Lifecycle or
// Transaction is set.
type Command struct {
	Lifecycle   *LifecycleCommand
	Transaction *TransactionCommand
}

// LifecycleCommandKind names the lifecycle variants.
type LifecycleCommandKind string

const (
	LifecycleOpen    LifecycleCommandKind = "Open"
	LifecycleDisable LifecycleCommandKind = "Disable"
	LifecycleEnable  LifecycleCommandKind = "Enable"
	LifecycleClose   LifecycleCommandKind = "Close"
)

// LifecycleCommand opens, disables, enables or closes an account.
// AccountID is set for Open only.
type LifecycleCommand struct {
	Kind      LifecycleCommandKind
	AccountID string
}

// TransactionCommand carries a balance-affecting operation with its
// idempotency key and submission timestamp.
type TransactionCommand struct {
	Txid      types.ID32
	Timestamp types.Timestamp
	Op        Operation
}

// OperationKind names the transaction variants.
type OperationKind string

const (
	OpDeposit       OperationKind = "Deposit"
	OpWithdraw      OperationKind = "Withdraw"
	OpDebit         OperationKind = "Debit"
	OpReverseDebit  OperationKind = "ReverseDebit"
	OpCredit        OperationKind = "Credit"
	OpReverseCredit OperationKind = "ReverseCredit"
	OpLockFunds     OperationKind = "LockFunds"
	OpUnlockFunds   OperationKind = "UnlockFunds"
	OpSettle        OperationKind = "Settle"
)

// Operation is one transaction variant. Which fields are meaningful depends
// on Kind: Debit/ReverseDebit and Settle address ToAccount,
// Credit/ReverseCredit address FromAccount, Settle carries the receive leg.
type Operation struct {
	Kind          OperationKind
	Asset         types.Asset
	Amount        types.Amount
	ToAccount     string
	FromAccount   string
	ReceiveAsset  types.Asset
	ReceiveAmount types.Amount
}

// Constructors for every command variant, mirroring the wire form.

func OpenAccount(accountID string) Command {
	return Command{Lifecycle: &LifecycleCommand{Kind: LifecycleOpen, AccountID: accountID}}
}

func DisableAccount() Command {
	return Command{Lifecycle: &LifecycleCommand{Kind: LifecycleDisable}}
}

func EnableAccount() Command {
	return Command{Lifecycle: &LifecycleCommand{Kind: LifecycleEnable}}
}

func CloseAccount() Command {
	return Command{Lifecycle: &LifecycleCommand{Kind: LifecycleClose}}
}

func transaction(txid types.ID32, timestamp types.Timestamp, op Operation) Command {
	return Command{Transaction: &TransactionCommand{Txid: txid, Timestamp: timestamp, Op: op}}
}

func Deposit(txid types.ID32, timestamp types.Timestamp, asset types.Asset, amount types.Amount) Command {
	return transaction(txid, timestamp, Operation{Kind: OpDeposit, Asset: asset, Amount: amount})
}

func Withdraw(txid types.ID32, timestamp types.Timestamp, asset types.Asset, amount types.Amount) Command {
	return transaction(txid, timestamp, Operation{Kind: OpWithdraw, Asset: asset, Amount: amount})
}

func Debit(txid types.ID32, timestamp types.Timestamp, toAccount string, asset types.Asset, amount types.Amount) Command {
	return transaction(txid, timestamp, Operation{Kind: OpDebit, ToAccount: toAccount, Asset: asset, Amount: amount})
}

func ReverseDebit(txid types.ID32, timestamp types.Timestamp, toAccount string, asset types.Asset, amount types.Amount) Command {
	return transaction(txid, timestamp, Operation{Kind: OpReverseDebit, ToAccount: toAccount, Asset: asset, Amount: amount})
}

func Credit(txid types.ID32, timestamp types.Timestamp, fromAccount string, asset types.Asset, amount types.Amount) Command {
	return transaction(txid, timestamp, Operation{Kind: OpCredit, FromAccount: fromAccount, Asset: asset, Amount: amount})
}

func ReverseCredit(txid types.ID32, timestamp types.Timestamp, fromAccount string, asset types.Asset, amount types.Amount) Command {
	return transaction(txid, timestamp, Operation{Kind: OpReverseCredit, FromAccount: fromAccount, Asset: asset, Amount: amount})
}

// LockFunds reserves amount of asset under a lock whose id is the txid.
func LockFunds(txid types.ID32, timestamp types.Timestamp, asset types.Asset, amount types.Amount) Command {
	return transaction(txid, timestamp, Operation{Kind: OpLockFunds, Asset: asset, Amount: amount})
}

// UnlockFunds releases the lock whose id is the txid.
func UnlockFunds(txid types.ID32) Command {
	return transaction(txid, 0, Operation{Kind: OpUnlockFunds})
}

// Settle delivers the lock whose id is the txid to toAccount, recording the
// receive leg of the swap in the emitted event.
func Settle(txid types.ID32, timestamp types.Timestamp, toAccount string, receiveAsset types.Asset, receiveAmount types.Amount) Command {
	return transaction(txid, timestamp, Operation{
		Kind:          OpSettle,
		ToAccount:     toAccount,
		ReceiveAsset:  receiveAsset,
		ReceiveAmount: receiveAmount,
	})
}

// JSON wire form: externally tagged sums; unit variants are bare strings.

type assetAmountPayload struct {
	Asset  types.Asset  `json:"asset"`
	Amount types.Amount `json:"amount"`
}

type toAccountPayload struct {
	ToAccount string       `json:"to_account"`
	Asset     types.Asset  `json:"asset"`
	Amount    types.Amount `json:"amount"`
}

type fromAccountPayload struct {
	FromAccount string       `json:"from_account"`
	Asset       types.Asset  `json:"asset"`
	Amount      types.Amount `json:"amount"`
}

type settlePayload struct {
	ToAccount     string       `json:"to_account"`
	ReceiveAsset  types.Asset  `json:"receive_asset"`
	ReceiveAmount types.Amount `json:"receive_amount"`
}

func (c Command) MarshalJSON() ([]byte, error) {
	switch {
	case c.Lifecycle != nil:
		return types.MarshalTagged("Lifecycle", c.Lifecycle)
	case c.Transaction != nil:
		return types.MarshalTagged("Transaction", c.Transaction)
	}
	return nil, fmt.Errorf("empty account command")
}

func (c *Command) UnmarshalJSON(data []byte) error {
	tag, payload, err := types.UnmarshalTagged(data)
	if err != nil {
		return err
	}
	switch tag {
	case "Lifecycle":
		var lifecycle LifecycleCommand
		if err := json.Unmarshal(payload, &lifecycle); err != nil {
			return err
		}
		*c = Command{Lifecycle: &lifecycle}
	case "Transaction":
		var txn TransactionCommand
		if err := json.Unmarshal(payload, &txn); err != nil {
			return err
		}
		*c = Command{Transaction: &txn}
	default:
		return fmt.Errorf("unknown account command %q", tag)
	}
	return nil
}

func (l LifecycleCommand) MarshalJSON() ([]byte, error) {
	switch l.Kind {
	case LifecycleOpen:
		return types.MarshalTagged("Open", struct {
			AccountID string `json:"account_id"`
		}{l.AccountID})
	case LifecycleDisable, LifecycleEnable, LifecycleClose:
		return types.MarshalUnit(string(l.Kind))
	}
	return nil, fmt.Errorf("unknown lifecycle command %q", l.Kind)
}

func (l *LifecycleCommand) UnmarshalJSON(data []byte) error {
	tag, payload, err := types.UnmarshalTagged(data)
	if err != nil {
		return err
	}
	switch LifecycleCommandKind(tag) {
	case LifecycleOpen:
		var open struct {
			AccountID string `json:"account_id"`
		}
		if err := json.Unmarshal(payload, &open); err != nil {
			return err
		}
		*l = LifecycleCommand{Kind: LifecycleOpen, AccountID: open.AccountID}
	case LifecycleDisable, LifecycleEnable, LifecycleClose:
		*l = LifecycleCommand{Kind: LifecycleCommandKind(tag)}
	default:
		return fmt.Errorf("unknown lifecycle command %q", tag)
	}
	return nil
}

func (t TransactionCommand) MarshalJSON() ([]byte, error) {
	op, err := t.Op.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Txid      types.ID32      `json:"txid"`
		Timestamp types.Timestamp `json:"timestamp"`
		Command   json.RawMessage `json:"command"`
	}{t.Txid, t.Timestamp, op})
}

func (t *TransactionCommand) UnmarshalJSON(data []byte) error {
	var raw struct {
		Txid      types.ID32      `json:"txid"`
		Timestamp types.Timestamp `json:"timestamp"`
		Command   json.RawMessage `json:"command"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var op Operation
	if err := op.UnmarshalJSON(raw.Command); err != nil {
		return err
	}
	*t = TransactionCommand{Txid: raw.Txid, Timestamp: raw.Timestamp, Op: op}
	return nil
}

func (o Operation) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case OpDeposit, OpWithdraw, OpLockFunds:
		return types.MarshalTagged(string(o.Kind), assetAmountPayload{o.Asset, o.Amount})
	case OpDebit, OpReverseDebit:
		return types.MarshalTagged(string(o.Kind), toAccountPayload{o.ToAccount, o.Asset, o.Amount})
	case OpCredit, OpReverseCredit:
		return types.MarshalTagged(string(o.Kind), fromAccountPayload{o.FromAccount, o.Asset, o.Amount})
	case OpUnlockFunds:
		return types.MarshalUnit(string(OpUnlockFunds))
	case OpSettle:
		return types.MarshalTagged(string(OpSettle), settlePayload{o.ToAccount, o.ReceiveAsset, o.ReceiveAmount})
	}
	return nil, fmt.Errorf("unknown transaction command %q", o.Kind)
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	tag, payload, err := types.UnmarshalTagged(data)
	if err != nil {
		return err
	}
	kind := OperationKind(tag)
	switch kind {
	case OpDeposit, OpWithdraw, OpLockFunds:
		var p assetAmountPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*o = Operation{Kind: kind, Asset: p.Asset, Amount: p.Amount}
	case OpDebit, OpReverseDebit:
		var p toAccountPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*o = Operation{Kind: kind, ToAccount: p.ToAccount, Asset: p.Asset, Amount: p.Amount}
	case OpCredit, OpReverseCredit:
		var p fromAccountPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*o = Operation{Kind: kind, FromAccount: p.FromAccount, Asset: p.Asset, Amount: p.Amount}
	case OpUnlockFunds:
		*o = Operation{Kind: OpUnlockFunds}
	case OpSettle:
		var p settlePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*o = Operation{Kind: OpSettle, ToAccount: p.ToAccount, ReceiveAsset: p.ReceiveAsset, ReceiveAmount: p.ReceiveAmount}
	default:
		return fmt.Errorf("unknown transaction command %q", tag)
	}
	return nil
}
