package account

import (
	"github.com/withobsrvr/asset-ledger/cqrs"
	"github.com/withobsrvr/asset-ledger/types"
)

// RecentLedgerSize bounds the per-account ledger deque in the view.
const RecentLedgerSize = 100

// ViewName is the read-side row family for account views.
const ViewName = "account_query"

// View is the read-side DTO for one account: the materialized answer to
// GET /account/{id}. Keep the update logic minimal — the events carry the
// information, the view just folds it.
type View struct {
	AccountID     string                       `json:"account_id"`
	IsDisabled    bool                         `json:"is_disabled"`
	Balance       map[types.Asset]types.Amount `json:"balance"`
	LockedBalance map[types.Asset]types.Amount `json:"locked_balance"`
	RecentLedger  []LedgerEntry                `json:"recent_ledger"`
}

// LedgerEntry is one line of the recent-activity deque, newest first.
type LedgerEntry struct {
	Timestamp types.Timestamp `json:"timestamp"`
	Txid      string          `json:"txid"`
	Detail    LedgerDetail    `json:"detail"`
}

// LedgerDetail describes the transaction behind a ledger entry. Type
// discriminates; the remaining fields are populated per type.
type LedgerDetail struct {
	Type          string       `json:"@t"`
	Asset         types.Asset  `json:"asset,omitempty"`
	Amount        types.Amount `json:"amount,omitempty"`
	ToAccount     string       `json:"to_account,omitempty"`
	FromAccount   string       `json:"from_account,omitempty"`
	SendAsset     types.Asset  `json:"send_asset,omitempty"`
	SendAmount    types.Amount `json:"send_amount,omitempty"`
	ReceiveAsset  types.Asset  `json:"receive_asset,omitempty"`
	ReceiveAmount types.Amount `json:"receive_amount,omitempty"`
}

// NewView is the projection factory.
func NewView() cqrs.View[Event] { return &View{} }

func (v *View) ensureMaps() {
	if v.Balance == nil {
		v.Balance = make(map[types.Asset]types.Amount)
	}
	if v.LockedBalance == nil {
		v.LockedBalance = make(map[types.Asset]types.Amount)
	}
}

func (v *View) addLedger(entry LedgerEntry) {
	v.RecentLedger = append([]LedgerEntry{entry}, v.RecentLedger...)
	if len(v.RecentLedger) > RecentLedgerSize {
		v.RecentLedger = v.RecentLedger[:RecentLedgerSize]
	}
}

// Update implements cqrs.View.
func (v *View) Update(envelope cqrs.EventEnvelope[Event]) {
	event := envelope.Payload
	switch {
	case event.Lifecycle != nil:
		switch event.Lifecycle.Kind {
		case AccountOpenedEvent:
			v.AccountID = event.Lifecycle.AccountID
			v.ensureMaps()
		case AccountDisabledEvent:
			v.IsDisabled = true
		case AccountEnabledEvent:
			v.IsDisabled = false
		case AccountClosedEvent:
			*v = View{}
		}
	case event.Transaction != nil:
		v.ensureMaps()
		v.applyTransaction(*event.Transaction)
	}
}

func (v *View) applyTransaction(record TransactionRecord) {
	event := record.Event
	entry := LedgerEntry{Timestamp: record.Timestamp, Txid: record.Txid.Hex()}

	switch event.Kind {
	case DepositedEvent:
		v.Balance[event.Asset] += event.Amount
		entry.Detail = LedgerDetail{Type: "Deposit", Asset: event.Asset, Amount: event.Amount}

	case WithdrewEvent:
		v.Balance[event.Asset] -= event.Amount
		entry.Detail = LedgerDetail{Type: "Withdraw", Asset: event.Asset, Amount: event.Amount}

	case DebitedEvent:
		v.Balance[event.Asset] -= event.Amount
		entry.Detail = LedgerDetail{Type: "Debited", ToAccount: event.ToAccount, Asset: event.Asset, Amount: event.Amount}

	case DebitReversedEvent:
		v.Balance[event.Asset] += event.Amount
		entry.Detail = LedgerDetail{Type: "DebitReversed", ToAccount: event.ToAccount, Asset: event.Asset, Amount: event.Amount}

	case CreditedEvent:
		v.Balance[event.Asset] += event.Amount
		entry.Detail = LedgerDetail{Type: "Credited", FromAccount: event.FromAccount, Asset: event.Asset, Amount: event.Amount}

	case CreditReversedEvent:
		v.Balance[event.Asset] -= event.Amount
		entry.Detail = LedgerDetail{Type: "CreditReversed", FromAccount: event.FromAccount, Asset: event.Asset, Amount: event.Amount}

	case FundsLockedEvent:
		v.Balance[event.Asset] -= event.Amount
		v.LockedBalance[event.Asset] += event.Amount
		entry.Detail = LedgerDetail{Type: "Lock", Asset: event.Asset, Amount: event.Amount}

	case FundsUnlockedEvent:
		v.Balance[event.Asset] += event.Amount
		v.LockedBalance[event.Asset] -= event.Amount
		entry.Detail = LedgerDetail{Type: "Unlock", Asset: event.Asset, Amount: event.Amount}

	case SettledEvent:
		v.LockedBalance[event.SendAsset] -= event.SendAmount
		v.Balance[event.ReceiveAsset] += event.ReceiveAmount
		entry.Detail = LedgerDetail{
			Type:          "Settlement",
			ToAccount:     event.ToAccount,
			SendAsset:     event.SendAsset,
			SendAmount:    event.SendAmount,
			ReceiveAsset:  event.ReceiveAsset,
			ReceiveAmount: event.ReceiveAmount,
		}
	}
	v.addLedger(entry)
}
