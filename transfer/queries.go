package transfer

import (
	"github.com/withobsrvr/asset-ledger/cqrs"
	"github.com/withobsrvr/asset-ledger/types"
)

// ViewName is the read-side row family for transfer views.
const ViewName = "transfer_query"

// View is the read-side DTO for one transfer.
type View struct {
	TransferID      *types.ID32     `json:"transfer_id"`
	FromAccount     string          `json:"from_account"`
	ToAccount       string          `json:"to_account"`
	Amount          types.Amount    `json:"amount"`
	Asset           types.Asset     `json:"asset"`
	CreateTimestamp types.Timestamp `json:"create_timestamp"`
	UpdateTimestamp types.Timestamp `json:"update_timestamp"`
	Description     string          `json:"description"`
	IsDone          bool            `json:"is_done"`
	FailedReason    string          `json:"failed_reason,omitempty"`
}

// NewView is the projection factory.
func NewView() cqrs.View[Event] { return &View{} }

// Update implements cqrs.View.
func (v *View) Update(envelope cqrs.EventEnvelope[Event]) {
	event := envelope.Payload
	switch event.Kind {
	case OpenedEvent:
		invoice := event.Invoice
		id := invoice.TransferID
		v.TransferID = &id
		v.FromAccount = invoice.FromAccount
		v.ToAccount = invoice.ToAccount
		v.Amount = invoice.Amount
		v.Asset = invoice.Asset
		v.CreateTimestamp = invoice.Timestamp
		v.Description = invoice.Description
		v.IsDone = false
	case DoneEvent:
		v.UpdateTimestamp = event.Timestamp
		v.IsDone = true
	case FailedEvent:
		v.UpdateTimestamp = event.Timestamp
		v.FailedReason = event.Reason
	case CancelledEvent:
		v.FailedReason = event.Reason
	}
}
