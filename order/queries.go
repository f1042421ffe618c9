package order

import (
	"github.com/withobsrvr/asset-ledger/cqrs"
	"github.com/withobsrvr/asset-ledger/types"
)

// ViewName is the read-side row family for order views.
const ViewName = "order_query"

// Status is the view's coarse state tag.
type Status string

const (
	StatusInitial    Status = "Initial"
	StatusPlaced     Status = "Placed"
	StatusCancelling Status = "Cancelling"
	StatusCancelled  Status = "Cancelled"
	StatusBuying     Status = "Buying"
	StatusBought     Status = "Bought"
	StatusFailed     Status = "Failed"
	StatusSettled    Status = "Settled"
)

// View is the read-side DTO for one order.
type View struct {
	ID         string           `json:"id"`
	Buyer      string           `json:"buyer,omitempty"`
	Seller     string           `json:"seller"`
	SellAsset  types.Asset      `json:"sell_asset"`
	SellAmount types.Amount     `json:"sell_amount"`
	BuyAsset   types.Asset      `json:"buy_asset"`
	BuyAmount  types.Amount     `json:"buy_amount"`
	Status     Status           `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	CreateTime types.Timestamp  `json:"create_time"`
	UpdateTime types.Timestamp  `json:"update_time"`
	SettleTime *types.Timestamp `json:"settle_time,omitempty"`
}

// NewView is the projection factory.
func NewView() cqrs.View[Event] { return &View{} }

// Update implements cqrs.View.
func (v *View) Update(envelope cqrs.EventEnvelope[Event]) {
	event := envelope.Payload
	switch event.Kind {
	case InitializedEvent:
		cfg := event.Config
		v.ID = cfg.OrderID.Hex()
		v.Seller = cfg.Seller
		v.SellAsset = cfg.SellAsset
		v.SellAmount = cfg.SellAmount
		v.BuyAsset = cfg.BuyAsset
		v.BuyAmount = cfg.BuyAmount
		v.Status = StatusInitial
		v.CreateTime = cfg.Timestamp
		v.UpdateTime = cfg.Timestamp
	case PlacedEvent:
		v.Status = StatusPlaced
		v.UpdateTime = event.Timestamp
	case CancellingEvent:
		v.Status = StatusCancelling
		v.Reason = event.Reason
		v.UpdateTime = event.Timestamp
	case CancelledEvent:
		v.Status = StatusCancelled
		v.UpdateTime = event.Timestamp
	case BuyingEvent:
		v.Status = StatusBuying
		v.Buyer = event.Buyer
		v.UpdateTime = event.Timestamp
	case BoughtEvent:
		v.Status = StatusBought
		v.UpdateTime = event.Timestamp
	case FailedEvent:
		v.Status = StatusFailed
		v.Reason = event.Reason
		v.UpdateTime = event.Timestamp
	case SettledEvent:
		v.Status = StatusSettled
		v.UpdateTime = event.Timestamp
		settleTime := event.Timestamp
		v.SettleTime = &settleTime
	}
}
