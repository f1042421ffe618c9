package order

import (
	"context"

	"github.com/withobsrvr/asset-ledger/cqrs"
)

// Phase is the order state machine tag.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseInitialized   Phase = "initialized"
	PhasePlaced        Phase = "placed"
	PhaseCancelling    Phase = "cancelling"
	PhaseCancelled     Phase = "cancelled"
	PhaseBuying        Phase = "buying"
	PhaseBought        Phase = "bought"
	PhaseFailed        Phase = "failed"
	PhaseSettled       Phase = "settled"
)

// Order is the asset-for-asset swap saga. It owns no funds itself: every
// Continue issues idempotent commands against the seller's and buyer's
// Account aggregates and records its own checkpoint event. A crash between
// the account-side effect and the checkpoint is recovered by re-sending
// Continue, which leans on account-side idempotency.
type Order struct {
	Phase     Phase   `json:"phase"`
	Config    *Config `json:"config,omitempty"`
	Buyer     string  `json:"buyer,omitempty"`
	Timestamp uint64  `json:"timestamp,omitempty"`
	Reason    string  `json:"reason,omitempty"`

	svc *Services
}

// Engine is the command engine instantiated for the order aggregate.
type Engine = cqrs.Engine[*Order, Command, Event]

// NewOrder returns the engine factory for the order aggregate, with the
// services handle injected into every fresh instance.
func NewOrder(svc *Services) func() *Order {
	return func() *Order {
		return &Order{Phase: PhaseUninitialized, svc: svc}
	}
}

// AggregateType implements cqrs.Aggregate.
func (o *Order) AggregateType() string { return "order" }

// Handle implements cqrs.Aggregate.
func (o *Order) Handle(ctx context.Context, cmd Command) ([]Event, error) {
	switch cmd.Kind {
	case CommandOpen:
		if o.Phase != PhaseUninitialized {
			return nil, stateError(o.Phase, "Open")
		}
		return []Event{Initialized(*cmd.Config)}, nil

	case CommandBuy:
		if o.Phase != PhasePlaced {
			return nil, stateError(o.Phase, "Buy")
		}
		return []Event{Buying(cmd.Buyer, cmd.Timestamp)}, nil

	case CommandCancel:
		if o.Phase != PhasePlaced {
			return nil, stateError(o.Phase, "Cancel")
		}
		return []Event{Cancelling(o.svc.now(), cmd.Reason)}, nil

	case CommandContinue:
		return o.handleContinue(ctx)
	}
	return nil, stateError(o.Phase, string(cmd.Kind))
}

func (o *Order) handleContinue(ctx context.Context) ([]Event, error) {
	now := o.svc.now()
	cfg := o.Config

	switch o.Phase {
	case PhaseInitialized:
		locked, err := o.svc.lockFunds(ctx, cfg.OrderID, cfg.Seller, cfg.SellAsset, cfg.SellAmount, now)
		if err != nil {
			if cqrs.IsInfrastructure(err) {
				return nil, err
			}
			return []Event{Failed(now, err.Error())}, nil
		}
		locked.Commit()
		return []Event{Placed(now)}, nil

	case PhaseBuying:
		locked, err := o.svc.lockFunds(ctx, cfg.OrderID, o.Buyer, cfg.BuyAsset, cfg.BuyAmount, now)
		if err != nil {
			if cqrs.IsInfrastructure(err) {
				return nil, err
			}
			// The buyer could not fund the swap; return to awaiting a
			// buyer. The seller's lock is untouched.
			return []Event{Placed(now)}, nil
		}
		locked.Commit()
		return []Event{Bought(now)}, nil

	case PhaseBought:
		// Two settle legs, both keyed by the order id. Settles are not
		// compensable; a failed leg leaves the order in Bought and a
		// retried Continue replays both legs idempotently.
		if err := o.svc.settle(ctx, cfg.OrderID, cfg.Seller, o.Buyer, cfg.BuyAsset, cfg.BuyAmount, now); err != nil {
			return nil, err
		}
		if err := o.svc.settle(ctx, cfg.OrderID, o.Buyer, cfg.Seller, cfg.SellAsset, cfg.SellAmount, now); err != nil {
			return nil, err
		}
		return []Event{Settled(now)}, nil

	case PhaseCancelling:
		if err := o.svc.unlockFunds(ctx, cfg.OrderID, cfg.Seller); err != nil {
			return nil, err
		}
		return []Event{Cancelled(now)}, nil
	}
	return nil, stateError(o.Phase, "Continue")
}

// Apply implements cqrs.Aggregate.
func (o *Order) Apply(event Event) {
	switch event.Kind {
	case InitializedEvent:
		o.Phase = PhaseInitialized
		o.Config = event.Config
	case PlacedEvent:
		o.Phase = PhasePlaced
		o.Timestamp = event.Timestamp
		o.Buyer = ""
	case CancellingEvent:
		o.Phase = PhaseCancelling
		o.Timestamp = event.Timestamp
		o.Reason = event.Reason
	case CancelledEvent:
		o.Phase = PhaseCancelled
		o.Timestamp = event.Timestamp
	case BuyingEvent:
		o.Phase = PhaseBuying
		o.Buyer = event.Buyer
		o.Timestamp = event.Timestamp
	case BoughtEvent:
		o.Phase = PhaseBought
		o.Timestamp = event.Timestamp
	case FailedEvent:
		o.Phase = PhaseFailed
		o.Timestamp = event.Timestamp
		o.Reason = event.Reason
	case SettledEvent:
		o.Phase = PhaseSettled
		o.Timestamp = event.Timestamp
	}
}
