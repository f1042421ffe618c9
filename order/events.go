package order

import (
	"encoding/json"
	"fmt"

	"github.com/withobsrvr/asset-ledger/types"
)

// Config is the immutable order setup, fixed at Open and carried through
// every later state.
type Config struct {
	OrderID    types.ID32      `json:"order_id"`
	Seller     string          `json:"seller"`
	SellAsset  types.Asset     `json:"sell_asset"`
	SellAmount types.Amount    `json:"sell_amount"`
	BuyAsset   types.Asset     `json:"buy_asset"`
	BuyAmount  types.Amount    `json:"buy_amount"`
	Timestamp  types.Timestamp `json:"timestamp"`
}

// EventKind names the order event variants.
type EventKind string

const (
	InitializedEvent EventKind = "Initialized"
	PlacedEvent      EventKind = "Placed"
	CancellingEvent  EventKind = "Cancelling"
	CancelledEvent   EventKind = "Cancelled"
	BuyingEvent      EventKind = "Buying"
	BoughtEvent      EventKind = "Bought"
	FailedEvent      EventKind = "Failed"
	SettledEvent     EventKind = "Settled"
)

// Event is one order saga checkpoint. Config is set for Initialized, Buyer
// for Buying, Reason for Cancelling and Failed.
type Event struct {
	Kind      EventKind
	Config    *Config
	Buyer     string
	Timestamp types.Timestamp
	Reason    string
}

// EventType implements cqrs.DomainEvent.
func (e Event) EventType() string { return string(e.Kind) }

// EventVersion implements cqrs.DomainEvent.
func (e Event) EventVersion() string { return "1.0" }

func Initialized(config Config) Event {
	return Event{Kind: InitializedEvent, Config: &config}
}

func Placed(timestamp types.Timestamp) Event {
	return Event{Kind: PlacedEvent, Timestamp: timestamp}
}

func Cancelling(timestamp types.Timestamp, reason string) Event {
	return Event{Kind: CancellingEvent, Timestamp: timestamp, Reason: reason}
}

func Cancelled(timestamp types.Timestamp) Event {
	return Event{Kind: CancelledEvent, Timestamp: timestamp}
}

func Buying(buyer string, timestamp types.Timestamp) Event {
	return Event{Kind: BuyingEvent, Buyer: buyer, Timestamp: timestamp}
}

func Bought(timestamp types.Timestamp) Event {
	return Event{Kind: BoughtEvent, Timestamp: timestamp}
}

func Failed(timestamp types.Timestamp, reason string) Event {
	return Event{Kind: FailedEvent, Timestamp: timestamp, Reason: reason}
}

func Settled(timestamp types.Timestamp) Event {
	return Event{Kind: SettledEvent, Timestamp: timestamp}
}

// JSON wire form.

type timestampPayload struct {
	Timestamp types.Timestamp `json:"timestamp"`
}

type timestampReasonPayload struct {
	Timestamp types.Timestamp `json:"timestamp"`
	Reason    string          `json:"reason"`
}

type buyingPayload struct {
	Buyer     string          `json:"buyer"`
	Timestamp types.Timestamp `json:"timestamp"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case InitializedEvent:
		return types.MarshalTagged(string(e.Kind), struct {
			Config *Config `json:"config"`
		}{e.Config})
	case PlacedEvent, CancelledEvent, BoughtEvent, SettledEvent:
		return types.MarshalTagged(string(e.Kind), timestampPayload{e.Timestamp})
	case CancellingEvent, FailedEvent:
		return types.MarshalTagged(string(e.Kind), timestampReasonPayload{e.Timestamp, e.Reason})
	case BuyingEvent:
		return types.MarshalTagged(string(e.Kind), buyingPayload{e.Buyer, e.Timestamp})
	}
	return nil, fmt.Errorf("unknown order event %q", e.Kind)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	tag, payload, err := types.UnmarshalTagged(data)
	if err != nil {
		return err
	}
	kind := EventKind(tag)
	switch kind {
	case InitializedEvent:
		var p struct {
			Config *Config `json:"config"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*e = Event{Kind: kind, Config: p.Config}
	case PlacedEvent, CancelledEvent, BoughtEvent, SettledEvent:
		var p timestampPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*e = Event{Kind: kind, Timestamp: p.Timestamp}
	case CancellingEvent, FailedEvent:
		var p timestampReasonPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*e = Event{Kind: kind, Timestamp: p.Timestamp, Reason: p.Reason}
	case BuyingEvent:
		var p buyingPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		*e = Event{Kind: kind, Buyer: p.Buyer, Timestamp: p.Timestamp}
	default:
		return fmt.Errorf("unknown order event %q", tag)
	}
	return nil
}
